package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"ChainFM/model"
	"ChainFM/repository"
)

// ListCatalogHandler returns catalog items, optionally filtered by type
// and category query parameters.
func (h *APIHandler) ListCatalogHandler(w http.ResponseWriter, r *http.Request) {
	filters := repository.CatalogFilters{
		Type:     r.URL.Query().Get("type"),
		Category: r.URL.Query().Get("category"),
	}

	items, err := h.catalog.ListItems(filters)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if items == nil {
		items = []*model.CatalogItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

type catalogItemResponse struct {
	*model.CatalogItem
	SegmentCount int64 `json:"segmentCount"`
	Rentable     bool  `json:"rentable"`
}

// GetCatalogItemHandler returns one item with its segment count.
func (h *APIHandler) GetCatalogItemHandler(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]

	item, err := h.catalog.GetItem(itemID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "catalog item not found")
		return
	}

	count, err := h.segments.CountByItem(item.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, catalogItemResponse{
		CatalogItem:  item,
		SegmentCount: count,
		Rentable:     item.Rentable(),
	})
}
