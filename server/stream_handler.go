package server

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// PlaylistHandler serves the playback manifest for a rental. Media
// players cannot send Authorization headers, so the claimed wallet rides
// in the query string and the gate checks it against the rental owner.
func (h *APIHandler) PlaylistHandler(w http.ResponseWriter, r *http.Request) {
	rentalID := mux.Vars(r)["rental_id"]
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "wallet query parameter is required")
		return
	}

	manifest, err := h.gate.GenerateManifest(r.Context(), rentalID, wallet, h.cfg.PublicBase)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(manifest))
}

// SegmentHandler serves one segment's bytes after re-authorizing the
// rental and re-walking the segment chain.
func (h *APIHandler) SegmentHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rentalID := vars["rental_id"]
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "wallet query parameter is required")
		return
	}

	sequence, err := strconv.Atoi(vars["sequence"])
	if err != nil || sequence < 0 {
		writeError(w, http.StatusBadRequest, "invalid segment sequence")
		return
	}

	data, err := h.gate.FetchSegment(r.Context(), rentalID, wallet, sequence)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "video/MP2T")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
