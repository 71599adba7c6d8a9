package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"ChainFM/model"
)

type verifyRentalRequest struct {
	TxHash        string `json:"txHash"`
	CatalogItemID string `json:"catalogItemId"`
}

// VerifyRentalHandler validates a payment transaction against the chain
// and persists the rental grant. Resubmitting the same transaction hash
// returns the existing rental with 200 instead of creating a second one.
func (h *APIHandler) VerifyRentalHandler(w http.ResponseWriter, r *http.Request) {
	wallet, err := WalletFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req verifyRentalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TxHash == "" {
		writeError(w, http.StatusBadRequest, "txHash is required")
		return
	}

	rentalGrant, err := h.verifier.VerifyAndCreateRental(r.Context(), req.TxHash, wallet, req.CatalogItemID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rentalGrant)
}

// ListRentalsHandler returns the wallet's active rentals. The path
// wallet must match the authenticated wallet.
func (h *APIHandler) ListRentalsHandler(w http.ResponseWriter, r *http.Request) {
	wallet, err := WalletFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	pathWallet := mux.Vars(r)["wallet"]
	if !strings.EqualFold(pathWallet, wallet) {
		writeError(w, http.StatusForbidden, "cannot list another wallet's rentals")
		return
	}

	rentals, err := h.rentals.ListActiveByWallet(wallet, time.Now())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if rentals == nil {
		rentals = []*model.Rental{}
	}
	writeJSON(w, http.StatusOK, rentals)
}
