package server

import (
	"encoding/json"
	"net/http"
)

// GetProfileHandler returns the authenticated wallet's profile.
func (h *APIHandler) GetProfileHandler(w http.ResponseWriter, r *http.Request) {
	wallet, err := WalletFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	profile, err := h.profiles.GetOrCreate(wallet)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type updateProfileRequest struct {
	DisplayName *string `json:"displayName"`
	AvatarURL   *string `json:"avatarUrl"`
}

// UpdateProfileHandler patches display name and avatar. Absent fields
// are left unchanged.
func (h *APIHandler) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	wallet, err := WalletFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DisplayName == nil && req.AvatarURL == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	profile, err := h.profiles.Update(wallet, req.DisplayName, req.AvatarURL)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
