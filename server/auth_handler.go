package server

import (
	"encoding/json"
	"net/http"

	"ChainFM/logger"
)

type nonceRequest struct {
	WalletAddress string `json:"walletAddress"`
}

type nonceResponse struct {
	Challenge string `json:"challenge"`
}

// NonceHandler issues a fresh sign-in challenge for a wallet. Requesting
// a new challenge invalidates any previous one for the same wallet.
func (h *APIHandler) NonceHandler(w http.ResponseWriter, r *http.Request) {
	var req nonceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.WalletAddress == "" {
		writeError(w, http.StatusBadRequest, "walletAddress is required")
		return
	}

	challenge, err := h.auth.IssueNonce(r.Context(), req.WalletAddress)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonceResponse{Challenge: challenge})
}

type verifyRequest struct {
	WalletAddress string `json:"walletAddress"`
	Challenge     string `json:"challenge"`
	Signature     string `json:"signature"`
}

// VerifyHandler checks the signed challenge, burns the nonce and returns
// the wallet's profile with a session token.
func (h *APIHandler) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.WalletAddress == "" || req.Challenge == "" || req.Signature == "" {
		writeError(w, http.StatusBadRequest, "walletAddress, challenge and signature are required")
		return
	}

	profile, err := h.auth.Verify(r.Context(), req.WalletAddress, req.Challenge, req.Signature)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	token, err := h.tokens.Issue(profile.WalletAddress)
	if err != nil {
		logger.Error("Failed to issue token",
			logger.String("wallet", profile.WalletAddress),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"profile": profile,
		"token":   token,
	})
}
