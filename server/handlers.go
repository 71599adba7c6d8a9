package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"ChainFM/config"
	"ChainFM/core/entitystore"
	"ChainFM/core/rental"
	"ChainFM/core/segmentgraph"
	"ChainFM/core/stream"
	"ChainFM/core/upload"
	"ChainFM/core/walletauth"
	"ChainFM/logger"
	"ChainFM/repository"
	"ChainFM/storage"
)

type contextKey string

const walletContextKey contextKey = "wallet"

// APIHandler holds every dependency the HTTP surface needs.
type APIHandler struct {
	cfg *config.Config

	profiles repository.ProfileRepository
	catalog  repository.CatalogRepository
	segments repository.SegmentRepository
	rentals  repository.RentalRepository
	jobs     repository.UploadJobRepository

	auth     *walletauth.Authenticator
	tokens   *walletauth.TokenIssuer
	verifier *rental.Verifier
	gate     *stream.Gate
	pipeline *upload.Pipeline
	covers   *storage.CoverStore
	hub      *ProgressHub
}

func NewAPIHandler(
	cfg *config.Config,
	profiles repository.ProfileRepository,
	catalog repository.CatalogRepository,
	segments repository.SegmentRepository,
	rentals repository.RentalRepository,
	jobs repository.UploadJobRepository,
	auth *walletauth.Authenticator,
	tokens *walletauth.TokenIssuer,
	verifier *rental.Verifier,
	gate *stream.Gate,
	pipeline *upload.Pipeline,
	covers *storage.CoverStore,
	hub *ProgressHub,
) *APIHandler {
	return &APIHandler{
		cfg:      cfg,
		profiles: profiles,
		catalog:  catalog,
		segments: segments,
		rentals:  rentals,
		jobs:     jobs,
		auth:     auth,
		tokens:   tokens,
		verifier: verifier,
		gate:     gate,
		pipeline: pipeline,
		covers:   covers,
		hub:      hub,
	}
}

// AuthMiddleware checks for a valid bearer token and puts the caller's
// wallet address on the request context.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "authorization header is required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		claims, err := h.tokens.Parse(parts[1])
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), walletContextKey, claims.WalletAddress)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// WalletFromContext returns the authenticated wallet address set by
// AuthMiddleware.
func WalletFromContext(ctx context.Context) (string, error) {
	wallet, ok := ctx.Value(walletContextKey).(string)
	if !ok || wallet == "" {
		return "", fmt.Errorf("no wallet in context")
	}
	return wallet, nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to encode response", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps known failure modes to HTTP statuses. Anything
// unrecognized is a 500 with a generic message so internals never leak.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rental.ErrTxNotFound),
		errors.Is(err, rental.ErrItemNotFound),
		errors.Is(err, stream.ErrRentalNotFound),
		errors.Is(err, stream.ErrNoContent),
		errors.Is(err, segmentgraph.ErrChunkNotFound),
		errors.Is(err, entitystore.ErrEntityNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, rental.ErrTxFailed),
		errors.Is(err, rental.ErrWrongContract),
		errors.Is(err, rental.ErrEventMissing),
		errors.Is(err, rental.ErrCatalogMismatch),
		errors.Is(err, rental.ErrPriceTooLow):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, rental.ErrRenterMismatch),
		errors.Is(err, stream.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, stream.ErrRentalExpired),
		errors.Is(err, stream.ErrRentalInactive):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, walletauth.ErrNonceExpired),
		errors.Is(err, walletauth.ErrInvalidSignature):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, rental.ErrChainUnavailable),
		errors.Is(err, entitystore.ErrStoreUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		logger.Error("Unhandled error", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
