// Package entitystore talks to the remote blockchain entity store: an
// append-only, expiring blob store whose only addressing primitive is the
// opaque entity identifier returned by each write.
package entitystore

import (
	"context"
	"errors"
)

// DefaultExpirySeconds is used when a caller passes expirySeconds == 0.
// Zero means "keep for a long time", never "expire immediately"; callers
// relying on a short expiry must pass it explicitly.
const DefaultExpirySeconds int64 = 31536000 // one year

// Content types recorded with stored entities.
const (
	ContentTypeChunk    = "application/octet-stream"
	ContentTypeMetadata = "application/json"
	ContentTypePlaylist = "application/vnd.apple.mpegurl"
)

var (
	// ErrStoreUnavailable wraps transient failures of the remote store.
	// Callers may retry; this package performs no retries itself.
	ErrStoreUnavailable = errors.New("entity store unavailable")

	// ErrEntityNotFound is returned when an entity id resolves to nothing,
	// either because it never existed or because it expired.
	ErrEntityNotFound = errors.New("entity not found")
)

// Store is the collaborator interface for the remote entity store. Each
// write is independent; there are no transactions spanning multiple puts.
type Store interface {
	// Put uploads a binary blob and returns its entity id and the id of the
	// chain transaction that recorded it.
	Put(ctx context.Context, data []byte, contentType string, expirySeconds int64) (entityID, txID string, err error)

	// PutText uploads a text blob.
	PutText(ctx context.Context, text, contentType string, expirySeconds int64) (entityID, txID string, err error)

	// Get fetches a blob by entity id.
	Get(ctx context.Context, entityID string) ([]byte, error)

	// GetText fetches a text blob by entity id.
	GetText(ctx context.Context, entityID string) (string, error)

	// Clone copies an existing entity into a new one with its own
	// expiration, returning the new entity id.
	Clone(ctx context.Context, entityID string, newExpirySeconds int64) (cloneID, txID string, err error)
}

func normalizeExpiry(expirySeconds int64) int64 {
	if expirySeconds == 0 {
		return DefaultExpirySeconds
	}
	return expirySeconds
}
