package entitystore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemStore is an in-memory Store used in development (ARKIV_MODE=memory)
// and in tests. It honors the same expiry semantics as the remote store,
// including the zero-means-long-default quirk.
type MemStore struct {
	mu       sync.Mutex
	seq      int
	entities map[string]memEntity

	now func() time.Time

	// FailPuts makes every write fail with ErrStoreUnavailable. Used by
	// tests to exercise abort paths.
	FailPuts bool
}

type memEntity struct {
	data        []byte
	contentType string
	expiresAt   time.Time
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		entities: make(map[string]memEntity),
		now:      time.Now,
	}
}

// SetClock overrides the store's clock. Test use only.
func (s *MemStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *MemStore) Put(ctx context.Context, data []byte, contentType string, expirySeconds int64) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailPuts {
		return "", "", fmt.Errorf("%w: put rejected", ErrStoreUnavailable)
	}

	s.seq++
	entityID := fmt.Sprintf("mem_entity_%06d", s.seq)
	txID := fmt.Sprintf("0xmemtx%058d", s.seq)

	stored := make([]byte, len(data))
	copy(stored, data)
	s.entities[entityID] = memEntity{
		data:        stored,
		contentType: contentType,
		expiresAt:   s.now().Add(time.Duration(normalizeExpiry(expirySeconds)) * time.Second),
	}
	return entityID, txID, nil
}

func (s *MemStore) PutText(ctx context.Context, text, contentType string, expirySeconds int64) (string, string, error) {
	return s.Put(ctx, []byte(text), contentType, expirySeconds)
}

func (s *MemStore) Get(ctx context.Context, entityID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entity, ok := s.entities[entityID]
	if !ok || s.now().After(entity.expiresAt) {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, entityID)
	}
	out := make([]byte, len(entity.data))
	copy(out, entity.data)
	return out, nil
}

func (s *MemStore) GetText(ctx context.Context, entityID string) (string, error) {
	data, err := s.Get(ctx, entityID)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *MemStore) Clone(ctx context.Context, entityID string, newExpirySeconds int64) (string, string, error) {
	data, err := s.Get(ctx, entityID)
	if err != nil {
		return "", "", err
	}
	s.mu.Lock()
	contentType := s.entities[entityID].contentType
	s.mu.Unlock()
	return s.Put(ctx, data, contentType, newExpirySeconds)
}

// Len reports the number of stored entities. Test helper.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entities)
}
