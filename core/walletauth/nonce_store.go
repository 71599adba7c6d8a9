package walletauth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// NonceStore keeps at most one live challenge per wallet. Issuing a new
// challenge overwrites the previous one; expiry makes a challenge absent.
type NonceStore interface {
	Save(ctx context.Context, wallet, challenge string, ttl time.Duration) error
	Get(ctx context.Context, wallet string) (string, error) // "" when absent or expired
	Delete(ctx context.Context, wallet string) error
}

func nonceKey(wallet string) string {
	return "authnonce:" + strings.ToLower(wallet)
}

// RedisNonceStore stores challenges in Redis, letting TTL do the expiry.
type RedisNonceStore struct {
	client *redis.Client
}

// NewRedisNonceStore creates a Redis-backed NonceStore.
func NewRedisNonceStore(client *redis.Client) *RedisNonceStore {
	return &RedisNonceStore{client: client}
}

func (s *RedisNonceStore) Save(ctx context.Context, wallet, challenge string, ttl time.Duration) error {
	if err := s.client.Set(ctx, nonceKey(wallet), challenge, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store nonce for %s: %w", wallet, err)
	}
	return nil
}

func (s *RedisNonceStore) Get(ctx context.Context, wallet string) (string, error) {
	val, err := s.client.Get(ctx, nonceKey(wallet)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read nonce for %s: %w", wallet, err)
	}
	return val, nil
}

func (s *RedisNonceStore) Delete(ctx context.Context, wallet string) error {
	if err := s.client.Del(ctx, nonceKey(wallet)).Err(); err != nil {
		return fmt.Errorf("failed to delete nonce for %s: %w", wallet, err)
	}
	return nil
}

// MemNonceStore is an in-memory NonceStore for tests and single-node dev.
type MemNonceStore struct {
	mu     sync.Mutex
	nonces map[string]memNonce
	now    func() time.Time
}

type memNonce struct {
	challenge string
	expiresAt time.Time
}

// NewMemNonceStore creates an empty in-memory NonceStore.
func NewMemNonceStore(now func() time.Time) *MemNonceStore {
	if now == nil {
		now = time.Now
	}
	return &MemNonceStore{nonces: make(map[string]memNonce), now: now}
}

func (s *MemNonceStore) Save(ctx context.Context, wallet, challenge string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[nonceKey(wallet)] = memNonce{challenge: challenge, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemNonceStore) Get(ctx context.Context, wallet string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.nonces[nonceKey(wallet)]
	if !ok || s.now().After(stored.expiresAt) || s.now().Equal(stored.expiresAt) {
		delete(s.nonces, nonceKey(wallet))
		return "", nil
	}
	return stored.challenge, nil
}

func (s *MemNonceStore) Delete(ctx context.Context, wallet string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nonces, nonceKey(wallet))
	return nil
}
