// Package cache provides Redis-backed caches in front of the entity
// store. Cache failures degrade to misses so playback keeps working when
// Redis is down; only the extra store round trips are lost.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ChainFM/logger"
)

const (
	segmentKeyPrefix  = "chainfm:segdata:"
	resolvedKeyPrefix = "chainfm:segresolved:"

	segmentTTL  = 30 * time.Minute
	resolvedTTL = 6 * time.Hour

	maxGetRetries = 2
)

// StreamCache caches resolved sequence lookups and segment payloads.
// It implements stream.SegmentCache.
type StreamCache struct {
	client *redis.Client
}

func NewStreamCache(client *redis.Client) *StreamCache {
	return &StreamCache{client: client}
}

// GetResolved returns the cached data entity id for an item's sequence.
func (c *StreamCache) GetResolved(ctx context.Context, itemID string, sequence int) (string, bool) {
	key := resolvedKey(itemID, sequence)
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("Resolved-sequence cache read failed",
				logger.String("key", key),
				logger.ErrorField(err))
		}
		return "", false
	}
	return val, true
}

func (c *StreamCache) SetResolved(ctx context.Context, itemID string, sequence int, dataEntityID string) {
	key := resolvedKey(itemID, sequence)
	if err := c.client.Set(ctx, key, dataEntityID, resolvedTTL).Err(); err != nil {
		logger.Warn("Resolved-sequence cache write failed",
			logger.String("key", key),
			logger.ErrorField(err))
	}
}

// GetBytes returns cached segment payload bytes. Transient Redis errors
// are retried once with backoff, then treated as a miss.
func (c *StreamCache) GetBytes(ctx context.Context, dataEntityID string) ([]byte, bool) {
	key := segmentKeyPrefix + dataEntityID
	retryDelay := 100 * time.Millisecond

	for attempt := 0; attempt < maxGetRetries; attempt++ {
		data, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			logger.Debug("Segment cache hit",
				logger.String("key", key),
				logger.Int("dataSize", len(data)))
			return data, true
		}
		if errors.Is(err, redis.Nil) {
			return nil, false
		}
		if attempt < maxGetRetries-1 {
			logger.Warn("Segment cache read failed, retrying",
				logger.String("key", key),
				logger.Int("attempt", attempt+1),
				logger.ErrorField(err))
			time.Sleep(retryDelay)
			retryDelay *= 2
			continue
		}
		logger.Error("Segment cache read failed, falling back to entity store",
			logger.String("key", key),
			logger.ErrorField(err))
	}
	return nil, false
}

func (c *StreamCache) SetBytes(ctx context.Context, dataEntityID string, data []byte) {
	key := segmentKeyPrefix + dataEntityID
	if err := c.client.Set(ctx, key, data, segmentTTL).Err(); err != nil {
		logger.Warn("Segment cache write failed",
			logger.String("key", key),
			logger.Int("dataSize", len(data)),
			logger.ErrorField(err))
	}
}

func resolvedKey(itemID string, sequence int) string {
	return fmt.Sprintf("%s%s:%d", resolvedKeyPrefix, itemID, sequence)
}
