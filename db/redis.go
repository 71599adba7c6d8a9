package db

import (
	"context"
	"fmt"
	"time"

	"ChainFM/config"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis initializes a Redis client and verifies connectivity.
func ConnectRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// TestRedis runs a basic set/get/del round trip.
func TestRedis(client *redis.Client) error {
	if client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	ctx := context.Background()

	if err := client.Set(ctx, "chainfm:healthcheck", "ok", 5*time.Minute).Err(); err != nil {
		return fmt.Errorf("failed to set Redis key: %w", err)
	}

	val, err := client.Get(ctx, "chainfm:healthcheck").Result()
	if err != nil {
		return fmt.Errorf("failed to get Redis key: %w", err)
	}
	if val != "ok" {
		return fmt.Errorf("unexpected value from Redis: got %s", val)
	}

	if _, err := client.Del(ctx, "chainfm:healthcheck").Result(); err != nil {
		return fmt.Errorf("failed to delete Redis key: %w", err)
	}

	return nil
}
