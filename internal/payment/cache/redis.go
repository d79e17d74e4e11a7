package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"payflow/internal/payment/models"
)

const statusKeyPrefix = "payflow:status:"

// RedisCache is a Redis-backed StatusCache shared across service instances.
// Redis handles TTL expiry and memory pressure, so there is no janitor or
// size bound here.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a Redis-backed status cache.
func NewRedis(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func statusKey(transactionID string) string {
	return statusKeyPrefix + transactionID
}

func (c *RedisCache) Get(ctx context.Context, transactionID string) (*models.StatusSnapshot, error) {
	payload, err := c.client.Get(ctx, statusKey(transactionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	var snapshot models.StatusSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		// A corrupt entry is treated as a miss; the next Set overwrites it.
		return nil, nil
	}
	return &snapshot, nil
}

func (c *RedisCache) Set(ctx context.Context, snapshot models.StatusSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal status snapshot: %w", err)
	}
	if err := c.client.Set(ctx, statusKey(snapshot.TransactionID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, transactionID string) error {
	if err := c.client.Del(ctx, statusKey(transactionID)).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}
