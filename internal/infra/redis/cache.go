package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dtnghia/merchgate/internal/core/domain"
)

func productKey(id string) string {
	return fmt.Sprintf("product:%s", id)
}

// ProductCache is a JSON product cache with TTL. A cache failure is reported
// to the caller as a miss plus error so the read path can fall through to the
// provider.
type ProductCache struct {
	client *Client
	ttl    time.Duration
}

// NewProductCache creates a cache with the given TTL (default 5 minutes).
func NewProductCache(client *Client, ttl time.Duration) *ProductCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ProductCache{client: client, ttl: ttl}
}

// Get returns the cached product, or found=false on a miss.
func (c *ProductCache) Get(ctx context.Context, id string) (*domain.Product, bool, error) {
	raw, err := c.client.rdb.Get(ctx, productKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var p domain.Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false, fmt.Errorf("cache decode: %w", err)
	}
	return &p, true, nil
}

// Set stores the product under the cache TTL.
func (c *ProductCache) Set(ctx context.Context, p *domain.Product) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.rdb.Set(ctx, productKey(p.ID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Invalidate drops the cached product, typically after a mutation.
func (c *ProductCache) Invalidate(ctx context.Context, id string) error {
	if err := c.client.rdb.Del(ctx, productKey(id)).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}
