// Package cache keeps read-mostly catalog data in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/internal/domain"
)

const (
	productKeyPrefix = "storefront:product:"
	topKeyPrefix     = "storefront:products:top:"
	topIndexKey      = "storefront:products:top:keys"
)

// ProductCache caches product detail views and top-rated lists. Misses are
// reported as (nil, false, nil).
type ProductCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewProductCache creates a new Redis-backed product cache.
func NewProductCache(client *redis.Client, ttl time.Duration) *ProductCache {
	return &ProductCache{client: client, ttl: ttl}
}

// GetProduct returns the cached detail view of a product.
func (c *ProductCache) GetProduct(ctx context.Context, id string) (*domain.Product, bool, error) {
	var p domain.Product
	ok, err := c.get(ctx, productKeyPrefix+id, &p)
	if !ok || err != nil {
		return nil, false, err
	}
	return &p, true, nil
}

// SetProduct caches the detail view of a product.
func (c *ProductCache) SetProduct(ctx context.Context, p *domain.Product) error {
	return c.set(ctx, productKeyPrefix+p.ID, p)
}

// GetTop returns the cached top-rated list for limit.
func (c *ProductCache) GetTop(ctx context.Context, limit int) ([]domain.Product, bool, error) {
	var ps []domain.Product
	ok, err := c.get(ctx, topKey(limit), &ps)
	if !ok || err != nil {
		return nil, false, err
	}
	return ps, true, nil
}

// SetTop caches the top-rated list for limit.
func (c *ProductCache) SetTop(ctx context.Context, limit int, ps []domain.Product) error {
	key := topKey(limit)
	pipe := c.client.TxPipeline()
	data, err := json.Marshal(ps)
	if err != nil {
		return fmt.Errorf("marshal top products: %w", err)
	}
	pipe.Set(ctx, key, data, c.ttl)
	pipe.SAdd(ctx, topIndexKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set top products: %w", err)
	}
	return nil
}

// Invalidate drops the detail views of the given products and every cached
// top-rated list, since any product change can reorder them.
func (c *ProductCache) Invalidate(ctx context.Context, ids ...string) error {
	keys, err := c.client.SMembers(ctx, topIndexKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis list top keys: %w", err)
	}
	keys = append(keys, topIndexKey)
	for _, id := range ids {
		keys = append(keys, productKeyPrefix+id)
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del products: %w", err)
	}
	return nil
}

func (c *ProductCache) get(ctx context.Context, key string, v any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (c *ProductCache) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func topKey(limit int) string {
	return fmt.Sprintf("%s%d", topKeyPrefix, limit)
}
