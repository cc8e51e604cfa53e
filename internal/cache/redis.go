// Package cache provides a Redis-backed read-through cache for product
// projections. All methods are safe on a nil *Cache so callers never need
// to branch on whether caching is configured.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Camus10737/warket/internal/model"
)

type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Cache{client: client, ttl: ttl}, nil
}

func productKey(id string) string { return "product:" + id }

func (c *Cache) GetProduct(ctx context.Context, id string) (*model.Product, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, productKey(id)).Bytes()
	if err != nil {
		return nil, false
	}
	var p model.Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false
	}
	return &p, true
}

func (c *Cache) SetProduct(ctx context.Context, p *model.Product) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	c.client.Set(ctx, productKey(p.ID), raw, c.ttl)
}

func (c *Cache) InvalidateProduct(ctx context.Context, id string) {
	if c == nil {
		return
	}
	c.client.Del(ctx, productKey(id))
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
