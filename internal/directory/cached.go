package directory

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zeebo/blake3"

	"jobmate/fulfillment-service/internal/model"
	"jobmate/fulfillment-service/internal/textnorm"
)

// Cached memoises QueryProviders results in Redis for ttl. GetProvider is
// never cached: conversion must see the provider as it is now. Redis errors
// fall back to the wrapped directory.
type Cached struct {
	next Directory
	rdb  *redis.Client
	ttl  time.Duration
}

// NewCached wraps next.
func NewCached(next Directory, rdb *redis.Client, ttl time.Duration) *Cached {
	return &Cached{next: next, rdb: rdb, ttl: ttl}
}

// CacheKey identifies one query; equivalent spellings share a key.
func CacheKey(serviceType string, area model.Location, activeOnly bool) string {
	raw := fmt.Sprintf("%s|%s|%v", textnorm.Fold(serviceType), textnorm.Fold(area.Text), activeOnly)
	if g := area.Geo; g != nil {
		raw += fmt.Sprintf("|%.5f,%.5f", g.Lat, g.Lng)
	}
	sum := blake3.Sum256([]byte(raw))
	return "directory:providers:" + hex.EncodeToString(sum[:12])
}

func (c *Cached) QueryProviders(ctx context.Context, serviceType string, area model.Location, activeOnly bool) ([]model.Provider, error) {
	key := CacheKey(serviceType, area, activeOnly)

	cached, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var providers []model.Provider
		if err := json.Unmarshal(cached, &providers); err == nil {
			return providers, nil
		}
		slog.Warn("directory cache entry unreadable", "key", key)
	case err != redis.Nil:
		slog.Warn("directory cache read failed", "err", err)
	}

	providers, err := c.next.QueryProviders(ctx, serviceType, area, activeOnly)
	if err != nil {
		return nil, err
	}
	if body, err := json.Marshal(providers); err == nil {
		if err := c.rdb.Set(ctx, key, body, c.ttl).Err(); err != nil {
			slog.Warn("directory cache write failed", "err", err)
		}
	}
	return providers, nil
}

func (c *Cached) GetProvider(ctx context.Context, id string) (*model.Provider, error) {
	return c.next.GetProvider(ctx, id)
}
