// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// layergroup.go provides a Valkey-backed cache of instantiation responses.
// When a named map is instantiated, the response body and its CDN headers
// are stored under the provider's full cache key so an identical
// instantiation skips the resolution pipeline entirely. Keys share the
// template's base key as a prefix, which makes template-level invalidation
// a prefix scan.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	// layergroupKeyPrefix is the Valkey key prefix for cached instantiations.
	layergroupKeyPrefix = "layergroup:"

	// DefaultLayergroupTTL is how long an instantiation response stays cached.
	DefaultLayergroupTTL = 5 * time.Minute
)

// Envelope is one cached instantiation response: the JSON body plus the
// invalidation headers derived from its affected tables.
type Envelope struct {
	Body          []byte   `json:"body"`
	CacheChannel  string   `json:"cache_channel"`
	SurrogateKeys []string `json:"surrogate_keys"`
}

// LayergroupCache manages instantiation response caching in Valkey.
type LayergroupCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLayergroupCache creates a cache backed by the given Valkey client.
func NewLayergroupCache(client *redis.Client, ttl time.Duration) *LayergroupCache {
	if ttl == 0 {
		ttl = DefaultLayergroupTTL
	}
	return &LayergroupCache{client: client, ttl: ttl}
}

// Get retrieves the cached response for a provider's full key.
func (lc *LayergroupCache) Get(ctx context.Context, fullKey string) (*Envelope, bool) {
	raw, err := lc.client.Get(ctx, layergroupKeyPrefix+fullKey).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Warn("layergroup cache get error", "key", fullKey, "error", err)
		return nil, false
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		slog.Warn("layergroup cache decode error", "key", fullKey, "error", err)
		return nil, false
	}
	slog.Debug("layergroup cache hit", "key", fullKey)
	return &env, true
}

// Set stores an instantiation response under a provider's full key.
func (lc *LayergroupCache) Set(ctx context.Context, fullKey string, env *Envelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		slog.Warn("layergroup cache encode error", "key", fullKey, "error", err)
		return
	}
	if err := lc.client.Set(ctx, layergroupKeyPrefix+fullKey, raw, lc.ttl).Err(); err != nil {
		slog.Warn("layergroup cache set error", "key", fullKey, "error", err)
	}
}

// InvalidateTemplate removes every cached instantiation sharing a
// template's base key, by scanning for the prefix. Called when a template
// is updated or deleted, since any parameter set could be affected.
func (lc *LayergroupCache) InvalidateTemplate(ctx context.Context, baseKey string) {
	pattern := fmt.Sprintf("%s%s:*", layergroupKeyPrefix, baseKey)
	var cursor uint64
	var deleted int
	for {
		keys, nextCursor, err := lc.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			slog.Warn("layergroup cache scan error", "error", err)
			return
		}
		if len(keys) > 0 {
			if err := lc.client.Del(ctx, keys...).Err(); err != nil {
				slog.Warn("layergroup cache bulk delete error", "error", err)
			}
			deleted += len(keys)
		}
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	if deleted > 0 {
		slog.Info("layergroup cache invalidated", "base", baseKey, "deleted", deleted)
	}
}
