// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package namedmaps

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// maxBucketProviders caps how many parameter sets one template keeps
// memoized. Past the cap the least recently used session is evicted, which
// bounds memory when callers churn configs, tokens, or formats faster than
// template invalidation ever runs.
const maxBucketProviders = 256

type providerEntry struct {
	provider *Provider
	lastUsed atomic.Int64
}

// ProviderCache keeps resolution sessions alive across requests so repeated
// tile fetches against an instantiated map reuse the memoized pipeline
// result. Entries are grouped by base key (one bucket per owner+template)
// with one provider per full parameter set, which makes invalidation on
// template change a single bucket drop.
type ProviderCache struct {
	deps Deps

	mu      sync.RWMutex
	buckets map[string]map[string]*providerEntry
}

// NewProviderCache creates an empty provider cache whose providers share
// the given collaborators.
func NewProviderCache(deps Deps) *ProviderCache {
	return &ProviderCache{
		deps:    deps,
		buckets: make(map[string]map[string]*providerEntry),
	}
}

// Get returns the cached provider for this exact parameter set, creating
// and caching a fresh one on miss.
func (c *ProviderCache) Get(owner, templateID string, config any, authToken string, params RendererParams) *Provider {
	fresh := NewProvider(c.deps, owner, templateID, config, authToken, params)
	base := fresh.Key(true)
	full := fresh.Key(false)
	now := time.Now().UnixNano()

	c.mu.RLock()
	if e, ok := c.buckets[base][full]; ok {
		c.mu.RUnlock()
		e.lastUsed.Store(now)
		return e.provider
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.buckets[base][full]; ok {
		e.lastUsed.Store(now)
		return e.provider
	}
	bucket := c.buckets[base]
	if bucket == nil {
		bucket = make(map[string]*providerEntry)
		c.buckets[base] = bucket
	}
	if len(bucket) >= maxBucketProviders {
		evictOldestLocked(bucket)
	}
	e := &providerEntry{provider: fresh}
	e.lastUsed.Store(now)
	bucket[full] = e
	return fresh
}

// evictOldestLocked drops the least recently used entry from a full bucket.
// Caller holds the write lock.
func evictOldestLocked(bucket map[string]*providerEntry) {
	var victim string
	oldest := int64(math.MaxInt64)
	for key, e := range bucket {
		if used := e.lastUsed.Load(); used < oldest {
			oldest = used
			victim = key
		}
	}
	delete(bucket, victim)
	slog.Debug("provider cache evicted", "key", victim)
}

// Invalidate drops every cached provider for an owner's template. Called
// when the template is updated or deleted.
func (c *ProviderCache) Invalidate(owner, templateName string) {
	base := BaseKey("", owner, templateName)
	c.mu.Lock()
	defer c.mu.Unlock()
	if bucket, ok := c.buckets[base]; ok {
		delete(c.buckets, base)
		slog.Debug("provider cache invalidated", "owner", owner, "template", templateName, "entries", len(bucket))
	}
}
