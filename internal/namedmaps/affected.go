// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package namedmaps

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"tilery/internal/metrics"
	"tilery/internal/querytables"
)

// affectedKey identifies one cached affected-tables entry. The database
// axis is a normalized identity string, not an opaque params object, so
// equivalent connections share an entry.
type affectedKey struct {
	db    string
	token string
}

// AffectedTablesCache is the process-wide cache of table dependencies per
// resolved map configuration. MapConfig tokens are content-addressed, so an
// entry, once written, is immutable for the process lifetime; there is no
// expiry or eviction. Concurrent misses on the same key may introspect
// twice and write the same value — the race is safe, just redundant.
type AffectedTablesCache struct {
	mu      sync.RWMutex
	entries map[affectedKey]*querytables.Result
	metrics *metrics.Metrics
}

// NewAffectedTablesCache creates an empty cache. m may be nil.
func NewAffectedTablesCache(m *metrics.Metrics) *AffectedTablesCache {
	return &AffectedTablesCache{
		entries: make(map[affectedKey]*querytables.Result),
		metrics: m,
	}
}

// Get returns the cached result for (database identity, config token).
func (c *AffectedTablesCache) Get(db, token string) (*querytables.Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.entries[affectedKey{db: db, token: token}]
	return r, ok
}

// Set stores a result. Only successful resolutions are ever stored.
func (c *AffectedTablesCache) Set(db, token string, r *querytables.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[affectedKey{db: db, token: token}] = r
	slog.Debug("affected tables cached", "db", db, "token", token, "tables", len(r.Tables))
}

// Len returns the number of cached entries.
func (c *AffectedTablesCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// AffectedTables resolves the set of physical tables feeding this session's
// map configuration. The fast path is a pure cache lookup: repeated tile
// requests against an already-introspected configuration never touch the
// database. On a miss it builds one query batch from every layer's SQL plus
// LIMIT-0 probes for explicitly declared tables, runs it through the
// introspector on the owner's database, and caches the result.
//
// Failures are returned uncached so a transient database error on a new
// configuration heals itself on the next request.
func (p *Provider) AffectedTables(ctx context.Context) (*querytables.Result, error) {
	mc, rp, _, err := p.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	dbKey := rp.DB.Identity()
	token := mc.Token()

	if r, ok := p.deps.AffectedTables.Get(dbKey, token); ok {
		p.deps.Metrics.AffectedTablesHit()
		return r, nil
	}
	p.deps.Metrics.AffectedTablesMiss()

	var queries []string
	for _, layer := range mc.Layers() {
		if sql := layer.SQL(); sql != "" {
			queries = append(queries, sql)
		}
		for _, table := range layer.AffectedTables() {
			queries = append(queries, fmt.Sprintf("SELECT * FROM %s LIMIT 0", table))
		}
	}

	// A configuration whose layers carry no SQL genuinely depends on no
	// tables; that empty result is cacheable.
	if len(queries) == 0 {
		r := &querytables.Result{DBName: rp.DB.Name}
		p.deps.AffectedTables.Set(dbKey, token, r)
		return r, nil
	}

	conn, err := p.deps.Connections.GetConnection(ctx, p.owner, rp.DB)
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}

	result, err := p.deps.Introspector.GetAffectedTablesFromQuery(ctx, conn, strings.Join(queries, "; "))
	if err != nil {
		return nil, fmt.Errorf("get affected tables: %w", err)
	}

	p.deps.AffectedTables.Set(dbKey, token, result)
	return result, nil
}
