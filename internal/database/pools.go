// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"tilery/internal/models"
)

// OwnerPools hands out connection pools for owners' geospatial databases.
// Pools are memoized by the normalized database identity, so two owners on
// the same database share one pool. Connection parameters come from the
// metadata backend per request; this provider only manages lifecycles.
type OwnerPools struct {
	mu    sync.Mutex
	pools map[string]*sql.DB

	// MaxOpenPerDB caps each pool; introspection queries are short-lived
	// EXPLAINs, so a small cap is plenty.
	MaxOpenPerDB int
}

// NewOwnerPools creates an empty pool provider.
func NewOwnerPools() *OwnerPools {
	return &OwnerPools{
		pools:        make(map[string]*sql.DB),
		MaxOpenPerDB: 4,
	}
}

// GetConnection returns a pool for the given connection parameters,
// opening and verifying one on first use.
func (o *OwnerPools) GetConnection(ctx context.Context, owner string, params models.DatabaseParams) (*sql.DB, error) {
	key := params.Identity()

	o.mu.Lock()
	defer o.mu.Unlock()

	if db, ok := o.pools[key]; ok {
		return db, nil
	}

	db, err := sql.Open("pgx", params.DSN())
	if err != nil {
		return nil, fmt.Errorf("open owner database: %w", err)
	}
	db.SetMaxOpenConns(o.MaxOpenPerDB)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping owner database: %w", err)
	}

	o.pools[key] = db
	slog.Info("owner database connected", "owner", owner, "db", key)
	return db, nil
}

// Close shuts down every open pool.
func (o *OwnerPools) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for key, db := range o.pools {
		db.Close()
		delete(o.pools, key)
	}
}
