// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package metadata is the Valkey-backed per-owner metadata backend: which
// database an owner's maps read from, the owner's map API key, and the
// owner's render limits. The gateway never owns this data — it is written
// by the surrounding platform — so everything here is read-side except the
// development seeder.
package metadata

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"tilery/internal/models"
	"tilery/internal/namedmaps"
)

// Key layout, one hash/string per owner.
const (
	databaseKeyFmt = "map_user:%s:database"
	mapKeyFmt      = "map_user:%s:mapkey"
	limitsKeyFmt   = "map_user:%s:limits"
)

// Backend reads owner metadata from Valkey. It implements both the
// metadata and the render-limits collaborator interfaces of the resolution
// pipeline.
type Backend struct {
	client *redis.Client
}

// New creates a metadata backend over an established Valkey client.
func New(client *redis.Client) *Backend {
	return &Backend{client: client}
}

// GetDatabaseParams resolves the connection parameters for an owner's
// database. An owner with no database entry is unknown to the platform and
// surfaces as a not-found error.
func (b *Backend) GetDatabaseParams(ctx context.Context, owner string) (models.DatabaseParams, error) {
	fields, err := b.client.HGetAll(ctx, fmt.Sprintf(databaseKeyFmt, owner)).Result()
	if err != nil {
		return models.DatabaseParams{}, fmt.Errorf("metadata database params: %w", err)
	}
	if len(fields) == 0 {
		return models.DatabaseParams{}, namedmaps.NotFoundf("unknown user '%s'", owner)
	}

	params := models.DatabaseParams{
		User: fields["dbuser"],
		Pass: fields["dbpass"],
		Host: fields["dbhost"],
		Port: fields["dbport"],
		Name: fields["dbname"],
	}
	if params.Host == "" {
		params.Host = "localhost"
	}
	if params.Port == "" {
		params.Port = "5432"
	}
	if params.Name == "" {
		return models.DatabaseParams{}, fmt.Errorf("metadata database params: user '%s' has no dbname", owner)
	}
	return params, nil
}

// GetUserMapKey returns the owner's map API key.
func (b *Backend) GetUserMapKey(ctx context.Context, owner string) (string, error) {
	key, err := b.client.Get(ctx, fmt.Sprintf(mapKeyFmt, owner)).Result()
	if err == redis.Nil {
		return "", namedmaps.NotFoundf("unknown user '%s'", owner)
	}
	if err != nil {
		return "", fmt.Errorf("metadata map key: %w", err)
	}
	return key, nil
}

// GetRenderLimits returns the owner's rendering ceilings. Owners without a
// limits entry get the zero value — no ceilings configured.
func (b *Backend) GetRenderLimits(ctx context.Context, owner, apiKey string) (models.RenderLimits, error) {
	fields, err := b.client.HGetAll(ctx, fmt.Sprintf(limitsKeyFmt, owner)).Result()
	if err != nil {
		return models.RenderLimits{}, fmt.Errorf("metadata render limits: %w", err)
	}

	var limits models.RenderLimits
	if v, ok := fields["render"]; ok {
		if limits.Render, err = strconv.ParseFloat(v, 64); err != nil {
			return models.RenderLimits{}, fmt.Errorf("metadata render limits: bad render value %q", v)
		}
	}
	if v, ok := fields["cache_on_timeout"]; ok {
		limits.CacheOnTimeout = v == "true" || v == "1"
	}
	return limits, nil
}

// SeedDevOwner writes a localhost metadata entry for an owner so the
// gateway is instantiable out of the box in development. No-op if the
// owner already has a database entry.
func (b *Backend) SeedDevOwner(ctx context.Context, owner string, db models.DatabaseParams, mapKey string) error {
	existing, err := b.client.Exists(ctx, fmt.Sprintf(databaseKeyFmt, owner)).Result()
	if err != nil {
		return fmt.Errorf("metadata seed: %w", err)
	}
	if existing > 0 {
		return nil
	}

	if err := b.client.HSet(ctx, fmt.Sprintf(databaseKeyFmt, owner), map[string]any{
		"dbuser": db.User,
		"dbpass": db.Pass,
		"dbhost": db.Host,
		"dbport": db.Port,
		"dbname": db.Name,
	}).Err(); err != nil {
		return fmt.Errorf("metadata seed database: %w", err)
	}
	if err := b.client.Set(ctx, fmt.Sprintf(mapKeyFmt, owner), mapKey, 0).Err(); err != nil {
		return fmt.Errorf("metadata seed map key: %w", err)
	}
	return nil
}
