// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package store persists named-map templates in PostgreSQL. Templates are
// owner-scoped and addressed by (owner, name); the document fields live in
// JSONB columns.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"tilery/internal/models"
	"tilery/internal/namedmaps"
)

// Hook observes template creation. Hooks replace ad hoc decorator objects:
// both capabilities are explicit and optional — embed NopHook to implement
// only one side.
type Hook interface {
	BeforeCreate(ctx context.Context, tpl *models.Template) error
	AfterCreate(ctx context.Context, tpl *models.Template) error
}

// NopHook is a Hook that does nothing.
type NopHook struct{}

func (NopHook) BeforeCreate(context.Context, *models.Template) error { return nil }
func (NopHook) AfterCreate(context.Context, *models.Template) error  { return nil }

// TemplateStore handles all template-related database operations.
type TemplateStore struct {
	db    *sql.DB
	hooks []Hook
}

// NewTemplateStore creates a new TemplateStore with the given database
// connection.
func NewTemplateStore(db *sql.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

// AddHook registers a creation hook. Hooks run in registration order.
func (s *TemplateStore) AddHook(h Hook) {
	s.hooks = append(s.hooks, h)
}

const templateColumns = `id, owner, name, version, auth, placeholders, layergroup, created_at, updated_at`

// GetTemplate retrieves an owner's template by name. Returns nil if not
// found.
func (s *TemplateStore) GetTemplate(ctx context.Context, owner, name string) (*models.Template, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+templateColumns+`
		FROM templates WHERE owner = $1 AND name = $2
	`, owner, name)

	tpl, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return tpl, nil
}

// List returns the names of all templates owned by owner, sorted.
func (s *TemplateStore) List(ctx context.Context, owner string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM templates WHERE owner = $1 ORDER BY name
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan template name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Create validates and inserts a new template, firing creation hooks
// around the insert. A duplicate (owner, name) is an authoring error.
func (s *TemplateStore) Create(ctx context.Context, tpl *models.Template) (*models.Template, error) {
	if err := tpl.Validate(); err != nil {
		return nil, namedmaps.BadRequestf("%s", err.Error())
	}

	for _, h := range s.hooks {
		if err := h.BeforeCreate(ctx, tpl); err != nil {
			return nil, fmt.Errorf("before-create hook: %w", err)
		}
	}

	auth, placeholders, layergroup, err := marshalDocuments(tpl)
	if err != nil {
		return nil, err
	}

	existing, err := s.GetTemplate(ctx, tpl.Owner, tpl.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, namedmaps.BadRequestf("template '%s' of user '%s' already exists", tpl.Name, tpl.Owner)
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO templates (owner, name, version, auth, placeholders, layergroup)
		VALUES ($1, $2, COALESCE(NULLIF($3, ''), '0.0.1'), $4, $5, $6)
		RETURNING `+templateColumns+`
	`, tpl.Owner, tpl.Name, tpl.Version, auth, placeholders, layergroup)

	created, err := scanTemplate(row)
	if err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}

	for _, h := range s.hooks {
		if err := h.AfterCreate(ctx, created); err != nil {
			return nil, fmt.Errorf("after-create hook: %w", err)
		}
	}
	return created, nil
}

// Update validates and replaces an existing template's document.
func (s *TemplateStore) Update(ctx context.Context, owner, name string, tpl *models.Template) (*models.Template, error) {
	tpl.Owner = owner
	tpl.Name = name
	if err := tpl.Validate(); err != nil {
		return nil, namedmaps.BadRequestf("%s", err.Error())
	}

	auth, placeholders, layergroup, err := marshalDocuments(tpl)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE templates SET
			version = COALESCE(NULLIF($3, ''), version),
			auth = $4, placeholders = $5, layergroup = $6, updated_at = NOW()
		WHERE owner = $1 AND name = $2
		RETURNING `+templateColumns+`
	`, owner, name, tpl.Version, auth, placeholders, layergroup)

	updated, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, namedmaps.NotFoundf("template '%s' of user '%s' not found", name, owner)
	}
	if err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	return updated, nil
}

// Delete removes an owner's template by name.
func (s *TemplateStore) Delete(ctx context.Context, owner, name string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM templates WHERE owner = $1 AND name = $2
	`, owner, name)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return namedmaps.NotFoundf("template '%s' of user '%s' not found", name, owner)
	}
	return nil
}

// Count returns the total number of templates across all owners.
func (s *TemplateStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM templates`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count templates: %w", err)
	}
	return count, nil
}

func marshalDocuments(tpl *models.Template) (auth, placeholders, layergroup []byte, err error) {
	if auth, err = json.Marshal(tpl.Auth); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal auth: %w", err)
	}
	if tpl.Placeholders == nil {
		placeholders = []byte(`{}`)
	} else if placeholders, err = json.Marshal(tpl.Placeholders); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal placeholders: %w", err)
	}
	if layergroup, err = json.Marshal(tpl.Layergroup); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal layergroup: %w", err)
	}
	return auth, placeholders, layergroup, nil
}

// scanTemplate reads one template row, decoding the JSONB documents.
func scanTemplate(row *sql.Row) (*models.Template, error) {
	var tpl models.Template
	var auth, placeholders, layergroup []byte

	err := row.Scan(
		&tpl.ID, &tpl.Owner, &tpl.Name, &tpl.Version,
		&auth, &placeholders, &layergroup,
		&tpl.CreatedAt, &tpl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(auth, &tpl.Auth); err != nil {
		return nil, fmt.Errorf("decode auth: %w", err)
	}
	if err := json.Unmarshal(placeholders, &tpl.Placeholders); err != nil {
		return nil, fmt.Errorf("decode placeholders: %w", err)
	}
	if err := json.Unmarshal(layergroup, &tpl.Layergroup); err != nil {
		return nil, fmt.Errorf("decode layergroup: %w", err)
	}
	return &tpl, nil
}
