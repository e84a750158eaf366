// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	json "github.com/goccy/go-json"
)

// MapConfig is a fully resolved, parameter-free map rendering configuration.
// Its identity token is content-addressed: two configs with equal documents
// share a token, which lets caches keyed on it be treated as immutable.
type MapConfig struct {
	doc        map[string]any
	datasource map[string]any
	token      string
}

// NewMapConfig builds a MapConfig from a resolved layergroup document and
// the datasource side channel produced by the adapter chain.
func NewMapConfig(doc, datasource map[string]any) (*MapConfig, error) {
	if doc == nil {
		return nil, fmt.Errorf("map config document is nil")
	}
	// Marshal sorts object keys, so the digest is canonical across processes.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("map config token: %w", err)
	}
	sum := md5.Sum(raw)
	return &MapConfig{
		doc:        doc,
		datasource: datasource,
		token:      hex.EncodeToString(sum[:]),
	}, nil
}

// Token returns the content-derived identity of this configuration.
func (m *MapConfig) Token() string { return m.token }

// Document returns the resolved layergroup document.
func (m *MapConfig) Document() map[string]any { return m.doc }

// Datasource returns the per-layer datasource map attached by adapters.
func (m *MapConfig) Datasource() map[string]any { return m.datasource }

// Layers returns the ordered layer definitions. A document without a layers
// array yields an empty slice.
func (m *MapConfig) Layers() []Layer {
	raw, _ := m.doc["layers"].([]any)
	layers := make([]Layer, 0, len(raw))
	for _, l := range raw {
		if lm, ok := l.(map[string]any); ok {
			layers = append(layers, Layer{raw: lm})
		}
	}
	return layers
}

// Layer is a view over a single layer definition inside a MapConfig.
type Layer struct {
	raw map[string]any
}

// Type returns the layer type ("mapnik", "http", ...), or "" when unset.
func (l Layer) Type() string {
	t, _ := l.raw["type"].(string)
	return t
}

// Options returns the layer's option map, never nil.
func (l Layer) Options() map[string]any {
	if opts, ok := l.raw["options"].(map[string]any); ok {
		return opts
	}
	return map[string]any{}
}

// SQL returns the layer's query, or "" for layers without one.
func (l Layer) SQL() string {
	sql, _ := l.Options()["sql"].(string)
	return sql
}

// AffectedTables returns the table names a layer declares explicitly in its
// options, beyond what its SQL touches.
func (l Layer) AffectedTables() []string {
	raw, _ := l.Options()["affected_tables"].([]any)
	tables := make([]string, 0, len(raw))
	for _, t := range raw {
		if s, ok := t.(string); ok && s != "" {
			tables = append(tables, s)
		}
	}
	return tables
}
