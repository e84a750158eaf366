// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package adapter rewrites instanced layergroup documents before they
// become final map configurations. Adapters run as an ordered chain; each
// receives the previous adapter's output and may mutate the resolution
// context as a side channel.
package adapter

import (
	"context"
	"regexp"
	"strconv"

	"tilery/internal/namedmaps"
)

// Chain runs adapters in order, feeding each the previous output.
type Chain struct {
	adapters []namedmaps.MapConfigAdapter
}

// NewChain builds an adapter chain.
func NewChain(adapters ...namedmaps.MapConfigAdapter) *Chain {
	return &Chain{adapters: adapters}
}

// GetMapConfig applies the chain to doc.
func (c *Chain) GetMapConfig(ctx context.Context, owner string, doc map[string]any, params *namedmaps.RendererParams, rctx *namedmaps.Context) (map[string]any, error) {
	var err error
	for _, a := range c.adapters {
		if doc, err = a.GetMapConfig(ctx, owner, doc, params, rctx); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// layerRef pairs a layer's option map with its position in the document.
// The index stays the document index even when option-less layers are
// skipped, since datasource entries are keyed by it.
type layerRef struct {
	index int
	opts  map[string]any
}

// layers returns the document's layer option maps, in order. Layers
// without an options object are skipped.
func layers(doc map[string]any) []layerRef {
	raw, _ := doc["layers"].([]any)
	var out []layerRef
	for i, l := range raw {
		lm, ok := l.(map[string]any)
		if !ok {
			continue
		}
		if opts, ok := lm["options"].(map[string]any); ok {
			out = append(out, layerRef{index: i, opts: opts})
		}
	}
	return out
}

var sqlWrapRe = regexp.MustCompile(`<%=\s*sql\s*%>`)

// SQLWrap applies each layer's sql_wrap option: a wrapping query with an
// "<%= sql %>" site that the layer's original query is substituted into.
// The wrap is applied once and the option is consumed.
type SQLWrap struct{}

// GetMapConfig rewrites layer SQL per the sql_wrap option.
func (SQLWrap) GetMapConfig(ctx context.Context, owner string, doc map[string]any, params *namedmaps.RendererParams, rctx *namedmaps.Context) (map[string]any, error) {
	for _, l := range layers(doc) {
		wrap, ok := l.opts["sql_wrap"].(string)
		if !ok || wrap == "" {
			continue
		}
		sql, _ := l.opts["sql"].(string)
		if sql == "" {
			return nil, namedmaps.BadRequestf("layer %d has sql_wrap but no sql", l.index)
		}
		if !sqlWrapRe.MatchString(wrap) {
			return nil, namedmaps.BadRequestf("layer %d sql_wrap is missing the sql placeholder", l.index)
		}
		l.opts["sql"] = sqlWrapRe.ReplaceAllString(wrap, sql)
		delete(l.opts, "sql_wrap")
	}
	return doc, nil
}

// Datasource records where each SQL-bearing layer reads from into the
// resolution context. The renderer uses these entries to route layer
// queries to the owner's database.
type Datasource struct{}

// GetMapConfig attaches a per-layer datasource entry for every layer that
// carries SQL.
func (Datasource) GetMapConfig(ctx context.Context, owner string, doc map[string]any, params *namedmaps.RendererParams, rctx *namedmaps.Context) (map[string]any, error) {
	if rctx.Datasource == nil {
		rctx.Datasource = map[string]any{}
	}
	for _, l := range layers(doc) {
		sql, _ := l.opts["sql"].(string)
		if sql == "" {
			continue
		}
		rctx.Datasource[strconv.Itoa(l.index)] = map[string]any{
			"user":   owner,
			"dbname": params.DB.Name,
			"dbhost": params.DB.Host,
		}
	}
	return doc, nil
}

// Analysis records the document's top-level analyses definitions into the
// resolution context so instantiation responses can echo them back next to
// the layer metadata.
type Analysis struct{}

// GetMapConfig copies the analyses array into the context, if present.
func (Analysis) GetMapConfig(ctx context.Context, owner string, doc map[string]any, params *namedmaps.RendererParams, rctx *namedmaps.Context) (map[string]any, error) {
	raw, ok := doc["analyses"].([]any)
	if !ok || len(raw) == 0 {
		return doc, nil
	}
	rctx.AnalysesResults = append(rctx.AnalysesResults, raw...)
	return doc, nil
}

// Defaults fills conventional layer option defaults so downstream
// consumers never branch on absent fields: layer type, geometry column,
// and SRID.
type Defaults struct{}

// GetMapConfig fills missing layer defaults in place.
func (Defaults) GetMapConfig(ctx context.Context, owner string, doc map[string]any, params *namedmaps.RendererParams, rctx *namedmaps.Context) (map[string]any, error) {
	raw, _ := doc["layers"].([]any)
	for i, l := range raw {
		lm, ok := l.(map[string]any)
		if !ok {
			return nil, namedmaps.BadRequestf("layer %d is not an object", i)
		}
		if _, ok := lm["type"]; !ok {
			lm["type"] = "mapnik"
		}
		opts, ok := lm["options"].(map[string]any)
		if !ok {
			continue
		}
		if _, hasSQL := opts["sql"]; hasSQL {
			if _, ok := opts["geom_column"]; !ok {
				opts["geom_column"] = "the_geom_webmercator"
			}
			if _, ok := opts["srid"]; !ok {
				opts["srid"] = 3857
			}
		}
	}
	return doc, nil
}
