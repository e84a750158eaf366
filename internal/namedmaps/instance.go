// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package namedmaps

import (
	"regexp"

	json "github.com/goccy/go-json"

	"tilery/internal/models"
)

// placeholderRe matches one "<%= name %>" interpolation site.
var placeholderRe = regexp.MustCompile(`<%=\s*([a-zA-Z0-9_]+)\s*%>`)

// Instance substitutes placeholder values into a template's layergroup
// document and returns the concrete, request-level configuration. Every
// placeholder the template declares gets either the caller's value or its
// declared default; values are validated and escaped per their type.
//
// Interpolation sites referencing names the template never declared are
// left untouched in the output. The stored corpus depends on that
// passthrough, so it is pinned behavior, not a defect to fix here.
func Instance(tpl *models.Template, params map[string]any) (map[string]any, error) {
	values := make(map[string]string, len(tpl.Placeholders))
	for name, ph := range tpl.Placeholders {
		raw, ok := params[name]
		if !ok {
			raw = ph.Default
		}
		v, err := models.PlaceholderValue(ph.Type, raw)
		if err != nil {
			return nil, BadRequestf("invalid value for placeholder %q: %s", name, err.Error())
		}
		values[name] = v
	}

	doc, err := copyDocument(tpl.Layergroup)
	if err != nil {
		return nil, BadRequestf("template %q has an unserializable layergroup", tpl.Name)
	}
	substituteNode(doc, values)
	return doc, nil
}

// copyDocument deep-copies the layergroup via a JSON round-trip so a
// template instanced twice never sees the first instance's substitutions.
func copyDocument(doc map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// substituteNode rewrites interpolation sites in every string reachable
// from node. Maps and slices are walked in place.
func substituteNode(node map[string]any, values map[string]string) {
	for k, v := range node {
		node[k] = substituteValue(v, values)
	}
}

func substituteValue(v any, values map[string]string) any {
	switch t := v.(type) {
	case string:
		return placeholderRe.ReplaceAllStringFunc(t, func(site string) string {
			name := placeholderRe.FindStringSubmatch(site)[1]
			if val, ok := values[name]; ok {
				return val
			}
			return site
		})
	case map[string]any:
		substituteNode(t, values)
		return t
	case []any:
		for i, e := range t {
			t[i] = substituteValue(e, values)
		}
		return t
	default:
		return v
	}
}
