// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package namedmaps

import (
	"testing"

	"tilery/internal/models"
)

func testTemplate() *models.Template {
	return &models.Template{
		Owner: "alice",
		Name:  "pois",
		Auth:  models.TemplateAuth{Method: models.AuthOpen},
		Placeholders: map[string]models.Placeholder{
			"color":  {Type: models.PlaceholderCSSColor, Default: "red"},
			"cutoff": {Type: models.PlaceholderNumber, Default: float64(10)},
			"label":  {Type: models.PlaceholderSQLLiteral, Default: "all"},
		},
		Layergroup: map[string]any{
			"version": "1.0.1",
			"layers": []any{
				map[string]any{
					"type": "mapnik",
					"options": map[string]any{
						"sql":        "SELECT * FROM pois WHERE kind = '<%= label %>' AND rank < <%= cutoff %>",
						"cartocss":   "#layer { marker-fill: <%= color %>; }",
						"undeclared": "<%= mystery %>",
					},
				},
			},
		},
	}
}

func layerOptions(t *testing.T, doc map[string]any) map[string]any {
	t.Helper()
	layers, ok := doc["layers"].([]any)
	if !ok || len(layers) == 0 {
		t.Fatalf("document has no layers: %v", doc)
	}
	layer, ok := layers[0].(map[string]any)
	if !ok {
		t.Fatalf("layer 0 is not an object")
	}
	opts, ok := layer["options"].(map[string]any)
	if !ok {
		t.Fatalf("layer 0 has no options")
	}
	return opts
}

func TestInstanceUsesDefaults(t *testing.T) {
	doc, err := Instance(testTemplate(), map[string]any{})
	if err != nil {
		t.Fatalf("Instance: %v", err)
	}

	opts := layerOptions(t, doc)
	wantSQL := "SELECT * FROM pois WHERE kind = 'all' AND rank < 10"
	if opts["sql"] != wantSQL {
		t.Errorf("sql = %q, want %q", opts["sql"], wantSQL)
	}
	if opts["cartocss"] != "#layer { marker-fill: red; }" {
		t.Errorf("cartocss = %q", opts["cartocss"])
	}
}

func TestInstanceCallerValuesOverrideDefaults(t *testing.T) {
	doc, err := Instance(testTemplate(), map[string]any{
		"color":  "#00ff00",
		"cutoff": float64(3),
	})
	if err != nil {
		t.Fatalf("Instance: %v", err)
	}

	opts := layerOptions(t, doc)
	if opts["cartocss"] != "#layer { marker-fill: #00ff00; }" {
		t.Errorf("cartocss = %q", opts["cartocss"])
	}
	wantSQL := "SELECT * FROM pois WHERE kind = 'all' AND rank < 3"
	if opts["sql"] != wantSQL {
		t.Errorf("sql = %q, want %q", opts["sql"], wantSQL)
	}
}

func TestInstanceEscapesSQLLiterals(t *testing.T) {
	doc, err := Instance(testTemplate(), map[string]any{"label": "O'Brien"})
	if err != nil {
		t.Fatalf("Instance: %v", err)
	}

	opts := layerOptions(t, doc)
	wantSQL := "SELECT * FROM pois WHERE kind = 'O''Brien' AND rank < 10"
	if opts["sql"] != wantSQL {
		t.Errorf("sql = %q, want %q", opts["sql"], wantSQL)
	}
}

func TestInstanceUndeclaredPlaceholderPassesThrough(t *testing.T) {
	doc, err := Instance(testTemplate(), map[string]any{"mystery": "ignored"})
	if err != nil {
		t.Fatalf("Instance: %v", err)
	}

	// "mystery" is not declared by the template, so its site survives
	// untouched even when the caller supplies a value for it.
	opts := layerOptions(t, doc)
	if opts["undeclared"] != "<%= mystery %>" {
		t.Errorf("undeclared site = %q, want it untouched", opts["undeclared"])
	}
}

func TestInstanceRejectsInvalidValues(t *testing.T) {
	_, err := Instance(testTemplate(), map[string]any{"cutoff": "not-a-number"})
	if err == nil {
		t.Fatal("expected error for invalid number value")
	}
	if !IsKind(err, KindBadRequest) {
		t.Errorf("error kind = %v, want bad request", err)
	}

	_, err = Instance(testTemplate(), map[string]any{"color": "no spaces allowed"})
	if err == nil {
		t.Fatal("expected error for invalid color value")
	}
	if !IsKind(err, KindBadRequest) {
		t.Errorf("error kind = %v, want bad request", err)
	}
}

func TestInstanceDoesNotMutateTemplate(t *testing.T) {
	tpl := testTemplate()

	if _, err := Instance(tpl, map[string]any{"label": "first"}); err != nil {
		t.Fatalf("first Instance: %v", err)
	}
	doc, err := Instance(tpl, map[string]any{"label": "second"})
	if err != nil {
		t.Fatalf("second Instance: %v", err)
	}

	opts := layerOptions(t, doc)
	wantSQL := "SELECT * FROM pois WHERE kind = 'second' AND rank < 10"
	if opts["sql"] != wantSQL {
		t.Errorf("second instance sql = %q, want %q", opts["sql"], wantSQL)
	}
}

func TestInstanceSubstitutesNestedStructures(t *testing.T) {
	tpl := testTemplate()
	tpl.Layergroup["extra"] = map[string]any{
		"list": []any{"<%= label %>", float64(1)},
	}

	doc, err := Instance(tpl, map[string]any{})
	if err != nil {
		t.Fatalf("Instance: %v", err)
	}

	extra := doc["extra"].(map[string]any)
	list := extra["list"].([]any)
	if list[0] != "all" {
		t.Errorf("nested substitution = %q, want %q", list[0], "all")
	}
}
