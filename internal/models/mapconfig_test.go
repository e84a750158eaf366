// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import "testing"

func testDoc() map[string]any {
	return map[string]any{
		"version": "1.0.1",
		"layers": []any{
			map[string]any{
				"type": "mapnik",
				"options": map[string]any{
					"sql":             "SELECT * FROM pois",
					"affected_tables": []any{"public.extra", ""},
				},
			},
			map[string]any{
				"type":    "http",
				"options": map[string]any{"urlTemplate": "https://tiles.example.com/{z}/{x}/{y}.png"},
			},
		},
	}
}

func TestNewMapConfigTokenIsContentAddressed(t *testing.T) {
	mc1, err := NewMapConfig(testDoc(), nil)
	if err != nil {
		t.Fatalf("NewMapConfig: %v", err)
	}
	mc2, err := NewMapConfig(testDoc(), nil)
	if err != nil {
		t.Fatalf("NewMapConfig: %v", err)
	}

	if mc1.Token() != mc2.Token() {
		t.Errorf("equal documents got different tokens: %q vs %q", mc1.Token(), mc2.Token())
	}
	if len(mc1.Token()) != 32 {
		t.Errorf("token length = %d, want 32", len(mc1.Token()))
	}

	other := testDoc()
	other["version"] = "1.0.2"
	mc3, err := NewMapConfig(other, nil)
	if err != nil {
		t.Fatalf("NewMapConfig: %v", err)
	}
	if mc3.Token() == mc1.Token() {
		t.Error("different documents share a token")
	}
}

func TestNewMapConfigNilDocument(t *testing.T) {
	if _, err := NewMapConfig(nil, nil); err == nil {
		t.Error("nil document accepted")
	}
}

func TestMapConfigLayers(t *testing.T) {
	mc, err := NewMapConfig(testDoc(), nil)
	if err != nil {
		t.Fatalf("NewMapConfig: %v", err)
	}

	layers := mc.Layers()
	if len(layers) != 2 {
		t.Fatalf("layers = %d, want 2", len(layers))
	}

	if layers[0].Type() != "mapnik" {
		t.Errorf("layer 0 type = %q", layers[0].Type())
	}
	if layers[0].SQL() != "SELECT * FROM pois" {
		t.Errorf("layer 0 sql = %q", layers[0].SQL())
	}
	// Empty entries in affected_tables are dropped.
	if got := layers[0].AffectedTables(); len(got) != 1 || got[0] != "public.extra" {
		t.Errorf("layer 0 affected tables = %v", got)
	}

	if layers[1].SQL() != "" {
		t.Errorf("http layer has sql %q", layers[1].SQL())
	}
	if len(layers[1].AffectedTables()) != 0 {
		t.Errorf("http layer has affected tables %v", layers[1].AffectedTables())
	}
}

func TestMapConfigLayersAbsent(t *testing.T) {
	mc, err := NewMapConfig(map[string]any{"version": "1.0.1"}, nil)
	if err != nil {
		t.Fatalf("NewMapConfig: %v", err)
	}
	if got := mc.Layers(); len(got) != 0 {
		t.Errorf("layers = %v, want empty", got)
	}
}
