// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/google/uuid"

	"tilery/internal/models"
	"tilery/internal/namedmaps"
)

// testOwner returns a unique owner name so parallel test runs never collide.
func testOwner() string {
	return "test_" + strings.ReplaceAll(uuid.NewString()[:8], "-", "")
}

func storedTemplate(name string) *models.Template {
	return &models.Template{
		Name: name,
		Auth: models.TemplateAuth{Method: models.AuthToken, ValidTokens: []string{"s3cret"}},
		Placeholders: map[string]models.Placeholder{
			"color": {Type: models.PlaceholderCSSColor, Default: "red"},
		},
		Layergroup: map[string]any{
			"version": "1.0.1",
			"layers": []any{
				map[string]any{"options": map[string]any{"sql": "SELECT * FROM pois"}},
			},
		},
	}
}

func TestTemplateStoreCreateAndGet(t *testing.T) {
	db := testDB(t)
	s := NewTemplateStore(db)
	owner := testOwner()
	t.Cleanup(func() { cleanTemplates(t, db, owner) })

	ctx := context.Background()
	tpl := storedTemplate("pois")
	tpl.Owner = owner

	created, err := s.Create(ctx, tpl)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == uuid.Nil {
		t.Error("expected non-nil UUID")
	}
	if created.Version != "0.0.1" {
		t.Errorf("version defaulted to %q, want 0.0.1", created.Version)
	}

	found, err := s.GetTemplate(ctx, owner, "pois")
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if found == nil {
		t.Fatal("expected template, got nil")
	}
	if found.Auth.Method != models.AuthToken || !reflect.DeepEqual(found.Auth.ValidTokens, []string{"s3cret"}) {
		t.Errorf("auth round trip = %+v", found.Auth)
	}
	if found.Placeholders["color"].Type != models.PlaceholderCSSColor {
		t.Errorf("placeholders round trip = %+v", found.Placeholders)
	}
	if found.Layergroup["version"] != "1.0.1" {
		t.Errorf("layergroup round trip = %v", found.Layergroup)
	}
}

func TestTemplateStoreGetMissingReturnsNil(t *testing.T) {
	db := testDB(t)
	s := NewTemplateStore(db)

	found, err := s.GetTemplate(context.Background(), testOwner(), "nothing")
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if found != nil {
		t.Errorf("expected nil, got %+v", found)
	}
}

func TestTemplateStoreCreateDuplicate(t *testing.T) {
	db := testDB(t)
	s := NewTemplateStore(db)
	owner := testOwner()
	t.Cleanup(func() { cleanTemplates(t, db, owner) })

	ctx := context.Background()
	tpl := storedTemplate("pois")
	tpl.Owner = owner
	if _, err := s.Create(ctx, tpl); err != nil {
		t.Fatalf("Create: %v", err)
	}

	dup := storedTemplate("pois")
	dup.Owner = owner
	_, err := s.Create(ctx, dup)
	if !namedmaps.IsKind(err, namedmaps.KindBadRequest) {
		t.Fatalf("duplicate create error = %v, want bad request", err)
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestTemplateStoreCreateInvalid(t *testing.T) {
	db := testDB(t)
	s := NewTemplateStore(db)

	tpl := storedTemplate("bad:name")
	tpl.Owner = testOwner()
	_, err := s.Create(context.Background(), tpl)
	if !namedmaps.IsKind(err, namedmaps.KindBadRequest) {
		t.Fatalf("invalid create error = %v, want bad request", err)
	}
}

func TestTemplateStoreList(t *testing.T) {
	db := testDB(t)
	s := NewTemplateStore(db)
	owner := testOwner()
	t.Cleanup(func() { cleanTemplates(t, db, owner) })

	ctx := context.Background()
	for _, name := range []string{"zebra", "alpha"} {
		tpl := storedTemplate(name)
		tpl.Owner = owner
		if _, err := s.Create(ctx, tpl); err != nil {
			t.Fatalf("Create %s: %v", name, err)
		}
	}

	names, err := s.List(ctx, owner)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"alpha", "zebra"}) {
		t.Errorf("List = %v, want sorted names", names)
	}
}

func TestTemplateStoreUpdate(t *testing.T) {
	db := testDB(t)
	s := NewTemplateStore(db)
	owner := testOwner()
	t.Cleanup(func() { cleanTemplates(t, db, owner) })

	ctx := context.Background()
	tpl := storedTemplate("pois")
	tpl.Owner = owner
	if _, err := s.Create(ctx, tpl); err != nil {
		t.Fatalf("Create: %v", err)
	}

	replacement := storedTemplate("pois")
	replacement.Auth = models.TemplateAuth{Method: models.AuthOpen}
	updated, err := s.Update(ctx, owner, "pois", replacement)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Auth.Method != models.AuthOpen {
		t.Errorf("auth after update = %+v", updated.Auth)
	}

	_, err = s.Update(ctx, owner, "missing", storedTemplate("missing"))
	if !namedmaps.IsKind(err, namedmaps.KindNotFound) {
		t.Fatalf("update of missing template = %v, want not found", err)
	}
}

func TestTemplateStoreDelete(t *testing.T) {
	db := testDB(t)
	s := NewTemplateStore(db)
	owner := testOwner()
	t.Cleanup(func() { cleanTemplates(t, db, owner) })

	ctx := context.Background()
	tpl := storedTemplate("pois")
	tpl.Owner = owner
	if _, err := s.Create(ctx, tpl); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.Delete(ctx, owner, "pois"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	found, err := s.GetTemplate(ctx, owner, "pois")
	if err != nil {
		t.Fatalf("GetTemplate after delete: %v", err)
	}
	if found != nil {
		t.Error("template still present after delete")
	}

	err = s.Delete(ctx, owner, "pois")
	if !namedmaps.IsKind(err, namedmaps.KindNotFound) {
		t.Fatalf("second delete = %v, want not found", err)
	}
}

// countingHook records creation hook invocations.
type countingHook struct {
	NopHook
	before, after int
}

func (h *countingHook) BeforeCreate(ctx context.Context, tpl *models.Template) error {
	h.before++
	return nil
}

func (h *countingHook) AfterCreate(ctx context.Context, tpl *models.Template) error {
	h.after++
	return nil
}

func TestTemplateStoreHooks(t *testing.T) {
	db := testDB(t)
	s := NewTemplateStore(db)
	owner := testOwner()
	t.Cleanup(func() { cleanTemplates(t, db, owner) })

	hook := &countingHook{}
	s.AddHook(hook)

	tpl := storedTemplate("pois")
	tpl.Owner = owner
	if _, err := s.Create(context.Background(), tpl); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if hook.before != 1 || hook.after != 1 {
		t.Errorf("hooks ran before=%d after=%d, want 1/1", hook.before, hook.after)
	}
}
