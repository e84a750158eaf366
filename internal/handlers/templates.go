// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"tilery/internal/cache"
	"tilery/internal/models"
	"tilery/internal/namedmaps"
	"tilery/internal/store"
)

// templateDocument is the wire shape of a template in requests and
// responses.
type templateDocument struct {
	Name         string                        `json:"name"`
	Version      string                        `json:"version,omitempty"`
	Auth         models.TemplateAuth           `json:"auth"`
	Placeholders map[string]models.Placeholder `json:"placeholders,omitempty"`
	Layergroup   map[string]any                `json:"layergroup"`
}

// Templates groups the template CRUD handlers. Mutations invalidate both
// the in-process provider cache and the Valkey layergroup cache for the
// touched template.
type Templates struct {
	store       *store.TemplateStore
	providers   *namedmaps.ProviderCache
	layergroups *cache.LayergroupCache
}

// NewTemplates creates the template handler group. layergroups may be nil
// when response caching is disabled.
func NewTemplates(s *store.TemplateStore, providers *namedmaps.ProviderCache, layergroups *cache.LayergroupCache) *Templates {
	return &Templates{store: s, providers: providers, layergroups: layergroups}
}

// Create stores a new template for the owner in the URL.
func (h *Templates) Create(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")

	doc, ok := decodeTemplate(w, r)
	if !ok {
		return
	}

	tpl := doc.toModel(owner)
	created, err := h.store.Create(r.Context(), tpl)
	if err != nil {
		respondError(w, namedmaps.HTTPStatus(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"template_id": owner + "@" + created.Name,
	})
}

// List returns the ids of all templates the owner has.
func (h *Templates) List(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")

	names, err := h.store.List(r.Context(), owner)
	if err != nil {
		respondError(w, namedmaps.HTTPStatus(err), err.Error())
		return
	}

	ids := make([]string, len(names))
	for i, name := range names {
		ids[i] = owner + "@" + name
	}
	respondJSON(w, http.StatusOK, map[string]any{"template_ids": ids})
}

// Get returns one template document.
func (h *Templates) Get(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	name := namedmaps.TemplateName(chi.URLParam(r, "template_id"))

	tpl, err := h.store.GetTemplate(r.Context(), owner, name)
	if err != nil {
		respondError(w, namedmaps.HTTPStatus(err), err.Error())
		return
	}
	if tpl == nil {
		respondError(w, http.StatusNotFound,
			"template '"+name+"' of user '"+owner+"' not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"template": templateDocument{
		Name:         tpl.Name,
		Version:      tpl.Version,
		Auth:         tpl.Auth,
		Placeholders: tpl.Placeholders,
		Layergroup:   tpl.Layergroup,
	}})
}

// Update replaces a template's document and invalidates cached
// instantiations of it.
func (h *Templates) Update(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	name := namedmaps.TemplateName(chi.URLParam(r, "template_id"))

	doc, ok := decodeTemplate(w, r)
	if !ok {
		return
	}

	updated, err := h.store.Update(r.Context(), owner, name, doc.toModel(owner))
	if err != nil {
		respondError(w, namedmaps.HTTPStatus(err), err.Error())
		return
	}

	h.invalidate(r, owner, name)
	respondJSON(w, http.StatusOK, map[string]string{
		"template_id": owner + "@" + updated.Name,
	})
}

// Delete removes a template and invalidates cached instantiations of it.
func (h *Templates) Delete(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	name := namedmaps.TemplateName(chi.URLParam(r, "template_id"))

	if err := h.store.Delete(r.Context(), owner, name); err != nil {
		respondError(w, namedmaps.HTTPStatus(err), err.Error())
		return
	}

	h.invalidate(r, owner, name)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Templates) invalidate(r *http.Request, owner, name string) {
	h.providers.Invalidate(owner, name)
	if h.layergroups != nil {
		h.layergroups.InvalidateTemplate(r.Context(), namedmaps.BaseKey("", owner, name))
	}
	slog.Info("template caches invalidated", "owner", owner, "template", name)
}

func decodeTemplate(w http.ResponseWriter, r *http.Request) (*templateDocument, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "cannot read request body")
		return nil, false
	}

	var doc templateDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		respondError(w, http.StatusBadRequest, "malformed template, should be a valid JSON")
		return nil, false
	}
	return &doc, true
}

func (d *templateDocument) toModel(owner string) *models.Template {
	return &models.Template{
		Owner:        owner,
		Name:         d.Name,
		Version:      d.Version,
		Auth:         d.Auth,
		Placeholders: d.Placeholders,
		Layergroup:   d.Layergroup,
	}
}
