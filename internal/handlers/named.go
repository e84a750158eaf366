// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"tilery/internal/cache"
	"tilery/internal/metrics"
	"tilery/internal/namedmaps"
)

// Named handles named-map instantiation. Instantiation is public — the
// template's own auth policy decides who gets in — unlike template CRUD,
// which sits behind the owner's API key.
type Named struct {
	providers   *namedmaps.ProviderCache
	layergroups *cache.LayergroupCache
	metrics     *metrics.Metrics
}

// NewNamed creates the instantiation handler. layergroups and m may be nil.
func NewNamed(providers *namedmaps.ProviderCache, layergroups *cache.LayergroupCache, m *metrics.Metrics) *Named {
	return &Named{providers: providers, layergroups: layergroups, metrics: m}
}

// instantiateResponse is the wire shape of a successful instantiation.
type instantiateResponse struct {
	LayergroupID string   `json:"layergroupid"`
	Metadata     metaBody `json:"metadata"`
}

type metaBody struct {
	Layers   []layerMeta `json:"layers"`
	Analyses []any       `json:"analyses,omitempty"`
}

type layerMeta struct {
	Type string `json:"type"`
}

// Instantiate resolves a named map into a layergroup. The request body is
// the template's parameter object (empty body means defaults only); the
// auth token rides in the auth_token query parameter. Successful responses
// carry the cache-channel and surrogate-key headers the CDN layer uses for
// invalidation.
func (h *Named) Instantiate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	owner := chi.URLParam(r, "owner")
	templateID := chi.URLParam(r, "template_id")
	authToken := r.URL.Query().Get("auth_token")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "cannot read request body")
		return
	}
	// The raw body is passed through as the config parameter; the pipeline
	// owns JSON validation so query-string instantiation shares the path.
	config := any(strings.TrimSpace(string(body)))

	params := namedmaps.RendererParams{
		Format:      r.URL.Query().Get("format"),
		APIKey:      r.URL.Query().Get("api_key"),
		ScaleFactor: parseScaleFactor(r.URL.Query().Get("scale_factor")),
	}

	provider := h.providers.Get(owner, templateID, config, authToken, params)
	fullKey := provider.Key(false)

	if h.layergroups != nil {
		if env, ok := h.layergroups.Get(ctx, fullKey); ok {
			writeInstantiation(w, env)
			h.metrics.ObserveInstantiation(time.Since(start).Seconds())
			return
		}
	}

	mc, _, rctx, err := provider.Resolve(ctx)
	if err != nil {
		respondError(w, namedmaps.HTTPStatus(err), err.Error())
		return
	}

	layers := mc.Layers()
	resp := instantiateResponse{
		LayergroupID: mc.Token(),
		Metadata: metaBody{
			Layers:   make([]layerMeta, len(layers)),
			Analyses: rctx.AnalysesResults,
		},
	}
	for i, l := range layers {
		resp.Metadata.Layers[i] = layerMeta{Type: l.Type()}
	}

	respBody, err := json.Marshal(resp)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	env := &cache.Envelope{Body: respBody}

	// Affected-tables failures degrade the response to uncacheable rather
	// than failing the instantiation: the layergroup itself resolved fine.
	affected, err := provider.AffectedTables(ctx)
	if err != nil {
		slog.Warn("affected tables unavailable, response not cached",
			"owner", owner, "template", provider.Name(), "error", err)
		writeInstantiation(w, env)
		h.metrics.ObserveInstantiation(time.Since(start).Seconds())
		return
	}

	env.CacheChannel = affected.CacheChannel()
	env.SurrogateKeys = affected.SurrogateKeys()

	if h.layergroups != nil {
		h.layergroups.Set(ctx, fullKey, env)
	}

	writeInstantiation(w, env)
	h.metrics.ObserveInstantiation(time.Since(start).Seconds())
}

func writeInstantiation(w http.ResponseWriter, env *cache.Envelope) {
	if env.CacheChannel != "" {
		w.Header().Set("X-Cache-Channel", env.CacheChannel)
	}
	if len(env.SurrogateKeys) > 0 {
		w.Header().Set("Surrogate-Key", strings.Join(env.SurrogateKeys, " "))
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(env.Body)
}

func parseScaleFactor(raw string) float64 {
	if raw == "" {
		return 0
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return f
}
