// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package namedmaps resolves named-map templates into concrete, authorized
// map configurations and tracks which physical tables feed each resolved
// configuration. It is the core behind the named-map HTTP endpoints: the
// controllers own routing and status codes, this package owns the
// resolution pipeline, cache keys, and affected-tables bookkeeping.
package namedmaps

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"tilery/internal/metrics"
	"tilery/internal/models"
	"tilery/internal/querytables"
)

// TemplateGetter fetches stored templates. A (nil, nil) return means the
// template does not exist for that owner.
type TemplateGetter interface {
	GetTemplate(ctx context.Context, owner, name string) (*models.Template, error)
}

// MetadataBackend resolves per-owner metadata: database connection
// parameters and the owner's map API key.
type MetadataBackend interface {
	GetDatabaseParams(ctx context.Context, owner string) (models.DatabaseParams, error)
	GetUserMapKey(ctx context.Context, owner string) (string, error)
}

// LimitsProvider resolves per-owner rendering ceilings.
type LimitsProvider interface {
	GetRenderLimits(ctx context.Context, owner, apiKey string) (models.RenderLimits, error)
}

// MapConfigAdapter enriches an instanced layergroup document before it
// becomes a MapConfig. Adapters may attach datasource entries and analysis
// results to rctx as a side channel.
type MapConfigAdapter interface {
	GetMapConfig(ctx context.Context, owner string, doc map[string]any, params *RendererParams, rctx *Context) (map[string]any, error)
}

// ConnectionProvider hands out a connection pool for an owner's database.
type ConnectionProvider interface {
	GetConnection(ctx context.Context, owner string, db models.DatabaseParams) (*sql.DB, error)
}

// TableIntrospector extracts affected tables from a query batch using the
// database's own plan/catalog knowledge.
type TableIntrospector interface {
	GetAffectedTablesFromQuery(ctx context.Context, db *sql.DB, batch string) (*querytables.Result, error)
}

// RendererParams carries the per-request rendering parameters plus the
// owner's resolved database connection. It is handed to the renderer and
// used to derive cache keys and the affected-tables database identity.
type RendererParams struct {
	User        string
	DB          models.DatabaseParams
	Format      string
	Layer       string
	ScaleFactor float64
	APIKey      string
}

// Context is the resolution side channel assembled alongside the MapConfig.
type Context struct {
	TemplateParams  map[string]any
	Datasource      map[string]any
	AnalysesResults []any
	APIKey          string
	Limits          models.RenderLimits
}

// Deps groups the collaborators a provider needs. All of them are external
// services from the pipeline's point of view.
type Deps struct {
	Templates      TemplateGetter
	Metadata       MetadataBackend
	Limits         LimitsProvider
	Adapter        MapConfigAdapter
	Connections    ConnectionProvider
	Introspector   TableIntrospector
	AffectedTables *AffectedTablesCache
	Metrics        *metrics.Metrics
}

// outcome is the memoization state of a single-shot resolution step.
type outcome int

const (
	unresolved outcome = iota
	resolved
	failed
)

// Provider is one named-map resolution session. It is created per incoming
// request (or fetched from the provider cache) and memoizes every step:
// once a resolution reaches a terminal state, success or failure, repeated
// calls return the memoized result without re-running side effects.
// Reset clears the memoization and regenerates the cache buster.
type Provider struct {
	deps Deps

	owner        string
	templateName string
	config       any
	authToken    string
	params       RendererParams

	mu          sync.Mutex
	cacheBuster int64

	tplOutcome outcome
	template   *models.Template
	tplErr     error

	cfgOutcome     outcome
	mapConfig      *models.MapConfig
	rendererParams *RendererParams
	rctx           *Context
	cfgErr         error
}

// NewProvider builds a resolution session for one request. templateID may
// be a bare name or the extended "owner@name[@version]" form; config is the
// caller's template parameters, either raw JSON text or a decoded object.
func NewProvider(deps Deps, owner, templateID string, config any, authToken string, params RendererParams) *Provider {
	return &Provider{
		deps:         deps,
		owner:        owner,
		templateName: TemplateName(templateID),
		config:       config,
		authToken:    authToken,
		params:       params,
		cacheBuster:  time.Now().UnixMilli(),
	}
}

// TemplateName extracts the template name from an opaque template
// identifier: "name", "owner@name", and "owner@name@version" all resolve
// to "name".
func TemplateName(templateID string) string {
	parts := strings.Split(templateID, "@")
	if len(parts) > 1 {
		return parts[1]
	}
	return parts[0]
}

// Owner returns the template owner this session resolves for.
func (p *Provider) Owner() string { return p.owner }

// Name returns the resolved template name.
func (p *Provider) Name() string { return p.templateName }

// CacheBuster returns the session's cache buster. It changes on Reset and
// is deliberately not part of any derived cache key.
func (p *Provider) CacheBuster() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cacheBuster
}

// Reset clears all memoized state so the next resolution re-runs the full
// pipeline, and regenerates the cache buster.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tplOutcome = unresolved
	p.template = nil
	p.tplErr = nil
	p.cfgOutcome = unresolved
	p.mapConfig = nil
	p.rendererParams = nil
	p.rctx = nil
	p.cfgErr = nil
	p.cacheBuster = time.Now().UnixMilli()
}

// Key derives the session's cache key: the coarse per-template base key, or
// the full per-parameter-set key. The dbname segment is always left empty
// so the key never changes once the session resolves; the response cache
// and the template invalidation scan have to agree on one prefix.
func (p *Provider) Key(base bool) string {
	if base {
		return BaseKey("", p.owner, p.templateName)
	}
	return FullKey("", p.owner, p.templateName, p.authToken, p.config, p.params.Format, p.params.Layer, p.params.ScaleFactor)
}

// Template fetches and authorizes the session's template, memoized. It
// fails with KindNotFound when the owner has no template of that name and
// KindForbidden when the auth policy rejects the session's token.
func (p *Provider) Template(ctx context.Context) (*models.Template, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.templateLocked(ctx)
}

func (p *Provider) templateLocked(ctx context.Context) (*models.Template, error) {
	if p.tplOutcome != unresolved {
		return p.template, p.tplErr
	}

	tpl, err := p.fetchAndAuthorize(ctx)
	if err != nil {
		p.tplOutcome = failed
		p.tplErr = err
		return nil, err
	}
	p.tplOutcome = resolved
	p.template = tpl
	return tpl, nil
}

func (p *Provider) fetchAndAuthorize(ctx context.Context) (*models.Template, error) {
	tpl, err := p.deps.Templates.GetTemplate(ctx, p.owner, p.templateName)
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	if tpl == nil {
		return nil, NotFoundf("template '%s' of user '%s' not found", p.templateName, p.owner)
	}

	authorized, err := authorize(tpl, p.authToken)
	if err != nil {
		// Evaluator failures must read as an authorization denial, never as
		// an internal error leaking policy internals.
		return nil, Forbiddenf("failed to authorize template")
	}
	if !authorized {
		return nil, Forbiddenf("unauthorized template instantiation")
	}
	return tpl, nil
}

// authorize shields the pipeline from panics inside the policy evaluator.
func authorize(tpl *models.Template, authToken string) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("authorization evaluator panic: %v", r)
		}
	}()
	return IsAuthorized(tpl, authToken)
}

// Resolve runs the resolution pipeline and returns the MapConfig, the
// renderer parameters, and the resolution context. The pipeline is strictly
// sequential — every step consumes the previous step's output — and
// single-shot: terminal results, including errors, are memoized until
// Reset.
func (p *Provider) Resolve(ctx context.Context) (*models.MapConfig, *RendererParams, *Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cfgOutcome != unresolved {
		return p.mapConfig, p.rendererParams, p.rctx, p.cfgErr
	}

	mc, rp, rctx, err := p.resolveLocked(ctx)
	if err != nil {
		p.cfgOutcome = failed
		p.cfgErr = err
		p.deps.Metrics.ResolutionOutcome(outcomeLabel(err))
		return nil, nil, nil, err
	}
	p.cfgOutcome = resolved
	p.mapConfig = mc
	p.rendererParams = rp
	p.rctx = rctx
	p.deps.Metrics.ResolutionOutcome("ok")
	return mc, rp, rctx, nil
}

func (p *Provider) resolveLocked(ctx context.Context) (*models.MapConfig, *RendererParams, *Context, error) {
	tpl, err := p.templateLocked(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	rp := p.params
	rp.User = p.owner
	rp.DB, err = p.deps.Metadata.GetDatabaseParams(ctx, p.owner)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolve database params: %w", err)
	}

	apiKey, err := p.deps.Metadata.GetUserMapKey(ctx, p.owner)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolve map key: %w", err)
	}

	templateParams, err := parseConfig(p.config)
	if err != nil {
		return nil, nil, nil, err
	}

	doc, err := Instance(tpl, templateParams)
	if err != nil {
		return nil, nil, nil, err
	}

	rctx := &Context{
		TemplateParams: templateParams,
		Datasource:     map[string]any{},
		APIKey:         apiKey,
	}
	doc, err = p.deps.Adapter.GetMapConfig(ctx, p.owner, doc, &rp, rctx)
	if err != nil {
		return nil, nil, nil, err
	}

	limitsKey := rp.APIKey
	if limitsKey == "" {
		limitsKey = apiKey
	}
	rctx.Limits, err = p.deps.Limits.GetRenderLimits(ctx, p.owner, limitsKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolve render limits: %w", err)
	}

	mc, err := models.NewMapConfig(doc, rctx.Datasource)
	if err != nil {
		return nil, nil, nil, err
	}
	return mc, &rp, rctx, nil
}

// parseConfig normalizes the caller's config parameter into a placeholder
// value map. Absent config means "defaults only"; malformed JSON is the
// caller's fault.
func parseConfig(config any) (map[string]any, error) {
	switch c := config.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return c, nil
	case string:
		if c == "" {
			return map[string]any{}, nil
		}
		var params map[string]any
		if err := json.Unmarshal([]byte(c), &params); err != nil {
			return nil, BadRequestf("malformed config parameter, should be a valid JSON")
		}
		return params, nil
	default:
		return nil, BadRequestf("malformed config parameter, should be a valid JSON")
	}
}

func outcomeLabel(err error) string {
	switch {
	case IsKind(err, KindNotFound):
		return "not_found"
	case IsKind(err, KindForbidden):
		return "forbidden"
	case IsKind(err, KindBadRequest):
		return "bad_request"
	default:
		return "error"
	}
}
