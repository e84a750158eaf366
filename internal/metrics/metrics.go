// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package metrics provides Prometheus collectors for the gateway. The
// Metrics struct is injected into the components that record observations;
// there is no package-global state, so tests can register against isolated
// registries. All record methods are nil-receiver safe, letting callers
// skip instrumentation entirely.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the gateway's Prometheus collectors.
type Metrics struct {
	resolutions         *prometheus.CounterVec
	affectedTablesHits  prometheus.Counter
	affectedTablesMiss  prometheus.Counter
	instantiateDuration prometheus.Histogram
}

// New registers the gateway collectors against reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "namedmaps_resolutions_total",
			Help: "Named-map resolution pipeline outcomes.",
		}, []string{"outcome"}),
		affectedTablesHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "affected_tables_cache_hits_total",
			Help: "Affected-tables cache lookups served without a DB round-trip.",
		}),
		affectedTablesMiss: factory.NewCounter(prometheus.CounterOpts{
			Name: "affected_tables_cache_misses_total",
			Help: "Affected-tables cache lookups that required introspection.",
		}),
		instantiateDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "named_map_instantiation_duration_seconds",
			Help:    "Latency of named-map instantiation requests.",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 10},
		}),
	}
}

// ResolutionOutcome counts one pipeline resolution, labeled by outcome
// ("ok", "not_found", "forbidden", "bad_request", "error").
func (m *Metrics) ResolutionOutcome(outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
}

// AffectedTablesHit counts an affected-tables cache hit.
func (m *Metrics) AffectedTablesHit() {
	if m == nil {
		return
	}
	m.affectedTablesHits.Inc()
}

// AffectedTablesMiss counts an affected-tables cache miss.
func (m *Metrics) AffectedTablesMiss() {
	if m == nil {
		return
	}
	m.affectedTablesMiss.Inc()
}

// ObserveInstantiation records the duration of one instantiation request.
func (m *Metrics) ObserveInstantiation(seconds float64) {
	if m == nil {
		return
	}
	m.instantiateDuration.Observe(seconds)
}
