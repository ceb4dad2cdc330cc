package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the authentication core.
// Construct one per process with [NewMetrics] and share it across
// validators; a nil *Metrics disables instrumentation, which tests use
// for isolation.
type Metrics struct {
	validations  *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	chainBuilds  prometheus.Counter
}

// NewMetrics creates and registers the authentication metrics with the
// given registerer. Pass prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "veriflow",
			Subsystem: "auth",
			Name:      "validations_total",
			Help:      "Credential validations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "veriflow",
			Subsystem: "auth",
			Name:      "cache_lookups_total",
			Help:      "Validation cache lookups by cache and result.",
		}, []string{"cache", "result"}),
		chainBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "veriflow",
			Subsystem: "auth",
			Name:      "certificate_chain_builds_total",
			Help:      "Full X.509 chain verifications performed (cache misses).",
		}),
	}
	reg.MustRegister(m.validations, m.cacheLookups, m.chainBuilds)
	return m
}

// Validation records a credential validation outcome.
func (m *Metrics) Validation(kind string, ok bool) {
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	m.validations.WithLabelValues(kind, outcome).Inc()
}

// CacheLookup records a validation-cache lookup.
func (m *Metrics) CacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

// ChainBuild records one full certificate chain verification.
func (m *Metrics) ChainBuild() {
	m.chainBuilds.Inc()
}
