// Package metrics exposes Prometheus counters and histograms for precompile
// calls. Its collectors keep state across invocations; the precompiles
// themselves remain pure functions of their input, and nothing here feeds
// back into a call's output.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds the collectors a PrecompileSet reports through. A nil
// *Registry is valid everywhere it's accepted and simply records nothing,
// so callers that don't care about metrics never have to construct one.
type Registry struct {
	calls   *prometheus.CounterVec
	gasUsed *prometheus.HistogramVec
}

// NewRegistry registers a fresh set of collectors on reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "precompile",
			Name:      "calls_total",
			Help:      "Number of precompile calls by address and exit status.",
		}, []string{"address", "status"}),
		gasUsed: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "precompile",
			Name:      "gas_used",
			Help:      "Gas charged per precompile call.",
			Buckets:   prometheus.ExponentialBuckets(60, 2, 12),
		}, []string{"address"}),
	}
}

// Observe records the outcome of one call. addr is the hex-encoded
// precompile address, status its exit status string.
func (r *Registry) Observe(addr, status string, gasUsed uint64) {
	if r == nil {
		return
	}
	r.calls.WithLabelValues(addr, status).Inc()
	r.gasUsed.WithLabelValues(addr).Observe(float64(gasUsed))
}
