// Package metrics holds the Prometheus instrumentation for the decision
// ledger: repository operation outcomes, regime cache effectiveness, and
// auto-confirm sweep results.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Registry holds all Prometheus metrics for the ledger service
type Registry struct {
	// Repository operation metrics
	RepoOps      *prometheus.CounterVec
	RepoDuration *prometheus.HistogramVec

	// Regime cache performance metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Auto-confirm sweep metrics
	SweepRounds   *prometheus.CounterVec
	SweepDuration prometheus.Histogram

	// Negotiation flow metrics
	RoundsProposed prometheus.Counter
	RoundsResolved *prometheus.CounterVec
}

// NewRegistry creates a metrics registry with all ledger metrics
func NewRegistry() *Registry {
	return &Registry{
		RepoOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "omegaledger_repo_ops_total",
				Help: "Total repository operations by table, operation and result",
			},
			[]string{"table", "op", "result"},
		),

		RepoDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "omegaledger_repo_duration_seconds",
				Help:    "Duration of repository operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"table", "op"},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "omegaledger_cache_hits_total",
				Help: "Total regime cache hits by backend",
			},
			[]string{"backend"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "omegaledger_cache_misses_total",
				Help: "Total regime cache misses by backend",
			},
			[]string{"backend"},
		),

		SweepRounds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "omegaledger_sweep_rounds_total",
				Help: "Negotiation rounds touched by the auto-confirm sweep, by outcome",
			},
			[]string{"outcome"},
		),

		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "omegaledger_sweep_duration_seconds",
				Help:    "Duration of one auto-confirm sweep pass",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
			},
		),

		RoundsProposed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "omegaledger_negotiation_rounds_proposed_total",
				Help: "Total negotiation rounds proposed",
			},
		),

		RoundsResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "omegaledger_negotiation_rounds_resolved_total",
				Help: "Total negotiation rounds resolved, by mode (human|auto)",
			},
			[]string{"mode"},
		),
	}
}

// Register registers all metrics with the provided Prometheus registerer
func (r *Registry) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		r.RepoOps,
		r.RepoDuration,
		r.CacheHits,
		r.CacheMisses,
		r.SweepRounds,
		r.SweepDuration,
		r.RoundsProposed,
		r.RoundsResolved,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}

	return nil
}

var (
	defaultRegistry *Registry
	initOnce        sync.Once
)

// Initialize sets up the default metrics registry against the global
// Prometheus registerer. Safe to call more than once.
func Initialize() {
	initOnce.Do(func() {
		defaultRegistry = NewRegistry()
		if err := defaultRegistry.Register(prometheus.DefaultRegisterer); err != nil {
			log.Error().Err(err).Msg("failed to register ledger metrics")
		}
	})
}

// Default returns the default registry, initializing it if needed.
func Default() *Registry {
	Initialize()
	return defaultRegistry
}
