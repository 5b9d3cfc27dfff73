// Package metrics exposes the prometheus collectors of the race watcher.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type RaceMetrics struct {
	runs             *prometheus.CounterVec
	runDuration      prometheus.Histogram
	delegators       *prometheus.CounterVec
	sleepTransitions *prometheus.CounterVec
	chainPages       *prometheus.CounterVec
	chainSkipped     prometheus.Counter
	boostOutcomes    *prometheus.CounterVec
	poolTotal        prometheus.Gauge
}

var (
	raceOnce     sync.Once
	raceRegistry *RaceMetrics
)

// Race returns the process wide collectors, registering them on first use.
func Race() *RaceMetrics {
	raceOnce.Do(func() {
		raceRegistry = &RaceMetrics{
			runs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sloth_snapshot_runs_total",
				Help: "Snapshot runs by result.",
			}, []string{"result"}),
			runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "sloth_snapshot_run_seconds",
				Help:    "Wall time of completed snapshot runs.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			}),
			delegators: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sloth_snapshot_delegators_total",
				Help: "Delegators handled by snapshot runs, by outcome.",
			}, []string{"outcome"}),
			sleepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sloth_sleep_transitions_total",
				Help: "Profiles put to sleep or woken up.",
			}, []string{"direction"}),
			chainPages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sloth_chain_pages_total",
				Help: "Delegation pages fetched from the chain REST api, by result.",
			}, []string{"result"}),
			chainSkipped: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "sloth_chain_records_skipped_total",
				Help: "Malformed delegation records dropped by the reader.",
			}),
			boostOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sloth_boost_verifications_total",
				Help: "Boost verification outcomes by platform and status.",
			}, []string{"platform", "status"}),
			poolTotal: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "sloth_prize_pool_total",
				Help: "Current prize pool total.",
			}),
		}
		prometheus.MustRegister(
			raceRegistry.runs,
			raceRegistry.runDuration,
			raceRegistry.delegators,
			raceRegistry.sleepTransitions,
			raceRegistry.chainPages,
			raceRegistry.chainSkipped,
			raceRegistry.boostOutcomes,
			raceRegistry.poolTotal,
		)
	})
	return raceRegistry
}

func (m *RaceMetrics) ObserveRun(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
	if result == "ok" {
		m.runDuration.Observe(took.Seconds())
	}
}

func (m *RaceMetrics) ObserveDelegator(outcome string) {
	if m == nil {
		return
	}
	m.delegators.WithLabelValues(outcome).Inc()
}

func (m *RaceMetrics) ObserveSleep(direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sleepTransitions.WithLabelValues(direction).Add(float64(n))
}

func (m *RaceMetrics) ObserveChainPage(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.chainPages.WithLabelValues(result).Inc()
}

func (m *RaceMetrics) ObserveSkippedRecords(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.chainSkipped.Add(float64(n))
}

func (m *RaceMetrics) ObserveBoost(platform, status string) {
	if m == nil {
		return
	}
	if platform == "" {
		platform = "unknown"
	}
	m.boostOutcomes.WithLabelValues(platform, status).Inc()
}

func (m *RaceMetrics) SetPoolTotal(total float64) {
	if m == nil {
		return
	}
	m.poolTotal.Set(total)
}
