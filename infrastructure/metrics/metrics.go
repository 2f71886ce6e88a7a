// Package metrics provides Prometheus metrics collection for an exploration run.
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors the Agent updates as it explores.
type Metrics struct {
	StepsTotal       *prometheus.CounterVec
	ActionDuration   *prometheus.HistogramVec
	StatesExplored   prometheus.Gauge
	TransitionsTotal prometheus.Gauge
	ViolationsTotal  *prometheus.CounterVec
	Coverage         prometheus.Gauge
	CircuitState     *prometheus.GaugeVec
}

// New creates a new Metrics instance with all collectors registered against
// the default registry.
func New(explorationName string) *Metrics {
	return NewWithRegistry(explorationName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry, useful
// for tests that do not want to pollute the global default registry.
func NewWithRegistry(explorationName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		StepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exploration_steps_total",
				Help: "Total number of agent steps, labeled by action and outcome",
			},
			[]string{"exploration", "action", "outcome"},
		),
		ActionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "exploration_action_duration_seconds",
				Help:    "Duration of action execution against the target service",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"exploration", "action"},
		),
		StatesExplored: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "exploration_states_explored",
				Help: "Number of distinct states discovered so far",
			},
		),
		TransitionsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "exploration_transitions_total",
				Help: "Number of transitions recorded so far",
			},
		),
		ViolationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exploration_violations_total",
				Help: "Total number of invariant violations, labeled by severity",
			},
			[]string{"exploration", "severity"},
		),
		Coverage: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "exploration_coverage_ratio",
				Help: "explored / (states * actions)",
			},
		),
		CircuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "exploration_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"exploration", "breaker"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.StepsTotal,
			m.ActionDuration,
			m.StatesExplored,
			m.TransitionsTotal,
			m.ViolationsTotal,
			m.Coverage,
			m.CircuitState,
		)
	}

	return m
}

// RecordStep records one agent step outcome. The Agent records "ok" or
// "transport_error".
func (m *Metrics) RecordStep(exploration, action, outcome string, duration time.Duration) {
	m.StepsTotal.WithLabelValues(exploration, action, outcome).Inc()
	m.ActionDuration.WithLabelValues(exploration, action).Observe(duration.Seconds())
}

// RecordViolation records an invariant violation by severity.
func (m *Metrics) RecordViolation(exploration, severity string) {
	m.ViolationsTotal.WithLabelValues(exploration, severity).Inc()
}

// SetGraphSize updates the states/transitions/coverage gauges.
func (m *Metrics) SetGraphSize(states, transitions int, coverage float64) {
	m.StatesExplored.Set(float64(states))
	m.TransitionsTotal.Set(float64(transitions))
	m.Coverage.Set(coverage)
}

// SetCircuitState records the current circuit breaker state (0/1/2) for a
// named breaker (e.g. the HTTP transport's). Nothing in this module calls it.
func (m *Metrics) SetCircuitState(exploration, breaker string, state int) {
	m.CircuitState.WithLabelValues(exploration, breaker).Set(float64(state))
}

// Enabled returns whether Prometheus metrics should be collected.
// Defaults to enabled; set METRICS_ENABLED=false to disable.
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return true
	}
	switch raw {
	case "0", "false", "no", "off":
		return false
	default:
		return true
	}
}

// Global metrics instance, lazily created on first use.
var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance.
func Init(explorationName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(explorationName)
	}
	return globalMetrics
}

// Global returns the global metrics instance.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("unknown")
	}
	return globalMetrics
}
