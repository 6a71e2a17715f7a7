// Package telemetry owns sandy's prometheus collectors and the otel tracer
// provider. Every recording method is safe on a nil *Metrics so components
// can run without instrumentation in tests.
package telemetry

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sandy"

// ServiceName is the service key Metrics is registered under.
const ServiceName = "telemetry.metrics"

// Metrics bundles the prometheus collectors with a few atomic counters used
// for the JSON status endpoint.
type Metrics struct {
	registry *prometheus.Registry

	schedWait    *prometheus.HistogramVec
	schedDepth   prometheus.Gauge
	schedServed  *prometheus.CounterVec
	schedSkipped *prometheus.CounterVec
	gateOutcomes *prometheus.CounterVec
	genRounds    prometheus.Histogram
	corrections  *prometheus.CounterVec
	writeback    *prometheus.CounterVec
	turns        *prometheus.CounterVec
	backendUp    prometheus.Gauge
	apiRequests  *prometheus.CounterVec

	turnsSeen  atomic.Int64
	replies    atomic.Int64
	errors     atomic.Int64
	genLatency atomic.Int64 // nanoseconds, summed over replies
}

// NewMetrics creates a Metrics backed by a fresh registry that also exposes
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		schedWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for the inference gate.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"role"}),
		schedDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "queue_depth",
			Help:      "Requests waiting for the inference gate.",
		}),
		schedServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "served_total",
			Help:      "Requests granted the inference gate.",
		}, []string{"role"}),
		schedSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "skipped_total",
			Help:      "Background requests dropped because the gate was busy.",
		}, []string{"role"}),
		gateOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Turn gate outcomes.",
		}, []string{"outcome"}),
		genRounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "rounds",
			Help:      "Tool rounds used per generation.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		}),
		corrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "corrections_total",
			Help:      "Corrective nudges injected after deferrals.",
		}, []string{"level"}),
		writeback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "memory",
			Name:      "writeback_steps_total",
			Help:      "Write-back pipeline steps by result.",
		}, []string{"step", "result"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Turns observed on the chat gateway.",
		}, []string{"author"}),
		backendUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_up",
			Help:      "1 when the inference backend answered the last health probe.",
		}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recall",
			Name:      "requests_total",
			Help:      "Archive API requests by route and status code.",
		}, []string{"route", "code"}),
	}

	reg.MustRegister(
		m.schedWait, m.schedDepth, m.schedServed, m.schedSkipped,
		m.gateOutcomes, m.genRounds, m.corrections, m.writeback,
		m.turns, m.backendUp, m.apiRequests,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveSchedulerWait records how long a request waited for the gate.
func (m *Metrics) ObserveSchedulerWait(role string, d time.Duration) {
	if m == nil {
		return
	}
	m.schedWait.WithLabelValues(role).Observe(d.Seconds())
	m.schedServed.WithLabelValues(role).Inc()
}

// SetQueueDepth records the number of waiters.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.schedDepth.Set(float64(n))
}

// IncSkipped records a background request dropped on a busy gate.
func (m *Metrics) IncSkipped(role string) {
	if m == nil {
		return
	}
	m.schedSkipped.WithLabelValues(role).Inc()
}

// RecordGate records a gate outcome: "yes", "no", "flipped" or "error".
func (m *Metrics) RecordGate(outcome string) {
	if m == nil {
		return
	}
	m.gateOutcomes.WithLabelValues(outcome).Inc()
}

// RecordGeneration records one finished orchestrator invocation.
func (m *Metrics) RecordGeneration(rounds int, latency time.Duration) {
	if m == nil {
		return
	}
	m.genRounds.Observe(float64(rounds))
	m.genLatency.Add(int64(latency))
}

// RecordCorrection records a nudge at the given level ("soft" or "hard").
func (m *Metrics) RecordCorrection(level string) {
	if m == nil {
		return
	}
	m.corrections.WithLabelValues(level).Inc()
}

// RecordWriteback records the outcome of one write-back step.
func (m *Metrics) RecordWriteback(step string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.writeback.WithLabelValues(step, result).Inc()
}

// RecordTurn records an observed turn.
func (m *Metrics) RecordTurn(bot bool) {
	if m == nil {
		return
	}
	author := "human"
	if bot {
		author = "bot"
	}
	m.turns.WithLabelValues(author).Inc()
	m.turnsSeen.Add(1)
}

// RecordReply records a reply delivered to the chat surface.
func (m *Metrics) RecordReply() {
	if m == nil {
		return
	}
	m.replies.Add(1)
}

// RecordError records a turn-handling failure.
func (m *Metrics) RecordError() {
	if m == nil {
		return
	}
	m.errors.Add(1)
}

// SetBackendUp records the last backend health probe result.
func (m *Metrics) SetBackendUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.backendUp.Set(1)
		return
	}
	m.backendUp.Set(0)
}

// RecordAPIRequest counts one archive API request.
func (m *Metrics) RecordAPIRequest(route string, code int) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Snapshot returns a point-in-time view of the counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	snap := Snapshot{
		Turns:   m.turnsSeen.Load(),
		Replies: m.replies.Load(),
		Errors:  m.errors.Load(),
	}
	if snap.Replies > 0 {
		snap.AvgGeneration = time.Duration(m.genLatency.Load() / snap.Replies)
	}
	return snap
}

// Snapshot is a serializable metrics view.
type Snapshot struct {
	Turns         int64         `json:"turns"`
	Replies       int64         `json:"replies"`
	Errors        int64         `json:"errors"`
	AvgGeneration time.Duration `json:"avg_generation_ns"`
}
