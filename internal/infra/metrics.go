package infra

import (
	"net/http"
	"sync/atomic"
	"time"

	"stock_sim/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "stocksim"

// Metrics counts engine activity. Atomic counters back Snapshot; the same events feed
// Prometheus collectors exposed by Handler.
type Metrics struct {
	// Counters
	sweeps          atomic.Uint64
	ordersFilled    atomic.Uint64
	deferrals       atomic.Uint64
	gatewayFailures atomic.Uint64
	depthRequests   atomic.Uint64
	errorsTotal     atomic.Uint64

	// Latency tracking
	sweepLatencySumNs atomic.Int64
	sweepLatencyCount atomic.Uint64

	// Gauges
	activeConnections atomic.Int32

	registry       *prometheus.Registry
	sweepsTotal    prometheus.Counter
	sweepDuration  prometheus.Histogram
	fillsTotal     *prometheus.CounterVec
	deferralsTotal prometheus.Counter
	gatewayErrors  prometheus.Counter
	depthTotal     *prometheus.CounterVec
	errorsCounter  prometheus.Counter
	wsClients      prometheus.Gauge
}

// NewMetrics creates metrics registered on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sweepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "sweeps_total",
			Help: "Completed execution sweeps.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Name: "sweep_duration_seconds",
			Help:    "Wall time of one execution sweep.",
			Buckets: prometheus.DefBuckets,
		}),
		fillsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "fills_total",
			Help: "Orders filled, by subtype and side.",
		}, []string{"subtype", "type"}),
		deferralsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "deferred_market_buys_total",
			Help: "Market buys left pending because cash would go negative.",
		}),
		gatewayErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "gateway_failures_total",
			Help: "Sweeps aborted by a market data failure.",
		}),
		depthTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "depth_requests_total",
			Help: "Depth requests served, by outcome.",
		}, []string{"outcome"}),
		errorsCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "errors_total",
			Help: "Unexpected errors.",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "websocket_clients",
			Help: "Connected websocket clients.",
		}),
	}
	m.registry.MustRegister(
		m.sweepsTotal, m.sweepDuration, m.fillsTotal, m.deferralsTotal,
		m.gatewayErrors, m.depthTotal, m.errorsCounter, m.wsClients,
	)
	return m
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordSweep records a completed sweep with its duration.
func (m *Metrics) RecordSweep(elapsed time.Duration) {
	m.sweeps.Add(1)
	m.sweepLatencySumNs.Add(elapsed.Nanoseconds())
	m.sweepLatencyCount.Add(1)
	m.sweepsTotal.Inc()
	m.sweepDuration.Observe(elapsed.Seconds())
}

// RecordFill records a filled order.
func (m *Metrics) RecordFill(subtype domain.OrderSubtype, typ domain.OrderType) {
	m.ordersFilled.Add(1)
	m.fillsTotal.WithLabelValues(string(subtype), string(typ)).Inc()
}

// RecordDeferral records a market buy left pending.
func (m *Metrics) RecordDeferral() {
	m.deferrals.Add(1)
	m.deferralsTotal.Inc()
}

// RecordGatewayFailure records a sweep aborted by the gateway.
func (m *Metrics) RecordGatewayFailure() {
	m.gatewayFailures.Add(1)
	m.gatewayErrors.Inc()
}

// RecordDepthRequest records a served depth request.
func (m *Metrics) RecordDepthRequest(created bool) {
	m.depthRequests.Add(1)
	outcome := "updated"
	if created {
		outcome = "created"
	}
	m.depthTotal.WithLabelValues(outcome).Inc()
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
	m.errorsCounter.Inc()
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
	m.wsClients.Inc()
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
	m.wsClients.Dec()
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	Sweeps            uint64    `json:"sweeps"`
	OrdersFilled      uint64    `json:"orders_filled"`
	Deferrals         uint64    `json:"deferrals"`
	GatewayFailures   uint64    `json:"gateway_failures"`
	DepthRequests     uint64    `json:"depth_requests"`
	ErrorsTotal       uint64    `json:"errors_total"`
	AvgSweepLatencyNs int64     `json:"avg_sweep_latency_ns"`
	ActiveConnections int32     `json:"active_connections"`
	Timestamp         time.Time `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.sweepLatencyCount.Load()
	if count > 0 {
		avgLatency = m.sweepLatencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		Sweeps:            m.sweeps.Load(),
		OrdersFilled:      m.ordersFilled.Load(),
		Deferrals:         m.deferrals.Load(),
		GatewayFailures:   m.gatewayFailures.Load(),
		DepthRequests:     m.depthRequests.Load(),
		ErrorsTotal:       m.errorsTotal.Load(),
		AvgSweepLatencyNs: avgLatency,
		ActiveConnections: m.activeConnections.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears the snapshot counters (for testing). Prometheus counters are monotonic and
// keep their values.
func (m *Metrics) Reset() {
	m.sweeps.Store(0)
	m.ordersFilled.Store(0)
	m.deferrals.Store(0)
	m.gatewayFailures.Store(0)
	m.depthRequests.Store(0)
	m.errorsTotal.Store(0)
	m.sweepLatencySumNs.Store(0)
	m.sweepLatencyCount.Store(0)
	m.activeConnections.Store(0)
}
