package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Operation metrics
	OperationDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsEnded   *prometheus.CounterVec
	SpawnFailures   prometheus.Counter
	OutputBytes     prometheus.Counter
	InputBytes      prometheus.Counter

	// Stream metrics
	StreamConnections *prometheus.GaugeVec
	ListenerDrops     prometheus.Counter

	startTime time.Time

	// Snapshot for the health endpoint
	snapshot MetricsSnapshot
	mu       sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	ActiveSessions    int64   `json:"active_sessions"`
	ActiveConnections int64   `json:"active_connections"`
	SessionsCreated   int64   `json:"sessions_created"`
	SessionsEnded     int64   `json:"sessions_ended"`
	SpawnFailures     int64   `json:"spawn_failures"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector with its own registry, so several
// servers in one process (tests) never collide on registration.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webterm_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webterm_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds; streams count until disconnect",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webterm_operation_duration_seconds",
				Help:    "Terminal operation duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "status"},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "webterm_sessions_active",
				Help: "Number of sessions in the registry",
			},
		),
		SessionsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "webterm_sessions_created_total",
				Help: "Total number of sessions created",
			},
		),
		SessionsEnded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webterm_sessions_ended_total",
				Help: "Total number of sessions ended, by reason",
			},
			[]string{"reason"},
		),
		SpawnFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "webterm_spawn_failures_total",
				Help: "Total number of bridge processes that failed to start",
			},
		),
		OutputBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "webterm_output_bytes_total",
				Help: "Bytes of terminal output read from bridges",
			},
		),
		InputBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "webterm_input_bytes_total",
				Help: "Bytes of input written to bridges",
			},
		),

		StreamConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "webterm_stream_connections",
				Help: "Number of open viewer connections",
			},
			[]string{"transport"},
		),
		ListenerDrops: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "webterm_listener_drops_total",
				Help: "Listeners removed after a failed delivery",
			},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "webterm_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Handler serves the Prometheus exposition format for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordOperation records a terminal operation outcome
func (m *Metrics) RecordOperation(operation, status string, duration time.Duration) {
	m.OperationDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// SessionCreated records a successful spawn
func (m *Metrics) SessionCreated() {
	m.SessionsCreated.Inc()
	m.mu.Lock()
	m.snapshot.SessionsCreated++
	m.mu.Unlock()
}

// SessionEnded records a session reaching a terminal state
func (m *Metrics) SessionEnded(reason string) {
	m.SessionsEnded.WithLabelValues(reason).Inc()
	m.mu.Lock()
	m.snapshot.SessionsEnded++
	m.mu.Unlock()
}

// IncSpawnFailures records a failed spawn
func (m *Metrics) IncSpawnFailures() {
	m.SpawnFailures.Inc()
	m.mu.Lock()
	m.snapshot.SpawnFailures++
	m.mu.Unlock()
}

// SetSessionsActive sets the number of sessions in the registry
func (m *Metrics) SetSessionsActive(count int) {
	m.SessionsActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveSessions = int64(count)
	m.mu.Unlock()
}

// AddOutputBytes counts bytes read from a bridge
func (m *Metrics) AddOutputBytes(n int) {
	m.OutputBytes.Add(float64(n))
}

// AddInputBytes counts bytes written to a bridge
func (m *Metrics) AddInputBytes(n int) {
	m.InputBytes.Add(float64(n))
}

// IncStreamConnections records a viewer connecting
func (m *Metrics) IncStreamConnections(transport string) {
	m.StreamConnections.WithLabelValues(transport).Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecStreamConnections records a viewer disconnecting
func (m *Metrics) DecStreamConnections(transport string) {
	m.StreamConnections.WithLabelValues(transport).Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// IncListenerDrops records a listener removed after a failed delivery
func (m *Metrics) IncListenerDrops() {
	m.ListenerDrops.Inc()
}

// Snapshot returns current values for the health endpoint
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
