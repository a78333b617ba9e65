package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "studio"

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so components can take one optionally.
type Metrics struct {
	// Control API metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Backend client metrics
	BackendCalls    *prometheus.CounterVec
	BackendDuration *prometheus.HistogramVec
	BreakerState    prometheus.Gauge

	// Content cache metrics
	ContentFetches *prometheus.CounterVec
	SharedFetches  prometheus.Counter
	StaleDiscards  prometheus.Counter

	// Build metrics
	Builds        *prometheus.CounterVec
	BuildDuration prometheus.Histogram
	LogLines      prometheus.Counter
	StreamsActive prometheus.Gauge

	// Build view metrics
	ViewConnections *prometheus.GaugeVec

	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the JSON health endpoint
type Snapshot struct {
	TotalRequests int64   `json:"total_requests"`
	TotalErrors   int64   `json:"total_errors"`
	BackendErrors int64   `json:"backend_errors"`
	BuildsTotal   int64   `json:"builds_total"`
	ActiveStreams int64   `json:"active_streams"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector registered with reg. A nil reg uses
// the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of control API requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Control API request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "Control API response size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "route"},
		),

		BackendCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_calls_total",
				Help:      "Total number of workspace backend calls",
			},
			[]string{"op", "status"},
		),
		BackendDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_call_duration_seconds",
				Help:      "Workspace backend call duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"op"},
		),
		BreakerState: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "backend_breaker_state",
				Help:      "Backend circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
		),

		ContentFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "content_fetches_total",
				Help:      "File content fetches by result",
			},
			[]string{"result"},
		),
		SharedFetches: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "content_shared_fetches_total",
				Help:      "Loads that joined an in-flight fetch for the same path",
			},
		),
		StaleDiscards: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "content_stale_discards_total",
				Help:      "Completed fetches discarded because the file was no longer active",
			},
		),

		Builds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_total",
				Help:      "Builds by outcome",
			},
			[]string{"outcome"},
		),
		BuildDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "build_duration_seconds",
				Help:      "Time from build trigger to terminal state",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
		),
		LogLines: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "build_log_lines_total",
				Help:      "Build log lines received from the backend",
			},
		),
		StreamsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "build_streams_active",
				Help:      "Number of open build log streams",
			},
		),

		ViewConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "build_view_connections",
				Help:      "Connected build state viewers",
			},
			[]string{"transport"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Daemon uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records a control API request
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration, respSize int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, route, status).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
	m.ResponseSize.WithLabelValues(method, route).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordBackendCall records a call to the workspace backend. status is the
// HTTP status code, or an error kind when no response arrived.
func (m *Metrics) RecordBackendCall(op, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.BackendCalls.WithLabelValues(op, status).Inc()
	m.BackendDuration.WithLabelValues(op).Observe(duration.Seconds())

	if status == "" || status[0] != '2' {
		m.mu.Lock()
		m.snapshot.BackendErrors++
		m.mu.Unlock()
	}
}

// SetBreakerState records the backend breaker state
func (m *Metrics) SetBreakerState(state int) {
	if m == nil {
		return
	}
	m.BreakerState.Set(float64(state))
}

// RecordContentFetch records a completed content fetch ("ok", "error", "stale", "abandoned")
func (m *Metrics) RecordContentFetch(result string) {
	if m == nil {
		return
	}
	m.ContentFetches.WithLabelValues(result).Inc()
}

// IncSharedFetches counts a load that joined an in-flight fetch
func (m *Metrics) IncSharedFetches() {
	if m == nil {
		return
	}
	m.SharedFetches.Inc()
}

// IncStaleDiscards counts a fetch result rejected by the stale guard
func (m *Metrics) IncStaleDiscards() {
	if m == nil {
		return
	}
	m.StaleDiscards.Inc()
}

// RecordBuild records a finished build
func (m *Metrics) RecordBuild(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Builds.WithLabelValues(outcome).Inc()
	m.BuildDuration.Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.BuildsTotal++
	m.mu.Unlock()
}

// IncLogLines counts a build log line
func (m *Metrics) IncLogLines() {
	if m == nil {
		return
	}
	m.LogLines.Inc()
}

// IncStreams increments open build streams
func (m *Metrics) IncStreams() {
	if m == nil {
		return
	}
	m.StreamsActive.Inc()
	m.mu.Lock()
	m.snapshot.ActiveStreams++
	m.mu.Unlock()
}

// DecStreams decrements open build streams
func (m *Metrics) DecStreams() {
	if m == nil {
		return
	}
	m.StreamsActive.Dec()
	m.mu.Lock()
	m.snapshot.ActiveStreams--
	m.mu.Unlock()
}

// IncViewConnections increments connected build viewers for a transport
func (m *Metrics) IncViewConnections(transport string) {
	if m == nil {
		return
	}
	m.ViewConnections.WithLabelValues(transport).Inc()
}

// DecViewConnections decrements connected build viewers for a transport
func (m *Metrics) DecViewConnections(transport string) {
	if m == nil {
		return
	}
	m.ViewConnections.WithLabelValues(transport).Dec()
}

// GetSnapshot returns the current summary values
func (m *Metrics) GetSnapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := m.snapshot
	snap.UptimeSeconds = time.Since(m.startTime).Seconds()
	return snap
}
