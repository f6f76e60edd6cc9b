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

const namespace = "surfacehost"

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Surface metrics
	SurfacesActive  prometheus.Gauge
	SurfacesCreated prometheus.Counter
	PoolIdle        prometheus.Gauge
	ProvidersBuilt  prometheus.Counter

	// Command metrics
	Commands        *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec

	// Event metrics
	Events        *prometheus.CounterVec
	EventsDropped *prometheus.CounterVec
	PaintBytes    prometheus.Counter

	// Transport metrics
	Connections *prometheus.GaugeVec
	Messages    *prometheus.CounterVec

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current metric values for the JSON stats API
type Snapshot struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalCommands     int64   `json:"total_commands"`
	FailedCommands    int64   `json:"failed_commands"`
	EventsDelivered   int64   `json:"events_delivered"`
	EventsDropped     int64   `json:"events_dropped"`
	ActiveConnections int64   `json:"active_connections"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector backed by its own registry, so that
// several collectors can coexist in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		SurfacesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "surfaces_active",
				Help:      "Number of live surfaces",
			},
		),
		SurfacesCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "surfaces_created_total",
				Help:      "Total number of surfaces created",
			},
		),
		PoolIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_idle",
				Help:      "Number of idle providers waiting in the pool",
			},
		),
		ProvidersBuilt: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "providers_constructed_total",
				Help:      "Total number of providers constructed by the pool",
			},
		),

		Commands: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Total number of commands by method and result",
			},
			[]string{"method", "result"},
		),
		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Command duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"method"},
		),

		Events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Total number of events delivered to owners",
			},
			[]string{"kind"},
		),
		EventsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dropped_total",
				Help:      "Total number of events dropped",
			},
			[]string{"kind", "reason"},
		),
		PaintBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "paint_bytes_total",
				Help:      "Total pixel bytes carried by paint events",
			},
		),

		Connections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "transport_connections",
				Help:      "Number of open consumer connections",
			},
			[]string{"transport"},
		),
		Messages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transport_messages_total",
				Help:      "Total number of transport messages",
			},
			[]string{"transport", "direction", "type"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Host uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)
	reg.MustRegister(collectors.NewGoCollector())

	return m
}

// Registry exposes the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.mu.Unlock()
}

// RecordCommand records a multiplexer command
func (m *Metrics) RecordCommand(method, result string, duration time.Duration) {
	m.Commands.WithLabelValues(method, result).Inc()
	m.CommandDuration.WithLabelValues(method).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalCommands++
	if result == ResultError {
		m.snapshot.FailedCommands++
	}
	m.mu.Unlock()
}

// RecordEvent records an event delivered to its owner
func (m *Metrics) RecordEvent(kind string, paintBytes int) {
	m.Events.WithLabelValues(kind).Inc()
	if paintBytes > 0 {
		m.PaintBytes.Add(float64(paintBytes))
	}

	m.mu.Lock()
	m.snapshot.EventsDelivered++
	m.mu.Unlock()
}

// RecordDroppedEvent records an event that never reached a consumer
func (m *Metrics) RecordDroppedEvent(kind, reason string) {
	m.EventsDropped.WithLabelValues(kind, reason).Inc()

	m.mu.Lock()
	m.snapshot.EventsDropped++
	m.mu.Unlock()
}

// SetSurfaces sets the live surface and idle pool gauges
func (m *Metrics) SetSurfaces(active, idle int) {
	m.SurfacesActive.Set(float64(active))
	m.PoolIdle.Set(float64(idle))
}

// IncSurfacesCreated increments the created surfaces counter
func (m *Metrics) IncSurfacesCreated() {
	m.SurfacesCreated.Inc()
}

// IncProvidersBuilt increments the constructed providers counter
func (m *Metrics) IncProvidersBuilt() {
	m.ProvidersBuilt.Inc()
}

// IncConnections increments open connections for a transport
func (m *Metrics) IncConnections(transport string) {
	m.Connections.WithLabelValues(transport).Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecConnections decrements open connections for a transport
func (m *Metrics) DecConnections(transport string) {
	m.Connections.WithLabelValues(transport).Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// RecordMessage records a transport message
func (m *Metrics) RecordMessage(transport, direction, msgType string) {
	m.Messages.WithLabelValues(transport, direction, msgType).Inc()
}

// Snapshot returns the current values for the JSON stats API
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
