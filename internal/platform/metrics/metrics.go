package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the stream supervisor.
// It satisfies supervisor.Recorder.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	workersRunning      prometheus.Gauge
	spawnsTotal         prometheus.Counter
	exitsTotal          prometheus.Counter
	spawnFailuresTotal  prometheus.Counter
	reconnectsScheduled prometheus.Counter
	reconnectDelay      prometheus.Histogram
}

// New creates and registers the supervisor metrics on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtsp_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtsp_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		workersRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rtsp_workers_running",
			Help: "Number of transcoding jobs currently registered",
		}),
		spawnsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtsp_worker_spawns_total",
			Help: "Total number of transcoder processes started",
		}),
		exitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtsp_worker_exits_total",
			Help: "Total number of transcoder processes that exited",
		}),
		spawnFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtsp_spawn_failures_total",
			Help: "Total number of transcoder processes that could not be started",
		}),
		reconnectsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtsp_reconnects_scheduled_total",
			Help: "Total number of automatic reconnects scheduled",
		}),
		reconnectDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rtsp_reconnect_delay_seconds",
			Help:    "Delay before each scheduled reconnect",
			Buckets: []float64{0.5, 1, 2, 4, 8, 10, 30},
		}),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.workersRunning,
		m.spawnsTotal,
		m.exitsTotal,
		m.spawnFailuresTotal,
		m.reconnectsScheduled,
		m.reconnectDelay,
	)
	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// SetWorkersRunning sets the running jobs gauge.
func (m *Metrics) SetWorkersRunning(n int) {
	m.workersRunning.Set(float64(n))
}

func (m *Metrics) WorkerSpawned() {
	m.spawnsTotal.Inc()
}

func (m *Metrics) WorkerExited() {
	m.exitsTotal.Inc()
}

func (m *Metrics) SpawnFailed() {
	m.spawnFailuresTotal.Inc()
}

func (m *Metrics) ReconnectScheduled(delay time.Duration) {
	m.reconnectsScheduled.Inc()
	m.reconnectDelay.Observe(delay.Seconds())
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		h.ServeHTTP(w, r)
	})
}
