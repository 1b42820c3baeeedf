// Package metrics holds the Prometheus collectors of the widget backend.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	MessagesTotal   *prometheus.CounterVec
	Chats           prometheus.Gauge
	PendingReplies  prometheus.Gauge
	StorageWrites   *prometheus.CounterVec
	RecordingsTotal prometheus.Counter
	WSConnections   prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tutibot_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tutibot_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		MessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tutibot_messages_total",
			Help: "Messages appended to chats",
		}, []string{"sender"}),
		Chats: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tutibot_chats",
			Help: "Chats in the session",
		}),
		PendingReplies: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tutibot_pending_replies",
			Help: "Bot replies scheduled but not yet delivered",
		}),
		StorageWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tutibot_storage_writes_total",
			Help: "Session record writes by result",
		}, []string{"result"}),
		RecordingsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "tutibot_recordings_total",
			Help: "Voice recognition sessions started",
		}),
		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tutibot_ws_connections",
			Help: "Open websocket connections",
		}),
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency keyed by the chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// ObserveMessage counts one appended message.
func (m *Metrics) ObserveMessage(sender string) {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues(sender).Inc()
}

// SetChats records the chat count.
func (m *Metrics) SetChats(n int) {
	if m == nil {
		return
	}
	m.Chats.Set(float64(n))
}

// SetPendingReplies records how many replies are in flight.
func (m *Metrics) SetPendingReplies(n int) {
	if m == nil {
		return
	}
	m.PendingReplies.Set(float64(n))
}

// ObserveStorageWrite counts one record write.
func (m *Metrics) ObserveStorageWrite(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.StorageWrites.WithLabelValues(result).Inc()
}

// IncRecordings counts one started recognition session.
func (m *Metrics) IncRecordings() {
	if m == nil {
		return
	}
	m.RecordingsTotal.Inc()
}
