package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	authEvents      *prometheus.CounterVec
	sectionErrors   *prometheus.CounterVec
	notifications   prometheus.Counter
	streams         prometheus.Gauge
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "playbook_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "playbook_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	auth := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "playbook_auth_events_total",
		Help: "Hasil sign-in, sign-up, sign-out dan fetch profil.",
	}, []string{"action", "outcome"})
	sections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "playbook_dashboard_section_errors_total",
		Help: "Bagian dashboard yang gagal dimuat.",
	}, []string{"variant", "section"})
	notifications := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playbook_notifications_delivered_total",
		Help: "Notifikasi realtime yang diteruskan ke pelanggan.",
	})
	streams := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "playbook_notification_streams",
		Help: "Jumlah stream SSE notifikasi yang terbuka.",
	})
	registry.MustRegister(requests, duration, auth, sections, notifications, streams,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		authEvents:      auth,
		sectionErrors:   sections,
		notifications:   notifications,
		streams:         streams,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// RecordAuth mencatat hasil operasi autentikasi.
func (m *Metrics) RecordAuth(action, outcome string) {
	if m == nil {
		return
	}
	m.authEvents.WithLabelValues(action, outcome).Inc()
}

// RecordSectionError mencatat bagian dashboard yang gagal.
func (m *Metrics) RecordSectionError(variant, section string) {
	if m == nil {
		return
	}
	m.sectionErrors.WithLabelValues(variant, section).Inc()
}

// NotificationDelivered menghitung notifikasi yang dikirim lewat SSE.
func (m *Metrics) NotificationDelivered() {
	if m == nil {
		return
	}
	m.notifications.Inc()
}

// StreamOpened menaikkan gauge stream; fungsi kembalian menurunkannya.
func (m *Metrics) StreamOpened() func() {
	if m == nil {
		return func() {}
	}
	m.streams.Inc()
	return m.streams.Dec
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush meneruskan flush agar stream SSE tetap berjalan di balik middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
