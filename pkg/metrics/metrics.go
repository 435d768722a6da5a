// Package metrics exposes Prometheus instrumentation for the device policy and HTTP layer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Admission outcomes
const (
	AdmissionExempt        = "exempt"
	AdmissionUnenforced    = "unenforced"
	AdmissionKnownDevice   = "known_device"
	AdmissionNewDevice     = "new_device"
	AdmissionBlocked       = "device_blocked"
	AdmissionLimitExceeded = "limit_exceeded"
	AdmissionError         = "error"
)

// Validation outcomes
const (
	ValidationPassed         = "passed"
	ValidationExempt         = "exempt"
	ValidationSessionExpired = "session_expired"
	ValidationDeviceMissing  = "device_missing"
	ValidationDeviceMismatch = "device_mismatch"
	ValidationFailOpen       = "fail_open"
)

// Revocation reasons
const (
	RevokedLogin          = "login"
	RevokedDeviceMismatch = "device_mismatch"
	RevokedForceLogout    = "force_logout"
	RevokedReset          = "reset"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	deviceAdmissions   *prometheus.CounterVec
	sessionValidations *prometheus.CounterVec
	deviceChanges      prometheus.Counter
	sessionsRevoked    *prometheus.CounterVec

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		deviceAdmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lms_device_admissions_total",
			Help: "Login admission decisions by outcome.",
		}, []string{"outcome"}),
		sessionValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lms_session_validations_total",
			Help: "Per-request session validation results by outcome.",
		}, []string{"outcome"}),
		deviceChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lms_device_changes_total",
			Help: "Student logins from a fingerprint new to an account that already had devices.",
		}),
		sessionsRevoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lms_sessions_revoked_total",
			Help: "Refresh credentials revoked or deleted, by reason.",
		}, []string{"reason"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
	reg.MustRegister(
		m.deviceAdmissions,
		m.sessionValidations,
		m.deviceChanges,
		m.sessionsRevoked,
		m.httpInFlight,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	)
	return m
}

func (m *Metrics) Admission(outcome string) {
	if m == nil {
		return
	}
	m.deviceAdmissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Validation(outcome string) {
	if m == nil {
		return
	}
	m.sessionValidations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) DeviceChange() {
	if m == nil {
		return
	}
	m.deviceChanges.Inc()
}

// SessionsRevoked adds n credentials revoked for reason
func (m *Metrics) SessionsRevoked(reason string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsRevoked.WithLabelValues(reason).Add(float64(n))
}

// Handler serves the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Instrument measures in-flight requests, totals and latency. The path label is the
// chi route pattern so ids in the URL do not explode cardinality.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := routePattern(r)
		status := strconv.Itoa(sw.code)
		m.httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
