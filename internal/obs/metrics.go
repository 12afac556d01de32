package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	authResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_resolutions_total",
			Help: "Auth context resolutions by outcome (online, degraded, rejected, anonymous).",
		},
		[]string{"outcome"},
	)

	rateLimitTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_trips_total",
			Help: "Requests denied by the rate limiter, per route.",
		},
		[]string{"route"},
	)

	fileRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "file_rejections_total",
			Help: "Uploads rejected by the file security pipeline, per reason.",
		},
		[]string{"reason"},
	)

	auditWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_write_failures_total",
		Help: "Audit entries that could not be persisted.",
	})

	auditDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_dropped_total",
		Help: "Audit entries dropped because the dispatcher buffer was full.",
	})

	retryReplays = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_replays_total",
			Help: "Queued auth operations replayed on reconnect, by outcome.",
		},
		[]string{"outcome"},
	)
)

// Init registers metrics in the default registry. Call once at startup.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		authResolutions, rateLimitTrips, fileRejections,
		auditWriteFailures, auditDropped, retryReplays,
	)
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// AuthResolution records one auth context resolution outcome.
func AuthResolution(outcome string) { authResolutions.WithLabelValues(outcome).Inc() }

// RateLimitTrip records a denied request for the given route.
func RateLimitTrip(route string) { rateLimitTrips.WithLabelValues(route).Inc() }

// FileRejection records an upload rejected for the given reason.
func FileRejection(reason string) { fileRejections.WithLabelValues(reason).Inc() }

// AuditWriteFailure records a failed audit persistence attempt.
func AuditWriteFailure() { auditWriteFailures.Inc() }

// AuditDropped records an audit entry dropped due to backpressure.
func AuditDropped() { auditDropped.Inc() }

// RetryReplay records a replayed queued operation ("ok", "failed" or "dropped").
func RetryReplay(outcome string) { retryReplays.WithLabelValues(outcome).Inc() }

// Instrument wraps a handler with request counting and latency measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for metric labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
