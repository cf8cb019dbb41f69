package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	unmatched   = "unmatched"
	routeEvents = "/v1/executions/{id}/events"
)

// Caller classes used as the role label.
const (
	callerAdmin     = "admin"
	callerUser      = "user"
	callerAnonymous = "anonymous"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multidb_http_requests_total",
			Help: "HTTP requests by route, status class and caller role.",
		},
		[]string{"method", "path", "status_class", "role"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "multidb_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds. Event streams are excluded.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	eventStreamsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "multidb_event_streams_open",
		Help: "Progress event streams currently attached.",
	})

	scriptsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multidb_scripts_rejected_total",
			Help: "Scripts rejected before execution, by endpoint.",
		},
		[]string{"endpoint"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, eventStreamsOpen, scriptsRejectedTotal)
}

// metricsMiddleware counts every request by chi route pattern, never the raw
// path, so execution ids do not become label values. Event streams live as
// long as the execution and would swamp the latency histogram.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		path := routePattern(r)
		httpRequestsTotal.WithLabelValues(r.Method, path, statusClass(status), callerRole(r)).Inc()
		if path != routeEvents {
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		}
	})
}

// routePattern extracts the matched chi route pattern, falling back to "unmatched".
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return unmatched
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func callerRole(r *http.Request) string {
	switch {
	case isAdmin(r):
		return callerAdmin
	case r.Header.Get(headerUserID) == "":
		return callerAnonymous
	default:
		return callerUser
	}
}

// metricsHandler returns the Prometheus metrics handler.
func metricsHandler() http.Handler {
	return promhttp.Handler()
}
