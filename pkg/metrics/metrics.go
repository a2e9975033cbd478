// Package metrics holds the Prometheus collectors for the verification
// service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CodesIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "verify",
		Name:      "codes_issued_total",
		Help:      "Verification codes issued, by action (sent or resent).",
	}, []string{"action"})

	VerifyAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "verify",
		Name:      "verify_attempts_total",
		Help:      "Verification attempts, by outcome.",
	}, []string{"outcome"})

	RateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "verify",
		Name:      "rate_limited_total",
		Help:      "Code requests rejected by the send limit.",
	})

	NotificationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "verify",
		Name:      "notification_failures_total",
		Help:      "Notifications that could not be delivered, by kind.",
	}, []string{"kind"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "verify",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})
)

// Register adds all collectors to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		CodesIssued,
		VerifyAttempts,
		RateLimited,
		NotificationFailures,
		HTTPRequestDuration,
	)
}

// Handler serves the metrics gathered by reg.
func Handler(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Middleware records request latency labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestDuration.WithLabelValues(r.Method, path, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}
