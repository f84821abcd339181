package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ctxKey string

const routeLabelKey ctxKey = "metrics_route"

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calsync_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route"})

	httpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calsync_http_errors_total",
		Help: "Total number of HTTP requests resulting in server errors.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "calsync_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	dbLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "calsync_db_latency_seconds",
		Help:    "Histogram of database operation latencies.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "route"})

	syncJobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calsync_sync_jobs_enqueued_total",
		Help: "Total number of sync jobs accepted onto the queue.",
	}, []string{"source"})

	syncJobsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "calsync_sync_jobs_dropped_total",
		Help: "Total number of sync jobs dropped because the queue was full.",
	})

	syncJobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "calsync_sync_job_duration_seconds",
		Help:    "Histogram of sync job execution times.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	syncQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "calsync_sync_queue_depth",
		Help: "Number of sync jobs currently waiting on the queue.",
	})
)

// Middleware records request metrics and enriches the context with labels for downstream instrumentation.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := routePattern(r)
			ctx := context.WithValue(r.Context(), routeLabelKey, route)

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			method := r.Method
			duration := time.Since(start).Seconds()
			statusCode := strconv.Itoa(status)

			httpRequestsTotal.WithLabelValues(method, route).Inc()
			httpRequestDuration.WithLabelValues(method, route, statusCode).Observe(duration)
			if status >= http.StatusInternalServerError {
				httpErrorsTotal.WithLabelValues(method, route, statusCode).Inc()
			}
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDBLatency records database latency for a given operation, associating it with request labels when available.
func ObserveDBLatency(ctx context.Context, operation string, start time.Time) {
	route := routeFromContext(ctx)
	dbLatency.WithLabelValues(operation, route).Observe(time.Since(start).Seconds())
}

// SyncJobEnqueued counts a job accepted onto the queue. Source is "webhook" or "manual".
func SyncJobEnqueued(source string) {
	syncJobsEnqueued.WithLabelValues(source).Inc()
}

// SyncJobDropped counts a job rejected because the queue was full.
func SyncJobDropped() {
	syncJobsDropped.Inc()
}

// ObserveSyncJob records the execution time of one sync job.
func ObserveSyncJob(outcome string, start time.Time) {
	syncJobDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// SetSyncQueueDepth publishes the current queue backlog.
func SetSyncQueueDepth(depth int) {
	syncQueueDepth.Set(float64(depth))
}

func routeFromContext(ctx context.Context) string {
	if route, ok := ctx.Value(routeLabelKey).(string); ok && route != "" {
		return route
	}
	return "unknown"
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
