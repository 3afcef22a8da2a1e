package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Common metrics for the CMS service
var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	// Webhook store metrics
	WebhookOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_operations_total",
			Help: "Total number of webhook store operations",
		},
		[]string{"operation", "status"},
	)

	WebhookOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_operation_duration_seconds",
			Help:    "Webhook store operation duration in seconds, scope included",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation"},
	)

	// Database metrics
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation"},
	)

	DatabaseSlowQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_slow_queries_total",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"operation"},
	)

	DatabaseErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_errors_total",
			Help: "Total number of failed database statements",
		},
		[]string{"operation"},
	)

	// Event bus metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total number of events published",
		},
		[]string{"event_type", "status"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	// Login metrics
	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "login_attempts_total",
			Help: "Total number of login form submissions by form and outcome",
		},
		[]string{"form", "outcome"},
	)

	LoginViewsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "login_views_resolved_total",
			Help: "Total number of login navigations by resolved view",
		},
		[]string{"view"},
	)

	// Health check metrics
	HealthCheckStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "health_check_status",
			Help: "Latest health check result (1 success, 0 warning, -1 error)",
		},
		[]string{"check", "group"},
	)
)

// RecordHTTPRequest records an HTTP request metric
func RecordHTTPRequest(service, method, path, status string) {
	HTTPRequestsTotal.WithLabelValues(service, method, path, status).Inc()
}

// RecordHTTPDuration records HTTP request duration
func RecordHTTPDuration(service, method, path string, duration float64) {
	HTTPRequestDuration.WithLabelValues(service, method, path).Observe(duration)
}

// RecordWebhookOperation records the outcome and latency of a webhook store call
func RecordWebhookOperation(operation string, err error, duration float64) {
	status := "success"
	if err != nil {
		status = "error"
	}
	WebhookOperationsTotal.WithLabelValues(operation, status).Inc()
	WebhookOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordEventPublished records a publish attempt on the event bus
func RecordEventPublished(eventType string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	EventsPublished.WithLabelValues(eventType, status).Inc()
}

// RecordCacheLookup records a hit or a miss for the named cache
func RecordCacheLookup(cache string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(cache).Inc()
		return
	}
	CacheMisses.WithLabelValues(cache).Inc()
}

func RecordLoginAttempt(form, outcome string) {
	LoginAttemptsTotal.WithLabelValues(form, outcome).Inc()
}

func RecordLoginView(view string) {
	LoginViewsResolved.WithLabelValues(view).Inc()
}

// RecordHealthCheck stores the latest status value of a health check
func RecordHealthCheck(check, group string, value float64) {
	HealthCheckStatus.WithLabelValues(check, group).Set(value)
}
