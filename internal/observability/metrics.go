package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// UploadsTotal counts spreadsheet uploads
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gosurv_uploads_total",
			Help: "Total number of spreadsheet uploads",
		},
		[]string{"file_type", "result"}, // result: loaded, parse_error
	)

	// UploadRows records the number of data rows per loaded upload
	UploadRows = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gosurv_upload_rows",
			Help:    "Number of data rows in loaded uploads",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8), // 10 to ~160k
		},
	)

	// FitsTotal counts survival pipeline runs by outcome
	FitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gosurv_fits_total",
			Help: "Total number of survival pipeline runs",
		},
		[]string{"status", "code"}, // status: prompt, fitted, failed
	)

	// FitDuration measures prepare + fit time in seconds
	FitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gosurv_fit_duration_seconds",
			Help:    "Survival pipeline duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
		[]string{"status"},
	)

	// CoxIterations records Newton-Raphson iterations of successful Cox fits
	CoxIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gosurv_cox_iterations",
			Help:    "Newton-Raphson iterations per Cox fit",
			Buckets: prometheus.LinearBuckets(1, 2, 10),
		},
	)

	// ChartsTotal counts chart requests by kind and result
	ChartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gosurv_charts_total",
			Help: "Total number of chart requests",
		},
		[]string{"kind", "result"}, // result: rendered, invalid
	)

	// ActiveSessions tracks the number of live sessions
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gosurv_active_sessions",
			Help: "Number of live sessions",
		},
	)

	// HTTPRequests counts HTTP requests by route
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gosurv_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPDuration measures HTTP handler latency
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gosurv_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "route"},
	)

	// ErrorsTotal counts surfaced errors by code
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gosurv_errors_total",
			Help: "Total number of errors returned to users",
		},
		[]string{"component", "code"},
	)
)

// RecordUpload records an upload attempt
func RecordUpload(fileType, result string, rows int) {
	UploadsTotal.WithLabelValues(fileType, result).Inc()
	if result == "loaded" {
		UploadRows.Observe(float64(rows))
	}
}

// RecordFit records a pipeline run
func RecordFit(status, code string, duration time.Duration) {
	FitsTotal.WithLabelValues(status, code).Inc()
	FitDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordCoxIterations records the iteration count of a converged fit
func RecordCoxIterations(n int) {
	CoxIterations.Observe(float64(n))
}

// RecordChart records a chart request
func RecordChart(kind, result string) {
	ChartsTotal.WithLabelValues(kind, result).Inc()
}

// RecordHTTPRequest records a served request
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordError records an error
func RecordError(component, code string) {
	ErrorsTotal.WithLabelValues(component, code).Inc()
}

// Handler returns the Prometheus scrape handler
func Handler() http.Handler {
	return promhttp.Handler()
}
