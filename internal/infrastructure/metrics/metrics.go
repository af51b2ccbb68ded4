package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Runs
	RunsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "graphgen_runs_started_total",
			Help: "Total number of pipeline runs started",
		},
	)
	RunStatusChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphgen_run_status_changes_total",
			Help: "Number of run status transitions",
		},
		[]string{"to"},
	)
	ActiveRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "graphgen_runs_active",
			Help: "Current number of runs in progress",
		},
	)
	RunDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graphgen_run_duration_seconds",
			Help:    "Histogram of run durations in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 9), // 1s..256s
		},
	)

	// Validation
	ValidationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphgen_validation_runs_total",
			Help: "Number of script validation runs by result",
		},
		[]string{"result"}, // result: pass|fail
	)

	// Execution
	Executions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphgen_executions_total",
			Help: "Script executions by executor and result",
		},
		[]string{"executor", "result"}, // executor: process|remote, result: success|error|timeout
	)
	ExecutionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphgen_execution_duration_seconds",
			Help:    "Duration of script executions",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"executor"},
	)

	// LLM
	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphgen_llm_requests_total",
			Help: "Number of LLM requests by model",
		},
		[]string{"model"},
	)

	// Storage
	StoreOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphgen_store_ops_total",
			Help: "Run store operations performed",
		},
		[]string{"store", "op"}, // op: get|put|delete|list
	)

	// HTTP
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphgen_http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphgen_http_requests_total",
			Help: "Total number of HTTP requests processed.",
		},
		[]string{"method", "path"},
	)
	HTTPErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphgen_http_errors_total",
			Help: "Total number of HTTP request errors.",
		},
		[]string{"method", "path", "status"},
	)

	// Errors
	Errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphgen_errors_total",
			Help: "Errors encountered in components",
		},
		[]string{"component", "type"},
	)
)

func init() {
	prometheus.MustRegister(
		// Runs
		RunsStarted,
		RunStatusChanges,
		ActiveRuns,
		RunDurationSeconds,

		ValidationRuns,
		Executions,
		ExecutionDurationSeconds,
		LLMRequests,
		StoreOps,

		// HTTP
		HTTPRequestDuration,
		HTTPRequests,
		HTTPErrors,

		Errors,
	)
}

// StartMetricsServer blocks serving /metrics on addr.
func StartMetricsServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}

// Runs
func IncRunsStarted() {
	RunsStarted.Inc()
	ActiveRuns.Inc()
}

func IncRunStatusChange(to string) {
	RunStatusChanges.WithLabelValues(to).Inc()
}

func ObserveRunFinished(d time.Duration) {
	ActiveRuns.Dec()
	RunDurationSeconds.Observe(d.Seconds())
}

func IncValidationRun(result string) {
	ValidationRuns.WithLabelValues(result).Inc()
}

func ObserveExecution(executor, result string, d time.Duration) {
	Executions.WithLabelValues(executor, result).Inc()
	ExecutionDurationSeconds.WithLabelValues(executor).Observe(d.Seconds())
}

// LLM
func IncLLMRequest(model string) {
	LLMRequests.WithLabelValues(model).Inc()
}

func IncStoreOp(store, op string) {
	StoreOps.WithLabelValues(store, op).Inc()
}

// HTTP
func ObserveHTTPRequest(method, path, status string, d time.Duration) {
	HTTPRequests.WithLabelValues(method, path).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}

func IncHTTPError(method, path, status string) {
	HTTPErrors.WithLabelValues(method, path, status).Inc()
}

// Errors
func IncError(component, typ string) {
	Errors.WithLabelValues(component, typ).Inc()
}
