package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	apiRequestsTotal  *prometheus.CounterVec
	apiLatencySeconds *prometheus.HistogramVec
	apiErrorsTotal    *prometheus.CounterVec
	accessDeniedTotal *prometheus.CounterVec

	uploadRequestsTotal *prometheus.CounterVec
	uploadRejectedTotal *prometheus.CounterVec
	uploadLatency       prometheus.Histogram

	pipelineTransitionsTotal *prometheus.CounterVec
	pipelineFailuresTotal    *prometheus.CounterVec
	gradeClampedTotal        prometheus.Counter
	reviewCacheTotal         *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API and the grading pipeline.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradeflow_api_requests_total",
			Help: "Total number of API requests served by caller role.",
		}, []string{"method", "route", "status", "role"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gradeflow_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradeflow_api_errors_total",
			Help: "Error responses returned by the API by pipeline error kind.",
		}, []string{"method", "route", "status", "kind"})

		accessDeniedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradeflow_access_denied_total",
			Help: "Requests refused because the caller role may not perform the action.",
		}, []string{"role", "route"})

		uploadRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradeflow_artifact_uploads_total",
			Help: "Accepted submission artifacts by media type.",
		}, []string{"mime_type"})

		uploadRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradeflow_artifact_rejections_total",
			Help: "Rejected submission artifacts by reason.",
		}, []string{"reason"})

		uploadLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gradeflow_artifact_ingestion_seconds",
			Help:    "Time spent validating and storing submission artifacts.",
			Buckets: prometheus.DefBuckets,
		})

		pipelineTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradeflow_submission_transitions_total",
			Help: "Submission state transitions by target state.",
		}, []string{"state"})

		pipelineFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradeflow_pipeline_failures_total",
			Help: "Pipeline step failures by step and error kind.",
		}, []string{"step", "kind"})

		gradeClampedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gradeflow_ai_grades_clamped_total",
			Help: "AI grades that fell outside the assignment range and were clamped.",
		})

		reviewCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradeflow_review_cache_lookups_total",
			Help: "Review cache lookups by result.",
		}, []string{"result"})

		prometheus.MustRegister(
			apiRequestsTotal, apiLatencySeconds, apiErrorsTotal, accessDeniedTotal,
			uploadRequestsTotal, uploadRejectedTotal, uploadLatency,
			pipelineTransitionsTotal, pipelineFailuresTotal, gradeClampedTotal, reviewCacheTotal,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// AccessDenied counts role checks that refused a request.
func AccessDenied() *prometheus.CounterVec {
	RegisterMetrics()
	return accessDeniedTotal
}

// UploadRequests counts accepted artifacts.
func UploadRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRequestsTotal
}

// UploadRejected counts rejected artifacts.
func UploadRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRejectedTotal
}

// UploadLatency observes artifact ingestion time.
func UploadLatency() prometheus.Histogram {
	RegisterMetrics()
	return uploadLatency
}

// SubmissionTransitions counts state changes.
func SubmissionTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return pipelineTransitionsTotal
}

// PipelineFailures counts failed pipeline steps.
func PipelineFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return pipelineFailuresTotal
}

// GradesClamped counts clamped AI grades.
func GradesClamped() prometheus.Counter {
	RegisterMetrics()
	return gradeClampedTotal
}

// ReviewCacheLookups counts review cache hits and misses.
func ReviewCacheLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return reviewCacheTotal
}
