package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RequestOutcome classifies how an image request terminated.
type RequestOutcome string

const (
	// OutcomeDerivative indicates transformed bytes were served.
	OutcomeDerivative RequestOutcome = "derivative"
	// OutcomePassThrough indicates the original file was streamed untouched.
	OutcomePassThrough RequestOutcome = "passthrough"
	// OutcomeFallback indicates the transform failed and the original was served instead.
	OutcomeFallback RequestOutcome = "fallback"
	// OutcomeNotFound indicates the source asset does not exist.
	OutcomeNotFound RequestOutcome = "not_found"
	// OutcomeError indicates a caller-visible processing failure.
	OutcomeError RequestOutcome = "error"
)

// CacheStatus labels whether the derivative cache answered the request.
type CacheStatus string

const (
	// CacheHit indicates the derivative was served from cache.
	CacheHit CacheStatus = "hit"
	// CacheMiss indicates the derivative had to be computed.
	CacheMiss CacheStatus = "miss"
	// CacheNone indicates the cache was never consulted (pass-through, 404).
	CacheNone CacheStatus = "none"
)

// CacheOperation identifies the derivative cache method being instrumented.
type CacheOperation string

const (
	// CacheOperationGet records derivative cache lookups.
	CacheOperationGet CacheOperation = "get"
	// CacheOperationPut records derivative cache insertions.
	CacheOperationPut CacheOperation = "put"
	// CacheOperationClear records administrative cache clears.
	CacheOperationClear CacheOperation = "clear"
)

// TransformResult captures the outcome of a pipeline invocation.
type TransformResult string

const (
	// TransformOK indicates the pipeline produced an encoded derivative.
	TransformOK TransformResult = "ok"
	// TransformFailed indicates the pipeline errored and fallback was attempted.
	TransformFailed TransformResult = "failed"
)

// Recorder publishes Prometheus metrics for image-serving activity.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	imageRequests  *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec

	cacheOperations *prometheus.CounterVec

	transforms       *prometheus.CounterVec
	transformLatency *prometheus.HistogramVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a dedicated
// registry is created so multiple recorders can coexist without conflicting with
// the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	imageRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imageserve",
		Subsystem: "images",
		Name:      "requests_total",
		Help:      "Total image requests processed, by outcome and cache status.",
	}, []string{"outcome", "cache"})

	requestLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "imageserve",
		Subsystem: "images",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for completed image requests.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"outcome"})

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imageserve",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Derivative cache operations executed by the image handler.",
	}, []string{"operation", "result"})

	transforms := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imageserve",
		Subsystem: "transform",
		Name:      "operations_total",
		Help:      "Transform pipeline invocations, by target format and result.",
	}, []string{"format", "result"})

	transformLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "imageserve",
		Subsystem: "transform",
		Name:      "duration_seconds",
		Help:      "Latency distribution for transform pipeline invocations.",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"format"})

	reg.MustRegister(imageRequests, requestLatency, cacheOperations, transforms, transformLatency)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return &Recorder{
		gatherer:         reg,
		handler:          handler,
		imageRequests:    imageRequests,
		requestLatency:   requestLatency,
		cacheOperations:  cacheOperations,
		transforms:       transforms,
		transformLatency: transformLatency,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and advanced
// integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveRequest records the outcome and latency for a completed image request.
func (r *Recorder) ObserveRequest(outcome RequestOutcome, cache CacheStatus, duration time.Duration) {
	if r == nil {
		return
	}
	outcomeLabel := normalizeLabel(string(outcome))
	cacheLabel := string(cache)
	if cacheLabel == "" {
		cacheLabel = string(CacheNone)
	}
	r.imageRequests.WithLabelValues(outcomeLabel, cacheLabel).Inc()
	r.requestLatency.WithLabelValues(outcomeLabel).Observe(duration.Seconds())
}

// ObserveCacheOperation records a derivative cache get, put, or clear.
func (r *Recorder) ObserveCacheOperation(op CacheOperation, result string) {
	if r == nil {
		return
	}
	opLabel := string(op)
	if opLabel == "" {
		opLabel = string(CacheOperationGet)
	}
	r.cacheOperations.WithLabelValues(opLabel, normalizeLabel(result)).Inc()
}

// ObserveTransform records a pipeline invocation for the given target format.
func (r *Recorder) ObserveTransform(format string, result TransformResult, duration time.Duration) {
	if r == nil {
		return
	}
	formatLabel := normalizeLabel(format)
	r.transforms.WithLabelValues(formatLabel, string(result)).Inc()
	r.transformLatency.WithLabelValues(formatLabel).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
