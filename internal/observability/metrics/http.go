package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServerMetrics carries every metric the api service exports: HTTP
// request accounting, retrieval pipeline measurements, answer outcomes and
// model token usage. It implements ports.PipelineObserver.
type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	cacheLookupsTotal      *prometheus.CounterVec
	retrievalStageResults  *prometheus.HistogramVec
	retrievalQuality       prometheus.Histogram
	retrievalFallbackTotal *prometheus.CounterVec
	routeDecisionsTotal    *prometheus.CounterVec
	routeComplexity        prometheus.Histogram

	answersTotal   *prometheus.CounterVec
	answerPassages prometheus.Histogram
	askDuration    *prometheus.HistogramVec

	llmTokensTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()
	serviceLabel := prometheus.Labels{"service": service}

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "customs",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "customs",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "customs",
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: serviceLabel,
		},
	)
	cacheLookupsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "customs",
			Subsystem:   "pipeline",
			Name:        "cache_lookups_total",
			Help:        "Query classification cache lookups by result.",
			ConstLabels: serviceLabel,
		},
		[]string{"result"},
	)
	retrievalStageResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "customs",
			Subsystem:   "pipeline",
			Name:        "retrieval_stage_results",
			Help:        "Distribution of candidate passages produced per retrieval stage.",
			Buckets:     []float64{0, 1, 2, 3, 5, 8, 13, 21},
			ConstLabels: serviceLabel,
		},
		[]string{"stage"},
	)
	retrievalQuality := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "customs",
			Subsystem:   "pipeline",
			Name:        "retrieval_quality_score",
			Help:        "Distribution of retrieval quality scores.",
			Buckets:     prometheus.LinearBuckets(0.1, 0.1, 9),
			ConstLabels: serviceLabel,
		},
	)
	retrievalFallbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "customs",
			Subsystem:   "pipeline",
			Name:        "retrieval_fallback_total",
			Help:        "Filter relaxation fallback attempts by outcome.",
			ConstLabels: serviceLabel,
		},
		[]string{"outcome"},
	)
	routeDecisionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "customs",
			Subsystem:   "routing",
			Name:        "decisions_total",
			Help:        "Routing decisions by specialist and decision source.",
			ConstLabels: serviceLabel,
		},
		[]string{"specialist", "source"},
	)
	routeComplexity := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "customs",
			Subsystem:   "routing",
			Name:        "complexity_score",
			Help:        "Distribution of routed query complexity scores.",
			Buckets:     prometheus.LinearBuckets(0.1, 0.1, 9),
			ConstLabels: serviceLabel,
		},
	)
	answersTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "customs",
			Subsystem:   "answers",
			Name:        "total",
			Help:        "Completed answers by outcome.",
			ConstLabels: serviceLabel,
		},
		[]string{"outcome"},
	)
	answerPassages := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "customs",
			Subsystem:   "answers",
			Name:        "grounding_passages",
			Help:        "Distribution of grounding passages per answer.",
			Buckets:     []float64{0, 1, 2, 3, 5, 8, 13, 21},
			ConstLabels: serviceLabel,
		},
	)
	askDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "customs",
			Subsystem:   "answers",
			Name:        "duration_seconds",
			Help:        "End-to-end ask pipeline duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: serviceLabel,
		},
		[]string{"endpoint"},
	)
	llmTokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "customs",
			Subsystem:   "llm",
			Name:        "tokens_total",
			Help:        "Model token usage by operation and direction.",
			ConstLabels: serviceLabel,
		},
		[]string{"operation", "direction", "model"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		cacheLookupsTotal,
		retrievalStageResults,
		retrievalQuality,
		retrievalFallbackTotal,
		routeDecisionsTotal,
		routeComplexity,
		answersTotal,
		answerPassages,
		askDuration,
		llmTokensTotal,
	)

	return &HTTPServerMetrics{
		registry:               registry,
		service:                service,
		requestTotal:           requestTotal,
		requestDuration:        requestDuration,
		requestInFlight:        requestInFlight,
		cacheLookupsTotal:      cacheLookupsTotal,
		retrievalStageResults:  retrievalStageResults,
		retrievalQuality:       retrievalQuality,
		retrievalFallbackTotal: retrievalFallbackTotal,
		routeDecisionsTotal:    routeDecisionsTotal,
		routeComplexity:        routeComplexity,
		answersTotal:           answersTotal,
		answerPassages:         answerPassages,
		askDuration:            askDuration,
		llmTokensTotal:         llmTokensTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/v1/sessions/") {
		return path
	}
	switch {
	case strings.HasSuffix(path, "/history"):
		return "/v1/sessions/{session_id}/history"
	case strings.HasSuffix(path, "/routing"):
		return "/v1/sessions/{session_id}/routing"
	default:
		return "/v1/sessions/{session_id}"
	}
}

func (m *HTTPServerMetrics) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookupsTotal.WithLabelValues(result).Inc()
}

func (m *HTTPServerMetrics) RetrievalStage(stage string, results int) {
	if stage == "" {
		stage = "unknown"
	}
	m.retrievalStageResults.WithLabelValues(stage).Observe(float64(results))
}

func (m *HTTPServerMetrics) RetrievalQuality(score float64) {
	m.retrievalQuality.Observe(score)
}

func (m *HTTPServerMetrics) RetrievalFallback(adopted bool) {
	outcome := "kept_original"
	if adopted {
		outcome = "adopted"
	}
	m.retrievalFallbackTotal.WithLabelValues(outcome).Inc()
}

func (m *HTTPServerMetrics) RouteDecided(specialist, source string, complexity float64) {
	if specialist == "" {
		specialist = "unknown"
	}
	if source == "" {
		source = "unknown"
	}
	m.routeDecisionsTotal.WithLabelValues(specialist, source).Inc()
	m.routeComplexity.Observe(complexity)
}

// RecordAnswer counts one completed answer. Outcome is "grounded" for full
// answers or the degraded reason string.
func (m *HTTPServerMetrics) RecordAnswer(outcome string, passages int, duration time.Duration) {
	if outcome == "" {
		outcome = "grounded"
	}
	m.answersTotal.WithLabelValues(outcome).Inc()
	m.answerPassages.Observe(float64(passages))
	m.askDuration.WithLabelValues("/v1/ask").Observe(duration.Seconds())
}

// RecordTokenUsage matches the llm client usage hook signature.
func (m *HTTPServerMetrics) RecordTokenUsage(operation, model string, promptTokens, completionTokens int) {
	if model == "" {
		model = "unknown"
	}
	if promptTokens > 0 {
		m.llmTokensTotal.WithLabelValues(operation, "in", model).Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.llmTokensTotal.WithLabelValues(operation, "out", model).Add(float64(completionTokens))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
