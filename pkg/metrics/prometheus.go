package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
	nsPerMillisecond       = 1e6
)

// Manager manages all Prometheus metrics for the posture service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Frame pipeline
	framesReceived    prometheus.Counter
	framesSkipped     *prometheus.CounterVec
	framesDropped     prometheus.Counter
	evaluationLatency prometheus.Histogram
	smoothedScore     prometheus.Histogram

	// Speech
	speechEmitted    prometheus.Counter
	speechSuppressed prometheus.Counter

	// Sessions
	sessionsStarted   *prometheus.CounterVec
	sessionsStopped   *prometheus.CounterVec
	sessionsPersisted prometheus.Counter
	sessionsFailed    prometheus.Counter
	sessionDuration   prometheus.Histogram
	activeSessions    prometheus.Gauge
	acquisitionErrors prometheus.Counter

	// Frame queue
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge

	// History store
	historyLatency *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "posture",
		subsystem:        "practice",
		histogramBuckets: prometheus.DefBuckets,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.framesReceived = auto.NewCounter(m.counterOpts("frames_received_total",
		"Total number of landmark frames accepted from the provider"))
	m.framesSkipped = auto.NewCounterVec(m.counterOpts("frames_skipped_total",
		"Frames skipped before evaluation by reason"), []string{"reason"})
	m.framesDropped = auto.NewCounter(m.counterOpts("frames_dropped_total",
		"Frames dropped because the frame queue was full"))
	m.evaluationLatency = auto.NewHistogram(m.histogramOpts("evaluation_latency_milliseconds",
		"Latency of one frame through evaluate, smooth and feedback", m.histogramBuckets))
	m.smoothedScore = auto.NewHistogram(m.histogramOpts("smoothed_score",
		"Distribution of displayed smoothed scores", prometheus.LinearBuckets(0, 10, 11)))

	m.speechEmitted = auto.NewCounter(m.counterOpts("speech_emitted_total",
		"Corrective utterances sent to the speech channel"))
	m.speechSuppressed = auto.NewCounter(m.counterOpts("speech_suppressed_total",
		"Low-score feedback suppressed by the cooldown"))

	m.sessionsStarted = auto.NewCounterVec(m.counterOpts("sessions_started_total",
		"Sessions started by pose"), []string{"pose"})
	m.sessionsStopped = auto.NewCounterVec(m.counterOpts("sessions_stopped_total",
		"Sessions stopped by outcome"), []string{"outcome"})
	m.sessionsPersisted = auto.NewCounter(m.counterOpts("sessions_persisted_total",
		"Session records accepted by the history service"))
	m.sessionsFailed = auto.NewCounter(m.counterOpts("sessions_persist_failed_total",
		"Session records the history service rejected or never received"))
	m.sessionDuration = auto.NewHistogram(m.histogramOpts("session_duration_seconds",
		"Duration of stopped sessions in seconds", []float64{5, 15, 30, 60, 120, 300, 600, 1800}))
	m.activeSessions = auto.NewGauge(m.gaugeOpts("active_sessions",
		"Sessions currently running"))
	m.acquisitionErrors = auto.NewCounter(m.counterOpts("acquisition_errors_total",
		"Frame source activation failures"))

	m.queueSize = auto.NewGauge(m.gaugeOpts("frame_queue_size",
		"Frames waiting in frame queues"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("frame_queue_capacity",
		"Capacity of the most recently created frame queue"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("frame_queue_utilization",
		"Fill ratio of the most recently sampled frame queue"))

	m.historyLatency = auto.NewHistogramVec(m.histogramOpts("history_latency_milliseconds",
		"History store operation latency in milliseconds", m.histogramBuckets), []string{"operation"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"Total number of HTTP requests by endpoint and method"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", m.histogramBuckets), []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total",
		"Errors by component and type"), []string{"component", "error_type"})
	m.errorRateByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total",
		"Errors by endpoint, method and type"), []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes",
		"System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count",
		"Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds",
		"GC pause time in milliseconds", []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// sampleSystem updates the system gauges from the Go runtime.
func (m *Manager) sampleSystem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.systemMemoryUsage.Set(float64(ms.Alloc))
	m.systemGoroutineCount.Set(float64(runtime.NumGoroutine()))
	if ms.NumGC > 0 {
		m.systemGCPauseTime.Observe(float64(ms.PauseNs[(ms.NumGC+255)%256]) / nsPerMillisecond)
	}
}

// RunSystemSampler samples system gauges every refresh interval until ctx ends.
func (m *Manager) RunSystemSampler(ctx context.Context) {
	ticker := time.NewTicker(m.refreshInterval)
	defer ticker.Stop()
	m.sampleSystem()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sampleSystem()
		}
	}
}

// Frame pipeline.

// RecordFrameReceived increments the frames received counter.
func RecordFrameReceived() {
	globalManager.framesReceived.Inc()
}

// RecordFrameSkipped counts a frame that was not evaluated.
func RecordFrameSkipped(reason string) {
	globalManager.framesSkipped.WithLabelValues(reason).Inc()
}

// RecordFrameDropped counts a frame rejected by a full queue.
func RecordFrameDropped() {
	globalManager.framesDropped.Inc()
}

// RecordEvaluationLatency records per-frame processing latency in milliseconds.
func RecordEvaluationLatency(latencyMs float64) {
	globalManager.evaluationLatency.Observe(latencyMs)
}

// RecordSmoothedScore records a displayed score.
func RecordSmoothedScore(score int) {
	globalManager.smoothedScore.Observe(float64(score))
}

// Speech.

// RecordSpeechEmitted increments the spoken feedback counter.
func RecordSpeechEmitted() {
	globalManager.speechEmitted.Inc()
}

// RecordSpeechSuppressed increments the suppressed feedback counter.
func RecordSpeechSuppressed() {
	globalManager.speechSuppressed.Inc()
}

// Sessions.

// RecordSessionStarted counts a started session and raises the active gauge.
func RecordSessionStarted(pose string) {
	globalManager.sessionsStarted.WithLabelValues(pose).Inc()
	globalManager.activeSessions.Inc()
}

// RecordSessionStopped counts a stopped session, lowers the active gauge and
// records its duration. Outcome is "saved" or "discarded".
func RecordSessionStopped(outcome string, durationSeconds int) {
	globalManager.sessionsStopped.WithLabelValues(outcome).Inc()
	globalManager.activeSessions.Dec()
	globalManager.sessionDuration.Observe(float64(durationSeconds))
}

// RecordSessionPersisted counts a record accepted by the history service.
func RecordSessionPersisted() {
	globalManager.sessionsPersisted.Inc()
}

// RecordSessionPersistFailed counts a record that could not be saved.
func RecordSessionPersistFailed() {
	globalManager.sessionsFailed.Inc()
}

// RecordAcquisitionError counts a frame source activation failure.
func RecordAcquisitionError() {
	globalManager.acquisitionErrors.Inc()
}

// Frame queue.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// History store.

// RecordHistoryLatency records a history store operation latency.
func RecordHistoryLatency(operation string, latencyMs float64) {
	globalManager.historyLatency.WithLabelValues(operation).Observe(latencyMs)
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System.

// RunSystemSampler samples system gauges on the global manager until ctx ends.
func RunSystemSampler(ctx context.Context) {
	globalManager.RunSystemSampler(ctx)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
