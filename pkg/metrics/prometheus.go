// Package metrics provides Prometheus metrics for the moodcam pipeline.
package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Capture states reported by UpdateCaptureState.
const (
	CaptureStateStopped = iota
	CaptureStateRunning
	CaptureStateRecovering
	CaptureStateFailed
)

var (
	latencyBucketsMs = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}
	distanceBuckets  = []float64{0.05, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.8, 1, 1.5, 2}
	moodScoreBuckets = []float64{-100, -75, -50, -25, 0, 25, 50, 75, 100}
)

// Manager manages all Prometheus metrics for moodcam.
type Manager struct {
	namespace       string
	subsystem       string
	latencyBuckets  []float64
	distanceBuckets []float64
	scoreBuckets    []float64
	registry        prometheus.Registerer

	// Capture
	framesCaptured  prometheus.Counter
	framesDiscarded *prometheus.CounterVec
	captureErrors   prometheus.Counter
	captureReopens  prometheus.Counter
	captureState    prometheus.Gauge

	// Analysis
	analysisCycles   *prometheus.CounterVec
	analysisDuration prometheus.Histogram
	facesDetected    prometheus.Counter
	regionFailures   *prometheus.CounterVec
	matches          *prometheus.CounterVec
	matchDistance    prometheus.Histogram
	moodScores       prometheus.Histogram

	// Inference
	inferenceLatency *prometheus.HistogramVec
	inferenceErrors  *prometheus.CounterVec

	// Gallery
	galleryIdentities prometheus.Gauge
	galleryLoadErrors prometheus.Counter
	galleryRefreshes  prometheus.Counter

	// History
	historySamples    *prometheus.CounterVec
	historyEvicted    *prometheus.CounterVec
	historyIdentities prometheus.Gauge

	// Tracking
	activeTracks prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec
	errorRateByComp     *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:       "moodcam",
		subsystem:       "pipeline",
		latencyBuckets:  latencyBucketsMs,
		distanceBuckets: distanceBuckets,
		scoreBuckets:    moodScoreBuckets,
		registry:        prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for all metric definitions
	m.framesCaptured = m.counter("frames_captured_total", "Frames read from the capture source")
	m.framesDiscarded = m.counterVec("frames_discarded_total",
		"Mailbox values overwritten before being read", "mailbox")
	m.captureErrors = m.counter("capture_errors_total", "Failed capture reads")
	m.captureReopens = m.counter("capture_reopens_total", "Capture source reopen attempts")
	m.captureState = m.gauge("capture_state",
		"Capture loop state: 0 stopped, 1 running, 2 recovering, 3 persistent failure")

	m.analysisCycles = m.counterVec("analysis_cycles_total",
		"Analysis cycles by outcome", "outcome")
	m.analysisDuration = m.histogram("analysis_cycle_duration_milliseconds",
		"Duration of one analysis cycle in milliseconds", m.latencyBuckets)
	m.facesDetected = m.counter("faces_detected_total", "Face regions returned by the detector")
	m.regionFailures = m.counterVec("region_failures_total",
		"Face regions skipped during classification, by reason", "reason")
	m.matches = m.counterVec("identity_matches_total",
		"Gallery match results", "result")
	m.matchDistance = m.histogram("identity_match_distance",
		"Distance to the nearest gallery identity",
		m.distanceBuckets)
	m.moodScores = m.histogram("mood_score",
		"Distribution of computed mood scores",
		m.scoreBuckets)

	m.inferenceLatency = m.histogramVec("inference_latency_milliseconds",
		"Inference backend latency in milliseconds, by operation", m.latencyBuckets, "op")
	m.inferenceErrors = m.counterVec("inference_errors_total",
		"Inference backend errors, by operation", "op")

	m.galleryIdentities = m.gauge("gallery_identities", "Identities currently enrolled")
	m.galleryLoadErrors = m.counter("gallery_load_errors_total", "Gallery images skipped during load")
	m.galleryRefreshes = m.counter("gallery_refreshes_total", "Gallery reloads")

	m.historySamples = m.counterVec("history_samples_total",
		"Samples appended to the history store, by signal", "signal")
	m.historyEvicted = m.counterVec("history_evicted_total",
		"Samples evicted from the history store, by signal", "signal")
	m.historyIdentities = m.gauge("history_identities", "Keys with retained history")

	m.activeTracks = m.gauge("active_tracks", "Live transient tracks for unknown faces")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", m.latencyBuckets, "endpoint", "method", "status_code")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total",
		"HTTP errors by endpoint, method and error type", "endpoint", "method", "error_type")
	m.errorRateByComp = m.counterVec("errors_by_component_total",
		"Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Capture metrics.

// RecordFrameCaptured increments the captured frames counter.
func RecordFrameCaptured() {
	globalManager.framesCaptured.Inc()
}

// RecordMailboxOverwrite counts a value replaced before any reader took it.
func RecordMailboxOverwrite(mailbox string) {
	globalManager.framesDiscarded.WithLabelValues(mailbox).Inc()
}

// RecordCaptureError increments the capture error counter.
func RecordCaptureError() {
	globalManager.captureErrors.Inc()
}

// RecordCaptureReopen increments the reopen counter.
func RecordCaptureReopen() {
	globalManager.captureReopens.Inc()
}

// UpdateCaptureState sets the capture loop state gauge.
func UpdateCaptureState(state int) {
	globalManager.captureState.Set(float64(state))
}

// Analysis metrics.

// RecordAnalysisCycle counts a finished cycle and its duration.
func RecordAnalysisCycle(outcome string, durationMs float64) {
	globalManager.analysisCycles.WithLabelValues(outcome).Inc()
	globalManager.analysisDuration.Observe(durationMs)
}

// RecordFacesDetected adds n detected regions.
func RecordFacesDetected(n int) {
	globalManager.facesDetected.Add(float64(n))
}

// RecordRegionFailure counts a skipped region.
func RecordRegionFailure(reason string) {
	globalManager.regionFailures.WithLabelValues(reason).Inc()
}

// RecordMatch records a gallery match result. distance is ignored when infinite.
func RecordMatch(known bool, distance float64) {
	result := "unknown"
	if known {
		result = "known"
	}
	globalManager.matches.WithLabelValues(result).Inc()
	if distance < 1e9 {
		globalManager.matchDistance.Observe(distance)
	}
}

// RecordMoodScore observes a computed mood score.
func RecordMoodScore(score float64) {
	globalManager.moodScores.Observe(score)
}

// Inference metrics.

// RecordInferenceLatency records latency of one backend call.
func RecordInferenceLatency(op string, latencyMs float64) {
	globalManager.inferenceLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordInferenceError counts a failed backend call.
func RecordInferenceError(op string) {
	globalManager.inferenceErrors.WithLabelValues(op).Inc()
}

// Gallery metrics.

// UpdateGalleryIdentities sets the enrolled identity count.
func UpdateGalleryIdentities(count int) {
	globalManager.galleryIdentities.Set(float64(count))
}

// RecordGalleryLoadErrors adds n skipped gallery images.
func RecordGalleryLoadErrors(n int) {
	globalManager.galleryLoadErrors.Add(float64(n))
}

// RecordGalleryRefresh counts a gallery reload.
func RecordGalleryRefresh() {
	globalManager.galleryRefreshes.Inc()
}

// History metrics.

// RecordHistorySamples adds n appended samples for signal.
func RecordHistorySamples(signal string, n int) {
	globalManager.historySamples.WithLabelValues(signal).Add(float64(n))
}

// RecordHistoryEvicted adds n evicted samples for signal.
func RecordHistoryEvicted(signal string, n int) {
	if n > 0 {
		globalManager.historyEvicted.WithLabelValues(signal).Add(float64(n))
	}
}

// UpdateHistoryIdentities sets the number of keys with retained history.
func UpdateHistoryIdentities(count int) {
	globalManager.historyIdentities.Set(float64(count))
}

// UpdateActiveTracks sets the live transient track count.
func UpdateActiveTracks(count int) {
	globalManager.activeTracks.Set(float64(count))
}

// HTTP metrics.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComp.WithLabelValues(component, errorType).Inc()
}

// System metrics.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// CollectSystemMetrics samples runtime statistics once.
func CollectSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	UpdateSystemMemoryUsage(m.Alloc)
	UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		RecordSystemGCPauseTime(float64(m.PauseTotalNs) / float64(m.NumGC) / float64(time.Millisecond))
	}
}

// RunSystemCollector samples runtime statistics every interval until ctx is done.
func RunSystemCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			CollectSystemMetrics()
		}
	}
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
