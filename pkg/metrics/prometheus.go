// Package metrics provides Prometheus metrics for the nocaptcha telemetry service.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the nocaptcha service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          atomic.Bool
	refreshInterval  atomic.Int64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Capture Metrics
	captureEvents  *prometheus.CounterVec
	captureEvicted *prometheus.CounterVec
	activeSessions prometheus.Gauge
	wsConnections  prometheus.Gauge

	// Extraction Metrics
	extractionLatency prometheus.Histogram
	undefinedFeatures *prometheus.CounterVec

	// Aggregation and lookup Metrics
	lookupFailures *prometheus.CounterVec
	lookupLatency  *prometheus.HistogramVec

	// Transport Metrics
	transportSubmissions *prometheus.CounterVec
	transportLatency     prometheus.Histogram

	// Collector Metrics
	payloadsReceived  prometheus.Counter
	payloadsDuplicate prometheus.Counter
	payloadsStored    prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Repository Metrics
	repositoryRecordsTotal  prometheus.Gauge
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram

	// Queue Metrics
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker Metrics
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "nocaptcha",
		subsystem:        "telemetry",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}
	m.enabled.Store(true)
	m.refreshInterval.Store(int64(defaultRefreshInterval))

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Capture Metrics
	m.captureEvents = m.counterVec("capture_events_total",
		"Total number of interaction events captured by modality", "modality")
	m.captureEvicted = m.counterVec("capture_evicted_total",
		"Total number of samples evicted from bounded capture buffers", "modality")
	m.activeSessions = m.gauge("capture_active_sessions",
		"Number of mounted capture sessions")
	m.wsConnections = m.gauge("capture_ws_connections",
		"Number of open websocket capture streams")

	// Extraction Metrics
	m.extractionLatency = m.histogram("extraction_latency_milliseconds",
		"Feature extraction latency in milliseconds", m.histogramBuckets)
	m.undefinedFeatures = m.counterVec("features_undefined_total",
		"Total number of feature values reported as undefined", "feature")

	// Aggregation and lookup Metrics
	m.lookupFailures = m.counterVec("lookup_failures_total",
		"Total number of environment lookups that fell back to unknown", "lookup")
	m.lookupLatency = m.histogramVec("lookup_latency_milliseconds",
		"Environment lookup latency in milliseconds", "lookup")

	// Transport Metrics
	m.transportSubmissions = m.counterVec("transport_submissions_total",
		"Total number of payload submissions by outcome", "outcome")
	m.transportLatency = m.histogram("transport_latency_milliseconds",
		"Payload submission round-trip latency in milliseconds", m.histogramBuckets)

	// Collector Metrics
	m.payloadsReceived = m.counter("payloads_received_total",
		"Total number of payloads accepted by the collector")
	m.payloadsDuplicate = m.counter("payloads_duplicate_total",
		"Total number of duplicate payloads dropped by the collector")
	m.payloadsStored = m.counter("payloads_stored_total",
		"Total number of payloads persisted by the collector")

	// HTTP Performance Metrics
	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	// Repository Metrics
	m.repositoryRecordsTotal = m.gauge("repository_records_total",
		"Total number of stored submissions")
	m.repositoryUpdateLatency = m.histogram("repository_update_latency_milliseconds",
		"Repository write latency in milliseconds", m.histogramBuckets)
	m.repositoryQueryLatency = m.histogram("repository_query_latency_milliseconds",
		"Repository read latency in milliseconds", m.histogramBuckets)

	// Queue Metrics
	m.queueSize = m.gauge("queue_size", "Current size of the submission queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio",
		"Queue utilization ratio (current size / capacity)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of messages enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of messages dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds",
		"Queue processing latency in milliseconds", m.histogramBuckets)

	// Worker Metrics
	m.workerCount = m.gauge("worker_count", "Configured number of workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Number of active workers")
	m.workerIdleCount = m.gauge("worker_idle_count", "Number of idle workers")
	m.workerMessagesPerSecond = m.gauge("worker_messages_per_second",
		"Average messages processed per second by workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Worker processing latency in milliseconds", m.histogramBuckets)
	m.workerErrorRate = m.counter("worker_errors_total", "Total number of worker errors")

	// Error Metrics
	m.errorRateByComponent = m.counterVec("errors_by_component_total",
		"Total number of errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total",
		"Total number of errors by type", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Total number of errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds",
		"Latency of operations that resulted in errors", "component", "error_type")

	// System Performance Metrics
	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Capture Metrics Functions.

// RecordCaptureEvent increments the captured events counter for a modality.
func RecordCaptureEvent(modality string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.captureEvents.WithLabelValues(modality).Inc()
}

// RecordCaptureEvicted adds n evicted samples for a modality.
func RecordCaptureEvicted(modality string, n int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.captureEvicted.WithLabelValues(modality).Add(float64(n))
}

// IncActiveSessions increments the mounted sessions gauge.
func IncActiveSessions() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.activeSessions.Inc()
}

// DecActiveSessions decrements the mounted sessions gauge.
func DecActiveSessions() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.activeSessions.Dec()
}

// UpdateWSConnections adds delta to the open websocket streams gauge.
func UpdateWSConnections(delta int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.wsConnections.Add(float64(delta))
}

// Extraction Metrics Functions.

// RecordExtractionLatency records feature extraction latency in milliseconds.
func RecordExtractionLatency(latencyMs float64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.extractionLatency.Observe(latencyMs)
}

// RecordUndefinedFeature increments the undefined counter for a feature.
func RecordUndefinedFeature(feature string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.undefinedFeatures.WithLabelValues(feature).Inc()
}

// Lookup Metrics Functions.

// RecordLookupFailure increments the failure counter for a lookup.
func RecordLookupFailure(lookup string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.lookupFailures.WithLabelValues(lookup).Inc()
}

// RecordLookupLatency records lookup latency in milliseconds.
func RecordLookupLatency(lookup string, latencyMs float64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.lookupLatency.WithLabelValues(lookup).Observe(latencyMs)
}

// Transport Metrics Functions.

// RecordTransportSubmission increments the submission counter for an outcome.
func RecordTransportSubmission(outcome string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.transportSubmissions.WithLabelValues(outcome).Inc()
}

// RecordTransportLatency records submission latency in milliseconds.
func RecordTransportLatency(latencyMs float64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.transportLatency.Observe(latencyMs)
}

// Collector Metrics Functions.

// RecordPayloadReceived increments the accepted payloads counter.
func RecordPayloadReceived() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.payloadsReceived.Inc()
}

// RecordPayloadDuplicate increments the duplicate payloads counter.
func RecordPayloadDuplicate() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.payloadsDuplicate.Inc()
}

// RecordPayloadStored increments the persisted payloads counter.
func RecordPayloadStored() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.payloadsStored.Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Repository Metrics Functions.

// UpdateRepositoryRecordsTotal sets the number of stored submissions.
func UpdateRepositoryRecordsTotal(count int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.repositoryRecordsTotal.Set(float64(count))
}

// RecordRepositoryUpdateLatency records repository write latency.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records repository read latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.workerIdleCount.Set(float64(count))
}

// UpdateWorkerMessagesPerSecond sets the average messages processed per second.
func UpdateWorkerMessagesPerSecond(rate float64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.workerMessagesPerSecond.Set(rate)
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.workerErrorRate.Inc()
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if !globalManager.enabled.Load() {
		return
	}
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// Configure applies runtime options to the global manager. Only the enabled
// flag and the refresh interval take effect once metrics are registered.
func Configure(opts ...Option) {
	for _, opt := range opts {
		opt(globalManager)
	}
}

// Enabled reports whether the package-level helpers record anything.
func Enabled() bool {
	return globalManager.enabled.Load()
}

// RefreshInterval is how often periodically sampled gauges should be updated.
func RefreshInterval() time.Duration {
	return time.Duration(globalManager.refreshInterval.Load())
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
