// Package metrics provides Prometheus metrics for the hatch progression service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the hatch service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Incubation
	incubationPolls    prometheus.Counter
	incubationAbsorbed prometheus.Counter
	incubationActive   prometheus.Gauge
	incubationProgress prometheus.Gauge
	sessionsStarted    prometheus.Counter
	sessionsStopped    prometheus.Counter

	// Evaluation
	evaluations        prometheus.Counter
	evaluationsSkipped prometheus.Counter
	evaluationsFailed  prometheus.Counter
	evaluationLatency  prometheus.Histogram
	talentsTotal       prometheus.Gauge
	streaksObtained    prometheus.Gauge
	talentsExpiring    prometheus.Gauge

	// Repository
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueue       prometheus.Counter
	queueDequeue       prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker
	workerErrors            prometheus.Counter
	workerProcessingLatency prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec

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
		namespace:        "hatch",
		subsystem:        "engine",
		histogramBuckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		registry:         prometheus.DefaultRegisterer,
	}

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
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.incubationPolls = m.counter("incubation_polls_total", "Total number of successful incubation polls")
	m.incubationAbsorbed = m.counter("incubation_polls_absorbed_total", "Polls that found no active incubation and were absorbed")
	m.incubationActive = m.gauge("incubation_active", "1 while a talent is incubating, 0 otherwise")
	m.incubationProgress = m.gauge("incubation_progress", "Level progress of the incubating talent at the last poll")
	m.sessionsStarted = m.counter("sessions_started_total", "Total number of practice sessions started")
	m.sessionsStopped = m.counter("sessions_stopped_total", "Total number of practice sessions finalized")

	m.evaluations = m.counter("evaluations_total", "Total number of completed streak evaluations")
	m.evaluationsSkipped = m.counter("evaluations_skipped_total", "Evaluations that were a no-op (no talents or no sessions)")
	m.evaluationsFailed = m.counter("evaluations_failed_total", "Evaluations halted by a data consistency violation")
	m.evaluationLatency = m.histogram("evaluation_latency_milliseconds", "Histogram of streak evaluation latency in milliseconds", m.histogramBuckets)
	m.talentsTotal = m.gauge("talents_total", "Number of talents at the last evaluation")
	m.streaksObtained = m.gauge("streaks_obtained", "Talents that obtained their streak in the current waking day")
	m.talentsExpiring = m.gauge("talents_expiring", "Talents whose latest session ended outside the expiry window")

	m.storeLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "store_operation_latency_milliseconds",
			Help:        "Repository operation latency in milliseconds by store and operation",
			Buckets:     m.histogramBuckets,
			ConstLabels: m.constLabels,
		},
		[]string{"store", "operation"},
	)

	m.storeErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "store_errors_total",
			Help:        "Repository operation failures by store and operation",
			ConstLabels: m.constLabels,
		},
		[]string{"store", "operation"},
	)

	m.queueSize = m.gauge("queue_size", "Current size of the change queue (backlog indicator)")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum capacity of the change queue")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Change queue utilization ratio (0.0 to 1.0)")
	m.queueEnqueue = m.counter("queue_enqueue_total", "Total number of changes enqueued")
	m.queueDequeue = m.counter("queue_dequeue_total", "Total number of changes dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of changes dropped on a full or closed queue")

	m.workerErrors = m.counter("worker_errors_total", "Total number of worker errors")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Worker processing latency in milliseconds", m.histogramBuckets)

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests by endpoint and method",
			ConstLabels: m.constLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_request_duration_milliseconds",
			Help:        "HTTP request duration in milliseconds",
			Buckets:     m.histogramBuckets,
			ConstLabels: m.constLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorsByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "errors_by_component_total",
			Help:        "Total number of errors by component and kind",
			ConstLabels: m.constLabels,
		},
		[]string{"component", "error_type"},
	)

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Incubation Metrics Functions.

// RecordIncubationPoll records a successful poll and the progress it produced.
func RecordIncubationPoll(progress float64) {
	globalManager.incubationPolls.Inc()
	globalManager.incubationProgress.Set(progress)
}

// RecordIncubationPollAbsorbed increments the counter of polls made while idle.
func RecordIncubationPollAbsorbed() {
	globalManager.incubationAbsorbed.Inc()
}

// UpdateIncubationActive sets the active incubation gauge.
func UpdateIncubationActive(active bool) {
	if active {
		globalManager.incubationActive.Set(1)
		return
	}
	globalManager.incubationActive.Set(0)
	globalManager.incubationProgress.Set(0)
}

// RecordSessionStarted increments the sessions started counter.
func RecordSessionStarted() {
	globalManager.sessionsStarted.Inc()
}

// RecordSessionStopped increments the sessions stopped counter.
func RecordSessionStopped() {
	globalManager.sessionsStopped.Inc()
}

// Evaluation Metrics Functions.

// RecordEvaluation records a completed evaluation and its latency.
func RecordEvaluation(latencyMs float64) {
	globalManager.evaluations.Inc()
	globalManager.evaluationLatency.Observe(latencyMs)
}

// RecordEvaluationSkipped increments the no-op evaluation counter.
func RecordEvaluationSkipped() {
	globalManager.evaluationsSkipped.Inc()
}

// RecordEvaluationFailed increments the failed evaluation counter.
func RecordEvaluationFailed() {
	globalManager.evaluationsFailed.Inc()
}

// UpdateStreakTotals sets the population gauges from the last evaluation.
func UpdateStreakTotals(talents, streaks, expiring int) {
	globalManager.talentsTotal.Set(float64(talents))
	globalManager.streaksObtained.Set(float64(streaks))
	globalManager.talentsExpiring.Set(float64(expiring))
}

// Repository Metrics Functions.

// RecordStoreLatency records the latency of a store operation.
func RecordStoreLatency(store, operation string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(store, operation).Observe(latencyMs)
}

// RecordStoreError increments the failure counter of a store operation.
func RecordStoreError(store, operation string) {
	globalManager.storeErrors.WithLabelValues(store, operation).Inc()
}

// Queue Metrics Functions.

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

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueue.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeue.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Worker Metrics Functions.

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// System Performance Metrics Functions.

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

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
