// Package metrics provides Prometheus metrics for the tops leaderboard runtime.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Work queue
	queueEnqueued   *prometheus.CounterVec
	queueDuplicates *prometheus.CounterVec
	queueDrained    *prometheus.CounterVec
	queueSize       *prometheus.GaugeVec

	// Processor
	processorOutcomes *prometheus.CounterVec
	processorBatch    *prometheus.HistogramVec
	processorFlushes  *prometheus.CounterVec

	// Boards
	boardSize     *prometheus.GaugeVec
	boardRefresh  *prometheus.HistogramVec
	boardResets   *prometheus.CounterVec
	boardResetErr *prometheus.CounterVec

	// Storage
	storageLatency *prometheus.HistogramVec
	storageErrors  *prometheus.CounterVec

	// Executor
	executorPending prometheus.Gauge
	executorRunning prometheus.Gauge
	executorJobs    prometheus.Counter
	executorPanics  prometheus.Counter

	// Scheduler
	schedulerTick  prometheus.Histogram
	schedulerDuty  *prometheus.CounterVec
	sourceRequests *prometheus.CounterVec

	// Events
	eventsPublished *prometheus.CounterVec
	eventsFailed    *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "tops",
		subsystem:        "runtime",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}
	if !m.enabled {
		// collectors stay usable but are never exported
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()
	return m
}

// Enabled reports whether collectors are registered for export.
func (m *Manager) Enabled() bool { return m.enabled }

// RefreshInterval is how often polled gauges such as board and queue
// sizes should be refreshed.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

func (m *Manager) name(n string) string {
	return m.metricPrefix + n
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.queueEnqueued = m.counterVec("queue_enqueued_total", "Identifiers accepted by a board work queue", "top", "priority")
	m.queueDuplicates = m.counterVec("queue_duplicates_total", "Enqueue attempts rejected because the identifier was already pending", "top")
	m.queueDrained = m.counterVec("queue_drained_total", "Identifiers polled from a board work queue", "top")
	m.queueSize = m.gaugeVec("queue_size", "Pending identifiers per board work queue", "top")

	m.processorOutcomes = m.counterVec("processor_outcomes_total", "Processor outcomes by result and path", "top", "path", "result")
	m.processorBatch = m.histogramVec("processor_batch_size", "Identifiers drained per processBatch call", []float64{1, 2, 5, 10, 20, 50, 100, 250}, "top")
	m.processorFlushes = m.counterVec("processor_buffer_flushes_total", "Buffered low priority batches flushed", "top", "trigger")

	m.boardSize = m.gaugeVec("board_entries", "Entries in the ranked snapshot of a board", "top")
	m.boardRefresh = m.histogramVec("board_refresh_duration_milliseconds", "Time to reload a ranked snapshot from storage", []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500}, "top")
	m.boardResets = m.counterVec("board_resets_total", "Completed timed board resets", "top", "schedule")
	m.boardResetErr = m.counterVec("board_reset_failures_total", "Timed board resets that failed", "top")

	m.storageLatency = m.histogramVec("storage_operation_duration_milliseconds", "Persistent store latency by operation", []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250}, "driver", "op")
	m.storageErrors = m.counterVec("storage_errors_total", "Persistent store failures by operation", "driver", "op")

	m.executorPending = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("executor_pending_jobs"),
		Help: "I/O jobs submitted but not yet finished", ConstLabels: m.customLabels,
	})
	m.executorRunning = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("executor_running_jobs"),
		Help: "I/O jobs currently executing", ConstLabels: m.customLabels,
	})
	m.executorJobs = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("executor_jobs_total"),
		Help: "I/O jobs completed", ConstLabels: m.customLabels,
	})
	m.executorPanics = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("executor_panics_total"),
		Help: "I/O jobs that panicked and were recovered", ConstLabels: m.customLabels,
	})

	m.schedulerTick = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("scheduler_tick_duration_milliseconds"),
		Help:    "Time spent in one driver tick",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 25, 50}, ConstLabels: m.customLabels,
	})
	m.schedulerDuty = m.counterVec("scheduler_duty_runs_total", "Scheduler duty executions", "duty")
	m.sourceRequests = m.counterVec("source_requests_total", "External value and name source calls", "source", "result")

	m.eventsPublished = m.counterVec("events_published_total", "Board events delivered to observers", "kind")
	m.eventsFailed = m.counterVec("events_failed_total", "Board events that could not be delivered", "kind")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}, "endpoint", "method", "status_code")
}

// RecordEnqueue counts an identifier accepted at the given priority.
func RecordEnqueue(top, priority string) {
	globalManager.queueEnqueued.WithLabelValues(top, priority).Inc()
}

// RecordDuplicate counts an enqueue rejected by the pending-set.
func RecordDuplicate(top string) {
	globalManager.queueDuplicates.WithLabelValues(top).Inc()
}

// RecordDrained counts identifiers removed by a poll.
func RecordDrained(top string, n int) {
	if n > 0 {
		globalManager.queueDrained.WithLabelValues(top).Add(float64(n))
	}
}

// UpdateQueueSize sets the pending count of a board queue.
func UpdateQueueSize(top string, size int) {
	globalManager.queueSize.WithLabelValues(top).Set(float64(size))
}

// RecordOutcome counts one processor outcome.
func RecordOutcome(top, path, result string) {
	globalManager.processorOutcomes.WithLabelValues(top, path, result).Inc()
}

// RecordBatchSize observes how many identifiers one processBatch drained.
func RecordBatchSize(top string, n int) {
	globalManager.processorBatch.WithLabelValues(top).Observe(float64(n))
}

// RecordBufferFlush counts a flush of the low priority buffer.
func RecordBufferFlush(top, trigger string) {
	globalManager.processorFlushes.WithLabelValues(top, trigger).Inc()
}

// UpdateBoardSize sets the ranked snapshot size of a board.
func UpdateBoardSize(top string, size int) {
	globalManager.boardSize.WithLabelValues(top).Set(float64(size))
}

// RecordRefreshDuration observes a snapshot reload.
func RecordRefreshDuration(top string, d time.Duration) {
	globalManager.boardRefresh.WithLabelValues(top).Observe(float64(d.Microseconds()) / 1000)
}

// RecordReset counts a completed timed reset.
func RecordReset(top, schedule string) {
	globalManager.boardResets.WithLabelValues(top, schedule).Inc()
}

// RecordResetFailure counts a failed timed reset.
func RecordResetFailure(top string) {
	globalManager.boardResetErr.WithLabelValues(top).Inc()
}

// RecordStorageLatency observes one store operation.
func RecordStorageLatency(driver, op string, d time.Duration) {
	globalManager.storageLatency.WithLabelValues(driver, op).Observe(float64(d.Microseconds()) / 1000)
}

// RecordStorageError counts one failed store operation.
func RecordStorageError(driver, op string) {
	globalManager.storageErrors.WithLabelValues(driver, op).Inc()
}

// UpdateExecutorPending sets the number of unfinished I/O jobs.
func UpdateExecutorPending(n int64) {
	globalManager.executorPending.Set(float64(n))
}

// UpdateExecutorRunning sets the number of executing I/O jobs.
func UpdateExecutorRunning(n int64) {
	globalManager.executorRunning.Set(float64(n))
}

// RecordExecutorJob counts a completed I/O job.
func RecordExecutorJob() {
	globalManager.executorJobs.Inc()
}

// RecordExecutorPanic counts a recovered panic inside an I/O job.
func RecordExecutorPanic() {
	globalManager.executorPanics.Inc()
}

// RecordTickDuration observes one driver tick.
func RecordTickDuration(d time.Duration) {
	globalManager.schedulerTick.Observe(float64(d.Microseconds()) / 1000)
}

// RecordDuty counts one scheduler duty run.
func RecordDuty(duty string) {
	globalManager.schedulerDuty.WithLabelValues(duty).Inc()
}

// RecordSourceRequest counts a call to an external source.
func RecordSourceRequest(source, result string) {
	globalManager.sourceRequests.WithLabelValues(source, result).Inc()
}

// RecordEventPublished counts an event handed to an observer.
func RecordEventPublished(kind string) {
	globalManager.eventsPublished.WithLabelValues(kind).Inc()
}

// RecordEventFailed counts an event an observer failed to deliver.
func RecordEventFailed(kind string) {
	globalManager.eventsFailed.WithLabelValues(kind).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RefreshInterval returns the gauge refresh interval of the global manager.
func RefreshInterval() time.Duration { return globalManager.RefreshInterval() }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
