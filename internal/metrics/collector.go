// Package metrics collects the engine's Prometheus metrics. This package
// is internal and should not be imported outside this module.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds every metric the engine emits: store writes, compaction
// passes and escalation outcomes, LLM call latency and retries, capture
// throughput, DAG shape, and worker pool activity.
type Collector struct {
	// store
	storeOpsTotal    *prometheus.CounterVec
	storeOpDuration  *prometheus.HistogramVec
	sessionTotalToks *prometheus.GaugeVec

	// compaction
	compactionPassesTotal *prometheus.CounterVec
	compactionDuration    *prometheus.HistogramVec
	escalationLevelTotal  *prometheus.CounterVec
	condensationsTotal    *prometheus.CounterVec
	dagDepth              *prometheus.GaugeVec

	// LLM
	llmCallsTotal   *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec
	llmRetriesTotal *prometheus.CounterVec

	// capture
	captureMessagesTotal *prometheus.CounterVec
	captureBlobsTotal    *prometheus.CounterVec
	captureBytesTotal    *prometheus.CounterVec

	// worker pool
	poolTasksTotal *prometheus.CounterVec
	poolPanics     *prometheus.CounterVec
	poolWorkers    *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector registers every metric under namespace and returns the
// collector used to record them.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.storeOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total number of store operations, by kind and outcome.",
		},
		[]string{"operation", "status"},
	)

	c.storeOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Store operation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	c.sessionTotalToks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_total_tokens",
			Help:      "Current estimated token total for a session.",
		},
		[]string{"session_id"},
	)

	c.compactionPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compaction_passes_total",
			Help:      "Total number of compaction passes, by trigger and outcome.",
		},
		[]string{"trigger", "status"}, // trigger: soft, hard, condensation
	)

	c.compactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compaction_pass_duration_seconds",
			Help:      "Compaction pass duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"trigger"},
	)

	c.escalationLevelTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalation_level_total",
			Help:      "Total number of blocks settled at each escalation ladder level.",
		},
		[]string{"level"}, // preserve_details, bullet_points, truncated
	)

	c.condensationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "condensations_total",
			Help:      "Total number of DAG condensation passes, by level.",
		},
		[]string{"level"},
	)

	c.dagDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "summary_dag_depth",
			Help:      "Current summary DAG depth for a session.",
		},
		[]string{"session_id"},
	)

	c.llmCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Total number of LLM calls, by operation and outcome.",
		},
		[]string{"operation", "status"}, // operation: summarize, classify, agent_loop
	)

	c.llmCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_duration_seconds",
			Help:      "LLM call duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)

	c.llmRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_retries_total",
			Help:      "Total number of LLM call retries.",
		},
		[]string{"operation"},
	)

	c.captureMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_messages_total",
			Help:      "Total number of transcript messages captured.",
		},
		[]string{"session_id"},
	)

	c.captureBlobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_blobs_diverted_total",
			Help:      "Total number of oversized blobs diverted to the file-reference table.",
		},
		[]string{"session_id"},
	)

	c.captureBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_bytes_total",
			Help:      "Total bytes of oversized blobs diverted to the file-reference table.",
		},
		[]string{"session_id"},
	)

	c.poolTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_pool_tasks_total",
			Help:      "Total number of worker pool task submissions, by pool and outcome.",
		},
		[]string{"pool", "status"}, // status: completed, failed, rejected
	)

	c.poolPanics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_pool_task_panics_total",
			Help:      "Total number of worker pool tasks that panicked.",
		},
		[]string{"pool"},
	)

	c.poolWorkers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_pool_workers",
			Help:      "Current live worker goroutines in a pool.",
		},
		[]string{"pool"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordStoreOp records one store operation's outcome and latency.
func (c *Collector) RecordStoreOp(operation string, err error, duration time.Duration) {
	c.storeOpsTotal.WithLabelValues(operation, outcome(err)).Inc()
	c.storeOpDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetSessionTotalTokens records a session's current token total.
func (c *Collector) SetSessionTotalTokens(sessionID string, tokens int) {
	c.sessionTotalToks.WithLabelValues(sessionID).Set(float64(tokens))
}

// RecordCompactionPass records one compaction pass's trigger, outcome, and
// duration.
func (c *Collector) RecordCompactionPass(trigger string, err error, duration time.Duration) {
	c.compactionPassesTotal.WithLabelValues(trigger, outcome(err)).Inc()
	c.compactionDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

// RecordEscalationLevel records which escalation ladder level a block
// settled at.
func (c *Collector) RecordEscalationLevel(level string) {
	c.escalationLevelTotal.WithLabelValues(level).Inc()
}

// RecordCondensation records one DAG condensation pass at level.
func (c *Collector) RecordCondensation(level int) {
	c.condensationsTotal.WithLabelValues(levelLabel(level)).Inc()
}

// SetDAGDepth records a session's current summary DAG depth.
func (c *Collector) SetDAGDepth(sessionID string, depth int) {
	c.dagDepth.WithLabelValues(sessionID).Set(float64(depth))
}

// RecordLLMCall records one LLM call's operation, outcome, and duration.
func (c *Collector) RecordLLMCall(operation string, err error, duration time.Duration) {
	c.llmCallsTotal.WithLabelValues(operation, outcome(err)).Inc()
	c.llmCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordLLMRetry records one retry attempt for operation.
func (c *Collector) RecordLLMRetry(operation string) {
	c.llmRetriesTotal.WithLabelValues(operation).Inc()
}

// RecordCapture records one capture pass's message count, diverted blob
// count, and diverted blob byte volume for a session.
func (c *Collector) RecordCapture(sessionID string, messages, blobsDiverted int, bytes int64) {
	c.captureMessagesTotal.WithLabelValues(sessionID).Add(float64(messages))
	c.captureBlobsTotal.WithLabelValues(sessionID).Add(float64(blobsDiverted))
	c.captureBytesTotal.WithLabelValues(sessionID).Add(float64(bytes))
}

// RecordPoolTask records one worker pool task's terminal status:
// "completed", "failed", or "rejected".
func (c *Collector) RecordPoolTask(poolName, status string) {
	c.poolTasksTotal.WithLabelValues(poolName, status).Inc()
}

// RecordPoolPanic records one worker pool task that panicked.
func (c *Collector) RecordPoolPanic(poolName string) {
	c.poolPanics.WithLabelValues(poolName).Inc()
}

// SetPoolWorkers records a worker pool's current live worker count.
func (c *Collector) SetPoolWorkers(poolName string, workers int) {
	c.poolWorkers.WithLabelValues(poolName).Set(float64(workers))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func levelLabel(level int) string {
	return strconv.Itoa(level)
}
