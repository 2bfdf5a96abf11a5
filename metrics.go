package sculpt

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracer emits spans for edit commits and relight jobs. It resolves against
// whatever tracer provider the host installed; without one the spans are
// no-ops.
var tracer trace.Tracer = otel.Tracer("github.com/oriumgames/sculpt")

// Metrics holds the Prometheus instruments the core updates. A nil *Metrics
// is valid everywhere and records nothing, so instrumentation stays optional.
type Metrics struct {
	editsCommitted    prometheus.Counter
	editsAborted      prometheus.Counter
	blocksWritten     prometheus.Counter
	commitSeconds     prometheus.Histogram
	relightEnqueued   prometheus.Counter
	relightSuperseded prometheus.Counter
	relightSeconds    prometheus.Histogram
	relightQueue      prometheus.Gauge
	journalFailures   prometheus.Counter
}

// NewMetrics builds and registers the core's instruments with reg. A nil
// reg returns nil, which disables recording.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		editsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sculpt",
			Name:      "edits_committed_total",
			Help:      "Edits committed to a world.",
		}),
		editsAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sculpt",
			Name:      "edits_aborted_total",
			Help:      "Edits rolled back after a processor fault.",
		}),
		blocksWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sculpt",
			Name:      "blocks_written_total",
			Help:      "Block writes committed to worlds.",
		}),
		commitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sculpt",
			Name:      "commit_duration_seconds",
			Help:      "Wall time of edit commits, processors included.",
			Buckets:   prometheus.DefBuckets,
		}),
		relightEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sculpt",
			Name:      "relight_jobs_total",
			Help:      "Relight jobs enqueued.",
		}),
		relightSuperseded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sculpt",
			Name:      "relight_superseded_total",
			Help:      "Relight jobs cancelled by a later overlapping job.",
		}),
		relightSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sculpt",
			Name:      "relight_duration_seconds",
			Help:      "Wall time of completed relight jobs.",
			Buckets:   prometheus.DefBuckets,
		}),
		relightQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sculpt",
			Name:      "relight_queue_depth",
			Help:      "Relight jobs waiting for a worker.",
		}),
		journalFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sculpt",
			Name:      "journal_failures_total",
			Help:      "History journal operations that failed.",
		}),
	}
	reg.MustRegister(
		m.editsCommitted, m.editsAborted, m.blocksWritten, m.commitSeconds,
		m.relightEnqueued, m.relightSuperseded, m.relightSeconds,
		m.relightQueue, m.journalFailures,
	)
	return m
}

// EditCommitted records one committed edit.
func (m *Metrics) EditCommitted(blocks int, d time.Duration) {
	if m == nil {
		return
	}
	m.editsCommitted.Inc()
	m.blocksWritten.Add(float64(blocks))
	m.commitSeconds.Observe(d.Seconds())
}

// EditAborted records one rolled-back edit.
func (m *Metrics) EditAborted() {
	if m == nil {
		return
	}
	m.editsAborted.Inc()
}

// RelightEnqueued records one enqueued relight job.
func (m *Metrics) RelightEnqueued() {
	if m == nil {
		return
	}
	m.relightEnqueued.Inc()
}

// RelightSuperseded records one job cancelled by a later overlapping job.
func (m *Metrics) RelightSuperseded() {
	if m == nil {
		return
	}
	m.relightSuperseded.Inc()
}

// RelightFinished records one completed relight job.
func (m *Metrics) RelightFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.relightSeconds.Observe(d.Seconds())
}

// RelightQueueDepth records the current queue depth.
func (m *Metrics) RelightQueueDepth(n int) {
	if m == nil {
		return
	}
	m.relightQueue.Set(float64(n))
}

// JournalFailure records one failed journal operation.
func (m *Metrics) JournalFailure() {
	if m == nil {
		return
	}
	m.journalFailures.Inc()
}
