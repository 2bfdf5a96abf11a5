package sculpt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Relighter recomputes lighting for one region of a world. Implementations
// must honour ctx: cancellation between chunks (or between write-backs) is
// how superseded jobs stop early.
type Relighter interface {
	Relight(ctx context.Context, region Region) error
}

// RelighterFactory produces relighters bound to a world. Platforms return
// nil from Platform.RelighterFactory when the host keeps lighting current
// on its own.
type RelighterFactory interface {
	NewRelighter(world LightExtent) Relighter
}

// RelightStatus is the lifecycle state of a relight job.
type RelightStatus uint32

// Relight job lifecycle states. Jobs move Created, Queued, Running, Done;
// Queued and Running jobs move to Cancelled when a later overlapping job
// supersedes them or the engine shuts down.
const (
	RelightCreated RelightStatus = iota
	RelightQueued
	RelightRunning
	RelightDone
	RelightCancelled
)

// String returns the status name.
func (s RelightStatus) String() string {
	switch s {
	case RelightCreated:
		return "Created"
	case RelightQueued:
		return "Queued"
	case RelightRunning:
		return "Running"
	case RelightDone:
		return "Done"
	case RelightCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("RelightStatus(%d)", uint32(s))
	}
}

func (s RelightStatus) terminal() bool {
	return s == RelightDone || s == RelightCancelled
}

// RelightJob is the handle for one queued lighting recomputation. Callers
// poll IsDone, select on Done, or block in Await; none of these is required
// for the job to finish.
type RelightJob struct {
	id      uuid.UUID
	region  Region
	world   LightExtent
	factory RelighterFactory

	status atomic.Uint32
	ctx    context.Context
	cancel context.CancelFunc

	mu  sync.Mutex
	err error

	done     chan struct{}
	doneOnce sync.Once
}

func newRelightJob(factory RelighterFactory, world LightExtent, region Region) *RelightJob {
	ctx, cancel := context.WithCancel(context.Background())
	return &RelightJob{
		id:      uuid.New(),
		region:  region,
		world:   world,
		factory: factory,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// ID returns the job id.
func (j *RelightJob) ID() uuid.UUID { return j.id }

// Region returns the region the job relights. For jobs that superseded
// earlier overlapping work this is the union of all absorbed regions.
func (j *RelightJob) Region() Region { return j.region }

// Status returns the job's current lifecycle state.
func (j *RelightJob) Status() RelightStatus {
	return RelightStatus(j.status.Load())
}

// Err returns the fault that ended the job, or nil. Faults are reported as
// *RelightFault; cancelled jobs report no error.
func (j *RelightJob) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// IsDone reports whether the job reached a terminal state. It never blocks.
func (j *RelightJob) IsDone() bool {
	return j.Status().terminal()
}

// Done returns a channel closed when the job reaches a terminal state.
func (j *RelightJob) Done() <-chan struct{} { return j.done }

// Await blocks until the job reaches a terminal state or ctx ends. It
// returns the job's fault, if any, once the job is terminal.
func (j *RelightJob) Await(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-j.done:
		return j.Err()
	}
}

// complete moves the job to a terminal state, records err and releases
// waiters. Later calls keep the first terminal state and error.
func (j *RelightJob) complete(status RelightStatus, err error) {
	if err != nil {
		j.mu.Lock()
		if j.err == nil {
			j.err = err
		}
		j.mu.Unlock()
	}
	for {
		cur := RelightStatus(j.status.Load())
		if cur.terminal() {
			break
		}
		if j.status.CompareAndSwap(uint32(cur), uint32(status)) {
			break
		}
	}
	j.cancel()
	j.doneOnce.Do(func() { close(j.done) })
}

// supersede cancels the job if it has not finished. Queued jobs become
// terminal immediately; running jobs have their context cancelled and turn
// terminal when the relighter returns. Reports whether the job was live.
func (j *RelightJob) supersede() bool {
	for {
		switch cur := RelightStatus(j.status.Load()); cur {
		case RelightCreated, RelightQueued:
			if j.status.CompareAndSwap(uint32(cur), uint32(RelightCancelled)) {
				j.cancel()
				j.doneOnce.Do(func() { close(j.done) })
				return true
			}
		case RelightRunning:
			if j.status.CompareAndSwap(uint32(cur), uint32(RelightCancelled)) {
				j.cancel()
				return true
			}
		default:
			return false
		}
	}
}

// relightEngine owns the relight queue and its worker pool. Enqueueing a
// region supersedes every queued or running job for the same world whose
// region overlaps it, and the new job covers the union of everything it
// absorbed, so the light in an overlap is never left half-computed by a
// cancelled predecessor.
//
// Concurrency:
// All methods are safe for concurrent use. Workers run jobs one at a time
// each; jobs for disjoint regions may run concurrently on different
// workers.
type relightEngine struct {
	metrics *Metrics

	mu      sync.Mutex
	cond    *sync.Cond
	pending []*RelightJob
	active  []*RelightJob

	wg     sync.WaitGroup
	closed atomic.Bool
}

// newRelightEngine starts workers goroutines serving the queue.
func newRelightEngine(workers int, metrics *Metrics) *relightEngine {
	if workers < 1 {
		workers = 1
	}
	e := &relightEngine{metrics: metrics}
	e.cond = sync.NewCond(&e.mu)
	e.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go e.worker()
	}
	return e
}

// Enqueue schedules a lighting recomputation of region in world using the
// given factory and returns the job handle. Overlapping queued or running
// jobs for the same world are cancelled and their regions folded into the
// new job, transitively. On a closed engine the returned job is already
// cancelled; with a nil factory it is already done.
func (e *relightEngine) Enqueue(factory RelighterFactory, world LightExtent, region Region) *RelightJob {
	job := newRelightJob(factory, world, region)
	if e.closed.Load() {
		job.complete(RelightCancelled, nil)
		return job
	}
	if factory == nil {
		slog.Debug("sculpt: no relighter factory, relight skipped",
			"job", job.id, "region", region)
		job.complete(RelightDone, nil)
		return job
	}

	e.mu.Lock()
	e.pruneActiveLocked()

	absorbed := make(map[*RelightJob]struct{})
	union := region
	for changed := true; changed; {
		changed = false
		for _, prev := range e.active {
			if _, ok := absorbed[prev]; ok {
				continue
			}
			if prev.world != world || prev.IsDone() {
				continue
			}
			if prev.region.Intersects(union) {
				union = union.Union(prev.region)
				absorbed[prev] = struct{}{}
				changed = true
			}
		}
	}
	job.region = union

	for prev := range absorbed {
		if prev.supersede() {
			e.metrics.RelightSuperseded()
			slog.Debug("sculpt: relight job superseded",
				"job", prev.id, "by", job.id, "region", prev.region)
		}
	}

	job.status.Store(uint32(RelightQueued))
	e.active = append(e.active, job)
	e.pending = append(e.pending, job)
	e.metrics.RelightQueueDepth(len(e.pending))
	e.cond.Signal()
	e.mu.Unlock()

	e.metrics.RelightEnqueued()
	return job
}

// pruneActiveLocked drops terminal jobs from the active list.
func (e *relightEngine) pruneActiveLocked() {
	live := e.active[:0]
	for _, j := range e.active {
		if !j.IsDone() {
			live = append(live, j)
		}
	}
	for i := len(live); i < len(e.active); i++ {
		e.active[i] = nil
	}
	e.active = live
}

// Pending returns the number of jobs waiting for a worker.
func (e *relightEngine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Close cancels every queued and running job, wakes the workers and waits
// for them to exit. Idempotent.
func (e *relightEngine) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	e.mu.Lock()
	for _, j := range e.active {
		j.supersede()
	}
	e.pending = nil
	e.active = nil
	e.metrics.RelightQueueDepth(0)
	e.cond.Broadcast()
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *relightEngine) worker() {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		for len(e.pending) == 0 && !e.closed.Load() {
			e.cond.Wait()
		}
		if len(e.pending) == 0 {
			e.mu.Unlock()
			return
		}
		job := e.pending[0]
		e.pending[0] = nil
		e.pending = e.pending[1:]
		e.metrics.RelightQueueDepth(len(e.pending))
		e.mu.Unlock()

		e.run(job)
	}
}

// run executes one job on the calling worker.
func (e *relightEngine) run(job *RelightJob) {
	if !job.status.CompareAndSwap(uint32(RelightQueued), uint32(RelightRunning)) {
		// Superseded while waiting in the queue.
		job.complete(RelightCancelled, nil)
		return
	}

	ctx, span := tracer.Start(job.ctx, "sculpt.relight", trace.WithAttributes(
		attribute.String("sculpt.job", job.id.String()),
		attribute.Int("sculpt.volume", job.region.Volume()),
	))
	start := time.Now()
	err := e.runRelighter(ctx, job)
	elapsed := time.Since(start)

	switch {
	case job.Status() == RelightCancelled:
		job.complete(RelightCancelled, nil)
	case err != nil && !errors.Is(err, context.Canceled):
		fault := &RelightFault{JobID: job.id, Region: job.region, Err: err}
		span.RecordError(fault)
		slog.Warn("sculpt: relight job failed",
			"job", job.id, "region", job.region, "error", err)
		job.complete(RelightDone, fault)
	default:
		job.complete(RelightDone, nil)
		e.metrics.RelightFinished(elapsed)
	}
	span.End()
}

// runRelighter invokes the platform relighter with panic containment. A
// panicking relighter fails only its own job.
func (e *relightEngine) runRelighter(ctx context.Context, job *RelightJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sculpt: relighter panicked",
				"job", job.id, "region", job.region,
				"panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("relighter panic: %v", r)
		}
	}()
	return job.factory.NewRelighter(job.world).Relight(ctx, job.region)
}
