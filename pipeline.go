package sculpt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// regionSerializer serializes edits whose regions may overlap. Overlap is
// conservative bounding-volume intersection: false positives only cost
// parallelism, false negatives would interleave writes. Conflicting waiters
// are granted in arrival order; disjoint edits pass each other freely.
//
// Concurrency:
// acquire blocks the calling goroutine; release wakes all waiters and each
// re-checks its own eligibility under the lock.
type regionSerializer struct {
	mu      sync.Mutex
	cond    *sync.Cond
	nextSeq uint64
	waiting []*regionTicket
	holding []*regionTicket
}

type regionTicket struct {
	region Region
	seq    uint64
}

func newRegionSerializer() *regionSerializer {
	s := &regionSerializer{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// acquire blocks until no in-flight region and no earlier-queued waiter
// overlaps region, then marks region in-flight and returns its ticket.
// A cancelled ctx abandons the wait.
func (s *regionSerializer) acquire(ctx context.Context, region Region) (*regionTicket, error) {
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &regionTicket{region: region, seq: s.nextSeq}
	s.nextSeq++
	s.waiting = append(s.waiting, t)

	for !s.clearLocked(t) {
		if err := ctx.Err(); err != nil {
			s.dropWaiterLocked(t)
			s.cond.Broadcast()
			return nil, err
		}
		s.cond.Wait()
	}

	s.dropWaiterLocked(t)
	s.holding = append(s.holding, t)
	return t, nil
}

// release ends the ticket's critical section and wakes the waiters.
func (s *regionSerializer) release(t *regionTicket) {
	s.mu.Lock()
	for i, h := range s.holding {
		if h == t {
			s.holding = append(s.holding[:i], s.holding[i+1:]...)
			break
		}
	}
	s.cond.Broadcast()
	s.mu.Unlock()
}

// clearLocked reports whether the ticket may enter: nothing held overlaps it
// and no waiter queued before it overlaps it.
func (s *regionSerializer) clearLocked(t *regionTicket) bool {
	for _, h := range s.holding {
		if h.region.Intersects(t.region) {
			return false
		}
	}
	for _, w := range s.waiting {
		if w.seq < t.seq && w.region.Intersects(t.region) {
			return false
		}
	}
	return true
}

func (s *regionSerializer) dropWaiterLocked(t *regionTicket) {
	for i, w := range s.waiting {
		if w == t {
			s.waiting = append(s.waiting[:i], s.waiting[i+1:]...)
			return
		}
	}
}

// inflight returns the number of regions currently held.
func (s *regionSerializer) inflight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.holding)
}

// EditResult reports a committed edit. When post-commit processing is
// deferred, Done closes only after it finished; Err then carries the fault
// that rolled the edit back, if any.
type EditResult struct {
	EditID        uuid.UUID
	BlocksChanged int
	Applied       SideEffectSet

	// Relight is the lighting job the commit enqueued, or nil when
	// EffectLighting was not applied or the world stores no light.
	Relight *RelightJob

	mu   sync.Mutex
	err  error
	done chan struct{}
}

func newEditResult(edit *Edit) *EditResult {
	return &EditResult{
		EditID:        edit.ID(),
		BlocksChanged: edit.Len(),
		Applied:       edit.AppliedEffects(),
		done:          make(chan struct{}),
	}
}

// Done returns a channel closed when all of the edit's processing finished.
func (r *EditResult) Done() <-chan struct{} { return r.done }

// Err returns the deferred-processing fault, or nil. Meaningful once Done is
// closed.
func (r *EditResult) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Await blocks until the edit's processing finished or ctx ends, then
// returns the fault, if any.
func (r *EditResult) Await(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return r.Err()
	}
}

func (r *EditResult) finish(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	close(r.done)
}

// postWorker runs deferred post-commit jobs on a single goroutine, so the
// post chains of successive edits keep their submission order. Close drains
// the queue before returning.
type postWorker struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

func newPostWorker() *postWorker {
	w := &postWorker{done: make(chan struct{})}
	w.cond = sync.NewCond(&w.mu)
	go w.loop()
	return w
}

// submit queues a job. Reports false when the worker is closed.
func (w *postWorker) submit(job func()) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	w.queue = append(w.queue, job)
	w.cond.Signal()
	return true
}

// close drains remaining jobs and stops the worker. Idempotent.
func (w *postWorker) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	w.cond.Broadcast()
	w.mu.Unlock()
	<-w.done
}

func (w *postWorker) loop() {
	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.closed {
			w.cond.Wait()
		}
		if len(w.queue) == 0 {
			w.mu.Unlock()
			close(w.done)
			return
		}
		job := w.queue[0]
		w.queue[0] = nil
		w.queue = w.queue[1:]
		w.mu.Unlock()
		job()
	}
}

// Apply runs the edit through the full pipeline: platform resolution, side
// effect negotiation, region serialization, the pre-commit chain, the
// commit, the post-commit chain and the follow-up work (journal, relight,
// events, metrics).
//
// Any processor fault or failed write rolls the world back to its pre-edit
// state and reports a *ProcessorFault. When post-commit processing is
// deferred (config), Apply returns right after the commit; a deferred fault
// then rolls back too and surfaces through the result's Err and the
// EventEditAborted event.
//
// Concurrency:
// Apply may be called from many goroutines. Edits with overlapping regions
// serialize their pre-through-commit span in arrival order; disjoint edits
// run concurrently.
func (m *Manager) Apply(ctx context.Context, world World, edit *Edit) (*EditResult, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}
	if world == nil || edit == nil {
		return nil, fmt.Errorf("sculpt: apply: nil world or edit")
	}

	platform, err := m.registry.resolve(CapWorldAccess)
	if err != nil {
		return nil, fmt.Errorf("sculpt: apply %s: %w", edit.ID(), err)
	}

	applied := Negotiate(edit.RequestedEffects(), platform.SupportedSideEffects())
	if missing := edit.RequiredEffects().AndNot(applied); !missing.IsEmpty() {
		return nil, fmt.Errorf("sculpt: apply %s: %s not supported by %s: %w",
			edit.ID(), missing, PlatformID(platform), ErrUnsupportedSideEffect)
	}
	edit.setApplied(applied)

	edit.Restrict(world.Bounds())
	if edit.Len() == 0 {
		// Nothing survived the clamp; commit trivially.
		result := newEditResult(edit)
		edit.close()
		m.emitCommitted(world, edit)
		result.finish(nil)
		return result, nil
	}

	ctx, span := tracer.Start(ctx, "sculpt.apply", trace.WithAttributes(
		attribute.String("sculpt.edit", edit.ID().String()),
		attribute.Int("sculpt.blocks", edit.Len()),
	))

	region := edit.Region()
	ticket, err := m.serializer.acquire(ctx, region)
	if err != nil {
		span.End()
		return nil, fmt.Errorf("sculpt: apply %s: %w", edit.ID(), err)
	}

	start := time.Now()
	cs := NewChangeSet(edit.ID())
	scoped := recordExtent(boundExtent(world, region), cs)

	fast := edit.FastMode()
	pre := m.chain.forPhase(PhasePreCommit, platform.Processor(fast))
	if err := runProcessors(ctx, PhasePreCommit, pre, edit, scoped); err != nil {
		m.abort(world, edit, cs, err)
		m.serializer.release(ticket)
		span.RecordError(err)
		span.End()
		return nil, err
	}

	if err := m.commit(ctx, platform, edit, scoped); err != nil {
		m.abort(world, edit, cs, err)
		m.serializer.release(ticket)
		span.RecordError(err)
		span.End()
		return nil, err
	}

	edit.close()
	m.serializer.release(ticket)

	result := newEditResult(edit)
	post := m.chain.forPhase(PhasePostCommit,
		platform.PostProcessor(fast),
		platform.PlacementProcessor(scoped, placedTypes(edit), region),
	)

	finish := func(ctx context.Context) error {
		if err := runProcessors(ctx, PhasePostCommit, post, edit, scoped); err != nil {
			m.rollbackPost(ctx, world, edit, cs, err)
			return err
		}
		m.completeEdit(ctx, world, edit, cs, result, time.Since(start))
		return nil
	}

	if m.deferPost {
		postCtx := context.WithoutCancel(ctx)
		ok := m.postWorker.submit(func() {
			defer span.End()
			if err := finish(postCtx); err != nil {
				span.RecordError(err)
				result.finish(err)
				return
			}
			result.finish(nil)
		})
		if !ok {
			// Shutting down; run inline so the edit never dangles.
			defer span.End()
			if err := finish(ctx); err != nil {
				span.RecordError(err)
				return nil, err
			}
			result.finish(nil)
		}
		return result, nil
	}

	defer span.End()
	if err := finish(ctx); err != nil {
		span.RecordError(err)
		return nil, err
	}
	result.finish(nil)
	return result, nil
}

// commit writes the staged blocks through the recording extent, upgrading
// stale states through the platform's data fixer and poking the watchdog on
// long runs. A failed write reports as the "commit" processor fault.
func (m *Manager) commit(ctx context.Context, platform Platform, edit *Edit, scoped Extent) error {
	fixer := platform.DataFixer()
	src := edit.SourceDataVersion()
	if src <= 0 || src >= platform.DataVersion() {
		fixer = nil
	}
	watchdog := platform.Watchdog()

	commitFault := func(err error) error {
		return &ProcessorFault{Processor: "commit", Phase: PhasePreCommit, Err: err}
	}

	for i, change := range edit.Blocks() {
		if i%m.watchdogBlocks == 0 {
			if err := ctx.Err(); err != nil {
				return commitFault(err)
			}
			if watchdog != nil && i > 0 {
				watchdog.Tick()
			}
		}
		state := change.State
		if fixer != nil {
			state = fixer.UpgradeBlockState(state, src)
		}
		if err := scoped.SetBlock(change.Pos, state); err != nil {
			return commitFault(fmt.Errorf("write %v: %w", change.Pos, err))
		}
	}
	return nil
}

// abort rolls an edit back while its serializer ticket is still held.
func (m *Manager) abort(world World, edit *Edit, cs *ChangeSet, fault error) {
	edit.close()
	if err := cs.Undo(world); err != nil {
		slog.Error("sculpt: rollback failed",
			"edit", edit.ID(), "error", err, "cause", fault)
	}
	m.metrics.EditAborted()
	slog.Warn("sculpt: edit aborted", "edit", edit.ID(), "error", fault)
	m.listeners.emit(func(l Listener) {
		l.HandleEditAborted(EventEditAborted{EditID: edit.ID(), World: world, Err: fault})
	})
}

// rollbackPost rolls an edit back after its ticket was already released: the
// region is re-acquired first so the rollback writes never interleave with a
// later edit.
func (m *Manager) rollbackPost(ctx context.Context, world World, edit *Edit, cs *ChangeSet, fault error) {
	region, ok := cs.Region()
	if !ok {
		m.abort(world, edit, cs, fault)
		return
	}
	ticket, err := m.serializer.acquire(context.WithoutCancel(ctx), region)
	if err != nil {
		slog.Error("sculpt: rollback could not re-acquire region",
			"edit", edit.ID(), "error", err, "cause", fault)
		return
	}
	m.abort(world, edit, cs, fault)
	m.serializer.release(ticket)
}

// completeEdit runs the post-commit follow-up: journal persistence, relight,
// events and metrics.
func (m *Manager) completeEdit(ctx context.Context, world World, edit *Edit, cs *ChangeSet, result *EditResult, elapsed time.Duration) {
	if !edit.FastMode() && m.journal != nil {
		if err := m.journal.Save(ctx, cs); err != nil {
			m.metrics.JournalFailure()
			slog.Warn("sculpt: journal save failed", "edit", edit.ID(), "error", err)
		}
	}

	if edit.AppliedEffects().Has(EffectLighting) {
		if le, ok := world.(LightExtent); ok {
			result.Relight = m.enqueueRelight(le, edit.Region())
		} else {
			slog.Debug("sculpt: world stores no light, relight skipped",
				"edit", edit.ID(), "world", world.Name())
		}
	}

	m.metrics.EditCommitted(result.BlocksChanged, elapsed)
	m.emitCommitted(world, edit)
}

func (m *Manager) emitCommitted(world World, edit *Edit) {
	m.listeners.emit(func(l Listener) {
		l.HandleEditCommitted(EventEditCommitted{
			EditID:  edit.ID(),
			World:   world,
			Region:  edit.Region(),
			Blocks:  edit.Len(),
			Applied: edit.AppliedEffects(),
		})
	})
}

// enqueueRelight hands the region to the relight engine, using the active
// world-access platform's relighter, and arranges the completion event.
func (m *Manager) enqueueRelight(world LightExtent, region Region) *RelightJob {
	var factory RelighterFactory
	if p, err := m.registry.resolve(CapWorldAccess); err == nil {
		factory = p.RelighterFactory()
	}
	job := m.engine.Enqueue(factory, world, region)
	go func() {
		<-job.Done()
		m.listeners.emit(func(l Listener) {
			l.HandleRelightCompleted(EventRelightCompleted{Job: job})
		})
	}()
	return job
}

// placedTypes collects the block types the edit stages, for the placement
// processor's mask.
func placedTypes(edit *Edit) *BlockTypeMask {
	mask := NewBlockTypeMask()
	for _, change := range edit.Blocks() {
		mask.Set(change.State.Type)
	}
	return mask
}

// Undo loads the edit's journaled change set and applies its inverse through
// the region serializer. No processors run; lighting of the affected region
// is recomputed when the world stores light.
func (m *Manager) Undo(ctx context.Context, world World, editID uuid.UUID) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	if world == nil {
		return fmt.Errorf("sculpt: undo: nil world")
	}
	if m.journal == nil {
		return ErrUnknownEdit
	}

	cs, err := m.journal.Load(ctx, editID)
	if err != nil {
		return fmt.Errorf("sculpt: undo %s: %w", editID, err)
	}
	region, ok := cs.Region()
	if !ok {
		return nil
	}

	ticket, err := m.serializer.acquire(ctx, region)
	if err != nil {
		return fmt.Errorf("sculpt: undo %s: %w", editID, err)
	}
	err = cs.Undo(world)
	m.serializer.release(ticket)
	if err != nil {
		return fmt.Errorf("sculpt: undo %s: %w", editID, err)
	}

	if le, ok := world.(LightExtent); ok {
		m.enqueueRelight(le, region)
	}
	return nil
}
