package sculpt

import (
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// TaskID identifies a task issued by a Scheduler.
type TaskID int64

// InvalidTaskID is the sentinel returned when a scheduler rejects a task,
// e.g. during shutdown. It is a return value, never an error; callers must
// check for it.
const InvalidTaskID TaskID = -1

// Scheduler abstracts the host's tick-based timer. Delays and periods are in
// host ticks; the scheduler promises ordering and the host's own tick
// cadence, never wall-clock precision. Tasks must tolerate running slightly
// late.
type Scheduler interface {
	// Schedule enqueues task after delay ticks, repeating every period
	// ticks. A period of 0 means one-shot. Returns InvalidTaskID when the
	// scheduler rejects the task.
	Schedule(delay, period int64, task func()) TaskID

	// Cancel stops a task from running again. Reports whether the task was
	// still live.
	Cancel(id TaskID) bool
}

// scheduledTask is one queue entry.
type scheduledTask struct {
	// id is the handle returned to the caller
	id TaskID

	// dueTick is the tick the task should execute at
	dueTick int64

	// period is the repeat interval in ticks; 0 for one-shot
	period int64

	// task is the callback
	task func()

	// cancelled marks the entry for lazy removal from the heap
	cancelled atomic.Bool

	// index is the heap index for efficient sift operations
	index int
}

// TickScheduler is the reference Scheduler implementation: a binary heap
// keyed by due tick with O(log n) insertion and lazy removal of cancelled
// entries. Hosts either drive it by calling Tick once per game tick or let
// it self-drive with Start.
//
// Concurrency:
// All methods are safe for concurrent use. Tasks run on the goroutine that
// calls Tick.
type TickScheduler struct {
	mu   sync.Mutex
	heap []*scheduledTask
	byID map[TaskID]*scheduledTask

	nextID atomic.Int64
	tick   atomic.Int64
	closed atomic.Bool

	loopMu   sync.Mutex
	loopStop chan struct{}
	loopDone chan struct{}
}

var _ Scheduler = (*TickScheduler)(nil)

// NewTickScheduler returns an idle scheduler at tick 0.
func NewTickScheduler() *TickScheduler {
	return &TickScheduler{
		heap: make([]*scheduledTask, 0, 64),
		byID: make(map[TaskID]*scheduledTask),
	}
}

// Schedule enqueues task after delay ticks, repeating every period ticks;
// period 0 means one-shot. Negative values count as 0. Returns InvalidTaskID
// once the scheduler is closed or when task is nil.
func (s *TickScheduler) Schedule(delay, period int64, task func()) TaskID {
	if task == nil || s.closed.Load() {
		return InvalidTaskID
	}
	if delay < 0 {
		delay = 0
	}
	if period < 0 {
		period = 0
	}

	t := &scheduledTask{
		id:      TaskID(s.nextID.Add(1)),
		dueTick: s.tick.Load() + delay,
		period:  period,
		task:    task,
	}

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return InvalidTaskID
	}
	if len(s.heap) > 100 && len(s.heap)%100 == 0 {
		s.compactHeap()
	}
	s.byID[t.id] = t
	s.push(t)
	s.mu.Unlock()

	return t.id
}

// Cancel stops the task from running again. The heap entry is dropped lazily
// on the next pop or compaction.
func (s *TickScheduler) Cancel(id TaskID) bool {
	s.mu.Lock()
	t, ok := s.byID[id]
	if ok {
		delete(s.byID, id)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	t.cancelled.Store(true)
	return true
}

// CancelAll cancels every outstanding task as a batch.
func (s *TickScheduler) CancelAll() {
	s.mu.Lock()
	for id, t := range s.byID {
		t.cancelled.Store(true)
		delete(s.byID, id)
	}
	for i := range s.heap {
		s.heap[i] = nil
	}
	s.heap = s.heap[:0]
	s.mu.Unlock()
}

// TickCount returns the current tick.
func (s *TickScheduler) TickCount() int64 {
	return s.tick.Load()
}

// Pending returns the number of live tasks.
func (s *TickScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// Tick advances the scheduler by one tick and runs every due task on the
// calling goroutine, in due order. Panicking tasks are recovered and logged
// so one task cannot take down the tick loop. Periodic tasks reschedule
// themselves after running unless cancelled in the meantime.
func (s *TickScheduler) Tick() {
	now := s.tick.Add(1)

	s.mu.Lock()
	var due []*scheduledTask
	cancelledCount := 0
	for len(s.heap) > 0 && s.heap[0].dueTick <= now {
		t := s.pop()
		if t.cancelled.Load() {
			cancelledCount++
			continue
		}
		if t.period == 0 {
			delete(s.byID, t.id)
		}
		due = append(due, t)
	}
	if cancelledCount > 50 && len(s.heap) > 0 {
		s.compactHeap()
	}
	s.mu.Unlock()

	for _, t := range due {
		s.runTask(t)

		if t.period == 0 || t.cancelled.Load() || s.closed.Load() {
			continue
		}
		t.dueTick = now + t.period
		s.mu.Lock()
		if _, live := s.byID[t.id]; live && !t.cancelled.Load() {
			s.push(t)
		}
		s.mu.Unlock()
	}
}

// runTask executes one task with panic recovery.
func (s *TickScheduler) runTask(t *scheduledTask) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sculpt: scheduled task panicked",
				"task", int64(t.id),
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	t.task()
}

// Start launches a self-driving loop that calls Tick every interval. It is a
// no-op when the loop is already running or the scheduler is closed.
func (s *TickScheduler) Start(interval time.Duration) {
	if interval <= 0 || s.closed.Load() {
		return
	}
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.loopStop != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	s.loopStop, s.loopDone = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.Tick()
			}
		}
	}()
}

// Stop ends the self-driving loop and waits for it to exit. Queued tasks
// stay live; the host may resume driving Tick manually.
func (s *TickScheduler) Stop() {
	s.loopMu.Lock()
	stop, done := s.loopStop, s.loopDone
	s.loopStop, s.loopDone = nil, nil
	s.loopMu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// Close rejects all future Schedule calls, cancels outstanding tasks as a
// batch and stops the self-driving loop. Idempotent.
func (s *TickScheduler) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.Stop()
	s.CancelAll()
}

// compactHeap removes cancelled tasks and rebuilds the heap property.
// Caller must hold mu.
func (s *TickScheduler) compactHeap() {
	write := 0
	for read := 0; read < len(s.heap); read++ {
		if !s.heap[read].cancelled.Load() {
			s.heap[write] = s.heap[read]
			s.heap[write].index = write
			write++
		}
	}
	for i := write; i < len(s.heap); i++ {
		s.heap[i] = nil
	}
	s.heap = s.heap[:write]

	for i := len(s.heap)/2 - 1; i >= 0; i-- {
		s.down(i, len(s.heap))
	}
}

// push adds a task to the heap. Caller must hold mu.
func (s *TickScheduler) push(t *scheduledTask) {
	t.index = len(s.heap)
	s.heap = append(s.heap, t)
	s.up(t.index)
}

// pop removes and returns the minimum task. Caller must hold mu.
func (s *TickScheduler) pop() *scheduledTask {
	n := len(s.heap) - 1
	s.swap(0, n)
	s.down(0, n)
	t := s.heap[n]
	s.heap[n] = nil // Allow GC
	s.heap = s.heap[:n]
	t.index = -1
	return t
}

// up moves the task at index up the heap.
func (s *TickScheduler) up(i int) {
	for {
		parent := (i - 1) / 2
		if parent == i || s.heap[i].dueTick >= s.heap[parent].dueTick {
			break
		}
		s.swap(i, parent)
		i = parent
	}
}

// down moves the task at index down the heap.
func (s *TickScheduler) down(i, n int) {
	for {
		left := 2*i + 1
		if left >= n || left < 0 {
			break
		}
		j := left
		if right := left + 1; right < n && s.heap[right].dueTick < s.heap[left].dueTick {
			j = right
		}
		if s.heap[j].dueTick >= s.heap[i].dueTick {
			break
		}
		s.swap(i, j)
		i = j
	}
}

// swap swaps two tasks in the heap.
func (s *TickScheduler) swap(i, j int) {
	s.heap[i], s.heap[j] = s.heap[j], s.heap[i]
	s.heap[i].index = i
	s.heap[j].index = j
}
