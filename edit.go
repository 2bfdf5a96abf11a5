package sculpt

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// BlockChange is one staged block mutation of an edit.
type BlockChange struct {
	Pos   BlockPos
	State BlockState
}

// Edit is one pending batch of block changes inside a requested region. An
// edit is staged by its caller, handed to Manager.Apply exactly once, and
// transformed in place by the processor chain along the way.
//
// Staging keeps insertion order with last-write-wins per position, so a
// committed edit writes each position at most once.
//
// Concurrency:
// Staging methods are safe for concurrent use, but an edit belongs to one
// Apply call; once applied it rejects further staging with ErrEditClosed.
type Edit struct {
	id        uuid.UUID
	requested Region

	mu      sync.Mutex
	region  Region
	vetoed  bool
	changes []BlockChange
	index   map[BlockPos]int
	dropped map[BlockPos]struct{}

	effects  SideEffectSet
	required SideEffectSet
	applied  SideEffectSet

	sourceDataVersion int
	fastMode          bool

	closed atomic.Bool
}

// NewEdit returns an empty edit targeting the given region.
func NewEdit(region Region) *Edit {
	return &Edit{
		id:        uuid.New(),
		requested: region,
		region:    region,
		index:     make(map[BlockPos]int),
		dropped:   make(map[BlockPos]struct{}),
	}
}

// ID returns the edit's unique id.
func (e *Edit) ID() uuid.UUID { return e.id }

// RequestedRegion returns the region the edit was created with. Processors
// can shrink the working region but never this bound.
func (e *Edit) RequestedRegion() Region { return e.requested }

// Region returns the current working region. It only ever shrinks.
func (e *Edit) Region() Region {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.region
}

// SetBlock stages a block change. Staging outside the working region returns
// ErrOutOfRegion; staging on an applied edit returns ErrEditClosed. Staging
// the same position again replaces the earlier change in place.
func (e *Edit) SetBlock(pos BlockPos, state BlockState) error {
	if e.closed.Load() {
		return ErrEditClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.vetoed || !e.region.Contains(pos) {
		return ErrOutOfRegion
	}
	delete(e.dropped, pos)
	if i, ok := e.index[pos]; ok {
		e.changes[i].State = state
		return nil
	}
	e.index[pos] = len(e.changes)
	e.changes = append(e.changes, BlockChange{Pos: pos, State: state})
	return nil
}

// DropBlock vetoes the staged change at the position, if any.
func (e *Edit) DropBlock(pos BlockPos) {
	e.mu.Lock()
	if _, ok := e.index[pos]; ok {
		e.dropped[pos] = struct{}{}
	}
	e.mu.Unlock()
}

// Restrict shrinks the working region to its intersection with r and drops
// staged changes that fall outside. Restricting to a disjoint region vetoes
// the whole edit: it commits zero blocks. Restrict can never grow the
// region.
func (e *Edit) Restrict(r Region) {
	e.mu.Lock()
	defer e.mu.Unlock()
	clamped, ok := e.region.Intersect(r)
	if !ok {
		e.vetoed = true
		for _, c := range e.changes {
			e.dropped[c.Pos] = struct{}{}
		}
		return
	}
	e.region = clamped
	for _, c := range e.changes {
		if !clamped.Contains(c.Pos) {
			e.dropped[c.Pos] = struct{}{}
		}
	}
}

// Blocks returns the live staged changes in insertion order.
func (e *Edit) Blocks() []BlockChange {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]BlockChange, 0, len(e.changes)-len(e.dropped))
	for _, c := range e.changes {
		if _, gone := e.dropped[c.Pos]; gone {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Len returns the number of live staged changes.
func (e *Edit) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.changes) - len(e.dropped)
}

// RequestEffects adds best-effort side effects to the request. Effects the
// active platform cannot honor degrade out silently.
func (e *Edit) RequestEffects(s SideEffectSet) *Edit {
	e.mu.Lock()
	e.effects = e.effects.Or(s)
	e.mu.Unlock()
	return e
}

// RequireEffects adds required side effects to the request. An edit whose
// required effects do not survive negotiation fails fast with
// ErrUnsupportedSideEffect before anything is written.
func (e *Edit) RequireEffects(s SideEffectSet) *Edit {
	e.mu.Lock()
	e.effects = e.effects.Or(s)
	e.required = e.required.Or(s)
	e.mu.Unlock()
	return e
}

// RequestedEffects returns the requested side effects.
func (e *Edit) RequestedEffects() SideEffectSet {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.effects
}

// RequiredEffects returns the subset of requested effects marked required.
func (e *Edit) RequiredEffects() SideEffectSet {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.required
}

// AppliedEffects returns the negotiated effect set. It is populated by
// Manager.Apply; before that it is empty.
func (e *Edit) AppliedEffects() SideEffectSet {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applied
}

// SetSourceDataVersion records the data version the staged block states were
// produced at. When it predates the active platform's data version, commit
// routes each state through the platform's DataFixer.
func (e *Edit) SetSourceDataVersion(v int) *Edit {
	e.mu.Lock()
	e.sourceDataVersion = v
	e.mu.Unlock()
	return e
}

// SourceDataVersion returns the recorded source data version; 0 means
// current.
func (e *Edit) SourceDataVersion() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sourceDataVersion
}

// SetFastMode selects the platform's reduced processor variants and skips
// history recording for this edit.
func (e *Edit) SetFastMode(fast bool) *Edit {
	e.mu.Lock()
	e.fastMode = fast
	e.mu.Unlock()
	return e
}

// FastMode reports whether fast mode is set.
func (e *Edit) FastMode() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fastMode
}

// setApplied records the negotiated effect set.
func (e *Edit) setApplied(s SideEffectSet) {
	e.mu.Lock()
	e.applied = s
	e.mu.Unlock()
}

// close marks the edit applied. Idempotent.
func (e *Edit) close() {
	e.closed.Store(true)
}
