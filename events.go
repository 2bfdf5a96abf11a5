package sculpt

import (
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
)

// Event types describe what the manager just did. Listeners receive them
// after the fact; no listener can veto the action that produced the event.

// EventPlatformRegistered is emitted when a platform joins the manager.
type EventPlatformRegistered struct {
	Platform Platform
}

// EventPlatformUnregistered is emitted when a platform leaves the manager,
// after its tasks were cancelled and its capabilities re-resolved.
type EventPlatformUnregistered struct {
	Platform Platform
}

// EventCapabilityChanged is emitted when arbitration hands a capability to a
// different platform. Previous is nil when the capability was unserved
// before; Current is nil when no eligible platform remains.
type EventCapabilityChanged struct {
	Capability Capability
	Previous   Platform
	Current    Platform
}

// EventEditCommitted is emitted when an edit's blocks and post-commit
// processors have all been applied.
type EventEditCommitted struct {
	EditID  uuid.UUID
	World   World
	Region  Region
	Blocks  int
	Applied SideEffectSet
}

// EventEditAborted is emitted when a processor fault rolled an edit back.
// Err is the *ProcessorFault that caused the abort.
type EventEditAborted struct {
	EditID uuid.UUID
	World  World
	Err    error
}

// EventRelightCompleted is emitted when a relight job reaches a terminal
// state, cancelled jobs included.
type EventRelightCompleted struct {
	Job *RelightJob
}

// Listener receives manager events. Embed NopListener and override the
// methods for the events of interest.
type Listener interface {
	HandlePlatformRegistered(e EventPlatformRegistered)
	HandlePlatformUnregistered(e EventPlatformUnregistered)
	HandleCapabilityChanged(e EventCapabilityChanged)
	HandleEditCommitted(e EventEditCommitted)
	HandleEditAborted(e EventEditAborted)
	HandleRelightCompleted(e EventRelightCompleted)
}

// NopListener implements Listener with no-ops.
type NopListener struct{}

var _ Listener = NopListener{}

func (NopListener) HandlePlatformRegistered(EventPlatformRegistered)     {}
func (NopListener) HandlePlatformUnregistered(EventPlatformUnregistered) {}
func (NopListener) HandleCapabilityChanged(EventCapabilityChanged)       {}
func (NopListener) HandleEditCommitted(EventEditCommitted)               {}
func (NopListener) HandleEditAborted(EventEditAborted)                   {}
func (NopListener) HandleRelightCompleted(EventRelightCompleted)         {}

// listenerSet fans events out to subscribed listeners.
//
// Concurrency:
// Events run on the goroutine that emitted them, against a snapshot of the
// subscriber list, so subscribing from inside a listener never deadlocks.
// A panicking listener loses only that one event.
type listenerSet struct {
	mu        sync.RWMutex
	listeners []Listener
}

// add subscribes l and returns the function that removes it again.
func (s *listenerSet) add(l Listener) func() {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(l) })
	}
}

func (s *listenerSet) remove(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.listeners {
		if cur == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

// emit invokes fn for every subscriber.
func (s *listenerSet) emit(fn func(Listener)) {
	s.mu.RLock()
	snapshot := make([]Listener, len(s.listeners))
	copy(snapshot, s.listeners)
	s.mu.RUnlock()

	for _, l := range snapshot {
		notifyListener(l, fn)
	}
}

func notifyListener(l Listener, fn func(Listener)) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sculpt: event listener panicked",
				"panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn(l)
}
