package sculpt

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNoProvider is reported when a capability has zero eligible
	// platforms. It is a configuration fault; the core never retries it.
	ErrNoProvider = errors.New("sculpt: no platform provides the capability")

	// ErrUnsupportedSideEffect is reported when negotiation drops a side
	// effect the edit marked required. The edit fails before any write.
	ErrUnsupportedSideEffect = errors.New("sculpt: required side effect not supported by the active platform")

	// ErrOutOfRegion is returned for a block change outside the region the
	// write is bounded to.
	ErrOutOfRegion = errors.New("sculpt: block change outside the bounding region")

	// ErrEditClosed is returned when staging changes on an edit that has
	// already been applied.
	ErrEditClosed = errors.New("sculpt: edit already applied")

	// ErrManagerClosed is returned by operations on a shut-down manager.
	ErrManagerClosed = errors.New("sculpt: manager is shut down")

	// ErrUnknownEdit is returned when the history journal holds no change
	// set for the requested edit id.
	ErrUnknownEdit = errors.New("sculpt: no change set recorded for edit")

	// ErrJournalClosed is returned by operations on a closed history journal.
	ErrJournalClosed = errors.New("sculpt: history journal is closed")
)

// ProcessorFault reports a chain link that failed while processing an edit.
// The edit it belonged to has been aborted and rolled back; no partial
// changes from it persist.
type ProcessorFault struct {
	// Processor is the name of the failed chain link.
	Processor string

	// Phase is the phase the processor ran in.
	Phase Phase

	// Err is the underlying failure. Recovered panics are wrapped here.
	Err error
}

// Error implements the error interface.
func (f *ProcessorFault) Error() string {
	return fmt.Sprintf("sculpt: processor %q failed in %v phase: %v", f.Processor, f.Phase, f.Err)
}

// Unwrap returns the underlying failure.
func (f *ProcessorFault) Unwrap() error { return f.Err }

// RelightFault records a failed lighting computation. The relight job that
// carries it still finishes as done; the affected region keeps its previous,
// best-effort light values. A relight fault never aborts the edit.
type RelightFault struct {
	// JobID identifies the relight job that failed.
	JobID uuid.UUID

	// Region is the union region the job covered.
	Region Region

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (f *RelightFault) Error() string {
	return fmt.Sprintf("sculpt: relight job %s failed for %v: %v", f.JobID, f.Region, f.Err)
}

// Unwrap returns the underlying failure.
func (f *RelightFault) Unwrap() error { return f.Err }
