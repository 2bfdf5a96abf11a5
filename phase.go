package sculpt

// Phase is the point in an edit's lifecycle at which a processor runs.
// Processors are executed in phase order: PhasePreCommit → PhasePostCommit.
type Phase int

const (
	// PhasePreCommit runs before any block reaches the backing store. Use
	// for placement fixups, mask clamps, and vetoing changes. Pre-commit
	// processors never observe partially committed state.
	PhasePreCommit Phase = iota

	// PhasePostCommit runs after the edit is committed. Use for tick-placed
	// blocks, fluid scheduling, and cleanup. Post-commit processors never
	// observe pre-commit state and may run on a background worker.
	PhasePostCommit

	// phaseCount is the total number of phases.
	phaseCount
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhasePreCommit:
		return "PreCommit"
	case PhasePostCommit:
		return "PostCommit"
	default:
		return "Unknown"
	}
}
