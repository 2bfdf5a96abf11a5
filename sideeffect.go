package sculpt

import (
	"math/bits"
	"strings"
)

// SideEffect is a named post-edit behavior a platform may apply after block
// mutations are committed.
type SideEffect uint8

const (
	// EffectLighting recomputes light levels for the edited regions. It is
	// the one effect the core acts on itself, by enqueueing a relight job.
	EffectLighting SideEffect = iota

	// EffectNeighbors sends block-update notifications to adjacent blocks.
	EffectNeighbors

	// EffectPhysics triggers gravity, fluid flow and similar simulation on
	// the placed blocks.
	EffectPhysics

	// EffectEntityAI updates entity pathfinding state around the edit.
	EffectEntityAI

	// EffectValidation re-validates placed block states against their
	// surroundings.
	EffectValidation

	// sideEffectCount is the total number of side effects.
	sideEffectCount
)

// String returns the string representation of the side effect.
func (e SideEffect) String() string {
	switch e {
	case EffectLighting:
		return "Lighting"
	case EffectNeighbors:
		return "Neighbors"
	case EffectPhysics:
		return "Physics"
	case EffectEntityAI:
		return "EntityAI"
	case EffectValidation:
		return "Validation"
	default:
		return "Unknown"
	}
}

// SideEffectSet is a bitmask over SideEffect values. The zero value is the
// empty set. Sets are values; all operations return new sets and never
// mutate their operands, so a set may be read concurrently from any number
// of goroutines.
type SideEffectSet uint32

// NewSideEffectSet returns a set containing the given effects.
func NewSideEffectSet(effects ...SideEffect) SideEffectSet {
	var s SideEffectSet
	for _, e := range effects {
		s = s.Add(e)
	}
	return s
}

// AllSideEffects returns the set of every known side effect.
func AllSideEffects() SideEffectSet {
	return SideEffectSet(1<<sideEffectCount) - 1
}

// Add returns a set with the given effect set.
func (s SideEffectSet) Add(e SideEffect) SideEffectSet {
	return s | 1<<e
}

// Remove returns a set with the given effect cleared.
func (s SideEffectSet) Remove(e SideEffect) SideEffectSet {
	return s &^ (1 << e)
}

// Has returns true if the effect is in the set.
func (s SideEffectSet) Has(e SideEffect) bool {
	return s&(1<<e) != 0
}

// And returns the intersection of both sets.
func (s SideEffectSet) And(other SideEffectSet) SideEffectSet {
	return s & other
}

// Or returns the union of both sets.
func (s SideEffectSet) Or(other SideEffectSet) SideEffectSet {
	return s | other
}

// AndNot returns the effects in s that are not in other.
func (s SideEffectSet) AndNot(other SideEffectSet) SideEffectSet {
	return s &^ other
}

// ContainsAll returns true if every effect in other is also in s.
func (s SideEffectSet) ContainsAll(other SideEffectSet) bool {
	return s&other == other
}

// ContainsAny returns true if any effect in other is also in s.
func (s SideEffectSet) ContainsAny(other SideEffectSet) bool {
	return s&other != 0
}

// IsDisjoint returns true if no effect is in both s and other.
func (s SideEffectSet) IsDisjoint(other SideEffectSet) bool {
	return s&other == 0
}

// IsEmpty returns true if no effects are set.
func (s SideEffectSet) IsEmpty() bool {
	return s == 0
}

// Count returns the number of effects in the set.
func (s SideEffectSet) Count() int {
	return bits.OnesCount32(uint32(s))
}

// Effects returns the effects in the set in declaration order.
func (s SideEffectSet) Effects() []SideEffect {
	effects := make([]SideEffect, 0, s.Count())
	for e := SideEffect(0); e < sideEffectCount; e++ {
		if s.Has(e) {
			effects = append(effects, e)
		}
	}
	return effects
}

// String returns the string representation of the set, e.g. "{Lighting|Physics}".
func (s SideEffectSet) String() string {
	if s.IsEmpty() {
		return "{}"
	}
	names := make([]string, 0, s.Count())
	for _, e := range s.Effects() {
		names = append(names, e.String())
	}
	return "{" + strings.Join(names, "|") + "}"
}

// Negotiate intersects the requested effects with the effects the platform
// supports and returns the set that will actually be applied. It is a pure
// set operation and never mutates either argument.
//
// Concurrency:
// Safe to call from any number of edit pipelines at once.
func Negotiate(requested, supported SideEffectSet) SideEffectSet {
	return requested.And(supported)
}
