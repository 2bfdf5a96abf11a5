package sculpt

import "testing"

func TestSideEffectSetAlgebra(t *testing.T) {
	s := NewSideEffectSet(EffectLighting, EffectPhysics)

	if !s.Has(EffectLighting) || !s.Has(EffectPhysics) {
		t.Fatalf("expected lighting and physics in %v", s)
	}
	if s.Has(EffectNeighbors) {
		t.Fatalf("neighbors must not be in %v", s)
	}
	if got := s.Count(); got != 2 {
		t.Fatalf("Count = %d, want 2", got)
	}

	s = s.Add(EffectNeighbors)
	if !s.Has(EffectNeighbors) {
		t.Fatalf("Add did not include neighbors")
	}
	s = s.Remove(EffectPhysics)
	if s.Has(EffectPhysics) {
		t.Fatalf("Remove left physics in %v", s)
	}

	other := NewSideEffectSet(EffectLighting, EffectEntityAI)
	if got := s.And(other); !got.Has(EffectLighting) || got.Count() != 1 {
		t.Fatalf("And = %v, want {Lighting}", got)
	}
	if got := s.Or(other); got.Count() != 3 {
		t.Fatalf("Or = %v, want 3 effects", got)
	}
	if got := s.AndNot(other); got.Has(EffectLighting) || !got.Has(EffectNeighbors) {
		t.Fatalf("AndNot = %v, want {Neighbors}", got)
	}
}

func TestSideEffectSetContainment(t *testing.T) {
	all := AllSideEffects()
	some := NewSideEffectSet(EffectLighting, EffectValidation)

	if !all.ContainsAll(some) {
		t.Fatalf("full set must contain %v", some)
	}
	if some.ContainsAll(all) {
		t.Fatalf("%v must not contain the full set", some)
	}
	if !some.ContainsAny(NewSideEffectSet(EffectValidation, EffectPhysics)) {
		t.Fatalf("expected overlap on validation")
	}
	if !some.IsDisjoint(NewSideEffectSet(EffectNeighbors, EffectEntityAI)) {
		t.Fatalf("expected disjoint sets")
	}

	var empty SideEffectSet
	if !empty.IsEmpty() {
		t.Fatalf("zero value must be the empty set")
	}
	if !all.ContainsAll(empty) {
		t.Fatalf("every set contains the empty set")
	}
}

func TestSideEffectSetEffectsOrdered(t *testing.T) {
	s := NewSideEffectSet(EffectValidation, EffectLighting, EffectPhysics)
	got := s.Effects()
	want := []SideEffect{EffectLighting, EffectPhysics, EffectValidation}
	if len(got) != len(want) {
		t.Fatalf("Effects = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Effects[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSideEffectSetString(t *testing.T) {
	if got := NewSideEffectSet().String(); got != "{}" {
		t.Fatalf("empty set String = %q", got)
	}
	if got := NewSideEffectSet(EffectLighting, EffectPhysics).String(); got != "{Lighting|Physics}" {
		t.Fatalf("String = %q", got)
	}
}

func TestNegotiate(t *testing.T) {
	requested := NewSideEffectSet(EffectLighting, EffectNeighbors, EffectPhysics)
	supported := NewSideEffectSet(EffectLighting, EffectPhysics, EffectValidation)

	got := Negotiate(requested, supported)
	want := NewSideEffectSet(EffectLighting, EffectPhysics)
	if got != want {
		t.Fatalf("Negotiate = %v, want %v", got, want)
	}

	// Pure: operands are unchanged values.
	if requested != NewSideEffectSet(EffectLighting, EffectNeighbors, EffectPhysics) {
		t.Fatalf("requested mutated to %v", requested)
	}
	if got := Negotiate(requested, 0); !got.IsEmpty() {
		t.Fatalf("negotiating against nothing = %v, want empty", got)
	}
	if got := Negotiate(0, supported); !got.IsEmpty() {
		t.Fatalf("negotiating nothing = %v, want empty", got)
	}
}
