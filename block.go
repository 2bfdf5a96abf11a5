package sculpt

import (
	"math/bits"
)

// BlockType is a dense numeric block type id. Ids are assigned by the active
// platform's block registry; the core never interprets them.
type BlockType uint16

// BlockState is one concrete block value: a type plus opaque property bits.
// The core treats property bits as payload; palette encoding is owned by the
// platform adapters.
type BlockState struct {
	Type  BlockType
	Props uint16
}

// Air is the zero block state.
var Air = BlockState{}

// IsAir returns true for the zero state.
func (s BlockState) IsAir() bool {
	return s == Air
}

// BlockTypeMask is a growable bitset over block types. It restricts which
// placed block types a placement processor corrects. A nil *BlockTypeMask is
// the unrestricted mask: it matches every type.
type BlockTypeMask struct {
	words []uint64
}

// NewBlockTypeMask returns a mask matching exactly the given types.
func NewBlockTypeMask(types ...BlockType) *BlockTypeMask {
	m := &BlockTypeMask{}
	for _, t := range types {
		m.Set(t)
	}
	return m
}

// Set adds a block type to the mask.
func (m *BlockTypeMask) Set(t BlockType) {
	w := int(t / 64)
	for len(m.words) <= w {
		m.words = append(m.words, 0)
	}
	m.words[w] |= 1 << (t % 64)
}

// Clear removes a block type from the mask.
func (m *BlockTypeMask) Clear(t BlockType) {
	w := int(t / 64)
	if w < len(m.words) {
		m.words[w] &^= 1 << (t % 64)
	}
}

// Has returns true if the mask matches the block type. A nil mask matches
// every type.
func (m *BlockTypeMask) Has(t BlockType) bool {
	if m == nil {
		return true
	}
	w := int(t / 64)
	return w < len(m.words) && m.words[w]&(1<<(t%64)) != 0
}

// Count returns the number of types in the mask.
func (m *BlockTypeMask) Count() int {
	if m == nil {
		return 0
	}
	n := 0
	for _, w := range m.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// IsEmpty returns true if no types are set. A nil mask is not empty; it is
// the unrestricted mask.
func (m *BlockTypeMask) IsEmpty() bool {
	return m != nil && m.Count() == 0
}

// Clone returns a copy of the mask. Cloning a nil mask returns nil.
func (m *BlockTypeMask) Clone() *BlockTypeMask {
	if m == nil {
		return nil
	}
	c := &BlockTypeMask{words: make([]uint64, len(m.words))}
	copy(c.words, m.words)
	return c
}
