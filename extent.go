package sculpt

import (
	"sync"
)

// Extent is an addressable, boundable region of block data. Committed edits
// flow through an Extent; it is the sole mutation point the core writes to.
type Extent interface {
	// Bounds returns the region the extent can address.
	Bounds() Region

	// Block returns the block state at the position. Positions outside
	// Bounds read as Air.
	Block(pos BlockPos) BlockState

	// SetBlock replaces the block state at the position.
	SetBlock(pos BlockPos, state BlockState) error
}

// LightExtent is an extent that also stores per-block light values. Relight
// jobs write their results through this interface. Light levels range 0-15.
type LightExtent interface {
	Extent

	// BlockLight returns the block light level at the position.
	BlockLight(pos BlockPos) uint8

	// SetBlockLight stores the block light level at the position.
	SetBlockLight(pos BlockPos, level uint8)

	// SkyLight returns the sky light level at the position.
	SkyLight(pos BlockPos) uint8

	// SetSkyLight stores the sky light level at the position.
	SetSkyLight(pos BlockPos, level uint8)
}

// World is a named extent served by a platform.
type World interface {
	Extent

	// Name returns the display name of the world.
	Name() string
}

// MemoryExtent is a map-backed LightExtent. It backs tests, scratch edits,
// and platforms without a native store of their own. Unset positions read as
// Air with zero light.
//
// Concurrency:
// All methods are safe for concurrent use; relight workers write light while
// the pipeline reads blocks.
type MemoryExtent struct {
	mu         sync.RWMutex
	bounds     Region
	blocks     map[BlockPos]BlockState
	blockLight map[BlockPos]uint8
	skyLight   map[BlockPos]uint8
}

var _ LightExtent = (*MemoryExtent)(nil)

// NewMemoryExtent returns an empty extent addressing the given bounds.
func NewMemoryExtent(bounds Region) *MemoryExtent {
	return &MemoryExtent{
		bounds:     bounds,
		blocks:     make(map[BlockPos]BlockState),
		blockLight: make(map[BlockPos]uint8),
		skyLight:   make(map[BlockPos]uint8),
	}
}

// Bounds returns the region the extent addresses.
func (m *MemoryExtent) Bounds() Region {
	return m.bounds
}

// Block returns the block state at the position.
func (m *MemoryExtent) Block(pos BlockPos) BlockState {
	m.mu.RLock()
	state := m.blocks[pos]
	m.mu.RUnlock()
	return state
}

// SetBlock replaces the block state at the position. Writing outside the
// extent's bounds returns ErrOutOfRegion.
func (m *MemoryExtent) SetBlock(pos BlockPos, state BlockState) error {
	if !m.bounds.Contains(pos) {
		return ErrOutOfRegion
	}
	m.mu.Lock()
	if state.IsAir() {
		delete(m.blocks, pos)
	} else {
		m.blocks[pos] = state
	}
	m.mu.Unlock()
	return nil
}

// BlockLight returns the block light level at the position.
func (m *MemoryExtent) BlockLight(pos BlockPos) uint8 {
	m.mu.RLock()
	level := m.blockLight[pos]
	m.mu.RUnlock()
	return level
}

// SetBlockLight stores the block light level at the position.
func (m *MemoryExtent) SetBlockLight(pos BlockPos, level uint8) {
	m.mu.Lock()
	if level == 0 {
		delete(m.blockLight, pos)
	} else {
		m.blockLight[pos] = level
	}
	m.mu.Unlock()
}

// SkyLight returns the sky light level at the position.
func (m *MemoryExtent) SkyLight(pos BlockPos) uint8 {
	m.mu.RLock()
	level := m.skyLight[pos]
	m.mu.RUnlock()
	return level
}

// SetSkyLight stores the sky light level at the position.
func (m *MemoryExtent) SetSkyLight(pos BlockPos, level uint8) {
	m.mu.Lock()
	if level == 0 {
		delete(m.skyLight, pos)
	} else {
		m.skyLight[pos] = level
	}
	m.mu.Unlock()
}

// Len returns the number of non-air blocks stored.
func (m *MemoryExtent) Len() int {
	m.mu.RLock()
	n := len(m.blocks)
	m.mu.RUnlock()
	return n
}

// boundedExtent restricts writes to a region. Reads pass through so that
// processors can inspect neighboring blocks outside the region they are
// allowed to mutate.
type boundedExtent struct {
	target Extent
	region Region
}

var _ Extent = (*boundedExtent)(nil)

func boundExtent(target Extent, region Region) *boundedExtent {
	return &boundedExtent{target: target, region: region}
}

// Bounds returns the writable region.
func (b *boundedExtent) Bounds() Region {
	return b.region
}

// Block reads through to the target extent.
func (b *boundedExtent) Block(pos BlockPos) BlockState {
	return b.target.Block(pos)
}

// SetBlock forwards writes inside the region and rejects everything else
// with ErrOutOfRegion.
func (b *boundedExtent) SetBlock(pos BlockPos, state BlockState) error {
	if !b.region.Contains(pos) {
		return ErrOutOfRegion
	}
	return b.target.SetBlock(pos, state)
}

// NewNamedWorld wraps an extent as a World with the given name. When the
// extent stores light, the returned world does too, so relight jobs can
// write through it.
func NewNamedWorld(name string, e Extent) World {
	if le, ok := e.(LightExtent); ok {
		return &namedLightWorld{LightExtent: le, name: name}
	}
	return &namedWorld{Extent: e, name: name}
}

type namedWorld struct {
	Extent
	name string
}

func (w *namedWorld) Name() string { return w.name }

type namedLightWorld struct {
	LightExtent
	name string
}

func (w *namedLightWorld) Name() string { return w.name }
