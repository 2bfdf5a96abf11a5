package sculpt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBlockRegistry struct {
	opacity  map[BlockType]uint8
	emission map[BlockType]uint8
}

func (f *fakeBlockRegistry) Opacity(state BlockState) uint8 { return f.opacity[state.Type] }

func (f *fakeBlockRegistry) Emission(state BlockState) uint8 { return f.emission[state.Type] }

const (
	stoneType   BlockType = 1
	glassType   BlockType = 2
	lanternType BlockType = 3
)

func lightFixture() (*MemoryExtent, BlockRegistry) {
	world := NewMemoryExtent(NewRegion(BlockPos{-16, 0, -16}, BlockPos{31, 31, 31}))
	reg := &fakeBlockRegistry{
		opacity:  map[BlockType]uint8{stoneType: 15, glassType: 3},
		emission: map[BlockType]uint8{lanternType: 10},
	}
	return world, reg
}

func TestDefaultRelighterSkyColumns(t *testing.T) {
	world, reg := lightFixture()
	r := NewDefaultRelighterFactory(reg, 0, 31).NewRelighter(world)

	// A roof above the region still shades the column below it.
	require.NoError(t, world.SetBlock(BlockPos{1, 20, 1}, BlockState{Type: stoneType}))
	// Partially opaque cover filters instead of blocking.
	require.NoError(t, world.SetBlock(BlockPos{2, 20, 2}, BlockState{Type: glassType}))

	region := NewRegion(BlockPos{0, 0, 0}, BlockPos{3, 15, 3})
	require.NoError(t, r.Relight(context.Background(), region))

	assert.Equal(t, uint8(15), world.SkyLight(BlockPos{0, 5, 0}), "open column is fully lit")
	assert.Equal(t, uint8(15), world.SkyLight(BlockPos{0, 15, 0}))
	assert.Zero(t, world.SkyLight(BlockPos{1, 5, 1}), "roofed column is dark")
	assert.Equal(t, uint8(12), world.SkyLight(BlockPos{2, 5, 2}), "glass filters 3 levels")
}

func TestDefaultRelighterEmitterFlood(t *testing.T) {
	world, reg := lightFixture()
	r := NewDefaultRelighterFactory(reg, 0, 31).NewRelighter(world)

	require.NoError(t, world.SetBlock(BlockPos{5, 5, 5}, BlockState{Type: lanternType}))

	region := NewRegion(BlockPos{2, 2, 2}, BlockPos{8, 8, 8})
	require.NoError(t, r.Relight(context.Background(), region))

	assert.Equal(t, uint8(10), world.BlockLight(BlockPos{5, 5, 5}), "the emitter keeps its own level")
	assert.Equal(t, uint8(9), world.BlockLight(BlockPos{6, 5, 5}))
	assert.Equal(t, uint8(8), world.BlockLight(BlockPos{5, 7, 5}))
	assert.Equal(t, uint8(7), world.BlockLight(BlockPos{6, 6, 6}), "light falls one level per step")
	assert.Equal(t, uint8(1), world.BlockLight(BlockPos{2, 2, 2}), "nine steps out, one level left")
}

func TestDefaultRelighterFloodRespectsOpacity(t *testing.T) {
	world, reg := lightFixture()
	r := NewDefaultRelighterFactory(reg, 0, 31).NewRelighter(world)

	require.NoError(t, world.SetBlock(BlockPos{5, 5, 5}, BlockState{Type: lanternType}))
	// A stone wall right next to the lantern swallows the light crossing it.
	require.NoError(t, world.SetBlock(BlockPos{6, 5, 5}, BlockState{Type: stoneType}))

	region := NewRegion(BlockPos{3, 3, 3}, BlockPos{8, 8, 8})
	require.NoError(t, r.Relight(context.Background(), region))

	assert.Zero(t, world.BlockLight(BlockPos{6, 5, 5}), "fully opaque neighbours absorb the light")
	assert.Equal(t, uint8(8), world.BlockLight(BlockPos{6, 5, 6}),
		"light reaches around the wall, two steps from the lantern")
}

func TestDefaultRelighterClearsStaleLight(t *testing.T) {
	world, reg := lightFixture()
	r := NewDefaultRelighterFactory(reg, 0, 31).NewRelighter(world)

	// Leftovers from a lantern that is no longer there.
	world.SetBlockLight(BlockPos{4, 4, 4}, 13)

	region := NewRegion(BlockPos{2, 2, 2}, BlockPos{6, 6, 6})
	require.NoError(t, r.Relight(context.Background(), region))

	assert.Zero(t, world.BlockLight(BlockPos{4, 4, 4}), "recomputation clears stale levels")
}

func TestDefaultRelighterSeedsFromBoundary(t *testing.T) {
	world, reg := lightFixture()
	r := NewDefaultRelighterFactory(reg, 0, 31).NewRelighter(world)

	region := NewRegion(BlockPos{4, 4, 4}, BlockPos{9, 9, 9})
	// Live light just outside the region's -X face.
	world.SetBlockLight(BlockPos{3, 6, 6}, 9)

	require.NoError(t, r.Relight(context.Background(), region))

	assert.Equal(t, uint8(8), world.BlockLight(BlockPos{4, 6, 6}),
		"outside light continues into the recomputed region")
	assert.Equal(t, uint8(7), world.BlockLight(BlockPos{5, 6, 6}))
	assert.Equal(t, uint8(9), world.BlockLight(BlockPos{3, 6, 6}),
		"the seed itself lies outside the region and is untouched")
}

func TestDefaultRelighterHonorsContext(t *testing.T) {
	world, reg := lightFixture()
	r := NewDefaultRelighterFactory(reg, 0, 31).NewRelighter(world)

	world.SetBlockLight(BlockPos{5, 5, 5}, 13)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Relight(ctx, NewRegion(BlockPos{0, 0, 0}, BlockPos{9, 9, 9}))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint8(13), world.BlockLight(BlockPos{5, 5, 5}),
		"a cancelled relight must not have started writing")
}

func TestDefaultRelighterClampsToBuildLimits(t *testing.T) {
	world, reg := lightFixture()
	r := NewDefaultRelighterFactory(reg, 0, 10).NewRelighter(world)

	world.SetSkyLight(BlockPos{1, 25, 1}, 7)

	// Entirely above the build limit: a no-op, not an error.
	require.NoError(t, r.Relight(context.Background(), NewRegion(BlockPos{0, 20, 0}, BlockPos{3, 30, 3})))
	assert.Equal(t, uint8(7), world.SkyLight(BlockPos{1, 25, 1}))

	// Straddling the limit relights only the part inside it.
	require.NoError(t, r.Relight(context.Background(), NewRegion(BlockPos{0, 5, 0}, BlockPos{3, 30, 3})))
	assert.Equal(t, uint8(7), world.SkyLight(BlockPos{1, 25, 1}), "cells above the limit stay untouched")
	assert.Equal(t, uint8(15), world.SkyLight(BlockPos{1, 8, 1}))
}

func TestDefaultRelighterNilRegistryFallback(t *testing.T) {
	world := NewMemoryExtent(NewRegion(BlockPos{0, 0, 0}, BlockPos{15, 15, 15}))
	r := NewDefaultRelighterFactory(nil, 0, 15).NewRelighter(world)

	require.NoError(t, world.SetBlock(BlockPos{2, 10, 2}, BlockState{Type: 77}))

	require.NoError(t, r.Relight(context.Background(), NewRegion(BlockPos{0, 0, 0}, BlockPos{4, 12, 4})))

	assert.Equal(t, uint8(15), world.SkyLight(BlockPos{1, 5, 1}), "air stays transparent")
	assert.Zero(t, world.SkyLight(BlockPos{2, 5, 2}), "unknown blocks count as opaque")
}
