package sculpt

import (
	"context"
	"sort"
)

// NewDefaultRelighterFactory returns the built-in relighter: a top-down
// column pass for sky light and a breadth-first flood from emitters for
// block light, both driven by the platform's block registry. Platforms with
// native lighting return their own factory instead; this one exists so a
// platform without an engine-side relighter still satisfies EffectLighting.
// minY and maxY are the inclusive vertical build limits. A nil registry
// falls back to treating every non-air block as fully opaque.
func NewDefaultRelighterFactory(blocks BlockRegistry, minY, maxY int) RelighterFactory {
	if blocks == nil {
		blocks = opaqueRegistry{}
	}
	return &defaultRelighterFactory{blocks: blocks, minY: minY, maxY: maxY}
}

type defaultRelighterFactory struct {
	blocks     BlockRegistry
	minY, maxY int
}

// NewRelighter returns a relighter bound to world.
func (f *defaultRelighterFactory) NewRelighter(world LightExtent) Relighter {
	return &defaultRelighter{world: world, blocks: f.blocks, minY: f.minY, maxY: f.maxY}
}

// opaqueRegistry is the registry-less fallback: air passes light, everything
// else blocks it, nothing emits.
type opaqueRegistry struct{}

func (opaqueRegistry) Opacity(state BlockState) uint8 {
	if state.IsAir() {
		return 0
	}
	return maxLight
}

func (opaqueRegistry) Emission(BlockState) uint8 { return 0 }

const maxLight = 15

// relightCheckInterval is how many flood steps run between cancellation
// checks.
const relightCheckInterval = 4096

type defaultRelighter struct {
	world      LightExtent
	blocks     BlockRegistry
	minY, maxY int
}

var _ Relighter = (*defaultRelighter)(nil)

// Relight recomputes sky and block light for the region. Both light grids
// are computed into buffers first, then written back chunk by chunk with the
// nearest chunks first; ctx is checked between flood steps and before every
// chunk write-back, so cancellation never leaves a chunk half-written.
func (r *defaultRelighter) Relight(ctx context.Context, region Region) error {
	area, ok := r.clampY(region)
	if !ok {
		return nil
	}

	sky, err := r.computeSkyLight(ctx, area)
	if err != nil {
		return err
	}
	block, err := r.computeBlockLight(ctx, area)
	if err != nil {
		return err
	}

	for _, cp := range nearestChunks(area) {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.writeChunk(area, cp, sky, block)
	}
	return nil
}

// clampY restricts the region to the build limits. Reports false when
// nothing of the region lies inside them.
func (r *defaultRelighter) clampY(region Region) (Region, bool) {
	min, max := region.Min(), region.Max()
	if min.Y < r.minY {
		min.Y = r.minY
	}
	if max.Y > r.maxY {
		max.Y = r.maxY
	}
	if min.Y > max.Y {
		return Region{}, false
	}
	return NewRegion(min, max), true
}

// computeSkyLight runs the top-down column pass. Columns start at the world
// ceiling so blocks above the region still cast their shadow into it. The
// buffer holds only nonzero levels; absent positions are dark.
func (r *defaultRelighter) computeSkyLight(ctx context.Context, area Region) (map[BlockPos]uint8, error) {
	min, max := area.Min(), area.Max()
	sky := make(map[BlockPos]uint8)
	for x := min.X; x <= max.X; x++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for z := min.Z; z <= max.Z; z++ {
			level := uint8(maxLight)
			for y := r.maxY; y >= min.Y; y-- {
				if level > 0 {
					if o := r.blocks.Opacity(r.world.Block(BlockPos{x, y, z})); o >= level {
						level = 0
					} else {
						level -= o
					}
				}
				if y <= max.Y && level > 0 {
					sky[BlockPos{x, y, z}] = level
				}
			}
		}
	}
	return sky, nil
}

type lightNode struct {
	pos   BlockPos
	level uint8
}

// computeBlockLight floods light outward from every emitter in the area and
// from the live light levels just outside its faces, so recomputed light
// joins seamlessly with the surrounding world. The buffer holds only
// nonzero levels.
func (r *defaultRelighter) computeBlockLight(ctx context.Context, area Region) (map[BlockPos]uint8, error) {
	buf := make(map[BlockPos]uint8)
	var queue []lightNode

	min, max := area.Min(), area.Max()
	for x := min.X; x <= max.X; x++ {
		for y := min.Y; y <= max.Y; y++ {
			for z := min.Z; z <= max.Z; z++ {
				pos := BlockPos{x, y, z}
				if e := r.blocks.Emission(r.world.Block(pos)); e > 0 {
					buf[pos] = e
					queue = append(queue, lightNode{pos, e})
				}
			}
		}
	}
	queue = append(queue, r.boundarySeeds(area)...)

	steps := 0
	for head := 0; head < len(queue); head++ {
		if steps++; steps%relightCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		node := queue[head]
		for _, n := range neighbours(node.pos) {
			if !area.Contains(n) {
				continue
			}
			dec := r.blocks.Opacity(r.world.Block(n))
			if dec < 1 {
				dec = 1
			}
			if node.level <= dec {
				continue
			}
			cand := node.level - dec
			if cand > buf[n] {
				buf[n] = cand
				queue = append(queue, lightNode{n, cand})
			}
		}
	}
	return buf, nil
}

// boundarySeeds reads the current block light one step outside every face of
// the area and returns the levels worth propagating inward.
func (r *defaultRelighter) boundarySeeds(area Region) []lightNode {
	var seeds []lightNode
	min, max := area.Min(), area.Max()
	seed := func(pos BlockPos) {
		if pos.Y < r.minY || pos.Y > r.maxY {
			return
		}
		if lv := r.world.BlockLight(pos); lv > 1 {
			seeds = append(seeds, lightNode{pos, lv})
		}
	}
	for y := min.Y; y <= max.Y; y++ {
		for z := min.Z; z <= max.Z; z++ {
			seed(BlockPos{min.X - 1, y, z})
			seed(BlockPos{max.X + 1, y, z})
		}
	}
	for x := min.X; x <= max.X; x++ {
		for z := min.Z; z <= max.Z; z++ {
			seed(BlockPos{x, min.Y - 1, z})
			seed(BlockPos{x, max.Y + 1, z})
		}
		for y := min.Y; y <= max.Y; y++ {
			seed(BlockPos{x, y, min.Z - 1})
			seed(BlockPos{x, y, max.Z + 1})
		}
	}
	return seeds
}

// writeChunk stores the computed light for the chunk's slice of the area.
// Absent buffer entries write level zero, clearing stale light.
func (r *defaultRelighter) writeChunk(area Region, cp ChunkPos, sky, block map[BlockPos]uint8) {
	min, max := area.Min(), area.Max()
	x0, x1 := chunkSpan(int(cp.X), min.X, max.X)
	z0, z1 := chunkSpan(int(cp.Z), min.Z, max.Z)
	for x := x0; x <= x1; x++ {
		for z := z0; z <= z1; z++ {
			for y := min.Y; y <= max.Y; y++ {
				pos := BlockPos{x, y, z}
				r.world.SetSkyLight(pos, sky[pos])
				r.world.SetBlockLight(pos, block[pos])
			}
		}
	}
}

// chunkSpan intersects one chunk axis with the area's [lo, hi] span.
func chunkSpan(chunk, lo, hi int) (int, int) {
	start := chunk << 4
	end := start + 15
	if start < lo {
		start = lo
	}
	if end > hi {
		end = hi
	}
	return start, end
}

func neighbours(p BlockPos) [6]BlockPos {
	return [6]BlockPos{
		{p.X + 1, p.Y, p.Z}, {p.X - 1, p.Y, p.Z},
		{p.X, p.Y + 1, p.Z}, {p.X, p.Y - 1, p.Z},
		{p.X, p.Y, p.Z + 1}, {p.X, p.Y, p.Z - 1},
	}
}

// nearestChunks orders the area's chunks by distance from its center, so
// light near the likely viewpoint lands first.
func nearestChunks(area Region) []ChunkPos {
	chunks := area.Chunks()
	center := area.Center()
	sort.Slice(chunks, func(i, j int) bool {
		di := chunks[i].Center(center.Y()).Sub(center).LenSqr()
		dj := chunks[j].Center(center.Y()).Sub(center).LenSqr()
		return di < dj
	})
	return chunks
}
