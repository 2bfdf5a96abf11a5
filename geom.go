package sculpt

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// BlockPos is an integer block coordinate.
type BlockPos struct {
	X, Y, Z int
}

// Add returns the position offset by dx, dy, dz.
func (p BlockPos) Add(dx, dy, dz int) BlockPos {
	return BlockPos{p.X + dx, p.Y + dy, p.Z + dz}
}

// Chunk returns the chunk column containing the position.
func (p BlockPos) Chunk() ChunkPos {
	return ChunkPos{int32(p.X >> 4), int32(p.Z >> 4)}
}

// Vec3 returns the position as a float vector.
func (p BlockPos) Vec3() mgl64.Vec3 {
	return mgl64.Vec3{float64(p.X), float64(p.Y), float64(p.Z)}
}

// String returns the string representation of the position.
func (p BlockPos) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z)
}

// ChunkPos identifies a 16×16 block column.
type ChunkPos struct {
	X, Z int32
}

// Key packs the chunk coordinate into a single int64 map key.
func (c ChunkPos) Key() int64 {
	return int64(c.X)<<32 | int64(uint32(c.Z))
}

// Center returns the block-space center of the chunk column at height y.
func (c ChunkPos) Center(y float64) mgl64.Vec3 {
	return mgl64.Vec3{float64(c.X)*16 + 8, y, float64(c.Z)*16 + 8}
}

// Region is a closed, axis-aligned box of block positions. The zero value is
// the single-block region at the origin. Regions are immutable values.
type Region struct {
	min, max BlockPos
}

// NewRegion returns the region spanning the two corners, normalized so that
// Min is component-wise less than or equal to Max.
func NewRegion(a, b BlockPos) Region {
	if a.X > b.X {
		a.X, b.X = b.X, a.X
	}
	if a.Y > b.Y {
		a.Y, b.Y = b.Y, a.Y
	}
	if a.Z > b.Z {
		a.Z, b.Z = b.Z, a.Z
	}
	return Region{min: a, max: b}
}

// Min returns the lowest corner of the region.
func (r Region) Min() BlockPos { return r.min }

// Max returns the highest corner of the region.
func (r Region) Max() BlockPos { return r.max }

// Contains returns true if the position lies inside the region.
func (r Region) Contains(p BlockPos) bool {
	return p.X >= r.min.X && p.X <= r.max.X &&
		p.Y >= r.min.Y && p.Y <= r.max.Y &&
		p.Z >= r.min.Z && p.Z <= r.max.Z
}

// ContainsRegion returns true if other lies entirely inside the region.
func (r Region) ContainsRegion(other Region) bool {
	return r.Contains(other.min) && r.Contains(other.max)
}

// Intersects returns true if both regions share at least one block. The test
// is a closed-interval bounding-volume overlap on all three axes.
func (r Region) Intersects(other Region) bool {
	return r.min.X <= other.max.X && r.max.X >= other.min.X &&
		r.min.Y <= other.max.Y && r.max.Y >= other.min.Y &&
		r.min.Z <= other.max.Z && r.max.Z >= other.min.Z
}

// Intersect returns the overlapping region and true, or the zero region and
// false when the regions are disjoint.
func (r Region) Intersect(other Region) (Region, bool) {
	if !r.Intersects(other) {
		return Region{}, false
	}
	return Region{
		min: BlockPos{max(r.min.X, other.min.X), max(r.min.Y, other.min.Y), max(r.min.Z, other.min.Z)},
		max: BlockPos{min(r.max.X, other.max.X), min(r.max.Y, other.max.Y), min(r.max.Z, other.max.Z)},
	}, true
}

// Union returns the smallest region containing both regions.
func (r Region) Union(other Region) Region {
	return Region{
		min: BlockPos{min(r.min.X, other.min.X), min(r.min.Y, other.min.Y), min(r.min.Z, other.min.Z)},
		max: BlockPos{max(r.max.X, other.max.X), max(r.max.Y, other.max.Y), max(r.max.Z, other.max.Z)},
	}
}

// Volume returns the number of block positions in the region.
func (r Region) Volume() int {
	return (r.max.X - r.min.X + 1) * (r.max.Y - r.min.Y + 1) * (r.max.Z - r.min.Z + 1)
}

// Center returns the geometric center of the region in block space.
func (r Region) Center() mgl64.Vec3 {
	return r.min.Vec3().Add(r.max.Vec3()).Mul(0.5)
}

// Chunks returns the chunk columns the region touches, in row-major order.
func (r Region) Chunks() []ChunkPos {
	minC := r.min.Chunk()
	maxC := r.max.Chunk()
	chunks := make([]ChunkPos, 0, int(maxC.X-minC.X+1)*int(maxC.Z-minC.Z+1))
	for x := minC.X; x <= maxC.X; x++ {
		for z := minC.Z; z <= maxC.Z; z++ {
			chunks = append(chunks, ChunkPos{x, z})
		}
	}
	return chunks
}

// String returns the string representation of the region.
func (r Region) String() string {
	return fmt.Sprintf("[%s..%s]", r.min, r.max)
}
