package main

import (
	"math"
	"math/rand"
)

const (
	harbourWallMinLen   = 4.0
	harbourWallMaxLen   = 14.0
	wallExclusionRadius = 6.0
)

// generateWalls procedurally places count axis-aligned wall segments inside
// the grid, skipping any that pass within wallExclusionRadius of keepClear.
func generateWalls(rng *rand.Rand, count int, p gridParams, keepClear []vec2) []wallSegment {
	walls := make([]wallSegment, 0, count)
	for attempts := 0; len(walls) < count && attempts < 20*count; attempts++ {
		length := harbourWallMinLen + rng.Float64()*(harbourWallMaxLen-harbourWallMinLen)
		x := p.XOrigin + rng.Float64()*p.XSize
		z := p.ZOrigin + rng.Float64()*p.ZSize
		seg := wallSegment{A: vec2{X: x, Z: z}, B: vec2{X: x, Z: z + length}}
		if rng.Intn(2) == 0 {
			seg.B = vec2{X: x + length, Z: z}
		}
		seg.B.X = math.Min(seg.B.X, p.XOrigin+p.XSize)
		seg.B.Z = math.Min(seg.B.Z, p.ZOrigin+p.ZSize)
		if seg.A == seg.B || !clearOf(seg, keepClear) {
			continue
		}
		walls = append(walls, seg)
	}
	return walls
}

// clearOf reports whether seg stays wallExclusionRadius away from every point.
func clearOf(seg wallSegment, points []vec2) bool {
	for _, pt := range points {
		if segmentDistance(seg, pt) < wallExclusionRadius {
			return false
		}
	}
	return true
}

// segmentDistance is the distance from p to the closest point of seg.
func segmentDistance(seg wallSegment, p vec2) float64 {
	dx := seg.B.X - seg.A.X
	dz := seg.B.Z - seg.A.Z
	t := ((p.X-seg.A.X)*dx + (p.Z-seg.A.Z)*dz) / (dx*dx + dz*dz)
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(seg.A.X+t*dx-p.X, seg.A.Z+t*dz-p.Z)
}
