package main

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateWallsStaysInsideGridAndClearOfStarts(t *testing.T) {
	p := gridParams{XSize: 80, ZSize: 80, XOrigin: -10, ZOrigin: -40, XStep: 0.5, ZStep: 0.5}
	starts := []vec2{{X: 0, Z: -6}, {X: 0, Z: 6}}
	walls := generateWalls(rand.New(rand.NewSource(7)), 12, p, starts)
	assert.NotEmpty(t, walls)
	assert.LessOrEqual(t, len(walls), 12)
	for _, w := range walls {
		assert.NotEqual(t, w.A, w.B)
		for _, pt := range []vec2{w.A, w.B} {
			assert.GreaterOrEqual(t, pt.X, p.XOrigin)
			assert.LessOrEqual(t, pt.X, p.XOrigin+p.XSize)
			assert.GreaterOrEqual(t, pt.Z, p.ZOrigin)
			assert.LessOrEqual(t, pt.Z, p.ZOrigin+p.ZSize)
		}
		for _, s := range starts {
			assert.GreaterOrEqual(t, segmentDistance(w, s), wallExclusionRadius)
		}
	}
	again := generateWalls(rand.New(rand.NewSource(7)), 12, p, starts)
	assert.Equal(t, walls, again)
}

func TestSegmentDistance(t *testing.T) {
	seg := wallSegment{A: vec2{X: 0, Z: 0}, B: vec2{X: 10, Z: 0}}
	assert.InDelta(t, 3, segmentDistance(seg, vec2{X: 5, Z: 3}), 1e-12)
	assert.InDelta(t, 5, segmentDistance(seg, vec2{X: 13, Z: 4}), 1e-12)
}
