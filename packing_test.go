package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vesselWithSamples returns a vessel whose history holds n samples with
// times 0..n-1 (the first is the initial sample).
func vesselWithSamples(t *testing.T, id, n, capacity int) *vessel {
	t.Helper()
	v := newTestVessel(t, id, vesselState{Position: vec2{X: float64(-id)}, Speed: 1}, capacity)
	for i := 1; i < n; i++ {
		v.update(helmCommand{}, 0.01, float64(i))
	}
	return v
}

func TestPackDesignatedLengthFromVesselZero(t *testing.T) {
	vessels := []*vessel{
		vesselWithSamples(t, 0, 50, 1200),
		vesselWithSamples(t, 1, 1200, 1200),
	}
	var p trajectoryPack
	require.NoError(t, packTrajectories(&p, vessels, pathLengthDesignated))
	assert.Equal(t, 50, p.stride)
	assert.Equal(t, 100, p.samples())
	assert.Len(t, p.times, 100)
	assert.Len(t, p.positions, 200)
	assert.Equal(t, []int32{50, 50}, p.counts)
	// vessel 1 contributes its newest 50 samples
	assert.Equal(t, float32(1150), p.times[50])
	assert.Equal(t, float32(1199), p.times[99])
	assert.Equal(t, float32(49), p.times[49])
}

func TestPackDesignatedRejectsShortVessel(t *testing.T) {
	vessels := []*vessel{
		vesselWithSamples(t, 0, 30, 100),
		vesselWithSamples(t, 1, 10, 100),
	}
	var p trajectoryPack
	err := packTrajectories(&p, vessels, pathLengthDesignated)
	assert.ErrorIs(t, err, errShortTrajectory)
}

func TestPackMaxPadsShorterVessels(t *testing.T) {
	vessels := []*vessel{
		vesselWithSamples(t, 0, 3, 100),
		vesselWithSamples(t, 1, 5, 100),
	}
	var p trajectoryPack
	require.NoError(t, packTrajectories(&p, vessels, pathLengthMax))
	assert.Equal(t, 5, p.stride)
	assert.Equal(t, []int32{3, 5}, p.counts)
	assert.Equal(t, []float32{0, 1, 2, 0, 0}, p.times[:5])
	assert.Equal(t, []float32{0, 1, 2, 3, 4}, p.times[5:])
	// padding is zeroed in every buffer
	assert.Equal(t, float32(0), p.depths[4])
	assert.Equal(t, []float32{0, 0}, p.positions[8:10])
	// vessel 1 starts at x = -1
	assert.Equal(t, float32(-1), p.positions[10])
}

func TestPackReuseClearsStaleSamples(t *testing.T) {
	long := []*vessel{vesselWithSamples(t, 0, 4, 100), vesselWithSamples(t, 1, 4, 100)}
	var p trajectoryPack
	require.NoError(t, packTrajectories(&p, long, pathLengthMax))
	p.release()
	assert.Equal(t, 0, p.samples())
	assert.Empty(t, p.times)

	short := []*vessel{vesselWithSamples(t, 0, 2, 100), vesselWithSamples(t, 1, 4, 100)}
	require.NoError(t, packTrajectories(&p, short, pathLengthMax))
	assert.Equal(t, []float32{0, 1, 0, 0}, p.times[:4])
	require.NoError(t, validatePack(&p, 2))
}

func TestPackNoVessels(t *testing.T) {
	var p trajectoryPack
	assert.ErrorIs(t, packTrajectories(&p, nil, pathLengthMax), errConfiguration)
}

func TestParsePathLengthPolicy(t *testing.T) {
	p, err := parsePathLengthPolicy("Designated")
	require.NoError(t, err)
	assert.Equal(t, pathLengthDesignated, p)
	assert.Equal(t, "designated", p.String())
	p, err = parsePathLengthPolicy("")
	require.NoError(t, err)
	assert.Equal(t, "max", p.String())
	_, err = parsePathLengthPolicy("oldest")
	assert.ErrorIs(t, err, errConfiguration)
}

func TestPackHulls(t *testing.T) {
	vessels := []*vessel{vesselWithSamples(t, 0, 1, 10), vesselWithSamples(t, 1, 1, 10)}
	hulls, err := packHulls(vessels)
	require.NoError(t, err)
	require.Len(t, hulls, 3*defaultHullNx*defaultHullNz*2)
	p := vessels[1].points[0]
	base := 3 * defaultHullNx * defaultHullNz
	assert.Equal(t, []float32{float32(p.X), float32(p.Y), float32(p.Z)}, hulls[base:base+3])

	odd, err := newVessel(2, defaultHull(3, 11, 4), vesselState{}, testRates(), 10, 0)
	require.NoError(t, err)
	_, err = packHulls(append(vessels, odd))
	assert.ErrorIs(t, err, errConfiguration)
}
