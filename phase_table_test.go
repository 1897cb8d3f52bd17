package main

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseAxisExactDivision(t *testing.T) {
	for _, tc := range []struct {
		name           string
		min, max, step float64
		count          int
	}{
		{"fnh", defaultFnhMin, defaultFnhMax, defaultFnhStep, 120},
		{"h", defaultHMin, defaultHMax, defaultHStep, 59},
		{"alpha", defaultAlphaMin, defaultAlphaMax, defaultAlphaStep, 720},
		{"uneven", 0, 1, 0.3, 3},
		{"wide step", 0, 1, 5, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a, err := newPhaseAxis(tc.name, tc.min, tc.max, tc.step)
			require.NoError(t, err)
			assert.Equal(t, tc.count, a.Count)
			assert.InDelta(t, tc.max-tc.min, a.Step*float64(a.Count), 1e-12)
			assert.InDelta(t, tc.max, a.Min+a.Step*float64(a.Count), 1e-12)
		})
	}
}

func TestPhaseAxisRejectsBadRanges(t *testing.T) {
	_, err := newPhaseAxis("fnh", 1, 1, 0.1)
	assert.ErrorIs(t, err, errConfiguration)
	_, err = newPhaseAxis("fnh", 2, 1, 0.1)
	assert.ErrorIs(t, err, errConfiguration)
	_, err = newPhaseAxis("fnh", 0, 1, 0)
	assert.ErrorIs(t, err, errConfiguration)
}

func TestPhaseAxisIndex(t *testing.T) {
	a, err := newPhaseAxis("h", 1, 60, 1)
	require.NoError(t, err)
	for i := 0; i < a.Count; i++ {
		assert.Equal(t, i, a.index(a.center(i)))
	}
	assert.Equal(t, 0, a.index(-5))
	assert.Equal(t, a.Count-1, a.index(1000))
	assert.Equal(t, [4]float32{1, 60, 1, 59}, a.descriptor())
}

func TestPhaseAxesCellIndexAlphaFastest(t *testing.T) {
	axes := phaseAxes{
		Fnh:   phaseAxis{Count: 2},
		H:     phaseAxis{Count: 3},
		Alpha: phaseAxis{Count: 4},
	}
	assert.Equal(t, 24, axes.cellCount())
	assert.Equal(t, 0, axes.cellIndex(0, 0, 0))
	assert.Equal(t, 1, axes.cellIndex(0, 0, 1))
	assert.Equal(t, 4, axes.cellIndex(0, 1, 0))
	assert.Equal(t, 12, axes.cellIndex(1, 0, 0))
	assert.Equal(t, 23, axes.cellIndex(1, 2, 3))
}

func smallTableConfig() phaseTableConfig {
	return phaseTableConfig{
		Fnh:   phaseAxisRange{Min: 0.1, Max: 0.3, Step: 0.1},
		H:     phaseAxisRange{Min: 1, Max: 3, Step: 1},
		Alpha: phaseAxisRange{Min: 0, Max: 0.3, Step: 0.1},
	}
}

type countingSolver struct {
	calls int
	err   error
}

func (s *countingSolver) SolvePhaseTable(axes phaseAxes, dst []stationaryPoint) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	return solvePhaseTableHost(axes, dst, 2)
}

func TestStationaryPhaseTableRebuildsOnlyOnChange(t *testing.T) {
	var table stationaryPhaseTable
	solver := &countingSolver{}
	built, err := table.rebuild(smallTableConfig(), solver)
	require.NoError(t, err)
	assert.True(t, built)
	assert.Equal(t, 2*2*3, len(table.cells))

	built, err = table.rebuild(smallTableConfig(), solver)
	require.NoError(t, err)
	assert.False(t, built)
	assert.Equal(t, 1, solver.calls)

	cfg := smallTableConfig()
	cfg.H.Max = 4
	built, err = table.rebuild(cfg, solver)
	require.NoError(t, err)
	assert.True(t, built)
	assert.Equal(t, 2, solver.calls)
	assert.Equal(t, 2*3*3, len(table.cells))
	assert.Equal(t, 2, table.builds)
}

func TestStationaryPhaseTableKeepsOldCellsOnFailure(t *testing.T) {
	var table stationaryPhaseTable
	solver := &countingSolver{}
	_, err := table.rebuild(smallTableConfig(), solver)
	require.NoError(t, err)
	before := table.cells

	solver.err = errors.New("device lost")
	cfg := smallTableConfig()
	cfg.Fnh.Max = 0.4
	_, err = table.rebuild(cfg, solver)
	require.Error(t, err)
	assert.Equal(t, smallTableConfig(), table.config)
	assert.Equal(t, before, table.cells)
}

func TestStationaryPhaseTableCells(t *testing.T) {
	var table stationaryPhaseTable
	_, err := table.rebuild(smallTableConfig(), &countingSolver{})
	require.NoError(t, err)

	axes := table.axes
	for iF := 0; iF < axes.Fnh.Count; iF++ {
		for iH := 0; iH < axes.H.Count; iH++ {
			for iA := 0; iA < axes.Alpha.Count; iA++ {
				c := table.cells[axes.cellIndex(iF, iH, iA)]
				require.Greater(t, c.TransverseTheta, float32(0))
				require.Greater(t, c.DivergentTheta, c.TransverseTheta)
				// k = K/h, and K satisfies the finite depth relation
				fnh := axes.Fnh.center(iF)
				depth := axes.H.center(iH)
				K := float64(c.TransverseK) * depth
				cc := fnh * fnh * math.Pow(math.Cos(float64(c.TransverseTheta)), 2)
				assert.InDelta(t, math.Tanh(K), cc*K, 1e-3)
			}
		}
	}

	got := table.lookup(0.15, 2.5, 0.25)
	want := table.cells[axes.cellIndex(0, 1, 2)]
	assert.Equal(t, want, got)

	packed := table.packed()
	require.Len(t, packed, 4*len(table.cells))
	last := table.cells[len(table.cells)-1]
	assert.Equal(t, last.DivergentK, packed[len(packed)-1])
	assert.Equal(t, last.TransverseTheta, packed[len(packed)-4])
}

func TestStationaryPhaseTableLookupEmpty(t *testing.T) {
	var table stationaryPhaseTable
	c := table.lookup(0.5, 10, 0.1)
	assert.Equal(t, float32(missingRoot), c.TransverseTheta)
	assert.Equal(t, float32(missingRoot), c.DivergentTheta)
}

func TestSolvePhaseTableHostChecksSize(t *testing.T) {
	axes, err := smallTableConfig().axes()
	require.NoError(t, err)
	err = solvePhaseTableHost(axes, make([]stationaryPoint, 3), 1)
	assert.ErrorContains(t, err, "unexpected phase table size")
}
