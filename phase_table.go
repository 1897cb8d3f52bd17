package main

import (
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// axisCountGuard absorbs floating-point error when the nominal step divides
// the interval exactly (1.2/0.01 must give 120 cells, not 119).
const axisCountGuard = 1e-9

// phaseAxis is one regular axis of the stationary-phase table.
type phaseAxis struct {
	Min   float64
	Max   float64
	Step  float64
	Count int
}

// newPhaseAxis derives the cell count from the nominal step and then corrects
// the step so that Count cells exactly span [min, max].
func newPhaseAxis(name string, min, max, nominalStep float64) (phaseAxis, error) {
	if !(max > min) {
		return phaseAxis{}, fmt.Errorf("%w: %s axis needs max > min, got [%v, %v]", errConfiguration, name, min, max)
	}
	if !(nominalStep > 0) {
		return phaseAxis{}, fmt.Errorf("%w: %s axis step must be positive, got %v", errConfiguration, name, nominalStep)
	}
	count := int(math.Floor((max-min)/nominalStep + axisCountGuard))
	if count < 1 {
		count = 1
	}
	return phaseAxis{Min: min, Max: max, Step: (max - min) / float64(count), Count: count}, nil
}

// center returns the sample point of cell i.
func (a phaseAxis) center(i int) float64 {
	return a.Min + (float64(i)+0.5)*a.Step
}

// index returns the cell containing v, clamped to the axis.
func (a phaseAxis) index(v float64) int {
	i := int(math.Floor((v - a.Min) / a.Step))
	if i < 0 {
		return 0
	}
	if i >= a.Count {
		return a.Count - 1
	}
	return i
}

// descriptor is the (min, max, step, count) quadruple staged to evaluators.
func (a phaseAxis) descriptor() [4]float32 {
	return [4]float32{float32(a.Min), float32(a.Max), float32(a.Step), float32(a.Count)}
}

// phaseAxes groups the three table axes in storage order.
type phaseAxes struct {
	Fnh   phaseAxis
	H     phaseAxis
	Alpha phaseAxis
}

// cellCount is the product of the three axis counts.
func (p phaseAxes) cellCount() int {
	return p.Fnh.Count * p.H.Count * p.Alpha.Count
}

// cellIndex flattens (fnh, h, alpha) indices, alpha fastest.
func (p phaseAxes) cellIndex(iF, iH, iA int) int {
	return (iF*p.H.Count+iH)*p.Alpha.Count + iA
}

// phaseAxisRange is the requested interval and nominal step for one axis.
type phaseAxisRange struct {
	Min  float64 `mapstructure:"min"`
	Max  float64 `mapstructure:"max"`
	Step float64 `mapstructure:"step"`
}

// phaseTableConfig is the requested discretization of the table.
type phaseTableConfig struct {
	Fnh   phaseAxisRange `mapstructure:"fnh"`
	H     phaseAxisRange `mapstructure:"h"`
	Alpha phaseAxisRange `mapstructure:"alpha"`
}

// axes discretizes the configuration.
func (c phaseTableConfig) axes() (phaseAxes, error) {
	fnh, err := newPhaseAxis("fnh", c.Fnh.Min, c.Fnh.Max, c.Fnh.Step)
	if err != nil {
		return phaseAxes{}, err
	}
	h, err := newPhaseAxis("h", c.H.Min, c.H.Max, c.H.Step)
	if err != nil {
		return phaseAxes{}, err
	}
	alpha, err := newPhaseAxis("alpha", c.Alpha.Min, c.Alpha.Max, c.Alpha.Step)
	if err != nil {
		return phaseAxes{}, err
	}
	return phaseAxes{Fnh: fnh, H: h, Alpha: alpha}, nil
}

// stationaryPoint is one table cell: the transverse and divergent stationary
// wave angles and their dimensional wavenumbers. A missing root has theta -1
// and k 0.
type stationaryPoint struct {
	TransverseTheta float32
	TransverseK     float32
	DivergentTheta  float32
	DivergentK      float32
}

// phaseSolver fills a table's cells. Evaluators implement it so the solve runs
// wherever the evaluator runs.
type phaseSolver interface {
	SolvePhaseTable(axes phaseAxes, dst []stationaryPoint) error
}

// stationaryPhaseTable is the precomputed (Fnh, h, alpha) grid. It is rebuilt
// whole whenever its configuration changes and is read-only otherwise.
type stationaryPhaseTable struct {
	config phaseTableConfig
	axes   phaseAxes
	cells  []stationaryPoint
	builds int
}

// rebuild solves the table for cfg unless it already holds that configuration.
// It reports whether a build happened.
func (t *stationaryPhaseTable) rebuild(cfg phaseTableConfig, solver phaseSolver) (bool, error) {
	if t.cells != nil && t.config == cfg {
		return false, nil
	}
	axes, err := cfg.axes()
	if err != nil {
		return false, err
	}
	cells := make([]stationaryPoint, axes.cellCount())
	if err := solver.SolvePhaseTable(axes, cells); err != nil {
		return false, fmt.Errorf("solving stationary phase table: %w", err)
	}
	t.config = cfg
	t.axes = axes
	t.cells = cells
	t.builds++
	return true, nil
}

// lookup returns the nearest cell for the given parameters.
func (t *stationaryPhaseTable) lookup(fnh, h, alpha float64) stationaryPoint {
	if len(t.cells) == 0 {
		return stationaryPoint{TransverseTheta: missingRoot, DivergentTheta: missingRoot}
	}
	a := t.axes
	return t.cells[a.cellIndex(a.Fnh.index(fnh), a.H.index(h), a.Alpha.index(alpha))]
}

// packed flattens the cells into 4 floats per cell for staging.
func (t *stationaryPhaseTable) packed() []float32 {
	out := make([]float32, 4*len(t.cells))
	for i, c := range t.cells {
		out[4*i] = c.TransverseTheta
		out[4*i+1] = c.TransverseK
		out[4*i+2] = c.DivergentTheta
		out[4*i+3] = c.DivergentK
	}
	return out
}

// solvePhaseTableHost solves every cell on the host. Roots depend only on
// (Fnh, alpha); the depth axis only scales K into k, so each Fnh row is solved
// once and then spread over depths. Rows run concurrently.
func solvePhaseTableHost(axes phaseAxes, dst []stationaryPoint, workers int) error {
	if len(dst) != axes.cellCount() {
		return fmt.Errorf("unexpected phase table size: got %d cells, want %d", len(dst), axes.cellCount())
	}
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for iF := 0; iF < axes.Fnh.Count; iF++ {
		g.Go(func() error {
			fnh := axes.Fnh.center(iF)
			curve := newStationaryCurve(fnh)
			for iA := 0; iA < axes.Alpha.Count; iA++ {
				tr, dv := curve.roots(axes.Alpha.center(iA))
				for iH := 0; iH < axes.H.Count; iH++ {
					depth := axes.H.center(iH)
					dst[axes.cellIndex(iF, iH, iA)] = stationaryPoint{
						TransverseTheta: float32(tr),
						TransverseK:     float32(wavenumber(fnh, tr, depth)),
						DivergentTheta:  float32(dv),
						DivergentK:      float32(wavenumber(fnh, dv, depth)),
					}
				}
			}
			return nil
		})
	}
	return g.Wait()
}
