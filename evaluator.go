package main

import (
	"fmt"
	"math"
	"strings"
)

// staticInputs are the long-lived buffers bound once per session (and again
// when the phase table is rebuilt).
type staticInputs struct {
	VesselCount int
	HullNx      int
	HullNz      int
	Hulls       []float32 // xyz per hull sample, vessel-major
	Walls       []float32 // ax, az, bx, bz per wall; never empty
	WallCount   int
	PhaseAxes   phaseAxes
	PhaseTable  []float32 // 4 floats per cell
	DesignFnh   float64
	Wave        waveParams
}

// waveParams tunes the reference wake model shared by the evaluators.
// SampleStride comes from the cpu settings.
type waveParams struct {
	Amplitude    float64 `mapstructure:"amplitude"`
	Decay        float64 `mapstructure:"decay"`
	WallReflect  float64 `mapstructure:"wallReflect"`
	SampleStride int     `mapstructure:"-"`
}

// frameParams are the per-tick scalars.
type frameParams struct {
	Topology      gridTopology
	Time          float64
	WorkgroupSize int
}

// surfaceEvaluator is the parallel per-vertex evaluator. The assembler drives
// it through the same sequence every tick: SetFrameParams, StageTrajectories,
// Dispatch, ReleaseTrajectories. Dispatch must leave the bound storage
// untouched on failure and fully written on success.
type surfaceEvaluator interface {
	phaseSolver
	DeviceName() string
	BindStatic(in staticInputs) error
	BindSurface(storage *surfaceStorage) error
	SetFrameParams(p frameParams) error
	StageTrajectories(pack *trajectoryPack) error
	Dispatch(units int) error
	ReleaseTrajectories()
	Close()
}

// dispatchUnits is the number of workgroups covering quads.
func dispatchUnits(quads, workgroup int) int {
	if workgroup < 1 {
		workgroup = 1
	}
	return (quads + workgroup - 1) / workgroup
}

// validateStatic checks shapes before anything is handed to an evaluator.
func validateStatic(in staticInputs) error {
	if in.VesselCount < 1 {
		return fmt.Errorf("%w: vessel count must be >= 1", errConfiguration)
	}
	if want := 3 * in.HullNx * in.HullNz * in.VesselCount; len(in.Hulls) != want {
		return fmt.Errorf("unexpected hull buffer size: got %d, want %d", len(in.Hulls), want)
	}
	if in.WallCount < 1 || len(in.Walls) != 4*in.WallCount {
		return fmt.Errorf("unexpected wall buffer size: %d floats for %d walls", len(in.Walls), in.WallCount)
	}
	if want := 4 * in.PhaseAxes.cellCount(); len(in.PhaseTable) != want {
		return fmt.Errorf("unexpected phase table size: got %d, want %d", len(in.PhaseTable), want)
	}
	return nil
}

// validatePack checks that every buffer matches stride * vessels.
func validatePack(p *trajectoryPack, vessels int) error {
	if p.vessels != vessels {
		return fmt.Errorf("unexpected trajectory vessel count: got %d, want %d", p.vessels, vessels)
	}
	n := p.samples()
	if len(p.positions) != 2*n || len(p.times) != n || len(p.headings) != n || len(p.depths) != n {
		return fmt.Errorf("unexpected trajectory buffer size for stride %d", p.stride)
	}
	if len(p.counts) != vessels {
		return fmt.Errorf("unexpected trajectory count buffer size: %d", len(p.counts))
	}
	for i, c := range p.counts {
		if int(c) > p.stride || c < 0 {
			return fmt.Errorf("vessel %d count %d outside stride %d", i, c, p.stride)
		}
	}
	return nil
}

// newEvaluator selects the backend named in configuration.
func newEvaluator(backend string, workers int) (surfaceEvaluator, error) {
	switch strings.ToLower(backend) {
	case "", "cpu":
		return newCPUEvaluator(workers), nil
	case "opencl":
		return newOpenCLEvaluator()
	default:
		return nil, fmt.Errorf("%w: unknown evaluator backend %q", errConfiguration, backend)
	}
}

// hullBowOffsets returns, per vessel, the largest longitudinal hull
// coordinate: the distance from the trajectory point to the bow.
func hullBowOffsets(hulls []float32, perVessel, vessels int) []float64 {
	out := make([]float64, vessels)
	for v := range out {
		for i := 0; i < perVessel; i++ {
			out[v] = math.Max(out[v], float64(hulls[3*(v*perVessel+i)]))
		}
	}
	return out
}

// bowPosition moves a trajectory point forward along heading by bow.
func bowPosition(p vec2, heading, bow float64) vec2 {
	return vec2{X: p.X + bow*math.Cos(heading), Z: p.Z + bow*math.Sin(heading)}
}
