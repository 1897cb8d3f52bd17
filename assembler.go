package main

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// assemblerConfig is everything the assembler needs besides its providers.
type assemblerConfig struct {
	Grid          gridParams
	PhaseTable    phaseTableConfig
	LengthPolicy  pathLengthPolicy
	WorkgroupSize int
	BoundsY       float64
	DesignFnh     float64
	Wave          waveParams
}

// assemblerStats is a read-only view for overlays and logs.
type assemblerStats struct {
	Ticks            int
	Reallocations    int
	DispatchFailures int
	TableBuilds      int
	Stride           int
	LastUnits        int
	LastTick         time.Duration
}

// frameAssembler runs the per-tick protocol: topology, grid lifecycle, frame
// parameters, trajectory packing and staging, dispatch, transient release.
type frameAssembler struct {
	cfg     assemblerConfig
	vessels []*vessel
	walls   *wallSet
	eval    surfaceEvaluator
	grid    *surfaceGrid
	table   stationaryPhaseTable
	pack    trajectoryPack
	hulls   []float32
	metrics *frameMetrics
	log     zerolog.Logger

	resources ownedResources
	topo      gridTopology
	stats     assemblerStats
	ready     bool
	released  bool
}

// newFrameAssembler validates the configuration and providers. Nothing is
// staged until setup.
func newFrameAssembler(cfg assemblerConfig, vessels []*vessel, walls *wallSet, eval surfaceEvaluator, metrics *frameMetrics, log zerolog.Logger) (*frameAssembler, error) {
	if len(vessels) == 0 {
		return nil, fmt.Errorf("%w: no vessels configured", errConfiguration)
	}
	if walls == nil || walls.len() < 1 {
		return nil, fmt.Errorf("%w: wall set must hold at least one segment", errConfiguration)
	}
	if eval == nil {
		return nil, fmt.Errorf("%w: no evaluator", errConfiguration)
	}
	if cfg.WorkgroupSize < 1 {
		return nil, fmt.Errorf("%w: workgroup size must be >= 1, got %d", errConfiguration, cfg.WorkgroupSize)
	}
	if !(cfg.DesignFnh > 0) {
		return nil, fmt.Errorf("%w: design Fnh must be positive, got %v", errConfiguration, cfg.DesignFnh)
	}
	topo, err := computeTopology(cfg.Grid)
	if err != nil {
		return nil, err
	}
	if err := checkGridLimit(topo); err != nil {
		return nil, err
	}
	if _, err := cfg.PhaseTable.axes(); err != nil {
		return nil, err
	}
	hulls, err := packHulls(vessels)
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = newFrameMetrics(nil)
	}
	return &frameAssembler{
		cfg:     cfg,
		vessels: vessels,
		walls:   walls,
		eval:    eval,
		grid:    newSurfaceGrid(cfg.BoundsY),
		hulls:   hulls,
		metrics: metrics,
		log:     log,
		topo:    topo,
	}, nil
}

// setup builds the phase table and stages the long-lived buffers.
func (a *frameAssembler) setup() error {
	if a.released {
		return fmt.Errorf("%w: setup after release", errResourceState)
	}
	a.resources.add("evaluator", a.eval.Close)
	a.resources.add("surface grid", a.grid.release)
	start := time.Now()
	if err := a.rebuildTable(a.cfg.PhaseTable); err != nil {
		return err
	}
	a.log.Info().
		Int("cells", a.table.axes.cellCount()).
		Int("fnh", a.table.axes.Fnh.Count).
		Int("h", a.table.axes.H.Count).
		Int("alpha", a.table.axes.Alpha.Count).
		Dur("took", time.Since(start)).
		Msg("stationary phase table ready")
	a.ready = true
	return nil
}

// rebuildTable rebuilds the table when cfg changed and restages static input.
func (a *frameAssembler) rebuildTable(cfg phaseTableConfig) error {
	built, err := a.table.rebuild(cfg, a.eval)
	if err != nil {
		return err
	}
	if !built {
		return nil
	}
	a.cfg.PhaseTable = cfg
	a.stats.TableBuilds++
	a.metrics.tableBuilds.Inc()
	return a.stageStatic()
}

func (a *frameAssembler) stageStatic() error {
	first := a.vessels[0].hull
	in := staticInputs{
		VesselCount: len(a.vessels),
		HullNx:      first.Nx,
		HullNz:      first.Nz,
		Hulls:       a.hulls,
		Walls:       a.walls.packed(),
		WallCount:   a.walls.len(),
		PhaseAxes:   a.table.axes,
		PhaseTable:  a.table.packed(),
		DesignFnh:   a.cfg.DesignFnh,
		Wave:        a.cfg.Wave,
	}
	if err := validateStatic(in); err != nil {
		return err
	}
	if err := a.eval.BindStatic(in); err != nil {
		return fmt.Errorf("binding static inputs: %w", err)
	}
	return nil
}

// tick assembles and dispatches one frame at simulation time now. Vessel
// updates for the tick must already have run.
func (a *frameAssembler) tick(now float64) error {
	if a.released || !a.ready {
		return fmt.Errorf("%w: tick on assembler that is not set up", errResourceState)
	}
	start := time.Now()

	topo, err := computeTopology(a.cfg.Grid)
	if err != nil {
		return err
	}
	if err := a.ensureSurface(topo); err != nil {
		return err
	}
	if err := a.eval.SetFrameParams(frameParams{Topology: topo, Time: now, WorkgroupSize: a.cfg.WorkgroupSize}); err != nil {
		return fmt.Errorf("setting frame parameters: %w", err)
	}

	defer func() {
		a.eval.ReleaseTrajectories()
		a.pack.release()
	}()
	if err := packTrajectories(&a.pack, a.vessels, a.cfg.LengthPolicy); err != nil {
		return fmt.Errorf("packing trajectories: %w", err)
	}
	if err := validatePack(&a.pack, len(a.vessels)); err != nil {
		return err
	}
	a.stats.Stride = a.pack.stride
	a.metrics.packedSamples.Set(float64(a.pack.samples()))
	if err := a.eval.StageTrajectories(&a.pack); err != nil {
		return fmt.Errorf("staging trajectories: %w", err)
	}

	units := dispatchUnits(topo.QuadCount, a.cfg.WorkgroupSize)
	if err := a.eval.Dispatch(units); err != nil {
		a.stats.DispatchFailures++
		a.metrics.dispatchFailures.Inc()
		return fmt.Errorf("dispatching %d units: %w", units, err)
	}
	a.stats.LastUnits = units
	a.stats.Ticks++
	a.stats.LastTick = time.Since(start)
	a.metrics.observeTick(a.stats.LastTick)
	return nil
}

// ensureSurface runs the grid lifecycle check and rebinds storage after an
// allocation.
func (a *frameAssembler) ensureSurface(topo gridTopology) error {
	reallocated, err := a.grid.ensure(topo)
	if err != nil {
		return err
	}
	a.topo = topo
	a.metrics.quads.Set(float64(topo.QuadCount))
	if !reallocated {
		return nil
	}
	storage, err := a.grid.surface()
	if err != nil {
		return err
	}
	if err := a.eval.BindSurface(storage); err != nil {
		// Drop the unbound storage so the next ensure allocates and rebinds.
		a.grid.free()
		return fmt.Errorf("%w: binding surface storage: %w", errResourceState, err)
	}
	a.stats.Reallocations++
	a.metrics.reallocations.Inc()
	a.log.Debug().
		Int("xQuads", topo.XQuadCount).
		Int("zQuads", topo.ZQuadCount).
		Int("vertices", topo.VertexCount()).
		Msg("surface grid allocated")
	return nil
}

// setGridParams replaces the grid request; it takes effect next tick.
func (a *frameAssembler) setGridParams(p gridParams) error {
	topo, err := computeTopology(p)
	if err != nil {
		return err
	}
	if err := checkGridLimit(topo); err != nil {
		return err
	}
	a.cfg.Grid = p
	return nil
}

// adjustGridStep scales both grid steps by factor, keeping them below the
// grid size and coarse enough for at most maxGridQuadsPerAxis quads.
func (a *frameAssembler) adjustGridStep(factor float64) error {
	p := a.cfg.Grid
	p.XStep = clampGridStep(p.XStep*factor, p.XSize)
	p.ZStep = clampGridStep(p.ZStep*factor, p.ZSize)
	return a.setGridParams(p)
}

func checkGridLimit(topo gridTopology) error {
	if topo.XQuadCount > maxGridQuadsPerAxis || topo.ZQuadCount > maxGridQuadsPerAxis {
		return fmt.Errorf("%w: grid of %dx%d quads exceeds %d per axis",
			errConfiguration, topo.XQuadCount, topo.ZQuadCount, maxGridQuadsPerAxis)
	}
	return nil
}

func clampGridStep(step, size float64) float64 {
	floor := math.Max(minGridStep, size/maxGridQuadsPerAxis)
	return math.Min(math.Max(step, floor), size)
}

// setPhaseAxes rebuilds the stationary phase table for a new configuration.
func (a *frameAssembler) setPhaseAxes(cfg phaseTableConfig) error {
	if !a.ready {
		return fmt.Errorf("%w: phase table change before setup", errResourceState)
	}
	return a.rebuildTable(cfg)
}

// release frees every owned resource once.
func (a *frameAssembler) release() {
	if a.released {
		return
	}
	for _, name := range a.resources.releaseAll() {
		a.log.Debug().Str("resource", name).Msg("released")
	}
	a.pack.release()
	a.released = true
	a.ready = false
}

func (a *frameAssembler) topology() gridTopology { return a.topo }

func (a *frameAssembler) statistics() assemblerStats { return a.stats }

// mesh exposes the current surface storage and index buffer for drawing.
func (a *frameAssembler) mesh() (*surfaceStorage, []uint32, error) {
	storage, err := a.grid.surface()
	if err != nil {
		return nil, nil, err
	}
	return storage, a.grid.indices, nil
}

// fatalTickError reports whether a tick error indicates a lifecycle bug that
// should stop the loop rather than leave a stale frame.
func fatalTickError(err error) bool {
	return errors.Is(err, errResourceState) || errors.Is(err, errConfiguration)
}
