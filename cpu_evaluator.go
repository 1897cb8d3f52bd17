package main

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// maxAgeDecays bounds how many decay times a source is kept alive.
const maxAgeDecays = 5.0

// waveSource is one trajectory sample (or its wall image) seen by the
// reference wake model.
type waveSource struct {
	x, z      float64
	emitted   float64
	amplitude float64
	k         float64
	omega     float64
	cg        float64
}

// cpuEvaluator is the host-side reference evaluator. Heights are computed on
// grid nodes, then expanded into the unshared triangle vertices.
type cpuEvaluator struct {
	workers int

	static    staticInputs
	bows      []float64
	hasStatic bool
	storage   *surfaceStorage
	scratch   *surfaceStorage
	frame     frameParams
	hasFrame  bool
	staged    bool
	sources   []waveSource
	heights   []float64
}

func newCPUEvaluator(workers int) *cpuEvaluator {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &cpuEvaluator{workers: workers}
}

func (e *cpuEvaluator) DeviceName() string {
	return fmt.Sprintf("cpu (%d workers)", e.workers)
}

func (e *cpuEvaluator) SolvePhaseTable(axes phaseAxes, dst []stationaryPoint) error {
	return solvePhaseTableHost(axes, dst, e.workers)
}

func (e *cpuEvaluator) BindStatic(in staticInputs) error {
	if err := validateStatic(in); err != nil {
		return err
	}
	if in.Wave.SampleStride < 1 {
		in.Wave.SampleStride = 1
	}
	e.static = in
	e.bows = hullBowOffsets(in.Hulls, in.HullNx*in.HullNz, in.VesselCount)
	e.hasStatic = true
	return nil
}

func (e *cpuEvaluator) BindSurface(storage *surfaceStorage) error {
	if storage == nil {
		return fmt.Errorf("%w: binding nil surface storage", errResourceState)
	}
	e.storage = storage
	e.scratch = newSurfaceStorage(storage.VertexCount())
	return nil
}

func (e *cpuEvaluator) SetFrameParams(p frameParams) error {
	if p.Topology.QuadCount < 1 {
		return fmt.Errorf("%w: frame topology has no quads", errConfiguration)
	}
	if p.WorkgroupSize < 1 {
		p.WorkgroupSize = surfaceWorkgroupSize
	}
	e.frame = p
	e.hasFrame = true
	return nil
}

// StageTrajectories turns the packed buffers into wave sources placed at the
// bow along each sample's heading, adding one image source per wall.
func (e *cpuEvaluator) StageTrajectories(pack *trajectoryPack) error {
	if !e.hasStatic || !e.hasFrame {
		return fmt.Errorf("%w: trajectories staged before static inputs and frame parameters", errResourceState)
	}
	if err := validatePack(pack, e.static.VesselCount); err != nil {
		return err
	}
	e.sources = e.sources[:0]
	wave := e.static.Wave
	maxAge := maxAgeDecays * wave.Decay
	walls := e.static.Walls
	for v := 0; v < pack.vessels; v++ {
		base := v * pack.stride
		count := int(pack.counts[v])
		for k := count - 1; k >= 0; k -= wave.SampleStride {
			idx := base + k
			depth := float64(pack.depths[idx])
			age := e.frame.Time - float64(pack.times[idx])
			if depth <= 0 || age < 0 || age > maxAge {
				continue
			}
			wk := e.transverseWavenumber(depth)
			if wk <= 0 {
				continue
			}
			at := bowPosition(vec2{
				X: float64(pack.positions[2*idx]),
				Z: float64(pack.positions[2*idx+1]),
			}, float64(pack.headings[idx]), e.bows[v])
			src := waveSource{
				x:         at.X,
				z:         at.Z,
				emitted:   float64(pack.times[idx]),
				amplitude: wave.Amplitude * (1 - math.Exp(-depth)),
				k:         wk,
				omega:     angularFrequency(wk, depth),
				cg:        groupVelocity(wk, depth),
			}
			e.sources = append(e.sources, src)
			for w := 0; w < e.static.WallCount; w++ {
				seg := wallSegment{
					A: vec2{X: float64(walls[4*w]), Z: float64(walls[4*w+1])},
					B: vec2{X: float64(walls[4*w+2]), Z: float64(walls[4*w+3])},
				}
				m := seg.mirror(vec2{X: src.x, Z: src.z})
				img := src
				img.x, img.z = m.X, m.Z
				img.amplitude *= wave.WallReflect
				e.sources = append(e.sources, img)
			}
		}
	}
	e.staged = true
	return nil
}

// transverseWavenumber reads the table at the design Fnh and the smallest
// observation angle, falling back to the divergent root.
func (e *cpuEvaluator) transverseWavenumber(depth float64) float64 {
	axes := e.static.PhaseAxes
	idx := axes.cellIndex(axes.Fnh.index(e.static.DesignFnh), axes.H.index(depth), 0)
	cell := e.static.PhaseTable[4*idx : 4*idx+4]
	if cell[1] > 0 {
		return float64(cell[1])
	}
	return float64(cell[3])
}

func (e *cpuEvaluator) Dispatch(units int) error {
	if e.storage == nil || e.scratch == nil {
		return fmt.Errorf("%w: dispatch without bound surface", errResourceState)
	}
	if !e.hasFrame || !e.staged {
		return errors.New("dispatch before frame parameters and trajectories were staged")
	}
	topo := e.frame.Topology
	if e.storage.VertexCount() != topo.VertexCount() {
		return fmt.Errorf("unexpected surface size: storage has %d vertices, topology needs %d", e.storage.VertexCount(), topo.VertexCount())
	}
	if units*e.frame.WorkgroupSize < topo.QuadCount {
		return fmt.Errorf("dispatch of %d units does not cover %d quads", units, topo.QuadCount)
	}
	if err := e.computeHeights(topo); err != nil {
		return err
	}
	if err := e.fillQuads(topo, units); err != nil {
		return err
	}
	e.storage.copyFrom(e.scratch)
	return nil
}

func (e *cpuEvaluator) ReleaseTrajectories() {
	e.sources = e.sources[:0]
	e.staged = false
}

func (e *cpuEvaluator) Close() {
	e.storage = nil
	e.scratch = nil
	e.sources = nil
	e.heights = nil
	e.bows = nil
	e.hasStatic = false
}

// computeHeights evaluates the wake model on every grid node, one row of
// nodes per task.
func (e *cpuEvaluator) computeHeights(topo gridTopology) error {
	cols := topo.XQuadCount + 1
	rows := topo.ZQuadCount + 1
	if cap(e.heights) < cols*rows {
		e.heights = make([]float64, cols*rows)
	}
	e.heights = e.heights[:cols*rows]
	now := e.frame.Time
	decay := e.static.Wave.Decay
	var g errgroup.Group
	g.SetLimit(e.workers)
	for iz := 0; iz < rows; iz++ {
		g.Go(func() error {
			z := topo.ZOrigin + float64(iz)*topo.ZStep
			row := e.heights[iz*cols : (iz+1)*cols]
			for ix := range row {
				x := topo.XOrigin + float64(ix)*topo.XStep
				row[ix] = elevation(e.sources, x, z, now, decay)
			}
			return nil
		})
	}
	return g.Wait()
}

// elevation sums the ring contributions of all sources at (x, z).
func elevation(sources []waveSource, x, z, now, decay float64) float64 {
	var eta float64
	for i := range sources {
		s := &sources[i]
		age := now - s.emitted
		dx := x - s.x
		dz := z - s.z
		r := math.Sqrt(dx*dx + dz*dz)
		if r > s.cg*age {
			continue
		}
		eta += s.amplitude * math.Exp(-age/decay) * math.Cos(s.k*r-s.omega*age)
	}
	return eta
}

// fillQuads writes six vertices per quad; tasks follow workgroup boundaries.
func (e *cpuEvaluator) fillQuads(topo gridTopology, units int) error {
	var g errgroup.Group
	g.SetLimit(e.workers)
	perTask := e.frame.WorkgroupSize * max(1, units/(4*e.workers))
	for start := 0; start < topo.QuadCount; start += perTask {
		end := min(start+perTask, topo.QuadCount)
		g.Go(func() error {
			for q := start; q < end; q++ {
				e.writeQuad(topo, q)
			}
			return nil
		})
	}
	return g.Wait()
}

func (e *cpuEvaluator) writeQuad(topo gridTopology, q int) {
	xi := q % topo.XQuadCount
	zi := q / topo.XQuadCount
	corners := [6][2]int{
		{xi, zi}, {xi, zi + 1}, {xi + 1, zi},
		{xi + 1, zi}, {xi, zi + 1}, {xi + 1, zi + 1},
	}
	base := 6 * q
	for i, c := range corners {
		e.writeVertex(topo, base+i, c[0], c[1])
	}
}

func (e *cpuEvaluator) writeVertex(topo gridTopology, v, ix, iz int) {
	cols := topo.XQuadCount + 1
	h := e.heights[iz*cols+ix]
	x := topo.XOrigin + float64(ix)*topo.XStep
	z := topo.ZOrigin + float64(iz)*topo.ZStep

	dhdx := e.slope(ix, iz, 1, 0, topo.XQuadCount, topo.XStep)
	dhdz := e.slope(ix, iz, 0, 1, topo.ZQuadCount, topo.ZStep)
	nx, ny, nz := -dhdx, 1.0, -dhdz
	inv := 1 / math.Sqrt(nx*nx+ny*ny+nz*nz)

	s := e.scratch
	s.Positions[3*v] = float32(x)
	s.Positions[3*v+1] = float32(h)
	s.Positions[3*v+2] = float32(z)
	s.Normals[3*v] = float32(nx * inv)
	s.Normals[3*v+1] = float32(ny * inv)
	s.Normals[3*v+2] = float32(nz * inv)
	s.Texcoords[2*v] = float32((x - topo.XOrigin) / topo.XSize)
	s.Texcoords[2*v+1] = float32((z - topo.ZOrigin) / topo.ZSize)
}

// slope is the central difference of the node heights along one axis,
// one-sided at the edges.
func (e *cpuEvaluator) slope(ix, iz, ax, az, last int, step float64) float64 {
	cols := e.frame.Topology.XQuadCount + 1
	i := ix*ax + iz*az
	lo, hi := i-1, i+1
	if lo < 0 {
		lo = 0
	}
	if hi > last {
		hi = last
	}
	at := func(j int) float64 {
		if ax == 1 {
			return e.heights[iz*cols+j]
		}
		return e.heights[j*cols+ix]
	}
	return (at(hi) - at(lo)) / (float64(hi-lo) * step)
}
