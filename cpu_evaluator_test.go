package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStaticInputs(t *testing.T) staticInputs {
	t.Helper()
	var table stationaryPhaseTable
	_, err := table.rebuild(smallTableConfig(), &countingSolver{})
	require.NoError(t, err)
	v := newTestVessel(t, 0, vesselState{Speed: 1}, 10)
	hulls, err := packHulls([]*vessel{v})
	require.NoError(t, err)
	walls, err := newWallSet(nil)
	require.NoError(t, err)
	return staticInputs{
		VesselCount: 1,
		HullNx:      defaultHullNx,
		HullNz:      defaultHullNz,
		Hulls:       hulls,
		Walls:       walls.packed(),
		WallCount:   walls.len(),
		PhaseAxes:   table.axes,
		PhaseTable:  table.packed(),
		DesignFnh:   defaultDesignFnh,
		Wave: waveParams{
			Amplitude:    defaultWaveAmplitude,
			Decay:        defaultWaveDecay,
			WallReflect:  defaultWallReflect,
			SampleStride: 1,
		},
	}
}

// testBow is the bow offset of the default hull; a sample at (-testBow, 0)
// with heading 0 puts its source on the origin.
const testBow = defaultHullLength / 2

func singleSamplePack(x, z, time, depth float32) *trajectoryPack {
	p := &trajectoryPack{}
	p.reset(1, 1)
	p.positions[0], p.positions[1] = x, z
	p.times[0] = time
	p.depths[0] = depth
	p.counts[0] = 1
	return p
}

func boundEvaluator(t *testing.T, topo gridTopology) (*cpuEvaluator, *surfaceStorage) {
	t.Helper()
	e := newCPUEvaluator(2)
	require.NoError(t, e.BindStatic(testStaticInputs(t)))
	storage := newSurfaceStorage(topo.VertexCount())
	require.NoError(t, e.BindSurface(storage))
	require.NoError(t, e.SetFrameParams(frameParams{Topology: topo, Time: 1, WorkgroupSize: 4}))
	return e, storage
}

func centredTopology(t *testing.T) gridTopology {
	t.Helper()
	topo, err := computeTopology(gridParams{XSize: 4, ZSize: 4, XOrigin: -2, ZOrigin: -2, XStep: 1, ZStep: 1})
	require.NoError(t, err)
	return topo
}

func TestCPUEvaluatorRequiresStaticAndFrame(t *testing.T) {
	e := newCPUEvaluator(1)
	err := e.StageTrajectories(singleSamplePack(-testBow, 0, 0, 2))
	assert.ErrorIs(t, err, errResourceState)
	assert.ErrorIs(t, e.Dispatch(1), errResourceState)
	assert.ErrorIs(t, e.BindSurface(nil), errResourceState)
	assert.ErrorIs(t, e.SetFrameParams(frameParams{}), errConfiguration)
	assert.Contains(t, e.DeviceName(), "cpu")
}

func TestCPUEvaluatorBuildsSourcesWithWallImages(t *testing.T) {
	e, _ := boundEvaluator(t, centredTopology(t))
	require.NoError(t, e.StageTrajectories(singleSamplePack(-testBow, 0, 0, 2)))
	require.Len(t, e.sources, 2)
	src := e.sources[0]
	assert.Greater(t, src.k, 0.0)
	assert.InDelta(t, angularFrequency(src.k, 2), src.omega, 1e-12)
	img := e.sources[1]
	assert.InDelta(t, src.amplitude*defaultWallReflect, img.amplitude, 1e-12)
	// mirrored across the sentinel line z = 1000
	assert.InDelta(t, 0, img.x, 1e-9)
	assert.InDelta(t, 2000, img.z, 1e-9)

	// samples with no depth or too old are skipped
	require.NoError(t, e.StageTrajectories(singleSamplePack(-testBow, 0, 0, 0)))
	assert.Empty(t, e.sources)
	require.NoError(t, e.SetFrameParams(frameParams{Topology: centredTopology(t), Time: 1000, WorkgroupSize: 4}))
	require.NoError(t, e.StageTrajectories(singleSamplePack(-testBow, 0, 0, 2)))
	assert.Empty(t, e.sources)
}

func TestCPUEvaluatorPlacesSourcesAtBow(t *testing.T) {
	e, _ := boundEvaluator(t, centredTopology(t))
	require.Len(t, e.bows, 1)
	assert.InDelta(t, testBow, e.bows[0], 1e-6)

	pack := singleSamplePack(1, 2, 0, 2)
	pack.headings[0] = math.Pi / 2
	require.NoError(t, e.StageTrajectories(pack))
	require.Len(t, e.sources, 2)
	assert.InDelta(t, 1, e.sources[0].x, 1e-6)
	assert.InDelta(t, 2+testBow, e.sources[0].z, 1e-6)
	// the wall image follows the shifted source
	assert.InDelta(t, 2000-(2+testBow), e.sources[1].z, 1e-6)
}

func TestHullBowOffsets(t *testing.T) {
	hulls := []float32{
		-1, 0, 0, 2, 0, 0,
		-3, 0, 0, 0.5, 0, 0,
	}
	assert.Equal(t, []float64{2, 0.5}, hullBowOffsets(hulls, 2, 2))
	p := bowPosition(vec2{X: 1, Z: 1}, math.Pi, 2)
	assert.InDelta(t, -1, p.X, 1e-12)
	assert.InDelta(t, 1, p.Z, 1e-12)
}

func TestCPUEvaluatorWritesQuadLayout(t *testing.T) {
	topo := centredTopology(t)
	e, storage := boundEvaluator(t, topo)
	require.NoError(t, e.StageTrajectories(singleSamplePack(-testBow, 0, 0, 2)))
	require.NoError(t, e.Dispatch(dispatchUnits(topo.QuadCount, 4)))

	// quad 0 corners in order
	wantXZ := [][2]float32{{-2, -2}, {-2, -1}, {-1, -2}, {-1, -2}, {-2, -1}, {-1, -1}}
	for i, xz := range wantXZ {
		assert.Equal(t, xz[0], storage.Positions[3*i], "vertex %d x", i)
		assert.Equal(t, xz[1], storage.Positions[3*i+2], "vertex %d z", i)
	}
	// quad 5 is xi=1, zi=1; its last vertex is node (2, 2) at world (0, 0)
	v := 6*5 + 5
	assert.Equal(t, float32(0), storage.Positions[3*v])
	assert.Equal(t, float32(0), storage.Positions[3*v+2])
	assert.Equal(t, float32(0.5), storage.Texcoords[2*v])
	assert.Equal(t, float32(0.5), storage.Texcoords[2*v+1])

	now := 1.0
	want := elevation(e.sourcesForTest(t), 0, 0, now, defaultWaveDecay)
	assert.NotZero(t, want)
	assert.InDelta(t, want, float64(storage.Positions[3*v+1]), 1e-6)

	// a far corner is outside the ring
	assert.Equal(t, float32(0), storage.Positions[1])

	for i := 0; i < storage.VertexCount(); i++ {
		n := storage.Normals[3*i : 3*i+3]
		length := math.Sqrt(float64(n[0]*n[0] + n[1]*n[1] + n[2]*n[2]))
		assert.InDelta(t, 1, length, 1e-5)
		assert.Greater(t, n[1], float32(0))
	}
}

// sourcesForTest restages the single sample used by the layout test.
func (e *cpuEvaluator) sourcesForTest(t *testing.T) []waveSource {
	t.Helper()
	require.NoError(t, e.StageTrajectories(singleSamplePack(-testBow, 0, 0, 2)))
	return append([]waveSource(nil), e.sources...)
}

func TestCPUEvaluatorLeavesStorageOnFailure(t *testing.T) {
	topo := centredTopology(t)
	e, storage := boundEvaluator(t, topo)
	require.NoError(t, e.StageTrajectories(singleSamplePack(-testBow, 0, 0, 2)))
	require.NoError(t, e.Dispatch(dispatchUnits(topo.QuadCount, 4)))
	before := append([]float32(nil), storage.Positions...)

	require.NoError(t, e.SetFrameParams(frameParams{Topology: topo, Time: 1.5, WorkgroupSize: 4}))
	require.NoError(t, e.StageTrajectories(singleSamplePack(-testBow, 0, 0, 2)))
	assert.Error(t, e.Dispatch(0))
	assert.Equal(t, before, storage.Positions)

	finer, err := computeTopology(gridParams{XSize: 4, ZSize: 4, XOrigin: -2, ZOrigin: -2, XStep: 0.5, ZStep: 0.5})
	require.NoError(t, err)
	require.NoError(t, e.SetFrameParams(frameParams{Topology: finer, Time: 1.5, WorkgroupSize: 4}))
	assert.ErrorContains(t, e.Dispatch(dispatchUnits(finer.QuadCount, 4)), "unexpected surface size")
	assert.Equal(t, before, storage.Positions)

	e.ReleaseTrajectories()
	require.NoError(t, e.SetFrameParams(frameParams{Topology: topo, Time: 1.5, WorkgroupSize: 4}))
	assert.Error(t, e.Dispatch(dispatchUnits(topo.QuadCount, 4)))
	assert.Equal(t, before, storage.Positions)
}

func TestElevationRing(t *testing.T) {
	src := waveSource{x: 0, z: 0, emitted: 0, amplitude: 1, k: 2, omega: 3, cg: 1}
	sources := []waveSource{src}
	assert.Equal(t, 0.0, elevation(sources, 3, 0, 2, 6))
	want := math.Exp(-2.0/6) * math.Cos(2*1-3*2)
	assert.InDelta(t, want, elevation(sources, 1, 0, 2, 6), 1e-12)
}

func TestDispatchUnits(t *testing.T) {
	assert.Equal(t, 1, dispatchUnits(1, 64))
	assert.Equal(t, 1, dispatchUnits(64, 64))
	assert.Equal(t, 2, dispatchUnits(65, 64))
	assert.Equal(t, 1279, dispatchUnits(286*286, 64))
	assert.Equal(t, 5, dispatchUnits(5, 0))
}

func TestNewEvaluatorBackends(t *testing.T) {
	e, err := newEvaluator("CPU", 3)
	require.NoError(t, err)
	assert.Equal(t, "cpu (3 workers)", e.DeviceName())
	_, err = newEvaluator("vulkan", 1)
	assert.ErrorIs(t, err, errConfiguration)
}
