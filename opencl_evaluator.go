//go:build opencl

package main

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"
)

// openCLEvaluator runs the wake model on an OpenCL device, one work item per
// quad. Each source sits at the bow, found from the vessel's hull samples and
// the sample heading. The phase table solve stays on the host; only the
// design-Fnh row of the table is uploaded.
type openCLEvaluator struct {
	context    *cl.Context
	queue      *cl.CommandQueue
	program    *cl.Program
	kernel     *cl.Kernel
	deviceName string
	workers    int

	hullBuf  *cl.MemObject
	wallBuf  *cl.MemObject
	tableBuf *cl.MemObject
	static   staticInputs
	fnhIndex int

	posBuf    *cl.MemObject
	normBuf   *cl.MemObject
	texBuf    *cl.MemObject
	storage   *surfaceStorage
	scratch   *surfaceStorage
	frame     frameParams
	hasFrame  bool
	hasStatic bool

	trajPosBuf   *cl.MemObject
	trajTimeBuf  *cl.MemObject
	trajDepthBuf *cl.MemObject
	trajHeadBuf  *cl.MemObject
	trajCountBuf *cl.MemObject
	stride       int
	vessels      int
}

const wakeKernelSource = `
float wake_elevation(
    float x, float z, float now,
    const int stride, const int vessels, const int sample_stride,
    const float amplitude, const float decay, const float wall_reflect,
    const int wall_count, const float h_min, const float h_step, const int h_count,
    const int alpha_count, const float max_age, const int hull_samples,
    __global const float* traj_pos,
    __global const float* traj_time,
    __global const float* traj_depth,
    __global const float* traj_heading,
    __global const int* traj_count,
    __global const float* hulls,
    __global const float* walls,
    __global const float* table_row)
{
    float eta = 0.0f;
    for (int v = 0; v < vessels; v++) {
        int base = v * stride;
        float bow = 0.0f;
        for (int i = 0; i < hull_samples; i++) {
            bow = fmax(bow, hulls[3 * (v * hull_samples + i)]);
        }
        for (int s = traj_count[v] - 1; s >= 0; s -= sample_stride) {
            int idx = base + s;
            float depth = traj_depth[idx];
            float age = now - traj_time[idx];
            if (depth <= 0.0f || age < 0.0f || age > max_age) {
                continue;
            }
            int ih = (int)floor((depth - h_min) / h_step);
            ih = clamp(ih, 0, h_count - 1);
            int cell = 4 * (ih * alpha_count);
            float k = table_row[cell + 1];
            if (k <= 0.0f) {
                k = table_row[cell + 3];
            }
            if (k <= 0.0f) {
                continue;
            }
            float kh = k * depth;
            float omega = sqrt(9.81f * k * tanh(kh));
            float n = kh < 20.0f ? 0.5f * (1.0f + 2.0f * kh / sinh(2.0f * kh)) : 0.5f;
            float cg = n * omega / k;
            float amp = amplitude * (1.0f - exp(-depth)) * exp(-age / decay);
            float reach = cg * age;
            float phase = omega * age;
            float heading = traj_heading[idx];
            float sx = traj_pos[2 * idx] + bow * cos(heading);
            float sz = traj_pos[2 * idx + 1] + bow * sin(heading);
            float r = hypot(x - sx, z - sz);
            if (r <= reach) {
                eta += amp * cos(k * r - phase);
            }
            for (int w = 0; w < wall_count; w++) {
                float ax = walls[4 * w];
                float az = walls[4 * w + 1];
                float dx = walls[4 * w + 2] - ax;
                float dz = walls[4 * w + 3] - az;
                float t = ((sx - ax) * dx + (sz - az) * dz) / (dx * dx + dz * dz);
                float mx = 2.0f * (ax + t * dx) - sx;
                float mz = 2.0f * (az + t * dz) - sz;
                float ri = hypot(x - mx, z - mz);
                if (ri <= reach) {
                    eta += wall_reflect * amp * cos(k * ri - phase);
                }
            }
        }
    }
    return eta;
}

__kernel void wake_surface(
    const int x_quads,
    const int z_quads,
    const float x0,
    const float z0,
    const float x_step,
    const float z_step,
    const float x_size,
    const float z_size,
    const float now,
    const int stride,
    const int vessels,
    const int sample_stride,
    const float amplitude,
    const float decay,
    const float wall_reflect,
    const int wall_count,
    const float h_min,
    const float h_step,
    const int h_count,
    const int alpha_count,
    const float max_age,
    const int hull_samples,
    __global const float* traj_pos,
    __global const float* traj_time,
    __global const float* traj_depth,
    __global const float* traj_heading,
    __global const int* traj_count,
    __global const float* hulls,
    __global const float* walls,
    __global const float* table_row,
    __global float* out_pos,
    __global float* out_norm,
    __global float* out_tex)
{
    int q = get_global_id(0);
    if (q >= x_quads * z_quads) {
        return;
    }
    int xi = q % x_quads;
    int zi = q / x_quads;
    int cx[6] = {xi, xi, xi + 1, xi + 1, xi, xi + 1};
    int cz[6] = {zi, zi + 1, zi, zi, zi + 1, zi + 1};
    for (int c = 0; c < 6; c++) {
        int v = 6 * q + c;
        float x = x0 + cx[c] * x_step;
        float z = z0 + cz[c] * z_step;
        #define ELEV(px, pz) wake_elevation(px, pz, now, stride, vessels, sample_stride, \
            amplitude, decay, wall_reflect, wall_count, h_min, h_step, h_count, alpha_count, max_age, \
            hull_samples, traj_pos, traj_time, traj_depth, traj_heading, traj_count, hulls, walls, table_row)
        float h = ELEV(x, z);
        int lx = max(cx[c] - 1, 0);
        int hx = min(cx[c] + 1, x_quads);
        int lz = max(cz[c] - 1, 0);
        int hz = min(cz[c] + 1, z_quads);
        float dhdx = (ELEV(x0 + hx * x_step, z) - ELEV(x0 + lx * x_step, z)) / ((hx - lx) * x_step);
        float dhdz = (ELEV(x, z0 + hz * z_step) - ELEV(x, z0 + lz * z_step)) / ((hz - lz) * z_step);
        #undef ELEV
        float3 n = normalize((float3)(-dhdx, 1.0f, -dhdz));
        out_pos[3 * v] = x;
        out_pos[3 * v + 1] = h;
        out_pos[3 * v + 2] = z;
        out_norm[3 * v] = n.x;
        out_norm[3 * v + 1] = n.y;
        out_norm[3 * v + 2] = n.z;
        out_tex[2 * v] = (x - x0) / x_size;
        out_tex[2 * v + 1] = (z - z0) / z_size;
    }
}`

func newOpenCLEvaluator() (surfaceEvaluator, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		msg := "querying OpenCL platforms"
		if strings.Contains(err.Error(), "-1001") {
			msg += ": no ICD loader reported any platforms; install OpenCL drivers and verify with `clinfo`"
		}
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	if len(platforms) == 0 {
		return nil, errors.New("no OpenCL platforms available; ensure a vendor driver is installed and detected by `clinfo`")
	}
	device := pickDevice(platforms, cl.DeviceTypeGPU)
	if device == nil {
		device = pickDevice(platforms, cl.DeviceTypeCPU)
	}
	if device == nil {
		return nil, errors.New("no suitable OpenCL devices found")
	}

	var owned ownedResources
	fail := func(err error) (surfaceEvaluator, error) {
		owned.releaseAll()
		return nil, err
	}
	context, err := cl.CreateContext([]*cl.Device{device})
	if err != nil {
		return fail(fmt.Errorf("creating OpenCL context: %w", err))
	}
	owned.add("context", context.Release)
	queue, err := context.CreateCommandQueue(device, 0)
	if err != nil {
		return fail(fmt.Errorf("creating OpenCL command queue: %w", err))
	}
	owned.add("queue", queue.Release)
	program, err := context.CreateProgramWithSource([]string{wakeKernelSource})
	if err != nil {
		return fail(fmt.Errorf("creating OpenCL program: %w", err))
	}
	owned.add("program", program.Release)
	if err := program.BuildProgram([]*cl.Device{device}, ""); err != nil {
		if buildErr, ok := err.(cl.BuildError); ok {
			return fail(fmt.Errorf("building OpenCL program: %s", string(buildErr)))
		}
		return fail(fmt.Errorf("building OpenCL program: %w", err))
	}
	kernel, err := program.CreateKernel("wake_surface")
	if err != nil {
		return fail(fmt.Errorf("creating OpenCL kernel: %w", err))
	}

	return &openCLEvaluator{
		context:    context,
		queue:      queue,
		program:    program,
		kernel:     kernel,
		deviceName: device.Name(),
		workers:    runtime.NumCPU(),
	}, nil
}

func pickDevice(platforms []*cl.Platform, kind cl.DeviceType) *cl.Device {
	for _, p := range platforms {
		devices, err := p.GetDevices(kind)
		if err != nil && err != cl.ErrDeviceNotFound {
			continue
		}
		if len(devices) > 0 {
			return devices[0]
		}
	}
	return nil
}

func (e *openCLEvaluator) DeviceName() string {
	return e.deviceName
}

func (e *openCLEvaluator) SolvePhaseTable(axes phaseAxes, dst []stationaryPoint) error {
	return solvePhaseTableHost(axes, dst, e.workers)
}

// floatBuffer allocates a device buffer for data (at least one element) and
// uploads it.
func (e *openCLEvaluator) floatBuffer(flags cl.MemFlag, data []float32, label string) (*cl.MemObject, error) {
	n := max(len(data), 1)
	buf, err := e.context.CreateEmptyBuffer(flags, n*int(unsafe.Sizeof(float32(0))))
	if err != nil {
		return nil, fmt.Errorf("allocating %s buffer: %w", label, err)
	}
	if len(data) > 0 {
		if _, err := e.queue.EnqueueWriteBufferFloat32(buf, false, 0, data, nil); err != nil {
			buf.Release()
			return nil, fmt.Errorf("writing %s buffer: %w", label, err)
		}
	}
	return buf, nil
}

func (e *openCLEvaluator) BindStatic(in staticInputs) error {
	if e.context == nil {
		return fmt.Errorf("%w: evaluator closed", errResourceState)
	}
	if err := validateStatic(in); err != nil {
		return err
	}
	if in.Wave.SampleStride < 1 {
		in.Wave.SampleStride = 1
	}
	axes := in.PhaseAxes
	fnhIndex := axes.Fnh.index(in.DesignFnh)
	rowStart := 4 * axes.cellIndex(fnhIndex, 0, 0)
	rowLen := 4 * axes.H.Count * axes.Alpha.Count

	hullBuf, err := e.floatBuffer(cl.MemReadOnly, in.Hulls, "hull")
	if err != nil {
		return err
	}
	wallBuf, err := e.floatBuffer(cl.MemReadOnly, in.Walls, "wall")
	if err != nil {
		hullBuf.Release()
		return err
	}
	tableBuf, err := e.floatBuffer(cl.MemReadOnly, in.PhaseTable[rowStart:rowStart+rowLen], "phase table")
	if err != nil {
		wallBuf.Release()
		hullBuf.Release()
		return err
	}
	e.releaseStatic()
	e.hullBuf, e.wallBuf, e.tableBuf = hullBuf, wallBuf, tableBuf
	e.static = in
	e.fnhIndex = fnhIndex
	e.hasStatic = true
	return nil
}

func (e *openCLEvaluator) BindSurface(storage *surfaceStorage) error {
	if storage == nil {
		return fmt.Errorf("%w: binding nil surface storage", errResourceState)
	}
	if e.context == nil {
		return fmt.Errorf("%w: evaluator closed", errResourceState)
	}
	n := storage.VertexCount()
	f32 := int(unsafe.Sizeof(float32(0)))
	posBuf, err := e.context.CreateEmptyBuffer(cl.MemWriteOnly, 3*n*f32)
	if err != nil {
		return fmt.Errorf("allocating position buffer: %w", err)
	}
	normBuf, err := e.context.CreateEmptyBuffer(cl.MemWriteOnly, 3*n*f32)
	if err != nil {
		posBuf.Release()
		return fmt.Errorf("allocating normal buffer: %w", err)
	}
	texBuf, err := e.context.CreateEmptyBuffer(cl.MemWriteOnly, 2*n*f32)
	if err != nil {
		normBuf.Release()
		posBuf.Release()
		return fmt.Errorf("allocating texcoord buffer: %w", err)
	}
	e.releaseSurface()
	e.posBuf, e.normBuf, e.texBuf = posBuf, normBuf, texBuf
	e.storage = storage
	e.scratch = newSurfaceStorage(n)
	return nil
}

func (e *openCLEvaluator) SetFrameParams(p frameParams) error {
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

func (e *openCLEvaluator) StageTrajectories(pack *trajectoryPack) error {
	if !e.hasStatic || !e.hasFrame {
		return fmt.Errorf("%w: trajectories staged before static inputs and frame parameters", errResourceState)
	}
	if err := validatePack(pack, e.static.VesselCount); err != nil {
		return err
	}
	e.ReleaseTrajectories()
	var err error
	if e.trajPosBuf, err = e.floatBuffer(cl.MemReadOnly, pack.positions, "trajectory position"); err != nil {
		return err
	}
	if e.trajTimeBuf, err = e.floatBuffer(cl.MemReadOnly, pack.times, "trajectory time"); err != nil {
		return err
	}
	if e.trajDepthBuf, err = e.floatBuffer(cl.MemReadOnly, pack.depths, "trajectory depth"); err != nil {
		return err
	}
	if e.trajHeadBuf, err = e.floatBuffer(cl.MemReadOnly, pack.headings, "trajectory heading"); err != nil {
		return err
	}
	i32 := int(unsafe.Sizeof(int32(0)))
	if e.trajCountBuf, err = e.context.CreateEmptyBuffer(cl.MemReadOnly, len(pack.counts)*i32); err != nil {
		return fmt.Errorf("allocating trajectory count buffer: %w", err)
	}
	ptr := unsafe.Pointer(&pack.counts[0])
	if _, err := e.queue.EnqueueWriteBuffer(e.trajCountBuf, false, 0, len(pack.counts)*i32, ptr, nil); err != nil {
		return fmt.Errorf("writing trajectory count buffer: %w", err)
	}
	e.stride = pack.stride
	e.vessels = pack.vessels
	return nil
}

func (e *openCLEvaluator) Dispatch(units int) error {
	if e.storage == nil || e.posBuf == nil {
		return fmt.Errorf("%w: dispatch without bound surface", errResourceState)
	}
	if !e.hasFrame || e.trajCountBuf == nil || e.trajHeadBuf == nil {
		return errors.New("dispatch before frame parameters and trajectories were staged")
	}
	topo := e.frame.Topology
	if e.storage.VertexCount() != topo.VertexCount() {
		return fmt.Errorf("unexpected surface size: storage has %d vertices, topology needs %d", e.storage.VertexCount(), topo.VertexCount())
	}
	wg := e.frame.WorkgroupSize
	if units*wg < topo.QuadCount {
		return fmt.Errorf("dispatch of %d units does not cover %d quads", units, topo.QuadCount)
	}
	wave := e.static.Wave
	axes := e.static.PhaseAxes
	if err := e.kernel.SetArgs(
		int32(topo.XQuadCount),
		int32(topo.ZQuadCount),
		float32(topo.XOrigin),
		float32(topo.ZOrigin),
		float32(topo.XStep),
		float32(topo.ZStep),
		float32(topo.XSize),
		float32(topo.ZSize),
		float32(e.frame.Time),
		int32(e.stride),
		int32(e.vessels),
		int32(wave.SampleStride),
		float32(wave.Amplitude),
		float32(wave.Decay),
		float32(wave.WallReflect),
		int32(e.static.WallCount),
		float32(axes.H.Min),
		float32(axes.H.Step),
		int32(axes.H.Count),
		int32(axes.Alpha.Count),
		float32(maxAgeDecays*wave.Decay),
		int32(e.static.HullNx*e.static.HullNz),
		e.trajPosBuf,
		e.trajTimeBuf,
		e.trajDepthBuf,
		e.trajHeadBuf,
		e.trajCountBuf,
		e.hullBuf,
		e.wallBuf,
		e.tableBuf,
		e.posBuf,
		e.normBuf,
		e.texBuf,
	); err != nil {
		return fmt.Errorf("setting kernel arguments: %w", err)
	}
	if _, err := e.queue.EnqueueNDRangeKernel(e.kernel, nil, []int{units * wg}, []int{wg}, nil); err != nil {
		return fmt.Errorf("enqueueing kernel: %w", err)
	}
	if _, err := e.queue.EnqueueReadBufferFloat32(e.posBuf, true, 0, e.scratch.Positions, nil); err != nil {
		return fmt.Errorf("reading position buffer: %w", err)
	}
	if _, err := e.queue.EnqueueReadBufferFloat32(e.normBuf, true, 0, e.scratch.Normals, nil); err != nil {
		return fmt.Errorf("reading normal buffer: %w", err)
	}
	if _, err := e.queue.EnqueueReadBufferFloat32(e.texBuf, true, 0, e.scratch.Texcoords, nil); err != nil {
		return fmt.Errorf("reading texcoord buffer: %w", err)
	}
	e.storage.copyFrom(e.scratch)
	return nil
}

func (e *openCLEvaluator) ReleaseTrajectories() {
	for _, buf := range []**cl.MemObject{&e.trajPosBuf, &e.trajTimeBuf, &e.trajDepthBuf, &e.trajHeadBuf, &e.trajCountBuf} {
		if *buf != nil {
			(*buf).Release()
			*buf = nil
		}
	}
}

func (e *openCLEvaluator) releaseStatic() {
	for _, buf := range []**cl.MemObject{&e.hullBuf, &e.wallBuf, &e.tableBuf} {
		if *buf != nil {
			(*buf).Release()
			*buf = nil
		}
	}
}

func (e *openCLEvaluator) releaseSurface() {
	for _, buf := range []**cl.MemObject{&e.posBuf, &e.normBuf, &e.texBuf} {
		if *buf != nil {
			(*buf).Release()
			*buf = nil
		}
	}
	e.storage = nil
	e.scratch = nil
}

func (e *openCLEvaluator) Close() {
	e.ReleaseTrajectories()
	e.releaseSurface()
	e.releaseStatic()
	e.hasStatic = false
	if e.kernel != nil {
		e.kernel.Release()
		e.kernel = nil
	}
	if e.program != nil {
		e.program.Release()
		e.program = nil
	}
	if e.queue != nil {
		e.queue.Release()
		e.queue = nil
	}
	if e.context != nil {
		e.context.Release()
		e.context = nil
	}
}
