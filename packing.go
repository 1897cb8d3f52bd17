package main

import (
	"fmt"
	"strings"
)

// pathLengthPolicy chooses the shared stride of the packed trajectory buffers.
type pathLengthPolicy int

const (
	// pathLengthMax sizes the stride by the longest history and zero pads
	// shorter vessels; counts carry the real lengths.
	pathLengthMax pathLengthPolicy = iota
	// pathLengthDesignated sizes the stride by vessel 0. Longer vessels give
	// their newest samples, shorter vessels fail the pack.
	pathLengthDesignated
)

func (p pathLengthPolicy) String() string {
	if p == pathLengthDesignated {
		return "designated"
	}
	return "max"
}

// parsePathLengthPolicy accepts "max" and "designated".
func parsePathLengthPolicy(name string) (pathLengthPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "max":
		return pathLengthMax, nil
	case "designated":
		return pathLengthDesignated, nil
	default:
		return pathLengthMax, fmt.Errorf("%w: unknown trajectory length policy %q", errConfiguration, name)
	}
}

// trajectoryPack is the per-frame set of parallel trajectory buffers. Sample k
// of vessel i sits at i*stride+k in every buffer. It is reused as an arena:
// reset keeps capacity, release truncates.
type trajectoryPack struct {
	stride    int
	vessels   int
	positions []float32 // x, z per sample
	times     []float32
	headings  []float32
	depths    []float32
	counts    []int32
	scratch   []trajectorySample
}

// samples is the total slot count, stride * vessels.
func (p *trajectoryPack) samples() int { return p.stride * p.vessels }

func (p *trajectoryPack) reset(stride, vessels int) {
	n := stride * vessels
	p.stride = stride
	p.vessels = vessels
	p.positions = resizeZeroed(p.positions, 2*n)
	p.times = resizeZeroed(p.times, n)
	p.headings = resizeZeroed(p.headings, n)
	p.depths = resizeZeroed(p.depths, n)
	if cap(p.counts) < vessels {
		p.counts = make([]int32, vessels)
	}
	p.counts = p.counts[:vessels]
	if cap(p.scratch) < stride {
		p.scratch = make([]trajectorySample, stride)
	}
	p.scratch = p.scratch[:stride]
}

// release truncates the buffers for the next tick.
func (p *trajectoryPack) release() {
	p.stride = 0
	p.vessels = 0
	p.positions = p.positions[:0]
	p.times = p.times[:0]
	p.headings = p.headings[:0]
	p.depths = p.depths[:0]
	p.counts = p.counts[:0]
}

func resizeZeroed(buf []float32, n int) []float32 {
	if cap(buf) < n {
		return make([]float32, n)
	}
	buf = buf[:n]
	clear(buf)
	return buf
}

// packTrajectories writes every vessel's history into p under policy.
func packTrajectories(p *trajectoryPack, vessels []*vessel, policy pathLengthPolicy) error {
	if len(vessels) == 0 {
		return fmt.Errorf("%w: no vessels to pack", errConfiguration)
	}
	stride := vessels[0].history.len()
	if policy == pathLengthMax {
		for _, v := range vessels[1:] {
			stride = max(stride, v.history.len())
		}
	}
	if policy == pathLengthDesignated {
		for i, v := range vessels {
			if n := v.history.len(); n < stride {
				return fmt.Errorf("%w: vessel %d has %d samples, stride is %d", errShortTrajectory, i, n, stride)
			}
		}
	}
	p.reset(stride, len(vessels))
	for i, v := range vessels {
		n := v.history.snapshotInto(p.scratch)
		base := i * stride
		for k, s := range p.scratch[:n] {
			idx := base + k
			p.positions[2*idx] = float32(s.Position.X)
			p.positions[2*idx+1] = float32(s.Position.Z)
			p.times[idx] = float32(s.Time)
			p.headings[idx] = float32(s.Heading)
			p.depths[idx] = float32(s.Depth)
		}
		p.counts[i] = int32(n)
	}
	return nil
}

// packHulls concatenates hull samples in vessel order, xyz per point. All
// vessels must sample the same Nx by Nz grid.
func packHulls(vessels []*vessel) ([]float32, error) {
	if len(vessels) == 0 {
		return nil, fmt.Errorf("%w: no vessels configured", errConfiguration)
	}
	nx, nz := vessels[0].hull.Nx, vessels[0].hull.Nz
	per := vessels[0].hullSampleCount()
	out := make([]float32, 0, 3*per*len(vessels))
	for i, v := range vessels {
		if v.hull.Nx != nx || v.hull.Nz != nz {
			return nil, fmt.Errorf("%w: vessel %d hull is %dx%d, vessel 0 is %dx%d", errConfiguration, i, v.hull.Nx, v.hull.Nz, nx, nz)
		}
		for _, pt := range v.points {
			out = append(out, float32(pt.X), float32(pt.Y), float32(pt.Z))
		}
	}
	return out, nil
}
