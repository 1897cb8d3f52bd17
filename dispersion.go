package main

import (
	"math"
)

const (
	dispersionNewtonIters  = 50
	dispersionTolerance    = 1e-12
	stationaryCurveSamples = 512
	stationaryBisectIters  = 48
	missingRoot            = -1.0
)

// dimensionlessWavenumber solves Fnh^2 cos^2(theta) K = tanh(K) for K = k*h.
// It reports false when no positive root exists, which is the case when
// Fnh*cos(theta) >= 1.
func dimensionlessWavenumber(fnh, theta float64) (float64, bool) {
	c := fnh * fnh * math.Cos(theta) * math.Cos(theta)
	if c <= 0 || c >= 1 {
		return 0, false
	}
	// Deep water guess sits right of the root; g is convex so Newton descends
	// monotonically onto it.
	k := 1 / c
	for i := 0; i < dispersionNewtonIters; i++ {
		th := math.Tanh(k)
		g := c*k - th
		gp := c - (1 - th*th)
		if gp <= 0 {
			break
		}
		step := g / gp
		k -= step
		if math.Abs(step) < dispersionTolerance*k {
			break
		}
	}
	if !(k > 0) {
		return 0, false
	}
	return k, true
}

// observationAngle returns the angle from the sailing line at which waves of
// propagation angle theta are stationary, together with K.
func observationAngle(fnh, theta float64) (alpha, k float64, ok bool) {
	k, ok = dimensionlessWavenumber(fnh, theta)
	if !ok {
		return 0, 0, false
	}
	sin, cos := math.Sincos(theta)
	sech := 1 / math.Cosh(k)
	denom := fnh*fnh*cos*cos - sech*sech
	if denom <= 0 {
		return 0, 0, false
	}
	r := 2 * fnh * fnh * cos * sin / denom
	return math.Atan2(r*cos-sin, cos+r*sin), k, true
}

// stationaryCurve tabulates observationAngle over the admissible theta range
// for one Fnh. It is reused for every alpha in a table row.
type stationaryCurve struct {
	fnh    float64
	thetas []float64
	alphas []float64
}

// newStationaryCurve samples the open theta interval where waves exist:
// (0, pi/2) below the critical speed and (acos(1/Fnh), pi/2) above it.
func newStationaryCurve(fnh float64) *stationaryCurve {
	lo := 0.0
	if fnh >= 1 {
		lo = math.Acos(1 / fnh)
	}
	hi := math.Pi / 2
	c := &stationaryCurve{fnh: fnh}
	span := hi - lo
	for i := 0; i < stationaryCurveSamples; i++ {
		theta := lo + span*(float64(i)+0.5)/stationaryCurveSamples
		alpha, _, ok := observationAngle(fnh, theta)
		if !ok {
			continue
		}
		c.thetas = append(c.thetas, theta)
		c.alphas = append(c.alphas, alpha)
	}
	return c
}

// roots finds the transverse and divergent stationary angles for alpha. A
// crossing on the rising branch of the curve is transverse, on the falling
// branch divergent. Missing roots are reported as missingRoot.
func (c *stationaryCurve) roots(alpha float64) (transverse, divergent float64) {
	transverse, divergent = missingRoot, missingRoot
	for i := 0; i+1 < len(c.thetas); i++ {
		a0 := c.alphas[i] - alpha
		a1 := c.alphas[i+1] - alpha
		if a0 == 0 && a1 == 0 {
			continue
		}
		if a0*a1 > 0 {
			continue
		}
		theta := c.bisect(c.thetas[i], c.thetas[i+1], alpha, a0)
		if c.alphas[i+1] > c.alphas[i] {
			if transverse == missingRoot {
				transverse = theta
			}
		} else {
			divergent = theta
		}
	}
	return transverse, divergent
}

func (c *stationaryCurve) bisect(lo, hi, alpha, fLo float64) float64 {
	for i := 0; i < stationaryBisectIters; i++ {
		mid := 0.5 * (lo + hi)
		a, _, ok := observationAngle(c.fnh, mid)
		if !ok {
			return mid
		}
		f := a - alpha
		if f == 0 {
			return mid
		}
		if (f < 0) == (fLo < 0) {
			lo, fLo = mid, f
		} else {
			hi = mid
		}
	}
	return 0.5 * (lo + hi)
}

// wavenumber returns the dimensional wavenumber k = K/h for a stationary angle.
func wavenumber(fnh, theta, depth float64) float64 {
	if theta == missingRoot || depth <= 0 {
		return 0
	}
	k, ok := dimensionlessWavenumber(fnh, theta)
	if !ok {
		return 0
	}
	return k / depth
}

// angularFrequency is the finite-depth dispersion relation omega(k, h).
func angularFrequency(k, depth float64) float64 {
	if k <= 0 {
		return 0
	}
	if depth <= 0 {
		return math.Sqrt(gravity * k)
	}
	return math.Sqrt(gravity * k * math.Tanh(k*depth))
}

// groupVelocity is d omega / d k at finite depth.
func groupVelocity(k, depth float64) float64 {
	omega := angularFrequency(k, depth)
	if omega == 0 {
		return 0
	}
	kh := k * depth
	n := 0.5
	if depth > 0 && kh < 20 {
		n = 0.5 * (1 + 2*kh/math.Sinh(2*kh))
	}
	return n * omega / k
}
