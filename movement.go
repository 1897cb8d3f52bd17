package main

import (
	"math"
	"math/rand"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

const (
	helmSpeedDeadband   = 0.05
	helmHeadingDeadband = 0.01
	autoHelmMaxTurn     = math.Pi / 3
)

// helmLeg is one scripted stretch of speed and heading ramps.
type helmLeg struct {
	speed   *gween.Tween
	heading *gween.Tween
	done    bool
}

// autoHelm steers every vessel through random legs, each a pair of eased
// ramps from the current state to a new target.
type autoHelm struct {
	rng      *rand.Rand
	legs     []helmLeg
	deadline time.Time
}

func newAutoHelm(vessels int, seed int64) *autoHelm {
	return &autoHelm{
		rng:  rand.New(rand.NewSource(seed)),
		legs: make([]helmLeg, vessels),
	}
}

// enableFor limits scripted steering to duration; zero means no limit.
func (a *autoHelm) enableFor(duration time.Duration) {
	if duration <= 0 {
		a.deadline = time.Time{}
		return
	}
	a.deadline = time.Now().Add(duration)
}

func (a *autoHelm) expired() bool {
	return !a.deadline.IsZero() && time.Now().After(a.deadline)
}

// command advances the leg of vessel i by dt and returns the helm input that
// moves it toward the ramp values.
func (a *autoHelm) command(i int, v *vessel, dt float64) helmCommand {
	leg := &a.legs[i]
	if leg.speed == nil || leg.done {
		a.newLeg(leg, v.state)
	}
	speed, speedDone := leg.speed.Update(float32(dt))
	heading, headingDone := leg.heading.Update(float32(dt))
	leg.done = speedDone && headingDone
	return steerToward(v.state, float64(speed), float64(heading))
}

func (a *autoHelm) newLeg(leg *helmLeg, s vesselState) {
	span := autoHelmMaxLeg - autoHelmMinLeg
	duration := autoHelmMinLeg + time.Duration(a.rng.Int63n(int64(span)+1))
	secs := float32(duration.Seconds())
	targetSpeed := 0.5 + a.rng.Float64()*(autoHelmMaxSpeed-0.5)
	targetHeading := s.Heading + (a.rng.Float64()*2-1)*autoHelmMaxTurn
	leg.speed = gween.New(float32(s.Speed), float32(targetSpeed), secs, ease.InOutQuad)
	leg.heading = gween.New(float32(s.Heading), float32(targetHeading), secs, ease.InOutSine)
	leg.done = false
}

// steerToward converts a speed and heading target into discrete helm input.
func steerToward(s vesselState, speed, heading float64) helmCommand {
	var cmd helmCommand
	switch {
	case speed > s.Speed+helmSpeedDeadband:
		cmd.Accelerate = true
	case speed < s.Speed-helmSpeedDeadband:
		cmd.Decelerate = true
	}
	diff := math.Remainder(heading-s.Heading, 2*math.Pi)
	switch {
	case diff > helmHeadingDeadband:
		cmd.TurnLeft = true
	case diff < -helmHeadingDeadband:
		cmd.TurnRight = true
	}
	return cmd
}

// manualHelm reads the arrow keys (or WASD) for the selected vessel.
func manualHelm() helmCommand {
	return helmCommand{
		Accelerate: ebiten.IsKeyPressed(ebiten.KeyArrowUp) || ebiten.IsKeyPressed(ebiten.KeyW),
		Decelerate: ebiten.IsKeyPressed(ebiten.KeyArrowDown) || ebiten.IsKeyPressed(ebiten.KeyS),
		TurnLeft:   ebiten.IsKeyPressed(ebiten.KeyArrowLeft) || ebiten.IsKeyPressed(ebiten.KeyA),
		TurnRight:  ebiten.IsKeyPressed(ebiten.KeyArrowRight) || ebiten.IsKeyPressed(ebiten.KeyD),
	}
}

// helmCommands collects one command per vessel for this tick.
func (g *Game) helmCommands(dt float64) []helmCommand {
	cmds := g.cmds[:0]
	if g.helm != nil && g.helm.expired() {
		g.helm = nil
		if g.stopRecording != nil {
			g.stopRecording()
			g.stopRecording = nil
			g.log.Info().Msg("default.pgo written")
		}
	}
	for i, v := range g.vessels {
		switch {
		case g.helm != nil:
			cmds = append(cmds, g.helm.command(i, v, dt))
		case i == g.selected:
			cmds = append(cmds, manualHelm())
		default:
			cmds = append(cmds, helmCommand{})
		}
	}
	g.cmds = cmds
	return cmds
}

// handleDebugControls processes the selection and grid resolution hotkeys.
func (g *Game) handleDebugControls() {
	if inpututil.IsKeyJustPressed(ebiten.KeyTab) && len(g.vessels) > 0 {
		g.selected = (g.selected + 1) % len(g.vessels)
	}
	if !g.debug {
		return
	}
	factor := 0.0
	if inpututil.IsKeyJustPressed(ebiten.KeyBracketLeft) {
		factor = 1 / gridStepFactor
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyBracketRight) {
		factor = gridStepFactor
	}
	if factor == 0 {
		return
	}
	if err := g.assembler.adjustGridStep(factor); err != nil {
		g.log.Warn().Err(err).Msg("grid step unchanged")
		return
	}
	topo, err := computeTopology(g.assembler.cfg.Grid)
	if err == nil {
		g.log.Info().Int("xQuads", topo.XQuadCount).Int("zQuads", topo.ZQuadCount).Msg("grid resolution changed")
	}
}
