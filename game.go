package main

import (
	"fmt"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/rs/zerolog"
)

// Game drives vessel kinematics and the frame assembler from the Ebiten loop.
type Game struct {
	log     zerolog.Logger
	tickLog zerolog.Logger

	vessels   []*vessel
	walls     *wallSet
	assembler *frameAssembler

	helm          *autoHelm
	stopRecording func()
	cmds          []helmCommand
	selected      int
	debug         bool
	evaluatorName string

	simTime float64
	verts   []ebiten.Vertex
}

// newGame builds the session from settings and sets up the assembler.
func newGame(s settings, eval surfaceEvaluator, metrics *frameMetrics, log zerolog.Logger) (*Game, error) {
	vessels, err := s.buildVessels(0)
	if err != nil {
		return nil, err
	}
	walls, err := s.buildWalls()
	if err != nil {
		return nil, err
	}
	cfg, err := s.assemblerConfig()
	if err != nil {
		return nil, err
	}
	assembler, err := newFrameAssembler(cfg, vessels, walls, eval, metrics, log)
	if err != nil {
		return nil, err
	}
	if err := assembler.setup(); err != nil {
		assembler.release()
		return nil, fmt.Errorf("setting up frame assembler: %w", err)
	}
	g := &Game{
		log:           log,
		tickLog:       log.Sample(&zerolog.BasicSampler{N: uint32(defaultTPS)}),
		vessels:       vessels,
		walls:         walls,
		assembler:     assembler,
		debug:         s.Debug,
		evaluatorName: eval.DeviceName(),
	}
	if s.AutoHelm {
		g.helm = newAutoHelm(len(vessels), time.Now().UnixNano())
	}
	return g, nil
}

// Update advances every vessel by one fixed tick, then assembles the frame.
func (g *Game) Update() error {
	dt := 1.0 / defaultTPS
	g.simTime += dt
	g.handleDebugControls()
	cmds := g.helmCommands(dt)
	for i, v := range g.vessels {
		v.update(cmds[i], dt, g.simTime)
	}
	if err := g.assembler.tick(g.simTime); err != nil {
		if fatalTickError(err) {
			return err
		}
		g.tickLog.Warn().Err(err).Msg("frame kept from previous tick")
	}
	return nil
}

// Close releases the assembler and stops any running profile capture.
func (g *Game) Close() {
	if g.stopRecording != nil {
		g.stopRecording()
		g.stopRecording = nil
	}
	g.assembler.release()
}
