package main

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// vesselSettings places one vessel at startup.
type vesselSettings struct {
	X          float64 `mapstructure:"x"`
	Z          float64 `mapstructure:"z"`
	HeadingDeg float64 `mapstructure:"headingDeg"`
	Speed      float64 `mapstructure:"speed"`
	Length     float64 `mapstructure:"length"`
}

// hullSettings are shared by all vessels; the evaluator expects one hull grid size.
type hullSettings struct {
	Nx int `mapstructure:"nx"`
	Nz int `mapstructure:"nz"`
}

type vesselDefaults struct {
	Hull          hullSettings `mapstructure:"hull"`
	AccelRate     float64      `mapstructure:"accelRate"`
	DecelRate     float64      `mapstructure:"decelRate"`
	TurnRateDeg   float64      `mapstructure:"turnRateDeg"`
	DesignFnh     float64      `mapstructure:"designFnh"`
	ParkBoundaryX float64      `mapstructure:"parkBoundaryX"`
}

type wallSettings struct {
	AX float64 `mapstructure:"ax"`
	AZ float64 `mapstructure:"az"`
	BX float64 `mapstructure:"bx"`
	BZ float64 `mapstructure:"bz"`
}

// randomWallSettings adds procedurally placed walls to the configured ones.
type randomWallSettings struct {
	Count int   `mapstructure:"count"`
	Seed  int64 `mapstructure:"seed"`
}

type trajectorySettings struct {
	Capacity     int    `mapstructure:"capacity"`
	LengthPolicy string `mapstructure:"lengthPolicy"`
}

type evaluatorSettings struct {
	Backend       string `mapstructure:"backend"`
	WorkgroupSize int    `mapstructure:"workgroupSize"`
}

// cpuSettings tune the host evaluator only.
type cpuSettings struct {
	Workers      int `mapstructure:"workers"`
	SampleStride int `mapstructure:"sampleStride"`
}

type logSettings struct {
	Level string `mapstructure:"level"`
}

type metricsSettings struct {
	Addr string `mapstructure:"addr"`
}

// settings is the full session configuration.
type settings struct {
	Grid        gridParams         `mapstructure:"grid"`
	BoundsY     float64            `mapstructure:"boundsY"`
	Vessels     []vesselSettings   `mapstructure:"vessels"`
	Vessel      vesselDefaults     `mapstructure:"vessel"`
	Trajectory  trajectorySettings `mapstructure:"trajectory"`
	PhaseTable  phaseTableConfig   `mapstructure:"phaseTable"`
	Walls       []wallSettings     `mapstructure:"walls"`
	RandomWalls randomWallSettings `mapstructure:"randomWalls"`
	Evaluator   evaluatorSettings  `mapstructure:"evaluator"`
	CPU         cpuSettings        `mapstructure:"cpu"`
	Wave        waveParams         `mapstructure:"wave"`
	Log         logSettings        `mapstructure:"log"`
	Metrics     metricsSettings    `mapstructure:"metrics"`
	Debug       bool               `mapstructure:"debug"`
	AutoHelm    bool               `mapstructure:"autoHelm"`
	RecordPGO   bool               `mapstructure:"recordDefaultPGO"`
}

// setDefaults installs every default so a session runs without a file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("grid.xSize", defaultGridXSize)
	v.SetDefault("grid.zSize", defaultGridZSize)
	v.SetDefault("grid.xOrigin", defaultGridXOrigin)
	v.SetDefault("grid.zOrigin", defaultGridZOrigin)
	v.SetDefault("grid.xStep", defaultGridStep)
	v.SetDefault("grid.zStep", defaultGridStep)
	v.SetDefault("boundsY", defaultBoundsY)

	v.SetDefault("vessels", []map[string]any{
		{"x": 0.0, "z": -6.0, "headingDeg": 0.0, "speed": 1.5},
		{"x": 0.0, "z": 6.0, "headingDeg": 0.0, "speed": 1.5},
	})
	v.SetDefault("vessel.hull.nx", defaultHullNx)
	v.SetDefault("vessel.hull.nz", defaultHullNz)
	v.SetDefault("vessel.accelRate", defaultAccelRate)
	v.SetDefault("vessel.decelRate", defaultDecelRate)
	v.SetDefault("vessel.turnRateDeg", defaultTurnRateDeg)
	v.SetDefault("vessel.designFnh", defaultDesignFnh)
	v.SetDefault("vessel.parkBoundaryX", defaultParkBoundaryX)

	v.SetDefault("trajectory.capacity", defaultVesselPathMaxLength)
	v.SetDefault("trajectory.lengthPolicy", "max")

	v.SetDefault("phaseTable.fnh.min", defaultFnhMin)
	v.SetDefault("phaseTable.fnh.max", defaultFnhMax)
	v.SetDefault("phaseTable.fnh.step", defaultFnhStep)
	v.SetDefault("phaseTable.h.min", defaultHMin)
	v.SetDefault("phaseTable.h.max", defaultHMax)
	v.SetDefault("phaseTable.h.step", defaultHStep)
	v.SetDefault("phaseTable.alpha.min", defaultAlphaMin)
	v.SetDefault("phaseTable.alpha.max", defaultAlphaMax)
	v.SetDefault("phaseTable.alpha.step", defaultAlphaStep)

	v.SetDefault("walls", []map[string]any{})
	v.SetDefault("randomWalls.count", 0)
	v.SetDefault("randomWalls.seed", 1)

	v.SetDefault("evaluator.backend", "cpu")
	v.SetDefault("evaluator.workgroupSize", surfaceWorkgroupSize)
	v.SetDefault("cpu.workers", 0)
	v.SetDefault("cpu.sampleStride", defaultCPUSampleStride)

	v.SetDefault("wave.amplitude", defaultWaveAmplitude)
	v.SetDefault("wave.decay", defaultWaveDecay)
	v.SetDefault("wave.wallReflect", defaultWallReflect)

	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("debug", false)
	v.SetDefault("autoHelm", false)
	v.SetDefault("recordDefaultPGO", false)
}

// newFlagSet declares the command-line flags and binds them into v.
func newFlagSet(v *viper.Viper) *pflag.FlagSet {
	fs := pflag.NewFlagSet("shipwake", pflag.ContinueOnError)
	fs.String("config", "", "optional configuration file (json, yaml or toml)")
	fs.Bool("debug", false, "show FPS, grid and trajectory overlay; enables [ and ] to change grid resolution")
	fs.Bool("auto-helm", false, "steer vessels with scripted speed and heading ramps")
	fs.Bool("record-default-pgo", false, "auto-helm for 15s while capturing default.pgo")
	fs.String("evaluator", "cpu", "surface evaluator backend: cpu or opencl")
	fs.String("log-level", "info", "log level: trace, debug, info, warn, error")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address (empty disables)")
	fs.String("trajectory-policy", "max", "trajectory stride policy: max or designated")
	fs.Float64("grid-step", defaultGridStep, "initial grid step in both directions")

	bind := map[string]string{
		"config":                  "config",
		"debug":                   "debug",
		"autoHelm":                "auto-helm",
		"recordDefaultPGO":        "record-default-pgo",
		"evaluator.backend":       "evaluator",
		"log.level":               "log-level",
		"metrics.addr":            "metrics-addr",
		"trajectory.lengthPolicy": "trajectory-policy",
		"grid.xStep":              "grid-step",
		"grid.zStep":              "grid-step",
	}
	for key, name := range bind {
		_ = v.BindPFlag(key, fs.Lookup(name))
	}
	return fs
}

// loadSettings applies defaults, the optional config file and bound flags.
func loadSettings(v *viper.Viper) (settings, error) {
	setDefaults(v)
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return settings{}, fmt.Errorf("error reading config file: %w", err)
		}
	}
	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return settings{}, fmt.Errorf("decoding settings: %w", err)
	}
	if len(s.Vessels) == 0 {
		return settings{}, fmt.Errorf("%w: at least one vessel must be configured", errConfiguration)
	}
	if s.Trajectory.Capacity < 1 {
		return settings{}, fmt.Errorf("%w: trajectory capacity must be >= 1, got %d", errConfiguration, s.Trajectory.Capacity)
	}
	return s, nil
}

// kinematics converts the shared vessel settings.
func (s settings) kinematics() kinematics {
	return kinematics{
		AccelRate:     s.Vessel.AccelRate,
		DecelRate:     s.Vessel.DecelRate,
		TurnRate:      s.Vessel.TurnRateDeg * math.Pi / 180,
		DesignFnh:     s.Vessel.DesignFnh,
		ParkBoundaryX: s.Vessel.ParkBoundaryX,
	}
}

// buildVessels creates every configured vessel at simulation time now.
func (s settings) buildVessels(now float64) ([]*vessel, error) {
	vessels := make([]*vessel, 0, len(s.Vessels))
	for i, vs := range s.Vessels {
		length := vs.Length
		if length == 0 {
			length = defaultHullLength
		}
		initial := vesselState{
			Position: vec2{X: vs.X, Z: vs.Z},
			Heading:  vs.HeadingDeg * math.Pi / 180,
			Speed:    vs.Speed,
		}
		v, err := newVessel(i, defaultHull(length, s.Vessel.Hull.Nx, s.Vessel.Hull.Nz), initial, s.kinematics(), s.Trajectory.Capacity, now)
		if err != nil {
			return nil, err
		}
		vessels = append(vessels, v)
	}
	return vessels, nil
}

// buildWalls converts the configured segments, plus any generated ones kept
// clear of the vessel start positions, into a wall set.
func (s settings) buildWalls() (*wallSet, error) {
	segments := make([]wallSegment, 0, len(s.Walls)+s.RandomWalls.Count)
	for _, w := range s.Walls {
		segments = append(segments, wallSegment{A: vec2{X: w.AX, Z: w.AZ}, B: vec2{X: w.BX, Z: w.BZ}})
	}
	if s.RandomWalls.Count > 0 {
		starts := make([]vec2, 0, len(s.Vessels))
		for _, vs := range s.Vessels {
			starts = append(starts, vec2{X: vs.X, Z: vs.Z})
		}
		rng := rand.New(rand.NewSource(s.RandomWalls.Seed))
		segments = append(segments, generateWalls(rng, s.RandomWalls.Count, s.Grid, starts)...)
	}
	return newWallSet(segments)
}

// assemblerConfig gathers the assembler's share of the settings.
func (s settings) assemblerConfig() (assemblerConfig, error) {
	policy, err := parsePathLengthPolicy(s.Trajectory.LengthPolicy)
	if err != nil {
		return assemblerConfig{}, err
	}
	wave := s.Wave
	wave.SampleStride = s.CPU.SampleStride
	return assemblerConfig{
		Grid:          s.Grid,
		PhaseTable:    s.PhaseTable,
		LengthPolicy:  policy,
		WorkgroupSize: s.Evaluator.WorkgroupSize,
		BoundsY:       s.BoundsY,
		DesignFnh:     s.Vessel.DesignFnh,
		Wave:          wave,
	}, nil
}
