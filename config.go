package main

import (
	"math"
	"time"
)

// Simulation and rendering defaults. Everything that a session may want to
// change is also exposed through the settings layer; these are the values used
// when no configuration overrides them.
const (
	screenW, screenH = 800, 800
	defaultTPS       = 60.0

	gravity = 9.81

	defaultVesselPathMaxLength = 1200
	surfaceWorkgroupSize       = 64
	phaseWorkgroupSize         = 128

	defaultHullLength = 3.0
	defaultHullNx     = 21
	defaultHullNz     = 6
	hullBeamRatio     = 0.75 / 8.0
	hullDraftRatio    = 1.0 / 16.0

	defaultAccelRate     = 1.0
	defaultDecelRate     = 0.4
	defaultTurnRateDeg   = 60.0
	defaultDesignFnh     = 0.3
	defaultParkBoundaryX = 39.0

	defaultGridXSize   = 80.0
	defaultGridZSize   = 80.0
	defaultGridXOrigin = -10.0
	defaultGridZOrigin = -40.0
	defaultGridStep    = 0.5
	defaultBoundsY     = 2.0
	minGridStep        = 0.05
	gridStepFactor     = 1.25

	maxGridQuadsPerAxis = 1024

	defaultFnhMin    = 0.4
	defaultFnhMax    = 1.6
	defaultFnhStep   = 0.01
	defaultHMin      = 1.0
	defaultHMax      = 60.0
	defaultHStep     = 1.0
	defaultAlphaMin  = 0.0
	defaultAlphaMax  = math.Pi * 0.5
	defaultAlphaStep = math.Pi / 180.0 / 8.0

	defaultWaveAmplitude   = 0.05
	defaultWaveDecay       = 6.0
	defaultWallReflect     = 0.8
	defaultCPUSampleStride = 8

	sentinelWallCoord = 1000.0

	pgoRecordDuration = 15 * time.Second
	autoHelmMinLeg    = 2 * time.Second
	autoHelmMaxLeg    = 6 * time.Second
	autoHelmMaxSpeed  = 4.0
)
