package main

import (
	"fmt"
	"os"
	"runtime/pprof"
	"sync"
)

// startDefaultPGORecording begins writing CPU profiles to the provided path.
func startDefaultPGORecording(path string) (func(), error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("starting CPU profile: %w", err)
	}
	var once sync.Once
	stop := func() {
		once.Do(func() {
			pprof.StopCPUProfile()
			_ = f.Close()
		})
	}
	return stop, nil
}

// recordDefaultPGO steers all vessels automatically while a CPU profile is
// captured; the profile is closed when the scripted run ends.
func (g *Game) recordDefaultPGO(path string) error {
	stop, err := startDefaultPGORecording(path)
	if err != nil {
		return err
	}
	if g.helm == nil {
		g.helm = newAutoHelm(len(g.vessels), 1)
	}
	g.helm.enableFor(pgoRecordDuration)
	g.stopRecording = stop
	g.log.Info().Str("path", path).Dur("duration", pgoRecordDuration).Msg("recording CPU profile")
	return nil
}
