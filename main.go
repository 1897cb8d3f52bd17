package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func main() {
	v := viper.New()
	fs := newFlagSet(v)
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	s, err := loadSettings(v)
	log := newLogger(os.Stderr, v.GetString("log.level"))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := newFrameMetrics(reg)
	if s.Metrics.Addr != "" {
		srv := newMetricsServer(s.Metrics.Addr, reg)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", s.Metrics.Addr).Msg("metrics server stopped")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
		log.Info().Str("addr", s.Metrics.Addr).Msg("serving metrics")
	}

	eval, err := newEvaluator(s.Evaluator.Backend, s.CPU.Workers)
	if err != nil {
		log.Fatal().Err(err).Str("backend", s.Evaluator.Backend).Msg("evaluator initialization failed")
	}
	log.Info().Str("device", eval.DeviceName()).Msg("surface evaluator enabled")

	g, err := newGame(s, eval, metrics, log)
	if err != nil {
		eval.Close()
		log.Fatal().Err(err).Msg("session setup failed")
	}
	defer g.Close()
	if s.RecordPGO {
		if err := g.recordDefaultPGO("default.pgo"); err != nil {
			log.Error().Err(err).Msg("PGO recording disabled")
		}
	}

	ebiten.SetTPS(int(defaultTPS))
	ebiten.SetWindowSize(screenW, screenH)
	ebiten.SetWindowTitle("Ship Wakes")
	if err := ebiten.RunGame(g); err != nil {
		log.Error().Err(err).Msg("game loop stopped")
	}
}
