// SPDX-License-Identifier: MIT

// The controllog worker polls the sanctioning body's race-control feed for
// one event and pushes per-car and full-event updates to subscribed viewers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/pitwall-live/pitwall/internal/bus"
	"github.com/pitwall-live/pitwall/internal/config"
	"github.com/pitwall-live/pitwall/internal/controllog"
	"github.com/pitwall-live/pitwall/internal/health"
	"github.com/pitwall-live/pitwall/internal/log"
	"github.com/pitwall-live/pitwall/internal/telemetry"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	log.Configure(log.Config{
		Level:   config.ParseString("PITWALL_LOG_LEVEL", "info"),
		Service: "pitwall-controllog",
	})
	logger := log.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadControlLog()
	if err != nil {
		logger.Error().Err(err).Str("event", "config.load_failed").Msg("invalid configuration")
		os.Exit(1)
	}

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Infra.Telemetry.Enabled,
		ServiceName:    "pitwall-controllog",
		ServiceVersion: version,
		ExporterType:   cfg.Infra.Telemetry.ExporterType,
		Endpoint:       cfg.Infra.Telemetry.Endpoint,
		SamplingRate:   cfg.Infra.Telemetry.SamplingRate,
	})
	if err != nil {
		logger.Error().Err(err).Str("event", "telemetry.init_failed").Msg("telemetry init failed")
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	b, err := bus.New(cfg.Infra.Redis)
	if err != nil {
		logger.Error().Err(err).Str("event", "bus.connect_failed").Msg("redis connection failed")
		os.Exit(1)
	}
	defer func() { _ = b.Close() }()

	source, err := controllog.NewSource(cfg)
	if err != nil {
		logger.Error().Err(err).Str("event", "controllog.source_failed").Msg("source init failed")
		os.Exit(1)
	}

	agg := controllog.New(cfg, b, source, clockwork.NewRealClock())

	hm := health.NewManager(version)
	hm.RegisterChecker(health.NewPingChecker("redis", b.Ping))

	mux := http.NewServeMux()
	mux.Handle("/healthz/", hm.Handler())
	mux.Handle("/metrics", promhttp.Handler())
	healthSrv := &http.Server{
		Addr:              cfg.HealthAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info().Str("version", version).Str(log.FieldEventID, cfg.EventID).
		Str("event", "controllog.starting").Msg("control log aggregator starting")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return agg.Run(ctx) })
	g.Go(func() error {
		if err := healthSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return healthSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Str("event", "controllog.exit").Msg("aggregator exited with error")
		os.Exit(1)
	}
	logger.Info().Str("event", "controllog.stopped").Msg("control log aggregator stopped")
}
