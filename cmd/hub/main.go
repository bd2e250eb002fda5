// SPDX-License-Identifier: MIT

// The hub terminates WebSocket connections from relays and viewers, routes
// relay input onto the per-event streams and fans worker output back out.
// Stateless apart from live connections; scale horizontally behind a
// balancer.
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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/pitwall-live/pitwall/internal/bus"
	"github.com/pitwall-live/pitwall/internal/config"
	"github.com/pitwall-live/pitwall/internal/health"
	"github.com/pitwall-live/pitwall/internal/hub"
	"github.com/pitwall-live/pitwall/internal/log"
	"github.com/pitwall-live/pitwall/internal/store"
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
		Service: "pitwall-hub",
	})
	logger := log.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadHub()
	if err != nil {
		logger.Error().Err(err).Str("event", "config.load_failed").Msg("invalid configuration")
		os.Exit(1)
	}

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Infra.Telemetry.Enabled,
		ServiceName:    "pitwall-hub",
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

	st, err := store.New(ctx, cfg.Infra.Postgres)
	if err != nil {
		logger.Error().Err(err).Str("event", "store.connect_failed").Msg("postgres connection failed")
		os.Exit(1)
	}
	defer st.Close()

	h, err := hub.New(cfg, b, st)
	if err != nil {
		logger.Error().Err(err).Str("event", "hub.init_failed").Msg("hub init failed")
		os.Exit(1)
	}

	hm := health.NewManager(version)
	hm.RegisterChecker(health.NewPingChecker("redis", b.Ping))
	hm.RegisterChecker(health.NewPingChecker("postgres", st.Ping))

	mux := http.NewServeMux()
	mux.Handle("/healthz/", hm.Handler())
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", h.Router())
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           otelhttp.NewHandler(mux, "hub"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info().Str("version", version).Str("addr", cfg.ListenAddr).
		Str("event", "hub.starting").Msg("hub starting")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.RunBackplane(ctx) })
	g.Go(func() error {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Str("event", "hub.exit").Msg("hub exited with error")
		os.Exit(1)
	}
	logger.Info().Str("event", "hub.stopped").Msg("hub stopped")
}
