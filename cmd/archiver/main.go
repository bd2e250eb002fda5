// SPDX-License-Identifier: MIT

// The archiver exports finished events to object storage once a day and
// purges the hot-path tables. The one-shot flags run a single operation and
// exit, for cron-style deployments and manual runs.
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

	"github.com/pitwall-live/pitwall/internal/archive"
	"github.com/pitwall-live/pitwall/internal/config"
	"github.com/pitwall-live/pitwall/internal/health"
	"github.com/pitwall-live/pitwall/internal/log"
	"github.com/pitwall-live/pitwall/internal/mail"
	"github.com/pitwall-live/pitwall/internal/objstore"
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
	runArchive := flag.Bool("run-archive", false, "archive eligible events once and exit")
	runPurge := flag.Bool("run-simulated-event-purge", false, "purge stale simulated events once and exit")
	flag.Parse()
	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	log.Configure(log.Config{
		Level:   config.ParseString("PITWALL_LOG_LEVEL", "info"),
		Service: "pitwall-archiver",
	})
	logger := log.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadArchiver()
	if err != nil {
		logger.Error().Err(err).Str("event", "config.load_failed").Msg("invalid configuration")
		os.Exit(1)
	}

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Infra.Telemetry.Enabled,
		ServiceName:    "pitwall-archiver",
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

	st, err := store.New(ctx, cfg.Infra.Postgres)
	if err != nil {
		logger.Error().Err(err).Str("event", "store.connect_failed").Msg("postgres connection failed")
		os.Exit(1)
	}
	defer st.Close()

	uploader, err := objstore.New(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Str("event", "objstore.init_failed").Msg("object storage init failed")
		os.Exit(1)
	}

	svc, err := archive.New(cfg, st, uploader, mail.New(cfg.Mail), clockwork.NewRealClock())
	if err != nil {
		logger.Error().Err(err).Str("event", "archive.init_failed").Msg("archiver init failed")
		os.Exit(1)
	}

	// One-shot modes bypass the scheduler and the health server.
	switch {
	case *runArchive:
		if err := svc.ArchiveEligible(ctx); err != nil {
			logger.Error().Err(err).Str("event", "archive.oneshot_failed").Msg("archive run failed")
			os.Exit(1)
		}
		os.Exit(0)
	case *runPurge:
		if err := svc.PurgeSimulated(ctx); err != nil {
			logger.Error().Err(err).Str("event", "archive.oneshot_failed").Msg("purge run failed")
			os.Exit(1)
		}
		os.Exit(0)
	}

	hm := health.NewManager(version)
	hm.RegisterChecker(health.NewPingChecker("postgres", st.Ping))

	mux := http.NewServeMux()
	mux.Handle("/healthz/", hm.Handler())
	mux.Handle("/metrics", promhttp.Handler())
	healthSrv := &http.Server{
		Addr:              cfg.HealthAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info().Str("version", version).Str("timezone", cfg.Timezone).
		Str("event", "archive.starting").Msg("archiver starting")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(ctx) })
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
		logger.Error().Err(err).Str("event", "archive.exit").Msg("archiver exited with error")
		os.Exit(1)
	}
	logger.Info().Str("event", "archive.stopped").Msg("archiver stopped")
}
