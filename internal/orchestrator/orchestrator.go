// SPDX-License-Identifier: MIT

// Package orchestrator is the singleton control plane: it watches relay
// heartbeats, keeps the events table's live flags in sync, tears down
// workers of events whose relays went silent and makes sure every live
// event has its worker triplet running.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/pitwall-live/pitwall/internal/bus"
	"github.com/pitwall-live/pitwall/internal/config"
	"github.com/pitwall-live/pitwall/internal/kube"
	"github.com/pitwall-live/pitwall/internal/log"
	"github.com/pitwall-live/pitwall/internal/metrics"
	"github.com/pitwall-live/pitwall/internal/store"
)

// Worker kinds of the per-event triplet.
const (
	KindProcessor  = "event-processor"
	KindLogger     = "logger"
	KindControlLog = "control-log"
)

// processorPort is the ClusterIP port of the processor's health/debug
// surface.
const processorPort = 8080

// JobRunner is the worker lifecycle surface the orchestrator drives.
// Production wiring uses internal/kube; tests use a fake.
type JobRunner interface {
	ListJobs(ctx context.Context) ([]kube.Job, error)
	EnsureJob(ctx context.Context, w kube.Worker) (bool, error)
	DeleteEventWorkers(ctx context.Context, eventID string) error
	DeleteJob(ctx context.Context, name string) error
}

// Store is the slice of the persistence layer the orchestrator touches.
type Store interface {
	Organization(ctx context.Context, orgID string) (store.Organization, error)
	UpdateLiveEvents(ctx context.Context, liveEventIDs []string) error
}

// Orchestrator reconciles workers against relay heartbeats.
type Orchestrator struct {
	cfg    config.Orchestrator
	bus    *bus.Bus
	store  Store
	runner JobRunner
	logger zerolog.Logger
	clock  clockwork.Clock
}

// New builds the orchestrator.
func New(cfg config.Orchestrator, b *bus.Bus, st Store, runner JobRunner, clock clockwork.Clock) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		bus:    b,
		store:  st,
		runner: runner,
		logger: log.WithComponent("orchestrator"),
		clock:  clock,
	}
}

// Run reconciles on the configured cadence until ctx is cancelled. One pass
// at a time; a pass that overruns the interval simply delays the next one.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := o.clock.NewTicker(o.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			if err := o.Pass(ctx); err != nil {
				metrics.OrchestratorPassesTotal.WithLabelValues("failure").Inc()
				o.logger.Error().Err(err).Str("event", "orchestrator.pass_failed").
					Msg("reconciliation pass failed")
				continue
			}
			metrics.OrchestratorPassesTotal.WithLabelValues("success").Inc()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pass runs one full reconciliation: live flags, expiry, GC, then ensure.
// Expiry runs before ensure so a freshly expired event is not immediately
// recreated from its stale heartbeat.
func (o *Orchestrator) Pass(ctx context.Context) error {
	heartbeats, err := o.bus.RelayHeartbeats(ctx)
	if err != nil {
		return fmt.Errorf("read heartbeats: %w", err)
	}

	cutoff := o.clock.Now().Add(-o.cfg.HeartbeatTimeout)
	var live []bus.RelayConnectionEventEntry
	var expired []bus.RelayConnectionEventEntry
	for _, hb := range heartbeats {
		if hb.Timestamp.Before(cutoff) {
			expired = append(expired, hb)
		} else {
			live = append(live, hb)
		}
	}

	liveIDs := make([]string, 0, len(live))
	liveSet := make(map[string]bool, len(live))
	for _, hb := range live {
		liveIDs = append(liveIDs, hb.EventID)
		liveSet[hb.EventID] = true
	}
	sort.Strings(liveIDs)
	if err := o.store.UpdateLiveEvents(ctx, liveIDs); err != nil {
		return fmt.Errorf("update live events: %w", err)
	}
	metrics.LiveEventsGauge.Set(float64(len(liveIDs)))

	if len(expired) > 0 {
		if err := o.shutDown(ctx, expired); err != nil {
			return err
		}
	}

	if err := o.collectGarbage(ctx, liveSet); err != nil {
		return err
	}

	return o.ensureWorkers(ctx, live)
}

// shutDown warns the workers of expired events, gives them the grace window
// to drain, then removes their heartbeats and resources.
func (o *Orchestrator) shutDown(ctx context.Context, expired []bus.RelayConnectionEventEntry) error {
	ids := make([]string, 0, len(expired))
	for _, hb := range expired {
		ids = append(ids, hb.EventID)
	}
	sort.Strings(ids)

	if err := o.bus.Publish(ctx, bus.ChannelShutdownSignal, ids); err != nil {
		return fmt.Errorf("publish shutdown signal: %w", err)
	}
	o.logger.Info().Strs("event_ids", ids).Str("event", "orchestrator.shutdown_signalled").
		Msg("draining workers of expired events")

	select {
	case <-o.clock.After(o.cfg.ShutdownGrace):
	case <-ctx.Done():
		return ctx.Err()
	}

	for _, id := range ids {
		if err := o.bus.DeleteRelayHeartbeat(ctx, id); err != nil {
			return fmt.Errorf("delete heartbeat of %s: %w", id, err)
		}
		if err := o.runner.DeleteEventWorkers(ctx, id); err != nil {
			return err
		}
		metrics.HeartbeatsExpiredTotal.Inc()
		metrics.IncWorkerJob("all", "delete")
		o.logger.Info().Str(log.FieldEventID, id).Str("event", "orchestrator.event_expired").
			Msg("workers torn down after heartbeat expiry")
	}
	return nil
}

// collectGarbage deletes worker jobs of events no current heartbeat claims,
// left over from crashes or manual intervention.
func (o *Orchestrator) collectGarbage(ctx context.Context, liveSet map[string]bool) error {
	jobs, err := o.runner.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("list worker jobs: %w", err)
	}
	for _, job := range jobs {
		if liveSet[job.EventID] {
			continue
		}
		if err := o.runner.DeleteJob(ctx, job.Name); err != nil {
			return err
		}
		metrics.IncWorkerJob(job.Kind, "delete")
		o.logger.Warn().Str(log.FieldJobName, job.Name).Str(log.FieldEventID, job.EventID).
			Str("event", "orchestrator.job_gc").Msg("removed orphaned worker job")
	}
	return nil
}

// ensureWorkers creates missing worker jobs for every live event. Creation
// checks for existence first, so repeated passes are no-ops.
func (o *Orchestrator) ensureWorkers(ctx context.Context, live []bus.RelayConnectionEventEntry) error {
	for _, hb := range live {
		org, err := o.store.Organization(ctx, hb.OrgID)
		if err != nil {
			o.logger.Warn().Err(err).Str(log.FieldOrgID, hb.OrgID).Str(log.FieldEventID, hb.EventID).
				Str("event", "orchestrator.org_lookup_failed").Msg("skipping event this pass")
			continue
		}

		workers := []kube.Worker{
			o.workerSpec(org, hb.EventID, KindProcessor),
			o.workerSpec(org, hb.EventID, KindLogger),
		}
		if org.ControlLogType != "" {
			workers = append(workers, o.workerSpec(org, hb.EventID, KindControlLog))
		}

		for _, w := range workers {
			created, err := o.runner.EnsureJob(ctx, w)
			if err != nil {
				return err
			}
			if created {
				metrics.IncWorkerJob(w.Kind, "create")
			} else {
				metrics.IncWorkerJob(w.Kind, "skip")
			}
		}
	}
	return nil
}

// workerSpec builds one worker job description for an event.
func (o *Orchestrator) workerSpec(org store.Organization, eventID, kind string) kube.Worker {
	env := map[string]string{
		"PITWALL_EVENT_ID":       eventID,
		"PITWALL_ORG_ID":         org.ID,
		"PITWALL_REDIS_ADDR":     o.cfg.Infra.Redis.Addr,
		"PITWALL_REDIS_PASSWORD": o.cfg.Infra.Redis.Password,
		"PITWALL_POSTGRES_DSN":   o.cfg.Infra.Postgres.DSN,
	}

	w := kube.Worker{
		Name:    JobName(org.ShortName, eventID, kind),
		Kind:    kind,
		EventID: eventID,
		Image:   o.cfg.WorkerImage,
		Env:     env,
	}
	switch kind {
	case KindProcessor:
		w.Command = []string{"/processor"}
		w.ServicePort = processorPort
	case KindLogger:
		w.Command = []string{"/relaylogger"}
	case KindControlLog:
		w.Command = []string{"/controllog"}
		env["PITWALL_CONTROL_LOG_TYPE"] = org.ControlLogType
	}
	return w
}

// JobName builds the worker job name: "{org-short}-evt-{id}-{kind}". The org
// short name is slugged down to a DNS-1123 label fragment.
func JobName(orgShortName, eventID, kind string) string {
	return fmt.Sprintf("%s-evt-%s-%s", slugify(orgShortName), eventID, kind)
}

// slugify lowercases and strips everything a resource name cannot carry.
func slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
