// SPDX-License-Identifier: MIT

// Package archive exports finished events to object storage and purges the
// hot-path tables afterwards. It runs once a day at midnight in a fixed
// zone, so archives land on predictable calendar boundaries regardless of
// where an event ran.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/pitwall-live/pitwall/internal/config"
	"github.com/pitwall-live/pitwall/internal/log"
	"github.com/pitwall-live/pitwall/internal/mail"
	"github.com/pitwall-live/pitwall/internal/metrics"
	"github.com/pitwall-live/pitwall/internal/state"
	"github.com/pitwall-live/pitwall/internal/store"
)

// eligibleAge is how long past its end date an event must be before it is
// archived. One day keeps late result corrections out of the archive.
const eligibleAge = 24 * time.Hour

// Store is the slice of the persistence layer the archiver reads and purges.
type Store interface {
	EventsEligibleForArchive(ctx context.Context, cutoff time.Time) ([]store.Event, error)
	SimulatedEventsBefore(ctx context.Context, cutoff time.Time) ([]store.Event, error)
	SessionsOfEvent(ctx context.Context, eventID string) ([]store.Session, error)
	SessionResultsOfEvent(ctx context.Context, eventID string) ([]store.SessionResult, error)
	RelayLogsOfEvent(ctx context.Context, eventID string) ([]store.RelayLog, error)
	LapsBySession(ctx context.Context, eventID string, sessionID int) ([]store.CarLapLog, error)
	FlagsBySession(ctx context.Context, eventID string, sessionID int) ([]store.FlagLogRow, error)
	X2PassingsOfEvent(ctx context.Context, eventID string) ([]store.X2Passing, error)
	MarkEventArchived(ctx context.Context, eventID string) error
	PurgeCarLastLaps(ctx context.Context, eventID string) error
	PurgeEventData(ctx context.Context, eventID string) error
}

// Uploader puts one spool file into object storage.
type Uploader interface {
	UploadFile(ctx context.Context, key, path string) error
}

// Service is the daily archiver.
type Service struct {
	cfg      config.Archiver
	store    Store
	uploader Uploader
	mail     mail.Sender
	logger   zerolog.Logger
	clock    clockwork.Clock
	loc      *time.Location
}

// New builds the service. The configured timezone is validated by config
// loading; an invalid one here is a programming error.
func New(cfg config.Archiver, st Store, up Uploader, sender mail.Sender, clock clockwork.Clock) (*Service, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load archive timezone: %w", err)
	}
	return &Service{
		cfg:      cfg,
		store:    st,
		uploader: up,
		mail:     sender,
		logger:   log.WithComponent("archive"),
		clock:    clock,
		loc:      loc,
	}, nil
}

// Run sleeps until the next local midnight, runs the daily pass, repeats.
// A pass that fails outright waits the error delay and tries again instead
// of skipping the whole day.
func (s *Service) Run(ctx context.Context) error {
	for {
		wait := s.untilNextMidnight()
		s.logger.Info().Dur("sleep", wait).Str("event", "archive.scheduled").
			Msg("waiting for next archive window")
		select {
		case <-s.clock.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}

		for {
			err := s.RunOnce(ctx)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.ArchiveRunsTotal.WithLabelValues("failure").Inc()
			s.logger.Error().Err(err).Str("event", "archive.run_failed").
				Msg("archive pass failed, retrying after delay")
			select {
			case <-s.clock.After(s.cfg.ErrorDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// untilNextMidnight is the duration to the next midnight in the archive zone.
func (s *Service) untilNextMidnight() time.Duration {
	now := s.clock.Now().In(s.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc).AddDate(0, 0, 1)
	return next.Sub(now)
}

// RunOnce runs one daily pass: archive every eligible event, then purge
// stale simulated events. Per-event failures are recorded and mailed but do
// not stop the pass; the error return is for infrastructure-level failures
// only (listing the work).
func (s *Service) RunOnce(ctx context.Context) error {
	if err := s.ArchiveEligible(ctx); err != nil {
		return err
	}
	if err := s.PurgeSimulated(ctx); err != nil {
		return err
	}
	metrics.ArchiveRunsTotal.WithLabelValues("success").Inc()
	return nil
}

// ArchiveEligible archives every eligible event. Also the --run-archive
// one-shot.
func (s *Service) ArchiveEligible(ctx context.Context) error {
	cutoff := s.clock.Now().Add(-eligibleAge)
	events, err := s.store.EventsEligibleForArchive(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list eligible events: %w", err)
	}
	for _, e := range events {
		if err := s.archiveWithRetries(ctx, e); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.notifyFailure(ctx, e, err)
		}
	}
	return nil
}

// PurgeSimulated removes simulated events past the age cutoff without
// archiving them. Also the --run-simulated-event-purge one-shot.
func (s *Service) PurgeSimulated(ctx context.Context) error {
	cutoff := s.clock.Now().Add(-eligibleAge)
	simulated, err := s.store.SimulatedEventsBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list simulated events: %w", err)
	}
	for _, e := range simulated {
		if err := s.store.PurgeEventData(ctx, e.ID); err != nil {
			metrics.ArchiveStepFailuresTotal.WithLabelValues("purge_simulated").Inc()
			s.logger.Error().Err(err).Str(log.FieldEventID, e.ID).
				Str("event", "archive.purge_failed").Msg("simulated event purge failed")
			continue
		}
		metrics.SimulatedEventsPurgedTotal.Inc()
		s.logger.Info().Str(log.FieldEventID, e.ID).
			Str("event", "archive.simulated_purged").Msg("simulated event purged")
	}
	return nil
}

// archiveWithRetries archives one event, retrying within the day's budget.
func (s *Service) archiveWithRetries(ctx context.Context, e store.Event) error {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		lastErr = s.archiveEvent(ctx, e)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
		s.logger.Warn().Err(lastErr).Str(log.FieldEventID, e.ID).Int("attempt", attempt).
			Str("event", "archive.attempt_failed").Msg("archive attempt failed")
		if attempt < s.cfg.MaxAttempts {
			select {
			case <-s.clock.After(s.cfg.RetryDelay):
			case <-ctx.Done():
				return lastErr
			}
		}
	}
	return lastErr
}

// archiveEvent exports one event and flips it to archived. The export order
// mirrors restore priority: raw logs first, then derived data.
func (s *Service) archiveEvent(ctx context.Context, e store.Event) error {
	logs, err := s.store.RelayLogsOfEvent(ctx, e.ID)
	if err != nil {
		return s.stepFailed("relay_logs", err)
	}
	if err := s.export(ctx, e, "relay_logs.json", logs); err != nil {
		return s.stepFailed("relay_logs", err)
	}

	sessions, err := s.store.SessionsOfEvent(ctx, e.ID)
	if err != nil {
		return s.stepFailed("sessions", err)
	}
	if err := s.export(ctx, e, "sessions.json", sessions); err != nil {
		return s.stepFailed("sessions", err)
	}
	for _, sess := range sessions {
		laps, err := s.store.LapsBySession(ctx, e.ID, sess.ID)
		if err != nil {
			return s.stepFailed("laps", err)
		}
		name := fmt.Sprintf("sessions/%d/laps.json", sess.ID)
		if err := s.export(ctx, e, name, laps); err != nil {
			return s.stepFailed("laps", err)
		}
	}

	passings, err := s.store.X2PassingsOfEvent(ctx, e.ID)
	if err != nil {
		return s.stepFailed("x2_passings", err)
	}
	if err := s.export(ctx, e, "x2_passings.json", passings); err != nil {
		return s.stepFailed("x2_passings", err)
	}

	for _, sess := range sessions {
		flags, err := s.store.FlagsBySession(ctx, e.ID, sess.ID)
		if err != nil {
			return s.stepFailed("flags", err)
		}
		name := fmt.Sprintf("sessions/%d/flags.json", sess.ID)
		if err := s.export(ctx, e, name, flags); err != nil {
			return s.stepFailed("flags", err)
		}
	}

	competitors, err := s.competitorsOfEvent(ctx, e.ID)
	if err != nil {
		return s.stepFailed("competitors", err)
	}
	if err := s.export(ctx, e, "competitors.json", competitors); err != nil {
		return s.stepFailed("competitors", err)
	}

	if err := s.store.MarkEventArchived(ctx, e.ID); err != nil {
		return s.stepFailed("mark_archived", err)
	}
	if err := s.store.PurgeCarLastLaps(ctx, e.ID); err != nil {
		return s.stepFailed("purge_last_laps", err)
	}

	metrics.EventsArchivedTotal.Inc()
	s.logger.Info().Str(log.FieldEventID, e.ID).Str(log.FieldOrgID, e.OrgID).
		Str("event", "archive.event_archived").Msg("event archived")
	return nil
}

// competitorsOfEvent pulls the entry lists out of the persisted terminal
// session states, deduplicated by car number across sessions.
func (s *Service) competitorsOfEvent(ctx context.Context, eventID string) ([]state.EventEntry, error) {
	results, err := s.store.SessionResultsOfEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var entries []state.EventEntry
	for _, r := range results {
		if len(r.State) == 0 {
			continue
		}
		var st state.SessionState
		if err := json.Unmarshal(r.State, &st); err != nil {
			s.logger.Warn().Err(err).Str(log.FieldEventID, eventID).
				Int(log.FieldSessionID, r.SessionID).
				Str("event", "archive.bad_session_state").Msg("skipping unreadable session result")
			continue
		}
		for _, entry := range st.EventEntries {
			if seen[entry.Number] {
				continue
			}
			seen[entry.Number] = true
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// export marshals v, stages it in the spool dir via an atomic rename, and
// uploads it under the event's prefix. The spool file is removed on success
// and kept for inspection on upload failure.
func (s *Service) export(ctx context.Context, e store.Event, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	local := filepath.Join(s.cfg.SpoolDir, e.ID, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(local), 0o750); err != nil {
		return fmt.Errorf("create spool dir: %w", err)
	}
	if err := renameio.WriteFile(local, data, 0o640); err != nil {
		return fmt.Errorf("spool %s: %w", name, err)
	}

	key := fmt.Sprintf("events/%s/%s/%s", e.OrgID, e.ID, name)
	if err := s.uploader.UploadFile(ctx, key, local); err != nil {
		return err
	}
	return os.Remove(local)
}

func (s *Service) stepFailed(step string, err error) error {
	metrics.ArchiveStepFailuresTotal.WithLabelValues(step).Inc()
	return fmt.Errorf("%s: %w", step, err)
}

// notifyFailure records a permanently failed event and mails the operators.
func (s *Service) notifyFailure(ctx context.Context, e store.Event, cause error) {
	s.logger.Error().Err(cause).Str(log.FieldEventID, e.ID).
		Str("event", "archive.event_failed").Msg("event archive abandoned for today")

	subject := fmt.Sprintf("pitwall archive failed for event %s", e.ID)
	body := fmt.Sprintf("Archiving event %s (%s) failed after %d attempts:\n\n%v\n",
		e.ID, e.Name, s.cfg.MaxAttempts, cause)
	if err := s.mail.Send(ctx, subject, body); err != nil {
		s.logger.Warn().Err(err).Str("event", "archive.mail_failed").
			Msg("failure notification not delivered")
	}
}
