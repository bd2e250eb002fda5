// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Organization loads one organization row.
func (s *Store) Organization(ctx context.Context, orgID string) (Organization, error) {
	var org Organization
	err := s.pool.QueryRow(ctx,
		`SELECT id, short_name, control_log_type FROM organizations WHERE id = $1`,
		orgID,
	).Scan(&org.ID, &org.ShortName, &org.ControlLogType)
	if errors.Is(err, pgx.ErrNoRows) {
		return Organization{}, fmt.Errorf("organization %s not found", orgID)
	}
	if err != nil {
		return Organization{}, fmt.Errorf("load organization: %w", err)
	}
	return org, nil
}

// OrgOwnsEvent reports whether the event belongs to the organization. The
// hub checks this before committing a session for a relay.
func (s *Store) OrgOwnsEvent(ctx context.Context, orgID, eventID string) (bool, error) {
	var owns bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM events WHERE id = $1 AND org_id = $2)`,
		eventID, orgID,
	).Scan(&owns)
	if err != nil {
		return false, fmt.Errorf("check event ownership: %w", err)
	}
	return owns, nil
}

// EventByID loads one event row.
func (s *Store) EventByID(ctx context.Context, eventID string) (Event, error) {
	var e Event
	err := s.pool.QueryRow(ctx,
		`SELECT id, org_id, name, start_date, end_date, is_live, is_archived, is_simulation
		 FROM events WHERE id = $1`,
		eventID,
	).Scan(&e.ID, &e.OrgID, &e.Name, &e.StartDate, &e.EndDate, &e.IsLive, &e.IsArchived, &e.IsSimulation)
	if errors.Is(err, pgx.ErrNoRows) {
		return Event{}, fmt.Errorf("event %s not found", eventID)
	}
	if err != nil {
		return Event{}, fmt.Errorf("load event: %w", err)
	}
	return e, nil
}

// UpdateLiveEvents flips is_live to match the heartbeated set: named events
// become live, everything else not. Boolean form on both paths.
func (s *Store) UpdateLiveEvents(ctx context.Context, liveEventIDs []string) error {
	if liveEventIDs == nil {
		liveEventIDs = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE events SET is_live = (id = ANY($1)) WHERE is_live <> (id = ANY($1))`,
		liveEventIDs,
	)
	if err != nil {
		return fmt.Errorf("update live events: %w", err)
	}
	return nil
}

// EventsEligibleForArchive lists events whose end date passed the cutoff and
// that are neither live, archived, nor simulated.
func (s *Store) EventsEligibleForArchive(ctx context.Context, cutoff time.Time) ([]Event, error) {
	return s.queryEvents(ctx,
		`SELECT id, org_id, name, start_date, end_date, is_live, is_archived, is_simulation
		 FROM events
		 WHERE NOT is_archived AND NOT is_live AND NOT is_simulation
		   AND end_date IS NOT NULL AND end_date < $1
		 ORDER BY end_date`,
		cutoff,
	)
}

// SimulatedEventsBefore lists simulated events older than the cutoff; these
// are purged without archive.
func (s *Store) SimulatedEventsBefore(ctx context.Context, cutoff time.Time) ([]Event, error) {
	return s.queryEvents(ctx,
		`SELECT id, org_id, name, start_date, end_date, is_live, is_archived, is_simulation
		 FROM events
		 WHERE is_simulation AND end_date IS NOT NULL AND end_date < $1
		 ORDER BY end_date`,
		cutoff,
	)
}

func (s *Store) queryEvents(ctx context.Context, sql string, args ...any) ([]Event, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.OrgID, &e.Name, &e.StartDate, &e.EndDate,
			&e.IsLive, &e.IsArchived, &e.IsSimulation); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// MarkEventArchived flips is_archived after a fully successful archive run.
func (s *Store) MarkEventArchived(ctx context.Context, eventID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE events SET is_archived = TRUE WHERE id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("mark event archived: %w", err)
	}
	return nil
}

// PurgeCarLastLaps removes an event's car_last_laps rows. Ordered after the
// archive flag flip: purge only once the archive is known good.
func (s *Store) PurgeCarLastLaps(ctx context.Context, eventID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM car_last_laps WHERE event_id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("purge car last laps: %w", err)
	}
	return nil
}

// PurgeEventData deletes every data row of a simulated event, then the
// sessions and the event itself.
func (s *Store) PurgeEventData(ctx context.Context, eventID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin purge: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range []string{
		`DELETE FROM car_lap_logs WHERE event_id = $1`,
		`DELETE FROM car_last_laps WHERE event_id = $1`,
		`DELETE FROM flag_log WHERE event_id = $1`,
		`DELETE FROM relay_logs WHERE event_id = $1`,
		`DELETE FROM x2_passings WHERE event_id = $1`,
		`DELETE FROM session_results WHERE event_id = $1`,
		`DELETE FROM sessions WHERE event_id = $1`,
		`DELETE FROM events WHERE id = $1`,
	} {
		if _, err := tx.Exec(ctx, stmt, eventID); err != nil {
			return fmt.Errorf("purge event data: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit purge: %w", err)
	}
	return nil
}
