// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pitwall-live/pitwall/internal/state"
)

// ErrReservedSessionID rejects the timing system's "no session" sentinel at
// every persistence path.
var ErrReservedSessionID = errors.New("session id 999999 is reserved and never persisted")

// CreateSessionIfAbsent inserts a session row unless one already exists for
// (event, id). Read-before-insert per the shared-writer rule: the hub
// creates rows, the monitor finalizes them. Marks every other session of
// the event not live. Returns whether a row was created.
func (s *Store) CreateSessionIfAbsent(ctx context.Context, sess Session) (bool, error) {
	if sess.ID == state.ReservedSessionID {
		return false, ErrReservedSessionID
	}

	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sessions WHERE event_id = $1 AND id = $2)`,
		sess.EventID, sess.ID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check session existence: %w", err)
	}
	if exists {
		return false, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin session insert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`UPDATE sessions SET is_live = FALSE WHERE event_id = $1 AND id <> $2 AND is_live`,
		sess.EventID, sess.ID,
	)
	if err != nil {
		return false, fmt.Errorf("deactivate other sessions: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO sessions (id, event_id, name, is_live, start_time, last_updated, local_tz_offset)
		 VALUES ($1, $2, $3, TRUE, $4, now(), $5)
		 ON CONFLICT (event_id, id) DO NOTHING`,
		sess.ID, sess.EventID, sess.Name, sess.StartTime, sess.LocalTZOffset,
	)
	if err != nil {
		return false, fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit session insert: %w", err)
	}
	return true, nil
}

// SessionByID loads one session row.
func (s *Store) SessionByID(ctx context.Context, eventID string, sessionID int) (Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, event_id, name, is_live, start_time, end_time, last_updated, local_tz_offset
		 FROM sessions WHERE event_id = $1 AND id = $2`,
		eventID, sessionID,
	).Scan(&sess.ID, &sess.EventID, &sess.Name, &sess.IsLive,
		&sess.StartTime, &sess.EndTime, &sess.LastUpdated, &sess.LocalTZOffset)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, fmt.Errorf("session %d of event %s not found", sessionID, eventID)
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

// SessionsOfEvent lists every session of an event, oldest first.
func (s *Store) SessionsOfEvent(ctx context.Context, eventID string) ([]Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, event_id, name, is_live, start_time, end_time, last_updated, local_tz_offset
		 FROM sessions WHERE event_id = $1 ORDER BY id`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.EventID, &sess.Name, &sess.IsLive,
			&sess.StartTime, &sess.EndTime, &sess.LastUpdated, &sess.LocalTZOffset); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// TouchSessionLastUpdated bumps last_updated. Callers debounce this.
func (s *Store) TouchSessionLastUpdated(ctx context.Context, eventID string, sessionID int, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE sessions SET last_updated = $3 WHERE event_id = $1 AND id = $2`,
		eventID, sessionID, at,
	)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// FinalizeSession terminates a session in one transaction: the row flips to
// not-live with end_time set, and the terminal state is upserted into
// session_results.
func (s *Store) FinalizeSession(ctx context.Context, result SessionResult, endTime time.Time) error {
	if result.SessionID == state.ReservedSessionID {
		return ErrReservedSessionID
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin finalize: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`UPDATE sessions SET is_live = FALSE, end_time = $3, last_updated = now()
		 WHERE event_id = $1 AND id = $2`,
		result.EventID, result.SessionID, endTime,
	)
	if err != nil {
		return fmt.Errorf("finalize session row: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO session_results (event_id, session_id, start_time, state, control_logs)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (event_id, session_id)
		 DO UPDATE SET start_time = EXCLUDED.start_time,
		               state = EXCLUDED.state,
		               control_logs = EXCLUDED.control_logs`,
		result.EventID, result.SessionID, result.StartTime, result.State, result.ControlLogs,
	)
	if err != nil {
		return fmt.Errorf("upsert session result: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit finalize: %w", err)
	}
	return nil
}

// SessionResultsOfEvent loads every persisted result of an event.
func (s *Store) SessionResultsOfEvent(ctx context.Context, eventID string) ([]SessionResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT event_id, session_id, start_time, state, control_logs
		 FROM session_results WHERE event_id = $1 ORDER BY session_id`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list session results: %w", err)
	}
	defer rows.Close()

	var results []SessionResult
	for rows.Next() {
		var r SessionResult
		if err := rows.Scan(&r.EventID, &r.SessionID, &r.StartTime, &r.State, &r.ControlLogs); err != nil {
			return nil, fmt.Errorf("scan session result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
