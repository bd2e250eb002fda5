// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// InsertCarLap appends one completed-lap row.
func (s *Store) InsertCarLap(ctx context.Context, lap CarLapLog) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO car_lap_logs (event_id, session_id, car_number, lap_number, lap_time, total_time, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		lap.EventID, lap.SessionID, lap.CarNumber, lap.LapNumber, lap.LapTime, lap.TotalTime, lap.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert car lap: %w", err)
	}
	return nil
}

// UpsertCarLastLap keeps the latest lap per (event, session, car).
func (s *Store) UpsertCarLastLap(ctx context.Context, lap CarLapLog) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO car_last_laps (event_id, session_id, car_number, lap_number, lap_time, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (event_id, session_id, car_number)
		 DO UPDATE SET lap_number = EXCLUDED.lap_number,
		               lap_time = EXCLUDED.lap_time,
		               updated_at = now()`,
		lap.EventID, lap.SessionID, lap.CarNumber, lap.LapNumber, lap.LapTime,
	)
	if err != nil {
		return fmt.Errorf("upsert car last lap: %w", err)
	}
	return nil
}

// InsertFlag appends one flag interval row.
func (s *Store) InsertFlag(ctx context.Context, row FlagLogRow) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO flag_log (event_id, session_id, flag, start_time, end_time)
		 VALUES ($1, $2, $3, $4, $5)`,
		row.EventID, row.SessionID, row.Flag, row.StartTime, row.EndTime,
	)
	if err != nil {
		return fmt.Errorf("insert flag: %w", err)
	}
	return nil
}

// InsertRelayLogs appends a batch of raw frame rows in one round trip.
func (s *Store) InsertRelayLogs(ctx context.Context, logs []RelayLog) error {
	if len(logs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, l := range logs {
		batch.Queue(
			`INSERT INTO relay_logs (event_id, session_id, payload, received_at) VALUES ($1, $2, $3, $4)`,
			l.EventID, l.SessionID, l.Payload, l.ReceivedAt,
		)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()
	for range logs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert relay logs: %w", err)
		}
	}
	return nil
}

// LapsBySession lists an event session's lap rows for archival.
func (s *Store) LapsBySession(ctx context.Context, eventID string, sessionID int) ([]CarLapLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT event_id, session_id, car_number, lap_number, lap_time, total_time, recorded_at
		 FROM car_lap_logs WHERE event_id = $1 AND session_id = $2 ORDER BY id`,
		eventID, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list laps: %w", err)
	}
	defer rows.Close()

	var laps []CarLapLog
	for rows.Next() {
		var lap CarLapLog
		if err := rows.Scan(&lap.EventID, &lap.SessionID, &lap.CarNumber,
			&lap.LapNumber, &lap.LapTime, &lap.TotalTime, &lap.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan lap: %w", err)
		}
		laps = append(laps, lap)
	}
	return laps, rows.Err()
}

// FlagsBySession lists an event session's flag intervals for archival.
func (s *Store) FlagsBySession(ctx context.Context, eventID string, sessionID int) ([]FlagLogRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT event_id, session_id, flag, start_time, end_time
		 FROM flag_log WHERE event_id = $1 AND session_id = $2 ORDER BY id`,
		eventID, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}
	defer rows.Close()

	var flags []FlagLogRow
	for rows.Next() {
		var row FlagLogRow
		if err := rows.Scan(&row.EventID, &row.SessionID, &row.Flag, &row.StartTime, &row.EndTime); err != nil {
			return nil, fmt.Errorf("scan flag: %w", err)
		}
		flags = append(flags, row)
	}
	return flags, rows.Err()
}

// RelayLogsOfEvent lists an event's raw frame rows for archival.
func (s *Store) RelayLogsOfEvent(ctx context.Context, eventID string) ([]RelayLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT event_id, session_id, payload, received_at
		 FROM relay_logs WHERE event_id = $1 ORDER BY id`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list relay logs: %w", err)
	}
	defer rows.Close()

	var logs []RelayLog
	for rows.Next() {
		var l RelayLog
		if err := rows.Scan(&l.EventID, &l.SessionID, &l.Payload, &l.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan relay log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// X2PassingsOfEvent lists an event's loop crossings for archival.
func (s *Store) X2PassingsOfEvent(ctx context.Context, eventID string) ([]X2Passing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT event_id, transponder, loop_name, passing_time, raw
		 FROM x2_passings WHERE event_id = $1 ORDER BY id`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list x2 passings: %w", err)
	}
	defer rows.Close()

	var passings []X2Passing
	for rows.Next() {
		var p X2Passing
		if err := rows.Scan(&p.EventID, &p.Transponder, &p.LoopName, &p.PassingTime, &p.Raw); err != nil {
			return nil, fmt.Errorf("scan x2 passing: %w", err)
		}
		passings = append(passings, p)
	}
	return passings, rows.Err()
}
