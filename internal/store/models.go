// SPDX-License-Identifier: MIT

package store

import "time"

// Organization is a sanctioning body owning events.
type Organization struct {
	ID             string
	ShortName      string
	ControlLogType string
}

// Event is a race weekend scoped to an organization.
type Event struct {
	ID           string
	OrgID        string
	Name         string
	StartDate    *time.Time
	EndDate      *time.Time
	IsLive       bool
	IsArchived   bool
	IsSimulation bool
}

// Session is one timing run under an event.
type Session struct {
	ID            int
	EventID       string
	Name          string
	IsLive        bool
	StartTime     *time.Time
	EndTime       *time.Time
	LastUpdated   time.Time
	LocalTZOffset int
}

// CarLapLog is one completed-lap row streamed out of the processor.
type CarLapLog struct {
	EventID    string
	SessionID  int
	CarNumber  string
	LapNumber  int
	LapTime    string
	TotalTime  string
	RecordedAt time.Time
}

// FlagLogRow is one flag interval of a session.
type FlagLogRow struct {
	EventID   string
	SessionID int
	Flag      string
	StartTime time.Time
	EndTime   *time.Time
}

// RelayLog is one raw timing payload as received from a relay.
type RelayLog struct {
	EventID    string
	SessionID  int
	Payload    string
	ReceivedAt time.Time
}

// X2Passing is one loop crossing recorded by the external X2 ingest.
// Archived and purged here, never written.
type X2Passing struct {
	EventID     string
	Transponder int64
	LoopName    string
	PassingTime time.Time
	Raw         []byte
}

// SessionResult is the persisted terminal state of a finalized session.
type SessionResult struct {
	EventID     string
	SessionID   int
	StartTime   *time.Time
	State       []byte
	ControlLogs []byte
}
