// SPDX-License-Identifier: MIT

// Package rmonitor parses the RMonitor ASCII timing protocol: CRLF-delimited,
// comma-separated records, each starting with a type token ($A..$J).
package rmonitor

// Type is the leading token of a record.
type Type string

const (
	TypeCompetitor   Type = "$A"
	TypeRaceInfo     Type = "$B"
	TypeClassInfo    Type = "$C"
	TypeSetting      Type = "$E"
	TypeHeartbeat    Type = "$F"
	TypeRacePosition Type = "$G"
	TypeBestLap      Type = "$H"
	TypeReset        Type = "$I"
	TypeLapComplete  Type = "$J"
)

// Record is one parsed RMonitor record. Implementations are the typed
// record structs below; dispatch is a type switch, no reflection.
type Record interface {
	RecordType() Type
}

// Competitor is a $A record: one entry-list competitor.
type Competitor struct {
	RegNumber     string
	Number        string
	TransponderID uint32
	FirstName     string
	LastName      string
	Nationality   string
	ClassID       int
}

func (Competitor) RecordType() Type { return TypeCompetitor }

// RaceInfo is a $B record: run number and name.
type RaceInfo struct {
	RunID   int
	RunName string
}

func (RaceInfo) RecordType() Type { return TypeRaceInfo }

// ClassInfo is a $C record: class id and description.
type ClassInfo struct {
	ClassID     int
	Description string
}

func (ClassInfo) RecordType() Type { return TypeClassInfo }

// Setting is a $E record: a named track setting.
type Setting struct {
	Name  string
	Value string
}

func (Setting) RecordType() Type { return TypeSetting }

// Heartbeat is a $F record, emitted about once per second.
type Heartbeat struct {
	LapsToGo  int
	TimeToGo  string
	TimeOfDay string
	RaceTime  string
	Flag      string
}

func (Heartbeat) RecordType() Type { return TypeHeartbeat }

// RacePosition is a $G record: one car's running position.
type RacePosition struct {
	Position  int
	RegNumber string
	Laps      int
	TotalTime string
}

func (RacePosition) RecordType() Type { return TypeRacePosition }

// BestLap is a $H record: one car's best lap so far.
type BestLap struct {
	Position    int
	RegNumber   string
	BestLap     int
	BestLapTime string
}

func (BestLap) RecordType() Type { return TypeBestLap }

// Reset is a $I record: an authoritative order to drop all car state for
// the session.
type Reset struct {
	TimeOfDay string
	Date      string
}

func (Reset) RecordType() Type { return TypeReset }

// LapComplete is a $J record: a car finished a lap.
type LapComplete struct {
	RegNumber string
	LapTime   string
	TotalTime string
}

func (LapComplete) RecordType() Type { return TypeLapComplete }
