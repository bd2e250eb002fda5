// SPDX-License-Identifier: MIT

// Package multiloop decodes the Multiloop binary timing protocol:
// length-prefixed frames with a message-number envelope carrying richer
// per-car and per-section data than RMonitor.
package multiloop

import "time"

// MessageType identifies a sub-message inside the frame envelope.
type MessageType byte

const (
	TypeAnnouncement     MessageType = 'A'
	TypeCompletedLap     MessageType = 'C'
	TypeCompletedSection MessageType = 'S'
	TypeLineCrossing     MessageType = 'L'
	TypeFlagInformation  MessageType = 'F'
	TypeRunInformation   MessageType = 'R'
)

// CrossingStatus reports which loop a car crossed.
type CrossingStatus byte

const (
	CrossingTrack CrossingStatus = 0
	CrossingPit   CrossingStatus = 1
)

// RunType classifies a timing run.
type RunType byte

const (
	RunRace RunType = iota
	RunPractice
	RunQualifying
	RunSingleCarQualifying
)

// Message is one decoded Multiloop sub-message. Dispatch is a type switch
// on the concrete structs below.
type Message interface {
	MessageType() MessageType
	// Number is the envelope sequence number of the frame.
	MessageNumber() uint16
}

type envelope struct {
	number uint16
}

func (e envelope) MessageNumber() uint16 { return e.number }

// Announcement is a race-control text message.
type Announcement struct {
	envelope
	Timestamp time.Time
	Priority  uint8
	Text      string
}

func (Announcement) MessageType() MessageType { return TypeAnnouncement }

// CompletedLap carries a car's per-lap counters.
type CompletedLap struct {
	envelope
	Number        string
	StartPosition int
	LapsLed       int
	LastLapPitted int
	PitStopCount  int
	CurrentStatus string
}

func (CompletedLap) MessageType() MessageType { return TypeCompletedLap }

// CompletedSection carries a car's timing for one track section.
type CompletedSection struct {
	envelope
	Number            string
	SectionID         string
	ElapsedTimeMs     int64
	LastSectionTimeMs int64
	LastLap           int
}

func (CompletedSection) MessageType() MessageType { return TypeCompletedSection }

// LineCrossing reports a car crossing the pit or track loop.
type LineCrossing struct {
	envelope
	Number string
	Status CrossingStatus
}

func (LineCrossing) MessageType() MessageType { return TypeLineCrossing }

// FlagInformation carries the session-wide aggregated flag metrics.
type FlagInformation struct {
	envelope
	GreenTimeMs      int64
	GreenLaps        int
	YellowTimeMs     int64
	YellowLaps       int
	NumberOfYellows  int
	RedTimeMs        int64
	AverageRaceSpeed float64
	LeadChanges      int
}

func (FlagInformation) MessageType() MessageType { return TypeFlagInformation }

// RunInformation names and classifies the current run.
type RunInformation struct {
	envelope
	RunName string
	RunType RunType
}

func (RunInformation) MessageType() MessageType { return TypeRunInformation }
