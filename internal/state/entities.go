// SPDX-License-Identifier: MIT

// Package state holds the authoritative in-memory model of a live timing
// session and the patch algebra used to fan out deltas: a patch mirrors its
// entity with every field optional, absence meaning "no change".
package state

import "time"

// ReservedSessionID is the timing system's "no session" sentinel. It is
// never persisted and never adopted by the lifecycle monitor.
const ReservedSessionID = 999999

// StatusMaxLen bounds CarPosition.CurrentStatus on the wire.
const StatusMaxLen = 12

// SessionState is the authoritative snapshot of one live session. Owned
// exclusively by the event's processor worker; guarded there by a
// read/write lock because the snapshot serializer runs on its own timer.
type SessionState struct {
	EventID              string `json:"eventId"`
	SessionID            int    `json:"sessionId"`
	SessionName          string `json:"sessionName"`
	IsLive               bool   `json:"isLive"`
	IsPracticeQualifying bool   `json:"isPracticeQualifying"`

	CurrentFlag   Flag           `json:"currentFlag"`
	FlagDurations []FlagDuration `json:"flagDurations,omitempty"`

	LapsToGo        int    `json:"lapsToGo"`
	TimeToGo        string `json:"timeToGo"`
	RunningRaceTime string `json:"runningRaceTime"`
	LocalTimeOfDay  string `json:"localTimeOfDay"`

	GreenTimeMs      int64   `json:"greenTimeMs"`
	GreenLaps        int     `json:"greenLaps"`
	YellowTimeMs     int64   `json:"yellowTimeMs"`
	YellowLaps       int     `json:"yellowLaps"`
	NumberOfYellows  int     `json:"numberOfYellows"`
	RedTimeMs        int64   `json:"redTimeMs"`
	AverageRaceSpeed float64 `json:"averageRaceSpeed"`
	LeadChanges      int     `json:"leadChanges"`

	EventEntries  []EventEntry   `json:"eventEntries,omitempty"`
	CarPositions  []CarPosition  `json:"carPositions,omitempty"`
	Announcements []Announcement `json:"announcements,omitempty"`
}

// EventEntry is one competitor on the entry list.
type EventEntry struct {
	Number     string `json:"number"`
	DriverName string `json:"driverName"`
	Team       string `json:"team"`
	Class      string `json:"class"`
}

// CarPosition is one car's live state, keyed uniquely by Number within a
// session.
type CarPosition struct {
	Number        string `json:"number"`
	TransponderID uint32 `json:"transponderId"`
	Class         string `json:"class"`

	BestLap     int    `json:"bestLap"`
	BestLapTime string `json:"bestLapTime"`

	InClassGap        string `json:"inClassGap"`
	InClassDifference string `json:"inClassDifference"`
	OverallGap        string `json:"overallGap"`
	OverallDifference string `json:"overallDifference"`

	TotalTime        string `json:"totalTime"`
	LastLapTime      string `json:"lastLapTime"`
	LastLapCompleted int    `json:"lastLapCompleted"`

	OverallPosition         int  `json:"overallPosition"`
	InClassPosition         int  `json:"inClassPosition"`
	OverallStartingPosition int  `json:"overallStartingPosition"`
	InClassStartingPosition int  `json:"inClassStartingPosition"`
	OverallPositionsGained  int  `json:"overallPositionsGained"`
	InClassPositionsGained  int  `json:"inClassPositionsGained"`
	IsOverallMostGained     bool `json:"isOverallMostGained"`
	IsClassMostGained       bool `json:"isClassMostGained"`

	PenaltyWarnings int `json:"penaltyWarnings"`
	PenaltyLaps     int `json:"penaltyLaps"`

	IsEnteredPit     bool   `json:"isEnteredPit"`
	IsPitStartFinish bool   `json:"isPitStartFinish"`
	IsExitedPit      bool   `json:"isExitedPit"`
	IsInPit          bool   `json:"isInPit"`
	LapIncludedPit   bool   `json:"lapIncludedPit"`
	LastLoopName     string `json:"lastLoopName"`

	IsStale bool `json:"isStale"`
	Flag    Flag `json:"flag"`

	DriverID   string `json:"driverId"`
	DriverName string `json:"driverName"`

	LastLapPitted  int    `json:"lastLapPitted"`
	PitStopCount   int    `json:"pitStopCount"`
	LapsLedOverall int    `json:"lapsLedOverall"`
	CurrentStatus  string `json:"currentStatus"`

	CompletedSections []CompletedSection `json:"completedSections,omitempty"`
}

// CompletedSection is one car's timing for one track section.
type CompletedSection struct {
	Number            string `json:"number"`
	SectionID         string `json:"sectionId"`
	ElapsedTimeMs     int64  `json:"elapsedTimeMs"`
	LastSectionTimeMs int64  `json:"lastSectionTimeMs"`
	LastLap           int    `json:"lastLap"`
}

// Announcement is a race-control message shown to subscribers.
type Announcement struct {
	Timestamp time.Time `json:"timestamp"`
	Priority  int       `json:"priority"`
	Text      string    `json:"text"`
}

// Car returns a pointer to the car with the given number, or nil.
func (s *SessionState) Car(number string) *CarPosition {
	for i := range s.CarPositions {
		if s.CarPositions[i].Number == number {
			return &s.CarPositions[i]
		}
	}
	return nil
}

// CarByTransponder resolves a car by its transponder id, or nil.
func (s *SessionState) CarByTransponder(transponderID uint32) *CarPosition {
	if transponderID == 0 {
		return nil
	}
	for i := range s.CarPositions {
		if s.CarPositions[i].TransponderID == transponderID {
			return &s.CarPositions[i]
		}
	}
	return nil
}

// EnsureCar returns the car with the given number, appending a fresh entry
// if absent. Keeps car numbers unique within the session.
func (s *SessionState) EnsureCar(number string) *CarPosition {
	if car := s.Car(number); car != nil {
		return car
	}
	s.CarPositions = append(s.CarPositions, CarPosition{Number: number, Flag: FlagUnknown})
	return &s.CarPositions[len(s.CarPositions)-1]
}

// Reset drops all car state for the session, per an RMonitor $I.
func (s *SessionState) Reset() {
	s.CarPositions = nil
}

// TruncateStatus clips a status string to the wire limit.
func TruncateStatus(status string) string {
	if len(status) > StatusMaxLen {
		return status[:StatusMaxLen]
	}
	return status
}

// Clone returns a deep copy. Used for diffing against the pre-mutation
// state and for the finalize snapshot.
func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return nil
	}
	out := *s
	out.FlagDurations = append([]FlagDuration(nil), s.FlagDurations...)
	for i := range out.FlagDurations {
		if s.FlagDurations[i].EndTime != nil {
			end := *s.FlagDurations[i].EndTime
			out.FlagDurations[i].EndTime = &end
		}
	}
	out.EventEntries = append([]EventEntry(nil), s.EventEntries...)
	out.CarPositions = append([]CarPosition(nil), s.CarPositions...)
	for i := range out.CarPositions {
		out.CarPositions[i].CompletedSections = append([]CompletedSection(nil), s.CarPositions[i].CompletedSections...)
	}
	out.Announcements = append([]Announcement(nil), s.Announcements...)
	return &out
}
