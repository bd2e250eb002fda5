// SPDX-License-Identifier: MIT

package state

// SessionStatePatch mirrors SessionState with every field optional. A patch
// carries the session id plus only the fields whose value changed; applying
// it to an up-to-date state is a no-op. Lists replace wholesale.
type SessionStatePatch struct {
	SessionID int `json:"sessionId"`

	EventID              *string `json:"eventId,omitempty"`
	SessionName          *string `json:"sessionName,omitempty"`
	IsLive               *bool   `json:"isLive,omitempty"`
	IsPracticeQualifying *bool   `json:"isPracticeQualifying,omitempty"`

	CurrentFlag   *Flag          `json:"currentFlag,omitempty"`
	FlagDurations []FlagDuration `json:"flagDurations,omitempty"`

	LapsToGo        *int    `json:"lapsToGo,omitempty"`
	TimeToGo        *string `json:"timeToGo,omitempty"`
	RunningRaceTime *string `json:"runningRaceTime,omitempty"`
	LocalTimeOfDay  *string `json:"localTimeOfDay,omitempty"`

	GreenTimeMs      *int64   `json:"greenTimeMs,omitempty"`
	GreenLaps        *int     `json:"greenLaps,omitempty"`
	YellowTimeMs     *int64   `json:"yellowTimeMs,omitempty"`
	YellowLaps       *int     `json:"yellowLaps,omitempty"`
	NumberOfYellows  *int     `json:"numberOfYellows,omitempty"`
	RedTimeMs        *int64   `json:"redTimeMs,omitempty"`
	AverageRaceSpeed *float64 `json:"averageRaceSpeed,omitempty"`
	LeadChanges      *int     `json:"leadChanges,omitempty"`

	EventEntries  []EventEntry   `json:"eventEntries,omitempty"`
	Announcements []Announcement `json:"announcements,omitempty"`
}

// CarPositionPatch mirrors CarPosition with every field optional, keyed by
// the car number. A cleared string field is a pointer to "".
type CarPositionPatch struct {
	Number string `json:"number"`

	TransponderID *uint32 `json:"transponderId,omitempty"`
	Class         *string `json:"class,omitempty"`

	BestLap     *int    `json:"bestLap,omitempty"`
	BestLapTime *string `json:"bestLapTime,omitempty"`

	InClassGap        *string `json:"inClassGap,omitempty"`
	InClassDifference *string `json:"inClassDifference,omitempty"`
	OverallGap        *string `json:"overallGap,omitempty"`
	OverallDifference *string `json:"overallDifference,omitempty"`

	TotalTime        *string `json:"totalTime,omitempty"`
	LastLapTime      *string `json:"lastLapTime,omitempty"`
	LastLapCompleted *int    `json:"lastLapCompleted,omitempty"`

	OverallPosition         *int  `json:"overallPosition,omitempty"`
	InClassPosition         *int  `json:"inClassPosition,omitempty"`
	OverallStartingPosition *int  `json:"overallStartingPosition,omitempty"`
	InClassStartingPosition *int  `json:"inClassStartingPosition,omitempty"`
	OverallPositionsGained  *int  `json:"overallPositionsGained,omitempty"`
	InClassPositionsGained  *int  `json:"inClassPositionsGained,omitempty"`
	IsOverallMostGained     *bool `json:"isOverallMostGained,omitempty"`
	IsClassMostGained       *bool `json:"isClassMostGained,omitempty"`

	PenaltyWarnings *int `json:"penaltyWarnings,omitempty"`
	PenaltyLaps     *int `json:"penaltyLaps,omitempty"`

	IsEnteredPit     *bool   `json:"isEnteredPit,omitempty"`
	IsPitStartFinish *bool   `json:"isPitStartFinish,omitempty"`
	IsExitedPit      *bool   `json:"isExitedPit,omitempty"`
	IsInPit          *bool   `json:"isInPit,omitempty"`
	LapIncludedPit   *bool   `json:"lapIncludedPit,omitempty"`
	LastLoopName     *string `json:"lastLoopName,omitempty"`

	IsStale *bool `json:"isStale,omitempty"`
	Flag    *Flag `json:"flag,omitempty"`

	DriverID   *string `json:"driverId,omitempty"`
	DriverName *string `json:"driverName,omitempty"`

	LastLapPitted  *int    `json:"lastLapPitted,omitempty"`
	PitStopCount   *int    `json:"pitStopCount,omitempty"`
	LapsLedOverall *int    `json:"lapsLedOverall,omitempty"`
	CurrentStatus  *string `json:"currentStatus,omitempty"`

	CompletedSections []CompletedSection `json:"completedSections,omitempty"`
}
