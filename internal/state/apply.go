// SPDX-License-Identifier: MIT

package state

// assign copies a present patch field into the entity field.
func assign[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// ApplyPatch applies every present field; absent fields keep their value.
// Lists in patches replace wholesale.
func (s *SessionState) ApplyPatch(p *SessionStatePatch) {
	if p == nil {
		return
	}
	s.SessionID = p.SessionID

	assign(&s.EventID, p.EventID)
	assign(&s.SessionName, p.SessionName)
	assign(&s.IsLive, p.IsLive)
	assign(&s.IsPracticeQualifying, p.IsPracticeQualifying)

	assign(&s.CurrentFlag, p.CurrentFlag)
	if p.FlagDurations != nil {
		s.FlagDurations = p.FlagDurations
	}

	assign(&s.LapsToGo, p.LapsToGo)
	assign(&s.TimeToGo, p.TimeToGo)
	assign(&s.RunningRaceTime, p.RunningRaceTime)
	assign(&s.LocalTimeOfDay, p.LocalTimeOfDay)

	assign(&s.GreenTimeMs, p.GreenTimeMs)
	assign(&s.GreenLaps, p.GreenLaps)
	assign(&s.YellowTimeMs, p.YellowTimeMs)
	assign(&s.YellowLaps, p.YellowLaps)
	assign(&s.NumberOfYellows, p.NumberOfYellows)
	assign(&s.RedTimeMs, p.RedTimeMs)
	assign(&s.AverageRaceSpeed, p.AverageRaceSpeed)
	assign(&s.LeadChanges, p.LeadChanges)

	if p.EventEntries != nil {
		s.EventEntries = p.EventEntries
	}
	if p.Announcements != nil {
		s.Announcements = p.Announcements
	}
}

// ApplyPatch applies every present field to the car.
func (c *CarPosition) ApplyPatch(p *CarPositionPatch) {
	if p == nil {
		return
	}

	assign(&c.TransponderID, p.TransponderID)
	assign(&c.Class, p.Class)

	assign(&c.BestLap, p.BestLap)
	assign(&c.BestLapTime, p.BestLapTime)

	assign(&c.InClassGap, p.InClassGap)
	assign(&c.InClassDifference, p.InClassDifference)
	assign(&c.OverallGap, p.OverallGap)
	assign(&c.OverallDifference, p.OverallDifference)

	assign(&c.TotalTime, p.TotalTime)
	assign(&c.LastLapTime, p.LastLapTime)
	assign(&c.LastLapCompleted, p.LastLapCompleted)

	assign(&c.OverallPosition, p.OverallPosition)
	assign(&c.InClassPosition, p.InClassPosition)
	assign(&c.OverallStartingPosition, p.OverallStartingPosition)
	assign(&c.InClassStartingPosition, p.InClassStartingPosition)
	assign(&c.OverallPositionsGained, p.OverallPositionsGained)
	assign(&c.InClassPositionsGained, p.InClassPositionsGained)
	assign(&c.IsOverallMostGained, p.IsOverallMostGained)
	assign(&c.IsClassMostGained, p.IsClassMostGained)

	assign(&c.PenaltyWarnings, p.PenaltyWarnings)
	assign(&c.PenaltyLaps, p.PenaltyLaps)

	assign(&c.IsEnteredPit, p.IsEnteredPit)
	assign(&c.IsPitStartFinish, p.IsPitStartFinish)
	assign(&c.IsExitedPit, p.IsExitedPit)
	assign(&c.IsInPit, p.IsInPit)
	assign(&c.LapIncludedPit, p.LapIncludedPit)
	assign(&c.LastLoopName, p.LastLoopName)

	assign(&c.IsStale, p.IsStale)
	assign(&c.Flag, p.Flag)

	assign(&c.DriverID, p.DriverID)
	assign(&c.DriverName, p.DriverName)

	assign(&c.LastLapPitted, p.LastLapPitted)
	assign(&c.PitStopCount, p.PitStopCount)
	assign(&c.LapsLedOverall, p.LapsLedOverall)
	assign(&c.CurrentStatus, p.CurrentStatus)

	if p.CompletedSections != nil {
		c.CompletedSections = p.CompletedSections
	}
}
