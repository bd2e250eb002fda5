// SPDX-License-Identifier: MIT

package state

// changed returns a pointer to next when it differs from prev, else nil.
// The building block of the diff rule: field present iff value changed.
func changed[T comparable](prev, next T, dirty *bool) *T {
	if prev == next {
		return nil
	}
	*dirty = true
	return &next
}

// DiffSession computes the patch taking prev to next, comparing every field
// except the car list (cars patch individually). Returns nil when nothing
// changed.
func DiffSession(prev, next *SessionState) *SessionStatePatch {
	dirty := false
	p := &SessionStatePatch{SessionID: next.SessionID}

	p.EventID = changed(prev.EventID, next.EventID, &dirty)
	p.SessionName = changed(prev.SessionName, next.SessionName, &dirty)
	p.IsLive = changed(prev.IsLive, next.IsLive, &dirty)
	p.IsPracticeQualifying = changed(prev.IsPracticeQualifying, next.IsPracticeQualifying, &dirty)

	p.CurrentFlag = changed(prev.CurrentFlag, next.CurrentFlag, &dirty)
	if !flagDurationsEqual(prev.FlagDurations, next.FlagDurations) {
		p.FlagDurations = next.FlagDurations
		dirty = true
	}

	p.LapsToGo = changed(prev.LapsToGo, next.LapsToGo, &dirty)
	p.TimeToGo = changed(prev.TimeToGo, next.TimeToGo, &dirty)
	p.RunningRaceTime = changed(prev.RunningRaceTime, next.RunningRaceTime, &dirty)
	p.LocalTimeOfDay = changed(prev.LocalTimeOfDay, next.LocalTimeOfDay, &dirty)

	p.GreenTimeMs = changed(prev.GreenTimeMs, next.GreenTimeMs, &dirty)
	p.GreenLaps = changed(prev.GreenLaps, next.GreenLaps, &dirty)
	p.YellowTimeMs = changed(prev.YellowTimeMs, next.YellowTimeMs, &dirty)
	p.YellowLaps = changed(prev.YellowLaps, next.YellowLaps, &dirty)
	p.NumberOfYellows = changed(prev.NumberOfYellows, next.NumberOfYellows, &dirty)
	p.RedTimeMs = changed(prev.RedTimeMs, next.RedTimeMs, &dirty)
	p.AverageRaceSpeed = changed(prev.AverageRaceSpeed, next.AverageRaceSpeed, &dirty)
	p.LeadChanges = changed(prev.LeadChanges, next.LeadChanges, &dirty)

	if !sliceEqual(prev.EventEntries, next.EventEntries) {
		p.EventEntries = next.EventEntries
		dirty = true
	}
	if !sliceEqual(prev.Announcements, next.Announcements) {
		p.Announcements = next.Announcements
		dirty = true
	}

	if !dirty {
		return nil
	}
	return p
}

// DiffCar computes the patch taking prev to next. CurrentStatus is
// truncated to the wire limit before comparison; CompletedSections are
// compared positionally and emitted wholesale on any difference. Returns
// nil when nothing changed.
func DiffCar(prev, next *CarPosition) *CarPositionPatch {
	dirty := false
	p := &CarPositionPatch{Number: next.Number}

	p.TransponderID = changed(prev.TransponderID, next.TransponderID, &dirty)
	p.Class = changed(prev.Class, next.Class, &dirty)

	p.BestLap = changed(prev.BestLap, next.BestLap, &dirty)
	p.BestLapTime = changed(prev.BestLapTime, next.BestLapTime, &dirty)

	p.InClassGap = changed(prev.InClassGap, next.InClassGap, &dirty)
	p.InClassDifference = changed(prev.InClassDifference, next.InClassDifference, &dirty)
	p.OverallGap = changed(prev.OverallGap, next.OverallGap, &dirty)
	p.OverallDifference = changed(prev.OverallDifference, next.OverallDifference, &dirty)

	p.TotalTime = changed(prev.TotalTime, next.TotalTime, &dirty)
	p.LastLapTime = changed(prev.LastLapTime, next.LastLapTime, &dirty)
	p.LastLapCompleted = changed(prev.LastLapCompleted, next.LastLapCompleted, &dirty)

	p.OverallPosition = changed(prev.OverallPosition, next.OverallPosition, &dirty)
	p.InClassPosition = changed(prev.InClassPosition, next.InClassPosition, &dirty)
	p.OverallStartingPosition = changed(prev.OverallStartingPosition, next.OverallStartingPosition, &dirty)
	p.InClassStartingPosition = changed(prev.InClassStartingPosition, next.InClassStartingPosition, &dirty)
	p.OverallPositionsGained = changed(prev.OverallPositionsGained, next.OverallPositionsGained, &dirty)
	p.InClassPositionsGained = changed(prev.InClassPositionsGained, next.InClassPositionsGained, &dirty)
	p.IsOverallMostGained = changed(prev.IsOverallMostGained, next.IsOverallMostGained, &dirty)
	p.IsClassMostGained = changed(prev.IsClassMostGained, next.IsClassMostGained, &dirty)

	p.PenaltyWarnings = changed(prev.PenaltyWarnings, next.PenaltyWarnings, &dirty)
	p.PenaltyLaps = changed(prev.PenaltyLaps, next.PenaltyLaps, &dirty)

	p.IsEnteredPit = changed(prev.IsEnteredPit, next.IsEnteredPit, &dirty)
	p.IsPitStartFinish = changed(prev.IsPitStartFinish, next.IsPitStartFinish, &dirty)
	p.IsExitedPit = changed(prev.IsExitedPit, next.IsExitedPit, &dirty)
	p.IsInPit = changed(prev.IsInPit, next.IsInPit, &dirty)
	p.LapIncludedPit = changed(prev.LapIncludedPit, next.LapIncludedPit, &dirty)
	p.LastLoopName = changed(prev.LastLoopName, next.LastLoopName, &dirty)

	p.IsStale = changed(prev.IsStale, next.IsStale, &dirty)
	p.Flag = changed(prev.Flag, next.Flag, &dirty)

	p.DriverID = changed(prev.DriverID, next.DriverID, &dirty)
	p.DriverName = changed(prev.DriverName, next.DriverName, &dirty)

	p.LastLapPitted = changed(prev.LastLapPitted, next.LastLapPitted, &dirty)
	p.PitStopCount = changed(prev.PitStopCount, next.PitStopCount, &dirty)
	p.LapsLedOverall = changed(prev.LapsLedOverall, next.LapsLedOverall, &dirty)
	p.CurrentStatus = changed(TruncateStatus(prev.CurrentStatus), TruncateStatus(next.CurrentStatus), &dirty)

	if !sliceEqual(prev.CompletedSections, next.CompletedSections) {
		p.CompletedSections = next.CompletedSections
		dirty = true
	}

	if !dirty {
		return nil
	}
	return p
}

func sliceEqual[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func flagDurationsEqual(a, b []FlagDuration) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Flag != b[i].Flag || !a[i].StartTime.Equal(b[i].StartTime) {
			return false
		}
		ae, be := a[i].EndTime, b[i].EndTime
		if (ae == nil) != (be == nil) {
			return false
		}
		if ae != nil && !ae.Equal(*be) {
			return false
		}
	}
	return true
}
