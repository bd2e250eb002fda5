// SPDX-License-Identifier: MIT

package state

import "time"

// Flag is a course flag state.
type Flag string

const (
	FlagUnknown   Flag = "Unknown"
	FlagGreen     Flag = "Green"
	FlagYellow    Flag = "Yellow"
	FlagRed       Flag = "Red"
	FlagWhite     Flag = "White"
	FlagCheckered Flag = "Checkered"
	FlagBlack     Flag = "Black"
	FlagPurple35  Flag = "Purple35"
)

// ParseFlag maps a wire flag string onto the enum. Unrecognized values come
// back as FlagUnknown; the timing feed occasionally pads or miscases them.
func ParseFlag(s string) Flag {
	switch Flag(s) {
	case FlagGreen, FlagYellow, FlagRed, FlagWhite, FlagCheckered, FlagBlack, FlagPurple35:
		return Flag(s)
	}
	return FlagUnknown
}

// FlagDuration is one interval of a flag being shown. The open interval
// (EndTime nil) is always the last entry and matches CurrentFlag.
type FlagDuration struct {
	Flag      Flag       `json:"flag"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
}

// SetFlag records a flag change at the given time, closing the open interval
// and appending a new one. A repeat of the current flag is a no-op; returns
// whether the flag actually changed.
func (s *SessionState) SetFlag(flag Flag, at time.Time) bool {
	if flag == s.CurrentFlag {
		return false
	}
	if n := len(s.FlagDurations); n > 0 && s.FlagDurations[n-1].EndTime == nil {
		end := at
		s.FlagDurations[n-1].EndTime = &end
	}
	s.FlagDurations = append(s.FlagDurations, FlagDuration{Flag: flag, StartTime: at})
	s.CurrentFlag = flag
	return true
}
