// SPDX-License-Identifier: MIT

// Package processor is the per-event worker: it consumes the event's timing
// stream in arrival order, folds every record into the session state, and
// fans minimal patches out to subscribers through the hub backplane.
package processor

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/pitwall-live/pitwall/internal/metrics"
	"github.com/pitwall-live/pitwall/internal/multiloop"
	"github.com/pitwall-live/pitwall/internal/rmonitor"
	"github.com/pitwall-live/pitwall/internal/state"
)

// maxAnnouncements bounds the announcement ring kept in state.
const maxAnnouncements = 25

// lapEvent is a completed lap observed while aggregating, destined for the
// lap log and the lifecycle monitor.
type lapEvent struct {
	CarNumber string
	LapNumber int
	LapTime   string
	TotalTime string
}

// flagChange is a closed or newly opened flag interval, destined for
// flag_log persistence.
type flagChange struct {
	Flag state.Flag
}

// aggResult is everything one raw payload did to the state, beyond the state
// mutation itself.
type aggResult struct {
	ResetSeen   bool
	Laps        []lapEvent
	FlagChanges []flagChange
	// Heartbeat carries the last $F of the payload for the lifecycle monitor.
	Heartbeat *rmonitor.Heartbeat
}

func (r *aggResult) merge(other aggResult) {
	r.ResetSeen = r.ResetSeen || other.ResetSeen
	r.Laps = append(r.Laps, other.Laps...)
	r.FlagChanges = append(r.FlagChanges, other.FlagChanges...)
	if other.Heartbeat != nil {
		r.Heartbeat = other.Heartbeat
	}
}

// aggregator folds decoded wire records into a SessionState. It owns the
// framing buffer and the class-id table; the caller owns the state and its
// lock.
type aggregator struct {
	logger  zerolog.Logger
	scanner *rmonitor.Scanner
	// classes maps RMonitor class ids ($C) to descriptions, applied to
	// competitors as they appear.
	classes map[int]string
	// roster maps $A registration numbers to car numbers so position and lap
	// records resolve to the same CarPosition as the entry list. The two
	// identifiers usually coincide but some timing setups register cars under
	// a separate id.
	roster map[string]string
}

func newAggregator(logger zerolog.Logger) *aggregator {
	return &aggregator{
		logger:  logger,
		scanner: &rmonitor.Scanner{},
		classes: make(map[int]string),
		roster:  make(map[string]string),
	}
}

// carNumber resolves a registration number to the roster's car number,
// falling back to the registration itself for cars seen before their $A.
func (a *aggregator) carNumber(regNumber string) string {
	if number, ok := a.roster[regNumber]; ok {
		return number
	}
	return regNumber
}

// ApplyRaw feeds one raw timing payload into the state. Lines starting with
// '$' are RMonitor; anything else is tried as a base64 Multiloop frame.
// Decode failures are counted and skipped, never fatal.
func (a *aggregator) ApplyRaw(st *state.SessionState, raw string, clock clockwork.Clock) aggResult {
	var result aggResult

	if _, err := a.scanner.Write([]byte(raw)); err != nil {
		return result
	}
	for _, line := range a.scanner.Lines() {
		if strings.HasPrefix(line, "$") {
			result.merge(a.applyRMonitorLine(st, line, clock))
			continue
		}
		result.merge(a.applyMultiloopLine(st, line))
	}
	return result
}

func (a *aggregator) applyRMonitorLine(st *state.SessionState, line string, clock clockwork.Clock) aggResult {
	var result aggResult

	rec, err := rmonitor.ParseLine(line)
	if err != nil {
		var unknown *rmonitor.UnknownRecordError
		if errors.As(err, &unknown) {
			metrics.IncUnknownRecord("rmonitor")
			a.logger.Debug().Str("line", line).Msg("skipping unknown rmonitor record")
		} else {
			metrics.IncDecodeFailure("rmonitor")
			a.logger.Warn().Err(err).Str("line", line).
				Str("event", "processor.decode_failed").Msg("skipping malformed rmonitor record")
		}
		return result
	}
	metrics.IncRecord("rmonitor", string(rec.RecordType()))

	switch r := rec.(type) {
	case rmonitor.Competitor:
		a.applyCompetitor(st, r)
	case rmonitor.RaceInfo:
		st.SessionName = r.RunName
	case rmonitor.ClassInfo:
		a.classes[r.ClassID] = r.Description
	case rmonitor.Setting:
		// Track settings carry nothing the live state needs.
	case rmonitor.Heartbeat:
		result.FlagChanges = append(result.FlagChanges, a.applyHeartbeat(st, r, clock)...)
		hb := r
		result.Heartbeat = &hb
	case rmonitor.RacePosition:
		car := st.EnsureCar(a.carNumber(r.RegNumber))
		car.OverallPosition = r.Position
		if r.Laps > car.LastLapCompleted {
			car.LastLapCompleted = r.Laps
		}
		car.TotalTime = r.TotalTime
	case rmonitor.BestLap:
		car := st.EnsureCar(a.carNumber(r.RegNumber))
		car.BestLap = r.BestLap
		car.BestLapTime = r.BestLapTime
	case rmonitor.Reset:
		st.Reset()
		result.ResetSeen = true
		metrics.ResetsTotal.Inc()
	case rmonitor.LapComplete:
		car := st.EnsureCar(a.carNumber(r.RegNumber))
		car.LastLapTime = r.LapTime
		car.TotalTime = r.TotalTime
		car.LastLapCompleted++
		result.Laps = append(result.Laps, lapEvent{
			CarNumber: car.Number,
			LapNumber: car.LastLapCompleted,
			LapTime:   r.LapTime,
			TotalTime: r.TotalTime,
		})
	}
	return result
}

func (a *aggregator) applyCompetitor(st *state.SessionState, r rmonitor.Competitor) {
	a.roster[r.RegNumber] = r.Number
	car := st.EnsureCar(r.Number)
	car.TransponderID = r.TransponderID
	if class, ok := a.classes[r.ClassID]; ok {
		car.Class = class
	}

	name := strings.TrimSpace(r.FirstName + " " + r.LastName)
	entry := state.EventEntry{
		Number:     r.Number,
		DriverName: name,
		Class:      car.Class,
	}
	for i := range st.EventEntries {
		if st.EventEntries[i].Number == r.Number {
			team := st.EventEntries[i].Team
			st.EventEntries[i] = entry
			st.EventEntries[i].Team = team
			return
		}
	}
	st.EventEntries = append(st.EventEntries, entry)
}

func (a *aggregator) applyHeartbeat(st *state.SessionState, r rmonitor.Heartbeat, clock clockwork.Clock) []flagChange {
	st.LapsToGo = r.LapsToGo
	st.TimeToGo = r.TimeToGo
	st.LocalTimeOfDay = r.TimeOfDay
	st.RunningRaceTime = r.RaceTime

	flag := state.ParseFlag(r.Flag)
	if flag == state.FlagUnknown && r.Flag != "" {
		a.logger.Debug().Str("flag", r.Flag).Msg("unrecognized course flag")
	}
	if flag != state.FlagUnknown && st.SetFlag(flag, clock.Now()) {
		return []flagChange{{Flag: flag}}
	}
	return nil
}

func (a *aggregator) applyMultiloopLine(st *state.SessionState, line string) aggResult {
	var result aggResult

	frame, err := base64.StdEncoding.DecodeString(line)
	if err != nil {
		metrics.IncDecodeFailure("multiloop")
		a.logger.Warn().Str("line", line).
			Str("event", "processor.decode_failed").Msg("payload is neither rmonitor nor base64 multiloop")
		return result
	}
	msg, err := multiloop.Decode(frame)
	if err != nil {
		var unsupported *multiloop.UnsupportedMessageError
		if errors.As(err, &unsupported) {
			metrics.IncUnknownRecord("multiloop")
		} else {
			metrics.IncDecodeFailure("multiloop")
			a.logger.Warn().Err(err).
				Str("event", "processor.decode_failed").Msg("skipping malformed multiloop frame")
		}
		return result
	}
	metrics.IncRecord("multiloop", string(rune(msg.MessageType())))

	switch m := msg.(type) {
	case multiloop.Announcement:
		st.Announcements = append(st.Announcements, state.Announcement{
			Timestamp: m.Timestamp,
			Priority:  int(m.Priority),
			Text:      m.Text,
		})
		if len(st.Announcements) > maxAnnouncements {
			st.Announcements = st.Announcements[len(st.Announcements)-maxAnnouncements:]
		}
	case multiloop.CompletedLap:
		car := st.EnsureCar(m.Number)
		car.OverallStartingPosition = m.StartPosition
		car.LapsLedOverall = m.LapsLed
		car.LastLapPitted = m.LastLapPitted
		car.PitStopCount = m.PitStopCount
		car.CurrentStatus = state.TruncateStatus(m.CurrentStatus)
	case multiloop.CompletedSection:
		car := st.EnsureCar(m.Number)
		a.applySection(car, m)
	case multiloop.LineCrossing:
		car := st.EnsureCar(m.Number)
		switch m.Status {
		case multiloop.CrossingPit:
			car.IsEnteredPit = true
			car.IsInPit = true
			car.LapIncludedPit = true
		case multiloop.CrossingTrack:
			if car.IsInPit {
				car.IsExitedPit = true
			}
			car.IsInPit = false
		}
	case multiloop.FlagInformation:
		st.GreenTimeMs = m.GreenTimeMs
		st.GreenLaps = m.GreenLaps
		st.YellowTimeMs = m.YellowTimeMs
		st.YellowLaps = m.YellowLaps
		st.NumberOfYellows = m.NumberOfYellows
		st.RedTimeMs = m.RedTimeMs
		st.AverageRaceSpeed = m.AverageRaceSpeed
		st.LeadChanges = m.LeadChanges
	case multiloop.RunInformation:
		st.SessionName = m.RunName
		st.IsPracticeQualifying = m.RunType != multiloop.RunRace
	}
	return result
}

// applySection upserts one section record, keeping the vector ordered as it
// arrives from the feed.
func (a *aggregator) applySection(car *state.CarPosition, m multiloop.CompletedSection) {
	section := state.CompletedSection{
		Number:            m.Number,
		SectionID:         m.SectionID,
		ElapsedTimeMs:     m.ElapsedTimeMs,
		LastSectionTimeMs: m.LastSectionTimeMs,
		LastLap:           m.LastLap,
	}
	for i := range car.CompletedSections {
		if car.CompletedSections[i].SectionID == m.SectionID {
			car.CompletedSections[i] = section
			return
		}
	}
	car.CompletedSections = append(car.CompletedSections, section)
}
