// SPDX-License-Identifier: MIT

package processor

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/pitwall-live/pitwall/internal/bus"
	"github.com/pitwall-live/pitwall/internal/debounce"
	"github.com/pitwall-live/pitwall/internal/log"
	"github.com/pitwall-live/pitwall/internal/metrics"
	"github.com/pitwall-live/pitwall/internal/rmonitor"
	"github.com/pitwall-live/pitwall/internal/state"
)

// Phase is a session's lifecycle state.
type Phase string

const (
	PhaseIdle      Phase = "Idle"
	PhaseActive    Phase = "Active"
	PhaseFinishing Phase = "Finishing"
	PhaseFinalized Phase = "Finalized"
)

// finishFlags are the flags a checkered transition can come from.
var finishFlags = map[state.Flag]bool{
	state.FlagWhite:    true,
	state.FlagGreen:    true,
	state.FlagYellow:   true,
	state.FlagPurple35: true,
}

// Monitor drives one session through Idle → Active → Finishing → Finalized.
// Time decisions use the parsed event clock from the timing feed, not wall
// time: a paused feed means a paused race.
//
// Observe* runs on the ingest goroutine while Phase and SessionID are read
// from the snapshot and sweep loops; mu guards all lifecycle fields. The
// finalize callback fires with mu held, so it must not call back into the
// monitor.
type Monitor struct {
	logger zerolog.Logger
	clock  clockwork.Clock

	eventID       string
	finalizeAfter time.Duration

	mu        sync.Mutex
	phase     Phase
	sessionID int
	prevFlag  state.Flag

	// eventTime is the last successfully parsed local time of day.
	eventTime    time.Duration
	eventTimeSet bool

	// checkeredLaps snapshots (car → last lap) at the checkered transition;
	// lapChangeTime advances whenever a car beats its snapshot.
	checkeredLaps map[string]int
	lapChangeTime time.Duration

	touch *debounce.Debouncer

	// onFinalize persists the terminal state. Fired exactly once per session.
	onFinalize func(sessionID int, endTime time.Time)
	// onTouch writes the debounced last_updated timestamp.
	onTouch func(sessionID int, at time.Time)
}

// newMonitor wires the FSM. Callbacks must be non-nil.
func newMonitor(eventID string, finalizeAfter, debounceInterval time.Duration,
	clock clockwork.Clock,
	onFinalize func(sessionID int, endTime time.Time),
	onTouch func(sessionID int, at time.Time),
) *Monitor {
	m := &Monitor{
		logger:        log.WithComponent("lifecycle").With().Str(log.FieldEventID, eventID).Logger(),
		clock:         clock,
		eventID:       eventID,
		finalizeAfter: finalizeAfter,
		phase:         PhaseIdle,
		prevFlag:      state.FlagUnknown,
		onFinalize:    onFinalize,
		onTouch:       onTouch,
	}
	m.touch = debounce.NewWithClock(debounceInterval, func() {
		m.onTouch(m.SessionID(), m.clock.Now())
	}, clock)
	return m
}

// Phase returns the current lifecycle phase.
func (m *Monitor) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// SessionID returns the adopted session id, zero while idle.
func (m *Monitor) SessionID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// ObserveSessionChange adopts a new session id, finalizing the current one
// first when it is still running. The reserved sentinel never starts a
// lifecycle.
func (m *Monitor) ObserveSessionChange(change bus.SessionChange) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if change.SessionID == state.ReservedSessionID {
		m.logger.Warn().Int(log.FieldSessionID, change.SessionID).
			Str("event", "lifecycle.reserved_session_ignored").Msg("ignoring reserved session id")
		return
	}
	if change.SessionID == m.sessionID && m.phase != PhaseIdle && m.phase != PhaseFinalized {
		return
	}

	if m.phase == PhaseActive || m.phase == PhaseFinishing {
		m.finalize("superseded")
	}

	m.sessionID = change.SessionID
	m.transition(PhaseActive)
	m.prevFlag = state.FlagUnknown
	m.checkeredLaps = nil
	m.eventTimeSet = false
}

// ObserveHeartbeat feeds one $F into the FSM: flag edges start the finishing
// countdown, and the event clock decides when finishing ends.
func (m *Monitor) ObserveHeartbeat(hb rmonitor.Heartbeat, snapshotLaps func() map[string]int) {
	m.mu.Lock()
	flag := state.ParseFlag(hb.Flag)

	parsed, err := rmonitor.ParseClockDuration(hb.TimeOfDay)
	stalled := false
	if err == nil {
		stalled = m.eventTimeSet && parsed == m.eventTime
		if !m.eventTimeSet || parsed != m.eventTime {
			m.eventTime = parsed
			m.eventTimeSet = true
		}
	}

	switch m.phase {
	case PhaseActive:
		if finishFlags[m.prevFlag] && flag == state.FlagCheckered {
			m.checkeredLaps = snapshotLaps()
			m.lapChangeTime = m.eventTime
			m.transition(PhaseFinishing)
		}
	case PhaseFinishing:
		switch {
		case stalled:
			// The feed's clock stopped advancing; nothing more is coming.
			m.finalize("clock_stalled")
		case m.eventTimeSet && m.eventTime-m.lapChangeTime >= m.finalizeAfter:
			m.finalize("quiet_period")
		}
	}

	if flag != state.FlagUnknown {
		m.prevFlag = flag
	}
	m.mu.Unlock()

	// Outside mu: the debouncer's leading edge runs the touch callback on
	// this goroutine, and the callback re-enters the monitor.
	m.touch.Trigger()
}

// ObserveLapChange restarts the finishing countdown when a car advances past
// its checkered snapshot.
func (m *Monitor) ObserveLapChange(carNumber string, lap int) {
	m.mu.Lock()
	if m.phase != PhaseFinishing {
		m.mu.Unlock()
		return
	}
	if snapshot, ok := m.checkeredLaps[carNumber]; !ok || lap != snapshot {
		if m.checkeredLaps == nil {
			m.checkeredLaps = make(map[string]int)
		}
		m.checkeredLaps[carNumber] = lap
		m.lapChangeTime = m.eventTime
	}
	m.mu.Unlock()

	m.touch.Trigger()
}

// FinalizeIfFinishing forces finalization during shutdown drain when the
// session already saw the checkered flag.
func (m *Monitor) FinalizeIfFinishing() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseFinishing {
		m.finalize("drain")
	}
}

// Shutdown flushes the pending last_updated write and stops the debouncer.
func (m *Monitor) Shutdown() {
	m.mu.Lock()
	running := m.phase == PhaseActive || m.phase == PhaseFinishing
	m.mu.Unlock()

	if running {
		m.touch.Flush()
	}
	m.touch.Stop()
}

func (m *Monitor) finalize(reason string) {
	m.transition(PhaseFinalized)
	m.logger.Info().Int(log.FieldSessionID, m.sessionID).Str("reason", reason).
		Str("event", "lifecycle.finalized").Msg("session finalized")
	m.onFinalize(m.sessionID, m.clock.Now())
}

func (m *Monitor) transition(to Phase) {
	from := m.phase
	m.phase = to
	metrics.IncSessionTransition(string(to))
	m.logger.Info().
		Int(log.FieldSessionID, m.sessionID).
		Str(log.FieldOldState, string(from)).
		Str(log.FieldNewState, string(to)).
		Str("event", "lifecycle.transition").Msg("lifecycle transition")
}
