// SPDX-License-Identifier: MIT

package controllog

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/pitwall-live/pitwall/internal/bus"
	"github.com/pitwall-live/pitwall/internal/config"
	"github.com/pitwall-live/pitwall/internal/log"
	"github.com/pitwall-live/pitwall/internal/metrics"
)

// CarControlLogs is the push payload for one car's slice of the log. An
// empty CarNumber means the full event log.
type CarControlLogs struct {
	EventID   string  `json:"eventId"`
	CarNumber string  `json:"carNumber,omitempty"`
	Entries   []Entry `json:"entries"`
}

// Aggregator polls the source, diffs per car, pushes updates and maintains
// the shared cache keys other services read.
type Aggregator struct {
	cfg    config.ControlLog
	bus    *bus.Bus
	source Source
	logger zerolog.Logger
	clock  clockwork.Clock

	// cache holds the last fetched log grouped per car.
	cache map[string][]Entry
}

// New builds an aggregator for one event.
func New(cfg config.ControlLog, b *bus.Bus, source Source, clock clockwork.Clock) *Aggregator {
	return &Aggregator{
		cfg:    cfg,
		bus:    b,
		source: source,
		logger: log.WithComponent("controllog").With().Str(log.FieldEventID, cfg.EventID).Logger(),
		clock:  clock,
		cache:  make(map[string][]Entry),
	}
}

// Run polls on the configured cadence until ctx is cancelled. A source with
// change notification (file drops) triggers immediate polls between ticks,
// and on-demand snapshot requests are served continuously.
func (a *Aggregator) Run(ctx context.Context) error {
	sub := a.bus.Subscribe(ctx, bus.ChannelSendControlLog)
	defer func() { _ = sub.Close() }()
	requests := sub.Channel()

	var changes <-chan struct{}
	if w, ok := a.source.(Watcher); ok {
		changes = w.Changes()
		defer func() { _ = w.Close() }()
	}

	ticker := a.clock.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	a.Poll(ctx)
	for {
		select {
		case <-ticker.Chan():
			a.Poll(ctx)
		case <-changes:
			a.Poll(ctx)
		case msg, ok := <-requests:
			if !ok {
				return nil
			}
			a.handleRequest(ctx, msg.Payload)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Poll fetches the current log, pushes per-car and full-event updates for
// changed cars and rewrites the cache keys. Failures leave the previous
// state standing.
func (a *Aggregator) Poll(ctx context.Context) {
	metrics.ControlLogRequestsTotal.Inc()

	entries, err := a.source.Fetch(ctx)
	if err != nil {
		metrics.ControlLogFailuresTotal.Inc()
		a.logger.Warn().Err(err).Str("event", "controllog.fetch_failed").
			Msg("keeping previous control log state")
		return
	}
	metrics.ControlLogEntriesTotal.Add(float64(len(entries)))

	next := groupByCar(entries)
	changed := changedCars(a.cache, next)
	removed := removedCars(a.cache, next)
	a.cache = next

	for _, car := range changed {
		a.pushCar(ctx, car, next[car])
	}
	if len(changed) > 0 || len(removed) > 0 {
		a.pushFullEvent(ctx, entries)
	}

	a.writeCache(ctx, entries, next)
	a.collectGarbage(ctx, next, removed)
}

func (a *Aggregator) pushCar(ctx context.Context, car string, entries []Entry) {
	payload, err := json.Marshal(CarControlLogs{
		EventID:   a.cfg.EventID,
		CarNumber: car,
		Entries:   entries,
	})
	if err != nil {
		return
	}
	a.publish(ctx, bus.CarControlLogGroup(a.cfg.EventID, car), payload)
}

func (a *Aggregator) pushFullEvent(ctx context.Context, entries []Entry) {
	payload, err := json.Marshal(CarControlLogs{EventID: a.cfg.EventID, Entries: entries})
	if err != nil {
		return
	}
	a.publish(ctx, bus.ControlLogGroup(a.cfg.EventID), payload)
}

func (a *Aggregator) publish(ctx context.Context, group string, payload []byte) {
	err := a.bus.Publish(ctx, bus.ChannelStatusBroadcast, bus.Broadcast{
		Group:       group,
		Method:      bus.MethodReceiveControlLog,
		Payload:     payload,
		PublishedAt: a.clock.Now().UTC(),
	})
	if err != nil {
		a.logger.Warn().Err(err).Str(log.FieldGroup, group).
			Str("event", "controllog.push_failed").Msg("control log push failed")
	}
}

// writeCache rewrites the full snapshot, the per-car slices and the penalty
// hash. The processor reads the penalty hash; new subscribers read the rest.
func (a *Aggregator) writeCache(ctx context.Context, entries []Entry, byCar map[string][]Entry) {
	if err := a.bus.SetJSON(ctx, bus.ControlLogKey(a.cfg.EventID), entries, 0); err != nil {
		a.logger.Warn().Err(err).Str("event", "controllog.cache_write_failed").
			Msg("full snapshot write failed")
	}
	for car, carEntries := range byCar {
		if err := a.bus.SetJSON(ctx, bus.ControlLogCarKey(a.cfg.EventID, car), carEntries, 0); err != nil {
			a.logger.Warn().Err(err).Str(log.FieldCarNumber, car).
				Str("event", "controllog.cache_write_failed").Msg("per-car write failed")
		}
	}
	for car, carEntries := range byCar {
		pen := summarizePenalties(carEntries)
		if err := a.bus.HSetJSON(ctx, bus.ControlLogPenaltiesKey(a.cfg.EventID), car, pen); err != nil {
			a.logger.Warn().Err(err).Str(log.FieldCarNumber, car).
				Str("event", "controllog.penalty_write_failed").Msg("penalty write failed")
		}
	}
}

// collectGarbage drops cache keys and penalty fields of cars that left the
// log.
func (a *Aggregator) collectGarbage(ctx context.Context, current map[string][]Entry, removed []string) {
	keys, err := a.bus.ScanKeys(ctx, bus.ControlLogCarKeyPattern(a.cfg.EventID))
	if err != nil {
		a.logger.Warn().Err(err).Str("event", "controllog.gc_scan_failed").Msg("gc scan failed")
		return
	}
	prefix := bus.ControlLogCarKey(a.cfg.EventID, "")
	var stale []string
	for _, key := range keys {
		car := key[len(prefix):]
		if _, ok := current[car]; !ok {
			stale = append(stale, key)
		}
	}
	if err := a.bus.Delete(ctx, stale...); err != nil {
		a.logger.Warn().Err(err).Str("event", "controllog.gc_delete_failed").Msg("gc delete failed")
	}
	if len(removed) > 0 {
		if err := a.bus.HDelete(ctx, bus.ControlLogPenaltiesKey(a.cfg.EventID), removed...); err != nil {
			a.logger.Warn().Err(err).Str("event", "controllog.gc_delete_failed").
				Msg("stale penalty fields not removed")
		}
	}
}

// handleRequest serves one on-demand snapshot push to a single connection.
func (a *Aggregator) handleRequest(ctx context.Context, payload string) {
	var req bus.ControlLogRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil || req.EventID != a.cfg.EventID {
		return
	}

	msg := CarControlLogs{EventID: a.cfg.EventID, CarNumber: req.CarNumber}
	if req.CarNumber == "" {
		for _, entries := range a.cache {
			msg.Entries = append(msg.Entries, entries...)
		}
		sort.Slice(msg.Entries, func(i, j int) bool {
			return msg.Entries[i].Timestamp.Before(msg.Entries[j].Timestamp)
		})
	} else {
		msg.Entries = a.cache[req.CarNumber]
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	err = a.bus.Publish(ctx, bus.ChannelStatusDirect, bus.Direct{
		ConnectionID: req.ConnectionID,
		Method:       bus.MethodReceiveControlLog,
		Payload:      data,
	})
	if err != nil {
		a.logger.Warn().Err(err).Str(log.FieldConnectionID, req.ConnectionID).
			Str("event", "controllog.direct_failed").Msg("on-demand push failed")
	}
}

func groupByCar(entries []Entry) map[string][]Entry {
	out := make(map[string][]Entry)
	for _, e := range entries {
		if e.CarNumber == "" {
			continue
		}
		out[e.CarNumber] = append(out[e.CarNumber], e)
	}
	return out
}

// summarizePenalties folds a car's entries into its running penalty totals.
func summarizePenalties(entries []Entry) bus.CarPenalty {
	var pen bus.CarPenalty
	for _, e := range entries {
		pen.Warnings += e.PenaltyWarnings
		pen.Laps += e.PenaltyLaps
	}
	return pen
}

func changedCars(prev, next map[string][]Entry) []string {
	var changed []string
	for car, entries := range next {
		if !entriesEqual(prev[car], entries) {
			changed = append(changed, car)
		}
	}
	sort.Strings(changed)
	return changed
}

func removedCars(prev, next map[string][]Entry) []string {
	var removed []string
	for car := range prev {
		if _, ok := next[car]; !ok {
			removed = append(removed, car)
		}
	}
	sort.Strings(removed)
	return removed
}

func entriesEqual(a, b []Entry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Timestamp.Equal(b[i].Timestamp) || a[i] != withTime(b[i], a[i].Timestamp) {
			return false
		}
	}
	return true
}

// withTime normalizes the timestamp so struct equality compares the
// remaining fields; time.Time values with different wall representations of
// the same instant must not count as changes.
func withTime(e Entry, t time.Time) Entry {
	e.Timestamp = t
	return e
}
