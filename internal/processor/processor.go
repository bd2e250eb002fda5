// SPDX-License-Identifier: MIT

package processor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pitwall-live/pitwall/internal/bus"
	"github.com/pitwall-live/pitwall/internal/config"
	"github.com/pitwall-live/pitwall/internal/log"
	"github.com/pitwall-live/pitwall/internal/metrics"
	"github.com/pitwall-live/pitwall/internal/state"
	"github.com/pitwall-live/pitwall/internal/store"
)

// errDrained signals a clean drain-and-exit after a shutdown command.
var errDrained = errors.New("processor drained")

// ingestBatchSize bounds one stream read. The next batch is not pulled
// until this one is fully applied, broadcast and persisted.
const ingestBatchSize = 100

// penaltyPollInterval is the cadence of the penalty hash diff.
const penaltyPollInterval = 5 * time.Second

// snapshotTTL expires the cached snapshot of a dead processor.
const snapshotTTL = 30 * time.Second

// Store is the slice of the persistence layer the processor writes.
type Store interface {
	InsertCarLap(ctx context.Context, lap store.CarLapLog) error
	UpsertCarLastLap(ctx context.Context, lap store.CarLapLog) error
	InsertFlag(ctx context.Context, row store.FlagLogRow) error
	TouchSessionLastUpdated(ctx context.Context, eventID string, sessionID int, at time.Time) error
	FinalizeSession(ctx context.Context, result store.SessionResult, endTime time.Time) error
}

// Processor is the per-event aggregation worker.
type Processor struct {
	cfg    config.Processor
	bus    *bus.Bus
	store  Store
	logger zerolog.Logger
	clock  clockwork.Clock

	mu    sync.RWMutex
	state *state.SessionState

	agg      *aggregator
	monitor  *Monitor
	enricher *enricher

	lastPenalties map[string]bus.CarPenalty
	sessionStart  time.Time

	drainOnce sync.Once
	drainCh   chan struct{}

	// OnFinalized, when set, observes each successful session finalization.
	OnFinalized func(eventID string, sessionID int)
}

// New builds a processor for one event.
func New(cfg config.Processor, b *bus.Bus, st Store, clock clockwork.Clock) *Processor {
	logger := log.WithComponent("processor").With().Str(log.FieldEventID, cfg.EventID).Logger()
	p := &Processor{
		cfg:    cfg,
		bus:    b,
		store:  st,
		logger: logger,
		clock:  clock,
		state:  &state.SessionState{EventID: cfg.EventID, CurrentFlag: state.FlagUnknown},
		agg:    newAggregator(logger),
		enricher: &enricher{
			logger:  logger,
			eventID: cfg.EventID,
			cache:   b,
		},
		lastPenalties: make(map[string]bus.CarPenalty),
		drainCh:       make(chan struct{}),
	}
	p.monitor = newMonitor(cfg.EventID, cfg.FinalizeAfter, cfg.DebounceInterval,
		clock, p.finalizeSession, p.touchSession)
	return p
}

// Run drives every loop of the worker until ctx is cancelled or a shutdown
// signal finishes the drain. A drained exit returns nil.
func (p *Processor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return p.ingestLoop(ctx) })
	g.Go(func() error { return p.snapshotLoop(ctx) })
	g.Go(func() error { return p.sweepLoop(ctx) })
	g.Go(func() error { return p.penaltyLoop(ctx) })
	g.Go(func() error { return p.controlLoop(ctx) })

	err := g.Wait()
	p.monitor.Shutdown()
	if errors.Is(err, errDrained) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Drain starts the pre-shutdown drain. Idempotent.
func (p *Processor) Drain() {
	p.drainOnce.Do(func() {
		p.logger.Info().Str("event", "processor.draining").Msg("shutdown signal received, draining")
		close(p.drainCh)
	})
}

// ingestLoop consumes the event stream one batch at a time, reconnecting
// with exponential backoff. During drain it keeps consuming until the drain
// deadline, then finalizes and exits.
func (p *Processor) ingestLoop(ctx context.Context) error {
	consumer := p.bus.NewConsumer(p.cfg.EventID, bus.GroupProcessor, "processor-"+p.cfg.EventID)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0

	if err := consumer.Ensure(ctx); err != nil {
		return err
	}

	var drainDeadline time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.drainCh:
			if drainDeadline.IsZero() {
				drainDeadline = p.clock.Now().Add(p.cfg.DrainTimeout)
			}
			if !p.clock.Now().Before(drainDeadline) {
				return p.finishDrain(ctx)
			}
		default:
		}

		entries, err := consumer.Read(ctx, ingestBatchSize, 2*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := policy.NextBackOff()
			p.logger.Warn().Err(err).Dur("retry_in", wait).
				Str("event", "processor.stream_reconnect").Msg("stream read failed")
			metrics.BusReconnectsTotal.Inc()
			select {
			case <-p.clock.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
			if err := consumer.Ensure(ctx); err != nil {
				continue
			}
			continue
		}
		policy.Reset()

		if len(entries) == 0 {
			if !drainDeadline.IsZero() {
				// Nothing in flight; no point waiting out the full window.
				return p.finishDrain(ctx)
			}
			continue
		}

		p.processBatch(ctx, entries)

		ids := make([]string, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
		}
		if err := consumer.Ack(ctx, ids...); err != nil {
			p.logger.Warn().Err(err).Str("event", "processor.ack_failed").
				Msg("entries will be redelivered")
		}
	}
}

// finishDrain finalizes a checkered session, flushes the snapshot cache and
// reports the clean-exit sentinel.
func (p *Processor) finishDrain(ctx context.Context) error {
	p.monitor.FinalizeIfFinishing()
	p.publishSnapshot(ctx)
	p.logger.Info().Str("event", "processor.drained").Msg("drain complete")
	return errDrained
}

// processBatch applies one batch in arrival order. The state write lock is
// never held across bus or database I/O.
func (p *Processor) processBatch(ctx context.Context, entries []bus.StreamEntry) {
	for _, entry := range entries {
		switch entry.Kind {
		case bus.KindTiming:
			p.processTiming(ctx, entry)
		case bus.KindSessionChange:
			p.processSessionChange(ctx, entry.SessionChange)
		case bus.KindDriverInfo:
			p.processDriverInfo(ctx, entry.DriverInfo)
		case bus.KindReset:
			p.processReset(ctx)
		default:
			metrics.IncBusDropReason("event-stream", "unclassified")
		}
	}
}

func (p *Processor) processTiming(ctx context.Context, entry bus.StreamEntry) {
	p.mu.Lock()
	prev := p.state.Clone()
	res := p.agg.ApplyRaw(p.state, entry.Raw, p.clock)
	sessionPatch := state.DiffSession(prev, p.state)
	carPatches := diffCars(prev, p.state)
	p.mu.Unlock()

	if sessionPatch != nil {
		p.broadcastJSON(ctx, bus.EventGroup(p.cfg.EventID), bus.MethodReceiveSessionPatch, sessionPatch)
		metrics.IncPatch("session")
	}
	p.broadcastCarPatches(ctx, carPatches)
	if res.ResetSeen {
		p.broadcastJSON(ctx, bus.EventGroup(p.cfg.EventID), bus.MethodReceiveReset, nil)
	}

	p.persistLaps(ctx, res.Laps)
	p.persistFlags(ctx, res.FlagChanges)

	for _, lap := range res.Laps {
		p.monitor.ObserveLapChange(lap.CarNumber, lap.LapNumber)
	}
	if res.Heartbeat != nil {
		p.monitor.ObserveHeartbeat(*res.Heartbeat, p.lapSnapshot)
	}
}

// processSessionChange finalizes any running session and starts the next one
// with a clean state.
func (p *Processor) processSessionChange(ctx context.Context, change bus.SessionChange) {
	if change.SessionID == state.ReservedSessionID {
		return
	}
	p.monitor.ObserveSessionChange(change)
	if p.monitor.SessionID() != change.SessionID {
		return
	}

	p.mu.Lock()
	p.state = &state.SessionState{
		EventID:     p.cfg.EventID,
		SessionID:   change.SessionID,
		SessionName: change.SessionName,
		IsLive:      true,
		CurrentFlag: state.FlagUnknown,
	}
	p.agg = newAggregator(p.logger)
	p.sessionStart = p.clock.Now()
	p.mu.Unlock()

	p.broadcastJSON(ctx, bus.EventGroup(p.cfg.EventID), bus.MethodReceiveReset, nil)
	p.publishSnapshot(ctx)
}

func (p *Processor) processDriverInfo(ctx context.Context, info bus.DriverInfo) {
	p.mu.Lock()
	patch := p.enricher.ApplyDriverInfo(p.state, info)
	p.mu.Unlock()
	if patch != nil {
		p.broadcastCarPatches(ctx, []state.CarPositionPatch{*patch})
	}
}

func (p *Processor) processReset(ctx context.Context) {
	p.mu.Lock()
	p.state.Reset()
	p.mu.Unlock()
	metrics.ResetsTotal.Inc()
	p.broadcastJSON(ctx, bus.EventGroup(p.cfg.EventID), bus.MethodReceiveReset, nil)
}

// lapSnapshot captures (car → last lap) for the finishing countdown.
func (p *Processor) lapSnapshot() map[string]int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	laps := make(map[string]int, len(p.state.CarPositions))
	for _, car := range p.state.CarPositions {
		laps[car.Number] = car.LastLapCompleted
	}
	return laps
}

// diffCars pairs cars by number and diffs each against its previous state,
// or against an empty car when it is new. Removed cars (reset) emit nothing;
// the reset broadcast covers them.
func diffCars(prev, next *state.SessionState) []state.CarPositionPatch {
	prevByNumber := make(map[string]*state.CarPosition, len(prev.CarPositions))
	for i := range prev.CarPositions {
		prevByNumber[prev.CarPositions[i].Number] = &prev.CarPositions[i]
	}

	var patches []state.CarPositionPatch
	for i := range next.CarPositions {
		car := &next.CarPositions[i]
		before, ok := prevByNumber[car.Number]
		if !ok {
			before = &state.CarPosition{Number: car.Number, Flag: state.FlagUnknown}
		}
		if patch := state.DiffCar(before, car); patch != nil {
			patches = append(patches, *patch)
		}
	}
	return patches
}

// broadcastCarPatches fans car patches to the event group and each car's
// in-car group.
func (p *Processor) broadcastCarPatches(ctx context.Context, patches []state.CarPositionPatch) {
	if len(patches) == 0 {
		return
	}
	p.broadcastJSON(ctx, bus.EventGroup(p.cfg.EventID), bus.MethodReceiveCarPatches, patches)
	metrics.IncPatch("car")

	for i := range patches {
		p.broadcastJSON(ctx, bus.InCarGroup(p.cfg.EventID, patches[i].Number),
			bus.MethodReceiveCarPatches, patches[i : i+1])
	}
}

func (p *Processor) broadcastJSON(ctx context.Context, group, method string, payload any) {
	var (
		data []byte
		err  error
	)
	if payload != nil {
		data, err = json.Marshal(payload)
		if err != nil {
			p.logger.Error().Err(err).Str("method", method).
				Str("event", "processor.marshal_failed").Msg("dropping broadcast")
			return
		}
	}
	p.broadcastRaw(ctx, group, method, data)
}

func (p *Processor) broadcastRaw(ctx context.Context, group, method string, payload []byte) {
	err := p.bus.Publish(ctx, bus.ChannelStatusBroadcast, bus.Broadcast{
		Group:       group,
		Method:      method,
		Payload:     payload,
		PublishedAt: p.clock.Now().UTC(),
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("method", method).
			Str("event", "processor.broadcast_failed").
			Msg("subscribers catch up on next snapshot")
	}
}

func (p *Processor) sendDirect(ctx context.Context, connID, method string, payload []byte) {
	err := p.bus.Publish(ctx, bus.ChannelStatusDirect, bus.Direct{
		ConnectionID: connID,
		Method:       method,
		Payload:      payload,
	})
	if err != nil {
		p.logger.Warn().Err(err).Str(log.FieldConnectionID, connID).
			Str("event", "processor.direct_failed").Msg("directed delivery failed")
	}
}

// persistLaps writes lap rows with bounded retries; an exhausted lap is
// dropped from the log but remains in the live state.
func (p *Processor) persistLaps(ctx context.Context, laps []lapEvent) {
	sessionID := p.monitor.SessionID()
	if sessionID == 0 || sessionID == state.ReservedSessionID {
		return
	}
	for _, lap := range laps {
		row := store.CarLapLog{
			EventID:    p.cfg.EventID,
			SessionID:  sessionID,
			CarNumber:  lap.CarNumber,
			LapNumber:  lap.LapNumber,
			LapTime:    lap.LapTime,
			TotalTime:  lap.TotalTime,
			RecordedAt: p.clock.Now().UTC(),
		}
		err := backoff.Retry(func() error {
			return p.store.InsertCarLap(ctx, row)
		}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(200*time.Millisecond), 2), ctx))
		if err != nil {
			metrics.LapsDroppedTotal.Inc()
			p.logger.Error().Err(err).
				Str(log.FieldCarNumber, lap.CarNumber).
				Int(log.FieldLapNumber, lap.LapNumber).
				Str("event", "processor.lap_dropped").Msg("lap row dropped after retries")
			continue
		}
		metrics.LapsPersistedTotal.Inc()

		if err := p.store.UpsertCarLastLap(ctx, row); err != nil {
			p.logger.Warn().Err(err).Str(log.FieldCarNumber, lap.CarNumber).
				Str("event", "processor.last_lap_upsert_failed").Msg("last-lap cache row stale")
		}
	}
}

func (p *Processor) persistFlags(ctx context.Context, changes []flagChange) {
	sessionID := p.monitor.SessionID()
	if sessionID == 0 || sessionID == state.ReservedSessionID {
		return
	}
	for _, change := range changes {
		err := p.store.InsertFlag(ctx, store.FlagLogRow{
			EventID:   p.cfg.EventID,
			SessionID: sessionID,
			Flag:      string(change.Flag),
			StartTime: p.clock.Now().UTC(),
		})
		if err != nil {
			p.logger.Warn().Err(err).Str(log.FieldFlag, string(change.Flag)).
				Str("event", "processor.flag_insert_failed").Msg("flag interval not persisted")
		}
	}
}

// snapshotLoop publishes the full state on a fixed cadence.
func (p *Processor) snapshotLoop(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.cfg.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			p.publishSnapshot(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// publishSnapshot serializes under the read lock, then writes the cache key
// and fans out both the v2 msgpack and legacy gzip-json forms.
func (p *Processor) publishSnapshot(ctx context.Context) {
	p.mu.RLock()
	clone := p.state.Clone()
	p.mu.RUnlock()

	packed, err := state.EncodeSnapshot(clone)
	if err != nil {
		p.logger.Error().Err(err).Str("event", "processor.snapshot_encode_failed").
			Msg("snapshot skipped")
		return
	}
	if err := p.bus.SetBytes(ctx, bus.SnapshotKey(p.cfg.EventID), packed, snapshotTTL); err != nil {
		p.logger.Warn().Err(err).Str("event", "processor.snapshot_cache_failed").
			Msg("snapshot cache write failed")
	}
	p.broadcastRaw(ctx, bus.EventGroup(p.cfg.EventID), bus.MethodReceiveFullStatus, packed)

	if legacy, err := state.EncodeLegacySnapshot(clone); err == nil {
		p.broadcastRaw(ctx, bus.EventGroup(p.cfg.EventID), bus.MethodReceiveMessage, legacy)
	}
	metrics.SnapshotsPublishedTotal.Inc()
}

// sweepLoop clears stale driver assignments on a jittered cadence.
func (p *Processor) sweepLoop(ctx context.Context) error {
	for {
		timer := p.clock.NewTimer(sweepInterval(p.cfg.EnricherSweep))
		select {
		case <-timer.Chan():
			p.runSweep(ctx)
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

func (p *Processor) runSweep(ctx context.Context) {
	p.mu.RLock()
	cars := append([]state.CarPosition(nil), p.state.CarPositions...)
	p.mu.RUnlock()

	patches := p.enricher.Sweep(ctx, cars)
	if len(patches) == 0 {
		return
	}

	p.mu.Lock()
	for _, patch := range patches {
		if car := p.state.Car(patch.Number); car != nil {
			car.DriverID = ""
			car.DriverName = ""
		}
	}
	p.mu.Unlock()

	p.broadcastCarPatches(ctx, patches)
}

// penaltyLoop folds control-log penalty changes into car state.
func (p *Processor) penaltyLoop(ctx context.Context) error {
	ticker := p.clock.NewTicker(penaltyPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			patches, err := p.pollPenalties(ctx)
			if err != nil {
				p.logger.Warn().Err(err).Str("event", "processor.penalty_poll_failed").
					Msg("penalty poll failed")
				continue
			}
			p.broadcastCarPatches(ctx, patches)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// controlLoop answers snapshot requests and watches for the shutdown signal.
func (p *Processor) controlLoop(ctx context.Context) error {
	sub := p.bus.Subscribe(ctx, bus.ChannelSendFullStatus, bus.ChannelShutdownSignal)
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return errors.New("control subscription closed")
			}
			switch msg.Channel {
			case bus.ChannelSendFullStatus:
				p.handleSnapshotRequest(ctx, msg.Payload)
			case bus.ChannelShutdownSignal:
				p.handleShutdownSignal(msg.Payload)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Processor) handleSnapshotRequest(ctx context.Context, payload string) {
	var req bus.SnapshotRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil || req.EventID != p.cfg.EventID {
		return
	}

	p.mu.RLock()
	clone := p.state.Clone()
	p.mu.RUnlock()

	if packed, err := state.EncodeSnapshot(clone); err == nil {
		p.sendDirect(ctx, req.ConnectionID, bus.MethodReceiveFullStatus, packed)
	}
	if legacy, err := state.EncodeLegacySnapshot(clone); err == nil {
		p.sendDirect(ctx, req.ConnectionID, bus.MethodReceiveMessage, legacy)
	}
}

func (p *Processor) handleShutdownSignal(payload string) {
	var eventIDs []string
	if err := json.Unmarshal([]byte(payload), &eventIDs); err != nil {
		p.logger.Warn().Err(err).Str("event", "processor.bad_shutdown_signal").
			Msg("ignoring malformed shutdown signal")
		return
	}
	for _, id := range eventIDs {
		if id == p.cfg.EventID {
			p.Drain()
			return
		}
	}
}

// finalizeSession persists the terminal state. Fired by the monitor.
func (p *Processor) finalizeSession(sessionID int, endTime time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p.mu.Lock()
	p.state.IsLive = false
	clone := p.state.Clone()
	p.mu.Unlock()

	stateJSON, err := json.Marshal(clone)
	if err != nil {
		p.logger.Error().Err(err).Int(log.FieldSessionID, sessionID).
			Str("event", "processor.finalize_marshal_failed").Msg("terminal state not serializable")
		return
	}
	controlLogs, found, err := p.bus.GetBytes(ctx, bus.ControlLogKey(p.cfg.EventID))
	if err != nil || !found {
		controlLogs = nil
	}

	start := p.sessionStart
	result := store.SessionResult{
		EventID:     p.cfg.EventID,
		SessionID:   sessionID,
		StartTime:   &start,
		State:       stateJSON,
		ControlLogs: controlLogs,
	}
	if err := p.store.FinalizeSession(ctx, result, endTime); err != nil {
		p.logger.Error().Err(err).Int(log.FieldSessionID, sessionID).
			Str("event", "processor.finalize_failed").Msg("session result not persisted")
		return
	}

	if p.OnFinalized != nil {
		p.OnFinalized(p.cfg.EventID, sessionID)
	}
}

// touchSession writes the debounced last_updated timestamp.
func (p *Processor) touchSession(sessionID int, at time.Time) {
	if sessionID == 0 || sessionID == state.ReservedSessionID {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.store.TouchSessionLastUpdated(ctx, p.cfg.EventID, sessionID, at); err != nil {
		p.logger.Warn().Err(err).Int(log.FieldSessionID, sessionID).
			Str("event", "processor.touch_failed").Msg("last_updated write failed")
	}
}
