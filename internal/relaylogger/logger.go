// SPDX-License-Identifier: MIT

// Package relaylogger persists every raw timing frame an event's relays send,
// verbatim, for replay and archival. It tails the same per-event stream the
// processor consumes, through its own consumer group, so neither reader can
// starve the other.
package relaylogger

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/pitwall-live/pitwall/internal/bus"
	"github.com/pitwall-live/pitwall/internal/config"
	"github.com/pitwall-live/pitwall/internal/log"
	"github.com/pitwall-live/pitwall/internal/metrics"
	"github.com/pitwall-live/pitwall/internal/store"
)

// readBlock bounds one blocking stream read so flush deadlines are checked
// at least this often.
const readBlock = time.Second

// Store is the slice of the persistence layer the logger writes.
type Store interface {
	InsertRelayLogs(ctx context.Context, logs []store.RelayLog) error
}

// Logger tails one event stream and batches raw frames into the database.
type Logger struct {
	cfg    config.RelayLogger
	bus    *bus.Bus
	store  Store
	logger zerolog.Logger
	clock  clockwork.Clock

	buf       []store.RelayLog
	pending   []string
	lastFlush time.Time
}

// New builds a logger for one event.
func New(cfg config.RelayLogger, b *bus.Bus, st Store, clock clockwork.Clock) *Logger {
	return &Logger{
		cfg:    cfg,
		bus:    b,
		store:  st,
		logger: log.WithComponent("relaylogger").With().Str(log.FieldEventID, cfg.EventID).Logger(),
		clock:  clock,
	}
}

// Run consumes the event stream until ctx is cancelled, flushing buffered
// rows whenever the row or time threshold is hit. Entries are acknowledged
// only after their rows are committed, so a crash replays them.
func (l *Logger) Run(ctx context.Context) error {
	consumer := l.bus.NewConsumer(l.cfg.EventID, bus.GroupLogger, "logger-"+l.cfg.EventID)
	if err := consumer.Ensure(ctx); err != nil {
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0

	l.lastFlush = l.clock.Now()
	for {
		if ctx.Err() != nil {
			l.flush(context.WithoutCancel(ctx), consumer, "shutdown")
			return ctx.Err()
		}

		entries, err := consumer.Read(ctx, int64(l.cfg.FlushRows), readBlock)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			wait := policy.NextBackOff()
			l.logger.Warn().Err(err).Dur("retry_in", wait).
				Str("event", "relaylogger.stream_reconnect").Msg("stream read failed")
			metrics.BusReconnectsTotal.Inc()
			select {
			case <-l.clock.After(wait):
			case <-ctx.Done():
			}
			_ = consumer.Ensure(ctx)
			continue
		}
		policy.Reset()

		l.collect(entries)

		switch {
		case len(l.buf) >= l.cfg.FlushRows:
			l.flush(ctx, consumer, "rows")
		case len(l.pending) > 0 && l.clock.Now().Sub(l.lastFlush) >= l.cfg.FlushInterval:
			l.flush(ctx, consumer, "interval")
		}
	}
}

// collect buffers the timing entries of one batch. Non-timing entries carry
// nothing to log and are acknowledged with the batch they arrived in.
func (l *Logger) collect(entries []bus.StreamEntry) {
	now := l.clock.Now().UTC()
	for _, e := range entries {
		l.pending = append(l.pending, e.ID)
		if e.Kind != bus.KindTiming {
			continue
		}
		l.buf = append(l.buf, store.RelayLog{
			EventID:    l.cfg.EventID,
			SessionID:  e.SessionID,
			Payload:    e.Raw,
			ReceivedAt: now,
		})
	}
}

// flush writes the buffered rows and acknowledges everything collected since
// the last flush. Insert failures are retried briefly; a batch that still
// fails is dropped so one poisoned row cannot wedge the stream.
func (l *Logger) flush(ctx context.Context, consumer *bus.Consumer, trigger string) {
	if len(l.pending) == 0 {
		return
	}

	rows := len(l.buf)
	if rows > 0 {
		err := backoff.Retry(func() error {
			return l.store.InsertRelayLogs(ctx, l.buf)
		}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(200*time.Millisecond), 2), ctx))
		if err != nil {
			l.logger.Error().Err(err).Int("rows", rows).
				Str("event", "relaylogger.flush_failed").Msg("dropping relay log batch")
			metrics.IncBusDropReason("relay_logs", "insert_failed")
		} else {
			metrics.RelayLogRowsPersistedTotal.Add(float64(rows))
		}
	}
	metrics.RelayLogFlushesTotal.WithLabelValues(trigger).Inc()

	if err := consumer.Ack(ctx, l.pending...); err != nil {
		l.logger.Warn().Err(err).Str("event", "relaylogger.ack_failed").Msg("batch ack failed")
	}
	l.buf = l.buf[:0]
	l.pending = l.pending[:0]
	l.lastFlush = l.clock.Now()
}
