// SPDX-License-Identifier: MIT

package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pitwall-live/pitwall/internal/metrics"
)

// EntryKind tags the decoded content of one stream entry.
type EntryKind int

const (
	KindUnknown EntryKind = iota
	// KindTiming is a raw timing payload (RMonitor lines or an encoded
	// Multiloop frame) for one session.
	KindTiming
	KindSessionChange
	KindDriverInfo
	KindReset
)

// StreamEntry is one decoded entry of a per-event stream. Exactly one of the
// payload fields is meaningful, selected by Kind.
type StreamEntry struct {
	ID   string
	Kind EntryKind

	// SessionID accompanies KindTiming and KindReset.
	SessionID int
	// Raw is the timing payload for KindTiming.
	Raw string

	SessionChange SessionChange
	DriverInfo    DriverInfo
}

// AppendTiming appends a raw timing payload to the event stream.
func (b *Bus) AppendTiming(ctx context.Context, eventID string, sessionID int, payload string) error {
	err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: EventStreamKey(eventID),
		Values: map[string]any{RMonitorStreamField(eventID, sessionID): payload},
	}).Err()
	metrics.IncBusPublish("stream", err)
	if err != nil {
		return fmt.Errorf("append timing to %s: %w", eventID, err)
	}
	return nil
}

// AppendSessionChange appends a session-change entry to the event stream.
func (b *Bus) AppendSessionChange(ctx context.Context, change SessionChange) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal session change: %w", err)
	}
	err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: EventStreamKey(change.EventID),
		Values: map[string]any{FieldSessionChange: string(data)},
	}).Err()
	metrics.IncBusPublish("stream", err)
	if err != nil {
		return fmt.Errorf("append session change to %s: %w", change.EventID, err)
	}
	return nil
}

// AppendDriverInfo appends a driver-info entry to the event stream.
func (b *Bus) AppendDriverInfo(ctx context.Context, info DriverInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal driver info: %w", err)
	}
	err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: EventStreamKey(info.EventID),
		Values: map[string]any{FieldDriverInfo: string(data)},
	}).Err()
	metrics.IncBusPublish("stream", err)
	if err != nil {
		return fmt.Errorf("append driver info to %s: %w", info.EventID, err)
	}
	return nil
}

// AppendReset appends an explicit reset command to the event stream.
func (b *Bus) AppendReset(ctx context.Context, eventID string, sessionID int) error {
	err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: EventStreamKey(eventID),
		Values: map[string]any{FieldReset: strconv.Itoa(sessionID)},
	}).Err()
	metrics.IncBusPublish("stream", err)
	if err != nil {
		return fmt.Errorf("append reset to %s: %w", eventID, err)
	}
	return nil
}

// Consumer reads one event stream through a consumer group, preserving the
// stream's total order. One logical reader per group.
type Consumer struct {
	bus    *Bus
	stream string
	group  string
	name   string
}

// NewConsumer creates a consumer bound to an event stream and group.
func (b *Bus) NewConsumer(eventID, group, name string) *Consumer {
	return &Consumer{
		bus:    b,
		stream: EventStreamKey(eventID),
		group:  group,
		name:   name,
	}
}

// Ensure creates the consumer group (and the stream) if missing. Safe to
// call on every start.
func (c *Consumer) Ensure(ctx context.Context) error {
	err := c.bus.rdb.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", c.group, c.stream, err)
	}
	return nil
}

// Read blocks for up to block and returns at most count entries in arrival
// order. A nil slice with nil error means the block timed out.
func (c *Consumer) Read(ctx context.Context, count int64, block time.Duration) ([]StreamEntry, error) {
	res, err := c.bus.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s as %s: %w", c.stream, c.group, err)
	}

	var entries []StreamEntry
	for _, stream := range res {
		for _, msg := range stream.Messages {
			entries = append(entries, classify(msg))
		}
	}
	metrics.IncBusConsume(c.group, len(entries))
	return entries, nil
}

// PendingCount reports how many entries a group has read but not yet
// acknowledged on an event stream.
func (b *Bus) PendingCount(ctx context.Context, eventID, group string) (int64, error) {
	res, err := b.rdb.XPending(ctx, EventStreamKey(eventID), group).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("pending on %s for %s: %w", eventID, group, err)
	}
	return res.Count, nil
}

// Ack acknowledges processed entries.
func (c *Consumer) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.bus.rdb.XAck(ctx, c.stream, c.group, ids...).Err(); err != nil {
		return fmt.Errorf("ack on %s: %w", c.stream, err)
	}
	return nil
}

// classify maps one raw stream message onto the entry union. Malformed
// entries come back as KindUnknown; the caller counts and skips them.
func classify(msg redis.XMessage) StreamEntry {
	entry := StreamEntry{ID: msg.ID}
	for field, value := range msg.Values {
		raw, _ := value.(string)
		switch {
		case strings.HasPrefix(field, "rmon-"):
			sessionID, ok := sessionIDFromField(field)
			if !ok {
				return entry
			}
			entry.Kind = KindTiming
			entry.SessionID = sessionID
			entry.Raw = raw
			return entry
		case field == FieldSessionChange:
			if err := json.Unmarshal([]byte(raw), &entry.SessionChange); err != nil {
				return entry
			}
			entry.Kind = KindSessionChange
			return entry
		case field == FieldDriverInfo:
			if err := json.Unmarshal([]byte(raw), &entry.DriverInfo); err != nil {
				return entry
			}
			entry.Kind = KindDriverInfo
			return entry
		case field == FieldReset:
			sessionID, err := strconv.Atoi(raw)
			if err != nil {
				return entry
			}
			entry.Kind = KindReset
			entry.SessionID = sessionID
			return entry
		}
	}
	return entry
}

// sessionIDFromField extracts the trailing session id from an
// "rmon-{event}-{session}" field name.
func sessionIDFromField(field string) (int, bool) {
	idx := strings.LastIndex(field, "-")
	if idx < 0 || idx == len(field)-1 {
		return 0, false
	}
	id, err := strconv.Atoi(field[idx+1:])
	if err != nil {
		return 0, false
	}
	return id, true
}
