// SPDX-License-Identifier: MIT

package bus

import (
	"context"
	"encoding/json"
	"fmt"
)

// SetRelayHeartbeat writes a relay's heartbeat record. Each relay owns its
// own field, so concurrent relays never clobber each other.
func (b *Bus) SetRelayHeartbeat(ctx context.Context, entry RelayConnectionEventEntry) error {
	return b.HSetJSON(ctx, RelayConnectionsKey, RelayHeartbeatField(entry.EventID), entry)
}

// RelayHeartbeats returns every current relay heartbeat record. Entries that
// fail to unmarshal are skipped with a warning; a poisoned field must not
// blind the orchestrator to the healthy ones.
func (b *Bus) RelayHeartbeats(ctx context.Context) ([]RelayConnectionEventEntry, error) {
	fields, err := b.HGetAll(ctx, RelayConnectionsKey)
	if err != nil {
		return nil, err
	}
	entries := make([]RelayConnectionEventEntry, 0, len(fields))
	for field, raw := range fields {
		var entry RelayConnectionEventEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			b.logger.Warn().Str("field", field).Err(err).
				Str("event", "bus.heartbeat_unmarshal_failed").
				Msg("skipping malformed relay heartbeat entry")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// DeleteRelayHeartbeat removes an event's relay heartbeat record.
func (b *Bus) DeleteRelayHeartbeat(ctx context.Context, eventID string) error {
	return b.HDelete(ctx, RelayConnectionsKey, RelayHeartbeatField(eventID))
}

// AddStatusConnection records a UI connection's subscription to an event.
func (b *Bus) AddStatusConnection(ctx context.Context, conn StatusConnection) error {
	if conn.SubscribedEventID == "" {
		return fmt.Errorf("status connection without event id")
	}
	return b.HSetJSON(ctx, StatusConnectionsKey(conn.SubscribedEventID), conn.ClientID, conn)
}

// RemoveStatusConnection removes a UI connection record.
func (b *Bus) RemoveStatusConnection(ctx context.Context, eventID, clientID string) error {
	return b.HDelete(ctx, StatusConnectionsKey(eventID), clientID)
}

// SetDriverInfo writes both driver identity keys for a car. Written by the
// external identification collaborator; exposed here for tests and tooling.
func (b *Bus) SetDriverInfo(ctx context.Context, info DriverInfo) error {
	if info.CarNumber != "" {
		if err := b.SetJSON(ctx, DriverCarKey(info.EventID, info.CarNumber), info, 0); err != nil {
			return err
		}
	}
	if info.TransponderID > 0 {
		if err := b.SetJSON(ctx, DriverTransponderKey(info.TransponderID), info, 0); err != nil {
			return err
		}
	}
	return nil
}

// DriverByCar resolves driver identity by (event, car number).
func (b *Bus) DriverByCar(ctx context.Context, eventID, carNumber string) (DriverInfo, bool, error) {
	var info DriverInfo
	ok, err := b.GetJSON(ctx, DriverCarKey(eventID, carNumber), &info)
	return info, ok, err
}

// DriverByTransponder resolves driver identity by transponder id.
func (b *Bus) DriverByTransponder(ctx context.Context, transponderID uint32) (DriverInfo, bool, error) {
	var info DriverInfo
	ok, err := b.GetJSON(ctx, DriverTransponderKey(transponderID), &info)
	return info, ok, err
}
