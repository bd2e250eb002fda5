// SPDX-License-Identifier: MIT

// Package bus is the Redis backplane shared by all pitwall services: the
// per-event timing streams, the pub/sub channels between hub and workers,
// and the hash/set surfaces for heartbeats, driver identity and control
// logs. Key shapes live here so every writer and reader agrees on them.
package bus

import "fmt"

// Pub/sub channels.
const (
	// ChannelSendFullStatus carries snapshot requests: a hub asks the owning
	// processor to push a full snapshot to one connection id.
	ChannelSendFullStatus = "SEND_FULL_STATUS"

	// ChannelSendControlLog carries on-demand control log requests toward the
	// per-event aggregator.
	ChannelSendControlLog = "SEND_CONTROL_LOG"

	// ChannelShutdownSignal carries a JSON array of event ids being shut
	// down. Processors subscribe and drain when their event is named.
	ChannelShutdownSignal = "EVENT_SHUTDOWN_SIGNAL"

	// ChannelStatusBroadcast fans processor output out to every hub
	// instance, which relays it to its local subscriber groups.
	ChannelStatusBroadcast = "status:broadcast"

	// ChannelStatusDirect carries payloads addressed to one connection id.
	ChannelStatusDirect = "status:direct"
)

// Server-to-client method names carried in Broadcast/Direct envelopes. The
// hub delivers them verbatim; workers choose them when publishing.
const (
	MethodReceiveSessionPatch = "ReceiveSessionPatch"
	MethodReceiveCarPatches   = "ReceiveCarPatches"
	MethodReceiveReset        = "ReceiveReset"
	MethodReceiveControlLog   = "ReceiveControlLog"
	MethodReceiveFullStatus   = "ReceiveFullStatus"
	// MethodReceiveMessage is the legacy v1 snapshot (gzip-json).
	MethodReceiveMessage = "ReceiveMessage"
)

// Stream consumer group names. Each group holds its own cursor on the
// per-event stream.
const (
	GroupProcessor = "processor"
	GroupLogger    = "logger"
)

// RelayConnectionsKey is the hash of relay heartbeat entries, one field per
// event (see RelayHeartbeatField).
const RelayConnectionsKey = "RELAY_EVENT_CONNECTIONS"

// RelayHeartbeatField is the field name inside RelayConnectionsKey for one
// event's relay heartbeat record.
func RelayHeartbeatField(eventID string) string {
	return "relay-heartbeat-" + eventID
}

// EventStreamKey is the per-event append-only stream of timing input.
func EventStreamKey(eventID string) string {
	return "event-stream-" + eventID
}

// Stream entry field names. Every stream entry carries exactly one of these.
const (
	FieldSessionChange = "session-change"
	FieldDriverInfo    = "driver-info"
	FieldReset         = "reset"
)

// RMonitorStreamField names the field holding a raw timing payload for one
// session of an event.
func RMonitorStreamField(eventID string, sessionID int) string {
	return fmt.Sprintf("rmon-%s-%d", eventID, sessionID)
}

// DriverCarKey holds the driver identity JSON for a car at an event.
func DriverCarKey(eventID, carNumber string) string {
	return fmt.Sprintf("driver-evt-%s-car-%s", eventID, carNumber)
}

// DriverTransponderKey holds the driver identity JSON keyed by transponder.
func DriverTransponderKey(transponderID uint32) string {
	return fmt.Sprintf("driver-transponder-%d", transponderID)
}

// ControlLogKey holds the full control log snapshot for an event.
func ControlLogKey(eventID string) string {
	return "control-log-evt-" + eventID
}

// ControlLogCarKey holds one car's slice of the control log.
func ControlLogCarKey(eventID, carNumber string) string {
	return fmt.Sprintf("control-log-evt-%s-car-%s", eventID, carNumber)
}

// ControlLogCarKeyPattern matches every per-car control log key of an event.
// Used by the aggregator's GC scan.
func ControlLogCarKeyPattern(eventID string) string {
	return fmt.Sprintf("control-log-evt-%s-car-*", eventID)
}

// ControlLogPenaltiesKey is the per-event hash of car number to summarized
// (warnings, laps) penalty JSON.
func ControlLogPenaltiesKey(eventID string) string {
	return fmt.Sprintf("control-log-evt-%s-penalties", eventID)
}

// StatusConnectionsKey is the per-event hash of subscribed UI connections,
// field = connection id, value = StatusConnection JSON.
func StatusConnectionsKey(eventID string) string {
	return "status-connections-evt-" + eventID
}

// SnapshotKey holds the latest full SessionState snapshot (MessagePack).
func SnapshotKey(eventID string) string {
	return "full-status-evt-" + eventID
}

// Broadcast group names shared by hub and workers.

// EventGroup is the main subscriber group of an event.
func EventGroup(eventID string) string { return eventID }

// ControlLogGroup receives full-event control log updates.
func ControlLogGroup(eventID string) string { return eventID + "-cl" }

// CarControlLogGroup receives one car's control log updates.
func CarControlLogGroup(eventID, carNumber string) string {
	return fmt.Sprintf("%s-car-%s", eventID, carNumber)
}

// InCarGroup receives one car's position patches for driver HUD clients.
func InCarGroup(eventID, carNumber string) string {
	return fmt.Sprintf("evt-%s-incar-%s", eventID, carNumber)
}
