// SPDX-License-Identifier: MIT

package bus

import "time"

// RelayConnectionEventEntry is one relay's heartbeat record, stored as a
// field of RelayConnectionsKey. Each relay owns exactly its own field.
type RelayConnectionEventEntry struct {
	ConnectionID string    `json:"connectionId"`
	EventID      string    `json:"eventId"`
	OrgID        string    `json:"orgId"`
	Timestamp    time.Time `json:"timestamp"`
	RelayVersion string    `json:"relayVersion"`
}

// StatusConnection records one subscribed UI connection of an event.
type StatusConnection struct {
	ConnectedTimestamp time.Time `json:"connectedTimestamp"`
	ClientID           string    `json:"clientId"`
	SubscribedEventID  string    `json:"subscribedEventId"`
}

// SessionChange announces a new timing session for an event. Appended to
// the event stream by the hub after org validation.
type SessionChange struct {
	EventID       string `json:"eventId"`
	SessionID     int    `json:"sessionId"`
	SessionName   string `json:"sessionName"`
	TZOffsetHours int    `json:"tzOffsetHours"`
}

// DriverInfo is the driver identity record published by the external
// identification system, both as a stream entry and under the driver keys.
type DriverInfo struct {
	EventID       string `json:"eventId"`
	CarNumber     string `json:"carNumber"`
	TransponderID uint32 `json:"transponderId"`
	DriverID      string `json:"driverId"`
	DriverName    string `json:"driverName"`
}

// SnapshotRequest asks the owning processor to push a full snapshot to one
// connection. Published on ChannelSendFullStatus.
type SnapshotRequest struct {
	EventID      string `json:"eventId"`
	ConnectionID string `json:"connectionId"`
}

// ControlLogRequest asks the aggregator to push a car's control log slice to
// one connection. Published on ChannelSendControlLog.
type ControlLogRequest struct {
	EventID      string `json:"eventId"`
	CarNumber    string `json:"carNumber"`
	ConnectionID string `json:"connectionId"`
}

// Broadcast is a hub-bound group fan-out envelope. Payload is the marshalled
// server-to-client argument for the named method.
type Broadcast struct {
	Group   string `json:"group"`
	Method  string `json:"method"`
	Payload []byte `json:"payload"`
	// PublishedAt orders patches against snapshots on the subscriber side.
	PublishedAt time.Time `json:"publishedAt"`
}

// Direct is a hub-bound envelope addressed to a single connection.
type Direct struct {
	ConnectionID string `json:"connectionId"`
	Method       string `json:"method"`
	Payload      []byte `json:"payload"`
}

// CarPenalty is the summarized control log penalty state of one car, stored
// in the per-event penalties hash.
type CarPenalty struct {
	Warnings int `json:"warnings"`
	Laps     int `json:"laps"`
}
