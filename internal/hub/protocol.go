// SPDX-License-Identifier: MIT

// Package hub is the push channel between relays, UI clients and the
// per-event workers: an authenticated duplex WebSocket under /status,
// group-based fan-out, and a Redis backplane so any hub instance can
// deliver any worker's output.
package hub

import (
	"encoding/json"

	"github.com/pitwall-live/pitwall/internal/bus"
)

// Client-to-server methods.
const (
	MethodSendRMonitor      = "SendRMonitor"
	MethodSendSessionChange = "SendSessionChange"

	MethodSubscribeToEvent       = "SubscribeToEvent"
	MethodSubscribeToEventV2     = "SubscribeToEventV2"
	MethodUnsubscribeFromEvent   = "UnsubscribeFromEvent"
	MethodUnsubscribeFromEventV2 = "UnsubscribeFromEventV2"

	MethodSubscribeToControlLogs        = "SubscribeToControlLogs"
	MethodUnsubscribeFromControlLogs    = "UnsubscribeFromControlLogs"
	MethodSubscribeToCarControlLogs     = "SubscribeToCarControlLogs"
	MethodUnsubscribeFromCarControlLogs = "UnsubscribeFromCarControlLogs"

	MethodSubscribeToInCarDriverEvent       = "SubscribeToInCarDriverEvent"
	MethodSubscribeToInCarDriverEventV2     = "SubscribeToInCarDriverEventV2"
	MethodUnsubscribeFromInCarDriverEvent   = "UnsubscribeFromInCarDriverEvent"
	MethodUnsubscribeFromInCarDriverEventV2 = "UnsubscribeFromInCarDriverEventV2"
)

// Server-to-client events. The names live in the bus package because the
// workers publishing through the backplane pick them.
const (
	EventReceiveSessionPatch = bus.MethodReceiveSessionPatch
	EventReceiveCarPatches   = bus.MethodReceiveCarPatches
	EventReceiveReset        = bus.MethodReceiveReset
	EventReceiveControlLog   = bus.MethodReceiveControlLog
	// EventReceiveFullStatus carries the MessagePack full snapshot to v2
	// clients, on subscribe and on the snapshot cadence.
	EventReceiveFullStatus = bus.MethodReceiveFullStatus
	// EventReceiveMessage is the legacy v1 gzip-json snapshot payload.
	EventReceiveMessage = bus.MethodReceiveMessage
)

// Invocation is a client-to-server call. One envelope shape for every
// method; unused fields stay empty.
type Invocation struct {
	Method        string `json:"method"`
	EventID       string `json:"eventId,omitempty"`
	SessionID     int    `json:"sessionId,omitempty"`
	SessionName   string `json:"sessionName,omitempty"`
	TZOffsetHours int    `json:"tzOffsetHours,omitempty"`
	Command       string `json:"command,omitempty"`
	Car           string `json:"car,omitempty"`
}

// ServerMessage is a server-to-client event envelope. Payload is the
// method-specific argument, already marshalled.
type ServerMessage struct {
	Method  string          `json:"method"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func encodeServerMessage(method string, payload []byte) ([]byte, error) {
	return json.Marshal(ServerMessage{Method: method, Payload: payload})
}
