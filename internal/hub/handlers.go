// SPDX-License-Identifier: MIT

package hub

import (
	"context"
	"errors"
	"time"

	"github.com/pitwall-live/pitwall/internal/auth"
	"github.com/pitwall-live/pitwall/internal/bus"
	"github.com/pitwall-live/pitwall/internal/log"
	"github.com/pitwall-live/pitwall/internal/metrics"
	"github.com/pitwall-live/pitwall/internal/state"
	"github.com/pitwall-live/pitwall/internal/store"
)

// handleInvocation dispatches one client call. Authorization failures are
// logged and swallowed: a misbehaving client gets silence, not an oracle.
func (h *Hub) handleInvocation(ctx context.Context, c *Client, inv Invocation) {
	switch inv.Method {
	case MethodSendRMonitor:
		h.handleSendRMonitor(ctx, c, inv)
	case MethodSendSessionChange:
		h.handleSendSessionChange(ctx, c, inv)

	case MethodSubscribeToEvent, MethodSubscribeToEventV2:
		h.handleSubscribeToEvent(ctx, c, inv)
	case MethodUnsubscribeFromEvent, MethodUnsubscribeFromEventV2:
		h.handleUnsubscribeFromEvent(ctx, c, inv)

	case MethodSubscribeToControlLogs:
		h.handleSubscribeControlLogs(ctx, c, inv, "")
	case MethodUnsubscribeFromControlLogs:
		h.leaveGroup(c, bus.ControlLogGroup(inv.EventID))
	case MethodSubscribeToCarControlLogs:
		h.handleSubscribeControlLogs(ctx, c, inv, inv.Car)
	case MethodUnsubscribeFromCarControlLogs:
		h.leaveGroup(c, bus.CarControlLogGroup(inv.EventID, inv.Car))

	case MethodSubscribeToInCarDriverEvent, MethodSubscribeToInCarDriverEventV2:
		h.joinGroup(c, bus.InCarGroup(inv.EventID, inv.Car))
	case MethodUnsubscribeFromInCarDriverEvent, MethodUnsubscribeFromInCarDriverEventV2:
		h.leaveGroup(c, bus.InCarGroup(inv.EventID, inv.Car))

	default:
		c.logger.Warn().Str("method", inv.Method).
			Str("event", "hub.unknown_method").Msg("ignoring unknown invocation")
	}
}

// handleSendRMonitor appends a raw timing payload to the event stream.
// Ownership of the event is not verified on this path; the warning keeps the
// gap visible until relays carry event-scoped tokens.
func (h *Hub) handleSendRMonitor(ctx context.Context, c *Client, inv Invocation) {
	if !h.requireRelay(c, inv.Method) {
		return
	}
	if inv.EventID == "" || inv.Command == "" {
		return
	}
	if !c.limiter.Allow() {
		metrics.HubRateLimitedFramesTotal.Inc()
		return
	}
	c.warnOwnershipOnce()

	if err := h.bus.AppendTiming(ctx, inv.EventID, inv.SessionID, inv.Command); err != nil {
		c.logger.Error().Err(err).Str(log.FieldEventID, inv.EventID).
			Str("event", "hub.append_timing_failed").Msg("dropping timing frame")
		return
	}
	h.refreshRelayHeartbeat(ctx, c, inv.EventID)
}

// handleSendSessionChange validates ownership, creates the session row and
// fans the change into the event stream.
func (h *Hub) handleSendSessionChange(ctx context.Context, c *Client, inv Invocation) {
	if !h.requireRelay(c, inv.Method) {
		return
	}
	logger := c.logger.With().
		Str(log.FieldEventID, inv.EventID).
		Int(log.FieldSessionID, inv.SessionID).Logger()

	if inv.SessionID == state.ReservedSessionID {
		logger.Warn().Str("event", "hub.reserved_session_rejected").
			Msg("rejecting reserved session id at ingress")
		return
	}

	owns, err := h.store.OrgOwnsEvent(ctx, c.principal.OrgID, inv.EventID)
	if err != nil {
		logger.Error().Err(err).Str("event", "hub.ownership_check_failed").
			Msg("dropping session change")
		return
	}
	if !owns {
		logger.Warn().Str(log.FieldOrgID, c.principal.OrgID).
			Str("event", "hub.ownership_denied").Msg("relay org does not own event")
		return
	}

	now := time.Now().UTC()
	created, err := h.store.CreateSessionIfAbsent(ctx, store.Session{
		ID:            inv.SessionID,
		EventID:       inv.EventID,
		Name:          inv.SessionName,
		StartTime:     &now,
		LocalTZOffset: inv.TZOffsetHours,
	})
	if err != nil {
		if errors.Is(err, store.ErrReservedSessionID) {
			return
		}
		logger.Error().Err(err).Str("event", "hub.session_create_failed").
			Msg("dropping session change")
		return
	}
	if created {
		logger.Info().Str("event", "hub.session_created").Msg("new session row")
	}

	err = h.bus.AppendSessionChange(ctx, bus.SessionChange{
		EventID:       inv.EventID,
		SessionID:     inv.SessionID,
		SessionName:   inv.SessionName,
		TZOffsetHours: inv.TZOffsetHours,
	})
	if err != nil {
		logger.Error().Err(err).Str("event", "hub.append_session_change_failed").
			Msg("session change not streamed")
		return
	}
	h.refreshRelayHeartbeat(ctx, c, inv.EventID)
}

// handleSubscribeToEvent joins the event's fan-out group, records the
// subscription and asks the processor for an immediate full snapshot.
func (h *Hub) handleSubscribeToEvent(ctx context.Context, c *Client, inv Invocation) {
	if inv.EventID == "" {
		return
	}
	h.joinGroup(c, bus.EventGroup(inv.EventID))
	c.trackStatusEvent(inv.EventID)

	err := h.bus.AddStatusConnection(ctx, bus.StatusConnection{
		ConnectedTimestamp: time.Now().UTC(),
		ClientID:           c.id,
		SubscribedEventID:  inv.EventID,
	})
	if err != nil {
		c.logger.Warn().Err(err).Str(log.FieldEventID, inv.EventID).
			Str("event", "hub.status_connection_record_failed").
			Msg("subscription not recorded")
	}

	err = h.bus.Publish(ctx, bus.ChannelSendFullStatus, bus.SnapshotRequest{
		EventID:      inv.EventID,
		ConnectionID: c.id,
	})
	if err != nil {
		c.logger.Warn().Err(err).Str(log.FieldEventID, inv.EventID).
			Str("event", "hub.snapshot_request_failed").
			Msg("subscriber starts without a snapshot")
	}
}

func (h *Hub) handleUnsubscribeFromEvent(ctx context.Context, c *Client, inv Invocation) {
	if inv.EventID == "" {
		return
	}
	h.leaveGroup(c, bus.EventGroup(inv.EventID))
	c.untrackStatusEvent(inv.EventID)
	if err := h.bus.RemoveStatusConnection(ctx, inv.EventID, c.id); err != nil {
		c.logger.Warn().Err(err).Str(log.FieldEventID, inv.EventID).
			Str("event", "hub.status_connection_remove_failed").
			Msg("leaking status connection record")
	}
}

// handleSubscribeControlLogs joins either the event-wide or the per-car
// control log group and asks the aggregator for the current slice.
func (h *Hub) handleSubscribeControlLogs(ctx context.Context, c *Client, inv Invocation, car string) {
	if inv.EventID == "" {
		return
	}
	group := bus.ControlLogGroup(inv.EventID)
	if car != "" {
		group = bus.CarControlLogGroup(inv.EventID, car)
	}
	h.joinGroup(c, group)

	err := h.bus.Publish(ctx, bus.ChannelSendControlLog, bus.ControlLogRequest{
		EventID:      inv.EventID,
		CarNumber:    car,
		ConnectionID: c.id,
	})
	if err != nil {
		c.logger.Warn().Err(err).Str(log.FieldEventID, inv.EventID).
			Str("event", "hub.control_log_request_failed").
			Msg("subscriber starts without control log state")
	}
}

// requireRelay gates relay-only methods.
func (h *Hub) requireRelay(c *Client, method string) bool {
	if c.principal.Kind == auth.KindRelay {
		return true
	}
	metrics.IncAuthFailure("method_forbidden")
	c.logger.Warn().Str("method", method).
		Str("event", "hub.method_forbidden").Msg("relay-only method called by ui client")
	return false
}

func (h *Hub) refreshRelayHeartbeat(ctx context.Context, c *Client, eventID string) {
	now := time.Now().UTC()
	if !c.shouldRefreshHeartbeat(eventID, now) {
		return
	}
	err := h.bus.SetRelayHeartbeat(ctx, bus.RelayConnectionEventEntry{
		ConnectionID: c.id,
		EventID:      eventID,
		OrgID:        c.principal.OrgID,
		Timestamp:    now,
		RelayVersion: c.relayVersion,
	})
	if err != nil {
		c.logger.Warn().Err(err).Str(log.FieldEventID, eventID).
			Str("event", "hub.heartbeat_write_failed").Msg("relay heartbeat stale")
	}
}
