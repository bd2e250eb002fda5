// SPDX-License-Identifier: MIT

package hub

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pitwall-live/pitwall/internal/bus"
	"github.com/pitwall-live/pitwall/internal/metrics"
)

// RunBackplane consumes the shared fan-out channels and delivers to local
// connections. Blocks until ctx is cancelled; the subscription is re-opened
// with backoff after transport errors.
func (h *Hub) RunBackplane(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0

	for {
		err := h.consumeBackplane(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wait := policy.NextBackOff()
		h.logger.Warn().Err(err).Dur("retry_in", wait).
			Str("event", "hub.backplane_reconnect").Msg("backplane subscription lost")
		metrics.BusReconnectsTotal.Inc()

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *Hub) consumeBackplane(ctx context.Context) error {
	sub := h.bus.Subscribe(ctx, bus.ChannelStatusBroadcast, bus.ChannelStatusDirect)
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return errors.New("backplane channel closed")
			}
			switch msg.Channel {
			case bus.ChannelStatusBroadcast:
				var b bus.Broadcast
				if err := json.Unmarshal([]byte(msg.Payload), &b); err != nil {
					h.logger.Warn().Err(err).Str("event", "hub.backplane_bad_broadcast").
						Msg("dropping malformed broadcast envelope")
					continue
				}
				h.broadcastToGroup(b.Group, b.Method, b.Payload)
			case bus.ChannelStatusDirect:
				var d bus.Direct
				if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
					h.logger.Warn().Err(err).Str("event", "hub.backplane_bad_direct").
						Msg("dropping malformed direct envelope")
					continue
				}
				h.sendToConnection(d.ConnectionID, d.Method, d.Payload)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
