// SPDX-License-Identifier: MIT

package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/pitwall-live/pitwall/internal/auth"
	"github.com/pitwall-live/pitwall/internal/metrics"
)

const (
	// maxFrameSize bounds a single inbound WebSocket message. Timing frames
	// are small; anything bigger is a broken or hostile client.
	maxFrameSize = 64 * 1024

	// sendBufferSize is the per-client outbound queue. A full queue is a
	// strike, see below.
	sendBufferSize = 256

	// maxSendStrikes disconnects a client after this many dropped frames in a
	// row. A laggy viewer must never stall the fan-out loop.
	maxSendStrikes = 3

	// heartbeatRefresh bounds how often one relay connection rewrites its
	// per-event heartbeat record.
	heartbeatRefresh = 15 * time.Second
)

// Client is one authenticated WebSocket connection, relay or UI.
type Client struct {
	id        string
	principal auth.Principal
	conn      *websocket.Conn
	hub       *Hub
	logger    zerolog.Logger

	// relayVersion is the self-reported relay build, carried into heartbeat
	// records for fleet visibility. Empty for UI clients.
	relayVersion string

	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}

	// limiter bounds inbound timing frames. Relays only.
	limiter *rate.Limiter

	mu sync.Mutex
	// groups this connection has joined, for teardown.
	groups map[string]struct{}
	// events with a status-connection record owned by this connection.
	statusEvents map[string]struct{}
	// last heartbeat write per event fed by this relay.
	heartbeatAt     map[string]time.Time
	strikes         int
	warnedOwnership bool
}

func newClient(h *Hub, conn *websocket.Conn, p auth.Principal, id string) *Client {
	c := &Client{
		id:           id,
		principal:    p,
		conn:         conn,
		hub:          h,
		logger:       h.logger.With().Str("conn_id", id).Str("kind", string(p.Kind)).Logger(),
		send:         make(chan []byte, sendBufferSize),
		done:         make(chan struct{}),
		groups:       make(map[string]struct{}),
		statusEvents: make(map[string]struct{}),
		heartbeatAt:  make(map[string]time.Time),
	}
	if p.Kind == auth.KindRelay {
		c.limiter = rate.NewLimiter(rate.Limit(h.cfg.RelayFrameRate), h.cfg.RelayFrameBurst)
	}
	return c
}

// enqueue queues an outbound frame without blocking. Dropping counts as a
// strike; three strikes close the connection.
func (c *Client) enqueue(frame []byte) {
	select {
	case c.send <- frame:
		c.mu.Lock()
		c.strikes = 0
		c.mu.Unlock()
	default:
		c.mu.Lock()
		c.strikes++
		strikes := c.strikes
		c.mu.Unlock()
		if strikes >= maxSendStrikes {
			c.logger.Warn().Str("event", "hub.slow_client_disconnect").
				Msg("closing connection that cannot keep up")
			metrics.HubSlowClientDisconnectsTotal.Inc()
			c.close()
		}
	}
}

// sendEvent marshals and queues a server-to-client event.
func (c *Client) sendEvent(method string, payload []byte) {
	frame, err := encodeServerMessage(method, payload)
	if err != nil {
		c.logger.Error().Err(err).Str("method", method).
			Str("event", "hub.encode_failed").Msg("dropping outbound event")
		return
	}
	metrics.IncHubMessage("out", method)
	c.enqueue(frame)
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// writePump owns all writes on the connection: queued frames plus keepalive
// pings. Exits when the client closes.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// readPump reads invocations until the connection dies, then tears down the
// client's hub-side records.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(ctx, c)
		c.close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Str("event", "hub.read_failed").Msg("connection closed")
			}
			return
		}

		var inv Invocation
		if err := json.Unmarshal(data, &inv); err != nil {
			c.logger.Warn().Err(err).Str("event", "hub.bad_invocation").
				Msg("dropping unparseable invocation")
			continue
		}
		metrics.IncHubMessage("in", inv.Method)
		c.hub.handleInvocation(ctx, c, inv)
	}
}

// shouldRefreshHeartbeat reports whether this relay connection is due to
// rewrite its heartbeat record for the event.
func (c *Client) shouldRefreshHeartbeat(eventID string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.heartbeatAt[eventID]
	if ok && now.Sub(last) < heartbeatRefresh {
		return false
	}
	c.heartbeatAt[eventID] = now
	return true
}

// warnOwnershipOnce logs the missing org check on the raw timing path once
// per connection.
func (c *Client) warnOwnershipOnce() {
	c.mu.Lock()
	warned := c.warnedOwnership
	c.warnedOwnership = true
	c.mu.Unlock()
	if !warned {
		c.logger.Warn().Str("event", "hub.rmonitor_ownership_unchecked").
			Msg("SendRMonitor accepts frames without verifying event ownership")
	}
}

func (c *Client) trackGroup(group string) {
	c.mu.Lock()
	c.groups[group] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) untrackGroup(group string) {
	c.mu.Lock()
	delete(c.groups, group)
	c.mu.Unlock()
}

func (c *Client) trackStatusEvent(eventID string) {
	c.mu.Lock()
	c.statusEvents[eventID] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) untrackStatusEvent(eventID string) {
	c.mu.Lock()
	delete(c.statusEvents, eventID)
	c.mu.Unlock()
}

func (c *Client) snapshotTeardown() (groups, statusEvents, relayEvents []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for g := range c.groups {
		groups = append(groups, g)
	}
	for e := range c.statusEvents {
		statusEvents = append(statusEvents, e)
	}
	for e := range c.heartbeatAt {
		relayEvents = append(relayEvents, e)
	}
	return groups, statusEvents, relayEvents
}
