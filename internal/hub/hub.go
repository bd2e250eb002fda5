// SPDX-License-Identifier: MIT

package hub

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pitwall-live/pitwall/internal/auth"
	"github.com/pitwall-live/pitwall/internal/bus"
	"github.com/pitwall-live/pitwall/internal/config"
	"github.com/pitwall-live/pitwall/internal/log"
	"github.com/pitwall-live/pitwall/internal/metrics"
	"github.com/pitwall-live/pitwall/internal/store"
)

// Store is the slice of the persistence layer the hub touches.
type Store interface {
	OrgOwnsEvent(ctx context.Context, orgID, eventID string) (bool, error)
	CreateSessionIfAbsent(ctx context.Context, sess store.Session) (bool, error)
}

// Hub tracks local connections and their group memberships, and bridges the
// Redis backplane to them. Multiple hub instances share the backplane; each
// delivers only to its own sockets.
type Hub struct {
	cfg      config.Hub
	bus      *bus.Bus
	store    Store
	verifier *auth.Verifier
	logger   zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
	groups  map[string]map[string]*Client
}

// New builds a hub. The verifier is derived from the configured secret or
// public key file.
func New(cfg config.Hub, b *bus.Bus, st Store) (*Hub, error) {
	var (
		verifier *auth.Verifier
		err      error
	)
	if cfg.JWTPublicKeyFile != "" {
		verifier, err = auth.NewRS256FromFile(cfg.JWTPublicKeyFile)
		if err != nil {
			return nil, err
		}
	} else {
		verifier = auth.NewHS256(cfg.JWTSecret)
	}

	return &Hub{
		cfg:      cfg,
		bus:      b,
		store:    st,
		verifier: verifier,
		logger:   log.WithComponent("hub"),
		clients:  make(map[string]*Client),
		groups:   make(map[string]map[string]*Client),
	}, nil
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	metrics.HubConnections.WithLabelValues(string(c.principal.Kind)).Inc()
	c.logger.Info().Str("event", "hub.connected").Msg("connection registered")
}

// unregister removes a client from every local group and deletes its
// backplane records. Called exactly once, from readPump teardown.
func (h *Hub) unregister(ctx context.Context, c *Client) {
	groups, statusEvents, relayEvents := c.snapshotTeardown()

	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	for _, g := range groups {
		h.removeFromGroupLocked(g, c.id)
	}
	h.mu.Unlock()

	for _, eventID := range statusEvents {
		if err := h.bus.RemoveStatusConnection(ctx, eventID, c.id); err != nil {
			c.logger.Warn().Err(err).Str(log.FieldEventID, eventID).
				Str("event", "hub.status_connection_remove_failed").
				Msg("leaking status connection record")
		}
	}
	// A graceful relay disconnect releases the heartbeat immediately instead
	// of waiting out the orchestrator timeout.
	for _, eventID := range relayEvents {
		if err := h.bus.DeleteRelayHeartbeat(ctx, eventID); err != nil {
			c.logger.Warn().Err(err).Str(log.FieldEventID, eventID).
				Str("event", "hub.heartbeat_delete_failed").
				Msg("leaking relay heartbeat record")
		}
	}

	metrics.HubConnections.WithLabelValues(string(c.principal.Kind)).Dec()
	c.logger.Info().Str("event", "hub.disconnected").Msg("connection unregistered")
}

func (h *Hub) joinGroup(c *Client, group string) {
	h.mu.Lock()
	members, ok := h.groups[group]
	if !ok {
		members = make(map[string]*Client)
		h.groups[group] = members
	}
	members[c.id] = c
	h.mu.Unlock()
	c.trackGroup(group)
}

func (h *Hub) leaveGroup(c *Client, group string) {
	h.mu.Lock()
	h.removeFromGroupLocked(group, c.id)
	h.mu.Unlock()
	c.untrackGroup(group)
}

func (h *Hub) removeFromGroupLocked(group, clientID string) {
	members, ok := h.groups[group]
	if !ok {
		return
	}
	delete(members, clientID)
	if len(members) == 0 {
		delete(h.groups, group)
	}
}

// broadcastToGroup delivers one event to every local member of a group.
func (h *Hub) broadcastToGroup(group, method string, payload []byte) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.groups[group]))
	for _, c := range h.groups[group] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		c.sendEvent(method, payload)
	}
}

// sendToConnection delivers one event to a single local connection, if it is
// connected here.
func (h *Hub) sendToConnection(connID, method string, payload []byte) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if ok {
		c.sendEvent(method, payload)
	}
}

// localGroupSize is used by tests.
func (h *Hub) localGroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}
