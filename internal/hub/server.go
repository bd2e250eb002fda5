// SPDX-License-Identifier: MIT

package hub

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pitwall-live/pitwall/internal/auth"
	"github.com/pitwall-live/pitwall/internal/bus"
	"github.com/pitwall-live/pitwall/internal/log"
	"github.com/pitwall-live/pitwall/internal/metrics"
)

// Router builds the hub's HTTP surface: the WebSocket endpoint and the
// small REST API beside it.
func (h *Hub) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/status", h.serveWS)

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(h.cfg.APIRequestLimit, time.Minute))
		r.Get("/status/api/events/{eventID}/snapshot", h.serveSnapshot)
	})

	return r
}

func (h *Hub) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
}

// checkOrigin matches the Origin header against the configured allow list.
// No Origin header (native relay clients) always passes.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.cfg.AllowedOrigins) == 0 {
		// Same-origin only.
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// serveWS authenticates and upgrades one connection, then runs its pumps.
func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	up := h.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.Warn().Err(err).Str("event", "hub.upgrade_failed").Msg("websocket upgrade rejected")
		return
	}

	c := newClient(h, conn, principal, uuid.NewString())
	c.relayVersion = r.Header.Get("X-Relay-Version")
	h.register(c)

	go c.writePump()
	// The request context dies when this handler returns, but the pumps live
	// for the whole connection.
	go c.readPump(context.WithoutCancel(r.Context()))
}

func (h *Hub) authenticate(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	token, err := auth.TokenFromRequest(r)
	if err != nil {
		metrics.IncAuthFailure("missing_token")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return auth.Principal{}, false
	}
	claims, err := h.verifier.Verify(token)
	if err != nil {
		metrics.IncAuthFailure("invalid_token")
		h.logger.Warn().Err(err).Str("event", "hub.token_rejected").Msg("bearer token rejected")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return auth.Principal{}, false
	}
	principal, err := auth.PrincipalFromClaims(claims)
	if err != nil {
		metrics.IncAuthFailure("no_identity")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return auth.Principal{}, false
	}
	return principal, true
}

// serveSnapshot returns the latest full state snapshot of an event, straight
// from the backplane cache. MessagePack body; 404 while no processor has
// published one.
func (h *Hub) serveSnapshot(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if _, ok := h.authenticate(w, r); !ok {
		return
	}

	data, found, err := h.bus.GetBytes(r.Context(), bus.SnapshotKey(eventID))
	if err != nil {
		h.logger.Error().Err(err).Str(log.FieldEventID, eventID).
			Str("event", "hub.snapshot_read_failed").Msg("snapshot lookup failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "no snapshot", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/msgpack")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}
