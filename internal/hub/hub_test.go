// SPDX-License-Identifier: MIT

package hub

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitwall-live/pitwall/internal/auth"
	"github.com/pitwall-live/pitwall/internal/bus"
	"github.com/pitwall-live/pitwall/internal/config"
	"github.com/pitwall-live/pitwall/internal/state"
	"github.com/pitwall-live/pitwall/internal/store"
)

const testJWTSecret = "hub-test-secret"

type fakeStore struct {
	owns     bool
	ownsErr  error
	sessions []store.Session
}

func (f *fakeStore) OrgOwnsEvent(_ context.Context, _, _ string) (bool, error) {
	return f.owns, f.ownsErr
}

func (f *fakeStore) CreateSessionIfAbsent(_ context.Context, sess store.Session) (bool, error) {
	if sess.ID == state.ReservedSessionID {
		return false, store.ErrReservedSessionID
	}
	f.sessions = append(f.sessions, sess)
	return true, nil
}

type testHub struct {
	hub    *Hub
	server *httptest.Server
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	store  *fakeStore
}

func newTestHub(t *testing.T) *testHub {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	st := &fakeStore{owns: true}
	cfg := config.Hub{
		JWTSecret:       testJWTSecret,
		AllowedOrigins:  []string{"*"},
		RelayFrameRate:  1000,
		RelayFrameBurst: 1000,
		APIRequestLimit: 1000,
		WriteTimeout:    time.Second,
		PongTimeout:     10 * time.Second,
		PingInterval:    5 * time.Second,
	}
	h, err := New(cfg, bus.NewFromClient(rdb), st)
	require.NoError(t, err)

	server := httptest.NewServer(h.Router())
	t.Cleanup(server.Close)

	return &testHub{hub: h, server: server, mr: mr, rdb: rdb, store: st}
}

func signToken(t *testing.T, claims auth.Claims) string {
	t.Helper()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func relayToken(t *testing.T) string {
	return signToken(t, auth.Claims{AuthorizedParty: "relay-1", OrgID: "7"})
}

func uiToken(t *testing.T) string {
	return signToken(t, auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}})
}

func (th *testHub) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(th.server.URL, "http") + "/status"
	header := http.Header{"Authorization": {"Bearer " + token}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, inv Invocation) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(inv))
}

func TestServeWSRejectsMissingToken(t *testing.T) {
	th := newTestHub(t)
	url := "ws" + strings.TrimPrefix(th.server.URL, "http") + "/status"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeWSRejectsGarbageToken(t *testing.T) {
	th := newTestHub(t)
	url := "ws" + strings.TrimPrefix(th.server.URL, "http") + "/status"
	header := http.Header{"Authorization": {"Bearer not-a-jwt"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSendRMonitorAppendsToEventStream(t *testing.T) {
	th := newTestHub(t)
	conn := th.dial(t, relayToken(t))

	send(t, conn, Invocation{
		Method:    MethodSendRMonitor,
		EventID:   "42",
		SessionID: 3,
		Command:   "$F,14,\"00:12:45\",\"13:34:23\",\"00:09:47\",\"Green \"\r\n",
	})

	require.Eventually(t, func() bool {
		n, err := th.rdb.XLen(context.Background(), bus.EventStreamKey("42")).Result()
		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Feeding an event also plants the relay heartbeat record.
	require.Eventually(t, func() bool {
		entries, err := bus.NewFromClient(th.rdb).RelayHeartbeats(context.Background())
		return err == nil && len(entries) == 1 && entries[0].EventID == "42" && entries[0].OrgID == "7"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSendRMonitorForbiddenForUIClients(t *testing.T) {
	th := newTestHub(t)
	conn := th.dial(t, uiToken(t))

	send(t, conn, Invocation{
		Method:  MethodSendRMonitor,
		EventID: "42",
		Command: "$F,14,\"00:12:45\",\"13:34:23\",\"00:09:47\",\"Green \"\r\n",
	})

	time.Sleep(100 * time.Millisecond)
	n, err := th.rdb.XLen(context.Background(), bus.EventStreamKey("42")).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSendSessionChangeCreatesSessionAndStreams(t *testing.T) {
	th := newTestHub(t)
	conn := th.dial(t, relayToken(t))

	send(t, conn, Invocation{
		Method:        MethodSendSessionChange,
		EventID:       "42",
		SessionID:     5,
		SessionName:   "Qualifying 2",
		TZOffsetHours: -4,
	})

	require.Eventually(t, func() bool {
		n, _ := th.rdb.XLen(context.Background(), bus.EventStreamKey("42")).Result()
		return n == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Len(t, th.store.sessions, 1)
	assert.Equal(t, 5, th.store.sessions[0].ID)
	assert.Equal(t, "Qualifying 2", th.store.sessions[0].Name)
	assert.Equal(t, -4, th.store.sessions[0].LocalTZOffset)
}

func TestSendSessionChangeRejectsReservedSessionID(t *testing.T) {
	th := newTestHub(t)
	conn := th.dial(t, relayToken(t))

	send(t, conn, Invocation{
		Method:    MethodSendSessionChange,
		EventID:   "42",
		SessionID: state.ReservedSessionID,
	})
	// A legitimate change afterwards proves the first was dropped, not queued.
	send(t, conn, Invocation{
		Method:      MethodSendSessionChange,
		EventID:     "42",
		SessionID:   1,
		SessionName: "Race",
	})

	require.Eventually(t, func() bool {
		n, _ := th.rdb.XLen(context.Background(), bus.EventStreamKey("42")).Result()
		return n == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Len(t, th.store.sessions, 1)
	assert.Equal(t, 1, th.store.sessions[0].ID)
}

func TestSendSessionChangeDeniedForForeignOrg(t *testing.T) {
	th := newTestHub(t)
	th.store.owns = false
	conn := th.dial(t, relayToken(t))

	send(t, conn, Invocation{
		Method:    MethodSendSessionChange,
		EventID:   "42",
		SessionID: 1,
	})

	time.Sleep(100 * time.Millisecond)
	n, err := th.rdb.XLen(context.Background(), bus.EventStreamKey("42")).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, th.store.sessions)
}

func TestSubscribeRecordsConnectionAndRequestsSnapshot(t *testing.T) {
	th := newTestHub(t)

	requests := th.rdb.Subscribe(context.Background(), bus.ChannelSendFullStatus)
	t.Cleanup(func() { _ = requests.Close() })
	_, err := requests.Receive(context.Background())
	require.NoError(t, err)

	conn := th.dial(t, uiToken(t))
	send(t, conn, Invocation{Method: MethodSubscribeToEventV2, EventID: "42"})

	select {
	case msg := <-requests.Channel():
		var req bus.SnapshotRequest
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &req))
		assert.Equal(t, "42", req.EventID)
		assert.NotEmpty(t, req.ConnectionID)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot request published")
	}

	fields, err := th.rdb.HGetAll(context.Background(), bus.StatusConnectionsKey("42")).Result()
	require.NoError(t, err)
	assert.Len(t, fields, 1)
	assert.Equal(t, 1, th.hub.localGroupSize(bus.EventGroup("42")))
}

func TestUnsubscribeRemovesConnectionRecord(t *testing.T) {
	th := newTestHub(t)
	conn := th.dial(t, uiToken(t))

	send(t, conn, Invocation{Method: MethodSubscribeToEvent, EventID: "42"})
	require.Eventually(t, func() bool {
		return th.hub.localGroupSize(bus.EventGroup("42")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	send(t, conn, Invocation{Method: MethodUnsubscribeFromEvent, EventID: "42"})
	require.Eventually(t, func() bool {
		fields, _ := th.rdb.HGetAll(context.Background(), bus.StatusConnectionsKey("42")).Result()
		return len(fields) == 0 && th.hub.localGroupSize(bus.EventGroup("42")) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBackplaneBroadcastReachesSubscribers(t *testing.T) {
	th := newTestHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = th.hub.RunBackplane(ctx) }()

	conn := th.dial(t, uiToken(t))
	send(t, conn, Invocation{Method: MethodSubscribeToEvent, EventID: "42"})
	require.Eventually(t, func() bool {
		return th.hub.localGroupSize(bus.EventGroup("42")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	b := bus.NewFromClient(th.rdb)
	payload, _ := json.Marshal(state.SessionStatePatch{SessionID: 3})
	// Publishing retries until the backplane consumer is subscribed.
	deadline := time.Now().Add(3 * time.Second)
	received := make(chan ServerMessage, 1)
	go func() {
		for {
			var msg ServerMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Method == EventReceiveSessionPatch {
				received <- msg
				return
			}
		}
	}()

	for time.Now().Before(deadline) {
		err := b.Publish(context.Background(), bus.ChannelStatusBroadcast, bus.Broadcast{
			Group:       bus.EventGroup("42"),
			Method:      EventReceiveSessionPatch,
			Payload:     payload,
			PublishedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
		select {
		case msg := <-received:
			var patch state.SessionStatePatch
			require.NoError(t, json.Unmarshal(msg.Payload, &patch))
			assert.Equal(t, 3, patch.SessionID)
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
	t.Fatal("broadcast never reached the subscriber")
}

func TestSnapshotEndpoint(t *testing.T) {
	th := newTestHub(t)
	snapshot, err := state.EncodeSnapshot(&state.SessionState{EventID: "42", SessionID: 3})
	require.NoError(t, err)
	require.NoError(t, th.rdb.Set(context.Background(), bus.SnapshotKey("42"), snapshot, 0).Err())

	get := func(path string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, th.server.URL+path, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+uiToken(t))
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := get("/status/api/events/42/snapshot")
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/msgpack", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	decoded, err := state.DecodeSnapshot(body)
	require.NoError(t, err)
	assert.Equal(t, "42", decoded.EventID)

	missing := get("/status/api/events/99/snapshot")
	defer func() { _ = missing.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestSnapshotEndpointRequiresAuth(t *testing.T) {
	th := newTestHub(t)
	resp, err := http.Get(th.server.URL + "/status/api/events/42/snapshot")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDisconnectCleansUpRecords(t *testing.T) {
	th := newTestHub(t)
	conn := th.dial(t, uiToken(t))

	send(t, conn, Invocation{Method: MethodSubscribeToEvent, EventID: "42"})
	require.Eventually(t, func() bool {
		fields, _ := th.rdb.HGetAll(context.Background(), bus.StatusConnectionsKey("42")).Result()
		return len(fields) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		fields, _ := th.rdb.HGetAll(context.Background(), bus.StatusConnectionsKey("42")).Result()
		return len(fields) == 0 && th.hub.localGroupSize(bus.EventGroup("42")) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
