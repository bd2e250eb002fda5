// SPDX-License-Identifier: MIT

package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBus(t *testing.T) *Bus {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewFromClient(rdb)
}

func TestRelayHeartbeatRoundTrip(t *testing.T) {
	b := testBus(t)
	ctx := context.Background()

	entry := RelayConnectionEventEntry{
		ConnectionID: "conn-1",
		EventID:      "100",
		OrgID:        "5",
		Timestamp:    time.Now().UTC().Truncate(time.Second),
		RelayVersion: "2.4.1",
	}
	require.NoError(t, b.SetRelayHeartbeat(ctx, entry))

	got, err := b.RelayHeartbeats(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, entry, got[0])

	require.NoError(t, b.DeleteRelayHeartbeat(ctx, "100"))
	got, err = b.RelayHeartbeats(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRelayHeartbeatsSkipsMalformed(t *testing.T) {
	b := testBus(t)
	ctx := context.Background()

	require.NoError(t, b.rdb.HSet(ctx, RelayConnectionsKey, RelayHeartbeatField("bad"), "{not json").Err())
	require.NoError(t, b.SetRelayHeartbeat(ctx, RelayConnectionEventEntry{EventID: "good", ConnectionID: "c"}))

	got, err := b.RelayHeartbeats(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "good", got[0].EventID)
}

func TestStreamAppendAndConsume(t *testing.T) {
	b := testBus(t)
	ctx := context.Background()

	require.NoError(t, b.AppendSessionChange(ctx, SessionChange{EventID: "1", SessionID: 10, SessionName: "Qual", TZOffsetHours: -7}))
	require.NoError(t, b.AppendTiming(ctx, "1", 10, "$F,9999,\"00:05:00\",\"13:00:00\",\"00:10:00\",\"Green\""))
	require.NoError(t, b.AppendDriverInfo(ctx, DriverInfo{EventID: "1", CarNumber: "42", DriverID: "D1", DriverName: "A"}))
	require.NoError(t, b.AppendReset(ctx, "1", 10))

	c := b.NewConsumer("1", "processor", "processor-1")
	require.NoError(t, c.Ensure(ctx))
	require.NoError(t, c.Ensure(ctx), "ensure must be idempotent")

	entries, err := c.Read(ctx, 10, time.Millisecond)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, KindSessionChange, entries[0].Kind)
	assert.Equal(t, 10, entries[0].SessionChange.SessionID)
	assert.Equal(t, "Qual", entries[0].SessionChange.SessionName)

	assert.Equal(t, KindTiming, entries[1].Kind)
	assert.Equal(t, 10, entries[1].SessionID)
	assert.Contains(t, entries[1].Raw, "$F")

	assert.Equal(t, KindDriverInfo, entries[2].Kind)
	assert.Equal(t, "42", entries[2].DriverInfo.CarNumber)

	assert.Equal(t, KindReset, entries[3].Kind)
	assert.Equal(t, 10, entries[3].SessionID)

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	require.NoError(t, c.Ack(ctx, ids...))

	// A second group sees the same entries independently.
	logger := b.NewConsumer("1", "logger", "logger-1")
	require.NoError(t, logger.Ensure(ctx))
	again, err := logger.Read(ctx, 10, time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, again, 4)
}

func TestClassifyMalformedEntry(t *testing.T) {
	entry := classify(redisXMessage("1-1", FieldSessionChange, "{broken"))
	assert.Equal(t, KindUnknown, entry.Kind)

	entry = classify(redisXMessage("1-2", "rmon-1-notanumber", "$I"))
	assert.Equal(t, KindUnknown, entry.Kind)
}

func redisXMessage(id, field, value string) redis.XMessage {
	return redis.XMessage{ID: id, Values: map[string]any{field: value}}
}

func TestDriverInfoKeys(t *testing.T) {
	b := testBus(t)
	ctx := context.Background()

	info := DriverInfo{EventID: "1", CarNumber: "42", TransponderID: 52474, DriverID: "D1", DriverName: "A. Driver"}
	require.NoError(t, b.SetDriverInfo(ctx, info))

	byCar, ok, err := b.DriverByCar(ctx, "1", "42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, info, byCar)

	byTransponder, ok, err := b.DriverByTransponder(ctx, 52474)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, info, byTransponder)

	_, ok, err = b.DriverByCar(ctx, "1", "7")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPublishSubscribe(t *testing.T) {
	b := testBus(t)
	ctx := context.Background()

	sub := b.Subscribe(ctx, ChannelShutdownSignal)
	t.Cleanup(func() { _ = sub.Close() })
	// Wait for the subscription to be established before publishing.
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, ChannelShutdownSignal, []string{"100"}))

	select {
	case msg := <-sub.Channel():
		var ids []string
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ids))
		assert.Equal(t, []string{"100"}, ids)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for shutdown signal")
	}
}

func TestScanKeys(t *testing.T) {
	b := testBus(t)
	ctx := context.Background()

	require.NoError(t, b.SetJSON(ctx, ControlLogCarKey("1", "42"), CarPenalty{Warnings: 1}, 0))
	require.NoError(t, b.SetJSON(ctx, ControlLogCarKey("1", "7"), CarPenalty{}, 0))
	require.NoError(t, b.SetJSON(ctx, ControlLogCarKey("2", "42"), CarPenalty{}, 0))

	keys, err := b.ScanKeys(ctx, ControlLogCarKeyPattern("1"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ControlLogCarKey("1", "42"), ControlLogCarKey("1", "7")}, keys)
}

func TestStatusConnections(t *testing.T) {
	b := testBus(t)
	ctx := context.Background()

	conn := StatusConnection{ClientID: "ui-1", SubscribedEventID: "1", ConnectedTimestamp: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, b.AddStatusConnection(ctx, conn))

	fields, err := b.HGetAll(ctx, StatusConnectionsKey("1"))
	require.NoError(t, err)
	assert.Len(t, fields, 1)

	require.NoError(t, b.RemoveStatusConnection(ctx, "1", "ui-1"))
	fields, err = b.HGetAll(ctx, StatusConnectionsKey("1"))
	require.NoError(t, err)
	assert.Empty(t, fields)
}
