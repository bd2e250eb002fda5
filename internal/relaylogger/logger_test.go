// SPDX-License-Identifier: MIT

package relaylogger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitwall-live/pitwall/internal/bus"
	"github.com/pitwall-live/pitwall/internal/config"
	"github.com/pitwall-live/pitwall/internal/store"
)

type fakeStore struct {
	mu     sync.Mutex
	rows   []store.RelayLog
	failed int
	err    error
}

func (f *fakeStore) InsertRelayLogs(_ context.Context, logs []store.RelayLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		f.failed++
		return f.err
	}
	f.rows = append(f.rows, logs...)
	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type loggerTest struct {
	l  *Logger
	b  *bus.Bus
	st *fakeStore
}

func newLoggerTest(t *testing.T, cfg config.RelayLogger) *loggerTest {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	st := &fakeStore{}
	b := bus.NewFromClient(rdb)
	return &loggerTest{l: New(cfg, b, st, clockwork.NewRealClock()), b: b, st: st}
}

func runLogger(t *testing.T, l *Logger) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("logger did not stop")
		}
	})
	return cancel
}

func TestFlushOnRowThreshold(t *testing.T) {
	lt := newLoggerTest(t, config.RelayLogger{
		EventID: "1", FlushRows: 3, FlushInterval: time.Hour,
	})
	runLogger(t, lt.l)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, lt.b.AppendTiming(ctx, "1", 7, "$F,9999,\"00:02:00\",\"13:00:00\",\"00:30:00\",\"Green \"\r\n"))
	}

	assert.Eventually(t, func() bool { return lt.st.count() == 3 }, 5*time.Second, 20*time.Millisecond)

	lt.st.mu.Lock()
	row := lt.st.rows[0]
	lt.st.mu.Unlock()
	assert.Equal(t, "1", row.EventID)
	assert.Equal(t, 7, row.SessionID)
	assert.Contains(t, row.Payload, "$F")
	assert.False(t, row.ReceivedAt.IsZero())
}

func TestFlushOnInterval(t *testing.T) {
	lt := newLoggerTest(t, config.RelayLogger{
		EventID: "1", FlushRows: 100, FlushInterval: 100 * time.Millisecond,
	})
	runLogger(t, lt.l)

	require.NoError(t, lt.b.AppendTiming(context.Background(), "1", 7, "$G,3,\"12\",4,\"01:02:03.444\"\r\n"))

	assert.Eventually(t, func() bool { return lt.st.count() == 1 }, 5*time.Second, 20*time.Millisecond)
}

func TestShutdownFlushesRemainder(t *testing.T) {
	lt := newLoggerTest(t, config.RelayLogger{
		EventID: "1", FlushRows: 100, FlushInterval: time.Hour,
	})
	cancel := runLogger(t, lt.l)

	ctx := context.Background()
	require.NoError(t, lt.b.AppendTiming(ctx, "1", 7, "line-a"))
	require.NoError(t, lt.b.AppendTiming(ctx, "1", 7, "line-b"))

	// Wait until the entries are buffered, then stop.
	require.Eventually(t, func() bool {
		pending, err := lt.b.PendingCount(ctx, "1", bus.GroupLogger)
		return err == nil && pending == 2
	}, 5*time.Second, 20*time.Millisecond)
	cancel()

	assert.Eventually(t, func() bool { return lt.st.count() == 2 }, 5*time.Second, 20*time.Millisecond)
}

func TestInsertFailureDropsBatchAndMovesOn(t *testing.T) {
	lt := newLoggerTest(t, config.RelayLogger{
		EventID: "1", FlushRows: 1, FlushInterval: time.Hour,
	})
	lt.st.err = assert.AnError
	runLogger(t, lt.l)

	ctx := context.Background()
	require.NoError(t, lt.b.AppendTiming(ctx, "1", 7, "poisoned"))

	require.Eventually(t, func() bool {
		lt.st.mu.Lock()
		defer lt.st.mu.Unlock()
		return lt.st.failed >= 3
	}, 5*time.Second, 20*time.Millisecond)

	// The batch was dropped, not retried forever; fresh entries still land.
	lt.st.mu.Lock()
	lt.st.err = nil
	lt.st.mu.Unlock()
	require.NoError(t, lt.b.AppendTiming(ctx, "1", 7, "healthy"))

	assert.Eventually(t, func() bool {
		lt.st.mu.Lock()
		defer lt.st.mu.Unlock()
		return len(lt.st.rows) == 1 && lt.st.rows[0].Payload == "healthy"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestNonTimingEntriesAckedWithoutRows(t *testing.T) {
	lt := newLoggerTest(t, config.RelayLogger{
		EventID: "1", FlushRows: 1, FlushInterval: 50 * time.Millisecond,
	})
	runLogger(t, lt.l)

	ctx := context.Background()
	require.NoError(t, lt.b.AppendSessionChange(ctx, bus.SessionChange{
		EventID: "1", SessionID: 7, SessionName: "Race",
	}))

	assert.Eventually(t, func() bool {
		pending, err := lt.b.PendingCount(ctx, "1", bus.GroupLogger)
		return err == nil && pending == 0
	}, 5*time.Second, 20*time.Millisecond)
	assert.Zero(t, lt.st.count())
}
