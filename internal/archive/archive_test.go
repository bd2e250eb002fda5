// SPDX-License-Identifier: MIT

package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitwall-live/pitwall/internal/config"
	"github.com/pitwall-live/pitwall/internal/mail"
	"github.com/pitwall-live/pitwall/internal/objstore"
	"github.com/pitwall-live/pitwall/internal/state"
	"github.com/pitwall-live/pitwall/internal/store"
)

type fakeStore struct {
	mu        sync.Mutex
	eligible  []store.Event
	simulated []store.Event
	sessions  map[string][]store.Session
	results   map[string][]store.SessionResult
	logs      map[string][]store.RelayLog
	laps      map[string][]store.CarLapLog
	flags     map[string][]store.FlagLogRow
	passings  map[string][]store.X2Passing

	archived  []string
	purgedLL  []string
	purgedAll []string
}

func (f *fakeStore) EventsEligibleForArchive(context.Context, time.Time) ([]store.Event, error) {
	return f.eligible, nil
}

func (f *fakeStore) SimulatedEventsBefore(context.Context, time.Time) ([]store.Event, error) {
	return f.simulated, nil
}

func (f *fakeStore) SessionsOfEvent(_ context.Context, eventID string) ([]store.Session, error) {
	return f.sessions[eventID], nil
}

func (f *fakeStore) SessionResultsOfEvent(_ context.Context, eventID string) ([]store.SessionResult, error) {
	return f.results[eventID], nil
}

func (f *fakeStore) RelayLogsOfEvent(_ context.Context, eventID string) ([]store.RelayLog, error) {
	return f.logs[eventID], nil
}

func (f *fakeStore) LapsBySession(_ context.Context, eventID string, sessionID int) ([]store.CarLapLog, error) {
	return f.laps[fmt.Sprintf("%s-%d", eventID, sessionID)], nil
}

func (f *fakeStore) FlagsBySession(_ context.Context, eventID string, sessionID int) ([]store.FlagLogRow, error) {
	return f.flags[fmt.Sprintf("%s-%d", eventID, sessionID)], nil
}

func (f *fakeStore) X2PassingsOfEvent(_ context.Context, eventID string) ([]store.X2Passing, error) {
	return f.passings[eventID], nil
}

func (f *fakeStore) MarkEventArchived(_ context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, eventID)
	return nil
}

func (f *fakeStore) PurgeCarLastLaps(_ context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purgedLL = append(f.purgedLL, eventID)
	return nil
}

func (f *fakeStore) PurgeEventData(_ context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purgedAll = append(f.purgedAll, eventID)
	return nil
}

type mailRecorder struct {
	mu       sync.Mutex
	subjects []string
}

func (m *mailRecorder) Send(_ context.Context, subject, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = append(m.subjects, subject)
	return nil
}

type failingUploader struct {
	failKeyPrefix string
	inner         Uploader
	attempts      int
}

func (u *failingUploader) UploadFile(ctx context.Context, key, path string) error {
	if u.failKeyPrefix != "" && len(key) >= len(u.failKeyPrefix) && key[:len(u.failKeyPrefix)] == u.failKeyPrefix {
		u.attempts++
		return assert.AnError
	}
	return u.inner.UploadFile(ctx, key, path)
}

type archiveTest struct {
	svc    *Service
	st     *fakeStore
	mail   *mailRecorder
	client *s3.Client
	bucket string
}

func fakeS3Client(t *testing.T, bucket string) *s3.Client {
	t.Helper()
	backend := s3mem.New()
	require.NoError(t, backend.CreateBucket(bucket))
	ts := httptest.NewServer(gofakes3.New(backend).Server())
	t.Cleanup(ts.Close)

	return s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(ts.URL),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("test", "test", ""),
	})
}

func newArchiveTest(t *testing.T, up Uploader) *archiveTest {
	t.Helper()
	const bucket = "pitwall-archive"
	client := fakeS3Client(t, bucket)
	if up == nil {
		up = objstore.NewWithClient(client, bucket)
	}

	st := &fakeStore{
		sessions: make(map[string][]store.Session),
		results:  make(map[string][]store.SessionResult),
		logs:     make(map[string][]store.RelayLog),
		laps:     make(map[string][]store.CarLapLog),
		flags:    make(map[string][]store.FlagLogRow),
		passings: make(map[string][]store.X2Passing),
	}
	recorder := &mailRecorder{}
	cfg := config.Archiver{
		Bucket:      bucket,
		SpoolDir:    t.TempDir(),
		Timezone:    "America/New_York",
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
		ErrorDelay:  time.Hour,
	}
	svc, err := New(cfg, st, up, recorder, clockwork.NewRealClock())
	require.NoError(t, err)
	return &archiveTest{svc: svc, st: st, mail: recorder, client: client, bucket: bucket}
}

func (at *archiveTest) seedEvent(eventID, orgID string) {
	sessionState, _ := json.Marshal(state.SessionState{
		EventID:     eventID,
		SessionID:   7,
		SessionName: "Race",
		EventEntries: []state.EventEntry{
			{Number: "42", DriverName: "A. Driver", Team: "Apex", Class: "GP1"},
		},
	})
	at.st.eligible = append(at.st.eligible, store.Event{ID: eventID, OrgID: orgID, Name: "Test Event"})
	at.st.sessions[eventID] = []store.Session{{ID: 7, EventID: eventID, Name: "Race"}}
	at.st.results[eventID] = []store.SessionResult{{EventID: eventID, SessionID: 7, State: sessionState}}
	at.st.logs[eventID] = []store.RelayLog{{EventID: eventID, SessionID: 7, Payload: "$F,..."}}
	at.st.laps[eventID+"-7"] = []store.CarLapLog{{EventID: eventID, SessionID: 7, CarNumber: "42", LapNumber: 1}}
	at.st.flags[eventID+"-7"] = []store.FlagLogRow{{EventID: eventID, SessionID: 7, Flag: "Green"}}
	at.st.passings[eventID] = []store.X2Passing{{EventID: eventID, Transponder: 12345, LoopName: "SF"}}
}

func (at *archiveTest) object(t *testing.T, key string) []byte {
	t.Helper()
	out, err := at.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(at.bucket),
		Key:    aws.String(key),
	})
	require.NoError(t, err, "missing object %s", key)
	defer func() { _ = out.Body.Close() }()
	data, err := io.ReadAll(out.Body)
	require.NoError(t, err)
	return data
}

func TestRunOnceArchivesEligibleEvent(t *testing.T) {
	at := newArchiveTest(t, nil)
	at.seedEvent("1", "5")

	require.NoError(t, at.svc.RunOnce(context.Background()))

	var logs []store.RelayLog
	require.NoError(t, json.Unmarshal(at.object(t, "events/5/1/relay_logs.json"), &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, "$F,...", logs[0].Payload)

	var laps []store.CarLapLog
	require.NoError(t, json.Unmarshal(at.object(t, "events/5/1/sessions/7/laps.json"), &laps))
	require.Len(t, laps, 1)

	at.object(t, "events/5/1/sessions/7/flags.json")
	at.object(t, "events/5/1/x2_passings.json")
	at.object(t, "events/5/1/sessions.json")

	var competitors []state.EventEntry
	require.NoError(t, json.Unmarshal(at.object(t, "events/5/1/competitors.json"), &competitors))
	require.Len(t, competitors, 1)
	assert.Equal(t, "42", competitors[0].Number)

	assert.Equal(t, []string{"1"}, at.st.archived)
	assert.Equal(t, []string{"1"}, at.st.purgedLL)
	assert.Empty(t, at.mail.subjects)

	// Spool files are cleaned up after upload.
	var leftovers []string
	_ = filepath.WalkDir(at.svc.cfg.SpoolDir, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			leftovers = append(leftovers, path)
		}
		return nil
	})
	assert.Empty(t, leftovers)
}

func TestCompetitorsDedupedAcrossSessions(t *testing.T) {
	at := newArchiveTest(t, nil)
	at.seedEvent("1", "5")

	dup, _ := json.Marshal(state.SessionState{
		EventID:   "1",
		SessionID: 8,
		EventEntries: []state.EventEntry{
			{Number: "42", DriverName: "A. Driver"},
			{Number: "7", DriverName: "B. Driver"},
		},
	})
	at.st.results["1"] = append(at.st.results["1"], store.SessionResult{
		EventID: "1", SessionID: 8, State: dup,
	})

	require.NoError(t, at.svc.RunOnce(context.Background()))

	var competitors []state.EventEntry
	require.NoError(t, json.Unmarshal(at.object(t, "events/5/1/competitors.json"), &competitors))
	numbers := make([]string, len(competitors))
	for i, c := range competitors {
		numbers[i] = c.Number
	}
	assert.ElementsMatch(t, []string{"42", "7"}, numbers)
}

func TestFailedEventIsMailedAndOthersContinue(t *testing.T) {
	const bucket = "pitwall-archive"
	client := fakeS3Client(t, bucket)
	up := &failingUploader{
		failKeyPrefix: "events/5/1/",
		inner:         objstore.NewWithClient(client, bucket),
	}
	at := newArchiveTest(t, up)
	at.client = client
	at.seedEvent("1", "5")
	at.seedEvent("2", "5")

	require.NoError(t, at.svc.RunOnce(context.Background()))

	// Event 1 was retried up to the budget, then abandoned with a mail.
	assert.Equal(t, 3, up.attempts)
	require.Len(t, at.mail.subjects, 1)
	assert.Contains(t, at.mail.subjects[0], "event 1")

	// Event 2 archived normally.
	at.object(t, "events/5/2/relay_logs.json")
	assert.Equal(t, []string{"2"}, at.st.archived)
}

func TestSimulatedEventsPurgedWithoutArchive(t *testing.T) {
	at := newArchiveTest(t, nil)
	at.st.simulated = []store.Event{{ID: "9", OrgID: "5", IsSimulation: true}}

	require.NoError(t, at.svc.RunOnce(context.Background()))

	assert.Equal(t, []string{"9"}, at.st.purgedAll)
	assert.Empty(t, at.st.archived)
}

func TestUntilNextMidnightInArchiveZone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	// 23:00 local on a plain day: one hour to go.
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 23, 0, 0, 0, loc))

	svc, err := New(config.Archiver{
		Bucket: "b", SpoolDir: t.TempDir(), Timezone: "America/New_York",
		MaxAttempts: 1,
	}, &fakeStore{}, nil, mail.Noop{}, clock)
	require.NoError(t, err)

	assert.Equal(t, time.Hour, svc.untilNextMidnight())
}
