// SPDX-License-Identifier: MIT

package state

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSession() *SessionState {
	return &SessionState{
		EventID:         "1",
		SessionID:       10,
		SessionName:     "Feature Race",
		IsLive:          true,
		CurrentFlag:     FlagGreen,
		LapsToGo:        14,
		TimeToGo:        "00:12:45",
		RunningRaceTime: "00:09:47",
		LocalTimeOfDay:  "13:34:23",
		CarPositions: []CarPosition{
			{Number: "42", TransponderID: 52474, OverallPosition: 1, DriverID: "D1", DriverName: "A"},
			{Number: "7", TransponderID: 8841, OverallPosition: 2},
		},
	}
}

func TestDiffSessionMinimality(t *testing.T) {
	prev := sampleSession()
	next := prev.Clone()
	next.LapsToGo = 13
	next.CurrentFlag = FlagYellow

	patch := DiffSession(prev, next)
	require.NotNil(t, patch)
	require.NotNil(t, patch.LapsToGo)
	assert.Equal(t, 13, *patch.LapsToGo)
	require.NotNil(t, patch.CurrentFlag)
	assert.Equal(t, FlagYellow, *patch.CurrentFlag)
	assert.Nil(t, patch.SessionName, "unchanged field must be absent")
	assert.Nil(t, patch.TimeToGo, "unchanged field must be absent")

	// Applying the patch to prev yields next; applying it again is a no-op.
	applied := prev.Clone()
	applied.ApplyPatch(patch)
	assert.Equal(t, next.LapsToGo, applied.LapsToGo)
	assert.Equal(t, next.CurrentFlag, applied.CurrentFlag)

	again := applied.Clone()
	again.ApplyPatch(patch)
	if diff := cmp.Diff(applied, again); diff != "" {
		t.Errorf("patch application not idempotent (-first +second):\n%s", diff)
	}

	// Diffing the updated state against next yields nothing.
	assert.Nil(t, DiffSession(next, applied.Clone()))
}

func TestDiffSessionNoChange(t *testing.T) {
	prev := sampleSession()
	assert.Nil(t, DiffSession(prev, prev.Clone()))
}

func TestDiffCarStatusTruncation(t *testing.T) {
	prev := &CarPosition{Number: "42", CurrentStatus: "Running12345"}
	next := &CarPosition{Number: "42", CurrentStatus: "Running12345 and then some"}

	// Both truncate to the same 12 chars, so no patch.
	assert.Nil(t, DiffCar(prev, next))

	next.CurrentStatus = "Pitted"
	patch := DiffCar(prev, next)
	require.NotNil(t, patch)
	require.NotNil(t, patch.CurrentStatus)
	assert.Equal(t, "Pitted", *patch.CurrentStatus)
}

func TestDiffCarSectionsWholesale(t *testing.T) {
	prev := &CarPosition{Number: "42", CompletedSections: []CompletedSection{
		{Number: "42", SectionID: "S1", ElapsedTimeMs: 1000, LastSectionTimeMs: 1000, LastLap: 3},
		{Number: "42", SectionID: "S2", ElapsedTimeMs: 2100, LastSectionTimeMs: 1100, LastLap: 3},
	}}

	next := &CarPosition{Number: "42", CompletedSections: append([]CompletedSection(nil), prev.CompletedSections...)}
	assert.Nil(t, DiffCar(prev, next), "identical section vectors produce no patch")

	next.CompletedSections[1].LastSectionTimeMs = 1150
	patch := DiffCar(prev, next)
	require.NotNil(t, patch)
	assert.Len(t, patch.CompletedSections, 2, "whole ordered list emitted on any difference")
}

func TestDiffCarDriverIdempotence(t *testing.T) {
	// Scenario (c): re-applying known driver identity yields no patch.
	prev := &CarPosition{Number: "42", DriverID: "D1", DriverName: "A"}
	next := &CarPosition{Number: "42", DriverID: "D1", DriverName: "A"}
	assert.Nil(t, DiffCar(prev, next))
}

func TestDiffCarClearedDriver(t *testing.T) {
	prev := &CarPosition{Number: "7", DriverID: "D9", DriverName: "Z"}
	next := &CarPosition{Number: "7"}
	patch := DiffCar(prev, next)
	require.NotNil(t, patch)
	require.NotNil(t, patch.DriverID)
	assert.Equal(t, "", *patch.DriverID, "cleared field is present with empty value")
	require.NotNil(t, patch.DriverName)
	assert.Equal(t, "", *patch.DriverName)
}

func TestSetFlagMaintainsDurations(t *testing.T) {
	s := &SessionState{CurrentFlag: FlagUnknown}
	t0 := time.Date(2026, 3, 14, 13, 0, 0, 0, time.UTC)

	require.True(t, s.SetFlag(FlagGreen, t0))
	require.False(t, s.SetFlag(FlagGreen, t0.Add(time.Second)), "repeat flag is a no-op")
	require.True(t, s.SetFlag(FlagYellow, t0.Add(10*time.Minute)))
	require.True(t, s.SetFlag(FlagCheckered, t0.Add(40*time.Minute)))

	require.Len(t, s.FlagDurations, 3)
	for i := 1; i < len(s.FlagDurations); i++ {
		assert.True(t, s.FlagDurations[i].StartTime.After(s.FlagDurations[i-1].StartTime),
			"durations strictly monotonic by start time")
		assert.NotNil(t, s.FlagDurations[i-1].EndTime, "closed interval has an end time")
	}
	last := s.FlagDurations[len(s.FlagDurations)-1]
	assert.Nil(t, last.EndTime)
	assert.Equal(t, s.CurrentFlag, last.Flag, "open interval matches current flag")
}

func TestEnsureCarUnique(t *testing.T) {
	s := &SessionState{}
	a := s.EnsureCar("42")
	a.TransponderID = 52474
	b := s.EnsureCar("42")
	assert.Equal(t, uint32(52474), b.TransponderID)
	assert.Len(t, s.CarPositions, 1, "car numbers form a set")

	s.EnsureCar("7")
	assert.Len(t, s.CarPositions, 2)
	assert.Same(t, s.Car("42"), s.CarByTransponder(52474), "transponder map resolves back to the same car")
}

func TestResetDropsCars(t *testing.T) {
	s := sampleSession()
	s.Reset()
	assert.Empty(t, s.CarPositions)
}

func TestCloneIsDeep(t *testing.T) {
	s := sampleSession()
	s.SetFlag(FlagYellow, time.Now())
	s.CarPositions[0].CompletedSections = []CompletedSection{{Number: "42", SectionID: "S1"}}

	c := s.Clone()
	c.CarPositions[0].DriverName = "changed"
	c.CarPositions[0].CompletedSections[0].SectionID = "S9"
	c.FlagDurations[0].Flag = FlagRed

	assert.Equal(t, "A", s.CarPositions[0].DriverName)
	assert.Equal(t, "S1", s.CarPositions[0].CompletedSections[0].SectionID)
	assert.NotEqual(t, FlagRed, s.FlagDurations[0].Flag)
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := sampleSession()
	s.SetFlag(FlagYellow, time.Date(2026, 3, 14, 13, 10, 0, 0, time.UTC))

	data, err := EncodeSnapshot(s)
	require.NoError(t, err)
	decoded, err := DecodeSnapshot(data)
	require.NoError(t, err)
	if diff := cmp.Diff(s, decoded); diff != "" {
		t.Errorf("msgpack snapshot round trip (-in +out):\n%s", diff)
	}
}

func TestLegacySnapshotRoundTrip(t *testing.T) {
	s := sampleSession()
	data, err := EncodeLegacySnapshot(s)
	require.NoError(t, err)
	assert.Less(t, len(data), 2048)

	decoded, err := DecodeLegacySnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, s.SessionID, decoded.SessionID)
	assert.Equal(t, s.CarPositions, decoded.CarPositions)
}

func TestParseFlag(t *testing.T) {
	assert.Equal(t, FlagGreen, ParseFlag("Green"))
	assert.Equal(t, FlagPurple35, ParseFlag("Purple35"))
	assert.Equal(t, FlagUnknown, ParseFlag("Rainbow"))
	assert.Equal(t, FlagUnknown, ParseFlag(""))
}
