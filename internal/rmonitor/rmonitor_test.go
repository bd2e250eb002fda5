// SPDX-License-Identifier: MIT

package rmonitor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCompetitor(t *testing.T) {
	rec, err := ParseLine(`$A,"1234BE","12X",52474,"John","Johnson","USA",5`)
	require.NoError(t, err)
	comp, ok := rec.(Competitor)
	require.True(t, ok)
	assert.Equal(t, "1234BE", comp.RegNumber)
	assert.Equal(t, "12X", comp.Number)
	assert.Equal(t, uint32(52474), comp.TransponderID)
	assert.Equal(t, "John", comp.FirstName)
	assert.Equal(t, "Johnson", comp.LastName)
	assert.Equal(t, "USA", comp.Nationality)
	assert.Equal(t, 5, comp.ClassID)
}

func TestParseRaceInfo(t *testing.T) {
	rec, err := ParseLine(`$B,5,"Friday free practice"`)
	require.NoError(t, err)
	assert.Equal(t, RaceInfo{RunID: 5, RunName: "Friday free practice"}, rec)
}

func TestParseClassInfo(t *testing.T) {
	rec, err := ParseLine(`$C,5,"Formula 300"`)
	require.NoError(t, err)
	assert.Equal(t, ClassInfo{ClassID: 5, Description: "Formula 300"}, rec)
}

func TestParseSetting(t *testing.T) {
	rec, err := ParseLine(`$E,"TRACKNAME","Indianapolis Motor Speedway"`)
	require.NoError(t, err)
	assert.Equal(t, Setting{Name: "TRACKNAME", Value: "Indianapolis Motor Speedway"}, rec)
}

func TestParseHeartbeat(t *testing.T) {
	rec, err := ParseLine(`$F,14,"00:12:45","13:34:23","00:09:47","Green "`)
	require.NoError(t, err)
	hb, ok := rec.(Heartbeat)
	require.True(t, ok)
	assert.Equal(t, 14, hb.LapsToGo)
	assert.Equal(t, "00:12:45", hb.TimeToGo)
	assert.Equal(t, "13:34:23", hb.TimeOfDay)
	assert.Equal(t, "00:09:47", hb.RaceTime)
	assert.Equal(t, "Green", hb.Flag, "trailing pad space must be trimmed")
}

func TestParseRacePosition(t *testing.T) {
	rec, err := ParseLine(`$G,3,"1234BE",14,"01:12:47.872"`)
	require.NoError(t, err)
	assert.Equal(t, RacePosition{Position: 3, RegNumber: "1234BE", Laps: 14, TotalTime: "01:12:47.872"}, rec)
}

func TestParseBestLap(t *testing.T) {
	rec, err := ParseLine(`$H,2,"1234BE",3,"00:02:17.872"`)
	require.NoError(t, err)
	assert.Equal(t, BestLap{Position: 2, RegNumber: "1234BE", BestLap: 3, BestLapTime: "00:02:17.872"}, rec)
}

func TestParseReset(t *testing.T) {
	rec, err := ParseLine(`$I,"16:36:08.000","12 jan 01"`)
	require.NoError(t, err)
	assert.Equal(t, Reset{TimeOfDay: "16:36:08.000", Date: "12 jan 01"}, rec)

	rec, err = ParseLine("$I")
	require.NoError(t, err)
	assert.Equal(t, Reset{}, rec)
}

func TestParseLapComplete(t *testing.T) {
	rec, err := ParseLine(`$J,"1234BE","00:02:03.826","01:42:17.672"`)
	require.NoError(t, err)
	assert.Equal(t, LapComplete{RegNumber: "1234BE", LapTime: "00:02:03.826", TotalTime: "01:42:17.672"}, rec)
}

func TestParseCRLFTolerated(t *testing.T) {
	rec, err := ParseLine("$B,5,\"Race\"\r\n")
	require.NoError(t, err)
	assert.Equal(t, RaceInfo{RunID: 5, RunName: "Race"}, rec)
}

func TestParseUnknownType(t *testing.T) {
	_, err := ParseLine(`$COMP,"1234BE","12X",5,"John","Johnson","USA"`)
	var unknown *UnknownRecordError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "$COMP", unknown.Type)
}

func TestParseInvalidRecords(t *testing.T) {
	cases := []string{
		"",
		`$F,notanumber,"00:12:45","13:34:23","00:09:47","Green"`,
		`$A,"1234BE","12X"`,
		`$G,3,"1234BE`,
	}
	for _, line := range cases {
		_, err := ParseLine(line)
		var invalid *InvalidRecordError
		if !errors.As(err, &invalid) {
			t.Errorf("ParseLine(%q): expected InvalidRecordError, got %v", line, err)
		}
	}
}

func TestScannerBuffersPartialRecords(t *testing.T) {
	var s Scanner

	_, _ = s.Write([]byte("$B,5,\"Race\"\r\n$F,14,\"00:12:45\","))
	lines := s.Lines()
	require.Equal(t, []string{`$B,5,"Race"`}, lines)
	assert.Positive(t, s.Pending())

	_, _ = s.Write([]byte("\"13:34:23\",\"00:09:47\",\"Green\"\r\n"))
	lines = s.Lines()
	require.Equal(t, []string{`$F,14,"00:12:45","13:34:23","00:09:47","Green"`}, lines)
	assert.Zero(t, s.Pending())

	assert.Nil(t, s.Lines(), "drained scanner yields nothing")
}

func TestScannerToleratesBareLF(t *testing.T) {
	var s Scanner
	_, _ = s.Write([]byte("$I\n$B,5,\"Race\"\n"))
	assert.Equal(t, []string{"$I", `$B,5,"Race"`}, s.Lines())
}

func TestParseClockDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"13:34:23", 13*time.Hour + 34*time.Minute + 23*time.Second},
		{"00:02:03.826", 2*time.Minute + 3*time.Second + 826*time.Millisecond},
		{"00:00:01.5", time.Second + 500*time.Millisecond},
		{`"01:00:00.000"`, time.Hour},
	}
	for _, tc := range cases {
		got, err := ParseClockDuration(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range []string{"", "12:60:00", "1:2", "aa:bb:cc"} {
		_, err := ParseClockDuration(bad)
		assert.Error(t, err, bad)
	}
}
