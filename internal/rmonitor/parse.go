// SPDX-License-Identifier: MIT

package rmonitor

import (
	"fmt"
	"strconv"
	"strings"
)

// InvalidRecordError reports a line that carried a known type token but
// malformed content. The pipeline logs it and continues.
type InvalidRecordError struct {
	Line   string
	Reason string
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("invalid rmonitor record %q: %s", e.Line, e.Reason)
}

// UnknownRecordError reports a type token this parser does not handle.
type UnknownRecordError struct {
	Type string
	Line string
}

func (e *UnknownRecordError) Error() string {
	return fmt.Sprintf("unknown rmonitor record type %q", e.Type)
}

// ParseLine parses one complete CRLF-framed record (delimiter stripped).
func ParseLine(line string) (Record, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, &InvalidRecordError{Line: line, Reason: "empty line"}
	}

	fields, err := splitFields(line)
	if err != nil {
		return nil, &InvalidRecordError{Line: line, Reason: err.Error()}
	}

	switch Type(fields[0]) {
	case TypeCompetitor:
		return parseCompetitor(line, fields)
	case TypeRaceInfo:
		return parseRaceInfo(line, fields)
	case TypeClassInfo:
		return parseClassInfo(line, fields)
	case TypeSetting:
		return parseSetting(line, fields)
	case TypeHeartbeat:
		return parseHeartbeat(line, fields)
	case TypeRacePosition:
		return parseRacePosition(line, fields)
	case TypeBestLap:
		return parseBestLap(line, fields)
	case TypeReset:
		return parseReset(fields)
	case TypeLapComplete:
		return parseLapComplete(line, fields)
	default:
		return nil, &UnknownRecordError{Type: fields[0], Line: line}
	}
}

// splitFields splits a record on commas, honoring double-quoted fields.
// Quotes are stripped from the result.
func splitFields(line string) ([]string, error) {
	var (
		fields   []string
		current  strings.Builder
		inQuotes bool
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
		case c == ',' && !inQuotes:
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	if inQuotes {
		return nil, fmt.Errorf("unterminated quote")
	}
	fields = append(fields, current.String())
	return fields, nil
}

func requireFields(line string, fields []string, n int) error {
	if len(fields) < n {
		return &InvalidRecordError{
			Line:   line,
			Reason: fmt.Sprintf("expected at least %d fields, got %d", n, len(fields)),
		}
	}
	return nil
}

func parseInt(line, field, name string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(field))
	if err != nil {
		return 0, &InvalidRecordError{Line: line, Reason: name + " is not a number"}
	}
	return v, nil
}

func parseCompetitor(line string, f []string) (Record, error) {
	if err := requireFields(line, f, 8); err != nil {
		return nil, err
	}
	transponder, err := strconv.ParseUint(strings.TrimSpace(f[3]), 10, 32)
	if err != nil {
		return nil, &InvalidRecordError{Line: line, Reason: "transponder is not a number"}
	}
	classID, err := parseInt(line, f[7], "class id")
	if err != nil {
		return nil, err
	}
	return Competitor{
		RegNumber:     f[1],
		Number:        f[2],
		TransponderID: uint32(transponder),
		FirstName:     f[4],
		LastName:      f[5],
		Nationality:   f[6],
		ClassID:       classID,
	}, nil
}

func parseRaceInfo(line string, f []string) (Record, error) {
	if err := requireFields(line, f, 3); err != nil {
		return nil, err
	}
	runID, err := parseInt(line, f[1], "run id")
	if err != nil {
		return nil, err
	}
	return RaceInfo{RunID: runID, RunName: f[2]}, nil
}

func parseClassInfo(line string, f []string) (Record, error) {
	if err := requireFields(line, f, 3); err != nil {
		return nil, err
	}
	classID, err := parseInt(line, f[1], "class id")
	if err != nil {
		return nil, err
	}
	return ClassInfo{ClassID: classID, Description: f[2]}, nil
}

func parseSetting(line string, f []string) (Record, error) {
	if err := requireFields(line, f, 3); err != nil {
		return nil, err
	}
	return Setting{Name: f[1], Value: f[2]}, nil
}

func parseHeartbeat(line string, f []string) (Record, error) {
	if err := requireFields(line, f, 6); err != nil {
		return nil, err
	}
	lapsToGo, err := parseInt(line, f[1], "laps to go")
	if err != nil {
		return nil, err
	}
	return Heartbeat{
		LapsToGo:  lapsToGo,
		TimeToGo:  f[2],
		TimeOfDay: f[3],
		RaceTime:  f[4],
		Flag:      strings.TrimSpace(f[5]),
	}, nil
}

func parseRacePosition(line string, f []string) (Record, error) {
	if err := requireFields(line, f, 5); err != nil {
		return nil, err
	}
	position, err := parseInt(line, f[1], "position")
	if err != nil {
		return nil, err
	}
	laps, err := parseInt(line, f[3], "laps")
	if err != nil {
		return nil, err
	}
	return RacePosition{
		Position:  position,
		RegNumber: f[2],
		Laps:      laps,
		TotalTime: f[4],
	}, nil
}

func parseBestLap(line string, f []string) (Record, error) {
	if err := requireFields(line, f, 5); err != nil {
		return nil, err
	}
	position, err := parseInt(line, f[1], "position")
	if err != nil {
		return nil, err
	}
	bestLap, err := parseInt(line, f[3], "best lap")
	if err != nil {
		return nil, err
	}
	return BestLap{
		Position:    position,
		RegNumber:   f[2],
		BestLap:     bestLap,
		BestLapTime: f[4],
	}, nil
}

func parseReset(f []string) (Record, error) {
	r := Reset{}
	if len(f) > 1 {
		r.TimeOfDay = f[1]
	}
	if len(f) > 2 {
		r.Date = f[2]
	}
	return r, nil
}

func parseLapComplete(line string, f []string) (Record, error) {
	if err := requireFields(line, f, 4); err != nil {
		return nil, err
	}
	return LapComplete{
		RegNumber: f[1],
		LapTime:   f[2],
		TotalTime: f[3],
	}, nil
}
