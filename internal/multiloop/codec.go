// SPDX-License-Identifier: MIT

package multiloop

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Frame envelope: uint16 big-endian length of the remainder, one type byte,
// uint16 message number, then the type-specific payload. Strings inside a
// payload are uint8 length-prefixed.

// InvalidFrameError reports a frame that could not be decoded. The pipeline
// logs the raw bytes and continues.
type InvalidFrameError struct {
	Reason string
}

func (e *InvalidFrameError) Error() string {
	return "invalid multiloop frame: " + e.Reason
}

// UnsupportedMessageError reports a valid envelope with a message type this
// decoder does not handle. Counted and dropped by the caller.
type UnsupportedMessageError struct {
	Type byte
}

func (e *UnsupportedMessageError) Error() string {
	return fmt.Sprintf("unsupported multiloop message type 0x%02x", e.Type)
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) u8() (byte, error) {
	if r.remaining() < 1 {
		return 0, &InvalidFrameError{Reason: "truncated payload"}
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *reader) u16() (uint16, error) {
	if r.remaining() < 2 {
		return 0, &InvalidFrameError{Reason: "truncated payload"}
	}
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, &InvalidFrameError{Reason: "truncated payload"}
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if r.remaining() < 8 {
		return 0, &InvalidFrameError{Reason: "truncated payload"}
	}
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

func (r *reader) str() (string, error) {
	n, err := r.u8()
	if err != nil {
		return "", err
	}
	if r.remaining() < int(n) {
		return "", &InvalidFrameError{Reason: "truncated string"}
	}
	s := string(r.buf[r.off : r.off+int(n)])
	r.off += int(n)
	return s, nil
}

// Decode parses one complete frame.
func Decode(frame []byte) (Message, error) {
	if len(frame) < 5 {
		return nil, &InvalidFrameError{Reason: "frame shorter than envelope"}
	}
	length := binary.BigEndian.Uint16(frame)
	if int(length) != len(frame)-2 {
		return nil, &InvalidFrameError{
			Reason: fmt.Sprintf("length prefix %d does not match %d frame bytes", length, len(frame)-2),
		}
	}

	msgType := frame[2]
	number := binary.BigEndian.Uint16(frame[3:5])
	r := &reader{buf: frame, off: 5}
	env := envelope{number: number}

	var (
		msg Message
		err error
	)
	switch MessageType(msgType) {
	case TypeAnnouncement:
		msg, err = decodeAnnouncement(r, env)
	case TypeCompletedLap:
		msg, err = decodeCompletedLap(r, env)
	case TypeCompletedSection:
		msg, err = decodeCompletedSection(r, env)
	case TypeLineCrossing:
		msg, err = decodeLineCrossing(r, env)
	case TypeFlagInformation:
		msg, err = decodeFlagInformation(r, env)
	case TypeRunInformation:
		msg, err = decodeRunInformation(r, env)
	default:
		return nil, &UnsupportedMessageError{Type: msgType}
	}
	if err != nil {
		return nil, err
	}
	if r.remaining() != 0 {
		return nil, &InvalidFrameError{Reason: fmt.Sprintf("%d trailing bytes", r.remaining())}
	}
	return msg, nil
}

func decodeAnnouncement(r *reader, env envelope) (Message, error) {
	ts, err := r.u64()
	if err != nil {
		return nil, err
	}
	priority, err := r.u8()
	if err != nil {
		return nil, err
	}
	text, err := r.str()
	if err != nil {
		return nil, err
	}
	return Announcement{
		envelope:  env,
		Timestamp: time.UnixMilli(int64(ts)).UTC(),
		Priority:  priority,
		Text:      text,
	}, nil
}

func decodeCompletedLap(r *reader, env envelope) (Message, error) {
	number, err := r.str()
	if err != nil {
		return nil, err
	}
	startPosition, err := r.u16()
	if err != nil {
		return nil, err
	}
	lapsLed, err := r.u16()
	if err != nil {
		return nil, err
	}
	lastLapPitted, err := r.u16()
	if err != nil {
		return nil, err
	}
	pitStopCount, err := r.u16()
	if err != nil {
		return nil, err
	}
	status, err := r.str()
	if err != nil {
		return nil, err
	}
	return CompletedLap{
		envelope:      env,
		Number:        number,
		StartPosition: int(startPosition),
		LapsLed:       int(lapsLed),
		LastLapPitted: int(lastLapPitted),
		PitStopCount:  int(pitStopCount),
		CurrentStatus: status,
	}, nil
}

func decodeCompletedSection(r *reader, env envelope) (Message, error) {
	number, err := r.str()
	if err != nil {
		return nil, err
	}
	sectionID, err := r.str()
	if err != nil {
		return nil, err
	}
	elapsed, err := r.u32()
	if err != nil {
		return nil, err
	}
	lastSection, err := r.u32()
	if err != nil {
		return nil, err
	}
	lastLap, err := r.u16()
	if err != nil {
		return nil, err
	}
	return CompletedSection{
		envelope:          env,
		Number:            number,
		SectionID:         sectionID,
		ElapsedTimeMs:     int64(elapsed),
		LastSectionTimeMs: int64(lastSection),
		LastLap:           int(lastLap),
	}, nil
}

func decodeLineCrossing(r *reader, env envelope) (Message, error) {
	number, err := r.str()
	if err != nil {
		return nil, err
	}
	status, err := r.u8()
	if err != nil {
		return nil, err
	}
	if status > byte(CrossingPit) {
		return nil, &InvalidFrameError{Reason: fmt.Sprintf("crossing status %d out of range", status)}
	}
	return LineCrossing{envelope: env, Number: number, Status: CrossingStatus(status)}, nil
}

func decodeFlagInformation(r *reader, env envelope) (Message, error) {
	greenTime, err := r.u32()
	if err != nil {
		return nil, err
	}
	greenLaps, err := r.u16()
	if err != nil {
		return nil, err
	}
	yellowTime, err := r.u32()
	if err != nil {
		return nil, err
	}
	yellowLaps, err := r.u16()
	if err != nil {
		return nil, err
	}
	numberOfYellows, err := r.u16()
	if err != nil {
		return nil, err
	}
	redTime, err := r.u32()
	if err != nil {
		return nil, err
	}
	// Average race speed is carried as thousandths of a mph.
	speedMilli, err := r.u32()
	if err != nil {
		return nil, err
	}
	leadChanges, err := r.u16()
	if err != nil {
		return nil, err
	}
	return FlagInformation{
		envelope:         env,
		GreenTimeMs:      int64(greenTime),
		GreenLaps:        int(greenLaps),
		YellowTimeMs:     int64(yellowTime),
		YellowLaps:       int(yellowLaps),
		NumberOfYellows:  int(numberOfYellows),
		RedTimeMs:        int64(redTime),
		AverageRaceSpeed: float64(speedMilli) / 1000,
		LeadChanges:      int(leadChanges),
	}, nil
}

func decodeRunInformation(r *reader, env envelope) (Message, error) {
	name, err := r.str()
	if err != nil {
		return nil, err
	}
	runType, err := r.u8()
	if err != nil {
		return nil, err
	}
	if runType > byte(RunSingleCarQualifying) {
		return nil, &InvalidFrameError{Reason: fmt.Sprintf("run type %d out of range", runType)}
	}
	return RunInformation{envelope: env, RunName: name, RunType: RunType(runType)}, nil
}
