// SPDX-License-Identifier: MIT

package multiloop

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encoding counterparts used by the relay simulator and test fixtures.

type writer struct {
	buf []byte
}

func (w *writer) u8(v byte)    { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *writer) u64(v uint64) { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }

func (w *writer) str(s string) error {
	if len(s) > math.MaxUint8 {
		return fmt.Errorf("string field exceeds %d bytes", math.MaxUint8)
	}
	w.u8(byte(len(s)))
	w.buf = append(w.buf, s...)
	return nil
}

// Encode serializes a message into a complete frame.
func Encode(msg Message) ([]byte, error) {
	w := &writer{}
	w.u8(byte(msg.MessageType()))
	w.u16(msg.MessageNumber())

	var err error
	switch m := msg.(type) {
	case Announcement:
		w.u64(uint64(m.Timestamp.UnixMilli()))
		w.u8(m.Priority)
		err = w.str(m.Text)
	case CompletedLap:
		if err = w.str(m.Number); err == nil {
			w.u16(uint16(m.StartPosition))
			w.u16(uint16(m.LapsLed))
			w.u16(uint16(m.LastLapPitted))
			w.u16(uint16(m.PitStopCount))
			err = w.str(m.CurrentStatus)
		}
	case CompletedSection:
		if err = w.str(m.Number); err == nil {
			if err = w.str(m.SectionID); err == nil {
				w.u32(uint32(m.ElapsedTimeMs))
				w.u32(uint32(m.LastSectionTimeMs))
				w.u16(uint16(m.LastLap))
			}
		}
	case LineCrossing:
		if err = w.str(m.Number); err == nil {
			w.u8(byte(m.Status))
		}
	case FlagInformation:
		w.u32(uint32(m.GreenTimeMs))
		w.u16(uint16(m.GreenLaps))
		w.u32(uint32(m.YellowTimeMs))
		w.u16(uint16(m.YellowLaps))
		w.u16(uint16(m.NumberOfYellows))
		w.u32(uint32(m.RedTimeMs))
		w.u32(uint32(math.Round(m.AverageRaceSpeed * 1000)))
		w.u16(uint16(m.LeadChanges))
	case RunInformation:
		if err = w.str(m.RunName); err == nil {
			w.u8(byte(m.RunType))
		}
	default:
		return nil, fmt.Errorf("unencodable message type %T", msg)
	}
	if err != nil {
		return nil, err
	}

	frame := make([]byte, 2, 2+len(w.buf))
	binary.BigEndian.PutUint16(frame, uint16(len(w.buf)))
	return append(frame, w.buf...), nil
}

// NewEnvelope builds the message-number envelope for an outgoing message.
func NewEnvelope(number uint16) envelope {
	return envelope{number: number}
}
