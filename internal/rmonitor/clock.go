// SPDX-License-Identifier: MIT

package rmonitor

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseClockDuration parses the protocol's clock fields ("HH:MM:SS",
// "HH:MM:SS.mmm", "HH:MM:SS.ttt" thousandths) into a duration.
func ParseClockDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.Trim(s, `"`))
	if s == "" {
		return 0, fmt.Errorf("empty clock value")
	}

	main := s
	var fracPart string
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		main, fracPart = s[:idx], s[idx+1:]
	}

	parts := strings.Split(main, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("malformed clock value %q", s)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("malformed hours in %q", s)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes > 59 {
		return 0, fmt.Errorf("malformed minutes in %q", s)
	}
	seconds, err := strconv.Atoi(parts[2])
	if err != nil || seconds > 59 {
		return 0, fmt.Errorf("malformed seconds in %q", s)
	}

	d := time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second

	if fracPart != "" {
		if len(fracPart) > 3 {
			fracPart = fracPart[:3]
		}
		for len(fracPart) < 3 {
			fracPart += "0"
		}
		ms, err := strconv.Atoi(fracPart)
		if err != nil {
			return 0, fmt.Errorf("malformed fraction in %q", s)
		}
		d += time.Duration(ms) * time.Millisecond
	}
	return d, nil
}
