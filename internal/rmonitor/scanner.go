// SPDX-License-Identifier: MIT

package rmonitor

import (
	"bytes"
	"strings"
)

// Scanner reassembles CRLF-framed records from arbitrarily chunked input.
// Partial trailing records stay buffered until their delimiter arrives.
// Bare LF delimiters are tolerated; some timing systems emit them.
type Scanner struct {
	buf bytes.Buffer
}

// Write appends raw input. Always succeeds; implements io.Writer so a
// network reader can copy straight into the scanner.
func (s *Scanner) Write(p []byte) (int, error) {
	return s.buf.Write(p)
}

// Lines drains every complete record currently buffered, in arrival order,
// with delimiters stripped. Empty lines are dropped.
func (s *Scanner) Lines() []string {
	data := s.buf.String()
	idx := strings.LastIndexByte(data, '\n')
	if idx < 0 {
		return nil
	}
	complete, rest := data[:idx+1], data[idx+1:]
	s.buf.Reset()
	s.buf.WriteString(rest)

	var lines []string
	for _, line := range strings.Split(complete, "\n") {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// Pending reports how many bytes of an incomplete record are buffered.
func (s *Scanner) Pending() int {
	return s.buf.Len()
}
