package stream

import (
	"bufio"
	"io"
	"strings"
)

// Frame is one server-sent event
type Frame struct {
	Type string
	Data string
}

// Scanner reads server-sent event frames from a response body.
// Multiple data lines in one frame are joined with "\n"; comments and
// unknown fields are skipped.
type Scanner struct {
	reader  *bufio.Reader
	current Frame
	err     error
}

// NewScanner creates a scanner over r
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next frame. It returns false at end of stream or on
// a read error; Err tells the two apart.
func (s *Scanner) Next() bool {
	if s.err != nil {
		return false
	}
	s.current = Frame{}

	var data []string
	var eventType string

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			s.err = err
			// Frame cut off by EOF without its blank terminator
			if err == io.EOF && len(data) > 0 {
				s.current = Frame{Type: eventType, Data: strings.Join(data, "\n")}
				return true
			}
			return false
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if len(data) > 0 {
				s.current = Frame{Type: eventType, Data: strings.Join(data, "\n")}
				return true
			}
			eventType = ""
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, ok := strings.Cut(line, ":")
		if ok {
			value = strings.TrimPrefix(value, " ")
		} else {
			field, value = line, ""
		}

		switch field {
		case "data":
			data = append(data, value)
		case "event":
			eventType = value
		}
	}
}

// Frame returns the frame read by the last successful Next
func (s *Scanner) Frame() Frame {
	return s.current
}

// Err returns the read error that stopped the scanner, or nil on clean EOF
func (s *Scanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}
