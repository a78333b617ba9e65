package stream

import (
	"strconv"
	"strings"
)

// EventKind distinguishes log lines from the terminal exit marker
type EventKind int

const (
	EventLine EventKind = iota
	EventExit
)

// Event is one parsed build log message
type Event struct {
	Kind EventKind
	Line string
	Code int
}

// Terminal markers. The legacy spelling is still emitted by older backends.
const (
	exitMarker       = "EXIT"
	legacyExitMarker = "__EXIT__"
)

// Parse classifies a frame payload. "EXIT <code>" and "__EXIT__ <code>"
// with an integer code are exit events; everything else is a log line.
func Parse(data string) Event {
	fields := strings.Fields(data)
	if len(fields) == 2 && (fields[0] == exitMarker || fields[0] == legacyExitMarker) {
		if code, err := strconv.Atoi(fields[1]); err == nil {
			return Event{Kind: EventExit, Code: code}
		}
	}
	return Event{Kind: EventLine, Line: data}
}

// ExitFrame formats the terminal frame payload for code
func ExitFrame(code int) string {
	return exitMarker + " " + strconv.Itoa(code)
}
