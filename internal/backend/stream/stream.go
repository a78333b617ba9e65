// Package stream consumes the build log event stream of the workspace
// backend.
package stream

import (
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/logging"
	"github.com/GriffinCanCode/forgestudio/internal/shared/types"
)

const eventBuffer = 64

// LogStream is a cancellable subscription to one build's log stream.
// Events are delivered in stream order and none are dropped. The channel
// closes after an exit event, when the stream ends, or after Close.
type LogStream struct {
	body   io.ReadCloser
	events chan Event
	done   chan struct{}
	logger *zap.Logger

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
	closed    bool
}

// New starts reading frames from body. The stream owns body and closes it.
func New(body io.ReadCloser, logger *zap.Logger) *LogStream {
	s := &LogStream{
		body:   body,
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
		logger: logging.OrNop(logger),
	}
	go s.run()
	return s
}

// Events returns the event channel
func (s *LogStream) Events() <-chan Event {
	return s.events
}

// Err reports why the event channel closed. It is nil after an exit event
// or Close, and a STREAM_DISCONNECTED error when the stream ended without
// a terminal event. Only meaningful once Events is closed.
func (s *LogStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the stream. Safe to call more than once.
func (s *LogStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		err = s.body.Close()
	})
	return err
}

func (s *LogStream) run() {
	defer close(s.events)
	defer s.body.Close()

	scanner := NewScanner(s.body)
	for scanner.Next() {
		ev := Parse(scanner.Frame().Data)

		select {
		case s.events <- ev:
		case <-s.done:
			return
		}

		if ev.Kind == EventExit {
			s.logger.Debug("Build stream finished", zap.Int("code", ev.Code))
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	cause := scanner.Err()
	if cause == nil {
		cause = io.ErrUnexpectedEOF
	}
	s.err = &types.Error{Kind: types.KindStreamDisconnected, Op: "build logs", Err: cause}
	s.logger.Debug("Build stream ended without exit", zap.Error(cause))
}
