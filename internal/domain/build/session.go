// Package build drives remote builds and publishes their progress.
//
// A Session moves IDLE -> BUILDING -> SUCCEEDED | FAILED on each Trigger.
// It asks the backend to start a build, follows the log stream, and
// resolves the run from the stream's exit event. Views observe the session
// through subscriptions; the session never references them.
package build

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/forgestudio/internal/backend"
	"github.com/GriffinCanCode/forgestudio/internal/backend/stream"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/logging"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/forgestudio/internal/shared/id"
)

var (
	ErrNoWorkspace     = errors.New("no workspace bound")
	ErrBuildInProgress = errors.New("build already in progress")
	ErrClosed          = errors.New("build session closed")
)

// Synthetic log lines
const (
	LineStarted      = "Starting build..."
	LineDisconnected = "Build stream disconnected."
	LineCancelled    = "Build cancelled."
)

// FailedLine is appended when a build exits non-zero
func FailedLine(code int) string {
	return fmt.Sprintf("Build failed (exit %d)", code)
}

// RejectedLine is appended when the backend refuses to start a build
func RejectedLine(err error) string {
	return fmt.Sprintf("Build request failed: %v", err)
}

// Backend is the part of the workspace backend a build needs
type Backend interface {
	StartBuild(ctx context.Context) (*backend.BuildInfo, error)
	OpenLogStream(ctx context.Context) (*stream.LogStream, error)
	PreviewURL(token string) string
}

// Options holds optional collaborators
type Options struct {
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

// Session is the build state machine for one workspace. Safe for
// concurrent use.
type Session struct {
	logger  *zap.Logger
	metrics *monitoring.Metrics
	hub     *broadcaster

	mu      sync.Mutex
	backend Backend
	state   Snapshot
	stream  *stream.LogStream
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool
}

// New creates an idle session with no workspace bound
func New(opts Options) *Session {
	return &Session{
		logger:  logging.OrNop(opts.Logger),
		metrics: opts.Metrics,
		hub:     newBroadcaster(),
	}
}

// Bind sets the workspace backend builds run against
func (s *Session) Bind(b Backend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend = b
}

// Trigger starts a build. It returns once the run is under way; use Wait
// or a subscription to follow it. The run outlives ctx's cancellation but
// keeps its values.
func (s *Session) Trigger(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return ErrClosed
	case s.backend == nil:
		s.logger.Warn("Build requested with no workspace bound")
		return ErrNoWorkspace
	case s.state.Phase == PhaseBuilding:
		return ErrBuildInProgress
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})

	s.state.Run++
	s.state.Phase = PhaseBuilding
	s.state.LogLines = []string{LineStarted}
	s.state.ExitCode = nil
	s.state.StartedAt = time.Now()
	s.state.FinishedAt = time.Time{}
	s.publishLocked()

	s.logger.Info("Build started", zap.Uint64("run", s.state.Run))
	go s.run(runCtx, s.state.Run, s.backend, s.done)
	return nil
}

func (s *Session) run(ctx context.Context, run uint64, b Backend, done chan struct{}) {
	defer close(done)

	if _, err := b.StartBuild(ctx); err != nil {
		s.finish(run, PhaseFailed, nil, RejectedLine(err))
		return
	}

	logs, err := b.OpenLogStream(ctx)
	if err != nil {
		s.logger.Warn("Failed to open build stream", zap.Uint64("run", run), zap.Error(err))
		s.finish(run, PhaseFailed, nil, LineDisconnected)
		return
	}
	defer logs.Close()

	s.mu.Lock()
	if s.state.Run != run || s.state.Phase != PhaseBuilding {
		s.mu.Unlock()
		return
	}
	s.stream = logs
	s.mu.Unlock()

	for ev := range logs.Events() {
		switch ev.Kind {
		case stream.EventLine:
			s.appendLine(run, ev.Line)
		case stream.EventExit:
			code := ev.Code
			if code == 0 {
				s.finish(run, PhaseSucceeded, &code, "")
			} else {
				s.finish(run, PhaseFailed, &code, FailedLine(code))
			}
			return
		}
	}

	if err := logs.Err(); err != nil {
		s.logger.Warn("Build stream disconnected", zap.Uint64("run", run), zap.Error(err))
	}
	// No-op when Close already resolved the run
	s.finish(run, PhaseFailed, nil, LineDisconnected)
}

func (s *Session) appendLine(run uint64, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Run != run || s.state.Phase != PhaseBuilding {
		return
	}
	s.state.LogLines = append(s.state.LogLines, line)
	s.metrics.IncLogLines()
	s.logger.Debug("Build log", zap.Uint64("run", run), zap.String("line", line))
	s.publishLocked()
}

// finish resolves run. Only the first resolution of the current run counts.
func (s *Session) finish(run uint64, phase Phase, code *int, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Run != run || s.state.Phase != PhaseBuilding {
		return
	}
	s.resolveLocked(phase, code, line)
}

func (s *Session) resolveLocked(phase Phase, code *int, line string) {
	if line != "" {
		s.state.LogLines = append(s.state.LogLines, line)
	}
	s.state.Phase = phase
	s.state.ExitCode = code
	s.state.FinishedAt = time.Now()
	if phase == PhaseSucceeded {
		s.state.PreviewToken = id.NewPreviewToken().String()
	}
	s.stream = nil
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	elapsed := s.state.FinishedAt.Sub(s.state.StartedAt)
	s.metrics.RecordBuild(phase.String(), elapsed)
	s.logger.Info("Build finished",
		zap.Uint64("run", s.state.Run),
		zap.String("phase", phase.String()),
		zap.Duration("elapsed", elapsed))
	s.publishLocked()
}

func (s *Session) publishLocked() {
	s.state.Seq++
	if s.backend != nil && s.state.PreviewToken != "" {
		s.state.PreviewURL = s.backend.PreviewURL(s.state.PreviewToken)
	}
	s.hub.publish(s.snapshotLocked())
}

func (s *Session) snapshotLocked() Snapshot {
	snap := s.state
	snap.LogLines = append([]string(nil), s.state.LogLines...)
	if s.state.ExitCode != nil {
		code := *s.state.ExitCode
		snap.ExitCode = &code
	}
	return snap
}

// Snapshot returns the current state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a subscription whose first snapshot is the current
// state.
func (s *Session) Subscribe() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hub.subscribe(s.snapshotLocked())
}

// Subscribers returns the number of live subscriptions
func (s *Session) Subscribers() int {
	return s.hub.count()
}

// Preview returns the current token and the entry URL carrying it. URL is
// empty with no workspace bound.
func (s *Session) Preview() Preview {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := Preview{Token: s.state.PreviewToken, Phase: s.state.Phase}
	if s.backend != nil {
		p.URL = s.backend.PreviewURL(p.Token)
	}
	return p
}

// Wait blocks until the current run is resolved and its goroutine is gone
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close resolves a running build as cancelled, closes its stream, and
// ends all subscriptions.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	logs := s.stream
	if s.state.Phase == PhaseBuilding {
		s.resolveLocked(PhaseFailed, nil, LineCancelled)
	}
	s.mu.Unlock()

	if logs != nil {
		logs.Close()
	}
	s.hub.close()
}
