// Package testutil provides mocks and stream helpers for package tests.
package testutil

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/GriffinCanCode/forgestudio/internal/backend"
	"github.com/GriffinCanCode/forgestudio/internal/backend/stream"
	"github.com/GriffinCanCode/forgestudio/internal/shared/types"
)

// MockBackend is a mock of a workspace-bound backend handle.
type MockBackend struct {
	mock.Mock
}

// ID mocks the ID method.
func (m *MockBackend) ID() string {
	args := m.Called()
	return args.String(0)
}

// ListTree mocks the ListTree method.
func (m *MockBackend) ListTree(ctx context.Context) ([]types.FileEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.FileEntry), args.Error(1)
}

// ReadFile mocks the ReadFile method.
func (m *MockBackend) ReadFile(ctx context.Context, path string) (string, error) {
	args := m.Called(ctx, path)
	return args.String(0), args.Error(1)
}

// WriteFile mocks the WriteFile method.
func (m *MockBackend) WriteFile(ctx context.Context, path, content string) error {
	args := m.Called(ctx, path, content)
	return args.Error(0)
}

// StartBuild mocks the StartBuild method.
func (m *MockBackend) StartBuild(ctx context.Context) (*backend.BuildInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*backend.BuildInfo), args.Error(1)
}

// OpenLogStream mocks the OpenLogStream method.
func (m *MockBackend) OpenLogStream(ctx context.Context) (*stream.LogStream, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stream.LogStream), args.Error(1)
}

// PreviewURL mocks the PreviewURL method.
func (m *MockBackend) PreviewURL(token string) string {
	args := m.Called(token)
	if fn, ok := args.Get(0).(func(string) string); ok {
		return fn(token)
	}
	return args.String(0)
}

// NewMockBackend creates a mock backend with default behaviors for ID and PreviewURL.
func NewMockBackend(t *testing.T, workspaceID string) *MockBackend {
	t.Helper()
	m := new(MockBackend)

	m.On("ID").Return(workspaceID).Maybe()
	m.On("PreviewURL", mock.Anything).Return(func(token string) string {
		return "/preview/" + workspaceID + "/build/web/index.html?v=" + token
	}).Maybe()

	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Frames renders payloads as server-sent event frames.
func Frames(payloads ...string) string {
	var sb strings.Builder
	for _, p := range payloads {
		fmt.Fprintf(&sb, "data: %s\n\n", p)
	}
	return sb.String()
}

// StreamOf returns a log stream that replays payloads and then ends.
func StreamOf(payloads ...string) *stream.LogStream {
	return stream.New(io.NopCloser(strings.NewReader(Frames(payloads...))), nil)
}

// StreamFeed writes frames into a live log stream.
type StreamFeed struct {
	w *io.PipeWriter
}

// LiveStream returns a log stream fed by the returned StreamFeed.
func LiveStream() (*stream.LogStream, *StreamFeed) {
	r, w := io.Pipe()
	return stream.New(r, nil), &StreamFeed{w: w}
}

// Send writes one log line frame. It blocks until the stream reads it.
func (f *StreamFeed) Send(payload string) error {
	_, err := io.WriteString(f.w, Frames(payload))
	return err
}

// Exit writes the terminal frame.
func (f *StreamFeed) Exit(code int) error {
	return f.Send(stream.ExitFrame(code))
}

// Drop ends the stream without a terminal frame.
func (f *StreamFeed) Drop() error {
	return f.w.Close()
}
