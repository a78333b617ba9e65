package content

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/forgestudio/internal/testutil"
)

func newCache(t *testing.T) (*Cache, *testutil.MockBackend) {
	t.Helper()
	backend := testutil.NewMockBackend(t, "ws1")
	cache := New(backend, Options{})
	t.Cleanup(cache.Close)
	return cache, backend
}

func TestUnknownPathIsUnloaded(t *testing.T) {
	cache, _ := newCache(t)

	e := cache.Get("lib/main.dart")
	assert.Equal(t, StateUnloaded, e.State)
	assert.Equal(t, "lib/main.dart", e.Path)
	assert.False(t, e.Loaded())
}

func TestEnsureLoaded(t *testing.T) {
	cache, backend := newCache(t)
	backend.On("ReadFile", mock.Anything, "a.txt").Return("hello", nil).Once()

	require.NoError(t, cache.EnsureLoaded(context.Background(), "a.txt"))
	// Already loaded: no second fetch
	require.NoError(t, cache.EnsureLoaded(context.Background(), "a.txt"))

	e := cache.Get("a.txt")
	assert.Equal(t, StateLoaded, e.State)
	assert.Equal(t, "hello", e.Text)
	assert.False(t, e.Dirty)
	assert.Equal(t, uint64(1), e.Revision)
}

func TestConcurrentLoadsShareOneFetch(t *testing.T) {
	cache, backend := newCache(t)

	started := make(chan struct{})
	release := make(chan struct{})
	backend.On("ReadFile", mock.Anything, "a.txt").
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return("shared", nil).
		Once()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[0] = cache.EnsureLoaded(context.Background(), "a.txt")
	}()
	<-started

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[1] = cache.EnsureLoaded(context.Background(), "a.txt")
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Equal(t, "shared", cache.Get("a.txt").Text)
	backend.AssertNumberOfCalls(t, "ReadFile", 1)
}

func TestFetchFailureIsStoredAsLoadError(t *testing.T) {
	cache, backend := newCache(t)
	backend.On("ReadFile", mock.Anything, "a.txt").Return("", errors.New("file not found")).Once()

	require.NoError(t, cache.EnsureLoaded(context.Background(), "a.txt"))

	e := cache.Get("a.txt")
	assert.Equal(t, StateLoadError, e.State)
	assert.Equal(t, "file not found", e.Err)
	assert.Empty(t, e.Text)

	// LOAD_ERROR is a settled state for EnsureLoaded
	require.NoError(t, cache.EnsureLoaded(context.Background(), "a.txt"))
	backend.AssertNumberOfCalls(t, "ReadFile", 1)

	backend.On("ReadFile", mock.Anything, "a.txt").Return("recovered", nil).Once()
	require.NoError(t, cache.Reload(context.Background(), "a.txt"))
	e = cache.Get("a.txt")
	assert.Equal(t, StateLoaded, e.State)
	assert.Equal(t, "recovered", e.Text)
}

func TestAcceptorDiscardsStaleResults(t *testing.T) {
	cache, backend := newCache(t)
	backend.On("ReadFile", mock.Anything, "old.txt").Return("old", nil).Once()

	var loaded []Entry
	cache.OnLoad(func(e Entry) { loaded = append(loaded, e) })
	cache.SetAcceptor(func(path string) bool { return path == "new.txt" })

	err := cache.EnsureLoaded(context.Background(), "old.txt")
	assert.ErrorIs(t, err, ErrDiscarded)
	assert.Equal(t, StateUnloaded, cache.Get("old.txt").State)
	assert.Empty(t, loaded)

	backend.On("ReadFile", mock.Anything, "new.txt").Return("new", nil).Once()
	require.NoError(t, cache.EnsureLoaded(context.Background(), "new.txt"))
	require.Len(t, loaded, 1)
	assert.Equal(t, "new", loaded[0].Text)
}

func TestAbandonCancelsFetch(t *testing.T) {
	cache, backend := newCache(t)

	started := make(chan struct{})
	backend.On("ReadFile", mock.Anything, "a.txt").
		Run(func(args mock.Arguments) {
			close(started)
			<-args.Get(0).(context.Context).Done()
		}).
		Return("", context.Canceled).
		Once()

	done := make(chan error, 1)
	go func() { done <- cache.EnsureLoaded(context.Background(), "a.txt") }()
	<-started

	cache.Abandon("a.txt")

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrAbandoned)
	case <-time.After(time.Second):
		t.Fatal("abandoned load did not return")
	}
	assert.Equal(t, StateUnloaded, cache.Get("a.txt").State)
}

func TestCallerContextDoesNotCancelSharedFetch(t *testing.T) {
	cache, backend := newCache(t)

	release := make(chan struct{})
	backend.On("ReadFile", mock.Anything, "a.txt").
		Run(func(mock.Arguments) { <-release }).
		Return("late", nil).
		Once()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, cache.EnsureLoaded(ctx, "a.txt"), context.DeadlineExceeded)

	close(release)
	assert.Eventually(t, func() bool {
		return cache.Get("a.txt").Loaded()
	}, time.Second, 5*time.Millisecond)
}

func TestFetchKeepsCallerTrace(t *testing.T) {
	cache, backend := newCache(t)

	traced := mock.MatchedBy(func(ctx context.Context) bool {
		return tracing.TraceIDFrom(ctx) == "t1" && tracing.SpanIDFrom(ctx) == "s1"
	})
	backend.On("ReadFile", traced, "a.txt").Return("hello", nil).Once()

	ctx, cancel := context.WithCancel(tracing.WithSpan(context.Background(), "t1", "s1"))
	require.NoError(t, cache.EnsureLoaded(ctx, "a.txt"))
	cancel()

	assert.Equal(t, "hello", cache.Get("a.txt").Text)
	backend.AssertExpectations(t)
}

func TestLocalEditWinsOverInflightFetch(t *testing.T) {
	cache, backend := newCache(t)

	started := make(chan struct{})
	release := make(chan struct{})
	backend.On("ReadFile", mock.Anything, "a.txt").
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return("remote", nil).
		Once()

	done := make(chan error, 1)
	go func() { done <- cache.EnsureLoaded(context.Background(), "a.txt") }()
	<-started

	cache.SetLocal("a.txt", "typed")
	close(release)
	require.NoError(t, <-done)

	e := cache.Get("a.txt")
	assert.Equal(t, "typed", e.Text)
	assert.True(t, e.Dirty)
}

func TestSetLocalAndMarkSaved(t *testing.T) {
	cache, _ := newCache(t)

	cache.SetLocal("a.txt", "v1")
	e := cache.Get("a.txt")
	assert.True(t, e.Dirty)
	assert.Equal(t, uint64(1), e.Revision)

	// Same text is not a mutation
	cache.SetLocal("a.txt", "v1")
	assert.Equal(t, uint64(1), cache.Get("a.txt").Revision)

	cache.SetLocal("a.txt", "v2")
	// Saved text no longer matches the entry
	cache.MarkSaved("a.txt", "v1")
	assert.True(t, cache.Get("a.txt").Dirty)

	cache.MarkSaved("a.txt", "v2")
	e = cache.Get("a.txt")
	assert.False(t, e.Dirty)
	assert.Equal(t, uint64(3), e.Revision)
}

func TestEdit(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(c *Cache, b *testutil.MockBackend)
		want      bool
		wantState State
		wantText  string
		wantDirty bool
	}{
		{
			name:      "unknown path",
			setup:     func(*Cache, *testutil.MockBackend) {},
			wantState: StateUnloaded,
		},
		{
			name: "load error",
			setup: func(c *Cache, b *testutil.MockBackend) {
				b.On("ReadFile", mock.Anything, "a.txt").Return("", errors.New("file not found")).Once()
				_ = c.EnsureLoaded(context.Background(), "a.txt")
			},
			wantState: StateLoadError,
		},
		{
			name: "loaded",
			setup: func(c *Cache, b *testutil.MockBackend) {
				b.On("ReadFile", mock.Anything, "a.txt").Return("remote", nil).Once()
				_ = c.EnsureLoaded(context.Background(), "a.txt")
			},
			want:      true,
			wantState: StateLoaded,
			wantText:  "typed",
			wantDirty: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, backend := newCache(t)
			tt.setup(cache, backend)

			assert.Equal(t, tt.want, cache.Edit("a.txt", "typed"))

			e := cache.Get("a.txt")
			assert.Equal(t, tt.wantState, e.State)
			assert.Equal(t, tt.wantText, e.Text)
			assert.Equal(t, tt.wantDirty, e.Dirty)
		})
	}
}

func TestEvictAndPaths(t *testing.T) {
	cache, _ := newCache(t)

	cache.SetLocal("b.txt", "b")
	cache.SetLocal("a.txt", "a")
	assert.Equal(t, []string{"a.txt", "b.txt"}, cache.Paths())

	cache.Evict("a.txt")
	assert.Equal(t, []string{"b.txt"}, cache.Paths())
	assert.Equal(t, StateUnloaded, cache.Get("a.txt").State)
}

func TestClose(t *testing.T) {
	cache, _ := newCache(t)
	cache.Close()
	cache.Close()

	assert.ErrorIs(t, cache.EnsureLoaded(context.Background(), "a.txt"), ErrClosed)
}
