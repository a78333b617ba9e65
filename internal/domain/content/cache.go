// Package content caches file text for open files.
//
// Entries start UNLOADED, become LOADED from a backend fetch or a local
// edit, and record LOAD_ERROR when a fetch fails. Concurrent loads of the
// same path share one fetch.
package content

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/logging"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/monitoring"
)

var (
	// ErrClosed is returned by loads after Close
	ErrClosed = errors.New("content cache closed")
	// ErrAbandoned is returned to callers waiting on an abandoned fetch
	ErrAbandoned = errors.New("content fetch abandoned")
	// ErrDiscarded is returned when a completed fetch was rejected by the
	// acceptor; the entry stays UNLOADED
	ErrDiscarded = errors.New("content fetch discarded")
)

// State of a cache entry
type State int

const (
	StateUnloaded State = iota
	StateLoaded
	StateLoadError
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateLoaded:
		return "LOADED"
	case StateLoadError:
		return "LOAD_ERROR"
	default:
		return "UNLOADED"
	}
}

// MarshalText encodes the state name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Entry is a copy of one cached file
type Entry struct {
	Path  string `json:"path"`
	State State  `json:"state"`
	Text  string `json:"text,omitempty"`
	// Err is the failure message of a LOAD_ERROR entry
	Err      string `json:"error,omitempty"`
	Dirty    bool   `json:"dirty"`
	Revision uint64 `json:"revision"`
}

// Loaded reports whether the entry holds text
func (e Entry) Loaded() bool {
	return e.State == StateLoaded
}

// Fetcher reads file content from the backend
type Fetcher interface {
	ReadFile(ctx context.Context, path string) (string, error)
}

// Options holds optional collaborators
type Options struct {
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

type flight struct {
	cancel    context.CancelFunc
	abandoned bool
}

// Cache maps paths to file content. Safe for concurrent use.
type Cache struct {
	fetcher Fetcher
	group   singleflight.Group
	logger  *zap.Logger
	metrics *monitoring.Metrics

	base   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	entries  map[string]*Entry
	inflight map[string]*flight
	accept   func(path string) bool
	onLoad   func(Entry)
	closed   bool
}

// New creates a cache reading through fetcher
func New(fetcher Fetcher, opts Options) *Cache {
	base, cancel := context.WithCancel(context.Background())
	return &Cache{
		fetcher:  fetcher,
		logger:   logging.OrNop(opts.Logger),
		metrics:  opts.Metrics,
		base:     base,
		cancel:   cancel,
		entries:  make(map[string]*Entry),
		inflight: make(map[string]*flight),
	}
}

// SetAcceptor installs the stale-result guard. A completed fetch is stored
// only if accept(path) returns true at completion time.
func (c *Cache) SetAcceptor(accept func(path string) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accept = accept
}

// OnLoad registers fn to be called after a fetch result is stored
func (c *Cache) OnLoad(fn func(Entry)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLoad = fn
}

// Get returns a copy of the entry for path. Unknown paths are UNLOADED.
func (c *Cache) Get(path string) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[path]; ok {
		return *e
	}
	return Entry{Path: path}
}

// EnsureLoaded fetches path if its entry is UNLOADED. Concurrent callers
// for one path share a single fetch. A failed fetch is recorded as a
// LOAD_ERROR entry and is not returned as an error. ctx bounds only this
// caller's wait, not the shared fetch.
func (c *Cache) EnsureLoaded(ctx context.Context, path string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if e, ok := c.entries[path]; ok && e.State != StateUnloaded {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	return c.load(ctx, path)
}

// Reload retries a LOAD_ERROR entry. Entries holding text are left alone.
func (c *Cache) Reload(ctx context.Context, path string) error {
	c.mu.Lock()
	if e, ok := c.entries[path]; ok && e.State == StateLoadError {
		e.State = StateUnloaded
		e.Err = ""
		e.Revision++
	}
	c.mu.Unlock()

	return c.EnsureLoaded(ctx, path)
}

func (c *Cache) load(ctx context.Context, path string) error {
	ch := c.group.DoChan(path, func() (interface{}, error) {
		return nil, c.fetch(ctx, path)
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.metrics.IncSharedFetches()
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fetch reads path for every caller sharing the flight. The read keeps the
// starting caller's values, such as its trace, but is cancelled only by
// Abandon or Close.
func (c *Cache) fetch(ctx context.Context, path string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(c.base, cancel)
	fl := &flight{cancel: cancel}
	c.inflight[path] = fl
	accept := c.accept
	c.mu.Unlock()

	text, fetchErr := c.fetcher.ReadFile(fctx, path)
	stop()
	cancel()

	accepted := accept == nil || accept(path)

	c.mu.Lock()
	if c.inflight[path] == fl {
		delete(c.inflight, path)
	}

	switch {
	case fl.abandoned || c.closed:
		c.mu.Unlock()
		c.metrics.RecordContentFetch("abandoned")
		return ErrAbandoned
	case !accepted:
		c.mu.Unlock()
		c.metrics.RecordContentFetch("stale")
		c.metrics.IncStaleDiscards()
		c.logger.Warn("Discarding stale content fetch", zap.String("path", path))
		return ErrDiscarded
	}

	e := c.entryLocked(path)
	if e.State == StateLoaded {
		// A local edit landed while the fetch was in flight
		c.mu.Unlock()
		c.metrics.RecordContentFetch("superseded")
		return nil
	}

	if fetchErr != nil {
		e.State = StateLoadError
		e.Err = fetchErr.Error()
		e.Text = ""
		c.metrics.RecordContentFetch("error")
		c.logger.Debug("Content fetch failed", zap.String("path", path), zap.Error(fetchErr))
	} else {
		e.State = StateLoaded
		e.Text = text
		e.Err = ""
		c.metrics.RecordContentFetch("ok")
	}
	e.Dirty = false
	e.Revision++
	snapshot := *e
	onLoad := c.onLoad
	c.mu.Unlock()

	if onLoad != nil {
		onLoad(snapshot)
	}
	return nil
}

// SetLocal stores an edit made in the editor
func (c *Cache) SetLocal(path, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(path)
	if e.State == StateLoaded && e.Text == text {
		return
	}
	e.State = StateLoaded
	e.Text = text
	e.Err = ""
	e.Dirty = true
	e.Revision++
}

// Edit stores an editor change to an entry that holds text. UNLOADED and
// LOAD_ERROR entries are left untouched and Edit reports false.
func (c *Cache) Edit(path, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[path]
	if !ok || e.State != StateLoaded {
		return false
	}
	if e.Text != text {
		e.Text = text
		e.Dirty = true
		e.Revision++
	}
	return true
}

// MarkSaved clears the dirty flag if the entry still holds the saved text
func (c *Cache) MarkSaved(path, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[path]
	if !ok || e.State != StateLoaded || e.Text != text || !e.Dirty {
		return
	}
	e.Dirty = false
	e.Revision++
}

// Abandon cancels an in-flight fetch for path. Its result is dropped and
// the entry stays as it was.
func (c *Cache) Abandon(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abandonLocked(path)
}

func (c *Cache) abandonLocked(path string) {
	fl, ok := c.inflight[path]
	if !ok {
		return
	}
	fl.abandoned = true
	fl.cancel()
	delete(c.inflight, path)
	// Later loads start a fresh fetch instead of joining this one
	c.group.Forget(path)
}

// Evict drops the entry for path. Callers must not evict open files.
func (c *Cache) Evict(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abandonLocked(path)
	delete(c.entries, path)
}

// Paths returns the cached paths in sorted order
func (c *Cache) Paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.entries))
	for p := range c.entries {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Close abandons every in-flight fetch and rejects further loads
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	for p := range c.inflight {
		c.abandonLocked(p)
	}
	c.cancel()
}

func (c *Cache) entryLocked(path string) *Entry {
	e, ok := c.entries[path]
	if !ok {
		e = &Entry{Path: path}
		c.entries[path] = e
	}
	return e
}
