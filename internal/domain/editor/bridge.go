// Package editor keeps the embedded editor widget in step with the content
// cache and the active tab.
//
// Two sources change the document: the user typing into the widget, and the
// session pushing text into it (switching files, content arriving). The
// bridge relays user edits into the cache and pushes cache text into the
// widget without letting either direction feed back into the other. A push
// happens only when the widget value differs from the cache, the widget's
// echo of a push is ignored, and every push carries a revision so that an
// edit based on an older revision is dropped.
package editor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/forgestudio/internal/domain/content"
	"github.com/GriffinCanCode/forgestudio/internal/domain/tabs"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/logging"
)

var (
	ErrNoActiveFile = errors.New("no active file")
	ErrNoEditor     = errors.New("editor is not showing the active file")
	// ErrNotLoaded is returned when the active file has no text to edit or
	// save: its fetch is still running or failed
	ErrNotLoaded = errors.New("active file content is not loaded")
)

// Saver persists file content
type Saver interface {
	WriteFile(ctx context.Context, path, content string) error
}

// Options holds optional collaborators
type Options struct {
	Logger    *zap.Logger
	Languages *Languages
}

// SaveResult describes a completed save
type SaveResult struct {
	Path string `json:"path"`
	Size int    `json:"size"`
}

// State is a snapshot of the editor as the session sees it
type State struct {
	Path     string `json:"path"`
	Language string `json:"language"`
	Value    string `json:"value"`
	Revision uint64 `json:"revision"`
}

// Bridge reconciles the widget with the cache and tabs
type Bridge struct {
	cache   *content.Cache
	tabs    *tabs.TabSet
	saver   Saver
	factory Factory
	langs   *Languages
	logger  *zap.Logger

	mu       sync.Mutex
	widget   Widget
	cancel   func()
	path     string
	language string
	closed   bool

	// Read by the change handler, which runs inside SetValue while mu is held
	suppress atomic.Bool
	pushed   atomic.Uint64
}

// New creates a bridge. The widget is created on the first Sync that has
// an active file.
func New(cache *content.Cache, tabSet *tabs.TabSet, saver Saver, factory Factory, opts Options) *Bridge {
	if factory == nil {
		factory = MemoryFactory
	}
	langs := opts.Languages
	if langs == nil {
		langs = DefaultLanguages()
	}
	return &Bridge{
		cache:   cache,
		tabs:    tabSet,
		saver:   saver,
		factory: factory,
		langs:   langs,
		logger:  logging.OrNop(opts.Logger),
	}
}

// Languages returns the language table used by the bridge
func (b *Bridge) Languages() *Languages {
	return b.langs
}

// Sync pushes the active file's cached text and language into the widget.
// Call it when the active file changes and when the active entry loads.
// An UNLOADED or LOAD_ERROR entry, or no active file, displays as an empty
// document.
func (b *Bridge) Sync() {
	active, ok := b.tabs.Active()
	text, language := "", PlainText
	if ok {
		if entry := b.cache.Get(active); entry.Loaded() {
			text = entry.Text
		}
		language = b.langs.For(active)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	if b.widget == nil {
		if !ok {
			return
		}
		b.widget = b.factory(text, language)
		b.cancel = b.widget.OnChange(b.handleChange)
		b.path = active
		b.language = language
		return
	}

	if active != b.path || language != b.language {
		b.widget.SetLanguage(language)
		b.path = active
		b.language = language
	}

	if b.widget.Value() == text {
		return
	}

	revision := b.pushed.Add(1)
	b.suppress.Store(true)
	b.widget.SetValue(text, revision)
	b.suppress.Store(false)
}

// handleChange relays a user edit into the cache entry of the file the
// widget shows. Edits are dropped while that file is not the active tab or
// its content is not loaded.
func (b *Bridge) handleChange(ev ChangeEvent) {
	if b.suppress.Load() {
		return
	}
	if ev.BaseRevision != b.pushed.Load() {
		b.logger.Debug("Ignoring editor change from an older revision",
			zap.Uint64("base", ev.BaseRevision),
			zap.Uint64("current", b.pushed.Load()))
		return
	}

	b.mu.Lock()
	shown, closed := b.path, b.closed
	b.mu.Unlock()
	if closed {
		return
	}

	active, ok := b.tabs.Active()
	if !ok || active != shown {
		b.logger.Debug("Ignoring editor change for a file no longer active",
			zap.String("shown", shown))
		return
	}
	if !b.cache.Edit(shown, ev.Value) {
		b.logger.Debug("Ignoring editor change before content loaded",
			zap.String("path", shown))
	}
}

// State returns what the widget currently shows
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := State{Path: b.path, Language: b.language, Revision: b.pushed.Load()}
	if b.widget != nil {
		s.Value = b.widget.Value()
	}
	return s
}

// Widget returns the widget, or nil before the first Sync
func (b *Bridge) Widget() Widget {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.widget
}

// Save writes the widget's current value for the active file. The widget
// value is authoritative over the cache. A file whose content never loaded
// is not saved, so a failed fetch cannot overwrite the remote file. Editor
// state is not changed; on success the cache entry is marked clean if it
// still holds what was saved.
func (b *Bridge) Save(ctx context.Context) (*SaveResult, error) {
	active, ok := b.tabs.Active()
	if !ok {
		return nil, ErrNoActiveFile
	}

	b.mu.Lock()
	w, shown := b.widget, b.path
	b.mu.Unlock()
	if w == nil || shown != active {
		return nil, ErrNoEditor
	}
	if !b.cache.Get(active).Loaded() {
		return nil, ErrNotLoaded
	}

	value := w.Value()
	if err := b.saver.WriteFile(ctx, active, value); err != nil {
		b.logger.Warn("Save failed", zap.String("path", active), zap.Error(err))
		return nil, err
	}

	b.cache.MarkSaved(active, value)
	b.logger.Info("Saved file", zap.String("path", active), zap.Int("size", len(value)))
	return &SaveResult{Path: active, Size: len(value)}, nil
}

// Close unsubscribes from and disposes the widget
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	if b.cancel != nil {
		b.cancel()
	}
	if b.widget != nil {
		b.widget.Dispose()
	}
}
