package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/forgestudio/internal/backend"
	"github.com/GriffinCanCode/forgestudio/internal/backend/stream"
	"github.com/GriffinCanCode/forgestudio/internal/domain/build"
	"github.com/GriffinCanCode/forgestudio/internal/domain/content"
	"github.com/GriffinCanCode/forgestudio/internal/domain/editor"
	"github.com/GriffinCanCode/forgestudio/internal/domain/tabs"
	"github.com/GriffinCanCode/forgestudio/internal/domain/tree"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/logging"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/forgestudio/internal/shared/types"
)

var (
	ErrClosed       = errors.New("workspace closed")
	ErrNotEditable  = errors.New("editor does not accept remote edits")
	ErrNoActiveFile = editor.ErrNoActiveFile
	ErrNotLoaded    = editor.ErrNotLoaded
)

// Backend is a workspace-bound handle on the remote backend
type Backend interface {
	ID() string
	ListTree(ctx context.Context) ([]types.FileEntry, error)
	ReadFile(ctx context.Context, path string) (string, error)
	WriteFile(ctx context.Context, path, content string) error
	StartBuild(ctx context.Context) (*backend.BuildInfo, error)
	OpenLogStream(ctx context.Context) (*stream.LogStream, error)
	PreviewURL(token string) string
}

// Options configures a workspace
type Options struct {
	Logger    *zap.Logger
	Metrics   *monitoring.Metrics
	Ignore    []string
	TabClose  tabs.CloseSelection
	Languages *editor.Languages
	Factory   editor.Factory
}

// Tab is one open file as shown in a tab strip
type Tab struct {
	Path   string        `json:"path"`
	Active bool          `json:"active"`
	Dirty  bool          `json:"dirty"`
	State  content.State `json:"state"`
}

// Workspace is the session model of one remote workspace. Safe for
// concurrent use.
type Workspace struct {
	backend Backend
	logger  *zap.Logger
	ignore  []string

	cache  *content.Cache
	tabs   *tabs.TabSet
	bridge *editor.Bridge
	build  *build.Session

	mu     sync.RWMutex
	forest []*types.FileNode
	loaded bool
	closed bool
}

// New binds a workspace to b
func New(b Backend, opts Options) *Workspace {
	logger := logging.OrNop(opts.Logger).With(zap.String("workspace", b.ID()))

	w := &Workspace{
		backend: b,
		logger:  logger,
		ignore:  opts.Ignore,
		tabs:    tabs.New(opts.TabClose),
	}
	w.cache = content.New(b, content.Options{
		Logger:  logger.Named("content"),
		Metrics: opts.Metrics,
	})
	w.bridge = editor.New(w.cache, w.tabs, b, opts.Factory, editor.Options{
		Logger:    logger.Named("editor"),
		Languages: opts.Languages,
	})
	w.build = build.New(build.Options{
		Logger:  logger.Named("build"),
		Metrics: opts.Metrics,
	})
	w.build.Bind(b)

	w.cache.SetAcceptor(w.isActive)
	w.cache.OnLoad(func(e content.Entry) {
		if w.isActive(e.Path) {
			w.bridge.Sync()
		}
	})
	return w
}

// Connect binds a workspace through client, creating a new remote
// workspace when id is empty.
func Connect(ctx context.Context, client *backend.Client, id string, opts Options) (*Workspace, error) {
	if id == "" {
		created, err := client.CreateWorkspace(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create workspace: %w", err)
		}
		id = created
		logging.OrNop(opts.Logger).Info("Created workspace", zap.String("workspace", id))
	}

	b, err := client.Bind(id)
	if err != nil {
		return nil, err
	}
	return New(b, opts), nil
}

func (w *Workspace) isActive(path string) bool {
	active, ok := w.tabs.Active()
	return ok && active == path
}

// ID returns the remote workspace id
func (w *Workspace) ID() string {
	return w.backend.ID()
}

// Build returns the workspace's build session
func (w *Workspace) Build() *build.Session {
	return w.build
}

// Editor returns the editor bridge
func (w *Workspace) Editor() *editor.Bridge {
	return w.bridge
}

// Tree returns the last fetched forest. It is nil before the first
// refresh.
func (w *Workspace) Tree() []*types.FileNode {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.forest
}

// RefreshTree fetches the listing and replaces the forest wholesale
func (w *Workspace) RefreshTree(ctx context.Context) ([]*types.FileNode, error) {
	if w.isClosed() {
		return nil, ErrClosed
	}

	entries, err := w.backend.ListTree(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspace: %w", err)
	}
	forest := tree.Build(entries, tree.WithIgnore(w.ignore...))

	w.mu.Lock()
	w.forest = forest
	w.loaded = true
	w.mu.Unlock()

	files, dirs := tree.Count(forest)
	w.logger.Debug("Tree refreshed", zap.Int("files", files), zap.Int("dirs", dirs))
	return forest, nil
}

// lookup finds path in the forest, fetching it first if needed
func (w *Workspace) lookup(ctx context.Context, path string) (*types.FileNode, error) {
	w.mu.RLock()
	forest, loaded := w.forest, w.loaded
	w.mu.RUnlock()

	if !loaded {
		var err error
		if forest, err = w.RefreshTree(ctx); err != nil {
			return nil, err
		}
	}
	return tree.Find(forest, path), nil
}

// Open opens path in a tab, makes it active and loads its content. Only
// files of the current forest can be opened. A failed fetch is recorded in
// the content entry, not returned.
func (w *Workspace) Open(ctx context.Context, path string) error {
	if w.isClosed() {
		return ErrClosed
	}

	node, err := w.lookup(ctx, path)
	if err != nil {
		return err
	}
	if node == nil || node.IsDir() {
		return types.InvalidReference("open", path)
	}

	prev, hadPrev := w.tabs.Active()
	w.tabs.Open(path)
	return w.switched(ctx, prev, hadPrev)
}

// Activate switches to an open tab
func (w *Workspace) Activate(ctx context.Context, path string) error {
	if w.isClosed() {
		return ErrClosed
	}

	prev, hadPrev := w.tabs.Active()
	if err := w.tabs.Activate(path); err != nil {
		return err
	}
	return w.switched(ctx, prev, hadPrev)
}

// CloseTab closes an open tab. Clean entries of closed files are evicted;
// dirty ones are kept so reopening restores the edit.
func (w *Workspace) CloseTab(ctx context.Context, path string) error {
	if w.isClosed() {
		return ErrClosed
	}

	prev, hadPrev := w.tabs.Active()
	if err := w.tabs.Close(path); err != nil {
		return err
	}

	if e := w.cache.Get(path); !e.Dirty {
		w.cache.Evict(path)
	} else {
		w.cache.Abandon(path)
	}
	return w.switched(ctx, prev, hadPrev)
}

// switched reconciles the editor and the cache after the active tab may
// have changed from prev.
func (w *Workspace) switched(ctx context.Context, prev string, hadPrev bool) error {
	active, ok := w.tabs.Active()
	if hadPrev && (!ok || prev != active) {
		w.cache.Abandon(prev)
	}

	w.bridge.Sync()
	if !ok {
		return nil
	}

	err := w.cache.EnsureLoaded(ctx, active)
	switch {
	case err == nil:
	case errors.Is(err, content.ErrAbandoned), errors.Is(err, content.ErrDiscarded):
		// Superseded by a later switch
		return nil
	default:
		return err
	}
	return nil
}

// Reload retries a file whose fetch failed
func (w *Workspace) Reload(ctx context.Context, path string) error {
	if !w.tabs.Contains(path) {
		return types.InvalidReference("reload", path)
	}
	err := w.cache.Reload(ctx, path)
	if errors.Is(err, content.ErrAbandoned) || errors.Is(err, content.ErrDiscarded) {
		return nil
	}
	return err
}

// Tabs returns the open files in tab order
func (w *Workspace) Tabs() []Tab {
	snap := w.tabs.Snapshot()
	out := make([]Tab, 0, len(snap.Files))
	for _, p := range snap.Files {
		e := w.cache.Get(p)
		out = append(out, Tab{
			Path:   p,
			Active: p == snap.Active,
			Dirty:  e.Dirty,
			State:  e.State,
		})
	}
	return out
}

// File returns the cached entry for path
func (w *Workspace) File(path string) content.Entry {
	return w.cache.Get(path)
}

// Type applies a user edit to the editor. base is the editor revision the
// edit was made against; nil means the current one. A file whose content
// is still loading or failed to load rejects edits with ErrNotLoaded.
func (w *Workspace) Type(value string, base *uint64) (editor.State, error) {
	active, ok := w.tabs.Active()
	if !ok {
		return editor.State{}, ErrNoActiveFile
	}
	if !w.cache.Get(active).Loaded() {
		return editor.State{}, ErrNotLoaded
	}

	mw, ok := w.bridge.Widget().(*editor.MemoryWidget)
	if !ok {
		return editor.State{}, ErrNotEditable
	}
	if base == nil {
		mw.Type(value)
	} else {
		mw.Edit(value, *base)
	}
	return w.bridge.State(), nil
}

// Save writes the editor's value for the active file
func (w *Workspace) Save(ctx context.Context) (*editor.SaveResult, error) {
	if w.isClosed() {
		return nil, ErrClosed
	}
	return w.bridge.Save(ctx)
}

func (w *Workspace) isClosed() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.closed
}

// Close tears the session down: the build stream is closed, fetches are
// abandoned and the editor widget is disposed.
func (w *Workspace) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.build.Close()
	w.cache.Close()
	w.bridge.Close()
	w.logger.Info("Workspace closed")
}
