package workspace

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/forgestudio/internal/backend"
	"github.com/GriffinCanCode/forgestudio/internal/domain/build"
	"github.com/GriffinCanCode/forgestudio/internal/domain/content"
	"github.com/GriffinCanCode/forgestudio/internal/domain/editor"
	"github.com/GriffinCanCode/forgestudio/internal/domain/tabs"
	"github.com/GriffinCanCode/forgestudio/internal/shared/types"
	"github.com/GriffinCanCode/forgestudio/internal/testutil"
)

var listing = []types.FileEntry{
	{Path: "pubspec.yaml", Kind: types.KindFile},
	{Path: "lib/main.dart", Kind: types.KindFile},
	{Path: "lib/app.dart", Kind: types.KindFile},
	{Path: "build/web/index.html", Kind: types.KindFile},
}

func newWorkspace(t *testing.T) (*Workspace, *testutil.MockBackend) {
	t.Helper()
	b := testutil.NewMockBackend(t, "ws1")
	b.On("ListTree", mock.Anything).Return(listing, nil).Maybe()

	w := New(b, Options{Ignore: []string{"build/**"}, TabClose: tabs.SelectLeftNeighbor})
	t.Cleanup(w.Close)
	return w, b
}

func TestRefreshTree(t *testing.T) {
	w, _ := newWorkspace(t)
	assert.Nil(t, w.Tree())

	forest, err := w.RefreshTree(context.Background())
	require.NoError(t, err)

	require.Len(t, forest, 2)
	assert.Equal(t, "lib", forest[0].Path)
	assert.Equal(t, "pubspec.yaml", forest[1].Path)
	assert.Equal(t, forest, w.Tree())
}

func TestRefreshTreeFailure(t *testing.T) {
	b := testutil.NewMockBackend(t, "ws1")
	b.On("ListTree", mock.Anything).Return(nil, types.NewError(types.KindNetworkFailure, "list tree", errors.New("refused"))).Once()
	w := New(b, Options{})
	defer w.Close()

	_, err := w.RefreshTree(context.Background())
	assert.ErrorIs(t, err, types.ErrNetworkFailure)
}

func TestOpenLoadsAndShowsFile(t *testing.T) {
	w, b := newWorkspace(t)
	b.On("ReadFile", mock.Anything, "lib/main.dart").Return("void main() {}", nil).Once()

	require.NoError(t, w.Open(context.Background(), "lib/main.dart"))

	entry := w.File("lib/main.dart")
	assert.Equal(t, content.StateLoaded, entry.State)

	state := w.Editor().State()
	assert.Equal(t, "lib/main.dart", state.Path)
	assert.Equal(t, "dart", state.Language)
	assert.Equal(t, "void main() {}", state.Value)

	assert.Equal(t, []Tab{{Path: "lib/main.dart", Active: true, State: content.StateLoaded}}, w.Tabs())
}

func TestOpenRejectsUnknownPaths(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"missing", "lib/missing.dart"},
		{"directory", "lib"},
		{"ignored", "build/web/index.html"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := newWorkspace(t)
			err := w.Open(context.Background(), tt.path)
			assert.ErrorIs(t, err, types.ErrInvalidReference)
			assert.Empty(t, w.Tabs())
		})
	}
}

func TestOpenFetchFailureIsData(t *testing.T) {
	w, b := newWorkspace(t)
	b.On("ReadFile", mock.Anything, "pubspec.yaml").Return("", errors.New("boom")).Once()
	b.On("ReadFile", mock.Anything, "pubspec.yaml").Return("name: app", nil).Once()

	require.NoError(t, w.Open(context.Background(), "pubspec.yaml"))
	entry := w.File("pubspec.yaml")
	assert.Equal(t, content.StateLoadError, entry.State)
	assert.Equal(t, "", w.Editor().State().Value)

	require.NoError(t, w.Reload(context.Background(), "pubspec.yaml"))
	assert.Equal(t, "name: app", w.Editor().State().Value)
}

func TestFailedFileRejectsEditAndSave(t *testing.T) {
	w, b := newWorkspace(t)
	b.On("ReadFile", mock.Anything, "pubspec.yaml").Return("", errors.New("boom")).Once()

	ctx := context.Background()
	require.NoError(t, w.Open(ctx, "pubspec.yaml"))

	_, err := w.Type("name: clobbered", nil)
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = w.Save(ctx)
	assert.ErrorIs(t, err, ErrNotLoaded)

	entry := w.File("pubspec.yaml")
	assert.Equal(t, content.StateLoadError, entry.State)
	assert.False(t, entry.Dirty)
	b.AssertNotCalled(t, "WriteFile", mock.Anything, "pubspec.yaml", mock.Anything)
}

func TestSwitchingFilesDiscardsStaleFetch(t *testing.T) {
	w, b := newWorkspace(t)

	started := make(chan struct{})
	release := make(chan struct{})
	b.On("ReadFile", mock.Anything, "lib/main.dart").
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return("main", nil).Once()
	b.On("ReadFile", mock.Anything, "lib/app.dart").Return("app", nil).Once()

	openErr := make(chan error, 1)
	go func() { openErr <- w.Open(context.Background(), "lib/main.dart") }()
	<-started

	require.NoError(t, w.Open(context.Background(), "lib/app.dart"))
	close(release)
	require.NoError(t, <-openErr)

	assert.Equal(t, content.StateUnloaded, w.File("lib/main.dart").State)
	assert.Equal(t, "app", w.Editor().State().Value)
	assert.Equal(t, "lib/app.dart", w.Editor().State().Path)
}

func TestCloseTabSelectsLeftNeighbour(t *testing.T) {
	w, b := newWorkspace(t)
	b.On("ReadFile", mock.Anything, mock.Anything).Return("x", nil)

	ctx := context.Background()
	for _, p := range []string{"lib/app.dart", "lib/main.dart", "pubspec.yaml"} {
		require.NoError(t, w.Open(ctx, p))
	}
	require.NoError(t, w.Activate(ctx, "lib/main.dart"))
	require.NoError(t, w.CloseTab(ctx, "lib/main.dart"))

	assert.Equal(t, "lib/app.dart", w.Editor().State().Path)
	assert.NotContains(t, w.cacheNames(), "lib/main.dart")

	err := w.CloseTab(ctx, "lib/main.dart")
	assert.ErrorIs(t, err, types.ErrInvalidReference)
}

func TestDirtyEntrySurvivesClose(t *testing.T) {
	w, b := newWorkspace(t)
	b.On("ReadFile", mock.Anything, "lib/main.dart").Return("v1", nil).Once()

	ctx := context.Background()
	require.NoError(t, w.Open(ctx, "lib/main.dart"))
	_, err := w.Type("v2", nil)
	require.NoError(t, err)
	assert.True(t, w.Tabs()[0].Dirty)

	require.NoError(t, w.CloseTab(ctx, "lib/main.dart"))
	require.NoError(t, w.Open(ctx, "lib/main.dart"))
	assert.Equal(t, "v2", w.Editor().State().Value)
}

func TestTypeAndSave(t *testing.T) {
	w, b := newWorkspace(t)
	b.On("ReadFile", mock.Anything, "lib/main.dart").Return("v1", nil).Once()
	b.On("WriteFile", mock.Anything, "lib/main.dart", "v2").Return(nil).Once()

	ctx := context.Background()
	_, err := w.Type("early", nil)
	assert.ErrorIs(t, err, ErrNoActiveFile)

	require.NoError(t, w.Open(ctx, "lib/main.dart"))
	state, err := w.Type("v2", nil)
	require.NoError(t, err)
	assert.Equal(t, "v2", state.Value)

	res, err := w.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, &editor.SaveResult{Path: "lib/main.dart", Size: 2}, res)
	assert.False(t, w.File("lib/main.dart").Dirty)
}

func TestStaleEditIsDropped(t *testing.T) {
	w, b := newWorkspace(t)
	b.On("ReadFile", mock.Anything, "lib/main.dart").Return("v1", nil).Once()
	b.On("ReadFile", mock.Anything, "lib/app.dart").Return("a1", nil).Once()

	ctx := context.Background()
	require.NoError(t, w.Open(ctx, "lib/main.dart"))
	old := w.Editor().State().Revision
	require.NoError(t, w.Open(ctx, "lib/app.dart"))

	_, err := w.Type("late", &old)
	require.NoError(t, err)
	assert.Equal(t, "a1", w.File("lib/app.dart").Text)
	assert.False(t, w.File("lib/app.dart").Dirty)
}

func TestBuildIsIndependentOfTabs(t *testing.T) {
	w, b := newWorkspace(t)
	b.On("StartBuild", mock.Anything).Return(&backend.BuildInfo{}, nil).Once()
	b.On("OpenLogStream", mock.Anything).Return(testutil.StreamOf("Compiling…", "EXIT 0"), nil).Once()

	require.NoError(t, w.Build().Trigger(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, w.Build().Wait(ctx))

	snap := w.Build().Snapshot()
	assert.Equal(t, build.PhaseSucceeded, snap.Phase)
	assert.Empty(t, w.Tabs())
}

func TestCloseTearsDown(t *testing.T) {
	w, b := newWorkspace(t)
	b.On("ReadFile", mock.Anything, "lib/main.dart").Return("v1", nil).Once()

	ctx := context.Background()
	require.NoError(t, w.Open(ctx, "lib/main.dart"))
	widget := w.Editor().Widget().(*editor.MemoryWidget)

	w.Close()
	w.Close()

	assert.True(t, widget.Disposed())
	assert.ErrorIs(t, w.Open(ctx, "pubspec.yaml"), ErrClosed)
	assert.ErrorIs(t, w.Build().Trigger(ctx), build.ErrClosed)
}

func (w *Workspace) cacheNames() []string {
	return w.cache.Paths()
}
