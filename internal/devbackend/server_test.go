package devbackend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/forgestudio/internal/backend"
	"github.com/GriffinCanCode/forgestudio/internal/domain/build"
	"github.com/GriffinCanCode/forgestudio/internal/domain/workspace"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/config"
	"github.com/GriffinCanCode/forgestudio/internal/shared/types"
)

func newDevServer(t *testing.T, commands ...string) (*httptest.Server, *backend.Client) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := NewStore(t.TempDir(), "", nil)
	require.NoError(t, err)
	api := NewServer(store, NewBuilder(commands, nil), nil)
	t.Cleanup(api.Close)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	client, err := backend.New(config.BackendConfig{
		URL:           srv.URL,
		APIPrefix:     "/api",
		PreviewPrefix: "/preview",
		Timeout:       5 * time.Second,
		RetryWaitMin:  time.Millisecond,
		RetryWaitMax:  time.Millisecond,
	}, backend.Options{})
	require.NoError(t, err)
	return srv, client
}

func TestClientRoundTrip(t *testing.T) {
	_, client := newDevServer(t)
	ctx := context.Background()

	wid, err := client.CreateWorkspace(ctx)
	require.NoError(t, err)
	ws, err := client.Bind(wid)
	require.NoError(t, err)

	entries, err := ws.ListTree(ctx)
	require.NoError(t, err)
	assert.Contains(t, entries, types.FileEntry{Path: "lib/main.dart", Kind: types.KindFile})
	assert.Contains(t, entries, types.FileEntry{Path: "lib", Kind: types.KindDirectory})

	require.NoError(t, ws.WriteFile(ctx, "lib/app.dart", "// app"))
	text, err := ws.ReadFile(ctx, "lib/app.dart")
	require.NoError(t, err)
	assert.Equal(t, "// app", text)

	_, err = ws.ReadFile(ctx, "lib/missing.dart")
	assert.ErrorIs(t, err, types.ErrRemoteRejected)
	assert.Equal(t, 404, remoteStatus(err))
}

func TestUnknownWorkspace(t *testing.T) {
	_, client := newDevServer(t)
	ws, err := client.Bind("deadbeef")
	require.NoError(t, err)

	_, err = ws.ListTree(context.Background())
	assert.ErrorIs(t, err, types.ErrRemoteRejected)
}

func TestBuildThroughSession(t *testing.T) {
	tests := []struct {
		name      string
		commands  []string
		wantPhase build.Phase
	}{
		{
			name:      "success publishes preview",
			commands:  []string{"echo compiling", "mkdir -p build/web", "cp web/index.html build/web/index.html"},
			wantPhase: build.PhaseSucceeded,
		},
		{
			name:      "failure",
			commands:  []string{"echo compiling", "false"},
			wantPhase: build.PhaseFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, client := newDevServer(t, tt.commands...)
			ctx := context.Background()

			w, err := workspace.Connect(ctx, client, "", workspace.Options{})
			require.NoError(t, err)
			defer w.Close()

			require.NoError(t, w.Build().Trigger(ctx))
			waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			require.NoError(t, w.Build().Wait(waitCtx))

			snap := w.Build().Snapshot()
			assert.Equal(t, tt.wantPhase, snap.Phase)
			assert.Equal(t, build.LineStarted, snap.LogLines[0])
			assert.Contains(t, snap.LogLines, "compiling")

			if tt.wantPhase != build.PhaseSucceeded {
				return
			}
			resp, err := http.Get(srv.URL + "/preview/" + w.ID() + "/build/web/index.html")
			require.NoError(t, err)
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Contains(t, string(body), `<base href="/preview/`+w.ID()+`/build/web/">`)
			assert.Contains(t, snap.PreviewURL, "/preview/"+w.ID()+"/build/web/index.html?v="+snap.PreviewToken)
		})
	}
}

func TestTreeIsCompressed(t *testing.T) {
	srv, client := newDevServer(t)
	wid, err := client.CreateWorkspace(context.Background())
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/workspaces/"+wid, nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := http.DefaultTransport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Vary"), "Accept-Encoding")
}

func remoteStatus(err error) int {
	var e *types.Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}
