package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/forgestudio/internal/backend/stream"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/config"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/forgestudio/internal/shared/types"
)

func testConfig(url string) config.BackendConfig {
	cfg := config.Default().Backend
	cfg.URL = url
	cfg.RetryMax = 2
	cfg.RetryWaitMin = time.Millisecond
	cfg.RetryWaitMax = 2 * time.Millisecond
	cfg.Timeout = 5 * time.Second
	return cfg
}

func newTestWorkspace(t *testing.T, router http.Handler, mutate ...func(*config.BackendConfig)) (*Workspace, *Client) {
	t.Helper()
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	cfg := testConfig(server.URL)
	for _, m := range mutate {
		m(&cfg)
	}

	client, err := New(cfg, Options{})
	require.NoError(t, err)
	ws, err := client.Bind("ws1")
	require.NoError(t, err)
	return ws, client
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(config.BackendConfig{URL: "not a url"}, Options{})
	assert.Error(t, err)
}

func TestBindValidatesWorkspaceID(t *testing.T) {
	client, err := New(testConfig("http://localhost:1"), Options{})
	require.NoError(t, err)

	_, err = client.Bind("")
	assert.Error(t, err)
	_, err = client.Bind("../etc")
	assert.Error(t, err)
}

func TestCreateWorkspace(t *testing.T) {
	router := newRouter()
	router.POST("/api/workspaces", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"workspaceId": "abc123"})
	})
	_, client := newTestWorkspace(t, router)

	wid, err := client.CreateWorkspace(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", wid)
}

func TestListTree(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []types.FileEntry
	}{
		{
			name: "flat listing",
			body: `{"files":[{"path":"lib","type":"folder"},{"path":"lib/main.dart","type":"file"}]}`,
			want: []types.FileEntry{
				{Path: "lib", Kind: types.KindDirectory},
				{Path: "lib/main.dart", Kind: types.KindFile},
			},
		},
		{
			name: "nested listing",
			body: `{"files":[{"id":"lib","path":"lib","name":"lib","type":"dir","children":[{"path":"lib/main.dart","name":"main.dart","type":"file","size":10}]}]}`,
			want: []types.FileEntry{
				{Path: "lib", Kind: types.KindDirectory},
				{Path: "lib/main.dart", Kind: types.KindFile},
			},
		},
		{
			name: "empty workspace",
			body: `{"files":[]}`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter()
			router.GET("/api/workspaces/:wid", func(c *gin.Context) {
				assert.Equal(t, "ws1", c.Param("wid"))
				c.Data(http.StatusOK, "application/json", []byte(tt.body))
			})
			ws, _ := newTestWorkspace(t, router)

			files, err := ws.ListTree(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, files)
		})
	}
}

func TestReadFile(t *testing.T) {
	router := newRouter()
	router.GET("/api/workspaces/:wid/file", func(c *gin.Context) {
		assert.NotEmpty(t, c.GetHeader(RequestIDHeader))
		assert.Equal(t, "Bearer secret", c.GetHeader("Authorization"))
		c.JSON(http.StatusOK, gin.H{"path": c.Query("path"), "content": "void main() {}"})
	})
	ws, _ := newTestWorkspace(t, router, func(cfg *config.BackendConfig) {
		cfg.AuthToken = "secret"
	})

	text, err := ws.ReadFile(context.Background(), "lib/main.dart")
	require.NoError(t, err)
	assert.Equal(t, "void main() {}", text)
}

func TestReadFileRejected(t *testing.T) {
	router := newRouter()
	router.GET("/api/workspaces/:wid/file", func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "file not found"})
	})
	ws, client := newTestWorkspace(t, router)

	_, err := ws.ReadFile(context.Background(), "missing.txt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrRemoteRejected))

	var e *types.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, http.StatusNotFound, e.Status)
	assert.Equal(t, "missing.txt", e.Path)
	assert.Contains(t, err.Error(), "file not found")

	assert.Equal(t, resilience.StateClosed, client.Breaker().State())
	assert.Equal(t, uint32(0), client.Breaker().Counts().ConsecutiveFailures)
}

func TestReadFileInvalidPathSendsNothing(t *testing.T) {
	var hits atomic.Int32
	router := newRouter()
	router.GET("/api/workspaces/:wid/file", func(c *gin.Context) {
		hits.Add(1)
		c.JSON(http.StatusOK, gin.H{})
	})
	ws, _ := newTestWorkspace(t, router)

	for _, p := range []string{"", "/etc/passwd", "../secret", "a b.txt"} {
		_, err := ws.ReadFile(context.Background(), p)
		assert.True(t, errors.Is(err, types.ErrInvalidReference), p)
	}
	assert.Equal(t, int32(0), hits.Load())
}

func TestReadRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	router := newRouter()
	router.GET("/api/workspaces/:wid/file", func(c *gin.Context) {
		if hits.Add(1) < 3 {
			c.Status(http.StatusServiceUnavailable)
			return
		}
		c.JSON(http.StatusOK, gin.H{"path": "a.txt", "content": "ok"})
	})
	ws, _ := newTestWorkspace(t, router)

	text, err := ws.ReadFile(context.Background(), "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(3), hits.Load())
}

func TestBuildIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	router := newRouter()
	router.POST("/api/workspaces/:wid/build", func(c *gin.Context) {
		hits.Add(1)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "toolchain missing"})
	})
	ws, _ := newTestWorkspace(t, router)

	_, err := ws.StartBuild(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrRemoteRejected))
	assert.Contains(t, err.Error(), "toolchain missing")
	assert.Equal(t, int32(1), hits.Load())
}

func TestWriteFile(t *testing.T) {
	var got FileContent
	router := newRouter()
	router.PUT("/api/workspaces/:wid/file", func(c *gin.Context) {
		require.NoError(t, c.ShouldBindJSON(&got))
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	ws, _ := newTestWorkspace(t, router)

	require.NoError(t, ws.WriteFile(context.Background(), "lib/main.dart", "x := 1"))
	assert.Equal(t, FileContent{Path: "lib/main.dart", Content: "x := 1"}, got)
}

func TestNetworkFailureTripsBreaker(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	cfg := testConfig(url)
	cfg.RetryMax = 0
	client, err := New(cfg, Options{})
	require.NoError(t, err)
	ws, err := client.Bind("ws1")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := ws.ListTree(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, types.ErrNetworkFailure))
	}
	assert.Equal(t, resilience.StateOpen, client.Breaker().State())

	_, err = ws.ListTree(context.Background())
	assert.True(t, errors.Is(err, types.ErrNetworkFailure))
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
}

func TestOpenLogStream(t *testing.T) {
	router := newRouter()
	router.GET("/api/workspaces/:wid/build/logs", func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		for _, line := range []string{"Compiling...", "__EXIT__ 0"} {
			fmt.Fprintf(c.Writer, "data: %s\n\n", line)
			c.Writer.Flush()
		}
	})
	ws, _ := newTestWorkspace(t, router)

	logs, err := ws.OpenLogStream(context.Background())
	require.NoError(t, err)
	defer logs.Close()

	var events []stream.Event
	for ev := range logs.Events() {
		events = append(events, ev)
	}
	assert.Equal(t, []stream.Event{
		{Kind: stream.EventLine, Line: "Compiling..."},
		{Kind: stream.EventExit, Code: 0},
	}, events)
	assert.NoError(t, logs.Err())
}

func TestOpenLogStreamRejected(t *testing.T) {
	router := newRouter()
	router.GET("/api/workspaces/:wid/build/logs", func(c *gin.Context) {
		c.String(http.StatusConflict, "no build prepared")
	})
	ws, _ := newTestWorkspace(t, router)

	_, err := ws.OpenLogStream(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrRemoteRejected))
	assert.Contains(t, err.Error(), "no build prepared")
}

func TestPreviewURL(t *testing.T) {
	client, err := New(testConfig("http://backend:5051/"), Options{})
	require.NoError(t, err)
	ws, err := client.Bind("ws1")
	require.NoError(t, err)

	assert.Equal(t, "http://backend:5051/preview/ws1/build/web/index.html", ws.PreviewURL(""))
	assert.Equal(t, "http://backend:5051/preview/ws1/build/web/index.html?v=01ABC", ws.PreviewURL("01ABC"))
}
