package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/forgestudio/internal/devbackend"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/config"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/tracing"
)

func newTestServer(t *testing.T) *Server {
	return newTestServerWith(t, func(h http.Handler) http.Handler { return h })
}

func newTestServerWith(t *testing.T, wrap func(http.Handler) http.Handler) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := devbackend.NewStore(t.TempDir(), "", nil)
	require.NoError(t, err)
	api := devbackend.NewServer(store, devbackend.NewBuilder([]string{"echo ok"}, nil), nil)
	t.Cleanup(api.Close)
	backendSrv := httptest.NewServer(wrap(api.Handler()))
	t.Cleanup(backendSrv.Close)

	cfg := config.Default()
	cfg.Backend.URL = backendSrv.URL
	cfg.Backend.Timeout = 5 * time.Second
	cfg.Logging.Development = true
	cfg.RateLimit.Enabled = false

	srv, err := NewServer(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestServerRoutes(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	tests := []struct {
		path     string
		wantBody string
	}{
		{"/health", `"status":"healthy"`},
		{"/tree", `"lib/main.dart"`},
		{"/tabs", `"tabs"`},
		{"/build", `"phase":"IDLE"`},
		{"/metrics/json", `"session"`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := get(t, h, tt.path)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	get(t, h, "/health")
	w := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.True(t, strings.Contains(body, "studio_http_requests_total"), "missing request series")
	assert.Contains(t, body, "go_goroutines")
}

func TestInvalidTabClosePolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Editor.TabClose = "right"

	_, err := workspaceOptions(cfg, nil, nil)
	assert.Error(t, err)
}

func TestTracePropagatesToBackend(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	srv := newTestServerWith(t, func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			seen = append(seen, r.Header.Get(tracing.TraceHeader))
			mu.Unlock()
			h.ServeHTTP(w, r)
		})
	})

	req := httptest.NewRequest(http.MethodPost, "/tree/refresh", nil)
	req.Header.Set(tracing.TraceHeader, "trace-under-test")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "trace-under-test", w.Header().Get(tracing.TraceHeader))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, "trace-under-test", seen[len(seen)-1])
}
