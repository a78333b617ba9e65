package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordHTTPRequest("GET", "/tree", "200", time.Millisecond, 10)
		m.RecordBackendCall("list_tree", "200", time.Millisecond)
		m.RecordContentFetch("ok")
		m.IncSharedFetches()
		m.IncStaleDiscards()
		m.RecordBuild("succeeded", time.Second)
		m.IncLogLines()
		m.IncStreams()
		m.DecStreams()
		m.IncViewConnections("ws")
		m.DecViewConnections("ws")
		m.SetBreakerState(2)
	})
	assert.Equal(t, Snapshot{}, m.GetSnapshot())
}

func TestRecordBackendCall(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordBackendCall("read_file", "200", 5*time.Millisecond)
	m.RecordBackendCall("read_file", "404", 5*time.Millisecond)
	m.RecordBackendCall("read_file", "network_failure", 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendCalls.WithLabelValues("read_file", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendCalls.WithLabelValues("read_file", "404")))
	assert.Equal(t, int64(2), m.GetSnapshot().BackendErrors)
}

func TestBuildAndStreamMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.IncStreams()
	m.IncLogLines()
	m.IncLogLines()
	m.DecStreams()
	m.RecordBuild("failed", 2*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LogLines))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.StreamsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Builds.WithLabelValues("failed")))

	snap := m.GetSnapshot()
	assert.Equal(t, int64(1), snap.BuildsTotal)
	assert.Equal(t, int64(0), snap.ActiveStreams)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/files", func(c *gin.Context) {
		c.String(http.StatusNotFound, "missing")
	})
	router.GET("/metrics", gin.WrapH(Handler(reg)))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files?path=a.txt", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/files", "404")))
	snap := m.GetSnapshot()
	assert.Equal(t, int64(1), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.TotalErrors)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "studio_http_requests_total")
}
