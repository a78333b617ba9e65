package http

import (
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SSE event names
const (
	EventBuild = "build"
)

// TriggerBuild starts a build and returns the BUILDING snapshot
func (h *Handlers) TriggerBuild(c *gin.Context) {
	if err := h.build.Trigger(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, h.build.Snapshot().View(EventBuild))
}

// GetBuild returns the current build snapshot
func (h *Handlers) GetBuild(c *gin.Context) {
	c.JSON(http.StatusOK, h.build.Snapshot().View(EventBuild))
}

// StreamBuild pushes build snapshots as server-sent events until the
// client goes away or the session closes.
func (h *Handlers) StreamBuild(c *gin.Context) {
	sub := h.build.Subscribe()
	defer sub.Close()

	h.metrics.IncViewConnections("sse")
	defer h.metrics.DecViewConnections("sse")

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case snap, ok := <-sub.C():
			if !ok {
				return false
			}
			data, err := sonic.MarshalString(snap.View(EventBuild))
			if err != nil {
				h.logger.Error("Failed to encode build snapshot", zap.Error(err))
				return false
			}
			c.SSEvent(EventBuild, data)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// Preview returns the preview entry URL for the last good build. With
// ?redirect=true it redirects there instead.
func (h *Handlers) Preview(c *gin.Context) {
	preview := h.build.Preview()
	if c.Query("redirect") == "true" {
		if preview.Token == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "no successful build yet"})
			return
		}
		c.Redirect(http.StatusFound, preview.URL)
		return
	}
	c.JSON(http.StatusOK, preview)
}
