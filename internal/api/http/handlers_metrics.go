package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MetricsJSON returns a summary of the Prometheus series with the session
// state folded in
func (h *Handlers) MetricsJSON(c *gin.Context) {
	snap := h.build.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"metrics": h.metrics.GetSnapshot(),
		"session": gin.H{
			"workspace":   h.workspace.ID(),
			"tabs":        len(h.workspace.Tabs()),
			"build_phase": snap.Phase,
			"build_run":   snap.Run,
			"subscribers": h.build.Subscribers(),
		},
	})
}
