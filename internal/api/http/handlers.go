// Package http exposes a workspace session to a browser front end.
//
// The control API is JSON over gin. Build progress is pushed to views over
// server-sent events here and over WebSocket by package ws.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/forgestudio/internal/domain/build"
	"github.com/GriffinCanCode/forgestudio/internal/domain/editor"
	"github.com/GriffinCanCode/forgestudio/internal/domain/workspace"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/logging"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/forgestudio/internal/shared/types"
)

// Options holds optional collaborators
type Options struct {
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
	// Breaker is reported by the health check when set
	Breaker *resilience.Breaker
}

// Handlers serves the control API of one workspace
type Handlers struct {
	workspace *workspace.Workspace
	build     *build.Session
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	breaker   *resilience.Breaker
	started   time.Time
}

// NewHandlers creates the control API handlers for ws
func NewHandlers(ws *workspace.Workspace, opts Options) *Handlers {
	return &Handlers{
		workspace: ws,
		build:     ws.Build(),
		logger:    logging.OrNop(opts.Logger),
		metrics:   opts.Metrics,
		breaker:   opts.Breaker,
		started:   time.Now(),
	}
}

// Register adds the control API routes to r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.Health)

	r.GET("/tree", h.GetTree)
	r.POST("/tree/refresh", h.RefreshTree)

	r.GET("/tabs", h.ListTabs)
	r.POST("/tabs/open", h.OpenTab)
	r.POST("/tabs/activate", h.ActivateTab)
	r.POST("/tabs/close", h.CloseTab)

	r.GET("/files", h.GetFile)
	r.POST("/files/reload", h.ReloadFile)

	r.GET("/editor", h.GetEditor)
	r.PUT("/editor", h.UpdateEditor)
	r.POST("/save", h.Save)

	r.POST("/build", h.TriggerBuild)
	r.GET("/build", h.GetBuild)
	r.GET("/build/events", h.StreamBuild)
	r.GET("/preview", h.Preview)

	r.GET("/metrics/json", h.MetricsJSON)
}

// Health reports liveness and the state of the remote backend
func (h *Handlers) Health(c *gin.Context) {
	resp := gin.H{
		"status":    "healthy",
		"workspace": h.workspace.ID(),
		"build":     h.build.Snapshot().Phase,
		"uptime":    time.Since(h.started).Round(time.Second).String(),
	}
	if h.breaker != nil {
		resp["backend"] = h.breaker.State().String()
	}
	c.JSON(http.StatusOK, resp)
}

// statusFor maps a session error to an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidReference):
		return http.StatusNotFound
	case errors.Is(err, build.ErrBuildInProgress),
		errors.Is(err, build.ErrNoWorkspace),
		errors.Is(err, editor.ErrNoActiveFile),
		errors.Is(err, editor.ErrNoEditor),
		errors.Is(err, editor.ErrNotLoaded),
		errors.Is(err, workspace.ErrNotEditable):
		return http.StatusConflict
	case errors.Is(err, types.ErrRemoteRejected):
		return http.StatusBadGateway
	case errors.Is(err, types.ErrNetworkFailure),
		errors.Is(err, workspace.ErrClosed),
		errors.Is(err, build.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	resp := gin.H{"error": err.Error()}
	if kind := types.KindOf(err); kind != 0 {
		resp["kind"] = kind.String()
	}
	if status >= http.StatusInternalServerError {
		h.logger.Warn("Request failed",
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}
	c.JSON(status, resp)
}

func bindPath(c *gin.Context) (string, bool) {
	var req types.PathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: path is required"})
		return "", false
	}
	return req.Path, true
}
