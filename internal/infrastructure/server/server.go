// Package server assembles the studio daemon: the backend client, the
// workspace session and the control API router.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/forgestudio/internal/api/http"
	"github.com/GriffinCanCode/forgestudio/internal/api/middleware"
	"github.com/GriffinCanCode/forgestudio/internal/api/ws"
	"github.com/GriffinCanCode/forgestudio/internal/backend"
	"github.com/GriffinCanCode/forgestudio/internal/domain/editor"
	"github.com/GriffinCanCode/forgestudio/internal/domain/tabs"
	"github.com/GriffinCanCode/forgestudio/internal/domain/workspace"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/config"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/logging"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/tracing"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router    *gin.Engine
	http      *http.Server
	workspace *workspace.Workspace
	logger    *logging.Logger
	config    *config.Config
	metrics   *monitoring.Metrics
	tracer    *tracing.Tracer
}

// NewServer connects to the backend, binds the configured workspace (or
// creates one) and builds the router.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		l, err := logging.New(logging.Config{Level: cfg.Logging.Level})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		logger = l
	}

	logger.Info("Initializing studio daemon",
		zap.String("port", cfg.Server.Port),
		zap.String("backend", cfg.Backend.URL),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(reg)

	client, err := backend.New(cfg.Backend, backend.Options{
		Logger:  logger.Named("backend"),
		Metrics: metrics,
	})
	if err != nil {
		return nil, err
	}

	opts, err := workspaceOptions(cfg, logger, metrics)
	if err != nil {
		return nil, err
	}

	session, err := workspace.Connect(ctx, client, cfg.Backend.WorkspaceID, opts)
	if err != nil {
		return nil, err
	}
	logger.Info("Workspace bound", zap.String("workspace", session.ID()))

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	tracer := tracing.New("studio", logger.Named("trace"))
	router := NewRouter(session, RouterConfig{
		Config:   cfg,
		Logger:   logger.Named("api"),
		Metrics:  metrics,
		Gatherer: reg,
		Breaker:  client.Breaker(),
		Tracer:   tracer,
	})

	logger.Info("Server initialized successfully")

	return &Server{
		router:    router,
		workspace: session,
		logger:    logger,
		config:    cfg,
		metrics:   metrics,
		tracer:    tracer,
	}, nil
}

func workspaceOptions(cfg *config.Config, logger *logging.Logger, metrics *monitoring.Metrics) (workspace.Options, error) {
	policy, err := tabs.ParseCloseSelection(cfg.Editor.TabClose)
	if err != nil {
		return workspace.Options{}, err
	}

	langs := editor.DefaultLanguages()
	if cfg.Editor.LanguagesFile != "" {
		if langs, err = editor.LoadLanguages(cfg.Editor.LanguagesFile); err != nil {
			return workspace.Options{}, err
		}
		logger.Info("Loaded language overrides", zap.String("file", cfg.Editor.LanguagesFile))
	}

	return workspace.Options{
		Logger:    logger.Logger,
		Metrics:   metrics,
		Ignore:    cfg.Tree.Ignore,
		TabClose:  policy,
		Languages: langs,
	}, nil
}

// RouterConfig holds what NewRouter wires into the routes
type RouterConfig struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *monitoring.Metrics
	Gatherer prometheus.Gatherer
	Breaker  *resilience.Breaker
	// Tracer is optional
	Tracer *tracing.Tracer
}

// NewRouter creates the control API router for w
func NewRouter(w *workspace.Workspace, rc RouterConfig) *gin.Engine {
	cfg := rc.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := logging.OrNop(rc.Logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	if rc.Tracer != nil {
		router.Use(tracing.HTTPMiddleware(rc.Tracer))
	}
	router.Use(monitoring.Middleware(rc.Metrics))
	router.Use(middleware.CORS(middleware.CORSConfig{
		AllowOrigins: cfg.Server.CORSOrigins,
		MaxAge:       12 * time.Hour,
	}))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(w, apihttp.Options{
		Logger:  logger,
		Metrics: rc.Metrics,
		Breaker: rc.Breaker,
	})
	handlers.Register(router)

	// The build session is handed to the views that need it
	wsHandler := ws.NewHandler(w.Build(), logger.Named("ws"), rc.Metrics)
	router.GET("/build/ws", wsHandler.HandleConnection)

	router.GET("/metrics", gin.WrapH(monitoring.Handler(rc.Gatherer)))
	return router
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves the control API until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Close the session first so streaming views end
	s.workspace.Close()
	s.tracer.Close()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// Close tears the workspace session down and flushes the logger
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")
	s.workspace.Close()
	s.tracer.Close()
	_ = s.logger.Sync()
	return nil
}
