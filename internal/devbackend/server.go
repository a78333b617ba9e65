package devbackend

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/forgestudio/internal/backend"
	"github.com/GriffinCanCode/forgestudio/internal/backend/stream"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/logging"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/forgestudio/internal/shared/paths"
	"github.com/GriffinCanCode/forgestudio/internal/shared/utils"
)

var baseHref = regexp.MustCompile(`<base href="[^"]*">`)

// Server serves the workspace backend API over a Store
type Server struct {
	store   *Store
	builder *Builder
	logger  *zap.Logger
	tracer  *tracing.Tracer
	router  *gin.Engine
	handler http.Handler

	mu       sync.Mutex
	building map[string]bool
}

// NewServer creates the API router
func NewServer(store *Store, builder *Builder, logger *zap.Logger) *Server {
	s := &Server{
		store:    store,
		builder:  builder,
		logger:   logging.OrNop(logger),
		building: make(map[string]bool),
	}
	s.tracer = tracing.New("devbackend", s.logger.Named("trace"))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(tracing.HTTPMiddleware(s.tracer))

	api := r.Group(paths.WorkspacesAPI)
	api.POST("", s.create)
	api.GET("/:wid", s.tree)
	api.GET("/:wid/tree", s.tree)
	api.GET("/:wid/file", s.readFile)
	api.PUT("/:wid/file", s.writeFile)
	api.POST("/:wid/build", s.startBuild)
	api.GET("/:wid/build/logs", s.buildLogs)

	r.GET(paths.PreviewRoot+"/:wid/"+paths.WebDir+"/*path", s.preview)
	s.router = r

	gz := gzhttp.GzipHandler(r)
	s.handler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		// Event streams are flushed line by line and stay uncompressed
		if strings.HasSuffix(req.URL.Path, "/build/logs") {
			r.ServeHTTP(w, req)
			return
		}
		gz.ServeHTTP(w, req)
	})
	return s
}

// Handler returns the HTTP handler of the API
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Close stops the span collector
func (s *Server) Close() {
	s.tracer.Close()
}

func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrWorkspaceNotFound), errors.Is(err, ErrFileNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrInvalidPath):
		status = http.StatusBadRequest
	case errors.Is(err, ErrBinaryFile):
		status = http.StatusUnsupportedMediaType
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("route", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) create(c *gin.Context) {
	wid, err := s.store.Create()
	if err != nil {
		s.fail(c, err)
		return
	}
	s.logger.Info("Created workspace", zap.String("workspace", wid))
	c.JSON(http.StatusOK, backend.CreateWorkspaceResponse{WorkspaceID: wid})
}

func (s *Server) tree(c *gin.Context) {
	items, err := s.store.List(c.Param("wid"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, backend.TreeResponse{Files: items})
}

func (s *Server) readFile(c *gin.Context) {
	rel := c.Query("path")
	text, err := s.store.ReadFile(c.Param("wid"), rel)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, backend.FileContent{Path: rel, Content: text})
}

func (s *Server) writeFile(c *gin.Context) {
	var body backend.FileContent
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := s.store.WriteFile(c.Param("wid"), body.Path, body.Content); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, backend.WriteResponse{OK: true})
}

// startBuild clears the previous output. The build itself runs when the
// log stream is opened.
func (s *Server) startBuild(c *gin.Context) {
	wid := c.Param("wid")
	if err := s.store.CleanBuild(wid); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, backend.BuildInfo{
		Logs:    paths.BuildLogs(wid),
		Preview: paths.PreviewIndex(wid),
	})
}

func (s *Server) buildLogs(c *gin.Context) {
	wid := c.Param("wid")
	dir, err := s.store.Dir(wid)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.mu.Lock()
	if s.building[wid] {
		s.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"error": "build already running"})
		return
	}
	s.building[wid] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.building, wid)
		s.mu.Unlock()
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	w := c.Writer
	send := func(data string) {
		fmt.Fprintf(w, "data: %s\n\n", data)
		w.Flush()
	}

	s.logger.Info("Build started", zap.String("workspace", wid))
	code := s.builder.Run(c.Request.Context(), dir, send)
	send(stream.ExitFrame(code))
	s.logger.Info("Build finished", zap.String("workspace", wid), zap.Int("exit", code))
}

func (s *Server) preview(c *gin.Context) {
	dir, err := s.store.Dir(c.Param("wid"))
	if err != nil {
		s.fail(c, err)
		return
	}

	rel := strings.TrimPrefix(c.Param("path"), "/")
	if rel == "" {
		rel = paths.IndexFile
	}
	if err := utils.ValidatePath(rel); err != nil {
		s.fail(c, fmt.Errorf("%w: %v", ErrInvalidPath, err))
		return
	}

	data, err := os.ReadFile(paths.Project{Root: dir}.WebFile(rel))
	if err != nil {
		c.String(http.StatusNotFound, "Not Found")
		return
	}

	if rel == paths.IndexFile {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(rewriteBase(string(data), c.Param("wid"))))
		return
	}
	c.Data(http.StatusOK, contentType(rel, data), data)
}

// rewriteBase points the page's <base href> at the preview prefix
func rewriteBase(html, wid string) string {
	href := fmt.Sprintf(`<base href="%s">`, paths.PreviewBase(wid))
	if baseHref.MatchString(html) {
		return baseHref.ReplaceAllLiteralString(html, href)
	}
	return strings.Replace(html, "<head>", "<head>"+href, 1)
}

func contentType(name string, data []byte) string {
	// Sniffing cannot tell scripts and stylesheets from plain text
	switch filepath.Ext(name) {
	case ".js", ".mjs":
		return "text/javascript; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".wasm":
		return "application/wasm"
	}
	return mimetype.Detect(data).String()
}
