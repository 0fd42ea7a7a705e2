package ui

import (
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"gosurv/adapters/datareadiness/coercer"
	"gosurv/internal"
	"gosurv/internal/api"
	"gosurv/internal/charts"
	"gosurv/internal/config"
	"gosurv/internal/observability"
	"gosurv/internal/profiling"
	"gosurv/internal/session"
	"gosurv/ui/middleware"

	"github.com/gin-gonic/gin"
)

// APIPrefix is where the JSON API is mounted
const APIPrefix = api.MountPath

// Deps are the collaborators of the web UI
type Deps struct {
	Config   *config.Config
	Workflow *session.Workflow
	Profiler *profiling.DataProfiler
	Charts   *charts.Builder
	Coercer  *coercer.TypeCoercer
	API      http.Handler
	Logger   *internal.Logger
}

// Server serves the dashboard pages, static assets, metrics and the JSON API
type Server struct {
	router    *gin.Engine
	templates *template.Template
	config    *config.Config
	workflow  *session.Workflow
	profiler  *profiling.DataProfiler
	charts    *charts.Builder
	coercer   *coercer.TypeCoercer
	logger    *internal.Logger
}

// NewServer parses the embedded templates and sets up routes
func NewServer(deps Deps) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = internal.DefaultLogger
	}
	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:    gin.New(),
		templates: templates,
		config:    deps.Config,
		workflow:  deps.Workflow,
		profiler:  deps.Profiler,
		charts:    deps.Charts,
		coercer:   deps.Coercer,
		logger:    logger.WithComponent("UI"),
	}
	if s.profiler == nil {
		s.profiler = profiling.NewDataProfiler(logger)
	}
	if s.charts == nil {
		s.charts = charts.NewBuilder(s.profiler, logger)
	}

	if err := s.setupMiddleware(); err != nil {
		return nil, err
	}
	s.setupRoutes(deps.API)
	return s, nil
}

// setupMiddleware configures Gin middleware and static files
func (s *Server) setupMiddleware() error {
	s.router.Use(gin.RecoveryWithWriter(s.logger.ErrorWriter()))
	s.router.Use(middleware.RequestMetrics(s.logger))

	staticFS, err := fs.Sub(embeddedFiles, "static")
	if err != nil {
		return err
	}
	s.router.StaticFS("/static", http.FS(staticFS))
	return nil
}

// setupRoutes configures the application routes
func (s *Server) setupRoutes(apiHandler http.Handler) {
	s.router.GET("/healthz", s.handleHealth)
	if s.config.Metrics.Enabled {
		s.router.GET(s.config.Metrics.Path, gin.WrapH(observability.Handler()))
	}
	if apiHandler != nil {
		s.router.Any(APIPrefix+"/*path", gin.WrapH(http.StripPrefix(APIPrefix, apiHandler)))
	}

	pages := s.router.Group("/")
	pages.Use(middleware.EnsureSession(s.workflow.Store(), s.config.Session.CookieName, s.config.Session.TTL, s.logger))
	pages.GET("/", s.handleIndex)
	pages.POST("/upload", s.handleUpload)
	pages.GET("/explore", s.handleExplore)
	pages.GET("/survival", s.handleSurvival)
	pages.POST("/survival", s.handleFit)
	pages.GET("/report", s.handleReport)
	pages.GET("/report.md", s.handleReportMarkdown)
}

// Handler exposes the engine, for tests and custom listeners
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until the listener fails
func (s *Server) Start(addr string) error {
	s.logger.Info("serving on http://%s", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
