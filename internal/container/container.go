package container

import (
	"fmt"
	"net/http"

	"gosurv/adapters/datareadiness/coercer"
	"gosurv/adapters/excel"
	"gosurv/internal"
	"gosurv/internal/api"
	"gosurv/internal/charts"
	"gosurv/internal/config"
	"gosurv/internal/profiling"
	"gosurv/internal/session"
	"gosurv/internal/survival"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Pipeline stages
	Coercer  *coercer.TypeCoercer
	Reader   *excel.DataReader
	Pipeline *survival.Pipeline

	// Session state
	Store    *session.Store
	Workflow *session.Workflow

	// Exploration and rendering
	Profiler *profiling.DataProfiler
	Charts   *charts.Builder
	Renderer charts.Renderer

	// API is the chi router serving the JSON API, relative to its mount point
	API http.Handler
}

// New creates the dependency container from a loaded configuration
func New(cfg *config.Config, logger *internal.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = internal.NewLogger(internal.ParseLogLevel(cfg.Logging.Level))
	}

	c := &Container{
		Config: cfg,
		Logger: logger,
	}
	c.initPipeline()
	c.initSessions()
	c.initExploration()
	c.initAPI()

	logger.WithComponent("Container").Info("initialized (upload limit %d MB, session ttl %s, lenient coercion %t)",
		cfg.Upload.MaxBytes>>20, cfg.Session.TTL, cfg.Coercion.Lenient)
	return c, nil
}

func (c *Container) initPipeline() {
	coercion := coercer.DefaultCoercionConfig()
	coercion.Lenient = c.Config.Coercion.Lenient
	c.Coercer = coercer.NewTypeCoercer(coercion)
	c.Reader = excel.NewDataReader(c.Coercer, c.Logger)
	c.Pipeline = survival.NewPipeline(c.Coercer, survival.FitConfigFrom(c.Config), c.Logger)
}

func (c *Container) initSessions() {
	c.Store = session.NewStore(c.Config.Session.TTL, c.Config.Session.CleanupInterval, c.Logger)
	c.Workflow = session.NewWorkflow(c.Store, c.Reader, c.Pipeline, c.Logger)
}

func (c *Container) initExploration() {
	c.Profiler = profiling.NewDataProfiler(c.Logger)
	c.Charts = charts.NewBuilder(c.Profiler, c.Logger)
	c.Renderer = charts.NewVegaLiteRenderer()
}

func (c *Container) initAPI() {
	c.API = api.NewHandler(api.Deps{
		Workflow:       c.Workflow,
		Profiler:       c.Profiler,
		Charts:         c.Charts,
		Renderer:       c.Renderer,
		Coercer:        c.Coercer,
		MaxUploadBytes: c.Config.Upload.MaxBytes,
		Logger:         c.Logger,
	}).Routes()
}
