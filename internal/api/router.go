package api

import (
	"net/http"
	"time"

	"gosurv/adapters/datareadiness/coercer"
	"gosurv/internal"
	"gosurv/internal/charts"
	"gosurv/internal/observability"
	"gosurv/internal/profiling"
	"gosurv/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// MountPath is where servers mount the API router
const MountPath = "/api/v1"

// DefaultPreviewRows is the number of rows returned by the preview endpoint
const DefaultPreviewRows = 5

// Deps are the collaborators of the JSON API
type Deps struct {
	Workflow       *session.Workflow
	Profiler       *profiling.DataProfiler
	Charts         *charts.Builder
	Renderer       charts.Renderer
	Coercer        *coercer.TypeCoercer
	MaxUploadBytes int64
	Logger         *internal.Logger
}

// Handler serves the JSON API over sessions
type Handler struct {
	workflow  *session.Workflow
	profiler  *profiling.DataProfiler
	charts    *charts.Builder
	renderer  charts.Renderer
	coercer   *coercer.TypeCoercer
	maxUpload int64
	logger    *internal.Logger
}

// NewHandler creates the API handler, filling in defaults for optional deps
func NewHandler(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = internal.DefaultLogger
	}
	h := &Handler{
		workflow:  deps.Workflow,
		profiler:  deps.Profiler,
		charts:    deps.Charts,
		renderer:  deps.Renderer,
		coercer:   deps.Coercer,
		maxUpload: deps.MaxUploadBytes,
		logger:    logger.WithComponent("API"),
	}
	if h.profiler == nil {
		h.profiler = profiling.NewDataProfiler(logger)
	}
	if h.charts == nil {
		h.charts = charts.NewBuilder(h.profiler, logger)
	}
	if h.renderer == nil {
		h.renderer = charts.NewVegaLiteRenderer()
	}
	if h.maxUpload <= 0 {
		h.maxUpload = 20 << 20
	}
	return h
}

// Routes builds the chi router. Paths are relative so the router can be
// mounted under any prefix.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(h.instrument)

	r.Get("/kinds", h.handleChartKinds)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.handleCreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGetSession)
			r.Delete("/", h.handleDeleteSession)
			r.Post("/upload", h.handleUpload)
			r.Get("/preview", h.handlePreview)
			r.Get("/summary", h.handleSummary)
			r.Get("/correlation", h.handleCorrelation)
			r.Get("/value-counts/{column}", h.handleValueCounts)
			r.Get("/charts/{kind}", h.handleChart)
			r.Get("/survival", h.handleGetSurvival)
			r.Post("/survival", h.handleFitSurvival)
			r.Get("/report", h.handleReport)
		})
	})

	return r
}

// instrument records request metrics under the matched route pattern
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.RecordHTTPRequest(r.Method, "api:"+route, status, time.Since(start))
		h.logger.Debug("%s %s -> %d (%s)", r.Method, r.URL.Path, status, time.Since(start).Round(time.Microsecond))
	})
}
