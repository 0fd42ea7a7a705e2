package ui

import (
	stderrors "errors"
	"html/template"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gosurv/domain/dataset"
	"gosurv/internal/api"
	"gosurv/internal/charts"
	"gosurv/internal/errors"
	"gosurv/internal/profiling"
	"gosurv/internal/report"
	"gosurv/internal/session"
	"gosurv/internal/survival"
	"gosurv/ui/middleware"

	"github.com/gin-gonic/gin"
)

const (
	defaultPreviewRows = 5
	maxPreviewRows     = 100
)

// columnView is one selectable column. Type is the coercer's verdict and
// only hints the picker; every column can be chosen.
type columnView struct {
	Name          string
	Type          string
	Numeric       bool
	MostlyNumeric bool
}

// correlationRow is one line of the rendered correlation matrix
type correlationRow struct {
	Name   string
	Values []float64
}

func (s *Server) columnViews(t *dataset.Table) []columnView {
	profiles := profiling.ProfileColumns(t, s.coercer)
	out := make([]columnView, len(profiles))
	for i, p := range profiles {
		out[i] = columnView{
			Name:          p.Name,
			Type:          string(p.RecommendedType),
			Numeric:       p.Numeric(),
			MostlyNumeric: p.MostlyNumeric(),
		}
	}
	return out
}

// page builds the data shared by every template
func (s *Server) page(c *gin.Context, title, active string, state session.State) gin.H {
	return gin.H{
		"Title":     title,
		"Active":    active,
		"State":     state,
		"APIBase":   APIPrefix + "/sessions/" + state.ID.String(),
		"MaxUpload": s.config.Upload.MaxBytes >> 20,
	}
}

func (s *Server) withError(data gin.H, err error) gin.H {
	data["Error"] = err.Error()
	data["Code"] = errors.GetCode(err)
	return data
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.workflow.Store().Count()})
}

func (s *Server) handleIndex(c *gin.Context) {
	state, err := s.workflow.Store().Get(middleware.CurrentSession(c))
	if err != nil {
		s.renderError(c, err)
		return
	}
	s.renderIndex(c, http.StatusOK, state, nil)
}

func (s *Server) renderIndex(c *gin.Context, status int, state session.State, uploadErr error) {
	data := s.page(c, "Upload", "index", state)
	if state.HasTable() {
		data["Columns"] = s.columnViews(state.Table)
	}
	if uploadErr != nil {
		s.withError(data, uploadErr)
	}
	s.renderTemplate(c, status, "index.html", data)
}

// handleUpload loads the posted spreadsheet and continues to the explore page
func (s *Server) handleUpload(c *gin.Context) {
	id := middleware.CurrentSession(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.Upload.MaxBytes)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		state, _ := s.workflow.Store().Get(id)
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			s.renderIndex(c, http.StatusRequestEntityTooLarge, state,
				errors.Newf(errors.CodeInvalidInput, "the file is larger than %d MB", s.config.Upload.MaxBytes>>20))
			return
		}
		s.renderIndex(c, http.StatusBadRequest, state, errors.InvalidInput("choose a .xlsx or .csv file to upload"))
		return
	}
	defer file.Close()

	state, err := s.workflow.Upload(id, header.Filename, file)
	if err != nil {
		s.renderIndex(c, api.StatusFor(errors.GetCode(err)), state, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/explore")
}

// loaded returns the session state, redirecting to the upload page when no
// table is loaded yet
func (s *Server) loaded(c *gin.Context) (session.State, bool) {
	state, err := s.workflow.Loaded(middleware.CurrentSession(c))
	if err != nil {
		c.Redirect(http.StatusSeeOther, "/")
		return state, false
	}
	return state, true
}

func (s *Server) handleExplore(c *gin.Context) {
	state, ok := s.loaded(c)
	if !ok {
		return
	}

	rows := defaultPreviewRows
	if n, err := strconv.Atoi(c.Query("rows")); err == nil && n >= 0 {
		rows = n
	}
	if rows > maxPreviewRows {
		rows = maxPreviewRows
	}

	summary, err := s.profiler.Describe(state.Table)
	if err != nil {
		s.renderError(c, err)
		return
	}
	matrix := s.profiler.Correlation(state.Table)
	corr := make([]correlationRow, len(matrix.Columns))
	for i, col := range matrix.Columns {
		corr[i] = correlationRow{Name: col, Values: matrix.Values[i]}
	}

	data := s.page(c, "Explore", "explore", state)
	data["Summary"] = summary
	data["Preview"] = state.Table.Head(rows)
	data["PreviewRows"] = rows
	data["Correlation"] = corr
	data["CorrelationColumns"] = matrix.Columns
	data["Columns"] = s.columnViews(state.Table)
	data["ChartKinds"] = []charts.Kind{charts.KindScatter, charts.KindBox, charts.KindPie, charts.KindHeatmap}
	data["CountsColumn"] = ""

	if col := c.Query("counts"); col != "" {
		counts, err := s.profiler.ValueCounts(state.Table, col)
		if err != nil {
			s.withError(data, err)
		} else {
			data["CountsColumn"] = col
			data["Counts"] = counts
		}
	}
	s.renderTemplate(c, http.StatusOK, "explore.html", data)
}

func (s *Server) handleSurvival(c *gin.Context) {
	state, ok := s.loaded(c)
	if !ok {
		return
	}
	s.renderSurvival(c, state)
}

// handleFit re-runs preparation and fitting for the submitted columns
func (s *Server) handleFit(c *gin.Context) {
	if _, ok := s.loaded(c); !ok {
		return
	}
	assignment := dataset.Assignment{
		Duration:   c.PostForm("duration"),
		Event:      c.PostForm("event"),
		Predictors: c.PostFormArray("predictors"),
	}
	state, err := s.workflow.Assign(middleware.CurrentSession(c), assignment)
	if err != nil {
		s.renderError(c, err)
		return
	}
	s.renderSurvival(c, state)
}

func (s *Server) renderSurvival(c *gin.Context, state session.State) {
	data := s.page(c, "Survival analysis", "survival", state)
	data["Columns"] = s.columnViews(state.Table)
	data["Assignment"] = state.Assignment

	if o := state.Outcome; o != nil {
		data["Outcome"] = o
		data["Message"] = o.Message()
		if o.Status == survival.StatusFailed {
			s.withError(data, o.Err)
		}
		if o.Models != nil {
			data["KaplanMeier"] = o.Models.KaplanMeier
			data["Cox"] = o.Models.Cox
			data["PHTest"] = o.Models.PHTest
			data["Violations"] = o.Models.PHTest.Violations(o.Models.Cox.Alpha)
			data["Alpha"] = o.Models.Cox.Alpha
		}
	}
	s.renderTemplate(c, http.StatusOK, "survival.html", data)
}

func (s *Server) reportMarkdown(state session.State) (string, error) {
	summary, err := s.profiler.Describe(state.Table)
	if err != nil {
		return "", err
	}
	return report.Markdown(report.Input{
		FileName:    state.FileName,
		Summary:     summary,
		Outcome:     state.Outcome,
		GeneratedAt: time.Now(),
	}), nil
}

func (s *Server) handleReport(c *gin.Context) {
	state, ok := s.loaded(c)
	if !ok {
		return
	}
	md, err := s.reportMarkdown(state)
	if err != nil {
		s.renderError(c, err)
		return
	}
	data := s.page(c, "Report", "report", state)
	data["Report"] = template.HTML(report.HTML(md))
	s.renderTemplate(c, http.StatusOK, "report.html", data)
}

// handleReportMarkdown downloads the report source
func (s *Server) handleReportMarkdown(c *gin.Context) {
	state, ok := s.loaded(c)
	if !ok {
		return
	}
	md, err := s.reportMarkdown(state)
	if err != nil {
		s.renderError(c, err)
		return
	}
	name := strings.TrimSuffix(state.FileName, filepath.Ext(state.FileName)) + "-report.md"
	c.Header("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(name, `"`, "")+`"`)
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(md))
}

func (s *Server) renderError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := api.StatusFor(code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	data := s.withError(gin.H{"Title": "Error", "Active": "", "APIBase": ""}, err)
	s.renderTemplate(c, status, "error.html", data)
}

