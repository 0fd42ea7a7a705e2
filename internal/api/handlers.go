package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gosurv/domain/core"
	"gosurv/domain/dataset"
	"gosurv/internal/charts"
	"gosurv/internal/errors"
	"gosurv/internal/report"
	"gosurv/internal/session"
	"gosurv/internal/survival"

	"github.com/go-chi/chi/v5"
)

// sessionID parses the {id} path parameter
func sessionID(r *http.Request) (core.SessionID, error) {
	id, err := core.ParseSessionID(chi.URLParam(r, "id"))
	if err != nil {
		return "", errors.WithCode(errors.CodeNotFound, err)
	}
	return id, nil
}

// loaded returns the state of a session that already holds a table
func (h *Handler) loaded(r *http.Request) (session.State, error) {
	id, err := sessionID(r)
	if err != nil {
		return session.State{}, err
	}
	return h.workflow.Loaded(id)
}

func (h *Handler) handleChartKinds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"kinds": charts.Kinds})
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	state := h.workflow.Store().Create()
	writeJSON(w, http.StatusCreated, newSessionResponse(state, h.coercer))
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	state, err := h.workflow.Store().Get(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(state, h.coercer))
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.workflow.Store().Delete(id)
	w.WriteHeader(http.StatusNoContent)
}

// handleUpload accepts a multipart form with the spreadsheet in field "file"
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if _, err := h.workflow.Store().Get(id); err != nil {
		h.writeError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		h.writeError(w, errors.WithCode(errors.CodeInvalidInput, err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, errors.InvalidInput("form field \"file\" is required"))
		return
	}
	defer file.Close()

	state, err := h.workflow.Upload(id, header.Filename, file)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(state, h.coercer))
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	state, err := h.loaded(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	n := DefaultPreviewRows
	if raw := r.URL.Query().Get("n"); raw != "" {
		n, err = strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, errors.InvalidInput("n must be a non-negative integer"))
			return
		}
	}
	writeJSON(w, http.StatusOK, newPreviewResponse(state.Table.Head(n)))
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	state, err := h.loaded(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	summary, err := h.profiler.Describe(state.Table)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSummaryResponse(summary))
}

func (h *Handler) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	state, err := h.loaded(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCorrelationResponse(h.profiler.Correlation(state.Table)))
}

func (h *Handler) handleValueCounts(w http.ResponseWriter, r *http.Request) {
	state, err := h.loaded(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	column, err := url.PathUnescape(chi.URLParam(r, "column"))
	if err != nil {
		h.writeError(w, errors.InvalidInput("malformed column name"))
		return
	}
	counts, err := h.profiler.ValueCounts(state.Table, column)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// handleChart renders a chart spec. Columns come from repeated or
// comma-separated "columns" query values.
func (h *Handler) handleChart(w http.ResponseWriter, r *http.Request) {
	state, err := h.loaded(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	kind, err := charts.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	var columns []string
	for _, raw := range r.URL.Query()["columns"] {
		for _, col := range strings.Split(raw, ",") {
			if col = strings.TrimSpace(col); col != "" {
				columns = append(columns, col)
			}
		}
	}

	var km *survival.KaplanMeier
	if state.Outcome != nil && state.Outcome.Models != nil {
		km = state.Outcome.Models.KaplanMeier
	}
	chart, err := h.charts.Build(charts.Request{Kind: kind, Columns: columns}, state.Table, km)
	if err != nil {
		h.writeError(w, err)
		return
	}
	body, err := h.renderer.Render(chart)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", h.renderer.ContentType())
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// handleFitSurvival runs the pipeline for the posted assignment. A prompt or
// a fit is 200; a failed fit carries its code and the matching status.
func (h *Handler) handleFitSurvival(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var assignment dataset.Assignment
	if err := json.NewDecoder(r.Body).Decode(&assignment); err != nil {
		h.writeError(w, errors.InvalidInput("request body must be a JSON assignment"))
		return
	}

	state, err := h.workflow.Assign(id, assignment)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeOutcome(w, *state.Outcome)
}

func (h *Handler) handleGetSurvival(w http.ResponseWriter, r *http.Request) {
	state, err := h.loaded(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if state.Outcome == nil {
		h.writeError(w, errors.NotFound("survival fit"))
		return
	}
	h.writeOutcome(w, *state.Outcome)
}

func (h *Handler) writeOutcome(w http.ResponseWriter, outcome survival.Outcome) {
	status := http.StatusOK
	if outcome.Status == survival.StatusFailed {
		status = StatusFor(outcome.Code())
	}
	writeJSON(w, status, newOutcomeResponse(outcome))
}

// handleReport returns the session report as Markdown, or as HTML with ?format=html
func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	state, err := h.loaded(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	summary, err := h.profiler.Describe(state.Table)
	if err != nil {
		h.writeError(w, err)
		return
	}
	md := report.Markdown(report.Input{
		FileName:    state.FileName,
		Summary:     summary,
		Outcome:     state.Outcome,
		GeneratedAt: time.Now(),
	})

	if r.URL.Query().Get("format") == "html" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(report.HTML(md))
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(md))
}
