package survival

import (
	"strings"
	"time"

	"gosurv/adapters/datareadiness/coercer"
	"gosurv/domain/dataset"
	"gosurv/internal"
	"gosurv/internal/errors"
	"gosurv/internal/observability"
)

// Status is the kind of a pipeline outcome
type Status string

const (
	StatusPrompt Status = "prompt"
	StatusFitted Status = "fitted"
	StatusFailed Status = "failed"
)

// Outcome is the result of one column assignment: a prompt to finish the
// selection, the fitted models, or one failure.
type Outcome struct {
	Status     Status             `json:"status"`
	Prompt     string             `json:"prompt,omitempty"`
	Assignment dataset.Assignment `json:"assignment"`
	Frame      *dataset.Frame     `json:"-"`
	Models     *Models            `json:"models,omitempty"`
	Err        error              `json:"-"`
}

// Code returns the failure code, or "" unless the outcome failed
func (o Outcome) Code() string {
	if o.Status != StatusFailed {
		return ""
	}
	return errors.GetCode(o.Err)
}

// Message returns the text shown to the user for this outcome
func (o Outcome) Message() string {
	switch o.Status {
	case StatusPrompt:
		return o.Prompt
	case StatusFailed:
		return o.Err.Error()
	default:
		if o.Frame != nil {
			return DropSummary(o.Frame)
		}
		return ""
	}
}

// Pipeline prepares a frame and fits the models for each assignment.
// Nothing is cached: every call recomputes from the table.
type Pipeline struct {
	preparer *Preparer
	fitter   *Fitter
	logger   *internal.Logger
}

// NewPipeline creates a pipeline
func NewPipeline(c *coercer.TypeCoercer, cfg FitConfig, logger *internal.Logger) *Pipeline {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Pipeline{
		preparer: NewPreparer(c),
		fitter:   NewFitter(cfg, logger),
		logger:   logger.WithComponent("Pipeline"),
	}
}

// Config returns the fit settings in use
func (p *Pipeline) Config() FitConfig {
	return p.fitter.Config()
}

// Run prepares and fits. It never panics on bad data and never returns
// partial models.
func (p *Pipeline) Run(table *dataset.Table, assignment dataset.Assignment) Outcome {
	start := time.Now()
	assignment = assignment.Normalize()
	outcome := p.run(table, assignment)

	observability.RecordFit(string(outcome.Status), outcome.Code(), time.Since(start))
	switch outcome.Status {
	case StatusFitted:
		observability.RecordCoxIterations(outcome.Models.Cox.Iterations)
		p.logger.Info("fitted %s ~ %s on %d rows in %s", assignment.Duration,
			strings.Join(assignment.Predictors, " + "), outcome.Frame.Len(), time.Since(start).Round(time.Microsecond))
	case StatusFailed:
		p.logger.Warn("fit failed [%s]: %v", outcome.Code(), outcome.Err)
	}
	return outcome
}

func (p *Pipeline) run(table *dataset.Table, assignment dataset.Assignment) Outcome {
	if !assignment.Complete() {
		return Outcome{
			Status:     StatusPrompt,
			Prompt:     "Still to choose before fitting: " + strings.Join(assignment.Missing(), ", ") + ".",
			Assignment: assignment,
		}
	}

	frame, err := p.preparer.Prepare(table, assignment)
	if err != nil {
		return Outcome{Status: StatusFailed, Assignment: assignment, Err: err}
	}

	models, err := p.fitter.Fit(frame)
	if err != nil {
		return Outcome{Status: StatusFailed, Assignment: assignment, Frame: frame, Err: err}
	}

	return Outcome{Status: StatusFitted, Assignment: assignment, Frame: frame, Models: models}
}

// Run uses a pipeline with default settings
func Run(table *dataset.Table, assignment dataset.Assignment) Outcome {
	return NewPipeline(nil, DefaultFitConfig(), nil).Run(table, assignment)
}
