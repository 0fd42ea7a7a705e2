package survival

import (
	"fmt"
	"time"

	"gosurv/domain/core"
	"gosurv/domain/dataset"
	"gosurv/internal"
	"gosurv/internal/config"
	"gosurv/internal/errors"
)

// DefaultAlpha gives 95% confidence intervals
const DefaultAlpha = 0.05

// FitConfig tunes the model fitter
type FitConfig struct {
	Alpha         float64
	MaxIterations int
	Tolerance     float64
}

// DefaultFitConfig returns the standard fitter settings
func DefaultFitConfig() FitConfig {
	return FitConfig{
		Alpha:         DefaultAlpha,
		MaxIterations: 50,
		Tolerance:     1e-9,
	}
}

// FitConfigFrom reads fitter settings from the application config
func FitConfigFrom(cfg *config.Config) FitConfig {
	return FitConfig{
		Alpha:         cfg.Fit.Alpha,
		MaxIterations: cfg.Fit.MaxIterations,
		Tolerance:     cfg.Fit.Tolerance,
	}.withDefaults()
}

func (c FitConfig) withDefaults() FitConfig {
	def := DefaultFitConfig()
	if c.Alpha <= 0 || c.Alpha >= 1 {
		c.Alpha = def.Alpha
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = def.MaxIterations
	}
	if c.Tolerance <= 0 {
		c.Tolerance = def.Tolerance
	}
	return c
}

// Models bundles the three fitted results of one assignment
type Models struct {
	KaplanMeier *KaplanMeier `json:"kaplan_meier"`
	Cox         *CoxModel    `json:"cox"`
	PHTest      *PHTest      `json:"ph_test"`
	FittedAt    time.Time    `json:"fitted_at"`
}

// Fitter runs Kaplan-Meier, Cox and the proportional-hazards check on a frame
type Fitter struct {
	config FitConfig
	logger *internal.Logger
}

// NewFitter creates a fitter
func NewFitter(cfg FitConfig, logger *internal.Logger) *Fitter {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Fitter{config: cfg.withDefaults(), logger: logger.WithComponent("Fitter")}
}

// Config returns the effective settings
func (f *Fitter) Config() FitConfig {
	return f.config
}

// Fit fits every model or none. The first failing step decides the error.
func (f *Fitter) Fit(frame *dataset.Frame) (*Models, error) {
	if err := f.check(frame); err != nil {
		return nil, err
	}

	km, err := FitKaplanMeier(frame.Durations, frame.Events, f.config.Alpha)
	if err != nil {
		return nil, errors.Wrap(err, "Kaplan-Meier fit failed")
	}

	cox, err := FitCox(frame, f.config)
	if err != nil {
		f.logger.Debug("cox fit failed on %d rows: %v", frame.Len(), err)
		return nil, errors.Wrap(err, "Cox model fit failed")
	}
	f.logger.Debug("cox converged in %d iterations (ll=%.4f)", cox.Iterations, cox.LogLikelihood)

	ph, err := CheckProportionalHazards(cox, frame)
	if err != nil {
		return nil, errors.Wrap(err, "proportional-hazards test failed")
	}

	return &Models{
		KaplanMeier: km,
		Cox:         cox,
		PHTest:      ph,
		FittedAt:    time.Now(),
	}, nil
}

// check rejects frames no model can be fitted to
func (f *Fitter) check(frame *dataset.Frame) error {
	if frame == nil || frame.Len() == 0 {
		return fitError(errors.CodeInsufficientData, core.ErrInsufficientData,
			"no rows remain after removing missing or non-numeric values")
	}
	for i, e := range frame.Events {
		if e != 0 && e != 1 {
			row := i + 1
			if i < len(frame.SourceRows) {
				row = frame.SourceRows[i] + 1
			}
			return fitError(errors.CodeInvalidEvent, core.ErrInvalidEvent,
				"event column %q has value %s in row %d; use 1 for an event and 0 for censored",
				frame.Event, formatValue(e), row)
		}
	}
	if frame.EventCount() == 0 {
		return fitError(errors.CodeNoEvents, core.ErrNoEvents,
			"event column %q has no events (no value 1)", frame.Event)
	}
	if p := len(frame.Predictors); frame.Len() < p+2 {
		return fitError(errors.CodeInsufficientData, core.ErrInsufficientData,
			"only %d usable row(s) for %d predictor(s); at least %d are needed", frame.Len(), p, p+2)
	}
	return nil
}

func formatValue(v float64) string {
	return fmt.Sprintf("%g", v)
}
