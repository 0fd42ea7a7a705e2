package survival

import (
	"errors"
	"testing"

	"gosurv/domain/core"
	"gosurv/domain/dataset"
	"gosurv/internal"
	"gosurv/internal/config"
	apperrors "gosurv/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietPipeline() *Pipeline {
	return NewPipeline(nil, DefaultFitConfig(), internal.NewDiscardLogger())
}

func TestRunThreeRowScenarioFails(t *testing.T) {
	table := mustTable(t, []string{"duration", "event", "x"},
		[]dataset.Cell{num(5), num(1), num(2.0)},
		[]dataset.Cell{num(3), num(0), txt("n/a")},
		[]dataset.Cell{num(5), num(1), num(1.0)},
	)

	var outcome Outcome
	require.NotPanics(t, func() {
		outcome = quietPipeline().Run(table, dataset.Assignment{Duration: "duration", Event: "event", Predictors: []string{"x"}})
	})

	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Nil(t, outcome.Models, "no partial results")
	assert.Equal(t, apperrors.CodeInsufficientData, outcome.Code())
	assert.True(t, errors.Is(outcome.Err, core.ErrInsufficientData))
	require.NotNil(t, outcome.Frame)
	assert.Equal(t, 2, outcome.Frame.Len())
	assert.Contains(t, outcome.Message(), "at least 3")
}

func TestRunPromptsForIncompleteAssignment(t *testing.T) {
	table := cohort(t, 20, 0)

	outcome := quietPipeline().Run(table, dataset.Assignment{Duration: "time"})
	assert.Equal(t, StatusPrompt, outcome.Status)
	assert.Nil(t, outcome.Models)
	assert.Nil(t, outcome.Frame)
	assert.Equal(t, "", outcome.Code())
	assert.Contains(t, outcome.Message(), "event column")
	assert.Contains(t, outcome.Message(), "at least one predictor")
	assert.NotContains(t, outcome.Message(), "duration column")
}

func TestRunFitsCohort(t *testing.T) {
	table := cohort(t, 200, 0.05)

	outcome := Run(table, assignment("treatment", "age"))
	require.Equal(t, StatusFitted, outcome.Status, "err: %v", outcome.Err)
	require.NotNil(t, outcome.Models)
	assert.NotNil(t, outcome.Models.KaplanMeier)
	assert.NotNil(t, outcome.Models.Cox)
	assert.NotNil(t, outcome.Models.PHTest)
	assert.False(t, outcome.Models.FittedAt.IsZero())
	assert.Equal(t, DropSummary(outcome.Frame), outcome.Message())
}

func TestRunInvalidSelection(t *testing.T) {
	outcome := quietPipeline().Run(cohort(t, 20, 0), dataset.Assignment{Duration: "time", Event: "time", Predictors: []string{"age"}})
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, apperrors.CodeInvalidSelection, outcome.Code())
	assert.Nil(t, outcome.Frame)
}

func TestFitterChecks(t *testing.T) {
	fitter := NewFitter(DefaultFitConfig(), internal.NewDiscardLogger())

	tests := []struct {
		name  string
		frame *dataset.Frame
		code  string
	}{
		{"empty frame", frameOf(nil, nil, []string{"x"}), apperrors.CodeInsufficientData},
		{"event coded 2", frameOf([]float64{1, 2, 3, 4}, []float64{1, 2, 0, 1}, []string{"x"}, []float64{1, 2, 3, 4}), apperrors.CodeInvalidEvent},
		{"no events", frameOf([]float64{1, 2, 3, 4}, []float64{0, 0, 0, 0}, []string{"x"}, []float64{1, 2, 3, 4}), apperrors.CodeNoEvents},
		{"too few rows", frameOf([]float64{1, 2, 3}, []float64{1, 0, 1}, []string{"x", "y"}, []float64{1, 2, 3}, []float64{3, 1, 2}), apperrors.CodeInsufficientData},
		{"constant predictor", frameOf([]float64{1, 2, 3, 4}, []float64{1, 0, 1, 1}, []string{"x"}, []float64{7, 7, 7, 7}), apperrors.CodeZeroVariance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			models, err := fitter.Fit(tt.frame)
			require.Error(t, err)
			assert.Nil(t, models)
			assert.Equal(t, tt.code, apperrors.GetCode(err))
			assert.True(t, apperrors.IsFitFailure(apperrors.GetCode(err)))
			assert.True(t, core.IsFitError(err))
		})
	}
}

func TestFitterIsDeterministic(t *testing.T) {
	frame, err := Prepare(cohort(t, 120, 0.1), assignment("treatment", "age"))
	require.NoError(t, err)

	fitter := NewFitter(DefaultFitConfig(), internal.NewDiscardLogger())
	a, err := fitter.Fit(frame)
	require.NoError(t, err)
	b, err := fitter.Fit(frame)
	require.NoError(t, err)

	assert.Equal(t, a.Cox.Coefficients, b.Cox.Coefficients)
	assert.Equal(t, a.KaplanMeier.Points, b.KaplanMeier.Points)
	assert.Equal(t, a.PHTest.Rows, b.PHTest.Rows)
}

func TestFitConfigFrom(t *testing.T) {
	cfg := &config.Config{}
	cfg.Fit.Alpha = 0.1
	cfg.Fit.MaxIterations = 0

	fc := FitConfigFrom(cfg)
	assert.Equal(t, 0.1, fc.Alpha)
	assert.Equal(t, 50, fc.MaxIterations)
	assert.Equal(t, 1e-9, fc.Tolerance)
}
