package session

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"gosurv/adapters/excel"
	"gosurv/domain/core"
	"gosurv/domain/dataset"
	"gosurv/internal"
	apperrors "gosurv/internal/errors"
	"gosurv/internal/survival"
	"gosurv/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorkflow() *Workflow {
	logger := internal.NewDiscardLogger()
	return NewWorkflow(
		NewStore(time.Hour, time.Minute, logger),
		excel.NewDataReader(nil, logger),
		survival.NewPipeline(nil, survival.DefaultFitConfig(), logger),
		logger,
	)
}

func cohortXLSX(t *testing.T) []byte {
	t.Helper()
	config := testkit.DefaultCohortConfig()
	config.Subjects = 120
	table, err := testkit.NewCohortGenerator(config).Generate()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, testkit.WriteXLSX(table, &buf))
	return buf.Bytes()
}

func TestWorkflowUploadAndAssign(t *testing.T) {
	w := newTestWorkflow()
	id := w.Store().Create().ID

	_, err := w.Loaded(id)
	assert.True(t, core.IsNotFoundError(err))

	state, err := w.Upload(id, "cohort.xlsx", bytes.NewReader(cohortXLSX(t)))
	require.NoError(t, err)
	assert.Equal(t, 120, state.Table.Len())
	assert.Equal(t, "cohort.xlsx", state.FileName)

	state, err = w.Assign(id, dataset.Assignment{Duration: "time", Event: "event"})
	require.NoError(t, err)
	require.NotNil(t, state.Outcome)
	assert.Equal(t, survival.StatusPrompt, state.Outcome.Status)

	state, err = w.Assign(id, dataset.Assignment{Duration: "time", Event: "event", Predictors: []string{"treatment", " age ", "age"}})
	require.NoError(t, err)
	assert.Equal(t, survival.StatusFitted, state.Outcome.Status, "err: %v", state.Outcome.Err)
	assert.Equal(t, []string{"treatment", "age"}, state.Assignment.Predictors)

	// a new file discards the previous fit
	state, err = w.Upload(id, "cohort.xlsx", bytes.NewReader(cohortXLSX(t)))
	require.NoError(t, err)
	assert.Nil(t, state.Outcome)
	assert.False(t, state.Assignment.Complete())
}

func TestWorkflowRejectedUploadClearsTable(t *testing.T) {
	w := newTestWorkflow()
	id := w.Store().Create().ID

	_, err := w.Upload(id, "cohort.xlsx", bytes.NewReader(cohortXLSX(t)))
	require.NoError(t, err)

	_, err = w.Upload(id, "broken.xlsx", strings.NewReader("garbage"))
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeParseError, apperrors.GetCode(err))

	_, err = w.Loaded(id)
	assert.True(t, core.IsNotFoundError(err))

	_, err = w.Assign(id, dataset.Assignment{Duration: "time", Event: "event", Predictors: []string{"age"}})
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetCode(err))
}

func TestWorkflowFailedFitIsKept(t *testing.T) {
	w := newTestWorkflow()
	id := w.Store().Create().ID

	csv := "t,e,x\n1,0,1\n2,0,2\n3,0,3\n"
	_, err := w.Upload(id, "censored.csv", strings.NewReader(csv))
	require.NoError(t, err)

	state, err := w.Assign(id, dataset.Assignment{Duration: "t", Event: "e", Predictors: []string{"x"}})
	require.NoError(t, err, "fit failures live in the outcome")
	assert.Equal(t, survival.StatusFailed, state.Outcome.Status)
	assert.Equal(t, apperrors.CodeNoEvents, state.Outcome.Code())
}
