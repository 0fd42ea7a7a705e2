package report

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"gosurv/domain/dataset"
	apperrors "gosurv/internal/errors"
	"gosurv/internal/profiling"
	"gosurv/internal/survival"
	"gosurv/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownWithoutFit(t *testing.T) {
	md := Markdown(Input{
		FileName: "cohort.xlsx",
		Summary: &profiling.Summary{
			Rows:        3,
			Columns:     2,
			Numeric:     []profiling.NumericSummary{{Column: "age", Count: 3, Mean: 50, Std: math.NaN()}},
			Categorical: []profiling.CategoricalSummary{{Column: "site|x", Count: 3, Unique: 2, Top: "north", Freq: 2}},
		},
		GeneratedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	})

	assert.True(t, strings.HasPrefix(md, "# Survival analysis report: cohort.xlsx"))
	assert.Contains(t, md, "_Generated 2024-01-02T03:04:05Z_")
	assert.Contains(t, md, "| age | 3 | 50 |  |")
	assert.Contains(t, md, `site\|x`)
	assert.Contains(t, md, "No survival model has been fitted yet.")
}

func TestMarkdownFailedFit(t *testing.T) {
	outcome := &survival.Outcome{
		Status: survival.StatusFailed,
		Err:    &apperrors.AppError{Code: apperrors.CodeNoEvents, Message: "no events", Cause: errors.New("boom")},
	}
	md := Markdown(Input{Outcome: outcome})
	assert.Contains(t, md, "**The fit failed** (`NO_EVENTS`)")
	assert.NotContains(t, md, "Cox proportional hazards")
}

func TestMarkdownFittedModels(t *testing.T) {
	config := testkit.DefaultCohortConfig()
	config.Subjects = 150
	table, err := testkit.NewCohortGenerator(config).Generate()
	require.NoError(t, err)

	outcome := survival.Run(table, dataset.Assignment{Duration: "time", Event: "event", Predictors: []string{"treatment", "age"}})
	require.Equal(t, survival.StatusFitted, outcome.Status, "err: %v", outcome.Err)

	md := Markdown(Input{FileName: "cohort.xlsx", Outcome: &outcome})
	assert.Contains(t, md, "### Kaplan-Meier")
	assert.Contains(t, md, "| treatment |")
	assert.Contains(t, md, "### Proportional hazards test")
	assert.Contains(t, md, "Time transform: rank")

	html := string(HTML(md))
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<h1")
	assert.Contains(t, html, "<code>treatment</code>")
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "", num(math.NaN()))
	assert.Equal(t, "inf", num(math.Inf(1)))
	assert.Equal(t, "0.1235", num(0.123456))
	assert.Equal(t, "<0.005", pValue(0.0001))
	assert.Equal(t, "0.43", pValue(0.4321))
	assert.Equal(t, "not reached", median(math.Inf(1)))
}

func TestSpreadsheetTextIsNotRenderedAsHTML(t *testing.T) {
	md := Markdown(Input{
		FileName: "<b>cohort</b>.csv",
		Summary: &profiling.Summary{
			Rows:    1,
			Columns: 1,
			Categorical: []profiling.CategoricalSummary{
				{Column: "<img src=x onerror=alert(1)>", Count: 1, Unique: 1, Top: "<script>alert(2)</script>", Freq: 1},
			},
		},
		Outcome: &survival.Outcome{
			Status: survival.StatusFailed,
			Err:    apperrors.InvalidSelection(`column "<script>x</script>" not found`, nil),
		},
	})

	out := string(HTML(md))
	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, "<img")
	assert.NotContains(t, out, "<b>")
	assert.Contains(t, out, "&lt;script&gt;alert(2)&lt;/script&gt;")
	assert.Contains(t, out, "&lt;img src=x onerror=alert(1)&gt;")
}

func TestRawHTMLIsDropped(t *testing.T) {
	out := string(HTML("before\n\n<script>alert(1)</script>\n\nafter <iframe src=x></iframe>\n"))
	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, "<iframe")
	assert.Contains(t, out, "before")
}

func TestConfidenceLevelFollowsAlpha(t *testing.T) {
	config := testkit.DefaultCohortConfig()
	config.Subjects = 150
	table, err := testkit.NewCohortGenerator(config).Generate()
	require.NoError(t, err)

	cfg := survival.DefaultFitConfig()
	cfg.Alpha = 0.1
	outcome := survival.NewPipeline(nil, cfg, nil).Run(table,
		dataset.Assignment{Duration: "time", Event: "event", Predictors: []string{"treatment"}})
	require.Equal(t, survival.StatusFitted, outcome.Status, "err: %v", outcome.Err)

	md := Markdown(Input{Outcome: &outcome})
	assert.Contains(t, md, "coef lower 90%")
	assert.NotContains(t, md, "95%")

	assert.Equal(t, "95%", ConfidenceLabel(0.05))
	assert.Equal(t, "97.5%", ConfidenceLabel(0.025))
}
