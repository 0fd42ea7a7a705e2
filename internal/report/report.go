package report

import (
	"fmt"
	"math"
	"strings"
	"time"

	"gosurv/internal/profiling"
	"gosurv/internal/survival"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Input collects what a report can describe. Summary and Outcome are optional.
type Input struct {
	FileName    string
	Summary     *profiling.Summary
	Outcome     *survival.Outcome
	GeneratedAt time.Time
}

// Markdown renders the session results as a Markdown document
func Markdown(in Input) string {
	var b strings.Builder

	title := "Survival analysis report"
	if in.FileName != "" {
		title += ": " + escape(in.FileName)
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if !in.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "_Generated %s_\n\n", in.GeneratedAt.UTC().Format(time.RFC3339))
	}

	if in.Summary != nil {
		writeSummary(&b, in.Summary)
	}
	writeOutcome(&b, in.Outcome)

	return b.String()
}

// HTML converts Markdown to an HTML fragment. Raw HTML in the source is
// dropped, so only what Markdown itself produces reaches the page.
func HTML(md string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse([]byte(md))
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank | html.SkipHTML})
	return markdown.Render(doc, renderer)
}

func writeSummary(b *strings.Builder, s *profiling.Summary) {
	fmt.Fprintf(b, "## Data\n\n%d rows, %d columns.\n\n", s.Rows, s.Columns)

	if len(s.Numeric) > 0 {
		b.WriteString("### Numeric columns\n\n")
		b.WriteString("| column | count | mean | std | min | 25% | 50% | 75% | max |\n")
		b.WriteString("|---|---:|---:|---:|---:|---:|---:|---:|---:|\n")
		for _, n := range s.Numeric {
			fmt.Fprintf(b, "| %s | %d | %s | %s | %s | %s | %s | %s | %s |\n",
				escape(n.Column), n.Count, num(n.Mean), num(n.Std), num(n.Min),
				num(n.Q25), num(n.Median), num(n.Q75), num(n.Max))
		}
		b.WriteString("\n")
	}

	if len(s.Categorical) > 0 {
		b.WriteString("### Other columns\n\n")
		b.WriteString("| column | count | unique | top | freq |\n")
		b.WriteString("|---|---:|---:|---|---:|\n")
		for _, c := range s.Categorical {
			fmt.Fprintf(b, "| %s | %d | %d | %s | %d |\n", escape(c.Column), c.Count, c.Unique, escape(c.Top), c.Freq)
		}
		b.WriteString("\n")
	}
}

func writeOutcome(b *strings.Builder, o *survival.Outcome) {
	b.WriteString("## Survival models\n\n")
	if o == nil {
		b.WriteString("No survival model has been fitted yet.\n")
		return
	}

	switch o.Status {
	case survival.StatusPrompt:
		fmt.Fprintf(b, "%s\n", escape(o.Prompt))
		return
	case survival.StatusFailed:
		fmt.Fprintf(b, "**The fit failed** (`%s`): %s\n", o.Code(), escape(o.Err.Error()))
		return
	}

	a := o.Assignment
	fmt.Fprintf(b, "Duration %s, event %s, predictors %s. %s.\n\n",
		code(a.Duration), code(a.Event), codeList(a.Predictors), survival.DropSummary(o.Frame))

	km := o.Models.KaplanMeier
	b.WriteString("### Kaplan-Meier\n\n")
	fmt.Fprintf(b, "%d subjects, %d events. Median survival: %s.\n\n", km.Observations, km.Events, median(km.Median))

	cox := o.Models.Cox
	fmt.Fprintf(b, "### Cox proportional hazards\n\n")
	level := ConfidenceLabel(cox.Alpha)
	fmt.Fprintf(b, "| covariate | coef | exp(coef) | se(coef) | coef lower %[1]s | coef upper %[1]s | exp(coef) lower %[1]s | exp(coef) upper %[1]s | z | p | -log2(p) |\n", level)
	b.WriteString("|---|---:|---:|---:|---:|---:|---:|---:|---:|---:|---:|\n")
	for _, c := range cox.Coefficients {
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s | %s | %s | %s | %s | %s | %s |\n",
			escape(c.Name), num(c.Coef), num(c.HazardRatio), num(c.SE), num(c.CoefLower), num(c.CoefUpper),
			num(c.HRLower), num(c.HRUpper), num(c.Z), pValue(c.P), num(c.NegLog2P))
	}
	fmt.Fprintf(b, "\nConcordance %s, partial AIC %s, log-likelihood %s. ",
		num(cox.Concordance), num(cox.PartialAIC), num(cox.LogLikelihood))
	fmt.Fprintf(b, "Likelihood ratio test %s on %d df, p=%s (converged in %d iterations).\n\n",
		num(cox.LRStatistic), cox.LRDegreesOfFreedom, pValue(cox.LRPValue), cox.Iterations)

	ph := o.Models.PHTest
	fmt.Fprintf(b, "### Proportional hazards test\n\nTime transform: %s, %d deaths.\n\n", ph.TimeTransform, ph.Deaths)
	b.WriteString("| covariate | test statistic | p | -log2(p) |\n|---|---:|---:|---:|\n")
	for _, r := range ph.Rows {
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n", escape(r.Name), num(r.Statistic), pValue(r.P), num(r.NegLog2P))
	}
	if v := ph.Violations(cox.Alpha); len(v) > 0 {
		fmt.Fprintf(b, "\nThe hazard ratio of %s may change over time (p < %g).\n", codeList(v), cox.Alpha)
	}
}

func num(v float64) string {
	switch {
	case math.IsNaN(v):
		return ""
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return fmt.Sprintf("%.4g", v)
}

func pValue(p float64) string {
	if p < 0.005 {
		return "<0.005"
	}
	return fmt.Sprintf("%.2f", p)
}

func median(v float64) string {
	if math.IsInf(v, 1) {
		return "not reached"
	}
	return num(v)
}

func codeList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = code(n)
	}
	return strings.Join(quoted, ", ")
}

// ConfidenceLabel names the interval level for a significance level, "95%" for 0.05
func ConfidenceLabel(alpha float64) string {
	return fmt.Sprintf("%.3g%%", 100*(1-alpha))
}

// markdownSpecial are the characters that could start markup or raw HTML
const markdownSpecial = "\\`*_[]<>|&"

// escape backslash-escapes Markdown syntax so spreadsheet text renders literally
func escape(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(markdownSpecial, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// code wraps a name in a code span; backticks would end the span early
func code(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "'") + "`"
}
