package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"gosurv/adapters/datareadiness/coercer"
	"gosurv/adapters/excel"
	"gosurv/domain/dataset"
	"gosurv/internal"
	"gosurv/internal/errors"
	"gosurv/internal/profiling"
	"gosurv/internal/report"
	"gosurv/internal/survival"
	"gosurv/internal/testkit"

	"github.com/spf13/cobra"
)

// options shared by every command
type globalOptions struct {
	lenient bool
	verbose bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if code := errors.GetCode(err); code != "UNKNOWN" {
			fmt.Fprintln(os.Stderr, "code:", code)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:           "gosurv-cli",
		Short:         "Describe spreadsheets and fit survival models from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVar(&opts.lenient, "lenient", false, "Accept thousands separators, currency symbols and percentages as numbers")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log progress to stderr")

	rootCmd.AddCommand(
		newDescribeCmd(opts),
		newFitCmd(opts),
		newReportCmd(opts),
		newGenerateCmd(),
	)
	return rootCmd
}

func (o *globalOptions) logger() *internal.Logger {
	if o.verbose {
		return internal.NewLoggerTo(os.Stderr, internal.LogLevelDebug)
	}
	return internal.NewDiscardLogger()
}

func (o *globalOptions) coercer() *coercer.TypeCoercer {
	cfg := coercer.DefaultCoercionConfig()
	cfg.Lenient = o.lenient
	return coercer.NewTypeCoercer(cfg)
}

func (o *globalOptions) load(path string) (*dataset.Table, error) {
	return excel.NewDataReader(o.coercer(), o.logger()).ReadFile(path)
}

func newDescribeCmd(opts *globalOptions) *cobra.Command {
	var rows int

	cmd := &cobra.Command{
		Use:   "describe FILE",
		Short: "Print a preview and descriptive statistics of a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := opts.load(args[0])
			if err != nil {
				return err
			}
			return runDescribe(cmd.OutOrStdout(), table, rows, opts.logger())
		},
	}
	cmd.Flags().IntVar(&rows, "rows", 5, "Number of preview rows")
	return cmd
}

func runDescribe(w io.Writer, table *dataset.Table, rows int, logger *internal.Logger) error {
	summary, err := profiling.NewDataProfiler(logger).Describe(table)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: %d rows, %d columns\n\n", table.Name, summary.Rows, summary.Columns)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	head := table.Head(rows)
	fmt.Fprintln(tw, strings.Join(head.Columns, "\t"))
	for _, row := range head.Rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = c.String()
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()

	if len(summary.Numeric) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "\tcount\tmean\tstd\tmin\t25%\t50%\t75%\tmax\t")
		for _, n := range summary.Numeric {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n", n.Column, n.Count,
				num(n.Mean), num(n.Std), num(n.Min), num(n.Q25), num(n.Median), num(n.Q75), num(n.Max))
		}
		tw.Flush()
	}
	if len(summary.Categorical) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "\tcount\tunique\ttop\tfreq")
		for _, c := range summary.Categorical {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%d\n", c.Column, c.Count, c.Unique, c.Top, c.Freq)
		}
		tw.Flush()
	}
	return nil
}

// assignmentFlags binds --duration, --event and --predictor
type assignmentFlags struct {
	duration   string
	event      string
	predictors []string
}

func (f *assignmentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.duration, "duration", "", "Duration column")
	cmd.Flags().StringVar(&f.event, "event", "", "Event column (1 = event observed, 0 = censored)")
	cmd.Flags().StringSliceVarP(&f.predictors, "predictor", "p", nil, "Predictor column (repeatable or comma-separated)")
}

func (f *assignmentFlags) assignment() dataset.Assignment {
	return dataset.Assignment{Duration: f.duration, Event: f.event, Predictors: f.predictors}
}

func newFitCmd(opts *globalOptions) *cobra.Command {
	var flags assignmentFlags
	var alpha float64

	cmd := &cobra.Command{
		Use:   "fit FILE",
		Short: "Fit Kaplan-Meier, Cox and the proportional-hazards test",
		Long: `Fit the survival models for one column assignment.

Example: gosurv-cli fit cohort.xlsx --duration time --event event -p treatment -p age`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := opts.load(args[0])
			if err != nil {
				return err
			}
			cfg := survival.DefaultFitConfig()
			cfg.Alpha = alpha
			outcome := survival.NewPipeline(opts.coercer(), cfg, opts.logger()).Run(table, flags.assignment())
			return runFit(cmd.OutOrStdout(), outcome)
		},
	}
	flags.register(cmd)
	cmd.Flags().Float64Var(&alpha, "alpha", survival.DefaultAlpha, "Significance level for confidence intervals")
	return cmd
}

// runFit prints the fitted models, or returns the prompt or failure as an error
func runFit(w io.Writer, outcome survival.Outcome) error {
	switch outcome.Status {
	case survival.StatusPrompt:
		return errors.InvalidSelection(outcome.Prompt, nil)
	case survival.StatusFailed:
		return outcome.Err
	}

	models := outcome.Models
	fmt.Fprintln(w, survival.DropSummary(outcome.Frame))
	fmt.Fprintf(w, "Kaplan-Meier: %d subjects, %d events, median survival %s\n\n",
		models.KaplanMeier.Observations, models.KaplanMeier.Events, num(models.KaplanMeier.Median))

	cox := models.Cox
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "covariate\tcoef\texp(coef)\tse(coef)\tz\tp\t-log2(p)\t")
	for _, c := range cox.Coefficients {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n", c.Name, num(c.Coef), num(c.HazardRatio), num(c.SE), num(c.Z), pValue(c.P), num(c.NegLog2P))
	}
	tw.Flush()
	fmt.Fprintf(w, "\nConcordance = %s, partial AIC = %s, LR test = %s on %d df, p = %s\n\n",
		num(cox.Concordance), num(cox.PartialAIC), num(cox.LRStatistic), cox.LRDegreesOfFreedom, pValue(cox.LRPValue))

	ph := models.PHTest
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "PH test (%s)\ttest_statistic\tp\t-log2(p)\t\n", ph.TimeTransform)
	for _, r := range ph.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", r.Name, num(r.Statistic), pValue(r.P), num(r.NegLog2P))
	}
	tw.Flush()
	if v := ph.Violations(cox.Alpha); len(v) > 0 {
		fmt.Fprintf(w, "\nProportional hazards may not hold for: %s\n", strings.Join(v, ", "))
	}
	return nil
}

func newReportCmd(opts *globalOptions) *cobra.Command {
	var flags assignmentFlags
	var output string
	var asHTML bool

	cmd := &cobra.Command{
		Use:   "report FILE",
		Short: "Write a Markdown (or HTML) report of the data and, if columns are given, the survival fit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := opts.load(args[0])
			if err != nil {
				return err
			}
			summary, err := profiling.NewDataProfiler(opts.logger()).Describe(table)
			if err != nil {
				return err
			}

			in := report.Input{FileName: filepath.Base(args[0]), Summary: summary, GeneratedAt: time.Now()}
			if a := flags.assignment(); a.Duration != "" || a.Event != "" || len(a.Predictors) > 0 {
				outcome := survival.NewPipeline(opts.coercer(), survival.DefaultFitConfig(), opts.logger()).Run(table, a)
				in.Outcome = &outcome
			}

			md := report.Markdown(in)
			body := []byte(md)
			if asHTML {
				body = report.HTML(md)
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(body)
				return err
			}
			return os.WriteFile(output, body, 0o644)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	cmd.Flags().BoolVar(&asHTML, "html", false, "Render the report as HTML")
	return cmd
}

func newGenerateCmd() *cobra.Command {
	config := testkit.DefaultCohortConfig()

	cmd := &cobra.Command{
		Use:   "generate OUT",
		Short: "Write a synthetic survival cohort to an .xlsx or .csv file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(args[0], config)
		},
	}
	cmd.Flags().IntVar(&config.Subjects, "subjects", config.Subjects, "Number of subjects")
	cmd.Flags().Int64Var(&config.Seed, "seed", config.Seed, "Random seed")
	cmd.Flags().Float64Var(&config.TreatmentEffect, "treatment-effect", config.TreatmentEffect, "Log hazard ratio of treatment")
	cmd.Flags().Float64Var(&config.AgeEffect, "age-effect", config.AgeEffect, "Log hazard ratio per year of age")
	cmd.Flags().Float64Var(&config.MissingRate, "missing-rate", config.MissingRate, "Share of biomarker cells left blank")
	return cmd
}

func runGenerate(path string, config testkit.CohortConfig) error {
	fileType, err := excel.DetectFileType(path)
	if err != nil {
		return err
	}
	table, err := testkit.NewCohortGenerator(config).Generate()
	if err != nil {
		return errors.Wrap(err, "failed to generate cohort")
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	defer f.Close()

	if fileType == excel.FileTypeCSV {
		err = testkit.WriteCSV(table, f)
	} else {
		err = testkit.WriteXLSX(table, f)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return f.Close()
}

func num(v float64) string {
	return strings.TrimSpace(fmt.Sprintf("%8.4g", v))
}

func pValue(p float64) string {
	if p < 0.005 {
		return "<0.005"
	}
	return fmt.Sprintf("%.3f", p)
}
