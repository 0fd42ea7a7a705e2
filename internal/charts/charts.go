package charts

import (
	"fmt"
	"math"
	"strings"

	"gosurv/domain/core"
	"gosurv/domain/dataset"
	"gosurv/internal"
	"gosurv/internal/errors"
	"gosurv/internal/observability"
	"gosurv/internal/profiling"
	"gosurv/internal/survival"
)

// Kind names a chart type
type Kind string

const (
	KindScatter  Kind = "scatter"
	KindBox      Kind = "box"
	KindPie      Kind = "pie"
	KindHeatmap  Kind = "heatmap"
	KindSurvival Kind = "survival"
)

// Kinds lists every chart kind in menu order
var Kinds = []Kind{KindScatter, KindBox, KindPie, KindHeatmap, KindSurvival}

// ParseKind validates a chart kind name
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", errors.InvalidChart(fmt.Sprintf("unknown chart kind %q", s), nil)
}

// Chart is a renderer-independent description of one plot. Rows use the
// generic field names of the kind (x/y, value, count, a/b/r, time/survival)
// so column names never leak into field paths.
type Chart struct {
	Kind   Kind                     `json:"kind"`
	Title  string                   `json:"title"`
	XTitle string                   `json:"x_title,omitempty"`
	YTitle string                   `json:"y_title,omitempty"`
	Rows   []map[string]interface{} `json:"rows"`
}

// Request selects a chart kind and its columns
type Request struct {
	Kind    Kind     `json:"kind"`
	Columns []string `json:"columns"`
}

// Builder checks whether a chart can be drawn and assembles its data
type Builder struct {
	profiler *profiling.DataProfiler
	logger   *internal.Logger
}

// NewBuilder creates a chart builder
func NewBuilder(profiler *profiling.DataProfiler, logger *internal.Logger) *Builder {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	if profiler == nil {
		profiler = profiling.NewDataProfiler(logger)
	}
	return &Builder{profiler: profiler, logger: logger.WithComponent("Charts")}
}

// Build dispatches a request. km may be nil when no model is fitted.
func (b *Builder) Build(req Request, table *dataset.Table, km *survival.KaplanMeier) (*Chart, error) {
	chart, err := b.build(req, table, km)
	result := "rendered"
	if err != nil {
		result = "invalid"
		b.logger.Debug("%s chart rejected: %v", req.Kind, err)
	}
	observability.RecordChart(string(req.Kind), result)
	return chart, err
}

func (b *Builder) build(req Request, table *dataset.Table, km *survival.KaplanMeier) (*Chart, error) {
	if req.Kind == KindSurvival {
		return Survival(km)
	}
	if table == nil {
		return nil, errors.InvalidChart("upload a spreadsheet first", core.ErrNoTable)
	}

	switch req.Kind {
	case KindScatter:
		if len(req.Columns) != 2 {
			return nil, errors.InvalidChart("a scatter plot needs exactly two columns", nil)
		}
		return Scatter(table, req.Columns[0], req.Columns[1])
	case KindBox:
		if len(req.Columns) != 1 {
			return nil, errors.InvalidChart("a box plot needs one column", nil)
		}
		return Box(table, req.Columns[0])
	case KindPie:
		if len(req.Columns) != 1 {
			return nil, errors.InvalidChart("a pie chart needs one column", nil)
		}
		return Pie(table, req.Columns[0])
	case KindHeatmap:
		return b.Heatmap(table)
	default:
		return nil, errors.InvalidChart(fmt.Sprintf("unknown chart kind %q", req.Kind), nil)
	}
}

// Scatter plots two distinct numeric columns over the rows where both are numbers
func Scatter(table *dataset.Table, x, y string) (*Chart, error) {
	if x == y {
		return nil, errors.InvalidChart("choose two different columns for a scatter plot", nil)
	}
	xi, err := columnIndex(table, x)
	if err != nil {
		return nil, err
	}
	yi, err := columnIndex(table, y)
	if err != nil {
		return nil, err
	}

	var rows []map[string]interface{}
	for _, row := range table.Rows {
		if row[xi].Kind == dataset.CellNumber && row[yi].Kind == dataset.CellNumber {
			rows = append(rows, map[string]interface{}{"x": row[xi].Num, "y": row[yi].Num})
		}
	}
	if len(rows) == 0 {
		return nil, errors.InvalidChart(fmt.Sprintf("%q and %q share no rows with numeric values", x, y), nil)
	}
	return &Chart{
		Kind:   KindScatter,
		Title:  fmt.Sprintf("%s vs %s", y, x),
		XTitle: x,
		YTitle: y,
		Rows:   rows,
	}, nil
}

// Box plots the numeric values of one column
func Box(table *dataset.Table, column string) (*Chart, error) {
	ci, err := columnIndex(table, column)
	if err != nil {
		return nil, err
	}
	var rows []map[string]interface{}
	for _, row := range table.Rows {
		if row[ci].Kind == dataset.CellNumber {
			rows = append(rows, map[string]interface{}{"value": row[ci].Num})
		}
	}
	if len(rows) == 0 {
		return nil, errors.InvalidChart(fmt.Sprintf("%q has no numeric values", column), nil)
	}
	return &Chart{Kind: KindBox, Title: "Distribution of " + column, YTitle: column, Rows: rows}, nil
}

// Pie shows the value counts of one column. An empty column is an error,
// never an empty chart.
func Pie(table *dataset.Table, column string) (*Chart, error) {
	cells, err := table.Column(column)
	if err != nil {
		return nil, errors.InvalidChart(fmt.Sprintf("column %q does not exist", column), err)
	}
	counts := profiling.CountValues(cells)
	if len(counts) == 0 {
		if table.Len() == 0 {
			return nil, errors.InvalidChart("the table has no rows to chart", core.ErrEmptyTable)
		}
		return nil, errors.InvalidChart(fmt.Sprintf("%q has no values", column), nil)
	}

	rows := make([]map[string]interface{}, len(counts))
	for i, vc := range counts {
		rows[i] = map[string]interface{}{"value": vc.Value, "count": vc.Count, "percent": vc.Percent}
	}
	return &Chart{Kind: KindPie, Title: "Share of " + column, Rows: rows}, nil
}

// Heatmap shows the Pearson correlation matrix of the numeric columns
func (b *Builder) Heatmap(table *dataset.Table) (*Chart, error) {
	if table.Len() == 0 {
		return nil, errors.InvalidChart("the table has no rows to correlate", core.ErrEmptyTable)
	}
	matrix := b.profiler.Correlation(table)

	hasNumber := false
	for _, col := range matrix.Columns {
		ci := table.Index(col)
		for _, row := range table.Rows {
			if row[ci].Kind == dataset.CellNumber {
				hasNumber = true
				break
			}
		}
	}
	if !hasNumber {
		return nil, errors.InvalidChart("the table has no numeric columns", nil)
	}

	rows := make([]map[string]interface{}, 0, len(matrix.Columns)*len(matrix.Columns))
	for i, a := range matrix.Columns {
		for j, c := range matrix.Columns {
			rows = append(rows, map[string]interface{}{"a": a, "b": c, "r": finite(matrix.Values[i][j])})
		}
	}
	return &Chart{Kind: KindHeatmap, Title: "Correlation heatmap", Rows: rows}, nil
}

// Survival draws the Kaplan-Meier step curve with its confidence band
func Survival(km *survival.KaplanMeier) (*Chart, error) {
	if km == nil || len(km.Points) == 0 {
		return nil, errors.InvalidChart("fit the survival models before plotting the curve", nil)
	}
	rows := make([]map[string]interface{}, len(km.Points))
	for i, p := range km.Points {
		rows[i] = map[string]interface{}{
			"time":     p.Time,
			"survival": p.Survival,
			"lower":    p.Lower,
			"upper":    p.Upper,
		}
	}
	return &Chart{
		Kind:   KindSurvival,
		Title:  "Kaplan-Meier survival estimate",
		XTitle: "time",
		YTitle: "survival probability",
		Rows:   rows,
	}, nil
}

func columnIndex(table *dataset.Table, name string) (int, error) {
	i := table.Index(name)
	if i < 0 {
		return -1, errors.InvalidChart(fmt.Sprintf("column %q does not exist", name), core.NewColumnNotFoundError(name))
	}
	return i, nil
}

// finite maps NaN and infinities to nil so the data stays valid JSON
func finite(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
