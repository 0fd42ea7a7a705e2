package profiling

import (
	"math"
	"sort"

	"gosurv/domain/dataset"
	"gosurv/internal"
	"gosurv/internal/errors"

	"github.com/montanaflynn/stats"
)

// DataProfiler computes the exploratory views of an uploaded table
type DataProfiler struct {
	analyzer *DistributionAnalyzer
	logger   *internal.Logger
}

// NewDataProfiler creates a new data profiler
func NewDataProfiler(logger *internal.Logger) *DataProfiler {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &DataProfiler{
		analyzer: NewDistributionAnalyzer(),
		logger:   logger.WithComponent("Profiler"),
	}
}

// Describe summarises every column: numeric columns get count, mean, std,
// min, quartiles and max; the others get count, unique, top and freq.
func (dp *DataProfiler) Describe(table *dataset.Table) (*Summary, error) {
	if table == nil {
		return nil, errors.InvalidInput("no table to describe")
	}
	summary := &Summary{Table: table.Name, Rows: table.Len(), Columns: len(table.Columns)}

	for i, col := range table.Columns {
		if table.IsNumericColumn(col) {
			values, missing := numericValues(table, i)
			ns, err := dp.analyzer.AnalyzeDistribution(col, values, missing)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to describe column %q", col)
			}
			summary.Numeric = append(summary.Numeric, ns)
			continue
		}
		summary.Categorical = append(summary.Categorical, describeCategorical(table, i))
	}

	dp.logger.Debug("described %s: %d numeric, %d categorical columns",
		table.Name, len(summary.Numeric), len(summary.Categorical))
	return summary, nil
}

// Correlation computes Pearson correlations between numeric columns using,
// for each pair, the rows where both values are present. Pairs with fewer
// than two such rows or a constant side are NaN.
func (dp *DataProfiler) Correlation(table *dataset.Table) *CorrelationMatrix {
	cols := table.NumericColumns()
	idx := make([]int, len(cols))
	for k, c := range cols {
		idx[k] = table.Index(c)
	}

	values := make([][]float64, len(cols))
	for k := range values {
		values[k] = make([]float64, len(cols))
	}

	for a := range cols {
		for b := a; b < len(cols); b++ {
			r := pairwisePearson(table, idx[a], idx[b])
			values[a][b] = r
			values[b][a] = r
		}
	}
	return &CorrelationMatrix{Columns: cols, Values: values}
}

func pairwisePearson(table *dataset.Table, a, b int) float64 {
	var xs, ys []float64
	for _, row := range table.Rows {
		if row[a].Kind == dataset.CellNumber && row[b].Kind == dataset.CellNumber {
			xs = append(xs, row[a].Num)
			ys = append(ys, row[b].Num)
		}
	}
	if len(xs) < 2 || constant(xs) || constant(ys) {
		return math.NaN()
	}
	r, err := stats.Pearson(xs, ys)
	if err != nil {
		return math.NaN()
	}
	return r
}

// ValueCounts returns the frequency of each present value of column, most
// frequent first; equal counts keep first-appearance order.
func (dp *DataProfiler) ValueCounts(table *dataset.Table, column string) ([]ValueCount, error) {
	cells, err := table.Column(column)
	if err != nil {
		return nil, errors.WithCode(errors.CodeNotFound, err)
	}
	return CountValues(cells), nil
}

// CountValues tallies present cells by their display text, most frequent
// first with ties in first-appearance order
func CountValues(cells []dataset.Cell) []ValueCount {
	counts := make(map[string]int)
	var order []string
	total := 0
	for _, c := range cells {
		if c.IsMissing() {
			continue
		}
		key := c.String()
		if counts[key] == 0 {
			order = append(order, key)
		}
		counts[key]++
		total++
	}

	out := make([]ValueCount, len(order))
	for i, key := range order {
		out[i] = ValueCount{
			Value:   key,
			Count:   counts[key],
			Percent: 100 * float64(counts[key]) / float64(total),
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

func describeCategorical(table *dataset.Table, col int) CategoricalSummary {
	cells := make([]dataset.Cell, table.Len())
	for r, row := range table.Rows {
		cells[r] = row[col]
	}
	counts := CountValues(cells)

	cs := CategoricalSummary{Column: table.Columns[col], Unique: len(counts)}
	for _, vc := range counts {
		cs.Count += vc.Count
	}
	cs.Missing = table.Len() - cs.Count
	if len(counts) > 0 {
		cs.Top = counts[0].Value
		cs.Freq = counts[0].Count
	}
	return cs
}

func numericValues(table *dataset.Table, col int) ([]float64, int) {
	values := make([]float64, 0, table.Len())
	missing := 0
	for _, row := range table.Rows {
		if row[col].Kind == dataset.CellNumber {
			values = append(values, row[col].Num)
		} else {
			missing++
		}
	}
	return values, missing
}

func constant(xs []float64) bool {
	for _, x := range xs[1:] {
		if x != xs[0] {
			return false
		}
	}
	return true
}
