package profiling

import (
	"gosurv/adapters/datareadiness/coercer"
	"gosurv/domain/dataset"
)

// ColumnProfile is the inferred type of one column, as the column pickers show it
type ColumnProfile struct {
	Name string `json:"name"`
	coercer.TypeAnalysis
}

// Numeric reports whether every present cell coerces to a number
func (p ColumnProfile) Numeric() bool {
	return p.RecommendedType == coercer.ColumnNumeric
}

// MostlyNumeric reports whether some, but not all, present cells coerce to a
// number. Such columns still work as survival columns: the stray cells become
// missing and their rows are dropped.
func (p ColumnProfile) MostlyNumeric() bool {
	return !p.Numeric() && p.NumericRatio >= 0.5
}

// ProfileColumns runs the coercer's type analysis over every column in
// header order. A nil coercer uses the default rules.
func ProfileColumns(table *dataset.Table, c *coercer.TypeCoercer) []ColumnProfile {
	if table == nil {
		return nil
	}
	if c == nil {
		c = coercer.NewTypeCoercer(coercer.DefaultCoercionConfig())
	}
	out := make([]ColumnProfile, 0, len(table.Columns))
	for _, name := range table.Columns {
		cells, err := table.Column(name)
		if err != nil {
			continue
		}
		out = append(out, ColumnProfile{Name: name, TypeAnalysis: c.AnalyzeColumn(cells)})
	}
	return out
}
