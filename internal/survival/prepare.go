package survival

import (
	"fmt"
	"sort"
	"strings"

	"gosurv/adapters/datareadiness/coercer"
	"gosurv/domain/core"
	"gosurv/domain/dataset"
	"gosurv/internal/errors"
)

// Preparer turns a loaded table into a survival frame
type Preparer struct {
	coercer *coercer.TypeCoercer
}

// NewPreparer creates a preparer. A nil coercer uses the default strict rules.
func NewPreparer(c *coercer.TypeCoercer) *Preparer {
	if c == nil {
		c = coercer.NewTypeCoercer(coercer.DefaultCoercionConfig())
	}
	return &Preparer{coercer: c}
}

// Prepare restricts the table to the assigned columns, coerces every cell to a
// number, drops incomplete rows and orders the rest by ascending duration.
//
// Rows missing duration or event are dropped first; of the rows left, those
// missing any predictor are dropped next. A cell that does not parse counts as
// missing. Rows with equal durations keep their input order.
func (p *Preparer) Prepare(table *dataset.Table, assignment dataset.Assignment) (*dataset.Frame, error) {
	if table == nil {
		return nil, errors.InvalidSelection("no table loaded", core.ErrNoTable)
	}
	assignment = assignment.Normalize()
	if !assignment.Complete() {
		return nil, errors.InvalidSelection(
			"select "+strings.Join(assignment.Missing(), ", "),
			core.NewSelectionError("incomplete assignment"))
	}
	if err := assignment.Validate(table); err != nil {
		return nil, errors.InvalidSelection("invalid column selection", err)
	}

	durIdx := table.Index(assignment.Duration)
	evIdx := table.Index(assignment.Event)
	predIdx := make([]int, len(assignment.Predictors))
	for j, name := range assignment.Predictors {
		predIdx[j] = table.Index(name)
	}

	frame := &dataset.Frame{
		Duration:   assignment.Duration,
		Event:      assignment.Event,
		Predictors: assignment.Predictors,
		InputRows:  table.Len(),
	}

	type prepared struct {
		source   int
		duration float64
		event    float64
		cov      []float64
	}
	rows := make([]prepared, 0, table.Len())

rowLoop:
	for i, row := range table.Rows {
		d, okD := p.coercer.ToNumeric(row[durIdx])
		e, okE := p.coercer.ToNumeric(row[evIdx])
		if !okD || !okE {
			frame.DroppedRequired++
			continue
		}

		cov := make([]float64, len(predIdx))
		for j, idx := range predIdx {
			v, ok := p.coercer.ToNumeric(row[idx])
			if !ok {
				frame.DroppedPredictors++
				continue rowLoop
			}
			cov[j] = v
		}
		rows = append(rows, prepared{source: i, duration: d, event: e, cov: cov})
	}

	sort.SliceStable(rows, func(a, b int) bool {
		return rows[a].duration < rows[b].duration
	})

	frame.Durations = make([]float64, len(rows))
	frame.Events = make([]float64, len(rows))
	frame.Covariates = make([][]float64, len(rows))
	frame.SourceRows = make([]int, len(rows))
	for i, r := range rows {
		frame.Durations[i] = r.duration
		frame.Events[i] = r.event
		frame.Covariates[i] = r.cov
		frame.SourceRows[i] = r.source
	}

	return frame, nil
}

// Prepare runs the default preparer
func Prepare(table *dataset.Table, assignment dataset.Assignment) (*dataset.Frame, error) {
	return NewPreparer(nil).Prepare(table, assignment)
}

// DropSummary describes how many rows were removed and why
func DropSummary(f *dataset.Frame) string {
	if f.Dropped() == 0 {
		return fmt.Sprintf("%d rows used, none dropped", f.Len())
	}
	return fmt.Sprintf("%d of %d rows used (%d missing duration or event, %d missing a predictor)",
		f.Len(), f.InputRows, f.DroppedRequired, f.DroppedPredictors)
}
