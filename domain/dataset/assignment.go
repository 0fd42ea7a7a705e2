package dataset

import (
	"strings"

	"gosurv/domain/core"
)

// Assignment designates the duration, event and predictor columns of a survival fit
type Assignment struct {
	Duration   string   `json:"duration"`
	Event      string   `json:"event"`
	Predictors []string `json:"predictors"`
}

// Normalize trims names, drops blank predictors and collapses duplicates keeping first order
func (a Assignment) Normalize() Assignment {
	out := Assignment{
		Duration: strings.TrimSpace(a.Duration),
		Event:    strings.TrimSpace(a.Event),
	}
	seen := make(map[string]bool, len(a.Predictors))
	for _, p := range a.Predictors {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out.Predictors = append(out.Predictors, p)
	}
	return out
}

// Complete reports whether duration, event and at least one predictor are chosen
func (a Assignment) Complete() bool {
	return a.Duration != "" && a.Event != "" && len(a.Predictors) > 0
}

// Missing lists the roles still to be chosen, for the selection prompt
func (a Assignment) Missing() []string {
	var missing []string
	if a.Duration == "" {
		missing = append(missing, "duration column")
	}
	if a.Event == "" {
		missing = append(missing, "event column")
	}
	if len(a.Predictors) == 0 {
		missing = append(missing, "at least one predictor")
	}
	return missing
}

// Columns returns duration, event, then predictors
func (a Assignment) Columns() []string {
	cols := make([]string, 0, len(a.Predictors)+2)
	cols = append(cols, a.Duration, a.Event)
	return append(cols, a.Predictors...)
}

// Validate checks the assignment against a table. The duration and event
// columns must differ and may not be reused as predictors.
func (a Assignment) Validate(t *Table) error {
	for _, col := range a.Columns() {
		if !t.HasColumn(col) {
			return core.NewColumnNotFoundError(col)
		}
	}
	if a.Duration == a.Event {
		return core.NewSelectionError("duration and event must be different columns")
	}
	for _, p := range a.Predictors {
		if p == a.Duration {
			return core.NewSelectionError("duration column " + p + " cannot also be a predictor")
		}
		if p == a.Event {
			return core.NewSelectionError("event column " + p + " cannot also be a predictor")
		}
	}
	return nil
}
