package dataset

// Frame is the prepared survival frame: every value numeric and present,
// rows ordered by non-decreasing duration.
type Frame struct {
	Duration   string
	Event      string
	Predictors []string

	Durations  []float64
	Events     []float64
	Covariates [][]float64 // row-major, one slice per row in Predictors order
	SourceRows []int       // index of each kept row in the input table

	InputRows         int
	DroppedRequired   int // rows missing duration or event
	DroppedPredictors int // rows missing a predictor value
}

// Len returns the number of rows
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Durations)
}

// Columns returns duration, event, then predictors
func (f *Frame) Columns() []string {
	cols := make([]string, 0, len(f.Predictors)+2)
	cols = append(cols, f.Duration, f.Event)
	return append(cols, f.Predictors...)
}

// Dropped returns the total number of removed rows
func (f *Frame) Dropped() int {
	return f.DroppedRequired + f.DroppedPredictors
}

// EventCount returns the number of rows whose event value is non-zero
func (f *Frame) EventCount() int {
	n := 0
	for _, e := range f.Events {
		if e != 0 {
			n++
		}
	}
	return n
}

// Column returns the values of a named frame column, or nil
func (f *Frame) Column(name string) []float64 {
	switch name {
	case f.Duration:
		return f.Durations
	case f.Event:
		return f.Events
	}
	for j, p := range f.Predictors {
		if p == name {
			col := make([]float64, len(f.Covariates))
			for i, row := range f.Covariates {
				col[i] = row[j]
			}
			return col
		}
	}
	return nil
}

// Row returns the values of row i in Columns order
func (f *Frame) Row(i int) []float64 {
	row := make([]float64, 0, len(f.Predictors)+2)
	row = append(row, f.Durations[i], f.Events[i])
	return append(row, f.Covariates[i]...)
}
