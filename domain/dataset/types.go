package dataset

import (
	"fmt"
	"strconv"

	"gosurv/domain/core"
)

// CellKind defines the storage type of a cell
type CellKind uint8

const (
	CellMissing CellKind = iota
	CellNumber
	CellText
)

func (k CellKind) String() string {
	switch k {
	case CellNumber:
		return "number"
	case CellText:
		return "text"
	default:
		return "missing"
	}
}

// Cell is one spreadsheet value: missing, a number, or text
type Cell struct {
	Kind CellKind
	Num  float64
	Text string
}

// Missing returns a missing cell
func Missing() Cell { return Cell{Kind: CellMissing} }

// Number returns a numeric cell
func Number(v float64) Cell { return Cell{Kind: CellNumber, Num: v} }

// Text returns a text cell
func Text(s string) Cell { return Cell{Kind: CellText, Text: s} }

// IsMissing reports whether the cell holds no value
func (c Cell) IsMissing() bool { return c.Kind == CellMissing }

// String renders the cell for display and for frequency keys
func (c Cell) String() string {
	switch c.Kind {
	case CellNumber:
		return strconv.FormatFloat(c.Num, 'g', -1, 64)
	case CellText:
		return c.Text
	default:
		return ""
	}
}

// Table is an ordered, immutable sequence of rows sharing one header.
// Every row holds exactly len(Columns) cells in header order.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]Cell

	index map[string]int
}

// NewTable builds a table, padding short rows with missing cells.
// Column names must be unique and non-empty.
func NewTable(name string, columns []string, rows [][]Cell) (*Table, error) {
	index := make(map[string]int, len(columns))
	for i, col := range columns {
		if col == "" {
			return nil, fmt.Errorf("column %d has an empty name", i)
		}
		if _, dup := index[col]; dup {
			return nil, fmt.Errorf("duplicate column name %q", col)
		}
		index[col] = i
	}

	normalized := make([][]Cell, len(rows))
	for i, row := range rows {
		if len(row) > len(columns) {
			return nil, fmt.Errorf("row %d has %d cells but the header has %d columns", i, len(row), len(columns))
		}
		cells := make([]Cell, len(columns))
		copy(cells, row)
		normalized[i] = cells
	}

	return &Table{
		Name:    name,
		Columns: append([]string(nil), columns...),
		Rows:    normalized,
		index:   index,
	}, nil
}

// Len returns the number of data rows
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index returns the position of a column or -1
func (t *Table) Index(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// HasColumn reports whether the header contains name
func (t *Table) HasColumn(name string) bool {
	return t.Index(name) >= 0
}

// Column returns a copy of one column's cells
func (t *Table) Column(name string) ([]Cell, error) {
	i := t.Index(name)
	if i < 0 {
		return nil, core.NewColumnNotFoundError(name)
	}
	cells := make([]Cell, len(t.Rows))
	for r, row := range t.Rows {
		cells[r] = row[i]
	}
	return cells, nil
}

// Head returns a table with the first n rows
func (t *Table) Head(n int) *Table {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	if n < 0 {
		n = 0
	}
	return &Table{Name: t.Name, Columns: t.Columns, Rows: t.Rows[:n], index: t.index}
}

// NumericColumns returns, in header order, the columns holding no text cells.
// A column of only missing cells counts as numeric, as an all-NaN float column would.
func (t *Table) NumericColumns() []string {
	var out []string
	for i, col := range t.Columns {
		numeric := true
		for _, row := range t.Rows {
			if row[i].Kind == CellText {
				numeric = false
				break
			}
		}
		if numeric {
			out = append(out, col)
		}
	}
	return out
}

// IsNumericColumn reports whether name is one of NumericColumns
func (t *Table) IsNumericColumn(name string) bool {
	i := t.Index(name)
	if i < 0 {
		return false
	}
	for _, row := range t.Rows {
		if row[i].Kind == CellText {
			return false
		}
	}
	return true
}
