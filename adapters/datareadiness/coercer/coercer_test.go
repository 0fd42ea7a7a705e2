package coercer

import (
	"testing"

	"gosurv/domain/dataset"

	"github.com/stretchr/testify/assert"
)

func TestParseNumberStrict(t *testing.T) {
	c := NewTypeCoercer(DefaultCoercionConfig())

	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"5", 5, true},
		{" 2.5 ", 2.5, true},
		{"-3e2", -300, true},
		{"n/a", 0, false},
		{"", 0, false},
		{"inf", 0, false},
		{"NaN", 0, false},
		{"$5", 0, false},
		{"1,000", 0, false},
		{"12 months", 0, false},
	}

	for _, tt := range tests {
		got, ok := c.ParseNumber(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.InDelta(t, tt.want, got, 1e-12, tt.in)
		}
	}
}

func TestParseNumberLenient(t *testing.T) {
	cfg := DefaultCoercionConfig()
	cfg.Lenient = true
	c := NewTypeCoercer(cfg)

	tests := []struct {
		in   string
		want float64
	}{
		{"$1,234.50", 1234.5},
		{"(42)", -42},
		{"15%", 15},
		{"1.234,56", 1234.56},
		{"3,5", 3.5},
		{"1,000", 1000},
		{"€ 12", 12},
	}

	for _, tt := range tests {
		got, ok := c.ParseNumber(tt.in)
		assert.True(t, ok, tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, tt.in)
	}
}

func TestCoerceCell(t *testing.T) {
	c := NewTypeCoercer(DefaultCoercionConfig())

	assert.Equal(t, dataset.Missing(), c.CoerceCell(""))
	assert.Equal(t, dataset.Missing(), c.CoerceCell("NA"))
	assert.Equal(t, dataset.Missing(), c.CoerceCell(" #N/A "))
	assert.Equal(t, dataset.Number(7), c.CoerceCell("7"))
	assert.Equal(t, dataset.Text("female"), c.CoerceCell(" female "))
}

func TestToNumeric(t *testing.T) {
	c := NewTypeCoercer(DefaultCoercionConfig())

	v, ok := c.ToNumeric(dataset.Number(3))
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)

	v, ok = c.ToNumeric(dataset.Text("4.5"))
	assert.True(t, ok)
	assert.Equal(t, 4.5, v)

	_, ok = c.ToNumeric(dataset.Text("abc"))
	assert.False(t, ok)

	_, ok = c.ToNumeric(dataset.Missing())
	assert.False(t, ok)
}

func TestAnalyzeColumn(t *testing.T) {
	c := NewTypeCoercer(DefaultCoercionConfig())

	numeric := c.AnalyzeColumn([]dataset.Cell{dataset.Number(1), dataset.Missing(), dataset.Number(2)})
	assert.Equal(t, ColumnNumeric, numeric.RecommendedType)
	assert.Equal(t, 2, numeric.ValidCount)
	assert.Equal(t, 1.0, numeric.NumericRatio)

	categorical := c.AnalyzeColumn([]dataset.Cell{dataset.Text("a"), dataset.Text("b"), dataset.Number(1)})
	assert.Equal(t, ColumnCategorical, categorical.RecommendedType)

	empty := c.AnalyzeColumn([]dataset.Cell{dataset.Missing()})
	assert.Equal(t, ColumnEmpty, empty.RecommendedType)
}
