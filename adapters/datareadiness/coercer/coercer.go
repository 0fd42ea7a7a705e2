package coercer

import (
	"math"
	"strconv"
	"strings"

	"gosurv/domain/dataset"
)

// DefaultNAValues are the spellings read as missing, matching the usual
// spreadsheet/dataframe conventions.
var DefaultNAValues = []string{
	"", "#N/A", "#N/A N/A", "#NA", "-1.#IND", "-1.#QNAN", "-NaN", "-nan",
	"1.#IND", "1.#QNAN", "<NA>", "N/A", "NA", "NULL", "NaN", "None",
	"n/a", "nan", "null",
}

// TypeCoercer handles deterministic conversion of raw spreadsheet text
type TypeCoercer struct {
	config CoercionConfig
	na     map[string]bool
}

// CoercionConfig defines the coercion rules
type CoercionConfig struct {
	// Lenient also accepts currency symbols, percent signs, thousands
	// separators, European decimals and (123) negatives.
	Lenient          bool     `json:"lenient"`
	NAValues         []string `json:"na_values"`
	NumericThreshold float64  `json:"numeric_threshold"` // share of present values that must parse for a numeric column
	MaxCategories    int      `json:"max_categories"`
}

// DefaultCoercionConfig returns strict numeric parsing with the default NA spellings
func DefaultCoercionConfig() CoercionConfig {
	return CoercionConfig{
		Lenient:          false,
		NAValues:         DefaultNAValues,
		NumericThreshold: 1.0,
		MaxCategories:    20,
	}
}

// NewTypeCoercer creates a coercer with the given config
func NewTypeCoercer(config CoercionConfig) *TypeCoercer {
	na := make(map[string]bool, len(config.NAValues))
	for _, v := range config.NAValues {
		na[v] = true
	}
	return &TypeCoercer{config: config, na: na}
}

// Config returns the coercer configuration
func (c *TypeCoercer) Config() CoercionConfig {
	return c.config
}

// IsNA reports whether raw is one of the missing-value spellings
func (c *TypeCoercer) IsNA(raw string) bool {
	return c.na[strings.TrimSpace(raw)]
}

// CoerceCell converts raw spreadsheet text into a Missing, Number or Text cell
func (c *TypeCoercer) CoerceCell(raw string) dataset.Cell {
	if c.IsNA(raw) {
		return dataset.Missing()
	}
	if v, ok := c.ParseNumber(raw); ok {
		return dataset.Number(v)
	}
	return dataset.Text(strings.TrimSpace(raw))
}

// ToNumeric coerces a cell to a finite float. Text that does not parse and
// missing cells report false; nothing here returns an error.
func (c *TypeCoercer) ToNumeric(cell dataset.Cell) (float64, bool) {
	switch cell.Kind {
	case dataset.CellNumber:
		if math.IsNaN(cell.Num) || math.IsInf(cell.Num, 0) {
			return 0, false
		}
		return cell.Num, true
	case dataset.CellText:
		if c.IsNA(cell.Text) {
			return 0, false
		}
		return c.ParseNumber(cell.Text)
	default:
		return 0, false
	}
}

// ParseNumber parses a finite number. Infinities and NaN are rejected.
func (c *TypeCoercer) ParseNumber(raw string) (float64, bool) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return 0, false
	}
	if c.config.Lenient {
		clean = normalizeLenient(clean)
	}

	val, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, false
	}
	if math.IsInf(val, 0) || math.IsNaN(val) {
		return 0, false
	}
	return val, true
}

// normalizeLenient handles international formats: parentheses for negatives,
// European decimals, currency symbols and percent signs
func normalizeLenient(cleanVal string) string {
	isNegative := false
	if strings.HasPrefix(cleanVal, "(") && strings.HasSuffix(cleanVal, ")") {
		cleanVal = strings.TrimSuffix(strings.TrimPrefix(cleanVal, "("), ")")
		isNegative = true
	}

	for _, symbol := range []string{"$", "€", "£", "¥", "USD", "EUR", "GBP", "JPY"} {
		cleanVal = strings.ReplaceAll(cleanVal, symbol, "")
	}
	cleanVal = strings.TrimSpace(strings.ReplaceAll(cleanVal, "%", ""))

	hasComma := strings.Contains(cleanVal, ",")
	hasPeriod := strings.Contains(cleanVal, ".")
	hasSpace := strings.Contains(cleanVal, " ")

	switch {
	case hasComma && (hasPeriod || hasSpace):
		commaIdx := strings.LastIndex(cleanVal, ",")
		afterComma := cleanVal[commaIdx+1:]
		if len(afterComma) <= 2 && isDigits(afterComma) {
			// 1.234,56 or 1 234,56
			cleanVal = strings.ReplaceAll(cleanVal, ".", "")
			cleanVal = strings.ReplaceAll(cleanVal, " ", "")
			cleanVal = strings.ReplaceAll(cleanVal, ",", ".")
		} else {
			cleanVal = strings.ReplaceAll(cleanVal, ",", "")
		}
	case hasComma && strings.Count(cleanVal, ",") == 1 && len(cleanVal)-strings.Index(cleanVal, ",")-1 != 3:
		// 3,5 is a decimal comma; 1,000 is a thousands separator
		cleanVal = strings.ReplaceAll(cleanVal, ",", ".")
	default:
		cleanVal = strings.ReplaceAll(cleanVal, ",", "")
		cleanVal = strings.ReplaceAll(cleanVal, " ", "")
	}

	if isNegative {
		cleanVal = "-" + cleanVal
	}
	return cleanVal
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ColumnType is the inferred display type of a column
type ColumnType string

const (
	ColumnNumeric     ColumnType = "numeric"
	ColumnCategorical ColumnType = "categorical"
	ColumnText        ColumnType = "text"
	ColumnEmpty       ColumnType = "empty"
)

// TypeAnalysis contains the results of type distribution analysis for one column
type TypeAnalysis struct {
	TotalCount      int        `json:"total_count"`
	ValidCount      int        `json:"valid_count"`
	NumericCount    int        `json:"numeric_count"`
	UniqueCount     int        `json:"unique_count"`
	NumericRatio    float64    `json:"numeric_ratio"`
	RecommendedType ColumnType `json:"recommended_type"`
}

// AnalyzeColumn counts how many present cells are numeric and recommends a type.
// Low-cardinality text is categorical; numeric wins when the numeric share reaches the threshold.
func (c *TypeCoercer) AnalyzeColumn(cells []dataset.Cell) TypeAnalysis {
	analysis := TypeAnalysis{TotalCount: len(cells)}
	unique := make(map[string]bool)

	for _, cell := range cells {
		if cell.IsMissing() {
			continue
		}
		analysis.ValidCount++
		unique[cell.String()] = true
		if _, ok := c.ToNumeric(cell); ok {
			analysis.NumericCount++
		}
	}
	analysis.UniqueCount = len(unique)

	if analysis.ValidCount == 0 {
		analysis.RecommendedType = ColumnEmpty
		return analysis
	}

	analysis.NumericRatio = float64(analysis.NumericCount) / float64(analysis.ValidCount)
	switch {
	case analysis.NumericRatio >= c.config.NumericThreshold:
		analysis.RecommendedType = ColumnNumeric
	case analysis.UniqueCount <= c.config.MaxCategories:
		analysis.RecommendedType = ColumnCategorical
	default:
		analysis.RecommendedType = ColumnText
	}
	return analysis
}
