package profiling

// NumericSummary holds descriptive statistics of a numeric column.
// Std is the sample standard deviation; quartiles use linear interpolation.
type NumericSummary struct {
	Column   string  `json:"column"`
	Count    int     `json:"count"`
	Missing  int     `json:"missing"`
	Mean     float64 `json:"mean"`
	Std      float64 `json:"std"`
	Min      float64 `json:"min"`
	Q25      float64 `json:"q25"`
	Median   float64 `json:"median"`
	Q75      float64 `json:"q75"`
	Max      float64 `json:"max"`
	Skewness float64 `json:"skewness"`
	Outliers int     `json:"outliers"` // values beyond 1.5 IQR of the quartiles
}

// CategoricalSummary describes a text or mixed column
type CategoricalSummary struct {
	Column  string `json:"column"`
	Count   int    `json:"count"`
	Missing int    `json:"missing"`
	Unique  int    `json:"unique"`
	Top     string `json:"top"`
	Freq    int    `json:"freq"`
}

// Summary is the descriptive profile of a whole table
type Summary struct {
	Table       string               `json:"table"`
	Rows        int                  `json:"rows"`
	Columns     int                  `json:"columns"`
	Numeric     []NumericSummary     `json:"numeric"`
	Categorical []CategoricalSummary `json:"categorical"`
}

// CorrelationMatrix is a square Pearson matrix over numeric columns.
// Undefined entries are NaN.
type CorrelationMatrix struct {
	Columns []string    `json:"columns"`
	Values  [][]float64 `json:"values"`
}

// At returns the correlation between two named columns
func (m *CorrelationMatrix) At(a, b string) (float64, bool) {
	i, j := -1, -1
	for k, c := range m.Columns {
		if c == a {
			i = k
		}
		if c == b {
			j = k
		}
	}
	if i < 0 || j < 0 {
		return 0, false
	}
	return m.Values[i][j], true
}

// ValueCount is the frequency of one distinct value
type ValueCount struct {
	Value   string  `json:"value"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}
