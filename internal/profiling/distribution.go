package profiling

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
)

// DistributionAnalyzer computes the numeric summary of one column
type DistributionAnalyzer struct{}

// NewDistributionAnalyzer creates a new distribution analyzer
func NewDistributionAnalyzer() *DistributionAnalyzer {
	return &DistributionAnalyzer{}
}

// AnalyzeDistribution summarises the present values of a column
func (da *DistributionAnalyzer) AnalyzeDistribution(name string, data []float64, missing int) (NumericSummary, error) {
	summary := NumericSummary{Column: name, Count: len(data), Missing: missing}
	if len(data) == 0 {
		nan := math.NaN()
		summary.Mean, summary.Std, summary.Min, summary.Max = nan, nan, nan, nan
		summary.Q25, summary.Median, summary.Q75, summary.Skewness = nan, nan, nan, nan
		return summary, nil
	}

	mean, err := stats.Mean(data)
	if err != nil {
		return summary, err
	}

	min, err := stats.Min(data)
	if err != nil {
		return summary, err
	}

	max, err := stats.Max(data)
	if err != nil {
		return summary, err
	}

	median, err := stats.Median(data)
	if err != nil {
		return summary, err
	}

	// sample deviation, undefined for a single value
	stdDev := math.NaN()
	if len(data) > 1 {
		if stdDev, err = stats.StandardDeviationSample(data); err != nil {
			return summary, err
		}
	}

	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	q25 := quantile(sorted, 0.25)
	q75 := quantile(sorted, 0.75)

	summary.Mean = mean
	summary.Std = stdDev
	summary.Min = min
	summary.Max = max
	summary.Median = median
	summary.Q25 = q25
	summary.Q75 = q75
	summary.Skewness = calculateSkewness(data, mean, stdDev)
	summary.Outliers = detectOutliers(data, q25, q75)

	return summary, nil
}

// quantile interpolates between closest ranks at position (n-1)q of sorted data
func quantile(sorted []float64, q float64) float64 {
	h := float64(len(sorted)-1) * q
	lo := int(math.Floor(h))
	if lo+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}

// calculateSkewness computes sample skewness using the adjusted Fisher-Pearson coefficient
func calculateSkewness(data []float64, mean, stdDev float64) float64 {
	if len(data) < 3 || stdDev == 0 || math.IsNaN(stdDev) {
		return math.NaN()
	}

	n := float64(len(data))
	m2, m3 := 0.0, 0.0
	for _, x := range data {
		d := x - mean
		m2 += d * d
		m3 += d * d * d
	}
	m2 /= n
	m3 /= n
	if m2 == 0 {
		return math.NaN()
	}

	// Bias correction for sample skewness
	return m3 / math.Pow(m2, 1.5) * math.Sqrt(n*(n-1)) / (n - 2)
}

// detectOutliers counts values outside the 1.5 IQR fences
func detectOutliers(data []float64, q25, q75 float64) int {
	iqr := q75 - q25
	lowerBound := q25 - 1.5*iqr
	upperBound := q75 + 1.5*iqr

	outlierCount := 0
	for _, x := range data {
		if x < lowerBound || x > upperBound {
			outlierCount++
		}
	}

	return outlierCount
}
