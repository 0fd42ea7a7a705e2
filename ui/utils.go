package ui

import (
	"fmt"
	"html/template"
	"math"
	"strings"

	"gosurv/internal/report"
)

// templateFuncs are the helpers available to every page
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"num":     formatNumber,
		"pvalue":  formatPValue,
		"percent": func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
		"median": func(v float64) string {
			if math.IsInf(v, 1) {
				return "not reached"
			}
			return formatNumber(v)
		},
		"join": strings.Join,
		"contains": func(list []string, s string) bool {
			for _, v := range list {
				if v == s {
					return true
				}
			}
			return false
		},
		"add":        func(a, b int) int { return a + b },
		"confidence": report.ConfidenceLabel,
	}
}

// formatNumber prints up to four significant digits; undefined values are blank
func formatNumber(v float64) string {
	switch {
	case math.IsNaN(v):
		return ""
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case v == math.Trunc(v) && math.Abs(v) < 1e9:
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.4g", v)
}

func formatPValue(p float64) string {
	switch {
	case math.IsNaN(p):
		return ""
	case p < 0.005:
		return "<0.005"
	}
	return fmt.Sprintf("%.3f", p)
}
