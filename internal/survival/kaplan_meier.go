package survival

import (
	"math"

	"gosurv/domain/core"
	"gosurv/internal/errors"

	"gonum.org/v1/gonum/stat/distuv"
)

// EventTableRow summarises one distinct time of the Kaplan-Meier event table
type EventTableRow struct {
	Time     float64 `json:"time"`
	Removed  int     `json:"removed"`
	Observed int     `json:"observed"`
	Censored int     `json:"censored"`
	Entrance int     `json:"entrance"`
	AtRisk   int     `json:"at_risk"`
}

// SurvivalPoint is one step of the survival function with its confidence band
type SurvivalPoint struct {
	Time     float64 `json:"time"`
	Survival float64 `json:"survival"`
	Lower    float64 `json:"lower"`
	Upper    float64 `json:"upper"`
}

// KaplanMeier is a fitted product-limit estimate
type KaplanMeier struct {
	Points       []SurvivalPoint `json:"points"`
	EventTable   []EventTableRow `json:"event_table"`
	Median       float64         `json:"median"` // +Inf when survival never reaches 0.5
	Alpha        float64         `json:"alpha"`
	Observations int             `json:"observations"`
	Events       int             `json:"events"`
}

// FitKaplanMeier estimates the survival function of durations with the given
// event indicators. Durations must be sorted ascending. The first point sits
// at min(0, first duration) with survival 1; each later point is the value
// just after a distinct duration.
//
// The confidence band uses Greenwood's variance on the log(-log) scale.
func FitKaplanMeier(durations, events []float64, alpha float64) (*KaplanMeier, error) {
	n := len(durations)
	if n == 0 {
		return nil, &errors.AppError{
			Code:    errors.CodeInsufficientData,
			Message: "Kaplan-Meier needs at least one row",
			Cause:   core.ErrInsufficientData,
		}
	}
	if len(events) != n {
		return nil, errors.InternalError("durations and events differ in length")
	}
	if alpha <= 0 || alpha >= 1 {
		alpha = DefaultAlpha
	}
	z := distuv.UnitNormal.Quantile(1 - alpha/2)

	km := &KaplanMeier{
		Alpha:        alpha,
		Observations: n,
	}

	start := math.Min(0, durations[0])
	km.Points = append(km.Points, SurvivalPoint{Time: start, Survival: 1, Lower: 1, Upper: 1})
	if durations[0] > start {
		km.EventTable = append(km.EventTable, EventTableRow{Time: start, Entrance: n, AtRisk: n})
	}

	atRisk := n
	survival := 1.0
	greenwood := 0.0
	for i := 0; i < n; {
		t := durations[i]
		removed, observed := 0, 0
		for i < n && durations[i] == t {
			removed++
			if events[i] != 0 {
				observed++
			}
			i++
		}

		row := EventTableRow{
			Time:     t,
			Removed:  removed,
			Observed: observed,
			Censored: removed - observed,
			AtRisk:   atRisk,
		}
		if len(km.EventTable) == 0 {
			row.Entrance = n
		}
		km.EventTable = append(km.EventTable, row)
		km.Events += observed

		if observed > 0 {
			survival *= 1 - float64(observed)/float64(atRisk)
			if atRisk > observed {
				greenwood += float64(observed) / (float64(atRisk) * float64(atRisk-observed))
			} else {
				greenwood = math.Inf(1)
			}
		}
		lower, upper := logLogBand(survival, greenwood, z)
		km.Points = append(km.Points, SurvivalPoint{Time: t, Survival: survival, Lower: lower, Upper: upper})
		atRisk -= removed
	}

	km.Median = math.Inf(1)
	for _, p := range km.Points {
		if p.Survival <= 0.5 {
			km.Median = p.Time
			break
		}
	}

	return km, nil
}

// logLogBand returns the exponential Greenwood interval for survival s
func logLogBand(s, greenwood, z float64) (float64, float64) {
	if s >= 1 {
		return 1, 1
	}
	if s <= 0 || math.IsInf(greenwood, 1) {
		return 0, 0
	}
	v := math.Log(s)
	spread := z * math.Sqrt(greenwood) / v
	a := math.Exp(-math.Exp(math.Log(-v) + spread))
	b := math.Exp(-math.Exp(math.Log(-v) - spread))
	return math.Min(a, b), math.Max(a, b)
}

// At returns the estimated survival probability at time t
func (km *KaplanMeier) At(t float64) float64 {
	s := 1.0
	for _, p := range km.Points {
		if p.Time > t {
			break
		}
		s = p.Survival
	}
	return s
}

// MaxTime returns the last observed duration
func (km *KaplanMeier) MaxTime() float64 {
	return km.Points[len(km.Points)-1].Time
}
