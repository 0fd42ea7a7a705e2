package survival

import (
	"math"
	"sort"

	"gosurv/domain/core"
	"gosurv/domain/dataset"
	"gosurv/internal/errors"

	"gonum.org/v1/gonum/stat/distuv"
)

// PHTestRow is the proportional-hazards check of one predictor
type PHTestRow struct {
	Name      string  `json:"name"`
	Statistic float64 `json:"test_statistic"`
	P         float64 `json:"p"`
	NegLog2P  float64 `json:"neg_log2_p"`
}

// PHTest reports a scaled Schoenfeld residual test per predictor
type PHTest struct {
	TimeTransform    string      `json:"time_transform"`
	DegreesOfFreedom int         `json:"degrees_of_freedom"`
	Deaths           int         `json:"deaths"`
	Rows             []PHTestRow `json:"rows"`
}

// Violations returns the predictors whose p-value is below alpha
func (t *PHTest) Violations(alpha float64) []string {
	var out []string
	for _, r := range t.Rows {
		if r.P < alpha {
			out = append(out, r.Name)
		}
	}
	return out
}

// CheckProportionalHazards correlates the scaled Schoenfeld residuals of the
// fitted model with the rank of the event times. Each predictor gets a
// one-degree-of-freedom chi-square statistic; a small p-value means its
// hazard ratio drifts over time.
func CheckProportionalHazards(model *CoxModel, frame *dataset.Frame) (*PHTest, error) {
	p := len(model.Predictors)
	if p != len(frame.Predictors) {
		return nil, errors.InternalError("model and frame predictors differ")
	}

	resid, eventTimes := schoenfeld(model, frame)
	deaths := len(eventTimes)
	if deaths < 2 {
		return nil, fitError(errors.CodeInsufficientData, core.ErrInsufficientData,
			"the proportional-hazards test needs at least two events")
	}

	ranks := averageRanks(eventTimes)
	meanRank := 0.0
	for _, r := range ranks {
		meanRank += r
	}
	meanRank /= float64(deaths)

	sumSq := 0.0
	dt := make([]float64, deaths)
	for i, r := range ranks {
		dt[i] = r - meanRank
		sumSq += dt[i] * dt[i]
	}
	if sumSq == 0 {
		return nil, fitError(errors.CodeInsufficientData, core.ErrInsufficientData,
			"all events happen at the same time, the proportional-hazards test is undefined")
	}

	// scaled residual = deaths * residual . variance
	scaled := make([][]float64, deaths)
	for i, r := range resid {
		row := make([]float64, p)
		for j := 0; j < p; j++ {
			s := 0.0
			for k := 0; k < p; k++ {
				s += r[k] * model.Variance[k][j]
			}
			row[j] = float64(deaths) * s
		}
		scaled[i] = row
	}

	chi := distuv.ChiSquared{K: 1}
	test := &PHTest{
		TimeTransform:    "rank",
		DegreesOfFreedom: 1,
		Deaths:           deaths,
		Rows:             make([]PHTestRow, p),
	}
	for j, name := range model.Predictors {
		cross := 0.0
		for i := range scaled {
			cross += dt[i] * scaled[i][j]
		}
		se := model.Coefficients[j].SE
		stat := cross * cross / (float64(deaths) * se * se * sumSq)
		pValue := chi.Survival(stat)
		test.Rows[j] = PHTestRow{
			Name:      name,
			Statistic: stat,
			P:         pValue,
			NegLog2P:  -math.Log2(pValue),
		}
	}
	return test, nil
}

// schoenfeld returns the Efron-weighted Schoenfeld residual of each event row
// in ascending duration order, with the matching event times.
func schoenfeld(model *CoxModel, frame *dataset.Frame) ([][]float64, []float64) {
	n, p := frame.Len(), len(model.Predictors)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return frame.Durations[order[a]] < frame.Durations[order[b]]
	})

	x := make([][]float64, n)
	phi := make([]float64, n)
	for k, i := range order {
		row := make([]float64, p)
		lp := 0.0
		for j := range row {
			row[j] = frame.Covariates[i][j] - model.Means[j]
			lp += model.Coefficients[j].Coef * row[j]
		}
		x[k] = row
		phi[k] = math.Exp(lp)
	}

	var resid [][]float64
	var times []float64

	riskPhi := 0.0
	riskPhiX := make([]float64, p)
	tiePhiX := make([]float64, p)
	for k := n - 1; k >= 0; {
		t := frame.Durations[order[k]]
		tiePhi := 0.0
		for j := range tiePhiX {
			tiePhiX[j] = 0
		}
		var deathRows []int

		for ; k >= 0 && frame.Durations[order[k]] == t; k-- {
			riskPhi += phi[k]
			for j := 0; j < p; j++ {
				riskPhiX[j] += phi[k] * x[k][j]
			}
			if frame.Events[order[k]] != 0 {
				tiePhi += phi[k]
				for j := 0; j < p; j++ {
					tiePhiX[j] += phi[k] * x[k][j]
				}
				deathRows = append(deathRows, k)
			}
		}
		d := len(deathRows)
		if d == 0 {
			continue
		}

		weighted := make([]float64, p)
		for l := 0; l < d; l++ {
			c := float64(l) / float64(d)
			denom := riskPhi - c*tiePhi
			for j := 0; j < p; j++ {
				weighted[j] += (riskPhiX[j] - c*tiePhiX[j]) / (denom * float64(d))
			}
		}

		for _, row := range deathRows {
			r := make([]float64, p)
			for j := 0; j < p; j++ {
				r[j] = x[row][j] - weighted[j]
			}
			resid = append(resid, r)
			times = append(times, t)
		}
	}

	// groups were visited from the latest time backwards
	for a, b := 0, len(resid)-1; a < b; a, b = a+1, b-1 {
		resid[a], resid[b] = resid[b], resid[a]
		times[a], times[b] = times[b], times[a]
	}
	return resid, times
}

// averageRanks returns 1-based ranks with ties sharing their mean rank
func averageRanks(values []float64) []float64 {
	n := len(values)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}
