package survival

import (
	"fmt"
	"math"
	"sort"

	"gosurv/domain/core"
	"gosurv/domain/dataset"
	"gosurv/internal/errors"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// maxCondition bounds the condition number of the standardized information matrix
	maxCondition = 1e12
	// maxStandardizedCoef flags runaway coefficients (complete separation)
	maxStandardizedCoef = 25.0
	maxStepHalvings     = 20
	llTolerance         = 1e-12
)

// CoxCoefficient is the summary row of one predictor
type CoxCoefficient struct {
	Name        string  `json:"name"`
	Coef        float64 `json:"coef"`
	HazardRatio float64 `json:"exp_coef"`
	SE          float64 `json:"se_coef"`
	CoefLower   float64 `json:"coef_lower"`
	CoefUpper   float64 `json:"coef_upper"`
	HRLower     float64 `json:"exp_coef_lower"`
	HRUpper     float64 `json:"exp_coef_upper"`
	Z           float64 `json:"z"`
	P           float64 `json:"p"`
	NegLog2P    float64 `json:"neg_log2_p"`
}

// CoxModel is a fitted proportional-hazards regression
type CoxModel struct {
	Predictors   []string         `json:"predictors"`
	Coefficients []CoxCoefficient `json:"coefficients"`
	Variance     [][]float64      `json:"variance"`
	Means        []float64        `json:"means"`

	LogLikelihood      float64 `json:"log_likelihood"`
	NullLogLikelihood  float64 `json:"null_log_likelihood"`
	LRStatistic        float64 `json:"lr_statistic"`
	LRDegreesOfFreedom int     `json:"lr_df"`
	LRPValue           float64 `json:"lr_p"`
	Concordance        float64 `json:"concordance"`
	PartialAIC         float64 `json:"partial_aic"`

	Iterations   int     `json:"iterations"`
	Converged    bool    `json:"converged"`
	Observations int     `json:"observations"`
	Events       int     `json:"events"`
	Alpha        float64 `json:"alpha"`
	TieMethod    string  `json:"tie_method"`
}

// Coefficient returns the summary row of a predictor
func (m *CoxModel) Coefficient(name string) (CoxCoefficient, bool) {
	for _, c := range m.Coefficients {
		if c.Name == name {
			return c, true
		}
	}
	return CoxCoefficient{}, false
}

// coxData holds event-time ordered rows; x is standardized
type coxData struct {
	n, p   int
	times  []float64
	events []bool
	x      [][]float64
}

// efron returns the Efron partial log-likelihood, its gradient and its
// Hessian (row-major p*p) at beta.
func (d *coxData) efron(beta []float64) (float64, []float64, []float64) {
	p := d.p
	ll := 0.0
	grad := make([]float64, p)
	hess := make([]float64, p*p)

	riskPhi := 0.0
	riskPhiX := make([]float64, p)
	riskPhiXX := make([]float64, p*p)
	tiePhiX := make([]float64, p)
	tiePhiXX := make([]float64, p*p)
	xDeath := make([]float64, p)
	num := make([]float64, p)

	for i := d.n - 1; i >= 0; {
		t := d.times[i]
		tiePhi := 0.0
		deaths := 0
		for a := range tiePhiX {
			tiePhiX[a] = 0
			xDeath[a] = 0
		}
		for a := range tiePhiXX {
			tiePhiXX[a] = 0
		}

		for ; i >= 0 && d.times[i] == t; i-- {
			xi := d.x[i]
			phi := math.Exp(floats.Dot(xi, beta))
			riskPhi += phi
			for a := 0; a < p; a++ {
				riskPhiX[a] += phi * xi[a]
				for b := 0; b < p; b++ {
					riskPhiXX[a*p+b] += phi * xi[a] * xi[b]
				}
			}
			if !d.events[i] {
				continue
			}
			deaths++
			tiePhi += phi
			for a := 0; a < p; a++ {
				tiePhiX[a] += phi * xi[a]
				xDeath[a] += xi[a]
				for b := 0; b < p; b++ {
					tiePhiXX[a*p+b] += phi * xi[a] * xi[b]
				}
			}
		}
		if deaths == 0 {
			continue
		}

		ll += floats.Dot(xDeath, beta)
		floats.Add(grad, xDeath)
		for l := 0; l < deaths; l++ {
			c := float64(l) / float64(deaths)
			denom := riskPhi - c*tiePhi
			ll -= math.Log(denom)
			for a := 0; a < p; a++ {
				num[a] = riskPhiX[a] - c*tiePhiX[a]
				grad[a] -= num[a] / denom
			}
			for a := 0; a < p; a++ {
				for b := 0; b < p; b++ {
					second := riskPhiXX[a*p+b] - c*tiePhiXX[a*p+b]
					hess[a*p+b] -= second/denom - num[a]*num[b]/(denom*denom)
				}
			}
		}
	}
	return ll, grad, hess
}

// information factorizes the negated Hessian
func information(hess []float64, p int) (*mat.Cholesky, error) {
	negH := mat.NewSymDense(p, nil)
	for a := 0; a < p; a++ {
		for b := a; b < p; b++ {
			negH.SetSym(a, b, -(hess[a*p+b]+hess[b*p+a])/2)
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(negH); !ok {
		return nil, fitError(errors.CodeSingularMatrix, core.ErrSingularMatrix,
			"the predictors are collinear or carry no information about the hazard")
	}
	if cond := chol.Cond(); cond > maxCondition || math.IsNaN(cond) {
		return nil, fitError(errors.CodeSingularMatrix, core.ErrSingularMatrix,
			"the predictors are nearly collinear (condition number %.3g)", cond)
	}
	return &chol, nil
}

// FitCox fits a Cox proportional-hazards model by Newton-Raphson with step
// halving. Covariates are standardized for the iterations and the estimates
// are scaled back afterwards. Ties use Efron's approximation.
func FitCox(frame *dataset.Frame, config FitConfig) (*CoxModel, error) {
	n, p := frame.Len(), len(frame.Predictors)
	if p == 0 {
		return nil, errors.InvalidSelection("the Cox model needs at least one predictor", core.ErrInvalidSelection)
	}
	if frame.EventCount() == 0 {
		return nil, fitError(errors.CodeNoEvents, core.ErrNoEvents, "no events were observed, the hazard cannot be estimated")
	}
	if n < p+2 {
		return nil, fitError(errors.CodeInsufficientData, core.ErrInsufficientData,
			"%d rows cannot identify a model with %d predictor(s); at least %d are needed", n, p, p+2)
	}
	config = config.withDefaults()

	data, means, stds, err := newCoxData(frame)
	if err != nil {
		return nil, err
	}

	beta := make([]float64, p)
	ll, grad, hess := data.efron(beta)
	nullLL := ll

	converged := false
	iterations := 0
	for iterations < config.MaxIterations {
		iterations++

		chol, err := information(hess, p)
		if err != nil {
			return nil, err
		}
		var delta mat.VecDense
		if err := chol.SolveVecTo(&delta, mat.NewVecDense(p, grad)); err != nil {
			return nil, fitError(errors.CodeSingularMatrix, core.ErrSingularMatrix, "information matrix could not be inverted")
		}

		step := 1.0
		next := make([]float64, p)
		var nextLL float64
		var nextGrad, nextHess []float64
		for halving := 0; ; halving++ {
			for j := range next {
				next[j] = beta[j] + step*delta.AtVec(j)
			}
			nextLL, nextGrad, nextHess = data.efron(next)
			if !math.IsNaN(nextLL) && !math.IsInf(nextLL, 0) && nextLL >= ll-1e-9*math.Max(1, math.Abs(ll)) {
				break
			}
			if halving == maxStepHalvings {
				return nil, fitError(errors.CodeConvergenceFailure, core.ErrNoConvergence,
					"Newton-Raphson could not improve the likelihood after %d iterations", iterations)
			}
			step /= 2
		}

		maxDelta := 0.0
		for j := range next {
			maxDelta = math.Max(maxDelta, math.Abs(next[j]-beta[j]))
		}
		change := math.Abs(nextLL - ll)
		copy(beta, next)
		ll, grad, hess = nextLL, nextGrad, nextHess

		for j, b := range beta {
			if math.Abs(b) > maxStandardizedCoef {
				return nil, fitError(errors.CodeConvergenceFailure, core.ErrNoConvergence,
					"coefficient of %q diverged; the predictor may perfectly separate events", frame.Predictors[j])
			}
		}
		if maxDelta < config.Tolerance || (iterations > 1 && change < llTolerance) {
			converged = true
			break
		}
	}
	if !converged {
		return nil, fitError(errors.CodeConvergenceFailure, core.ErrNoConvergence,
			"Newton-Raphson did not converge in %d iterations", config.MaxIterations)
	}

	chol, err := information(hess, p)
	if err != nil {
		return nil, err
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, fitError(errors.CodeSingularMatrix, core.ErrSingularMatrix, "information matrix could not be inverted")
	}

	model := &CoxModel{
		Predictors:         append([]string(nil), frame.Predictors...),
		Means:              means,
		Variance:           make([][]float64, p),
		LogLikelihood:      ll,
		NullLogLikelihood:  nullLL,
		LRDegreesOfFreedom: p,
		Iterations:         iterations,
		Converged:          converged,
		Observations:       n,
		Events:             frame.EventCount(),
		Alpha:              config.Alpha,
		TieMethod:          "efron",
	}
	for a := 0; a < p; a++ {
		model.Variance[a] = make([]float64, p)
		for b := 0; b < p; b++ {
			model.Variance[a][b] = inv.At(a, b) / (stds[a] * stds[b])
		}
	}

	zCrit := distuv.UnitNormal.Quantile(1 - config.Alpha/2)
	for j, name := range frame.Predictors {
		coef := beta[j] / stds[j]
		se := math.Sqrt(model.Variance[j][j])
		z := coef / se
		pValue := 2 * distuv.UnitNormal.Survival(math.Abs(z))
		lo, hi := coef-zCrit*se, coef+zCrit*se
		model.Coefficients = append(model.Coefficients, CoxCoefficient{
			Name:        name,
			Coef:        coef,
			HazardRatio: math.Exp(coef),
			SE:          se,
			CoefLower:   lo,
			CoefUpper:   hi,
			HRLower:     math.Exp(lo),
			HRUpper:     math.Exp(hi),
			Z:           z,
			P:           pValue,
			NegLog2P:    -math.Log2(pValue),
		})
	}

	model.LRStatistic = math.Max(0, 2*(ll-nullLL))
	model.LRPValue = distuv.ChiSquared{K: float64(p)}.Survival(model.LRStatistic)
	model.PartialAIC = -2*ll + 2*float64(p)
	model.Concordance = concordance(data, beta)

	return model, nil
}

// newCoxData orders the frame by duration and standardizes its covariates
func newCoxData(frame *dataset.Frame) (*coxData, []float64, []float64, error) {
	n, p := frame.Len(), len(frame.Predictors)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return frame.Durations[order[a]] < frame.Durations[order[b]]
	})

	means := make([]float64, p)
	stds := make([]float64, p)
	for j, name := range frame.Predictors {
		col := frame.Column(name)
		if floats.Min(col) == floats.Max(col) {
			return nil, nil, nil, fitError(errors.CodeZeroVariance, core.NewZeroVarianceError(name),
				"predictor %q has the same value in every row", name)
		}
		means[j], stds[j] = stat.MeanStdDev(col, nil)
	}

	data := &coxData{
		n:      n,
		p:      p,
		times:  make([]float64, n),
		events: make([]bool, n),
		x:      make([][]float64, n),
	}
	for k, i := range order {
		data.times[k] = frame.Durations[i]
		data.events[k] = frame.Events[i] != 0
		row := make([]float64, p)
		for j := range row {
			row[j] = (frame.Covariates[i][j] - means[j]) / stds[j]
		}
		data.x[k] = row
	}
	return data, means, stds, nil
}

// concordance is Harrell's C for the fitted risk scores. A pair is comparable
// when the shorter duration ended in an event, or when durations tie and only
// the first row had the event. Tied risk scores count one half.
func concordance(d *coxData, beta []float64) float64 {
	risk := make([]float64, d.n)
	for i, row := range d.x {
		risk[i] = floats.Dot(row, beta)
	}

	var concordant, comparable float64
	for i := 0; i < d.n; i++ {
		if !d.events[i] {
			continue
		}
		for j := 0; j < d.n; j++ {
			if i == j {
				continue
			}
			if !(d.times[i] < d.times[j] || (d.times[i] == d.times[j] && !d.events[j])) {
				continue
			}
			comparable++
			switch {
			case risk[i] > risk[j]:
				concordant++
			case risk[i] == risk[j]:
				concordant += 0.5
			}
		}
	}
	if comparable == 0 {
		return math.NaN()
	}
	return concordant / comparable
}

// fitError builds a model-fit AppError wrapping a domain sentinel
func fitError(code string, cause error, format string, args ...interface{}) error {
	return &errors.AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}
