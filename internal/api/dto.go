package api

import (
	"math"
	"strconv"
	"time"

	"gosurv/adapters/datareadiness/coercer"
	"gosurv/domain/dataset"
	"gosurv/internal/profiling"
	"gosurv/internal/session"
	"gosurv/internal/survival"
)

// Float marshals as a JSON number, or null when the value is NaN or infinite
type Float float64

// MarshalJSON implements json.Marshaler
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

func floats(vs []float64) []Float {
	out := make([]Float, len(vs))
	for i, v := range vs {
		out[i] = Float(v)
	}
	return out
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ColumnInfo describes one column of the uploaded table
type ColumnInfo struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Numeric      bool    `json:"numeric"`
	NumericRatio float64 `json:"numeric_ratio"`
}

// SessionResponse describes a session and its table
type SessionResponse struct {
	ID         string       `json:"id"`
	FileName   string       `json:"file_name,omitempty"`
	UploadedAt *time.Time   `json:"uploaded_at,omitempty"`
	Rows       int          `json:"rows"`
	Columns    []ColumnInfo `json:"columns"`
}

func newSessionResponse(state session.State, c *coercer.TypeCoercer) SessionResponse {
	resp := SessionResponse{ID: state.ID.String(), FileName: state.FileName, Columns: []ColumnInfo{}}
	if !state.HasTable() {
		return resp
	}
	uploaded := state.UploadedAt
	resp.UploadedAt = &uploaded
	resp.Rows = state.Table.Len()
	for _, p := range profiling.ProfileColumns(state.Table, c) {
		resp.Columns = append(resp.Columns, ColumnInfo{
			Name:         p.Name,
			Type:         string(p.RecommendedType),
			Numeric:      p.Numeric(),
			NumericRatio: p.NumericRatio,
		})
	}
	return resp
}

// PreviewResponse is the first rows of the table, rendered as text
type PreviewResponse struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

func newPreviewResponse(t *dataset.Table) PreviewResponse {
	resp := PreviewResponse{Columns: t.Columns, Rows: make([][]string, len(t.Rows))}
	for i, row := range t.Rows {
		cells := make([]string, len(row))
		for j, c := range row {
			cells[j] = c.String()
		}
		resp.Rows[i] = cells
	}
	return resp
}

// NumericSummaryDTO mirrors profiling.NumericSummary
type NumericSummaryDTO struct {
	Column   string `json:"column"`
	Count    int    `json:"count"`
	Missing  int    `json:"missing"`
	Mean     Float  `json:"mean"`
	Std      Float  `json:"std"`
	Min      Float  `json:"min"`
	Q25      Float  `json:"q25"`
	Median   Float  `json:"median"`
	Q75      Float  `json:"q75"`
	Max      Float  `json:"max"`
	Skewness Float  `json:"skewness"`
	Outliers int    `json:"outliers"`
}

// SummaryResponse mirrors profiling.Summary
type SummaryResponse struct {
	Table       string                         `json:"table"`
	Rows        int                            `json:"rows"`
	Columns     int                            `json:"columns"`
	Numeric     []NumericSummaryDTO            `json:"numeric"`
	Categorical []profiling.CategoricalSummary `json:"categorical"`
}

func newSummaryResponse(s *profiling.Summary) SummaryResponse {
	resp := SummaryResponse{
		Table:       s.Table,
		Rows:        s.Rows,
		Columns:     s.Columns,
		Numeric:     make([]NumericSummaryDTO, len(s.Numeric)),
		Categorical: s.Categorical,
	}
	if resp.Categorical == nil {
		resp.Categorical = []profiling.CategoricalSummary{}
	}
	for i, n := range s.Numeric {
		resp.Numeric[i] = NumericSummaryDTO{
			Column: n.Column, Count: n.Count, Missing: n.Missing,
			Mean: Float(n.Mean), Std: Float(n.Std), Min: Float(n.Min),
			Q25: Float(n.Q25), Median: Float(n.Median), Q75: Float(n.Q75), Max: Float(n.Max),
			Skewness: Float(n.Skewness), Outliers: n.Outliers,
		}
	}
	return resp
}

// CorrelationResponse mirrors profiling.CorrelationMatrix
type CorrelationResponse struct {
	Columns []string  `json:"columns"`
	Values  [][]Float `json:"values"`
}

func newCorrelationResponse(m *profiling.CorrelationMatrix) CorrelationResponse {
	resp := CorrelationResponse{Columns: m.Columns, Values: make([][]Float, len(m.Values))}
	if resp.Columns == nil {
		resp.Columns = []string{}
	}
	for i, row := range m.Values {
		resp.Values[i] = floats(row)
	}
	return resp
}

// CoefficientDTO mirrors survival.CoxCoefficient
type CoefficientDTO struct {
	Name        string `json:"name"`
	Coef        Float  `json:"coef"`
	HazardRatio Float  `json:"exp_coef"`
	SE          Float  `json:"se_coef"`
	CoefLower   Float  `json:"coef_lower"`
	CoefUpper   Float  `json:"coef_upper"`
	HRLower     Float  `json:"exp_coef_lower"`
	HRUpper     Float  `json:"exp_coef_upper"`
	Z           Float  `json:"z"`
	P           Float  `json:"p"`
	NegLog2P    Float  `json:"neg_log2_p"`
}

// CoxDTO mirrors survival.CoxModel without the variance matrix
type CoxDTO struct {
	Coefficients       []CoefficientDTO `json:"coefficients"`
	LogLikelihood      Float            `json:"log_likelihood"`
	NullLogLikelihood  Float            `json:"null_log_likelihood"`
	LRStatistic        Float            `json:"lr_statistic"`
	LRDegreesOfFreedom int              `json:"lr_df"`
	LRPValue           Float            `json:"lr_p"`
	Concordance        Float            `json:"concordance"`
	PartialAIC         Float            `json:"partial_aic"`
	Iterations         int              `json:"iterations"`
	Converged          bool             `json:"converged"`
	Observations       int              `json:"observations"`
	Events             int              `json:"events"`
	TieMethod          string           `json:"tie_method"`
}

// PointDTO is one step of the survival curve
type PointDTO struct {
	Time     Float `json:"time"`
	Survival Float `json:"survival"`
	Lower    Float `json:"lower"`
	Upper    Float `json:"upper"`
}

// KaplanMeierDTO mirrors survival.KaplanMeier. Median is null when survival
// never drops to one half.
type KaplanMeierDTO struct {
	Points       []PointDTO               `json:"points"`
	EventTable   []survival.EventTableRow `json:"event_table"`
	Median       Float                    `json:"median"`
	Observations int                      `json:"observations"`
	Events       int                      `json:"events"`
}

// PHRowDTO mirrors survival.PHTestRow
type PHRowDTO struct {
	Name      string `json:"name"`
	Statistic Float  `json:"test_statistic"`
	P         Float  `json:"p"`
	NegLog2P  Float  `json:"neg_log2_p"`
}

// PHTestDTO mirrors survival.PHTest
type PHTestDTO struct {
	TimeTransform string     `json:"time_transform"`
	Deaths        int        `json:"deaths"`
	Rows          []PHRowDTO `json:"rows"`
	Violations    []string   `json:"violations"`
}

// OutcomeResponse is the result of a survival request
type OutcomeResponse struct {
	Status      survival.Status    `json:"status"`
	Message     string             `json:"message"`
	Code        string             `json:"code,omitempty"`
	Assignment  dataset.Assignment `json:"assignment"`
	RowsUsed    int                `json:"rows_used"`
	RowsDropped int                `json:"rows_dropped"`
	KaplanMeier *KaplanMeierDTO    `json:"kaplan_meier,omitempty"`
	Cox         *CoxDTO            `json:"cox,omitempty"`
	PHTest      *PHTestDTO         `json:"ph_test,omitempty"`
}

func newOutcomeResponse(o survival.Outcome) OutcomeResponse {
	resp := OutcomeResponse{
		Status:     o.Status,
		Message:    o.Message(),
		Code:       o.Code(),
		Assignment: o.Assignment,
	}
	if o.Frame != nil {
		resp.RowsUsed = o.Frame.Len()
		resp.RowsDropped = o.Frame.Dropped()
	}
	if o.Models == nil {
		return resp
	}

	km := o.Models.KaplanMeier
	resp.KaplanMeier = &KaplanMeierDTO{
		Points:       make([]PointDTO, len(km.Points)),
		EventTable:   km.EventTable,
		Median:       Float(km.Median),
		Observations: km.Observations,
		Events:       km.Events,
	}
	for i, p := range km.Points {
		resp.KaplanMeier.Points[i] = PointDTO{Time: Float(p.Time), Survival: Float(p.Survival), Lower: Float(p.Lower), Upper: Float(p.Upper)}
	}

	cox := o.Models.Cox
	resp.Cox = &CoxDTO{
		Coefficients:       make([]CoefficientDTO, len(cox.Coefficients)),
		LogLikelihood:      Float(cox.LogLikelihood),
		NullLogLikelihood:  Float(cox.NullLogLikelihood),
		LRStatistic:        Float(cox.LRStatistic),
		LRDegreesOfFreedom: cox.LRDegreesOfFreedom,
		LRPValue:           Float(cox.LRPValue),
		Concordance:        Float(cox.Concordance),
		PartialAIC:         Float(cox.PartialAIC),
		Iterations:         cox.Iterations,
		Converged:          cox.Converged,
		Observations:       cox.Observations,
		Events:             cox.Events,
		TieMethod:          cox.TieMethod,
	}
	for i, c := range cox.Coefficients {
		resp.Cox.Coefficients[i] = CoefficientDTO{
			Name: c.Name, Coef: Float(c.Coef), HazardRatio: Float(c.HazardRatio), SE: Float(c.SE),
			CoefLower: Float(c.CoefLower), CoefUpper: Float(c.CoefUpper),
			HRLower: Float(c.HRLower), HRUpper: Float(c.HRUpper),
			Z: Float(c.Z), P: Float(c.P), NegLog2P: Float(c.NegLog2P),
		}
	}

	ph := o.Models.PHTest
	resp.PHTest = &PHTestDTO{
		TimeTransform: ph.TimeTransform,
		Deaths:        ph.Deaths,
		Rows:          make([]PHRowDTO, len(ph.Rows)),
		Violations:    ph.Violations(cox.Alpha),
	}
	if resp.PHTest.Violations == nil {
		resp.PHTest.Violations = []string{}
	}
	for i, r := range ph.Rows {
		resp.PHTest.Rows[i] = PHRowDTO{Name: r.Name, Statistic: Float(r.Statistic), P: Float(r.P), NegLog2P: Float(r.NegLog2P)}
	}
	return resp
}
