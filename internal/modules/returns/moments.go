package returns

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/frontier/pkg/formulas"
)

// minVolatility is the smallest annualized volatility treated as non-zero.
const minVolatility = 1e-12

// Performance is the annualized (return, volatility, Sharpe ratio) triple of a
// weight vector.
type Performance struct {
	Return     float64 `json:"return" msgpack:"return"`
	Volatility float64 `json:"volatility" msgpack:"volatility"`
	Sharpe     float64 `json:"sharpe" msgpack:"sharpe"`
}

// Moments holds the annualized first and second moments of a return series.
// Mean[i] = mean(r_i) × 252 and Cov = Cov(r) × 252, so Cov's diagonal is each
// asset's annualized variance.
type Moments struct {
	Symbols      []string
	Mean         []float64
	Cov          *mat.SymDense
	Observations int
}

// NewMoments computes annualized mean returns and the annualized sample
// covariance matrix of a series.
func NewMoments(series *ReturnSeries) (*Moments, error) {
	if series == nil || series.Len() < 2 {
		rows := 0
		if series != nil {
			rows = series.Len()
		}
		return nil, InsufficientDataError{
			Reason: fmt.Sprintf("need at least 2 return rows for covariance, got %d", rows),
		}
	}

	n := series.Width()
	mean := make([]float64, n)
	for j := 0; j < n; j++ {
		mean[j] = formulas.Mean(series.Column(j)) * formulas.TradingDaysPerYear
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, series.data, nil)
	cov.ScaleSym(formulas.TradingDaysPerYear, &cov)

	return &Moments{
		Symbols:      append([]string(nil), series.Symbols...),
		Mean:         mean,
		Cov:          &cov,
		Observations: series.Len(),
	}, nil
}

// Dim returns the number of assets.
func (m *Moments) Dim() int {
	return len(m.Mean)
}

// Variance returns asset i's annualized variance.
func (m *Moments) Variance(i int) float64 {
	return m.Cov.At(i, i)
}

// Subset returns the moments restricted to the assets at idx, in that order.
func (m *Moments) Subset(idx []int) *Moments {
	symbols := make([]string, len(idx))
	mean := make([]float64, len(idx))
	for k, i := range idx {
		symbols[k] = m.Symbols[i]
		mean[k] = m.Mean[i]
	}
	var cov mat.SymDense
	cov.SubsetSym(m.Cov, idx)
	return &Moments{
		Symbols:      symbols,
		Mean:         mean,
		Cov:          &cov,
		Observations: m.Observations,
	}
}

// CovarianceRows returns the annualized covariance matrix as nested slices.
func (m *Moments) CovarianceRows() [][]float64 {
	n := m.Dim()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, n)
		for j := range rows[i] {
			rows[i][j] = m.Cov.At(i, j)
		}
	}
	return rows
}

// Correlation returns the correlation matrix implied by the covariance.
func (m *Moments) Correlation() ([][]float64, error) {
	return formulas.CorrelationMatrixFromCovariance(m.CovarianceRows())
}

// Performance evaluates a weight vector:
//
//	return     = μ·w
//	volatility = sqrt(wᵀ Σ w)
//	sharpe     = (return - riskFree) / volatility
//
// It fails with DegenerateVarianceError when the volatility is zero or not finite.
func (m *Moments) Performance(weights []float64, riskFree float64) (Performance, error) {
	ret, vol, err := m.returnAndVolatility(weights)
	if err != nil {
		return Performance{}, err
	}
	return Performance{
		Return:     ret,
		Volatility: vol,
		Sharpe:     (ret - riskFree) / vol,
	}, nil
}

// SharpeGradient writes ∂sharpe/∂w into dst:
//
//	∇S = μ/σ - (μ·w - riskFree) Σw / σ³
//
// and returns the Sharpe ratio at w.
func (m *Moments) SharpeGradient(dst, weights []float64, riskFree float64) (float64, error) {
	if len(dst) != m.Dim() {
		return 0, fmt.Errorf("gradient has %d entries, expected %d", len(dst), m.Dim())
	}
	ret, vol, err := m.returnAndVolatility(weights)
	if err != nil {
		return 0, err
	}

	var sigmaW mat.VecDense
	sigmaW.MulVec(m.Cov, mat.NewVecDense(len(weights), weights))

	excess := ret - riskFree
	vol3 := vol * vol * vol
	for i := range dst {
		dst[i] = m.Mean[i]/vol - excess*sigmaW.AtVec(i)/vol3
	}
	return excess / vol, nil
}

func (m *Moments) returnAndVolatility(weights []float64) (float64, float64, error) {
	if len(weights) != m.Dim() {
		return 0, 0, fmt.Errorf("weight vector has %d entries, expected %d", len(weights), m.Dim())
	}
	for _, w := range weights {
		if !formulas.IsFinite(w) {
			return 0, 0, fmt.Errorf("weight vector contains non-finite value %v", w)
		}
	}

	ret := floats.Dot(weights, m.Mean)
	w := mat.NewVecDense(len(weights), weights)
	variance := mat.Inner(w, m.Cov, w)
	vol := math.Sqrt(math.Max(variance, 0))

	if !formulas.IsFinite(vol) || vol < minVolatility {
		return 0, 0, DegenerateVarianceError{Volatility: vol}
	}
	return ret, vol, nil
}

// AnnualizedStats computes the Performance of weights over a return series.
func AnnualizedStats(weights []float64, series *ReturnSeries, riskFree float64) (Performance, error) {
	m, err := NewMoments(series)
	if err != nil {
		return Performance{}, err
	}
	return m.Performance(weights, riskFree)
}
