package clustering

import (
	"fmt"
	"math/rand/v2"

	"github.com/aristath/frontier/internal/modules/returns"
	"github.com/aristath/frontier/pkg/formulas"
)

// DefaultDiagnosticRiskFreeRate is the risk-free rate used by the diagnostic
// portfolio when none is configured.
const DefaultDiagnosticRiskFreeRate = 0.05

// Recommend returns the index of the lowest annualized volatility, or -1 when
// no volatility is finite. Ties go to the lowest index.
//
// The choice is made over the whole universe; cluster membership plays no
// part in it.
func Recommend(volatilities []float64) int {
	best := -1
	for i, v := range volatilities {
		if !formulas.IsFinite(v) {
			continue
		}
		if best < 0 || v < volatilities[best] {
			best = i
		}
	}
	return best
}

// Diagnostic is a randomly weighted reference portfolio.
type Diagnostic struct {
	Weights      []float64           `json:"weights" msgpack:"weights"`
	RiskFreeRate float64             `json:"risk_free_rate" msgpack:"risk_free_rate"`
	Performance  returns.Performance `json:"performance" msgpack:"performance"`
}

// DiagnosticPortfolio draws uniform weights from a PCG source seeded with
// seed, normalizes them to sum to 1 and evaluates them against m with the
// given risk-free rate.
func DiagnosticPortfolio(m *returns.Moments, seed uint64, riskFree float64) (*Diagnostic, error) {
	n := m.Dim()
	if n == 0 {
		return nil, returns.InsufficientDataError{Reason: "no assets for diagnostic portfolio"}
	}

	weights := randomWeights(n, rand.New(rand.NewPCG(seed, seed+1)))
	perf, err := m.Performance(weights, riskFree)
	if err != nil {
		return nil, fmt.Errorf("diagnostic portfolio: %w", err)
	}

	return &Diagnostic{
		Weights:      weights,
		RiskFreeRate: riskFree,
		Performance:  perf,
	}, nil
}

// randomWeights generates n random weights that sum to 1.
func randomWeights(n int, rng *rand.Rand) []float64 {
	w := make([]float64, n)
	sum := 0.0
	for i := range w {
		// Float64 is in [0, 1); shift away from zero so the sum is positive.
		w[i] = 1 - rng.Float64()
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}
