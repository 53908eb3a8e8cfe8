package formulas

import (
	"fmt"
	"math"
)

// CorrelationMatrixFromCovariance calculates the correlation matrix from a covariance matrix.
//
// Formula: corr(i,j) = cov(i,j) / sqrt(cov(i,i) * cov(j,j))
//
// An asset with zero variance has no defined correlation; its off-diagonal
// entries are reported as 0 and its diagonal as 1 so that no NaN leaves this
// function.
func CorrelationMatrixFromCovariance(cov [][]float64) ([][]float64, error) {
	n := len(cov)
	if n == 0 {
		return nil, fmt.Errorf("empty covariance matrix")
	}
	for i := 0; i < n; i++ {
		if len(cov[i]) != n {
			return nil, fmt.Errorf("covariance matrix is not square")
		}
	}

	vars := make([]float64, n)
	for i := 0; i < n; i++ {
		v := cov[i][i]
		if v < 0 || !IsFinite(v) {
			return nil, fmt.Errorf("invalid variance on diagonal at %d: %v", i, v)
		}
		vars[i] = v
	}

	corr := make([][]float64, n)
	for i := 0; i < n; i++ {
		corr[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		corr[i][i] = 1.0
		for j := i + 1; j < n; j++ {
			den := math.Sqrt(vars[i] * vars[j])
			val := 0.0
			if den > 0 {
				val = cov[i][j] / den
			}
			val = math.Max(-1.0, math.Min(1.0, val))
			corr[i][j] = val
			corr[j][i] = val
		}
	}

	return corr, nil
}
