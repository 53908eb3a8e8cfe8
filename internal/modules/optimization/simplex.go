package optimization

import (
	"math"
	"sort"
)

// projectToBounds clamps every coordinate into [lower, upper].
func projectToBounds(x []float64, lower, upper float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Max(lower, math.Min(upper, v))
	}
	return out
}

// normalizeWeights clamps x into [0, 1] and rescales it to sum to 1.
// The second return value is the sum before rescaling; a non-positive or
// non-finite sum yields nil weights.
func normalizeWeights(x []float64) ([]float64, float64) {
	w := projectToBounds(x, 0, 1)
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, sum
	}
	for i := range w {
		w[i] /= sum
	}
	return w, sum
}

// projectToSimplex returns the Euclidean projection of v onto
// {w : w_i >= 0, Σw = 1}.
func projectToSimplex(v []float64) []float64 {
	n := len(v)
	u := append([]float64(nil), v...)
	sort.Sort(sort.Reverse(sort.Float64Slice(u)))

	cumsum := 0.0
	theta := 0.0
	for j := 0; j < n; j++ {
		cumsum += u[j]
		t := (cumsum - 1) / float64(j+1)
		if u[j]-t > 0 {
			theta = t
		}
	}

	out := make([]float64, n)
	for i, x := range v {
		out[i] = math.Max(x-theta, 0)
	}
	return out
}

// stationarityResidual measures how far w is from a KKT point of maximizing
// a function with gradient grad over the simplex: ||P(w + grad) - w||∞.
// It is zero exactly at stationary points.
func stationarityResidual(w, grad []float64) float64 {
	shifted := make([]float64, len(w))
	for i := range w {
		shifted[i] = w[i] + grad[i]
	}
	p := projectToSimplex(shifted)
	residual := 0.0
	for i := range w {
		residual = math.Max(residual, math.Abs(p[i]-w[i]))
	}
	return residual
}
