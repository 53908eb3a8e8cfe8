package optimization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/floats"
)

func TestProjectToSimplex(t *testing.T) {
	tests := []struct {
		name     string
		input    []float64
		expected []float64
	}{
		{name: "already feasible", input: []float64{0.2, 0.3, 0.5}, expected: []float64{0.2, 0.3, 0.5}},
		{name: "uniform shift", input: []float64{0.5, 0.5, 0.5}, expected: []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}},
		{name: "dominant coordinate", input: []float64{2, 0}, expected: []float64{1, 0}},
		{name: "negative entries", input: []float64{-1, 0.4, 0.8}, expected: []float64{0, 0.3, 0.7}},
		{name: "single coordinate", input: []float64{-3}, expected: []float64{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := projectToSimplex(tt.input)
			assert.InDeltaSlice(t, tt.expected, got, 1e-12)
			assert.InDelta(t, 1.0, floats.Sum(got), 1e-12)
			for _, w := range got {
				assert.GreaterOrEqual(t, w, 0.0)
			}
		})
	}
}

func TestNormalizeWeights(t *testing.T) {
	w, sum := normalizeWeights([]float64{0.5, -0.2, 1.5})
	assert.InDelta(t, 1.5, sum, 1e-12)
	assert.InDeltaSlice(t, []float64{1.0 / 3, 0, 2.0 / 3}, w, 1e-12)

	w, _ = normalizeWeights([]float64{-1, -2})
	assert.Nil(t, w)
}

func TestStationarityResidual(t *testing.T) {
	// Equal gradient on the support and lower gradient off it is a KKT point.
	assert.InDelta(t, 0.0, stationarityResidual([]float64{0.4, 0.6, 0}, []float64{0.1, 0.1, -0.5}), 1e-12)

	// A coordinate with a larger gradient should receive more weight.
	assert.Greater(t, stationarityResidual([]float64{0.5, 0.5}, []float64{0.3, -0.3}), 0.1)
}
