package optimization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func sampleAllocation() *Allocation {
	return &Allocation{
		Symbols: []string{"AAPL", "MSFT", "KO", "TINY"},
		Weights: []float64{0.25, 0.60, 0.145, 0.005},
	}
}

func TestAllocation_Significant(t *testing.T) {
	alloc := sampleAllocation()
	before := append([]float64(nil), alloc.Weights...)

	holdings := alloc.Significant(0.01)
	require.Len(t, holdings, 3)
	assert.Equal(t, Holding{Symbol: "MSFT", Weight: 0.60}, holdings[0])
	assert.Equal(t, Holding{Symbol: "AAPL", Weight: 0.25}, holdings[1])
	assert.Equal(t, Holding{Symbol: "KO", Weight: 0.145}, holdings[2])

	assert.Equal(t, before, alloc.Weights, "filtering must not touch the raw weights")
	assert.Len(t, alloc.Symbols, 4)
}

func TestAllocation_SignificantZeroThresholdKeepsEverything(t *testing.T) {
	holdings := sampleAllocation().Significant(0)
	assert.Len(t, holdings, 4)
}

func TestAllocation_ByCategory(t *testing.T) {
	alloc := sampleAllocation()
	totals := alloc.ByCategory(map[string]string{
		"AAPL": "Mega Cap",
		"MSFT": "Mega Cap",
		"KO":   "Large Cap",
	})

	assert.InDelta(t, 0.85, totals["Mega Cap"], 1e-12)
	assert.InDelta(t, 0.145, totals["Large Cap"], 1e-12)
	assert.InDelta(t, 0.005, totals[UncategorizedLabel], 1e-12)

	sum := 0.0
	for _, v := range totals {
		sum += v
	}
	assert.InDelta(t, floats.Sum(alloc.Weights), sum, 1e-12)
}

func TestAllocation_WeightLookup(t *testing.T) {
	alloc := sampleAllocation()
	assert.Equal(t, 0.60, alloc.Weight("MSFT"))
	assert.Equal(t, 0.0, alloc.Weight("NOPE"))

	m := alloc.WeightMap()
	assert.Len(t, m, 4)
	assert.Equal(t, 0.145, m["KO"])
}
