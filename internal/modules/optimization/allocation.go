package optimization

import (
	"sort"

	"github.com/aristath/frontier/internal/modules/returns"
)

// UncategorizedLabel groups symbols missing from a category map.
const UncategorizedLabel = "Uncategorized"

// Allocation is a long-only weight vector over the universe together with
// its annualized performance and solver diagnostics.
// Weights follow Symbols order, lie in [0, 1] and sum to 1.
type Allocation struct {
	Symbols      []string            `json:"symbols" msgpack:"symbols"`
	Weights      []float64           `json:"weights" msgpack:"weights"`
	Performance  returns.Performance `json:"performance" msgpack:"performance"`
	Converged    bool                `json:"converged" msgpack:"converged"`
	Status       string              `json:"status" msgpack:"status"`
	Iterations   int                 `json:"iterations" msgpack:"iterations"`
	Stationarity float64             `json:"stationarity" msgpack:"stationarity"`
	Excluded     []string            `json:"excluded,omitempty" msgpack:"excluded,omitempty"`
}

// Holding is one symbol's share of an allocation.
type Holding struct {
	Symbol string  `json:"symbol" msgpack:"symbol"`
	Weight float64 `json:"weight" msgpack:"weight"`
}

// Weight returns the weight of symbol, or 0 when it is not in the universe.
func (a *Allocation) Weight(symbol string) float64 {
	for i, s := range a.Symbols {
		if s == symbol {
			return a.Weights[i]
		}
	}
	return 0
}

// WeightMap returns the weights keyed by symbol.
func (a *Allocation) WeightMap() map[string]float64 {
	out := make(map[string]float64, len(a.Symbols))
	for i, s := range a.Symbols {
		out[s] = a.Weights[i]
	}
	return out
}

// Significant returns the holdings whose weight is at least threshold,
// largest first. The allocation itself is left untouched.
func (a *Allocation) Significant(threshold float64) []Holding {
	holdings := make([]Holding, 0, len(a.Symbols))
	for i, s := range a.Symbols {
		if a.Weights[i] >= threshold {
			holdings = append(holdings, Holding{Symbol: s, Weight: a.Weights[i]})
		}
	}
	sort.SliceStable(holdings, func(i, j int) bool {
		return holdings[i].Weight > holdings[j].Weight
	})
	return holdings
}

// ByCategory sums weights per category label. Symbols absent from categories
// are totalled under UncategorizedLabel.
func (a *Allocation) ByCategory(categories map[string]string) map[string]float64 {
	totals := make(map[string]float64)
	for i, s := range a.Symbols {
		label, ok := categories[s]
		if !ok || label == "" {
			label = UncategorizedLabel
		}
		totals[label] += a.Weights[i]
	}
	return totals
}
