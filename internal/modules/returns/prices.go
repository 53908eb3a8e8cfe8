// Package returns turns aligned price history into daily simple returns and
// the annualized return, volatility and Sharpe statistics built on them.
package returns

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// PriceTable holds adjusted closing prices aligned to a common date axis.
// Prices[symbol][i] is the price on Dates[i]; a missing price is NaN.
type PriceTable struct {
	Dates  []time.Time
	Prices map[string][]float64
}

// NewPriceTable creates an empty table over the given dates.
func NewPriceTable(dates []time.Time) PriceTable {
	return PriceTable{
		Dates:  dates,
		Prices: make(map[string][]float64),
	}
}

// Set stores a full price column for a symbol.
func (pt PriceTable) Set(symbol string, prices []float64) {
	col := make([]float64, len(prices))
	copy(col, prices)
	pt.Prices[symbol] = col
}

// Symbols returns the symbols present in the table, sorted.
func (pt PriceTable) Symbols() []string {
	symbols := make([]string, 0, len(pt.Prices))
	for s := range pt.Prices {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// Validate checks that dates are strictly increasing and every column is
// aligned to them.
func (pt PriceTable) Validate() error {
	for i := 1; i < len(pt.Dates); i++ {
		if !pt.Dates[i].After(pt.Dates[i-1]) {
			return fmt.Errorf("price dates not strictly increasing at %s", pt.Dates[i].Format("2006-01-02"))
		}
	}
	for symbol, col := range pt.Prices {
		if len(col) != len(pt.Dates) {
			return fmt.Errorf("price column %s has %d rows, expected %d", symbol, len(col), len(pt.Dates))
		}
	}
	return nil
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

func countValid(prices []float64) int {
	n := 0
	for _, p := range prices {
		if validPrice(p) {
			n++
		}
	}
	return n
}

// forwardFill carries the last valid price over gaps. Leading gaps stay
// missing since there is no earlier price to carry.
func forwardFill(prices []float64) []float64 {
	filled := make([]float64, len(prices))
	copy(filled, prices)

	last := math.NaN()
	for i, p := range filled {
		if validPrice(p) {
			last = p
			continue
		}
		filled[i] = last
	}
	return filled
}
