package testing

import (
	"math/rand/v2"
	"time"

	"github.com/aristath/frontier/internal/modules/returns"
)

// FixtureStart is the first date of every generated price table.
var FixtureStart = time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)

// AssetFixture describes one synthetic asset by its daily return drift and
// volatility.
type AssetFixture struct {
	Symbol     string
	Drift      float64
	Volatility float64
}

// NewAssetFixtures returns four assets with distinct risk profiles. CCC has
// the lowest volatility.
func NewAssetFixtures() []AssetFixture {
	return []AssetFixture{
		{Symbol: "AAA", Drift: 0.0010, Volatility: 0.015},
		{Symbol: "BBB", Drift: 0.0008, Volatility: 0.012},
		{Symbol: "CCC", Drift: 0.0004, Volatility: 0.005},
		{Symbol: "DDD", Drift: 0.0006, Volatility: 0.010},
	}
}

// NewPriceTable compounds seeded normal daily returns from a price of 100
// into a table of rows consecutive calendar days starting at FixtureStart.
func NewPriceTable(rows int, seed uint64, assets ...AssetFixture) returns.PriceTable {
	rng := rand.New(rand.NewPCG(seed, seed+1))

	dates := make([]time.Time, rows)
	for i := range dates {
		dates[i] = FixtureStart.AddDate(0, 0, i)
	}

	table := returns.NewPriceTable(dates)
	for _, a := range assets {
		col := make([]float64, rows)
		if rows > 0 {
			col[0] = 100
		}
		for i := 1; i < rows; i++ {
			col[i] = col[i-1] * (1 + a.Drift + a.Volatility*rng.NormFloat64())
		}
		table.Set(a.Symbol, col)
	}
	return table
}
