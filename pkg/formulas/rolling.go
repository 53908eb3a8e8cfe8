package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// RollingVolatility returns the annualized volatility of each trailing window
// of daily returns. Entry i covers returns[i : i+window]; windows use the
// population standard deviation. Returns nil if window < 2 or the series is
// shorter than one window.
func RollingVolatility(returns []float64, window int) []float64 {
	if window < 2 || len(returns) < window {
		return nil
	}

	std := talib.StdDev(returns, window, math.Sqrt(TradingDaysPerYear))

	// The first window-1 entries are lookback padding
	out := make([]float64, len(returns)-window+1)
	copy(out, std[window-1:])
	return out
}
