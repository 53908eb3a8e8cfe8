package returns

import "fmt"

// InsufficientDataError reports that there are not enough valid rows or
// assets to compute the requested statistics.
type InsufficientDataError struct {
	Reason string
}

func (e InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %s", e.Reason)
}

// DegenerateVarianceError reports a zero or non-finite volatility, which
// leaves the Sharpe ratio undefined.
type DegenerateVarianceError struct {
	Volatility float64
}

func (e DegenerateVarianceError) Error() string {
	return fmt.Sprintf("degenerate variance: volatility %v makes the Sharpe ratio undefined", e.Volatility)
}
