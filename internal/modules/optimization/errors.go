package optimization

import "fmt"

// NonConvergenceError reports that the solver stopped before the allocation
// reached a stationary point. Allocation holds the last iterate, renormalized
// onto the simplex, so callers can still present a best-effort result.
type NonConvergenceError struct {
	Status     string
	Residual   float64
	Allocation *Allocation
}

func (e NonConvergenceError) Error() string {
	return fmt.Sprintf("optimizer did not converge (status %s, stationarity residual %.3g)", e.Status, e.Residual)
}
