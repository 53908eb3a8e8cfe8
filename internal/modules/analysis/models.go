package analysis

import (
	"fmt"
	"time"

	"github.com/aristath/frontier/internal/modules/clustering"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/returns"
)

// Request describes one analysis run. Zero values fall back to the service
// configuration.
type Request struct {
	Symbols []string
	Start   time.Time
	End     time.Time
	// Prices, when set, is used instead of the history database.
	Prices       *returns.PriceTable
	RiskFreeRate *float64
	Clusters     int
	Seed         *uint64
	Categories   map[string]string
	ForwardFill  bool
}

// Report is the outcome of an analysis run.
type Report struct {
	RunID        string    `json:"run_id" msgpack:"run_id"`
	Symbols      []string  `json:"symbols" msgpack:"symbols"`
	Start        time.Time `json:"start" msgpack:"start"`
	End          time.Time `json:"end" msgpack:"end"`
	Observations int       `json:"observations" msgpack:"observations"`

	Allocation      *optimization.Allocation `json:"allocation,omitempty" msgpack:"allocation,omitempty"`
	Holdings        []optimization.Holding   `json:"holdings,omitempty" msgpack:"holdings,omitempty"`
	CategoryWeights map[string]float64       `json:"category_weights,omitempty" msgpack:"category_weights,omitempty"`

	Clustering *clustering.Result `json:"clustering,omitempty" msgpack:"clustering,omitempty"`

	AnnualReturns     []float64   `json:"annual_returns,omitempty" msgpack:"annual_returns,omitempty"`
	Correlation       [][]float64 `json:"correlation,omitempty" msgpack:"correlation,omitempty"`
	Cumulative        [][]float64 `json:"cumulative_returns,omitempty" msgpack:"cumulative_returns,omitempty"`
	RollingVolatility [][]float64 `json:"rolling_volatility,omitempty" msgpack:"rolling_volatility,omitempty"`
	HistogramBin      []float64   `json:"histogram_edges,omitempty" msgpack:"histogram_edges,omitempty"`
	Histogram         [][]float64 `json:"histogram_counts,omitempty" msgpack:"histogram_counts,omitempty"`

	Warnings   []string `json:"warnings,omitempty" msgpack:"warnings,omitempty"`
	DurationMs int64    `json:"duration_ms" msgpack:"duration_ms"`
}

// ValidationError reports a request that cannot be run as given.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}
