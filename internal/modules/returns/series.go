package returns

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/frontier/pkg/formulas"
)

// ReturnSeries holds daily simple returns, one row per trading day and one
// column per symbol in universe order. It never contains NaN.
type ReturnSeries struct {
	Dates   []time.Time
	Symbols []string
	data    *mat.Dense // nil when no rows survived
}

type computeOptions struct {
	forwardFill bool
}

// Option configures ComputeReturns.
type Option func(*computeOptions)

// WithForwardFill carries the last valid price over interior gaps before
// differencing, instead of dropping the affected rows.
func WithForwardFill() Option {
	return func(o *computeOptions) {
		o.forwardFill = true
	}
}

// ComputeReturns converts prices into daily simple returns r_t = p_t/p_{t-1} - 1
// for the given symbols, in that order. The first row is dropped, and so is
// every row where any asset's return is undefined.
func ComputeReturns(prices PriceTable, symbols []string, opts ...Option) (*ReturnSeries, error) {
	var o computeOptions
	for _, opt := range opts {
		opt(&o)
	}

	if len(symbols) == 0 {
		return nil, InsufficientDataError{Reason: "no symbols in universe"}
	}
	if err := prices.Validate(); err != nil {
		return nil, fmt.Errorf("invalid price table: %w", err)
	}

	columns := make([][]float64, len(symbols))
	for j, symbol := range symbols {
		col, ok := prices.Prices[symbol]
		if !ok {
			return nil, InsufficientDataError{Reason: fmt.Sprintf("no prices for %s", symbol)}
		}
		if o.forwardFill {
			col = forwardFill(col)
		}
		if valid := countValid(col); valid < 2 {
			return nil, InsufficientDataError{
				Reason: fmt.Sprintf("%s has %d valid prices, need at least 2", symbol, valid),
			}
		}
		columns[j] = col
	}

	n := len(symbols)
	var dates []time.Time
	var values []float64
	row := make([]float64, n)
	for t := 1; t < len(prices.Dates); t++ {
		complete := true
		for j, col := range columns {
			if !validPrice(col[t]) || !validPrice(col[t-1]) {
				complete = false
				break
			}
			row[j] = col[t]/col[t-1] - 1
		}
		if !complete {
			continue
		}
		dates = append(dates, prices.Dates[t])
		values = append(values, row...)
	}

	series := &ReturnSeries{
		Dates:   dates,
		Symbols: append([]string(nil), symbols...),
	}
	if len(dates) > 0 {
		series.data = mat.NewDense(len(dates), n, values)
	}
	return series, nil
}

// NewReturnSeries builds a series directly from per-asset return columns.
// All columns must have the same length and contain only finite values.
func NewReturnSeries(dates []time.Time, symbols []string, columns [][]float64) (*ReturnSeries, error) {
	if len(symbols) == 0 || len(columns) != len(symbols) {
		return nil, fmt.Errorf("need one return column per symbol, got %d columns for %d symbols", len(columns), len(symbols))
	}
	rows := len(columns[0])
	if dates != nil && len(dates) != rows {
		return nil, fmt.Errorf("got %d dates for %d return rows", len(dates), rows)
	}
	for j, col := range columns {
		if len(col) != rows {
			return nil, fmt.Errorf("return column %s has %d rows, expected %d", symbols[j], len(col), rows)
		}
		for _, v := range col {
			if !formulas.IsFinite(v) {
				return nil, fmt.Errorf("return column %s contains non-finite value", symbols[j])
			}
		}
	}

	series := &ReturnSeries{
		Dates:   dates,
		Symbols: append([]string(nil), symbols...),
	}
	if rows > 0 {
		data := mat.NewDense(rows, len(symbols), nil)
		for j, col := range columns {
			data.SetCol(j, col)
		}
		series.data = data
	}
	return series, nil
}

// Len returns the number of return rows.
func (s *ReturnSeries) Len() int {
	if s == nil || s.data == nil {
		return 0
	}
	r, _ := s.data.Dims()
	return r
}

// Width returns the number of assets.
func (s *ReturnSeries) Width() int {
	return len(s.Symbols)
}

// Matrix exposes the rows x assets return matrix. It is nil for an empty series.
func (s *ReturnSeries) Matrix() mat.Matrix {
	if s.data == nil {
		return nil
	}
	return s.data
}

// Column returns a copy of one asset's returns.
func (s *ReturnSeries) Column(j int) []float64 {
	if s.data == nil {
		return []float64{}
	}
	return mat.Col(nil, j, s.data)
}

// Columns returns a copy of every asset's returns, in universe order.
func (s *ReturnSeries) Columns() [][]float64 {
	cols := make([][]float64, s.Width())
	for j := range cols {
		cols[j] = s.Column(j)
	}
	return cols
}

// AssetVolatilities returns each asset's annualized volatility, std × √252.
func (s *ReturnSeries) AssetVolatilities() []float64 {
	vols := make([]float64, s.Width())
	for j := range vols {
		vols[j] = formulas.AnnualizedVolatility(s.Column(j))
	}
	return vols
}

// RollingVolatility returns each asset's annualized volatility over trailing
// windows of the given length, or nil if the series is shorter than a window.
func (s *ReturnSeries) RollingVolatility(window int) [][]float64 {
	if window < 2 || s.Len() < window {
		return nil
	}
	out := make([][]float64, s.Width())
	for j := range out {
		out[j] = formulas.RollingVolatility(s.Column(j), window)
	}
	return out
}

// CompoundAnnualReturns returns each asset's geometric annualized return.
func (s *ReturnSeries) CompoundAnnualReturns() []float64 {
	out := make([]float64, s.Width())
	for j := range out {
		out[j] = formulas.CalculateAnnualReturn(s.Column(j))
	}
	return out
}

// CumulativeReturns returns the growth of one unit per asset, the running product of 1+r.
func (s *ReturnSeries) CumulativeReturns() [][]float64 {
	out := make([][]float64, s.Width())
	for j := range out {
		col := s.Column(j)
		growth := 1.0
		for i, r := range col {
			growth *= 1 + r
			col[i] = growth
		}
		out[j] = col
	}
	return out
}

// Histogram buckets every asset's daily returns into the same equal-width bins.
// It returns the bin edges (bins+1 values) and one count slice per asset.
func (s *ReturnSeries) Histogram(bins int) ([]float64, [][]float64, error) {
	if bins < 1 {
		return nil, nil, fmt.Errorf("histogram needs at least one bin, got %d", bins)
	}
	if s.Len() == 0 {
		return nil, nil, InsufficientDataError{Reason: "no return rows to bucket"}
	}

	lo := mat.Min(s.data)
	hi := mat.Max(s.data)
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}
	dividers := floats.Span(make([]float64, bins+1), lo, hi)
	// The top edge is exclusive.
	dividers[bins] = math.Nextafter(hi, math.Inf(1))

	counts := make([][]float64, s.Width())
	for j := range counts {
		col := s.Column(j)
		sort.Float64s(col)
		counts[j] = stat.Histogram(nil, dividers, col, nil)
	}
	return dividers, counts, nil
}
