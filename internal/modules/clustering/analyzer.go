package clustering

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/modules/returns"
)

// DefaultClusters is the cluster count used when none is requested.
const DefaultClusters = 3

// Options configures an Analyzer.
type Options struct {
	Clusters               int
	Seed                   uint64
	Restarts               int
	DiagnosticRiskFreeRate float64
}

// Assignment maps each symbol to its cluster id in [0, k).
type Assignment map[string]int

// Result is the outcome of a clustering run.
type Result struct {
	Symbols      []string    `json:"symbols" msgpack:"symbols"`
	Assignment   Assignment  `json:"assignment" msgpack:"assignment"`
	Clusters     int         `json:"clusters" msgpack:"clusters"`
	Inertia      float64     `json:"inertia" msgpack:"inertia"`
	Volatilities []float64   `json:"volatilities" msgpack:"volatilities"`
	Recommended  string      `json:"recommended" msgpack:"recommended"`
	Diagnostic   *Diagnostic `json:"diagnostic,omitempty" msgpack:"diagnostic,omitempty"`
}

// Members returns the symbols of cluster id in universe order.
func (r *Result) Members(id int) []string {
	var out []string
	for _, s := range r.Symbols {
		if r.Assignment[s] == id {
			out = append(out, s)
		}
	}
	return out
}

// Analyzer clusters assets by return behavior and picks a recommendation.
type Analyzer struct {
	opts Options
	log  zerolog.Logger
}

// NewAnalyzer creates an analyzer. A zero cluster count means DefaultClusters.
func NewAnalyzer(opts Options, log zerolog.Logger) *Analyzer {
	if opts.Clusters == 0 {
		opts.Clusters = DefaultClusters
	}
	if opts.Restarts <= 0 {
		opts.Restarts = DefaultRestarts
	}
	return &Analyzer{
		opts: opts,
		log:  log.With().Str("component", "cluster_analyzer").Logger(),
	}
}

// Options returns the effective options.
func (a *Analyzer) Options() Options {
	return a.opts
}

// Analyze clusters the assets of series, each asset's return column being one
// point, and recommends the asset with the lowest annualized volatility.
func (a *Analyzer) Analyze(ctx context.Context, series *returns.ReturnSeries) (*Result, error) {
	if series == nil || series.Len() < 2 {
		rows := 0
		if series != nil {
			rows = series.Len()
		}
		return nil, returns.InsufficientDataError{
			Reason: fmt.Sprintf("return series has %d rows, need at least 2 for volatility", rows),
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("clustering cancelled: %w", err)
	}

	km := KMeans{
		K:        a.opts.Clusters,
		Seed:     a.opts.Seed,
		Restarts: a.opts.Restarts,
	}
	fit, err := km.Fit(series.Columns())
	if err != nil {
		return nil, err
	}

	assignment := make(Assignment, series.Width())
	for i, s := range series.Symbols {
		assignment[s] = fit.Labels[i]
	}

	vols := series.AssetVolatilities()
	result := &Result{
		Symbols:      append([]string(nil), series.Symbols...),
		Assignment:   assignment,
		Clusters:     km.K,
		Inertia:      fit.Inertia,
		Volatilities: vols,
	}
	if idx := Recommend(vols); idx >= 0 {
		result.Recommended = series.Symbols[idx]
	}

	if m, err := returns.NewMoments(series); err == nil {
		diag, err := DiagnosticPortfolio(m, a.opts.Seed, a.opts.DiagnosticRiskFreeRate)
		if err != nil {
			a.log.Debug().Err(err).Msg("Skipping diagnostic portfolio")
		} else {
			result.Diagnostic = diag
		}
	} else {
		a.log.Debug().Err(err).Msg("Skipping diagnostic portfolio")
	}

	a.log.Debug().
		Int("clusters", km.K).
		Int("iterations", fit.Iterations).
		Float64("inertia", fit.Inertia).
		Str("recommended", result.Recommended).
		Msg("Clustering complete")

	return result, nil
}
