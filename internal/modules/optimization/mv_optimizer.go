// Package optimization finds the long-only, fully-invested allocation with the
// highest Sharpe ratio.
package optimization

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/aristath/frontier/internal/modules/returns"
	"github.com/aristath/frontier/pkg/formulas"
)

const (
	penaltyWeight = 1000.0
	// rejectedObjective is returned for candidates whose Sharpe ratio is
	// undefined, so the simplex moves away from them.
	rejectedObjective = 1e10
	// armijo is the sufficient-increase constant of the line search.
	armijo       = 1e-4
	maxBacktrack = 60
	maxStep      = 1e6
)

// Allocation statuses not reported by gonum.
const (
	StatusConverged       = "converged"
	StatusRefinementLimit = "RefinementLimit"
)

// successStatuses are the gonum stop reasons that count as convergence.
var successStatuses = map[optimize.Status]bool{
	optimize.Success:             true,
	optimize.FunctionConvergence: true,
	optimize.GradientThreshold:   true,
	optimize.StepConvergence:     true,
}

// OptimizerOptions configures SharpeOptimizer.
type OptimizerOptions struct {
	// RiskFreeRate is subtracted from the portfolio return in the Sharpe ratio.
	RiskFreeRate float64
	// MaxIterations bounds each solver stage.
	MaxIterations int
	// Tolerance is the Nelder-Mead function convergence threshold.
	Tolerance float64
	// StationarityTolerance is the largest accepted KKT residual.
	StationarityTolerance float64
	// Timeout bounds the Nelder-Mead stage's wall clock; zero means none.
	Timeout time.Duration
}

// DefaultOptimizerOptions returns the settings used when none are configured.
func DefaultOptimizerOptions() OptimizerOptions {
	return OptimizerOptions{
		RiskFreeRate:          0,
		MaxIterations:         5000,
		Tolerance:             1e-10,
		StationarityTolerance: 1e-6,
	}
}

// SharpeOptimizer performs mean-variance max-Sharpe optimization.
type SharpeOptimizer struct {
	opts OptimizerOptions
	log  zerolog.Logger
}

// NewSharpeOptimizer creates an optimizer. Zero-valued options fall back to
// DefaultOptimizerOptions, except RiskFreeRate which is used as given.
func NewSharpeOptimizer(opts OptimizerOptions, log zerolog.Logger) *SharpeOptimizer {
	def := DefaultOptimizerOptions()
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = def.MaxIterations
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = def.Tolerance
	}
	if opts.StationarityTolerance <= 0 {
		opts.StationarityTolerance = def.StationarityTolerance
	}
	return &SharpeOptimizer{
		opts: opts,
		log:  log.With().Str("component", "sharpe_optimizer").Logger(),
	}
}

// Options returns the effective options.
func (so *SharpeOptimizer) Options() OptimizerOptions {
	return so.opts
}

// Optimize solves
//
//	maximize   (μ'w - r_f) / sqrt(w'Σw)
//	subject to Σw = 1, 0 ≤ w_i ≤ 1
//
// over the annualized moments of series.
//
// Assets with zero or non-finite variance are excluded up front and receive
// weight 0. When the solver stops short of a stationary point the returned
// error is a NonConvergenceError and the returned allocation is the last
// iterate with Converged set to false.
func (so *SharpeOptimizer) Optimize(ctx context.Context, series *returns.ReturnSeries) (*Allocation, error) {
	if series == nil || series.Len() == 0 {
		return nil, returns.InsufficientDataError{Reason: "return series has no rows"}
	}
	m, err := returns.NewMoments(series)
	if err != nil {
		return nil, err
	}
	return so.OptimizeMoments(ctx, m)
}

// OptimizeMoments runs the optimization on precomputed annualized moments.
func (so *SharpeOptimizer) OptimizeMoments(ctx context.Context, m *returns.Moments) (*Allocation, error) {
	n := m.Dim()
	if n == 0 {
		return nil, returns.InsufficientDataError{Reason: "no assets to allocate"}
	}

	active, excluded := screenAssets(m)
	if len(active) == 0 {
		return nil, returns.DegenerateVarianceError{Volatility: 0}
	}
	if len(excluded) > 0 {
		so.log.Debug().Strs("excluded", excluded).Msg("Excluding assets with degenerate variance")
	}

	weights := make([]float64, n)
	alloc := &Allocation{
		Symbols:  append([]string(nil), m.Symbols...),
		Excluded: excluded,
	}

	if len(active) == 1 {
		weights[active[0]] = 1.0
		return so.finish(m, alloc, weights, StatusConverged, 0, 0)
	}

	sub := m.Subset(active)
	x, iterations, status, err := so.minimizeNegativeSharpe(ctx, sub)
	if err != nil {
		return nil, err
	}

	w, residual, refineIters, err := so.refine(ctx, sub, so.startingPoint(sub, x))
	if err != nil {
		return nil, err
	}
	iterations += refineIters

	for k, i := range active {
		weights[i] = w[k]
	}

	if residual > so.opts.StationarityTolerance {
		if status == StatusConverged {
			status = StatusRefinementLimit
		}
		partial, ferr := so.finish(m, alloc, weights, status, iterations, residual)
		if ferr != nil {
			return nil, ferr
		}
		so.log.Warn().
			Str("status", status).
			Float64("residual", residual).
			Int("iterations", iterations).
			Msg("Optimizer did not converge")
		return partial, NonConvergenceError{Status: status, Residual: residual, Allocation: partial}
	}

	return so.finish(m, alloc, weights, StatusConverged, iterations, residual)
}

// screenAssets splits asset indices into those with usable variance and the
// symbols of those without.
func screenAssets(m *returns.Moments) ([]int, []string) {
	var active []int
	var excluded []string
	for i := 0; i < m.Dim(); i++ {
		v := m.Variance(i)
		if formulas.IsFinite(v) && math.Sqrt(math.Max(v, 0)) >= 1e-12 && formulas.IsFinite(m.Mean[i]) {
			active = append(active, i)
		} else {
			excluded = append(excluded, m.Symbols[i])
		}
	}
	return active, excluded
}

// minimizeNegativeSharpe runs Nelder-Mead on the negative Sharpe ratio of the
// bound-projected, renormalized weights, with a quadratic penalty anchoring
// the raw weights to Σw = 1. It returns the raw minimizer.
func (so *SharpeOptimizer) minimizeNegativeSharpe(ctx context.Context, m *returns.Moments) ([]float64, int, string, error) {
	n := m.Dim()
	rf := so.opts.RiskFreeRate

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			w, sum := normalizeWeights(x)
			if w == nil {
				return rejectedObjective
			}
			perf, err := m.Performance(w, rf)
			if err != nil {
				return rejectedObjective
			}
			return -perf.Sharpe + penaltyWeight*(sum-1.0)*(sum-1.0)
		},
		Status: func() (optimize.Status, error) {
			if ctx.Err() != nil {
				return optimize.RuntimeLimit, nil
			}
			return optimize.NotTerminated, nil
		},
	}

	x0 := make([]float64, n)
	for i := range x0 {
		x0[i] = 1.0 / float64(n)
	}

	settings := &optimize.Settings{
		MajorIterations: so.opts.MaxIterations,
		Runtime:         so.opts.Timeout,
		Converger: &optimize.FunctionConverge{
			Absolute:   so.opts.Tolerance,
			Iterations: 100,
		},
	}

	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, 0, "", fmt.Errorf("optimization cancelled: %w", ctxErr)
	}
	if err != nil && result == nil {
		return nil, 0, "", fmt.Errorf("optimization failed: %w", err)
	}

	status := StatusConverged
	if !successStatuses[result.Status] {
		status = result.Status.String()
		so.log.Debug().
			Str("status", status).
			Int("iterations", result.Stats.MajorIterations).
			Msg("Nelder-Mead stopped early, continuing with refinement")
	}

	return result.X, result.Stats.MajorIterations, status, nil
}

// startingPoint picks the candidate with the highest defined Sharpe ratio
// among the Nelder-Mead solution, equal weights and each single asset.
func (so *SharpeOptimizer) startingPoint(m *returns.Moments, x []float64) []float64 {
	n := m.Dim()
	candidates := make([][]float64, 0, n+2)
	if w, _ := normalizeWeights(x); w != nil {
		candidates = append(candidates, w)
	}
	equal := make([]float64, n)
	for i := range equal {
		equal[i] = 1.0 / float64(n)
	}
	candidates = append(candidates, equal)
	for i := 0; i < n; i++ {
		vertex := make([]float64, n)
		vertex[i] = 1
		candidates = append(candidates, vertex)
	}

	best := candidates[0]
	bestSharpe := math.Inf(-1)
	for _, c := range candidates {
		perf, err := m.Performance(c, so.opts.RiskFreeRate)
		if err != nil {
			continue
		}
		if perf.Sharpe > bestSharpe {
			best = c
			bestSharpe = perf.Sharpe
		}
	}
	return best
}

// refine runs projected-gradient ascent on the simplex from w until the
// stationarity residual falls below tolerance or the iteration budget is
// spent. It returns the final weights and residual.
func (so *SharpeOptimizer) refine(ctx context.Context, m *returns.Moments, w []float64) ([]float64, float64, int, error) {
	n := m.Dim()
	rf := so.opts.RiskFreeRate
	tol := so.opts.StationarityTolerance

	grad := make([]float64, n)
	sharpe, err := m.SharpeGradient(grad, w, rf)
	if err != nil {
		var degenerate returns.DegenerateVarianceError
		if errors.As(err, &degenerate) {
			return nil, 0, 0, err
		}
		return nil, 0, 0, fmt.Errorf("failed to evaluate gradient: %w", err)
	}

	step := 1.0
	trial := make([]float64, n)
	iter := 0
	for ; iter < so.opts.MaxIterations; iter++ {
		if stationarityResidual(w, grad) <= tol {
			break
		}
		if ctx.Err() != nil {
			return nil, 0, iter, fmt.Errorf("optimization cancelled: %w", ctx.Err())
		}

		accepted := false
		for b := 0; b < maxBacktrack; b++ {
			for i := range trial {
				trial[i] = w[i] + step*grad[i]
			}
			cand := projectToSimplex(trial)

			perf, err := m.Performance(cand, rf)
			if err == nil {
				diff := make([]float64, n)
				floats.SubTo(diff, cand, w)
				if perf.Sharpe >= sharpe+armijo*floats.Dot(grad, diff) && floats.Norm(diff, math.Inf(1)) > 0 {
					w = cand
					accepted = true
					break
				}
			}
			step /= 2
		}
		if !accepted {
			break
		}

		sharpe, err = m.SharpeGradient(grad, w, rf)
		if err != nil {
			return nil, 0, iter, fmt.Errorf("failed to evaluate gradient: %w", err)
		}
		step = math.Min(step*2, maxStep)
	}

	return w, stationarityResidual(w, grad), iter, nil
}

// finish renormalizes weights, evaluates their performance and fills in alloc.
func (so *SharpeOptimizer) finish(
	m *returns.Moments,
	alloc *Allocation,
	weights []float64,
	status string,
	iterations int,
	residual float64,
) (*Allocation, error) {
	w, _ := normalizeWeights(weights)
	if w == nil {
		return nil, fmt.Errorf("invalid weight sum %v", floats.Sum(weights))
	}

	perf, err := m.Performance(w, so.opts.RiskFreeRate)
	if err != nil {
		return nil, err
	}

	alloc.Weights = w
	alloc.Performance = perf
	alloc.Converged = status == StatusConverged
	alloc.Status = status
	alloc.Iterations = iterations
	alloc.Stationarity = residual

	so.log.Debug().
		Float64("return", perf.Return).
		Float64("volatility", perf.Volatility).
		Float64("sharpe", perf.Sharpe).
		Int("iterations", iterations).
		Msg("Allocation computed")

	return alloc, nil
}
