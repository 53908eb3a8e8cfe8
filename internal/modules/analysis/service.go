// Package analysis runs the allocation optimizer and the risk clustering over
// one historical window and assembles their results.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/modules/clustering"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/returns"
)

const (
	// histogramBins is the number of return-distribution buckets in full reports.
	histogramBins = 50
	// rollingWindow is the trailing window, in trading days, of the rolling volatility chart.
	rollingWindow = 21
)

// PriceSource loads aligned price history.
type PriceSource interface {
	LoadPriceTable(ctx context.Context, symbols []string, start, end time.Time) (returns.PriceTable, error)
	Categories(ctx context.Context, symbols []string) (map[string]string, error)
}

// Mode selects which parts of a report are computed.
type Mode int

const (
	ModeAllocation Mode = 1 << iota
	ModeClustering
	ModeCharts

	ModeFull = ModeAllocation | ModeClustering | ModeCharts
)

// Service orchestrates an analysis run.
type Service struct {
	cfg    *config.Config
	prices PriceSource
	log    zerolog.Logger
}

// NewService creates an analysis service. prices may be nil, in which case
// every request must carry inline prices.
func NewService(cfg *config.Config, prices PriceSource, log zerolog.Logger) *Service {
	return &Service{
		cfg:    cfg,
		prices: prices,
		log:    log.With().Str("service", "analysis").Logger(),
	}
}

// Run computes every section of the report.
func (s *Service) Run(ctx context.Context, req Request) (*Report, error) {
	return s.RunMode(ctx, req, ModeFull)
}

// RunMode computes the sections selected by mode.
//
// Optimizer non-convergence does not fail the run: the report carries the
// last iterate with Converged set to false and a warning.
func (s *Service) RunMode(ctx context.Context, req Request, mode Mode) (*Report, error) {
	started := time.Now()
	runID := uuid.New().String()
	log := s.log.With().Str("run_id", runID).Logger()

	symbols, err := s.resolveSymbols(req.Symbols)
	if err != nil {
		return nil, err
	}

	table, err := s.loadPrices(ctx, req, symbols)
	if err != nil {
		return nil, err
	}

	var opts []returns.Option
	if req.ForwardFill {
		opts = append(opts, returns.WithForwardFill())
	}
	series, err := returns.ComputeReturns(table, symbols, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to compute returns: %w", err)
	}

	report := &Report{
		RunID:        runID,
		Symbols:      symbols,
		Observations: series.Len(),
	}
	if series.Len() > 0 {
		report.Start = series.Dates[0]
		report.End = series.Dates[series.Len()-1]
	}

	riskFree := s.cfg.RiskFreeRate
	if req.RiskFreeRate != nil {
		riskFree = *req.RiskFreeRate
	}
	clusters := req.Clusters
	if clusters == 0 {
		clusters = s.cfg.ClusterCount
	}
	seed := s.cfg.ClusterSeed
	if req.Seed != nil {
		seed = *req.Seed
	}

	var (
		alloc      *optimization.Allocation
		clusterRes *clustering.Result
		warnings   []string
	)

	g, gctx := errgroup.WithContext(ctx)

	if mode&ModeAllocation != 0 {
		g.Go(func() error {
			optimizer := optimization.NewSharpeOptimizer(optimization.OptimizerOptions{
				RiskFreeRate:  riskFree,
				MaxIterations: s.cfg.OptimizerMaxIterations,
				Tolerance:     s.cfg.OptimizerTolerance,
				Timeout:       s.cfg.OptimizerTimeout,
			}, log)

			result, err := optimizer.Optimize(gctx, series)
			var nonConv optimization.NonConvergenceError
			if errors.As(err, &nonConv) {
				alloc = nonConv.Allocation
				warnings = append(warnings, fmt.Sprintf("allocation is a best-effort result: %v", err))
				return nil
			}
			if err != nil {
				return fmt.Errorf("allocation failed: %w", err)
			}
			alloc = result
			return nil
		})
	}

	if mode&ModeClustering != 0 {
		g.Go(func() error {
			analyzer := clustering.NewAnalyzer(clustering.Options{
				Clusters:               clusters,
				Seed:                   seed,
				DiagnosticRiskFreeRate: s.cfg.DiagnosticRiskFreeRate,
			}, log)

			result, err := analyzer.Analyze(gctx, series)
			if err != nil {
				return fmt.Errorf("clustering failed: %w", err)
			}
			clusterRes = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Warn().Err(err).Msg("Analysis failed")
		return nil, err
	}

	report.Allocation = alloc
	report.Clustering = clusterRes
	report.Warnings = warnings

	if alloc != nil {
		report.Holdings = alloc.Significant(s.cfg.MinDisplayWeight)
		categories := s.categories(ctx, req, symbols)
		if len(categories) > 0 {
			report.CategoryWeights = alloc.ByCategory(categories)
		}
	}

	if mode&ModeCharts != 0 && series.Len() > 0 {
		s.addCharts(report, series, log)
	}

	report.DurationMs = time.Since(started).Milliseconds()
	event := log.Info().
		Strs("symbols", symbols).
		Int("observations", report.Observations).
		Int64("duration_ms", report.DurationMs)
	if alloc != nil {
		event = event.Float64("sharpe", alloc.Performance.Sharpe).Bool("converged", alloc.Converged)
	}
	if clusterRes != nil {
		event = event.Str("recommended", clusterRes.Recommended)
	}
	event.Msg("Analysis complete")

	return report, nil
}

func (s *Service) resolveSymbols(requested []string) ([]string, error) {
	if len(requested) == 0 {
		requested = s.cfg.DefaultSymbols
	}
	seen := make(map[string]bool, len(requested))
	symbols := make([]string, 0, len(requested))
	for _, sym := range requested {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		symbols = append(symbols, sym)
	}
	if len(symbols) == 0 {
		return nil, ValidationError{Field: "symbols", Message: "at least one symbol is required"}
	}
	return symbols, nil
}

func (s *Service) loadPrices(ctx context.Context, req Request, symbols []string) (returns.PriceTable, error) {
	if req.Prices != nil {
		table := returns.NewPriceTable(req.Prices.Dates)
		for sym, col := range req.Prices.Prices {
			table.Set(strings.ToUpper(strings.TrimSpace(sym)), col)
		}
		if err := table.Validate(); err != nil {
			return returns.PriceTable{}, ValidationError{Field: "prices", Message: err.Error()}
		}
		return table, nil
	}
	if s.prices == nil {
		return returns.PriceTable{}, ValidationError{Field: "prices", Message: "no price history configured, prices must be supplied inline"}
	}

	end := req.End
	if end.IsZero() {
		end = time.Now().UTC()
	}
	start := req.Start
	if start.IsZero() {
		start = end.AddDate(0, 0, -s.cfg.LookbackDays)
	}
	if !start.Before(end) {
		return returns.PriceTable{}, ValidationError{Field: "start", Message: "start must be before end"}
	}

	table, err := s.prices.LoadPriceTable(ctx, symbols, start, end)
	if err != nil {
		return returns.PriceTable{}, fmt.Errorf("failed to load prices: %w", err)
	}
	return table, nil
}

// categories merges request-supplied categories over stored ones.
func (s *Service) categories(ctx context.Context, req Request, symbols []string) map[string]string {
	out := make(map[string]string)
	if s.prices != nil {
		stored, err := s.prices.Categories(ctx, symbols)
		if err != nil {
			s.log.Warn().Err(err).Msg("Failed to load categories")
		}
		for k, v := range stored {
			out[k] = v
		}
	}
	for k, v := range req.Categories {
		out[strings.ToUpper(k)] = v
	}
	return out
}

func (s *Service) addCharts(report *Report, series *returns.ReturnSeries, log zerolog.Logger) {
	report.AnnualReturns = series.CompoundAnnualReturns()
	report.Cumulative = series.CumulativeReturns()
	report.RollingVolatility = series.RollingVolatility(rollingWindow)

	edges, counts, err := series.Histogram(histogramBins)
	if err != nil {
		log.Debug().Err(err).Msg("Skipping histogram")
	} else {
		report.HistogramBin = edges
		report.Histogram = counts
	}

	m, err := returns.NewMoments(series)
	if err != nil {
		log.Debug().Err(err).Msg("Skipping correlation matrix")
		return
	}
	corr, err := m.Correlation()
	if err != nil {
		log.Debug().Err(err).Msg("Skipping correlation matrix")
		return
	}
	report.Correlation = corr
}
