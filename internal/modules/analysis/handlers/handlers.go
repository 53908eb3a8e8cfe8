// Package handlers provides HTTP handlers for allocation and clustering runs.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/modules/analysis"
	"github.com/aristath/frontier/internal/modules/returns"
	"github.com/aristath/frontier/pkg/render"
)

const maxBodyBytes = 16 << 20

// Runner is the part of analysis.Service the handlers use.
type Runner interface {
	RunMode(ctx context.Context, req analysis.Request, mode analysis.Mode) (*analysis.Report, error)
}

// Handler handles analysis HTTP requests
type Handler struct {
	service Runner
	log     zerolog.Logger
}

// NewHandler creates a new analysis handler
func NewHandler(service Runner, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "analysis").Logger(),
	}
}

// RunRequest is the request body shared by all analysis endpoints.
type RunRequest struct {
	Symbols      []string          `json:"symbols"`
	Start        string            `json:"start,omitempty"`
	End          string            `json:"end,omitempty"`
	RiskFreeRate *float64          `json:"risk_free_rate,omitempty"`
	Clusters     int               `json:"clusters,omitempty"`
	Seed         *uint64           `json:"seed,omitempty"`
	Categories   map[string]string `json:"categories,omitempty"`
	ForwardFill  bool              `json:"forward_fill,omitempty"`
	Prices       *InlinePrices     `json:"prices,omitempty"`
}

// InlinePrices carries a price table in the request body. A null entry is a
// missing price.
type InlinePrices struct {
	Dates  []string              `json:"dates"`
	Series map[string][]*float64 `json:"series"`
}

func (p *InlinePrices) toTable() (*returns.PriceTable, error) {
	dates := make([]time.Time, len(p.Dates))
	for i, raw := range p.Dates {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, analysis.ValidationError{Field: "prices.dates", Message: "dates must be YYYY-MM-DD"}
		}
		dates[i] = d
	}

	table := returns.NewPriceTable(dates)
	for symbol, values := range p.Series {
		col := make([]float64, len(values))
		for i, v := range values {
			if v == nil {
				col[i] = math.NaN()
			} else {
				col[i] = *v
			}
		}
		table.Set(symbol, col)
	}
	return &table, nil
}

func (rr RunRequest) toRequest() (analysis.Request, error) {
	req := analysis.Request{
		Symbols:      rr.Symbols,
		RiskFreeRate: rr.RiskFreeRate,
		Clusters:     rr.Clusters,
		Seed:         rr.Seed,
		Categories:   rr.Categories,
		ForwardFill:  rr.ForwardFill,
	}

	if rr.Start != "" {
		start, err := time.Parse("2006-01-02", rr.Start)
		if err != nil {
			return req, analysis.ValidationError{Field: "start", Message: "start must be YYYY-MM-DD"}
		}
		req.Start = start
	}
	if rr.End != "" {
		end, err := time.Parse("2006-01-02", rr.End)
		if err != nil {
			return req, analysis.ValidationError{Field: "end", Message: "end must be YYYY-MM-DD"}
		}
		req.End = end
	}
	if rr.Clusters < 0 {
		return req, analysis.ValidationError{Field: "clusters", Message: "clusters must not be negative"}
	}
	if rr.Prices != nil {
		table, err := rr.Prices.toTable()
		if err != nil {
			return req, err
		}
		req.Prices = table
	}
	return req, nil
}

// HandleOptimize handles POST /api/analysis/optimize
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, analysis.ModeAllocation)
}

// HandleClusters handles POST /api/analysis/clusters
func (h *Handler) HandleClusters(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, analysis.ModeClustering)
}

// HandleReport handles POST /api/analysis/report
func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, analysis.ModeFull)
}

func (h *Handler) handle(w http.ResponseWriter, r *http.Request, mode analysis.Mode) {
	var body RunRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		render.Error(w, r, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	req, err := body.toRequest()
	if err != nil {
		render.Error(w, r, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}

	report, err := h.service.RunMode(r.Context(), req, mode)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.log.Error().Err(err).Msg("Analysis failed")
		} else {
			h.log.Debug().Err(err).Int("status", status).Msg("Analysis rejected")
		}
		render.Error(w, r, status, http.StatusText(status), err.Error())
		return
	}

	render.Respond(w, r, http.StatusOK, map[string]interface{}{
		"data": report,
		"metadata": map[string]interface{}{
			"run_id":    report.RunID,
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// statusFor maps analysis errors to HTTP status codes.
func statusFor(err error) int {
	var validation analysis.ValidationError
	var insufficient returns.InsufficientDataError
	var degenerate returns.DegenerateVarianceError

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &insufficient), errors.As(err, &degenerate):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
