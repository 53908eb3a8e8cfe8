package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/modules/analysis"
	"github.com/aristath/frontier/internal/modules/returns"
)

func testConfig() *config.Config {
	return &config.Config{
		OptimizerMaxIterations: 5000,
		OptimizerTolerance:     1e-10,
		MinDisplayWeight:       0.01,
		ClusterCount:           2,
		ClusterSeed:            42,
		DiagnosticRiskFreeRate: 0.05,
		LookbackDays:           365,
	}
}

func setupRouter(runner Runner) *chi.Mux {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	handler := NewHandler(runner, logger)

	router := chi.NewRouter()
	router.Route("/api", handler.RegisterRoutes)
	return router
}

// inlinePrices builds three assets of oscillating prices with distinct drifts.
func inlinePrices(rows int) *InlinePrices {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &InlinePrices{Series: map[string][]*float64{}}
	for i := 0; i < rows; i++ {
		p.Dates = append(p.Dates, start.AddDate(0, 0, i).Format("2006-01-02"))
	}
	params := map[string][2]float64{
		"AAA": {0.0008, 0.9},
		"BBB": {0.0005, 2.3},
		"CCC": {0.0002, 3.7},
	}
	for sym, pr := range params {
		col := make([]*float64, rows)
		for i := range col {
			v := 100 * math.Exp(pr[0]*float64(i)) * (1 + 0.01*math.Sin(pr[1]*float64(i)))
			col[i] = &v
		}
		p.Series[sym] = col
	}
	return p
}

func postJSON(t *testing.T, router http.Handler, path string, body interface{}, accept string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleOptimize(t *testing.T) {
	router := setupRouter(analysis.NewService(testConfig(), nil, zerolog.Nop()))

	w := postJSON(t, router, "/api/analysis/optimize", RunRequest{
		Symbols: []string{"AAA", "BBB", "CCC"},
		Prices:  inlinePrices(120),
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp struct {
		Data     analysis.Report        `json:"data"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	require.NotNil(t, resp.Data.Allocation)
	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, resp.Data.Allocation.Symbols)
	sum := 0.0
	for _, wt := range resp.Data.Allocation.Weights {
		assert.GreaterOrEqual(t, wt, 0.0)
		sum += wt
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.Nil(t, resp.Data.Clustering)
	assert.Equal(t, resp.Data.RunID, resp.Metadata["run_id"])
}

func TestHandleClusters(t *testing.T) {
	router := setupRouter(analysis.NewService(testConfig(), nil, zerolog.Nop()))

	w := postJSON(t, router, "/api/analysis/clusters", RunRequest{
		Symbols:  []string{"AAA", "BBB", "CCC"},
		Prices:   inlinePrices(120),
		Clusters: 3,
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data analysis.Report `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data.Clustering)
	assert.Equal(t, 3, resp.Data.Clustering.Clusters)
	assert.Len(t, resp.Data.Clustering.Assignment, 3)
	assert.NotEmpty(t, resp.Data.Clustering.Recommended)
	assert.Nil(t, resp.Data.Allocation)
}

func TestHandleReport_Msgpack(t *testing.T) {
	router := setupRouter(analysis.NewService(testConfig(), nil, zerolog.Nop()))

	w := postJSON(t, router, "/api/analysis/report", RunRequest{
		Symbols: []string{"AAA", "BBB", "CCC"},
		Prices:  inlinePrices(120),
	}, "application/msgpack")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/msgpack", w.Header().Get("Content-Type"))

	var resp struct {
		Data analysis.Report `msgpack:"data"`
	}
	require.NoError(t, msgpack.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data.Allocation)
	require.NotNil(t, resp.Data.Clustering)
	assert.Len(t, resp.Data.Correlation, 3)
	assert.Equal(t, 119, resp.Data.Observations)
}

func TestHandle_RequestErrors(t *testing.T) {
	router := setupRouter(analysis.NewService(testConfig(), nil, zerolog.Nop()))

	tests := []struct {
		name           string
		path           string
		body           string
		expectedStatus int
	}{
		{
			name:           "malformed JSON",
			path:           "/api/analysis/optimize",
			body:           `{"symbols": [`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad start date",
			path:           "/api/analysis/optimize",
			body:           `{"symbols": ["AAA"], "start": "01/02/2024"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "negative clusters",
			path:           "/api/analysis/clusters",
			body:           `{"symbols": ["AAA"], "clusters": -1}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "no price source",
			path:           "/api/analysis/optimize",
			body:           `{"symbols": ["AAA"]}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad inline date",
			path:           "/api/analysis/optimize",
			body:           `{"symbols": ["AAA"], "prices": {"dates": ["yesterday"], "series": {"AAA": [1]}}}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "short price column",
			path:           "/api/analysis/optimize",
			body:           `{"symbols": ["A", "B"], "prices": {"dates": ["2024-01-01", "2024-01-02", "2024-01-03"], "series": {"A": [1, 2, 3], "B": [1, 2]}}}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unsorted dates",
			path:           "/api/analysis/report",
			body:           `{"symbols": ["A"], "prices": {"dates": ["2024-01-03", "2024-01-01", "2024-01-02"], "series": {"A": [1, 2, 3]}}}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "duplicate dates",
			path:           "/api/analysis/clusters",
			body:           `{"symbols": ["A"], "prices": {"dates": ["2024-01-01", "2024-01-01", "2024-01-02"], "series": {"A": [1, 2, 3]}}}`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestHandleClusters_MoreClustersThanAssets(t *testing.T) {
	router := setupRouter(analysis.NewService(testConfig(), nil, zerolog.Nop()))

	w := postJSON(t, router, "/api/analysis/clusters", RunRequest{
		Symbols:  []string{"AAA", "BBB", "CCC"},
		Prices:   inlinePrices(60),
		Clusters: 5,
	}, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHandleOptimize_MissingPricesAreGaps(t *testing.T) {
	router := setupRouter(analysis.NewService(testConfig(), nil, zerolog.Nop()))

	prices := inlinePrices(60)
	prices.Series["BBB"][10] = nil
	prices.Series["BBB"][11] = nil

	w := postJSON(t, router, "/api/analysis/optimize", RunRequest{
		Symbols: []string{"AAA", "BBB", "CCC"},
		Prices:  prices,
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data analysis.Report `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	// Rows 10, 11 and 12 each touch a missing price.
	assert.Equal(t, 56, resp.Data.Observations)
}

type stubRunner struct {
	err error
}

func (s stubRunner) RunMode(context.Context, analysis.Request, analysis.Mode) (*analysis.Report, error) {
	return nil, s.err
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", analysis.ValidationError{Field: "symbols", Message: "required"}, http.StatusBadRequest},
		{"insufficient data", fmt.Errorf("clustering failed: %w", returns.InsufficientDataError{Reason: "k > n"}), http.StatusUnprocessableEntity},
		{"degenerate", returns.DegenerateVarianceError{}, http.StatusUnprocessableEntity},
		{"deadline", fmt.Errorf("allocation failed: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, statusFor(tt.err))

			router := setupRouter(stubRunner{err: tt.err})
			w := postJSON(t, router, "/api/analysis/report", RunRequest{Symbols: []string{"AAA"}}, "")
			assert.Equal(t, tt.expected, w.Code)
		})
	}
}
