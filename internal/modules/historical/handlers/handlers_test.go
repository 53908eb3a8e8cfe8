package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/frontier/internal/modules/historical"
	testingutil "github.com/aristath/frontier/internal/testing"
)

func setupRouter(t *testing.T) (*chi.Mux, *historical.PriceRepository) {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	db, _ := testingutil.NewTestDB(t, "history")

	repo := historical.NewPriceRepository(db.Conn(), logger)
	handler := NewHandler(repo, logger)

	router := chi.NewRouter()
	router.Route("/api", handler.RegisterRoutes)
	return router, repo
}

func seed(t *testing.T, repo *historical.PriceRepository, symbol string, closes ...float64) {
	t.Helper()
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	prices := make([]historical.DailyPrice, len(closes))
	for i, c := range closes {
		prices[i] = historical.DailyPrice{Date: start.AddDate(0, 0, i), Close: c}
	}
	require.NoError(t, repo.SavePrices(context.Background(), symbol, prices))
}

func TestHandleGetPrices(t *testing.T) {
	router, repo := setupRouter(t)
	seed(t, repo, "AAPL", 100, 101, 102, 103)

	tests := []struct {
		name           string
		path           string
		expectedStatus int
		expectedCount  int
	}{
		{name: "all rows", path: "/api/history/AAPL/prices", expectedStatus: http.StatusOK, expectedCount: 4},
		{name: "lowercase symbol", path: "/api/history/aapl/prices?limit=2", expectedStatus: http.StatusOK, expectedCount: 2},
		{name: "invalid limit", path: "/api/history/AAPL/prices?limit=zero", expectedStatus: http.StatusBadRequest},
		{name: "unknown symbol", path: "/api/history/MSFT/prices", expectedStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus != http.StatusOK {
				return
			}

			var response struct {
				Data []historical.DailyPrice `json:"data"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			require.Len(t, response.Data, tt.expectedCount)
			assert.Equal(t, 103.0, response.Data[0].Close, "newest first")
		})
	}
}

func TestHandleImportPrices_CSV(t *testing.T) {
	router, repo := setupRouter(t)

	csvBody := "Date,Open,High,Low,Close,Adj Close,Volume\n" +
		"2024-01-02,10,11,9,10.5,10.4,1000\n" +
		"2024-01-03,10.5,11,10,10.8,10.7,1200\n"
	req := httptest.NewRequest(http.MethodPost, "/api/history/ko/prices", strings.NewReader(csvBody))
	req.Header.Set("Content-Type", "text/csv")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	prices, err := repo.GetDailyPrices(context.Background(), "KO", 10)
	require.NoError(t, err)
	require.Len(t, prices, 2)
	require.NotNil(t, prices[0].AdjClose)
	assert.Equal(t, 10.7, *prices[0].AdjClose)
}

func TestHandleImportPrices_JSON(t *testing.T) {
	router, repo := setupRouter(t)

	body := `[{"date":"2024-02-01","close":50},{"date":"2024-02-02","close":51}]`
	req := httptest.NewRequest(http.MethodPost, "/api/history/PEP/prices", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	symbols, err := repo.Symbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"PEP"}, symbols)
}

func TestHandleImportPrices_Rejects(t *testing.T) {
	router, _ := setupRouter(t)

	tests := []struct {
		name           string
		contentType    string
		body           string
		expectedStatus int
	}{
		{name: "malformed json", contentType: "application/json", body: "{", expectedStatus: http.StatusBadRequest},
		{name: "bad date", contentType: "application/json", body: `[{"date":"02/01/2024","close":1}]`, expectedStatus: http.StatusBadRequest},
		{name: "csv without close", contentType: "text/csv", body: "Date,Open\n2024-01-01,1\n", expectedStatus: http.StatusBadRequest},
		{name: "non-positive close", contentType: "application/json", body: `[{"date":"2024-01-01","close":0}]`, expectedStatus: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/history/X/prices", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestHandleListSymbolsAndInstrument(t *testing.T) {
	router, repo := setupRouter(t)
	seed(t, repo, "MSFT", 300, 301)
	seed(t, repo, "AAPL", 180, 181)

	req := httptest.NewRequest(http.MethodGet, "/api/history/symbols", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Data []string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, []string{"AAPL", "MSFT"}, response.Data)

	req = httptest.NewRequest(http.MethodPut, "/api/history/msft/instrument",
		strings.NewReader(`{"name":"Microsoft","category":"Mega Cap"}`))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	categories, err := repo.Categories(context.Background(), []string{"MSFT", "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"MSFT": "Mega Cap"}, categories)
}
