// Package handlers provides HTTP handlers for the price history.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/modules/historical"
	"github.com/aristath/frontier/pkg/render"
)

const (
	defaultPriceLimit = 252
	maxUploadBytes    = 32 << 20
)

// Handler handles price history HTTP requests
type Handler struct {
	repo *historical.PriceRepository
	log  zerolog.Logger
}

// NewHandler creates a new price history handler
func NewHandler(repo *historical.PriceRepository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "history").Logger(),
	}
}

// priceInput is the JSON form of an uploaded bar.
type priceInput struct {
	Date     string   `json:"date"`
	Open     float64  `json:"open"`
	High     float64  `json:"high"`
	Low      float64  `json:"low"`
	Close    float64  `json:"close"`
	AdjClose *float64 `json:"adj_close,omitempty"`
	Volume   *int64   `json:"volume,omitempty"`
}

// HandleListSymbols handles GET /api/history/symbols
func (h *Handler) HandleListSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.repo.Symbols(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list symbols")
		render.Error(w, r, http.StatusInternalServerError, "Failed to list symbols", "")
		return
	}
	if symbols == nil {
		symbols = []string{}
	}

	render.Respond(w, r, http.StatusOK, map[string]interface{}{
		"data": symbols,
		"metadata": map[string]interface{}{
			"count":     len(symbols),
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetPrices handles GET /api/history/{symbol}/prices
func (h *Handler) HandleGetPrices(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))

	limit := defaultPriceLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			render.Error(w, r, http.StatusBadRequest, "Invalid limit", raw)
			return
		}
		limit = n
	}

	prices, err := h.repo.GetDailyPrices(r.Context(), symbol, limit)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to get prices")
		render.Error(w, r, http.StatusInternalServerError, "Failed to get prices", "")
		return
	}
	if len(prices) == 0 {
		render.Error(w, r, http.StatusNotFound, "No prices stored for symbol", symbol)
		return
	}

	render.Respond(w, r, http.StatusOK, map[string]interface{}{
		"data": prices,
		"metadata": map[string]interface{}{
			"symbol":    symbol,
			"count":     len(prices),
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleImportPrices handles POST /api/history/{symbol}/prices.
// A text/csv body is parsed with historical.ParseCSV; anything else is read
// as a JSON array of bars.
func (h *Handler) HandleImportPrices(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	body := http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var prices []historical.DailyPrice
	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/csv") {
		parsed, err := historical.ParseCSV(body)
		if err != nil {
			render.Error(w, r, http.StatusBadRequest, "Invalid CSV", err.Error())
			return
		}
		prices = parsed
	} else {
		var inputs []priceInput
		if err := json.NewDecoder(body).Decode(&inputs); err != nil {
			render.Error(w, r, http.StatusBadRequest, "Invalid request body", err.Error())
			return
		}
		for _, in := range inputs {
			date, err := time.Parse("2006-01-02", in.Date)
			if err != nil {
				render.Error(w, r, http.StatusBadRequest, "Invalid date", in.Date)
				return
			}
			prices = append(prices, historical.DailyPrice{
				Date:     date,
				Open:     in.Open,
				High:     in.High,
				Low:      in.Low,
				Close:    in.Close,
				AdjClose: in.AdjClose,
				Volume:   in.Volume,
			})
		}
	}

	if err := h.repo.SavePrices(r.Context(), symbol, prices); err != nil {
		h.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to import prices")
		render.Error(w, r, http.StatusUnprocessableEntity, "Failed to import prices", err.Error())
		return
	}

	h.log.Info().Str("symbol", symbol).Int("rows", len(prices)).Msg("Imported prices")
	render.Respond(w, r, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"symbol":   symbol,
			"imported": len(prices),
		},
	})
}

// HandlePutInstrument handles PUT /api/history/{symbol}/instrument
func (h *Handler) HandlePutInstrument(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))

	var inst historical.Instrument
	if err := json.NewDecoder(r.Body).Decode(&inst); err != nil {
		render.Error(w, r, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	inst.Symbol = symbol

	if err := h.repo.SaveInstrument(r.Context(), inst); err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to save instrument")
		render.Error(w, r, http.StatusInternalServerError, "Failed to save instrument", "")
		return
	}

	render.Respond(w, r, http.StatusOK, map[string]interface{}{"data": inst})
}
