// Package historical reads and writes the daily price history the analyses
// run on.
package historical

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/modules/returns"
)

// DailyPrice is one symbol's OHLCV bar for a trading day.
type DailyPrice struct {
	Date     time.Time `json:"date" msgpack:"date"`
	Open     float64   `json:"open" msgpack:"open"`
	High     float64   `json:"high" msgpack:"high"`
	Low      float64   `json:"low" msgpack:"low"`
	Close    float64   `json:"close" msgpack:"close"`
	AdjClose *float64  `json:"adj_close,omitempty" msgpack:"adj_close,omitempty"`
	Volume   *int64    `json:"volume,omitempty" msgpack:"volume,omitempty"`
}

// Instrument is descriptive data about a symbol.
type Instrument struct {
	Symbol   string `json:"symbol" msgpack:"symbol"`
	Name     string `json:"name" msgpack:"name"`
	Category string `json:"category" msgpack:"category"`
}

// PriceRepository provides access to historical price data
type PriceRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPriceRepository creates a repository over a database carrying the
// history schema.
func NewPriceRepository(db *sql.DB, log zerolog.Logger) *PriceRepository {
	return &PriceRepository{
		db:  db,
		log: log.With().Str("component", "price_repository").Logger(),
	}
}

// dayUnix normalizes t to UTC midnight and returns it as a Unix timestamp.
func dayUnix(t time.Time) int64 {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
}

// LoadPriceTable builds a PriceTable over [start, end] for symbols, using the
// adjusted close when present and the close otherwise. The table's dates are
// the union of all symbols' dates; a symbol without a row on some date gets
// NaN there.
func (r *PriceRepository) LoadPriceTable(ctx context.Context, symbols []string, start, end time.Time) (returns.PriceTable, error) {
	if len(symbols) == 0 {
		return returns.PriceTable{}, fmt.Errorf("no symbols requested")
	}
	if end.Before(start) {
		return returns.PriceTable{}, fmt.Errorf("end date %s is before start date %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(symbols)), ",")
	query := `
		SELECT symbol, date, close, adj_close
		FROM daily_prices
		WHERE symbol IN (` + placeholders + `) AND date >= ? AND date <= ?
		ORDER BY date ASC
	`
	args := make([]interface{}, 0, len(symbols)+2)
	for _, s := range symbols {
		args = append(args, s)
	}
	args = append(args, dayUnix(start), dayUnix(end))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return returns.PriceTable{}, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	bySymbol := make(map[string]map[int64]float64, len(symbols))
	for _, s := range symbols {
		bySymbol[s] = make(map[int64]float64)
	}
	seen := make(map[int64]struct{})

	for rows.Next() {
		var symbol string
		var dateUnix int64
		var closePrice float64
		var adjClose sql.NullFloat64

		if err := rows.Scan(&symbol, &dateUnix, &closePrice, &adjClose); err != nil {
			return returns.PriceTable{}, fmt.Errorf("failed to scan daily price: %w", err)
		}

		price := closePrice
		if adjClose.Valid && adjClose.Float64 > 0 {
			price = adjClose.Float64
		}
		bySymbol[symbol][dateUnix] = price
		seen[dateUnix] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return returns.PriceTable{}, fmt.Errorf("error iterating daily prices: %w", err)
	}

	days := make([]int64, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	dates := make([]time.Time, len(days))
	for i, d := range days {
		dates[i] = time.Unix(d, 0).UTC()
	}

	table := returns.NewPriceTable(dates)
	for _, s := range symbols {
		column := make([]float64, len(days))
		for i, d := range days {
			if p, ok := bySymbol[s][d]; ok {
				column[i] = p
			} else {
				column[i] = math.NaN()
			}
		}
		table.Set(s, column)
		if len(bySymbol[s]) == 0 {
			r.log.Warn().Str("symbol", s).Msg("No price history in requested window")
		}
	}

	r.log.Debug().
		Int("symbols", len(symbols)).
		Int("dates", len(dates)).
		Msg("Loaded price table")

	return table, nil
}

// GetDailyPrices returns the most recent limit bars for symbol, newest first.
func (r *PriceRepository) GetDailyPrices(ctx context.Context, symbol string, limit int) ([]DailyPrice, error) {
	query := `
		SELECT date, open, high, low, close, adj_close, volume
		FROM daily_prices
		WHERE symbol = ?
		ORDER BY date DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	var prices []DailyPrice
	for rows.Next() {
		var p DailyPrice
		var dateUnix int64
		var open, high, low sql.NullFloat64
		var adjClose sql.NullFloat64
		var volume sql.NullInt64

		if err := rows.Scan(&dateUnix, &open, &high, &low, &p.Close, &adjClose, &volume); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}

		p.Date = time.Unix(dateUnix, 0).UTC()
		p.Open = open.Float64
		p.High = high.Float64
		p.Low = low.Float64
		if adjClose.Valid {
			p.AdjClose = &adjClose.Float64
		}
		if volume.Valid {
			p.Volume = &volume.Int64
		}

		prices = append(prices, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}

	return prices, nil
}

// SavePrices upserts bars for symbol in a single transaction.
func (r *PriceRepository) SavePrices(ctx context.Context, symbol string, prices []DailyPrice) error {
	if symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if len(prices) == 0 {
		return nil
	}

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO daily_prices (symbol, date, open, high, low, close, adj_close, volume)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(symbol, date) DO UPDATE SET
				open = excluded.open,
				high = excluded.high,
				low = excluded.low,
				close = excluded.close,
				adj_close = excluded.adj_close,
				volume = excluded.volume
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, p := range prices {
			if !(p.Close > 0) || math.IsInf(p.Close, 0) {
				return fmt.Errorf("invalid close %v for %s on %s", p.Close, symbol, p.Date.Format("2006-01-02"))
			}
			var adjClose, volume interface{}
			if p.AdjClose != nil {
				adjClose = *p.AdjClose
			}
			if p.Volume != nil {
				volume = *p.Volume
			}
			if _, err := stmt.ExecContext(ctx, symbol, dayUnix(p.Date), p.Open, p.High, p.Low, p.Close, adjClose, volume); err != nil {
				return fmt.Errorf("failed to upsert %s on %s: %w", symbol, p.Date.Format("2006-01-02"), err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Debug().Str("symbol", symbol).Int("rows", len(prices)).Msg("Saved daily prices")
	return nil
}

// Symbols lists every symbol with stored prices, sorted.
func (r *PriceRepository) Symbols(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT symbol FROM daily_prices ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// SaveInstrument upserts descriptive data for a symbol.
func (r *PriceRepository) SaveInstrument(ctx context.Context, inst Instrument) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO instruments (symbol, name, category) VALUES (?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET name = excluded.name, category = excluded.category
	`, inst.Symbol, inst.Name, inst.Category)
	if err != nil {
		return fmt.Errorf("failed to save instrument %s: %w", inst.Symbol, err)
	}
	return nil
}

// Categories returns the stored category of each symbol that has one.
func (r *PriceRepository) Categories(ctx context.Context, symbols []string) (map[string]string, error) {
	out := make(map[string]string)
	if len(symbols) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(symbols)), ",")
	args := make([]interface{}, len(symbols))
	for i, s := range symbols {
		args[i] = s
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT symbol, category FROM instruments WHERE category IS NOT NULL AND category != '' AND symbol IN ("+placeholders+")",
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var symbol, category string
		if err := rows.Scan(&symbol, &category); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out[symbol] = category
	}
	return out, rows.Err()
}
