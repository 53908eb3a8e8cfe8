package historical

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ParseCSV reads daily bars in the common "Date,Open,High,Low,Close,Adj
// Close,Volume" layout. Column order is taken from the header and matched
// case-insensitively; Date and Close are required. Rows whose close is empty
// or "null" are skipped.
func ParseCSV(r io.Reader) ([]DailyPrice, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty CSV input")
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		key = strings.ReplaceAll(key, " ", "_")
		cols[key] = i
	}
	dateCol, ok := cols["date"]
	if !ok {
		return nil, fmt.Errorf("CSV header has no Date column")
	}
	closeCol, ok := cols["close"]
	if !ok {
		return nil, fmt.Errorf("CSV header has no Close column")
	}

	field := func(record []string, name string) (string, bool) {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return "", false
		}
		v := strings.TrimSpace(record[i])
		if v == "" || strings.EqualFold(v, "null") {
			return "", false
		}
		return v, true
	}
	parseFloat := func(record []string, name string) (float64, bool, error) {
		v, ok := field(record, name)
		if !ok {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false, fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
		return f, true, nil
	}

	var prices []DailyPrice
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if dateCol >= len(record) || closeCol >= len(record) {
			return nil, fmt.Errorf("line %d: too few fields", line)
		}

		if _, ok := field(record, "close"); !ok {
			continue
		}

		rawDate := strings.TrimSpace(record[dateCol])
		if len(rawDate) > 10 {
			// Drop any time-of-day suffix
			rawDate = rawDate[:10]
		}
		date, err := time.Parse("2006-01-02", rawDate)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid date %q: %w", line, record[dateCol], err)
		}

		p := DailyPrice{Date: date}
		var present bool
		if p.Close, _, err = parseFloat(record, "close"); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if p.Open, _, err = parseFloat(record, "open"); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if p.High, _, err = parseFloat(record, "high"); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if p.Low, _, err = parseFloat(record, "low"); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		var adj float64
		if adj, present, err = parseFloat(record, "adj_close"); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		} else if present {
			p.AdjClose = &adj
		}

		var vol float64
		if vol, present, err = parseFloat(record, "volume"); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		} else if present {
			v := int64(vol)
			p.Volume = &v
		}

		prices = append(prices, p)
	}

	return prices, nil
}
