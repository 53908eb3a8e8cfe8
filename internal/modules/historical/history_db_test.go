package historical

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/frontier/internal/modules/returns"
	testingutil "github.com/aristath/frontier/internal/testing"
)

func day(d int) time.Time {
	return time.Date(2023, 3, d, 0, 0, 0, 0, time.UTC)
}

func newRepo(t *testing.T) *PriceRepository {
	t.Helper()
	db, _ := testingutil.NewTestDB(t, "history")
	return NewPriceRepository(db.Conn(), zerolog.Nop())
}

func ptr(v float64) *float64 { return &v }

func TestLoadPriceTable_AlignsAndPrefersAdjustedClose(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SavePrices(ctx, "AAA", []DailyPrice{
		{Date: day(1), Close: 10, AdjClose: ptr(9.5)},
		{Date: day(2), Close: 11, AdjClose: ptr(10.5)},
		{Date: day(3), Close: 12},
	}))
	require.NoError(t, repo.SavePrices(ctx, "BBB", []DailyPrice{
		{Date: day(1), Close: 20},
		{Date: day(3), Close: 22},
	}))

	table, err := repo.LoadPriceTable(ctx, []string{"AAA", "BBB"}, day(1), day(3))
	require.NoError(t, err)

	require.Equal(t, []time.Time{day(1), day(2), day(3)}, table.Dates)
	assert.Equal(t, []float64{9.5, 10.5, 12}, table.Prices["AAA"])
	assert.Equal(t, 20.0, table.Prices["BBB"][0])
	assert.True(t, math.IsNaN(table.Prices["BBB"][1]))
	assert.Equal(t, 22.0, table.Prices["BBB"][2])
	require.NoError(t, table.Validate())

	// The gap day is dropped by the returns engine.
	series, err := returns.ComputeReturns(table, []string{"AAA", "BBB"})
	require.NoError(t, err)
	assert.Equal(t, 0, series.Len())
}

func TestLoadPriceTable_Window(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	var prices []DailyPrice
	for d := 1; d <= 10; d++ {
		prices = append(prices, DailyPrice{Date: day(d), Close: float64(100 + d)})
	}
	require.NoError(t, repo.SavePrices(ctx, "AAA", prices))

	table, err := repo.LoadPriceTable(ctx, []string{"AAA"}, day(3), day(5).Add(15*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []float64{103, 104, 105}, table.Prices["AAA"])
}

func TestLoadPriceTable_MissingSymbolIsAllNaN(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.SavePrices(ctx, "AAA", []DailyPrice{
		{Date: day(1), Close: 1}, {Date: day(2), Close: 2},
	}))

	table, err := repo.LoadPriceTable(ctx, []string{"AAA", "ZZZ"}, day(1), day(2))
	require.NoError(t, err)
	require.Len(t, table.Prices["ZZZ"], 2)
	for _, p := range table.Prices["ZZZ"] {
		assert.True(t, math.IsNaN(p))
	}

	_, err = returns.ComputeReturns(table, []string{"AAA", "ZZZ"})
	var insufficient returns.InsufficientDataError
	assert.ErrorAs(t, err, &insufficient)
}

func TestLoadPriceTable_Validation(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	_, err := repo.LoadPriceTable(ctx, nil, day(1), day(2))
	assert.Error(t, err)

	_, err = repo.LoadPriceTable(ctx, []string{"AAA"}, day(2), day(1))
	assert.Error(t, err)
}

func TestSavePrices_Upserts(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SavePrices(ctx, "AAA", []DailyPrice{{Date: day(1), Close: 1}}))
	require.NoError(t, repo.SavePrices(ctx, "AAA", []DailyPrice{{Date: day(1), Close: 2}}))

	prices, err := repo.GetDailyPrices(ctx, "AAA", 10)
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.Equal(t, 2.0, prices[0].Close)
	assert.Nil(t, prices[0].AdjClose)
}

func TestSavePrices_RejectsInvalidCloseAtomically(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	err := repo.SavePrices(ctx, "AAA", []DailyPrice{
		{Date: day(1), Close: 1},
		{Date: day(2), Close: math.NaN()},
	})
	require.Error(t, err)

	prices, err := repo.GetDailyPrices(ctx, "AAA", 10)
	require.NoError(t, err)
	assert.Empty(t, prices)

	assert.Error(t, repo.SavePrices(ctx, "", []DailyPrice{{Date: day(1), Close: 1}}))
}

func TestInstruments(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveInstrument(ctx, Instrument{Symbol: "AAPL", Name: "Apple", Category: "Mega Cap"}))
	require.NoError(t, repo.SaveInstrument(ctx, Instrument{Symbol: "XYZ", Name: "No category"}))
	require.NoError(t, repo.SaveInstrument(ctx, Instrument{Symbol: "AAPL", Name: "Apple", Category: "Large Cap"}))

	categories, err := repo.Categories(ctx, []string{"AAPL", "XYZ", "NONE"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"AAPL": "Large Cap"}, categories)

	empty, err := repo.Categories(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestParseCSV(t *testing.T) {
	input := strings.Join([]string{
		"Date,Open,High,Low,Close,Adj Close,Volume",
		"2023-03-01,10,11,9,10.5,10.2,1000",
		"2023-03-02,null,null,null,null,null,null",
		"2023-03-03 00:00:00,10.5,11.5,10,11,10.9,",
	}, "\n")

	prices, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, prices, 2)

	assert.Equal(t, day(1), prices[0].Date)
	assert.Equal(t, 10.5, prices[0].Close)
	require.NotNil(t, prices[0].AdjClose)
	assert.Equal(t, 10.2, *prices[0].AdjClose)
	require.NotNil(t, prices[0].Volume)
	assert.Equal(t, int64(1000), *prices[0].Volume)

	assert.Equal(t, day(3), prices[1].Date)
	assert.Nil(t, prices[1].Volume)
}

func TestParseCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "no date column", input: "Close\n1\n"},
		{name: "bad date", input: "Date,Close\n03/01/2023,1\n"},
		{name: "bad number", input: "Date,Close\n2023-03-01,abc\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}
