package di

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/frontier/internal/config"
)

func TestWire(t *testing.T) {
	cfg := &config.Config{
		DataDir:             t.TempDir(),
		ClusterCount:        3,
		MaintenanceSchedule: "0 0 3 * * *",
	}

	container, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	assert.NotNil(t, container.HistoryDB)
	assert.NotNil(t, container.PriceRepo)
	assert.NotNil(t, container.AnalysisService)
	assert.NotNil(t, container.AnalysisHandler)
	assert.NotNil(t, container.HistoricalHandler)
	assert.NotNil(t, container.MaintenanceJob)
	require.NotNil(t, container.Scheduler)
	assert.Equal(t, 1, container.Scheduler.Jobs())

	// Schema is applied
	var count int
	require.NoError(t, container.HistoryDB.Conn().QueryRow("SELECT COUNT(*) FROM daily_prices").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestWire_ManualMaintenanceOnly(t *testing.T) {
	cfg := &config.Config{DataDir: t.TempDir()}

	container, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	assert.Equal(t, 0, container.Scheduler.Jobs())
	assert.NoError(t, container.MaintenanceJob.Run())
}

func TestWire_InvalidSchedule(t *testing.T) {
	cfg := &config.Config{
		DataDir:             t.TempDir(),
		MaintenanceSchedule: "every tuesday",
	}

	container, err := Wire(cfg, zerolog.Nop())
	assert.Error(t, err)
	assert.Nil(t, container)
}

func TestContainer_CloseNil(t *testing.T) {
	var c *Container
	assert.NoError(t, c.Close())
}
