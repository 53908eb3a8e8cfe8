// Package di provides dependency injection type definitions.
package di

import (
	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/modules/analysis"
	analysishandlers "github.com/aristath/frontier/internal/modules/analysis/handlers"
	"github.com/aristath/frontier/internal/modules/historical"
	historicalhandlers "github.com/aristath/frontier/internal/modules/historical/handlers"
	"github.com/aristath/frontier/internal/scheduler"
)

// Container holds all application dependencies
type Container struct {
	// Databases
	HistoryDB *database.DB

	// Repositories
	PriceRepo *historical.PriceRepository

	// Services
	AnalysisService *analysis.Service

	// HTTP handlers
	AnalysisHandler   *analysishandlers.Handler
	HistoricalHandler *historicalhandlers.Handler

	// Background jobs
	Scheduler      *scheduler.Scheduler
	MaintenanceJob *scheduler.HistoryMaintenanceJob
}

// Close releases the container's databases
func (c *Container) Close() error {
	if c == nil || c.HistoryDB == nil {
		return nil
	}
	return c.HistoryDB.Close()
}
