package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/modules/analysis"
	analysishandlers "github.com/aristath/frontier/internal/modules/analysis/handlers"
	"github.com/aristath/frontier/internal/modules/historical"
	historicalhandlers "github.com/aristath/frontier/internal/modules/historical/handlers"
)

// InitializeRepositories creates repositories over the open databases
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil || container.HistoryDB == nil {
		return fmt.Errorf("history database not initialized")
	}

	container.PriceRepo = historical.NewPriceRepository(container.HistoryDB.Conn(), log)
	return nil
}

// InitializeServices creates services and their HTTP handlers
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container.PriceRepo == nil {
		return fmt.Errorf("price repository not initialized")
	}

	container.AnalysisService = analysis.NewService(cfg, container.PriceRepo, log)
	container.AnalysisHandler = analysishandlers.NewHandler(container.AnalysisService, log)
	container.HistoricalHandler = historicalhandlers.NewHandler(container.PriceRepo, log)
	return nil
}
