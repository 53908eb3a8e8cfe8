package server

import (
	"database/sql"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/scheduler"
	"github.com/aristath/frontier/pkg/render"
)

// SystemHandlers handles system monitoring and maintenance endpoints
type SystemHandlers struct {
	log            zerolog.Logger
	startupTime    time.Time
	historyDB      *database.DB
	scheduler      *scheduler.Scheduler
	maintenanceJob scheduler.Job
}

// NewSystemHandlers creates a new system handlers instance
// sched may be nil, in which case jobs run untracked.
func NewSystemHandlers(log zerolog.Logger, historyDB *database.DB, sched *scheduler.Scheduler, maintenanceJob scheduler.Job) *SystemHandlers {
	return &SystemHandlers{
		log:            log.With().Str("handler", "system").Logger(),
		startupTime:    time.Now(),
		historyDB:      historyDB,
		scheduler:      sched,
		maintenanceJob: maintenanceJob,
	}
}

// SystemStatusResponse represents system status
type SystemStatusResponse struct {
	Status        string  `json:"status" msgpack:"status"`
	UptimeSeconds int64   `json:"uptime_seconds" msgpack:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent" msgpack:"cpu_percent"`
	RAMPercent    float64 `json:"ram_percent" msgpack:"ram_percent"`
	Goroutines    int     `json:"goroutines" msgpack:"goroutines"`
	HistoryDBMB   float64 `json:"history_db_mb" msgpack:"history_db_mb"`
	SymbolCount   int     `json:"symbol_count" msgpack:"symbol_count"`
	PriceRows     int     `json:"price_rows" msgpack:"price_rows"`
	LastPriceDate string  `json:"last_price_date,omitempty" msgpack:"last_price_date,omitempty"`

	Jobs []scheduler.JobStatus `json:"jobs" msgpack:"jobs"`
}

// HandleSystemStatus returns host load and price history coverage
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPercent, ramPercent := h.getSystemStats()
	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		CPUPercent:    cpuPercent,
		RAMPercent:    ramPercent,
		Goroutines:    runtime.NumGoroutine(),
		Jobs:          []scheduler.JobStatus{},
	}
	if h.scheduler != nil {
		response.Jobs = h.scheduler.Status()
	}

	if h.historyDB != nil {
		if info, err := os.Stat(h.historyDB.Path()); err == nil {
			response.HistoryDBMB = float64(info.Size()) / 1024 / 1024
		}

		var lastDate sql.NullInt64
		err := h.historyDB.Conn().QueryRowContext(r.Context(), `
			SELECT COUNT(DISTINCT symbol), COUNT(*), MAX(date)
			FROM daily_prices
		`).Scan(&response.SymbolCount, &response.PriceRows, &lastDate)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to query price coverage")
			response.Status = "degraded"
		}
		if lastDate.Valid {
			response.LastPriceDate = time.Unix(lastDate.Int64, 0).UTC().Format("2006-01-02")
		}
	}

	render.Respond(w, r, http.StatusOK, response)
}

// HandleTriggerMaintenance runs the history maintenance job immediately
// POST /api/system/jobs/maintenance
func (h *SystemHandlers) HandleTriggerMaintenance(w http.ResponseWriter, r *http.Request) {
	if h.maintenanceJob == nil {
		h.log.Warn().Msg("Maintenance job not registered")
		render.Error(w, r, http.StatusServiceUnavailable, "Maintenance job not registered", "")
		return
	}

	h.log.Info().Msg("Manual maintenance triggered")

	run := h.maintenanceJob.Run
	if h.scheduler != nil {
		run = func() error { return h.scheduler.RunNow(h.maintenanceJob) }
	}

	if err := run(); err != nil {
		h.log.Error().Err(err).Msg("Maintenance failed")
		render.Error(w, r, http.StatusInternalServerError, "Maintenance failed", err.Error())
		return
	}

	render.Respond(w, r, http.StatusOK, map[string]string{
		"status":  "success",
		"message": h.maintenanceJob.Name() + " completed",
	})
}

// getSystemStats calculates CPU and RAM usage percentages.
// CPU is sampled over 100ms to keep the call short.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
