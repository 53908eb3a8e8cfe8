// Package server provides the HTTP server and routing for Frontier.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/database"
	analysishandlers "github.com/aristath/frontier/internal/modules/analysis/handlers"
	historicalhandlers "github.com/aristath/frontier/internal/modules/historical/handlers"
	"github.com/aristath/frontier/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log               zerolog.Logger
	HistoryDB         *database.DB
	Port              int
	DevMode           bool
	AnalysisHandler   *analysishandlers.Handler
	HistoricalHandler *historicalhandlers.Handler
	Scheduler         *scheduler.Scheduler
	MaintenanceJob    scheduler.Job
}

// Server represents the HTTP server
type Server struct {
	router            *chi.Mux
	server            *http.Server
	log               zerolog.Logger
	historyDB         *database.DB
	analysisHandler   *analysishandlers.Handler
	historicalHandler *historicalhandlers.Handler
	systemHandlers    *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:            chi.NewRouter(),
		log:               cfg.Log.With().Str("component", "server").Logger(),
		historyDB:         cfg.HistoryDB,
		analysisHandler:   cfg.AnalysisHandler,
		historicalHandler: cfg.HistoricalHandler,
		systemHandlers:    NewSystemHandlers(cfg.Log, cfg.HistoryDB, cfg.Scheduler, cfg.MaintenanceJob),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		if s.analysisHandler != nil {
			s.analysisHandler.RegisterRoutes(r)
		}
		if s.historicalHandler != nil {
			s.historicalHandler.RegisterRoutes(r)
		}

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Post("/jobs/maintenance", s.systemHandlers.HandleTriggerMaintenance)
		})
	})
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
