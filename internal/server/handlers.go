package server

import (
	"context"
	"net/http"
	"time"

	"github.com/aristath/frontier/pkg/render"
)

// handleHealth reports whether the history database is reachable and intact
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "frontier",
	}

	if s.historyDB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := s.historyDB.HealthCheck(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Health check failed")
			response["status"] = "unhealthy"
			response["error"] = err.Error()
			render.Respond(w, r, http.StatusServiceUnavailable, response)
			return
		}
	}

	render.Respond(w, r, http.StatusOK, response)
}
