package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all price history routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/history", func(r chi.Router) {
		r.Get("/symbols", h.HandleListSymbols)
		r.Route("/{symbol}", func(r chi.Router) {
			r.Get("/prices", h.HandleGetPrices)
			r.Post("/prices", h.HandleImportPrices)
			r.Put("/instrument", h.HandlePutInstrument)
		})
	})
}
