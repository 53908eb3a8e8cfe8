package handlers

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/frontier/internal/modules/historical"
	testingutil "github.com/aristath/frontier/internal/testing"
)

func TestRegisterRoutes(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	db, _ := testingutil.NewTestDB(t, "history")

	handler := NewHandler(historical.NewPriceRepository(db.Conn(), logger), logger)
	router := chi.NewRouter()

	assert.NotPanics(t, func() {
		handler.RegisterRoutes(router)
	}, "RegisterRoutes should not panic")

	routes := map[string]bool{}
	_ = chi.Walk(router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes[method+" "+route] = true
		return nil
	})
	assert.True(t, routes["GET /history/symbols"])
	assert.True(t, routes["GET /history/{symbol}/prices"])
	assert.True(t, routes["POST /history/{symbol}/prices"])
	assert.True(t, routes["PUT /history/{symbol}/instrument"])
}
