package markets

import (
	"github.com/go-chi/chi/v5"

	"github.com/marketlens/marketlens/internal/market"
	"github.com/marketlens/marketlens/internal/store"
)

// SetupRoutes registers the market feature routes.
func SetupRoutes(router chi.Router, st *store.Store, cal *market.Calendar) {
	handlers := NewHandlers(st, cal)

	router.Route("/api/markets", func(r chi.Router) {
		r.Get("/today", handlers.Today)
		r.Get("/suggest", handlers.Suggest)
		r.Get("/sessions", handlers.Sessions)
	})
}
