package news

import (
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"

	newssvc "github.com/marketlens/marketlens/internal/news"
	"github.com/marketlens/marketlens/internal/store"
)

// SetupRoutes registers the news feature routes.
func SetupRoutes(router chi.Router, st *store.Store, feed *newssvc.FeedService, summary *newssvc.SummaryService, sessionStore sessions.Store) {
	handlers := NewHandlers(st, feed, summary, sessionStore)

	router.Route("/api/news", func(r chi.Router) {
		r.Get("/", handlers.Feed)
		r.Get("/{id}/summary", handlers.Summary)
	})
}
