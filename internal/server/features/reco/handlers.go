// Package reco serves the daily theme picks and trend keyword APIs.
package reco

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	recosvc "github.com/marketlens/marketlens/internal/reco"
	"github.com/marketlens/marketlens/internal/server/features/common"
)

// Handlers provides the recommendation API handlers.
type Handlers struct {
	svc *recosvc.Service
}

func NewHandlers(svc *recosvc.Service) *Handlers {
	return &Handlers{svc: svc}
}

// Themes returns today's theme picks for a scope, falling back to the
// latest earlier date when today has none yet.
func (h *Handlers) Themes(w http.ResponseWriter, r *http.Request) {
	scope := recosvc.ParseScope(r.URL.Query().Get("scope"))
	limit := recosvc.ParseLimit(r.URL.Query().Get("limit"))

	resp, err := h.svc.ThemePicks(r.Context(), scope, limit)
	if err != nil {
		common.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	common.JSON(w, http.StatusOK, resp)
}

// Keywords returns today's trend keywords for a scope with the same
// latest-date fallback.
func (h *Handlers) Keywords(w http.ResponseWriter, r *http.Request) {
	scope := recosvc.ParseScope(r.URL.Query().Get("scope"))
	limit := recosvc.ParseLimit(r.URL.Query().Get("limit"))

	resp, err := h.svc.TrendKeywords(r.Context(), scope, limit)
	if err != nil {
		common.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	common.JSON(w, http.StatusOK, resp)
}

// SetupRoutes registers the recommendation feature routes.
func SetupRoutes(router chi.Router, svc *recosvc.Service) {
	handlers := NewHandlers(svc)

	router.Route("/api/reco", func(r chi.Router) {
		r.Get("/themes", handlers.Themes)
		r.Get("/keywords", handlers.Keywords)
	})
}
