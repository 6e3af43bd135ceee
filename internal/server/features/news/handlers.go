// Package news serves the personalized article feed and per-level
// article summaries.
package news

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"

	"github.com/marketlens/marketlens/internal/llm"
	newssvc "github.com/marketlens/marketlens/internal/news"
	"github.com/marketlens/marketlens/internal/server/features/common"
	"github.com/marketlens/marketlens/internal/store"
)

// Handlers provides the news API handlers. Authentication is optional:
// signed-in users get a profile-personalized feed and level-matched
// summaries, anonymous users get the defaults.
type Handlers struct {
	store        *store.Store
	feed         *newssvc.FeedService
	summary      *newssvc.SummaryService
	sessionStore sessions.Store
}

func NewHandlers(st *store.Store, feed *newssvc.FeedService, summary *newssvc.SummaryService, sessionStore sessions.Store) *Handlers {
	return &Handlers{store: st, feed: feed, summary: summary, sessionStore: sessionStore}
}

// profile loads the viewer's profile when a session cookie is present.
func (h *Handlers) profile(r *http.Request) *store.UserProfile {
	userID, ok := common.SessionUserID(r, h.sessionStore)
	if !ok {
		return nil
	}
	p, err := h.store.GetProfile(r.Context(), userID)
	if err != nil {
		return nil
	}
	return p
}

// Feed returns the personalized news page.
func (h *Handlers) Feed(w http.ResponseWriter, r *http.Request) {
	market := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("market")))
	switch market {
	case "", "all", "domestic", "international":
	default:
		common.Error(w, http.StatusBadRequest, "market must be one of all, domestic, international")
		return
	}

	feed, err := h.feed.Load(r.Context(), newssvc.FeedRequest{
		Market:  market,
		Keyword: strings.TrimSpace(r.URL.Query().Get("keyword")),
		Profile: h.profile(r),
	})
	if err != nil {
		common.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	common.JSON(w, http.StatusOK, feed)
}

// Summary returns the level-matched analysis of one article,
// generating it on demand when missing.
func (h *Handlers) Summary(w http.ResponseWriter, r *http.Request) {
	articleID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || articleID <= 0 {
		common.Error(w, http.StatusBadRequest, "invalid article id")
		return
	}

	level := 1
	if p := h.profile(r); p != nil {
		level = llm.ClampLevel(p.KnowledgeLevel)
	}
	if raw := r.URL.Query().Get("level"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			common.Error(w, http.StatusBadRequest, "level must be an integer")
			return
		}
		level = llm.ClampLevel(n)
	}

	summary, err := h.summary.Get(r.Context(), articleID, level)
	if errors.Is(err, newssvc.ErrArticleNotFound) {
		common.Error(w, http.StatusNotFound, "article not found")
		return
	}
	if err != nil {
		common.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	common.JSON(w, http.StatusOK, summary)
}
