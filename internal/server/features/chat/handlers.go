// Package chat serves the chatbot API: prompt templates, sessions and
// the chat turn endpoint.
package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	chatsvc "github.com/marketlens/marketlens/internal/chat"
	"github.com/marketlens/marketlens/internal/server/features/common"
)

// Handlers provides the chat API handlers.
type Handlers struct {
	svc *chatsvc.Service
}

func NewHandlers(svc *chatsvc.Service) *Handlers {
	return &Handlers{svc: svc}
}

// Prompts lists the active templates. Public: clients show the picker
// before sign-in.
func (h *Handlers) Prompts(w http.ResponseWriter, r *http.Request) {
	templates, err := h.svc.Templates(r.Context())
	if err != nil {
		common.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"templates": templates})
}

// Sessions lists the user's sessions, most recently active first.
func (h *Handlers) Sessions(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserID(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	sessions, err := h.svc.Sessions(r.Context(), userID, limit)
	if err != nil {
		common.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// SessionDetail returns one page of a session's messages.
func (h *Handlers) SessionDetail(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserID(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.Error(w, http.StatusNotFound, "Session not found")
		return
	}

	page := atoiDefault(r.URL.Query().Get("page"), 1)
	pageSize := atoiDefault(r.URL.Query().Get("page_size"), 0)

	detail, err := h.svc.Detail(r.Context(), userID, id, page, pageSize)
	if errors.Is(err, chatsvc.ErrSessionGone) {
		common.Error(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		common.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	common.JSON(w, http.StatusOK, detail)
}

// DeleteSession removes one of the user's sessions.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserID(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.Error(w, http.StatusNotFound, "Session not found")
		return
	}

	err = h.svc.Delete(r.Context(), userID, id)
	if errors.Is(err, chatsvc.ErrSessionGone) {
		common.Error(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		common.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	common.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Chat runs one chat turn.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserID(r.Context())

	var req chatsvc.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.svc.Chat(r.Context(), userID, req)
	switch {
	case err == nil:
		common.JSON(w, http.StatusOK, resp)
	case errors.Is(err, chatsvc.ErrEmptyMessage),
		errors.Is(err, chatsvc.ErrMessageTooLong),
		errors.Is(err, chatsvc.ErrInvalidTemplate),
		errors.Is(err, chatsvc.ErrInvalidSession):
		common.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatsvc.ErrGenerateFailed):
		common.Error(w, http.StatusBadGateway, "Chat failed: "+strings.TrimPrefix(err.Error(), chatsvc.ErrGenerateFailed.Error()+": "))
	default:
		common.Error(w, http.StatusInternalServerError, err.Error())
	}
}

func atoiDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// SetupRoutes registers the chat feature routes. Everything but the
// template list requires a signed-in user.
func SetupRoutes(router chi.Router, svc *chatsvc.Service, sessionStore sessions.Store) {
	handlers := NewHandlers(svc)

	router.Route("/api/chat", func(r chi.Router) {
		r.Get("/prompts", handlers.Prompts)

		r.Group(func(r chi.Router) {
			r.Use(common.RequireUser(sessionStore))
			r.Get("/sessions", handlers.Sessions)
			r.Get("/sessions/{id}", handlers.SessionDetail)
			r.Delete("/sessions/{id}", handlers.DeleteSession)
			r.Post("/chat", handlers.Chat)
		})
	})
}
