package chat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chatsvc "github.com/marketlens/marketlens/internal/chat"
	"github.com/marketlens/marketlens/internal/config"
	"github.com/marketlens/marketlens/internal/server/features/common"
	"github.com/marketlens/marketlens/internal/store"
)

func newTestRouter(t *testing.T) (chi.Router, sqlmock.Sqlmock, sessions.Store) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	svc := chatsvc.NewService(store.New(db, nil), nil, config.ChatConfig{
		RetentionDays:   3,
		MaxMessageChars: 2000,
		ContextMessages: 30,
	}, nil)
	sessionStore := sessions.NewCookieStore([]byte("test-secret"))

	router := chi.NewRouter()
	SetupRoutes(router, svc, sessionStore)
	return router, mock, sessionStore
}

// signInCookies produces the cookie header value for a signed-in user.
func signInCookies(t *testing.T, sessionStore sessions.Store, userID int64) []*http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, common.SignIn(rec, req, sessionStore, userID))
	return rec.Result().Cookies()
}

func TestPrompts_PublicListing(t *testing.T) {
	router, mock, _ := newTestRouter(t)

	mock.ExpectQuery("FROM chat_prompt_templates").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "key", "name", "description", "content", "user_prompt", "is_active", "created_at",
		}).AddRow(int64(3), "default", "기본", "범용 금융 가이드", "system", "{message}", true, time.Now()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/prompts", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Templates []map[string]any `json:"templates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Templates, 1)
	assert.Equal(t, "default", body.Templates[0]["key"])
	assert.Equal(t, "기본", body.Templates[0]["name"])
	// Template bodies stay server-side.
	assert.NotContains(t, body.Templates[0], "content")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessions_RequiresAuth(t *testing.T) {
	router, _, _ := newTestRouter(t)

	for _, tc := range []struct {
		method, url string
	}{
		{http.MethodGet, "/api/chat/sessions"},
		{http.MethodGet, "/api/chat/sessions/0b9e0c2e-9d43-4f3a-8a57-0f1d2c3b4a5e"},
		{http.MethodDelete, "/api/chat/sessions/0b9e0c2e-9d43-4f3a-8a57-0f1d2c3b4a5e"},
		{http.MethodPost, "/api/chat/chat"},
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.url, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.url)
	}
}

func TestSessions_ListsForSignedInUser(t *testing.T) {
	router, mock, sessionStore := newTestRouter(t)

	// Retention cleanup runs before the listing.
	mock.ExpectExec("DELETE FROM chat_messages").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM chat_sessions s").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM chat_sessions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "is_active", "created_at", "updated_at"}).
			AddRow("0b9e0c2e-9d43-4f3a-8a57-0f1d2c3b4a5e", int64(7), "삼성전자 전망", true, time.Now(), time.Now()))

	req := httptest.NewRequest(http.MethodGet, "/api/chat/sessions", nil)
	for _, c := range signInCookies(t, sessionStore, 7) {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sessions []map[string]any `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sessions, 1)
	assert.Equal(t, "삼성전자 전망", body.Sessions[0]["title"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionDetail_BadIDIsNotFound(t *testing.T) {
	router, _, sessionStore := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/chat/sessions/not-a-uuid", nil)
	for _, c := range signInCookies(t, sessionStore, 7) {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Session not found")
}
