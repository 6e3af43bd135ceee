package account

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/marketlens/marketlens/internal/config"
	"github.com/marketlens/marketlens/internal/server/features/common"
	"github.com/marketlens/marketlens/internal/store"
	"github.com/marketlens/marketlens/internal/testutil"
)

func newTestSetup(t *testing.T) (chi.Router, sqlmock.Sqlmock, *Handlers, sessions.Store) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st := store.New(db, testutil.NewTestLogger(t))
	sessionStore := sessions.NewCookieStore([]byte("test-secret"))

	handlers := NewHandlers(st, sessionStore, config.AuthConfig{
		GoogleClientID:     "client-id",
		GoogleClientSecret: "client-secret",
		GoogleRedirectURL:  "http://localhost/callback",
	})

	// Token exchange goes to a local stub instead of Google.
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(tokenSrv.Close)
	handlers.oauth.Endpoint = oauth2.Endpoint{TokenURL: tokenSrv.URL}
	handlers.userinfo = func(context.Context, oauth2.TokenSource) (*googleClaims, error) {
		return &googleClaims{Sub: "g-123", Email: "kim@example.com", Name: "Kim", Picture: "p.png"}, nil
	}

	router := chi.NewRouter()
	router.Post("/api/auth/google", handlers.GoogleLogin)
	router.Post("/api/auth/logout", handlers.Logout)
	router.Group(func(r chi.Router) {
		r.Use(common.RequireUser(sessionStore))
		r.Get("/api/user/onboarding", handlers.GetOnboarding)
		r.Post("/api/user/onboarding", handlers.SaveOnboarding)
	})
	return router, mock, handlers, sessionStore
}

func TestGoogleLogin(t *testing.T) {
	router, mock, _, _ := newTestSetup(t)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("g-123", "kim@example.com", "Kim", "p.png").
		WillReturnRows(sqlmock.NewRows([]string{"id", "is_superuser", "created_at", "last_login_at"}).
			AddRow(int64(7), false, time.Now(), time.Now()))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/google",
		strings.NewReader(`{"code":"auth-code"}`))
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Result().Cookies(), "login should set the session cookie")

	var body struct {
		User map[string]any `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "kim@example.com", body.User["email"])
	assert.Equal(t, float64(7), body.User["id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGoogleLogin_RequiresCode(t *testing.T) {
	router, _, _, _ := newTestSetup(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/google",
		strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGoogleLogin_UserinfoFailure(t *testing.T) {
	router, _, handlers, _ := newTestSetup(t)
	handlers.userinfo = func(context.Context, oauth2.TokenSource) (*googleClaims, error) {
		return nil, assert.AnError
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/google",
		strings.NewReader(`{"code":"auth-code"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func signedInRequest(t *testing.T, sessionStore sessions.Store, method, url, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, url, strings.NewReader(body))

	rec := httptest.NewRecorder()
	seed := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, common.SignIn(rec, seed, sessionStore, 7))
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestGetOnboarding_EmptyProfile(t *testing.T) {
	router, mock, _, sessionStore := newTestSetup(t)

	mock.ExpectQuery("FROM user_profiles").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "asset_type", "sectors",
			"portfolio", "risk_profile", "knowledge_level", "updated_at"}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedInRequest(t, sessionStore, http.MethodGet, "/api/user/onboarding", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"assetType":"","sectors":[],"portfolio":[],"riskProfile":"","knowledgeLevel":0}`,
		rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveOnboarding_ClampsLevel(t *testing.T) {
	router, mock, _, sessionStore := newTestSetup(t)

	mock.ExpectExec("INSERT INTO user_profiles").
		WithArgs(int64(7), "주식", []byte(`["반도체"]`), []byte(`["삼성전자"]`), "A", 5).
		WillReturnResult(sqlmock.NewResult(1, 1))

	body := `{"assetType":"주식","sectors":["반도체"],"portfolio":["삼성전자"],"riskProfile":"A","knowledgeLevel":9}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedInRequest(t, sessionStore, http.MethodPost, "/api/user/onboarding", body))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var saved ProfilePayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.Equal(t, 5, saved.KnowledgeLevel)
	assert.NoError(t, mock.ExpectationsWereMet())
}
