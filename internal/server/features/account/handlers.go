// Package account serves Google sign-in and the onboarding profile
// API.
package account

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/marketlens/marketlens/internal/config"
	"github.com/marketlens/marketlens/internal/llm"
	"github.com/marketlens/marketlens/internal/server/features/common"
	"github.com/marketlens/marketlens/internal/store"
)

const userinfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// Handlers provides the auth and profile handlers.
type Handlers struct {
	store        *store.Store
	sessionStore sessions.Store
	oauth        *oauth2.Config

	// userinfo is swapped in tests.
	userinfo func(ctx context.Context, ts oauth2.TokenSource) (*googleClaims, error)
}

func NewHandlers(st *store.Store, sessionStore sessions.Store, cfg config.AuthConfig) *Handlers {
	return &Handlers{
		store:        st,
		sessionStore: sessionStore,
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		userinfo: fetchUserinfo,
	}
}

type googleClaims struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func fetchUserinfo(ctx context.Context, ts oauth2.TokenSource) (*googleClaims, error) {
	client := oauth2.NewClient(ctx, ts)
	resp, err := client.Get(userinfoURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var claims googleClaims
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

// GoogleLogin exchanges an OAuth authorization code, upserts the user
// by their Google subject, and starts a cookie session.
func (h *Handlers) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code        string `json:"code"`
		RedirectURI string `json:"redirect_uri"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		common.Error(w, http.StatusBadRequest, "code is required")
		return
	}

	cfg := h.oauth
	if req.RedirectURI != "" {
		clone := *cfg
		clone.RedirectURL = req.RedirectURI
		cfg = &clone
	}

	token, err := cfg.Exchange(r.Context(), req.Code)
	if err != nil {
		common.Error(w, http.StatusUnauthorized, "code exchange failed")
		return
	}

	claims, err := h.userinfo(r.Context(), cfg.TokenSource(r.Context(), token))
	if err != nil || claims.Sub == "" {
		common.Error(w, http.StatusUnauthorized, "failed to load Google profile")
		return
	}

	user := &store.User{
		GoogleSub: claims.Sub,
		Email:     claims.Email,
		Name:      claims.Name,
		Picture:   claims.Picture,
	}
	if err := h.store.UpsertUser(r.Context(), user); err != nil {
		common.Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := common.SignIn(w, r, h.sessionStore, user.ID); err != nil {
		common.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"user": serializeUser(user)})
}

// Logout clears the cookie session.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := common.SignOut(w, r, h.sessionStore); err != nil {
		common.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	common.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Me returns the signed-in user.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserID(r.Context())
	user, err := h.store.GetUser(r.Context(), userID)
	if err != nil {
		common.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	if user == nil {
		common.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"user": serializeUser(user)})
}

func serializeUser(u *store.User) map[string]any {
	return map[string]any{
		"id":      u.ID,
		"email":   u.Email,
		"name":    u.Name,
		"picture": u.Picture,
	}
}

// ProfilePayload is the camelCase wire shape of the onboarding
// profile.
type ProfilePayload struct {
	AssetType      string   `json:"assetType"`
	Sectors        []string `json:"sectors"`
	Portfolio      []string `json:"portfolio"`
	RiskProfile    string   `json:"riskProfile"`
	KnowledgeLevel int      `json:"knowledgeLevel"`
}

// GetOnboarding returns the user's profile, or an empty payload when
// none is stored yet.
func (h *Handlers) GetOnboarding(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserID(r.Context())
	profile, err := h.store.GetProfile(r.Context(), userID)
	if err != nil {
		common.Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	payload := ProfilePayload{Sectors: []string{}, Portfolio: []string{}}
	if profile != nil {
		payload = serializeProfile(profile)
	}
	common.JSON(w, http.StatusOK, payload)
}

func serializeProfile(p *store.UserProfile) ProfilePayload {
	sectors := p.Sectors
	if sectors == nil {
		sectors = []string{}
	}
	portfolio := p.Portfolio
	if portfolio == nil {
		portfolio = []string{}
	}
	return ProfilePayload{
		AssetType:      p.AssetType,
		Sectors:        sectors,
		Portfolio:      portfolio,
		RiskProfile:    p.RiskProfile,
		KnowledgeLevel: p.KnowledgeLevel,
	}
}

// SaveOnboarding upserts the user's profile.
func (h *Handlers) SaveOnboarding(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserID(r.Context())

	var payload ProfilePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	profile := &store.UserProfile{
		UserID:         userID,
		AssetType:      payload.AssetType,
		Sectors:        payload.Sectors,
		Portfolio:      payload.Portfolio,
		RiskProfile:    payload.RiskProfile,
		KnowledgeLevel: llm.ClampLevel(payload.KnowledgeLevel),
	}
	if err := h.store.UpsertProfile(r.Context(), profile); err != nil {
		common.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	common.JSON(w, http.StatusOK, serializeProfile(profile))
}

// SetupRoutes registers the auth and onboarding routes.
func SetupRoutes(router chi.Router, st *store.Store, sessionStore sessions.Store, cfg config.AuthConfig) {
	handlers := NewHandlers(st, sessionStore, cfg)

	router.Route("/api/auth", func(r chi.Router) {
		r.Post("/google", handlers.GoogleLogin)
		r.Post("/logout", handlers.Logout)

		r.Group(func(r chi.Router) {
			r.Use(common.RequireUser(sessionStore))
			r.Get("/me", handlers.Me)
		})
	})

	router.Route("/api/user", func(r chi.Router) {
		r.Use(common.RequireUser(sessionStore))
		r.Get("/onboarding", handlers.GetOnboarding)
		r.Post("/onboarding", handlers.SaveOnboarding)
	})
}
