// Package server assembles the MarketLens HTTP API: market ranking
// boards, the personalized news feed, daily recommendations, the
// chatbot, and Google sign-in.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"

	chatsvc "github.com/marketlens/marketlens/internal/chat"
	"github.com/marketlens/marketlens/internal/config"
	"github.com/marketlens/marketlens/internal/llm"
	"github.com/marketlens/marketlens/internal/market"
	newssvc "github.com/marketlens/marketlens/internal/news"
	recosvc "github.com/marketlens/marketlens/internal/reco"
	"github.com/marketlens/marketlens/internal/server/features/account"
	"github.com/marketlens/marketlens/internal/server/features/chat"
	"github.com/marketlens/marketlens/internal/server/features/common"
	"github.com/marketlens/marketlens/internal/server/features/markets"
	"github.com/marketlens/marketlens/internal/server/features/news"
	"github.com/marketlens/marketlens/internal/server/features/reco"
	"github.com/marketlens/marketlens/internal/store"
)

// Server is the HTTP API server.
type Server struct {
	cfg     config.Config
	store   *store.Store
	logger  *slog.Logger
	router  chi.Router
	watcher *chatsvc.TemplateWatcher
}

// New wires the API services and routes. gen and embed are usually the
// same llm.Client.
func New(cfg config.Config, st *store.Store, gen llm.Generator, embed llm.Embedder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	sessionStore := sessions.NewCookieStore([]byte(cfg.Auth.SessionSecret))
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   cfg.Auth.SessionMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	analyzer := newssvc.NewAnalyzer(st, gen, logger)
	feed := newssvc.NewFeedService(st, embed, logger)
	summary := newssvc.NewSummaryService(st, analyzer, logger)
	recoService := recosvc.NewService(st)
	chatService := chatsvc.NewService(st, gen, cfg.Chat, logger)

	s := &Server{
		cfg:     cfg,
		store:   st,
		logger:  logger,
		watcher: chatsvc.NewTemplateWatcher(st, cfg.Chat.TemplatesDir, logger),
	}

	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))

	router.Get("/healthz", s.healthz)

	markets.SetupRoutes(router, st, market.NewCalendar())
	news.SetupRoutes(router, st, feed, summary, sessionStore)
	reco.SetupRoutes(router, recoService)
	chat.SetupRoutes(router, chatService, sessionStore)
	account.SetupRoutes(router, st, sessionStore, cfg.Auth)

	s.router = router
	return s
}

// Router exposes the route tree, mainly for tests.
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		common.Error(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	common.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Run serves until ctx is canceled, then drains within the configured
// shutdown window. The prompt template watcher runs alongside.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return s.watcher.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down http server")
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
