// Package commands implements the MarketLens subcommands.
package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/marketlens/marketlens/internal/config"
	"github.com/marketlens/marketlens/internal/llm"
	"github.com/marketlens/marketlens/internal/market"
	"github.com/marketlens/marketlens/internal/store"
)

type configKey struct{}
type loggerKey struct{}

// NewContext returns ctx carrying the loaded config and logger.
func NewContext(ctx context.Context, cfg *config.Config, logger *slog.Logger) context.Context {
	ctx = context.WithValue(ctx, configKey{}, cfg)
	return context.WithValue(ctx, loggerKey{}, logger)
}

// ConfigFrom retrieves the config from the command context.
func ConfigFrom(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return cfg
}

// LoggerFrom retrieves the logger from the command context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// signalContext derives a context cancelled on SIGINT or SIGTERM.
func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

// openStore validates the database settings and opens the store.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store.Store, error) {
	if err := cfg.Database.Validate(); err != nil {
		return nil, err
	}
	return store.Open(ctx, cfg.Database, logger)
}

// newLLM validates the LLM settings and builds the Gemini client.
func newLLM(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*llm.Client, error) {
	if err := cfg.LLM.Validate(); err != nil {
		return nil, err
	}
	return llm.New(ctx, cfg.LLM, logger)
}

// newFetcher builds the shared scraping HTTP client.
func newFetcher(cfg *config.Config) *market.HTTPClient {
	return market.NewHTTPClient(cfg.Crawler)
}
