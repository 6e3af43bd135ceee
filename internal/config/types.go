// Package config provides shared configuration types for MarketLens.
// Configuration is loaded from a YAML file, environment variables, and
// CLI flags, with flags taking the highest precedence.
package config

import (
	"fmt"
	"time"
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Name     string `koanf:"name"`
	SSLMode  string `koanf:"sslmode"`

	MaxOpenConns int           `koanf:"max_open_conns"`
	MaxIdleConns int           `koanf:"max_idle_conns"`
	ConnLifetime time.Duration `koanf:"conn_lifetime"`
}

// Validate checks that the database configuration is usable.
func (d *DatabaseConfig) Validate() error {
	if d.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if d.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if d.User == "" {
		return fmt.Errorf("database user is required")
	}
	return nil
}

// RedisConfig holds the Redis connection and queue settings used by
// the news analysis job queue.
type RedisConfig struct {
	URL       string        `koanf:"url"`
	QueueName string        `koanf:"queue_name"`
	PopWait   time.Duration `koanf:"pop_wait"`
}

// LLMConfig holds Gemini API settings for chat, analysis and embeddings.
type LLMConfig struct {
	APIKey         string        `koanf:"api_key"`
	Model          string        `koanf:"model"`
	EmbeddingModel string        `koanf:"embedding_model"`
	Timeout        time.Duration `koanf:"timeout"`
}

// Validate checks that LLM-backed features can run.
func (l *LLMConfig) Validate() error {
	if l.APIKey == "" {
		return fmt.Errorf("llm api key is required")
	}
	return nil
}

// NewsAPIConfig holds settings for the international headline source.
type NewsAPIConfig struct {
	APIKey       string   `koanf:"api_key"`
	APIKeys      []string `koanf:"api_keys"`
	PageSize     int      `koanf:"page_size"`
	MaxPages     int      `koanf:"max_pages"`
	DaysLookback int      `koanf:"days_lookback"`
}

// Keys returns the configured API keys; rate-limited keys are rotated
// through in order. A single api_key is treated as a one-element list.
func (c NewsAPIConfig) Keys() []string {
	out := make([]string, 0, len(c.APIKeys)+1)
	for _, k := range c.APIKeys {
		if k != "" {
			out = append(out, k)
		}
	}
	if len(out) == 0 && c.APIKey != "" {
		out = append(out, c.APIKey)
	}
	return out
}

// CrawlerConfig holds settings for the domestic article crawler and the
// market data scrapers.
type CrawlerConfig struct {
	UserAgent     string        `koanf:"user_agent"`
	Timeout       time.Duration `koanf:"timeout"`
	MaxPerSource  int           `koanf:"max_per_source"`
	RetentionDays int           `koanf:"retention_days"`

	// CachePath is the SQLite file used to cache scraped pages between
	// runs. Empty disables the cache.
	CachePath string        `koanf:"cache_path"`
	CacheTTL  time.Duration `koanf:"cache_ttl"`
}

// AuthConfig holds Google OAuth and session cookie settings.
type AuthConfig struct {
	GoogleClientID     string `koanf:"google_client_id"`
	GoogleClientSecret string `koanf:"google_client_secret"`
	GoogleRedirectURL  string `koanf:"google_redirect_url"`
	SessionSecret      string `koanf:"session_secret"`
	SessionMaxAge      int    `koanf:"session_max_age"`
}

// ChatConfig holds chatbot limits and the prompt template directory.
type ChatConfig struct {
	RetentionDays   int    `koanf:"retention_days"`
	MaxMessageChars int    `koanf:"max_message_chars"`
	ContextMessages int    `koanf:"context_messages"`
	TemplatesDir    string `koanf:"templates_dir"`
}

// LogConfig holds structured logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text or json
}

// Config is the root configuration for all MarketLens commands.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	LLM      LLMConfig      `koanf:"llm"`
	NewsAPI  NewsAPIConfig  `koanf:"newsapi"`
	Crawler  CrawlerConfig  `koanf:"crawler"`
	Auth     AuthConfig     `koanf:"auth"`
	Chat     ChatConfig     `koanf:"chat"`
	Log      LogConfig      `koanf:"log"`
}
