package config

import "time"

// Default configuration values.
const (
	DefaultHost = "0.0.0.0"
	DefaultPort = 8000

	DefaultDBPort  = 5432
	DefaultSSLMode = "disable"

	DefaultRedisURL  = "redis://redis:6379/0"
	DefaultNewsQueue = "news:queue"

	DefaultModel          = "gemini-3-flash-preview"
	DefaultEmbeddingModel = "gemini-embedding-001"

	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

	DefaultChatRetentionDays   = 3
	DefaultChatMaxMessageChars = 2000
	DefaultChatContextMessages = 30
	DefaultChatTemplatesDir    = "templates"

	DefaultNewsRetentionDays = 7
)

// ApplyDefaults fills zero-valued fields with their defaults. Values set
// from the config file, env vars, or flags are left untouched.
func ApplyDefaults(c *Config) {
	if c == nil {
		return
	}
	// Host, port and log settings come from the loader's confmap base
	// layer; these cover configs built directly in code.
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultSSLMode
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnLifetime == 0 {
		c.Database.ConnLifetime = 30 * time.Minute
	}

	if c.Redis.URL == "" {
		c.Redis.URL = DefaultRedisURL
	}
	if c.Redis.QueueName == "" {
		c.Redis.QueueName = DefaultNewsQueue
	}
	if c.Redis.PopWait == 0 {
		c.Redis.PopWait = 5 * time.Second
	}

	if c.LLM.Model == "" {
		c.LLM.Model = DefaultModel
	}
	if c.LLM.EmbeddingModel == "" {
		c.LLM.EmbeddingModel = DefaultEmbeddingModel
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 90 * time.Second
	}

	if c.NewsAPI.PageSize == 0 {
		c.NewsAPI.PageSize = 50
	}
	if c.NewsAPI.MaxPages == 0 {
		c.NewsAPI.MaxPages = 2
	}
	if c.NewsAPI.DaysLookback == 0 {
		c.NewsAPI.DaysLookback = 3
	}

	if c.Crawler.UserAgent == "" {
		c.Crawler.UserAgent = DefaultUserAgent
	}
	if c.Crawler.Timeout == 0 {
		c.Crawler.Timeout = 15 * time.Second
	}
	if c.Crawler.MaxPerSource == 0 {
		c.Crawler.MaxPerSource = 80
	}
	if c.Crawler.RetentionDays == 0 {
		c.Crawler.RetentionDays = DefaultNewsRetentionDays
	}
	if c.Crawler.CacheTTL == 0 {
		c.Crawler.CacheTTL = 10 * time.Minute
	}

	if c.Auth.SessionMaxAge == 0 {
		c.Auth.SessionMaxAge = 86400 * 7
	}

	if c.Chat.RetentionDays == 0 {
		c.Chat.RetentionDays = DefaultChatRetentionDays
	}
	if c.Chat.MaxMessageChars == 0 {
		c.Chat.MaxMessageChars = DefaultChatMaxMessageChars
	}
	if c.Chat.ContextMessages == 0 {
		c.Chat.ContextMessages = DefaultChatContextMessages
	}
	if c.Chat.TemplatesDir == "" {
		c.Chat.TemplatesDir = DefaultChatTemplatesDir
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}
