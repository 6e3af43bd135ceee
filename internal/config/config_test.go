package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		db        DatabaseConfig
		wantErr   bool
		errSubstr string
	}{
		{
			name:      "missing host",
			db:        DatabaseConfig{Name: "marketlens", User: "postgres"},
			wantErr:   true,
			errSubstr: "host is required",
		},
		{
			name:      "missing name",
			db:        DatabaseConfig{Host: "localhost", User: "postgres"},
			wantErr:   true,
			errSubstr: "name is required",
		},
		{
			name:      "missing user",
			db:        DatabaseConfig{Host: "localhost", Name: "marketlens"},
			wantErr:   true,
			errSubstr: "user is required",
		},
		{
			name:    "valid",
			db:      DatabaseConfig{Host: "localhost", Name: "marketlens", User: "postgres"},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.db.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errSubstr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, DefaultRedisURL, cfg.Redis.URL)
	assert.Equal(t, DefaultNewsQueue, cfg.Redis.QueueName)
	assert.Equal(t, DefaultModel, cfg.LLM.Model)
	assert.Equal(t, DefaultEmbeddingModel, cfg.LLM.EmbeddingModel)
	assert.Equal(t, DefaultChatRetentionDays, cfg.Chat.RetentionDays)
	assert.Equal(t, DefaultChatMaxMessageChars, cfg.Chat.MaxMessageChars)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := Config{}
	cfg.Server.Port = 9090
	cfg.LLM.Model = "gemini-2.5-pro"
	ApplyDefaults(&cfg)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "gemini-2.5-pro", cfg.LLM.Model)
}

func TestLoad_ConfigFile(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	path := filepath.Join(dir, "marketlens.yaml")
	content := `
server:
  port: 8080
database:
  host: db.internal
  name: marketlens
  user: app
llm:
  model: gemini-2.5-flash
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Model)
	// Defaults still fill in unset fields
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, path, ConfigFileUsed())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	path := filepath.Join(dir, "marketlens.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  host: from-file\n"), 0o644))

	t.Setenv("MARKETLENS_DATABASE_HOST", "from-env")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Database.Host)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	ResetConfig()
	_, err := Load("/nonexistent/marketlens.yaml", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}
