package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "drivechat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DevModeDefaults(t *testing.T) {
	t.Setenv(EnvPath, "")
	t.Setenv("DEV_MODE", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.False(t, cfg.Twilio.ValidateSignature)
	assert.Equal(t, 20000, cfg.Summary.CharBudget)
	assert.Equal(t, 1600, cfg.Reply.ChunkLimit)
	assert.Equal(t, 10*time.Minute, cfg.Drive.FolderCacheTTL)
	assert.Equal(t, 2*time.Minute, cfg.Auth.RefreshSkew)
	assert.Equal(t, "http://localhost:8080/oauth/callback", cfg.RedirectURL())
}

func TestLoad_ProductionRequiresAccounts(t *testing.T) {
	t.Setenv(EnvPath, "")
	t.Setenv("DEV_MODE", "false")
	t.Setenv("GOOGLE_CLIENT_ID", "")
	t.Setenv("TWILIO_ACCOUNT_SID", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ClientID")

	t.Setenv("GOOGLE_CLIENT_ID", "client.apps.googleusercontent.com")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_WHATSAPP_NUMBER", "whatsapp:+14155238886")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendDynamoDB, cfg.Store.Backend)
	assert.True(t, cfg.Twilio.ValidateSignature)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
dev_mode: true
public_url: https://bot.example.com
store:
  backend: sqlite
  sqlite_path: /var/lib/drivechat/tokens.db
summary:
  char_budget: 8000
drive:
  timeout: 5s
generation:
  model: gemini-2.5-pro
`)
	t.Setenv("GEMINI_MODEL", "gemini-2.5-flash-lite")
	t.Setenv("DEV_MODE", "")
	t.Setenv("PORT", "9090")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "/var/lib/drivechat/tokens.db", cfg.Store.SQLitePath)
	assert.Equal(t, 8000, cfg.Summary.CharBudget)
	assert.Equal(t, 5*time.Second, cfg.Drive.Timeout)
	assert.Equal(t, "gemini-2.5-flash-lite", cfg.Generation.Model)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "https://bot.example.com/oauth/callback", cfg.RedirectURL())
	assert.Equal(t, "https://bot.example.com/whatsapp/message", cfg.WebhookURL())
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv("DEV_MODE", "true")

	t.Run("explicit missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("env missing file is ignored", func(t *testing.T) {
		t.Setenv(EnvPath, filepath.Join(t.TempDir(), "absent.yaml"))
		_, err := Load("")
		assert.NoError(t, err)
	})

	t.Run("bad yaml", func(t *testing.T) {
		_, err := Load(writeFile(t, "summary: [1, 2"))
		assert.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := Load(writeFile(t, "store:\n  backend: postgres\n"))
		assert.Error(t, err)
	})

	t.Run("chunk limit too small", func(t *testing.T) {
		_, err := Load(writeFile(t, "reply:\n  chunk_limit: 10\n"))
		assert.Error(t, err)
	})

	t.Run("bad DEV_MODE", func(t *testing.T) {
		t.Setenv("DEV_MODE", "sometimes")
		_, err := Load(writeFile(t, ""))
		assert.Error(t, err)
	})
}
