package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FAQBOT_TELEGRAM_TOKEN", "123:abc")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, ModePolling, cfg.Telegram.Mode)
	assert.Equal(t, 30*time.Second, cfg.Telegram.PollTimeout)
	assert.Equal(t, BackendCSV, cfg.Knowledge.Backend)
	assert.Equal(t, 70, cfg.Matcher.Threshold)
	assert.Equal(t, "token_set", cfg.Matcher.Scorer)
	assert.Equal(t, 30*time.Minute, cfg.Sessions.IdleTimeout)
	assert.False(t, cfg.Replies.ThanksOnNoMatch)
	assert.Contains(t, cfg.Replies.Thanks, "{name}")
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeFile(t, dir, "faqbot.yaml", `
telegram:
  token: from-file
matcher:
  threshold: 0
  scorer: weighted
replies:
  thanks_on_no_match: true
  photo_url: https://example.com/p.png
`)
	t.Setenv("FAQBOT_MATCHER_THRESHOLD", "85")
	t.Setenv("FAQBOT_SESSIONS_IDLE_TIMEOUT", "5m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Telegram.Token)
	assert.Equal(t, 85, cfg.Matcher.Threshold)
	assert.Equal(t, "weighted", cfg.Matcher.Scorer)
	assert.Equal(t, 5*time.Minute, cfg.Sessions.IdleTimeout)
	assert.True(t, cfg.Replies.ThanksOnNoMatch)
	assert.Equal(t, "https://example.com/p.png", cfg.Replies.PhotoURL)
}

func TestLoad_ThresholdZeroIsKept(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeFile(t, dir, "faqbot.yaml", "telegram:\n  token: x\nmatcher:\n  threshold: 0\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Matcher.Threshold)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, ".env", "FAQBOT_TELEGRAM_TOKEN=from-dotenv\nFAQBOT_LOG_LEVEL=debug\n")
	t.Cleanup(func() {
		os.Unsetenv("FAQBOT_TELEGRAM_TOKEN")
		os.Unsetenv("FAQBOT_LOG_LEVEL")
	})

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Telegram.Token)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FAQBOT_TELEGRAM_TOKEN", "x")

	_, err := Load("nao-existe.yaml")
	assert.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "telegram.token", envKey("FAQBOT_TELEGRAM_TOKEN"))
	assert.Equal(t, "replies.thanks_on_no_match", envKey("FAQBOT_REPLIES_THANKS_ON_NO_MATCH"))
	assert.Equal(t, "http.addr", envKey("FAQBOT_HTTP_ADDR"))
}

func validConfig() Config {
	return Config{
		Telegram:  TelegramConfig{Token: "x", Mode: ModePolling, SendRate: 25, SendBurst: 5},
		Knowledge: KnowledgeConfig{Backend: BackendCSV, Path: "rules.csv"},
		Admins:    AdminsConfig{Path: "admins.txt"},
		Matcher:   MatcherConfig{Threshold: 70, Scorer: "token_set"},
		Sessions:  SessionsConfig{IdleTimeout: time.Minute, SweepInterval: time.Second},
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"sem token":            {func(c *Config) { c.Telegram.Token = "" }, "telegram.token"},
		"limiar alto":          {func(c *Config) { c.Matcher.Threshold = 101 }, "matcher.threshold"},
		"limiar negativo":      {func(c *Config) { c.Matcher.Threshold = -1 }, "matcher.threshold"},
		"scorer desconhecido":  {func(c *Config) { c.Matcher.Scorer = "bm25" }, "matcher.scorer"},
		"backend desconhecido": {func(c *Config) { c.Knowledge.Backend = "mongo" }, "knowledge.backend"},
		"postgres sem dsn":     {func(c *Config) { c.Knowledge.Backend = "postgres" }, "knowledge.dsn"},
		"modo desconhecido":    {func(c *Config) { c.Telegram.Mode = "push" }, "telegram.mode"},
		"webhook sem url": {func(c *Config) {
			c.Telegram.Mode = ModeWebhook
			c.HTTP.Addr = ":8080"
		}, "telegram.webhook_url"},
		"webhook sem addr": {func(c *Config) {
			c.Telegram.Mode = ModeWebhook
			c.Telegram.WebhookURL = "https://bot.example.com/webhook"
		}, "http.addr"},
		"timeout zero": {func(c *Config) { c.Sessions.IdleTimeout = 0 }, "sessions.idle_timeout"},
	}

	base := validConfig()
	require.NoError(t, base.Validate())

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
