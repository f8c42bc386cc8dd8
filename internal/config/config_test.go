package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, homeDir, body string) {
	t.Helper()
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(homeDir, "config.toml"), []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	homeDir := filepath.Join(t.TempDir(), ".tagbot")
	t.Setenv(HomeEnv, homeDir)

	writeConfigFile(t, homeDir, `
[telegram]
token = "bot-token"
mode = "webhook"
webhook_secret = "s3cret"

[http]
listen = "127.0.0.1:9000"
public_url = "https://tags.example.org"
allowed_origins = "https://a.example.org,https://b.example.org"
read_timeout = "5s"

[llm.default]
api_key = "test-key"
provider = "openrouter"
model = "deepseek/deepseek-chat"

[ai]
enabled = true
requests_per_minute = 2
chat_daily_budget_usd = 0.5
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Telegram.Token != "bot-token" {
		t.Fatalf("expected telegram token from file, got %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.Mode != TelegramModeWebhook {
		t.Fatalf("expected webhook mode, got %q", cfg.Telegram.Mode)
	}
	if cfg.HTTP.Listen != "127.0.0.1:9000" {
		t.Fatalf("expected listen address from file, got %q", cfg.HTTP.Listen)
	}
	if len(cfg.HTTP.AllowedOrigins) != 2 || cfg.HTTP.AllowedOrigins[1] != "https://b.example.org" {
		t.Fatalf("expected comma separated origins to split, got %v", cfg.HTTP.AllowedOrigins)
	}
	if cfg.HTTP.ReadTimeout != 5*time.Second {
		t.Fatalf("expected read timeout 5s, got %v", cfg.HTTP.ReadTimeout)
	}
	if cfg.HTTP.WriteTimeout != defaultConfig.HTTP.WriteTimeout {
		t.Fatalf("expected default write timeout, got %v", cfg.HTTP.WriteTimeout)
	}

	llm := cfg.DefaultLLM()
	if llm.Provider != "openrouter" || llm.Model != "deepseek/deepseek-chat" {
		t.Fatalf("expected llm profile from file, got %+v", llm)
	}
	if !cfg.AI.Enabled || cfg.AI.RequestsPerMinute != 2 || cfg.AI.ChatDailyBudgetUSD != 0.5 {
		t.Fatalf("expected ai section from file, got %+v", cfg.AI)
	}
}

func TestLoad_ExpandsEnvVarsInStringValues(t *testing.T) {
	homeDir := filepath.Join(t.TempDir(), ".tagbot")
	t.Setenv(HomeEnv, homeDir)
	t.Setenv("TELEGRAM_BOT_TOKEN", "expanded-token")
	t.Setenv("ANTHROPIC_API_KEY", "expanded-key")

	writeConfigFile(t, homeDir, `
[telegram]
token = "$TELEGRAM_BOT_TOKEN"

[llm.default]
api_key = "${ANTHROPIC_API_KEY}"
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Telegram.Token != "expanded-token" {
		t.Fatalf("expected expanded token, got %q", cfg.Telegram.Token)
	}
	if cfg.DefaultLLM().APIKey != "expanded-key" {
		t.Fatalf("expected expanded api key, got %q", cfg.DefaultLLM().APIKey)
	}
}

func TestLoad_DefaultsApplyWithoutConfigFile(t *testing.T) {
	homeDir := filepath.Join(t.TempDir(), ".tagbot")
	t.Setenv(HomeEnv, homeDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.HomeDir != homeDir {
		t.Fatalf("expected home dir %q, got %q", homeDir, cfg.HomeDir)
	}
	if cfg.Telegram.Mode != TelegramModePolling {
		t.Fatalf("expected default polling mode, got %q", cfg.Telegram.Mode)
	}
	if cfg.HTTP.Listen != ":8080" {
		t.Fatalf("expected default listen :8080, got %q", cfg.HTTP.Listen)
	}
	if cfg.Store.GCSchedule != "@every 1h" {
		t.Fatalf("expected default gc schedule, got %q", cfg.Store.GCSchedule)
	}
	llm := cfg.DefaultLLM()
	if llm.Provider != defaultConfig.LLM[defaultLLMProfile].Provider {
		t.Fatalf("expected default provider %q, got %q", defaultConfig.LLM[defaultLLMProfile].Provider, llm.Provider)
	}
	if llm.MaxTokens != defaultConfig.LLM[defaultLLMProfile].MaxTokens {
		t.Fatalf("expected default max tokens %d, got %d", defaultConfig.LLM[defaultLLMProfile].MaxTokens, llm.MaxTokens)
	}
	if cfg.AI.Enabled {
		t.Fatalf("expected ai disabled by default")
	}

	expectedStore := filepath.Join(homeDir, "data", "chats")
	if cfg.StoreDir() != expectedStore {
		t.Fatalf("expected store dir %q, got %q", expectedStore, cfg.StoreDir())
	}
}

func TestStoreDir_ExplicitOverride(t *testing.T) {
	cfg := &Config{HomeDir: "/srv/tagbot", Store: StoreConfig{Dir: "/var/lib/tagbot"}}
	if cfg.StoreDir() != "/var/lib/tagbot" {
		t.Fatalf("expected explicit store dir, got %q", cfg.StoreDir())
	}
	if cfg.PIDPath() != filepath.Join("/srv/tagbot", "data", "tagbot.pid") {
		t.Fatalf("unexpected pid path %q", cfg.PIDPath())
	}
}

func TestHomeDir_DefaultsToUserHome(t *testing.T) {
	t.Setenv(HomeEnv, "")
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("get user home: %v", err)
	}

	dir, err := HomeDir()
	if err != nil {
		t.Fatalf("home dir: %v", err)
	}
	expected := filepath.Join(home, ".tagbot")
	if dir != expected {
		t.Fatalf("expected %q, got %q", expected, dir)
	}
}

func TestHomeDir_RespectsEnvVar(t *testing.T) {
	customDir := "/tmp/my-tagbot"
	t.Setenv(HomeEnv, customDir)

	dir, err := HomeDir()
	if err != nil {
		t.Fatalf("home dir: %v", err)
	}
	if dir != customDir {
		t.Fatalf("expected %q, got %q", customDir, dir)
	}
}

func TestWrite_RendersMergedTOML(t *testing.T) {
	homeDir := filepath.Join(t.TempDir(), ".tagbot")
	t.Setenv(HomeEnv, homeDir)
	writeConfigFile(t, homeDir, `
[telegram]
token = "file-token"
`)

	var out bytes.Buffer
	if err := Write(&out); err != nil {
		t.Fatalf("write config: %v", err)
	}
	got := out.String()
	for _, want := range []string{"file-token", "30s", "@every 1h"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected merged config to contain %q, got:\n%s", want, got)
		}
	}
}

func TestDefaultUserConfigTOML_IsLoadable(t *testing.T) {
	body, err := DefaultUserConfigTOML()
	if err != nil {
		t.Fatalf("render default config: %v", err)
	}
	if !strings.Contains(body, "$TELEGRAM_BOT_TOKEN") {
		t.Fatalf("expected token placeholder, got:\n%s", body)
	}

	homeDir := filepath.Join(t.TempDir(), ".tagbot")
	t.Setenv(HomeEnv, homeDir)
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	writeConfigFile(t, homeDir, body)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load default config: %v", err)
	}
	if cfg.Telegram.Token != "tok" {
		t.Fatalf("expected expanded token placeholder, got %q", cfg.Telegram.Token)
	}
	if cfg.HTTP.PublicURL != defaultUserConfig.HTTP.PublicURL {
		t.Fatalf("expected public url %q, got %q", defaultUserConfig.HTTP.PublicURL, cfg.HTTP.PublicURL)
	}
}
