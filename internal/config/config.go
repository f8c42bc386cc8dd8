// Package config loads tagbot runtime configuration from a TOML file and environment variables, exposing typed structs and accessors for all sections.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// HomeEnv overrides the tagbot home directory.
	HomeEnv = "TAGBOT_HOME"

	defaultLLMProfile = "default"
)

const (
	// TelegramModePolling receives updates with getUpdates long polling.
	TelegramModePolling = "polling"
	// TelegramModeWebhook receives updates on POST /api/bot.
	TelegramModeWebhook = "webhook"
)

// Config is the runtime configuration loaded from defaults, config.toml, and env vars.
type Config struct {
	// HomeDir is runtime-resolved from TAGBOT_HOME and not read from config.
	HomeDir  string                       `mapstructure:"-"`
	Telegram TelegramConfig               `mapstructure:"telegram"`
	HTTP     HTTPConfig                   `mapstructure:"http"`
	Store    StoreConfig                  `mapstructure:"store"`
	LLM      map[string]LLMProviderConfig `mapstructure:"llm"`
	AI       AIConfig                     `mapstructure:"ai"`
}

// TelegramConfig configures the bot connection.
type TelegramConfig struct {
	Token         string `mapstructure:"token"`
	Mode          string `mapstructure:"mode"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// HTTPConfig configures the API server that backs the Mini App forms.
type HTTPConfig struct {
	Listen string `mapstructure:"listen"`
	// PublicURL is the externally reachable https origin of the forms and API.
	PublicURL      string        `mapstructure:"public_url"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// StoreConfig configures the chat configuration database.
type StoreConfig struct {
	// Dir defaults to <home>/data/chats when empty.
	Dir        string `mapstructure:"dir"`
	GCSchedule string `mapstructure:"gc_schedule"`
}

// LLMProviderConfig configures one LLM provider profile.
type LLMProviderConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	Provider       string        `mapstructure:"provider"`
	Model          string        `mapstructure:"model"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AIConfig gates tag auto-fill.
type AIConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	// DailyBudgetUSD stops auto-fill once today's recorded spend reaches it.
	// Zero disables the limit.
	DailyBudgetUSD float64 `mapstructure:"daily_budget_usd"`
	// ChatDailyBudgetUSD applies the same limit to each chat's own spend.
	ChatDailyBudgetUSD float64 `mapstructure:"chat_daily_budget_usd"`
}

var defaultConfig = Config{
	Telegram: TelegramConfig{
		Mode: TelegramModePolling,
	},
	HTTP: HTTPConfig{
		Listen:       ":8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	},
	Store: StoreConfig{
		GCSchedule: "@every 1h",
	},
	LLM: map[string]LLMProviderConfig{
		defaultLLMProfile: {
			Provider:       "anthropic",
			Model:          "claude-sonnet-4-6",
			MaxTokens:      1024,
			RequestTimeout: 30 * time.Second,
		},
	},
	AI: AIConfig{
		Enabled:           false,
		RequestsPerMinute: 6,
	},
}

// defaultUserConfig is the minimal bootstrap config written for first-time
// users.
var defaultUserConfig = Config{
	Telegram: TelegramConfig{
		Token: "$TELEGRAM_BOT_TOKEN",
		Mode:  TelegramModePolling,
	},
	HTTP: HTTPConfig{
		Listen:    ":8080",
		PublicURL: "https://tags.example.com",
	},
	LLM: map[string]LLMProviderConfig{
		defaultLLMProfile: {
			APIKey:         "$ANTHROPIC_API_KEY",
			Provider:       "anthropic",
			Model:          "claude-sonnet-4-6",
			RequestTimeout: 30 * time.Second,
		},
	},
	AI: AIConfig{
		Enabled: false,
	},
}

// HomeDir returns the tagbot home directory.
// Uses TAGBOT_HOME env var if set, otherwise defaults to ~/.tagbot.
func HomeDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return defaultHomePath(home), nil
}

// Load merges hardcoded defaults and config file values in that order.
// Config is always at $TAGBOT_HOME/config.toml.
func Load() (*Config, error) {
	homeDir, err := HomeDir()
	if err != nil {
		return nil, err
	}

	v, err := readConfig(homeDir)
	if err != nil {
		return nil, err
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		expandEnvStringHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)

	if err := v.Unmarshal(&cfg, func(c *mapstructure.DecoderConfig) {
		c.DecodeHook = decodeHook
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.HomeDir = homeDir

	return &cfg, nil
}

// Write writes the merged configuration (defaults overlaid by user
// config) to w in TOML format.
func Write(w io.Writer) error {
	if w == nil {
		return errors.New("writer is required")
	}

	homeDir, err := HomeDir()
	if err != nil {
		return err
	}

	v, err := readConfig(homeDir)
	if err != nil {
		return err
	}

	// Keep duration fields human-readable in generated TOML.
	v.Set("llm.default.request_timeout", v.GetDuration("llm.default.request_timeout").String())
	v.Set("http.read_timeout", v.GetDuration("http.read_timeout").String())
	v.Set("http.write_timeout", v.GetDuration("http.write_timeout").String())

	if err := v.WriteConfigTo(w); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// DefaultUserConfigTOML renders the minimal bootstrap user config as TOML.
func DefaultUserConfigTOML() (string, error) {
	v := viper.New()
	v.SetConfigType("toml")

	v.Set("telegram.token", defaultUserConfig.Telegram.Token)
	v.Set("telegram.mode", defaultUserConfig.Telegram.Mode)
	v.Set("http.listen", defaultUserConfig.HTTP.Listen)
	v.Set("http.public_url", defaultUserConfig.HTTP.PublicURL)
	for profile, llm := range defaultUserConfig.LLM {
		v.Set("llm."+profile+".api_key", llm.APIKey)
		v.Set("llm."+profile+".provider", llm.Provider)
		v.Set("llm."+profile+".model", llm.Model)
		v.Set("llm."+profile+".request_timeout", llm.RequestTimeout.String())
	}
	v.Set("ai.enabled", defaultUserConfig.AI.Enabled)

	var out bytes.Buffer
	if err := v.WriteConfigTo(&out); err != nil {
		return "", fmt.Errorf("write default user config: %w", err)
	}
	return out.String(), nil
}

func readConfig(homeDir string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(homeConfigPath(homeDir))
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.token", defaultConfig.Telegram.Token)
	v.SetDefault("telegram.mode", defaultConfig.Telegram.Mode)
	v.SetDefault("telegram.webhook_secret", defaultConfig.Telegram.WebhookSecret)

	v.SetDefault("http.listen", defaultConfig.HTTP.Listen)
	v.SetDefault("http.public_url", defaultConfig.HTTP.PublicURL)
	v.SetDefault("http.allowed_origins", defaultConfig.HTTP.AllowedOrigins)
	v.SetDefault("http.read_timeout", defaultConfig.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", defaultConfig.HTTP.WriteTimeout)

	v.SetDefault("store.dir", defaultConfig.Store.Dir)
	v.SetDefault("store.gc_schedule", defaultConfig.Store.GCSchedule)

	llm := defaultConfig.LLM[defaultLLMProfile]
	v.SetDefault("llm.default.api_key", llm.APIKey)
	v.SetDefault("llm.default.provider", llm.Provider)
	v.SetDefault("llm.default.model", llm.Model)
	v.SetDefault("llm.default.max_tokens", llm.MaxTokens)
	v.SetDefault("llm.default.request_timeout", llm.RequestTimeout)

	v.SetDefault("ai.enabled", defaultConfig.AI.Enabled)
	v.SetDefault("ai.requests_per_minute", defaultConfig.AI.RequestsPerMinute)
	v.SetDefault("ai.daily_budget_usd", defaultConfig.AI.DailyBudgetUSD)
	v.SetDefault("ai.chat_daily_budget_usd", defaultConfig.AI.ChatDailyBudgetUSD)
}

// DefaultLLM returns the default LLM profile with fallback defaults.
func (c *Config) DefaultLLM() LLMProviderConfig {
	if llm, ok := c.LLM[defaultLLMProfile]; ok {
		return llm
	}
	return defaultConfig.LLM[defaultLLMProfile]
}

func expandEnvStringHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.String {
			return data, nil
		}
		value, ok := data.(string)
		if !ok {
			return data, nil
		}
		return os.ExpandEnv(value), nil
	}
}
