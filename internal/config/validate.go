package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validatable is implemented by config sections that can self-validate.
type Validatable interface {
	Validate() error
}

// ValidationReport carries non-fatal findings from ValidateStartup.
type ValidationReport struct {
	Warnings []string
}

// Validate checks required LLM provider fields and provider-specific rules.
func (c LLMProviderConfig) Validate() error {
	if c.Provider == "" {
		return errors.New("provider is required")
	}
	if c.Model == "" {
		return errors.New("model is required")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout must be > 0")
	}

	switch c.Provider {
	case "anthropic", "openrouter":
		if c.APIKey == "" {
			return errors.New("api_key is required")
		}
	default:
		return fmt.Errorf("unsupported provider %q", c.Provider)
	}
	return nil
}

// Validate checks the bot token and update mode.
func (c TelegramConfig) Validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return errors.New("token is required")
	}
	switch c.Mode {
	case TelegramModePolling, TelegramModeWebhook:
		return nil
	default:
		return fmt.Errorf("invalid mode %q (allowed: %q, %q)", c.Mode, TelegramModePolling, TelegramModeWebhook)
	}
}

// Validate checks the listen address and public origin.
func (c HTTPConfig) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return errors.New("listen is required")
	}
	if strings.TrimSpace(c.PublicURL) == "" {
		return errors.New("public_url is required")
	}
	u, err := url.Parse(c.PublicURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("public_url %q must be an absolute URL", c.PublicURL)
	}
	return nil
}

// Validate checks the maintenance schedule.
func (c StoreConfig) Validate() error {
	if strings.TrimSpace(c.GCSchedule) == "" {
		return nil
	}
	if _, err := cron.ParseStandard(c.GCSchedule); err != nil {
		return fmt.Errorf("invalid gc_schedule %q: %w", c.GCSchedule, err)
	}
	return nil
}

// Validate checks the auto-fill rate limit and budget.
func (c AIConfig) Validate() error {
	if c.Enabled && c.RequestsPerMinute <= 0 {
		return errors.New("requests_per_minute must be > 0 when enabled=true")
	}
	if c.DailyBudgetUSD < 0 {
		return errors.New("daily_budget_usd must be >= 0")
	}
	if c.ChatDailyBudgetUSD < 0 {
		return errors.New("chat_daily_budget_usd must be >= 0")
	}
	return nil
}

// ValidateStartup validates startup configuration and returns warning messages.
func ValidateStartup(cfg *Config) (*ValidationReport, error) {
	var errs []error
	report := &ValidationReport{}

	sections := []struct {
		name    string
		section Validatable
	}{
		{name: "telegram", section: cfg.Telegram},
		{name: "http", section: cfg.HTTP},
		{name: "store", section: cfg.Store},
		{name: "ai", section: cfg.AI},
	}
	for _, s := range sections {
		if err := s.section.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}

	if cfg.AI.Enabled {
		if err := cfg.DefaultLLM().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("llm.%s: %w", defaultLLMProfile, err))
		}
	}

	if cfg.Telegram.Mode == TelegramModeWebhook && strings.TrimSpace(cfg.Telegram.WebhookSecret) == "" {
		report.Warnings = append(report.Warnings, "telegram.webhook_secret is empty; webhook requests are not authenticated")
	}
	if u, err := url.Parse(cfg.HTTP.PublicURL); err == nil && u.Scheme != "" && u.Scheme != "https" {
		report.Warnings = append(report.Warnings, "http.public_url is not https; Telegram clients refuse to open Web App buttons over plain http")
	}

	if len(errs) > 0 {
		return report, errors.Join(errs...)
	}
	return report, nil
}
