package provider

import (
	"fmt"
	"strings"

	"github.com/neoclaw-ai/tagbot/internal/config"
)

// defaultMaxTokens applies when neither the request nor the profile sets a
// limit. Anthropic rejects requests without one.
const defaultMaxTokens = 1024

func resolveMaxTokens(requestMaxTokens, configuredMaxTokens int) int {
	if requestMaxTokens > 0 {
		return requestMaxTokens
	}
	if configuredMaxTokens > 0 {
		return configuredMaxTokens
	}
	return defaultMaxTokens
}

// NewProviderFromConfig builds an LLM provider from the selected LLM profile.
func NewProviderFromConfig(cfg config.LLMProviderConfig) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "anthropic":
		return newAnthropicProvider(cfg)
	case "openrouter":
		return newOpenRouterProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}
