// Package provider talks to the LLM backends used for tag auto-fill.
package provider

import "context"

// Provider sends chat requests to an LLM backend.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Role is the author role for a chat message.
type Role string

const (
	// RoleUser is a user-authored message.
	RoleUser Role = "user"
	// RoleAssistant is an assistant-authored message.
	RoleAssistant Role = "assistant"
)

// ChatMessage is a single message in the conversation.
type ChatMessage struct {
	Role    Role
	Content string
}

// TokenUsage reports provider token accounting for one response.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	// CostUSD is set when the provider reports a price.
	CostUSD *float64
}

// ChatRequest is the provider-agnostic request payload.
type ChatRequest struct {
	SystemPrompt string
	Messages     []ChatMessage
	MaxTokens    int
	// JSONObject asks the backend to answer with a single JSON object where
	// it supports that. Callers still parse defensively.
	JSONObject bool
}

// ChatResponse is the provider-agnostic response payload.
type ChatResponse struct {
	Content string
	Usage   TokenUsage
}
