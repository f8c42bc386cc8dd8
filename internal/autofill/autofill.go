// Package autofill asks an LLM to suggest tag values for a post.
package autofill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neoclaw-ai/tagbot/internal/chatconfig"
	"github.com/neoclaw-ai/tagbot/internal/costs"
	"github.com/neoclaw-ai/tagbot/internal/logging"
	"github.com/neoclaw-ai/tagbot/internal/provider"
)

var (
	// ErrDisabled is returned for chats without auto-fill enabled.
	ErrDisabled = errors.New("AI not configured")
	// ErrBudgetExceeded is returned once today's spend reaches the budget,
	// either in total or for the requesting chat.
	ErrBudgetExceeded = errors.New("auto-fill daily budget exhausted")
	// ErrNoJSON is returned when the answer holds no parsable JSON object.
	ErrNoJSON = errors.New("model answer has no JSON object")
)

// Ledger records usage and reports spend.
type Ledger interface {
	Append(ctx context.Context, rec costs.Record) error
	Spend(ctx context.Context, now time.Time) (costs.Spend, error)
}

// Options configures a Filler.
type Options struct {
	ProviderName   string
	Model          string
	MaxTokens      int
	DailyBudgetUSD float64
	// ChatDailyBudgetUSD caps one chat's spend per day. Zero disables it.
	ChatDailyBudgetUSD float64
	// Ledger is optional; without it usage is not recorded and the budget is
	// not enforced.
	Ledger Ledger
}

// Filler turns post text into suggested tag values.
type Filler struct {
	provider provider.Provider
	opts     Options
	now      func() time.Time
}

// New creates a Filler.
func New(p provider.Provider, opts Options) *Filler {
	return &Filler{provider: p, opts: opts, now: time.Now}
}

// Suggest returns values for the chat's configured fields in the string form
// accepted by tagblock.Encode.
func (f *Filler) Suggest(ctx context.Context, chatID string, cfg *chatconfig.ChatConfig, rawData string) (map[string]string, error) {
	if f == nil || f.provider == nil || !cfg.AIEnabled() {
		return nil, ErrDisabled
	}
	if err := f.checkBudget(ctx, chatID); err != nil {
		return nil, err
	}

	system, err := SystemPrompt(cfg)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}
	resp, err := f.provider.Chat(ctx, provider.ChatRequest{
		SystemPrompt: system,
		Messages:     []provider.ChatMessage{{Role: provider.RoleUser, Content: userPrompt(rawData)}},
		MaxTokens:    f.opts.MaxTokens,
		JSONObject:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("auto-fill request: %w", err)
	}
	if resp == nil {
		return nil, errors.New("auto-fill response is nil")
	}
	f.recordUsage(ctx, chatID, resp.Usage)

	raw, err := ExtractJSON(resp.Content)
	if err != nil {
		logging.Logger().Debug("unparsable auto-fill answer", "chat_id", chatID, "answer", resp.Content)
		return nil, err
	}
	return Filter(raw, cfg), nil
}

func (f *Filler) checkBudget(ctx context.Context, chatID string) error {
	if f.opts.Ledger == nil || (f.opts.DailyBudgetUSD <= 0 && f.opts.ChatDailyBudgetUSD <= 0) {
		return nil
	}
	spend, err := f.opts.Ledger.Spend(ctx, f.now())
	if err != nil {
		return fmt.Errorf("read auto-fill spend: %w", err)
	}
	if f.opts.DailyBudgetUSD > 0 && spend.TodayUSD >= f.opts.DailyBudgetUSD {
		return ErrBudgetExceeded
	}
	if f.opts.ChatDailyBudgetUSD > 0 && spend.ChatToday(chatID) >= f.opts.ChatDailyBudgetUSD {
		return fmt.Errorf("%w for chat %s", ErrBudgetExceeded, chatID)
	}
	return nil
}

func (f *Filler) recordUsage(ctx context.Context, chatID string, usage provider.TokenUsage) {
	if f.opts.Ledger == nil {
		return
	}
	rec := costs.Record{
		Timestamp:    f.now(),
		ChatID:       chatID,
		Provider:     f.opts.ProviderName,
		Model:        f.opts.Model,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		TotalTokens:  usage.TotalTokens,
		CostUSD:      costs.ResolveUSD(f.opts.ProviderName, f.opts.Model, usage.CostUSD, usage.InputTokens, usage.OutputTokens),
	}
	if err := f.opts.Ledger.Append(ctx, rec); err != nil {
		logging.Logger().Warn("failed to record auto-fill usage", "chat_id", chatID, "err", err)
	}
}

// ExtractJSON pulls the first JSON object out of a model answer. Fenced code
// blocks win over surrounding prose; within the chosen text the span from the
// first '{' to the last '}' is decoded.
func ExtractJSON(answer string) (map[string]any, error) {
	text := strings.TrimSpace(answer)
	if inner, ok := fenced(text, "```json"); ok {
		text = inner
	} else if inner, ok := fenced(text, "```"); ok {
		text = inner
	}
	if first, last := strings.Index(text, "{"), strings.LastIndex(text, "}"); first >= 0 && last > first {
		text = text[first : last+1]
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil || out == nil {
		return nil, ErrNoJSON
	}
	return out, nil
}

func fenced(text, open string) (string, bool) {
	_, rest, found := strings.Cut(text, open)
	if !found {
		return "", false
	}
	inner, _, _ := strings.Cut(rest, "```")
	inner = strings.TrimSpace(inner)
	return inner, inner != ""
}

// Filter keeps configured keys only and flattens each value to one line.
// Arrays are joined with ", ".
func Filter(raw map[string]any, cfg *chatconfig.ChatConfig) map[string]string {
	out := make(map[string]string)
	for _, field := range cfg.Fields {
		v, ok := raw[field.Key]
		if !ok {
			continue
		}
		if s := flatten(v); s != "" {
			out[field.Key] = s
		}
	}
	return out
}

func flatten(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return oneLine(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := flatten(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		return ""
	default:
		return oneLine(fmt.Sprint(t))
	}
}

// oneLine collapses whitespace runs so a value never spans block lines.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
