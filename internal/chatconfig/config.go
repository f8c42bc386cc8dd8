// Package chatconfig holds the per-chat tagging schema and its persistence.
package chatconfig

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/neoclaw-ai/tagbot/internal/tagblock"
)

// ErrNotFound is returned when a chat has no stored configuration.
var ErrNotFound = errors.New("chat config not found")

// FieldConfig is a field descriptor plus the form options stored with it.
type FieldConfig struct {
	tagblock.Field
	// AllowNew lets submitted choice values extend Choices.
	AllowNew bool `json:"allow_new,omitempty"`
	Required bool `json:"required,omitempty"`
}

// AIConfig controls auto-fill for one chat. Provider credentials live in the
// process config.
type AIConfig struct {
	Enabled     bool   `json:"enabled"`
	Description string `json:"description,omitempty"`
}

// ChatConfig is the tagging schema of one channel or group.
type ChatConfig struct {
	Fields []FieldConfig `json:"fields"`
	// DynamicOptions records choice values learned from submissions, by field key.
	DynamicOptions map[string][]string `json:"dynamic_options,omitempty"`
	AI             *AIConfig           `json:"ai_config,omitempty"`
}

// Descriptors returns the codec view of the configured fields, in order.
func (c *ChatConfig) Descriptors() []tagblock.Field {
	if c == nil {
		return nil
	}
	out := make([]tagblock.Field, 0, len(c.Fields))
	for _, f := range c.Fields {
		out = append(out, f.Field)
	}
	return out
}

// FieldByKey looks up one field.
func (c *ChatConfig) FieldByKey(key string) (FieldConfig, bool) {
	if c == nil {
		return FieldConfig{}, false
	}
	for _, f := range c.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return FieldConfig{}, false
}

// AIEnabled reports whether auto-fill is switched on for this chat.
func (c *ChatConfig) AIEnabled() bool {
	return c != nil && c.AI != nil && c.AI.Enabled
}

// LearnOptions appends submitted choice values that are not yet known to the
// Choices of every AllowNew choice field. Values are split on commas and
// whitespace and normalized first. It reports whether the config changed.
func (c *ChatConfig) LearnOptions(values map[string]string) bool {
	if c == nil {
		return false
	}

	changed := false
	for i := range c.Fields {
		field := &c.Fields[i]
		if !field.AllowNew || !field.Kind.IsChoice() {
			continue
		}
		raw := strings.TrimSpace(values[field.Key])
		if raw == "" {
			continue
		}

		known := make(map[string]struct{}, len(field.Choices))
		for _, choice := range field.Choices {
			known[tagblock.Normalize(choice)] = struct{}{}
		}

		tokens := strings.FieldsFunc(raw, func(r rune) bool {
			return r == ',' || unicode.IsSpace(r)
		})
		for _, token := range tokens {
			token = tagblock.Normalize(token)
			if token == "" {
				continue
			}
			if _, ok := known[token]; ok {
				continue
			}
			known[token] = struct{}{}
			field.Choices = append(field.Choices, token)
			if c.DynamicOptions == nil {
				c.DynamicOptions = make(map[string][]string)
			}
			c.DynamicOptions[field.Key] = append(c.DynamicOptions[field.Key], token)
			changed = true
		}
	}
	return changed
}

// Validate checks that the schema can round-trip through a tag block: keys
// and labels are present and unique, and labels survive the line grammar.
func (c *ChatConfig) Validate() error {
	if c == nil {
		return errors.New("config is required")
	}

	var errs []error
	keys := make(map[string]struct{}, len(c.Fields))
	labels := make(map[string]struct{}, len(c.Fields))
	for i, f := range c.Fields {
		key := strings.TrimSpace(f.Key)
		label := strings.TrimSpace(f.Label)
		switch {
		case key == "":
			errs = append(errs, fmt.Errorf("fields[%d]: key is required", i))
		case key != f.Key:
			errs = append(errs, fmt.Errorf("fields[%d]: key %q has surrounding whitespace", i, f.Key))
		default:
			if _, dup := keys[key]; dup {
				errs = append(errs, fmt.Errorf("fields[%d]: duplicate key %q", i, key))
			}
			keys[key] = struct{}{}
		}

		switch {
		case label == "":
			errs = append(errs, fmt.Errorf("fields[%d]: label is required", i))
		case strings.ContainsAny(label, ":\n"):
			errs = append(errs, fmt.Errorf("fields[%d]: label %q must not contain ':' or line breaks", i, label))
		default:
			if _, dup := labels[label]; dup {
				errs = append(errs, fmt.Errorf("fields[%d]: duplicate label %q", i, label))
			}
			labels[label] = struct{}{}
		}

		switch f.Kind {
		case tagblock.KindText, tagblock.KindSingleChoice, tagblock.KindMultiChoice:
		default:
			errs = append(errs, fmt.Errorf("fields[%d]: unsupported type %q", i, f.Kind))
		}
	}
	return errors.Join(errs...)
}
