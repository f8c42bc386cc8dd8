// Package tagblock encodes, decodes and strips the tag block that carries
// structured field values inside a Telegram post caption.
package tagblock

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Kind controls how a field value is written to and read from a block.
type Kind string

const (
	// KindText values are written verbatim on a single line.
	KindText Kind = "text"
	// KindSingleChoice values are written as hashtags.
	KindSingleChoice Kind = "select"
	// KindMultiChoice values are written as space-separated hashtags.
	KindMultiChoice Kind = "multi_select"
)

// ParseKind maps a stored or user-supplied kind name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "":
		return KindText, nil
	case "select", "single_choice":
		return KindSingleChoice, nil
	case "multi_select", "multi_choice":
		return KindMultiChoice, nil
	default:
		return "", fmt.Errorf("unknown field kind %q", s)
	}
}

// UnmarshalJSON accepts every spelling ParseKind does.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode field kind: %w", err)
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// IsChoice reports whether values of this kind are written as hashtags.
func (k Kind) IsChoice() bool {
	return k == KindSingleChoice || k == KindMultiChoice
}

// Field describes one taggable attribute of a post. Label, not Key, is the
// identifier written inside a block, so renaming a label orphans values
// already written under the old one.
type Field struct {
	Key     string   `json:"key"`
	Label   string   `json:"label"`
	Kind    Kind     `json:"type"`
	Choices []string `json:"options,omitempty"`
}

// Encode renders values as a tag block to append to a caption. Fields are
// emitted in the given order and only when their trimmed value is
// non-empty. It returns "" when nothing would be emitted.
func Encode(values map[string]string, fields []Field) string {
	lines := make([]string, 0, len(fields))
	for _, field := range fields {
		value := strings.TrimSpace(values[field.Key])
		if value == "" {
			continue
		}
		if field.Kind.IsChoice() {
			value = hashtags(value)
		} else {
			value = singleLine(value)
		}
		lines = append(lines, LinePrefix+field.Label+": "+value)
	}
	if len(lines) == 0 {
		return ""
	}
	return "\n\n" + Header + "\n" + strings.Join(lines, "\n") + "\n" + Footer
}

// singleLine joins the lines of value with a space so a value can never
// end the block early.
func singleLine(value string) string {
	parts := strings.FieldsFunc(value, isLineBreak)
	kept := parts[:0]
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, " ")
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}

func hashtags(value string) string {
	parts := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	for i, part := range parts {
		if !strings.HasPrefix(part, "#") {
			parts[i] = "#" + part
		}
	}
	return strings.Join(parts, " ")
}

// Decode recovers field values from the first block found in text, trying
// the current generation before the legacy ones. Lines whose label matches
// no field are dropped. Only current-generation values go through
// ParseSmart; legacy values are always scalars.
func Decode(text string, fields []Field) map[string]Value {
	data := make(map[string]Value)
	rec, match := find(text)
	if rec == nil {
		return data
	}

	labelToKey := make(map[string]string, len(fields))
	for _, f := range fields {
		labelToKey[labelKey(f.Label)] = f.Key
	}

	for _, line := range strings.Split(match, "\n") {
		m := rec.line.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key, ok := labelToKey[labelKey(m[1])]
		if !ok {
			continue
		}
		raw := strings.TrimSpace(m[2])
		if rec.smart {
			data[key] = ParseSmart(raw)
		} else {
			data[key] = ScalarValue(raw)
		}
	}
	return data
}

// DecodeStrings is Decode with every value flattened to the comma-joined
// form accepted by Encode.
func DecodeStrings(text string, fields []Field) map[string]string {
	decoded := Decode(text, fields)
	out := make(map[string]string, len(decoded))
	for key, value := range decoded {
		out[key] = value.Join(", ")
	}
	return out
}

// Detect reports which generation of block, if any, text contains.
func Detect(text string) Generation {
	rec, _ := find(text)
	if rec == nil {
		return GenerationNone
	}
	return rec.generation
}

// Strip removes every recognized block from text together with the blank
// lines around it, then trims the result. Passes repeat until nothing
// matches, since removing a legacy block can close up a current one.
func Strip(text string) string {
	for {
		next := text
		for _, rec := range recognizers {
			next = rec.strip.ReplaceAllLiteralString(next, "\n")
		}
		if next == text {
			break
		}
		text = next
	}
	return strings.TrimSpace(text)
}

// Retag replaces any block in text with a freshly encoded one.
func Retag(text string, values map[string]string, fields []Field) string {
	return Strip(text) + Encode(values, fields)
}

func find(text string) (*recognizer, string) {
	for i := range recognizers {
		m := recognizers[i].block.FindStringSubmatch(text)
		if m != nil {
			return &recognizers[i], m[1]
		}
	}
	return nil, ""
}

func labelKey(label string) string {
	return norm.NFC.String(strings.TrimSpace(label))
}
