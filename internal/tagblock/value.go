package tagblock

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode"
)

// Value is one decoded field value: either a scalar string or a list of
// hashtag tokens.
type Value struct {
	Scalar string
	List   []string
	IsList bool
}

// ScalarValue returns a scalar Value.
func ScalarValue(s string) Value {
	return Value{Scalar: s}
}

// ListValue returns a list Value. The list is never nil, even when empty.
func ListValue(items ...string) Value {
	if items == nil {
		items = []string{}
	}
	return Value{List: items, IsList: true}
}

// Join renders the value as a single string, joining list items with sep.
func (v Value) Join(sep string) string {
	if v.IsList {
		return strings.Join(v.List, sep)
	}
	return v.Scalar
}

// Items returns the value as a token list. A non-empty scalar is a
// one-element list.
func (v Value) Items() []string {
	if v.IsList {
		return v.List
	}
	if v.Scalar == "" {
		return nil
	}
	return []string{v.Scalar}
}

// MarshalJSON encodes scalars as JSON strings and lists as arrays.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsList {
		list := v.List
		if list == nil {
			list = []string{}
		}
		return json.Marshal(list)
	}
	return json.Marshal(v.Scalar)
}

// UnmarshalJSON accepts either a JSON string or an array of strings.
func (v *Value) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = ScalarValue(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*v = ListValue(list...)
		return nil
	}
	return errors.New("tag value must be a string or an array of strings")
}

// Normalize canonicalizes one user-entered tag token: it trims the input,
// drops at most one leading '#', and replaces every whitespace run with '_'
// so multi-word tags survive as a single hashtag.
func Normalize(raw string) string {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "#")

	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('_')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// ParseSmart classifies a raw decoded value. Any '#' in the trimmed value
// makes it a list of whitespace-separated tokens with one leading '#'
// removed from each; otherwise the trimmed string is returned as a scalar.
//
// A free-text value that happens to contain '#' is read as a list. There is
// no escape for this on the wire.
func ParseSmart(raw string) Value {
	trimmed := strings.TrimSpace(raw)
	if !strings.Contains(trimmed, "#") {
		return ScalarValue(trimmed)
	}

	tokens := strings.FieldsFunc(trimmed, unicode.IsSpace)
	items := make([]string, 0, len(tokens))
	for _, token := range tokens {
		token = strings.TrimPrefix(token, "#")
		if token == "" {
			continue
		}
		items = append(items, token)
	}
	return ListValue(items...)
}
