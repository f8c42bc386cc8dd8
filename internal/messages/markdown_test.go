package messages

import (
	"strings"
	"testing"
)

func TestFormatHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "bold",
			input:    "**bold**",
			expected: "<b>bold</b>",
		},
		{
			name:     "italic",
			input:    "*italic*",
			expected: "<i>italic</i>",
		},
		{
			name:     "strikethrough",
			input:    "~~gone~~",
			expected: "<s>gone</s>",
		},
		{
			name:     "heading then paragraph",
			input:    "# Title\n\nbody",
			expected: "<b>Title</b>\n\nbody",
		},
		{
			name:     "inline code",
			input:    "`/config`",
			expected: "<code>/config</code>",
		},
		{
			name:     "fenced code",
			input:    "```go\nfmt.Println(\"hi\")\n```",
			expected: "<pre><code>fmt.Println(&#34;hi&#34;)\n</code></pre>",
		},
		{
			name:     "link",
			input:    "[site](https://example.com)",
			expected: `<a href="https://example.com">site</a>`,
		},
		{
			name:     "bullet list",
			input:    "- one\n- two",
			expected: "• one\n• two",
		},
		{
			name:     "ordered list",
			input:    "1. one\n2. two",
			expected: "1. one\n2. two",
		},
		{
			name:     "nested list",
			input:    "- one\n  - two",
			expected: "• one\n  • two",
		},
		{
			name:     "soft line break",
			input:    "line one\nline two",
			expected: "line one\nline two",
		},
		{
			name:     "escapes text",
			input:    "a < b & c",
			expected: "a &lt; b &amp; c",
		},
		{
			name:     "plain passthrough",
			input:    "hello world",
			expected: "hello world",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatHTML(tt.input)
			if got != tt.expected {
				t.Fatalf("unexpected format output\ninput: %q\ngot: %q\nexpected: %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFormatHTML_OmitsImagesAndRawHTML(t *testing.T) {
	got := FormatHTML(`<b>raw</b> ![img](https://example.com/a.png)`)
	if strings.Contains(got, "<b>") || strings.Contains(got, "<img") {
		t.Fatalf("expected raw html and images to be omitted, got %q", got)
	}
	if !strings.Contains(got, "raw") {
		t.Fatalf("expected text content to survive, got %q", got)
	}
}

func TestRenderTelegram_NilParser(t *testing.T) {
	got, err := renderTelegram("hello", nil)
	if err == nil {
		t.Fatal("expected render error for nil parser")
	}
	if got != "" {
		t.Fatalf("expected empty output on failure, got %q", got)
	}
}

func TestHelp(t *testing.T) {
	got := Help()
	for _, want := range []string{"<b>━━ TAG BOT ━━</b>", "<code>/config</code>", "1. Add the bot", "• <code>/help</code>"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in help text %q", want, got)
		}
	}
	if strings.Contains(got, "**") {
		t.Fatalf("expected markdown markers to be rendered, got %q", got)
	}
}
