package messages

import (
	_ "embed"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

//go:embed help.md
var helpMarkdown string

var telegramMarkdown = goldmark.New(goldmark.WithExtensions(extension.Strikethrough))

var help = sync.OnceValue(func() string {
	return FormatHTML(helpMarkdown)
})

// Help returns the /help text.
func Help() string {
	return help()
}

// FormatHTML renders Markdown as Telegram HTML. When rendering fails the
// escaped source is returned so the text is still safe to send.
func FormatHTML(markdown string) string {
	out, err := renderTelegram(markdown, telegramMarkdown)
	if err != nil {
		return html.EscapeString(markdown)
	}
	return out
}

// renderTelegram walks the Markdown AST and emits the subset of HTML the Bot
// API accepts. Images and raw HTML are dropped.
func renderTelegram(markdown string, md goldmark.Markdown) (string, error) {
	if md == nil {
		return "", errors.New("markdown parser is required")
	}
	source := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(source))

	var b strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Document:
		case *ast.Heading:
			if entering {
				b.WriteString("<b>")
			} else {
				b.WriteString("</b>")
				blockBreak(&b, n)
			}
		case *ast.Paragraph, *ast.List:
			if !entering {
				blockBreak(&b, n)
			}
		case *ast.ListItem:
			if entering {
				b.WriteString(listMarker(node))
			} else if n.NextSibling() != nil {
				b.WriteByte('\n')
			}
		case *ast.TextBlock:
			if !entering && n.NextSibling() != nil {
				b.WriteByte('\n')
			}
		case *ast.Blockquote:
			if entering {
				b.WriteString("<blockquote>")
			} else {
				b.WriteString("</blockquote>")
				blockBreak(&b, n)
			}
		case *ast.ThematicBreak:
			if entering {
				b.WriteString("──────────")
			} else {
				blockBreak(&b, n)
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if !entering {
				blockBreak(&b, n)
				return ast.WalkContinue, nil
			}
			b.WriteString("<pre><code>")
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.WriteString(html.EscapeString(string(seg.Value(source))))
			}
			b.WriteString("</code></pre>")
			return ast.WalkSkipChildren, nil
		case *ast.Emphasis:
			tag := "i"
			if node.Level >= 2 {
				tag = "b"
			}
			writeTag(&b, tag, entering)
		case *extast.Strikethrough:
			writeTag(&b, "s", entering)
		case *ast.CodeSpan:
			writeTag(&b, "code", entering)
		case *ast.Link:
			if entering {
				fmt.Fprintf(&b, `<a href="%s">`, html.EscapeString(string(node.Destination)))
			} else {
				b.WriteString("</a>")
			}
		case *ast.AutoLink:
			if entering {
				fmt.Fprintf(&b, `<a href="%s">%s</a>`,
					html.EscapeString(string(node.URL(source))),
					html.EscapeString(string(node.Label(source))))
			}
			return ast.WalkSkipChildren, nil
		case *ast.Image, *ast.RawHTML, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			if !entering {
				return ast.WalkContinue, nil
			}
			b.WriteString(html.EscapeString(string(node.Segment.Value(source))))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			if entering {
				b.WriteString(html.EscapeString(string(node.Value)))
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}

func writeTag(b *strings.Builder, tag string, entering bool) {
	if entering {
		b.WriteString("<" + tag + ">")
		return
	}
	b.WriteString("</" + tag + ">")
}

// blockBreak separates n from its next sibling: one newline inside list
// items, a blank line elsewhere.
func blockBreak(b *strings.Builder, n ast.Node) {
	if n.NextSibling() == nil {
		return
	}
	if _, inItem := n.Parent().(*ast.ListItem); inItem {
		b.WriteByte('\n')
		return
	}
	b.WriteString("\n\n")
}

func listMarker(item *ast.ListItem) string {
	depth := 0
	for p := item.Parent(); p != nil; p = p.Parent() {
		if _, ok := p.(*ast.ListItem); ok {
			depth++
		}
	}
	indent := strings.Repeat("  ", depth)

	list, ok := item.Parent().(*ast.List)
	if !ok || !list.IsOrdered() {
		return indent + "• "
	}
	pos := list.Start
	for s := item.PreviousSibling(); s != nil; s = s.PreviousSibling() {
		pos++
	}
	return indent + strconv.Itoa(pos) + ". "
}
