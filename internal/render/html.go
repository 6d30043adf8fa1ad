package render

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/stupiduntilnot/chatkeep/internal/turn"
)

// HTML renders turns as sanitized HTML fragments.
type HTML struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewHTML returns an HTML renderer. Raw HTML in model output is never passed
// through; the converted markup is sanitized again before use.
func NewHTML() *HTML {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Typographer),
		goldmark.WithRendererOptions(goldhtml.WithHardWraps()),
	)
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "pre")
	return &HTML{md: md, policy: policy}
}

// RenderTurn implements Renderer.
func (r *HTML) RenderTurn(t turn.Turn) (string, error) {
	if t.IsUser {
		return `<div class="user-message-container"><div class="user-message-text">` +
			html.EscapeString(t.Content) + `</div></div>`, nil
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(t.Content), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return `<div class="bot-message"><div class="message-content">` +
		r.policy.Sanitize(buf.String()) + `</div></div>`, nil
}

// Document renders a standalone page with every turn in order.
func (r *HTML) Document(title string, turns []turn.Turn) (string, error) {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>")
	b.WriteString(html.EscapeString(title))
	b.WriteString("</title>\n</head>\n<body>\n<div id=\"chatBox\">\n")
	for _, t := range turns {
		frag, err := r.RenderTurn(t)
		if err != nil {
			return "", err
		}
		b.WriteString(frag)
		b.WriteString("\n")
	}
	b.WriteString("</div>\n</body>\n</html>\n")
	return b.String(), nil
}
