// Package render turns stored turns into something a person can read.
// User turns are always shown as plain text; model turns are markdown.
package render

import (
	"strings"
	"unicode"

	"github.com/stupiduntilnot/chatkeep/internal/turn"
)

// Renderer formats a single turn.
type Renderer interface {
	RenderTurn(t turn.Turn) (string, error)
}

// stripControl removes control characters except newlines and tabs, so user
// text cannot smuggle terminal escape sequences.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
