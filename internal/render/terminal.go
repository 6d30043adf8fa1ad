package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/stupiduntilnot/chatkeep/internal/turn"
)

var (
	userLabel  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	modelLabel = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
)

// Terminal renders turns for an ANSI terminal.
type Terminal struct {
	md *glamour.TermRenderer
}

// NewTerminal builds a terminal renderer. style is a glamour standard style
// name ("dark", "light", "notty", ...); empty picks one from the terminal.
func NewTerminal(style string, wordWrap int) (*Terminal, error) {
	if wordWrap <= 0 {
		wordWrap = 80
	}
	styleOpt := glamour.WithAutoStyle()
	if style != "" {
		styleOpt = glamour.WithStandardStyle(style)
	}
	md, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(wordWrap))
	if err != nil {
		return nil, fmt.Errorf("create markdown renderer: %w", err)
	}
	return &Terminal{md: md}, nil
}

// RenderTurn implements Renderer.
func (r *Terminal) RenderTurn(t turn.Turn) (string, error) {
	if t.IsUser {
		return userLabel.Render("you") + "\n" + stripControl(t.Content) + "\n", nil
	}
	out, err := r.md.Render(t.Content)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return modelLabel.Render("bot") + "\n" + strings.TrimRight(out, "\n") + "\n", nil
}
