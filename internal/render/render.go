// Package render formats chat turns for the terminal. Assistant turns are
// markdown; user turns are printed exactly as typed.
package render

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/kalambet/prepgen/internal/chat"
)

type Renderer struct {
	md *glamour.TermRenderer
}

// New builds a Renderer. style is "auto", "plain", or a glamour style name
// or JSON style path; width is the word-wrap column.
func New(style string, width int) (*Renderer, error) {
	if width <= 0 {
		width = 80
	}
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	switch style {
	case "", "auto":
		opts = append(opts, glamour.WithAutoStyle())
	case "plain":
		opts = append(opts, glamour.WithStylePath("notty"))
	default:
		opts = append(opts, glamour.WithStylePath(style))
	}
	md, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating markdown renderer: %w", err)
	}
	return &Renderer{md: md}, nil
}

// Markdown renders s, falling back to the raw text if rendering fails.
func (r *Renderer) Markdown(s string) string {
	out, err := r.md.Render(s)
	if err != nil {
		slog.Debug("markdown render failed", "error", err)
		return s
	}
	return out
}

// Turn renders one transcript entry.
func (r *Renderer) Turn(t chat.ChatTurn) string {
	if t.Speaker == chat.User {
		return "You: " + t.Text + "\n"
	}
	if t.IsMarkdown {
		return r.Markdown(t.Text)
	}
	return t.Text + "\n"
}

// Transcript renders turns in order, headed by the context's name.
func (r *Renderer) Transcript(doc chat.DocumentContext, turns []chat.ChatTurn) string {
	var b strings.Builder
	if !doc.IsZero() {
		fmt.Fprintf(&b, "Chat: %s\n\n", doc.DisplayName)
	}
	for _, t := range turns {
		b.WriteString(r.Turn(t))
	}
	return b.String()
}
