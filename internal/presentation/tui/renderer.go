// Package tui renders conversation output for terminals.
package tui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aretw0/tendril/pkg/domain"
	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

const defaultWidth = 80

// NewRenderer returns a function that renders markdown using glamour,
// wrapped to the terminal width.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(terminalWidth()),
	)
	if err != nil {
		return plain
	}

	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

func plain(s string) (string, error) {
	return s, nil
}

func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return defaultWidth
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}

// Printer writes messages. Markdown is rendered only when the output is a
// terminal.
type Printer struct {
	out    io.Writer
	render func(string) (string, error)
}

// NewPrinter creates a printer for out. Markdown is rendered when out is a
// terminal and raw is false.
func NewPrinter(out io.Writer, raw bool) *Printer {
	p := &Printer{out: out, render: plain}
	if f, ok := out.(*os.File); ok && !raw && term.IsTerminal(int(f.Fd())) {
		p.render = NewRenderer()
	}
	return p
}

// PrintMessage writes one message prefixed with its role.
func (p *Printer) PrintMessage(m *domain.Message) error {
	body, err := p.render(m.Content)
	if err != nil {
		body = m.Content
	}
	_, err = fmt.Fprintf(p.out, "%s> %s\n", roleLabel(m), strings.TrimRight(body, "\n"))
	return err
}

// PrintAnswer writes the answer text alone.
func (p *Printer) PrintAnswer(text string) error {
	body, err := p.render(text)
	if err != nil {
		body = text
	}
	_, err = fmt.Fprintln(p.out, strings.TrimRight(body, "\n"))
	return err
}

func roleLabel(m *domain.Message) string {
	if m.AuthorKind == domain.AuthorUser {
		return "user"
	}
	return "agent"
}
