// Package printer provides styled terminal output for CLI commands.
// Commands fetch the printer from the context so tests can capture output.
package printer

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

type ctxKey struct{}

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

// Printer writes styled lines to a writer.
type Printer struct {
	w io.Writer
}

// New creates a printer writing to w.
func New(w io.Writer) *Printer {
	return &Printer{w: w}
}

// WithContext returns a context carrying the printer.
func WithContext(ctx context.Context, p *Printer) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// Ctx returns the printer from the context, or a stdout printer if none is set.
func Ctx(ctx context.Context) *Printer {
	if p, ok := ctx.Value(ctxKey{}).(*Printer); ok {
		return p
	}
	return New(os.Stdout)
}

// Printf writes a plain line.
func (p *Printer) Printf(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

// Faintf writes a de-emphasized line.
func (p *Printer) Faintf(format string, args ...any) {
	fmt.Fprintln(p.w, faintStyle.Render(fmt.Sprintf(format, args...)))
}

// Success writes a success line.
func (p *Printer) Success(msg string) {
	fmt.Fprintln(p.w, successStyle.Render("✓ ")+msg)
}

// Successf writes a formatted success line.
func (p *Printer) Successf(format string, args ...any) {
	p.Success(fmt.Sprintf(format, args...))
}

// Infof writes an informational line.
func (p *Printer) Infof(format string, args ...any) {
	fmt.Fprintln(p.w, infoStyle.Render("• ")+fmt.Sprintf(format, args...))
}

// Warnf writes a warning line.
func (p *Printer) Warnf(format string, args ...any) {
	fmt.Fprintln(p.w, warnStyle.Render("! ")+fmt.Sprintf(format, args...))
}

// Errorf writes an error line.
func (p *Printer) Errorf(format string, args ...any) {
	fmt.Fprintln(p.w, errorStyle.Render("✗ ")+fmt.Sprintf(format, args...))
}
