package diag

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"crucible/compiler/source"
)

// Renderer groups diagnostics by source file and prints a code snippet with
// a configurable number of context lines. fatih/color handles the terminal
// underline/level coloring.
type Renderer struct {
	ContextLines int
	NoColor bool
	sourceLoader func(file string) ([]string, error)
}

func NewRenderer(contextLines int, loadSource func(file string) ([]string, error)) *Renderer {
	return &Renderer{ContextLines: contextLines, sourceLoader: loadSource}
}

// isTerminalWriter reports whether w is a terminal, so Render only emits
// ANSI color codes when something is actually there to interpret them.
func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func levelColor(l Level) *color.Color {
	switch l {
	case LevelError:
		return color.New(color.FgRed, color.Bold)
	case LevelWarning:
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.FgCyan, color.Bold)
	}
}

// Render writes every diagnostic, grouped by the file its primary label
// points at (diagnostics with no span are printed first, ungrouped).
func (r *Renderer) Render(w io.Writer, diags []*Diagnostic) {
	color.NoColor = r.NoColor || !isTerminalWriter(w)

	byFile := map[string][]*Diagnostic{}
	var order []string
	var unspanned []*Diagnostic

	for _, d := range diags {
		if d.Primary.Span.IsZero() {
			unspanned = append(unspanned, d)
			continue
		}
		f := d.Primary.Span.File
		if _, ok := byFile[f]; !ok {
			order = append(order, f)
		}
		byFile[f] = append(byFile[f], d)
	}

	for _, d := range unspanned {
		r.renderOne(w, d, nil)
	}
	for _, f := range order {
		var lines []string
		if r.sourceLoader != nil {
			lines, _ = r.sourceLoader(f)
		}
		for _, d := range byFile[f] {
			r.renderOne(w, d, lines)
		}
	}
}

func (r *Renderer) renderOne(w io.Writer, d *Diagnostic, lines []string) {
	lc := levelColor(d.Level)
	fmt.Fprintf(w, "%s[%s]: %s\n", lc.Sprint(d.Level.String()), d.Code, d.Primary.Message)

	if !d.Primary.Span.IsZero() {
		fmt.Fprintf(w, " --> %s\n", d.Primary.Span)
		r.printSnippet(w, d.Primary.Span, lines)
	}
	for _, sec := range d.Secondary {
		fmt.Fprintf(w, " note: %s (%s)\n", sec.Message, sec.Span)
	}
	for _, h := range d.Help {
		fmt.Fprintf(w, " help: %s\n", h)
	}
	if d.Reason != "" {
		fmt.Fprintf(w, " reason: %s\n", d.Reason)
	}
	fmt.Fprintln(w)
}

// printSnippet prints the span's own lines plus up to ContextLines lines of
// context on each side, clipped to the file.
func (r *Renderer) printSnippet(w io.Writer, span source.Span, lines []string) {
	if len(lines) == 0 {
		return
	}
	n := r.ContextLines
	if n < 0 {
		n = 0
	}
	first := span.StartLine - n
	if first < 1 {
		first = 1
	}
	last := span.EndLine + n
	if last > len(lines) {
		last = len(lines)
	}
	for i := first; i <= last; i++ {
		fmt.Fprintf(w, " %4d | %s\n", i, strings.TrimRight(lines[i-1], "\n"))
	}
}
