package tui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/aretw0/inplace/pkg/domain"
)

// Printer writes command output. On a terminal markdown goes through
// glamour; otherwise it is written as is so it can be piped.
type Printer struct {
	w      io.Writer
	render func(string) (string, error)
	out    *termenv.Output
}

// NewPrinter creates a Printer for w. Rendering is enabled when w is a
// terminal, and wraps at its width.
func NewPrinter(w io.Writer) *Printer {
	p := &Printer{w: w, out: termenv.NewOutput(w)}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		width := 100
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 0 {
			width = cols
		}
		p.render = NewRenderer(width)
	}
	return p
}

// NewRenderer returns a function that renders markdown using glamour.
func NewRenderer(width int) func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// Markdown writes markdown, rendered when attached to a terminal.
func (p *Printer) Markdown(md string) error {
	if p.render != nil {
		if out, err := p.render(md); err == nil {
			md = out
		}
	}
	_, err := io.WriteString(p.w, md)
	return err
}

// Nodes prints the nodes as a table.
func (p *Printer) Nodes(nodes []*domain.BundleNode) error {
	return p.Markdown(NodesTable(nodes))
}

// Status prints a job status tree, colored by severity.
func (p *Printer) Status(s *domain.Status) {
	s.Walk(func(depth int, st *domain.Status) {
		line := strings.Repeat("  ", depth) + formatStatus(st)
		styled := p.out.String(line)
		switch {
		case st.Code == domain.StatusWarning:
			styled = styled.Foreground(p.out.Color("3"))
		case st.Code.IsProblem():
			styled = styled.Foreground(p.out.Color("1"))
		case depth == 0:
			styled = styled.Bold()
		}
		fmt.Fprintln(p.w, styled)
	})
}

func formatStatus(st *domain.Status) string {
	var sb strings.Builder
	sb.WriteString(st.Code.String())
	if st.Project != "" {
		sb.WriteString(" [" + string(st.Project) + "]")
	}
	if st.Message != "" {
		sb.WriteString(" " + st.Message)
	}
	if st.Err != nil {
		sb.WriteString(": " + st.Err.Error())
	}
	return sb.String()
}

// NodesTable renders nodes as a markdown table.
func NodesTable(nodes []*domain.BundleNode) string {
	var sb strings.Builder
	sb.WriteString("| Project | Bundle | Activation | State | Transition | Error | Pending |\n")
	sb.WriteString("|---|---|---|---|---|---|---|\n")
	for _, n := range nodes {
		bundle := "-"
		if b := n.Bundle(); b != nil {
			bundle = fmt.Sprintf("%s (#%d)", b.SymbolicKey(), b.ID)
		}
		errText := "-"
		if n.HasTransitionError() {
			errText = n.TransitionError().String()
		}
		pending := "-"
		if n.HasPending() {
			names := make([]string, 0)
			for _, t := range n.PendingTransitions().Slice() {
				names = append(names, t.String())
			}
			pending = strings.Join(names, ", ")
		}
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s | %s | %s |\n",
			n.Project(), bundle, n.Activation(), n.State(), n.Transition(), errText, pending)
	}
	return sb.String()
}

// ProjectList renders an ordered closure.
func ProjectList(title string, projects []domain.ProjectKey) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", title)
	if len(projects) == 0 {
		sb.WriteString("_empty_\n")
		return sb.String()
	}
	for i, p := range projects {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, p)
	}
	return sb.String()
}
