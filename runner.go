package junit5

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/ports"
)

// ContentRenderer transforms markdown before it is written, e.g. to ANSI.
type ContentRenderer func(string) (string, error)

// Runner discovers and executes a request, printing progress and a summary.
// It lets frontends share one console flow (CLI, watch mode, tests).
type Runner struct {
	Output io.Writer
	// Headless suppresses the per-node tree; only the summary is printed.
	Headless bool
	Renderer ContentRenderer
	// Styler decorates the mark of each tree line. kind is a status name,
	// "skipped" or "report".
	Styler func(kind, mark string) string
	// Listener, if set, is notified in addition to the console.
	Listener ports.ExecutionListener
}

// NewRunner creates a Runner writing to out.
func NewRunner(out io.Writer) *Runner {
	return &Runner{Output: out}
}

// Run discovers req with l and executes the resulting plan. Discovery errors
// are printed and do not prevent the remaining tests from running.
func (r *Runner) Run(ctx context.Context, l *Launcher, req DiscoveryRequest) (*Run, error) {
	if r.Output == nil {
		return nil, fmt.Errorf("output writer must be set (use os.Stdout)")
	}

	plan, err := l.Discover(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}
	for _, w := range plan.Warnings {
		fmt.Fprintf(r.Output, "warning: %s\n", w)
	}
	for _, err := range plan.Errors {
		fmt.Fprintf(r.Output, "error: %v\n", err)
	}

	var listeners []ports.ExecutionListener
	if !r.Headless {
		listeners = append(listeners, &treePrinter{out: r.Output, style: r.Styler})
	}
	if r.Listener != nil {
		listeners = append(listeners, r.Listener)
	}

	run, err := l.Execute(ctx, plan, listeners...)
	if run != nil {
		r.render(run.Summary.Markdown())
	}
	return run, err
}

func (r *Runner) render(markdown string) {
	output := markdown
	if r.Renderer != nil {
		if rendered, err := r.Renderer(markdown); err == nil {
			output = rendered
		}
	}
	fmt.Fprintln(r.Output, strings.TrimRight(output, "\n"))
}

// treePrinter writes one line per finished or skipped node, indented by depth.
type treePrinter struct {
	out   io.Writer
	style func(kind, mark string) string
}

func (p *treePrinter) line(d *domain.Descriptor, kind, mark, suffix string) {
	indent := strings.Repeat("  ", len(d.Ancestors()))
	if p.style != nil {
		mark = p.style(kind, mark)
	}
	fmt.Fprintf(p.out, "%s%s %s%s\n", indent, mark, d.DisplayName(), suffix)
}

func (p *treePrinter) ExecutionStarted(*domain.Descriptor) {}

func (p *treePrinter) ExecutionSkipped(d *domain.Descriptor, reason string) {
	p.line(d, "skipped", "↷", " (skipped: "+reason+")")
}

func (p *treePrinter) ExecutionFinished(d *domain.Descriptor, result domain.Result) {
	switch result.Status {
	case domain.StatusSuccessful:
		if d.IsRoot() {
			return
		}
		p.line(d, result.Status.String(), "✔", "")
	case domain.StatusAborted:
		p.line(d, result.Status.String(), "■", " ("+result.String()+")")
	default:
		p.line(d, result.Status.String(), "✘", " ("+result.String()+")")
	}
}

func (p *treePrinter) DynamicTestRegistered(*domain.Descriptor) {}

func (p *treePrinter) ReportingEntryPublished(d *domain.Descriptor, entry domain.ReportEntry) {
	var kv []string
	for _, pair := range entry.Pairs() {
		kv = append(kv, pair.Key+"="+pair.Value)
	}
	p.line(d, "report", "•", " "+strings.Join(kv, " "))
}
