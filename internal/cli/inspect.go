package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/tuchang/junit5"
	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/uniqueid"
)

// DiscoverOptions configures Discover.
type DiscoverOptions struct {
	Selectors   []string
	IncludeTags []string
	ExcludeTags []string
	JSON        bool
	Output      io.Writer
}

// Discover prints the test plan without executing it. Discovery errors are
// printed and returned.
func Discover(ctx context.Context, env *Environment, opts DiscoverOptions) error {
	req, err := junit5.NewRequest(opts.Selectors, opts.IncludeTags, opts.ExcludeTags)
	if err != nil {
		return err
	}
	plan, err := env.Launcher.Discover(ctx, req)
	if err != nil {
		return err
	}

	if opts.JSON {
		enc := json.NewEncoder(opts.Output)
		enc.SetIndent("", "  ")
		if err := enc.Encode(plan); err != nil {
			return err
		}
		return plan.Err()
	}

	for _, root := range plan.Roots {
		_ = root.Walk(func(d *domain.Descriptor) error {
			printNode(opts.Output, d)
			return nil
		})
	}
	for _, w := range plan.Warnings {
		fmt.Fprintf(opts.Output, "warning: %s\n", w)
	}
	for _, err := range plan.Errors {
		fmt.Fprintf(opts.Output, "error: %v\n", err)
	}
	fmt.Fprintf(opts.Output, "\n%d tests in %d containers\n", plan.CountTests(), plan.CountContainers())
	return plan.Err()
}

func printNode(w io.Writer, d *domain.Descriptor) {
	indent := strings.Repeat("  ", len(d.Ancestors()))
	line := indent + d.DisplayName()
	if tags := d.Tags(); len(tags) > 0 {
		names := make([]string, len(tags))
		for i, t := range tags {
			names[i] = "@" + string(t)
		}
		line += " " + strings.Join(names, " ")
	}
	fmt.Fprintf(w, "%s  %s\n", line, d.UniqueID())
}

// ID prints the segments of a unique id, one per line.
func ID(w io.Writer, raw string) error {
	id, err := uniqueid.Parse(raw)
	if err != nil {
		return err
	}
	for i, seg := range id.Segments() {
		fmt.Fprintf(w, "%s%s: %s\n", strings.Repeat("  ", i), seg.Type, seg.Value)
	}
	return nil
}
