package tui

import (
	"io"

	"github.com/muesli/termenv"
)

var palette = map[string]string{
	"successful": "#22c55e",
	"failed":     "#ef4444",
	"aborted":    "#f59e0b",
	"skipped":    "#a1a1aa",
	"report":     "#60a5fa",
}

// NewStyler colors tree marks by kind for the color profile of w.
// The profile is Ascii when w is not a terminal, leaving marks unchanged.
func NewStyler(w io.Writer, opts ...termenv.OutputOption) func(kind, mark string) string {
	out := termenv.NewOutput(w, opts...)
	p := out.ColorProfile()
	return func(kind, mark string) string {
		color, ok := palette[kind]
		if !ok || p == termenv.Ascii {
			return mark
		}
		s := out.String(mark).Foreground(p.Color(color))
		if kind == "failed" {
			s = s.Bold()
		}
		return s.String()
	}
}
