package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the junit5 banner and version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	p := out.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"    _             _ _   ____ ", "#34d399"},
		{"   (_)_   _ _ __ (_) |_| ___|", "#10b981"},
		{"   | | | | | '_ \\| | __|___ \\", "#059669"},
		{"   | | |_| | | | | | |_ ___) |", "#047857"},
		{"  _/ |\\__,_|_| |_|_|\\__|____/", "#065f46"},
		{" |__/", "#064e3b"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, out.String(" "+version).Faint())
	fmt.Fprintln(w)
}
