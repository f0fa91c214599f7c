package tui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStyler(t *testing.T) {
	plain := NewStyler(&bytes.Buffer{}, termenv.WithProfile(termenv.Ascii))
	assert.Equal(t, "✘", plain("failed", "✘"))

	colored := NewStyler(&bytes.Buffer{}, termenv.WithProfile(termenv.TrueColor))
	got := colored("failed", "✘")
	assert.Contains(t, got, "✘")
	assert.True(t, strings.HasPrefix(got, termenv.CSI), "expected ANSI sequence, got %q", got)
	assert.Equal(t, "?", colored("unknown", "?"))
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "v1.2.3")
	assert.Contains(t, buf.String(), "v1.2.3")
	assert.Contains(t, buf.String(), "|__/")
}

func TestNewRenderer(t *testing.T) {
	render, err := NewRenderer(80)
	require.NoError(t, err)

	out, err := render("# Test run finished\n\n| tests | 3 |")
	require.NoError(t, err)
	assert.Contains(t, out, "Test run finished")
}
