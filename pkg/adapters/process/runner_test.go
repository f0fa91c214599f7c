package process

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestRunner_Execute(t *testing.T) {
	skipOnWindows(t)

	runner := NewRunner()
	runner.Register("shell", "sh", "-c")

	t.Run("registered command", func(t *testing.T) {
		out, err := runner.Execute(context.Background(), Invocation{Command: "shell", Args: []string{"echo hello"}})
		require.NoError(t, err)
		assert.Equal(t, 0, out.ExitCode)
		assert.Equal(t, "hello\n", out.Stdout)
	})

	t.Run("non-zero exit is an outcome", func(t *testing.T) {
		out, err := runner.Execute(context.Background(), Invocation{Command: "shell", Args: []string{"echo oops >&2; exit 3"}})
		require.NoError(t, err)
		assert.Equal(t, 3, out.ExitCode)
		assert.Equal(t, "oops\n", out.Stderr)
	})

	t.Run("unregistered command", func(t *testing.T) {
		_, err := runner.Execute(context.Background(), Invocation{Command: "rm"})
		assert.ErrorIs(t, err, ErrNotAllowed)
	})

	t.Run("params and env", func(t *testing.T) {
		out, err := runner.Execute(context.Background(), Invocation{
			Command: "shell",
			Args:    []string{`echo "$GREETING $JUNIT5_PARAM_USER_NAME $JUNIT5_PARAM_LIST"`},
			Env:     map[string]string{"GREETING": "hi"},
			Params:  map[string]any{"user.name": "ada", "list": []int{1, 2}},
		})
		require.NoError(t, err)
		assert.Equal(t, "hi ada [1,2]\n", out.Stdout)
	})
}

func TestRunner_InlineExecution(t *testing.T) {
	skipOnWindows(t)

	dir := t.TempDir()
	runner := NewRunner(WithInlineExecution(true), WithBaseDir(dir))
	out, err := runner.Execute(context.Background(), Invocation{Command: "pwd"})
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(strings.TrimSpace(out.Stdout))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = runner.Execute(context.Background(), Invocation{Command: "definitely-not-a-command-junit5"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotAllowed)
}

func TestRunner_Cancellation(t *testing.T) {
	skipOnWindows(t)

	runner := NewRunner(WithInlineExecution(true), WithGracePeriod(100*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := runner.Execute(ctx, Invocation{Command: "sleep", Args: []string{"5"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestLoadCommands(t *testing.T) {
	dir := t.TempDir()

	commands, err := LoadCommands(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, commands)

	path := filepath.Join(dir, "commands.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
commands:
  - name: shell
    command: sh
    args: ["-c"]
    env:
      LANG: C
  - command: ignored-without-name
`), 0o644))

	commands, err = LoadCommands(path)
	require.NoError(t, err)
	require.Len(t, commands, 1)
	assert.Equal(t, []string{"-c"}, commands["shell"].Args)

	runner := NewRunner(WithRegistry(commands))
	_, err = runner.lookup("shell")
	assert.NoError(t, err)
}
