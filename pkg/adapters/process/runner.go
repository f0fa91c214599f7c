package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// ErrNotAllowed is returned for commands outside the allow-list.
var ErrNotAllowed = errors.New("command not allowed")

// Invocation is one command to execute.
type Invocation struct {
	// Command is a registered alias or, with inline execution, an executable.
	Command string
	Args    []string
	Env     map[string]string
	// Params are exported as JUNIT5_PARAM_<KEY> variables.
	Params map[string]any
	Dir    string
}

// Outcome is what a finished process produced. A non-zero exit code is an
// outcome, not an error.
type Outcome struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner executes local processes. Commands registered by name form an
// allow-list; anything else requires inline execution.
type Runner struct {
	registry    map[string]RegisteredCommand
	allowInline bool
	baseDir     string
	grace       time.Duration
	logger      *slog.Logger
}

// RegisteredCommand is an allowed executable with default arguments.
type RegisteredCommand struct {
	Command string
	Args    []string
	Env     map[string]string
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithRegistry populates the allow-list from loaded configuration.
func WithRegistry(commands map[string]CommandConfig) RunnerOption {
	return func(r *Runner) {
		for name, c := range commands {
			r.registry[name] = RegisteredCommand{Command: c.Command, Args: c.Args, Env: c.Environment}
		}
	}
}

// WithInlineExecution allows executing commands that are not registered.
func WithInlineExecution(allow bool) RunnerOption {
	return func(r *Runner) {
		r.allowInline = allow
	}
}

// WithBaseDir sets the working directory of invocations without their own.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithGracePeriod sets how long a cancelled process may take to exit after
// an interrupt before it is killed.
func WithGracePeriod(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.grace = d
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a runner. Without options nothing may run.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: make(map[string]RegisteredCommand),
		grace:    5 * time.Second,
		logger:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list.
func (r *Runner) Register(name, command string, args ...string) {
	r.registry[name] = RegisteredCommand{Command: command, Args: args}
}

func (r *Runner) lookup(name string) (RegisteredCommand, error) {
	if c, ok := r.registry[name]; ok {
		return c, nil
	}
	if r.allowInline && name != "" {
		return RegisteredCommand{Command: name}, nil
	}
	return RegisteredCommand{}, fmt.Errorf("%w: %q is not registered and inline execution is disabled", ErrNotAllowed, name)
}

// Execute runs inv to completion. Cancelling ctx interrupts the process and
// kills it after the grace period. The returned error reports a process that
// could not be started or was cancelled.
func (r *Runner) Execute(ctx context.Context, inv Invocation) (Outcome, error) {
	registered, err := r.lookup(inv.Command)
	if err != nil {
		return Outcome{}, err
	}

	cmd := exec.CommandContext(ctx, registered.Command, append(registered.Args, inv.Args...)...)
	cmd.Dir = inv.Dir
	if cmd.Dir == "" {
		cmd.Dir = r.baseDir
	}
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = r.grace
	cmd.Env = append(cmd.Environ(), environment(registered.Env, inv.Env, inv.Params)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	out := Outcome{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	r.logger.DebugContext(ctx, "process finished",
		"command", registered.Command,
		"exit_code", out.ExitCode,
		"duration", out.Duration)

	if ctx.Err() != nil {
		return out, fmt.Errorf("%s: %w", registered.Command, ctx.Err())
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return out, fmt.Errorf("execute %s: %w", registered.Command, err)
	}
	return out, nil
}

// environment renders KEY=VALUE pairs in a stable order, later maps winning.
func environment(base, extra map[string]string, params map[string]any) []string {
	merged := make(map[string]string, len(base)+len(extra)+len(params))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	for k, v := range params {
		merged["JUNIT5_PARAM_"+paramName(k)] = formatValue(v)
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, len(keys))
	for i, k := range keys {
		env[i] = k + "=" + merged[k]
	}
	return env
}

// paramName turns "junit5.my-key" into "JUNIT5_MY_KEY".
func paramName(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, key)
}

// formatValue prints primitives as is and everything else as JSON.
func formatValue(v any) string {
	switch v.(type) {
	case string, int, int64, float64, bool:
		return fmt.Sprintf("%v", v)
	case nil:
		return ""
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%v", v)
}
