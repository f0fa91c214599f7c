package suite

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"strings"
	"time"

	"github.com/tuchang/junit5/pkg/adapters/process"
	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/extension"
	"github.com/tuchang/junit5/pkg/store"
)

// maxOutput bounds the process output quoted in failure messages.
const maxOutput = 2048

// execute runs cmd for the node of ctx. Relative directories are resolved
// against the directory of the suite file.
func (e *Engine) execute(c context.Context, ctx extension.Context, s *Suite, cmd Command) (process.Outcome, error) {
	env := maps.Clone(environment(ctx))
	if env == nil {
		env = make(map[string]string, len(cmd.Env))
	}
	maps.Copy(env, cmd.Env)

	params := make(map[string]any)
	if p := ctx.ConfigurationParameters(); p != nil {
		for _, k := range p.Keys() {
			v, _ := p.Get(k)
			params[k] = v
		}
	}

	dir := filepath.Dir(s.Path)
	if cmd.Dir != "" {
		if filepath.IsAbs(cmd.Dir) {
			dir = cmd.Dir
		} else {
			dir = filepath.Join(dir, cmd.Dir)
		}
	}

	return e.runner.Execute(c, process.Invocation{
		Command: cmd.Run,
		Args:    cmd.Args,
		Env:     env,
		Params:  params,
		Dir:     dir,
	})
}

// runTest executes the command of t and checks its expectations.
func (e *Engine) runTest(ctx extension.Context, s *Suite, t *Test) error {
	c := ctx.Context()
	timeout, _, _ := store.GetAs[time.Duration](ctx.Store(namespace), timeoutKey)
	if timeout > 0 {
		var cancel context.CancelFunc
		c, cancel = context.WithTimeout(c, timeout)
		defer cancel()
	}

	out, err := e.execute(c, ctx, s, t.Command)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Context().Err() == nil {
			return domain.Fail("%s timed out after %s", t.Run, timeout)
		}
		return err
	}
	return t.Expect.check(out)
}

func (x Expect) check(out process.Outcome) error {
	var problems []string
	if out.ExitCode != x.ExitCode {
		problems = append(problems, fmt.Sprintf("expected exit code <%d> but was <%d>", x.ExitCode, out.ExitCode))
	}
	if x.StdoutContains != "" && !strings.Contains(out.Stdout, x.StdoutContains) {
		problems = append(problems, fmt.Sprintf("expected stdout to contain %q", x.StdoutContains))
	}
	if x.StderrContains != "" && !strings.Contains(out.Stderr, x.StderrContains) {
		problems = append(problems, fmt.Sprintf("expected stderr to contain %q", x.StderrContains))
	}
	if len(problems) == 0 {
		return nil
	}

	msg := strings.Join(problems, "; ")
	if stderr := strings.TrimSpace(out.Stderr); stderr != "" {
		msg += "\nstderr: " + truncate(stderr)
	}
	return domain.Fail("%s", msg)
}

func truncate(s string) string {
	if len(s) <= maxOutput {
		return s
	}
	return "..." + s[len(s)-maxOutput:]
}

// lifecycle contributes the lifecycle commands of c as callbacks.
func (e *Engine) lifecycle(s *Suite, c *Container) []extension.Extension {
	var exts []extension.Extension
	if len(c.BeforeAll) > 0 {
		exts = append(exts, beforeAllCommands{e.commands(s, c, "before all", c.BeforeAll)})
	}
	if len(c.AfterAll) > 0 {
		exts = append(exts, afterAllCommands{e.commands(s, c, "after all", c.AfterAll)})
	}
	if len(c.BeforeEach) > 0 {
		exts = append(exts, beforeEachCommands{e.commands(s, c, "before each", c.BeforeEach)})
	}
	if len(c.AfterEach) > 0 {
		exts = append(exts, afterEachCommands{e.commands(s, c, "after each", c.AfterEach)})
	}
	return exts
}

// commandList runs lifecycle commands in order and stops at the first failure.
type commandList struct {
	engine *Engine
	suite  *Suite
	owner  *Container
	phase  string
	cmds   []Command
}

func (e *Engine) commands(s *Suite, owner *Container, phase string, cmds []Command) *commandList {
	return &commandList{engine: e, suite: s, owner: owner, phase: phase, cmds: cmds}
}

// owns reports whether ctx is the container that declared the commands.
// Nested containers inherit the extension but not its all-phase commands.
func (l *commandList) owns(ctx extension.Context) bool {
	n, ok := ctx.Descriptor().Payload().(containerNode)
	return ok && n.c == l.owner
}

func (l *commandList) run(ctx extension.Context) error {
	for _, cmd := range l.cmds {
		out, err := l.engine.execute(ctx.Context(), ctx, l.suite, cmd)
		if err != nil {
			return fmt.Errorf("%s: %w", l.phase, err)
		}
		if out.ExitCode != 0 {
			msg := fmt.Sprintf("%s: %s exited with code %d", l.phase, cmd.Run, out.ExitCode)
			if stderr := strings.TrimSpace(out.Stderr); stderr != "" {
				msg += "\nstderr: " + truncate(stderr)
			}
			return domain.Fail("%s", msg)
		}
	}
	return nil
}

type beforeAllCommands struct{ *commandList }
type afterAllCommands struct{ *commandList }
type beforeEachCommands struct{ *commandList }
type afterEachCommands struct{ *commandList }

func (h beforeAllCommands) BeforeAll(ctx extension.Context) error {
	if !h.owns(ctx) {
		return nil
	}
	return h.run(ctx)
}

func (h afterAllCommands) AfterAll(ctx extension.Context) error {
	if !h.owns(ctx) {
		return nil
	}
	return h.run(ctx)
}

func (h beforeEachCommands) BeforeEach(ctx extension.Context) error { return h.run(ctx) }
func (h afterEachCommands) AfterEach(ctx extension.Context) error   { return h.run(ctx) }
