package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tuchang/junit5"
	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/observability"
)

// ErrTestsFailed is returned when a run finished with failures.
var ErrTestsFailed = errors.New("tests failed")

// LastRun selects the most recent stored run for RerunFailed.
const LastRun = "last"

// settle is how long a burst of source changes is collected before rerunning.
const settle = 100 * time.Millisecond

// RunOptions configures Run.
type RunOptions struct {
	Selectors   []string
	IncludeTags []string
	ExcludeTags []string
	// RerunFailed selects the failed tests of a stored run, or of the latest with LastRun.
	RerunFailed string
	Watch       bool
	Headless    bool
	JSON        bool
	Output      io.Writer
}

// Run executes the selected tests. With Watch it executes again after every
// source change until ctx is done.
func Run(ctx context.Context, env *Environment, opts RunOptions) error {
	if opts.Watch && opts.RerunFailed != "" {
		return fmt.Errorf("--watch and --rerun-failed cannot be used together")
	}
	if opts.Watch && opts.JSON {
		return fmt.Errorf("--watch and --json cannot be used together")
	}

	req, err := buildRequest(ctx, env, opts)
	if err != nil {
		return err
	}
	if req == nil {
		printSystemMessage(opts.Output, "No failed tests in run '%s'.", opts.RerunFailed)
		return nil
	}

	if !opts.Watch {
		return runOnce(ctx, env, opts, *req)
	}
	return watch(ctx, env, opts, *req)
}

// buildRequest returns nil when a rerun has nothing to select.
func buildRequest(ctx context.Context, env *Environment, opts RunOptions) (*junit5.DiscoveryRequest, error) {
	req, err := junit5.NewRequest(opts.Selectors, opts.IncludeTags, opts.ExcludeTags)
	if err != nil {
		return nil, err
	}
	if opts.RerunFailed == "" {
		return &req, nil
	}

	runID := opts.RerunFailed
	if runID == LastRun {
		runs, err := env.Results.Runs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		if len(runs) == 0 {
			return nil, fmt.Errorf("no stored runs: %w", domain.ErrRunNotFound)
		}
		runID = runs[0]
	}
	records, err := env.Results.List(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	failed := observability.FailedTests(records)
	if len(failed) == 0 {
		return nil, nil
	}
	for _, id := range failed {
		sel, err := domain.SelectUniqueID(id)
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", runID, err)
		}
		req.Selectors = append(req.Selectors, sel)
	}
	env.Logger.Info("rerunning failed tests", "run_id", runID, "tests", len(failed))
	return &req, nil
}

func runOnce(ctx context.Context, env *Environment, opts RunOptions, req junit5.DiscoveryRequest) error {
	out := opts.Output
	if opts.JSON {
		out = io.Discard
	}
	run, err := consoleRunner(out, opts.Headless || opts.JSON).Run(ctx, env.Launcher, req)
	if run != nil && opts.JSON {
		enc := json.NewEncoder(opts.Output)
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]any{"id": run.ID, "recorded": run.Recorded, "summary": run.Summary}); err != nil {
			return err
		}
	}
	if err != nil {
		return err
	}
	if run.Summary.TotalFailureCount() > 0 {
		return ErrTestsFailed
	}
	return nil
}

func watch(ctx context.Context, env *Environment, opts RunOptions, req junit5.DiscoveryRequest) error {
	changes, err := env.Launcher.Watch(ctx)
	if err != nil {
		return err
	}
	env.Logger.Info("starting watcher", "suites", env.Config.Suites)

	for {
		err := runOnce(ctx, env, opts, req)
		switch {
		case isInterrupted(err):
			return nil
		case err != nil && !errors.Is(err, ErrTestsFailed):
			printSystemMessage(opts.Output, "Run failed: %v", err)
		}
		printSystemMessage(opts.Output, "Waiting for changes...")

		select {
		case <-ctx.Done():
			return nil
		case path, ok := <-changes:
			if !ok {
				return nil
			}
			printSystemMessage(opts.Output, "Change detected in '%s'.", path)
		}
		if !drain(ctx, changes) {
			return nil
		}
	}
}

// drain swallows further changes until none arrives for settle. It reports
// false once ctx is done or changes is closed.
func drain(ctx context.Context, changes <-chan string) bool {
	timer := time.NewTimer(settle)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case _, ok := <-changes:
			if !ok {
				return false
			}
			timer.Reset(settle)
		case <-timer.C:
			return true
		}
	}
}
