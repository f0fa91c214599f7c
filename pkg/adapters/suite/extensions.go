package suite

import (
	"fmt"
	"maps"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/extension"
	"github.com/tuchang/junit5/pkg/store"
)

var namespace = store.NewNamespace("junit5", "suite")

const (
	envKey     = "env"
	timeoutKey = "timeout"
	rerunKey   = "rerun"
)

// Factory builds the extension of an extensions entry from its configuration.
type Factory func(config map[string]any) (extension.Extension, error)

func builtinFactories() map[string]Factory {
	return map[string]Factory{
		"timeout": func(config map[string]any) (extension.Extension, error) {
			var t Timeout
			if err := decodeConfig(config, &t); err != nil {
				return nil, err
			}
			if t.Duration <= 0 {
				return nil, fmt.Errorf("duration must be positive, got %s", t.Duration)
			}
			return t, nil
		},
		"env": func(config map[string]any) (extension.Extension, error) {
			var e Env
			if err := decodeConfig(config, &e); err != nil {
				return nil, err
			}
			return e, nil
		},
		"retry-report": func(config map[string]any) (extension.Extension, error) {
			r := RetryReport{Attempts: 1}
			if err := decodeConfig(config, &r); err != nil {
				return nil, err
			}
			if r.Attempts < 1 {
				return nil, fmt.Errorf("attempts must be at least 1, got %d", r.Attempts)
			}
			return r, nil
		},
	}
}

func decodeConfig(config map[string]any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           target,
	})
	if err != nil {
		return err
	}
	return dec.Decode(config)
}

// Timeout bounds the duration of every test command below its scope.
type Timeout struct {
	Duration time.Duration `mapstructure:"duration"`
}

func (Timeout) ExtensionName() string { return "suite.Timeout" }

func (t Timeout) BeforeEach(ctx extension.Context) error {
	ctx.Store(namespace).Put(timeoutKey, t.Duration)
	return nil
}

// Env adds environment variables to every command below its scope. Inner
// scopes override outer ones.
type Env struct {
	Vars map[string]string `mapstructure:"vars"`
}

func (Env) ExtensionName() string { return "suite.Env" }

func (e Env) BeforeAll(ctx extension.Context) error {
	e.apply(ctx)
	return nil
}

func (e Env) BeforeEach(ctx extension.Context) error {
	e.apply(ctx)
	return nil
}

func (e Env) apply(ctx extension.Context) {
	s := ctx.Store(namespace)
	current, _, _ := store.GetAs[map[string]string](s, envKey)
	merged := maps.Clone(current)
	if merged == nil {
		merged = make(map[string]string, len(e.Vars))
	}
	maps.Copy(merged, e.Vars)
	s.Put(envKey, merged)
}

// environment returns the variables set by Env extensions visible from ctx.
func environment(ctx extension.Context) map[string]string {
	vars, _, _ := store.GetAs[map[string]string](ctx.Store(namespace), envKey)
	return vars
}

// RetryReport reruns a failing test command up to Attempts times. A test
// that passes on a retry succeeds and publishes the number of retries.
type RetryReport struct {
	Attempts int `mapstructure:"attempts"`
}

func (RetryReport) ExtensionName() string { return "suite.RetryReport" }

func (r RetryReport) HandleTestExecutionException(ctx extension.Context, err error) error {
	rerun, ok, _ := store.GetAs[func() error](ctx.Store(namespace), rerunKey)
	if !ok || rerun == nil {
		return err
	}
	for attempt := 1; attempt <= r.Attempts; attempt++ {
		if ctx.Context().Err() != nil || domain.IsFatal(err) {
			return err
		}
		if err = rerun(); err == nil {
			return ctx.PublishReportEntry("retries", strconv.Itoa(attempt))
		}
	}
	if perr := ctx.PublishReportEntry("retries", strconv.Itoa(r.Attempts), "outcome", "failed"); perr != nil {
		return perr
	}
	return err
}
