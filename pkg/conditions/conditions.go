// Package conditions provides the built-in execution conditions: static
// disabling, environment variable matching, and script expressions.
package conditions

import (
	"fmt"
	"os"
	"regexp"
	goruntime "runtime"
	"strings"

	"github.com/tuchang/junit5/pkg/extension"
	"github.com/tuchang/junit5/pkg/ports"
)

// Disabled disables nodes whose payload reports itself disabled.
type Disabled struct{}

func (Disabled) ExtensionName() string { return "conditions.Disabled" }

func (Disabled) EvaluateExecutionCondition(ctx extension.Context) (extension.ConditionResult, error) {
	if d, ok := ctx.Descriptor().Payload().(ports.Disableable); ok {
		if reason, disabled := d.DisabledReason(); disabled {
			if reason == "" {
				reason = ctx.DisplayName() + " is disabled"
			}
			return extension.Disabled(reason), nil
		}
	}
	return extension.Enabled("not disabled"), nil
}

// EnvironmentVariable enables a node only when the variable Name is set and
// matches the regular expression Matches in full. With Disable the logic is
// inverted.
type EnvironmentVariable struct {
	Name    string
	Matches string
	Disable bool

	// Lookup defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
}

func (c EnvironmentVariable) ExtensionName() string {
	return "conditions.EnvironmentVariable"
}

func (c EnvironmentVariable) EvaluateExecutionCondition(extension.Context) (extension.ConditionResult, error) {
	if strings.TrimSpace(c.Name) == "" {
		return extension.ConditionResult{}, fmt.Errorf("environment variable name must not be blank")
	}
	re, err := regexp.Compile("^(?:" + c.Matches + ")$")
	if err != nil {
		return extension.ConditionResult{}, fmt.Errorf("environment variable %s: %w", c.Name, err)
	}
	lookup := c.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	value, set := lookup(c.Name)
	matched := set && re.MatchString(value)
	desc := fmt.Sprintf("environment variable [%s] with value [%s]", c.Name, value)
	if !set {
		desc = fmt.Sprintf("environment variable [%s] is not set", c.Name)
	}

	switch {
	case matched && c.Disable:
		return extension.Disabled(desc + " matches " + c.Matches), nil
	case matched:
		return extension.Enabled(desc + " matches " + c.Matches), nil
	case c.Disable:
		return extension.Enabled(desc + " does not match " + c.Matches), nil
	default:
		return extension.Disabled(desc + " does not match " + c.Matches), nil
	}
}

// Script enables a node when Expression evaluates to true. The expression sees
// the variables built by Environment.
type Script struct {
	Language   string
	Expression string
	Reason     string // reported when the script disables the node
	Evaluator  ports.ScriptEvaluator
}

func (s Script) ExtensionName() string { return "conditions.Script" }

func (s Script) EvaluateExecutionCondition(ctx extension.Context) (extension.ConditionResult, error) {
	if s.Evaluator == nil {
		return extension.ConditionResult{}, fmt.Errorf("script condition %q has no evaluator", s.Expression)
	}
	ok, err := s.Evaluator.Evaluate(ctx.Context(), s.Expression, Environment(ctx))
	if err != nil {
		return extension.ConditionResult{}, err
	}
	if ok {
		return extension.Enabled(fmt.Sprintf("script [%s] evaluated to true", s.Expression)), nil
	}
	reason := s.Reason
	if reason == "" {
		reason = fmt.Sprintf("script [%s] evaluated to false", s.Expression)
	}
	return extension.Disabled(reason), nil
}

// Environment returns the variables visible to script conditions:
//
//	display_name, unique_id  the node being evaluated
//	tags                     the node's tags including inherited ones
//	env                      process environment variables
//	params                   configuration parameters
//	os, arch                 GOOS and GOARCH
func Environment(ctx extension.Context) map[string]any {
	tags := ctx.Tags()
	tagNames := make([]string, len(tags))
	for i, t := range tags {
		tagNames[i] = string(t)
	}

	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}

	params := make(map[string]string)
	if cfg := ctx.ConfigurationParameters(); cfg != nil {
		for _, key := range cfg.Keys() {
			if v, ok := cfg.Get(key); ok {
				params[key] = v
			}
		}
	}

	return map[string]any{
		"display_name": ctx.DisplayName(),
		"unique_id":    ctx.UniqueID().String(),
		"tags":         tagNames,
		"env":          env,
		"params":       params,
		"os":           goruntime.GOOS,
		"arch":         goruntime.GOARCH,
	}
}
