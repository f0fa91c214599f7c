package extension

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/tuchang/junit5/pkg/domain"
)

// ErrNoParameterResolver is returned when no resolver supports a parameter.
var ErrNoParameterResolver = errors.New("no parameter resolver registered")

// ErrAmbiguousParameterResolver is returned when several resolvers support a parameter.
var ErrAmbiguousParameterResolver = errors.New("competing parameter resolvers")

// RunBefore invokes fn for every T in before-order and stops at the first failure.
func RunBefore[T any](r *Registry, fn func(T) error) error {
	for _, ext := range Before[T](r) {
		if err := fn(ext); err != nil {
			return err
		}
	}
	return nil
}

// RunAfter invokes fn for every T in after-order. Every callback runs; the
// failures are returned in the order they occurred.
func RunAfter[T any](r *Registry, fn func(T) error) []error {
	var errs []error
	for _, ext := range After[T](r) {
		if err := fn(ext); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// EvaluateConditions runs every active ExecutionCondition in before-order. The first
// one reporting disabled decides the result.
func EvaluateConditions(r *Registry, ctx Context) (ConditionResult, error) {
	patterns, _ := ctx.ConfigurationParameter(DeactivateConditionsPatternKey)
	deactivator, err := NewDeactivator(patterns)
	if err != nil {
		return ConditionResult{}, domain.NewConfigurationError("evaluate conditions", DeactivateConditionsPatternKey, err)
	}
	for _, cond := range Before[ExecutionCondition](r) {
		if deactivator.Deactivated(cond) {
			continue
		}
		result, err := cond.EvaluateExecutionCondition(ctx)
		if err != nil {
			return ConditionResult{}, fmt.Errorf("condition %s: %w", Name(cond), err)
		}
		if result.Disabled {
			return result, nil
		}
	}
	return Enabled("no condition disabled execution"), nil
}

// HandleException passes err through the exception handler chain. Fatal errors
// bypass the chain.
func HandleException(r *Registry, ctx Context, err error) error {
	for _, h := range Before[TestExecutionExceptionHandler](r) {
		if err == nil || domain.IsFatal(err) {
			return err
		}
		err = h.HandleTestExecutionException(ctx, err)
	}
	return err
}

// PostProcessInstance runs every TestInstancePostProcessor in before-order.
func PostProcessInstance(r *Registry, instance any, ctx Context) error {
	return RunBefore(r, func(p TestInstancePostProcessor) error {
		return p.PostProcessTestInstance(instance, ctx)
	})
}

// ResolveParameter asks the one resolver supporting p for its value.
func ResolveParameter(r *Registry, p ParameterContext, ctx Context) (any, error) {
	subject := fmt.Sprintf("parameter %d (%s)", p.Index, p.Type)
	if p.Name != "" {
		subject = fmt.Sprintf("parameter %q (%s)", p.Name, p.Type)
	}

	var supporting []ParameterResolver
	for _, res := range Before[ParameterResolver](r) {
		ok, err := res.SupportsParameter(p, ctx)
		if err != nil {
			return nil, domain.NewConfigurationError("resolve", subject, fmt.Errorf("%s: %w", Name(res), err))
		}
		if ok {
			supporting = append(supporting, res)
		}
	}

	switch len(supporting) {
	case 0:
		return nil, domain.NewConfigurationError("resolve", subject, ErrNoParameterResolver)
	case 1:
	default:
		names := make([]string, len(supporting))
		for i, s := range supporting {
			names[i] = Name(s)
		}
		return nil, domain.NewConfigurationError("resolve", subject,
			fmt.Errorf("%w: [%s]", ErrAmbiguousParameterResolver, strings.Join(names, ", ")))
	}

	value, err := supporting[0].ResolveParameter(p, ctx)
	if err != nil {
		return nil, domain.NewConfigurationError("resolve", subject, err)
	}
	if err := checkAssignable(value, p.Type); err != nil {
		return nil, domain.NewConfigurationError("resolve", subject, fmt.Errorf("%s: %w", Name(supporting[0]), err))
	}
	return value, nil
}

func checkAssignable(value any, t reflect.Type) error {
	if t == nil {
		return nil
	}
	if value == nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return nil
		}
		return fmt.Errorf("resolved nil for non-nillable type %s", t)
	}
	if !reflect.TypeOf(value).AssignableTo(t) {
		return fmt.Errorf("resolved value of type %T is not assignable to %s", value, t)
	}
	return nil
}
