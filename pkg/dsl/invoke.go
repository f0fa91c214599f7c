package dsl

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/extension"
	"github.com/tuchang/junit5/pkg/ports"
)

type outputKind int

const (
	testOutputs outputKind = iota
	factoryOutputs
)

var (
	errorType        = reflect.TypeFor[error]()
	dynamicNodesType = reflect.TypeFor[[]ports.DynamicNode]()
)

// invocable is a user function whose parameters are resolved at execution time.
type invocable struct {
	fn     reflect.Value
	params []extension.ParameterContext
}

func compile(fn any, kind outputKind) (*invocable, error) {
	if fn == nil {
		return nil, errors.New("function must not be nil")
	}
	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		return nil, fmt.Errorf("expected a function, got %s", t)
	}
	if t.IsVariadic() {
		return nil, fmt.Errorf("variadic function %s is not supported", t)
	}

	switch kind {
	case testOutputs:
		if t.NumOut() > 1 || (t.NumOut() == 1 && t.Out(0) != errorType) {
			return nil, fmt.Errorf("test function %s must return nothing or an error", t)
		}
	case factoryOutputs:
		ok := (t.NumOut() == 1 && t.Out(0) == dynamicNodesType) ||
			(t.NumOut() == 2 && t.Out(0) == dynamicNodesType && t.Out(1) == errorType)
		if !ok {
			return nil, fmt.Errorf("factory function %s must return []ports.DynamicNode and optionally an error", t)
		}
	}

	params := make([]extension.ParameterContext, t.NumIn())
	for i := range params {
		params[i] = extension.ParameterContext{Index: i, Type: t.In(i)}
	}
	return &invocable{fn: v, params: params}, nil
}

func (inv *invocable) call(args []any) ([]ports.DynamicNode, error) {
	t := inv.fn.Type()
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		if a == nil {
			in[i] = reflect.Zero(t.In(i))
			continue
		}
		in[i] = reflect.ValueOf(a)
	}

	var (
		nodes []ports.DynamicNode
		err   error
	)
	for _, out := range inv.fn.Call(in) {
		switch out.Type() {
		case errorType:
			if !out.IsNil() {
				err = out.Interface().(error)
			}
		case dynamicNodesType:
			nodes = out.Interface().([]ports.DynamicNode)
		}
	}
	return nodes, err
}

func (inv *invocable) location() (string, int) {
	if inv == nil {
		return "", 0
	}
	return funcLocation(inv.fn)
}

// DynamicTest creates a dynamic test from fn, which follows the same rules as
// the functions passed to ContainerBuilder.Test.
func DynamicTest(name string, fn any) ports.DynamicNode {
	node := ports.DynamicNode{DisplayName: name}
	inv, err := compile(fn, testOutputs)
	if err != nil {
		node.Executable = invalid{err: fmt.Errorf("dynamic test %q: %w", name, err)}
		return node
	}
	node.Executable = dynamicExecutable{inv: inv}
	if file, line := inv.location(); file != "" {
		node.Source = domain.FileSource{Path: file, Line: line}
	}
	return node
}

// DynamicContainer groups dynamic nodes.
func DynamicContainer(name string, children ...ports.DynamicNode) ports.DynamicNode {
	if children == nil {
		children = []ports.DynamicNode{}
	}
	return ports.DynamicNode{DisplayName: name, Children: children}
}

type dynamicExecutable struct {
	inv *invocable
}

func (d dynamicExecutable) Parameters() []extension.ParameterContext { return d.inv.params }

func (d dynamicExecutable) Execute(_ extension.Context, _ any, args []any) error {
	_, err := d.inv.call(args)
	return err
}

// invalid fails when executed.
type invalid struct {
	err error
}

func (i invalid) Parameters() []extension.ParameterContext    { return nil }
func (i invalid) Execute(extension.Context, any, []any) error { return i.err }
