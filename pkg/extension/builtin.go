package extension

import (
	"context"
	"fmt"
	"reflect"

	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/uniqueid"
)

// TestInfo describes the node a unit of work belongs to.
type TestInfo struct {
	DisplayName string
	UniqueID    uniqueid.UniqueID
	Tags        []domain.Tag
}

// TestReporter publishes report entries for the current node.
type TestReporter interface {
	PublishEntry(kv ...string) error
}

type reporter struct {
	ctx Context
}

func (r reporter) PublishEntry(kv ...string) error { return r.ctx.PublishReportEntry(kv...) }

var (
	extensionContextType = reflect.TypeFor[Context]()
	goContextType        = reflect.TypeFor[context.Context]()
	testInfoType         = reflect.TypeFor[TestInfo]()
	testReporterType     = reflect.TypeFor[TestReporter]()
)

// BuiltinResolver resolves parameters of type Context, context.Context,
// TestInfo and TestReporter.
type BuiltinResolver struct{}

func (BuiltinResolver) ExtensionName() string { return "extension.BuiltinResolver" }

func (BuiltinResolver) SupportsParameter(p ParameterContext, _ Context) (bool, error) {
	switch p.Type {
	case extensionContextType, goContextType, testInfoType, testReporterType:
		return true, nil
	}
	return false, nil
}

func (BuiltinResolver) ResolveParameter(p ParameterContext, ctx Context) (any, error) {
	switch p.Type {
	case extensionContextType:
		return ctx, nil
	case goContextType:
		return ctx.Context(), nil
	case testInfoType:
		return TestInfo{DisplayName: ctx.DisplayName(), UniqueID: ctx.UniqueID(), Tags: ctx.Tags()}, nil
	case testReporterType:
		return TestReporter(reporter{ctx: ctx}), nil
	}
	return nil, fmt.Errorf("unsupported parameter type %s", p.Type)
}
