package extension

import (
	"context"
	"reflect"

	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/store"
	"github.com/tuchang/junit5/pkg/uniqueid"
)

// Extension is a behavior object. Its capabilities are the interfaces below that it implements.
type Extension any

// Context is what extensions see of the node currently executing.
type Context interface {
	Context() context.Context
	UniqueID() uniqueid.UniqueID
	DisplayName() string
	Descriptor() *domain.Descriptor
	Tags() []domain.Tag
	Parent() (Context, bool)
	Root() Context
	Store(ns store.Namespace) *store.NamespacedStore
	ConfigurationParameter(key string) (string, bool)
	ConfigurationParameters() domain.ConfigurationParameters
	PublishReportEntry(kv ...string) error
	// TestInstance returns the instance the current unit runs against, if any.
	TestInstance() (any, bool)
	// ExecutionError returns the failure recorded so far for this node.
	ExecutionError() error
}

// ConditionResult tells whether a node may run.
type ConditionResult struct {
	Disabled bool
	Reason   string
}

func Enabled(reason string) ConditionResult {
	return ConditionResult{Reason: reason}
}

func Disabled(reason string) ConditionResult {
	return ConditionResult{Disabled: true, Reason: reason}
}

// ExecutionCondition decides whether a node is skipped.
type ExecutionCondition interface {
	EvaluateExecutionCondition(ctx Context) (ConditionResult, error)
}

type BeforeAllCallback interface {
	BeforeAll(ctx Context) error
}

type AfterAllCallback interface {
	AfterAll(ctx Context) error
}

type BeforeEachCallback interface {
	BeforeEach(ctx Context) error
}

type AfterEachCallback interface {
	AfterEach(ctx Context) error
}

// BeforeTestExecutionCallback runs immediately before the unit of work, after every BeforeEach.
type BeforeTestExecutionCallback interface {
	BeforeTestExecution(ctx Context) error
}

type AfterTestExecutionCallback interface {
	AfterTestExecution(ctx Context) error
}

// TestInstancePostProcessor is invoked on each freshly created test instance.
type TestInstancePostProcessor interface {
	PostProcessTestInstance(instance any, ctx Context) error
}

// ParameterContext describes one parameter of a unit of work.
type ParameterContext struct {
	Index     int
	Name      string
	Type      reflect.Type
	Declaring *domain.Descriptor
}

// ParameterResolver supplies arguments to units of work.
type ParameterResolver interface {
	SupportsParameter(p ParameterContext, ctx Context) (bool, error)
	ResolveParameter(p ParameterContext, ctx Context) (any, error)
}

// TestExecutionExceptionHandler intercepts failures of a unit of work. Returning nil
// swallows err, returning err rethrows it, returning another error replaces it.
type TestExecutionExceptionHandler interface {
	HandleTestExecutionException(ctx Context, err error) error
}

// Named overrides the name used to match an extension against deactivation patterns.
type Named interface {
	ExtensionName() string
}
