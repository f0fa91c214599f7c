package ports

import (
	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/extension"
)

// ExtensionProvider contributes the extensions registered at a node's own scope.
// Host lifecycle methods (before each, after all, ...) are contributed as extensions too.
type ExtensionProvider interface {
	Extensions() []extension.Extension
}

// InstanceFactory creates the instance that the tests of a container run against.
// outer is the instance of the enclosing container, or nil.
type InstanceFactory interface {
	NewInstance(ctx extension.Context, outer any) (any, error)
}

// Executable is a unit of work. The engine resolves one argument per declared
// parameter through the registered parameter resolvers.
type Executable interface {
	Parameters() []extension.ParameterContext
	Execute(ctx extension.Context, instance any, args []any) error
}

// DynamicTestFactory is a unit of work that produces more nodes while executing.
type DynamicTestFactory interface {
	Parameters() []extension.ParameterContext
	Generate(ctx extension.Context, instance any, args []any) ([]DynamicNode, error)
}

// DynamicNode is a test, or a container when Children is non-nil, registered at execution time.
type DynamicNode struct {
	DisplayName string
	Source      domain.Source
	Executable  Executable
	Children    []DynamicNode
}

// Disableable is implemented by payloads that can be statically disabled.
type Disableable interface {
	DisabledReason() (string, bool)
}
