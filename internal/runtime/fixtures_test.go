package runtime_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/extension"
	"github.com/tuchang/junit5/pkg/ports"
	"github.com/tuchang/junit5/pkg/testkit"
	"github.com/tuchang/junit5/pkg/uniqueid"
)

// scope is a container payload contributing extensions.
type scope struct {
	exts []extension.Extension
}

func (s scope) Extensions() []extension.Extension { return s.exts }

// class is a container payload that also creates instances.
type class struct {
	scope
	newInstance func(outer any) (any, error)
}

func (c class) NewInstance(_ extension.Context, outer any) (any, error) {
	return c.newInstance(outer)
}

// unit is a test payload.
type unit struct {
	exts   []extension.Extension
	params []extension.ParameterContext
	run    func(ctx extension.Context, instance any, args []any) error
}

func (u unit) Extensions() []extension.Extension        { return u.exts }
func (u unit) Parameters() []extension.ParameterContext { return u.params }

func (u unit) Execute(ctx extension.Context, instance any, args []any) error {
	if u.run == nil {
		return nil
	}
	return u.run(ctx, instance, args)
}

// factory is a dynamic test factory payload.
type factory struct {
	generate func(ctx extension.Context) ([]ports.DynamicNode, error)
}

func (f factory) Parameters() []extension.ParameterContext { return nil }

func (f factory) Generate(ctx extension.Context, _ any, _ []any) ([]ports.DynamicNode, error) {
	return f.generate(ctx)
}

func run(fn func(ctx extension.Context) error) unit {
	return unit{run: func(ctx extension.Context, _ any, _ []any) error { return fn(ctx) }}
}

// hooks logs every lifecycle callback as "name.phase" and fails the phases listed in errs.
type hooks struct {
	name string
	log  *testkit.Log
	errs map[string]error
}

func (h *hooks) call(phase string) error {
	h.log.Add("%s.%s", h.name, phase)
	return h.errs[phase]
}

func (h *hooks) BeforeAll(extension.Context) error           { return h.call("beforeAll") }
func (h *hooks) AfterAll(extension.Context) error            { return h.call("afterAll") }
func (h *hooks) BeforeEach(extension.Context) error          { return h.call("beforeEach") }
func (h *hooks) AfterEach(extension.Context) error           { return h.call("afterEach") }
func (h *hooks) BeforeTestExecution(extension.Context) error { return h.call("beforeTest") }
func (h *hooks) AfterTestExecution(extension.Context) error  { return h.call("afterTest") }

type condition func(ctx extension.Context) (extension.ConditionResult, error)

func (c condition) EvaluateExecutionCondition(ctx extension.Context) (extension.ConditionResult, error) {
	return c(ctx)
}

type handler func(ctx extension.Context, err error) error

func (h handler) HandleTestExecutionException(ctx extension.Context, err error) error {
	return h(ctx, err)
}

type postProcessor func(instance any) error

func (p postProcessor) PostProcessTestInstance(instance any, _ extension.Context) error {
	return p(instance)
}

// stringResolver resolves every string parameter to value.
type stringResolver struct {
	value string
}

func (r stringResolver) SupportsParameter(p extension.ParameterContext, _ extension.Context) (bool, error) {
	return p.Type.Kind() == reflect.String, nil
}

func (r stringResolver) ResolveParameter(extension.ParameterContext, extension.Context) (any, error) {
	return r.value, nil
}

func newRoot(t *testing.T) *domain.Descriptor {
	t.Helper()
	id, err := uniqueid.ForEngine("test-engine")
	require.NoError(t, err)
	root, err := domain.NewEngineDescriptor(id, "engine")
	require.NoError(t, err)
	return root
}

func addContainer(t *testing.T, parent *domain.Descriptor, name string, payload any) *domain.Descriptor {
	t.Helper()
	return add(t, parent, "container", name, domain.TypeContainer, payload)
}

func addTest(t *testing.T, parent *domain.Descriptor, name string, payload any) *domain.Descriptor {
	t.Helper()
	return add(t, parent, "test", name, domain.TypeTest, payload)
}

func add(t *testing.T, parent *domain.Descriptor, segment, name string, typ domain.Type, payload any) *domain.Descriptor {
	t.Helper()
	d := domain.NewDescriptor(parent.UniqueID().MustAppend(segment, name), name, typ, domain.WithPayload(payload))
	require.NoError(t, parent.AddChild(d))
	return d
}
