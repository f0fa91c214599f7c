package dsl

import (
	"fmt"
	"reflect"
	"runtime"

	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/extension"
	"github.com/tuchang/junit5/pkg/ports"
	"github.com/tuchang/junit5/pkg/uniqueid"
)

// TestBuilder provides a fluent API for configuring a test or a test factory.
type TestBuilder struct {
	name        string
	displayName string
	container   *ContainerBuilder
	fn          any
	factory     bool
	tags        []string
	disabled    *string
	extensions  []extension.Extension

	parsedTags []domain.Tag
	invocable  *invocable
}

// DisplayName overrides the name shown in reports.
func (t *TestBuilder) DisplayName(name string) *TestBuilder {
	t.displayName = name
	return t
}

// Tags labels the test.
func (t *TestBuilder) Tags(tags ...string) *TestBuilder {
	t.tags = append(t.tags, tags...)
	return t
}

// Disabled skips the test.
func (t *TestBuilder) Disabled(reason string) *TestBuilder {
	t.disabled = &reason
	return t
}

// ExtendWith registers extensions at the test's scope.
func (t *TestBuilder) ExtendWith(exts ...extension.Extension) *TestBuilder {
	t.extensions = append(t.extensions, exts...)
	return t
}

func (t *TestBuilder) String() string {
	return t.container.QualifiedName() + "#" + t.name
}

func (t *TestBuilder) segmentType() string {
	if t.factory {
		return FactorySegmentType
	}
	return TestSegmentType
}

func (t *TestBuilder) compile(parent uniqueid.UniqueID) error {
	if _, err := parent.Append(t.segmentType(), t.name); err != nil {
		return fmt.Errorf("test %q: %w", t.name, err)
	}
	tags, err := domain.ParseTags(t.tags...)
	if err != nil {
		return fmt.Errorf("test %s: %w", t, err)
	}
	t.parsedTags = tags

	outputs := testOutputs
	if t.factory {
		outputs = factoryOutputs
	}
	inv, err := compile(t.fn, outputs)
	if err != nil {
		return fmt.Errorf("test %s: %w", t, err)
	}
	t.invocable = inv
	return nil
}

func (t *TestBuilder) descriptor(parent *domain.Descriptor) *domain.Descriptor {
	typ := domain.TypeTest
	var payload any = testNode{t: t}
	if t.factory {
		typ = domain.TypeContainerAndTest
		payload = factoryNode{t: t}
	}

	var src domain.Source = domain.ElementSource{Container: t.container.QualifiedName(), Member: t.name}
	if file, line := t.invocable.location(); file != "" {
		src = domain.CompositeSource{Sources: []domain.Source{src, domain.FileSource{Path: file, Line: line}}}
	}

	return domain.NewDescriptor(
		parent.UniqueID().MustAppend(t.segmentType(), t.name),
		t.displayName,
		typ,
		domain.WithTags(t.parsedTags...),
		domain.WithSource(src),
		domain.WithPayload(payload),
	)
}

func disabledReason(reason *string) (string, bool) {
	if reason == nil {
		return "", false
	}
	return *reason, true
}

// containerNode is the payload of container descriptors.
type containerNode struct {
	c *ContainerBuilder
}

func (n containerNode) Extensions() []extension.Extension {
	return append(append([]extension.Extension{}, n.c.extensions...), n.c.lifecycle...)
}

func (n containerNode) DisabledReason() (string, bool) { return disabledReason(n.c.disabled) }

// classNode is the payload of containers that create test instances.
type classNode struct {
	containerNode
}

func (n classNode) NewInstance(_ extension.Context, outer any) (any, error) {
	return n.c.newInstance(outer)
}

// testNode is the payload of test descriptors.
type testNode struct {
	t *TestBuilder
}

func (n testNode) Extensions() []extension.Extension        { return n.t.extensions }
func (n testNode) DisabledReason() (string, bool)           { return disabledReason(n.t.disabled) }
func (n testNode) Parameters() []extension.ParameterContext { return n.t.invocable.params }

func (n testNode) Execute(_ extension.Context, _ any, args []any) error {
	_, err := n.t.invocable.call(args)
	return err
}

// factoryNode is the payload of test factory descriptors.
type factoryNode struct {
	t *TestBuilder
}

func (n factoryNode) Extensions() []extension.Extension        { return n.t.extensions }
func (n factoryNode) DisabledReason() (string, bool)           { return disabledReason(n.t.disabled) }
func (n factoryNode) Parameters() []extension.ParameterContext { return n.t.invocable.params }

func (n factoryNode) Generate(_ extension.Context, _ any, args []any) ([]ports.DynamicNode, error) {
	return n.t.invocable.call(args)
}

var (
	_ ports.ExtensionProvider  = containerNode{}
	_ ports.InstanceFactory    = classNode{}
	_ ports.Executable         = testNode{}
	_ ports.DynamicTestFactory = factoryNode{}
	_ ports.Disableable        = testNode{}
)

// beforeAllFunc and afterAllFunc run once for the container that declared
// them. Nested containers inherit the registration but skip the call.
type beforeAllFunc struct {
	owner *ContainerBuilder
	fn    func(extension.Context) error
}

type afterAllFunc struct {
	owner *ContainerBuilder
	fn    func(extension.Context) error
}

type beforeEachFunc func(extension.Context) error
type afterEachFunc func(extension.Context) error

func (f beforeAllFunc) BeforeAll(ctx extension.Context) error {
	if !declaredBy(ctx, f.owner) {
		return nil
	}
	return f.fn(ctx)
}

func (f afterAllFunc) AfterAll(ctx extension.Context) error {
	if !declaredBy(ctx, f.owner) {
		return nil
	}
	return f.fn(ctx)
}

func (f beforeEachFunc) BeforeEach(ctx extension.Context) error { return f(ctx) }
func (f afterEachFunc) AfterEach(ctx extension.Context) error   { return f(ctx) }

// declaredBy reports whether ctx belongs to the container built by c.
func declaredBy(ctx extension.Context, c *ContainerBuilder) bool {
	switch n := ctx.Descriptor().Payload().(type) {
	case containerNode:
		return n.c == c
	case classNode:
		return n.c == c
	}
	return false
}

// instanceResolver resolves a parameter whose type is exactly the type of the
// current test instance.
type instanceResolver struct{}

func (instanceResolver) ExtensionName() string { return "dsl.InstanceResolver" }

func (instanceResolver) SupportsParameter(p extension.ParameterContext, ctx extension.Context) (bool, error) {
	inst, ok := ctx.TestInstance()
	return ok && inst != nil && reflect.TypeOf(inst) == p.Type, nil
}

func (instanceResolver) ResolveParameter(_ extension.ParameterContext, ctx extension.Context) (any, error) {
	inst, _ := ctx.TestInstance()
	return inst, nil
}

// funcLocation returns where fn is declared.
func funcLocation(fn reflect.Value) (string, int) {
	f := runtime.FuncForPC(fn.Pointer())
	if f == nil {
		return "", 0
	}
	return f.FileLine(f.Entry())
}
