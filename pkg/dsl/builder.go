package dsl

import (
	"errors"
	"fmt"

	"github.com/tuchang/junit5"
	"github.com/tuchang/junit5/pkg/conditions"
	"github.com/tuchang/junit5/pkg/discovery"
	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/extension"
	"github.com/tuchang/junit5/pkg/uniqueid"
)

// Segment types of the unique ids built by this package.
const (
	ContainerSegmentType = "container"
	TestSegmentType      = "test"
	FactorySegmentType   = "test-factory"
)

// Builder manages the construction of one engine.
type Builder struct {
	id         string
	name       string
	containers []*ContainerBuilder
	extensions []extension.Extension
}

// New creates a builder for the engine with the given id.
func New(engineID string) *Builder {
	return &Builder{id: engineID, name: engineID}
}

// Name sets the display name of the engine.
func (b *Builder) Name(name string) *Builder {
	b.name = name
	return b
}

// ExtendWith registers engine-wide extensions.
func (b *Builder) ExtendWith(exts ...extension.Extension) *Builder {
	b.extensions = append(b.extensions, exts...)
	return b
}

// Add appends top-level containers.
func (b *Builder) Add(containers ...*ContainerBuilder) *Builder {
	b.containers = append(b.containers, containers...)
	return b
}

// Container creates a top-level container, or returns the existing one with that name.
func (b *Builder) Container(name string) *ContainerBuilder {
	for _, c := range b.containers {
		if c.name == name {
			return c
		}
	}
	c := Container(name)
	b.containers = append(b.containers, c)
	return c
}

// Build validates the model and compiles every test function into an engine.
func (b *Builder) Build() (junit5.TestEngine, error) {
	root, err := uniqueid.ForEngine(b.id)
	if err != nil {
		return junit5.TestEngine{}, domain.NewConfigurationError("build engine", b.id, err)
	}

	var errs []error
	seen := make(map[string]bool)
	for _, c := range b.containers {
		if c.outer != nil {
			errs = append(errs, fmt.Errorf("container %q is nested in %q and cannot be top-level", c.name, c.outer.name))
			continue
		}
		if seen[c.name] {
			errs = append(errs, fmt.Errorf("duplicate container %q", c.name))
		}
		seen[c.name] = true
		errs = append(errs, c.compile(root)...)
	}
	if err := errors.Join(errs...); err != nil {
		return junit5.TestEngine{}, domain.NewConfigurationError("build engine", b.id, err)
	}

	r := &resolver{root: root, containers: b.containers}
	exts := append([]extension.Extension{
		extension.BuiltinResolver{},
		instanceResolver{},
		conditions.Disabled{},
	}, b.extensions...)

	return junit5.TestEngine{
		ID:         b.id,
		Name:       b.name,
		Resolvers:  []discovery.ElementResolver{r},
		Selectors:  r.selectors(),
		Extensions: exts,
	}, nil
}

// NewEngine builds an engine from top-level containers.
func NewEngine(engineID string, containers ...*ContainerBuilder) (junit5.TestEngine, error) {
	return New(engineID).Add(containers...).Build()
}

// ContainerBuilder provides a fluent API for configuring a container.
type ContainerBuilder struct {
	name        string
	displayName string
	outer       *ContainerBuilder
	tags        []string
	disabled    *string
	extensions  []extension.Extension
	lifecycle   []extension.Extension
	newInstance func(outer any) (any, error)
	tests       []*TestBuilder
	nested      []*ContainerBuilder

	parsedTags []domain.Tag
}

// Container creates a detached container to be passed to Builder.Add or NewEngine.
func Container(name string) *ContainerBuilder {
	return &ContainerBuilder{name: name}
}

// DisplayName overrides the name shown in reports.
func (c *ContainerBuilder) DisplayName(name string) *ContainerBuilder {
	c.displayName = name
	return c
}

// Tags labels the container. Tests inherit them.
func (c *ContainerBuilder) Tags(tags ...string) *ContainerBuilder {
	c.tags = append(c.tags, tags...)
	return c
}

// Disabled skips the container and everything in it.
func (c *ContainerBuilder) Disabled(reason string) *ContainerBuilder {
	c.disabled = &reason
	return c
}

// ExtendWith registers extensions at the container's scope.
func (c *ContainerBuilder) ExtendWith(exts ...extension.Extension) *ContainerBuilder {
	c.extensions = append(c.extensions, exts...)
	return c
}

// Instance sets the factory creating a fresh instance for every test. outer is
// the instance of the enclosing container, or nil.
func (c *ContainerBuilder) Instance(factory func(outer any) (any, error)) *ContainerBuilder {
	c.newInstance = factory
	return c
}

func (c *ContainerBuilder) BeforeAll(fn func(extension.Context) error) *ContainerBuilder {
	c.lifecycle = append(c.lifecycle, beforeAllFunc{owner: c, fn: fn})
	return c
}

func (c *ContainerBuilder) AfterAll(fn func(extension.Context) error) *ContainerBuilder {
	c.lifecycle = append(c.lifecycle, afterAllFunc{owner: c, fn: fn})
	return c
}

func (c *ContainerBuilder) BeforeEach(fn func(extension.Context) error) *ContainerBuilder {
	c.lifecycle = append(c.lifecycle, beforeEachFunc(fn))
	return c
}

func (c *ContainerBuilder) AfterEach(fn func(extension.Context) error) *ContainerBuilder {
	c.lifecycle = append(c.lifecycle, afterEachFunc(fn))
	return c
}

// Test adds a test. fn must be a function returning nothing or an error.
func (c *ContainerBuilder) Test(name string, fn any) *TestBuilder {
	t := &TestBuilder{name: name, container: c, fn: fn}
	c.tests = append(c.tests, t)
	return t
}

// Factory adds a test factory. fn must return []ports.DynamicNode, optionally
// followed by an error.
func (c *ContainerBuilder) Factory(name string, fn any) *TestBuilder {
	t := &TestBuilder{name: name, container: c, fn: fn, factory: true}
	c.tests = append(c.tests, t)
	return t
}

// Nested adds an inner container, or returns the existing one with that name.
func (c *ContainerBuilder) Nested(name string) *ContainerBuilder {
	for _, n := range c.nested {
		if n.name == name {
			return n
		}
	}
	n := &ContainerBuilder{name: name, outer: c}
	c.nested = append(c.nested, n)
	return n
}

// QualifiedName joins the names of the enclosing containers with dots.
func (c *ContainerBuilder) QualifiedName() string {
	if c.outer == nil {
		return c.name
	}
	return c.outer.QualifiedName() + "." + c.name
}

func (c *ContainerBuilder) String() string { return c.QualifiedName() }

func (c *ContainerBuilder) compile(parent uniqueid.UniqueID) []error {
	var errs []error
	id, err := parent.Append(ContainerSegmentType, c.name)
	if err != nil {
		return []error{fmt.Errorf("container %q: %w", c.name, err)}
	}
	if c.parsedTags, err = domain.ParseTags(c.tags...); err != nil {
		errs = append(errs, fmt.Errorf("container %q: %w", c.QualifiedName(), err))
	}

	seen := make(map[string]bool)
	for _, t := range c.tests {
		key := t.segmentType() + ":" + t.name
		if seen[key] {
			errs = append(errs, fmt.Errorf("duplicate test %q in %q", t.name, c.QualifiedName()))
		}
		seen[key] = true
		if err := t.compile(id); err != nil {
			errs = append(errs, err)
		}
	}
	for _, n := range c.nested {
		if seen["nested:"+n.name] {
			errs = append(errs, fmt.Errorf("duplicate container %q in %q", n.name, c.QualifiedName()))
		}
		seen["nested:"+n.name] = true
		errs = append(errs, n.compile(id)...)
	}
	return errs
}

func (c *ContainerBuilder) descriptor(parent *domain.Descriptor) *domain.Descriptor {
	var payload any = containerNode{c: c}
	if c.newInstance != nil {
		payload = classNode{containerNode{c: c}}
	}
	return domain.NewDescriptor(
		parent.UniqueID().MustAppend(ContainerSegmentType, c.name),
		c.displayName,
		domain.TypeContainer,
		domain.WithTags(c.parsedTags...),
		domain.WithSource(domain.ElementSource{Container: c.QualifiedName()}),
		domain.WithPayload(payload),
	)
}
