package domain

import (
	"fmt"
	"slices"
	"sync"

	"github.com/tuchang/junit5/pkg/uniqueid"
)

// Type classifies a descriptor as a container, a test, or both.
type Type int

const (
	TypeContainer Type = iota + 1
	TypeTest
	// TypeContainerAndTest is used by units that register dynamic children while executing.
	TypeContainerAndTest
)

func (t Type) IsContainer() bool { return t == TypeContainer || t == TypeContainerAndTest }

func (t Type) IsTest() bool { return t == TypeTest || t == TypeContainerAndTest }

func (t Type) String() string {
	switch t {
	case TypeContainer:
		return "container"
	case TypeTest:
		return "test"
	case TypeContainerAndTest:
		return "container_and_test"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Descriptor is a node of the test plan. Its parent is set once, when it is added
// to another descriptor, and is never reassigned.
type Descriptor struct {
	id          uniqueid.UniqueID
	displayName string
	typ         Type
	source      Source
	tags        []Tag
	payload     any // Host behavior, see package ports

	mu       sync.RWMutex
	parent   *Descriptor
	children []*Descriptor
	index    map[string]*Descriptor
	removed  bool
}

// DescriptorOption configures a Descriptor at construction.
type DescriptorOption func(*Descriptor)

// WithSource sets the source of a descriptor.
func WithSource(src Source) DescriptorOption {
	return func(d *Descriptor) { d.source = src }
}

// WithTags sets the tags of a descriptor. Duplicates are dropped.
func WithTags(tags ...Tag) DescriptorOption {
	return func(d *Descriptor) {
		for _, t := range tags {
			if !slices.Contains(d.tags, t) {
				d.tags = append(d.tags, t)
			}
		}
	}
}

// WithPayload attaches the opaque host behavior of a descriptor.
func WithPayload(payload any) DescriptorOption {
	return func(d *Descriptor) { d.payload = payload }
}

// NewDescriptor creates a detached descriptor. An empty display name defaults to the
// value of the last segment of id.
func NewDescriptor(id uniqueid.UniqueID, displayName string, typ Type, opts ...DescriptorOption) *Descriptor {
	if displayName == "" {
		if last, ok := id.Last(); ok {
			displayName = last.Value
		}
	}
	d := &Descriptor{
		id:          id,
		displayName: displayName,
		typ:         typ,
		index:       make(map[string]*Descriptor),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewEngineDescriptor creates the root of an engine's plan.
func NewEngineDescriptor(id uniqueid.UniqueID, displayName string, opts ...DescriptorOption) (*Descriptor, error) {
	if id.Len() != 1 {
		return nil, fmt.Errorf("%w: engine descriptor %s must have exactly one segment", ErrInvalidChildID, id)
	}
	return NewDescriptor(id, displayName, TypeContainer, opts...), nil
}

func (d *Descriptor) UniqueID() uniqueid.UniqueID { return d.id }

func (d *Descriptor) DisplayName() string { return d.displayName }

func (d *Descriptor) Type() Type { return d.typ }

func (d *Descriptor) IsContainer() bool { return d.typ.IsContainer() }

func (d *Descriptor) IsTest() bool { return d.typ.IsTest() }

// Source returns the source of d, or nil.
func (d *Descriptor) Source() Source { return d.source }

// Payload returns the host behavior attached to d.
func (d *Descriptor) Payload() any { return d.payload }

// Tags returns the tags declared on d itself.
func (d *Descriptor) Tags() []Tag { return slices.Clone(d.tags) }

// AllTags returns the tags of d and of its ancestors, closest first, without duplicates.
func (d *Descriptor) AllTags() []Tag {
	var all []Tag
	for n := d; n != nil; n = n.Parent() {
		for _, t := range n.tags {
			if !slices.Contains(all, t) {
				all = append(all, t)
			}
		}
	}
	return all
}

// HasTag reports whether d or one of its ancestors is tagged with t.
func (d *Descriptor) HasTag(t Tag) bool {
	return slices.Contains(d.AllTags(), t)
}

// Parent returns the parent of d, or nil for a root or a removed node.
func (d *Descriptor) Parent() *Descriptor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.parent
}

func (d *Descriptor) IsRoot() bool {
	return d.Parent() == nil && !d.isRemoved()
}

func (d *Descriptor) isRemoved() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.removed
}

// Root returns the topmost ancestor of d.
func (d *Descriptor) Root() *Descriptor {
	n := d
	for p := n.Parent(); p != nil; p = n.Parent() {
		n = p
	}
	return n
}

// Ancestors returns the parent chain of d, closest first.
func (d *Descriptor) Ancestors() []*Descriptor {
	var out []*Descriptor
	for p := d.Parent(); p != nil; p = p.Parent() {
		out = append(out, p)
	}
	return out
}

// Children returns the children of d in insertion order.
func (d *Descriptor) Children() []*Descriptor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.children)
}

// Child returns the direct child with the given id.
func (d *Descriptor) Child(id uniqueid.UniqueID) (*Descriptor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.index[id.Key()]
	return c, ok
}

// AddChild attaches child to d.
func (d *Descriptor) AddChild(child *Descriptor) error {
	parentID, ok := child.id.Parent()
	if !ok || !parentID.Equal(d.id) {
		return fmt.Errorf("%w: %s under %s", ErrInvalidChildID, child.id, d.id)
	}

	child.mu.Lock()
	defer child.mu.Unlock()
	if child.parent != nil || child.removed {
		return fmt.Errorf("%w: %s", ErrAlreadyAttached, child.id)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	key := child.id.Key()
	if _, exists := d.index[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateChild, child.id)
	}
	d.index[key] = child
	d.children = append(d.children, child)
	child.parent = d
	return nil
}

// RemoveFromHierarchy detaches d from its parent and drops its children.
func (d *Descriptor) RemoveFromHierarchy() error {
	parent := d.Parent()
	if parent == nil {
		return ErrRootRemoval
	}

	parent.mu.Lock()
	delete(parent.index, d.id.Key())
	parent.children = slices.DeleteFunc(parent.children, func(c *Descriptor) bool { return c == d })
	parent.mu.Unlock()

	d.mu.Lock()
	d.parent = nil
	d.removed = true
	d.children = nil
	d.index = make(map[string]*Descriptor)
	d.mu.Unlock()
	return nil
}

// FindByUniqueID looks id up in the subtree rooted at d.
func (d *Descriptor) FindByUniqueID(id uniqueid.UniqueID) (*Descriptor, bool) {
	if !id.HasPrefix(d.id) {
		return nil, false
	}
	segments := id.Segments()
	current := d
	cursor := d.id
	for i := d.id.Len(); i < len(segments); i++ {
		next, err := cursor.Append(segments[i].Type, segments[i].Value)
		if err != nil {
			return nil, false
		}
		child, ok := current.Child(next)
		if !ok {
			return nil, false
		}
		current, cursor = child, next
	}
	return current, true
}

// Walk visits d and its descendants depth-first, parents before children.
// Returning a non-nil error stops the walk.
func (d *Descriptor) Walk(fn func(*Descriptor) error) error {
	if err := fn(d); err != nil {
		return err
	}
	for _, c := range d.Children() {
		if err := c.Walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// Descendants returns every node below d in walk order.
func (d *Descriptor) Descendants() []*Descriptor {
	var out []*Descriptor
	_ = d.Walk(func(n *Descriptor) error {
		if n != d {
			out = append(out, n)
		}
		return nil
	})
	return out
}

// HasTests reports whether d is a test or contains one.
func (d *Descriptor) HasTests() bool {
	if d.IsTest() {
		return true
	}
	for _, c := range d.Children() {
		if c.HasTests() {
			return true
		}
	}
	return false
}

// Prune removes every descendant subtree that contains no tests.
func (d *Descriptor) Prune() {
	for _, c := range d.Children() {
		c.Prune()
		if !c.HasTests() {
			_ = c.RemoveFromHierarchy()
		}
	}
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s (%s)", d.displayName, d.id)
}
