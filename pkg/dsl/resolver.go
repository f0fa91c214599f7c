package dsl

import (
	"github.com/tuchang/junit5/pkg/discovery"
	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/uniqueid"
)

// resolver maps containers and tests of one engine onto descriptors.
type resolver struct {
	root       uniqueid.UniqueID
	containers []*ContainerBuilder
}

var (
	_ discovery.ElementResolver = (*resolver)(nil)
	_ discovery.ChildLister     = (*resolver)(nil)
)

func containerOf(d *domain.Descriptor) (*ContainerBuilder, bool) {
	switch p := d.Payload().(type) {
	case containerNode:
		return p.c, true
	case classNode:
		return p.c, true
	}
	return nil, false
}

// owns reports whether parent is where c belongs.
func (r *resolver) owns(parent *domain.Descriptor, outer *ContainerBuilder) bool {
	if outer == nil {
		return parent.UniqueID().Equal(r.root)
	}
	c, ok := containerOf(parent)
	return ok && c == outer
}

func (r *resolver) ResolveElement(element any, parent *domain.Descriptor) ([]*domain.Descriptor, error) {
	switch e := element.(type) {
	case *ContainerBuilder:
		if r.contains(e) && r.owns(parent, e.outer) {
			return []*domain.Descriptor{e.descriptor(parent)}, nil
		}
	case *TestBuilder:
		if r.contains(e.container) && r.owns(parent, e.container) {
			return []*domain.Descriptor{e.descriptor(parent)}, nil
		}
	}
	return nil, nil
}

func (r *resolver) ResolveSegment(seg uniqueid.Segment, parent *domain.Descriptor) (*domain.Descriptor, bool, error) {
	containers := r.containers
	var tests []*TestBuilder
	if c, ok := containerOf(parent); ok {
		containers, tests = c.nested, c.tests
	} else if !parent.UniqueID().Equal(r.root) {
		return nil, false, nil
	}

	switch seg.Type {
	case ContainerSegmentType:
		for _, c := range containers {
			if c.name == seg.Value {
				return c.descriptor(parent), true, nil
			}
		}
	case TestSegmentType, FactorySegmentType:
		for _, t := range tests {
			if t.name == seg.Value && t.segmentType() == seg.Type {
				return t.descriptor(parent), true, nil
			}
		}
	}
	return nil, false, nil
}

func (r *resolver) ChildElements(parent *domain.Descriptor) ([]any, []any) {
	var leaves, containers []any
	if c, ok := containerOf(parent); ok {
		for _, t := range c.tests {
			leaves = append(leaves, t)
		}
		for _, n := range c.nested {
			containers = append(containers, n)
		}
		return leaves, containers
	}
	if parent.UniqueID().Equal(r.root) {
		for _, c := range r.containers {
			containers = append(containers, c)
		}
	}
	return leaves, containers
}

// contains reports whether c belongs to this engine.
func (r *resolver) contains(c *ContainerBuilder) bool {
	top := c
	for top.outer != nil {
		top = top.outer
	}
	for _, candidate := range r.containers {
		if candidate == top {
			return true
		}
	}
	return false
}

func (r *resolver) selectors() discovery.SelectorTable {
	return discovery.SelectorTable{}.
		Add(domain.KindName, r.byName).
		Add(domain.KindElement, r.byElement)
}

// byName resolves "Outer.Inner" to a container chain and "Outer.Inner.test"
// to a chain ending in a test or test factory.
func (r *resolver) byName(sel domain.Selector) ([]discovery.ElementPath, error) {
	s, ok := sel.(domain.NameSelector)
	if !ok || len(s.Path) == 0 {
		return nil, nil
	}

	var path discovery.ElementPath
	candidates := r.containers
	var current *ContainerBuilder
	for i, name := range s.Path {
		var next *ContainerBuilder
		for _, c := range candidates {
			if c.name == name {
				next = c
				break
			}
		}
		if next == nil {
			if current == nil || i != len(s.Path)-1 {
				return nil, nil
			}
			for _, t := range current.tests {
				if t.name == name {
					return []discovery.ElementPath{append(path, t)}, nil
				}
			}
			return nil, nil
		}
		path = append(path, next)
		current, candidates = next, next.nested
	}
	return []discovery.ElementPath{path}, nil
}

// byElement resolves a *ContainerBuilder or *TestBuilder together with its
// enclosing containers.
func (r *resolver) byElement(sel domain.Selector) ([]discovery.ElementPath, error) {
	s, ok := sel.(domain.ElementSelector)
	if !ok {
		return nil, nil
	}

	var leaf any
	var c *ContainerBuilder
	switch e := s.Element.(type) {
	case *ContainerBuilder:
		c = e
	case *TestBuilder:
		leaf, c = e, e.container
	default:
		return nil, nil
	}
	if !r.contains(c) {
		return nil, nil
	}

	var path discovery.ElementPath
	for ; c != nil; c = c.outer {
		path = append(discovery.ElementPath{c}, path...)
	}
	if leaf != nil {
		path = append(path, leaf)
	}
	return []discovery.ElementPath{path}, nil
}
