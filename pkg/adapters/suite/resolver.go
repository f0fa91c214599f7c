package suite

import (
	"fmt"
	"path/filepath"

	"github.com/tuchang/junit5/pkg/discovery"
	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/extension"
	"github.com/tuchang/junit5/pkg/ports"
	"github.com/tuchang/junit5/pkg/uniqueid"
)

// suiteFile is the element of an absolute suite file path.
type suiteFile string

// resolver maps suite files and their containers and tests onto descriptors.
type resolver struct {
	engine *Engine
	root   uniqueid.UniqueID
}

var (
	_ discovery.ElementResolver = (*resolver)(nil)
	_ discovery.ChildLister     = (*resolver)(nil)
)

func (r *resolver) isRoot(d *domain.Descriptor) bool {
	return d.UniqueID().Equal(r.root)
}

func (r *resolver) ResolveElement(element any, parent *domain.Descriptor) ([]*domain.Descriptor, error) {
	switch e := element.(type) {
	case suiteFile:
		if !r.isRoot(parent) {
			return nil, nil
		}
		l, err := r.engine.load(string(e))
		if err != nil {
			return nil, err
		}
		d, err := r.suiteDescriptor(l, parent)
		if err != nil {
			return nil, err
		}
		return []*domain.Descriptor{d}, nil
	case *Container:
		if n, ok := parent.Payload().(containerNode); ok && e.outer != nil && e.outer == n.c {
			return []*domain.Descriptor{n.loaded.containerDescriptor(e, parent)}, nil
		}
	case *Test:
		if n, ok := parent.Payload().(containerNode); ok && e.container == n.c {
			return []*domain.Descriptor{n.loaded.testDescriptor(e, parent)}, nil
		}
	}
	return nil, nil
}

func (r *resolver) ResolveSegment(seg uniqueid.Segment, parent *domain.Descriptor) (*domain.Descriptor, bool, error) {
	if r.isRoot(parent) {
		if seg.Type != SuiteSegmentType {
			return nil, false, nil
		}
		l := r.find(seg.Value)
		if l == nil {
			return nil, false, nil
		}
		d, err := r.suiteDescriptor(l, parent)
		return d, err == nil, err
	}

	n, ok := parent.Payload().(containerNode)
	if !ok {
		return nil, false, nil
	}
	switch seg.Type {
	case ContainerSegmentType:
		for _, c := range n.c.Containers {
			if c.Name == seg.Value {
				return n.loaded.containerDescriptor(c, parent), true, nil
			}
		}
	case TestSegmentType:
		for _, t := range n.c.Tests {
			if t.Name == seg.Value {
				return n.loaded.testDescriptor(t, parent), true, nil
			}
		}
	}
	return nil, false, nil
}

func (r *resolver) ChildElements(parent *domain.Descriptor) ([]any, []any) {
	var leaves, containers []any
	if r.isRoot(parent) {
		for _, f := range r.engine.files() {
			containers = append(containers, suiteFile(f))
		}
		return nil, containers
	}
	if n, ok := parent.Payload().(containerNode); ok {
		for _, t := range n.c.Tests {
			leaves = append(leaves, t)
		}
		for _, c := range n.c.Containers {
			containers = append(containers, c)
		}
	}
	return leaves, containers
}

// find returns the loaded suite named name. Files that fail to load are
// skipped here; resolving them directly reports the error.
func (r *resolver) find(name string) *loaded {
	for _, f := range r.engine.files() {
		l, err := r.engine.load(f)
		if err != nil {
			r.engine.logger.Warn("suite skipped", "path", f, "err", err)
			continue
		}
		if l.suite.Root.Name == name {
			return l
		}
	}
	return nil
}

func (r *resolver) suiteDescriptor(l *loaded, parent *domain.Descriptor) (*domain.Descriptor, error) {
	c := l.suite.Root
	id, err := parent.UniqueID().Append(SuiteSegmentType, c.Name)
	if err != nil {
		return nil, fmt.Errorf("suite %s: %w", l.suite.Path, err)
	}
	if existing, ok := parent.Child(id); ok {
		if n, ok := existing.Payload().(containerNode); ok && n.loaded.suite.Path != l.suite.Path {
			return nil, fmt.Errorf("suite %q is defined by both %s and %s", c.Name, n.loaded.suite.Path, l.suite.Path)
		}
	}
	return domain.NewDescriptor(id, displayName(c.DisplayName, c.Name), domain.TypeContainer,
		domain.WithTags(l.tags[c]...),
		domain.WithSource(domain.FileSource{Path: l.suite.Path, Line: c.Line}),
		domain.WithPayload(containerNode{engine: r.engine, loaded: l, c: c}),
	), nil
}

func (l *loaded) containerDescriptor(c *Container, parent *domain.Descriptor) *domain.Descriptor {
	n := parent.Payload().(containerNode)
	return domain.NewDescriptor(
		parent.UniqueID().MustAppend(ContainerSegmentType, c.Name),
		displayName(c.DisplayName, c.Name),
		domain.TypeContainer,
		domain.WithTags(l.tags[c]...),
		domain.WithSource(domain.FileSource{Path: l.suite.Path, Line: c.Line}),
		domain.WithPayload(containerNode{engine: n.engine, loaded: l, c: c}),
	)
}

func (l *loaded) testDescriptor(t *Test, parent *domain.Descriptor) *domain.Descriptor {
	n := parent.Payload().(containerNode)
	return domain.NewDescriptor(
		parent.UniqueID().MustAppend(TestSegmentType, t.Name),
		displayName(t.DisplayName, t.Name),
		domain.TypeTest,
		domain.WithTags(l.tags[t]...),
		domain.WithSource(domain.FileSource{Path: l.suite.Path, Line: t.Line}),
		domain.WithPayload(testNode{engine: n.engine, loaded: l, t: t}),
	)
}

func displayName(display, name string) string {
	if display != "" {
		return display
	}
	return name
}

func (r *resolver) selectors() discovery.SelectorTable {
	return discovery.SelectorTable{}.
		Add(domain.KindFile, r.byFile).
		Add(domain.KindDirectory, r.byDirectory).
		Add(domain.KindName, r.byName)
}

func (r *resolver) byFile(sel domain.Selector) ([]discovery.ElementPath, error) {
	s, ok := sel.(domain.FileSelector)
	if !ok || !IsSuiteFile(s.Path) {
		return nil, nil
	}
	abs, err := filepath.Abs(s.Path)
	if err != nil {
		return nil, err
	}
	return []discovery.ElementPath{{suiteFile(abs)}}, nil
}

func (r *resolver) byDirectory(sel domain.Selector) ([]discovery.ElementPath, error) {
	s, ok := sel.(domain.DirectorySelector)
	if !ok {
		return nil, nil
	}
	abs, err := filepath.Abs(s.Path)
	if err != nil {
		return nil, err
	}
	var paths []discovery.ElementPath
	for _, f := range r.engine.walk(abs) {
		paths = append(paths, discovery.ElementPath{suiteFile(f)})
	}
	return paths, nil
}

// byName resolves "suite", "suite.container" and "suite.container.test".
func (r *resolver) byName(sel domain.Selector) ([]discovery.ElementPath, error) {
	s, ok := sel.(domain.NameSelector)
	if !ok || len(s.Path) == 0 {
		return nil, nil
	}
	l := r.find(s.Path[0])
	if l == nil {
		return nil, nil
	}

	path := discovery.ElementPath{suiteFile(l.suite.Path)}
	current := l.suite.Root
	for i, name := range s.Path[1:] {
		last := i == len(s.Path)-2
		var next *Container
		for _, c := range current.Containers {
			if c.Name == name {
				next = c
				break
			}
		}
		if next != nil {
			path = append(path, next)
			current = next
			continue
		}
		if !last {
			return nil, nil
		}
		for _, t := range current.Tests {
			if t.Name == name {
				return []discovery.ElementPath{append(path, t)}, nil
			}
		}
		return nil, nil
	}
	return []discovery.ElementPath{path}, nil
}

// containerNode is the payload of suite and container descriptors.
type containerNode struct {
	engine *Engine
	loaded *loaded
	c      *Container
}

func (n containerNode) Extensions() []extension.Extension { return n.loaded.extensions[n.c] }

func (n containerNode) DisabledReason() (string, bool) { return disabledReason(n.c.Disabled) }

// testNode is the payload of test descriptors.
type testNode struct {
	engine *Engine
	loaded *loaded
	t      *Test
}

func (n testNode) Extensions() []extension.Extension        { return n.loaded.extensions[n.t] }
func (n testNode) DisabledReason() (string, bool)           { return disabledReason(n.t.Disabled) }
func (n testNode) Parameters() []extension.ParameterContext { return nil }

func (n testNode) Execute(ctx extension.Context, _ any, _ []any) error {
	run := func() error {
		return n.engine.runTest(ctx, n.loaded.suite, n.t)
	}
	ctx.Store(namespace).Put(rerunKey, run)
	return run()
}

func disabledReason(reason *string) (string, bool) {
	if reason == nil {
		return "", false
	}
	return *reason, true
}

var (
	_ ports.ExtensionProvider = containerNode{}
	_ ports.Executable        = testNode{}
	_ ports.Disableable       = testNode{}
)
