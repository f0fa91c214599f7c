package discovery

import (
	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/uniqueid"
)

// ElementResolver maps program elements and address segments to descriptors.
// Implementations must not modify the tree: they return detached descriptors
// and the Driver decides whether to attach them or reuse an existing node.
type ElementResolver interface {
	// ResolveElement returns the descriptors element denotes under parent, or none.
	ResolveElement(element any, parent *domain.Descriptor) ([]*domain.Descriptor, error)

	// ResolveSegment returns the descriptor addressed by seg under parent.
	ResolveSegment(seg uniqueid.Segment, parent *domain.Descriptor) (*domain.Descriptor, bool, error)
}

// ChildLister is implemented by resolvers that can enumerate the elements contained
// in a resolved container: leaves first, then nested containers.
type ChildLister interface {
	ChildElements(parent *domain.Descriptor) (leaves []any, containers []any)
}

// ElementPath is a chain of program elements, outermost first,
// e.g. an enclosing container, a nested container and one of its members.
type ElementPath []any

// SelectorFunc converts a selector into the element paths it denotes.
type SelectorFunc func(sel domain.Selector) ([]ElementPath, error)

// SelectorTable dispatches selectors by kind.
type SelectorTable map[domain.SelectorKind][]SelectorFunc

// Add registers fn for kind.
func (t SelectorTable) Add(kind domain.SelectorKind, fn SelectorFunc) SelectorTable {
	t[kind] = append(t[kind], fn)
	return t
}

// Merge returns a table holding the functions of t followed by those of other.
func (t SelectorTable) Merge(other SelectorTable) SelectorTable {
	merged := make(SelectorTable, len(t)+len(other))
	for k, fns := range t {
		merged[k] = append(merged[k], fns...)
	}
	for k, fns := range other {
		merged[k] = append(merged[k], fns...)
	}
	return merged
}

// ElementSelectorFunc treats an ElementSelector as a single-element path.
func ElementSelectorFunc(sel domain.Selector) ([]ElementPath, error) {
	s, ok := sel.(domain.ElementSelector)
	if !ok {
		return nil, nil
	}
	return []ElementPath{{s.Element}}, nil
}
