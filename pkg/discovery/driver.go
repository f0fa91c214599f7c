package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/uniqueid"
)

// Warning describes something a selector asked for that could not be resolved.
type Warning struct {
	Selector    string
	Message     string
	Suggestions []string
}

func (w Warning) String() string {
	if len(w.Suggestions) == 0 {
		return fmt.Sprintf("%s: %s", w.Selector, w.Message)
	}
	return fmt.Sprintf("%s: %s (did you mean %v?)", w.Selector, w.Message, w.Suggestions)
}

// Report collects the outcome of Driver.Resolve.
type Report struct {
	Warnings []Warning
	Errors   []error
}

// Err joins the errors recorded while resolving.
func (r *Report) Err() error {
	return errors.Join(r.Errors...)
}

// Driver resolves selectors into the tree rooted at an engine descriptor.
type Driver struct {
	root      *domain.Descriptor
	resolvers []ElementResolver
	table     SelectorTable
	logger    *slog.Logger
	onWarning func(Warning)

	index    map[string]*domain.Descriptor
	expanded map[string]bool
	report   *Report
	current  string
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger used for warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// WithSelectorTable sets the functions converting selectors into element paths.
func WithSelectorTable(table SelectorTable) Option {
	return func(d *Driver) {
		d.table = d.table.Merge(table)
	}
}

// WithWarningHandler registers a callback invoked for every warning.
func WithWarningHandler(fn func(Warning)) Option {
	return func(d *Driver) {
		d.onWarning = fn
	}
}

// NewDriver creates a Driver attaching nodes below root.
func NewDriver(root *domain.Descriptor, resolvers []ElementResolver, opts ...Option) *Driver {
	d := &Driver{
		root:      root,
		resolvers: resolvers,
		table:     SelectorTable{domain.KindElement: {ElementSelectorFunc}},
		logger:    slog.New(slog.NewJSONHandler(io.Discard, nil)),
		index:     make(map[string]*domain.Descriptor),
		expanded:  make(map[string]bool),
		report:    &Report{},
	}
	for _, opt := range opts {
		opt(d)
	}
	_ = root.Walk(func(n *domain.Descriptor) error {
		d.index[n.UniqueID().Key()] = n
		return nil
	})
	return d
}

// Root returns the engine descriptor.
func (d *Driver) Root() *domain.Descriptor {
	return d.root
}

// Resolve resolves every selector. Problems with one selector never stop the others.
func (d *Driver) Resolve(ctx context.Context, selectors ...domain.Selector) *Report {
	for _, sel := range selectors {
		if err := ctx.Err(); err != nil {
			d.report.Errors = append(d.report.Errors, err)
			break
		}
		d.current = sel.String()
		d.resolveSelector(sel)
	}
	d.current = ""
	report := d.report
	d.report = &Report{}
	return report
}

func (d *Driver) resolveSelector(sel domain.Selector) {
	if s, ok := sel.(domain.UniqueIDSelector); ok {
		if _, err := d.ResolveAddress(s.ID); err != nil {
			d.fail(err)
		}
		return
	}

	fns := d.table[sel.Kind()]
	if len(fns) == 0 {
		d.logger.Debug("no resolver interested in selector", "selector", sel.String(), "kind", sel.Kind())
		return
	}
	for _, fn := range fns {
		paths, err := fn(sel)
		if err != nil {
			d.fail(domain.NewConfigurationError("select", sel.String(), err))
			continue
		}
		for _, path := range paths {
			d.resolvePath(path)
		}
	}
}

func (d *Driver) resolvePath(path ElementPath) {
	parents := []*domain.Descriptor{d.root}
	for _, element := range path {
		resolved, err := d.ResolveElement(element, parents)
		if err != nil {
			d.fail(err)
		}
		if len(resolved) == 0 {
			d.warn(Warning{Message: fmt.Sprintf("element %v could not be resolved", element)})
			return
		}
		parents = resolved
	}
	for _, n := range parents {
		if n.IsContainer() {
			if err := d.ResolveChildrenOf(n); err != nil {
				d.fail(err)
			}
		}
	}
}

// ResolveElement asks every resolver to resolve element under every candidate parent.
// Descriptors whose unique id already exists in the tree are replaced by the existing
// node. The union of new and reused nodes is returned in resolution order.
func (d *Driver) ResolveElement(element any, parents []*domain.Descriptor) ([]*domain.Descriptor, error) {
	var (
		resolved []*domain.Descriptor
		seen     = make(map[string]bool)
		errs     []error
	)
	for _, parent := range parents {
		for _, r := range d.resolvers {
			candidates, err := r.ResolveElement(element, parent)
			if err != nil {
				errs = append(errs, domain.NewConfigurationError("resolve", fmt.Sprint(element), err))
				continue
			}
			for _, c := range candidates {
				node, err := d.attach(parent, c)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				if key := node.UniqueID().Key(); !seen[key] {
					seen[key] = true
					resolved = append(resolved, node)
				}
			}
		}
	}
	return resolved, errors.Join(errs...)
}

// ResolveAddress reconstitutes the node at id one segment at a time. Addresses of
// other engines are ignored. An address that cannot be fully resolved yields a
// warning and a nil descriptor.
func (d *Driver) ResolveAddress(id uniqueid.UniqueID) (*domain.Descriptor, error) {
	if !id.HasPrefix(d.root.UniqueID()) {
		return nil, nil
	}
	if existing, ok := d.index[id.Key()]; ok {
		return existing, d.expand(existing)
	}

	segments := id.Segments()
	parent := d.root
	for i := d.root.UniqueID().Len(); i < len(segments); i++ {
		seg := segments[i]
		next, err := parent.UniqueID().Append(seg.Type, seg.Value)
		if err != nil {
			return nil, domain.NewConfigurationError("resolve", id.String(), err)
		}
		if existing, ok := d.index[next.Key()]; ok {
			parent = existing
			continue
		}

		node, err := d.resolveSegment(seg, parent)
		if err != nil {
			return nil, err
		}
		if node == nil {
			d.warn(Warning{
				Message:     fmt.Sprintf("segment %s of %s could not be resolved", seg, id),
				Suggestions: d.suggest(seg, parent),
			})
			return nil, nil
		}
		parent = node
	}
	return parent, d.expand(parent)
}

// resolveSegment returns the first resolver match for seg, attached to the tree.
func (d *Driver) resolveSegment(seg uniqueid.Segment, parent *domain.Descriptor) (*domain.Descriptor, error) {
	for _, r := range d.resolvers {
		desc, ok, err := r.ResolveSegment(seg, parent)
		if err != nil {
			return nil, domain.NewConfigurationError("resolve", seg.String(), err)
		}
		if ok {
			return d.attach(parent, desc)
		}
	}
	return nil, nil
}

func (d *Driver) expand(n *domain.Descriptor) error {
	if !n.IsContainer() {
		return nil
	}
	return d.ResolveChildrenOf(n)
}

// ResolveChildrenOf resolves the contained leaves of desc, then its nested
// containers together with their own children.
func (d *Driver) ResolveChildrenOf(desc *domain.Descriptor) error {
	key := desc.UniqueID().Key()
	if d.expanded[key] {
		return nil
	}
	d.expanded[key] = true

	var errs []error
	parents := []*domain.Descriptor{desc}
	for _, r := range d.resolvers {
		lister, ok := r.(ChildLister)
		if !ok {
			continue
		}
		leaves, containers := lister.ChildElements(desc)
		for _, leaf := range leaves {
			if _, err := d.ResolveElement(leaf, parents); err != nil {
				errs = append(errs, err)
			}
		}
		for _, c := range containers {
			nested, err := d.ResolveElement(c, parents)
			if err != nil {
				errs = append(errs, err)
			}
			for _, n := range nested {
				if err := d.ResolveChildrenOf(n); err != nil {
					errs = append(errs, err)
				}
			}
		}
	}
	return errors.Join(errs...)
}

// attach adds desc below parent unless a node with the same unique id exists.
func (d *Driver) attach(parent, desc *domain.Descriptor) (*domain.Descriptor, error) {
	key := desc.UniqueID().Key()
	if existing, ok := d.index[key]; ok {
		return existing, nil
	}
	if err := parent.AddChild(desc); err != nil {
		return nil, domain.NewConfigurationError("attach", desc.UniqueID().String(), err)
	}
	d.index[key] = desc
	return desc, nil
}

func (d *Driver) warn(w Warning) {
	w.Selector = d.current
	d.report.Warnings = append(d.report.Warnings, w)
	d.logger.Warn("unresolved selector", "selector", w.Selector, "message", w.Message, "suggestions", w.Suggestions)
	if d.onWarning != nil {
		d.onWarning(w)
	}
}

func (d *Driver) fail(err error) {
	d.report.Errors = append(d.report.Errors, err)
	d.logger.Warn("selector resolution failed", "selector", d.current, "error", err)
}
