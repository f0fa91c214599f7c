package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/extension"
	"github.com/tuchang/junit5/pkg/ports"
	"github.com/tuchang/junit5/pkg/store"
	"github.com/tuchang/junit5/pkg/uniqueid"
)

// instanceProvider creates the instance a test runs against, building enclosing
// container instances first.
type instanceProvider func() (any, error)

// ExecutionContext is the immutable state handed from a node to its children.
// Extend produces a modified copy; a context is never changed once built.
type ExecutionContext struct {
	listener  ports.ExecutionListener
	config    domain.ConfigurationParameters
	registry  *extension.Registry
	store     *store.Store
	node      *nodeContext
	instances instanceProvider
}

func (c *ExecutionContext) Listener() ports.ExecutionListener      { return c.listener }
func (c *ExecutionContext) Config() domain.ConfigurationParameters { return c.config }
func (c *ExecutionContext) Registry() *extension.Registry          { return c.registry }
func (c *ExecutionContext) Store() *store.Store                    { return c.store }

// ExtensionContext returns the extension view of the node owning this context, if any.
func (c *ExecutionContext) ExtensionContext() (extension.Context, bool) {
	if c.node == nil {
		return nil, false
	}
	return c.node, true
}

// Extend starts a copy of c with overrides.
func (c *ExecutionContext) Extend() *ContextBuilder {
	return &ContextBuilder{next: *c}
}

// ContextBuilder accumulates the overrides of an extended context.
type ContextBuilder struct {
	next ExecutionContext
}

func (b *ContextBuilder) WithRegistry(r *extension.Registry) *ContextBuilder {
	b.next.registry = r
	return b
}

func (b *ContextBuilder) WithStore(s *store.Store) *ContextBuilder {
	b.next.store = s
	return b
}

func (b *ContextBuilder) withNode(n *nodeContext) *ContextBuilder {
	b.next.node = n
	return b
}

func (b *ContextBuilder) withInstances(p instanceProvider) *ContextBuilder {
	b.next.instances = p
	return b
}

func (b *ContextBuilder) Build() *ExecutionContext {
	next := b.next
	return &next
}

// nodeContext implements extension.Context for one executing descriptor.
type nodeContext struct {
	ctx      context.Context
	desc     *domain.Descriptor
	parent   *nodeContext
	store    *store.Store
	config   domain.ConfigurationParameters
	listener ports.ExecutionListener
	clock    func() time.Time

	mu          sync.Mutex
	instance    any
	hasInstance bool
	err         error
}

var _ extension.Context = (*nodeContext)(nil)

func (n *nodeContext) Context() context.Context       { return n.ctx }
func (n *nodeContext) UniqueID() uniqueid.UniqueID    { return n.desc.UniqueID() }
func (n *nodeContext) DisplayName() string            { return n.desc.DisplayName() }
func (n *nodeContext) Descriptor() *domain.Descriptor { return n.desc }
func (n *nodeContext) Tags() []domain.Tag             { return n.desc.AllTags() }

func (n *nodeContext) Parent() (extension.Context, bool) {
	if n.parent == nil {
		return nil, false
	}
	return n.parent, true
}

func (n *nodeContext) Root() extension.Context {
	root := n
	for root.parent != nil {
		root = root.parent
	}
	return root
}

func (n *nodeContext) Store(ns store.Namespace) *store.NamespacedStore {
	return n.store.Namespace(ns)
}

func (n *nodeContext) ConfigurationParameter(key string) (string, bool) {
	if n.config == nil {
		return "", false
	}
	return n.config.Get(key)
}

func (n *nodeContext) ConfigurationParameters() domain.ConfigurationParameters {
	if n.config == nil {
		return domain.MapParameters{}
	}
	return n.config
}

func (n *nodeContext) PublishReportEntry(kv ...string) error {
	entry, err := domain.NewReportEntry(n.clock(), kv...)
	if err != nil {
		return err
	}
	n.listener.ReportingEntryPublished(n.desc, entry)
	return nil
}

// TestInstance returns the instance of this node or of the closest ancestor that has one.
func (n *nodeContext) TestInstance() (any, bool) {
	for c := n; c != nil; c = c.parent {
		c.mu.Lock()
		inst, ok := c.instance, c.hasInstance
		c.mu.Unlock()
		if ok {
			return inst, true
		}
	}
	return nil, false
}

func (n *nodeContext) setInstance(inst any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.instance, n.hasInstance = inst, true
}

func (n *nodeContext) ExecutionError() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.err
}

func (n *nodeContext) setExecutionError(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err == nil {
		n.err = err
	}
}
