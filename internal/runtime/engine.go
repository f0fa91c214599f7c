package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/extension"
	"github.com/tuchang/junit5/pkg/ports"
	"github.com/tuchang/junit5/pkg/store"
)

// Engine walks a test plan and drives the per-node state machine:
//
//	Pending -> Skipped | Started -> (Successful | Aborted | Failed) -> Finished
type Engine struct {
	logger      *slog.Logger
	parallelism int
	clock       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithParallelism lets up to n siblings of a container execute concurrently.
// Ordering then only holds along a chain of ancestors, not between siblings.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		e.parallelism = n
	}
}

// WithClock sets the time source used for report entries.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// NewEngine creates an engine executing siblings one at a time.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger:      slog.New(slog.NewJSONHandler(io.Discard, nil)),
		parallelism: 1,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Request describes one execution.
type Request struct {
	Root     *domain.Descriptor
	Listener ports.ExecutionListener
	Config   domain.ConfigurationParameters
	Registry *extension.Registry // Extensions visible to every node
}

// Execute runs the plan below req.Root. Node failures are reported to the listener
// and never returned; the only errors returned are fatal conditions that stopped the run.
func (e *Engine) Execute(ctx context.Context, req Request) error {
	if req.Root == nil {
		return errors.New("execute: request has no root descriptor")
	}
	listener := req.Listener
	if listener == nil {
		listener = ports.NopListener{}
	}
	registry := req.Registry
	if registry == nil {
		registry = extension.NewRegistry()
	}
	config := req.Config
	if config == nil {
		config = domain.MapParameters{}
	}

	root := &ExecutionContext{
		listener: &syncListener{delegate: listener},
		config:   config,
		registry: registry,
		store:    store.New(nil),
	}

	e.logger.InfoContext(ctx, "execution started", "root", req.Root.UniqueID().String(), "parallelism", e.parallelism)
	err := e.execute(ctx, root, req.Root)
	if err != nil {
		e.logger.ErrorContext(ctx, "execution terminated", "error", err)
		return err
	}
	e.logger.InfoContext(ctx, "execution finished", "root", req.Root.UniqueID().String())
	return nil
}

// execute runs one node and its subtree. It returns only fatal errors.
func (e *Engine) execute(ctx context.Context, parent *ExecutionContext, d *domain.Descriptor) error {
	listener := parent.listener
	if err := ctx.Err(); err != nil {
		e.skip(listener, d, "execution cancelled: "+err.Error())
		return nil
	}

	node := &nodeContext{
		ctx:      ctx,
		desc:     d,
		parent:   parent.node,
		store:    store.New(parent.store),
		config:   parent.config,
		listener: listener,
		clock:    e.clock,
	}
	registry := parent.registry.Child()
	ec := parent.Extend().WithRegistry(registry).WithStore(node.store).withNode(node).Build()

	var o outcome
	if p, ok := d.Payload().(ports.ExtensionProvider); ok {
		o.record(registry.Register(p.Extensions()...))
	}

	if !o.failed() && !d.IsRoot() && !isDynamic(d) {
		result, err := e.evaluateConditions(registry, node)
		if domain.IsFatal(err) {
			return err
		}
		if err == nil && result.Disabled {
			e.logger.DebugContext(ctx, "node skipped", "unique_id", d.UniqueID().String(), "reason", result.Reason)
			e.skip(listener, d, result.Reason)
			return nil
		}
		o.record(err)
	}

	listener.ExecutionStarted(d)
	e.logger.DebugContext(ctx, "node started", "unique_id", d.UniqueID().String())
	start := time.Now()

	if !o.failed() {
		var fatal error
		switch p := d.Payload().(type) {
		case *dynamicTest:
			fatal = e.executeDynamicTest(ec, p, &o)
		case *dynamicContainer:
			fatal = e.registerDynamic(ctx, ec, d, p.children, &o)
		default:
			switch {
			case d.IsRoot():
				fatal = e.executeChildren(ctx, ec, d.Children())
			case d.IsTest():
				fatal = e.executeTest(ctx, ec, d, &o)
			default:
				fatal = e.executeContainer(ctx, ec, d, &o)
			}
		}
		if fatal != nil {
			return fatal
		}
	}

	result := o.result(ctx)
	e.logger.DebugContext(ctx, "node finished",
		"unique_id", d.UniqueID().String(),
		"status", result.Status.String(),
		"duration", time.Since(start))
	listener.ExecutionFinished(d, result)
	return nil
}

func (e *Engine) evaluateConditions(registry *extension.Registry, node *nodeContext) (result extension.ConditionResult, err error) {
	err = guard("execution condition", func() error {
		result, err = extension.EvaluateConditions(registry, node)
		return err
	})
	return result, err
}

// skip reports d and every descendant as skipped without evaluating anything.
func (e *Engine) skip(listener ports.ExecutionListener, d *domain.Descriptor, reason string) {
	_ = d.Walk(func(n *domain.Descriptor) error {
		listener.ExecutionSkipped(n, reason)
		return nil
	})
}

func (e *Engine) executeChildren(ctx context.Context, ec *ExecutionContext, children []*domain.Descriptor) error {
	if e.parallelism <= 1 || len(children) < 2 {
		for _, c := range children {
			if err := e.execute(ctx, ec, c); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for _, c := range children {
		g.Go(func() error {
			return e.execute(gctx, ec, c)
		})
	}
	return g.Wait()
}

func (e *Engine) executeContainer(ctx context.Context, ec *ExecutionContext, d *domain.Descriptor, o *outcome) error {
	node := ec.node
	instances := ec.instances
	if factory, ok := d.Payload().(ports.InstanceFactory); ok {
		instances = containerInstances(factory, ec.instances, ec.registry, node)
	}
	childCtx := ec.Extend().withInstances(instances).Build()

	err := runBefore(ec, "before all", func(h extension.BeforeAllCallback) error {
		return h.BeforeAll(node)
	})
	if domain.IsFatal(err) {
		return err
	}
	o.record(err)
	node.setExecutionError(err)

	if err == nil {
		if fatal := e.executeChildren(ctx, childCtx, d.Children()); fatal != nil {
			return fatal
		}
	}

	errs, fatal := runAfter(ec, "after all", func(h extension.AfterAllCallback) error {
		return h.AfterAll(node)
	})
	o.record(errs...)
	return fatal
}

// containerInstances extends the instance chain with the instance of one container,
// post-processed by the extensions registered at that container's scope.
func containerInstances(factory ports.InstanceFactory, outer instanceProvider, registry *extension.Registry, node *nodeContext) instanceProvider {
	return func() (any, error) {
		var enclosing any
		if outer != nil {
			var err error
			if enclosing, err = outer(); err != nil {
				return nil, err
			}
		}
		instance, err := factory.NewInstance(node, enclosing)
		if err != nil {
			return nil, err
		}
		if err := extension.PostProcessInstance(registry, instance, node); err != nil {
			return nil, err
		}
		return instance, nil
	}
}

func (e *Engine) executeTest(ctx context.Context, ec *ExecutionContext, d *domain.Descriptor, o *outcome) error {
	node := ec.node

	steps := []func() error{
		func() error {
			if ec.instances == nil {
				return nil
			}
			return guard("test instance", func() error {
				instance, err := ec.instances()
				if err != nil {
					return err
				}
				node.setInstance(instance)
				return nil
			})
		},
		func() error {
			return runBefore(ec, "before each", func(h extension.BeforeEachCallback) error {
				return h.BeforeEach(node)
			})
		},
		func() error {
			return runBefore(ec, "before test execution", func(h extension.BeforeTestExecutionCallback) error {
				return h.BeforeTestExecution(node)
			})
		},
	}

	var beforeErr error
	for _, step := range steps {
		if ctx.Err() != nil {
			break
		}
		if beforeErr = step(); beforeErr != nil {
			break
		}
	}
	if domain.IsFatal(beforeErr) {
		return beforeErr
	}
	o.record(beforeErr)
	node.setExecutionError(beforeErr)

	if beforeErr == nil && ctx.Err() == nil {
		if fatal := e.invokeUnit(ctx, ec, d, o); fatal != nil {
			return fatal
		}
	}

	errs, fatal := runAfter(ec, "after test execution", func(h extension.AfterTestExecutionCallback) error {
		return h.AfterTestExecution(node)
	})
	o.record(errs...)
	if fatal != nil {
		return fatal
	}
	errs, fatal = runAfter(ec, "after each", func(h extension.AfterEachCallback) error {
		return h.AfterEach(node)
	})
	o.record(errs...)
	return fatal
}

// invokeUnit runs the unit of work of d inside the exception handler chain.
func (e *Engine) invokeUnit(ctx context.Context, ec *ExecutionContext, d *domain.Descriptor, o *outcome) error {
	node := ec.node
	instance, _ := node.TestInstance()

	var generated []ports.DynamicNode
	var run func() error
	switch p := d.Payload().(type) {
	case ports.DynamicTestFactory:
		run = func() error {
			args, err := resolveArguments(ec, d, p.Parameters())
			if err != nil {
				return err
			}
			generated, err = p.Generate(node, instance, args)
			return err
		}
	case ports.Executable:
		run = func() error {
			args, err := resolveArguments(ec, d, p.Parameters())
			if err != nil {
				return err
			}
			return p.Execute(node, instance, args)
		}
	default:
		return nil
	}

	err := handleUnitFailure(ec, unguarded("test", run)())
	if domain.IsFatal(err) {
		return err
	}
	o.record(err)
	node.setExecutionError(err)

	if err == nil && len(generated) > 0 {
		return e.registerDynamic(ctx, ec, d, generated, o)
	}
	return nil
}

func handleUnitFailure(ec *ExecutionContext, err error) error {
	if err == nil || domain.IsFatal(err) {
		return err
	}
	handled := err
	if herr := guard("exception handler", func() error {
		handled = extension.HandleException(ec.registry, ec.node, err)
		return nil
	}); herr != nil {
		return herr
	}
	return handled
}

func resolveArguments(ec *ExecutionContext, d *domain.Descriptor, params []extension.ParameterContext) ([]any, error) {
	args := make([]any, len(params))
	for i, p := range params {
		p.Declaring = d
		v, err := extension.ResolveParameter(ec.registry, p, ec.node)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// runBefore invokes before-hooks in before-order and stops at the first failure.
func runBefore[T any](ec *ExecutionContext, phase string, call func(T) error) error {
	for _, h := range extension.Before[T](ec.registry) {
		if err := guard(phase, func() error { return call(h) }); err != nil {
			return err
		}
	}
	return nil
}

// runAfter invokes every after-hook in after-order. It stops early only for a
// fatal condition, which is returned separately.
func runAfter[T any](ec *ExecutionContext, phase string, call func(T) error) ([]error, error) {
	var errs []error
	for _, h := range extension.After[T](ec.registry) {
		err := guard(phase, func() error { return call(h) })
		if domain.IsFatal(err) {
			return errs, err
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs, nil
}

// guard runs fn, wrapping its failure or panic into a BehaviorFailure for phase.
// Fatal errors and the failure kinds that decide the node status pass through unchanged.
func guard(phase string, fn func() error) error {
	err := unguarded(phase, fn)()
	if err == nil || domain.IsFatal(err) {
		return err
	}
	var bf *domain.BehaviorFailure
	if errors.As(err, &bf) {
		return err
	}
	if errors.Is(err, domain.ErrAssumption) || errors.Is(err, domain.ErrConfiguration) {
		return err
	}
	return &domain.BehaviorFailure{Phase: phase, Err: err}
}

// unguarded converts a panic in fn into an error.
func unguarded(phase string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			perr, ok := r.(error)
			if !ok {
				perr = fmt.Errorf("%v", r)
			}
			if domain.IsFatal(perr) {
				err = perr
				return
			}
			err = &domain.BehaviorFailure{Phase: phase, Err: perr, Panic: true}
		}()
		return fn()
	}
}

// outcome accumulates the failures of one node.
type outcome struct {
	cause      error
	suppressed []error
}

func (o *outcome) record(errs ...error) {
	for _, err := range errs {
		if err == nil {
			continue
		}
		if o.cause == nil {
			o.cause = err
			continue
		}
		o.suppressed = append(o.suppressed, err)
	}
}

func (o *outcome) failed() bool {
	return o.cause != nil
}

func (o *outcome) result(ctx context.Context) domain.Result {
	switch {
	case o.cause == nil && ctx.Err() != nil:
		return domain.Aborted(fmt.Errorf("execution cancelled: %w", ctx.Err()))
	case o.cause == nil:
		return domain.Successful()
	case domain.IsAssumption(o.cause):
		return domain.Result{Status: domain.StatusAborted, Cause: o.cause, Suppressed: o.suppressed}
	default:
		return domain.Result{Status: domain.StatusFailed, Cause: o.cause, Suppressed: o.suppressed}
	}
}
