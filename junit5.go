package junit5

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tuchang/junit5/internal/runtime"
	"github.com/tuchang/junit5/pkg/conditions"
	"github.com/tuchang/junit5/pkg/discovery"
	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/extension"
	"github.com/tuchang/junit5/pkg/observability"
	"github.com/tuchang/junit5/pkg/ports"
	"github.com/tuchang/junit5/pkg/uniqueid"
)

// Configuration parameters read by the launcher.
const (
	// EnabledIfParameter holds a script that every test must satisfy to run.
	EnabledIfParameter = "junit5.conditions.enabled-if"
	// EnabledIfLanguageParameter selects the language of EnabledIfParameter (expr, cel or js).
	EnabledIfLanguageParameter = "junit5.conditions.enabled-if.language"
)

// ErrPlanExecuted is returned when a plan is executed a second time.
var ErrPlanExecuted = errors.New("plan has already been executed")

// TestEngine bundles what discovery and execution need from one engine.
type TestEngine struct {
	ID   string
	Name string
	// Resolvers turn selected elements and unique id segments into descriptors.
	Resolvers []discovery.ElementResolver
	// Selectors maps selector kinds to the element paths they denote.
	Selectors discovery.SelectorTable
	// Extensions are registered for every node of the engine.
	Extensions []extension.Extension
	// Watch, if set, signals changes to the engine's sources.
	Watch func(ctx context.Context) (<-chan string, error)
}

// Launcher is the high-level entry point: it discovers plans and executes them.
type Launcher struct {
	engines     []TestEngine
	logger      *slog.Logger
	parallelism int
	timeout     time.Duration
	params      domain.MapParameters
	listeners   []ports.ExecutionListener
	results     ports.ResultStore
	metrics     *observability.Metrics
	evaluators  conditions.Evaluators
	extensions  []extension.Extension
	locker      ports.Locker
	lockKey     string
	clock       func() time.Time

	includeEngines, excludeEngines []string
	includeTags, excludeTags       []string
	excludeNames                   []string
}

// Option defines a functional option for configuring the Launcher.
type Option func(*Launcher)

// WithEngines registers test engines.
func WithEngines(engines ...TestEngine) Option {
	return func(l *Launcher) {
		l.engines = append(l.engines, engines...)
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Launcher) {
		l.logger = logger
	}
}

// WithParallelism lets up to n sibling nodes execute concurrently.
func WithParallelism(n int) Option {
	return func(l *Launcher) {
		l.parallelism = n
	}
}

// WithTimeout bounds every execution. Nodes still running are aborted.
func WithTimeout(d time.Duration) Option {
	return func(l *Launcher) {
		l.timeout = d
	}
}

// WithConfigurationParameters adds configuration parameters.
func WithConfigurationParameters(params map[string]string) Option {
	return func(l *Launcher) {
		maps.Copy(l.params, params)
	}
}

// WithListeners adds listeners notified during every execution.
func WithListeners(listeners ...ports.ExecutionListener) Option {
	return func(l *Launcher) {
		l.listeners = append(l.listeners, listeners...)
	}
}

// WithResultStore persists the results of every execution.
func WithResultStore(store ports.ResultStore) Option {
	return func(l *Launcher) {
		l.results = store
	}
}

// WithMetrics updates m during every execution.
func WithMetrics(m *observability.Metrics) Option {
	return func(l *Launcher) {
		l.metrics = m
	}
}

// WithEvaluators replaces the script evaluators used by EnabledIfParameter.
func WithEvaluators(evaluators conditions.Evaluators) Option {
	return func(l *Launcher) {
		l.evaluators = evaluators
	}
}

// WithExtensions registers extensions for every node of every engine.
func WithExtensions(exts ...extension.Extension) Option {
	return func(l *Launcher) {
		l.extensions = append(l.extensions, exts...)
	}
}

// WithLocker serializes executions holding the lock named key.
func WithLocker(locker ports.Locker, key string) Option {
	return func(l *Launcher) {
		l.locker = locker
		l.lockKey = key
	}
}

// WithClock sets the time source of report entries and summaries.
func WithClock(clock func() time.Time) Option {
	return func(l *Launcher) {
		l.clock = clock
	}
}

// WithEngineFilter restricts discovery to the included engine IDs (all when
// empty) minus the excluded ones.
func WithEngineFilter(include, exclude []string) Option {
	return func(l *Launcher) {
		l.includeEngines = append(l.includeEngines, include...)
		l.excludeEngines = append(l.excludeEngines, exclude...)
	}
}

// WithTagFilter keeps tests tagged with any included tag (all when empty)
// and drops tests tagged with any excluded tag.
func WithTagFilter(include, exclude []string) Option {
	return func(l *Launcher) {
		l.includeTags = append(l.includeTags, include...)
		l.excludeTags = append(l.excludeTags, exclude...)
	}
}

// WithDisplayNameExclusions drops tests whose display name matches any pattern.
func WithDisplayNameExclusions(patterns ...string) Option {
	return func(l *Launcher) {
		l.excludeNames = append(l.excludeNames, patterns...)
	}
}

// New initializes a Launcher. Engine IDs must be unique.
func New(opts ...Option) (*Launcher, error) {
	l := &Launcher{
		params:      domain.MapParameters{},
		parallelism: 1,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if l.evaluators == nil {
		l.evaluators = conditions.DefaultEvaluators()
	}

	seen := make(map[string]bool)
	for _, e := range l.engines {
		if _, err := uniqueid.ForEngine(e.ID); err != nil {
			return nil, domain.NewConfigurationError("new launcher", e.ID, err)
		}
		if seen[e.ID] {
			return nil, domain.NewConfigurationError("new launcher", e.ID, fmt.Errorf("duplicate engine id"))
		}
		seen[e.ID] = true
	}
	return l, nil
}

// Engines returns the registered engines.
func (l *Launcher) Engines() []TestEngine {
	return slices.Clone(l.engines)
}

func (l *Launcher) engineSelected(id string) bool {
	if len(l.includeEngines) > 0 && !slices.Contains(l.includeEngines, id) {
		return false
	}
	return !slices.Contains(l.excludeEngines, id)
}

func (l *Launcher) filters() ([]discovery.Filter, error) {
	var filters []discovery.Filter
	if len(l.includeTags) > 0 {
		tags, err := domain.ParseTags(l.includeTags...)
		if err != nil {
			return nil, err
		}
		filters = append(filters, discovery.IncludeTags(tags...))
	}
	if len(l.excludeTags) > 0 {
		tags, err := domain.ParseTags(l.excludeTags...)
		if err != nil {
			return nil, err
		}
		filters = append(filters, discovery.ExcludeTags(tags...))
	}
	if len(l.excludeNames) > 0 {
		f, err := discovery.ExcludeDisplayNames(l.excludeNames...)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, nil
}

// Discover resolves req for every selected engine. Problems of one engine are
// recorded in the plan and never stop the others; the returned error reports
// invalid launcher configuration or cancellation.
func (l *Launcher) Discover(ctx context.Context, req DiscoveryRequest) (*Plan, error) {
	filters, err := l.filters()
	if err != nil {
		return nil, err
	}
	filters = append(filters, req.Filters...)

	plan := &Plan{
		engines: make(map[string]TestEngine),
		params:  maps.Clone(l.params),
	}
	maps.Copy(plan.params, req.Parameters)

	for _, engine := range l.engines {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !l.engineSelected(engine.ID) {
			l.logger.DebugContext(ctx, "engine excluded", "engine", engine.ID)
			continue
		}

		id, _ := uniqueid.ForEngine(engine.ID)
		name := engine.Name
		if name == "" {
			name = engine.ID
		}
		root, err := domain.NewEngineDescriptor(id, name)
		if err != nil {
			return nil, err
		}

		selectors := req.Selectors
		if len(selectors) == 0 {
			selectors = []domain.Selector{domain.UniqueIDSelector{ID: id}}
		}

		table := discovery.SelectorTable{}
		if engine.Selectors != nil {
			table = engine.Selectors
		}
		driver := discovery.NewDriver(root, engine.Resolvers,
			discovery.WithLogger(l.logger.With("engine", engine.ID)),
			discovery.WithSelectorTable(table),
		)
		report := driver.Resolve(ctx, selectors...)
		plan.Warnings = append(plan.Warnings, report.Warnings...)
		if err := report.Err(); err != nil {
			plan.Errors = append(plan.Errors, fmt.Errorf("engine %s: %w", engine.ID, err))
		}

		plan.Filtered = append(plan.Filtered, discovery.ApplyFilters(root, filters...)...)
		plan.Roots = append(plan.Roots, root)
		plan.engines[engine.ID] = engine

		l.logger.InfoContext(ctx, "engine discovered",
			"engine", engine.ID,
			"tests", countTests(root),
			"warnings", len(report.Warnings))
	}
	return plan, nil
}

func countTests(root *domain.Descriptor) int {
	n := 0
	_ = root.Walk(func(d *domain.Descriptor) error {
		if d.IsTest() {
			n++
		}
		return nil
	})
	return n
}

// Run is one execution of a plan.
type Run struct {
	ID       string
	Plan     *Plan
	Summary  observability.Summary
	Recorded bool // results were saved to the result store
}

// Execute runs plan, notifying the launcher's listeners and the given ones.
// Test failures are reported through listeners and the summary; the returned
// error reports a fatal condition that stopped the run, a timeout of the
// launcher lock, or a plan that was already executed.
func (l *Launcher) Execute(ctx context.Context, plan *Plan, listeners ...ports.ExecutionListener) (*Run, error) {
	if !plan.executed.CompareAndSwap(false, true) {
		return nil, ErrPlanExecuted
	}

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	if l.locker != nil {
		unlock, err := l.locker.Lock(ctx, l.lockKey, l.lockTTL())
		if err != nil {
			return nil, fmt.Errorf("acquire execution lock %q: %w", l.lockKey, err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				l.logger.Warn("failed to release execution lock", "key", l.lockKey, "error", err)
			}
		}()
	}

	run := &Run{ID: uuid.NewString(), Plan: plan}
	logger := l.logger.With("run_id", run.ID)

	summary := observability.NewSummaryListener(l.clock, plan.Roots...)
	all := []ports.ExecutionListener{summary, observability.NewLoggingListener(logger)}
	if l.metrics != nil {
		all = append(all, l.metrics.Listener())
	}
	var recorder *observability.ResultRecorder
	if l.results != nil {
		recorder = observability.NewResultRecorder(ctx, l.results, run.ID,
			observability.WithRecorderLogger(logger),
			observability.WithRecorderClock(l.clock))
		all = append(all, recorder)
	}
	all = append(all, l.listeners...)
	all = append(all, listeners...)
	listener := observability.NewComposite(all...)

	registry, err := l.rootRegistry(plan.params)
	if err != nil {
		return nil, err
	}

	engine := runtime.NewEngine(
		runtime.WithLogger(logger),
		runtime.WithParallelism(l.parallelism),
		runtime.WithClock(l.clock),
	)

	logger.InfoContext(ctx, "run started", "tests", plan.CountTests())
	var fatal error
	for _, root := range plan.Roots {
		engineID, _ := root.UniqueID().EngineID()
		engineRegistry := registry.Child()
		if err := engineRegistry.Register(plan.engines[engineID].Extensions...); err != nil {
			return nil, fmt.Errorf("engine %s: %w", engineID, err)
		}
		err := engine.Execute(ctx, runtime.Request{
			Root:     root,
			Listener: listener,
			Config:   plan.params,
			Registry: engineRegistry,
		})
		if err != nil {
			fatal = fmt.Errorf("engine %s: %w", engineID, err)
			break
		}
	}

	run.Summary = summary.Summary()
	run.Recorded = recorder != nil && recorder.Errors() == 0
	logger.InfoContext(ctx, "run finished",
		"tests_succeeded", run.Summary.TestsSucceeded,
		"tests_failed", run.Summary.TestsFailed,
		"tests_aborted", run.Summary.TestsAborted,
		"tests_skipped", run.Summary.TestsSkipped,
		"duration", run.Summary.Duration())
	return run, fatal
}

func (l *Launcher) lockTTL() time.Duration {
	if l.timeout > 0 {
		return l.timeout
	}
	return 10 * time.Minute
}

// rootRegistry holds the extensions every engine inherits.
func (l *Launcher) rootRegistry(params domain.MapParameters) (*extension.Registry, error) {
	registry := extension.NewRegistry()
	defaults := []extension.Extension{extension.BuiltinResolver{}, conditions.Disabled{}}
	if expr, ok := params.Get(EnabledIfParameter); ok && strings.TrimSpace(expr) != "" {
		language, _ := params.Get(EnabledIfLanguageParameter)
		ev, err := l.evaluators.Lookup(language)
		if err != nil {
			return nil, domain.NewConfigurationError("execute", EnabledIfLanguageParameter, err)
		}
		defaults = append(defaults, conditions.Script{Language: language, Expression: expr, Evaluator: ev})
	}
	if err := registry.Register(append(defaults, l.extensions...)...); err != nil {
		return nil, err
	}
	return registry, nil
}

// Watch merges the change notifications of every engine that supports watching.
func (l *Launcher) Watch(ctx context.Context) (<-chan string, error) {
	var sources []<-chan string
	for _, e := range l.engines {
		if e.Watch == nil || !l.engineSelected(e.ID) {
			continue
		}
		ch, err := e.Watch(ctx)
		if err != nil {
			return nil, fmt.Errorf("watch engine %s: %w", e.ID, err)
		}
		sources = append(sources, ch)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no engine supports watching")
	}

	out := make(chan string)
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-src:
					if !ok {
						return
					}
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}
