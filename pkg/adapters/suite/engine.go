package suite

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tuchang/junit5"
	"github.com/tuchang/junit5/pkg/adapters/process"
	"github.com/tuchang/junit5/pkg/conditions"
	"github.com/tuchang/junit5/pkg/discovery"
	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/extension"
	"github.com/tuchang/junit5/pkg/uniqueid"
)

// DefaultEngineID is the engine id used by the command line.
const DefaultEngineID = "suites"

// Engine discovers suite files below a set of paths and runs their tests.
type Engine struct {
	id         string
	name       string
	paths      []string
	runner     *process.Runner
	evaluators conditions.Evaluators
	factories  map[string]Factory
	logger     *slog.Logger

	mu    sync.Mutex
	cache map[string]*loaded
}

// Option configures the engine.
type Option func(*Engine)

// WithName sets the display name of the engine.
func WithName(name string) Option {
	return func(e *Engine) {
		e.name = name
	}
}

// WithRunner sets the process runner executing test commands.
// The default runner executes any command.
func WithRunner(r *process.Runner) Option {
	return func(e *Engine) {
		e.runner = r
	}
}

// WithEvaluators sets the script languages available to enabled_if.
func WithEvaluators(evaluators conditions.Evaluators) Option {
	return func(e *Engine) {
		e.evaluators = evaluators
	}
}

// WithExtension registers an extension type for extensions entries.
func WithExtension(name string, factory Factory) Option {
	return func(e *Engine) {
		e.factories[name] = factory
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an engine reading the suite files at paths. A path is either a
// suite file or a directory searched recursively.
func New(id string, paths []string, opts ...Option) (*Engine, error) {
	if _, err := uniqueid.ForEngine(id); err != nil {
		return nil, domain.NewConfigurationError("suite engine", id, err)
	}

	e := &Engine{
		id:         id,
		name:       "Suites",
		evaluators: conditions.DefaultEvaluators(),
		factories:  builtinFactories(),
		logger:     slog.New(slog.NewJSONHandler(io.Discard, nil)),
		cache:      make(map[string]*loaded),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.runner == nil {
		e.runner = process.NewRunner(process.WithInlineExecution(true), process.WithLogger(e.logger))
	}

	var errs []error
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := os.Stat(abs); err != nil {
			errs = append(errs, err)
			continue
		}
		e.paths = append(e.paths, abs)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, domain.NewConfigurationError("suite engine", id, err)
	}
	return e, nil
}

// NewEngine is New followed by TestEngine.
func NewEngine(id string, paths []string, opts ...Option) (junit5.TestEngine, error) {
	e, err := New(id, paths, opts...)
	if err != nil {
		return junit5.TestEngine{}, err
	}
	return e.TestEngine(), nil
}

// TestEngine returns the launcher view of e.
func (e *Engine) TestEngine() junit5.TestEngine {
	root, _ := uniqueid.ForEngine(e.id)
	r := &resolver{engine: e, root: root}
	return junit5.TestEngine{
		ID:         e.id,
		Name:       e.name,
		Resolvers:  []discovery.ElementResolver{r},
		Selectors:  r.selectors(),
		Extensions: []extension.Extension{extension.BuiltinResolver{}, conditions.Disabled{}},
		Watch:      e.Watch,
	}
}

// loaded is a parsed suite together with the extensions of its nodes.
type loaded struct {
	suite   *Suite
	modTime time.Time
	size    int64

	tags       map[any][]domain.Tag
	extensions map[any][]extension.Extension
}

// load parses path, reusing the previous result while the file is unchanged.
func (e *Engine) load(path string) (*loaded, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if l, ok := e.cache[path]; ok && l.modTime.Equal(info.ModTime()) && l.size == info.Size() {
		return l, nil
	}

	s, err := Parse(path)
	if err != nil {
		return nil, err
	}
	l := &loaded{
		suite:      s,
		modTime:    info.ModTime(),
		size:       info.Size(),
		tags:       make(map[any][]domain.Tag),
		extensions: make(map[any][]extension.Extension),
	}
	if err := e.compileContainer(l, s.Root); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	e.cache[path] = l
	e.logger.Debug("suite loaded", "path", path, "suite", s.Root.Name)
	return l, nil
}

func (e *Engine) compileContainer(l *loaded, c *Container) error {
	var errs []error
	l.tags[c], _ = domain.ParseTags(c.Tags...)

	exts, err := e.nodeExtensions(c.EnabledIf, c.Extensions)
	if err != nil {
		errs = append(errs, fmt.Errorf("container %s: %w", c.QualifiedName(), err))
	}
	if len(c.Env) > 0 {
		exts = append(exts, Env{Vars: c.Env})
	}
	exts = append(exts, e.lifecycle(l.suite, c)...)
	l.extensions[c] = exts

	for _, t := range c.Tests {
		l.tags[t], _ = domain.ParseTags(t.Tags...)
		exts, err := e.nodeExtensions(t.EnabledIf, t.Extensions)
		if err != nil {
			errs = append(errs, fmt.Errorf("test %s: %w", t, err))
		}
		l.extensions[t] = exts
	}
	for _, n := range c.Containers {
		if err := e.compileContainer(l, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) nodeExtensions(cond *Condition, specs []ExtensionSpec) ([]extension.Extension, error) {
	var (
		exts []extension.Extension
		errs []error
	)
	if cond != nil {
		ev, err := e.evaluators.Lookup(cond.Language)
		if err != nil {
			errs = append(errs, err)
		} else {
			exts = append(exts, conditions.Script{
				Language:   cond.Language,
				Expression: cond.Expression,
				Reason:     cond.Reason,
				Evaluator:  ev,
			})
		}
	}
	for _, spec := range specs {
		factory, ok := e.factories[spec.Type]
		if !ok {
			errs = append(errs, fmt.Errorf("unknown extension type %q", spec.Type))
			continue
		}
		ext, err := factory(spec.Config)
		if err != nil {
			errs = append(errs, fmt.Errorf("extension %s: %w", spec.Type, err))
			continue
		}
		exts = append(exts, ext)
	}
	return exts, errors.Join(errs...)
}

// files lists the suite files below the engine paths in lexical order.
func (e *Engine) files() []string {
	seen := make(map[string]bool)
	var files []string
	for _, p := range e.paths {
		for _, f := range e.walk(p) {
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}
	slices.Sort(files)
	return files
}

// walk returns path itself when it is a suite file, or the suite files below
// it when it is a directory. Hidden directories are skipped.
func (e *Engine) walk(path string) []string {
	info, err := os.Stat(path)
	if err != nil {
		e.logger.Warn("suite path unavailable", "path", path, "err", err)
		return nil
	}
	if !info.IsDir() {
		if IsSuiteFile(path) {
			return []string{path}
		}
		return nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			e.logger.Warn("suite directory unreadable", "path", p, "err", err)
			return nil
		}
		if d.IsDir() {
			if p != path && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsSuiteFile(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		e.logger.Warn("suite directory walk failed", "path", path, "err", err)
	}
	return files
}
