package junit5_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuchang/junit5"
	"github.com/tuchang/junit5/pkg/adapters/memory"
	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/dsl"
	"github.com/tuchang/junit5/pkg/extension"
	"github.com/tuchang/junit5/pkg/observability"
	"github.com/tuchang/junit5/pkg/ports"
	"github.com/tuchang/junit5/pkg/testkit"
	"github.com/tuchang/junit5/pkg/uniqueid"
)

type calculator struct{}

func (calculator) Add(a, b int) int { return a + b }

func calculatorEngine(t *testing.T) junit5.TestEngine {
	t.Helper()
	calc := dsl.Container("Calculator").
		Instance(func(any) (any, error) { return &calculator{}, nil })
	calc.Test("adds", func(c *calculator) error {
		if c.Add(1, 2) != 3 {
			return domain.Fail("expected 3")
		}
		return nil
	}).Tags("fast")
	calc.Test("divides", func() error {
		return domain.Fail("expected <2> but was <3>")
	})
	calc.Test("slow", func() {}).Tags("slow")

	engine, err := dsl.NewEngine("dsl", calc)
	require.NoError(t, err)
	return engine
}

func discover(t *testing.T, l *junit5.Launcher, req junit5.DiscoveryRequest) *junit5.Plan {
	t.Helper()
	plan, err := l.Discover(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, plan.Err())
	return plan
}

func TestLauncher_DiscoverAndExecute(t *testing.T) {
	l, err := junit5.New(junit5.WithEngines(calculatorEngine(t)))
	require.NoError(t, err)

	plan := discover(t, l, junit5.DiscoveryRequest{})
	assert.Equal(t, 3, plan.CountTests())
	assert.Equal(t, 2, plan.CountContainers())
	assert.True(t, plan.HasTests())

	rec := testkit.NewEventRecorder()
	run, err := l.Execute(context.Background(), plan, rec)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)

	assert.Equal(t, testkit.Stats{Started: 3, Succeeded: 2, Failed: 1, Finished: 3}, rec.Tests().Stats())
	assert.Equal(t, 3, run.Summary.TestsFound)
	assert.Equal(t, 2, run.Summary.TestsSucceeded)
	assert.Equal(t, 1, run.Summary.TestsFailed)
	require.Len(t, run.Summary.Failures, 1)
	assert.Equal(t, "[engine:dsl]/[container:Calculator]/[test:divides]", run.Summary.Failures[0].UniqueID)
}

func TestLauncher_PlanExecutesOnce(t *testing.T) {
	l, err := junit5.New(junit5.WithEngines(calculatorEngine(t)))
	require.NoError(t, err)
	plan := discover(t, l, junit5.DiscoveryRequest{})

	_, err = l.Execute(context.Background(), plan)
	require.NoError(t, err)
	_, err = l.Execute(context.Background(), plan)
	assert.ErrorIs(t, err, junit5.ErrPlanExecuted)
}

func TestLauncher_RejectsDuplicateEngines(t *testing.T) {
	engine := calculatorEngine(t)
	_, err := junit5.New(junit5.WithEngines(engine, engine))
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = junit5.New(junit5.WithEngines(junit5.TestEngine{ID: "bad]id"}))
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestLauncher_Selectors(t *testing.T) {
	l, err := junit5.New(junit5.WithEngines(calculatorEngine(t)))
	require.NoError(t, err)

	t.Run("by name", func(t *testing.T) {
		plan := discover(t, l, junit5.DiscoveryRequest{
			Selectors: []domain.Selector{domain.SelectName("Calculator.adds")},
		})
		assert.Equal(t, 1, plan.CountTests())
		_, ok := plan.Find(uniqueid.MustParse("[engine:dsl]/[container:Calculator]/[test:adds]"))
		assert.True(t, ok)
	})

	t.Run("by unique id", func(t *testing.T) {
		sel, err := domain.SelectUniqueID("[engine:dsl]/[container:Calculator]/[test:divides]")
		require.NoError(t, err)
		plan := discover(t, l, junit5.DiscoveryRequest{Selectors: []domain.Selector{sel}})
		assert.Equal(t, 1, plan.CountTests())
	})

	t.Run("unknown segment warns", func(t *testing.T) {
		sel, err := domain.SelectUniqueID("[engine:dsl]/[container:Calculator]/[test:addz]")
		require.NoError(t, err)
		plan := discover(t, l, junit5.DiscoveryRequest{Selectors: []domain.Selector{sel}})
		assert.Zero(t, plan.CountTests())
		require.Len(t, plan.Warnings, 1)
		assert.Contains(t, plan.Warnings[0].Suggestions, "adds")
	})
}

func TestLauncher_Filters(t *testing.T) {
	t.Run("tags", func(t *testing.T) {
		l, err := junit5.New(
			junit5.WithEngines(calculatorEngine(t)),
			junit5.WithTagFilter(nil, []string{"slow"}),
		)
		require.NoError(t, err)
		plan := discover(t, l, junit5.DiscoveryRequest{})
		assert.Equal(t, 2, plan.CountTests())
		require.Len(t, plan.Filtered, 1)
		assert.Equal(t, "slow", plan.Filtered[0].DisplayName())
	})

	t.Run("engines", func(t *testing.T) {
		other, err := dsl.New("other").Add(dsl.Container("C")).Build()
		require.NoError(t, err)
		l, err := junit5.New(
			junit5.WithEngines(calculatorEngine(t), other),
			junit5.WithEngineFilter([]string{"other"}, nil),
		)
		require.NoError(t, err)
		plan := discover(t, l, junit5.DiscoveryRequest{})
		require.Len(t, plan.Roots, 1)
		assert.Equal(t, "[engine:other]", plan.Roots[0].UniqueID().String())
	})

	t.Run("display names", func(t *testing.T) {
		l, err := junit5.New(
			junit5.WithEngines(calculatorEngine(t)),
			junit5.WithDisplayNameExclusions("div.*"),
		)
		require.NoError(t, err)
		plan := discover(t, l, junit5.DiscoveryRequest{})
		assert.Equal(t, 2, plan.CountTests())
	})
}

func TestLauncher_EnabledIfParameter(t *testing.T) {
	l, err := junit5.New(
		junit5.WithEngines(calculatorEngine(t)),
		junit5.WithConfigurationParameters(map[string]string{
			junit5.EnabledIfParameter: `not ("slow" in tags)`,
		}),
	)
	require.NoError(t, err)
	plan := discover(t, l, junit5.DiscoveryRequest{})

	rec := testkit.NewEventRecorder()
	_, err = l.Execute(context.Background(), plan, rec)
	require.NoError(t, err)

	skipped := rec.Tests().Skipped()
	require.Len(t, skipped, 1)
	assert.Equal(t, "slow", skipped[0].Descriptor.DisplayName())
	assert.Contains(t, skipped[0].Reason, "evaluated to false")
}

func TestLauncher_EnabledIfUnknownLanguage(t *testing.T) {
	l, err := junit5.New(junit5.WithEngines(calculatorEngine(t)))
	require.NoError(t, err)
	plan := discover(t, l, junit5.DiscoveryRequest{Parameters: map[string]string{
		junit5.EnabledIfParameter:         "true",
		junit5.EnabledIfLanguageParameter: "lua",
	}})

	_, err = l.Execute(context.Background(), plan)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestLauncher_ResultStore(t *testing.T) {
	store := memory.NewResultStore()
	l, err := junit5.New(
		junit5.WithEngines(calculatorEngine(t)),
		junit5.WithResultStore(store),
		junit5.WithLocker(memory.NewLocker(), "junit5"),
	)
	require.NoError(t, err)

	run, err := l.Execute(context.Background(), discover(t, l, junit5.DiscoveryRequest{}))
	require.NoError(t, err)
	assert.True(t, run.Recorded)

	records, err := store.List(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"[engine:dsl]/[container:Calculator]/[test:divides]"}, observability.FailedTests(records))
}

func TestLauncher_Timeout(t *testing.T) {
	c := dsl.Container("C")
	c.Test("blocks", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	c.Test("after", func() {})
	engine, err := dsl.NewEngine("dsl", c)
	require.NoError(t, err)

	l, err := junit5.New(junit5.WithEngines(engine), junit5.WithTimeout(20*time.Millisecond))
	require.NoError(t, err)

	rec := testkit.NewEventRecorder()
	_, err = l.Execute(context.Background(), discover(t, l, junit5.DiscoveryRequest{}), rec)
	require.NoError(t, err)

	result, ok := rec.Events().Result("blocks")
	require.True(t, ok)
	assert.NotEqual(t, domain.StatusSuccessful, result.Status)

	skipped := rec.Tests().Skipped()
	require.Len(t, skipped, 1)
	assert.True(t, strings.HasPrefix(skipped[0].Reason, "execution cancelled"), skipped[0].Reason)
}

type fatalHook struct{}

func (fatalHook) BeforeEach(extension.Context) error {
	return &domain.FatalError{Err: errors.New("out of memory")}
}

func TestLauncher_FatalStopsRun(t *testing.T) {
	c := dsl.Container("C").ExtendWith(fatalHook{})
	c.Test("t", func() {})
	engine, err := dsl.NewEngine("dsl", c)
	require.NoError(t, err)

	l, err := junit5.New(junit5.WithEngines(engine))
	require.NoError(t, err)
	_, err = l.Execute(context.Background(), discover(t, l, junit5.DiscoveryRequest{}))
	assert.ErrorIs(t, err, domain.ErrFatal)
}

func TestLauncher_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l, err := junit5.New(junit5.WithEngines(calculatorEngine(t)))
	require.NoError(t, err)
	_, err = l.Watch(ctx)
	assert.Error(t, err, "no engine supports watching")

	engine := calculatorEngine(t)
	engine.Watch = func(context.Context) (<-chan string, error) {
		ch := make(chan string, 1)
		ch <- "calc_test.yaml"
		close(ch)
		return ch, nil
	}
	l, err = junit5.New(junit5.WithEngines(engine))
	require.NoError(t, err)

	events, err := l.Watch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "calc_test.yaml", <-events)
	_, open := <-events
	assert.False(t, open)
}

func TestRunner_PrintsTreeAndSummary(t *testing.T) {
	l, err := junit5.New(junit5.WithEngines(calculatorEngine(t)))
	require.NoError(t, err)

	var out bytes.Buffer
	runner := junit5.NewRunner(&out)
	runner.Renderer = func(md string) (string, error) { return strings.ToUpper(md), nil }

	run, err := runner.Run(context.Background(), l, junit5.DiscoveryRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, run.Summary.TestsFailed)

	text := out.String()
	assert.Contains(t, text, "    ✔ adds")
	assert.Contains(t, text, "    ✘ divides (failed: expected <2> but was <3>)")
	assert.Contains(t, text, "# TEST RUN FINISHED")
}

func TestRunner_Headless(t *testing.T) {
	l, err := junit5.New(junit5.WithEngines(calculatorEngine(t)))
	require.NoError(t, err)

	var out bytes.Buffer
	rec := testkit.NewEventRecorder()
	runner := &junit5.Runner{Output: &out, Headless: true, Listener: rec}
	_, err = runner.Run(context.Background(), l, junit5.DiscoveryRequest{})
	require.NoError(t, err)

	assert.NotContains(t, out.String(), "✔")
	assert.Len(t, rec.Tests().Finished(), 3)
}

var _ ports.ExecutionListener = (*testkit.EventRecorder)(nil)
