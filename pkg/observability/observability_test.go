package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuchang/junit5/pkg/adapters/memory"
	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/observability"
	"github.com/tuchang/junit5/pkg/ports"
	"github.com/tuchang/junit5/pkg/testkit"
	"github.com/tuchang/junit5/pkg/uniqueid"
)

// tree builds [engine:e] with container C holding tests ok, bad and off.
func tree(t *testing.T) (root, c, ok, bad, off *domain.Descriptor) {
	t.Helper()
	id := uniqueid.MustRoot("engine", "e")
	root, err := domain.NewEngineDescriptor(id, "e")
	require.NoError(t, err)
	c = domain.NewDescriptor(id.MustAppend("container", "C"), "", domain.TypeContainer)
	require.NoError(t, root.AddChild(c))
	for _, name := range []string{"ok", "bad", "off"} {
		require.NoError(t, c.AddChild(domain.NewDescriptor(c.UniqueID().MustAppend("test", name), "", domain.TypeTest)))
	}
	children := c.Children()
	return root, c, children[0], children[1], children[2]
}

// clock advances by one second on every call.
func clock() func() time.Time {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

// replay sends a typical run to l.
func replay(l ports.ExecutionListener, root, c, ok, bad, off *domain.Descriptor) {
	l.ExecutionStarted(root)
	l.ExecutionStarted(c)
	l.ExecutionStarted(ok)
	l.ExecutionFinished(ok, domain.Successful())
	l.ExecutionStarted(bad)
	l.ExecutionFinished(bad, domain.Result{
		Status:     domain.StatusFailed,
		Cause:      domain.Fail("boom"),
		Suppressed: []error{errors.New("cleanup")},
	})
	l.ExecutionSkipped(off, "disabled")
	l.ExecutionFinished(c, domain.Successful())
	l.ExecutionFinished(root, domain.Successful())
}

func TestSummaryListener(t *testing.T) {
	root, c, ok, bad, off := tree(t)
	l := observability.NewSummaryListener(clock(), root)
	replay(l, root, c, ok, bad, off)

	s := l.Summary()
	assert.Equal(t, 2, s.ContainersFound)
	assert.Equal(t, 3, s.TestsFound)
	assert.Equal(t, 2, s.TestsStarted)
	assert.Equal(t, 1, s.TestsSucceeded)
	assert.Equal(t, 1, s.TestsFailed)
	assert.Equal(t, 1, s.TestsSkipped)
	assert.Equal(t, 2, s.ContainersSucceeded)
	assert.Equal(t, 1, s.TotalFailureCount())
	assert.Equal(t, time.Second, s.Duration())

	require.Len(t, s.Failures, 1)
	assert.Equal(t, "boom; suppressed: cleanup", s.Failures[0].Message)
	assert.Contains(t, s.Markdown(), "| failed | 0 | 1 |")
	assert.Contains(t, s.Markdown(), "- **bad** `[engine:e]/[container:C]/[test:bad]`")

	var out bytes.Buffer
	s.PrintTo(&out)
	assert.Contains(t, out.String(), "[engine:e]/[container:C]/[test:bad] => boom; suppressed: cleanup")
}

func TestSummaryListener_DynamicTestsAreFound(t *testing.T) {
	root, _, ok, _, _ := tree(t)
	l := observability.NewSummaryListener(nil, root)
	dyn := domain.NewDescriptor(ok.UniqueID().MustAppend("dynamic-test", "#1"), "", domain.TypeTest)
	l.DynamicTestRegistered(dyn)
	assert.Equal(t, 4, l.Summary().TestsFound)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	root, c, ok, bad, off := tree(t)
	l := m.Listener()
	replay(l, root, c, ok, bad, off)
	l.DynamicTestRegistered(ok)
	l.ReportingEntryPublished(ok, domain.ReportEntry{})

	count, err := testutil.GatherAndCount(reg, "junit5_nodes_total")
	require.NoError(t, err)
	assert.Equal(t, 4, count, "container/successful, test/successful, test/failed and test/skipped")
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP junit5_dynamic_tests_registered_total Dynamic tests and containers registered during execution
# TYPE junit5_dynamic_tests_registered_total counter
junit5_dynamic_tests_registered_total 1
# HELP junit5_tests_running Tests currently executing
# TYPE junit5_tests_running gauge
junit5_tests_running 0
`), "junit5_dynamic_tests_registered_total", "junit5_tests_running"))

	_, err = observability.NewMetrics(reg)
	assert.Error(t, err, "collectors are registered once")
}

func TestResultRecorder(t *testing.T) {
	store := memory.NewResultStore()
	rec := observability.NewResultRecorder(context.Background(), store, "run-1",
		observability.WithRecorderClock(clock()))

	root, c, ok, bad, off := tree(t)
	replay(rec, root, c, ok, bad, off)
	assert.Zero(t, rec.Errors())

	records, err := store.List(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, "successful", records[0].Status)
	assert.Equal(t, time.Second, records[0].Duration)
	assert.Equal(t, []string{"boom", "cleanup"}, records[1].Failures)
	assert.Equal(t, "skipped", records[2].Status)
	assert.Equal(t, "disabled", records[2].Reason)
	assert.Equal(t, []string{"[engine:e]/[container:C]/[test:bad]"}, observability.FailedTests(records))
}

type failingStore struct{ ports.ResultStore }

func (failingStore) Save(context.Context, string, ports.ResultRecord) error {
	return errors.New("disk full")
}

func TestResultRecorder_CountsSaveErrors(t *testing.T) {
	rec := observability.NewResultRecorder(context.Background(), failingStore{}, "run")
	root, c, ok, bad, off := tree(t)
	replay(rec, root, c, ok, bad, off)
	assert.Equal(t, 5, rec.Errors())
}

func TestLoggingListener(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l := observability.NewLoggingListener(logger)

	root, c, ok, bad, off := tree(t)
	replay(l, root, c, ok, bad, off)

	var failed map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["status"] == "failed" {
			failed = entry
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, "WARN", failed["level"])
	assert.Equal(t, "[engine:e]/[container:C]/[test:bad]", failed["unique_id"])
	assert.Equal(t, float64(1), failed["suppressed"])
}

func TestComposite(t *testing.T) {
	a, b := testkit.NewEventRecorder(), testkit.NewEventRecorder()
	composite := observability.NewComposite(a, nil, b)
	require.Len(t, composite, 2)

	root, c, ok, bad, off := tree(t)
	replay(composite, root, c, ok, bad, off)
	assert.Equal(t, a.Events().Strings(), b.Events().Strings())
	assert.Len(t, a.Events(), 9)
}
