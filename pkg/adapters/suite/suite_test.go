package suite_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuchang/junit5"
	"github.com/tuchang/junit5/pkg/adapters/suite"
	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/testkit"
	"github.com/tuchang/junit5/pkg/uniqueid"
)

func requirePOSIX(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("suites under testdata use a POSIX shell")
	}
}

func writeSuite(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func discover(t *testing.T, engine junit5.TestEngine, selectors ...domain.Selector) *junit5.Plan {
	t.Helper()
	l, err := junit5.New(junit5.WithEngines(engine))
	require.NoError(t, err)
	plan, err := l.Discover(context.Background(), junit5.DiscoveryRequest{Selectors: selectors})
	require.NoError(t, err)
	return plan
}

func TestParse_YAML(t *testing.T) {
	s, err := suite.Parse("testdata/calculator.suite.yaml")
	require.NoError(t, err)

	root := s.Root
	assert.Equal(t, "calculator", root.Name)
	assert.Equal(t, "Calculator", root.DisplayName)
	assert.Equal(t, []string{"math"}, root.Tags)
	assert.Equal(t, map[string]string{"GREETING": "hello"}, root.Env)
	require.Len(t, root.BeforeAll, 1)
	assert.Equal(t, "sh", root.BeforeAll[0].Run)

	require.Len(t, root.Tests, 4)
	adds := root.Tests[0]
	assert.Equal(t, "adds", adds.Name)
	assert.Equal(t, 10, adds.Line)
	assert.Equal(t, []string{"-c", "echo $((1 + 2))"}, adds.Args)
	assert.Equal(t, "3", adds.Expect.StdoutContains)
	assert.Equal(t, "calculator.adds", adds.String())

	assert.Equal(t, map[string]string{"NAME": "world"}, root.Tests[1].Env)
	require.NotNil(t, root.Tests[3].Disabled)
	assert.Equal(t, "not ready", *root.Tests[3].Disabled)

	require.Len(t, root.Containers, 1)
	nested := root.Containers[0]
	assert.Equal(t, 30, nested.Line)
	assert.Equal(t, "calculator.nested", nested.QualifiedName())
	assert.Equal(t, 3, nested.Tests[0].Expect.ExitCode)
}

func TestParse_HCL(t *testing.T) {
	s, err := suite.Parse("testdata/greeter.suite.hcl")
	require.NoError(t, err)

	root := s.Root
	assert.Equal(t, "greeter", root.Name)
	assert.Equal(t, []string{"hcl"}, root.Tags)

	want := []suite.ExtensionSpec{{Type: "env", Config: map[string]any{"vars": map[string]any{"WHO": "hcl"}}}}
	if diff := cmp.Diff(want, root.Extensions); diff != "" {
		t.Errorf("extensions mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, root.Tests, 2)
	hello := root.Tests[0]
	assert.Equal(t, 8, hello.Line)
	assert.Equal(t, "sh", hello.Run)
	assert.Equal(t, "hello hcl", hello.Expect.StdoutContains)

	cond := root.Tests[1].EnabledIf
	require.NotNil(t, cond)
	assert.Equal(t, suite.Condition{
		Language:   "expr",
		Expression: "params['greeter.enabled'] == 'yes'",
		Reason:     "greeter disabled",
	}, *cond)

	require.Len(t, root.Containers, 1)
	slow := root.Containers[0]
	assert.Equal(t, "slow", slow.Name)
	assert.Equal(t, 27, slow.Line)
	assert.Equal(t, "200ms", slow.Tests[0].Extensions[0].Config["duration"])
}

func TestParse_NameFromFile(t *testing.T) {
	s, err := suite.ParseBytes("dir/unnamed.suite.yml", []byte("tests:\n  - name: a\n    run: \"true\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "unnamed", s.Root.Name)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		content string
		want    string
	}{
		{
			name:    "empty",
			path:    "a.suite.yaml",
			content: "",
			want:    "empty suite",
		},
		{
			name:    "unknown field",
			path:    "a.suite.yaml",
			content: "tset:\n  - name: a\n",
			want:    "tset",
		},
		{
			name:    "test without command",
			path:    "a.suite.yaml",
			content: "tests:\n  - name: a\n",
			want:    "/tests/0",
		},
		{
			name:    "reserved character in name",
			path:    "a.suite.yaml",
			content: "tests:\n  - name: \"a]\"\n    run: \"true\"\n",
			want:    "/tests/0/name",
		},
		{
			name:    "unknown language",
			path:    "a.suite.yaml",
			content: "enabled_if:\n  language: lua\n  expression: \"true\"\n",
			want:    "/enabled_if/language",
		},
		{
			name:    "duplicate test",
			path:    "a.suite.yaml",
			content: "tests:\n  - {name: a, run: \"true\"}\n  - {name: a, run: \"true\"}\n",
			want:    `duplicate test "a"`,
		},
		{
			name:    "invalid tag",
			path:    "a.suite.yaml",
			content: "tests:\n  - {name: a, run: \"true\", tags: [\"a|b\"]}\n",
			want:    "test a.a",
		},
		{
			name:    "hcl unknown argument",
			path:    "a.suite.hcl",
			content: "test \"a\" {\n  run = \"true\"\n  bogus = 1\n}\n",
			want:    "Unsupported argument",
		},
		{
			name:    "hcl missing run",
			path:    "a.suite.hcl",
			content: "test \"a\" {}\n",
			want:    "Missing required argument",
		},
		{
			name:    "hcl duplicate container",
			path:    "a.suite.hcl",
			content: "container \"c\" {}\ncontainer \"c\" {}\n",
			want:    `duplicate container "c"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := suite.ParseBytes(tt.path, []byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.True(t, strings.HasPrefix(err.Error(), tt.path+":"), err.Error())
		})
	}
}

func TestEngine_Execute(t *testing.T) {
	requirePOSIX(t)
	engine, err := suite.NewEngine(suite.DefaultEngineID, []string{"testdata"})
	require.NoError(t, err)

	rec, run := testkit.Execute(t, engine, nil)
	assert.Equal(t, testkit.Stats{Started: 6, Skipped: 2, Succeeded: 4, Failed: 2, Finished: 6}, rec.Tests().Stats())
	assert.Equal(t, 8, run.Summary.TestsFound)

	fails, ok := rec.Tests().Result("fails")
	require.True(t, ok)
	assert.Contains(t, fails.String(), "expected exit code <0> but was <2>")
	assert.Contains(t, fails.String(), "stderr: boom")
	assert.ErrorIs(t, fails.Err(), domain.ErrAssertion)

	sleeps, ok := rec.Tests().Result("sleeps")
	require.True(t, ok)
	assert.Contains(t, sleeps.String(), "sleep timed out after 200ms")

	var reasons []string
	for _, e := range rec.Tests().Skipped() {
		reasons = append(reasons, e.Descriptor.DisplayName()+": "+e.Reason)
	}
	assert.ElementsMatch(t, []string{"skipped: not ready", "conditional: greeter disabled"}, reasons)

	for _, name := range []string{"adds", "greets", "exit-code", "hello"} {
		result, ok := rec.Tests().Result(name)
		require.True(t, ok, name)
		assert.Equal(t, domain.StatusSuccessful, result.Status, name)
	}
}

func TestEngine_EnabledIfParameter(t *testing.T) {
	requirePOSIX(t)
	engine, err := suite.NewEngine(suite.DefaultEngineID, []string{"testdata/greeter.suite.hcl"})
	require.NoError(t, err)

	rec, _ := testkit.Execute(t, engine,
		[]domain.Selector{domain.SelectName("greeter.conditional")},
		junit5.WithConfigurationParameters(map[string]string{"greeter.enabled": "yes"}))
	result, ok := rec.Tests().Result("conditional")
	require.True(t, ok)
	assert.Equal(t, domain.StatusSuccessful, result.Status)
}

func TestEngine_Selectors(t *testing.T) {
	engine, err := suite.NewEngine(suite.DefaultEngineID, []string{"testdata"})
	require.NoError(t, err)

	uid, err := domain.SelectUniqueID("[engine:suites]/[suite:calculator]/[test:adds]")
	require.NoError(t, err)

	tests := []struct {
		name     string
		selector domain.Selector
		want     int
	}{
		{name: "file", selector: domain.FileSelector{Path: "testdata/greeter.suite.hcl"}, want: 3},
		{name: "directory", selector: domain.DirectorySelector{Path: "testdata"}, want: 8},
		{name: "suite name", selector: domain.SelectName("calculator"), want: 5},
		{name: "container name", selector: domain.SelectName("calculator.nested"), want: 1},
		{name: "test name", selector: domain.SelectName("greeter.slow.sleeps"), want: 1},
		{name: "unique id", selector: uid, want: 1},
		{name: "other files", selector: domain.FileSelector{Path: "testdata/README.txt"}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := discover(t, engine, tt.selector)
			require.NoError(t, plan.Err())
			assert.Equal(t, tt.want, plan.CountTests())
		})
	}
}

func TestEngine_Sources(t *testing.T) {
	engine, err := suite.NewEngine(suite.DefaultEngineID, []string{"testdata"})
	require.NoError(t, err)
	plan := discover(t, engine)
	require.NoError(t, plan.Err())

	abs, err := filepath.Abs("testdata/calculator.suite.yaml")
	require.NoError(t, err)

	id := uniqueid.MustParse("[engine:suites]/[suite:calculator]/[container:nested]/[test:exit-code]")
	d, ok := plan.Find(id)
	require.True(t, ok)
	assert.Equal(t, domain.FileSource{Path: abs, Line: 32}, d.Source())
	assert.ElementsMatch(t, []domain.Tag{"math"}, d.AllTags())

	d, ok = plan.Find(uniqueid.MustParse("[engine:suites]/[suite:calculator]"))
	require.True(t, ok)
	assert.Equal(t, "Calculator", d.DisplayName())
}

func TestEngine_UnknownSuiteSuggests(t *testing.T) {
	engine, err := suite.NewEngine(suite.DefaultEngineID, []string{"testdata"})
	require.NoError(t, err)
	uid, err := domain.SelectUniqueID("[engine:suites]/[suite:calculater]")
	require.NoError(t, err)

	plan := discover(t, engine, uid)
	require.Len(t, plan.Warnings, 1)
	assert.Contains(t, plan.Warnings[0].Suggestions, "calculator")
}

func TestEngine_DiscoveryErrors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{
			name: "unknown extension",
			files: map[string]string{
				"a.suite.yaml": "extensions:\n  - type: bogus\n",
			},
			want: `unknown extension type "bogus"`,
		},
		{
			name: "invalid extension config",
			files: map[string]string{
				"a.suite.yaml": "extensions:\n  - type: timeout\n    config: {duration: soon}\n",
			},
			want: "extension timeout",
		},
		{
			name: "duplicate suite names",
			files: map[string]string{
				"a.suite.yaml": "name: same\n",
				"b.suite.yaml": "name: same\n",
			},
			want: `suite "same" is defined by both`,
		},
		{
			name: "broken file",
			files: map[string]string{
				"a.suite.yaml": "tests: [",
			},
			want: "a.suite.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				writeSuite(t, dir, name, content)
			}
			engine, err := suite.NewEngine(suite.DefaultEngineID, []string{dir})
			require.NoError(t, err)

			plan := discover(t, engine)
			require.Error(t, plan.Err())
			assert.Contains(t, plan.Err().Error(), tt.want)
		})
	}
}

func TestEngine_MissingPath(t *testing.T) {
	_, err := suite.NewEngine(suite.DefaultEngineID, []string{"testdata/missing"})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestEngine_RetryReport(t *testing.T) {
	requirePOSIX(t)
	dir := t.TempDir()
	writeSuite(t, dir, "flaky.suite.yaml", `
tests:
  - name: flaky
    run: sh
    args: ["-c", "if [ -f marker ]; then exit 0; fi; touch marker; exit 1"]
    extensions:
      - type: retry-report
        config: {attempts: 2}
  - name: broken
    run: sh
    args: ["-c", "exit 1"]
    extensions:
      - type: retry-report
        config: {attempts: "2"}
`)
	engine, err := suite.NewEngine(suite.DefaultEngineID, []string{dir})
	require.NoError(t, err)

	rec, _ := testkit.Execute(t, engine, nil)
	flaky, ok := rec.Tests().Result("flaky")
	require.True(t, ok)
	assert.Equal(t, domain.StatusSuccessful, flaky.Status)

	broken, ok := rec.Tests().Result("broken")
	require.True(t, ok)
	assert.Equal(t, domain.StatusFailed, broken.Status)

	entries := rec.Events().OfType(testkit.EventReporting)
	require.Len(t, entries, 2)
	retries, _ := entries.Named("flaky")[0].Entry.Get("retries")
	assert.Equal(t, "1", retries)
	outcome, _ := entries.Named("broken")[0].Entry.Get("outcome")
	assert.Equal(t, "failed", outcome)
}

func TestEngine_LifecycleCommands(t *testing.T) {
	requirePOSIX(t)
	dir := t.TempDir()
	writeSuite(t, dir, "lifecycle.suite.yaml", `
env:
  LOG: log.txt
before_all:
  - run: sh
    args: ["-c", "echo before-all >> $LOG"]
before_each:
  - run: sh
    args: ["-c", "echo before-each >> $LOG"]
after_each:
  - run: sh
    args: ["-c", "echo after-each >> $LOG"]
after_all:
  - run: sh
    args: ["-c", "echo after-all >> $LOG"]
tests:
  - name: a
    run: sh
    args: ["-c", "echo a >> $LOG"]
  - name: b
    run: sh
    args: ["-c", "echo b >> $LOG"]
containers:
  - name: broken
    before_all:
      - run: sh
        args: ["-c", "echo cannot set up >&2; exit 1"]
    tests:
      - name: c
        run: "true"
`)
	engine, err := suite.NewEngine(suite.DefaultEngineID, []string{dir})
	require.NoError(t, err)

	rec, _ := testkit.Execute(t, engine, nil)
	assert.Equal(t, 2, rec.Tests().Stats().Succeeded)

	broken, ok := rec.Containers().Result("broken")
	require.True(t, ok)
	assert.Equal(t, domain.StatusFailed, broken.Status)
	assert.Contains(t, broken.String(), "before all: sh exited with code 1")
	assert.Contains(t, broken.String(), "cannot set up")

	log, err := os.ReadFile(filepath.Join(dir, "log.txt"))
	require.NoError(t, err)
	want := []string{
		"before-all",
		"before-each", "a", "after-each",
		"before-each", "b", "after-each",
		"after-all",
	}
	if diff := cmp.Diff(want, strings.Fields(string(log))); diff != "" {
		t.Errorf("lifecycle order mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_Watch(t *testing.T) {
	dir := t.TempDir()
	path := writeSuite(t, dir, "watched.suite.yaml", "name: watched\n")
	writeSuite(t, dir, "notes.txt", "ignored")

	e, err := suite.New(suite.DefaultEngineID, []string{dir})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, err := e.Watch(ctx)
	require.NoError(t, err)

	writeSuite(t, dir, "notes.txt", "still ignored")
	writeSuite(t, dir, "watched.suite.yaml", "name: watched\ntests: []\n")

	select {
	case got := <-changes:
		assert.Equal(t, path, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	for range changes {
	}
}
