package domain_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuchang/junit5/pkg/domain"
)

func TestErrorTaxonomy(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		sentinel error
	}{
		{name: "configuration", err: domain.NewConfigurationError("resolve", "x", errors.New("boom")), sentinel: domain.ErrConfiguration},
		{name: "assertion", err: domain.Fail("want %d", 1), sentinel: domain.ErrAssertion},
		{name: "assumption", err: domain.Abort("no network"), sentinel: domain.ErrAssumption},
		{name: "fatal", err: &domain.FatalError{Err: errors.New("out of memory")}, sentinel: domain.ErrFatal},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("while running: %w", tc.err)
			assert.ErrorIs(t, wrapped, tc.sentinel)
		})
	}

	assert.True(t, domain.IsAssumption(fmt.Errorf("x: %w", domain.Abort("y"))))
	assert.False(t, domain.IsAssumption(domain.Fail("y")))
	assert.True(t, domain.IsFatal(&domain.FatalError{Err: errors.New("z")}))
}

func TestBehaviorFailure_Unwraps(t *testing.T) {
	cause := domain.Fail("nope")
	err := &domain.BehaviorFailure{Phase: "before each", Err: cause}

	var af *domain.AssertionFailure
	require.True(t, errors.As(err, &af))
	assert.Equal(t, "nope", af.Message)
	assert.Equal(t, "before each: nope", err.Error())
}

func TestResult_Failures(t *testing.T) {
	r := domain.Failed(errors.New("before"))
	r.Suppressed = append(r.Suppressed, errors.New("after"))

	assert.Len(t, r.Failures(), 2)
	assert.ErrorContains(t, r.Err(), "after")
	assert.Empty(t, domain.Successful().Failures())
	assert.NoError(t, domain.Successful().Err())
}

func TestReportEntry_KeepsOrder(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e, err := domain.NewReportEntry(ts, "zeta", "1", "alpha", "2", "zeta", "3")
	require.NoError(t, err)

	assert.Equal(t, []string{"zeta", "alpha"}, e.Keys())
	v, ok := e.Get("zeta")
	assert.True(t, ok)
	assert.Equal(t, "3", v)

	data, err := e.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"timestamp":"2026-01-02T03:04:05Z","values":{"zeta":"3","alpha":"2"}}`, string(data))
	assert.Contains(t, string(data), `"zeta":"3","alpha":"2"`)

	_, err = domain.NewReportEntry(ts, "odd")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	_, err = domain.NewReportEntry(ts, "", "v")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestNewTag(t *testing.T) {
	tag, err := domain.NewTag("  slow ")
	require.NoError(t, err)
	assert.Equal(t, domain.Tag("slow"), tag)

	for _, bad := range []string{"", " ", "a b", "a,b", "a|b", "!a"} {
		_, err := domain.NewTag(bad)
		assert.ErrorIs(t, err, domain.ErrConfiguration, bad)
	}
}

func TestParseSelector(t *testing.T) {
	sel, err := domain.ParseSelector("id:[engine:dsl]/[container:A]")
	require.NoError(t, err)
	assert.Equal(t, domain.KindUniqueID, sel.Kind())

	sel, err = domain.ParseSelector("name:Outer.Inner.adds")
	require.NoError(t, err)
	assert.Equal(t, domain.NameSelector{Path: []string{"Outer", "Inner", "adds"}}, sel)

	_, err = domain.ParseSelector("id:[broken")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	_, err = domain.ParseSelector("what:ever")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
