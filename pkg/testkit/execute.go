package testkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuchang/junit5"
	"github.com/tuchang/junit5/pkg/domain"
)

// Execute discovers selectors in engine with a fresh launcher, requires
// discovery to succeed, executes the plan and returns the recorded events.
// No selectors selects the whole engine.
func Execute(t testing.TB, engine junit5.TestEngine, selectors []domain.Selector, opts ...junit5.Option) (*EventRecorder, *junit5.Run) {
	t.Helper()
	l, err := junit5.New(append([]junit5.Option{junit5.WithEngines(engine)}, opts...)...)
	require.NoError(t, err)

	plan, err := l.Discover(context.Background(), junit5.DiscoveryRequest{Selectors: selectors})
	require.NoError(t, err)
	require.NoError(t, plan.Err())

	rec := NewEventRecorder()
	run, err := l.Execute(context.Background(), plan, rec)
	require.NoError(t, err)
	return rec, run
}
