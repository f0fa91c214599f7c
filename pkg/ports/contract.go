package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuchang/junit5/pkg/domain"
)

// RunResultStoreContract runs a suite of tests verifying that a ResultStore
// implementation adheres to the interface contract.
func RunResultStoreContract(t *testing.T, store ResultStore) {
	ctx := context.Background()
	runID := "contract-run-" + time.Now().Format("20060102150405.000000")

	passed := ResultRecord{
		UniqueID:    "[engine:dsl]/[container:Calc]/[test:adds]",
		DisplayName: "adds",
		Test:        true,
		Status:      "successful",
		Duration:    15 * time.Millisecond,
		FinishedAt:  time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
	}
	failed := ResultRecord{
		UniqueID:    "[engine:dsl]/[container:Calc]/[test:divides]",
		DisplayName: "divides",
		Test:        true,
		Status:      "failed",
		Failures:    []string{"expected <2> but was <3>", "after each: cleanup"},
		FinishedAt:  time.Date(2026, 3, 4, 5, 6, 8, 0, time.UTC),
	}

	t.Run("Save and List", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, runID, passed))
		require.NoError(t, store.Save(ctx, runID, failed))

		records, err := store.List(ctx, runID)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, passed.UniqueID, records[0].UniqueID)
		assert.Equal(t, passed.Duration, records[0].Duration)
		assert.True(t, passed.FinishedAt.Equal(records[0].FinishedAt))
		assert.Equal(t, failed.Failures, records[1].Failures)
	})

	t.Run("List Non-Existent", func(t *testing.T) {
		_, err := store.List(ctx, "missing-"+runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound)
	})

	t.Run("Runs", func(t *testing.T) {
		other := runID + "-other"
		require.NoError(t, store.Save(ctx, other, passed))
		defer func() { _ = store.Delete(ctx, other) }()

		runs, err := store.Runs(ctx)
		require.NoError(t, err)
		assert.Contains(t, runs, runID)
		assert.Contains(t, runs, other)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, runID))

		_, err := store.List(ctx, runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound)

		runs, err := store.Runs(ctx)
		require.NoError(t, err)
		assert.NotContains(t, runs, runID)
	})
}
