package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuchang/junit5/pkg/adapters/memory"
	"github.com/tuchang/junit5/pkg/ports"
)

func TestResultStore_Contract(t *testing.T) {
	ports.RunResultStoreContract(t, memory.NewResultStore())
}

func TestResultStore_RunsMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	store := memory.NewResultStore()
	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, store.Save(ctx, id, ports.ResultRecord{UniqueID: id}))
	}

	runs, err := store.Runs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"r3", "r2", "r1"}, runs)
}

func TestResultStore_ListReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := memory.NewResultStore()
	require.NoError(t, store.Save(ctx, "r", ports.ResultRecord{Failures: []string{"boom"}}))

	records, err := store.List(ctx, "r")
	require.NoError(t, err)
	records[0].Failures[0] = "changed"

	again, err := store.List(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, "boom", again[0].Failures[0])
}
