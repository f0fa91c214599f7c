package store_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuchang/junit5/pkg/store"
)

var ns = store.NewNamespace("test", 1)

func TestNamespace_Equality(t *testing.T) {
	assert.Equal(t, store.NewNamespace("a", 1), store.NewNamespace("a", 1))
	assert.NotEqual(t, store.NewNamespace("a", 1), store.NewNamespace("a", "1"))
	assert.Equal(t, store.NewNamespace("a", "b"), store.NewNamespace("a").Append("b"))
}

func TestStore_LookupWalksUpLayers(t *testing.T) {
	root := store.New(nil)
	child := store.New(root)
	grandchild := store.New(child)

	root.Put(ns, "k", "root")

	v, ok := grandchild.Get(ns, "k")
	require.True(t, ok)
	assert.Equal(t, "root", v)

	child.Put(ns, "k", "child")
	v, _ = grandchild.Get(ns, "k")
	assert.Equal(t, "child", v)

	v, _ = root.Get(ns, "k")
	assert.Equal(t, "root", v, "writes never reach an ancestor")
}

func TestStore_NamespacesAreIsolated(t *testing.T) {
	s := store.New(nil)
	s.Put(store.NewNamespace("a"), "k", 1)

	_, ok := s.Get(store.NewNamespace("b"), "k")
	assert.False(t, ok)
}

func TestStore_RemoveOnlyTouchesCurrentLayer(t *testing.T) {
	root := store.New(nil)
	child := store.New(root)
	root.Put(ns, "k", "root")

	_, removed := child.Remove(ns, "k")
	assert.False(t, removed, "cannot remove an ancestor binding")
	v, _ := child.Get(ns, "k")
	assert.Equal(t, "root", v)

	child.Put(ns, "k", "shadow")
	v, removed = child.Remove(ns, "k")
	assert.True(t, removed)
	assert.Equal(t, "shadow", v)

	v, _ = child.Get(ns, "k")
	assert.Equal(t, "root", v, "ancestor binding visible again")
}

func TestStore_GetOrComputeUsesAncestorValue(t *testing.T) {
	root := store.New(nil)
	child := store.New(root)
	root.Put(ns, "k", "root")

	v, err := child.GetOrComputeIfAbsent(ns, "k", func(any) (any, error) {
		t.Fatal("factory must not run")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "root", v)
}

func TestStore_GetOrComputeStoresInCurrentLayer(t *testing.T) {
	root := store.New(nil)
	child := store.New(root)

	v, err := child.GetOrComputeIfAbsent(ns, "k", func(key any) (any, error) {
		return key.(string) + "-computed", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "k-computed", v)

	_, ok := root.Get(ns, "k")
	assert.False(t, ok)
}

func TestStore_GetOrComputeIsAtomic(t *testing.T) {
	s := store.New(nil)
	var calls atomic.Int32
	release := make(chan struct{})

	const callers = 32
	results := make([]any, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.GetOrComputeIfAbsent(ns, "shared", func(any) (any, error) {
				calls.Add(1)
				<-release
				return &struct{ n int }{n: 42}, nil
			})
			assert.NoError(t, err)
			results[i] = v
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestStore_WaitingOnAncestorDoesNotBlockLayer(t *testing.T) {
	parent := store.New(nil)
	child := store.New(parent)
	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_, _ = parent.GetOrComputeIfAbsent(ns, "slow", func(any) (any, error) {
			close(started)
			<-release
			return "parent", nil
		})
	}()
	<-started

	childValue := make(chan any, 1)
	go func() {
		v, err := child.GetOrComputeIfAbsent(ns, "slow", func(any) (any, error) { return "child", nil })
		assert.NoError(t, err)
		childValue <- v
	}()
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		child.Put(ns, "other", 1)
		v, ok := child.Get(ns, "other")
		assert.True(t, ok)
		assert.Equal(t, 1, v)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("layer blocked while waiting on ancestor computation")
	}

	close(release)
	assert.Equal(t, "parent", <-childValue)
}

func TestStore_GetOrComputeMemoizesErrors(t *testing.T) {
	s := store.New(nil)
	boom := errors.New("boom")
	var calls int

	for range 2 {
		_, err := s.GetOrComputeIfAbsent(ns, "k", func(any) (any, error) {
			calls++
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, 1, calls)

	_, ok := s.Get(ns, "k")
	assert.False(t, ok)
}

func TestStore_GetOrComputeRecoversPanics(t *testing.T) {
	s := store.New(nil)
	_, err := s.GetOrComputeIfAbsent(ns, "k", func(any) (any, error) {
		panic("kaboom")
	})
	assert.ErrorContains(t, err, "kaboom")
}

func TestStore_NonComparableKeyPanics(t *testing.T) {
	s := store.New(nil)
	assert.Panics(t, func() { s.Put(ns, []string{"x"}, 1) })
}

func TestTyped(t *testing.T) {
	s := store.New(nil).Namespace(ns)
	s.Put("count", 3)

	n, ok, err := store.GetAs[int](s, "count")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok, err = store.GetAs[string](s, "count")
	assert.False(t, ok)
	var mismatch *store.TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "string", mismatch.Expected)
	assert.Equal(t, "int", mismatch.Actual)

	_, ok, err = store.GetAs[int](s, "missing")
	assert.NoError(t, err)
	assert.False(t, ok)

	got, err := store.GetOrComputeAs(s, "name", func(any) (string, error) { return "junit", nil })
	require.NoError(t, err)
	assert.Equal(t, "junit", got)

	removed, ok, err := store.RemoveAs[string](s, "name")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "junit", removed)
}
