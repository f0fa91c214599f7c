package extension

import (
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/tuchang/junit5/pkg/domain"
)

// Registry holds the extensions visible at one scope.
type Registry struct {
	inherited []Extension // parent snapshot taken by Child, never mutated

	mu     sync.RWMutex
	own    []Extension
	cached []Extension
}

// NewRegistry creates an empty root registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Child creates a registry that sees everything registered here so far.
// Extensions registered on r afterwards are not visible to the child.
func (r *Registry) Child() *Registry {
	return &Registry{inherited: r.snapshot()}
}

func (r *Registry) snapshot() []Extension {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached == nil {
		all := make([]Extension, 0, len(r.inherited)+len(r.own))
		all = append(all, r.inherited...)
		all = append(all, r.own...)
		r.cached = all[:len(all):len(all)]
	}
	return r.cached
}

// Register appends extensions to this scope. An extension equal to one already
// visible from this scope is ignored.
func (r *Registry) Register(exts ...Extension) error {
	for _, ext := range exts {
		if ext == nil {
			return domain.NewConfigurationError("register extension", "", fmt.Errorf("extension must not be nil"))
		}
		if r.contains(ext) {
			continue
		}
		r.mu.Lock()
		r.own = append(r.own, ext)
		r.cached = nil
		r.mu.Unlock()
	}
	return nil
}

// contains compares by value only when both values are comparable at run
// time. A comparable struct type may still hold a map or func in an
// interface field.
func (r *Registry) contains(ext Extension) bool {
	v := reflect.ValueOf(ext)
	if !v.Comparable() {
		return false
	}
	return slices.ContainsFunc(r.snapshot(), func(e Extension) bool {
		ev := reflect.ValueOf(e)
		return ev.Type() == v.Type() && ev.Comparable() && e == ext
	})
}

// All returns every visible extension, outer scope first.
func (r *Registry) All() []Extension {
	return slices.Clone(r.snapshot())
}

// Len returns the number of visible extensions.
func (r *Registry) Len() int {
	return len(r.snapshot())
}

// Before returns the extensions implementing T in before-order: outer scope first,
// registration order within a scope.
func Before[T any](r *Registry) []T {
	var out []T
	for _, ext := range r.snapshot() {
		if t, ok := ext.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// After returns the exact reverse of Before.
func After[T any](r *Registry) []T {
	out := Before[T](r)
	slices.Reverse(out)
	return out
}
