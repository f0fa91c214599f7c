package store

import (
	"fmt"
	"reflect"
	"sync"
)

type compositeKey struct {
	namespace string
	key       any
}

// entry holds one binding. done is closed once value and err are final.
type entry struct {
	done  chan struct{}
	value any
	err   error
}

func resolved(value any) *entry {
	e := &entry{done: make(chan struct{}), value: value}
	close(e.done)
	return e
}

func (e *entry) wait() (any, error) {
	<-e.done
	return e.value, e.err
}

// Store is one layer of the hierarchy.
type Store struct {
	parent *Store

	mu      sync.Mutex
	entries map[compositeKey]*entry
}

// New creates a layer on top of parent. A nil parent creates a root layer.
func New(parent *Store) *Store {
	return &Store{
		parent:  parent,
		entries: make(map[compositeKey]*entry),
	}
}

// Parent returns the enclosing layer, or nil.
func (s *Store) Parent() *Store {
	return s.parent
}

// Namespace returns a view of s bound to ns.
func (s *Store) Namespace(ns Namespace) *NamespacedStore {
	return &NamespacedStore{store: s, namespace: ns}
}

func makeKey(ns Namespace, key any) compositeKey {
	if key == nil || !reflect.TypeOf(key).Comparable() {
		panic(fmt.Sprintf("store: key %v of type %T is not comparable", key, key))
	}
	return compositeKey{namespace: ns.key, key: key}
}

func (s *Store) local(k compositeKey) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[k]
	return e, ok
}

// lookup walks from s up to the root layer.
func (s *Store) lookup(k compositeKey) (any, bool) {
	for layer := s; layer != nil; layer = layer.parent {
		if e, ok := layer.local(k); ok {
			v, err := e.wait()
			if err != nil {
				return nil, false
			}
			return v, true
		}
	}
	return nil, false
}

// Get returns the value bound to key in ns in the closest layer that has one.
func (s *Store) Get(ns Namespace, key any) (any, bool) {
	return s.lookup(makeKey(ns, key))
}

// Put binds key in ns in this layer only.
func (s *Store) Put(ns Namespace, key, value any) {
	k := makeKey(ns, key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[k] = resolved(value)
}

// Remove deletes the binding of key in ns from this layer and returns its value.
// Bindings of ancestor layers are not affected.
func (s *Store) Remove(ns Namespace, key any) (any, bool) {
	k := makeKey(ns, key)
	s.mu.Lock()
	e, ok := s.entries[k]
	delete(s.entries, k)
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	v, err := e.wait()
	if err != nil {
		return nil, false
	}
	return v, true
}

// GetOrComputeIfAbsent returns the value bound to key in ns, computing and storing it
// in this layer when no layer has one. The factory runs at most once per key for
// this layer; concurrent callers wait for it and observe the same value or error.
func (s *Store) GetOrComputeIfAbsent(ns Namespace, key any, factory func(key any) (any, error)) (any, error) {
	k := makeKey(ns, key)

	if e, ok := s.local(k); ok {
		return e.wait()
	}
	// Ancestor lookups may wait on an ancestor's factory; this layer stays unlocked meanwhile.
	if s.parent != nil {
		if v, ok := s.parent.lookup(k); ok {
			return v, nil
		}
	}

	s.mu.Lock()
	if e, ok := s.entries[k]; ok {
		s.mu.Unlock()
		return e.wait()
	}
	e := &entry{done: make(chan struct{})}
	s.entries[k] = e
	s.mu.Unlock()

	func() {
		defer close(e.done)
		defer func() {
			if r := recover(); r != nil {
				e.err = fmt.Errorf("store: computing %v panicked: %v", key, r)
			}
		}()
		e.value, e.err = factory(key)
	}()
	return e.value, e.err
}
