package store

import (
	"fmt"
	"reflect"
)

// TypeMismatchError is returned when a stored value does not have the requested type.
type TypeMismatchError struct {
	Namespace Namespace
	Key       any
	Expected  string
	Actual    string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("value for key %v in namespace %s is of type %s, not %s",
		e.Key, e.Namespace, e.Actual, e.Expected)
}

// NamespacedStore is a Store view bound to a single namespace.
type NamespacedStore struct {
	store     *Store
	namespace Namespace
}

func (n *NamespacedStore) Get(key any) (any, bool) {
	return n.store.Get(n.namespace, key)
}

func (n *NamespacedStore) Put(key, value any) {
	n.store.Put(n.namespace, key, value)
}

func (n *NamespacedStore) Remove(key any) (any, bool) {
	return n.store.Remove(n.namespace, key)
}

func (n *NamespacedStore) GetOrComputeIfAbsent(key any, factory func(key any) (any, error)) (any, error) {
	return n.store.GetOrComputeIfAbsent(n.namespace, key, factory)
}

func cast[T any](n *NamespacedStore, key, v any) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	typed, ok := v.(T)
	if !ok {
		return zero, &TypeMismatchError{
			Namespace: n.namespace,
			Key:       key,
			Expected:  reflect.TypeFor[T]().String(),
			Actual:    reflect.TypeOf(v).String(),
		}
	}
	return typed, nil
}

// GetAs looks key up and checks that its value is a T.
func GetAs[T any](n *NamespacedStore, key any) (T, bool, error) {
	v, ok := n.Get(key)
	if !ok {
		var zero T
		return zero, false, nil
	}
	typed, err := cast[T](n, key, v)
	return typed, err == nil, err
}

// RemoveAs removes key from the current layer and checks that its value was a T.
func RemoveAs[T any](n *NamespacedStore, key any) (T, bool, error) {
	v, ok := n.Remove(key)
	if !ok {
		var zero T
		return zero, false, nil
	}
	typed, err := cast[T](n, key, v)
	return typed, err == nil, err
}

// GetOrComputeAs is GetOrComputeIfAbsent with a typed factory and result.
func GetOrComputeAs[T any](n *NamespacedStore, key any, factory func(key any) (T, error)) (T, error) {
	v, err := n.GetOrComputeIfAbsent(key, func(k any) (any, error) {
		return factory(k)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return cast[T](n, key, v)
}
