/*
Package store implements the hierarchical, namespaced key/value store shared between
extensions and test code during execution.

Stores form a chain of layers, one per executing node. Reads walk from the current
layer up through its ancestors and stop at the first match; writes and removals only
ever touch the current layer, so a binding of an ancestor can be shadowed but never
changed from below. GetOrComputeIfAbsent runs its factory at most once per key per
layer, even under concurrent callers.
*/
package store
