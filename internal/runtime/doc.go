// Package runtime executes a discovered test plan.
//
// The engine walks the descriptor tree depth first. For each node it builds a
// child extension registry and store layer, evaluates execution conditions,
// then runs the container or test lifecycle, reporting every transition to an
// ExecutionListener.
package runtime
