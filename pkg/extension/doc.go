/*
Package extension defines the behaviors that can be registered at any scope of a test
plan and the registry that composes them.

An extension is any value. What it contributes is decided by the capability interfaces
it implements (ExecutionCondition, BeforeEachCallback, ParameterResolver, ...). A Registry
is created per executing node as a child of its parent's registry and captures an
immutable snapshot of everything visible in the parent at that moment.

# Ordering

Before returns extensions outer scope first, in registration order within a scope.
After returns the exact reverse, so hooks nest strictly:

	B1.BeforeEach, B2.BeforeEach, <test>, B2.AfterEach, B1.AfterEach
*/
package extension
