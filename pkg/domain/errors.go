package domain

import (
	"errors"
	"fmt"
)

// ErrConfiguration is matched by every ConfigurationError.
var ErrConfiguration = errors.New("configuration error")

// ErrAssertion is matched by every AssertionFailure.
var ErrAssertion = errors.New("assertion failed")

// ErrAssumption is matched by every AssumptionFailure. Units failing with it are aborted, not failed.
var ErrAssumption = errors.New("assumption not met")

// ErrFatal is matched by errors that must terminate the whole run.
var ErrFatal = errors.New("fatal runtime condition")

// ErrDuplicateChild is returned when a descriptor already has a child with the same unique id.
var ErrDuplicateChild = errors.New("duplicate child unique id")

// ErrAlreadyAttached is returned when a descriptor that already has a parent is added to another one.
var ErrAlreadyAttached = errors.New("descriptor already has a parent")

// ErrInvalidChildID is returned when a child's unique id is not its parent's id plus one segment.
var ErrInvalidChildID = errors.New("child unique id does not extend parent unique id")

// ErrRootRemoval is returned when removing the root of a hierarchy.
var ErrRootRemoval = errors.New("cannot remove the root of a hierarchy")

// ConfigurationError reports a malformed address, a registration problem or an
// unresolvable parameter. It aborts only the affected node.
type ConfigurationError struct {
	Op      string
	Subject string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Subject, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// NewConfigurationError wraps err as a ConfigurationError.
func NewConfigurationError(op, subject string, err error) *ConfigurationError {
	return &ConfigurationError{Op: op, Subject: subject, Err: err}
}

// AssertionFailure is raised by a unit of work whose expectation does not hold.
type AssertionFailure struct {
	Message  string
	Expected any
	Actual   any
}

func (e *AssertionFailure) Error() string {
	if e.Expected == nil && e.Actual == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: expected <%v> but was <%v>", e.Message, e.Expected, e.Actual)
}

func (e *AssertionFailure) Is(target error) bool { return target == ErrAssertion }

// AssumptionFailure marks a unit whose preconditions do not hold.
type AssumptionFailure struct {
	Message string
}

func (e *AssumptionFailure) Error() string {
	return "assumption not met: " + e.Message
}

func (e *AssumptionFailure) Is(target error) bool { return target == ErrAssumption }

// BehaviorFailure wraps anything else raised by a hook or a unit of work,
// including recovered panics.
type BehaviorFailure struct {
	Phase string
	Err   error
	Panic bool
}

func (e *BehaviorFailure) Error() string {
	if e.Panic {
		return fmt.Sprintf("%s panicked: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *BehaviorFailure) Unwrap() error { return e.Err }

// FatalError terminates the run. It is never passed to exception handlers.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return "fatal: " + e.Err.Error()
}

func (e *FatalError) Unwrap() error { return e.Err }

func (e *FatalError) Is(target error) bool { return target == ErrFatal }

// Fail returns an AssertionFailure with the given message.
func Fail(format string, args ...any) error {
	return &AssertionFailure{Message: fmt.Sprintf(format, args...)}
}

// Abort returns an AssumptionFailure with the given message.
func Abort(format string, args ...any) error {
	return &AssumptionFailure{Message: fmt.Sprintf(format, args...)}
}

// IsAssumption reports whether err aborts rather than fails a node.
func IsAssumption(err error) bool {
	return errors.Is(err, ErrAssumption)
}

// IsFatal reports whether err must terminate the run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// ErrRunNotFound is returned when a run ID cannot be found in a result store.
var ErrRunNotFound = errors.New("run not found")
