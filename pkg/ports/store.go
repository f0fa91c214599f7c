package ports

import (
	"context"
	"time"
)

// ResultRecord is the persisted outcome of one node of a run.
type ResultRecord struct {
	UniqueID    string        `json:"unique_id" cbor:"1,keyasint"`
	DisplayName string        `json:"display_name" cbor:"2,keyasint"`
	Test        bool          `json:"test" cbor:"3,keyasint"`
	Status      string        `json:"status" cbor:"4,keyasint"` // successful, aborted, failed or skipped
	Reason      string        `json:"reason,omitempty" cbor:"5,keyasint,omitempty"`
	Failures    []string      `json:"failures,omitempty" cbor:"6,keyasint,omitempty"`
	Duration    time.Duration `json:"duration" cbor:"7,keyasint"`
	FinishedAt  time.Time     `json:"finished_at" cbor:"8,keyasint"`
}

// ResultStore persists results per run.
type ResultStore interface {
	// Save appends rec to the results of runID.
	Save(ctx context.Context, runID string, rec ResultRecord) error

	// List returns the results of runID in the order they were saved.
	// Returns domain.ErrRunNotFound if the run does not exist.
	List(ctx context.Context, runID string) ([]ResultRecord, error)

	// Runs returns the known run IDs, most recent first.
	Runs(ctx context.Context) ([]string, error)

	// Delete removes every result of runID.
	Delete(ctx context.Context, runID string) error
}

// UnlockFunc releases a lock obtained from a Locker.
type UnlockFunc func(ctx context.Context) error

// Locker serializes access to a key, e.g. a plan being executed.
type Locker interface {
	// Lock blocks until the lock for key is held or ctx is done.
	// The returned UnlockFunc MUST be called to release it.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}

// ScriptEvaluator evaluates a boolean expression against an environment.
type ScriptEvaluator interface {
	Evaluate(ctx context.Context, expression string, env map[string]any) (bool, error)
}
