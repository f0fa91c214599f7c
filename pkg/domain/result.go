package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Status is the terminal state of a started node.
type Status int

const (
	StatusSuccessful Status = iota
	StatusAborted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccessful:
		return "successful"
	case StatusAborted:
		return "aborted"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "successful":
		return StatusSuccessful, nil
	case "aborted":
		return StatusAborted, nil
	case "failed":
		return StatusFailed, nil
	}
	return 0, fmt.Errorf("unknown status %q", s)
}

// Result is the aggregated outcome reported when a node finishes.
type Result struct {
	Status     Status
	Cause      error   // Primary failure, nil when successful
	Suppressed []error // Failures of after-hooks
}

// Successful returns a successful result.
func Successful() Result {
	return Result{Status: StatusSuccessful}
}

// Aborted returns an aborted result caused by err.
func Aborted(err error) Result {
	return Result{Status: StatusAborted, Cause: err}
}

// Failed returns a failed result caused by err.
func Failed(err error) Result {
	return Result{Status: StatusFailed, Cause: err}
}

// Failures returns the primary cause followed by the suppressed failures.
func (r Result) Failures() []error {
	var out []error
	if r.Cause != nil {
		out = append(out, r.Cause)
	}
	return append(out, r.Suppressed...)
}

// Err joins every failure of r, or returns nil.
func (r Result) Err() error {
	return errors.Join(r.Failures()...)
}

func (r Result) String() string {
	if r.Cause == nil && len(r.Suppressed) == 0 {
		return r.Status.String()
	}
	return fmt.Sprintf("%s: %v", r.Status, r.Err())
}

// KeyValue is one entry of a ReportEntry.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ReportEntry is an ordered map of diagnostic values published by a node.
type ReportEntry struct {
	Timestamp time.Time
	pairs     []KeyValue
}

// NewReportEntry builds an entry from alternating keys and values.
// Setting a key twice keeps its first position and the last value.
func NewReportEntry(ts time.Time, kv ...string) (ReportEntry, error) {
	if len(kv)%2 != 0 {
		return ReportEntry{}, NewConfigurationError("report entry", "", fmt.Errorf("odd number of key/value arguments"))
	}
	e := ReportEntry{Timestamp: ts}
	for i := 0; i < len(kv); i += 2 {
		if err := e.set(kv[i], kv[i+1]); err != nil {
			return ReportEntry{}, err
		}
	}
	return e, nil
}

func (e *ReportEntry) set(key, value string) error {
	if key == "" {
		return NewConfigurationError("report entry", "", fmt.Errorf("key must not be blank"))
	}
	for i := range e.pairs {
		if e.pairs[i].Key == key {
			e.pairs[i].Value = value
			return nil
		}
	}
	e.pairs = append(e.pairs, KeyValue{Key: key, Value: value})
	return nil
}

// Keys returns the keys in insertion order.
func (e ReportEntry) Keys() []string {
	keys := make([]string, len(e.pairs))
	for i, p := range e.pairs {
		keys[i] = p.Key
	}
	return keys
}

func (e ReportEntry) Get(key string) (string, bool) {
	for _, p := range e.pairs {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Pairs returns a copy of the entries in insertion order.
func (e ReportEntry) Pairs() []KeyValue {
	return slices.Clone(e.pairs)
}

// MarshalJSON renders the entry as an object whose keys keep their order.
func (e ReportEntry) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"timestamp":`)
	ts, err := json.Marshal(e.Timestamp)
	if err != nil {
		return nil, err
	}
	buf.Write(ts)
	buf.WriteString(`,"values":{`)
	for i, p := range e.pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(p.Key)
		v, _ := json.Marshal(p.Value)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}
