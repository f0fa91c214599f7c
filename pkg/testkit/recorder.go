// Package testkit records execution events for assertions in tests of engines,
// extensions and host adapters.
package testkit

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/ports"
)

// EventType identifies a listener callback.
type EventType string

const (
	EventStarted   EventType = "started"
	EventSkipped   EventType = "skipped"
	EventFinished  EventType = "finished"
	EventDynamic   EventType = "dynamic"
	EventReporting EventType = "reporting"
)

// Event is one recorded listener call.
type Event struct {
	Type       EventType
	Descriptor *domain.Descriptor
	Reason     string             // Skipped
	Result     domain.Result      // Finished
	Entry      domain.ReportEntry // Reporting
}

// String renders the event as "type name" with the status of finished events,
// e.g. "finished test1 failed".
func (e Event) String() string {
	s := string(e.Type) + " " + e.Descriptor.DisplayName()
	if e.Type == EventFinished {
		s += " " + e.Result.Status.String()
	}
	return s
}

// EventRecorder is an ExecutionListener that keeps every event in arrival order.
type EventRecorder struct {
	mu     sync.Mutex
	events []Event
}

var _ ports.ExecutionListener = (*EventRecorder)(nil)

// NewEventRecorder returns an empty recorder.
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

func (r *EventRecorder) add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *EventRecorder) ExecutionStarted(d *domain.Descriptor) {
	r.add(Event{Type: EventStarted, Descriptor: d})
}

func (r *EventRecorder) ExecutionSkipped(d *domain.Descriptor, reason string) {
	r.add(Event{Type: EventSkipped, Descriptor: d, Reason: reason})
}

func (r *EventRecorder) ExecutionFinished(d *domain.Descriptor, result domain.Result) {
	r.add(Event{Type: EventFinished, Descriptor: d, Result: result})
}

func (r *EventRecorder) DynamicTestRegistered(d *domain.Descriptor) {
	r.add(Event{Type: EventDynamic, Descriptor: d})
}

func (r *EventRecorder) ReportingEntryPublished(d *domain.Descriptor, entry domain.ReportEntry) {
	r.add(Event{Type: EventReporting, Descriptor: d, Entry: entry})
}

// Events returns a snapshot of all events.
func (r *EventRecorder) Events() Events {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(Events, len(r.events))
	copy(out, r.events)
	return out
}

// Tests returns the events of test descriptors.
func (r *EventRecorder) Tests() Events {
	return r.Events().Filter(func(e Event) bool { return e.Descriptor.IsTest() })
}

// Containers returns the events of container descriptors, including the root.
func (r *EventRecorder) Containers() Events {
	return r.Events().Filter(func(e Event) bool { return e.Descriptor.IsContainer() })
}

// Events is an ordered list of recorded events.
type Events []Event

// Filter returns the events matching keep.
func (es Events) Filter(keep func(Event) bool) Events {
	var out Events
	for _, e := range es {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func (es Events) OfType(t EventType) Events {
	return es.Filter(func(e Event) bool { return e.Type == t })
}

func (es Events) Started() Events  { return es.OfType(EventStarted) }
func (es Events) Skipped() Events  { return es.OfType(EventSkipped) }
func (es Events) Finished() Events { return es.OfType(EventFinished) }
func (es Events) Dynamic() Events  { return es.OfType(EventDynamic) }

func (es Events) WithStatus(s domain.Status) Events {
	return es.Finished().Filter(func(e Event) bool { return e.Result.Status == s })
}

func (es Events) Succeeded() Events { return es.WithStatus(domain.StatusSuccessful) }
func (es Events) Aborted() Events   { return es.WithStatus(domain.StatusAborted) }
func (es Events) Failed() Events    { return es.WithStatus(domain.StatusFailed) }

// Named returns the events of descriptors with the given display name.
func (es Events) Named(name string) Events {
	return es.Filter(func(e Event) bool { return e.Descriptor.DisplayName() == name })
}

// Strings renders every event with Event.String.
func (es Events) Strings() []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.String()
	}
	return out
}

// Result returns the finished result recorded for the named descriptor.
func (es Events) Result(name string) (domain.Result, bool) {
	for _, e := range es.Finished().Named(name) {
		return e.Result, true
	}
	return domain.Result{}, false
}

// Stats counts events per kind.
type Stats struct {
	Started, Skipped, Succeeded, Aborted, Failed, Finished, Dynamic int
}

func (s Stats) String() string {
	return fmt.Sprintf("started=%d skipped=%d succeeded=%d aborted=%d failed=%d finished=%d dynamic=%d",
		s.Started, s.Skipped, s.Succeeded, s.Aborted, s.Failed, s.Finished, s.Dynamic)
}

// Stats summarizes es.
func (es Events) Stats() Stats {
	return Stats{
		Started:   len(es.Started()),
		Skipped:   len(es.Skipped()),
		Succeeded: len(es.Succeeded()),
		Aborted:   len(es.Aborted()),
		Failed:    len(es.Failed()),
		Finished:  len(es.Finished()),
		Dynamic:   len(es.Dynamic()),
	}
}

// Log is a concurrency-safe call log for hooks under test.
type Log struct {
	mu      sync.Mutex
	entries []string
}

// Add appends an entry formatted with fmt.Sprintf.
func (l *Log) Add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

// Entries returns a copy of the log.
func (l *Log) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) String() string {
	return strings.Join(l.Entries(), ",")
}
