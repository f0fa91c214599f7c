package ports

import "github.com/tuchang/junit5/pkg/domain"

// ExecutionListener receives the lifecycle events of a run. Calls for one node are
// ordered; calls for sibling nodes may interleave when siblings run in parallel, but
// the engine never calls a listener concurrently.
type ExecutionListener interface {
	ExecutionStarted(d *domain.Descriptor)
	ExecutionSkipped(d *domain.Descriptor, reason string)
	ExecutionFinished(d *domain.Descriptor, result domain.Result)
	DynamicTestRegistered(d *domain.Descriptor)
	ReportingEntryPublished(d *domain.Descriptor, entry domain.ReportEntry)
}

// NopListener ignores every event. Embed it to implement only some methods.
type NopListener struct{}

func (NopListener) ExecutionStarted(*domain.Descriptor)                            {}
func (NopListener) ExecutionSkipped(*domain.Descriptor, string)                    {}
func (NopListener) ExecutionFinished(*domain.Descriptor, domain.Result)            {}
func (NopListener) DynamicTestRegistered(*domain.Descriptor)                       {}
func (NopListener) ReportingEntryPublished(*domain.Descriptor, domain.ReportEntry) {}
