package runtime

import (
	"sync"

	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/ports"
)

// syncListener serializes calls into a listener that is shared by parallel siblings.
type syncListener struct {
	mu       sync.Mutex
	delegate ports.ExecutionListener
}

func (l *syncListener) ExecutionStarted(d *domain.Descriptor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delegate.ExecutionStarted(d)
}

func (l *syncListener) ExecutionSkipped(d *domain.Descriptor, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delegate.ExecutionSkipped(d, reason)
}

func (l *syncListener) ExecutionFinished(d *domain.Descriptor, result domain.Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delegate.ExecutionFinished(d, result)
}

func (l *syncListener) DynamicTestRegistered(d *domain.Descriptor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delegate.DynamicTestRegistered(d)
}

func (l *syncListener) ReportingEntryPublished(d *domain.Descriptor, entry domain.ReportEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delegate.ReportingEntryPublished(d, entry)
}
