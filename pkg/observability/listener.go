package observability

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/ports"
)

// Composite forwards every event to each listener in order.
type Composite []ports.ExecutionListener

// NewComposite drops nil listeners.
func NewComposite(listeners ...ports.ExecutionListener) Composite {
	out := make(Composite, 0, len(listeners))
	for _, l := range listeners {
		if l != nil {
			out = append(out, l)
		}
	}
	return out
}

func (c Composite) ExecutionStarted(d *domain.Descriptor) {
	for _, l := range c {
		l.ExecutionStarted(d)
	}
}

func (c Composite) ExecutionSkipped(d *domain.Descriptor, reason string) {
	for _, l := range c {
		l.ExecutionSkipped(d, reason)
	}
}

func (c Composite) ExecutionFinished(d *domain.Descriptor, result domain.Result) {
	for _, l := range c {
		l.ExecutionFinished(d, result)
	}
}

func (c Composite) DynamicTestRegistered(d *domain.Descriptor) {
	for _, l := range c {
		l.DynamicTestRegistered(d)
	}
}

func (c Composite) ReportingEntryPublished(d *domain.Descriptor, entry domain.ReportEntry) {
	for _, l := range c {
		l.ReportingEntryPublished(d, entry)
	}
}

// startTimes tracks when nodes started so finish events can carry a duration.
type startTimes struct {
	mu    sync.Mutex
	times map[string]time.Time
	now   func() time.Time
}

func newStartTimes(now func() time.Time) *startTimes {
	if now == nil {
		now = time.Now
	}
	return &startTimes{times: make(map[string]time.Time), now: now}
}

func (s *startTimes) start(d *domain.Descriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.times[d.UniqueID().Key()] = s.now()
}

// finish returns the time elapsed since start, or zero if d never started.
func (s *startTimes) finish(d *domain.Descriptor) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := d.UniqueID().Key()
	started, ok := s.times[key]
	if !ok {
		return 0
	}
	delete(s.times, key)
	return s.now().Sub(started)
}

// LoggingListener logs lifecycle events with unique_id, status and duration attributes.
type LoggingListener struct {
	logger *slog.Logger
	times  *startTimes
}

// NewLoggingListener logs to logger, or discards when logger is nil.
func NewLoggingListener(logger *slog.Logger) *LoggingListener {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &LoggingListener{logger: logger, times: newStartTimes(nil)}
}

func (l *LoggingListener) ExecutionStarted(d *domain.Descriptor) {
	l.times.start(d)
	l.logger.Debug("execution started", "unique_id", d.UniqueID().String(), "type", d.Type().String())
}

func (l *LoggingListener) ExecutionSkipped(d *domain.Descriptor, reason string) {
	l.logger.Info("execution skipped", "unique_id", d.UniqueID().String(), "reason", reason)
}

func (l *LoggingListener) ExecutionFinished(d *domain.Descriptor, result domain.Result) {
	attrs := []any{
		"unique_id", d.UniqueID().String(),
		"status", result.Status.String(),
		"duration", l.times.finish(d),
	}
	switch result.Status {
	case domain.StatusFailed:
		l.logger.Warn("execution finished", append(attrs, "error", result.Cause, "suppressed", len(result.Suppressed))...)
	case domain.StatusAborted:
		l.logger.Info("execution finished", append(attrs, "reason", result.Cause)...)
	default:
		l.logger.Info("execution finished", attrs...)
	}
}

func (l *LoggingListener) DynamicTestRegistered(d *domain.Descriptor) {
	l.logger.Debug("dynamic test registered", "unique_id", d.UniqueID().String())
}

func (l *LoggingListener) ReportingEntryPublished(d *domain.Descriptor, entry domain.ReportEntry) {
	attrs := []any{"unique_id", d.UniqueID().String()}
	for _, kv := range entry.Pairs() {
		attrs = append(attrs, slog.String(kv.Key, kv.Value))
	}
	l.logger.Info("report entry", attrs...)
}
