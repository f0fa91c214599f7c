package observability

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/ports"
)

// ResultRecorder saves a ResultRecord for every finished or skipped node of one run.
// Store failures are logged and counted, never propagated into the run.
type ResultRecorder struct {
	ctx    context.Context
	store  ports.ResultStore
	runID  string
	logger *slog.Logger
	times  *startTimes
	now    func() time.Time

	mu     sync.Mutex
	errors int
}

// RecorderOption configures a ResultRecorder.
type RecorderOption func(*ResultRecorder)

func WithRecorderLogger(logger *slog.Logger) RecorderOption {
	return func(r *ResultRecorder) {
		r.logger = logger
	}
}

func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *ResultRecorder) {
		r.now = now
	}
}

// NewResultRecorder records into store under runID. ctx bounds every Save.
func NewResultRecorder(ctx context.Context, store ports.ResultStore, runID string, opts ...RecorderOption) *ResultRecorder {
	r := &ResultRecorder{
		ctx:    ctx,
		store:  store,
		runID:  runID,
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.times = newStartTimes(r.now)
	return r
}

// Errors returns how many records could not be saved.
func (r *ResultRecorder) Errors() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors
}

func (r *ResultRecorder) save(rec ports.ResultRecord) {
	if err := r.store.Save(context.WithoutCancel(r.ctx), r.runID, rec); err != nil {
		r.mu.Lock()
		r.errors++
		r.mu.Unlock()
		r.logger.Error("failed to save result", "run_id", r.runID, "unique_id", rec.UniqueID, "error", err)
	}
}

func (r *ResultRecorder) ExecutionStarted(d *domain.Descriptor) {
	r.times.start(d)
}

func (r *ResultRecorder) ExecutionSkipped(d *domain.Descriptor, reason string) {
	r.save(ports.ResultRecord{
		UniqueID:    d.UniqueID().String(),
		DisplayName: d.DisplayName(),
		Test:        d.IsTest(),
		Status:      statusSkipped,
		Reason:      reason,
		FinishedAt:  r.now(),
	})
}

func (r *ResultRecorder) ExecutionFinished(d *domain.Descriptor, result domain.Result) {
	rec := ports.ResultRecord{
		UniqueID:    d.UniqueID().String(),
		DisplayName: d.DisplayName(),
		Test:        d.IsTest(),
		Status:      result.Status.String(),
		Duration:    r.times.finish(d),
		FinishedAt:  r.now(),
	}
	for _, err := range result.Failures() {
		rec.Failures = append(rec.Failures, err.Error())
	}
	if result.Status == domain.StatusAborted && result.Cause != nil {
		rec.Reason = result.Cause.Error()
		rec.Failures = nil
	}
	r.save(rec)
}

func (r *ResultRecorder) DynamicTestRegistered(*domain.Descriptor) {}

func (r *ResultRecorder) ReportingEntryPublished(*domain.Descriptor, domain.ReportEntry) {}

// FailedTests returns the unique ids of tests that failed in records.
func FailedTests(records []ports.ResultRecord) []string {
	var out []string
	for _, rec := range records {
		if rec.Test && rec.Status == domain.StatusFailed.String() {
			out = append(out, rec.UniqueID)
		}
	}
	return out
}
