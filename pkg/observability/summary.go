package observability

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/tuchang/junit5/pkg/domain"
)

// Failure is a failed node of a run.
type Failure struct {
	UniqueID    string `json:"unique_id"`
	DisplayName string `json:"display_name"`
	Test        bool   `json:"test"`
	Message     string `json:"message"`
}

// Summary counts the outcome of a run. Nodes of type container-and-test count
// in both groups.
type Summary struct {
	TimeStarted  time.Time `json:"time_started"`
	TimeFinished time.Time `json:"time_finished"`

	ContainersFound     int `json:"containers_found"`
	ContainersStarted   int `json:"containers_started"`
	ContainersSkipped   int `json:"containers_skipped"`
	ContainersAborted   int `json:"containers_aborted"`
	ContainersSucceeded int `json:"containers_succeeded"`
	ContainersFailed    int `json:"containers_failed"`

	TestsFound     int `json:"tests_found"`
	TestsStarted   int `json:"tests_started"`
	TestsSkipped   int `json:"tests_skipped"`
	TestsAborted   int `json:"tests_aborted"`
	TestsSucceeded int `json:"tests_succeeded"`
	TestsFailed    int `json:"tests_failed"`

	Failures []Failure `json:"failures,omitempty"`
}

// TotalFailureCount counts failed tests and containers.
func (s Summary) TotalFailureCount() int {
	return s.TestsFailed + s.ContainersFailed
}

// Duration is the wall time of the run.
func (s Summary) Duration() time.Duration {
	if s.TimeFinished.IsZero() {
		return 0
	}
	return s.TimeFinished.Sub(s.TimeStarted)
}

type summaryRow struct {
	label             string
	containers, tests int
}

func (s Summary) rows() []summaryRow {
	return []summaryRow{
		{"found", s.ContainersFound, s.TestsFound},
		{"skipped", s.ContainersSkipped, s.TestsSkipped},
		{"started", s.ContainersStarted, s.TestsStarted},
		{"aborted", s.ContainersAborted, s.TestsAborted},
		{"successful", s.ContainersSucceeded, s.TestsSucceeded},
		{"failed", s.ContainersFailed, s.TestsFailed},
	}
}

// Markdown renders the summary as a Markdown document.
func (s Summary) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Test run finished after %s\n\n", s.Duration().Round(time.Millisecond))
	b.WriteString("| | containers | tests |\n|---|---:|---:|\n")
	for _, r := range s.rows() {
		fmt.Fprintf(&b, "| %s | %d | %d |\n", r.label, r.containers, r.tests)
	}
	if len(s.Failures) > 0 {
		b.WriteString("\n## Failures\n\n")
		for _, f := range s.Failures {
			fmt.Fprintf(&b, "- **%s** `%s`\n  %s\n", f.DisplayName, f.UniqueID, f.Message)
		}
	}
	return b.String()
}

// PrintTo writes a plain-text summary to w.
func (s Summary) PrintTo(w io.Writer) {
	fmt.Fprintf(w, "Test run finished after %s\n", s.Duration().Round(time.Millisecond))
	for _, r := range s.rows() {
		fmt.Fprintf(w, "[%6d containers %-10s ]  [%6d tests %-10s ]\n", r.containers, r.label, r.tests, r.label)
	}
	for _, f := range s.Failures {
		fmt.Fprintf(w, "  %s => %s\n", f.UniqueID, f.Message)
	}
}

// SummaryListener builds a Summary from the events of a run.
type SummaryListener struct {
	mu      sync.Mutex
	summary Summary
	now     func() time.Time
}

// NewSummaryListener counts the nodes of the given plan roots as found and
// starts the clock.
func NewSummaryListener(now func() time.Time, roots ...*domain.Descriptor) *SummaryListener {
	if now == nil {
		now = time.Now
	}
	l := &SummaryListener{now: now}
	l.summary.TimeStarted = now()
	for _, root := range roots {
		_ = root.Walk(func(d *domain.Descriptor) error {
			l.found(d)
			return nil
		})
	}
	return l
}

func (l *SummaryListener) found(d *domain.Descriptor) {
	if d.IsContainer() {
		l.summary.ContainersFound++
	}
	if d.IsTest() {
		l.summary.TestsFound++
	}
}

// Summary returns the counts so far and stops the clock.
func (l *SummaryListener) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.summary
	s.TimeFinished = l.now()
	s.Failures = append([]Failure(nil), l.summary.Failures...)
	return s
}

func (l *SummaryListener) ExecutionStarted(d *domain.Descriptor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d.IsContainer() {
		l.summary.ContainersStarted++
	}
	if d.IsTest() {
		l.summary.TestsStarted++
	}
}

func (l *SummaryListener) ExecutionSkipped(d *domain.Descriptor, _ string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d.IsContainer() {
		l.summary.ContainersSkipped++
	}
	if d.IsTest() {
		l.summary.TestsSkipped++
	}
}

func (l *SummaryListener) ExecutionFinished(d *domain.Descriptor, result domain.Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := func(containers, tests *int) {
		if d.IsContainer() {
			*containers++
		}
		if d.IsTest() {
			*tests++
		}
	}
	switch result.Status {
	case domain.StatusSuccessful:
		count(&l.summary.ContainersSucceeded, &l.summary.TestsSucceeded)
	case domain.StatusAborted:
		count(&l.summary.ContainersAborted, &l.summary.TestsAborted)
	case domain.StatusFailed:
		count(&l.summary.ContainersFailed, &l.summary.TestsFailed)
		l.summary.Failures = append(l.summary.Failures, Failure{
			UniqueID:    d.UniqueID().String(),
			DisplayName: d.DisplayName(),
			Test:        d.IsTest(),
			Message:     failureMessage(result),
		})
	}
}

func (l *SummaryListener) DynamicTestRegistered(d *domain.Descriptor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.found(d)
}

func (l *SummaryListener) ReportingEntryPublished(*domain.Descriptor, domain.ReportEntry) {}

func failureMessage(result domain.Result) string {
	failures := result.Failures()
	msgs := make([]string, len(failures))
	for i, err := range failures {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; suppressed: ")
}
