package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/ports"
)

const statusSkipped = "skipped"

// Metrics holds the Prometheus collectors updated by metrics listeners.
type Metrics struct {
	nodes    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	running  prometheus.Gauge
	dynamic  prometheus.Counter
	reports  prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		nodes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "junit5_nodes_total",
				Help: "Finished or skipped nodes by descriptor type and status",
			},
			[]string{"type", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "junit5_test_duration_seconds",
				Help:    "Duration of test executions",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"status"},
		),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "junit5_tests_running",
			Help: "Tests currently executing",
		}),
		dynamic: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "junit5_dynamic_tests_registered_total",
			Help: "Dynamic tests and containers registered during execution",
		}),
		reports: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "junit5_report_entries_total",
			Help: "Report entries published",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.nodes, m.duration, m.running, m.dynamic, m.reports} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

// Listener returns a listener updating m for one run.
func (m *Metrics) Listener() ports.ExecutionListener {
	return &metricsListener{metrics: m, times: newStartTimes(nil)}
}

type metricsListener struct {
	metrics *Metrics
	times   *startTimes
}

func (l *metricsListener) ExecutionStarted(d *domain.Descriptor) {
	l.times.start(d)
	if d.IsTest() {
		l.metrics.running.Inc()
	}
}

func (l *metricsListener) ExecutionSkipped(d *domain.Descriptor, _ string) {
	l.metrics.nodes.WithLabelValues(d.Type().String(), statusSkipped).Inc()
}

func (l *metricsListener) ExecutionFinished(d *domain.Descriptor, result domain.Result) {
	status := result.Status.String()
	elapsed := l.times.finish(d)
	l.metrics.nodes.WithLabelValues(d.Type().String(), status).Inc()
	if d.IsTest() {
		l.metrics.running.Dec()
		l.metrics.duration.WithLabelValues(status).Observe(elapsed.Seconds())
	}
}

func (l *metricsListener) DynamicTestRegistered(*domain.Descriptor) {
	l.metrics.dynamic.Inc()
}

func (l *metricsListener) ReportingEntryPublished(*domain.Descriptor, domain.ReportEntry) {
	l.metrics.reports.Inc()
}
