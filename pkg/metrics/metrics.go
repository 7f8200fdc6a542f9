// Package metrics records fetch and install activity in a private
// Prometheus registry. A run's metrics can be written out in the node
// exporter textfile format so cron-driven updates are observable.
//
// Every method is safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bitey"

// Result label values.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

type Metrics struct {
	registry *prometheus.Registry

	fetchesTotal    *prometheus.CounterVec
	installsTotal   *prometheus.CounterVec
	installDuration prometheus.Histogram
	archiveBytes    prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		fetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Remote documents fetched, by stage and result",
		}, []string{"stage", "result"}),

		installsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "installs_total",
			Help:      "Package installs attempted, by result",
		}, []string{"result"}),

		installDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "install_duration_seconds",
			Help:      "Wall time of a single package install",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),

		archiveBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_bytes_total",
			Help:      "Bytes of package archives downloaded",
		}),
	}
}

func (m *Metrics) ObserveFetch(stage string, err error) {
	if m == nil {
		return
	}
	m.fetchesTotal.WithLabelValues(stage, resultOf(err)).Inc()
}

func (m *Metrics) ObserveInstall(start time.Time, err error) {
	if m == nil {
		return
	}
	m.installsTotal.WithLabelValues(resultOf(err)).Inc()
	m.installDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveSkip() {
	if m == nil {
		return
	}
	m.installsTotal.WithLabelValues(ResultSkipped).Inc()
}

func (m *Metrics) AddArchiveBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.archiveBytes.Add(float64(n))
}

// Gatherer exposes the registry, mainly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// WriteTextfile writes the current metrics to path, replacing it atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

func resultOf(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
