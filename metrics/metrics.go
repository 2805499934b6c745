// Package metrics holds the prometheus collectors of a server.
package metrics

import (
	"strconv"
	"time"

	"github.com/indigo-web/loom/http/status"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "loom"

// Metrics is safe to use on a nil receiver, in which case nothing is recorded.
type Metrics struct {
	ActiveConnections   prometheus.Gauge
	AcceptedConnections prometheus.Counter
	RejectedConnections prometheus.Counter
	QueuedTasks         prometheus.Gauge
	ExecutedTasks       prometheus.Counter
	Requests            *prometheus.CounterVec
	RequestDuration     prometheus.Histogram
	ParseErrors         *prometheus.CounterVec
}

// New registers the collectors on the registerer. A nil registerer leaves them
// unregistered, which is useful for tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of connections currently served",
		}),
		AcceptedConnections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Total number of accepted connections",
		}),
		RejectedConnections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rejected_total",
			Help:      "Total number of connections refused while shutting down",
		}),
		QueuedTasks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queued_tasks",
			Help:      "Number of tasks waiting for a worker",
		}),
		ExecutedTasks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_executed_total",
			Help:      "Total number of tasks executed by workers",
		}),
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of answered requests",
		}, []string{"method", "code"}),
		RequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from the complete request to the written response",
			Buckets:   prometheus.DefBuckets,
		}),
		ParseErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Total number of requests rejected as malformed",
		}, []string{"code"}),
	}
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.ActiveConnections.Inc()
		m.AcceptedConnections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.ActiveConnections.Dec()
	}
}

func (m *Metrics) ConnectionRejected() {
	if m != nil {
		m.RejectedConnections.Inc()
	}
}

func (m *Metrics) TaskQueued() {
	if m != nil {
		m.QueuedTasks.Inc()
	}
}

func (m *Metrics) TaskStarted() {
	if m != nil {
		m.QueuedTasks.Dec()
		m.ExecutedTasks.Inc()
	}
}

// Request records the answered request along with the time it took.
func (m *Metrics) Request(method string, code status.Code, took time.Duration) {
	if m != nil {
		m.Requests.WithLabelValues(method, strconv.Itoa(int(code))).Inc()
		m.RequestDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) ParseError(code status.Code) {
	if m != nil {
		m.ParseErrors.WithLabelValues(strconv.Itoa(int(code))).Inc()
	}
}
