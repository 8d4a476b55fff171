// Package observability exposes Prometheus metrics for the dispatch engine
// and its websocket transport.
package observability

import (
	"context"
	"errors"
	"net/http"

	"github.com/jatin-dot-py/matrx-microservice-template/internal/task"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// callbackService labels tasks that run a callback instead of a service.
const callbackService = "callback"

// Metrics groups all Prometheus instruments used by the service. It
// implements task.Observer.
type Metrics struct {
	TasksSubmitted  *prometheus.CounterVec
	TasksRejected   *prometheus.CounterVec
	TasksRequeued   *prometheus.CounterVec
	TasksFinished   *prometheus.CounterVec
	TaskDuration    *prometheus.HistogramVec
	WSConnections   prometheus.Gauge
	WSMessages      *prometheus.CounterVec
	SessionsExpired prometheus.Counter

	registry *prometheus.Registry
}

var _ task.Observer = (*Metrics)(nil)

// NewMetrics registers the instruments on a fresh registry that also
// carries the Go and process collectors.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := newMetrics(reg, namespace)
	m.registry = reg
	return m
}

func newMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TasksSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_submitted_total",
			Help:      "Tasks accepted into a queue, by queue and service.",
		}, []string{"queue", "service"}),
		TasksRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_rejected_total",
			Help:      "Submissions refused, by queue and reason.",
		}, []string{"queue", "reason"}),
		TasksRequeued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_requeued_total",
			Help:      "Tasks handed back by a worker of the wrong partition.",
		}, []string{"service"}),
		TasksFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "Dequeued tasks by service and outcome.",
		}, []string{"service", "outcome"}),
		TaskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Handler execution time.",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"service"}),
		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open websocket connections.",
		}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket frames by direction and event type.",
		}, []string{"direction", "type"}),
		SessionsExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_expired_total",
			Help:      "User sessions ended by inactivity.",
		}),
	}
}

// RegisterRunnerGauges exposes queue depths and in-flight counts read from
// stats at scrape time.
func (m *Metrics) RegisterRunnerGauges(namespace string, stats func() task.Stats) {
	if m.registry == nil {
		return
	}
	factory := promauto.With(m.registry)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "queue_depth",
		Help:        "Tasks waiting to be dequeued, by queue.",
		ConstLabels: prometheus.Labels{"queue": string(task.QueueInteractive)},
	}, func() float64 { return float64(stats().Interactive) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "queue_depth",
		Help:        "Tasks waiting to be dequeued, by queue.",
		ConstLabels: prometheus.Labels{"queue": string(task.QueueBackground)},
	}, func() float64 { return float64(stats().Background) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tasks_in_flight",
		Help:      "Admitted tasks that have not finished, across all users.",
	}, func() float64 {
		total := 0
		for _, n := range stats().InFlight {
			total += n
		}
		return float64(total)
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TaskSubmitted implements task.Observer.
func (m *Metrics) TaskSubmitted(t *task.Task) {
	m.TasksSubmitted.WithLabelValues(string(t.Queue()), serviceLabel(t)).Inc()
}

// TaskRejected implements task.Observer.
func (m *Metrics) TaskRejected(_ string, queue task.QueueName, err error) {
	m.TasksRejected.WithLabelValues(string(queue), rejectReason(err)).Inc()
}

// TaskRequeued implements task.Observer.
func (m *Metrics) TaskRequeued(t *task.Task) {
	m.TasksRequeued.WithLabelValues(serviceLabel(t)).Inc()
}

// TaskFinished implements task.Observer.
func (m *Metrics) TaskFinished(_ context.Context, rec task.Record) {
	service := serviceLabel(rec.Task)
	m.TasksFinished.WithLabelValues(service, string(rec.Outcome)).Inc()
	if rec.Outcome == task.OutcomeSucceeded || rec.Outcome == task.OutcomeFailed {
		m.TaskDuration.WithLabelValues(service).Observe(rec.Duration().Seconds())
	}
}

// ConnectionOpened records a new websocket connection.
func (m *Metrics) ConnectionOpened() { m.WSConnections.Inc() }

// ConnectionClosed records a closed websocket connection.
func (m *Metrics) ConnectionClosed() { m.WSConnections.Dec() }

// MessageHandled counts a websocket frame.
func (m *Metrics) MessageHandled(direction, eventType string) {
	m.WSMessages.WithLabelValues(direction, eventType).Inc()
}

func serviceLabel(t *task.Task) string {
	if t == nil || t.ServiceName == "" {
		return callbackService
	}
	return t.ServiceName
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, task.ErrQuotaExceeded):
		return "quota"
	case errors.Is(err, task.ErrQueueShutdown):
		return "shutdown"
	case errors.Is(err, task.ErrInvalidTask):
		return "invalid"
	default:
		return "other"
	}
}
