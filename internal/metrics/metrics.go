// Package metrics exposes Prometheus instrumentation for dispatchers, the
// notification service and the module bridge. A nil *Metrics is valid and
// records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rnhost"

// Metrics holds the host's collectors.
type Metrics struct {
	tasks           *prometheus.CounterVec
	taskPanics      *prometheus.CounterVec
	tasksDropped    *prometheus.CounterVec
	syncWait        *prometheus.HistogramVec
	methodCalls     *prometheus.CounterVec
	methodFailures  *prometheus.CounterVec
	resultsDropped  *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	handlerFailures *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg skips
// registration, which is convenient in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "tasks_total",
			Help:      "Tasks executed, by dispatcher.",
		}, []string{"dispatcher"}),
		taskPanics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "task_panics_total",
			Help:      "Tasks that panicked, by dispatcher.",
		}, []string{"dispatcher"}),
		tasksDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "tasks_dropped_total",
			Help:      "Tasks posted after shutdown, by dispatcher.",
		}, []string{"dispatcher"}),
		syncWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "sync_wait_seconds",
			Help:      "Time callers spent blocked in a synchronous rendezvous, by target dispatcher.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"dispatcher"}),
		methodCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "module",
			Name:      "method_calls_total",
			Help:      "Native module method invocations.",
		}, []string{"module", "method", "kind"}),
		methodFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "module",
			Name:      "method_failures_total",
			Help:      "Native module method invocations that panicked.",
		}, []string{"module", "method"}),
		resultsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "module",
			Name:      "results_dropped_total",
			Help:      "Resolve or reject calls dropped because the call had already concluded.",
		}, []string{"module", "method"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Notifications sent, by name.",
		}, []string{"name"}),
		handlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "handler_panics_total",
			Help:      "Notification handlers that panicked, by name.",
		}, []string{"name"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.tasks,
			m.taskPanics,
			m.tasksDropped,
			m.syncWait,
			m.methodCalls,
			m.methodFailures,
			m.resultsDropped,
			m.notifications,
			m.handlerFailures,
		)
	}
	return m
}

func (m *Metrics) TaskRun(dispatcher string) {
	if m != nil {
		m.tasks.WithLabelValues(dispatcher).Inc()
	}
}

func (m *Metrics) TaskPanicked(dispatcher string) {
	if m != nil {
		m.taskPanics.WithLabelValues(dispatcher).Inc()
	}
}

func (m *Metrics) TaskDropped(dispatcher string) {
	if m != nil {
		m.tasksDropped.WithLabelValues(dispatcher).Inc()
	}
}

func (m *Metrics) SyncWait(dispatcher string, d time.Duration) {
	if m != nil {
		m.syncWait.WithLabelValues(dispatcher).Observe(d.Seconds())
	}
}

func (m *Metrics) MethodCalled(module, method, kind string) {
	if m != nil {
		m.methodCalls.WithLabelValues(module, method, kind).Inc()
	}
}

func (m *Metrics) MethodFailed(module, method string) {
	if m != nil {
		m.methodFailures.WithLabelValues(module, method).Inc()
	}
}

func (m *Metrics) ResultDropped(module, method string) {
	if m != nil {
		m.resultsDropped.WithLabelValues(module, method).Inc()
	}
}

func (m *Metrics) NotificationSent(name string) {
	if m != nil {
		m.notifications.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) HandlerPanicked(name string) {
	if m != nil {
		m.handlerFailures.WithLabelValues(name).Inc()
	}
}
