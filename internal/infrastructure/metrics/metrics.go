// Package metrics exposes workflow counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implements port.Metrics on its own registry
type Recorder struct {
	registry *prometheus.Registry

	transitions    *prometheus.CounterVec
	conflicts      prometheus.Counter
	reminders      prometheus.Counter
	notifications  *prometheus.CounterVec
	dispatchErrors prometheus.Counter
}

// NewRecorder registers the workflow counters plus the Go runtime collectors
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "expense_workflow_transitions_total",
			Help: "Committed workflow transitions by action",
		}, []string{"action"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "expense_workflow_conflicts_total",
			Help: "Transitions that lost an optimistic version check",
		}),
		reminders: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "expense_reminders_sent_total",
			Help: "Overdue reminders sent",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "expense_notifications_created_total",
			Help: "Notifications created by type",
		}, []string{"type"}),
		dispatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "expense_event_dispatch_failures_total",
			Help: "Workflow events whose fan-out failed and awaits relay",
		}),
	}

	r.registry.MustRegister(
		r.transitions,
		r.conflicts,
		r.reminders,
		r.notifications,
		r.dispatchErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) Transition(action string) {
	r.transitions.WithLabelValues(action).Inc()
}

func (r *Recorder) Conflict() {
	r.conflicts.Inc()
}

func (r *Recorder) ReminderSent() {
	r.reminders.Inc()
}

func (r *Recorder) NotificationCreated(notificationType string) {
	r.notifications.WithLabelValues(notificationType).Inc()
}

func (r *Recorder) DispatchFailed() {
	r.dispatchErrors.Inc()
}

// Handler serves the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

var _ port.Metrics = (*Recorder)(nil)
