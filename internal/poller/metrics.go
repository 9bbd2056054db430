package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the poller's Prometheus counters. A single instance is
// registered on the default registry at startup; tests construct their own
// unregistered set via NewMetrics(nil).
type Metrics struct {
	Scans       prometheus.Counter
	Transitions *prometheus.CounterVec
	Refunds     prometheus.Counter
	Delivered   prometheus.Counter
	TaskErrors  prometheus.Counter
}

// NewMetrics builds the counter set. With a nil registerer the counters are
// created unregistered, which keeps parallel tests from fighting over the
// global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Scans: factory.NewCounter(prometheus.CounterOpts{
			Name: "sunobot_poll_scans_total",
			Help: "Completed poll scan ticks.",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sunobot_task_transitions_total",
			Help: "Task state-machine transitions by resulting status.",
		}, []string{"status"}),
		Refunds: factory.NewCounter(prometheus.CounterOpts{
			Name: "sunobot_refunds_total",
			Help: "Credit refunds issued for failed or timed out tasks.",
		}),
		Delivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "sunobot_tracks_delivered_total",
			Help: "Audio tracks successfully delivered to chats.",
		}),
		TaskErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "sunobot_poll_task_errors_total",
			Help: "Transient provider errors observed while polling tasks.",
		}),
	}
}
