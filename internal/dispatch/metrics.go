package dispatch

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the dispatcher.
// Construct at most one per process; pass nil to New to disable.
type Metrics struct {
	TickDuration     prometheus.Histogram
	TasksExecuted    *prometheus.CounterVec
	TasksExpired     prometheus.Counter
	TasksDropped     prometheus.Counter
	ScheduledPending prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_ms",
			Help:      "Wall time of one dispatcher tick in milliseconds.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 250, 500},
		}),
		TasksExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_executed_total",
			Help:      "Tasks executed by stage.",
		}, []string{"stage"}),
		TasksExpired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_expired_total",
			Help:      "Serial tasks dropped because their submission window elapsed.",
		}),
		TasksDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_dropped_total",
			Help:      "Scheduled tasks discarded at fire time after cancellation.",
		}),
		ScheduledPending: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduled_pending",
			Help:      "Scheduled tasks currently registered.",
		}),
	}
}

// MetricsHandler returns the handler the host server mounts to expose the
// instruments.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
