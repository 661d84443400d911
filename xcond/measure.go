package xcond

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Measure counts condition-variable traffic of this process. Opt-in:
// notifications by kind (including no-op notifies with no waiters) and
// wait outcomes.
type Measure struct {
	notifications *prometheus.CounterVec
	waits         *prometheus.CounterVec
}

type MeasureOptions struct {
	Namespace string
	Subsystem string
}

var measure *Measure

// EnableMeasure registers the metrics with the default prometheus registry
// and turns counting on for every Cond in the process. Call at most once.
func EnableMeasure(config MeasureOptions) *Measure {
	notifications := promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "cond_notifications_total",
			Help:      "Total number of condition variable notifications",
		},
		[]string{"kind", "result"},
	)

	waits := promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "cond_waits_total",
			Help:      "Total number of condition variable waits",
		},
		[]string{"result"},
	)

	measure = &Measure{
		notifications: notifications,
		waits:         waits,
	}
	return measure
}

func measureNotify(cmd int32, noop bool) {
	if measure == nil {
		return
	}

	kind := "notify_one"
	if cmd == cmdNotifyAll {
		kind = "notify_all"
	}
	result := "delivered"
	if noop {
		result = "noop"
	}
	measure.notifications.WithLabelValues(kind, result).Inc()
}

func measureWait(timedOut bool) {
	if measure == nil {
		return
	}

	result := "notified"
	if timedOut {
		result = "timeout"
	}
	measure.waits.WithLabelValues(result).Inc()
}
