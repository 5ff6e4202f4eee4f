package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksPulled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crawlerd",
		Subsystem: "worker",
		Name:      "tasks_pulled_total",
		Help:      "Task deliveries pulled from the queue.",
	})

	tasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crawlerd",
		Subsystem: "worker",
		Name:      "tasks_completed_total",
		Help:      "Tasks that produced a terminal report, by status.",
	}, []string{"status"})

	tasksRetried = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crawlerd",
		Subsystem: "worker",
		Name:      "tasks_retried_total",
		Help:      "Deliveries returned to the queue after an engine fault.",
	})

	tasksDeadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crawlerd",
		Subsystem: "worker",
		Name:      "tasks_dead_lettered_total",
		Help:      "Deliveries rejected as invalid and routed to the dead letter subject.",
	})

	taskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "crawlerd",
		Subsystem: "worker",
		Name:      "task_duration_seconds",
		Help:      "Wall time per executed task.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)
