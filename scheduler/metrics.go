package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var taskCreatedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modbot_tasks_created",
	Help: "Number of scheduled tasks created, by kind",
}, []string{"kind"})

var taskFiredCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modbot_tasks_fired",
	Help: "Number of scheduled tasks fired, by kind",
}, []string{"kind"})

var taskErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modbot_task_handler_errors",
	Help: "Number of task handlers that failed or panicked, by kind",
}, []string{"kind"})

var taskCancelledCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modbot_tasks_cancelled",
	Help: "Number of scheduled tasks cancelled, by kind",
}, []string{"kind"})

var taskDiscardedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modbot_tasks_discarded",
	Help: "Number of overdue tasks dropped at startup, by kind",
}, []string{"kind"})

var taskFireDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "modbot_task_handler_sec",
	Help: "Task handler run time",
}, []string{"kind"})

var pendingTasks = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "modbot_tasks_pending",
	Help: "Number of tasks waiting to fire",
})
