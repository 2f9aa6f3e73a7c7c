package moderation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var caseCreatedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modbot_cases_created",
	Help: "Number of moderation cases recorded, by action type",
}, []string{"type"})

var caseInvalidatedCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "modbot_cases_invalidated",
	Help: "Number of moderation cases invalidated",
})

var caseAppealedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modbot_cases_appealed",
	Help: "Number of appeal records created, by base action type",
}, []string{"type"})

var executorErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modbot_executor_errors",
	Help: "Number of live actions that failed after the case was recorded",
}, []string{"type", "op"})

var lockWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "modbot_case_lock_wait_sec",
	Help: "Time spent waiting for a guild case lock",
})
