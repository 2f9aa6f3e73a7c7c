package security

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var raidSuspectCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "modbot_raid_suspects",
	Help: "Number of joins recorded as raid suspects",
})

var raidLockdownCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "modbot_raid_lockdowns",
	Help: "Number of raid lockdowns triggered",
})

var mentionSpamCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "modbot_mention_spam_bans",
	Help: "Number of members banned for mention spam",
})
