package handlers

import (
	"sync"
	"time"

	"modbot/model"
	"modbot/utils"

	"golang.org/x/time/rate"
)

// Invocation is what a precondition gets to look at.
type Invocation struct {
	GuildID   string
	ChannelID string
	UserID    string
	RoleIDs   []string
	Settings  model.GuildSettings
	// Configured is false when the guild has no settings entry.
	Configured bool
}

// Level is the caller's permission level in the guild.
func (inv Invocation) Level() string {
	return utils.CheckPermission(inv.RoleIDs, inv.Settings)
}

// Precondition decides whether a command may run. reason is shown to the user on failure.
type Precondition func(inv Invocation) (ok bool, reason string)

// GuildOnly rejects DMs and guilds without settings.
func GuildOnly(inv Invocation) (bool, string) {
	if inv.GuildID == "" {
		return false, "该命令只能在服务器中使用。"
	}
	if !inv.Configured {
		return false, "此服务器尚未配置处罚设置。"
	}
	return true, ""
}

// RequireLevel rejects callers below level.
func RequireLevel(level string) Precondition {
	return func(inv Invocation) (bool, string) {
		if !utils.HasPermission(inv.Level(), level) {
			return false, "你没有权限使用此命令。"
		}
		return true, ""
	}
}

// checkPreconditions runs pres in order and stops at the first failure.
func checkPreconditions(inv Invocation, pres []Precondition) (bool, string) {
	for _, p := range pres {
		if ok, reason := p(inv); !ok {
			return false, reason
		}
	}
	return true, ""
}

type channelLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ChannelRateLimit allows one command per channel per interval outside the guild's spam
// channel. Moderators are exempt.
type ChannelRateLimit struct {
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	channels map[string]*channelLimiter
}

func NewChannelRateLimit(interval time.Duration) *ChannelRateLimit {
	return &ChannelRateLimit{
		interval: interval,
		now:      time.Now,
		channels: make(map[string]*channelLimiter),
	}
}

// Check is the Precondition.
func (c *ChannelRateLimit) Check(inv Invocation) (bool, string) {
	if inv.ChannelID == "" || inv.ChannelID == inv.Settings.SpamChannelID {
		return true, ""
	}
	if utils.HasPermission(inv.Level(), utils.ModeratorPermission) {
		return true, ""
	}

	now := c.now()
	c.mu.Lock()
	cl, ok := c.channels[inv.ChannelID]
	if !ok {
		cl = &channelLimiter{limiter: rate.NewLimiter(rate.Every(c.interval), 1)}
		c.channels[inv.ChannelID] = cl
	}
	cl.lastSeen = now
	allowed := cl.limiter.AllowN(now, 1)
	c.mu.Unlock()

	if !allowed {
		if inv.Settings.SpamChannelID != "" {
			return false, "请稍后再试，或在 <#" + inv.Settings.SpamChannelID + "> 中使用命令。"
		}
		return false, "请稍后再试。"
	}
	return true, ""
}

// Prune drops limiters idle for longer than the interval; they would allow the next call anyway.
func (c *ChannelRateLimit) Prune() {
	cutoff := c.now().Add(-c.interval)
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, cl := range c.channels {
		if cl.lastSeen.Before(cutoff) {
			delete(c.channels, id)
		}
	}
}

func (c *ChannelRateLimit) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.channels)
}
