package security

import (
	"context"
	"fmt"
	"sync"
	"time"

	"modbot/model"
	"modbot/moderation"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultMentionsAllowed = 20
	defaultMentionWindow   = 20 * time.Second
)

// MentionCounter accumulates mention counts per key inside a window that starts at the first hit.
type MentionCounter interface {
	Add(ctx context.Context, key string, n int, window time.Duration) (int, error)
	Reset(ctx context.Context, key string) error
}

type mentionBucket struct {
	count int
	start time.Time
}

// MemMentionCounter keeps counters in a bounded in-process LRU.
type MemMentionCounter struct {
	mu   sync.Mutex
	data *expirable.LRU[string, mentionBucket]
}

// NewMemMentionCounter creates a counter holding at most capacity keys; idle keys are dropped after ttl.
func NewMemMentionCounter(capacity int, ttl time.Duration) *MemMentionCounter {
	return &MemMentionCounter{
		data: expirable.NewLRU[string, mentionBucket](capacity, nil, ttl),
	}
}

func (c *MemMentionCounter) Add(ctx context.Context, key string, n int, window time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	b, ok := c.data.Get(key)
	if !ok || now.Sub(b.start) >= window {
		b = mentionBucket{start: now}
	}
	b.count += n
	c.data.Add(key, b)
	return b.count, nil
}

func (c *MemMentionCounter) Reset(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.Remove(key)
	return nil
}

var redisMentionPrefix = "mentions/"

// RedisMentionCounter shares counters between bot processes.
type RedisMentionCounter struct {
	Client *redis.Client
}

func NewRedisMentionCounter(redisURL string) (*RedisMentionCounter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(context.TODO()).Result()
	if err != nil {
		return nil, err
	}
	return &RedisMentionCounter{Client: rdb}, nil
}

func (s *RedisMentionCounter) Add(ctx context.Context, key string, n int, window time.Duration) (int, error) {
	key = redisMentionPrefix + key
	multi := s.Client.TxPipeline()
	incr := multi.IncrBy(ctx, key, int64(n))
	// NX keeps the window anchored at the first hit
	multi.ExpireNX(ctx, key, window)
	if _, err := multi.Exec(ctx); err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

func (s *RedisMentionCounter) Reset(ctx context.Context, key string) error {
	return s.Client.Del(ctx, redisMentionPrefix+key).Err()
}

// MentionGuard bans members who mention too many users within the configured window.
type MentionGuard struct {
	ledger   CaseCreator
	counter  MentionCounter
	settings model.SettingsProvider
	reporter model.ErrorReporter
	log      *zap.SugaredLogger
	systemID string
}

func NewMentionGuard(ledger CaseCreator, counter MentionCounter, settings model.SettingsProvider, reporter model.ErrorReporter, logger *zap.SugaredLogger, systemID string) *MentionGuard {
	if reporter == nil {
		reporter = model.NopReporter{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if systemID == "" {
		systemID = model.SystemModeratorID
	}
	return &MentionGuard{
		ledger:   ledger,
		counter:  counter,
		settings: settings,
		reporter: reporter,
		log:      logger,
		systemID: systemID,
	}
}

// OnMessage counts the user mentions of one message. It returns the ban case when the
// author went over the limit.
func (m *MentionGuard) OnMessage(ctx context.Context, guildID, authorID string, mentions int) (*model.CaseRecord, error) {
	if mentions <= 0 || m.settings == nil {
		return nil, nil
	}
	gs, ok := m.settings.Guild(guildID)
	if !ok || !gs.MentionSpam.Enabled {
		return nil, nil
	}
	allowed := gs.MentionSpam.MentionsAllowed
	if allowed <= 0 {
		allowed = defaultMentionsAllowed
	}
	window := gs.MentionSpam.Window
	if window <= 0 {
		window = defaultMentionWindow
	}

	key := guildID + "/" + authorID
	count, err := m.counter.Add(ctx, key, mentions, window)
	if err != nil {
		return nil, fmt.Errorf("failed to count mentions: %w", err)
	}
	if count <= allowed {
		return nil, nil
	}

	if err := m.counter.Reset(ctx, key); err != nil {
		m.log.Warnw("[MentionGuard] failed to reset counter", "key", key, "err", err)
	}
	mentionSpamCount.Inc()
	m.log.Warnw("[MentionGuard] mention limit exceeded", "guild", guildID, "user", authorID, "count", count, "allowed", allowed)

	rec, err := m.ledger.Create(ctx, moderation.CreateRequest{
		GuildID:     guildID,
		UserID:      authorID,
		ModeratorID: m.systemID,
		Type:        model.ActionBan,
		Reason:      fmt.Sprintf("[Auto-Moderation] Mention spam: more than %d mentions", allowed),
		Execute:     true,
	})
	if err != nil {
		m.reporter.ReportError("MentionGuard", "ban", err)
	}
	return rec, err
}
