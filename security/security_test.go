package security

import (
	"context"
	"sync"
	"testing"
	"time"

	"modbot/model"
	"modbot/moderation"
	"modbot/scheduler"
	"modbot/utils/database/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProtector struct {
	mu        sync.Mutex
	lockdowns int
	lifts     []string
}

func (p *fakeProtector) Lockdown(ctx context.Context, guildID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lockdowns++
	return "2", nil
}

func (p *fakeProtector) Lift(ctx context.Context, guildID, restore string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lifts = append(p.lifts, restore)
	return nil
}

type nopExecutor struct{}

func (nopExecutor) Apply(context.Context, model.CaseRecord) error  { return nil }
func (nopExecutor) Revert(context.Context, model.CaseRecord) error { return nil }

type raidEnv struct {
	guard     *RaidGuard
	ledger    *moderation.Ledger
	sched     *scheduler.Scheduler
	protector *fakeProtector
}

func newRaidEnv(raid model.RaidSettings) *raidEnv {
	store := memstore.New()
	sched := scheduler.New(store, nil, scheduler.Config{})
	ledger := moderation.NewLedger(store, nil, nil, moderation.WithScheduler(sched), moderation.WithExecutor(nopExecutor{}))
	settings := &model.Config{Guilds: map[string]model.GuildSettings{
		"G": {GuildID: "G", Raid: raid},
	}}
	p := &fakeProtector{}
	return &raidEnv{
		guard: NewRaidGuard(RaidConfig{
			Ledger:    ledger,
			Tasks:     sched,
			Protector: p,
			Settings:  settings,
		}),
		ledger:    ledger,
		sched:     sched,
		protector: p,
	}
}

func TestRaidThresholdLocksAndRecordsCases(t *testing.T) {
	env := newRaidEnv(model.RaidSettings{Enabled: true, Threshold: 3, Cooldown: time.Minute})
	ctx := context.Background()
	now := time.Now()

	for i, user := range []string{"A", "B"} {
		locked, err := env.guard.OnJoin(ctx, "G", user, now.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		assert.False(t, locked)
	}
	assert.False(t, env.guard.Locked("G"))

	locked, err := env.guard.OnJoin(ctx, "G", "C", now.Add(2*time.Second))
	require.NoError(t, err)
	assert.True(t, locked)
	assert.True(t, env.guard.Locked("G"))
	assert.Equal(t, 1, env.protector.lockdowns)

	cases, err := env.ledger.FetchAll(ctx, "G", "")
	require.NoError(t, err)
	require.Len(t, cases, 3)
	for i, rec := range cases {
		assert.Equal(t, []string{"A", "B", "C"}[i], rec.UserID)
		assert.Equal(t, model.ActionBan, rec.Type)
		assert.Equal(t, model.SystemModeratorID, rec.ModeratorID)
	}

	tasks := env.sched.Tasks(func(t model.ScheduledTask) bool { return t.Kind == CooldownKind })
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].CatchUp)
	assert.Equal(t, "G", tasks[0].Payload.String(model.PayloadGuildID))

	// Joins during the lockdown are tracked but do not trigger a second lockdown.
	locked, err = env.guard.OnJoin(ctx, "G", "D", now.Add(3*time.Second))
	require.NoError(t, err)
	assert.False(t, locked)
	assert.Len(t, env.guard.List("G"), 4)
	assert.Equal(t, 1, env.protector.lockdowns)

	require.NoError(t, env.guard.HandleCooldown(ctx, tasks[0]))
	assert.False(t, env.guard.Locked("G"))
	assert.Empty(t, env.guard.List("G"))
	assert.Equal(t, []string{"2"}, env.protector.lifts)
}

func TestRaidDuplicateJoinsCountOnce(t *testing.T) {
	env := newRaidEnv(model.RaidSettings{Enabled: true, Threshold: 2})
	ctx := context.Background()
	first := time.Now()

	for i := 0; i < 3; i++ {
		locked, err := env.guard.OnJoin(ctx, "G", "A", first.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		assert.False(t, locked)
	}
	suspects := env.guard.List("G")
	require.Len(t, suspects, 1)
	assert.Equal(t, first, suspects[0].FirstSeen)
}

func TestRaidDisabledGuildIgnored(t *testing.T) {
	env := newRaidEnv(model.RaidSettings{Enabled: false, Threshold: 1})
	locked, err := env.guard.OnJoin(context.Background(), "G", "A", time.Now())
	require.NoError(t, err)
	assert.False(t, locked)
	assert.Empty(t, env.guard.List("G"))

	locked, err = env.guard.OnJoin(context.Background(), "other", "A", time.Now())
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestRaidClearKeepsLock(t *testing.T) {
	env := newRaidEnv(model.RaidSettings{Enabled: true, Threshold: 2, Action: "kick"})
	ctx := context.Background()

	_, err := env.guard.OnJoin(ctx, "G", "A", time.Now())
	require.NoError(t, err)
	env.guard.Clear("G")
	assert.Empty(t, env.guard.List("G"))

	_, err = env.guard.OnJoin(ctx, "G", "A", time.Now())
	require.NoError(t, err)
	locked, err := env.guard.OnJoin(ctx, "G", "B", time.Now())
	require.NoError(t, err)
	require.True(t, locked)

	cases, err := env.ledger.FetchAll(ctx, "G", "")
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, model.ActionKick, cases[0].Type)

	env.guard.Clear("G")
	assert.Empty(t, env.guard.List("G"))
	assert.True(t, env.guard.Locked("G"))
}

func TestRaidStopCancelsCooldown(t *testing.T) {
	env := newRaidEnv(model.RaidSettings{Enabled: true, Threshold: 1})
	ctx := context.Background()

	locked, err := env.guard.OnJoin(ctx, "G", "A", time.Now())
	require.NoError(t, err)
	require.True(t, locked)
	require.Len(t, env.sched.Tasks(nil), 1)

	require.NoError(t, env.guard.Stop(ctx, "G"))
	assert.False(t, env.guard.Locked("G"))
	assert.Empty(t, env.guard.List("G"))
	assert.Empty(t, env.sched.Tasks(nil))
	assert.Equal(t, []string{"2"}, env.protector.lifts)

	// Stopping an idle guild is a no-op.
	require.NoError(t, env.guard.Stop(ctx, "G"))
}

// gatedProtector holds Lockdown until release is closed.
type gatedProtector struct {
	fakeProtector
	entered chan struct{}
	release chan struct{}
}

func (p *gatedProtector) Lockdown(ctx context.Context, guildID string) (string, error) {
	close(p.entered)
	<-p.release
	return p.fakeProtector.Lockdown(ctx, guildID)
}

func TestRaidStopDuringLockdownLiftsWithRestoreToken(t *testing.T) {
	env := newRaidEnv(model.RaidSettings{Enabled: true, Threshold: 1})
	p := &gatedProtector{entered: make(chan struct{}), release: make(chan struct{})}
	env.guard.protector = p
	ctx := context.Background()

	type result struct {
		locked bool
		err    error
	}
	done := make(chan result, 1)
	go func() {
		locked, err := env.guard.OnJoin(ctx, "G", "A", time.Now())
		done <- result{locked, err}
	}()

	<-p.entered
	require.NoError(t, env.guard.Stop(ctx, "G"))
	assert.Empty(t, p.lifts)

	close(p.release)
	res := <-done
	require.NoError(t, res.err)
	assert.True(t, res.locked)

	assert.Equal(t, []string{"2"}, p.lifts)
	assert.False(t, env.guard.Locked("G"))
	assert.Empty(t, env.sched.Tasks(nil))
}

func TestMemMentionCounterWindow(t *testing.T) {
	c := NewMemMentionCounter(16, time.Minute)
	ctx := context.Background()

	n, err := c.Add(ctx, "k", 3, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = c.Add(ctx, "k", 4, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	require.NoError(t, c.Reset(ctx, "k"))
	n, err = c.Add(ctx, "k", 1, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = c.Add(ctx, "short", 5, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	time.Sleep(5 * time.Millisecond)
	n, err = c.Add(ctx, "short", 1, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMentionGuardBansOverLimit(t *testing.T) {
	store := memstore.New()
	ledger := moderation.NewLedger(store, nil, nil, moderation.WithExecutor(nopExecutor{}))
	settings := &model.Config{Guilds: map[string]model.GuildSettings{
		"G": {MentionSpam: model.MentionSpamSettings{Enabled: true, MentionsAllowed: 5, Window: time.Minute}},
	}}
	guard := NewMentionGuard(ledger, NewMemMentionCounter(16, time.Hour), settings, nil, nil, "")
	ctx := context.Background()

	rec, err := guard.OnMessage(ctx, "G", "spammer", 3)
	require.NoError(t, err)
	assert.Nil(t, rec)
	rec, err = guard.OnMessage(ctx, "G", "spammer", 2)
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = guard.OnMessage(ctx, "G", "spammer", 1)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.ActionBan, rec.Type)
	assert.Equal(t, model.SystemModeratorID, rec.ModeratorID)
	assert.Contains(t, rec.Reason, "more than 5 mentions")

	// The counter starts over after a ban.
	rec, err = guard.OnMessage(ctx, "G", "spammer", 1)
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = guard.OnMessage(ctx, "other", "spammer", 100)
	require.NoError(t, err)
	assert.Nil(t, rec)
}
