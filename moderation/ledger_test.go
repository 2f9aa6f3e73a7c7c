package moderation

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"modbot/model"
	"modbot/scheduler"
	"modbot/utils/database/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ledgerEnv struct {
	ledger   *Ledger
	store    *memstore.Store
	tasks    *fakeTasks
	exec     *fakeExecutor
	clock    *fakeClock
	reporter *countingReporter
}

func newLedgerEnv(opts ...Option) *ledgerEnv {
	env := &ledgerEnv{
		store:    memstore.New(),
		tasks:    newFakeTasks(),
		exec:     &fakeExecutor{},
		clock:    newFakeClock(),
		reporter: &countingReporter{},
	}
	base := []Option{
		WithScheduler(env.tasks),
		WithExecutor(env.exec),
		WithClock(env.clock),
		WithReporter(env.reporter),
	}
	env.ledger = NewLedger(env.store, nil, nil, append(base, opts...)...)
	return env
}

func warn(guild, user string) CreateRequest {
	return CreateRequest{GuildID: guild, UserID: user, ModeratorID: "mod", Type: model.ActionWarning, Reason: "r"}
}

func TestCreateAssignsContiguousIDsConcurrently(t *testing.T) {
	env := newLedgerEnv()
	ctx := context.Background()

	const n = 40
	var wg sync.WaitGroup
	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := env.ledger.Create(ctx, warn("g1", "u1"))
			if assert.NoError(t, err) {
				ids[i] = rec.CaseID
			}
		}(i)
	}
	wg.Wait()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for i, id := range ids {
		assert.Equal(t, int64(i+1), id)
	}

	other, err := env.ledger.Create(ctx, warn("g2", "u1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), other.CaseID)
}

func TestCreateTemporaryMuteSchedulesUnmute(t *testing.T) {
	env := newLedgerEnv()
	rec, err := env.ledger.Create(context.Background(), CreateRequest{
		GuildID: "g1", UserID: "u1", ModeratorID: "mod",
		Type: model.ActionMute, Reason: "spam", Duration: dur(600000 * time.Millisecond), Execute: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.CaseID)
	assert.Equal(t, env.clock.Now(), rec.CreatedAt)
	assert.Equal(t, 1, env.exec.count("apply"))

	tasks := env.tasks.Tasks(nil)
	require.Len(t, tasks, 1)
	task := tasks[0]
	assert.Equal(t, "unmute", task.Kind)
	assert.True(t, task.CatchUp)
	assert.Equal(t, rec.CreatedAt.Add(10*time.Minute), task.DueAt)
	caseID, ok := task.Payload.Int64(model.PayloadCaseID)
	assert.True(t, ok)
	assert.Equal(t, int64(1), caseID)
	assert.Equal(t, "u1", task.Payload.String(model.PayloadUserID))
}

func TestCreateValidation(t *testing.T) {
	env := newLedgerEnv()
	ctx := context.Background()
	cases := map[string]CreateRequest{
		"missing guild":     {UserID: "u", ModeratorID: "m", Type: model.ActionWarning},
		"missing user":      {GuildID: "g", ModeratorID: "m", Type: model.ActionWarning},
		"missing moderator": {GuildID: "g", UserID: "u", Type: model.ActionWarning},
		"unknown type":      {GuildID: "g", UserID: "u", ModeratorID: "m", Type: model.ActionType(30)},
		"zero duration":     {GuildID: "g", UserID: "u", ModeratorID: "m", Type: model.ActionMute, Duration: dur(0)},
		"timed kick":        {GuildID: "g", UserID: "u", ModeratorID: "m", Type: model.ActionKick, Duration: dur(time.Minute)},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			rec, err := env.ledger.Create(ctx, req)
			assert.Nil(t, rec)
			assert.ErrorIs(t, err, model.ErrValidation)
			assert.Equal(t, model.OutcomeRejected, model.Classify(err))
		})
	}

	next, err := env.store.NextCaseID(ctx, "g")
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)
}

func TestCreatePersistenceFailureDoesNotConsumeID(t *testing.T) {
	env := newLedgerEnv()
	ctx := context.Background()

	env.store.FailPutCase(1)
	rec, err := env.ledger.Create(ctx, warn("g1", "u1"))
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, model.ErrPersistence)
	assert.Equal(t, model.OutcomeFailed, model.Classify(err))

	rec, err = env.ledger.Create(ctx, warn("g1", "u1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.CaseID)
}

func TestCreateExecutorFailureKeepsRecord(t *testing.T) {
	env := newLedgerEnv()
	env.exec.applyErr = assert.AnError
	ctx := context.Background()

	rec, err := env.ledger.Create(ctx, CreateRequest{GuildID: "g1", UserID: "u1", ModeratorID: "mod", Type: model.ActionBan, Execute: true})
	require.NotNil(t, rec)
	assert.ErrorIs(t, err, model.ErrExecutor)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, env.reporter.len())

	stored, err := env.ledger.Get(ctx, "g1", rec.CaseID)
	require.NoError(t, err)
	assert.Equal(t, model.ActionBan, stored.Type)
}

func TestCreateExpiryScheduleFailureKeepsRecord(t *testing.T) {
	env := newLedgerEnv()
	env.tasks.fail = true

	rec, err := env.ledger.Create(context.Background(), CreateRequest{GuildID: "g1", UserID: "u1", ModeratorID: "mod", Type: model.ActionMute, Duration: dur(time.Hour)})
	require.NotNil(t, rec)
	assert.ErrorIs(t, err, model.ErrPersistence)
}

func TestInvalidate(t *testing.T) {
	env := newLedgerEnv()
	ctx := context.Background()

	rec, err := env.ledger.Create(ctx, CreateRequest{GuildID: "g1", UserID: "u1", ModeratorID: "mod", Type: model.ActionMute, Duration: dur(time.Hour), Execute: true})
	require.NoError(t, err)
	require.Len(t, env.tasks.Tasks(nil), 1)

	got, err := env.ledger.Invalidate(ctx, "g1", rec.CaseID)
	require.NoError(t, err)
	assert.True(t, got.Invalidated)
	assert.Empty(t, env.tasks.Tasks(nil))
	assert.Equal(t, []int64{rec.CaseID}, env.exec.reverted())

	_, err = env.ledger.Invalidate(ctx, "g1", rec.CaseID)
	assert.ErrorIs(t, err, model.ErrAlreadyInvalidated)
	assert.Equal(t, model.OutcomeAlreadyDone, model.Classify(err))

	_, err = env.ledger.Invalidate(ctx, "g1", 99)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestInvalidateOlderCaseKeepsNewerEffect(t *testing.T) {
	env := newLedgerEnv()
	ctx := context.Background()

	first, err := env.ledger.Create(ctx, CreateRequest{GuildID: "g1", UserID: "u1", ModeratorID: "mod", Type: model.ActionMute, Duration: dur(time.Hour)})
	require.NoError(t, err)
	env.clock.Advance(time.Minute)
	second, err := env.ledger.Create(ctx, CreateRequest{GuildID: "g1", UserID: "u1", ModeratorID: "mod", Type: model.ActionMute, Duration: dur(time.Hour)})
	require.NoError(t, err)

	_, err = env.ledger.Invalidate(ctx, "g1", first.CaseID)
	require.NoError(t, err)
	assert.Empty(t, env.exec.reverted())
	require.Len(t, env.tasks.Tasks(nil), 1)

	_, err = env.ledger.Invalidate(ctx, "g1", second.CaseID)
	require.NoError(t, err)
	assert.Equal(t, []int64{second.CaseID}, env.exec.reverted())
}

func TestAppeal(t *testing.T) {
	env := newLedgerEnv()
	ctx := context.Background()

	muted, err := env.ledger.Create(ctx, CreateRequest{GuildID: "g1", UserID: "u1", ModeratorID: "mod", Type: model.ActionMute, Duration: dur(time.Hour)})
	require.NoError(t, err)

	appeal, err := env.ledger.Appeal(ctx, AppealRequest{GuildID: "g1", UserID: "u1", ModeratorID: "mod2", Type: model.ActionMute, Reason: "misclick", Execute: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), appeal.CaseID)
	assert.Equal(t, model.ActionMute|model.ActionUndo, appeal.Type)
	assert.Equal(t, "unmute", appeal.Title())
	require.NotNil(t, appeal.AppealType)
	assert.Equal(t, model.ActionMute, *appeal.AppealType)
	assert.Nil(t, appeal.Duration)

	original, err := env.ledger.Get(ctx, "g1", muted.CaseID)
	require.NoError(t, err)
	assert.True(t, original.Invalidated)
	assert.Empty(t, env.tasks.Tasks(nil))
	assert.Equal(t, []int64{muted.CaseID}, env.exec.reverted())

	_, err = env.ledger.Appeal(ctx, AppealRequest{GuildID: "g1", UserID: "u1", ModeratorID: "mod", Type: model.ActionMute})
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = env.ledger.Appeal(ctx, AppealRequest{GuildID: "g1", UserID: "u1", ModeratorID: "mod", Type: model.ActionKick})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestAppealWriteFailureLeavesTargetActive(t *testing.T) {
	env := newLedgerEnv()
	ctx := context.Background()

	muted, err := env.ledger.Create(ctx, CreateRequest{GuildID: "g1", UserID: "u1", ModeratorID: "mod", Type: model.ActionMute, Duration: dur(time.Hour)})
	require.NoError(t, err)

	env.store.FailPutCase(1)
	appeal, err := env.ledger.Appeal(ctx, AppealRequest{GuildID: "g1", UserID: "u1", ModeratorID: "mod", Type: model.ActionMute, Execute: true})
	assert.ErrorIs(t, err, model.ErrPersistence)
	assert.Nil(t, appeal)

	original, err := env.ledger.Get(ctx, "g1", muted.CaseID)
	require.NoError(t, err)
	assert.False(t, original.Invalidated)
	assert.Len(t, env.tasks.Tasks(nil), 1)
	assert.Empty(t, env.exec.reverted())

	// The next attempt still finds the mute and takes the unused case ID.
	appeal, err = env.ledger.Appeal(ctx, AppealRequest{GuildID: "g1", UserID: "u1", ModeratorID: "mod", Type: model.ActionMute, Execute: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), appeal.CaseID)
	assert.Empty(t, env.tasks.Tasks(nil))
	assert.Equal(t, []int64{muted.CaseID}, env.exec.reverted())
}

func TestHandleExpiry(t *testing.T) {
	env := newLedgerEnv()
	ctx := context.Background()

	rec, err := env.ledger.Create(ctx, CreateRequest{GuildID: "g1", UserID: "u1", ModeratorID: "mod", Type: model.ActionBan, Duration: dur(time.Hour)})
	require.NoError(t, err)
	task := env.tasks.Tasks(nil)[0]
	assert.Equal(t, "unban", task.Kind)

	env.clock.Advance(time.Hour)
	require.NoError(t, env.ledger.HandleExpiry(ctx, task))
	assert.Equal(t, []int64{rec.CaseID}, env.exec.reverted())

	// A case invalidated after its task was queued never reverts twice.
	other, err := env.ledger.Create(ctx, CreateRequest{GuildID: "g1", UserID: "u2", ModeratorID: "mod", Type: model.ActionBan, Duration: dur(time.Hour)})
	require.NoError(t, err)
	require.NoError(t, env.store.UpdateCase(ctx, "g1", other.CaseID, model.CasePatch{Invalidated: true}))
	stale := model.ScheduledTask{ID: "stale", Kind: "unban", Payload: model.TaskPayload{model.PayloadGuildID: "g1", model.PayloadCaseID: other.CaseID}}
	require.NoError(t, env.ledger.HandleExpiry(ctx, stale))
	assert.Len(t, env.exec.reverted(), 1)

	assert.ErrorIs(t, env.ledger.HandleExpiry(ctx, model.ScheduledTask{ID: "bad", Kind: "unban"}), model.ErrValidation)
}

func TestHandleExpirySkipsWhenNewerCaseGoverns(t *testing.T) {
	env := newLedgerEnv()
	ctx := context.Background()

	_, err := env.ledger.Create(ctx, CreateRequest{GuildID: "g1", UserID: "u1", ModeratorID: "mod", Type: model.ActionMute, Duration: dur(time.Hour)})
	require.NoError(t, err)
	env.clock.Advance(30 * time.Minute)
	_, err = env.ledger.Create(ctx, CreateRequest{GuildID: "g1", UserID: "u1", ModeratorID: "mod", Type: model.ActionMute, Duration: dur(time.Hour)})
	require.NoError(t, err)

	env.clock.Advance(30 * time.Minute)
	tasks := env.tasks.Tasks(nil)
	require.Len(t, tasks, 2)
	require.NoError(t, env.ledger.HandleExpiry(ctx, tasks[0]))
	assert.Empty(t, env.exec.reverted())
}

func TestFetchPagesInOrder(t *testing.T) {
	env := newLedgerEnv(WithPageSize(2))
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := env.ledger.Create(ctx, warn("g1", "u1"))
		require.NoError(t, err)
	}
	_, err := env.ledger.Create(ctx, warn("g1", "u2"))
	require.NoError(t, err)

	all, err := env.ledger.FetchAll(ctx, "g1", "")
	require.NoError(t, err)
	require.Len(t, all, 6)
	for i, rec := range all {
		assert.Equal(t, int64(i+1), rec.CaseID)
	}

	var seen []int64
	for rec, err := range env.ledger.Fetch(ctx, "g1", "u1") {
		require.NoError(t, err)
		seen = append(seen, rec.CaseID)
		if len(seen) == 3 {
			break
		}
	}
	assert.Equal(t, []int64{1, 2, 3}, seen)
}

func TestExpiryFiresThroughScheduler(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	sched := scheduler.New(store, nil, scheduler.Config{HandlerTimeout: time.Second})
	exec := &fakeExecutor{}
	ledger := NewLedger(store, nil, nil, WithScheduler(sched), WithExecutor(exec))
	sched.RegisterHandler("unmute", scheduler.HandlerFunc(ledger.HandleExpiry))
	require.NoError(t, sched.Start(ctx))
	t.Cleanup(sched.Stop)

	rec, err := ledger.Create(ctx, CreateRequest{GuildID: "g1", UserID: "u1", ModeratorID: "mod", Type: model.ActionMute, Duration: dur(40 * time.Millisecond), Execute: true})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return exec.count("revert") == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []int64{rec.CaseID}, exec.reverted())
	assert.Equal(t, 0, sched.Pending())
}
