package cases

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"modbot/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Init(filepath.Join(t.TempDir(), "cases.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCaseRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	id, err := s.NextCaseID(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	d := 10 * time.Minute
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.PutCase(ctx, &model.CaseRecord{
		GuildID: "g1", CaseID: id, UserID: "u1", ModeratorID: "m1",
		Type: model.ActionMute, Reason: "spam", CreatedAt: created, Duration: &d,
	}))

	got, err := s.GetCase(ctx, "g1", 1)
	require.NoError(t, err)
	assert.Equal(t, model.ActionMute, got.Type)
	assert.Equal(t, "spam", got.Reason)
	assert.True(t, got.CreatedAt.Equal(created))
	require.NotNil(t, got.Duration)
	assert.Equal(t, d, *got.Duration)
	assert.Nil(t, got.AppealType)
	assert.False(t, got.Invalidated)

	next, err := s.NextCaseID(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), next)

	other, err := s.NextCaseID(ctx, "g2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), other)
}

func TestPutCaseRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	rec := &model.CaseRecord{GuildID: "g1", CaseID: 1, UserID: "u1", ModeratorID: "m1", Type: model.ActionWarning, CreatedAt: time.Now()}
	require.NoError(t, s.PutCase(ctx, rec))
	assert.Error(t, s.PutCase(ctx, rec))
}

func TestGetCaseNotFound(t *testing.T) {
	_, err := openStore(t).GetCase(context.Background(), "g1", 42)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestUpdateCaseInvalidateOnce(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.PutCase(ctx, &model.CaseRecord{GuildID: "g1", CaseID: 1, UserID: "u1", ModeratorID: "m1", Type: model.ActionBan, CreatedAt: time.Now()}))

	require.NoError(t, s.UpdateCase(ctx, "g1", 1, model.CasePatch{Invalidated: true}))
	assert.ErrorIs(t, s.UpdateCase(ctx, "g1", 1, model.CasePatch{Invalidated: true}), model.ErrAlreadyInvalidated)
	assert.ErrorIs(t, s.UpdateCase(ctx, "g1", 9, model.CasePatch{Invalidated: true}), model.ErrNotFound)

	got, err := s.GetCase(ctx, "g1", 1)
	require.NoError(t, err)
	assert.True(t, got.Invalidated)
}

func TestListCasesPaging(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	appeal := model.ActionMute
	for i := int64(1); i <= 5; i++ {
		user := "u1"
		if i%2 == 0 {
			user = "u2"
		}
		rec := &model.CaseRecord{GuildID: "g1", CaseID: i, UserID: user, ModeratorID: "m1", Type: model.ActionWarning, CreatedAt: time.Now()}
		if i == 5 {
			rec.Type = model.ActionMute | model.ActionUndo
			rec.AppealType = &appeal
		}
		require.NoError(t, s.PutCase(ctx, rec))
	}

	page, err := s.ListCases(ctx, model.CaseQuery{GuildID: "g1", AfterCaseID: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(2), page[0].CaseID)
	assert.Equal(t, int64(3), page[1].CaseID)

	mine, err := s.ListCases(ctx, model.CaseQuery{GuildID: "g1", UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, mine, 3)
	last := mine[2]
	require.NotNil(t, last.AppealType)
	assert.Equal(t, model.ActionMute, *last.AppealType)
	assert.True(t, last.Type.IsUndo())
}

func TestTaskStore(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	due := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tasks := []model.ScheduledTask{
		{ID: "b", Kind: "unmute", DueAt: due, Seq: 2, CatchUp: true, CreatedAt: due, Payload: model.TaskPayload{model.PayloadCaseID: int64(7), model.PayloadGuildID: "g1"}},
		{ID: "a", Kind: "unmute", DueAt: due, Seq: 1, CreatedAt: due, Payload: model.TaskPayload{}},
		{ID: "c", Kind: "reminder", DueAt: due.Add(-time.Minute), Seq: 3, CreatedAt: due},
	}
	for i := range tasks {
		require.NoError(t, s.PutTask(ctx, &tasks[i]))
	}

	got, err := s.ListPendingTasks(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{got[0].ID, got[1].ID, got[2].ID})

	b := got[2]
	assert.True(t, b.CatchUp)
	caseID, ok := b.Payload.Int64(model.PayloadCaseID)
	assert.True(t, ok)
	assert.Equal(t, int64(7), caseID)
	assert.Equal(t, "g1", b.Payload.String(model.PayloadGuildID))

	require.NoError(t, s.DeleteTask(ctx, "a"))
	assert.ErrorIs(t, s.DeleteTask(ctx, "a"), model.ErrNotFound)
}
