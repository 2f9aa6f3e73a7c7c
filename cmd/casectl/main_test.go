package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"modbot/model"
	"modbot/utils/database/cases"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "moderation.db")
	store, err := cases.Init(path)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	d := time.Hour
	now := time.Now()
	require.NoError(t, store.PutCase(ctx, &model.CaseRecord{GuildID: "g", CaseID: 1, UserID: "u1", ModeratorID: "m", Type: model.ActionMute, Reason: "spam", CreatedAt: now, Duration: &d}))
	require.NoError(t, store.PutCase(ctx, &model.CaseRecord{GuildID: "g", CaseID: 2, UserID: "u2", ModeratorID: "m", Type: model.ActionKick, CreatedAt: now}))
	require.NoError(t, store.PutTask(ctx, &model.ScheduledTask{ID: "t1", Kind: "unmute", DueAt: now.Add(d), Seq: 1, CreatedAt: now,
		Payload: model.TaskPayload{model.PayloadGuildID: "g", model.PayloadCaseID: int64(1)}}))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	// flag values live in package vars and survive between executions
	guildID, listUser, listFilter, listLimit, tasksKind = "", "", "", 0, ""
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCasesCommands(t *testing.T) {
	path := seed(t)

	out, err := run(t, "cases", "list", "--db", path, "--guild", "g")
	require.NoError(t, err)
	assert.Contains(t, out, "mute")
	assert.Contains(t, out, "kick")

	out, err = run(t, "cases", "list", "--db", path, "--guild", "g", "--filter", "mutes")
	require.NoError(t, err)
	assert.NotContains(t, out, "kick")

	out, err = run(t, "cases", "invalidate", "2", "--db", path, "--guild", "g")
	require.NoError(t, err)
	assert.Contains(t, out, "Case #2 invalidated.")

	_, err = run(t, "cases", "invalidate", "2", "--db", path, "--guild", "g")
	assert.ErrorIs(t, err, model.ErrAlreadyInvalidated)

	out, err = run(t, "cases", "show", "2", "--db", path, "--guild", "g")
	require.NoError(t, err)
	assert.Contains(t, out, "invalidated")

	_, err = run(t, "cases", "show", "x", "--db", path, "--guild", "g")
	assert.Error(t, err)
	_, err = run(t, "cases", "list", "--db", path)
	assert.Error(t, err)
}

func TestTasksList(t *testing.T) {
	path := seed(t)
	out, err := run(t, "tasks", "list", "--db", path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "unmute")
	assert.Contains(t, lines[1], "case_id=1")

	out, err = run(t, "tasks", "list", "--db", path, "--kind", "reminder")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 1)
}
