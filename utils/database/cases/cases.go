package cases

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modbot/model"
)

type caseRow struct {
	GuildID     string        `db:"guild_id"`
	CaseID      int64         `db:"case_id"`
	UserID      string        `db:"user_id"`
	ModeratorID string        `db:"moderator_id"`
	ActionType  int64         `db:"action_type"`
	Reason      string        `db:"reason"`
	CreatedAt   int64         `db:"created_at"`
	DurationMs  sql.NullInt64 `db:"duration_ms"`
	Invalidated bool          `db:"invalidated"`
	AppealType  sql.NullInt64 `db:"appeal_type"`
}

func toRow(rec *model.CaseRecord) caseRow {
	row := caseRow{
		GuildID:     rec.GuildID,
		CaseID:      rec.CaseID,
		UserID:      rec.UserID,
		ModeratorID: rec.ModeratorID,
		ActionType:  int64(rec.Type),
		Reason:      rec.Reason,
		CreatedAt:   rec.CreatedAt.UnixMilli(),
		Invalidated: rec.Invalidated,
	}
	if rec.Duration != nil {
		row.DurationMs = sql.NullInt64{Int64: rec.Duration.Milliseconds(), Valid: true}
	}
	if rec.AppealType != nil {
		row.AppealType = sql.NullInt64{Int64: int64(*rec.AppealType), Valid: true}
	}
	return row
}

func (r caseRow) record() model.CaseRecord {
	rec := model.CaseRecord{
		GuildID:     r.GuildID,
		CaseID:      r.CaseID,
		UserID:      r.UserID,
		ModeratorID: r.ModeratorID,
		Type:        model.ActionType(r.ActionType),
		Reason:      r.Reason,
		CreatedAt:   time.UnixMilli(r.CreatedAt).UTC(),
		Invalidated: r.Invalidated,
	}
	if r.DurationMs.Valid {
		d := time.Duration(r.DurationMs.Int64) * time.Millisecond
		rec.Duration = &d
	}
	if r.AppealType.Valid {
		t := model.ActionType(r.AppealType.Int64)
		rec.AppealType = &t
	}
	return rec
}

// NextCaseID returns MAX(case_id)+1 for the guild. Callers hold the guild's case lock.
func (s *Store) NextCaseID(ctx context.Context, guildID string) (int64, error) {
	var max sql.NullInt64
	err := s.db.GetContext(ctx, &max, `SELECT MAX(case_id) FROM moderation_cases WHERE guild_id = ?`, guildID)
	if err != nil {
		return 0, fmt.Errorf("failed to read max case id: %w", err)
	}
	return max.Int64 + 1, nil
}

// PutCase inserts a new case. Duplicate (guild_id, case_id) pairs are rejected by the primary key.
func (s *Store) PutCase(ctx context.Context, rec *model.CaseRecord) error {
	query := `INSERT INTO moderation_cases (guild_id, case_id, user_id, moderator_id, action_type, reason, created_at, duration_ms, invalidated, appeal_type)
	          VALUES (:guild_id, :case_id, :user_id, :moderator_id, :action_type, :reason, :created_at, :duration_ms, :invalidated, :appeal_type)`
	if _, err := s.db.NamedExecContext(ctx, query, toRow(rec)); err != nil {
		return fmt.Errorf("failed to insert case: %w", err)
	}
	return nil
}

// GetCase returns one case or model.ErrNotFound.
func (s *Store) GetCase(ctx context.Context, guildID string, caseID int64) (*model.CaseRecord, error) {
	var row caseRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM moderation_cases WHERE guild_id = ? AND case_id = ?`, guildID, caseID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}
	rec := row.record()
	return &rec, nil
}

// ListCases returns cases with case_id > q.AfterCaseID in ascending order.
func (s *Store) ListCases(ctx context.Context, q model.CaseQuery) ([]model.CaseRecord, error) {
	query := `SELECT * FROM moderation_cases WHERE guild_id = ? AND case_id > ?`
	args := []any{q.GuildID, q.AfterCaseID}
	if q.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, q.UserID)
	}
	query += ` ORDER BY case_id ASC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	var rows []caseRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	out := make([]model.CaseRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}

// UpdateCase applies patch. Invalidation is a compare-and-set, so only one caller wins.
func (s *Store) UpdateCase(ctx context.Context, guildID string, caseID int64, patch model.CasePatch) error {
	if !patch.Invalidated {
		return nil
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE moderation_cases SET invalidated = 1 WHERE guild_id = ? AND case_id = ? AND invalidated = 0`,
		guildID, caseID)
	if err != nil {
		return fmt.Errorf("failed to invalidate case: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var exists int
	err = s.db.GetContext(ctx, &exists, `SELECT COUNT(*) FROM moderation_cases WHERE guild_id = ? AND case_id = ?`, guildID, caseID)
	if err != nil {
		return fmt.Errorf("failed to check case: %w", err)
	}
	if exists == 0 {
		return model.ErrNotFound
	}
	return model.ErrAlreadyInvalidated
}
