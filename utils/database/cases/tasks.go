package cases

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"modbot/model"
)

type taskRow struct {
	ID        string `db:"id"`
	Seq       int64  `db:"seq"`
	Kind      string `db:"task_kind"`
	DueAt     int64  `db:"due_at"`
	Payload   string `db:"payload"`
	CatchUp   bool   `db:"catch_up"`
	CreatedAt int64  `db:"created_at"`
}

// PutTask adds a new scheduled task.
func (s *Store) PutTask(ctx context.Context, task *model.ScheduledTask) error {
	payload, err := json.Marshal(task.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode task payload: %w", err)
	}
	row := taskRow{
		ID:        task.ID,
		Seq:       task.Seq,
		Kind:      task.Kind,
		DueAt:     task.DueAt.UnixMilli(),
		Payload:   string(payload),
		CatchUp:   task.CatchUp,
		CreatedAt: task.CreatedAt.UnixMilli(),
	}
	query := `INSERT INTO scheduled_tasks (id, seq, task_kind, due_at, payload, catch_up, created_at)
	          VALUES (:id, :seq, :task_kind, :due_at, :payload, :catch_up, :created_at)`
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to add scheduled task: %w", err)
	}
	return nil
}

// DeleteTask removes a task by its ID.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// ListPendingTasks returns every stored task in firing order.
func (s *Store) ListPendingTasks(ctx context.Context) ([]model.ScheduledTask, error) {
	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM scheduled_tasks ORDER BY due_at ASC, seq ASC`); err != nil {
		return nil, fmt.Errorf("failed to get pending tasks: %w", err)
	}
	out := make([]model.ScheduledTask, 0, len(rows))
	for _, r := range rows {
		payload := model.TaskPayload{}
		dec := json.NewDecoder(bytes.NewReader([]byte(r.Payload)))
		dec.UseNumber()
		if err := dec.Decode(&payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload of task %s: %w", r.ID, err)
		}
		out = append(out, model.ScheduledTask{
			ID:        r.ID,
			Kind:      r.Kind,
			DueAt:     time.UnixMilli(r.DueAt).UTC(),
			Payload:   payload,
			CatchUp:   r.CatchUp,
			Seq:       r.Seq,
			CreatedAt: time.UnixMilli(r.CreatedAt).UTC(),
		})
	}
	return out, nil
}
