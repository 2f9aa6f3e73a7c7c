package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// TaskState tracks a scheduled task through Pending -> Firing -> Completed, or Pending -> Cancelled.
type TaskState int

const (
	TaskPending TaskState = iota
	TaskFiring
	TaskCompleted
	TaskCancelled
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskFiring:
		return "firing"
	case TaskCompleted:
		return "completed"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ScheduledTask represents a task to be executed at a specific time.
type ScheduledTask struct {
	ID        string
	Kind      string
	DueAt     time.Time
	Payload   TaskPayload
	CatchUp   bool
	Seq       int64
	CreatedAt time.Time
}

// Payload keys shared by the moderation task handlers.
const (
	PayloadGuildID   = "guild_id"
	PayloadUserID    = "user_id"
	PayloadCaseID    = "case_id"
	PayloadChannelID = "channel_id"
	PayloadContent   = "content"
)

// TaskPayload 是任务的附加数据，只由对应 Kind 的处理器解释
type TaskPayload map[string]any

// String returns the value for key when it is a string.
func (p TaskPayload) String(key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// Int64 reads a numeric value, accepting the shapes produced by Go callers and by JSON decoding.
func (p TaskPayload) Int64(key string) (int64, bool) {
	switch v := p[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// Clone returns a shallow copy so callers cannot mutate a queued task's payload.
func (p TaskPayload) Clone() TaskPayload {
	out := make(TaskPayload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
