// Package memstore keeps cases and scheduled tasks in memory. It backs tests and the
// --memory mode of the bot, and can inject write failures.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"

	"modbot/model"
)

// ErrInjected is returned by writes while a fault is armed.
var ErrInjected = errors.New("injected store failure")

type caseKey struct {
	guild string
	id    int64
}

// Store implements the case and task persistence contracts in memory.
type Store struct {
	mu    sync.Mutex
	cases map[caseKey]model.CaseRecord
	tasks map[string]model.ScheduledTask

	failPutCase    int
	failPutTask    int
	failDeleteTask int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		cases: make(map[caseKey]model.CaseRecord),
		tasks: make(map[string]model.ScheduledTask),
	}
}

// FailPutCase makes the next n PutCase calls fail with ErrInjected.
func (s *Store) FailPutCase(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPutCase = n
}

// FailPutTask makes the next n PutTask calls fail with ErrInjected.
func (s *Store) FailPutTask(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPutTask = n
}

// FailDeleteTask makes the next n DeleteTask calls fail with ErrInjected.
func (s *Store) FailDeleteTask(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDeleteTask = n
}

func (s *Store) NextCaseID(ctx context.Context, guildID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max int64
	for k := range s.cases {
		if k.guild == guildID && k.id > max {
			max = k.id
		}
	}
	return max + 1, nil
}

func (s *Store) PutCase(ctx context.Context, rec *model.CaseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPutCase > 0 {
		s.failPutCase--
		return ErrInjected
	}
	k := caseKey{rec.GuildID, rec.CaseID}
	if _, ok := s.cases[k]; ok {
		return errors.New("case id already used")
	}
	s.cases[k] = cloneCase(*rec)
	return nil
}

func (s *Store) GetCase(ctx context.Context, guildID string, caseID int64) (*model.CaseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.cases[caseKey{guildID, caseID}]
	if !ok {
		return nil, model.ErrNotFound
	}
	out := cloneCase(rec)
	return &out, nil
}

func (s *Store) ListCases(ctx context.Context, q model.CaseQuery) ([]model.CaseRecord, error) {
	s.mu.Lock()
	var out []model.CaseRecord
	for k, rec := range s.cases {
		if k.guild != q.GuildID || k.id <= q.AfterCaseID {
			continue
		}
		if q.UserID != "" && rec.UserID != q.UserID {
			continue
		}
		out = append(out, cloneCase(rec))
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CaseID < out[j].CaseID })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) UpdateCase(ctx context.Context, guildID string, caseID int64, patch model.CasePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := caseKey{guildID, caseID}
	rec, ok := s.cases[k]
	if !ok {
		return model.ErrNotFound
	}
	if !patch.Invalidated {
		return nil
	}
	if rec.Invalidated {
		return model.ErrAlreadyInvalidated
	}
	rec.Invalidated = true
	s.cases[k] = rec
	return nil
}

func (s *Store) PutTask(ctx context.Context, task *model.ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPutTask > 0 {
		s.failPutTask--
		return ErrInjected
	}
	t := *task
	t.Payload = task.Payload.Clone()
	s.tasks[t.ID] = t
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDeleteTask > 0 {
		s.failDeleteTask--
		return ErrInjected
	}
	if _, ok := s.tasks[id]; !ok {
		return model.ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *Store) ListPendingTasks(ctx context.Context) ([]model.ScheduledTask, error) {
	s.mu.Lock()
	out := make([]model.ScheduledTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		t.Payload = t.Payload.Clone()
		out = append(out, t)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueAt.Equal(out[j].DueAt) {
			return out[i].DueAt.Before(out[j].DueAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

// TaskCount returns the number of persisted tasks.
func (s *Store) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func cloneCase(rec model.CaseRecord) model.CaseRecord {
	if rec.Duration != nil {
		d := *rec.Duration
		rec.Duration = &d
	}
	if rec.AppealType != nil {
		t := *rec.AppealType
		rec.AppealType = &t
	}
	return rec
}
