package moderation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"modbot/model"

	"github.com/google/uuid"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeTasks struct {
	mu    sync.Mutex
	tasks map[string]model.ScheduledTask
	fail  bool
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{tasks: make(map[string]model.ScheduledTask)}
}

func (f *fakeTasks) Create(ctx context.Context, kind string, dueAt time.Time, payload model.TaskPayload, catchUp bool) (*model.ScheduledTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("store down")
	}
	t := model.ScheduledTask{ID: uuid.NewString(), Kind: kind, DueAt: dueAt, Payload: payload.Clone(), CatchUp: catchUp, Seq: int64(len(f.tasks))}
	f.tasks[t.ID] = t
	return &t, nil
}

func (f *fakeTasks) Cancel(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[id]; !ok {
		return model.ErrNotFound
	}
	delete(f.tasks, id)
	return nil
}

func (f *fakeTasks) Tasks(filter func(model.ScheduledTask) bool) []model.ScheduledTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ScheduledTask
	for _, t := range f.tasks {
		if filter == nil || filter(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

type call struct {
	op     string
	caseID int64
	typ    model.ActionType
}

type fakeExecutor struct {
	mu        sync.Mutex
	calls     []call
	applyErr  error
	revertErr error
}

func (e *fakeExecutor) Apply(ctx context.Context, rec model.CaseRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, call{"apply", rec.CaseID, rec.Type})
	return e.applyErr
}

func (e *fakeExecutor) Revert(ctx context.Context, rec model.CaseRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, call{"revert", rec.CaseID, rec.Type})
	return e.revertErr
}

func (e *fakeExecutor) count(op string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

func (e *fakeExecutor) reverted() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	var ids []int64
	for _, c := range e.calls {
		if c.op == "revert" {
			ids = append(ids, c.caseID)
		}
	}
	return ids
}

type countingReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *countingReporter) ReportError(module, operation string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *countingReporter) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func dur(d time.Duration) *time.Duration { return &d }
