// Package scheduler is a durable, time-ordered task queue with one firing loop per process.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"modbot/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TaskStore persists pending tasks. ListPendingTasks returns tasks ordered by DueAt, then Seq.
type TaskStore interface {
	PutTask(ctx context.Context, task *model.ScheduledTask) error
	DeleteTask(ctx context.Context, id string) error
	ListPendingTasks(ctx context.Context) ([]model.ScheduledTask, error)
}

// Handler runs a fired task.
type Handler interface {
	Run(ctx context.Context, task model.ScheduledTask) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, task model.ScheduledTask) error

func (f HandlerFunc) Run(ctx context.Context, task model.ScheduledTask) error {
	return f(ctx, task)
}

const defaultHandlerTimeout = 30 * time.Second

// Scheduler manages all scheduled tasks.
type Scheduler struct {
	store    TaskStore
	clock    model.Clock
	reporter model.ErrorReporter
	log      *zap.SugaredLogger
	timeout  time.Duration

	// lifecycle orders Start against in-flight Creates; seqMu guards the one-time Seq load.
	lifecycle sync.RWMutex
	seqMu     sync.Mutex
	seqLoaded bool

	mu       sync.Mutex
	queue    taskQueue
	entries  map[string]*entry
	handlers map[string]Handler
	nextSeq  int64
	started  bool

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds optional scheduler settings.
type Config struct {
	Clock          model.Clock
	Reporter       model.ErrorReporter
	HandlerTimeout time.Duration
}

// New creates a new scheduler. Call Start to load persisted tasks and begin firing.
func New(store TaskStore, logger *zap.SugaredLogger, cfg Config) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = model.SystemClock{}
	}
	if cfg.Reporter == nil {
		cfg.Reporter = model.NopReporter{}
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = defaultHandlerTimeout
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Scheduler{
		store:    store,
		clock:    cfg.Clock,
		reporter: cfg.Reporter,
		log:      logger,
		timeout:  cfg.HandlerTimeout,
		entries:  make(map[string]*entry),
		handlers: make(map[string]Handler),
		wake:     make(chan struct{}, 1),
	}
}

// RegisterHandler binds kind to h. Registering the same kind twice replaces the handler.
func (s *Scheduler) RegisterHandler(kind string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = h
}

// Start loads pending tasks from the store and begins the firing loop. Overdue tasks without
// catch-up are discarded; overdue catch-up tasks are fired first, in due order. Tasks created
// on this scheduler before Start are already queued and are not loaded again.
func (s *Scheduler) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	s.started = true
	s.mu.Unlock()

	tasks, err := s.store.ListPendingTasks(ctx)
	if err != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return fmt.Errorf("%w: failed to load pending tasks: %w", model.ErrPersistence, err)
	}

	now := s.clock.Now()
	loaded, discarded := 0, 0
	var missed []model.ScheduledTask
	s.mu.Lock()
	s.bumpSeqLocked(tasks)
	for _, t := range tasks {
		if _, queued := s.entries[t.ID]; queued {
			continue
		}
		if !t.CatchUp && !t.DueAt.After(now) {
			missed = append(missed, t)
			discarded++
			continue
		}
		s.pushLocked(t)
		loaded++
	}
	s.mu.Unlock()
	s.seqMu.Lock()
	s.seqLoaded = true
	s.seqMu.Unlock()

	for _, t := range missed {
		if err := s.store.DeleteTask(ctx, t.ID); err != nil {
			s.log.Warnw("[Scheduler] failed to delete discarded task", "task", t.ID, "err", err)
		}
		taskDiscardedCount.WithLabelValues(t.Kind).Inc()
		s.log.Infow("[Scheduler] discarded missed task", "task", t.ID, "kind", t.Kind, "due", t.DueAt)
	}
	s.log.Infow("[Scheduler] started", "loaded", loaded, "discarded", discarded)

	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()
	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop terminates the firing loop and waits for an in-flight handler to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.log.Info("[Scheduler] stopped")
}

// Create persists a task and queues it. A task due in the past is rejected unless catchUp is set.
func (s *Scheduler) Create(ctx context.Context, kind string, dueAt time.Time, payload model.TaskPayload, catchUp bool) (*model.ScheduledTask, error) {
	if kind == "" {
		return nil, fmt.Errorf("%w: task kind is required", model.ErrValidation)
	}
	now := s.clock.Now()
	if !catchUp && dueAt.Before(now) {
		return nil, fmt.Errorf("%w: task %q due at %s is already in the past", model.ErrValidation, kind, dueAt.Format(time.RFC3339))
	}
	if payload == nil {
		payload = model.TaskPayload{}
	}

	s.lifecycle.RLock()
	defer s.lifecycle.RUnlock()
	seq, err := s.allocSeq(ctx)
	if err != nil {
		return nil, err
	}

	task := model.ScheduledTask{
		ID:        uuid.New().String(),
		Kind:      kind,
		DueAt:     dueAt.UTC().Truncate(time.Millisecond),
		Payload:   payload.Clone(),
		CatchUp:   catchUp,
		Seq:       seq,
		CreatedAt: now.UTC().Truncate(time.Millisecond),
	}
	if err := s.store.PutTask(ctx, &task); err != nil {
		return nil, fmt.Errorf("%w: failed to persist task %q: %w", model.ErrPersistence, kind, err)
	}

	s.mu.Lock()
	s.pushLocked(task)
	s.mu.Unlock()
	s.signal()

	taskCreatedCount.WithLabelValues(kind).Inc()
	s.log.Debugw("[Scheduler] task created", "task", task.ID, "kind", kind, "due", task.DueAt)
	out := task
	out.Payload = task.Payload.Clone()
	return &out, nil
}

// allocSeq hands out the next creation sequence. Before Start has run, the persisted maximum
// is read once so new tasks order after the stored ones.
func (s *Scheduler) allocSeq(ctx context.Context) (int64, error) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	if !s.seqLoaded {
		tasks, err := s.store.ListPendingTasks(ctx)
		if err != nil {
			return 0, fmt.Errorf("%w: failed to load task sequence: %w", model.ErrPersistence, err)
		}
		s.mu.Lock()
		s.bumpSeqLocked(tasks)
		s.mu.Unlock()
		s.seqLoaded = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.nextSeq
	s.nextSeq++
	return seq, nil
}

func (s *Scheduler) bumpSeqLocked(tasks []model.ScheduledTask) {
	for _, t := range tasks {
		if t.Seq >= s.nextSeq {
			s.nextSeq = t.Seq + 1
		}
	}
}

// Cancel removes a pending task. It fails with model.ErrNotFound if the task is unknown or
// already firing/fired: a cancel that loses the race to the firing transition says so.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || e.state != model.TaskPending {
		s.mu.Unlock()
		return fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}
	e.state = model.TaskCancelled
	heap.Remove(&s.queue, e.index)
	delete(s.entries, id)
	s.mu.Unlock()

	if err := s.store.DeleteTask(ctx, id); err != nil {
		// Put it back so the persisted and in-memory views agree.
		s.mu.Lock()
		e.state = model.TaskPending
		s.entries[id] = e
		heap.Push(&s.queue, e)
		s.mu.Unlock()
		s.signal()
		return fmt.Errorf("%w: failed to delete task %s: %w", model.ErrPersistence, id, err)
	}
	s.signal()

	taskCancelledCount.WithLabelValues(e.task.Kind).Inc()
	s.log.Debugw("[Scheduler] task cancelled", "task", id, "kind", e.task.Kind)
	return nil
}

// Get returns a pending task by ID.
func (s *Scheduler) Get(id string) (model.ScheduledTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.state != model.TaskPending {
		return model.ScheduledTask{}, false
	}
	return copyTask(e.task), true
}

// Tasks returns the pending tasks accepted by filter (nil accepts all), in firing order.
func (s *Scheduler) Tasks(filter func(model.ScheduledTask) bool) []model.ScheduledTask {
	s.mu.Lock()
	out := make([]model.ScheduledTask, 0, len(s.entries))
	for _, e := range s.entries {
		if e.state != model.TaskPending {
			continue
		}
		if filter == nil || filter(e.task) {
			out = append(out, copyTask(e.task))
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return before(out[i], out[j]) })
	return out
}

// Pending returns the number of queued tasks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

func (s *Scheduler) pushLocked(t model.ScheduledTask) {
	e := &entry{task: t, state: model.TaskPending}
	s.entries[t.ID] = e
	heap.Push(&s.queue, e)
	pendingTasks.Set(float64(s.queue.Len()))
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		due, next, ok := s.takeDue()
		for _, e := range due {
			if s.ctx.Err() != nil {
				// Stopping mid-batch: the remaining tasks stay persisted and fire after restart.
				return
			}
			s.fire(e)
		}
		if len(due) > 0 {
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if ok {
			timer.Reset(max(next.Sub(s.clock.Now()), 0))
		} else {
			timer.Reset(time.Hour)
		}

		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
		case <-s.wake:
		}
	}
}

// takeDue pops every task due at or before now and moves it to Firing. It also returns the
// next deadline, if any task remains.
func (s *Scheduler) takeDue() (due []*entry, next time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	for s.queue.Len() > 0 {
		head := s.queue[0]
		if head.task.DueAt.After(now) {
			break
		}
		heap.Pop(&s.queue)
		head.state = model.TaskFiring
		due = append(due, head)
	}
	pendingTasks.Set(float64(s.queue.Len()))
	if s.queue.Len() > 0 {
		return due, s.queue[0].task.DueAt, true
	}
	return due, time.Time{}, false
}

func (s *Scheduler) fire(e *entry) {
	task := copyTask(e.task)
	s.mu.Lock()
	h, ok := s.handlers[task.Kind]
	s.mu.Unlock()

	start := time.Now()
	var err error
	if !ok {
		err = fmt.Errorf("%w: no handler registered for kind %q", model.ErrHandler, task.Kind)
	} else {
		err = s.run(h, task)
	}
	taskFireDuration.WithLabelValues(task.Kind).Observe(time.Since(start).Seconds())
	taskFiredCount.WithLabelValues(task.Kind).Inc()

	if err != nil {
		taskErrorCount.WithLabelValues(task.Kind).Inc()
		s.log.Errorw("[Scheduler] task handler failed", "task", task.ID, "kind", task.Kind, "err", err)
		s.reporter.ReportError("Scheduler", task.Kind, err)
	}

	// Completed regardless of the handler result: tasks are never retried.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.DeleteTask(ctx, task.ID); err != nil {
		s.log.Errorw("[Scheduler] failed to delete completed task", "task", task.ID, "err", err)
		s.reporter.ReportError("Scheduler", "delete task", fmt.Errorf("%w: task %s: %w", model.ErrPersistence, task.ID, err))
	}

	s.mu.Lock()
	e.state = model.TaskCompleted
	delete(s.entries, task.ID)
	s.mu.Unlock()
}

// run invokes h with a deadline and turns panics into handler errors.
func (s *Scheduler) run(h Handler, task model.ScheduledTask) (err error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: handler for %q panicked: %v", model.ErrHandler, task.Kind, r)
		}
	}()
	if err := h.Run(ctx, task); err != nil {
		return fmt.Errorf("%w: task %s (%s): %w", model.ErrHandler, task.ID, task.Kind, err)
	}
	return nil
}

func copyTask(t model.ScheduledTask) model.ScheduledTask {
	t.Payload = t.Payload.Clone()
	return t
}
