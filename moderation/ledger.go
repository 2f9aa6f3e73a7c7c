package moderation

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"modbot/model"

	"go.uber.org/zap"
)

// CaseStore is the persistence contract for case records. Implementations return
// model.ErrNotFound / model.ErrAlreadyInvalidated from GetCase and UpdateCase.
type CaseStore interface {
	NextCaseID(ctx context.Context, guildID string) (int64, error)
	PutCase(ctx context.Context, rec *model.CaseRecord) error
	GetCase(ctx context.Context, guildID string, caseID int64) (*model.CaseRecord, error)
	ListCases(ctx context.Context, q model.CaseQuery) ([]model.CaseRecord, error)
	UpdateCase(ctx context.Context, guildID string, caseID int64, patch model.CasePatch) error
}

// Executor performs the real-world effect of a case on the chat platform.
type Executor interface {
	Apply(ctx context.Context, rec model.CaseRecord) error
	Revert(ctx context.Context, rec model.CaseRecord) error
}

// TaskScheduler is the slice of the scheduler the ledger needs for expiry tasks.
type TaskScheduler interface {
	Create(ctx context.Context, kind string, dueAt time.Time, payload model.TaskPayload, catchUp bool) (*model.ScheduledTask, error)
	Cancel(ctx context.Context, id string) error
	Tasks(filter func(model.ScheduledTask) bool) []model.ScheduledTask
}

const defaultPageSize = 100

// Ledger owns case-ID allocation and the case lifecycle.
type Ledger struct {
	store    CaseStore
	locks    *CaseLock
	tasks    TaskScheduler
	executor Executor
	reporter model.ErrorReporter
	clock    model.Clock
	log      *zap.SugaredLogger
	pageSize int
}

// Option configures optional ledger collaborators.
type Option func(*Ledger)

// WithScheduler enables expiry tasks for temporary cases.
func WithScheduler(tasks TaskScheduler) Option {
	return func(l *Ledger) { l.tasks = tasks }
}

// WithExecutor enables live actions for requests with Execute set.
func WithExecutor(e Executor) Option {
	return func(l *Ledger) { l.executor = e }
}

func WithReporter(r model.ErrorReporter) Option {
	return func(l *Ledger) { l.reporter = r }
}

func WithClock(c model.Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

func WithPageSize(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.pageSize = n
		}
	}
}

// NewLedger creates a ledger over store. locks may be shared with other ledgers of the same store.
func NewLedger(store CaseStore, locks *CaseLock, logger *zap.SugaredLogger, opts ...Option) *Ledger {
	if locks == nil {
		locks = NewCaseLock()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	l := &Ledger{
		store:    store,
		locks:    locks,
		reporter: model.NopReporter{},
		clock:    model.SystemClock{},
		log:      logger,
		pageSize: defaultPageSize,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CreateRequest describes a new case.
type CreateRequest struct {
	GuildID     string
	UserID      string
	ModeratorID string
	Type        model.ActionType
	Reason      string
	Duration    *time.Duration
	// Execute applies the live effect through the executor after the record is stored.
	Execute bool
}

func validateCreate(req CreateRequest) error {
	switch {
	case req.GuildID == "":
		return fmt.Errorf("%w: guild id is required", model.ErrValidation)
	case req.UserID == "":
		return fmt.Errorf("%w: user id is required", model.ErrValidation)
	case req.ModeratorID == "":
		return fmt.Errorf("%w: moderator id is required", model.ErrValidation)
	case !req.Type.Valid():
		return fmt.Errorf("%w: unknown action type %d", model.ErrValidation, req.Type)
	}
	if req.Duration != nil {
		if *req.Duration <= 0 {
			return fmt.Errorf("%w: duration must be positive, got %s", model.ErrValidation, *req.Duration)
		}
		if !req.Type.Temporary() {
			return fmt.Errorf("%w: %s cannot be temporary", model.ErrValidation, req.Type)
		}
	}
	return nil
}

// Create records a new case. The returned error may be non-nil together with a non-nil
// record: the case exists but its live action (model.ErrExecutor) or its expiry task
// (model.ErrPersistence) failed. A nil record means nothing was written.
func (l *Ledger) Create(ctx context.Context, req CreateRequest) (*model.CaseRecord, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	rec, err := l.insert(ctx, &model.CaseRecord{
		GuildID:     req.GuildID,
		UserID:      req.UserID,
		ModeratorID: req.ModeratorID,
		Type:        req.Type,
		Reason:      req.Reason,
		Duration:    req.Duration,
	})
	if err != nil {
		return nil, err
	}
	caseCreatedCount.WithLabelValues(rec.Type.String()).Inc()
	l.log.Infow("[Ledger] case created", "guild", rec.GuildID, "case", rec.CaseID, "type", rec.Type.String(), "user", rec.UserID, "moderator", rec.ModeratorID)

	var errs []error
	if req.Execute {
		if err := l.apply(ctx, *rec); err != nil {
			errs = append(errs, err)
		}
	}
	if rec.Duration != nil {
		if err := l.scheduleExpiry(ctx, rec); err != nil {
			l.reporter.ReportError("Ledger", "schedule expiry", err)
			errs = append(errs, err)
		}
	}
	return rec, errors.Join(errs...)
}

// insert allocates the next ID and writes the record while holding the guild lock.
// A failed write leaves MAX(case_id) untouched, so the ID is not consumed.
func (l *Ledger) insert(ctx context.Context, rec *model.CaseRecord) (*model.CaseRecord, error) {
	release, err := l.lock(ctx, rec.GuildID)
	if err != nil {
		return nil, err
	}
	defer release()
	return l.insertLocked(ctx, rec)
}

func (l *Ledger) lock(ctx context.Context, guildID string) (func(), error) {
	release, err := l.locks.Acquire(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire case lock for guild %s: %w", guildID, err)
	}
	return release, nil
}

func (l *Ledger) insertLocked(ctx context.Context, rec *model.CaseRecord) (*model.CaseRecord, error) {
	id, err := l.store.NextCaseID(ctx, rec.GuildID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to allocate case id for guild %s: %w", model.ErrPersistence, rec.GuildID, err)
	}
	rec.CaseID = id
	rec.CreatedAt = l.clock.Now().UTC().Truncate(time.Millisecond)

	if err := l.store.PutCase(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: failed to write case %d for guild %s: %w", model.ErrPersistence, id, rec.GuildID, err)
	}
	return rec, nil
}

func (l *Ledger) scheduleExpiry(ctx context.Context, rec *model.CaseRecord) error {
	kind := rec.Type.ExpiryKind()
	if l.tasks == nil {
		return fmt.Errorf("%w: case %d recorded but no scheduler is configured for %q", model.ErrPersistence, rec.CaseID, kind)
	}
	payload := model.TaskPayload{
		model.PayloadGuildID: rec.GuildID,
		model.PayloadUserID:  rec.UserID,
		model.PayloadCaseID:  rec.CaseID,
	}
	task, err := l.tasks.Create(ctx, kind, rec.ExpiresAt(), payload, true)
	if err != nil {
		return fmt.Errorf("%w: case %d recorded but expiry task %q not scheduled: %w", model.ErrPersistence, rec.CaseID, kind, err)
	}
	l.log.Debugw("[Ledger] expiry scheduled", "guild", rec.GuildID, "case", rec.CaseID, "task", task.ID, "due", task.DueAt)
	return nil
}

func (l *Ledger) apply(ctx context.Context, rec model.CaseRecord) error {
	if l.executor == nil {
		return nil
	}
	if err := l.executor.Apply(ctx, rec); err != nil {
		err = fmt.Errorf("%w: failed to apply %s to user %s (case %d): %w", model.ErrExecutor, rec.Type, rec.UserID, rec.CaseID, err)
		executorErrorCount.WithLabelValues(rec.Type.String(), "apply").Inc()
		l.reporter.ReportError("Ledger", "apply", err)
		return err
	}
	return nil
}

func (l *Ledger) revert(ctx context.Context, rec model.CaseRecord) error {
	if l.executor == nil {
		return nil
	}
	if err := l.executor.Revert(ctx, rec); err != nil {
		err = fmt.Errorf("%w: failed to revert %s for user %s (case %d): %w", model.ErrExecutor, rec.Type, rec.UserID, rec.CaseID, err)
		executorErrorCount.WithLabelValues(rec.Type.String(), "revert").Inc()
		l.reporter.ReportError("Ledger", "revert", err)
		return err
	}
	return nil
}

// Get returns one case.
func (l *Ledger) Get(ctx context.Context, guildID string, caseID int64) (*model.CaseRecord, error) {
	rec, err := l.store.GetCase(ctx, guildID, caseID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("case %d in guild %s: %w", caseID, guildID, err)
		}
		return nil, fmt.Errorf("%w: failed to read case %d in guild %s: %w", model.ErrPersistence, caseID, guildID, err)
	}
	return rec, nil
}

// Fetch lazily iterates a guild's cases in ascending CaseID order, optionally for one
// subject. Every range over the sequence starts a fresh read.
func (l *Ledger) Fetch(ctx context.Context, guildID, userID string) iter.Seq2[model.CaseRecord, error] {
	return func(yield func(model.CaseRecord, error) bool) {
		var after int64
		for {
			page, err := l.store.ListCases(ctx, model.CaseQuery{
				GuildID:     guildID,
				UserID:      userID,
				AfterCaseID: after,
				Limit:       l.pageSize,
			})
			if err != nil {
				yield(model.CaseRecord{}, fmt.Errorf("%w: failed to list cases for guild %s: %w", model.ErrPersistence, guildID, err))
				return
			}
			for _, rec := range page {
				if !yield(rec, nil) {
					return
				}
				after = rec.CaseID
			}
			if len(page) < l.pageSize {
				return
			}
		}
	}
}

// FetchAll collects Fetch into a slice.
func (l *Ledger) FetchAll(ctx context.Context, guildID, userID string) ([]model.CaseRecord, error) {
	var out []model.CaseRecord
	for rec, err := range l.Fetch(ctx, guildID, userID) {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Invalidate marks a case as reversed. A second call fails with model.ErrAlreadyInvalidated.
// The pending expiry task is cancelled and, unless a newer case of the same type governs the
// user, the live effect is reverted.
func (l *Ledger) Invalidate(ctx context.Context, guildID string, caseID int64) (*model.CaseRecord, error) {
	release, err := l.lock(ctx, guildID)
	if err != nil {
		return nil, err
	}
	err = l.markInvalidated(ctx, guildID, caseID)
	release()
	if err != nil {
		return nil, err
	}
	rec, err := l.Get(ctx, guildID, caseID)
	if err != nil {
		return nil, err
	}
	l.log.Infow("[Ledger] case invalidated", "guild", guildID, "case", caseID)

	l.cancelExpiry(ctx, rec)
	if rec.Type.IsUndo() || rec.Expired(l.clock.Now()) {
		return rec, nil
	}
	if err := l.revertIfUngoverned(ctx, *rec); err != nil {
		return rec, err
	}
	return rec, nil
}

func (l *Ledger) markInvalidated(ctx context.Context, guildID string, caseID int64) error {
	err := l.store.UpdateCase(ctx, guildID, caseID, model.CasePatch{Invalidated: true})
	switch {
	case err == nil:
		caseInvalidatedCount.Inc()
		return nil
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrAlreadyInvalidated):
		return fmt.Errorf("case %d in guild %s: %w", caseID, guildID, err)
	default:
		return fmt.Errorf("%w: failed to invalidate case %d in guild %s: %w", model.ErrPersistence, caseID, guildID, err)
	}
}

// cancelExpiry drops the pending expiry task of rec. A task that already fired is fine.
func (l *Ledger) cancelExpiry(ctx context.Context, rec *model.CaseRecord) {
	if l.tasks == nil || rec.Duration == nil {
		return
	}
	kind := rec.Type.ExpiryKind()
	tasks := l.tasks.Tasks(func(t model.ScheduledTask) bool {
		id, _ := t.Payload.Int64(model.PayloadCaseID)
		return t.Kind == kind && id == rec.CaseID && t.Payload.String(model.PayloadGuildID) == rec.GuildID
	})
	for _, t := range tasks {
		if err := l.tasks.Cancel(ctx, t.ID); err != nil && !errors.Is(err, model.ErrNotFound) {
			l.reporter.ReportError("Ledger", "cancel expiry", fmt.Errorf("case %d task %s: %w", rec.CaseID, t.ID, err))
		}
	}
}

func (l *Ledger) revertIfUngoverned(ctx context.Context, rec model.CaseRecord) error {
	entries, err := l.FetchAll(ctx, rec.GuildID, rec.UserID)
	if err != nil {
		return err
	}
	if g := Governing(entries, rec.Type, rec.UserID, l.clock.Now()); g != nil && g.CaseID != rec.CaseID {
		l.log.Infow("[Ledger] newer case governs, live effect kept", "guild", rec.GuildID, "case", rec.CaseID, "governing", g.CaseID)
		return nil
	}
	return l.revert(ctx, rec)
}

// AppealRequest reverses the governing open case of Type for a user.
type AppealRequest struct {
	GuildID     string
	UserID      string
	ModeratorID string
	Type        model.ActionType
	Reason      string
	Execute     bool
}

// Appeal records a new case of Type|ActionUndo with AppealType set, then invalidates the
// governing case and cancels its expiry. model.ErrNotFound when nothing is open.
// The target is resolved and the appeal written under the guild lock; a failed write
// leaves the target untouched.
func (l *Ledger) Appeal(ctx context.Context, req AppealRequest) (*model.CaseRecord, error) {
	base := req.Type.Base()
	if err := validateCreate(CreateRequest{GuildID: req.GuildID, UserID: req.UserID, ModeratorID: req.ModeratorID, Type: base}); err != nil {
		return nil, err
	}
	if !base.Temporary() {
		return nil, fmt.Errorf("%w: %s cannot be appealed", model.ErrValidation, base)
	}

	rec, target, err := l.recordAppeal(ctx, req, base)
	if err != nil {
		return rec, err
	}
	caseAppealedCount.WithLabelValues(base.String()).Inc()
	l.log.Infow("[Ledger] case appealed", "guild", req.GuildID, "case", rec.CaseID, "appealed", target.CaseID)

	l.cancelExpiry(ctx, target)
	if req.Execute {
		if err := l.revertIfUngoverned(ctx, *target); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

func (l *Ledger) recordAppeal(ctx context.Context, req AppealRequest, base model.ActionType) (*model.CaseRecord, *model.CaseRecord, error) {
	release, err := l.lock(ctx, req.GuildID)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	entries, err := l.FetchAll(ctx, req.GuildID, req.UserID)
	if err != nil {
		return nil, nil, err
	}
	target := Governing(entries, base, req.UserID, l.clock.Now())
	if target == nil {
		return nil, nil, fmt.Errorf("no open %s case for user %s in guild %s: %w", base, req.UserID, req.GuildID, model.ErrNotFound)
	}

	appealType := base
	rec, err := l.insertLocked(ctx, &model.CaseRecord{
		GuildID:     req.GuildID,
		UserID:      req.UserID,
		ModeratorID: req.ModeratorID,
		Type:        base | model.ActionUndo,
		Reason:      req.Reason,
		AppealType:  &appealType,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := l.markInvalidated(ctx, req.GuildID, target.CaseID); err != nil {
		// The appeal is on record; the target stays active with its expiry task.
		l.reporter.ReportError("Ledger", "appeal", fmt.Errorf("appeal case %d: %w", rec.CaseID, err))
		return rec, nil, err
	}
	return rec, target, nil
}

// HandleExpiry is the scheduler handler for every expiry kind ("unmute", "unban", ...).
// Invalidated cases and cases superseded by a newer governing case are skipped.
func (l *Ledger) HandleExpiry(ctx context.Context, task model.ScheduledTask) error {
	guildID := task.Payload.String(model.PayloadGuildID)
	caseID, ok := task.Payload.Int64(model.PayloadCaseID)
	if guildID == "" || !ok {
		return fmt.Errorf("%w: task %s has no case reference", model.ErrValidation, task.ID)
	}
	rec, err := l.Get(ctx, guildID, caseID)
	if err != nil {
		return err
	}
	if rec.Invalidated {
		l.log.Infow("[Ledger] expiry skipped, case invalidated", "guild", guildID, "case", caseID, "kind", task.Kind)
		return nil
	}

	entries, err := l.FetchAll(ctx, guildID, rec.UserID)
	if err != nil {
		return err
	}
	// The expiring case itself is no longer Active at its due time, so look for any other
	// open case of the same type that still holds the user.
	if g := Governing(entries, rec.Type, rec.UserID, l.clock.Now()); g != nil && g.CaseID != rec.CaseID {
		l.log.Infow("[Ledger] expiry skipped, newer case governs", "guild", guildID, "case", caseID, "governing", g.CaseID)
		return nil
	}
	l.log.Infow("[Ledger] case expired", "guild", guildID, "case", caseID, "kind", task.Kind)
	return l.revert(ctx, *rec)
}
