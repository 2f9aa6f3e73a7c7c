// Package security holds the automated detectors: raid joins and mention spam.
package security

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"modbot/model"
	"modbot/moderation"

	"go.uber.org/zap"
)

// CooldownKind is the task kind that ends a raid lockdown.
const CooldownKind = "raid.cooldown"

const (
	defaultRaidThreshold = 10
	defaultRaidCooldown  = 10 * time.Minute

	payloadRestore = "restore"
)

// CaseCreator records automated cases.
type CaseCreator interface {
	Create(ctx context.Context, req moderation.CreateRequest) (*model.CaseRecord, error)
}

// TaskScheduler is the part of the scheduler the raid guard needs for its cooldown.
type TaskScheduler interface {
	Create(ctx context.Context, kind string, dueAt time.Time, payload model.TaskPayload, catchUp bool) (*model.ScheduledTask, error)
	Cancel(ctx context.Context, id string) error
}

// Protector applies and lifts a guild-wide protective measure during a raid. Lockdown
// returns an opaque restore token that is handed back to Lift, possibly after a restart.
type Protector interface {
	Lockdown(ctx context.Context, guildID string) (restore string, err error)
	Lift(ctx context.Context, guildID, restore string) error
}

// Suspect is a member who joined while the guild was being watched.
type Suspect struct {
	UserID    string
	FirstSeen time.Time
}

type raidState struct {
	suspects       []Suspect
	index          map[string]struct{}
	locked         bool
	lockingDown    bool
	cooldownTaskID string
	restore        string
}

func newRaidState() *raidState {
	return &raidState{index: make(map[string]struct{})}
}

// RaidGuard counts joins per guild and locks the guild down when the threshold is reached.
// Suspects are not evicted by age; they accumulate until cleared, stopped or cooled down.
type RaidGuard struct {
	ledger    CaseCreator
	tasks     TaskScheduler
	protector Protector
	settings  model.SettingsProvider
	reporter  model.ErrorReporter
	clock     model.Clock
	log       *zap.SugaredLogger
	systemID  string

	mu     sync.Mutex
	guilds map[string]*raidState
}

// RaidConfig carries the raid guard's collaborators.
type RaidConfig struct {
	Ledger    CaseCreator
	Tasks     TaskScheduler
	Protector Protector
	Settings  model.SettingsProvider
	Reporter  model.ErrorReporter
	Clock     model.Clock
	Logger    *zap.SugaredLogger
	// SystemID is recorded as the moderator of automated cases.
	SystemID string
}

func NewRaidGuard(cfg RaidConfig) *RaidGuard {
	g := &RaidGuard{
		ledger:    cfg.Ledger,
		tasks:     cfg.Tasks,
		protector: cfg.Protector,
		settings:  cfg.Settings,
		reporter:  cfg.Reporter,
		clock:     cfg.Clock,
		log:       cfg.Logger,
		systemID:  cfg.SystemID,
		guilds:    make(map[string]*raidState),
	}
	if g.reporter == nil {
		g.reporter = model.NopReporter{}
	}
	if g.clock == nil {
		g.clock = model.SystemClock{}
	}
	if g.log == nil {
		g.log = zap.NewNop().Sugar()
	}
	if g.systemID == "" {
		g.systemID = model.SystemModeratorID
	}
	return g
}

func (g *RaidGuard) raidSettings(guildID string) (model.RaidSettings, bool) {
	if g.settings == nil {
		return model.RaidSettings{}, false
	}
	gs, ok := g.settings.Guild(guildID)
	if !ok || !gs.Raid.Enabled {
		return model.RaidSettings{}, false
	}
	rs := gs.Raid
	if rs.Threshold <= 0 {
		rs.Threshold = defaultRaidThreshold
	}
	if rs.Cooldown <= 0 {
		rs.Cooldown = defaultRaidCooldown
	}
	return rs, true
}

// OnJoin records a join. It returns true when this join triggered the lockdown.
func (g *RaidGuard) OnJoin(ctx context.Context, guildID, userID string, ts time.Time) (bool, error) {
	rs, ok := g.raidSettings(guildID)
	if !ok {
		return false, nil
	}

	g.mu.Lock()
	st, ok := g.guilds[guildID]
	if !ok {
		st = newRaidState()
		g.guilds[guildID] = st
	}
	if _, seen := st.index[userID]; !seen {
		st.index[userID] = struct{}{}
		st.suspects = append(st.suspects, Suspect{UserID: userID, FirstSeen: ts})
		raidSuspectCount.Inc()
	}
	if st.locked || len(st.suspects) < rs.Threshold {
		g.mu.Unlock()
		return false, nil
	}
	st.locked = true
	st.lockingDown = true
	suspects := append([]Suspect(nil), st.suspects...)
	g.mu.Unlock()

	raidLockdownCount.Inc()
	g.log.Warnw("[RaidGuard] join threshold reached, locking down", "guild", guildID, "suspects", len(suspects), "threshold", rs.Threshold)

	var errs []error
	restore := ""
	if g.protector != nil {
		r, err := g.protector.Lockdown(ctx, guildID)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to lock down guild %s: %w", guildID, err))
		}
		restore = r
	}

	action := model.ActionBan
	if rs.Action == "kick" {
		action = model.ActionKick
	}
	for _, s := range suspects {
		_, err := g.ledger.Create(ctx, moderation.CreateRequest{
			GuildID:     guildID,
			UserID:      s.UserID,
			ModeratorID: g.systemID,
			Type:        action,
			Reason:      fmt.Sprintf("[Auto-Moderation] Raid protection: %d joins reached the threshold", len(suspects)),
			Execute:     true,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("raid %s on user %s: %w", action, s.UserID, err))
		}
	}

	task, err := g.tasks.Create(ctx, CooldownKind, g.clock.Now().Add(rs.Cooldown), model.TaskPayload{
		model.PayloadGuildID: guildID,
		payloadRestore:       restore,
	}, true)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to schedule raid cooldown for guild %s: %w", guildID, err))
	}

	g.mu.Lock()
	cur, ok := g.guilds[guildID]
	stillLocked := ok && cur == st && st.locked
	if stillLocked {
		st.lockingDown = false
		st.restore = restore
		if task != nil {
			st.cooldownTaskID = task.ID
		}
	}
	g.mu.Unlock()
	if !stillLocked {
		// Stopped while the lockdown was in progress; Stop left the lift to us.
		lift := true
		if task != nil {
			if err := g.tasks.Cancel(ctx, task.ID); err != nil {
				// ErrNotFound: the cooldown already fired and lifted.
				lift = false
				if !errors.Is(err, model.ErrNotFound) {
					errs = append(errs, err)
				}
			}
		}
		if lift && g.protector != nil {
			if err := g.protector.Lift(ctx, guildID, restore); err != nil {
				errs = append(errs, fmt.Errorf("failed to lift raid protection: %w", err))
			}
		}
	}

	if joined := errors.Join(errs...); joined != nil {
		g.reporter.ReportError("RaidGuard", "lockdown", joined)
		return true, joined
	}
	return true, nil
}

// List returns the current suspects in join order.
func (g *RaidGuard) List(guildID string) []Suspect {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.guilds[guildID]
	if !ok {
		return nil
	}
	return append([]Suspect(nil), st.suspects...)
}

// Locked reports whether the guild is in its raid cooldown.
func (g *RaidGuard) Locked(guildID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.guilds[guildID]
	return ok && st.locked
}

// Clear empties the suspect list and leaves the lock state as is.
func (g *RaidGuard) Clear(guildID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.guilds[guildID]
	if !ok {
		return
	}
	if !st.locked {
		delete(g.guilds, guildID)
		return
	}
	st.suspects = nil
	st.index = make(map[string]struct{})
}

// Stop is the manual override: cancels the cooldown, unlocks, clears suspects and lifts
// the protective measure. A lockdown still in progress lifts itself once it has its restore token.
func (g *RaidGuard) Stop(ctx context.Context, guildID string) error {
	g.mu.Lock()
	st, ok := g.guilds[guildID]
	delete(g.guilds, guildID)
	g.mu.Unlock()
	if !ok {
		return nil
	}

	var errs []error
	if st.cooldownTaskID != "" {
		if err := g.tasks.Cancel(ctx, st.cooldownTaskID); err != nil && !errors.Is(err, model.ErrNotFound) {
			errs = append(errs, fmt.Errorf("failed to cancel raid cooldown: %w", err))
		}
	}
	if st.locked && !st.lockingDown && g.protector != nil {
		if err := g.protector.Lift(ctx, guildID, st.restore); err != nil {
			errs = append(errs, fmt.Errorf("failed to lift raid protection: %w", err))
		}
	}
	g.log.Infow("[RaidGuard] raid state stopped", "guild", guildID, "was_locked", st.locked)
	return errors.Join(errs...)
}

// HandleCooldown is the scheduler handler for CooldownKind.
func (g *RaidGuard) HandleCooldown(ctx context.Context, task model.ScheduledTask) error {
	guildID := task.Payload.String(model.PayloadGuildID)
	if guildID == "" {
		return fmt.Errorf("%w: cooldown task %s has no guild", model.ErrValidation, task.ID)
	}

	g.mu.Lock()
	st, ok := g.guilds[guildID]
	if ok && st.cooldownTaskID != "" && st.cooldownTaskID != task.ID {
		// A newer lockdown owns the guild.
		g.mu.Unlock()
		return nil
	}
	delete(g.guilds, guildID)
	g.mu.Unlock()

	g.log.Infow("[RaidGuard] raid cooldown finished", "guild", guildID)
	if g.protector == nil {
		return nil
	}
	return g.protector.Lift(ctx, guildID, task.Payload.String(payloadRestore))
}
