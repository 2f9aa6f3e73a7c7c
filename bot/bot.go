package bot

import (
	"sync/atomic"
	"time"

	"modbot/config"
	"modbot/model"
	"modbot/moderation"
	"modbot/scheduler"
	"modbot/security"
	"modbot/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Store is the persistence the bot runs on: cases and scheduled tasks.
type Store interface {
	moderation.CaseStore
	scheduler.TaskStore
}

type Bot struct {
	Session            *discordgo.Session
	RegisteredCommands []*discordgo.ApplicationCommand
	config             atomic.Value // *model.Config
	CommandHandlers    map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate)
	ComponentHandlers  map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate)

	Store     Store
	Locks     *moderation.CaseLock
	Ledger    *moderation.Ledger
	Scheduler *scheduler.Scheduler
	Raid      *security.RaidGuard
	Mentions  *security.MentionGuard
	Reporter  *utils.ChannelReporter
	Log       *zap.SugaredLogger

	maintenance *Maintenance
}

func (b *Bot) GetConfig() *model.Config {
	return b.config.Load().(*model.Config)
}

// Guild implements model.SettingsProvider over the current configuration.
func (b *Bot) Guild(guildID string) (model.GuildSettings, bool) {
	return b.GetConfig().Guild(guildID)
}

// SystemID is the moderator recorded on automated cases.
func (b *Bot) SystemID() string {
	if id := b.GetConfig().SystemModeratorID; id != "" {
		return id
	}
	return model.SystemModeratorID
}

func New(cfg *model.Config, store Store, logger *zap.SugaredLogger) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsGuildMembers | discordgo.IntentMessageContent

	b := &Bot{
		Session: dg,
		Store:   store,
		Locks:   moderation.NewCaseLock(),
		Log:     logger,
	}
	b.config.Store(cfg)
	b.Reporter = utils.NewChannelReporter(dg, cfg.LogChannelID, logger)

	b.Scheduler = scheduler.New(store, logger, scheduler.Config{
		Reporter:       b.Reporter,
		HandlerTimeout: cfg.HandlerTimeout,
	})
	b.Ledger = moderation.NewLedger(store, b.Locks, logger,
		moderation.WithScheduler(b.Scheduler),
		moderation.WithExecutor(NewDiscordExecutor(dg, b)),
		moderation.WithReporter(b.Reporter),
	)
	b.Raid = security.NewRaidGuard(security.RaidConfig{
		Ledger:    b.Ledger,
		Tasks:     b.Scheduler,
		Protector: NewDiscordProtector(dg),
		Settings:  b,
		Reporter:  b.Reporter,
		Logger:    logger,
		SystemID:  b.SystemID(),
	})

	var counter security.MentionCounter
	if cfg.RedisURL != "" {
		rc, err := security.NewRedisMentionCounter(cfg.RedisURL)
		if err != nil {
			logger.Warnw("[Bot] redis unavailable, counting mentions in memory", "err", err)
		} else {
			counter = rc
		}
	}
	if counter == nil {
		counter = security.NewMemMentionCounter(10000, time.Hour)
	}
	b.Mentions = security.NewMentionGuard(b.Ledger, counter, b, b.Reporter, logger, b.SystemID())

	b.registerTaskHandlers()
	b.maintenance = NewMaintenance(b)
	return b, nil
}

// registerTaskHandlers binds every expiry kind and the raid cooldown to the scheduler.
func (b *Bot) registerTaskHandlers() {
	seen := make(map[string]bool)
	for t := model.ActionWarning; t <= model.ActionLock; t++ {
		kind := t.ExpiryKind()
		if kind == "" || seen[kind] {
			continue
		}
		seen[kind] = true
		b.Scheduler.RegisterHandler(kind, scheduler.HandlerFunc(b.Ledger.HandleExpiry))
	}
	b.Scheduler.RegisterHandler(security.CooldownKind, scheduler.HandlerFunc(b.Raid.HandleCooldown))
}

func (b *Bot) Close() {
	b.Log.Info("Gracefully shutting down.")
	b.maintenance.Stop()
	b.Scheduler.Stop()
	b.Session.Close()
}

func (b *Bot) RefreshCommands(guildID string, cmds []*discordgo.ApplicationCommand) {
	b.Log.Infof("Registering %d commands for guild %s...", len(cmds), guildID)
	registeredCmds, err := b.Session.ApplicationCommandBulkOverwrite(b.GetConfig().AppID, guildID, cmds)
	if err != nil {
		b.Log.Errorf("cannot update commands for guild '%s': %v", guildID, err)
		return
	}
	b.RegisteredCommands = append(b.RegisteredCommands, registeredCmds...)
}

// ReloadConfig re-reads the environment and the guild settings file.
func (b *Bot) ReloadConfig() error {
	b.Log.Info("Reloading configuration...")
	newCfg, err := config.Load()
	if err != nil {
		b.Log.Errorf("Error reloading config: %v", err)
		return err
	}
	b.config.Store(newCfg)
	b.Log.Infof("Configuration reloaded successfully, %d guilds configured.", len(newCfg.Guilds))
	return nil
}
