package handlers

import (
	"context"
	"strings"
	"time"

	"modbot/bot"
	"modbot/utils"

	"github.com/bwmarrin/discordgo"
)

// commandSpamInterval is how often a channel outside the spam channel may run a command.
const commandSpamInterval = 30 * time.Second

type command struct {
	preconditions []Precondition
	run           func(s *discordgo.Session, i *discordgo.InteractionCreate, inv Invocation)
}

func Register(b *bot.Bot) {
	limiter := NewChannelRateLimit(commandSpamInterval)
	b.Maintenance().AddPruner(limiter.Prune)

	b.CommandHandlers = commandHandlers(b, limiter)
	b.ComponentHandlers = map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate){
		moderationsPagePrefix: func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			handleModerationsPage(s, i, b)
		},
	}
	registerReminderDelivery(b)
	addHandlers(b)
}

func commandHandlers(b *bot.Bot, limiter *ChannelRateLimit) map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate) {
	moderator := []Precondition{GuildOnly, RequireLevel(utils.ModeratorPermission)}

	table := map[string]command{
		"moderations": {
			preconditions: moderator,
			run: func(s *discordgo.Session, i *discordgo.InteractionCreate, inv Invocation) {
				handleModerations(s, i, b)
			},
		},
		"case": {
			preconditions: moderator,
			run: func(s *discordgo.Session, i *discordgo.InteractionCreate, inv Invocation) {
				handleCase(s, i, b)
			},
		},
		"mod": {
			preconditions: moderator,
			run: func(s *discordgo.Session, i *discordgo.InteractionCreate, inv Invocation) {
				handleMod(s, i, b, inv)
			},
		},
		"raid": {
			preconditions: moderator,
			run: func(s *discordgo.Session, i *discordgo.InteractionCreate, inv Invocation) {
				handleRaid(s, i, b)
			},
		},
		"remindme": {
			preconditions: []Precondition{limiter.Check},
			run: func(s *discordgo.Session, i *discordgo.InteractionCreate, inv Invocation) {
				handleRemindMe(s, i, b, inv)
			},
		},
		"status": {
			preconditions: []Precondition{GuildOnly, RequireLevel(utils.AdminPermission)},
			run: func(s *discordgo.Session, i *discordgo.InteractionCreate, inv Invocation) {
				SystemInfoHandler(s, i, b)
			},
		},
	}

	handlers := make(map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate), len(table))
	for name, cmd := range table {
		handlers[name] = func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			inv := invocation(b, i)
			if ok, reason := checkPreconditions(inv, cmd.preconditions); !ok {
				b.Log.Debugw("[Commands] precondition failed", "command", name, "user", inv.UserID, "reason", reason)
				utils.SendErrorResponse(s, i, reason)
				return
			}
			cmd.run(s, i, inv)
		}
	}
	return handlers
}

func invocation(b *bot.Bot, i *discordgo.InteractionCreate) Invocation {
	inv := Invocation{GuildID: i.GuildID, ChannelID: i.ChannelID}
	switch {
	case i.Member != nil && i.Member.User != nil:
		inv.UserID = i.Member.User.ID
		inv.RoleIDs = i.Member.Roles
	case i.User != nil:
		inv.UserID = i.User.ID
	}
	if i.GuildID != "" {
		inv.Settings, inv.Configured = b.Guild(i.GuildID)
	}
	return inv
}

func addHandlers(b *bot.Bot) {
	b.Session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.Log.Infof("Logged in as: %v#%v", s.State.User.Username, s.State.User.Discriminator)
	})
	b.Session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		switch i.Type {
		case discordgo.InteractionApplicationCommand:
			if h, ok := b.CommandHandlers[i.ApplicationCommandData().Name]; ok {
				h(s, i)
			}
		case discordgo.InteractionMessageComponent:
			customID := i.MessageComponentData().CustomID
			prefix, _, _ := strings.Cut(customID, ":")
			if h, ok := b.ComponentHandlers[prefix]; ok {
				h(s, i)
			}
		}
	})
	b.Session.AddHandler(func(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
		onMemberJoin(b, m)
	})
	b.Session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		onMessage(s, b, m)
	})
}

// interactionContext bounds the work done for one interaction.
func interactionContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// optionMap indexes options by name, the way every handler reads them.
func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		m[opt.Name] = opt
	}
	return m
}
