package bot

import (
	"context"
	"fmt"
	"strconv"

	"modbot/model"

	"github.com/bwmarrin/discordgo"
)

// GuildAPI is the slice of *discordgo.Session the executor and protector use.
type GuildAPI interface {
	GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error
	GuildBanDelete(guildID, userID string, options ...discordgo.RequestOption) error
	GuildMemberDeleteWithReason(guildID, userID, reason string, options ...discordgo.RequestOption) error
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberMute(guildID, userID string, mute bool, options ...discordgo.RequestOption) error
	GuildMemberMove(guildID, userID string, channelID *string, options ...discordgo.RequestOption) error
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	GuildEdit(guildID string, g *discordgo.GuildParams, options ...discordgo.RequestOption) (*discordgo.Guild, error)
}

// DiscordExecutor performs case actions on Discord.
type DiscordExecutor struct {
	api      GuildAPI
	settings model.SettingsProvider
}

func NewDiscordExecutor(api GuildAPI, settings model.SettingsProvider) *DiscordExecutor {
	return &DiscordExecutor{api: api, settings: settings}
}

func auditReason(rec model.CaseRecord) string {
	return model.CutText(fmt.Sprintf("Case #%d: %s", rec.CaseID, rec.DisplayReason()), 512)
}

func (e *DiscordExecutor) role(guildID string, t model.ActionType) (string, error) {
	gs, _ := e.settings.Guild(guildID)
	roleID := gs.RestrictedRoleID
	if t.Base() == model.ActionMute {
		roleID = gs.MuteRoleID
	}
	if roleID == "" {
		return "", fmt.Errorf("no role configured for %s in guild %s", t.Base(), guildID)
	}
	return roleID, nil
}

// Apply carries out rec on the platform. Warnings and locks are record-only.
func (e *DiscordExecutor) Apply(ctx context.Context, rec model.CaseRecord) error {
	opts := []discordgo.RequestOption{discordgo.WithContext(ctx), discordgo.WithAuditLogReason(auditReason(rec))}
	g, u := rec.GuildID, rec.UserID

	switch rec.Type.Base() {
	case model.ActionWarning, model.ActionLock:
		return nil
	case model.ActionMute, model.ActionRestrictedReaction, model.ActionRestrictedEmbed,
		model.ActionRestrictedAttachment, model.ActionRestrictedVoice:
		roleID, err := e.role(g, rec.Type)
		if err != nil {
			return err
		}
		return e.api.GuildMemberRoleAdd(g, u, roleID, opts...)
	case model.ActionKick:
		return e.api.GuildMemberDeleteWithReason(g, u, auditReason(rec), discordgo.WithContext(ctx))
	case model.ActionSoftBan:
		if err := e.api.GuildBanCreateWithReason(g, u, auditReason(rec), 1, discordgo.WithContext(ctx)); err != nil {
			return err
		}
		return e.api.GuildBanDelete(g, u, opts...)
	case model.ActionBan:
		return e.api.GuildBanCreateWithReason(g, u, auditReason(rec), 0, discordgo.WithContext(ctx))
	case model.ActionVoiceMute:
		return e.api.GuildMemberMute(g, u, true, opts...)
	case model.ActionVoiceKick:
		return e.api.GuildMemberMove(g, u, nil, opts...)
	default:
		return fmt.Errorf("unsupported action %s", rec.Type)
	}
}

// Revert undoes a temporary action. Instantaneous actions have nothing to undo.
func (e *DiscordExecutor) Revert(ctx context.Context, rec model.CaseRecord) error {
	opts := []discordgo.RequestOption{discordgo.WithContext(ctx), discordgo.WithAuditLogReason(auditReason(rec))}
	g, u := rec.GuildID, rec.UserID

	switch rec.Type.Base() {
	case model.ActionMute, model.ActionRestrictedReaction, model.ActionRestrictedEmbed,
		model.ActionRestrictedAttachment, model.ActionRestrictedVoice:
		roleID, err := e.role(g, rec.Type)
		if err != nil {
			return err
		}
		return e.api.GuildMemberRoleRemove(g, u, roleID, opts...)
	case model.ActionBan:
		return e.api.GuildBanDelete(g, u, opts...)
	case model.ActionVoiceMute:
		return e.api.GuildMemberMute(g, u, false, opts...)
	default:
		return nil
	}
}

// DiscordProtector raises the guild verification level during a raid.
type DiscordProtector struct {
	api GuildAPI
}

func NewDiscordProtector(api GuildAPI) *DiscordProtector {
	return &DiscordProtector{api: api}
}

func (p *DiscordProtector) Lockdown(ctx context.Context, guildID string) (string, error) {
	guild, err := p.api.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to fetch guild: %w", err)
	}
	previous := guild.VerificationLevel
	if previous >= discordgo.VerificationLevelVeryHigh {
		return strconv.Itoa(int(previous)), nil
	}
	level := discordgo.VerificationLevelVeryHigh
	if _, err := p.api.GuildEdit(guildID, &discordgo.GuildParams{VerificationLevel: &level}, discordgo.WithContext(ctx)); err != nil {
		return "", fmt.Errorf("failed to raise verification level: %w", err)
	}
	return strconv.Itoa(int(previous)), nil
}

func (p *DiscordProtector) Lift(ctx context.Context, guildID, restore string) error {
	if restore == "" {
		return nil
	}
	n, err := strconv.Atoi(restore)
	if err != nil {
		return fmt.Errorf("invalid verification level %q: %w", restore, err)
	}
	level := discordgo.VerificationLevel(n)
	if _, err := p.api.GuildEdit(guildID, &discordgo.GuildParams{VerificationLevel: &level}, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to restore verification level: %w", err)
	}
	return nil
}
