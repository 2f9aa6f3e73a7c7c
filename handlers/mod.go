package handlers

import (
	"errors"
	"fmt"
	"time"

	"modbot/bot"
	"modbot/model"
	"modbot/moderation"
	"modbot/utils"

	"github.com/bwmarrin/discordgo"
)

// modActions maps /mod subcommands to the case they record.
var modActions = map[string]model.ActionType{
	"warn":    model.ActionWarning,
	"mute":    model.ActionMute,
	"kick":    model.ActionKick,
	"softban": model.ActionSoftBan,
	"ban":     model.ActionBan,
}

// modAppeals maps /mod subcommands that reverse an open case.
var modAppeals = map[string]model.ActionType{
	"unmute": model.ActionMute,
	"unban":  model.ActionBan,
}

// buildCreateRequest turns /mod options into a ledger request.
func buildCreateRequest(guildID, moderatorID string, t model.ActionType, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) (moderation.CreateRequest, error) {
	req := moderation.CreateRequest{
		GuildID:     guildID,
		ModeratorID: moderatorID,
		Type:        t,
		Execute:     true,
	}
	if opt, ok := opts["user"]; ok {
		req.UserID = opt.UserValue(nil).ID
	}
	if opt, ok := opts["reason"]; ok {
		req.Reason = opt.StringValue()
	}
	if opt, ok := opts["duration"]; ok && opt.StringValue() != "" {
		d, err := utils.ParseDuration(opt.StringValue())
		if err != nil {
			return req, fmt.Errorf("%w: %v", model.ErrValidation, err)
		}
		req.Duration = &d
	}
	return req, nil
}

func handleMod(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot, inv Invocation) {
	sub := i.ApplicationCommandData().Options[0]
	opts := optionMap(sub.Options)

	if err := utils.DeferResponse(s, i, false); err != nil {
		b.Log.Warnw("[Mod] cannot defer interaction", "err", err)
		return
	}
	ctx, cancel := interactionContext()
	defer cancel()

	var (
		rec *model.CaseRecord
		err error
	)
	if t, ok := modAppeals[sub.Name]; ok {
		req := moderation.AppealRequest{
			GuildID:     inv.GuildID,
			ModeratorID: inv.UserID,
			Type:        t,
			Execute:     true,
		}
		if opt, ok := opts["user"]; ok {
			req.UserID = opt.UserValue(nil).ID
		}
		if opt, ok := opts["reason"]; ok {
			req.Reason = opt.StringValue()
		}
		rec, err = b.Ledger.Appeal(ctx, req)
	} else {
		t, ok := modActions[sub.Name]
		if !ok {
			return
		}
		var req moderation.CreateRequest
		req, err = buildCreateRequest(inv.GuildID, inv.UserID, t, opts)
		if err == nil {
			rec, err = b.Ledger.Create(ctx, req)
		}
	}

	if rec == nil {
		msg, _ := outcomeMessage(err, "")
		if model.Classify(err) == model.OutcomeFailed {
			b.Reporter.ReportError("Mod", sub.Name, err)
		}
		utils.SendFollowUpError(s, i.Interaction, msg)
		return
	}

	embed := caseEmbed(rec, time.Now())
	embed.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("由 %s 操作", i.Member.User.Username)}
	content := ""
	if err != nil {
		// 记录已写入，但后续步骤失败
		b.Reporter.ReportError("Mod", sub.Name, err)
		if errors.Is(err, model.ErrExecutor) {
			content = "⚠️ 记录已保存，但执行处罚失败，请手动处理。"
		} else {
			content = "⚠️ 记录已保存，但到期任务创建失败。"
		}
	}
	if _, editErr := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
		Embeds:  &[]*discordgo.MessageEmbed{embed},
	}); editErr != nil {
		b.Log.Warnw("[Mod] cannot edit response", "err", editErr)
	}
	postModLog(s, b, inv.Settings, embed)
}

// postModLog mirrors a case to the guild's mod-log channel when one is configured.
func postModLog(s *discordgo.Session, b *bot.Bot, gs model.GuildSettings, embed *discordgo.MessageEmbed) {
	if gs.ModLogChannelID == "" {
		return
	}
	if _, err := s.ChannelMessageSendEmbed(gs.ModLogChannelID, embed); err != nil {
		b.Log.Warnw("[Mod] cannot post to mod log", "channel", gs.ModLogChannelID, "err", err)
	}
}
