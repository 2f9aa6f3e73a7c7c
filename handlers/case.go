package handlers

import (
	"errors"
	"fmt"
	"time"

	"modbot/bot"
	"modbot/model"
	"modbot/utils"

	"github.com/bwmarrin/discordgo"
)

// outcomeMessage picks the user-facing reply for err. okMsg is used on success.
func outcomeMessage(err error, okMsg string) (msg string, failed bool) {
	switch model.Classify(err) {
	case model.OutcomeOK:
		return okMsg, false
	case model.OutcomeAlreadyDone:
		return "该记录已被作废。", true
	case model.OutcomeRejected:
		if errors.Is(err, model.ErrNotFound) {
			return "找不到对应的记录。", true
		}
		return fmt.Sprintf("请求无效: %v", err), true
	default:
		if errors.Is(err, model.ErrExecutor) {
			return "记录已保存，但执行处罚失败，请手动处理。", true
		}
		return "操作失败，请稍后重试。", true
	}
}

func caseEmbed(rec *model.CaseRecord, now time.Time) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("Case #%d", rec.CaseID),
		Color: 0x5865F2,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "类型", Value: rec.Title(), Inline: true},
			{Name: "用户", Value: fmt.Sprintf("<@%s>", rec.UserID), Inline: true},
			{Name: "操作者", Value: fmt.Sprintf("<@%s>", rec.ModeratorID), Inline: true},
			{Name: "原因", Value: rec.DisplayReason()},
		},
		Timestamp: rec.CreatedAt.Format(time.RFC3339),
	}
	if rec.Temporary() {
		value := utils.FormatDuration(*rec.Duration)
		if remaining, _ := rec.RemainingTime(now); remaining > 0 && !rec.Invalidated {
			value += fmt.Sprintf(" (Expires in %s)", utils.FormatDuration(remaining))
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "时长", Value: value, Inline: true})
	}
	if rec.Appealed() {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "申诉类型", Value: rec.AppealType.String(), Inline: true})
	}
	if rec.Invalidated {
		embed.Color = 0x99AAB5
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "已作废"}
	}
	return embed
}

func handleCase(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	sub := i.ApplicationCommandData().Options[0]
	opts := optionMap(sub.Options)
	caseID := opts["id"].IntValue()

	ctx, cancel := interactionContext()
	defer cancel()

	switch sub.Name {
	case "show":
		rec, err := b.Ledger.Get(ctx, i.GuildID, caseID)
		if err != nil {
			msg, _ := outcomeMessage(err, "")
			utils.SendErrorResponse(s, i, msg)
			return
		}
		utils.SendEmbedResponse(s, i, caseEmbed(rec, time.Now()), nil, true)
	case "invalidate":
		_, err := b.Ledger.Invalidate(ctx, i.GuildID, caseID)
		msg, failed := outcomeMessage(err, fmt.Sprintf("Case #%d 已作废。", caseID))
		if failed {
			if model.Classify(err) == model.OutcomeFailed {
				b.Reporter.ReportError("Case", "invalidate", err)
			}
			utils.SendErrorResponse(s, i, msg)
			return
		}
		utils.SendSimpleResponse(s, i, msg)
	}
}
