package handlers

import (
	"fmt"
	"time"

	"modbot/bot"
	"modbot/model"
	"modbot/moderation"
	"modbot/utils"

	"github.com/bwmarrin/discordgo"
)

const (
	moderationsPagePrefix = "moderations"
	recordsPerPage        = 5
)

// formatCaseTitle renders the heading of one listing entry. Entries no longer in force are struck through.
func formatCaseTitle(e model.CaseRecord, now time.Time) string {
	line := fmt.Sprintf("#%d %s", e.CaseID, e.Title())
	if e.Invalidated || e.Appealed() || e.Expired(now) {
		return "~~" + line + "~~"
	}
	if remaining, ok := e.RemainingTime(now); ok {
		line += fmt.Sprintf(" (Expires in %s)", utils.FormatDuration(remaining))
	}
	return line
}

func formatCaseBody(e model.CaseRecord) string {
	return fmt.Sprintf("用户: <@%s> | 操作者: <@%s> | <t:%d:f>\n%s", e.UserID, e.ModeratorID, e.CreatedAt.Unix(), e.DisplayReason())
}

// renderModerations builds one page of the listing plus its pagination buttons.
func renderModerations(entries []model.CaseRecord, kind moderation.FilterKind, userID string, page int, now time.Time) (*discordgo.MessageEmbed, []discordgo.MessageComponent) {
	filtered := moderation.Filter(entries, kind, userID)
	totalPages := utils.PageCount(len(filtered), recordsPerPage)
	page, start, end := utils.PageBounds(page, len(filtered), recordsPerPage)

	embed := &discordgo.MessageEmbed{
		Title:  fmt.Sprintf("处罚记录 (%s)", kind),
		Color:  0x5865F2,
		Footer: &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("第 %d/%d 页 | 共 %d 条", page, totalPages, len(filtered))},
	}
	if userID != "" {
		embed.Description = fmt.Sprintf("用户: <@%s>", userID)
	}
	if len(filtered) == 0 {
		embed.Description += "\n没有找到相关记录。"
		return embed, nil
	}
	for _, e := range filtered[start:end] {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  formatCaseTitle(e, now),
			Value: formatCaseBody(e),
		})
	}
	return embed, utils.CreatePaginationComponents(page, totalPages, moderationsPagePrefix, string(kind), userID)
}

func handleModerations(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	opts := optionMap(i.ApplicationCommandData().Options)
	kind := moderation.FilterAll
	if opt, ok := opts["type"]; ok {
		kind = moderation.ParseFilterKind(opt.StringValue())
	}
	userID := ""
	if opt, ok := opts["user"]; ok {
		userID = opt.UserValue(nil).ID
	}

	ctx, cancel := interactionContext()
	defer cancel()
	entries, err := b.Ledger.FetchAll(ctx, i.GuildID, userID)
	if err != nil {
		b.Reporter.ReportError("Moderations", "fetch", err)
		utils.SendErrorResponse(s, i, "读取处罚记录失败。")
		return
	}
	embed, components := renderModerations(entries, kind, userID, 1, time.Now())
	utils.SendEmbedResponse(s, i, embed, components, true)
}

func handleModerationsPage(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	_, page, args, err := utils.ParsePageCustomID(i.MessageComponentData().CustomID)
	if err != nil || len(args) < 2 {
		return
	}
	kind, userID := moderation.ParseFilterKind(args[0]), args[1]

	ctx, cancel := interactionContext()
	defer cancel()
	entries, err := b.Ledger.FetchAll(ctx, i.GuildID, userID)
	if err != nil {
		b.Reporter.ReportError("Moderations", "fetch page", err)
		utils.SendErrorResponse(s, i, "读取处罚记录失败。")
		return
	}
	embed, components := renderModerations(entries, kind, userID, page, time.Now())
	utils.UpdateEmbedResponse(s, i, embed, components)
}
