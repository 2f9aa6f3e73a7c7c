package handlers

import (
	"fmt"
	"strings"

	"modbot/bot"
	"modbot/security"
	"modbot/utils"

	"github.com/bwmarrin/discordgo"
)

func formatSuspects(suspects []security.Suspect, locked bool) string {
	if len(suspects) == 0 {
		return "当前没有可疑成员。"
	}
	var sb strings.Builder
	if locked {
		sb.WriteString("🔒 防护已启动\n")
	}
	for _, sp := range suspects {
		fmt.Fprintf(&sb, "<@%s> (%s) <t:%d:R>\n", sp.UserID, sp.UserID, sp.FirstSeen.Unix())
	}
	return cutLines(sb.String())
}

// cutLines keeps whole lines within the embed description limit.
func cutLines(s string) string {
	const limit = 4000
	if len(s) <= limit {
		return s
	}
	return s[:strings.LastIndex(s[:limit], "\n")+1] + "..."
}

func handleRaid(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	sub := i.ApplicationCommandData().Options[0]

	switch sub.Name {
	case "list":
		embed := &discordgo.MessageEmbed{
			Title:       "Raid 可疑成员",
			Description: formatSuspects(b.Raid.List(i.GuildID), b.Raid.Locked(i.GuildID)),
			Color:       0xED4245,
		}
		utils.SendEmbedResponse(s, i, embed, nil, true)
	case "clear":
		b.Raid.Clear(i.GuildID)
		utils.SendSimpleResponse(s, i, "已清空可疑成员列表。")
	case "cool":
		ctx, cancel := interactionContext()
		defer cancel()
		if err := b.Raid.Stop(ctx, i.GuildID); err != nil {
			b.Reporter.ReportError("Raid", "cool", err)
			utils.SendErrorResponse(s, i, "解除防护时出错，请检查服务器验证等级。")
			return
		}
		utils.SendSimpleResponse(s, i, "已解除 Raid 防护。")
	}
}
