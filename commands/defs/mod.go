package defs

import "github.com/bwmarrin/discordgo"

func modSubcommand(name, description string, timed bool) *discordgo.ApplicationCommandOption {
	opts := []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "user",
			Description: "目标用户",
			Required:    true,
		},
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "reason",
			Description: "原因",
			Required:    false,
			MaxLength:   1500,
		},
	}
	if timed {
		opts = append(opts, &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "duration",
			Description: "持续时间，例如 10m、2h、7d，留空为永久",
			Required:    false,
		})
	}
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        name,
		Description: description,
		Options:     opts,
	}
}

var Mod = &discordgo.ApplicationCommand{
	Name:        "mod",
	Description: "Moderate a member and record the case",
	NameLocalizations: &map[discordgo.Locale]string{
		discordgo.ChineseCN: "管理",
		discordgo.ChineseTW: "管理",
	},
	DescriptionLocalizations: &map[discordgo.Locale]string{
		discordgo.ChineseCN: "处罚成员并记录",
		discordgo.ChineseTW: "處罰成員並記錄",
	},
	Options: []*discordgo.ApplicationCommandOption{
		modSubcommand("warn", "警告成员", true),
		modSubcommand("mute", "禁言成员", true),
		modSubcommand("kick", "踢出成员", false),
		modSubcommand("softban", "踢出成员并删除其一天内的消息", false),
		modSubcommand("ban", "封禁成员", true),
		modSubcommand("unmute", "解除禁言", false),
		modSubcommand("unban", "解除封禁", false),
	},
}

var Raid = &discordgo.ApplicationCommand{
	Name:        "raid",
	Description: "Inspect and control raid protection",
	NameLocalizations: &map[discordgo.Locale]string{
		discordgo.ChineseCN: "防突袭",
		discordgo.ChineseTW: "防突襲",
	},
	DescriptionLocalizations: &map[discordgo.Locale]string{
		discordgo.ChineseCN: "查看和控制防突袭保护",
		discordgo.ChineseTW: "查看和控制防突襲保護",
	},
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "list",
			Description: "列出可疑成员",
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "clear",
			Description: "清空可疑成员列表",
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "cool",
			Description: "立即解除防护并恢复验证等级",
		},
	},
}
