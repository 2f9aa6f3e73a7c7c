package defs

import "github.com/bwmarrin/discordgo"

var caseIDOption = &discordgo.ApplicationCommandOption{
	Type:        discordgo.ApplicationCommandOptionInteger,
	Name:        "id",
	Description: "处罚记录 ID",
	Required:    true,
	MinValue:    &minCaseID,
}

var minCaseID = 1.0

var Moderations = &discordgo.ApplicationCommand{
	Name:        "moderations",
	Description: "List timed moderation records",
	NameLocalizations: &map[discordgo.Locale]string{
		discordgo.ChineseCN: "处罚列表",
		discordgo.ChineseTW: "處罰列表",
	},
	DescriptionLocalizations: &map[discordgo.Locale]string{
		discordgo.ChineseCN: "查看限时处罚记录",
		discordgo.ChineseTW: "查看限時處罰記錄",
	},
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "type",
			Description: "记录类型",
			Required:    false,
			Choices: []*discordgo.ApplicationCommandOptionChoice{
				{Name: "全部限时处罚", Value: "all"},
				{Name: "禁言", Value: "mutes"},
				{Name: "警告", Value: "warnings"},
			},
		},
		{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "user",
			Description: "只显示该用户的记录",
			Required:    false,
		},
	},
}

var Case = &discordgo.ApplicationCommand{
	Name:        "case",
	Description: "Inspect or invalidate a moderation case",
	NameLocalizations: &map[discordgo.Locale]string{
		discordgo.ChineseCN: "处罚记录",
		discordgo.ChineseTW: "處罰記錄",
	},
	DescriptionLocalizations: &map[discordgo.Locale]string{
		discordgo.ChineseCN: "查看或作废处罚记录",
		discordgo.ChineseTW: "查看或作廢處罰記錄",
	},
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "show",
			Description: "查看处罚记录",
			Options:     []*discordgo.ApplicationCommandOption{caseIDOption},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "invalidate",
			Description: "作废处罚记录，并撤销仍在生效的处罚",
			Options:     []*discordgo.ApplicationCommandOption{caseIDOption},
		},
	},
}
