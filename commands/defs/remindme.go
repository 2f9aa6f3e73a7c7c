package defs

import "github.com/bwmarrin/discordgo"

var RemindMe = &discordgo.ApplicationCommand{
	Name:        "remindme",
	Description: "Schedule a reminder",
	NameLocalizations: &map[discordgo.Locale]string{
		discordgo.ChineseCN: "提醒我",
		discordgo.ChineseTW: "提醒我",
	},
	DescriptionLocalizations: &map[discordgo.Locale]string{
		discordgo.ChineseCN: "设置一个提醒",
		discordgo.ChineseTW: "設置一個提醒",
	},
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "create",
			Description: "创建提醒，例如 \"in 10m to 喝水\" 或 \"喝水 in 10m\"",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "text",
					Description: "提醒内容",
					Required:    true,
					MaxLength:   1500,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "time",
					Description: "多久之后提醒，例如 10m、2h、1d",
					Required:    false,
				},
			},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "list",
			Description: "列出我的提醒",
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "delete",
			Description: "删除提醒",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "id",
					Description: "提醒 ID",
					Required:    true,
				},
			},
		},
	},
}

var Status = &discordgo.ApplicationCommand{
	Name:        "status",
	Description: "Show system information",
	NameLocalizations: &map[discordgo.Locale]string{
		discordgo.ChineseCN: "系统信息",
		discordgo.ChineseTW: "系統資訊",
	},
	DescriptionLocalizations: &map[discordgo.Locale]string{
		discordgo.ChineseCN: "显示机器人运行状态",
		discordgo.ChineseTW: "顯示機器人運行狀態",
	},
}
