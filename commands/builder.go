package commands

import (
	"modbot/commands/defs"

	"github.com/bwmarrin/discordgo"
)

// GenerateCommands returns every slash command registered in each configured guild.
func GenerateCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		defs.Moderations,
		defs.Case,
		defs.Mod,
		defs.Raid,
		defs.RemindMe,
		defs.Status,
	}
}
