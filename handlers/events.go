package handlers

import (
	"context"
	"fmt"
	"time"

	"modbot/bot"

	"github.com/bwmarrin/discordgo"
)

func onMemberJoin(b *bot.Bot, m *discordgo.GuildMemberAdd) {
	if m.Member == nil || m.User == nil || m.User.Bot {
		return
	}
	joinedAt := m.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = time.Now()
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	// OnJoin reports its own failures.
	if triggered, _ := b.Raid.OnJoin(ctx, m.GuildID, m.User.ID, joinedAt); triggered {
		b.Reporter.LogWarn("RaidGuard", "lockdown", fmt.Sprintf("guild %s locked down, triggered by <@%s>", m.GuildID, m.User.ID))
	}
}

// countMentions counts distinct human users mentioned by a message, excluding the author.
func countMentions(m *discordgo.Message) int {
	seen := make(map[string]bool, len(m.Mentions))
	for _, u := range m.Mentions {
		if u == nil || u.Bot || seen[u.ID] || (m.Author != nil && u.ID == m.Author.ID) {
			continue
		}
		seen[u.ID] = true
	}
	return len(seen)
}

func onMessage(s *discordgo.Session, b *bot.Bot, m *discordgo.MessageCreate) {
	if m.GuildID == "" || m.Author == nil || m.Author.Bot {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	n := countMentions(m.Message)
	if n == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	rec, err := b.Mentions.OnMessage(ctx, m.GuildID, m.Author.ID, n)
	if err != nil {
		b.Log.Warnw("[MentionGuard] message not processed", "guild", m.GuildID, "user", m.Author.ID, "err", err)
	}
	if rec == nil {
		return
	}
	if gs, ok := b.Guild(m.GuildID); ok {
		postModLog(s, b, gs, caseEmbed(rec, time.Now()))
	}
}
