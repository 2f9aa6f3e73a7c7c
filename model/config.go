package model

import "time"

// RaidSettings 定义了防突袭检测的配置
type RaidSettings struct {
	Enabled   bool          `mapstructure:"enabled" json:"enabled"`
	Threshold int           `mapstructure:"threshold" json:"threshold"`
	Cooldown  time.Duration `mapstructure:"cooldown" json:"cooldown"`
	// Action is "ban" or "kick"; anything else falls back to ban.
	Action string `mapstructure:"action" json:"action"`
}

// MentionSpamSettings 定义了提及刷屏检测的配置
type MentionSpamSettings struct {
	Enabled         bool          `mapstructure:"enabled" json:"enabled"`
	MentionsAllowed int           `mapstructure:"mentions_allowed" json:"mentions_allowed"`
	Window          time.Duration `mapstructure:"window" json:"window"`
}

// GuildSettings 定义了每个服务器的处罚配置
type GuildSettings struct {
	Name             string              `mapstructure:"name" json:"name"`
	GuildID          string              `mapstructure:"guild_id" json:"guild_id"`
	AdminRoleIDs     []string            `mapstructure:"admin_role_ids" json:"admin_role_ids"`
	ModeratorRoleIDs []string            `mapstructure:"moderator_role_ids" json:"moderator_role_ids"`
	MuteRoleID       string              `mapstructure:"mute_role_id" json:"mute_role_id"`
	RestrictedRoleID string              `mapstructure:"restricted_role_id" json:"restricted_role_id"`
	ModLogChannelID  string              `mapstructure:"modlog_channel_id" json:"modlog_channel_id"`
	SpamChannelID    string              `mapstructure:"spam_channel_id" json:"spam_channel_id"`
	Raid             RaidSettings        `mapstructure:"raid" json:"raid"`
	MentionSpam      MentionSpamSettings `mapstructure:"mention_spam" json:"mention_spam"`
}

// Config 存储应用程序的配置
type Config struct {
	BotToken          string
	AppID             string
	LogChannelID      string
	DatabasePath      string
	ModerationConfig  string
	RedisURL          string
	MetricsAddr       string
	HandlerTimeout    time.Duration
	Debug             bool
	SystemModeratorID string
	Guilds            map[string]GuildSettings
}

// Guild returns the settings for guildID.
func (c *Config) Guild(guildID string) (GuildSettings, bool) {
	g, ok := c.Guilds[guildID]
	return g, ok
}

// SettingsProvider gives components read access to per-guild settings.
type SettingsProvider interface {
	Guild(guildID string) (GuildSettings, bool)
}

// SystemModeratorID is the fallback identity recorded on automated cases.
const SystemModeratorID = "system"
