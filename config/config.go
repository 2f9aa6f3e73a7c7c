package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"modbot/model"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultDatabasePath     = "data/moderation.db"
	defaultModerationConfig = "data/moderation.yaml"
	defaultHandlerTimeout   = 30 * time.Second
)

// Load loads the configuration from environment variables and the guild settings file.
func Load() (*model.Config, error) {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Info: .env file not found, relying on environment variables")
	}

	token := os.Getenv("BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("BOT_TOKEN environment variable not set")
	}

	appID := os.Getenv("APP_ID")
	if appID == "" {
		return nil, fmt.Errorf("APP_ID environment variable not set")
	}

	cfg := FromEnv()
	cfg.BotToken = token
	cfg.AppID = appID
	if cfg.SystemModeratorID == "" {
		cfg.SystemModeratorID = appID
	}

	guilds, err := LoadGuildSettings(cfg.ModerationConfig)
	if err != nil {
		return nil, err
	}
	cfg.Guilds = guilds
	return cfg, nil
}

// FromEnv reads the optional settings. It never fails; bad values fall back to defaults.
func FromEnv() *model.Config {
	cfg := &model.Config{
		LogChannelID:      os.Getenv("LOG_CHANNEL_ID"),
		DatabasePath:      getenv("DATABASE_PATH", defaultDatabasePath),
		ModerationConfig:  getenv("MODERATION_CONFIG", defaultModerationConfig),
		RedisURL:          os.Getenv("REDIS_URL"),
		MetricsAddr:       os.Getenv("METRICS_ADDR"),
		HandlerTimeout:    defaultHandlerTimeout,
		Debug:             os.Getenv("DEBUG") == "true",
		SystemModeratorID: os.Getenv("SYSTEM_MODERATOR_ID"),
		Guilds:            make(map[string]model.GuildSettings),
	}
	if cfg.LogChannelID == "" {
		log.Println("Warning: LOG_CHANNEL_ID not set, channel logging will be disabled")
	}
	if v := os.Getenv("HANDLER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Printf("Warning: Invalid HANDLER_TIMEOUT value, using default of %s. Error: %v", defaultHandlerTimeout, err)
		} else {
			cfg.HandlerTimeout = d
		}
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// LoadGuildSettings reads per-guild moderation settings from a YAML/JSON/TOML file keyed by
// guild ID. A missing file yields an empty set.
//
//	guilds:
//	  "123456789":
//	    moderator_role_ids: ["42"]
//	    mute_role_id: "77"
//	    raid: {enabled: true, threshold: 10, cooldown: 10m}
func LoadGuildSettings(path string) (map[string]model.GuildSettings, error) {
	guilds := make(map[string]model.GuildSettings)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			log.Printf("Warning: Config file not found at %s, skipping.", path)
			return guilds, nil
		}
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read moderation config %s: %w", path, err)
	}

	var file struct {
		Guilds map[string]model.GuildSettings `mapstructure:"guilds"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("failed to decode moderation config %s: %w", path, err)
	}
	for id, g := range file.Guilds {
		id = strings.TrimSpace(id)
		if g.GuildID == "" {
			g.GuildID = id
		}
		guilds[id] = g
	}
	return guilds, nil
}
