package main

import (
	"log"
	"os"
	"path/filepath"

	"modbot/bot"
	"modbot/commands"
	"modbot/config"
	"modbot/handlers"
	"modbot/utils/database/cases"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	rawlog, err := zap.NewProduction()
	if cfg.Debug {
		rawlog, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("failed to create logger: %+v", err)
	}
	defer rawlog.Sync()
	zap.ReplaceGlobals(rawlog)
	logger := rawlog.Sugar()

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), os.ModePerm); err != nil {
		logger.Fatalf("Failed to create data directory: %v", err)
	}
	store, err := cases.Init(cfg.DatabasePath)
	if err != nil {
		logger.Fatalf("Error initializing database: %v", err)
	}
	defer store.Close()

	b, err := bot.New(cfg, store, logger)
	if err != nil {
		logger.Fatalf("Error creating bot: %v", err)
	}
	defer b.Close()

	handlers.Register(b)

	if err := b.Run(commands.GenerateCommands()); err != nil {
		logger.Errorf("Bot stopped with error: %v", err)
	}
}
