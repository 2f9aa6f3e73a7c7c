package main

import (
	"fmt"
	"os"

	"modbot/config"
	"modbot/moderation"
	"modbot/utils/database/cases"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "casectl",
	Short: "Inspect the moderation case ledger offline",
	Long:  `casectl reads and edits the moderation database directly. Run it while the bot is stopped or rely on sqlite's busy timeout.`,
}

var (
	dbPath  string
	guildID string
	verbose bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", config.FromEnv().DatabasePath, "Path to the moderation database")
	rootCmd.PersistentFlags().StringVar(&guildID, "guild", "", "Guild ID")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log ledger activity to stderr")

	rootCmd.AddCommand(casesCmd)
	rootCmd.AddCommand(tasksCmd)
}

// openLedger opens the store and a record-only ledger over it: no executor, no scheduler.
func openLedger() (*cases.Store, *moderation.Ledger, error) {
	store, err := cases.Init(dbPath)
	if err != nil {
		return nil, nil, err
	}
	logger := zap.NewNop()
	if verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}
	return store, moderation.NewLedger(store, moderation.NewCaseLock(), logger.Sugar()), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
