package bot

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run starts the scheduler, opens the gateway, registers commands and blocks until SIGINT/SIGTERM.
func (b *Bot) Run(cmds []*discordgo.ApplicationCommand) error {
	// Pending tasks are loaded after the handlers are registered so catch-up tasks find them,
	// and before the gateway delivers any interaction that could create a task.
	if err := b.Scheduler.Start(context.Background()); err != nil {
		return err
	}
	if err := b.Session.Open(); err != nil {
		return err
	}

	b.Log.Info("Registering commands for configured guilds...")
	b.RegisteredCommands = make([]*discordgo.ApplicationCommand, 0)
	for guildID := range b.GetConfig().Guilds {
		b.RefreshCommands(guildID, cmds)
	}

	b.maintenance.Start()

	var metrics *http.Server
	if addr := b.GetConfig().MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metrics = &http.Server{Addr: addr, Handler: mux}
		go func() {
			b.Log.Infof("Serving metrics on %s", addr)
			if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				b.Log.Errorw("metrics server failed", "err", err)
			}
		}()
	}

	b.Log.Info("Bot is now running. Press CTRL-C to exit.")
	b.Reporter.LogInfo("System", "Startup", "Bot has started successfully.")
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	if metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metrics.Shutdown(ctx)
	}
	return nil
}

// Maintenance exposes the housekeeping runner so handlers can register pruners.
func (b *Bot) Maintenance() *Maintenance {
	return b.maintenance
}
