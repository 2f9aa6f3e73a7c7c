package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"modbot/model"

	"github.com/bwmarrin/discordgo"
)

// Maintenance runs the bot's periodic housekeeping: pruning idle rate limiters and posting
// the daily moderation summary to each guild's mod-log channel.
type Maintenance struct {
	bot      *Bot
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu      sync.Mutex
	pruners []func()
}

// NewMaintenance creates a new maintenance runner.
func NewMaintenance(b *Bot) *Maintenance {
	return &Maintenance{
		bot:  b,
		done: make(chan struct{}),
	}
}

// AddPruner registers a cleanup func run every ten minutes.
func (m *Maintenance) AddPruner(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruners = append(m.pruners, fn)
}

// Start begins all periodic tasks.
func (m *Maintenance) Start() {
	m.wg.Add(2)
	go m.startScheduledTasks()
	go m.startDailyTasks()
}

// Stop terminates all periodic tasks gracefully.
func (m *Maintenance) Stop() {
	m.stopOnce.Do(func() {
		m.bot.Log.Info("Stopping maintenance...")
		close(m.done)
		m.wg.Wait()
		m.bot.Log.Info("Maintenance stopped.")
	})
}

func (m *Maintenance) startScheduledTasks() {
	defer m.wg.Done()
	pruneTicker := time.NewTicker(10 * time.Minute)
	defer pruneTicker.Stop()

	for {
		select {
		case <-pruneTicker.C:
			m.mu.Lock()
			pruners := append([]func(){}, m.pruners...)
			m.mu.Unlock()
			for _, fn := range pruners {
				fn()
			}
			m.bot.Log.Debugw("[Maintenance] pruned limiters", "pending_tasks", m.bot.Scheduler.Pending())
		case <-m.done:
			return
		}
	}
}

func (m *Maintenance) startDailyTasks() {
	defer m.wg.Done()
	runHour := 5 // 5 AM

	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), runHour, 0, 0, 0, now.Location())
		if !now.Before(next) {
			next = next.Add(24 * time.Hour)
		}

		m.bot.Log.Infof("Next daily moderation report scheduled for: %v", next)
		select {
		case <-time.After(next.Sub(now)):
			m.runDailyReports()
		case <-m.done:
			return
		}
	}
}

func (m *Maintenance) runDailyReports() {
	cfg := m.bot.GetConfig()
	var wg sync.WaitGroup
	workerLimit := 5 // Limit to 5 concurrent workers
	guard := make(chan struct{}, workerLimit)

	for guildID, gs := range cfg.Guilds {
		if gs.ModLogChannelID == "" {
			continue
		}
		wg.Add(1)
		guard <- struct{}{} // Acquire a worker slot

		go func(guildID, channelID string) {
			defer func() {
				<-guard // Release the worker slot
				wg.Done()
			}()
			if err := m.sendDailyReport(guildID, channelID); err != nil {
				m.bot.Reporter.ReportError("Maintenance", "daily report", fmt.Errorf("guild %s: %w", guildID, err))
			}
		}(guildID, gs.ModLogChannelID)
	}
	wg.Wait()
}

func (m *Maintenance) sendDailyReport(guildID, channelID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	entries, err := m.bot.Ledger.FetchAll(ctx, guildID, "")
	if err != nil {
		return err
	}
	since := time.Now().Add(-24 * time.Hour)
	counts := summarizeCases(entries, since)
	if len(counts) == 0 {
		return nil
	}
	embed := &discordgo.MessageEmbed{
		Title:       "每日处罚统计",
		Description: formatSummary(counts),
		Color:       0x5865F2,
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Since %s", since.Format("2006-01-02 15:04"))},
	}
	_, err = m.bot.Session.ChannelMessageSendEmbed(channelID, embed, discordgo.WithContext(ctx))
	return err
}

// summarizeCases counts the cases created at or after since, by title.
func summarizeCases(entries []model.CaseRecord, since time.Time) map[string]int {
	counts := make(map[string]int)
	for _, e := range entries {
		if e.CreatedAt.Before(since) {
			continue
		}
		counts[e.Title()]++
	}
	return counts
}

func formatSummary(counts map[string]int) string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("**%s**: %d", name, counts[name]))
	}
	return strings.Join(lines, "\n")
}
