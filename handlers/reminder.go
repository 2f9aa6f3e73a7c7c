package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"modbot/bot"
	"modbot/model"
	"modbot/scheduler"
	"modbot/utils"

	"github.com/bwmarrin/discordgo"
)

// ReminderKind is the scheduler kind for /remindme tasks.
const ReminderKind = "reminder"

const (
	minReminderDuration  = time.Minute
	maxReminderDuration  = 5 * 365 * 24 * time.Hour
	reminderReplyTimeout = 30 * time.Second
	reminderMaxAttempts  = 5
	reminderContentLimit = 1500
)

// errReminderNoTime means the input carried no recognizable time; the caller should ask for one.
var errReminderNoTime = errors.New("reminder has no time")

func checkReminderDuration(d time.Duration) error {
	if d < minReminderDuration {
		return fmt.Errorf("%w: reminders must be at least 1 minute away", model.ErrValidation)
	}
	if d > maxReminderDuration {
		return fmt.Errorf("%w: reminders must be at most 5 years away", model.ErrValidation)
	}
	return nil
}

// ParseReminder accepts "in 10m to do X" and "do X in 10m".
// errReminderNoTime is returned together with the content when no time was found.
func ParseReminder(input string) (content string, d time.Duration, err error) {
	input = strings.TrimSpace(input)

	if len(input) > 3 && strings.EqualFold(input[:3], "in ") {
		rest := input[3:]
		if when, what, ok := strings.Cut(rest, " to "); ok {
			if d, perr := utils.ParseDuration(when); perr == nil {
				return finishReminder(what, d)
			}
		}
		if d, perr := utils.ParseDuration(rest); perr == nil {
			return finishReminder("", d)
		}
	}
	if idx := strings.LastIndex(input, " in "); idx >= 0 {
		if d, perr := utils.ParseDuration(input[idx+4:]); perr == nil {
			return finishReminder(input[:idx], d)
		}
	}
	return input, 0, errReminderNoTime
}

func finishReminder(content string, d time.Duration) (string, time.Duration, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", 0, fmt.Errorf("%w: nothing to remind about", model.ErrValidation)
	}
	if err := checkReminderDuration(d); err != nil {
		return "", 0, err
	}
	return model.CutText(content, reminderContentLimit), d, nil
}

// promptDuration asks for a time until a valid one arrives, the reply times out, or the
// attempts run out. notify delivers prompts to the user.
func promptDuration(ctx context.Context, src utils.MessageSource, channelID, userID string, notify func(string)) (time.Duration, error) {
	notify("多久之后提醒你？例如 `10m`、`2h`、`1d`。")
	for attempt := 1; attempt <= reminderMaxAttempts; attempt++ {
		reply, err := utils.AwaitReply(ctx, src, channelID, userID, reminderReplyTimeout)
		if err != nil {
			return 0, err
		}
		d, err := utils.ParseDuration(reply.Content)
		if err == nil {
			err = checkReminderDuration(d)
		}
		if err == nil {
			return d, nil
		}
		if attempt < reminderMaxAttempts {
			notify(fmt.Sprintf("无法识别时间 `%s`，请重试 (%d/%d)。时间需在 1 分钟到 5 年之间。", reply.Content, attempt, reminderMaxAttempts))
		}
	}
	return 0, fmt.Errorf("%w: no valid time after %d attempts", model.ErrValidation, reminderMaxAttempts)
}

func handleRemindMe(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot, inv Invocation) {
	sub := i.ApplicationCommandData().Options[0]
	opts := optionMap(sub.Options)

	switch sub.Name {
	case "create":
		createReminder(s, i, b, inv, opts)
	case "list":
		listReminders(s, i, b, inv)
	case "delete":
		deleteReminder(s, i, b, inv, opts["id"].StringValue())
	}
}

func createReminder(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot, inv Invocation, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	if err := utils.DeferResponse(s, i, true); err != nil {
		b.Log.Warnw("[Reminder] cannot defer interaction", "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), reminderReplyTimeout*reminderMaxAttempts+time.Minute)
	defer cancel()

	content, d, err := ParseReminder(opts["text"].StringValue())
	if opt, ok := opts["time"]; ok {
		d, err = utils.ParseDuration(opt.StringValue())
		if err == nil {
			content, d, err = finishReminder(opts["text"].StringValue(), d)
		} else {
			err = fmt.Errorf("%w: %v", model.ErrValidation, err)
		}
	}
	if errors.Is(err, errReminderNoTime) {
		notify := func(msg string) { utils.SendFollowUp(s, i.Interaction, msg) }
		d, err = promptDuration(ctx, s, inv.ChannelID, inv.UserID, notify)
		if errors.Is(err, utils.ErrReplyTimeout) {
			utils.SendFollowUpError(s, i.Interaction, "等待超时，提醒已取消。")
			return
		}
		content = model.CutText(content, reminderContentLimit)
	}
	if err != nil {
		utils.SendFollowUpError(s, i.Interaction, fmt.Sprintf("无法创建提醒: %v", err))
		return
	}

	task, err := b.Scheduler.Create(ctx, ReminderKind, time.Now().Add(d), model.TaskPayload{
		model.PayloadGuildID:   inv.GuildID,
		model.PayloadUserID:    inv.UserID,
		model.PayloadChannelID: inv.ChannelID,
		model.PayloadContent:   content,
	}, true)
	if err != nil {
		b.Reporter.ReportError("Reminder", "create", err)
		utils.SendFollowUpError(s, i.Interaction, "保存提醒失败，请稍后重试。")
		return
	}
	utils.SendFollowUp(s, i.Interaction, fmt.Sprintf("⏰ 将在 <t:%d:f> 提醒你: %s\nID: `%s`", task.DueAt.Unix(), content, task.ID))
}

func reminderFilter(userID string) func(model.ScheduledTask) bool {
	return func(t model.ScheduledTask) bool {
		return t.Kind == ReminderKind && t.Payload.String(model.PayloadUserID) == userID
	}
}

func formatReminders(tasks []model.ScheduledTask) string {
	if len(tasks) == 0 {
		return "你没有待发送的提醒。"
	}
	var sb strings.Builder
	for _, t := range tasks {
		fmt.Fprintf(&sb, "`%s` <t:%d:R>\n%s\n", t.ID, t.DueAt.Unix(), model.CutText(t.Payload.String(model.PayloadContent), 100))
	}
	return cutLines(sb.String())
}

func listReminders(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot, inv Invocation) {
	tasks := b.Scheduler.Tasks(reminderFilter(inv.UserID))
	embed := &discordgo.MessageEmbed{
		Title:       "我的提醒",
		Description: formatReminders(tasks),
		Color:       0x5865F2,
	}
	utils.SendEmbedResponse(s, i, embed, nil, true)
}

// ownedReminder resolves id to a pending reminder of userID. Other users' tasks are reported
// as not found.
func ownedReminder(get func(string) (model.ScheduledTask, bool), id, userID string) (model.ScheduledTask, error) {
	task, ok := get(strings.TrimSpace(id))
	if !ok || !reminderFilter(userID)(task) {
		return model.ScheduledTask{}, fmt.Errorf("reminder %s: %w", id, model.ErrNotFound)
	}
	return task, nil
}

func deleteReminder(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot, inv Invocation, id string) {
	task, err := ownedReminder(b.Scheduler.Get, id, inv.UserID)
	if err == nil {
		ctx, cancel := interactionContext()
		defer cancel()
		err = b.Scheduler.Cancel(ctx, task.ID)
	}
	msg, failed := outcomeMessage(err, "提醒已删除。")
	if failed {
		utils.SendErrorResponse(s, i, msg)
		return
	}
	utils.SendSimpleResponse(s, i, msg)
}

// deliverReminder DMs the reminder, falling back to the channel it was created in.
func deliverReminder(dm utils.DirectMessenger, task model.ScheduledTask) error {
	userID := task.Payload.String(model.PayloadUserID)
	if userID == "" {
		return fmt.Errorf("reminder %s has no user", task.ID)
	}
	embed := &discordgo.MessageEmbed{
		Title:       "⏰ 提醒",
		Description: task.Payload.String(model.PayloadContent),
		Color:       0x5865F2,
		Timestamp:   task.CreatedAt.Format(time.RFC3339),
	}
	err := utils.SendPrivateEmbedMessage(dm, userID, embed)
	if err == nil {
		return nil
	}
	channelID := task.Payload.String(model.PayloadChannelID)
	if channelID == "" {
		return err
	}
	if _, cerr := dm.ChannelMessageSend(channelID, fmt.Sprintf("<@%s> ⏰ %s", userID, embed.Description)); cerr != nil {
		return errors.Join(err, cerr)
	}
	return nil
}

func registerReminderDelivery(b *bot.Bot) {
	b.Scheduler.RegisterHandler(ReminderKind, scheduler.HandlerFunc(func(ctx context.Context, task model.ScheduledTask) error {
		return deliverReminder(b.Session, task)
	}))
}
