package utils

import (
	"time"

	"modbot/model"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type LogLevel string

const (
	Info  LogLevel = "INFO"
	Warn  LogLevel = "WARN"
	Error LogLevel = "ERROR"
)

func getColor(level LogLevel) int {
	switch level {
	case Info:
		return 3066993 // Green
	case Warn:
		return 15105570 // Orange
	case Error:
		return 15158332 // Red
	default:
		return 3447003 // Blue
	}
}

// ChannelSender is the part of the Discord session the log channel needs.
type ChannelSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// ChannelReporter writes failures to the zap logger and mirrors them as embeds into a Discord
// log channel. It implements model.ErrorReporter.
type ChannelReporter struct {
	sender    ChannelSender
	channelID string
	log       *zap.SugaredLogger
}

var _ model.ErrorReporter = (*ChannelReporter)(nil)

// NewChannelReporter creates a reporter. With an empty channelID it only logs.
func NewChannelReporter(sender ChannelSender, channelID string, logger *zap.SugaredLogger) *ChannelReporter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ChannelReporter{sender: sender, channelID: channelID, log: logger}
}

func (r *ChannelReporter) ReportError(module, operation string, err error) {
	if err == nil {
		return
	}
	r.log.Errorw("["+module+"] "+operation+" failed", "err", err)
	r.send(Error, module, operation, err.Error())
}

func (r *ChannelReporter) LogInfo(module, operation, extraInfo string) {
	r.log.Infow("["+module+"] "+operation, "info", extraInfo)
	r.send(Info, module, operation, extraInfo)
}

func (r *ChannelReporter) LogWarn(module, operation, extraInfo string) {
	r.log.Warnw("["+module+"] "+operation, "info", extraInfo)
	r.send(Warn, module, operation, extraInfo)
}

func (r *ChannelReporter) send(level LogLevel, module, operation, extraInfo string) {
	if r.sender == nil || r.channelID == "" {
		return
	}
	embed := &discordgo.MessageEmbed{
		Title: string(level) + " Log",
		Color: getColor(level),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "模块", Value: module},
			{Name: "操作", Value: operation},
			{Name: "附加信息", Value: model.CutText(extraInfo, 1024)},
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if _, err := r.sender.ChannelMessageSendEmbed(r.channelID, embed); err != nil {
		r.log.Warnw("[Log] failed to send log embed", "channel", r.channelID, "err", err)
	}
}
