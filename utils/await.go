package utils

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/discordgo"
)

// ErrReplyTimeout is returned when no qualifying reply arrived in time.
var ErrReplyTimeout = errors.New("timed out waiting for a reply")

// MessageSource registers message handlers. *discordgo.Session satisfies it.
type MessageSource interface {
	AddHandler(handler interface{}) func()
}

// AwaitReply waits for the next message from userID in channelID.
func AwaitReply(ctx context.Context, src MessageSource, channelID, userID string, timeout time.Duration) (*discordgo.Message, error) {
	replies := make(chan *discordgo.Message, 1)
	remove := src.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.ChannelID != channelID || m.Author == nil || m.Author.ID != userID {
			return
		}
		select {
		case replies <- m.Message:
		default:
		}
	})
	defer remove()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case msg := <-replies:
		return msg, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrReplyTimeout
		}
		return nil, ctx.Err()
	}
}
