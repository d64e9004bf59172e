package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

type channelSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts to a channel through the bot REST API. No gateway
// connection is opened.
type Discord struct {
	session   channelSender
	channelID string
}

func NewDiscord(token, channelID string) (*Discord, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	return &Discord{session: dg, channelID: channelID}, nil
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Notify(ctx context.Context, severity Severity, message string) error {
	content := fmt.Sprintf("**%s** %s", severity, message)
	_, err := d.session.ChannelMessageSend(d.channelID, content, discordgo.WithContext(ctx))
	return err
}
