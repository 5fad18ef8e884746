package discord

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// API is the part of *discordgo.Session the sink and the command router use.
type API interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ API = (*discordgo.Session)(nil)

type Session struct {
	*discordgo.Session
}

func NewSession(token string) (*Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMessages |
		discordgo.IntentDirectMessages |
		discordgo.IntentMessageContent
	return &Session{Session: s}, nil
}

// SendMessage sends a plain reply and logs instead of returning failures.
func (s *Session) SendMessage(channelID, message string) {
	if _, err := s.ChannelMessageSend(channelID, truncate(message, messageLimit)); err != nil {
		slog.Warn("Failed to send message response", "channel", channelID, "error", err)
	}
}

func (s *Session) SendEmbed(channelID string, embed *discordgo.MessageEmbed) {
	if _, err := s.ChannelMessageSendEmbed(channelID, embed); err != nil {
		slog.Warn("Failed to send embed message response", "channel", channelID, "error", err)
	}
}
