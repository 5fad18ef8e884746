// Package discord delivers fired deliveries to Discord channels and direct
// messages.
package discord

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/noahxzhu/discord-scheduler/internal/model"
	"github.com/noahxzhu/discord-scheduler/internal/sink"
)

const messageLimit = 2000

type Sink struct {
	api API
}

func NewSink(api API) *Sink {
	return &Sink{api: api}
}

// Deliver resolves the destination, then sends the payload with its mention
// prefix. Only the mentioned role or user is allowed to be pinged.
func (s *Sink) Deliver(ctx context.Context, d model.Delivery) error {
	opt := discordgo.WithContext(ctx)

	channelID, err := s.resolve(d.Destination, opt)
	if err != nil {
		return err
	}
	if uid := d.Payload.MentionUser; uid != "" {
		if _, err := s.api.User(uid, opt); err != nil {
			return fmt.Errorf("%w: user %s: %w", sink.ErrInvalidDestination, uid, err)
		}
	}

	msg := &discordgo.MessageSend{
		Content:         truncate(Render(d.Payload), messageLimit),
		AllowedMentions: allowedMentions(d.Payload),
	}
	if _, err := s.api.ChannelMessageSendComplex(channelID, msg, opt); err != nil {
		return fmt.Errorf("%w: %s: %w", sink.ErrDeliveryFailed, d.Destination, err)
	}
	return nil
}

func (s *Sink) resolve(dest model.Destination, opt discordgo.RequestOption) (string, error) {
	switch dest.Kind {
	case model.KindChannel:
		ch, err := s.api.Channel(dest.ID, opt)
		if err != nil {
			return "", fmt.Errorf("%w: channel %s: %w", sink.ErrInvalidDestination, dest.ID, err)
		}
		return ch.ID, nil
	case model.KindUser:
		ch, err := s.api.UserChannelCreate(dest.ID, opt)
		if err != nil {
			return "", fmt.Errorf("%w: user %s: %w", sink.ErrInvalidDestination, dest.ID, err)
		}
		return ch.ID, nil
	default:
		return "", fmt.Errorf("%w: kind %q", sink.ErrInvalidDestination, dest.Kind)
	}
}

// Render prefixes the content with the role or user mention.
func Render(p model.Payload) string {
	switch {
	case p.MentionRole != "":
		return "<@&" + p.MentionRole + "> " + p.Content
	case p.MentionUser != "":
		return "<@" + p.MentionUser + "> " + p.Content
	default:
		return p.Content
	}
}

func allowedMentions(p model.Payload) *discordgo.MessageAllowedMentions {
	am := &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}}
	if p.MentionRole != "" {
		am.Roles = []string{p.MentionRole}
	}
	if p.MentionUser != "" {
		am.Users = []string{p.MentionUser}
	}
	return am
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-1]) + "…"
}
