package bot

import (
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

const (
	embedLimitTitle       = 256
	embedLimitDescription = 4096
	embedLimitFieldName   = 256
	embedLimitFieldValue  = 1024
	embedLimitField       = 25
	embedLimitFooter      = 2048
)

const (
	colorBlue  = 0x3498db
	colorGreen = 0x2ecc71
)

// Embed is a wrapper around *discordgo.MessageEmbed that enforces Discord's
// length limits.
type Embed struct {
	*discordgo.MessageEmbed
}

func NewEmbed() *Embed {
	return &Embed{&discordgo.MessageEmbed{}}
}

func (e *Embed) SetTitle(title string) *Embed {
	e.Title = clip(title, embedLimitTitle)
	return e
}

func (e *Embed) SetDescription(description string) *Embed {
	e.Description = clip(description, embedLimitDescription)
	return e
}

// AddField appends a field. Fields past the limit are dropped silently.
func (e *Embed) AddField(name, value string, inline bool) *Embed {
	if len(e.Fields) >= embedLimitField {
		return e
	}
	e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
		Name:   clip(name, embedLimitFieldName),
		Value:  clip(value, embedLimitFieldValue),
		Inline: inline,
	})
	return e
}

func (e *Embed) SetFooter(text string) *Embed {
	e.Footer = &discordgo.MessageEmbedFooter{Text: clip(text, embedLimitFooter)}
	return e
}

func (e *Embed) SetColor(color int) *Embed {
	e.Color = color
	return e
}

func clip(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

// preview shortens s to n runes and marks the cut.
func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
