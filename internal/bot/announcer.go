package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/noahxzhu/discord-scheduler/internal/interval"
	"github.com/noahxzhu/discord-scheduler/internal/model"
	"github.com/noahxzhu/discord-scheduler/internal/queue"
)

var (
	channelMention = regexp.MustCompile(`^<#(\d+)>$`)
	roleMention    = regexp.MustCompile(`^<@&(\d+)>$`)
	snowflake      = regexp.MustCompile(`^\d{15,21}$`)
)

const shortID = 8

// Announcer schedules server announcements with an optional role ping and
// repeat interval.
type Announcer struct {
	queue  *queue.Queue
	loc    *time.Location
	layout string
	now    func() time.Time
}

func NewAnnouncer(q *queue.Queue, loc *time.Location, layout string) *Announcer {
	return &Announcer{queue: q, loc: loc, layout: layout, now: time.Now}
}

func (a *Announcer) Register(r *Router) {
	r.AddCommand("announce", "schedule, list or delete announcements", true, a.Exec)
}

func (a *Announcer) Exec(_ context.Context, req Request) Response {
	sub, rest := nextToken(req.Args)
	switch strings.ToLower(sub) {
	case "schedule":
		return a.schedule(req, rest)
	case "list":
		return a.list()
	case "delete", "cancel":
		return a.delete(rest)
	default:
		return a.help()
	}
}

func (a *Announcer) help() Response {
	e := NewEmbed().
		SetTitle("📢 Announcer").
		SetDescription("Manage scheduled announcements.").
		SetColor(colorBlue).
		AddField("Schedule", fmt.Sprintf("`announce schedule <%s> <#channel> [@role] [hourly|daily|weekly|1d2h] <message>`", a.layout), false).
		AddField("List", "`announce list`", false).
		AddField("Delete", "`announce delete <id>`", false).
		SetFooter("Times are in " + a.loc.String())
	return Response{Embed: e.MessageEmbed}
}

func (a *Announcer) schedule(req Request, args string) Response {
	usage := Text("Usage: `announce schedule <%s> <#channel> [@role] [repeat] <message>`", a.layout)

	when, args := nextToken(args)
	chTok, args := nextToken(args)
	if when == "" || chTok == "" {
		return usage
	}

	due, err := time.ParseInLocation(a.layout, when, a.loc)
	if err != nil {
		return Text("Invalid datetime format. Use `%s`.", a.layout)
	}
	if !due.After(a.now()) {
		return Text("That time is already in the past.")
	}

	channelID, ok := parseID(chTok, channelMention)
	if !ok {
		return Text("Invalid channel. Mention it like #announcements.")
	}

	var roleID string
	if tok, rest := nextToken(args); roleMention.MatchString(tok) {
		roleID, _ = parseID(tok, roleMention)
		args = rest
	}

	var repeat time.Duration
	if tok, rest := nextToken(args); rest != "" && interval.IsToken(tok) {
		repeat, err = interval.ParseRepeat(tok)
		if err != nil {
			return Text("Invalid repeat interval.")
		}
		args = rest
	}

	message := strings.TrimSpace(args)
	if message == "" {
		return usage
	}

	d, err := a.queue.Schedule(
		model.Destination{Kind: model.KindChannel, ID: channelID},
		model.Payload{Content: message, MentionRole: roleID},
		due, repeat, req.AuthorID,
	)
	if err != nil {
		slog.Error("Failed to schedule announcement", "error", err)
		return Text("Could not save the announcement, try again later.")
	}
	return Text("✅ Announcement scheduled for %s in <#%s>. ID `%s`", due.Format("2006-01-02 15:04 MST"), channelID, d.ID[:min(shortID, len(d.ID))])
}

func (a *Announcer) list() Response {
	items := a.queue.List()
	if len(items) == 0 {
		return Text("No scheduled announcements.")
	}

	e := NewEmbed().SetTitle("Scheduled announcements").SetColor(colorBlue)
	for i, d := range items {
		if i == embedLimitField {
			e.SetFooter(fmt.Sprintf("%d more not shown", len(items)-i))
			break
		}
		role := "None"
		if d.Payload.MentionRole != "" {
			role = "<@&" + d.Payload.MentionRole + ">"
		}
		repeat := "None"
		if d.Repeating() {
			repeat = interval.Name(d.RepeatInterval())
		}
		e.AddField(
			fmt.Sprintf("`%s` | %s", d.ID[:min(shortID, len(d.ID))], d.DueAt.In(a.loc).Format("2006-01-02 15:04")),
			fmt.Sprintf("<#%s> | Role: %s | Repeat: %s | Msg: %s", d.Destination.ID, role, repeat, preview(d.Payload.Content, 30)),
			false,
		)
	}
	return Response{Embed: e.MessageEmbed}
}

func (a *Announcer) delete(args string) Response {
	tok, _ := nextToken(args)
	id, err := a.queue.Resolve(tok)
	switch {
	case errors.Is(err, queue.ErrAmbiguous):
		return Text("That id matches more than one announcement, use more characters.")
	case err != nil:
		return Text("Invalid id.")
	}
	if _, err := a.queue.Cancel(id); err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			return Text("Invalid id.")
		}
		slog.Error("Failed to delete announcement", "id", id, "error", err)
		return Text("Could not delete the announcement, try again later.")
	}
	return Text("✅ Announcement deleted.")
}

func parseID(tok string, mention *regexp.Regexp) (string, bool) {
	if m := mention.FindStringSubmatch(tok); m != nil {
		return m[1], true
	}
	if snowflake.MatchString(tok) {
		return tok, true
	}
	return "", false
}
