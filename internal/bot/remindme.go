package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/noahxzhu/discord-scheduler/internal/interval"
	"github.com/noahxzhu/discord-scheduler/internal/model"
	"github.com/noahxzhu/discord-scheduler/internal/queue"
)

const reminderPrefix = "⏰ Reminder: "

// RemindMe lets anyone set a reminder that pings them in the channel it was
// set from.
type RemindMe struct {
	queue  *queue.Queue
	prefix string
	now    func() time.Time
}

func NewRemindMe(q *queue.Queue, commandPrefix string) *RemindMe {
	return &RemindMe{queue: q, prefix: commandPrefix, now: time.Now}
}

func (rm *RemindMe) Register(r *Router) {
	r.AddCommand("remindme", "set, list or cancel your reminders", false, rm.Exec)
}

func (rm *RemindMe) Exec(_ context.Context, req Request) Response {
	sub, rest := nextToken(req.Args)
	switch strings.ToLower(sub) {
	case "set":
		return rm.set(req, rest)
	case "list":
		return rm.list(req)
	case "cancel", "delete":
		return rm.cancel(req, rest)
	default:
		return rm.help()
	}
}

func (rm *RemindMe) help() Response {
	e := NewEmbed().
		SetTitle("⏰ Reminder Help Menu").
		SetDescription("Set a reminder or view reminder info.").
		SetColor(colorBlue).
		AddField("Set a reminder", fmt.Sprintf("`%sremindme set <time> <message>`", rm.prefix), false).
		AddField("Example", fmt.Sprintf("`%sremindme set 10m Take out the trash`", rm.prefix), false).
		AddField("Your reminders", fmt.Sprintf("`%sremindme list`, `%sremindme cancel <id>`", rm.prefix, rm.prefix), false).
		SetFooter("Time format: d=day, h=hour, m=minute (e.g., 1d2h30m)")
	return Response{Embed: e.MessageEmbed}
}

func (rm *RemindMe) set(req Request, args string) Response {
	tok, message := nextToken(args)
	if tok == "" || message == "" {
		return Text("Usage: `%sremindme set <time> <message>`", rm.prefix)
	}
	delay, err := interval.Parse(tok)
	if err != nil {
		return Text("Time must be greater than zero.")
	}

	now := rm.now()
	due := now.Add(delay)
	d, err := rm.queue.Schedule(
		model.Destination{Kind: model.KindChannel, ID: req.ChannelID},
		model.Payload{Content: reminderPrefix + message, MentionUser: req.AuthorID},
		due, 0, req.AuthorID,
	)
	if err != nil {
		slog.Error("Failed to schedule reminder", "user", req.AuthorID, "error", err)
		return Text("Could not save the reminder, try again later.")
	}
	return Text("Got it! I'll remind you %s. ID `%s`", relative(now, due), d.ID[:min(shortID, len(d.ID))])
}

func (rm *RemindMe) list(req Request) Response {
	var mine []model.Delivery
	for _, d := range rm.queue.List() {
		if d.CreatedBy == req.AuthorID {
			mine = append(mine, d)
		}
	}
	if len(mine) == 0 {
		return Text("You have no pending reminders.")
	}

	now := rm.now()
	e := NewEmbed().SetTitle("Your reminders").SetColor(colorGreen)
	for i, d := range mine {
		if i == embedLimitField {
			e.SetFooter(fmt.Sprintf("%d more not shown", len(mine)-i))
			break
		}
		e.AddField(
			fmt.Sprintf("`%s` | %s", d.ID[:min(shortID, len(d.ID))], relative(now, d.DueAt)),
			preview(strings.TrimPrefix(d.Payload.Content, reminderPrefix), 100),
			false,
		)
	}
	return Response{Embed: e.MessageEmbed}
}

func (rm *RemindMe) cancel(req Request, args string) Response {
	tok, _ := nextToken(args)
	id, n := rm.resolveOwn(req.AuthorID, tok)
	switch {
	case n > 1:
		return Text("That id matches more than one of your reminders, use more characters.")
	case n == 0:
		return Text("No reminder of yours with that id.")
	}
	if _, err := rm.queue.Cancel(id); err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			return Text("No reminder of yours with that id.")
		}
		slog.Error("Failed to cancel reminder", "id", id, "error", err)
		return Text("Could not cancel the reminder, try again later.")
	}
	return Text("✅ Reminder cancelled.")
}

// resolveOwn matches prefix against the author's reminders only, so other
// users' ids never make a prefix ambiguous. n is the number of matches.
func (rm *RemindMe) resolveOwn(authorID, prefix string) (id string, n int) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", 0
	}
	for _, d := range rm.queue.List() {
		if d.CreatedBy != authorID {
			continue
		}
		if d.ID == prefix {
			return d.ID, 1
		}
		if strings.HasPrefix(d.ID, prefix) {
			id = d.ID
			n++
		}
	}
	return id, n
}

// relative renders due relative to now, e.g. "2 hours from now".
func relative(now, due time.Time) string {
	if !due.After(now) {
		return "now"
	}
	return strings.TrimSpace(humanize.RelTime(now, due, "from now", "ago"))
}
