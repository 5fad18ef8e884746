// Package bot implements the chat commands that feed the delivery queues.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Request is one parsed command invocation.
type Request struct {
	AuthorID  string
	ChannelID string
	GuildID   string
	Args      string // everything after the command name, original spacing and case
	IsAdmin   bool
}

type Response struct {
	Content string
	Embed   *discordgo.MessageEmbed
}

func Text(format string, a ...any) Response {
	return Response{Content: fmt.Sprintf(format, a...)}
}

type command struct {
	Name        string
	Description string
	AdminOnly   bool
	Exec        func(ctx context.Context, req Request) Response
}

// Permissions looks up a member's effective permissions in a channel.
type Permissions interface {
	UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)
}

type Router struct {
	prefix   string
	perms    Permissions
	commands map[string]*command
}

func NewRouter(prefix string, perms Permissions) *Router {
	r := &Router{
		prefix:   prefix,
		perms:    perms,
		commands: make(map[string]*command),
	}
	r.AddCommand("help", "list available commands", false, r.help)
	return r
}

// AddCommand registers exec under name. Admin-only commands are refused for
// members without Administrator or Manage Server.
func (r *Router) AddCommand(name, description string, adminOnly bool, exec func(ctx context.Context, req Request) Response) {
	r.commands[strings.ToLower(name)] = &command{
		Name:        name,
		Description: description,
		AdminOnly:   adminOnly,
		Exec:        exec,
	}
	slog.Debug("Command added", "name", name)
}

// Dispatch parses content and runs the matching command. ok is false when the
// message is not a command for this bot.
func (r *Router) Dispatch(ctx context.Context, authorID, channelID, guildID, content string) (resp Response, ok bool) {
	if !strings.HasPrefix(content, r.prefix) {
		return Response{}, false
	}
	name, args := nextToken(strings.TrimPrefix(content, r.prefix))
	com, found := r.commands[strings.ToLower(name)]
	if !found {
		return Response{}, false
	}

	req := Request{
		AuthorID:  authorID,
		ChannelID: channelID,
		GuildID:   guildID,
		Args:      args,
	}
	if com.AdminOnly {
		if guildID == "" {
			return Text("This command only works in a server."), true
		}
		req.IsAdmin = r.isAdmin(authorID, channelID)
		if !req.IsAdmin {
			return Text("You need the Administrator or Manage Server permission to do that."), true
		}
	}
	return com.Exec(ctx, req), true
}

func (r *Router) isAdmin(userID, channelID string) bool {
	perms, err := r.perms.UserChannelPermissions(userID, channelID)
	if err != nil {
		slog.Warn("Failed to read member permissions", "user", userID, "channel", channelID, "error", err)
		return false
	}
	return perms&(discordgo.PermissionAdministrator|discordgo.PermissionManageServer) != 0
}

func (r *Router) help(_ context.Context, _ Request) Response {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	e := NewEmbed().SetTitle("Commands").SetColor(colorBlue)
	for _, name := range names {
		com := r.commands[name]
		desc := com.Description
		if com.AdminOnly {
			desc += " (admin)"
		}
		e.AddField(r.prefix+com.Name, desc, false)
	}
	return Response{Embed: e.MessageEmbed}
}

// Replier sends command responses back to Discord.
type Replier interface {
	SendMessage(channelID, message string)
	SendEmbed(channelID string, embed *discordgo.MessageEmbed)
}

// OnMessageCreate returns a discordgo handler that dispatches commands and
// replies in the originating channel.
func (r *Router) OnMessageCreate(reply Replier) func(*discordgo.Session, *discordgo.MessageCreate) {
	return func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		// Always ignore bot users (including itself)
		if m.Author == nil || m.Author.Bot {
			return
		}
		resp, ok := r.Dispatch(context.Background(), m.Author.ID, m.ChannelID, m.GuildID, m.Content)
		if !ok {
			return
		}
		if resp.Embed != nil {
			reply.SendEmbed(m.ChannelID, resp.Embed)
		}
		if resp.Content != "" {
			reply.SendMessage(m.ChannelID, resp.Content)
		}
	}
}

// nextToken splits off the first whitespace separated word.
func nextToken(s string) (tok, rest string) {
	s = strings.TrimLeft(s, " \t\n")
	i := strings.IndexAny(s, " \t\n")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeft(s[i:], " \t\n")
}
