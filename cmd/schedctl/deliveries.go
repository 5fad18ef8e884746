package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/noahxzhu/discord-scheduler/internal/interval"
	"github.com/noahxzhu/discord-scheduler/internal/model"
	"github.com/noahxzhu/discord-scheduler/internal/web"
	"github.com/spf13/cobra"
)

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <queue>",
		Short: "List pending deliveries in a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			ds, err := newClient(serverAddr, apiToken).list(ctx, args[0])
			if err != nil {
				return err
			}
			if len(ds) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No pending deliveries.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDUE\tREPEAT\tDESTINATION\tMESSAGE")
			for _, d := range ds {
				repeat := "-"
				if d.Repeating() {
					repeat = interval.Name(d.RepeatInterval())
				}
				fmt.Fprintf(tw, "%s\t%s (%s)\t%s\t%s\t%s\n",
					d.ID, d.DueAt.Format(time.RFC3339), humanize.Time(d.DueAt), repeat, d.Destination, d.Payload.Content)
			}
			return tw.Flush()
		},
	}
}

func scheduleCmd() *cobra.Command {
	var (
		kind, to, at, in, repeat, role, user, by string
	)

	cmd := &cobra.Command{
		Use:   "schedule <queue> <message...>",
		Short: "Schedule a delivery",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := web.ScheduleRequest{
				Destination: model.Destination{Kind: model.DestinationKind(kind), ID: to},
				Payload: model.Payload{
					Content:     strings.Join(args[1:], " "),
					MentionRole: role,
					MentionUser: user,
				},
				In:        in,
				Repeat:    repeat,
				CreatedBy: by,
			}
			if at != "" {
				due, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at must be RFC 3339, e.g. 2026-12-24T18:00:00Z: %w", err)
				}
				req.DueAt = &due
			}

			ctx, cancel := requestContext()
			defer cancel()

			d, err := newClient(serverAddr, apiToken).schedule(ctx, args[0], req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scheduled %s for %s (%s)\n", d.ID, d.DueAt.Format(time.RFC3339), humanize.Time(d.DueAt))
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(model.KindChannel), "Destination kind: channel, user or pushover")
	cmd.Flags().StringVar(&to, "to", "", "Destination id (channel id, user id or pushover user key)")
	cmd.Flags().StringVar(&at, "at", "", "Due time in RFC 3339")
	cmd.Flags().StringVar(&in, "in", "", "Delay from now, e.g. 1d2h30m")
	cmd.Flags().StringVar(&repeat, "repeat", "", "Repeat interval: hourly, daily, weekly or e.g. 12h")
	cmd.Flags().StringVar(&role, "role", "", "Role id to mention")
	cmd.Flags().StringVar(&user, "user", "", "User id to mention")
	cmd.Flags().StringVar(&by, "by", "schedctl", "Creator recorded on the delivery")
	_ = cmd.MarkFlagRequired("to")
	cmd.MarkFlagsMutuallyExclusive("at", "in")
	cmd.MarkFlagsOneRequired("at", "in")

	return cmd
}

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "cancel <queue> <id>",
		Aliases: []string{"delete"},
		Short:   "Cancel a pending delivery by id or unique id prefix",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			if err := newClient(serverAddr, apiToken).cancel(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %s\n", args[1])
			return nil
		},
	}
}
