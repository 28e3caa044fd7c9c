package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/marketsync/internal/api"
	"github.com/vovakirdan/marketsync/internal/notifications"
	"github.com/vovakirdan/marketsync/internal/proto"
)

func (a *App) newNotificationsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notif"},
		Short:   "Manage the notification inbox",
	}
	cmd.AddCommand(
		a.newNotificationsListCommand(),
		a.notificationAction("unread", "Show the unread count", cobra.NoArgs,
			func(ctx context.Context, c *api.Client, _ []string, out io.Writer) error {
				n, err := c.UnreadCount(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, n)
				return nil
			}),
		a.notificationAction("read <id>", "Mark one notification read", cobra.ExactArgs(1),
			func(ctx context.Context, c *api.Client, args []string, out io.Writer) error {
				if err := c.MarkNotificationRead(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "Marked %s read\n", args[0])
				return nil
			}),
		a.notificationAction("read-all", "Mark every notification read", cobra.NoArgs,
			func(ctx context.Context, c *api.Client, _ []string, out io.Writer) error {
				n, err := c.MarkAllNotificationsRead(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Marked %d notifications read\n", n)
				return nil
			}),
		a.notificationAction("delete <id>", "Delete one notification", cobra.ExactArgs(1),
			func(ctx context.Context, c *api.Client, args []string, out io.Writer) error {
				if err := c.DeleteNotification(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "Deleted %s\n", args[0])
				return nil
			}),
		a.notificationAction("clear", "Delete the whole inbox", cobra.NoArgs,
			func(ctx context.Context, c *api.Client, _ []string, out io.Writer) error {
				n, err := c.ClearNotifications(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Deleted %d notifications\n", n)
				return nil
			}),
	)
	return cmd
}

// notificationAction builds a subcommand that runs fn with an authenticated API client.
func (a *App) notificationAction(use, short string, args cobra.PositionalArgs, fn func(context.Context, *api.Client, []string, io.Writer) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, done, err := a.sessionClient(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			return fn(cmd.Context(), client, args, cmd.OutOrStdout())
		},
	}
}

func (a *App) newNotificationsListCommand() *cobra.Command {
	var (
		params     api.ListParams
		unreadOnly bool
		output     string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List one page of notifications",
		Example: `  marketsync notifications list --unread
  marketsync notifications list --category booking --page 2 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, done, err := a.sessionClient(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			if unreadOnly {
				read := false
				params.IsRead = &read
			}
			list, err := client.ListNotifications(cmd.Context(), params)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch output {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			case "", "table":
				return writeNotificationTable(out, list, time.Now())
			default:
				return fmt.Errorf("unknown output format %q", output)
			}
		},
	}
	cmd.Flags().IntVar(&params.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&params.Limit, "limit", notifications.DefaultPageSize, "page size")
	cmd.Flags().StringVar(&params.Category, "category", "", "filter by category")
	cmd.Flags().BoolVar(&unreadOnly, "unread", false, "only unread notifications")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table or json")
	return cmd
}

// sessionClient returns an API client authenticated by the stored session.
func (a *App) sessionClient(ctx context.Context) (*api.Client, func(), error) {
	_, sess, st, err := a.credentials(ctx)
	if err != nil {
		return nil, nil, err
	}
	client, err := a.apiClient(sess)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	return client, func() { _ = st.Close() }, nil
}

func writeNotificationTable(out io.Writer, list *api.NotificationList, now time.Time) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tCATEGORY\tPRIORITY\tTITLE\tWHEN")
	for i := range list.Notifications {
		n := &list.Notifications[i]
		marker := "*"
		if n.IsRead {
			marker = " "
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", marker, n.ID, n.Category, n.Priority, n.Title, when(n, now))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "page %d, %d of %d shown, %d unread\n",
		list.Page, len(list.Notifications), list.Total, list.UnreadCount)
	return nil
}

func when(n *proto.Notification, now time.Time) string {
	created, ok := notifications.ParseTimestamp(n.CreatedAt)
	if !ok {
		return n.CreatedAt
	}
	return notifications.RelativeTime(created, now)
}
