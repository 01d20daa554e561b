package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/harrisonrobin/taskdeck/pkg/apperr"
	"github.com/harrisonrobin/taskdeck/pkg/auth"
	"github.com/harrisonrobin/taskdeck/pkg/calendar"
	"github.com/harrisonrobin/taskdeck/pkg/google"
	"github.com/harrisonrobin/taskdeck/pkg/index"
	"github.com/harrisonrobin/taskdeck/pkg/model"
)

func (a *app) calendarCommand() *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Month view of due tasks and Google Calendar sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.showMonth(cmd, month)
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "month to show, YYYY-MM (default current)")

	show := &cobra.Command{
		Use:   "show",
		Short: "Show a month with the tasks due in it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.showMonth(cmd, month)
		},
	}
	show.Flags().StringVar(&month, "month", "", "month to show, YYYY-MM (default current)")

	link := &cobra.Command{
		Use:   "link <YYYY-MM-DD> [title...]",
		Short: "Print a Google Calendar link creating an event on a day",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := model.ParseDue(args[0])
			if err != nil {
				return err
			}
			if day == nil {
				return &apperr.ValidationError{Field: "date", Msg: "expected YYYY-MM-DD"}
			}
			printf(cmd, "%s\n", calendar.EventURL(*day, strings.Join(args[1:], " ")))
			return nil
		},
	}

	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize Google Calendar access",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := auth.Path(auth.GoogleTokenFile)
			if err != nil {
				return err
			}
			if err := auth.RemoveToken(path); err != nil {
				return err
			}
			if _, err := auth.GoogleClient(cmd.Context(), google.Scopes, true, cmd.OutOrStdout(), a.log); err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}
			printf(cmd, "Authentication successful! Token saved to %s\n", path)
			return nil
		},
	}

	var calendarName string
	sync := &cobra.Command{
		Use:   "sync",
		Short: "Mirror tasks with a due date into Google Calendar",
		Long: `Creates or updates one all-day event per task with a due date in the
configured calendar and removes the events of tasks that were deleted or
lost their due date.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := a.cfg.Calendar.Name
			if calendarName != "" {
				name = calendarName
			}
			return a.withTasks(cmd, func(ctx context.Context, d *deck) error {
				return a.syncCalendar(ctx, cmd, name, d.tasks.Tasks())
			})
		},
	}
	sync.Flags().StringVar(&calendarName, "calendar", "", "Google Calendar name to sync with (overrides config)")

	cmd.AddCommand(show, link, authCmd, sync)
	return cmd
}

func (a *app) showMonth(cmd *cobra.Command, month string) error {
	now := a.now()
	m, err := calendar.ParseMonth(month, now)
	if err != nil {
		return fmt.Errorf("month %q: expected YYYY-MM", month)
	}
	return a.withTasks(cmd, func(ctx context.Context, d *deck) error {
		g := calendar.Month(m, now, d.tasks.Tasks())
		printf(cmd, "%s\n", renderMonth(g))
		for _, week := range g.Weeks {
			for _, day := range week {
				if !day.InMonth {
					continue
				}
				for _, t := range day.Tasks {
					done := " "
					if t.Completed {
						done = "✓"
					}
					printf(cmd, "%s %s %s\n", day.Date.Format("Jan 02"), done, t.Title)
				}
			}
		}
		return nil
	})
}

func (a *app) syncCalendar(ctx context.Context, cmd *cobra.Command, name string, list []model.Task) error {
	hc, err := auth.GoogleClient(ctx, google.Scopes, false, cmd.OutOrStdout(), a.log)
	if err != nil {
		return err
	}
	idx, err := index.NewEventIndex()
	if err != nil {
		a.log.Warn("event index unavailable, searching by task ID only", zap.Error(err))
		idx = nil
	}
	client, err := google.NewClient(ctx, name, idx, a.log, option.WithHTTPClient(hc))
	if err != nil {
		return err
	}
	res, err := client.Sync(ctx, list, a.now())
	printf(cmd, "%s: %d created, %d updated, %d unchanged, %d removed", name, res.Created, res.Updated, res.Unchanged, res.Deleted)
	if res.Failed > 0 {
		printf(cmd, ", %d failed", res.Failed)
	}
	printf(cmd, "\n")
	return err
}
