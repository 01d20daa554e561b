package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/taskdeck/pkg/admin"
)

func (a *app) withConsole(cmd *cobra.Command, fn func(ctx context.Context, c *admin.Console) error) error {
	ctx := cmd.Context()
	d, err := a.openDeck(ctx)
	if err != nil {
		return err
	}
	defer d.Close()
	return fn(ctx, admin.New(d.gw, d.auth, admin.Options{Timeout: a.cfg.Gateway.Timeout, Logger: a.log}))
}

func (a *app) adminCommand() *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administer all users' tasks and roles (admins only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withConsole(cmd, func(ctx context.Context, c *admin.Console) error {
				s, err := c.Stats(ctx)
				if err != nil {
					return err
				}
				printf(cmd, "tasks: %d\ncompleted: %d\nadmins: %d\n", s.Total, s.Completed, s.Admins)
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "tasks",
		Short: "Every user's tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withConsole(cmd, func(ctx context.Context, c *admin.Console) error {
				tasks, err := c.Tasks(ctx, query)
				if err != nil {
					return err
				}
				printf(cmd, "%s\n", renderAdminTasks(tasks))
				return nil
			})
		},
	}
	list.Flags().StringVarP(&query, "search", "s", "", "only titles containing this text")

	profiles := &cobra.Command{
		Use:   "profiles",
		Short: "Users and their roles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withConsole(cmd, func(ctx context.Context, c *admin.Console) error {
				ps, err := c.Profiles(ctx, query)
				if err != nil {
					return err
				}
				printf(cmd, "%s\n", renderProfiles(ps))
				return nil
			})
		},
	}
	profiles.Flags().StringVarP(&query, "search", "s", "", "only user IDs containing this text")

	cmd.AddCommand(
		list,
		profiles,
		&cobra.Command{
			Use:   "rm <task-id>",
			Short: "Delete any user's task",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withConsole(cmd, func(ctx context.Context, c *admin.Console) error {
					if err := c.DeleteTask(ctx, args[0]); err != nil {
						return err
					}
					printf(cmd, "Deleted %s.\n", args[0])
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "toggle-role <user-id>",
			Short: "Promote a user to admin or demote an admin",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withConsole(cmd, func(ctx context.Context, c *admin.Console) error {
					role, err := c.ToggleRole(ctx, args[0])
					if err != nil {
						return err
					}
					printf(cmd, "%s is now %s.\n", args[0], role)
					return nil
				})
			},
		},
	)
	return cmd
}
