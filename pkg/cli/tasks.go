package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/taskdeck/pkg/apperr"
	"github.com/harrisonrobin/taskdeck/pkg/model"
	"github.com/harrisonrobin/taskdeck/pkg/tasks"
)

// resolveID expands a unique ID prefix against the visible list.
func resolveID(list []model.Task, prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", &apperr.ValidationError{Field: "id", Msg: "must not be empty"}
	}
	var match string
	for _, t := range list {
		if t.ID == prefix {
			return t.ID, nil
		}
		if strings.HasPrefix(t.ID, prefix) {
			if match != "" {
				return "", &apperr.ValidationError{Field: "id", Msg: fmt.Sprintf("%q is ambiguous", prefix)}
			}
			match = t.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("task %s: %w", prefix, apperr.ErrNotFound)
	}
	return match, nil
}

// withTasks opens the deck, loads the list and runs fn against it.
func (a *app) withTasks(cmd *cobra.Command, fn func(ctx context.Context, d *deck) error) error {
	ctx := cmd.Context()
	d, err := a.openDeck(ctx)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.tasks.Refresh(ctx); err != nil {
		return err
	}
	return fn(ctx, d)
}

// mutate applies op to the task addressed by a prefix, waits for the gateway
// and prints the resulting list.
func (a *app) mutate(cmd *cobra.Command, prefix string, op func(c *tasks.Coordinator, ctx context.Context, id string) (*tasks.Op, error)) error {
	return a.withTasks(cmd, func(ctx context.Context, d *deck) error {
		id, err := resolveID(d.tasks.Tasks(), prefix)
		if err != nil {
			return err
		}
		o, err := op(d.tasks, ctx, id)
		if err != nil {
			return err
		}
		if err := o.Wait(ctx); err != nil {
			return err
		}
		printf(cmd, "%s\n", renderTasks(d.tasks.Tasks(), a.now()))
		return nil
	})
}

func (a *app) bulk(cmd *cobra.Command, op func(c *tasks.Coordinator, ctx context.Context) (*tasks.Op, error)) error {
	return a.withTasks(cmd, func(ctx context.Context, d *deck) error {
		o, err := op(d.tasks, ctx)
		if err != nil {
			return err
		}
		if err := o.Wait(ctx); err != nil {
			return err
		}
		printf(cmd, "%s\n", renderTasks(d.tasks.Tasks(), a.now()))
		return nil
	})
}

func (a *app) tasksCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"t"},
		Short:   "List and change your tasks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTasks(cmd, func(ctx context.Context, d *deck) error {
				printf(cmd, "%s\n", renderTasks(d.tasks.Tasks(), a.now()))
				return nil
			})
		},
	}

	var due, category string
	add := &cobra.Command{
		Use:   "add <title...>",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dueDate, err := model.ParseDue(due)
			if err != nil {
				return err
			}
			c, err := model.ParseCategory(category)
			if err != nil {
				return err
			}
			n := model.NewTask{Title: strings.Join(args, " "), Due: dueDate, Category: c}
			return a.withTasks(cmd, func(ctx context.Context, d *deck) error {
				task, err := d.tasks.Add(ctx, n)
				if err != nil {
					return err
				}
				printf(cmd, "Added %s %q.\n", shortID(task.ID), task.Title)
				return nil
			})
		},
	}
	add.Flags().StringVar(&due, "due", "", "due date, YYYY-MM-DD")
	add.Flags().StringVarP(&category, "category", "c", "", "home, work, study or shop (default home)")

	set := func(use, short string, completed bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.mutate(cmd, args[0], func(c *tasks.Coordinator, ctx context.Context, id string) (*tasks.Op, error) {
					return c.SetCompletion(ctx, id, completed)
				})
			},
		}
	}

	cmd.AddCommand(
		add,
		set("done", "Mark a task complete", true),
		set("undo", "Mark a task incomplete", false),
		&cobra.Command{
			Use:   "toggle <id>",
			Short: "Flip a task's completion",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.mutate(cmd, args[0], (*tasks.Coordinator).Toggle)
			},
		},
		&cobra.Command{
			Use:     "rm <id>",
			Aliases: []string{"delete"},
			Short:   "Delete a task",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.mutate(cmd, args[0], (*tasks.Coordinator).Delete)
			},
		},
		&cobra.Command{
			Use:   "complete-all",
			Short: "Mark every task complete",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.bulk(cmd, (*tasks.Coordinator).CompleteAll)
			},
		},
		&cobra.Command{
			Use:   "clear-done",
			Short: "Delete every completed task",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.bulk(cmd, (*tasks.Coordinator).DeleteCompleted)
			},
		},
	)
	return cmd
}
