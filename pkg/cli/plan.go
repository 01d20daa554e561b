package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/taskdeck/pkg/gemini"
	"github.com/harrisonrobin/taskdeck/pkg/model"
	"github.com/harrisonrobin/taskdeck/pkg/planner"
)

func (a *app) newPlanner(ctx context.Context, d *deck) (*planner.Expander, error) {
	gen, err := gemini.New(ctx, a.cfg.AI.APIKey, a.cfg.AI.Model)
	if err != nil {
		return nil, err
	}
	return planner.New(gen, d.tasks, planner.Options{
		StepDelay: a.cfg.AI.StepDelay,
		Timeout:   a.cfg.AI.Timeout,
		Logger:    a.log,
	}), nil
}

func (a *app) planCommand() *cobra.Command {
	var due, category string
	cmd := &cobra.Command{
		Use:   "plan <goal...>",
		Short: "Break a goal into tasks with Gemini",
		Long: `Asks the model once for 3 to 6 steps toward the goal and adds one task per
step, in order. If a step fails the steps already added stay.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dueDate, err := model.ParseDue(due)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			d, err := a.openDeck(ctx)
			if err != nil {
				return err
			}
			defer d.Close()
			exp, err := a.newPlanner(ctx, d)
			if err != nil {
				return err
			}

			res, err := exp.Expand(ctx, strings.Join(args, " "), dueDate, model.Category(category))
			for i, step := range res.Steps {
				mark := "✗"
				if i < len(res.Created) {
					mark = "✓"
				}
				printf(cmd, "%s %d. %s\n", mark, i+1, step)
			}
			if err != nil {
				return err
			}
			printf(cmd, "Added %d tasks.\n", len(res.Created))
			return nil
		},
	}
	cmd.Flags().StringVar(&due, "due", "", "due date for every step, YYYY-MM-DD")
	cmd.Flags().StringVarP(&category, "category", "c", "", "category for every step")
	return cmd
}
