package cli

import (
	"github.com/spf13/cobra"

	"github.com/harrisonrobin/taskdeck/pkg/dashboard"
)

func (a *app) newDashboard(d *deck) *dashboard.Dashboard {
	return dashboard.New(d.store, a.weatherClient(), d.auth, dashboard.Options{
		Latitude:  a.cfg.Weather.Latitude,
		Longitude: a.cfg.Weather.Longitude,
		Now:       a.now,
		Logger:    a.log,
	})
}

func (a *app) dashboardCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Greeting, open tasks and the temperature outside",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.openDeck(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()
			s, err := a.newDashboard(d).Summary(cmd.Context())
			if err != nil {
				return err
			}
			printf(cmd, "%s\n", s.Headline())
			if s.OpenTasks > 0 {
				printf(cmd, "You have %d unfinished tasks.\n", s.OpenTasks)
			} else {
				printf(cmd, "All tasks are done.\n")
			}
			if s.Temperature != nil {
				printf(cmd, "It is %.0f° outside.\n", *s.Temperature)
			}
			return nil
		},
	}
}
