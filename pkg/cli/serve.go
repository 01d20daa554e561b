package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harrisonrobin/taskdeck/pkg/admin"
	"github.com/harrisonrobin/taskdeck/pkg/server"
)

func (a *app) serveCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the signed-in user's deck as a JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			d, err := a.openDeck(ctx)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := d.tasks.Refresh(ctx); err != nil {
				return err
			}

			deps := server.Deps{
				Tasks:       d.tasks,
				Weather:     a.weatherClient(),
				DefaultCity: a.cfg.Weather.DefaultCity,
				Dashboard:   a.newDashboard(d),
				Now:         a.now,
				Logger:      a.log,
			}
			if d.auth.IsAdmin() {
				deps.Admin = admin.New(d.gw, d.auth, admin.Options{Timeout: a.cfg.Gateway.Timeout, Logger: a.log})
			}
			if exp, err := a.newPlanner(ctx, d); err != nil {
				a.log.Warn("AI planning disabled", zap.Error(err))
			} else {
				deps.Planner = exp
			}

			printf(cmd, "Serving %s on %s\n", d.auth.Email, addr)
			return server.New(deps).Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	return cmd
}
