// Package cli is the taskdeck command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harrisonrobin/taskdeck/pkg/config"
	"github.com/harrisonrobin/taskdeck/pkg/logging"
)

// app is the state shared by every command of one invocation.
type app struct {
	cfgPath string
	verbose bool
	backend string

	cfg *config.Config
	log *zap.Logger
	now func() time.Time
	in  io.Reader
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	a := &app{now: time.Now}

	root := &cobra.Command{
		Use:   "taskdeck",
		Short: "Personal task list with AI planning, weather, calendar and a calculator",
		Long: `taskdeck keeps a per-user task list in a hosted Supabase project (or a
local SQLite file), breaks goals into tasks with Gemini, mirrors due dates
into Google Calendar and serves the same features as a JSON API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(a.verbose)
			if err != nil {
				return err
			}
			a.log = logger
			a.in = cmd.InOrStdin()

			cfg, err := config.Load(a.cfgPath)
			if err != nil {
				return err
			}
			if a.backend != "" {
				cfg.Backend = a.backend
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			a.cfg = cfg
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "config file (default ~/.config/taskdeck/config.json)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging on stderr")
	root.PersistentFlags().StringVar(&a.backend, "backend", "", "data backend: supabase or local (overrides config)")

	root.AddCommand(
		a.loginCommand(),
		a.signupCommand(),
		a.logoutCommand(),
		a.whoamiCommand(),
		a.tasksCommand(),
		a.planCommand(),
		a.calcCommand(),
		a.weatherCommand(),
		a.calendarCommand(),
		a.dashboardCommand(),
		a.adminCommand(),
		a.serveCommand(),
		a.configCommand(),
	)
	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
