package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/taskdeck/pkg/config"
)

func (a *app) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := *a.cfg
			if out.AI.APIKey != "" {
				out.AI.APIKey = "(set)"
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(&out)
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set-calendar <name>",
		Short: "Set the default Google Calendar name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cfg.Calendar.Name = args[0]
			if err := config.Save(a.cfgPath, a.cfg); err != nil {
				return err
			}
			printf(cmd, "Default calendar set to: %s\n", args[0])
			return nil
		},
	})
	return cmd
}
