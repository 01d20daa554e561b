package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

func (a *app) weatherCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "weather [city...]",
		Short: "Current weather for a city",
		RunE: func(cmd *cobra.Command, args []string) error {
			city := strings.Join(args, " ")
			if strings.TrimSpace(city) == "" {
				city = a.cfg.Weather.DefaultCity
			}
			rep, err := a.weatherClient().Lookup(cmd.Context(), city)
			if err != nil {
				return err
			}
			printf(cmd, "%s: %.1f°C, %s\n", rep.Place.Name, rep.Conditions.Temperature, rep.Description)
			return nil
		},
	}
}
