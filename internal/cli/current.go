package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCurrentCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Print the active gcloud project",
		Args:  cobra.NoArgs,
		RunE: app.widgetSafe(func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.gcloudConfig(cmd.Context())
			if err != nil {
				return err
			}
			if app.zshWidget {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), cfg.Project())
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "project: %s\n", cfg.Project())
			return err
		}),
	}
}
