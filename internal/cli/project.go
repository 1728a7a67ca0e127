package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/minimum2scp/geco/internal/cache"
	"github.com/minimum2scp/geco/internal/gcloud"
	"github.com/minimum2scp/geco/internal/inventory"
	"github.com/minimum2scp/geco/internal/selector"
)

func newProjectCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Pick a project and run gcloud config set project",
		Long: `Show projects like 'gcloud projects list', filter them interactively,
and run or print 'gcloud config set project' for the one picked.`,
		Args: cobra.NoArgs,
	}

	cmd.RunE = app.widgetSafe(func(cmd *cobra.Command, _ []string) error {
		var picked inventory.Project
		err := app.transaction(cmd.Context(), func(ctx context.Context, tx *cache.Tx) error {
			projects, err := app.newLoader().Projects(ctx, tx, false)
			if err != nil {
				return err
			}
			filter, err := app.filter(ctx)
			if err != nil {
				return err
			}
			picked, err = selector.SelectOne(ctx, filter, selector.ProjectSchema(), projects)
			return err
		})
		if err != nil {
			return err
		}

		return app.emit(cmd, gcloud.SetProjectCommand(app.cfg.GCloud.Binary, picked))
	})
	return cmd
}
