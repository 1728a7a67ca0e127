package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/minimum2scp/geco/internal/cache"
	"github.com/minimum2scp/geco/internal/gcloud"
	"github.com/minimum2scp/geco/internal/inventory"
	"github.com/minimum2scp/geco/internal/selector"
)

func newSSHCmd(app *App) *cobra.Command {
	var (
		project     string
		allProjects bool
	)

	cmd := &cobra.Command{
		Use:   "ssh",
		Short: "Pick a VM instance and run gcloud compute ssh",
		Long: `Show VM instances like 'gcloud compute instances list', filter them
interactively, and run or print 'gcloud compute ssh' for the one picked.

Instances of the active gcloud project are listed unless --project or
--all is given.`,
		Args: cobra.NoArgs,
	}

	cmd.RunE = app.widgetSafe(func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if project == "" && !allProjects {
			project = app.activeProject(ctx)
		}

		var picked inventory.VMInstance
		err := app.transaction(ctx, func(ctx context.Context, tx *cache.Tx) error {
			loader := app.newLoader()

			var (
				instances []inventory.VMInstance
				err       error
			)
			if project != "" {
				instances, err = loader.Instances(ctx, tx, false, project)
			} else {
				instances, err = loader.AllInstances(ctx, tx, false)
			}
			if err != nil {
				return err
			}

			filter, err := app.filter(ctx)
			if err != nil {
				return err
			}
			picked, err = selector.SelectOne(ctx, filter, selector.InstanceSchema(project == ""), instances)
			return err
		})
		if err != nil {
			return err
		}

		return app.emit(cmd, gcloud.SSHCommand(app.cfg.GCloud.Binary, picked))
	})

	cmd.Flags().StringVarP(&project, "project", "p", "", "list instances of this project")
	cmd.Flags().BoolVarP(&allProjects, "all", "a", false, "list instances of every project")
	cmd.MarkFlagsMutuallyExclusive("project", "all")
	return cmd
}

// activeProject returns core/project of the gcloud configuration, or "" when
// it cannot be read.
func (a *App) activeProject(ctx context.Context) string {
	cfg, err := a.gcloudConfig(ctx)
	if err != nil {
		a.logger.Debug().Ctx(ctx).Err(err).Msg("could not read gcloud config, listing all projects")
		return ""
	}
	return cfg.Project()
}
