package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/minimum2scp/geco/internal/cache"
	"github.com/minimum2scp/geco/internal/refresh"
)

func newGencacheCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "gencache",
		Aliases: []string{"refresh"},
		Short:   "Cache all projects and their VM instances",
		Long: `Reload the project list and the VM instances of every project from
Google Cloud, in parallel, and store them in the cache.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var report *refresh.Report
			err := app.transaction(cmd.Context(), func(ctx context.Context, tx *cache.Tx) error {
				r := refresh.NewRefresher(app.newLoader(), cmd.OutOrStdout(), app.cfg.Refresh.MaxParallel)
				var err error
				report, err = r.Run(ctx, tx)
				return err
			})
			if err != nil {
				return err
			}

			if n := len(report.Failures); n > 0 {
				for _, f := range report.Failures {
					app.logger.Warn().Ctx(cmd.Context()).
						Err(f.Err).
						Str("project", f.Project.ID).
						Msg("project not refreshed")
				}
				return fmt.Errorf("%w: %d of %d projects failed", ErrRefreshIncomplete, n, report.Projects)
			}
			return nil
		},
	}
}
