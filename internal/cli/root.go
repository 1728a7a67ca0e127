package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/minimum2scp/geco/internal/config"
)

// NewRootCmd creates the root Cobra command for the geco CLI.
func NewRootCmd(ver string) *cobra.Command {
	return NewRootCmdWithDeps(ver, DefaultDeps())
}

// NewRootCmdWithDeps creates the root command with explicit collaborators for
// testability.
func NewRootCmdWithDeps(ver string, deps Deps) *cobra.Command {
	app := newApp(deps)

	cmd := &cobra.Command{
		Use:           "geco",
		Short:         "Pick a Google Cloud project or VM instance with a fuzzy filter",
		Long:          "geco lists projects and VM instances from a local cache, lets you pick one\nwith an interactive filter, and runs or prints the matching gcloud command.",
		Version:       ver,
		Example:       rootCmdExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			app.zshWidget, _ = cmd.Flags().GetBool("zsh-widget")

			cfg, err := loadConfig(cmd)
			if err != nil {
				if app.zshWidget {
					return &SilentError{Err: err}
				}
				return err
			}
			app.cfg = cfg

			result := setupLogging(cmd, app)
			app.logResult = &result
			return nil
		},
	}

	cmd.PersistentFlags().BoolP("zsh-widget", "z", false, "print the resulting command instead of running it")
	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	cmd.PersistentFlags().String("config", "", "config file (default $GECO_CONFIG or ~/.config/geco/config.yaml)")
	cmd.PersistentFlags().String("cache-file", "", "cache file (default $TMPDIR/gcloud-cache.<user>.json)")
	cmd.PersistentFlags().String("filter", "", `interactive filter command, or "builtin"`)

	cmd.AddCommand(
		newSSHCmd(app),
		newProjectCmd(app),
		newGencacheCmd(app),
		newCurrentCmd(app),
		newCacheCmd(app),
		newConfigCmd(app),
	)
	closeLogOnExit(cmd, app)
	return cmd
}

// closeLogOnExit wraps every RunE in the tree so the log file is released
// whether or not the command fails. Cobra skips post-run hooks after an error.
func closeLogOnExit(cmd *cobra.Command, app *App) {
	if run := cmd.RunE; run != nil {
		cmd.RunE = func(c *cobra.Command, args []string) (err error) {
			defer func() {
				if closeErr := app.logResult.Close(); err == nil {
					err = closeErr
				}
			}()
			return run(c, args)
		}
	}
	for _, sub := range cmd.Commands() {
		closeLogOnExit(sub, app)
	}
}

// loadConfig reads the configuration with explicitly set flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")

	overrides := map[string]any{}
	if flags.Changed("cache-file") {
		v, _ := flags.GetString("cache-file")
		overrides["cache.file"] = v
	}
	if flags.Changed("filter") {
		v, _ := flags.GetString("filter")
		overrides["filter.command"] = v
	}
	return config.Load(path, overrides)
}

const rootCmdExample = `  # Pick a VM instance of the current project and ssh into it
  geco ssh

  # Pick from the instances of another project
  geco ssh -p my-other-project

  # Pick a project and make it the active gcloud project
  geco project

  # Rebuild the cache for every project
  geco gencache

  # Bind to a zsh widget: print the command instead of running it
  BUFFER=$(geco ssh --zsh-widget)`

// newConfigCmd creates the config command group.
func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Configuration commands"}
	cmd.AddCommand(newConfigShowCmd(app))
	return cmd
}

func newConfigShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if app.cfg.Path != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", app.cfg.Path)
			}
			return app.cfg.WriteYAML(cmd.OutOrStdout())
		},
	}
}
