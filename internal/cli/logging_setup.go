package cli

import (
	"github.com/spf13/cobra"

	"github.com/minimum2scp/geco/internal/logging"
)

// setupLogging configures logging from the config and the --debug flag and
// stores the logger and a trace id in the command context.
func setupLogging(cmd *cobra.Command, app *App) logging.LogPathResult {
	loggingCfg := app.cfg.Logging

	debug, _ := cmd.Flags().GetBool("debug")
	if debug {
		loggingCfg.Level = "debug"
		loggingCfg.Format = logging.FormatConsole
		loggingCfg.File = ""
	}

	result := logging.NewLoggerWithPath(loggingCfg.ToLoggingConfig())
	app.logger = logging.ComponentLogger(result.Logger, "cli")

	if result.UsingFile && debug {
		logging.PrintLogPathMessage(cmd.ErrOrStderr(), result.FilePath)
	} else if result.FallbackUsed && !app.zshWidget {
		logging.PrintFallbackWarning(cmd.ErrOrStderr(), result.FallbackReason)
	}

	ctx := cmd.Context()
	traceID := logging.GetOrGenerateTraceID(ctx)
	ctx = logging.ContextWithTraceID(ctx, traceID)
	logger := result.Logger.With().Str("trace_id", traceID).Logger()
	ctx = logger.WithContext(ctx)
	cmd.SetContext(ctx)

	app.logger.Debug().Ctx(ctx).
		Str("command", cmd.Name()).
		Str("config", app.cfg.Path).
		Bool("zsh_widget", app.zshWidget).
		Msg("command started")

	return result
}
