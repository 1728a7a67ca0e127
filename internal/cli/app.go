package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/minimum2scp/geco/internal/cache"
	"github.com/minimum2scp/geco/internal/config"
	"github.com/minimum2scp/geco/internal/gcloud"
	"github.com/minimum2scp/geco/internal/inventory"
	"github.com/minimum2scp/geco/internal/logging"
	"github.com/minimum2scp/geco/internal/memo"
	"github.com/minimum2scp/geco/internal/selector"
	"github.com/minimum2scp/geco/internal/shell"
)

// Deps are the collaborators commands talk to. Tests swap them for fakes.
type Deps struct {
	// Runner executes gcloud and external filters.
	Runner shell.Runner

	// NewSource creates the remote inventory source.
	NewSource func(cfg *config.Config) inventory.Source

	// NewFilter creates the interactive filter.
	NewFilter func(ctx context.Context, cfg *config.Config, runner shell.Runner) (selector.Filter, error)

	// StoreOptions are appended when opening the cache store.
	StoreOptions []cache.Option
}

// DefaultDeps wires the production collaborators.
func DefaultDeps() Deps {
	return Deps{
		Runner: shell.NewExecRunner(),
		NewSource: func(*config.Config) inventory.Source {
			return gcloud.NewAPISource()
		},
		NewFilter: newFilter,
	}
}

// ErrNoTerminal is returned when the builtin filter cannot draw.
var ErrNoTerminal = errors.New("builtin filter needs a terminal on stderr")

func newFilter(ctx context.Context, cfg *config.Config, runner shell.Runner) (selector.Filter, error) {
	f, err := selector.Resolve(ctx, runner, cfg.Filter.Command, cfg.Filter.Args, cfg.Filter.Fallback)
	if err != nil {
		return nil, err
	}
	if _, builtin := f.(*selector.BuiltinFilter); builtin && !isTerminal(os.Stderr) {
		return nil, ErrNoTerminal
	}
	return f, nil
}

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// App holds per-invocation state shared by the commands.
type App struct {
	deps Deps

	cfg       *config.Config
	logger    zerolog.Logger
	logResult *logging.LogPathResult
	source    inventory.Source

	zshWidget bool
}

func newApp(deps Deps) *App {
	return &App{deps: deps, logger: zerolog.Nop()}
}

// Config returns the loaded configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

func (a *App) openStore() (*cache.Store, error) {
	opts := append([]cache.Option{
		cache.WithLogger(logging.ComponentLogger(a.logger, "cache")),
	}, a.deps.StoreOptions...)
	return cache.NewStore(a.cfg.Cache.File, opts...)
}

// newLoader returns a fresh Loader; its in-memory mirror lives only for one
// command.
func (a *App) newLoader() *inventory.Loader {
	if a.source == nil {
		a.source = a.deps.NewSource(a.cfg)
	}
	fetcher := memo.NewFetcher(a.cfg.CacheTTL()).WithTTL(memo.CategoryProjects, cache.DefaultTTL)
	return inventory.NewLoader(a.source, fetcher)
}

// transaction opens the cache store and runs fn inside one transaction.
func (a *App) transaction(ctx context.Context, fn func(ctx context.Context, tx *cache.Tx) error) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	return store.Transaction(ctx, fn)
}

func (a *App) filter(ctx context.Context) (selector.Filter, error) {
	return a.deps.NewFilter(ctx, a.cfg, a.deps.Runner)
}

func (a *App) gcloudConfig(ctx context.Context) (gcloud.Config, error) {
	return gcloud.NewConfigReader(a.deps.Runner, a.cfg.GCloud.Binary).Read(ctx)
}

// emit prints command for the zsh widget or runs it attached to the
// terminal.
func (a *App) emit(cmd *cobra.Command, command shell.Command) error {
	if a.zshWidget {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), command.String())
		return err
	}
	a.logger.Info().Ctx(cmd.Context()).Str("command", command.String()).Msg("running")
	cmd.PrintErrln(command.String())
	return a.deps.Runner.Interactive(cmd.Context(), command)
}

// widgetSafe wraps a command body so that, in zsh widget mode, failures are
// logged at debug level and reported as a SilentError.
func (a *App) widgetSafe(run func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := run(cmd, args)
		if err == nil || !a.zshWidget {
			return err
		}
		a.logger.Debug().Ctx(cmd.Context()).Err(err).Str("command", cmd.Name()).Msg("error suppressed in zsh widget mode")
		return &SilentError{Err: err}
	}
}
