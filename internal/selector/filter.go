package selector

import (
	"context"
	"errors"
	"strings"

	"github.com/minimum2scp/geco/internal/logging"
	"github.com/minimum2scp/geco/internal/shell"
)

// BuiltinName selects the in-process filter instead of an external command.
const BuiltinName = "builtin"

// Options tune a single filter run.
type Options struct {
	// Multi allows more than one line to be kept.
	Multi bool
}

// Filter lets the operator narrow down table text and returns the kept lines
// in order. A filter that ends without a selection returns no lines and no
// error.
type Filter interface {
	Filter(ctx context.Context, input string, opts Options) ([]string, error)
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(ctx context.Context, input string, opts Options) ([]string, error)

// Filter implements Filter.
func (f FilterFunc) Filter(ctx context.Context, input string, opts Options) ([]string, error) {
	return f(ctx, input, opts)
}

// CommandFilter pipes the table through an external program such as peco or
// fzf. The table is written to its stdin and the kept lines are read from its
// stdout. Its exit status is ignored since filters commonly exit non-zero when
// the operator cancels.
type CommandFilter struct {
	Command shell.Command

	// MultiArgs are appended when more than one line may be kept.
	MultiArgs []string

	Runner shell.Runner
}

// NewCommandFilter builds a CommandFilter for name. fzf needs --multi to
// allow marking several lines; peco allows it by default.
func NewCommandFilter(runner shell.Runner, name string, args ...string) *CommandFilter {
	f := &CommandFilter{Command: shell.NewCommand(name, args...), Runner: runner}
	if strings.HasSuffix(name, "fzf") {
		f.MultiArgs = []string{"--multi"}
	}
	return f
}

// Filter implements Filter.
func (f *CommandFilter) Filter(ctx context.Context, input string, opts Options) ([]string, error) {
	cmd := f.Command
	if opts.Multi {
		cmd.Args = append(append([]string{}, cmd.Args...), f.MultiArgs...)
	}

	log := logging.FromContext(ctx)
	log.Debug().Str("component", "selector").Str("command", cmd.String()).Msg("starting filter")

	stdout, _, err := f.Runner.Output(ctx, strings.NewReader(input), cmd)
	if err != nil {
		if !shell.IsExitError(err) {
			return nil, err
		}
		log.Debug().Err(err).Str("component", "selector").Msg("filter exited non-zero")
	}
	return splitLines(string(stdout)), nil
}

func splitLines(s string) []string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

// Resolve returns the filter configured by name. "builtin" selects the
// in-process filter. A missing external program falls back to the builtin one
// when fallback is set.
func Resolve(ctx context.Context, runner shell.Runner, name string, args []string, fallback bool) (Filter, error) {
	if name == "" || name == BuiltinName {
		return NewBuiltinFilter(), nil
	}
	if _, err := shell.LookPath(name); err != nil {
		if fallback && errors.Is(err, shell.ErrCommandNotFound) {
			logging.FromContext(ctx).Debug().
				Str("component", "selector").
				Str("command", name).
				Msg("filter command not found, using builtin filter")
			return NewBuiltinFilter(), nil
		}
		return nil, err
	}
	return NewCommandFilter(runner, name, args...), nil
}
