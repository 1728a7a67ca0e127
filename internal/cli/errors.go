package cli

import (
	"errors"
	"fmt"

	"github.com/minimum2scp/geco/internal/cache"
	"github.com/minimum2scp/geco/internal/config"
	"github.com/minimum2scp/geco/internal/inventory"
	"github.com/minimum2scp/geco/internal/shell"
)

// Process exit codes.
const (
	ExitCodeOK              = 0
	ExitCodeError           = 1
	ExitCodeConfig          = 2
	ExitCodeCache           = 3
	ExitCodeRemote          = 4
	ExitCodeCommandNotFound = 127
)

// ErrRefreshIncomplete is returned by gencache when some projects could not
// be refreshed.
var ErrRefreshIncomplete = errors.New("refresh incomplete")

// SilentError carries an error that must not be printed, as in zsh widget
// mode where output would end up on the command line.
type SilentError struct {
	Err error
}

func (e *SilentError) Error() string {
	return fmt.Sprintf("silent: %v", e.Err)
}

func (e *SilentError) Unwrap() error {
	return e.Err
}

// IsSilent reports whether err should be kept off the terminal.
func IsSilent(err error) bool {
	var s *SilentError
	return errors.As(err, &s)
}

// ExitCode maps an error returned by the root command to a process exit
// code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitCodeOK
	case IsSilent(err):
		return ExitCodeError
	case errors.Is(err, config.ErrInvalidConfig):
		return ExitCodeConfig
	case errors.Is(err, cache.ErrCacheCorrupted), errors.Is(err, cache.ErrCacheUnavailable):
		return ExitCodeCache
	case errors.Is(err, inventory.ErrRemoteInventory):
		return ExitCodeRemote
	case errors.Is(err, shell.ErrCommandNotFound):
		return ExitCodeCommandNotFound
	}
	if code, ok := shell.ExitStatus(err); ok {
		return code
	}
	return ExitCodeError
}
