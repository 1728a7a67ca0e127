// Package shell runs external programs (the interactive filter, gcloud) and
// renders command lines for display or for a shell widget to insert.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// ErrCommandNotFound indicates the program is not in PATH.
var ErrCommandNotFound = errors.New("command not found in PATH")

// Command is a program and its arguments.
type Command struct {
	Name string
	Args []string
}

// NewCommand builds a Command.
func NewCommand(name string, args ...string) Command {
	return Command{Name: name, Args: args}
}

// Argv returns name followed by args.
func (c Command) Argv() []string {
	return append([]string{c.Name}, c.Args...)
}

// String renders the command for a POSIX shell, quoting words that need it.
func (c Command) String() string {
	words := make([]string, 0, len(c.Args)+1)
	for _, w := range c.Argv() {
		words = append(words, Quote(w))
	}
	return strings.Join(words, " ")
}

// Quote single-quotes s unless it consists only of characters that are safe
// unquoted in a POSIX shell.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, needsQuoting) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuoting(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./=:@,+%", r)
}

// Runner executes external commands. Tests replace it with a mock.
type Runner interface {
	// Output runs the command with stdin and captures stdout and stderr.
	Output(ctx context.Context, stdin io.Reader, cmd Command) (stdout []byte, stderr []byte, err error)

	// Interactive runs the command attached to the process's terminal.
	Interactive(ctx context.Context, cmd Command) error
}

// ExecRunner is the Runner backed by os/exec.
type ExecRunner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecRunner returns an ExecRunner wired to the process's stdio.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Output implements Runner.
func (r *ExecRunner) Output(ctx context.Context, stdin io.Reader, cmd Command) ([]byte, []byte, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Env = os.Environ()
	c.Stdin = stdin

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	return stdout.Bytes(), stderr.Bytes(), wrapNotFound(cmd, err)
}

// Interactive implements Runner.
func (r *ExecRunner) Interactive(ctx context.Context, cmd Command) error {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Env = os.Environ()
	c.Stdin = r.Stdin
	c.Stdout = r.Stdout
	c.Stderr = r.Stderr
	return wrapNotFound(cmd, c.Run())
}

// LookPath resolves name in PATH.
func LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrCommandNotFound, name)
	}
	return path, nil
}

func wrapNotFound(cmd Command, err error) error {
	if err != nil && errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrCommandNotFound, cmd.Name)
	}
	return err
}

// IsExitError reports whether err is a non-zero exit of a started process.
func IsExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

// ExitStatus returns the exit code of a process that ran and failed.
func ExitStatus(err error) (int, bool) {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() < 0 {
		return 0, false
	}
	return exitErr.ExitCode(), true
}
