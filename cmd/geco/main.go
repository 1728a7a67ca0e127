// Command geco picks a Google Cloud project or VM instance with an
// interactive filter and runs or prints the matching gcloud command.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/minimum2scp/geco/internal/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev" //nolint:gochecknoglobals // set by the linker

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCmd(version)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err != nil && !cli.IsSilent(err) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return ExitCodeFromError(err)
}

// ExitCodeFromError returns the process exit code for an error returned by
// the root command.
func ExitCodeFromError(err error) int {
	return cli.ExitCode(err)
}
