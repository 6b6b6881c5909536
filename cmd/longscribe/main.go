package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/fmueller/longscribe/internal/cli"
	"github.com/fmueller/longscribe/internal/coordinator"
	"github.com/spf13/cobra"
)

// exitInterrupted follows the shell convention for SIGINT.
const exitInterrupted = 130

// usageErrors are the cobra argument and flag failures worth a --help hint.
var usageErrors = []string{
	"unknown command",
	"unknown flag",
	"unknown shorthand flag",
	"accepts ",
	"requires at least",
	"requires at most",
	"requires between",
	"required flag",
	"missing required",
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCmd()
	err := root.ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err, root, os.Args[1:], os.Stderr))
}

// exitCode reports err on stderr and maps it to the process exit status.
func exitCode(err error, root *cobra.Command, args []string, stderr io.Writer) int {
	if err == nil {
		return 0
	}

	fmt.Fprintln(stderr, err)
	switch {
	case errors.Is(err, coordinator.ErrInterrupted), errors.Is(err, context.Canceled):
		fmt.Fprintln(stderr, "Progress is saved; run the same command again to resume.")
		return exitInterrupted
	case isUsageError(err):
		fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", helpHintTarget(root, args))
	}
	return 1
}

func isUsageError(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	return slices.ContainsFunc(usageErrors, func(pattern string) bool {
		return strings.Contains(message, pattern)
	})
}

// helpHintTarget names the deepest subcommand args resolve to, so the hint
// points at the help text that lists the offending flag.
func helpHintTarget(root *cobra.Command, args []string) string {
	if root == nil {
		return "longscribe"
	}
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return root.CommandPath()
	}
	if found, _, err := root.Find(args); err == nil && found != nil {
		return found.CommandPath()
	}
	return root.CommandPath()
}
