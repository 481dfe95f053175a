// Package cli provides the command-line interface for varmock.
//
// Commands:
//   - serve (default): load the definitions folder and run the mock server
//   - validate: load a definitions folder and report every problem found
//   - version: show build information
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// NewRootCommand builds the command tree. Running the root command without a
// subcommand serves mocks using the root's serve flags.
func NewRootCommand() *cobra.Command {
	f := &serveFlags{}
	root := &cobra.Command{
		Use:   "varmock",
		Short: "varmock serves API mocks built from route variants",
		Long: `varmock serves HTTP mocks defined as routes with alternative responses
(variants). Mocks select one variant per route and may extend other mocks.

Settings are read, in increasing precedence, from varmock.yaml, VARMOCK_*
environment variables and flags. They can be changed at runtime through the
admin API.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, f)
		},
	}
	f.register(root)

	root.AddCommand(newServeCommand(), newValidateCommand(), newVersionCommand())
	return root
}

// Run executes the CLI with args and returns the process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

// Main runs the CLI with the process arguments and returns the exit code.
func Main() int {
	return Run(os.Args[1:], os.Stdout, os.Stderr)
}
