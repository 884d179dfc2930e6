// Package cmd wires the CLI surface: check, lsp, cache and version
// subcommands over a shared root.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/markjoshwel/raiseattention/analytics"
)

var rootCmd = &cobra.Command{
	Use:   "raiseattention",
	Short: "RaiseAttention - static exception-flow analysis for Python",
	Long: `RaiseAttention reports, for every call site in your code, which
exception types may propagate out of the call unhandled by any
enclosing try/except.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		disableMetrics, err := cmd.Flags().GetBool("disable-metrics")
		if err != nil {
			// An unreadable opt-out flag must err on the side of not
			// reporting.
			disableMetrics = true
		}
		if err := analytics.Init(disableMetrics); err != nil {
			fmt.Fprintf(os.Stderr, "warning: usage analytics disabled: %v\n", err)
		}
	},
}

// Execute runs the CLI and returns the command error, if any.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().Bool("disable-metrics", false, "Disable metrics collection")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
}
