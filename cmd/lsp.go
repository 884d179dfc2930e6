package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/markjoshwel/raiseattention/analytics"
	"github.com/markjoshwel/raiseattention/lspserver"
	"github.com/markjoshwel/raiseattention/output"
)

var lspCmd = &cobra.Command{
	Use:   "lsp",
	Short: "Run the language server over stdio",
	Run: func(cmd *cobra.Command, _ []string) {
		debug, _ := cmd.Flags().GetBool("debug") //nolint:all
		verbosity := output.VerbosityDefault
		if debug {
			verbosity = output.VerbosityDebug
		}
		logger := output.NewLogger(verbosity)

		analytics.ReportEvent(analytics.LSPSession)
		if err := lspserver.Run(context.Background(), logger); err != nil {
			logger.Errorf("%v", err)
			os.Exit(2)
		}
	},
}

func init() {
	rootCmd.AddCommand(lspCmd)
}
