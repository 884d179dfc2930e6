package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/markjoshwel/raiseattention/analytics"
	"github.com/markjoshwel/raiseattention/config"
	"github.com/markjoshwel/raiseattention/output"
	"github.com/markjoshwel/raiseattention/session"
)

var checkCmd = &cobra.Command{
	Use:   "check <paths...>",
	Short: "Analyse files or directories and report unhandled exceptions",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		jsonOut, _ := flags.GetBool("json")           //nolint:all
		sarifOut, _ := flags.GetBool("sarif")         //nolint:all
		local, _ := flags.GetBool("local")            //nolint:all
		strict, _ := flags.GetBool("strict")          //nolint:all
		noWarnNative, _ := flags.GetBool("no-warn-native") //nolint:all
		noCache, _ := flags.GetBool("no-cache")       //nolint:all
		debug, _ := flags.GetBool("debug")            //nolint:all
		verbose, _ := flags.GetBool("verbose")        //nolint:all
		absolute, _ := flags.GetBool("absolute")      //nolint:all
		fullModulePath, _ := flags.GetBool("full-module-path") //nolint:all
		stubDir, _ := flags.GetString("stub-dir")     //nolint:all

		verbosity := output.VerbosityDefault
		if verbose {
			verbosity = output.VerbosityVerbose
		}
		if debug {
			verbosity = output.VerbosityDebug
		}
		logger := output.NewLogger(verbosity)

		if jsonOut {
			analytics.ReportEvent(analytics.CheckJSONMode)
		} else {
			analytics.ReportEvent(analytics.CheckCommand)
		}

		root := projectRootFor(args[0])
		cfg, err := config.Load(root)
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(2)
		}

		// CLI flags are the topmost configuration layer.
		layer := config.Layer{}
		if flags.Changed("local") {
			layer.LocalOnly = &local
		}
		if flags.Changed("strict") {
			layer.StrictMode = &strict
		}
		if flags.Changed("no-warn-native") {
			warn := !noWarnNative
			layer.WarnNative = &warn
		}
		if flags.Changed("stub-dir") {
			layer.StubDir = &stubDir
		}
		if noCache {
			disabled := false
			layer.Cache = &config.CacheLayer{Enabled: &disabled}
		}
		cfg.Apply(layer)

		sess, err := session.New(root, cfg, logger)
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(2)
		}
		sess.FullExceptionNames = fullModulePath

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		diags, err := sess.CheckPaths(ctx, args)
		if err != nil {
			sess.Close()
			logger.Errorf("%v", err)
			analytics.ReportEvent(analytics.InternalFailure)
			os.Exit(2)
		}

		opts := output.NewDefaultOptions()
		opts.Verbosity = verbosity
		opts.AbsolutePaths = absolute
		opts.FullModulePath = fullModulePath
		switch {
		case jsonOut:
			opts.Format = output.FormatJSON
		case sarifOut:
			opts.Format = output.FormatSARIF
		}

		if err := reportDiagnostics(diags, sess.ProjectRoot, opts); err != nil {
			sess.Close()
			logger.Errorf("%v", err)
			os.Exit(2)
		}
		logger.Summary()
		sess.Close()

		if len(diags) > 0 {
			os.Exit(1)
		}
	},
}

// projectRootFor anchors configuration lookup: the first argument's
// directory (or itself when a directory).
func projectRootFor(path string) string {
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		return path
	}
	return filepath.Dir(path)
}

func init() {
	checkCmd.Flags().Bool("json", false, "Emit diagnostics as JSON")
	checkCmd.Flags().Bool("sarif", false, "Emit diagnostics as SARIF 2.1.0")
	checkCmd.Flags().Bool("local", false, "Skip external-module analysis")
	checkCmd.Flags().Bool("strict", false, "Also report undocumented exceptions")
	checkCmd.Flags().Bool("no-warn-native", false, "Suppress PossibleNativeException findings")
	checkCmd.Flags().Bool("no-cache", false, "Disable the on-disk cache")
	checkCmd.Flags().Bool("verbose", false, "Show progress and statistics")
	checkCmd.Flags().Bool("absolute", false, "Emit absolute paths")
	checkCmd.Flags().Bool("full-module-path", false, "Emit fully qualified exception names")
	checkCmd.Flags().String("stub-dir", "", "Additional stub database directory")
	rootCmd.AddCommand(checkCmd)
}
