package cmd

import (
	"os"

	"github.com/markjoshwel/raiseattention/diagnostic"
	"github.com/markjoshwel/raiseattention/output"
)

// reportDiagnostics renders the batch results to stdout. The diagnostic
// engine short-names exceptions by default; full-module-path opts into
// qualified names, which the engine already produced when requested.
func reportDiagnostics(diags []diagnostic.Diagnostic, projectRoot string, opts *output.Options) error {
	reporter := diagnostic.NewReporter(os.Stdout, opts)
	return reporter.Report(diags, projectRoot)
}
