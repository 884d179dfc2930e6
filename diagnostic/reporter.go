package diagnostic

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/fatih/color"
	sarif "github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/markjoshwel/raiseattention/output"
)

// Reporter renders diagnostics to a writer in the configured format.
type Reporter struct {
	writer io.Writer
	opts   *output.Options
}

// NewReporter builds a reporter for the given options.
func NewReporter(w io.Writer, opts *output.Options) *Reporter {
	return &Reporter{writer: w, opts: opts}
}

// Report renders the diagnostics and the trailing summary. projectRoot
// is used for relative paths unless absolute output was requested.
func (r *Reporter) Report(diags []Diagnostic, projectRoot string) error {
	switch r.opts.Format {
	case output.FormatJSON:
		return r.reportJSON(diags, projectRoot)
	case output.FormatSARIF:
		return r.reportSARIF(diags, projectRoot)
	default:
		return r.reportText(diags, projectRoot)
	}
}

func (r *Reporter) displayPath(path, projectRoot string) string {
	if r.opts.AbsolutePaths || projectRoot == "" {
		return path
	}
	rel, err := filepath.Rel(projectRoot, path)
	if err != nil {
		return path
	}
	return rel
}

func (r *Reporter) reportText(diags []Diagnostic, projectRoot string) error {
	errorTag := color.New(color.FgRed).SprintFunc()
	warnTag := color.New(color.FgYellow).SprintFunc()
	location := color.New(color.FgCyan).SprintFunc()

	for _, d := range diags {
		tag := errorTag("error")
		if d.Code == CodeDirective {
			tag = warnTag("warning")
		}
		fmt.Fprintf(r.writer, "%s: %s: %s\n",
			location(fmt.Sprintf("%s:%d:%d", r.displayPath(d.Path, projectRoot), d.Line, d.Col)),
			tag, d.Message)
	}
	fmt.Fprintf(r.writer, "%d issue(s) found\n", len(diags))
	return nil
}

func (r *Reporter) reportJSON(diags []Diagnostic, projectRoot string) error {
	rendered := make([]Diagnostic, len(diags))
	for i, d := range diags {
		d.Path = r.displayPath(d.Path, projectRoot)
		rendered[i] = d
	}
	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rendered)
}

func (r *Reporter) reportSARIF(diags []Diagnostic, projectRoot string) error {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return err
	}
	run := sarif.NewRunWithInformationURI("RaiseAttention", "https://github.com/markjoshwel/raiseattention")

	seen := make(map[Code]bool)
	for _, d := range diags {
		if !seen[d.Code] {
			seen[d.Code] = true
			run.AddRule(string(d.Code)).
				WithDescription(ruleDescription(d.Code)).
				WithHelpURI("https://github.com/markjoshwel/raiseattention")
		}
		level := "error"
		if d.Code == CodeDirective {
			level = "warning"
		}
		run.CreateResultForRule(string(d.Code)).
			WithLevel(level).
			WithMessage(sarif.NewTextMessage(d.Message)).
			AddLocation(
				sarif.NewLocationWithPhysicalLocation(
					sarif.NewPhysicalLocation().
						WithArtifactLocation(sarif.NewSimpleArtifactLocation(r.displayPath(d.Path, projectRoot))).
						WithRegion(sarif.NewSimpleRegion(d.Line, d.Line).WithStartColumn(d.Col + 1)),
				),
			)
	}

	report.AddRun(run)
	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func ruleDescription(code Code) string {
	switch code {
	case CodeUnhandled:
		return "A call may raise exceptions no enclosing handler catches"
	case CodeInternal:
		return "The analyser failed on this file"
	case CodeDirective:
		return "A suppression directive or docstring contract is malformed"
	}
	return string(code)
}
