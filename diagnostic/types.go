// Package diagnostic turns converged signatures into user-facing
// findings: per call site it subtracts enclosing handlers through the
// built-in hierarchy, applies inline and docstring suppressions, and
// renders text, JSON or SARIF.
package diagnostic

import "fmt"

// Code identifies the diagnostic category, mirrored into the LSP code
// field.
type Code string

const (
	// CodeUnhandled is the main finding: a call may raise exceptions no
	// enclosing handler catches.
	CodeUnhandled Code = "unhandled-exception"
	// CodeInternal marks analysis failures surfaced against a file.
	CodeInternal Code = "internal-error"
	// CodeDirective marks a malformed suppression directive and, in
	// strict mode, a function with undocumented exceptions.
	CodeDirective Code = "raiseattention"
)

// Diagnostic is one finding at a source position.
type Diagnostic struct {
	// Path is the source file, absolute or project-relative depending on
	// output options.
	Path string `json:"path"`

	// Line is 1-indexed; Col is 0-indexed, matching editor columns.
	Line int `json:"line"`
	Col  int `json:"col"`

	Code Code `json:"code"`

	// Callee is the call expression the finding is about, empty for
	// internal errors and directive warnings.
	Callee string `json:"callee,omitempty"`

	// Function is the qualified name of the enclosing function.
	Function string `json:"function,omitempty"`

	// Exceptions lists the unhandled class names, sorted.
	Exceptions []string `json:"exceptions,omitempty"`

	// Message is the rendered human text.
	Message string `json:"message"`
}

// String renders the CLI line format:
// <path>:<line>:<col>: error: call to 'f' may raise unhandled exception(s): A, B
func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d:%d: error: %s", d.Path, d.Line, d.Col, d.Message)
}
