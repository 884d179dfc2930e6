package diagnostic

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// filterEnv is the variable scope a suppress_when expression sees.
type filterEnv struct {
	Exception string `expr:"exception"`
	Path      string `expr:"path"`
	Function  string `expr:"function"`
	Callee    string `expr:"callee"`
}

// Filters holds the compiled suppress_when expressions from
// configuration. A diagnostic exception is suppressed when any
// expression evaluates to true for it.
type Filters struct {
	programs []*vm.Program
}

// CompileFilters compiles the configured expressions once; a broken
// expression fails loudly at start-up rather than silently never
// matching.
func CompileFilters(exprs []string) (*Filters, error) {
	f := &Filters{}
	for _, src := range exprs {
		program, err := expr.Compile(src, expr.Env(filterEnv{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("suppress_when expression %q: %w", src, err)
		}
		f.programs = append(f.programs, program)
	}
	return f, nil
}

// Suppresses evaluates the filters for one (exception, call) pairing.
func (f *Filters) Suppresses(exception, path, function, callee string) bool {
	if f == nil || len(f.programs) == 0 {
		return false
	}
	env := filterEnv{Exception: exception, Path: path, Function: function, Callee: callee}
	for _, program := range f.programs {
		out, err := expr.Run(program, env)
		if err != nil {
			continue
		}
		if suppressed, ok := out.(bool); ok && suppressed {
			return true
		}
	}
	return false
}
