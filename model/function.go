package model

// LambdaSentinel is recorded in place of a dotted name when a lambda is
// passed where a callable argument is expected. Lambda bodies are opaque
// to the analysis.
const LambdaSentinel = "«lambda»"

// ModuleLevelName is the synthetic qualified name under which statements
// executed at module import time are collected.
const ModuleLevelName = "<module>"

// FunctionInfo is the per-function record emitted by the syntax visitor.
// One exists for every function and method discovered in a module, plus
// one synthetic record per module for top-level statements.
type FunctionInfo struct {
	// QualName is the dotted path from the module root.
	// Methods use "ClassName.method"; nested functions "outer.inner".
	QualName string

	// Module is the import path of the defining module.
	Module string

	// FilePath is the absolute path to the source file.
	FilePath string

	// StartLine and EndLine delimit the definition (1-indexed, inclusive).
	// StartLine includes decorators when present.
	StartLine int
	EndLine   int

	// ClassName is the containing class for methods, empty otherwise.
	ClassName string

	// Decorators holds decorator expressions as dotted strings; call and
	// lambda decorators are recorded verbatim.
	Decorators []string

	// Docstring is the function's docstring, empty when absent.
	Docstring string

	// Raises is the set of exception classes observed in literal raise
	// statements, each at exact confidence.
	Raises ExceptionSet

	// ReraiseCaught collects the caught sets of handlers that re-raise
	// (bare raise or raise of the bound handler variable). Each inner
	// slice is one handler's caught class list; an empty slice denotes a
	// universal except:.
	ReraiseCaught [][]string

	// Calls lists every call expression in source order.
	Calls []CallInfo

	// TryScopes lists the function's try blocks in source order; CallInfo
	// scope ids index into this slice.
	TryScopes []TryScope

	IsAsync      bool
	IsMethod     bool
	HasBareRaise bool
}

// CallInfo is one observed call expression.
type CallInfo struct {
	// Callee is the call target as a dotted string when syntactically
	// resolvable ("os.path.join", "self.save", "open"); empty when the
	// callee expression is opaque (subscripts, call results, lambdas).
	Callee string

	// Line and Col locate the call (1-indexed line, 0-indexed column).
	Line int
	Col  int

	// StmtEndLine is the last physical line of the call expression,
	// used to scan continuation lines for inline-ignore comments.
	StmtEndLine int

	// EnclosingTries lists ids of TryScopes whose guarded region contains
	// the call, innermost last.
	EnclosingTries []int

	// CallableArgs are the callable-argument hints observed at the call.
	CallableArgs []CallableArg
}

// CallableArg is a hint that a callable was passed as an argument.
type CallableArg struct {
	// Name is the dotted name of the argument, or LambdaSentinel.
	Name string

	// Keyword is the keyword the argument was passed under, empty for
	// positional arguments.
	Keyword string

	// Position is the zero-based positional index, -1 for keyword args.
	Position int
}

// IsLambda reports whether the hint records an anonymous function.
func (a CallableArg) IsLambda() bool {
	return a.Name == LambdaSentinel
}

// TryScope is one try block within a function.
type TryScope struct {
	// ID is the scope's index within FunctionInfo.TryScopes.
	ID int

	// StartLine and EndLine delimit the guarded region only (the suite
	// between try: and the first handler), 1-indexed inclusive.
	StartLine int
	EndLine   int

	// Handlers in source order.
	Handlers []TryHandler
}

// TryHandler is one except clause.
type TryHandler struct {
	// Caught lists the handled class names. Empty means a bare except:,
	// which handles everything.
	Caught []string

	// AsName is the "as v" binding, empty when absent.
	AsName string

	// Reraises is set when the handler body re-raises the caught
	// exception (bare raise or raise of AsName).
	Reraises bool
}

// HandledAt reports whether an exception escaping the given call is
// caught by any try scope enclosing it, expanding handlers through the
// built-in hierarchy. Matching is by rightmost name segment so an
// externally qualified class is caught by a handler naming its short
// form.
func (f *FunctionInfo) HandledAt(call *CallInfo, exception string) bool {
	for _, scopeID := range call.EnclosingTries {
		if scopeID < 0 || scopeID >= len(f.TryScopes) {
			continue
		}
		for _, handler := range f.TryScopes[scopeID].Handlers {
			if handler.CatchesClass(exception) {
				return true
			}
		}
	}
	return false
}

// IsUniversal reports whether the handler catches all exceptions.
func (h TryHandler) IsUniversal() bool {
	return len(h.Caught) == 0
}

// CatchesClass reports whether the handler catches the given class,
// expanding through the built-in hierarchy.
func (h TryHandler) CatchesClass(name string) bool {
	if h.IsUniversal() {
		return true
	}
	for _, c := range h.Caught {
		if Handles(c, name) {
			return true
		}
	}
	return false
}
