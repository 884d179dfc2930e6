package engine

import "strings"

// hofPattern describes where a higher-order function takes its callable.
type hofPattern struct {
	// FirstPositional: the callable is the first positional argument.
	FirstPositional bool
	// KeyCallable: the callable arrives under the key= keyword.
	KeyCallable bool
}

// hofRegistry is the fixed registry of well-known higher-order functions,
// keyed by the callee's rightmost name segment.
var hofRegistry = map[string]hofPattern{
	"map":           {FirstPositional: true},
	"filter":        {FirstPositional: true},
	"reduce":        {FirstPositional: true},
	"starmap":       {FirstPositional: true},
	"filterfalse":   {FirstPositional: true},
	"takewhile":     {FirstPositional: true},
	"dropwhile":     {FirstPositional: true},
	"submit":        {FirstPositional: true},
	"create_task":   {FirstPositional: true},
	"ensure_future": {FirstPositional: true},
	"call_soon":     {FirstPositional: true},
	"apply_async":   {FirstPositional: true},

	"sorted":    {KeyCallable: true},
	"min":       {KeyCallable: true},
	"max":       {KeyCallable: true},
	"groupby":   {KeyCallable: true},
	"nlargest":  {KeyCallable: true},
	"nsmallest": {KeyCallable: true},
}

// lookupHOF returns the pattern for a callee expression, matching on the
// rightmost segment so "executor.submit" and "heapq.nlargest" hit.
func lookupHOF(callee string) (hofPattern, bool) {
	short := callee
	if i := strings.LastIndexByte(callee, '.'); i >= 0 {
		short = callee[i+1:]
	}
	p, ok := hofRegistry[short]
	return p, ok
}

// transparentDecorators are wrappers known not to alter exception flow.
// Matching is by rightmost segment of the decorator expression with any
// call arguments stripped.
var transparentDecorators = map[string]struct{}{
	"staticmethod":         {},
	"classmethod":          {},
	"property":             {},
	"setter":               {},
	"getter":               {},
	"deleter":              {},
	"abstractmethod":       {},
	"override":             {},
	"overload":             {},
	"wraps":                {},
	"cache":                {},
	"lru_cache":            {},
	"cached_property":      {},
	"contextmanager":       {},
	"asynccontextmanager":  {},
	"singledispatch":       {},
	"singledispatchmethod": {},
	"dataclass":            {},
	"total_ordering":       {},
	"final":                {},
}

// decoratorName normalises a decorator expression for registry lookup:
// call arguments are stripped and the rightmost segment is returned.
// "functools.lru_cache(maxsize=64)" → "lru_cache".
func decoratorName(expr string) string {
	if i := strings.IndexByte(expr, '('); i >= 0 {
		expr = expr[:i]
	}
	if i := strings.LastIndexByte(expr, '.'); i >= 0 {
		expr = expr[i+1:]
	}
	return strings.TrimSpace(expr)
}

// decoratorTarget strips call arguments but keeps the dotted path, for
// resolving the wrapper itself.
func decoratorTarget(expr string) string {
	if i := strings.IndexByte(expr, '('); i >= 0 {
		expr = expr[:i]
	}
	return strings.TrimSpace(expr)
}

// isTransparentDecorator reports whether the decorator expression names a
// registered transparent wrapper.
func isTransparentDecorator(expr string) bool {
	_, ok := transparentDecorators[decoratorName(expr)]
	return ok
}

// uninterestingBuiltinExceptions: a built-in callee whose stub set stays
// inside this set produces no contribution and no diagnostic unless
// configuration says otherwise.
var uninterestingBuiltinExceptions = map[string]struct{}{
	"TypeError":   {},
	"Exception":   {},
	"MemoryError": {},
}
