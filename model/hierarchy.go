package model

// builtinParent maps every built-in exception class to its immediate
// parent. The table mirrors the CPython built-in hierarchy; user classes
// are never in it and therefore only ever match themselves.
var builtinParent = map[string]string{
	"SystemExit":        "BaseException",
	"KeyboardInterrupt": "BaseException",
	"GeneratorExit":     "BaseException",
	"Exception":         "BaseException",

	"StopIteration":      "Exception",
	"StopAsyncIteration": "Exception",
	"ArithmeticError":    "Exception",
	"AssertionError":     "Exception",
	"AttributeError":     "Exception",
	"BufferError":        "Exception",
	"EOFError":           "Exception",
	"ImportError":        "Exception",
	"LookupError":        "Exception",
	"MemoryError":        "Exception",
	"NameError":          "Exception",
	"OSError":            "Exception",
	"ReferenceError":     "Exception",
	"RuntimeError":       "Exception",
	"SyntaxError":        "Exception",
	"SystemError":        "Exception",
	"TypeError":          "Exception",
	"ValueError":         "Exception",
	"Warning":            "Exception",

	"FloatingPointError": "ArithmeticError",
	"OverflowError":      "ArithmeticError",
	"ZeroDivisionError":  "ArithmeticError",

	"ModuleNotFoundError": "ImportError",

	"IndexError": "LookupError",
	"KeyError":   "LookupError",

	"UnboundLocalError": "NameError",

	"BlockingIOError":     "OSError",
	"ChildProcessError":   "OSError",
	"ConnectionError":     "OSError",
	"FileExistsError":     "OSError",
	"FileNotFoundError":   "OSError",
	"InterruptedError":    "OSError",
	"IsADirectoryError":   "OSError",
	"NotADirectoryError":  "OSError",
	"PermissionError":     "OSError",
	"ProcessLookupError":  "OSError",
	"TimeoutError":        "OSError",
	"IOError":             "OSError",
	"EnvironmentError":    "OSError",

	"BrokenPipeError":        "ConnectionError",
	"ConnectionAbortedError": "ConnectionError",
	"ConnectionRefusedError": "ConnectionError",
	"ConnectionResetError":   "ConnectionError",

	"NotImplementedError": "RuntimeError",
	"RecursionError":      "RuntimeError",

	"IndentationError": "SyntaxError",
	"TabError":         "IndentationError",

	"UnicodeError":            "ValueError",
	"UnicodeDecodeError":      "UnicodeError",
	"UnicodeEncodeError":      "UnicodeError",
	"UnicodeTranslateError":   "UnicodeError",
	"JSONDecodeError":         "ValueError",

	"DeprecationWarning":        "Warning",
	"PendingDeprecationWarning": "Warning",
	"RuntimeWarning":            "Warning",
	"SyntaxWarning":             "Warning",
	"UserWarning":               "Warning",
	"FutureWarning":             "Warning",
	"ImportWarning":             "Warning",
	"UnicodeWarning":            "Warning",
	"BytesWarning":              "Warning",
	"ResourceWarning":           "Warning",
}

// IsBuiltinException reports whether the short class name is part of the
// fixed built-in hierarchy table.
func IsBuiltinException(short string) bool {
	if short == "BaseException" {
		return true
	}
	_, ok := builtinParent[short]
	return ok
}

// IsBuiltinAncestor reports whether ancestor is a strict ancestor of child
// in the built-in hierarchy. Both arguments are short names. Classes
// outside the table have no ancestors and no descendants.
func IsBuiltinAncestor(ancestor, child string) bool {
	if ancestor == child {
		return false
	}
	for cur := child; ; {
		parent, ok := builtinParent[cur]
		if !ok {
			return false
		}
		if parent == ancestor {
			return true
		}
		cur = parent
	}
}

// Handles reports whether a handler catching caught also catches raised:
// raised equals caught or is a built-in descendant of it. BaseException
// and a bare except: catch everything; that case is the caller's to
// short-circuit via TryHandler.IsUniversal.
func Handles(caught, raised string) bool {
	c := ShortName(caught)
	r := ShortName(raised)
	if c == r {
		return true
	}
	if c == "BaseException" {
		return true
	}
	return IsBuiltinAncestor(c, r)
}

// BuiltinDescendants returns every class in the table whose ancestor chain
// includes the given short name, excluding the class itself.
func BuiltinDescendants(short string) []string {
	var out []string
	for child := range builtinParent {
		if IsBuiltinAncestor(short, child) {
			out = append(out, child)
		}
	}
	return out
}
