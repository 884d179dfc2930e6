package diagnostic

import (
	"regexp"
	"strings"
)

// ignoreDirectiveRe matches the inline suppression comment grammar:
//
//	# raiseattention: ignore[ValueError, KeyError]
//	# ra: ignore[OSError]
//
// Prefixes are case-insensitive. The bracket list is optional at the
// grammar level so a bare "ignore" can be detected and warned about.
var ignoreDirectiveRe = regexp.MustCompile(`(?i)\b(raiseattention|ra)\s*:\s*ignore\s*(\[([^\]]*)\])?`)

// identRe validates each listed name.
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ignoreDirective is a parsed inline suppression.
type ignoreDirective struct {
	// Exceptions are the listed class names; nil when the directive was
	// malformed (bare ignore without a bracket list).
	Exceptions []string
	Valid      bool
	Line       int
	Col        int
}

// findIgnoreDirective scans the physical lines a call statement spans
// (its first line through the trailing line of a multi-line call) for a
// suppression comment. lines is the whole file, 0-indexed.
func findIgnoreDirective(lines []string, startLine, endLine int) *ignoreDirective {
	for ln := startLine; ln <= endLine && ln-1 < len(lines); ln++ {
		text := lines[ln-1]
		m := ignoreDirectiveRe.FindStringSubmatchIndex(text)
		if m == nil {
			continue
		}
		dir := &ignoreDirective{Line: ln, Col: m[0]}
		if m[4] < 0 {
			// "ignore" with no bracket list is invalid and warns.
			return dir
		}
		inner := text[m[6]:m[7]]
		names := strings.Split(inner, ",")
		for _, name := range names {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if !identRe.MatchString(name) {
				return dir
			}
			dir.Exceptions = append(dir.Exceptions, name)
		}
		if len(dir.Exceptions) == 0 {
			return dir
		}
		dir.Valid = true
		return dir
	}
	return nil
}

// docstringSuppresses reports whether the enclosing function's docstring
// suppresses the exception: the docstring mentions "raise"/"raises"
// case-insensitively AND contains the exception's short class name as an
// exact token.
func docstringSuppresses(docstring, shortClass string) bool {
	if docstring == "" || shortClass == "" {
		return false
	}
	lower := strings.ToLower(docstring)
	if !strings.Contains(lower, "raise") {
		return false
	}
	return containsToken(docstring, shortClass)
}

// containsToken finds needle in haystack at identifier boundaries, so
// "Error" inside "ValueError" does not match.
func containsToken(haystack, needle string) bool {
	for start := 0; ; {
		i := strings.Index(haystack[start:], needle)
		if i < 0 {
			return false
		}
		i += start
		before := i == 0 || !isIdentByte(haystack[i-1])
		afterIdx := i + len(needle)
		after := afterIdx >= len(haystack) || !isIdentByte(haystack[afterIdx])
		if before && after {
			return true
		}
		start = i + 1
	}
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}
