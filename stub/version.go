package stub

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// MatchesVersion reports whether a PEP-440-style specifier accepts the
// target-language version. An empty specifier accepts everything; a
// specifier that cannot be translated is treated as non-matching so a
// malformed stub never shadows a well-formed one.
//
// The supported operator subset is what stub databases in the wild use:
// ==, !=, >=, <=, >, <, ~= and trailing ".*" wildcards.
func MatchesVersion(spec, version string) bool {
	spec = strings.TrimSpace(spec)
	if spec == "" || spec == "*" {
		return true
	}
	constraint, err := translateSpecifier(spec)
	if err != nil {
		return false
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	return c.Check(v)
}

// translateSpecifier converts a comma-separated PEP-440 specifier into a
// semver constraint string.
func translateSpecifier(spec string) (string, error) {
	clauses := strings.Split(spec, ",")
	out := make([]string, 0, len(clauses))
	for _, clause := range clauses {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		translated, err := translateClause(clause)
		if err != nil {
			return "", err
		}
		out = append(out, translated)
	}
	if len(out) == 0 {
		return "", fmt.Errorf("empty specifier %q", spec)
	}
	return strings.Join(out, ", "), nil
}

func translateClause(clause string) (string, error) {
	switch {
	case strings.HasPrefix(clause, "~="):
		return translateCompatible(strings.TrimSpace(clause[2:]))
	case strings.HasPrefix(clause, "=="):
		ver := strings.TrimSpace(clause[2:])
		if strings.HasSuffix(ver, ".*") {
			return strings.TrimSuffix(ver, ".*") + ".x", nil
		}
		return "= " + ver, nil
	case strings.HasPrefix(clause, "!="):
		ver := strings.TrimSpace(clause[2:])
		if strings.HasSuffix(ver, ".*") {
			ver = strings.TrimSuffix(ver, ".*") + ".x"
		}
		return "!= " + ver, nil
	case strings.HasPrefix(clause, ">="), strings.HasPrefix(clause, "<="):
		return clause[:2] + " " + strings.TrimSpace(clause[2:]), nil
	case strings.HasPrefix(clause, ">"), strings.HasPrefix(clause, "<"):
		return clause[:1] + " " + strings.TrimSpace(clause[1:]), nil
	default:
		// A bare version is an exact match in practice.
		return "= " + clause, nil
	}
}

// translateCompatible expands "~= X.Y" / "~= X.Y.Z" into the equivalent
// lower-and-upper-bound pair.
func translateCompatible(ver string) (string, error) {
	parts := strings.Split(ver, ".")
	if len(parts) < 2 {
		return "", fmt.Errorf("compatible-release clause needs two components: %q", ver)
	}
	upper := make([]string, len(parts)-1)
	copy(upper, parts[:len(parts)-1])
	last, err := strconv.Atoi(upper[len(upper)-1])
	if err != nil {
		return "", fmt.Errorf("compatible-release clause %q: %w", ver, err)
	}
	upper[len(upper)-1] = strconv.Itoa(last + 1)
	return fmt.Sprintf(">= %s, < %s", ver, strings.Join(upper, ".")), nil
}
