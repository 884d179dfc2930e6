package diagnostic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileFilters_SuppressMatching(t *testing.T) {
	filters, err := CompileFilters([]string{
		`exception == "ValueError" && callee == "legacy_parse"`,
		`path endsWith "_generated.py"`,
	})
	require.NoError(t, err)

	assert.True(t, filters.Suppresses("ValueError", "/p/a.py", "f", "legacy_parse"))
	assert.False(t, filters.Suppresses("KeyError", "/p/a.py", "f", "legacy_parse"))
	assert.False(t, filters.Suppresses("ValueError", "/p/a.py", "f", "other"))
	assert.True(t, filters.Suppresses("OSError", "/p/models_generated.py", "f", "anything"))
}

func TestCompileFilters_BrokenExpressionFails(t *testing.T) {
	_, err := CompileFilters([]string{`exception ==`})
	require.Error(t, err)
}

func TestFilters_NilSuppressesNothing(t *testing.T) {
	var filters *Filters
	assert.False(t, filters.Suppresses("ValueError", "p", "f", "c"))
}
