package stub

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markjoshwel/raiseattention/model"
	"github.com/markjoshwel/raiseattention/output"
)

func newTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	logger := output.NewLoggerWithWriter(output.VerbosityDefault, os.Stderr)
	store, err := Load(dir, "3.12", logger)
	require.NoError(t, err)
	return store
}

func TestLoad_EmbeddedOpenStub(t *testing.T) {
	// The shipped stub for the file-open built-in carries the full
	// documented set.
	store := newTestStore(t, "")

	rec, ok := store.LookupFunction("builtins", "open")
	require.True(t, ok)
	assert.False(t, rec.Fuzzy)
	assert.ElementsMatch(t,
		[]string{
			"FileNotFoundError", "PermissionError", "IsADirectoryError",
			"NotADirectoryError", "FileExistsError", "OSError",
			"ValueError", "TypeError", "LookupError",
		},
		rec.Exceptions.Names())
}

func TestLookup_FuzzyClassMatch(t *testing.T) {
	// The mmap module's native class is registered as Mmap_object; a
	// lookup under the user-visible name mmap still finds resize.
	store := newTestStore(t, "")

	rec, ok := store.Lookup("mmap", "mmap", "resize")
	require.True(t, ok)
	assert.True(t, rec.Fuzzy)
	assert.Contains(t, rec.Exceptions, "OSError")
}

func TestLookup_ExactWinsOverFuzzy(t *testing.T) {
	dir := t.TempDir()
	stubJSON := `{
		"metadata": {"name": "t", "version": ">=3.8", "format_version": "2.0", "generator": "test"},
		"pkg": {
			"Right": {"work": {"ValueError": "manual"}},
			"Wrong": {"work": {"KeyError": "manual"}}
		}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pkg.json"), []byte(stubJSON), 0o644))
	store := newTestStore(t, dir)

	rec, ok := store.Lookup("pkg", "Right", "work")
	require.True(t, ok)
	assert.False(t, rec.Fuzzy)
	assert.Contains(t, rec.Exceptions, "ValueError")
	assert.NotContains(t, rec.Exceptions, "KeyError")
}

func TestLoad_ListValueMeansLikely(t *testing.T) {
	store := newTestStore(t, "")

	rec, ok := store.LookupFunction("os", "remove")
	require.True(t, ok)
	assert.Equal(t, model.ConfidenceLikely, rec.Exceptions["FileNotFoundError"])
}

func TestLoad_VersionMismatchedFileSkipped(t *testing.T) {
	dir := t.TempDir()
	stubJSON := `{
		"metadata": {"name": "future", "version": ">=4.0", "format_version": "2.0", "generator": "test"},
		"futurepkg": {"": {"f": {"ValueError": "manual"}}}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "future.json"), []byte(stubJSON), 0o644))
	store := newTestStore(t, dir)

	_, ok := store.LookupFunction("futurepkg", "f")
	assert.False(t, ok)
}

func TestLoad_MalformedFileIgnored(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644))

	store := newTestStore(t, dir)

	// The embedded database still loaded.
	_, ok := store.LookupFunction("builtins", "open")
	assert.True(t, ok)
}

func TestMerge_LowerConfidenceWins(t *testing.T) {
	dir := t.TempDir()
	stubJSON := `{
		"metadata": {"name": "override", "version": ">=3.8", "format_version": "2.0", "generator": "test"},
		"json": {"": {"loads": {"JSONDecodeError": "conservative"}}}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "override.json"), []byte(stubJSON), 0o644))
	store := newTestStore(t, dir)

	rec, ok := store.LookupFunction("json", "loads")
	require.True(t, ok)
	assert.Equal(t, model.ConfidenceConservative, rec.Exceptions["JSONDecodeError"])
}

func TestNativeFallback(t *testing.T) {
	rec := NativeFallback()
	assert.Contains(t, rec.Exceptions, model.PossibleNativeException)
	assert.Equal(t, model.ConfidenceConservative, rec.Exceptions[model.PossibleNativeException])
}
