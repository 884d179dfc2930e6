package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markjoshwel/raiseattention/config"
	"github.com/markjoshwel/raiseattention/model"
	"github.com/markjoshwel/raiseattention/output"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.CacheConfig{
		Enabled:        true,
		MaxFileEntries: 64,
		TTLHours:       1,
		Dir:            t.TempDir(),
	}
	logger := output.NewLoggerWithWriter(output.VerbosityDefault, os.Stderr)
	store, err := Open(cfg, logger)
	require.NoError(t, err)
	require.True(t, store.Persistent())
	t.Cleanup(store.Close)
	return store
}

func sampleModule(path string) *model.Module {
	raises := model.NewExceptionSet()
	raises.Add("ValueError", model.ConfidenceExact)
	return &model.Module{
		ImportPath:  "app",
		FilePath:    path,
		Kind:        model.ModuleProject,
		ContentHash: "abc123",
		Functions: []*model.FunctionInfo{
			{QualName: "r", Module: "app", FilePath: path, StartLine: 1, EndLine: 1, Raises: raises},
		},
		Imports:   map[string]string{"os": "os"},
		ReExports: map[string]string{},
		Classes:   map[string][]string{},
	}
}

func TestStore_ModuleRoundTrip(t *testing.T) {
	store := newTestStore(t)
	mod := sampleModule("/project/app.py")

	store.PutModule(mod)

	got, ok := store.GetModule("/project/app.py", "abc123")
	require.True(t, ok)
	assert.Equal(t, "app", got.ImportPath)
	require.Len(t, got.Functions, 1)
	assert.Contains(t, got.Functions[0].Raises, "ValueError")
	assert.Equal(t, "os", got.Imports["os"])
}

func TestStore_HashMismatchMisses(t *testing.T) {
	store := newTestStore(t)
	store.PutModule(sampleModule("/project/app.py"))

	_, ok := store.GetModule("/project/app.py", "different")
	assert.False(t, ok)
}

func TestStore_FreshHashTracksStat(t *testing.T) {
	store := newTestStore(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "app.py")
	require.NoError(t, os.WriteFile(path, []byte("def r(): pass\n"), 0o644))

	mod := sampleModule(path)
	store.PutModule(mod)

	hash, ok := store.FreshHash(path)
	require.True(t, ok)
	assert.Equal(t, "abc123", hash)

	// Changing size invalidates the stat fast path.
	require.NoError(t, os.WriteFile(path, []byte("def r(): pass  # edited\n"), 0o644))
	_, ok = store.FreshHash(path)
	assert.False(t, ok)
}

func TestStore_SignatureRoundTrip(t *testing.T) {
	store := newTestStore(t)
	sig := model.NewExceptionSet()
	sig.Add("KeyError", model.ConfidenceExact)

	store.PutSignature("app.c", "modhash", "dephash", sig)

	got, ok := store.GetSignature("app.c", "modhash", "dephash")
	require.True(t, ok)
	assert.True(t, got.Equal(sig))

	// Any key component change misses.
	_, ok = store.GetSignature("app.c", "modhash", "otherdeps")
	assert.False(t, ok)
	_, ok = store.GetSignature("app.c", "othermod", "dephash")
	assert.False(t, ok)
}

func TestStore_Clear(t *testing.T) {
	store := newTestStore(t)
	store.PutModule(sampleModule("/project/app.py"))

	require.NoError(t, store.Clear())

	_, ok := store.GetModule("/project/app.py", "abc123")
	assert.False(t, ok)
	st := store.Status()
	assert.Zero(t, st.FileEntries)
}

func TestStore_Status(t *testing.T) {
	store := newTestStore(t)
	store.PutModule(sampleModule("/project/app.py"))
	sig := model.NewExceptionSet()
	sig.Add("KeyError", model.ConfidenceExact)
	store.PutSignature("app.c", "m", "d", sig)

	st := store.Status()
	assert.True(t, st.Persistent)
	assert.Equal(t, 1, st.FileEntries)
	assert.Equal(t, 1, st.SigEntries)
}

func TestStore_DisabledIsNoop(t *testing.T) {
	logger := output.NewLoggerWithWriter(output.VerbosityDefault, os.Stderr)
	store, err := Open(config.CacheConfig{Enabled: false, MaxFileEntries: 8}, logger)
	require.NoError(t, err)
	defer store.Close()

	assert.False(t, store.Persistent())
	store.PutModule(sampleModule("/project/app.py"))

	// The memory tier still serves within the process.
	_, ok := store.GetModule("/project/app.py", "abc123")
	assert.True(t, ok)

	_, ok = store.GetSignature("q", "m", "d")
	assert.False(t, ok)
}

func TestStore_ConcurrentProcessBacksOff(t *testing.T) {
	// A second store over the same directory must not corrupt the
	// first; badger's directory lock makes it degrade to uncached.
	dir := t.TempDir()
	cfg := config.CacheConfig{Enabled: true, MaxFileEntries: 8, TTLHours: 1, Dir: dir}
	logger := output.NewLoggerWithWriter(output.VerbosityDefault, os.Stderr)

	first, err := Open(cfg, logger)
	require.NoError(t, err)
	defer first.Close()
	require.True(t, first.Persistent())

	second, err := Open(cfg, logger)
	require.NoError(t, err)
	defer second.Close()
	assert.False(t, second.Persistent())
}
