package resolver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markjoshwel/raiseattention/model"
	"github.com/markjoshwel/raiseattention/output"
	"github.com/markjoshwel/raiseattention/stub"
	"github.com/markjoshwel/raiseattention/visitor"
)

func newTestResolver(t *testing.T, root string) *Resolver {
	t.Helper()
	logger := output.NewLoggerWithWriter(output.VerbosityDefault, os.Stderr)
	stubs, err := stub.Load("", "3.12", logger)
	require.NoError(t, err)
	locator := &Locator{ProjectRoots: []string{root}}
	return New(locator, stubs, nil, logger)
}

func writeFile(t *testing.T, root, name, content string) string {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func parseInto(t *testing.T, r *Resolver, importPath, path string) *model.Module {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	mod, err := visitor.ParseModule(context.Background(), importPath, path, data)
	require.NoError(t, err)
	r.AddModule(mod)
	return mod
}

func TestLocator_ProjectModuleAndPackage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pkg/__init__.py", "")
	writeFile(t, root, "pkg/mod.py", "def f(): pass\n")

	locator := &Locator{ProjectRoots: []string{root}}

	path, kind, ok := locator.Locate("pkg.mod")
	require.True(t, ok)
	assert.Equal(t, model.ModuleProject, kind)
	assert.Equal(t, filepath.Join(root, "pkg", "mod.py"), path)

	path, kind, ok = locator.Locate("pkg")
	require.True(t, ok)
	assert.Equal(t, model.ModuleProject, kind)
	assert.Equal(t, filepath.Join(root, "pkg", "__init__.py"), path)
}

func TestLocator_NativeExtension(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "speedups.cpython-312-x86_64-linux-gnu.so", "")

	locator := &Locator{ProjectRoots: []string{root}}
	_, kind, ok := locator.Locate("speedups")
	require.True(t, ok)
	assert.Equal(t, model.ModuleNative, kind)
}

func TestLocator_BuiltinModulesAreNative(t *testing.T) {
	locator := &Locator{}
	_, kind, ok := locator.Locate("sys")
	require.True(t, ok)
	assert.Equal(t, model.ModuleNative, kind)
}

func TestResolveCall_LocalAndImported(t *testing.T) {
	root := t.TempDir()
	utilsPath := writeFile(t, root, "utils.py", "def sanitize(x): raise ValueError()\n")
	appPath := writeFile(t, root, "app.py", `from utils import sanitize
def local(): pass
def go():
    local()
    sanitize("x")
`)
	r := newTestResolver(t, root)
	app := parseInto(t, r, "app", appPath)
	_ = utilsPath

	ctx := context.Background()

	local := r.ResolveCall(ctx, app, app.Function("go"), "local")
	require.Equal(t, TargetFunction, local.Kind)
	assert.Equal(t, "local", local.Function.QualName)

	imported := r.ResolveCall(ctx, app, app.Function("go"), "sanitize")
	require.Equal(t, TargetFunction, imported.Kind)
	assert.Equal(t, "sanitize", imported.Function.QualName)
	assert.Equal(t, "utils", imported.Module.ImportPath)
}

func TestResolveCall_SelfMethod(t *testing.T) {
	root := t.TempDir()
	appPath := writeFile(t, root, "app.py", `class Store:
    def save(self):
        self.flush()
    def flush(self):
        raise OSError()
`)
	r := newTestResolver(t, root)
	app := parseInto(t, r, "app", appPath)

	target := r.ResolveCall(context.Background(), app, app.Function("Store.save"), "self.flush")
	require.Equal(t, TargetFunction, target.Kind)
	assert.Equal(t, "Store.flush", target.Function.QualName)
}

func TestResolveCall_ConstructorIsClass(t *testing.T) {
	root := t.TempDir()
	appPath := writeFile(t, root, "app.py", `class Parser:
    def __init__(self, path):
        raise FileNotFoundError()
def make():
    Parser("x")
`)
	r := newTestResolver(t, root)
	app := parseInto(t, r, "app", appPath)

	target := r.ResolveCall(context.Background(), app, app.Function("make"), "Parser")
	require.Equal(t, TargetClass, target.Kind)
	assert.Equal(t, "Parser", target.ClassName)
}

func TestResolveCall_BuiltinStub(t *testing.T) {
	root := t.TempDir()
	appPath := writeFile(t, root, "app.py", "def f(p):\n    open(p)\n")
	r := newTestResolver(t, root)
	app := parseInto(t, r, "app", appPath)

	target := r.ResolveCall(context.Background(), app, app.Function("f"), "open")
	require.Equal(t, TargetStub, target.Kind)
	assert.True(t, target.Builtin)
	assert.Contains(t, target.Stub.Exceptions, "FileNotFoundError")
}

func TestResolveCall_ReExportFollowedOneLevel(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "impl.py", "def loads(x): raise ValueError()\n")
	writeFile(t, root, "facade.py", "import impl\nloads = impl.loads\n")
	appPath := writeFile(t, root, "app.py", `import facade
def go():
    facade.loads("{}")
`)
	r := newTestResolver(t, root)
	app := parseInto(t, r, "app", appPath)

	target := r.ResolveCall(context.Background(), app, app.Function("go"), "facade.loads")
	require.Equal(t, TargetFunction, target.Kind)
	assert.Equal(t, "loads", target.Function.QualName)
	assert.Equal(t, "impl", target.Module.ImportPath)
}

func TestResolveCall_MissingDependencyIsNative(t *testing.T) {
	root := t.TempDir()
	appPath := writeFile(t, root, "app.py", `import ghost
def go():
    ghost.walk()
`)
	r := newTestResolver(t, root)
	app := parseInto(t, r, "app", appPath)

	target := r.ResolveCall(context.Background(), app, app.Function("go"), "ghost.walk")
	assert.Equal(t, TargetNative, target.Kind)
}

func TestResolveCall_OpaqueExpressions(t *testing.T) {
	root := t.TempDir()
	appPath := writeFile(t, root, "app.py", "def go(obj):\n    obj.method()\n")
	r := newTestResolver(t, root)
	app := parseInto(t, r, "app", appPath)

	target := r.ResolveCall(context.Background(), app, app.Function("go"), "obj.method")
	assert.Equal(t, TargetUnresolved, target.Kind)
}

func TestModule_SyntaxErrorSurfaces(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "broken.py", "def broken(:\n")
	r := newTestResolver(t, root)

	_, err := r.Module(context.Background(), "broken")
	require.Error(t, err)
	assert.IsType(t, &visitor.ErrSyntax{}, err)
}

func TestModule_Memoised(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "m.py", "def f(): pass\n")
	r := newTestResolver(t, root)

	first, err := r.Module(context.Background(), "m")
	require.NoError(t, err)
	second, err := r.Module(context.Background(), "m")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestDetectEnvironment_VersionFromFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".python-version"), []byte("3.11.4\n"), 0o644))
	env := DetectEnvironment(root)
	assert.Equal(t, "3.11", env.Version)

	root = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "pyproject.toml"),
		[]byte("[project]\nrequires-python = \">=3.10\"\n"), 0o644))
	env = DetectEnvironment(root)
	assert.Equal(t, "3.10", env.Version)
}
