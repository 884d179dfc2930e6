package visitor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markjoshwel/raiseattention/model"
)

func parse(t *testing.T, source string) *model.Module {
	t.Helper()
	mod, err := ParseModule(context.Background(), "app", "/project/app.py", []byte(source))
	require.NoError(t, err)
	return mod
}

func fnByName(t *testing.T, mod *model.Module, name string) *model.FunctionInfo {
	t.Helper()
	fn := mod.Function(name)
	require.NotNil(t, fn, "function %s not found", name)
	return fn
}

func TestParseModule_DirectRaise(t *testing.T) {
	mod := parse(t, `
def r():
    raise ValueError("x")
`)
	fn := fnByName(t, mod, "r")
	assert.Contains(t, fn.Raises, "ValueError")
	assert.Equal(t, model.ConfidenceExact, fn.Raises["ValueError"])
}

func TestParseModule_RaiseDottedAttribute(t *testing.T) {
	mod := parse(t, `
import errors

def r():
    raise errors.ConfigError
`)
	fn := fnByName(t, mod, "r")
	assert.Contains(t, fn.Raises, "errors.ConfigError")
}

func TestParseModule_CallsRecordedWithPosition(t *testing.T) {
	mod := parse(t, `
def c():
    helper()
`)
	fn := fnByName(t, mod, "c")
	require.Len(t, fn.Calls, 1)
	assert.Equal(t, "helper", fn.Calls[0].Callee)
	assert.Equal(t, 3, fn.Calls[0].Line)
	assert.Equal(t, 4, fn.Calls[0].Col)
}

func TestParseModule_TryScopeAndHandlers(t *testing.T) {
	mod := parse(t, `
def c():
    try:
        r()
    except ValueError:
        pass
`)
	fn := fnByName(t, mod, "c")
	require.Len(t, fn.TryScopes, 1)
	require.Len(t, fn.TryScopes[0].Handlers, 1)
	assert.Equal(t, []string{"ValueError"}, fn.TryScopes[0].Handlers[0].Caught)

	require.Len(t, fn.Calls, 1)
	assert.Equal(t, []int{0}, fn.Calls[0].EnclosingTries)
}

func TestParseModule_TupleHandlerWithBinding(t *testing.T) {
	mod := parse(t, `
def c():
    try:
        r()
    except (ValueError, KeyError) as e:
        log(e)
`)
	fn := fnByName(t, mod, "c")
	require.Len(t, fn.TryScopes, 1)
	h := fn.TryScopes[0].Handlers[0]
	assert.ElementsMatch(t, []string{"ValueError", "KeyError"}, h.Caught)
	assert.Equal(t, "e", h.AsName)
	assert.False(t, h.Reraises)
}

func TestParseModule_UniversalHandler(t *testing.T) {
	mod := parse(t, `
def c():
    try:
        r()
    except:
        pass
`)
	fn := fnByName(t, mod, "c")
	require.Len(t, fn.TryScopes, 1)
	assert.True(t, fn.TryScopes[0].Handlers[0].IsUniversal())
}

func TestParseModule_HandlerBodyNotGuarded(t *testing.T) {
	// A call inside an except suite is outside the guarded region.
	mod := parse(t, `
def c():
    try:
        risky()
    except ValueError:
        fallback()
`)
	fn := fnByName(t, mod, "c")
	require.Len(t, fn.Calls, 2)
	assert.Equal(t, []int{0}, fn.Calls[0].EnclosingTries)
	assert.Empty(t, fn.Calls[1].EnclosingTries)
}

func TestParseModule_ReraiseOfBoundVariable(t *testing.T) {
	// raise e where e is the handler binding is a re-raise, not a new
	// exception named e.
	mod := parse(t, `
def handler():
    try:
        r()
    except ValueError as e:
        raise e
`)
	fn := fnByName(t, mod, "handler")
	assert.NotContains(t, fn.Raises, "e")
	require.Len(t, fn.ReraiseCaught, 1)
	assert.Equal(t, []string{"ValueError"}, fn.ReraiseCaught[0])
	assert.True(t, fn.TryScopes[0].Handlers[0].Reraises)
}

func TestParseModule_BareReraise(t *testing.T) {
	mod := parse(t, `
def handler():
    try:
        r()
    except KeyError:
        raise
`)
	fn := fnByName(t, mod, "handler")
	assert.True(t, fn.HasBareRaise)
	assert.Empty(t, fn.Raises)
	require.Len(t, fn.ReraiseCaught, 1)
	assert.Equal(t, []string{"KeyError"}, fn.ReraiseCaught[0])
}

func TestParseModule_CallableArgumentHints(t *testing.T) {
	mod := parse(t, `
def c(items):
    sorted(items, key=risky)
    sorted(items, key=lambda x: x.bad)
    map(transform, items)
`)
	fn := fnByName(t, mod, "c")
	require.Len(t, fn.Calls, 3)

	require.Len(t, fn.Calls[0].CallableArgs, 1)
	assert.Equal(t, "risky", fn.Calls[0].CallableArgs[0].Name)
	assert.Equal(t, "key", fn.Calls[0].CallableArgs[0].Keyword)

	require.Len(t, fn.Calls[1].CallableArgs, 1)
	assert.True(t, fn.Calls[1].CallableArgs[0].IsLambda())

	require.NotEmpty(t, fn.Calls[2].CallableArgs)
	assert.Equal(t, "transform", fn.Calls[2].CallableArgs[0].Name)
	assert.Equal(t, 0, fn.Calls[2].CallableArgs[0].Position)
}

func TestParseModule_MethodsAndClasses(t *testing.T) {
	mod := parse(t, `
class Store:
    def save(self):
        self.flush()

    def flush(self):
        raise OSError()
`)
	save := fnByName(t, mod, "Store.save")
	assert.True(t, save.IsMethod)
	assert.Equal(t, "Store", save.ClassName)
	require.Len(t, save.Calls, 1)
	assert.Equal(t, "self.flush", save.Calls[0].Callee)

	assert.True(t, mod.HasClass("Store"))
	assert.Contains(t, mod.Classes["Store"], "Store.save")
	assert.Contains(t, mod.Classes["Store"], "Store.flush")
}

func TestParseModule_DecoratorsAndDocstring(t *testing.T) {
	mod := parse(t, `
@functools.lru_cache(maxsize=64)
def cached():
    """Compute things.

    Raises ValueError when the input is empty.
    """
    return 1
`)
	fn := fnByName(t, mod, "cached")
	require.Len(t, fn.Decorators, 1)
	assert.Equal(t, "functools.lru_cache(maxsize=64)", fn.Decorators[0])
	assert.Contains(t, fn.Docstring, "Raises ValueError")
	assert.Equal(t, 2, fn.StartLine, "decorated definitions start at the decorator")
}

func TestParseModule_AsyncTransparentAwait(t *testing.T) {
	mod := parse(t, `
async def fetch():
    await client.get()
`)
	fn := fnByName(t, mod, "fetch")
	assert.True(t, fn.IsAsync)
	require.Len(t, fn.Calls, 1)
	assert.Equal(t, "client.get", fn.Calls[0].Callee)
}

func TestParseModule_Imports(t *testing.T) {
	mod := parse(t, `
import os
import os.path
import numpy as np
from myapp.utils import sanitize
from myapp.db import query as db_query
`)
	assert.Equal(t, "os", mod.Imports["os"])
	assert.Equal(t, "os.path", mod.Imports["os.path"])
	assert.Equal(t, "numpy", mod.Imports["np"])
	assert.Equal(t, "myapp.utils.sanitize", mod.Imports["sanitize"])
	assert.Equal(t, "myapp.db.query", mod.Imports["db_query"])
}

func TestParseModule_RelativeImports(t *testing.T) {
	mod, err := ParseModule(context.Background(), "pkg.sub.mod", "/project/pkg/sub/mod.py", []byte(`
from . import sibling
from ..other import helper
`))
	require.NoError(t, err)
	assert.Equal(t, "pkg.sub.sibling", mod.Imports["sibling"])
	assert.Equal(t, "pkg.other.helper", mod.Imports["helper"])
}

func TestParseModule_ReExports(t *testing.T) {
	mod := parse(t, `
import impl

loads = impl.loads
`)
	assert.Equal(t, "impl.loads", mod.ReExports["loads"])
}

func TestParseModule_ModuleLevelCalls(t *testing.T) {
	mod := parse(t, `
setup()
`)
	top := mod.Function(model.ModuleLevelName)
	require.NotNil(t, top)
	require.Len(t, top.Calls, 1)
	assert.Equal(t, "setup", top.Calls[0].Callee)
}

func TestParseModule_SyntaxErrorReported(t *testing.T) {
	_, err := ParseModule(context.Background(), "bad", "/project/bad.py", []byte("def broken(:\n"))
	require.Error(t, err)
	assert.IsType(t, &ErrSyntax{}, err)
}

func TestParseModule_LambdaBodyOpaque(t *testing.T) {
	// Calls inside a lambda body are not attributed to the enclosing
	// function.
	mod := parse(t, `
def c(xs):
    f = lambda x: risky(x)
    return f
`)
	fn := fnByName(t, mod, "c")
	assert.Empty(t, fn.Calls)
}

func TestParseModule_MultilineCallStatementExtent(t *testing.T) {
	mod := parse(t, `
def c():
    helper(
        1,
        2,
    )
`)
	fn := fnByName(t, mod, "c")
	require.Len(t, fn.Calls, 1)
	assert.Equal(t, 3, fn.Calls[0].Line)
	assert.Equal(t, 6, fn.Calls[0].StmtEndLine)
}
