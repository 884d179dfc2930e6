package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBuiltinAncestor(t *testing.T) {
	assert.True(t, IsBuiltinAncestor("OSError", "FileNotFoundError"))
	assert.True(t, IsBuiltinAncestor("Exception", "FileNotFoundError"))
	assert.True(t, IsBuiltinAncestor("BaseException", "KeyError"))
	assert.True(t, IsBuiltinAncestor("LookupError", "KeyError"))

	assert.False(t, IsBuiltinAncestor("OSError", "OSError"), "strict ancestry only")
	assert.False(t, IsBuiltinAncestor("OSError", "ValueError"))
	assert.False(t, IsBuiltinAncestor("Exception", "KeyboardInterrupt"))
	assert.False(t, IsBuiltinAncestor("ValueError", "MyCustomError"))
}

func TestHandles(t *testing.T) {
	// Catching a class handles the class itself and its descendants.
	assert.True(t, Handles("ValueError", "ValueError"))
	assert.True(t, Handles("OSError", "PermissionError"))
	assert.True(t, Handles("Exception", "JSONDecodeError"))
	assert.True(t, Handles("BaseException", "SystemExit"))

	// Qualified spellings match on the rightmost segment.
	assert.True(t, Handles("JSONDecodeError", "json.JSONDecodeError"))
	assert.True(t, Handles("ValueError", "json.JSONDecodeError"))

	assert.False(t, Handles("FileNotFoundError", "OSError"), "descendants never catch ancestors")
	assert.False(t, Handles("KeyError", "IndexError"))
}

func TestHierarchyClosure_ExceptionCoversAllCatchableBuiltins(t *testing.T) {
	// Everything below Exception in the table must be handled by a
	// handler catching Exception.
	for _, descendant := range BuiltinDescendants("Exception") {
		assert.True(t, Handles("Exception", descendant), "Exception should handle %s", descendant)
	}
	// The non-Exception branch stays outside.
	assert.False(t, Handles("Exception", "SystemExit"))
	assert.False(t, Handles("Exception", "KeyboardInterrupt"))
	assert.False(t, Handles("Exception", "GeneratorExit"))
}

func TestTryHandler_Catches(t *testing.T) {
	universal := TryHandler{}
	assert.True(t, universal.IsUniversal())
	assert.True(t, universal.CatchesClass("AnythingAtAll"))

	narrow := TryHandler{Caught: []string{"ValueError", "KeyError"}}
	assert.True(t, narrow.CatchesClass("ValueError"))
	assert.True(t, narrow.CatchesClass("KeyError"))
	assert.False(t, narrow.CatchesClass("OSError"))
}

func TestFunctionInfo_HandledAt(t *testing.T) {
	fn := &FunctionInfo{
		TryScopes: []TryScope{
			{ID: 0, StartLine: 2, EndLine: 4, Handlers: []TryHandler{{Caught: []string{"OSError"}}}},
		},
	}
	call := &CallInfo{Line: 3, EnclosingTries: []int{0}}

	assert.True(t, fn.HandledAt(call, "FileNotFoundError"))
	assert.True(t, fn.HandledAt(call, "OSError"))
	assert.False(t, fn.HandledAt(call, "ValueError"))

	outside := &CallInfo{Line: 9}
	assert.False(t, fn.HandledAt(outside, "OSError"))
}
