package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExceptionSet_AddLowerConfidenceWins(t *testing.T) {
	// Merging the same class from two sources keeps the more honest
	// confidence.
	set := NewExceptionSet()
	set.Add("ValueError", ConfidenceExact)
	set.Add("ValueError", ConfidenceConservative)

	assert.Equal(t, ConfidenceConservative, set["ValueError"])
	assert.Len(t, set, 1)
}

func TestExceptionSet_AddPrefersQualifiedSpelling(t *testing.T) {
	set := NewExceptionSet()
	set.Add("JSONDecodeError", ConfidenceLikely)
	set.Add("json.JSONDecodeError", ConfidenceExact)

	assert.Len(t, set, 1)
	assert.Contains(t, set, "json.JSONDecodeError")
	assert.Equal(t, ConfidenceLikely, set["json.JSONDecodeError"])
}

func TestExceptionSet_MergeElementWise(t *testing.T) {
	a := NewExceptionSet()
	a.Add("KeyError", ConfidenceExact)
	a.Add("OSError", ConfidenceManual)

	b := NewExceptionSet()
	b.Add("KeyError", ConfidenceConservative)
	b.Add("ValueError", ConfidenceLikely)

	a.Merge(b)

	assert.Equal(t, ConfidenceConservative, a["KeyError"])
	assert.Equal(t, ConfidenceManual, a["OSError"])
	assert.Equal(t, ConfidenceLikely, a["ValueError"])
}

func TestExceptionSet_EqualIgnoresOrder(t *testing.T) {
	a := NewExceptionSet()
	a.Add("ValueError", ConfidenceExact)
	a.Add("KeyError", ConfidenceLikely)

	b := NewExceptionSet()
	b.Add("KeyError", ConfidenceLikely)
	b.Add("ValueError", ConfidenceExact)

	assert.True(t, a.Equal(b))
	assert.True(t, b.Equal(a))
}

func TestExceptionSet_CoexistingAncestorAndDescendant(t *testing.T) {
	// A stub can honestly list OSError alongside FileNotFoundError; the
	// plain set keeps both.
	set := NewExceptionSet()
	set.Add("OSError", ConfidenceManual)
	set.Add("FileNotFoundError", ConfidenceManual)

	assert.Len(t, set, 2)
}

func TestExceptionSet_CollapsedFoldsDescendants(t *testing.T) {
	set := NewExceptionSet()
	set.Add("OSError", ConfidenceManual)
	set.Add("FileNotFoundError", ConfidenceConservative)
	set.Add("ValueError", ConfidenceExact)

	collapsed := set.Collapsed()

	assert.Len(t, collapsed, 2)
	assert.Contains(t, collapsed, "OSError")
	assert.Contains(t, collapsed, "ValueError")
	// The folded descendant drags the ancestor's confidence down.
	assert.Equal(t, ConfidenceConservative, collapsed["OSError"])
}

func TestExceptionSet_RemoveMatchesRightmostSegment(t *testing.T) {
	set := NewExceptionSet()
	set.Add("json.JSONDecodeError", ConfidenceExact)
	set.Add("ValueError", ConfidenceExact)

	set.Remove("JSONDecodeError")

	assert.Len(t, set, 1)
	assert.Contains(t, set, "ValueError")
}

func TestShortName(t *testing.T) {
	assert.Equal(t, "JSONDecodeError", ShortName("json.JSONDecodeError"))
	assert.Equal(t, "ValueError", ShortName("ValueError"))
}

func TestParseConfidence_UnknownDegradesToConservative(t *testing.T) {
	assert.Equal(t, ConfidenceConservative, ParseConfidence("nonsense"))
	assert.Equal(t, ConfidenceManual, ParseConfidence("Manual"))
	assert.Equal(t, ConfidenceExact, ParseConfidence(" exact "))
}
