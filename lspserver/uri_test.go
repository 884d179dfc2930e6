package lspserver

import (
	"testing"

	"github.com/sourcegraph/go-lsp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURIToPath_Posix(t *testing.T) {
	path, err := URIToPath("file:///home/dev/app.py")
	require.NoError(t, err)
	assert.Equal(t, "/home/dev/app.py", path)
}

func TestURIToPath_WindowsDialects(t *testing.T) {
	// The three common Windows URI shapes plus the slashless form all
	// normalise to one path.
	uris := []lsp.DocumentURI{
		"file:///c:/work/app.py",
		"file:///C%3A/work/app.py",
		"file://C:/work/app.py",
		"file:c:/work/app.py",
	}
	for _, uri := range uris {
		path, err := URIToPath(uri)
		require.NoError(t, err, "uri %s", uri)
		assert.Equal(t, "c:/work/app.py", path, "uri %s", uri)
	}
}

func TestURIToPath_UNC(t *testing.T) {
	path, err := URIToPath("file://server/share/app.py")
	require.NoError(t, err)
	assert.Equal(t, "//server/share/app.py", path)
}

func TestURIToPath_EscapedSpaces(t *testing.T) {
	path, err := URIToPath("file:///home/dev/my%20project/app.py")
	require.NoError(t, err)
	assert.Equal(t, "/home/dev/my project/app.py", path)
}

func TestURIToPath_RejectsOtherSchemes(t *testing.T) {
	_, err := URIToPath("https://example.com/app.py")
	assert.Error(t, err)
}

func TestPathToURI_RoundTrip(t *testing.T) {
	for _, path := range []string{"/home/dev/app.py", "c:/work/app.py"} {
		back, err := URIToPath(PathToURI(path))
		require.NoError(t, err)
		assert.Equal(t, path, back)
	}
}
