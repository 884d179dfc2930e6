package lspserver

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/sourcegraph/go-lsp"
)

// URIToPath normalises an editor-supplied file URI to a filesystem path.
// Editors disagree on Windows URI shape; all of these resolve to the
// same path:
//
//	file:///c:/work/app.py
//	file:///C%3A/work/app.py
//	file://C:/work/app.py
//	file:c:/work/app.py
//
// UNC authorities become //server/share paths. Drive letters are
// lowercased so the same document never appears under two URIs.
func URIToPath(uri lsp.DocumentURI) (string, error) {
	raw := string(uri)
	if !strings.HasPrefix(raw, "file:") {
		return "", fmt.Errorf("unsupported URI scheme in %q", raw)
	}
	rest := strings.TrimPrefix(raw, "file:")

	var authority string
	switch {
	case strings.HasPrefix(rest, "///"):
		rest = rest[3:]
	case strings.HasPrefix(rest, "//"):
		rest = rest[2:]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			authority = rest[:i]
			rest = rest[i+1:]
		} else {
			authority = rest
			rest = ""
		}
	case strings.HasPrefix(rest, "/"):
		rest = rest[1:]
	}

	decoded, err := url.PathUnescape(rest)
	if err != nil {
		return "", fmt.Errorf("undecodable URI %q: %w", raw, err)
	}
	decoded = strings.ReplaceAll(decoded, "\\", "/")

	// An authority that is really a drive letter (file://C:/...) folds
	// into the path; a true authority is a UNC host.
	if authority != "" {
		decodedAuth, err := url.PathUnescape(authority)
		if err != nil {
			decodedAuth = authority
		}
		if isDriveSpec(decodedAuth) {
			decoded = decodedAuth + "/" + decoded
		} else {
			return "//" + decodedAuth + "/" + decoded, nil
		}
	}

	if isDriveSpec2(decoded) {
		return strings.ToLower(decoded[:1]) + decoded[1:], nil
	}
	return "/" + decoded, nil
}

// isDriveSpec reports a bare Windows drive spec like "C:".
func isDriveSpec(s string) bool {
	return len(s) == 2 && s[1] == ':' && isASCIILetter(s[0])
}

// isDriveSpec2 reports a path beginning with a drive spec, "C:/...".
func isDriveSpec2(s string) bool {
	return len(s) >= 2 && s[1] == ':' && isASCIILetter(s[0])
}

func isASCIILetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// PathToURI renders a filesystem path back into a canonical file URI.
func PathToURI(path string) lsp.DocumentURI {
	path = strings.ReplaceAll(path, "\\", "/")
	if isDriveSpec2(path) {
		return lsp.DocumentURI("file:///" + strings.ToLower(path[:1]) + path[1:])
	}
	if strings.HasPrefix(path, "//") {
		return lsp.DocumentURI("file:" + path)
	}
	return lsp.DocumentURI("file://" + path)
}
