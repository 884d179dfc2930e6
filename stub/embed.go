package stub

import _ "embed"

// builtinStubs is the shipped stub database for the interpreter's
// built-in namespace and the native parts of the standard library. It is
// merged first so user-provided stub files can lower confidences but a
// missing stub directory still analyses correctly.
//
//go:embed data/builtins.json
var builtinStubs []byte
