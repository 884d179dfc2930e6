package model

// ModuleKind classifies where a module's implementation lives.
type ModuleKind int

const (
	// ModuleProject is target-language source under a project root.
	ModuleProject ModuleKind = iota
	// ModuleStdlibSource is target-language source in the interpreter's
	// standard library.
	ModuleStdlibSource
	// ModuleSitePackages is target-language source in the environment's
	// site-packages.
	ModuleSitePackages
	// ModuleNative has no analysable source; only the stub store knows
	// its behaviour.
	ModuleNative
)

func (k ModuleKind) String() string {
	switch k {
	case ModuleProject:
		return "project"
	case ModuleStdlibSource:
		return "stdlib-source"
	case ModuleSitePackages:
		return "site-packages-source"
	case ModuleNative:
		return "native"
	}
	return "unknown"
}

// Module is one analysed module: its location, parsed function records,
// import table and the modules it depends on.
type Module struct {
	// ImportPath is the dotted module path ("myapp.utils").
	ImportPath string

	// FilePath is the absolute source path; empty for native modules.
	FilePath string

	Kind ModuleKind

	// ContentHash is the sha256 of the file contents at parse time,
	// hex-encoded; empty for native modules.
	ContentHash string

	// Functions are the visitor's records, including the synthetic
	// module-level record.
	Functions []*FunctionInfo

	// Imports maps local names to fully qualified imported paths.
	Imports map[string]string

	// ReExports maps names the module binds by simple top-level
	// assignment to the qualified name assigned ("name = other.name").
	ReExports map[string]string

	// Dependencies are import paths this module's analysis consumed.
	Dependencies map[string]struct{}

	// Classes maps class short names defined here to the qualified names
	// of their methods, for constructor resolution.
	Classes map[string][]string
}

// Function returns the FunctionInfo with the given qualified name within
// the module, or nil.
func (m *Module) Function(qualName string) *FunctionInfo {
	for _, f := range m.Functions {
		if f.QualName == qualName {
			return f
		}
	}
	return nil
}

// HasClass reports whether the module defines a class with the given
// short name.
func (m *Module) HasClass(name string) bool {
	_, ok := m.Classes[name]
	return ok
}

// AddDependency records that analysing this module consumed dep.
func (m *Module) AddDependency(dep string) {
	if m.Dependencies == nil {
		m.Dependencies = make(map[string]struct{})
	}
	m.Dependencies[dep] = struct{}{}
}
