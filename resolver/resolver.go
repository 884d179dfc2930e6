package resolver

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/markjoshwel/raiseattention/model"
	"github.com/markjoshwel/raiseattention/output"
	"github.com/markjoshwel/raiseattention/stub"
	"github.com/markjoshwel/raiseattention/visitor"
)

// TargetKind classifies what a dotted callee name resolved to.
type TargetKind int

const (
	// TargetUnresolved means the name could not be bound statically; the
	// call is opaque.
	TargetUnresolved TargetKind = iota
	// TargetFunction is a function or method with analysable source.
	TargetFunction
	// TargetClass is a class; a call is a constructor invocation.
	TargetClass
	// TargetStub is a native callee with stub coverage.
	TargetStub
	// TargetNative is a native or missing callee without stub coverage.
	TargetNative
)

// Target is the result of resolving a call site's callee.
type Target struct {
	Kind     TargetKind
	Function *model.FunctionInfo
	Module   *model.Module
	// ClassName is set for TargetClass: the class's dotted name within
	// Module.
	ClassName string
	Stub      model.StubRecord
	// Builtin marks a bare name resolved through the interpreter's
	// built-in namespace; the built-in filter rule applies only to
	// these.
	Builtin bool
	// Name is the callee expression the target was resolved from.
	Name string
}

// ModuleCache is the file-level cache consulted before parsing. The
// concrete implementation lives in the cache package; the indirection
// keeps the resolver testable without a store on disk.
type ModuleCache interface {
	GetModule(path, contentHash string) (*model.Module, bool)
	PutModule(mod *model.Module)
}

// ResolveError records an I/O failure against a specific file; the
// session reports each as an internal-error diagnostic without aborting
// the run.
type ResolveError struct {
	Path string
	Err  error
}

func (e ResolveError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Resolver loads modules on demand and binds dotted names to functions,
// classes, stubs or native placeholders. Safe for use from a single
// goroutine; the engine's fixpoint is single-threaded by design.
type Resolver struct {
	locator *Locator
	stubs   *stub.Store
	logger  *output.Logger
	cache   ModuleCache

	// IgnoreModule, when set, marks modules whose calls are skipped.
	IgnoreModule func(string) bool

	mu      sync.Mutex
	modules map[string]*moduleEntry
	errs    []ResolveError
}

type moduleEntry struct {
	mod *model.Module
	err error
}

// New builds a resolver. cache may be nil.
func New(locator *Locator, stubs *stub.Store, cache ModuleCache, logger *output.Logger) *Resolver {
	return &Resolver{
		locator: locator,
		stubs:   stubs,
		logger:  logger,
		cache:   cache,
		modules: make(map[string]*moduleEntry),
	}
}

// Errors returns the I/O failures accumulated so far.
func (r *Resolver) Errors() []ResolveError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ResolveError(nil), r.errs...)
}

// AddModule registers an already-parsed module (batch mode parses project
// files up front on the worker pool).
func (r *Resolver) AddModule(mod *model.Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[mod.ImportPath] = &moduleEntry{mod: mod}
}

// Module loads and memoises the module behind an import path. A nil
// module with nil error means the path names a native module.
func (r *Resolver) Module(ctx context.Context, importPath string) (*model.Module, error) {
	r.mu.Lock()
	if entry, ok := r.modules[importPath]; ok {
		r.mu.Unlock()
		return entry.mod, entry.err
	}
	r.mu.Unlock()

	mod, err := r.load(ctx, importPath)

	r.mu.Lock()
	r.modules[importPath] = &moduleEntry{mod: mod, err: err}
	if err != nil {
		if re, ok := err.(*ResolveError); ok {
			r.errs = append(r.errs, *re)
		}
	}
	r.mu.Unlock()
	return mod, err
}

func (r *Resolver) load(ctx context.Context, importPath string) (*model.Module, error) {
	path, kind, ok := r.locator.Locate(importPath)
	if !ok || kind == model.ModuleNative {
		return nil, nil
	}

	source, err := os.ReadFile(path)
	if err != nil {
		return nil, &ResolveError{Path: path, Err: err}
	}

	if r.cache != nil {
		hash := model.HashContent(source)
		if mod, ok := r.cache.GetModule(path, hash); ok {
			mod.Kind = kind
			return mod, nil
		}
	}

	mod, err := visitor.ParseModule(ctx, importPath, path, source)
	if err != nil {
		if _, isSyntax := err.(*visitor.ErrSyntax); isSyntax {
			r.logger.Debugf("skipping %s: syntax error", path)
			return nil, err
		}
		return nil, &ResolveError{Path: path, Err: err}
	}
	mod.Kind = kind
	if r.cache != nil {
		r.cache.PutModule(mod)
	}
	return mod, nil
}

// maxReExportDepth bounds transparent re-export following to one level
// plus the original hop.
const maxReExportDepth = 2

// ResolveCall binds a call site's callee expression, observed in function
// fn of module from, to a target.
func (r *Resolver) ResolveCall(ctx context.Context, from *model.Module, fn *model.FunctionInfo, callee string) Target {
	t := r.resolveCall(ctx, from, fn, callee)
	t.Name = callee
	return t
}

func (r *Resolver) resolveCall(ctx context.Context, from *model.Module, fn *model.FunctionInfo, callee string) Target {
	if callee == "" {
		return Target{Kind: TargetUnresolved}
	}

	head, rest, dotted := cutDot(callee)

	// self.m / cls.m: a method call on the enclosing class.
	if dotted && (head == "self" || head == "cls") && fn != nil && fn.ClassName != "" {
		qual := fn.ClassName + "." + rest
		if target := from.Function(qual); target != nil {
			return Target{Kind: TargetFunction, Function: target, Module: from}
		}
		return Target{Kind: TargetUnresolved}
	}

	if !dotted {
		// Local function or class in the same module.
		if target := from.Function(callee); target != nil {
			return Target{Kind: TargetFunction, Function: target, Module: from}
		}
		if from.HasClass(callee) {
			return Target{Kind: TargetClass, Module: from, ClassName: callee}
		}
		if imported, ok := from.Imports[callee]; ok {
			return r.resolveQualified(ctx, from, imported, 0)
		}
		if reexport, ok := from.ReExports[callee]; ok {
			return r.resolveQualified(ctx, from, reexport, 1)
		}
		if rec, ok := r.stubs.LookupFunction("builtins", callee); ok {
			return Target{Kind: TargetStub, Stub: rec, Builtin: true}
		}
		return Target{Kind: TargetUnresolved}
	}

	// Class.method within the same module.
	if from.HasClass(head) {
		if target := from.Function(callee); target != nil {
			return Target{Kind: TargetFunction, Function: target, Module: from}
		}
		return Target{Kind: TargetUnresolved}
	}

	if imported, ok := from.Imports[head]; ok {
		return r.resolveQualified(ctx, from, imported+"."+rest, 0)
	}
	if reexport, ok := from.ReExports[head]; ok {
		return r.resolveQualified(ctx, from, reexport+"."+rest, 1)
	}
	return Target{Kind: TargetUnresolved}
}

// resolveQualified binds an absolute dotted name: the longest prefix that
// locates a module wins; the remainder is the object path inside it.
func (r *Resolver) resolveQualified(ctx context.Context, from *model.Module, full string, depth int) Target {
	if depth >= maxReExportDepth {
		return Target{Kind: TargetUnresolved}
	}
	if r.IgnoreModule != nil && r.IgnoreModule(full) {
		return Target{Kind: TargetUnresolved}
	}

	segments := splitDots(full)
	for i := len(segments); i >= 1; i-- {
		modPath := joinDots(segments[:i])
		rest := segments[i:]

		_, kind, ok := r.locator.Locate(modPath)
		if !ok {
			continue
		}
		if from != nil {
			from.AddDependency(modPath)
		}

		if kind == model.ModuleNative {
			return r.resolveNative(modPath, rest)
		}

		mod, err := r.Module(ctx, modPath)
		if err != nil || mod == nil {
			return Target{Kind: TargetNative}
		}
		return r.resolveInModule(ctx, mod, rest, depth)
	}

	// Nothing on any search path: a missing dependency is native-opaque.
	return Target{Kind: TargetNative}
}

// resolveInModule binds the object path within a loaded source module.
func (r *Resolver) resolveInModule(ctx context.Context, mod *model.Module, rest []string, depth int) Target {
	switch len(rest) {
	case 0:
		// A module is not callable for our purposes.
		return Target{Kind: TargetUnresolved}
	case 1:
		name := rest[0]
		if target := mod.Function(name); target != nil {
			return Target{Kind: TargetFunction, Function: target, Module: mod}
		}
		if mod.HasClass(name) {
			return Target{Kind: TargetClass, Module: mod, ClassName: name}
		}
		if reexport, ok := mod.ReExports[name]; ok {
			return r.resolveQualified(ctx, mod, reexport, depth+1)
		}
		if imported, ok := mod.Imports[name]; ok {
			return r.resolveQualified(ctx, mod, imported, depth+1)
		}
		return Target{Kind: TargetUnresolved}
	case 2:
		qual := rest[0] + "." + rest[1]
		if target := mod.Function(qual); target != nil {
			return Target{Kind: TargetFunction, Function: target, Module: mod}
		}
		return Target{Kind: TargetUnresolved}
	default:
		return Target{Kind: TargetUnresolved}
	}
}

// resolveNative consults the stub store for a native module's object
// path.
func (r *Resolver) resolveNative(modPath string, rest []string) Target {
	switch len(rest) {
	case 1:
		if rec, ok := r.stubs.LookupFunction(modPath, rest[0]); ok {
			return Target{Kind: TargetStub, Stub: rec}
		}
	case 2:
		if rec, ok := r.stubs.Lookup(modPath, rest[0], rest[1]); ok {
			return Target{Kind: TargetStub, Stub: rec}
		}
	}
	return Target{Kind: TargetNative}
}

func cutDot(s string) (head, rest string, found bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

func splitDots(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '.' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func joinDots(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "."
		}
		out += p
	}
	return out
}
