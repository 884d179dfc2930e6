// Package engine computes the may-raise signature of every reachable
// function with a classic worklist fixpoint: signatures grow
// monotonically as call contributions propagate, so recursive call
// graphs converge without special casing.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/markjoshwel/raiseattention/config"
	"github.com/markjoshwel/raiseattention/model"
	"github.com/markjoshwel/raiseattention/output"
	"github.com/markjoshwel/raiseattention/resolver"
)

// FunctionKey identifies a function globally: "module:qualname".
func FunctionKey(module, qualName string) string {
	return module + ":" + qualName
}

// ResolvedCall pairs a call site with its bound target and the raw
// may-raise set the callee contributes before handler subtraction. The
// diagnostic engine consumes these.
type ResolvedCall struct {
	Call    *model.CallInfo
	Target  resolver.Target
	Raw     model.ExceptionSet
	Builtin bool
}

// Engine holds the program under analysis and its signatures.
type Engine struct {
	res    *resolver.Resolver
	cfg    *config.Config
	logger *output.Logger

	functions map[string]*model.FunctionInfo
	modules   map[string]*model.Module
	roots     map[string]struct{}

	// resolved[key][i] corresponds to functions[key].Calls[i].
	resolved map[string][]resolvedTarget
	// decorators[key] holds the resolved non-transparent wrappers of the
	// function, bound once during the resolve phase.
	decorators map[string][]resolver.Target
	callers    map[string]map[string]struct{}

	sigs map[string]model.ExceptionSet

	// SeedSignatures, when set, provides cached converged signatures.
	// Signatures grow monotonically, so warm-starting from a cached
	// value converges to the same fixpoint in fewer passes.
	SeedSignatures func(fn *model.FunctionInfo) (model.ExceptionSet, bool)
}

type resolvedTarget struct {
	target resolver.Target
	// hints are the resolved callable-argument targets for HOF calls.
	hints []resolver.Target
}

// New builds an engine over a resolver and configuration.
func New(res *resolver.Resolver, cfg *config.Config, logger *output.Logger) *Engine {
	return &Engine{
		res:        res,
		cfg:        cfg,
		logger:     logger,
		functions:  make(map[string]*model.FunctionInfo),
		modules:    make(map[string]*model.Module),
		roots:      make(map[string]struct{}),
		resolved:   make(map[string][]resolvedTarget),
		decorators: make(map[string][]resolver.Target),
		callers:    make(map[string]map[string]struct{}),
		sigs:       make(map[string]model.ExceptionSet),
	}
}

// AddRootModule registers a module whose functions are analysed and
// reported on.
func (e *Engine) AddRootModule(mod *model.Module) {
	e.roots[mod.ImportPath] = struct{}{}
	e.addModule(mod)
}

func (e *Engine) addModule(mod *model.Module) {
	if _, ok := e.modules[mod.ImportPath]; ok {
		return
	}
	e.modules[mod.ImportPath] = mod
	for _, fn := range mod.Functions {
		e.functions[FunctionKey(mod.ImportPath, fn.QualName)] = fn
	}
}

// Run resolves every reachable call site and iterates the fixpoint to
// convergence. Cancellation is honoured between functions; a cancelled
// run leaves no partial signatures behind.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.resolveAll(ctx); err != nil {
		e.sigs = make(map[string]model.ExceptionSet)
		return err
	}
	if err := e.fixpoint(ctx); err != nil {
		e.sigs = make(map[string]model.ExceptionSet)
		return err
	}
	return nil
}

// resolveAll binds call targets breadth-first from the root modules,
// pulling externally referenced modules into the program as they are
// discovered.
func (e *Engine) resolveAll(ctx context.Context) error {
	queue := make([]string, 0, len(e.functions))
	for key := range e.functions {
		queue = append(queue, key)
	}
	sort.Strings(queue)

	seen := make(map[string]struct{}, len(queue))
	for _, key := range queue {
		seen[key] = struct{}{}
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := queue[0]
		queue = queue[1:]
		fn := e.functions[key]
		mod := e.modules[fn.Module]

		targets := make([]resolvedTarget, len(fn.Calls))
		for i := range fn.Calls {
			call := &fn.Calls[i]
			rt := resolvedTarget{target: e.resolveTarget(ctx, mod, fn, call.Callee)}

			if _, isHOF := lookupHOF(call.Callee); isHOF {
				rt.hints = e.resolveHints(ctx, mod, fn, call)
			}

			targets[i] = rt
			for _, t := range append([]resolver.Target{rt.target}, rt.hints...) {
				e.enqueueTarget(t, key, seen, &queue)
			}
		}
		e.resolved[key] = targets

		for _, dec := range fn.Decorators {
			if isTransparentDecorator(dec) {
				continue
			}
			t := e.res.ResolveCall(ctx, mod, fn, decoratorTarget(dec))
			if t.Kind != resolver.TargetFunction {
				continue
			}
			e.decorators[key] = append(e.decorators[key], t)
			e.enqueueTarget(t, key, seen, &queue)
		}
	}
	return nil
}

// enqueueTarget pulls a resolved source target into the program and
// records the caller edge so signature growth re-queues the caller.
func (e *Engine) enqueueTarget(t resolver.Target, caller string, seen map[string]struct{}, queue *[]string) {
	if t.Kind != resolver.TargetFunction && t.Kind != resolver.TargetClass {
		return
	}
	e.addModule(t.Module)
	for _, callee := range e.calleeKeys(t) {
		e.recordCaller(callee, caller)
		if _, ok := seen[callee]; !ok {
			seen[callee] = struct{}{}
			*queue = append(*queue, callee)
		}
	}
}

// resolveTarget applies the local-only policy on top of plain
// resolution: in local mode, anything outside project source contributes
// nothing.
func (e *Engine) resolveTarget(ctx context.Context, mod *model.Module, fn *model.FunctionInfo, callee string) resolver.Target {
	t := e.res.ResolveCall(ctx, mod, fn, callee)
	if e.cfg.LocalOnly {
		switch t.Kind {
		case resolver.TargetStub, resolver.TargetNative:
			return resolver.Target{Kind: resolver.TargetUnresolved}
		case resolver.TargetFunction, resolver.TargetClass:
			if t.Module != nil && t.Module.Kind != model.ModuleProject {
				return resolver.Target{Kind: resolver.TargetUnresolved}
			}
		}
	}
	return t
}

// resolveHints binds the callable-argument hints of a HOF call at its
// recognised parameter positions. Lambdas contribute nothing.
func (e *Engine) resolveHints(ctx context.Context, mod *model.Module, fn *model.FunctionInfo, call *model.CallInfo) []resolver.Target {
	pattern, _ := lookupHOF(call.Callee)
	var out []resolver.Target
	for _, arg := range call.CallableArgs {
		if arg.IsLambda() {
			continue
		}
		accepted := false
		switch {
		case arg.Keyword != "":
			accepted = true
		case pattern.FirstPositional && arg.Position == 0:
			accepted = true
		}
		if !accepted {
			continue
		}
		t := e.resolveTarget(ctx, mod, fn, arg.Name)
		if t.Kind != resolver.TargetUnresolved {
			out = append(out, t)
		}
	}
	return out
}

// calleeKeys returns the function keys a target contributes through: the
// function itself, or a class's constructor.
func (e *Engine) calleeKeys(t resolver.Target) []string {
	switch t.Kind {
	case resolver.TargetFunction:
		return []string{FunctionKey(t.Module.ImportPath, t.Function.QualName)}
	case resolver.TargetClass:
		init := t.ClassName + ".__init__"
		if t.Module.Function(init) != nil {
			return []string{FunctionKey(t.Module.ImportPath, init)}
		}
	}
	return nil
}

func (e *Engine) recordCaller(callee, caller string) {
	set := e.callers[callee]
	if set == nil {
		set = make(map[string]struct{})
		e.callers[callee] = set
	}
	set[caller] = struct{}{}
}

// fixpoint iterates until no signature grows. Signatures only ever gain
// members, so convergence is guaranteed.
func (e *Engine) fixpoint(ctx context.Context) error {
	worklist := make([]string, 0, len(e.functions))
	for key := range e.functions {
		seed := e.seedSignature(key)
		if e.SeedSignatures != nil {
			if cached, ok := e.SeedSignatures(e.functions[key]); ok {
				seed.Merge(cached)
			}
		}
		e.sigs[key] = seed
		worklist = append(worklist, key)
	}
	sort.Strings(worklist)

	queued := make(map[string]struct{}, len(worklist))
	for _, key := range worklist {
		queued[key] = struct{}{}
	}

	for len(worklist) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := worklist[0]
		worklist = worklist[1:]
		delete(queued, key)

		updated := e.computeSignature(key)
		current := e.sigs[key]
		grown := false
		for name, conf := range updated {
			if existing, ok := current[name]; !ok || conf < existing {
				grown = true
			}
		}
		if !grown {
			continue
		}
		current.Merge(updated)
		for caller := range e.callers[key] {
			if _, ok := queued[caller]; !ok {
				queued[caller] = struct{}{}
				worklist = append(worklist, caller)
			}
		}
	}
	return nil
}

// seedSignature is sig(f)₀: direct raises plus re-raised handler sets.
func (e *Engine) seedSignature(key string) model.ExceptionSet {
	fn := e.functions[key]
	sig := fn.Raises.Clone()

	for _, caught := range fn.ReraiseCaught {
		if len(caught) == 0 {
			// A re-raise under a universal except: propagates whatever
			// the guarded block raised; approximate with Exception.
			sig.Add(model.GenericException, model.ConfidenceConservative)
			continue
		}
		for _, class := range caught {
			sig.Add(class, model.ConfidenceExact)
		}
	}
	return sig
}

// computeSignature is one transfer-function application: the seed plus
// every call site's contribution minus the handlers enclosing it.
func (e *Engine) computeSignature(key string) model.ExceptionSet {
	fn := e.functions[key]
	sig := e.seedSignature(key)

	if e.resolved[key] == nil {
		// Never reached during resolution: a function in a pulled-in
		// module that nothing calls. Its seed is all we know.
		return sig
	}

	for i := range fn.Calls {
		call := &fn.Calls[i]
		contribution := e.callContribution(key, i)
		for name, conf := range contribution {
			if handledAt(fn, call, name) {
				continue
			}
			sig.Add(name, conf)
		}
	}

	// An unknown wrapper with a non-trivial signature of its own may do
	// anything around the wrapped body.
	for _, dec := range e.decorators[key] {
		decSig := e.sigs[FunctionKey(dec.Module.ImportPath, dec.Function.QualName)]
		if !decSig.IsEmpty() {
			sig.Add(model.GenericException, model.ConfidenceConservative)
			break
		}
	}
	return sig
}

// callContribution is the raw set the i-th call of fn may inject,
// before handler subtraction.
func (e *Engine) callContribution(key string, i int) model.ExceptionSet {
	rt := e.resolved[key][i]
	out := model.NewExceptionSet()
	e.addTargetContribution(out, rt.target)
	for _, hint := range rt.hints {
		e.addTargetContribution(out, hint)
	}
	return out
}

func (e *Engine) addTargetContribution(out model.ExceptionSet, t resolver.Target) {
	switch t.Kind {
	case resolver.TargetFunction:
		calleeKey := FunctionKey(t.Module.ImportPath, t.Function.QualName)
		calleeSig := e.sigs[calleeKey]
		if calleeSig.IsEmpty() && docstringMentionsRaise(t.Function.Docstring) {
			out.Add(model.GenericException, model.ConfidenceConservative)
			return
		}
		out.Merge(calleeSig)
	case resolver.TargetClass:
		init := t.ClassName + ".__init__"
		if t.Module.Function(init) != nil {
			out.Merge(e.sigs[FunctionKey(t.Module.ImportPath, init)])
		}
	case resolver.TargetStub:
		if t.Builtin && !e.builtinInteresting(t) {
			return
		}
		out.Merge(t.Stub.Exceptions)
	case resolver.TargetNative:
		if e.cfg.WarnNative {
			out.Add(model.PossibleNativeException, model.ConfidenceConservative)
		}
	}
}

// builtinInteresting applies the built-in filter rule: a call to a
// built-in contributes only when its stub set reaches outside
// {TypeError, Exception, MemoryError}. ignore_exclude re-enables a name
// (highest precedence); ignore_include forces suppression.
func (e *Engine) builtinInteresting(t resolver.Target) bool {
	name := model.ShortName(t.Name)
	for _, excluded := range e.cfg.IgnoreExclude {
		if excluded == name {
			return true
		}
	}
	for _, included := range e.cfg.IgnoreInclude {
		if included == name {
			return false
		}
	}
	for exc := range t.Stub.Exceptions {
		if _, dull := uninterestingBuiltinExceptions[model.ShortName(exc)]; !dull {
			return true
		}
	}
	return false
}

// handledAt delegates to the data model's handler-intersection rule.
func handledAt(fn *model.FunctionInfo, call *model.CallInfo, exception string) bool {
	return fn.HandledAt(call, exception)
}

// docstringMentionsRaise is the conservative fallback for resolved
// targets with no computed raises: a docstring talking about raising
// yields Exception at conservative confidence.
func docstringMentionsRaise(doc string) bool {
	if doc == "" {
		return false
	}
	lower := strings.ToLower(doc)
	return strings.Contains(lower, "raise")
}

// Signature returns the converged may-raise set for a function, nil when
// unknown.
func (e *Engine) Signature(module, qualName string) model.ExceptionSet {
	return e.sigs[FunctionKey(module, qualName)]
}

// RootFunctions returns the analysed functions of root modules in a
// stable order, for diagnostic emission.
func (e *Engine) RootFunctions() []*model.FunctionInfo {
	var keys []string
	for key, fn := range e.functions {
		if _, ok := e.roots[fn.Module]; ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	out := make([]*model.FunctionInfo, 0, len(keys))
	for _, key := range keys {
		out = append(out, e.functions[key])
	}
	return out
}

// ResolvedCalls returns the bound calls of one function with their raw
// contribution sets, for the diagnostic engine.
func (e *Engine) ResolvedCalls(fn *model.FunctionInfo) []ResolvedCall {
	key := FunctionKey(fn.Module, fn.QualName)
	targets, ok := e.resolved[key]
	if !ok {
		return nil
	}
	out := make([]ResolvedCall, 0, len(fn.Calls))
	for i := range fn.Calls {
		rc := ResolvedCall{
			Call:    &fn.Calls[i],
			Target:  targets[i].target,
			Raw:     e.callContribution(key, i),
			Builtin: targets[i].target.Builtin,
		}
		out = append(out, rc)
	}
	return out
}

// Module returns a loaded module by import path.
func (e *Engine) Module(importPath string) *model.Module {
	return e.modules[importPath]
}

// DependencyHashKey summarises the content hashes of a module's
// transitive dependency closure; the signature cache tier keys on it.
func (e *Engine) DependencyHashKey(mod *model.Module) string {
	seen := map[string]struct{}{mod.ImportPath: {}}
	queue := []string{mod.ImportPath}
	var hashes []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		m := e.modules[cur]
		if m == nil {
			continue
		}
		hashes = append(hashes, fmt.Sprintf("%s=%s", m.ImportPath, m.ContentHash))
		for dep := range m.Dependencies {
			if _, ok := seen[dep]; !ok {
				seen[dep] = struct{}{}
				queue = append(queue, dep)
			}
		}
	}
	sort.Strings(hashes)
	return fmt.Sprintf("%016x", xxhash.Sum64String(strings.Join(hashes, ";")))
}
