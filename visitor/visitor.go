// Package visitor walks parsed target-language modules and emits the
// per-function records the signature engine consumes: direct raises,
// call sites with callable-argument hints, try/except scopes, decorators,
// docstrings and import tables — all in a single traversal.
package visitor

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/markjoshwel/raiseattention/model"
)

// ErrSyntax is returned when the parse tree contains error nodes; the
// caller skips the file and reports a single internal-error diagnostic.
type ErrSyntax struct {
	Path string
}

func (e *ErrSyntax) Error() string {
	return fmt.Sprintf("syntax error in %s", e.Path)
}

// callableKeywords is the fixed set of keyword names under which a passed
// name or lambda is recorded as a callable-argument hint.
var callableKeywords = map[string]struct{}{
	"key":             {},
	"func":            {},
	"function":        {},
	"default_factory": {},
	"target":          {},
	"callback":        {},
	"initializer":     {},
}

// ParseModule parses source and returns the module record with function
// infos, import table, re-exports and class index populated.
//
// importPath is the dotted module path the file is known under; filePath
// is its absolute location. The content hash is computed here so the
// cache layer and the signature engine key off the same value.
func ParseModule(ctx context.Context, importPath, filePath string, source []byte) (*model.Module, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	defer parser.Close()

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, &ErrSyntax{Path: filePath}
	}

	mod := &model.Module{
		ImportPath:   importPath,
		FilePath:     filePath,
		Kind:         model.ModuleProject,
		ContentHash:  model.HashContent(source),
		Imports:      make(map[string]string),
		ReExports:    make(map[string]string),
		Dependencies: make(map[string]struct{}),
		Classes:      make(map[string][]string),
	}

	v := &moduleVisitor{source: source, module: mod}
	topLevel := &model.FunctionInfo{
		QualName:  model.ModuleLevelName,
		Module:    importPath,
		FilePath:  filePath,
		StartLine: 1,
		EndLine:   int(root.EndPoint().Row) + 1,
		Raises:    model.NewExceptionSet(),
	}
	topLevel.Docstring = docstringOf(root, source)
	v.walkBody(root, topLevel, nil, nil)
	mod.Functions = append([]*model.FunctionInfo{topLevel}, v.funcs...)
	return mod, nil
}

// handlerCtx tracks an enclosing except handler during body traversal,
// for re-raise detection. Scopes are addressed by index because
// fn.TryScopes may reallocate while nested tries are appended.
type handlerCtx struct {
	scopeID int
	handler int
}

type moduleVisitor struct {
	source []byte
	module *model.Module
	funcs  []*model.FunctionInfo
}

func (v *moduleVisitor) text(n *sitter.Node) string {
	return n.Content(v.source)
}

// walkBody traverses a statement suite on behalf of fn. tries carries the
// ids of try scopes guarding the current position; handlers carries the
// except clauses the position is lexically inside, innermost last.
func (v *moduleVisitor) walkBody(node *sitter.Node, fn *model.FunctionInfo, tries []int, handlers []handlerCtx) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "import_statement":
		v.processImport(node)
		return
	case "import_from_statement":
		v.processImportFrom(node)
		return
	case "function_definition":
		v.processFunction(node, nil, fn, "")
		return
	case "class_definition":
		v.processClass(node, nil, "")
		return
	case "decorated_definition":
		v.processDecorated(node, fn, "")
		return
	case "try_statement":
		v.processTry(node, fn, tries, handlers)
		return
	case "raise_statement":
		v.processRaise(node, fn, handlers)
		// Fall through to the children so calls nested in the raised
		// expression's arguments are still observed.
	case "call":
		v.processCall(node, fn, tries)
		// Keep walking: arguments may contain further calls.
	case "lambda":
		// Lambda bodies are opaque; do not descend.
		return
	case "assignment":
		if fn.QualName == model.ModuleLevelName {
			v.processModuleAssignment(node)
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		v.walkBody(node.Child(i), fn, tries, handlers)
	}
}

// processDecorated unwraps a decorated_definition, collecting decorator
// expressions verbatim and forwarding to the function or class handler
// with the decorator start line.
func (v *moduleVisitor) processDecorated(node *sitter.Node, fn *model.FunctionInfo, classPath string) {
	var decorators []string
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "decorator" {
			continue
		}
		for j := 0; j < int(child.ChildCount()); j++ {
			expr := child.Child(j)
			if expr.Type() == "@" {
				continue
			}
			decorators = append(decorators, v.text(expr))
		}
	}
	def := node.ChildByFieldName("definition")
	if def == nil {
		return
	}
	meta := &decoratedMeta{decorators: decorators, startLine: int(node.StartPoint().Row) + 1}
	switch def.Type() {
	case "function_definition":
		v.processFunction(def, meta, fn, classPath)
	case "class_definition":
		v.processClass(def, meta, classPath)
	}
}

type decoratedMeta struct {
	decorators []string
	startLine  int
}

// processFunction builds a FunctionInfo for a function_definition and
// walks its body with a fresh try/handler context.
//
// Qualified names follow the data-model rule: methods are
// "ClassName.method" (classPath carries nesting as "Outer.Inner"),
// functions nested inside another function are "outer.inner".
func (v *moduleVisitor) processFunction(node *sitter.Node, meta *decoratedMeta, parent *model.FunctionInfo, classPath string) {
	nameNode := node.ChildByFieldName("name")
	body := node.ChildByFieldName("body")
	if nameNode == nil || body == nil {
		return
	}
	name := v.text(nameNode)

	qual := name
	className := classPath
	switch {
	case parent != nil && parent.QualName != model.ModuleLevelName:
		qual = parent.QualName + "." + name
		className = ""
	case classPath != "":
		qual = classPath + "." + name
	}

	fn := &model.FunctionInfo{
		QualName:  qual,
		Module:    v.module.ImportPath,
		FilePath:  v.module.FilePath,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		ClassName: className,
		Raises:    model.NewExceptionSet(),
		IsMethod:  className != "",
		IsAsync:   isAsyncDef(node),
	}
	if meta != nil {
		fn.Decorators = meta.decorators
		fn.StartLine = meta.startLine
	}
	fn.Docstring = docstringOf(body, v.source)

	v.funcs = append(v.funcs, fn)
	if className != "" {
		v.module.Classes[className] = append(v.module.Classes[className], qual)
	}

	for i := 0; i < int(body.ChildCount()); i++ {
		v.walkBody(body.Child(i), fn, nil, nil)
	}
}

// processClass registers the class and walks its body so methods and
// nested classes are discovered. Statements directly in the class body
// outside any method are not walked, so calls made there appear in no
// function record, the module-level one included.
func (v *moduleVisitor) processClass(node *sitter.Node, meta *decoratedMeta, classPath string) {
	nameNode := node.ChildByFieldName("name")
	body := node.ChildByFieldName("body")
	if nameNode == nil || body == nil {
		return
	}
	name := v.text(nameNode)
	path := name
	if classPath != "" {
		path = classPath + "." + name
	}
	if _, ok := v.module.Classes[path]; !ok {
		v.module.Classes[path] = nil
	}

	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(i)
		switch child.Type() {
		case "function_definition":
			v.processFunction(child, nil, nil, path)
		case "decorated_definition":
			v.processDecorated(child, nil, path)
		case "class_definition":
			v.processClass(child, nil, path)
		}
	}
}

// processTry records the try scope and walks the guarded body with the
// scope active, then each handler body with the handler context pushed.
func (v *moduleVisitor) processTry(node *sitter.Node, fn *model.FunctionInfo, tries []int, handlers []handlerCtx) {
	body := node.ChildByFieldName("body")
	if body == nil {
		return
	}

	scope := model.TryScope{
		ID:        len(fn.TryScopes),
		StartLine: int(body.StartPoint().Row) + 1,
		EndLine:   int(body.EndPoint().Row) + 1,
	}

	type pendingHandler struct {
		node *sitter.Node
		idx  int
	}
	var pending []pendingHandler
	var elseFinally []*sitter.Node

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "except_clause", "except_group_clause":
			h := v.parseHandler(child)
			scope.Handlers = append(scope.Handlers, h)
			pending = append(pending, pendingHandler{node: child, idx: len(scope.Handlers) - 1})
		case "else_clause", "finally_clause":
			elseFinally = append(elseFinally, child)
		}
	}

	fn.TryScopes = append(fn.TryScopes, scope)

	guarded := append(append([]int(nil), tries...), scope.ID)
	for i := 0; i < int(body.ChildCount()); i++ {
		v.walkBody(body.Child(i), fn, guarded, handlers)
	}

	// Handler bodies are not guarded by this scope but are inside the
	// handler for re-raise purposes.
	for _, p := range pending {
		hctx := append(append([]handlerCtx(nil), handlers...), handlerCtx{scopeID: scope.ID, handler: p.idx})
		for i := 0; i < int(p.node.ChildCount()); i++ {
			child := p.node.Child(i)
			if child.Type() == "block" {
				for j := 0; j < int(child.ChildCount()); j++ {
					v.walkBody(child.Child(j), fn, tries, hctx)
				}
			}
		}
	}

	// else/finally suites run outside the guarded region.
	for _, ef := range elseFinally {
		for i := 0; i < int(ef.ChildCount()); i++ {
			child := ef.Child(i)
			if child.Type() == "block" {
				for j := 0; j < int(child.ChildCount()); j++ {
					v.walkBody(child.Child(j), fn, tries, handlers)
				}
			}
		}
	}
}

// parseHandler extracts the caught class set and the as-name binding from
// an except clause. An except: with no class yields the universal handler.
func (v *moduleVisitor) parseHandler(node *sitter.Node) model.TryHandler {
	var h model.TryHandler
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "block", "comment":
			continue
		case "as_pattern":
			// except E as e: value is child 0, alias under the field.
			if val := child.NamedChild(0); val != nil {
				h.Caught = append(h.Caught, v.classNames(val)...)
			}
			if alias := child.ChildByFieldName("alias"); alias != nil {
				h.AsName = strings.TrimSpace(v.text(alias))
			}
		default:
			// Plain exception expression, possibly followed by a bare
			// identifier alias in older grammar revisions.
			if child.Type() == "identifier" && len(h.Caught) > 0 && h.AsName == "" {
				h.AsName = v.text(child)
				continue
			}
			h.Caught = append(h.Caught, v.classNames(child)...)
		}
	}
	return h
}

// classNames flattens an exception expression into class names: a name or
// dotted attribute yields itself; a tuple yields each element.
func (v *moduleVisitor) classNames(node *sitter.Node) []string {
	switch node.Type() {
	case "identifier", "attribute", "dotted_name":
		return []string{v.text(node)}
	case "tuple", "parenthesized_expression":
		var out []string
		for i := 0; i < int(node.NamedChildCount()); i++ {
			out = append(out, v.classNames(node.NamedChild(i))...)
		}
		return out
	}
	return nil
}

// processRaise applies the raise rules:
//   - raise X / raise X(...) with X a name or dotted attribute adds X at
//     exact confidence;
//   - bare raise inside a handler marks the handler as re-raising;
//   - raise v where v is a bound handler variable is a re-raise of the
//     caught exception, not a new one.
func (v *moduleVisitor) processRaise(node *sitter.Node, fn *model.FunctionInfo, handlers []handlerCtx) {
	var expr *sitter.Node
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}
		expr = child
		break
	}
	// "raise X from cause" parses the pair; only the first expression is
	// the raised value.

	if expr == nil {
		fn.HasBareRaise = true
		v.markReraise(fn, handlers)
		return
	}

	switch expr.Type() {
	case "identifier":
		name := v.text(expr)
		if h, ok := boundHandler(fn, name, handlers); ok {
			fn.TryScopes[h.scopeID].Handlers[h.handler].Reraises = true
			v.recordReraise(fn, h)
			return
		}
		fn.Raises.Add(name, model.ConfidenceExact)
	case "attribute", "dotted_name":
		fn.Raises.Add(v.text(expr), model.ConfidenceExact)
	case "call":
		if fnNode := expr.ChildByFieldName("function"); fnNode != nil {
			switch fnNode.Type() {
			case "identifier", "attribute", "dotted_name":
				fn.Raises.Add(v.text(fnNode), model.ConfidenceExact)
			}
		}
		// The constructor arguments may themselves contain calls; the
		// generic traversal picks those up after this returns.
	}
}

// markReraise handles a bare raise: the innermost handler's caught set
// becomes part of the function's may-raise effect.
func (v *moduleVisitor) markReraise(fn *model.FunctionInfo, handlers []handlerCtx) {
	if len(handlers) == 0 {
		return
	}
	h := handlers[len(handlers)-1]
	fn.TryScopes[h.scopeID].Handlers[h.handler].Reraises = true
	v.recordReraise(fn, h)
}

func (v *moduleVisitor) recordReraise(fn *model.FunctionInfo, h handlerCtx) {
	caught := fn.TryScopes[h.scopeID].Handlers[h.handler].Caught
	fn.ReraiseCaught = append(fn.ReraiseCaught, append([]string(nil), caught...))
}

// boundHandler returns the innermost enclosing handler binding name.
func boundHandler(fn *model.FunctionInfo, name string, handlers []handlerCtx) (handlerCtx, bool) {
	for i := len(handlers) - 1; i >= 0; i-- {
		h := handlers[i]
		if fn.TryScopes[h.scopeID].Handlers[h.handler].AsName == name {
			return h, true
		}
	}
	return handlerCtx{}, false
}

// processCall records one CallInfo for a call expression. Awaited calls
// arrive here identically: the await wrapper is transparent to the walk.
func (v *moduleVisitor) processCall(node *sitter.Node, fn *model.FunctionInfo, tries []int) {
	call := model.CallInfo{
		Line:           int(node.StartPoint().Row) + 1,
		Col:            int(node.StartPoint().Column),
		StmtEndLine:    int(node.EndPoint().Row) + 1,
		EnclosingTries: append([]int(nil), tries...),
	}

	if fnNode := node.ChildByFieldName("function"); fnNode != nil {
		switch fnNode.Type() {
		case "identifier", "attribute", "dotted_name":
			call.Callee = v.text(fnNode)
		}
	}

	if args := node.ChildByFieldName("arguments"); args != nil {
		pos := 0
		for i := 0; i < int(args.NamedChildCount()); i++ {
			arg := args.NamedChild(i)
			switch arg.Type() {
			case "comment":
				continue
			case "keyword_argument":
				kw := arg.ChildByFieldName("name")
				val := arg.ChildByFieldName("value")
				if kw == nil || val == nil {
					continue
				}
				if _, ok := callableKeywords[v.text(kw)]; !ok {
					continue
				}
				if hint, ok := callableHint(val, v.source); ok {
					call.CallableArgs = append(call.CallableArgs, model.CallableArg{
						Name: hint, Keyword: v.text(kw), Position: -1,
					})
				}
			default:
				if hint, ok := callableHint(arg, v.source); ok {
					call.CallableArgs = append(call.CallableArgs, model.CallableArg{
						Name: hint, Position: pos,
					})
				}
				pos++
			}
		}
	}

	fn.Calls = append(fn.Calls, call)
}

// callableHint classifies an argument expression as a callable hint: a
// name or dotted attribute yields its text, a lambda yields the sentinel.
// Call results, subscripts and literals yield nothing.
func callableHint(node *sitter.Node, source []byte) (string, bool) {
	switch node.Type() {
	case "identifier", "attribute", "dotted_name":
		return node.Content(source), true
	case "lambda":
		return model.LambdaSentinel, true
	}
	return "", false
}

// processModuleAssignment records one-level re-exports: a top-level
// binding of the form "name = other_module.name".
func (v *moduleVisitor) processModuleAssignment(node *sitter.Node) {
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")
	if left == nil || right == nil {
		return
	}
	if left.Type() != "identifier" {
		return
	}
	switch right.Type() {
	case "attribute", "dotted_name":
		v.module.ReExports[v.text(left)] = v.text(right)
	case "identifier":
		// Re-binding an imported name: follow through the import table.
		if target, ok := v.module.Imports[v.text(right)]; ok {
			v.module.ReExports[v.text(left)] = target
		}
	}
}

// docstringOf returns the docstring of a suite: the string literal of the
// first expression statement, with quotes stripped.
func docstringOf(body *sitter.Node, source []byte) string {
	for i := 0; i < int(body.ChildCount()); i++ {
		child := body.Child(i)
		switch child.Type() {
		case "comment":
			continue
		case "expression_statement":
			if child.NamedChildCount() > 0 {
				first := child.NamedChild(0)
				if first.Type() == "string" {
					return stripQuotes(first.Content(source))
				}
			}
			return ""
		default:
			if child.IsNamed() {
				return ""
			}
		}
	}
	return ""
}

func stripQuotes(s string) string {
	for _, prefix := range []string{"r", "R", "b", "B", "u", "U", "f", "F"} {
		s = strings.TrimPrefix(s, prefix)
	}
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}

// isAsyncDef reports whether a function_definition carries the async
// keyword.
func isAsyncDef(node *sitter.Node) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "async" {
			return true
		}
		if child.Type() == "def" {
			break
		}
	}
	return false
}

// processImport handles "import module [as alias]" statements.
func (v *moduleVisitor) processImport(node *sitter.Node) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "aliased_import":
			moduleNode := child.ChildByFieldName("name")
			aliasNode := child.ChildByFieldName("alias")
			if moduleNode != nil && aliasNode != nil {
				v.module.Imports[v.text(aliasNode)] = v.text(moduleNode)
			}
		case "dotted_name":
			name := v.text(child)
			// "import a.b" binds the top-level name "a".
			top := name
			if idx := strings.IndexByte(name, '.'); idx >= 0 {
				top = name[:idx]
			}
			v.module.Imports[top] = top
			if top != name {
				v.module.Imports[name] = name
			}
		}
	}
}

// processImportFrom handles "from module import name [as alias]" with
// relative imports resolved against the current module path.
func (v *moduleVisitor) processImportFrom(node *sitter.Node) {
	moduleNameNode := node.ChildByFieldName("module_name")
	if moduleNameNode == nil {
		return
	}
	base := v.resolveRelative(v.text(moduleNameNode))
	if base == "" {
		return
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == moduleNameNode {
			continue
		}
		switch child.Type() {
		case "aliased_import":
			nameNode := child.ChildByFieldName("name")
			aliasNode := child.ChildByFieldName("alias")
			if nameNode != nil && aliasNode != nil {
				v.module.Imports[v.text(aliasNode)] = base + "." + v.text(nameNode)
			}
		case "dotted_name", "identifier":
			name := v.text(child)
			v.module.Imports[name] = base + "." + name
		case "wildcard_import":
			// Names through a star import resolve opaquely.
		}
	}
}

// resolveRelative turns a possibly-relative module expression into an
// absolute dotted path using the visitor's own module path.
func (v *moduleVisitor) resolveRelative(spec string) string {
	if !strings.HasPrefix(spec, ".") {
		return spec
	}
	dots := 0
	for dots < len(spec) && spec[dots] == '.' {
		dots++
	}
	rest := spec[dots:]
	parts := strings.Split(v.module.ImportPath, ".")
	if dots > len(parts) {
		return ""
	}
	parent := parts[:len(parts)-dots]
	if rest == "" {
		return strings.Join(parent, ".")
	}
	return strings.Join(append(parent, rest), ".")
}
