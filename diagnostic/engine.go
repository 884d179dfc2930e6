package diagnostic

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/markjoshwel/raiseattention/config"
	"github.com/markjoshwel/raiseattention/engine"
	"github.com/markjoshwel/raiseattention/model"
)

// Sources provides the physical lines of analysed files for inline
// directive scanning. The LSP server backs this with its open-document
// overlay; the CLI reads from disk.
type Sources interface {
	Lines(path string) []string
}

// FileSources reads files from disk, caching per path.
type FileSources struct {
	mu    sync.Mutex
	cache map[string][]string
}

// NewFileSources returns a disk-backed Sources.
func NewFileSources() *FileSources {
	return &FileSources{cache: make(map[string][]string)}
}

// Lines returns the file's lines, nil when unreadable.
func (s *FileSources) Lines(path string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lines, ok := s.cache[path]; ok {
		return lines
	}
	data, err := os.ReadFile(path)
	if err != nil {
		s.cache[path] = nil
		return nil
	}
	lines := strings.Split(string(data), "\n")
	s.cache[path] = lines
	return lines
}

// Engine filters converged signatures down to reportable findings.
type Engine struct {
	cfg     *config.Config
	filters *Filters
	sources Sources

	// FullNames emits qualified exception names instead of short ones.
	FullNames bool
}

// New builds a diagnostic engine. filters may be nil.
func New(cfg *config.Config, filters *Filters, sources Sources) *Engine {
	return &Engine{cfg: cfg, filters: filters, sources: sources}
}

// Analyze walks every call site of the analysed root functions and
// returns the surviving diagnostics in ascending (path, line, col)
// order.
func (d *Engine) Analyze(eng *engine.Engine) []Diagnostic {
	var out []Diagnostic
	warnedDirectives := make(map[string]struct{})

	for _, fn := range eng.RootFunctions() {
		if d.cfg.IgnoresModule(fn.Module) {
			continue
		}
		out = append(out, d.analyzeFunction(eng, fn, warnedDirectives)...)
		if d.cfg.StrictMode {
			if diag, ok := d.strictFinding(eng, fn); ok {
				out = append(out, diag)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].Col < out[j].Col
	})
	return out
}

// analyzeFunction emits at most one unhandled-exception diagnostic per
// call site, plus directive warnings for malformed inline ignores.
func (d *Engine) analyzeFunction(eng *engine.Engine, fn *model.FunctionInfo, warned map[string]struct{}) []Diagnostic {
	var out []Diagnostic
	lines := d.sources.Lines(fn.FilePath)

	for _, rc := range eng.ResolvedCalls(fn) {
		if rc.Raw.IsEmpty() {
			continue
		}

		unhandled := model.NewExceptionSet()
		for name, conf := range rc.Raw {
			if fn.HandledAt(rc.Call, name) {
				continue
			}
			if d.cfg.IgnoresException(name) {
				continue
			}
			if docstringSuppresses(fn.Docstring, model.ShortName(name)) {
				continue
			}
			if d.filters.Suppresses(model.ShortName(name), fn.FilePath, fn.QualName, rc.Call.Callee) {
				continue
			}
			unhandled.Add(name, conf)
		}

		if dir := findIgnoreDirective(lines, rc.Call.Line, rc.Call.StmtEndLine); dir != nil {
			if !dir.Valid {
				key := fmt.Sprintf("%s:%d", fn.FilePath, dir.Line)
				if _, dup := warned[key]; !dup {
					warned[key] = struct{}{}
					out = append(out, Diagnostic{
						Path:     fn.FilePath,
						Line:     dir.Line,
						Col:      dir.Col,
						Code:     CodeDirective,
						Function: fn.QualName,
						Message:  "ignore directive needs a bracketed exception list, e.g. ignore[ValueError]",
					})
				}
			} else {
				for _, name := range dir.Exceptions {
					unhandled.Remove(name)
				}
			}
		}

		if unhandled.IsEmpty() {
			continue
		}

		names := unhandled.ShortNames()
		if d.FullNames {
			names = unhandled.Names()
		}
		callee := rc.Call.Callee
		if callee == "" {
			callee = "<expression>"
		}
		out = append(out, Diagnostic{
			Path:       fn.FilePath,
			Line:       rc.Call.Line,
			Col:        rc.Call.Col,
			Code:       CodeUnhandled,
			Callee:     callee,
			Function:   fn.QualName,
			Exceptions: names,
			Message: fmt.Sprintf("call to '%s' may raise unhandled exception(s): %s",
				callee, strings.Join(names, ", ")),
		})
	}
	return out
}

// strictFinding reports a function whose may-raise set contains classes
// its docstring never documents.
func (d *Engine) strictFinding(eng *engine.Engine, fn *model.FunctionInfo) (Diagnostic, bool) {
	if fn.QualName == model.ModuleLevelName {
		return Diagnostic{}, false
	}
	sig := eng.Signature(fn.Module, fn.QualName)
	var undocumented []string
	for name := range sig {
		short := model.ShortName(name)
		if short == model.PossibleNativeException {
			continue
		}
		if !containsToken(fn.Docstring, short) {
			undocumented = append(undocumented, short)
		}
	}
	if len(undocumented) == 0 {
		return Diagnostic{}, false
	}
	sort.Strings(undocumented)
	return Diagnostic{
		Path:       fn.FilePath,
		Line:       fn.StartLine,
		Col:        0,
		Code:       CodeDirective,
		Function:   fn.QualName,
		Exceptions: undocumented,
		Message: fmt.Sprintf("function '%s' may raise undocumented exception(s): %s",
			fn.QualName, strings.Join(undocumented, ", ")),
	}, true
}

// InternalError builds the single diagnostic used for analysis failures
// against a file.
func InternalError(path string, err error) Diagnostic {
	return Diagnostic{
		Path:    path,
		Line:    1,
		Col:     0,
		Code:    CodeInternal,
		Message: fmt.Sprintf("analysis failed: %v", err),
	}
}
