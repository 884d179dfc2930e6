// Package session ties the analysis pipeline together: one
// AnalysisSession owns the configuration, stub index, cache store,
// detected environment and resolver for a workspace root. Nothing in the
// pipeline is a process-wide singleton; the LSP server holds one session
// per workspace root and the CLI builds one per invocation.
package session

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/markjoshwel/raiseattention/cache"
	"github.com/markjoshwel/raiseattention/config"
	"github.com/markjoshwel/raiseattention/diagnostic"
	"github.com/markjoshwel/raiseattention/engine"
	"github.com/markjoshwel/raiseattention/model"
	"github.com/markjoshwel/raiseattention/output"
	"github.com/markjoshwel/raiseattention/resolver"
	"github.com/markjoshwel/raiseattention/stub"
)

// Session is the per-workspace analysis state.
type Session struct {
	ID          string
	ProjectRoot string
	Config      config.Config
	Logger      *output.Logger
	Stubs       *stub.Store
	Cache       *cache.Store
	Env         resolver.Environment
	Filters     *diagnostic.Filters

	// FullExceptionNames switches diagnostics to fully qualified class
	// names (the --full-module-path flag).
	FullExceptionNames bool
}

// New detects the environment, loads stubs and opens the cache for a
// project root. The environment detection result is cached for the
// session's lifetime.
func New(projectRoot string, cfg config.Config, logger *output.Logger) (*Session, error) {
	absRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}

	env := resolver.DetectEnvironment(absRoot)
	logger.Debugf("detected target-language version %s", env.Version)

	stubs, err := stub.Load(cfg.StubDir, env.Version, logger)
	if err != nil {
		return nil, fmt.Errorf("loading stub database: %w", err)
	}

	store, err := cache.Open(cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	filters, err := diagnostic.CompileFilters(cfg.SuppressWhen)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Session{
		ID:          uuid.New().String(),
		ProjectRoot: absRoot,
		Config:      cfg,
		Logger:      logger,
		Stubs:       stubs,
		Cache:       store,
		Env:         env,
		Filters:     filters,
	}, nil
}

// Close releases the session's cache store.
func (s *Session) Close() {
	s.Cache.Close()
}

// newResolver builds a resolver bound to this session's locator, stubs
// and cache.
func (s *Session) newResolver() *resolver.Resolver {
	locator := &resolver.Locator{
		ProjectRoots: []string{s.ProjectRoot},
		Env:          s.Env,
	}
	res := resolver.New(locator, s.Stubs, s.Cache, s.Logger)
	res.IgnoreModule = s.Config.IgnoresModule
	return res
}

// ImportPathFor derives the dotted module path of a project file from
// its location under the root: "pkg/mod.py" → "pkg.mod",
// "pkg/__init__.py" → "pkg".
func (s *Session) ImportPathFor(path string) string {
	rel, err := filepath.Rel(s.ProjectRoot, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = filepath.ToSlash(rel)
	rel = strings.TrimSuffix(rel, ".py")
	rel = strings.TrimSuffix(rel, "/__init__")
	rel = strings.TrimPrefix(rel, "./")
	return strings.ReplaceAll(rel, "/", ".")
}

// DiscoverFiles expands the argument paths into the target-language
// files to analyse, honouring the exclude globs.
func (s *Session) DiscoverFiles(paths []string) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})

	add := func(path string) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return
		}
		if s.Config.ExcludesPath(abs) {
			return
		}
		if _, dup := seen[abs]; !dup {
			seen[abs] = struct{}{}
			out = append(out, abs)
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("cannot stat %s: %w", path, err)
		}
		if !info.IsDir() {
			add(path)
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				name := d.Name()
				if name == "__pycache__" || name == ".git" || name == ".venv" || name == "venv" {
					return filepath.SkipDir
				}
				if s.Config.ExcludesPath(p) {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasSuffix(p, ".py") {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", path, err)
		}
	}
	return out, nil
}

// parseResult carries one worker's output.
type parseResult struct {
	mod  *model.Module
	path string
	err  error
}

// storeSignatures persists converged signatures for the root modules.
func (s *Session) storeSignatures(eng *engine.Engine, mods []*model.Module) {
	if !s.Cache.Persistent() {
		return
	}
	for _, mod := range mods {
		depHash := eng.DependencyHashKey(mod)
		for _, fn := range mod.Functions {
			sig := eng.Signature(mod.ImportPath, fn.QualName)
			if sig != nil {
				s.Cache.PutSignature(
					mod.ImportPath+"."+fn.QualName, mod.ContentHash, depHash, sig)
			}
		}
	}
}

// seedFromCache builds the engine's warm-start hook over the signature
// tier.
func (s *Session) seedFromCache(eng *engine.Engine) func(fn *model.FunctionInfo) (model.ExceptionSet, bool) {
	if !s.Cache.Persistent() {
		return nil
	}
	return func(fn *model.FunctionInfo) (model.ExceptionSet, bool) {
		mod := eng.Module(fn.Module)
		if mod == nil || mod.ContentHash == "" {
			return nil, false
		}
		return s.Cache.GetSignature(
			fn.Module+"."+fn.QualName, mod.ContentHash, eng.DependencyHashKey(mod))
	}
}
