package session

import (
	"context"
	"os"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/markjoshwel/raiseattention/diagnostic"
	"github.com/markjoshwel/raiseattention/engine"
	"github.com/markjoshwel/raiseattention/model"
	"github.com/markjoshwel/raiseattention/visitor"
)

// CheckPaths runs the batch pipeline over the argument paths: discover,
// parse on a worker pool, fixpoint single-threaded, diagnose. Parse and
// I/O failures on individual files become internal-error diagnostics; a
// path argument that cannot be discovered, or a cancelled context,
// aborts the run.
func (s *Session) CheckPaths(ctx context.Context, paths []string) ([]diagnostic.Diagnostic, error) {
	files, err := s.DiscoverFiles(paths)
	if err != nil {
		return nil, err
	}
	s.Logger.Verbosef("Analysing %d file(s)...", len(files))

	parseDone := s.Logger.Phase("parse", "files")
	results := make([]parseResult, len(files))

	// Each worker owns exactly one file's parse and extraction; stub and
	// configuration data is read-only throughout.
	g, gctx := errgroup.WithContext(ctx)
	workers := runtime.NumCPU()
	if workers > len(files) {
		workers = len(files)
	}
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	for i, path := range files {
		g.Go(func() error {
			results[i] = s.parseFile(gctx, path)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	parseDone(len(files))

	var diags []diagnostic.Diagnostic
	var mods []*model.Module

	res := s.newResolver()
	for _, r := range results {
		switch {
		case r.err != nil:
			diags = append(diags, diagnostic.InternalError(r.path, r.err))
		case r.mod != nil:
			res.AddModule(r.mod)
			mods = append(mods, r.mod)
		}
	}

	analyseDone := s.Logger.Phase("analyse", "modules")
	eng := engine.New(res, &s.Config, s.Logger)
	for _, mod := range mods {
		eng.AddRootModule(mod)
	}
	eng.SeedSignatures = s.seedFromCache(eng)
	if err := eng.Run(ctx); err != nil {
		return nil, err
	}
	analyseDone(len(mods))

	s.storeSignatures(eng, mods)

	for _, re := range res.Errors() {
		diags = append(diags, diagnostic.InternalError(re.Path, re.Err))
	}

	dEngine := diagnostic.New(&s.Config, s.Filters, diagnostic.NewFileSources())
	dEngine.FullNames = s.FullExceptionNames
	diags = append(diags, dEngine.Analyze(eng)...)

	sort.SliceStable(diags, func(i, j int) bool {
		if diags[i].Path != diags[j].Path {
			return diags[i].Path < diags[j].Path
		}
		if diags[i].Line != diags[j].Line {
			return diags[i].Line < diags[j].Line
		}
		return diags[i].Col < diags[j].Col
	})

	s.Logger.Verbosef("Analysed %d module(s), %d finding(s)", len(mods), len(diags))
	return diags, nil
}

// parseFile reads and parses one file, consulting the file-level cache
// first. A syntax error yields a nil module and the error for the
// internal-error diagnostic.
func (s *Session) parseFile(ctx context.Context, path string) parseResult {
	importPath := s.ImportPathFor(path)

	if hash, ok := s.Cache.FreshHash(path); ok {
		if mod, ok := s.Cache.GetModule(path, hash); ok {
			return parseResult{mod: mod, path: path}
		}
	}

	source, err := os.ReadFile(path)
	if err != nil {
		return parseResult{path: path, err: err}
	}
	if mod, ok := s.Cache.GetModule(path, model.HashContent(source)); ok {
		return parseResult{mod: mod, path: path}
	}

	mod, err := visitor.ParseModule(ctx, importPath, path, source)
	if err != nil {
		return parseResult{path: path, err: err}
	}
	s.Cache.PutModule(mod)
	return parseResult{mod: mod, path: path}
}

// CheckDocument analyses a single in-memory document (the LSP overlay
// path). The document joins the project as a root module; other project
// files resolve from disk as usual.
func (s *Session) CheckDocument(ctx context.Context, path string, content []byte) ([]diagnostic.Diagnostic, error) {
	importPath := s.ImportPathFor(path)

	mod, err := visitor.ParseModule(ctx, importPath, path, content)
	if err != nil {
		if _, isSyntax := err.(*visitor.ErrSyntax); isSyntax {
			return []diagnostic.Diagnostic{diagnostic.InternalError(path, err)}, nil
		}
		return nil, err
	}

	res := s.newResolver()
	res.AddModule(mod)

	eng := engine.New(res, &s.Config, s.Logger)
	eng.AddRootModule(mod)
	eng.SeedSignatures = s.seedFromCache(eng)
	if err := eng.Run(ctx); err != nil {
		return nil, err
	}

	var diags []diagnostic.Diagnostic
	for _, re := range res.Errors() {
		diags = append(diags, diagnostic.InternalError(re.Path, re.Err))
	}
	sources := overlaySources{path: path, content: content}
	dEngine := diagnostic.New(&s.Config, s.Filters, sources)
	diags = append(diags, dEngine.Analyze(eng)...)
	return diags, nil
}

// overlaySources serves the open document from memory and everything
// else from disk.
type overlaySources struct {
	path    string
	content []byte
}

func (o overlaySources) Lines(path string) []string {
	if path == o.path {
		return splitLines(string(o.content))
	}
	return diagnostic.NewFileSources().Lines(path)
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
