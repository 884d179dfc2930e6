// Package lspserver is the interactive frontend: a language server over
// stdio publishing unhandled-exception diagnostics. Scheduling is
// single-threaded and cooperative — document events enqueue work for one
// background analysis goroutine, a per-URI debounce window coalesces
// rapid edits, and a content-hash guard discards in-flight results that
// a newer edit superseded.
package lspserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/markjoshwel/raiseattention/config"
	"github.com/markjoshwel/raiseattention/diagnostic"
	"github.com/markjoshwel/raiseattention/model"
	"github.com/markjoshwel/raiseattention/output"
	"github.com/markjoshwel/raiseattention/session"
)

// DebounceWindow is how long a URI must stay quiet before analysis
// launches.
const DebounceWindow = 500 * time.Millisecond

// document is one open editor buffer.
type document struct {
	content []byte
	hash    string
	version int
}

// Server is the language server state for one editor connection.
type Server struct {
	logger *output.Logger

	mu       sync.Mutex
	conn     *jsonrpc2.Conn
	root     string
	sess     *session.Session
	docs     map[lsp.DocumentURI]*document
	timers   map[lsp.DocumentURI]*time.Timer
	inflight map[lsp.DocumentURI]context.CancelFunc

	queue    chan lsp.DocumentURI
	shutdown bool
}

// NewServer builds an unconnected server.
func NewServer(logger *output.Logger) *Server {
	return &Server{
		logger:   logger,
		docs:     make(map[lsp.DocumentURI]*document),
		timers:   make(map[lsp.DocumentURI]*time.Timer),
		inflight: make(map[lsp.DocumentURI]context.CancelFunc),
		queue:    make(chan lsp.DocumentURI, 64),
	}
}

// stdrwc adapts stdin/stdout into the jsonrpc2 stream.
type stdrwc struct{}

func (stdrwc) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdrwc) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdrwc) Close() error {
	if err := os.Stdin.Close(); err != nil {
		return err
	}
	return os.Stdout.Close()
}

// Run serves LSP over stdio until the client disconnects.
func Run(ctx context.Context, logger *output.Logger) error {
	server := NewServer(logger)

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	go server.analysisWorker(workerCtx)

	stream := jsonrpc2.NewBufferedStream(stdrwc{}, jsonrpc2.VSCodeObjectCodec{})
	conn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.HandlerWithError(server.handle))
	server.mu.Lock()
	server.conn = conn
	server.mu.Unlock()

	select {
	case <-conn.DisconnectNotify():
	case <-ctx.Done():
		_ = conn.Close()
	}
	server.closeSession()
	return nil
}

func (s *Server) closeSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess != nil {
		s.sess.Close()
		s.sess = nil
	}
}

// handle dispatches one request or notification.
func (s *Server) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "initialized":
		return nil, nil
	case "shutdown":
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		return nil, nil
	case "exit":
		_ = conn.Close()
		return nil, nil
	case "textDocument/didOpen":
		var params lsp.DidOpenTextDocumentParams
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		s.updateDocument(params.TextDocument.URI, []byte(params.TextDocument.Text), params.TextDocument.Version)
		return nil, nil
	case "textDocument/didChange":
		var params lsp.DidChangeTextDocumentParams
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		if len(params.ContentChanges) == 0 {
			return nil, nil
		}
		// Full-document sync: the last change carries the whole text.
		text := params.ContentChanges[len(params.ContentChanges)-1].Text
		s.updateDocument(params.TextDocument.URI, []byte(text), params.TextDocument.Version)
		return nil, nil
	case "textDocument/didSave":
		var params lsp.DidSaveTextDocumentParams
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		s.scheduleAnalysis(params.TextDocument.URI, 0)
		return nil, nil
	case "textDocument/didClose":
		var params lsp.DidCloseTextDocumentParams
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		s.closeDocument(params.TextDocument.URI)
		return nil, nil
	}
	return nil, nil
}

func unmarshalParams(req *jsonrpc2.Request, out interface{}) error {
	if req.Params == nil {
		return fmt.Errorf("%s: missing params", req.Method)
	}
	return json.Unmarshal(*req.Params, out)
}

func (s *Server) handleInitialize(req *jsonrpc2.Request) (interface{}, error) {
	var params lsp.InitializeParams
	if err := unmarshalParams(req, &params); err != nil {
		return nil, err
	}

	root := ""
	if params.RootURI != "" {
		if path, err := URIToPath(params.RootURI); err == nil {
			root = path
		}
	}
	if root == "" && params.RootPath != "" {
		root = params.RootPath
	}
	s.mu.Lock()
	s.root = root
	s.mu.Unlock()

	syncKind := lsp.TDSKFull
	return lsp.InitializeResult{
		Capabilities: lsp.ServerCapabilities{
			TextDocumentSync: &lsp.TextDocumentSyncOptionsOrKind{
				Options: &lsp.TextDocumentSyncOptions{
					OpenClose: true,
					Change:    syncKind,
				},
			},
		},
	}, nil
}

// updateDocument stores the new buffer and restarts the URI's debounce
// window.
func (s *Server) updateDocument(uri lsp.DocumentURI, content []byte, version int) {
	s.mu.Lock()
	s.docs[uri] = &document{
		content: content,
		hash:    model.HashContent(content),
		version: version,
	}
	// A newer edit supersedes any analysis already running for the URI.
	if cancel, ok := s.inflight[uri]; ok {
		cancel()
	}
	s.mu.Unlock()

	s.scheduleAnalysis(uri, DebounceWindow)
}

func (s *Server) scheduleAnalysis(uri lsp.DocumentURI, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[uri]; ok {
		timer.Stop()
	}
	if delay == 0 {
		select {
		case s.queue <- uri:
		default:
		}
		return
	}
	s.timers[uri] = time.AfterFunc(delay, func() {
		select {
		case s.queue <- uri:
		default:
		}
	})
}

func (s *Server) closeDocument(uri lsp.DocumentURI) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, uri)
	if timer, ok := s.timers[uri]; ok {
		timer.Stop()
		delete(s.timers, uri)
	}
	if cancel, ok := s.inflight[uri]; ok {
		cancel()
		delete(s.inflight, uri)
	}
}

// analysisWorker is the single background analysis loop.
func (s *Server) analysisWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case uri := <-s.queue:
			s.analyseURI(ctx, uri)
		}
	}
}

// analyseURI analyses the current buffer of a URI and publishes the
// result, unless the buffer changed underneath the analysis.
func (s *Server) analyseURI(ctx context.Context, uri lsp.DocumentURI) {
	s.mu.Lock()
	doc, open := s.docs[uri]
	s.mu.Unlock()
	if !open {
		return
	}
	analysedHash := doc.hash

	path, err := URIToPath(uri)
	if err != nil {
		s.logger.Debugf("lsp: %v", err)
		return
	}

	sess, err := s.sessionFor(path)
	if err != nil {
		s.publish(uri, []diagnostic.Diagnostic{diagnostic.InternalError(path, err)})
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.inflight[uri] = cancel
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		delete(s.inflight, uri)
		s.mu.Unlock()
	}()

	diags, err := sess.CheckDocument(runCtx, path, doc.content)
	if err != nil {
		if runCtx.Err() != nil {
			// Superseded or shut down; discard without publishing.
			return
		}
		diags = []diagnostic.Diagnostic{diagnostic.InternalError(path, err)}
	}

	// Never publish for a version the editor has already replaced.
	s.mu.Lock()
	current, stillOpen := s.docs[uri]
	s.mu.Unlock()
	if !stillOpen || current.hash != analysedHash {
		return
	}
	s.publish(uri, diags)
}

// sessionFor lazily creates the workspace session owning caches and
// stubs for the document's root.
func (s *Server) sessionFor(path string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess != nil {
		return s.sess, nil
	}
	root := s.root
	if root == "" {
		root = filepath.Dir(path)
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	sess, err := session.New(root, cfg, s.logger)
	if err != nil {
		return nil, err
	}
	s.sess = sess
	return sess, nil
}

// publish sends textDocument/publishDiagnostics for a URI. Diagnostics
// arrive already sorted in ascending (line, col) order.
func (s *Server) publish(uri lsp.DocumentURI, diags []diagnostic.Diagnostic) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}

	out := make([]lsp.Diagnostic, 0, len(diags))
	for _, d := range diags {
		severity := lsp.Error
		if d.Code == diagnostic.CodeDirective {
			severity = lsp.Warning
		}
		line := d.Line - 1
		if line < 0 {
			line = 0
		}
		out = append(out, lsp.Diagnostic{
			Range: lsp.Range{
				Start: lsp.Position{Line: line, Character: d.Col},
				End:   lsp.Position{Line: line, Character: d.Col + calleeWidth(d)},
			},
			Severity: severity,
			Code:     string(d.Code),
			Source:   "raiseattention",
			Message:  d.Message,
		})
	}

	err := conn.Notify(context.Background(), "textDocument/publishDiagnostics", lsp.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: out,
	})
	if err != nil && err != io.EOF {
		s.logger.Debugf("lsp: publish failed: %v", err)
	}
}

func calleeWidth(d diagnostic.Diagnostic) int {
	if d.Callee == "" {
		return 1
	}
	return len(d.Callee)
}
