// Package server implements the frospy language server.
package server

import (
	"strings"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/frospy/compiler"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "frospy-lsp"

var log = commonlog.GetLogger("frospy.server")

// LanguageServer answers editor requests from compiled documents held by a
// Worker.
type LanguageServer struct {
	worker  *Worker
	version string

	handler protocol.Handler
	rpc     *glspserver.Server
}

// NewLSP returns a language server with an empty workspace.
func NewLSP() *LanguageServer {
	s := &LanguageServer{
		worker:  NewWorker(NewWorkspace()),
		version: compiler.Version,
	}
	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: func(*glsp.Context, *protocol.InitializedParams) error { return nil },
		Shutdown:    s.shutdown,
		SetTrace:    func(*glsp.Context, *protocol.SetTraceParams) error { return nil },

		TextDocumentDidOpen:   s.didOpen,
		TextDocumentDidChange: s.didChange,
		TextDocumentDidClose:  s.didClose,

		TextDocumentCompletion: s.completion,
		TextDocumentHover:      s.hover,
		TextDocumentDefinition: s.definition,
		TextDocumentReferences: s.references,
	}
	s.rpc = glspserver.NewServer(&s.handler, lspName, false)
	return s
}

// Run serves requests on stdin/stdout until the client goes away.
func (s *LanguageServer) Run() error {
	return s.rpc.RunStdio()
}

func (s *LanguageServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Infof("initializing %s %s", lspName, s.version)

	caps := s.handler.CreateServerCapabilities()
	full := protocol.TextDocumentSyncKindFull
	open := true
	caps.TextDocumentSync = &protocol.TextDocumentSyncOptions{OpenClose: &open, Change: &full}
	caps.CompletionProvider = &protocol.CompletionOptions{TriggerCharacters: []string{"$", "^", "'"}}
	caps.HoverProvider = true
	caps.DefinitionProvider = true
	caps.ReferencesProvider = true

	return protocol.InitializeResult{
		Capabilities: caps,
		ServerInfo:   &protocol.InitializeResultServerInfo{Name: lspName, Version: &s.version},
	}, nil
}

func (s *LanguageServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LanguageServer) didOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	s.update(ctx, params.TextDocument.URI, params.TextDocument.Text)
	return nil
}

// didChange takes the last event: under full sync it holds the whole text.
func (s *LanguageServer) didChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	n := len(params.ContentChanges)
	if n == 0 {
		return nil
	}
	if change, ok := params.ContentChanges[n-1].(protocol.TextDocumentContentChangeEventWhole); ok {
		s.update(ctx, params.TextDocument.URI, change.Text)
	}
	return nil
}

func (s *LanguageServer) didClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI
	s.worker.Do(func(ws *Workspace) interface{} {
		ws.Close(string(uri))
		return nil
	})
	s.publish(ctx, uri, []protocol.Diagnostic{})
	return nil
}

// update recompiles the document and publishes its diagnostics.
func (s *LanguageServer) update(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	result, err := s.worker.Do(func(ws *Workspace) interface{} {
		return ws.Update(string(uri), text).Diagnostics()
	})
	if err != nil {
		log.Errorf("compiling %s: %s", uri, err)
		return
	}
	s.publish(ctx, uri, result.([]protocol.Diagnostic))
}

func (s *LanguageServer) publish(ctx *glsp.Context, uri protocol.DocumentUri, diags []protocol.Diagnostic) {
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diags,
	})
}

// withDocument runs fn on the document for uri. It returns nil when the
// document is not open or the worker has stopped.
func (s *LanguageServer) withDocument(uri protocol.DocumentUri, fn func(*Document) interface{}) interface{} {
	result, err := s.worker.Do(func(ws *Workspace) interface{} {
		if doc := ws.Get(string(uri)); doc != nil {
			return fn(doc)
		}
		return nil
	})
	if err != nil {
		log.Errorf("%s: %s", uri, err)
		return nil
	}
	return result
}

func (s *LanguageServer) completion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	result := s.withDocument(params.TextDocument.URI, func(doc *Document) interface{} {
		return doc.Complete(extractPrefix(doc.Text, params.Position))
	})
	if result == nil {
		return nil, nil
	}
	return result, nil
}

func (s *LanguageServer) hover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	result := s.withDocument(params.TextDocument.URI, func(doc *Document) interface{} {
		return doc.Hover(params.Position)
	})
	h, _ := result.(*protocol.Hover)
	return h, nil
}

func (s *LanguageServer) definition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	result := s.withDocument(params.TextDocument.URI, func(doc *Document) interface{} {
		if word := extractWord(doc.Text, params.Position); word != "" {
			return doc.Locations(doc.Definitions(word))
		}
		return nil
	})
	if result == nil {
		return nil, nil
	}
	return result, nil
}

func (s *LanguageServer) references(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	result := s.withDocument(params.TextDocument.URI, func(doc *Document) interface{} {
		word := extractWord(doc.Text, params.Position)
		if word == "" {
			return nil
		}
		refs := doc.References(word)
		if !params.Context.IncludeDeclaration {
			uses := refs[:0]
			for _, tok := range refs {
				if tok.Type != compiler.TokenQuotePop {
					uses = append(uses, tok)
				}
			}
			refs = uses
		}
		return doc.Locations(refs)
	})
	locs, _ := result.([]protocol.Location)
	return locs, nil
}

func isWordChar(ch byte) bool {
	return ch < unicode.MaxASCII && (ch == '_' || unicode.IsLetter(rune(ch)) || unicode.IsDigit(rune(ch)))
}

// wordAt returns the line under pos, the cursor's byte column clamped to
// it, and the bounds of the run of word characters around the cursor.
func wordAt(text string, pos protocol.Position) (line string, start, col, end int) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", 0, 0, 0
	}
	line = lines[pos.Line]
	col = byteColumn(line, int(pos.Character))

	start, end = col, col
	for start > 0 && isWordChar(line[start-1]) {
		start--
	}
	for end < len(line) && isWordChar(line[end]) {
		end++
	}
	return line, start, col, end
}

// extractPrefix returns the part of the word before the cursor.
func extractPrefix(text string, pos protocol.Position) string {
	line, start, col, _ := wordAt(text, pos)
	return line[start:col]
}

// extractWord returns the identifier under the cursor, or "" when the
// cursor is on a number or between words.
func extractWord(text string, pos protocol.Position) string {
	line, start, _, end := wordAt(text, pos)
	word := line[start:end]
	if word != "" && unicode.IsDigit(rune(word[0])) {
		return ""
	}
	return word
}
