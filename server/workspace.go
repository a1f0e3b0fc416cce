package server

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf16"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/chazu/frospy/compiler"
	"github.com/chazu/frospy/vm"
)

// keywordDocs describes the surface keywords handled by lowering.
var keywordDocs = map[string]string{
	compiler.KeywordQuote: "quote x -> 'x (pushes the atom instead of looking it up)",
	compiler.KeywordPush:  "'name push -> value (same as ^name)",
	compiler.KeywordPop:   "value 'name pop -> (binds name; same as $name)",
	compiler.KeywordForce: "thunk force -> (runs the thunk with the current stack)",
}

// Document is an open text document and the result of compiling it.
type Document struct {
	URI    string
	Text   string
	Tokens []compiler.Token
	Result *compiler.Result // nil when the document does not compile
	Err    error
}

// Workspace holds the open documents. It is owned by a Worker.
type Workspace struct {
	docs map[string]*Document
}

// NewWorkspace returns an empty workspace.
func NewWorkspace() *Workspace {
	return &Workspace{docs: make(map[string]*Document)}
}

// Update compiles text and stores it as the current version of uri.
func (ws *Workspace) Update(uri, text string) *Document {
	doc := &Document{URI: uri, Text: text, Tokens: compiler.Tokenize(text)}
	doc.Result, doc.Err = compiler.Compile(text, compiler.Options{})
	ws.docs[uri] = doc
	log.Debugf("analyzed %s (error: %v)", uri, doc.Err)
	return doc
}

// Get returns the document for uri, or nil.
func (ws *Workspace) Get(uri string) *Document {
	return ws.docs[uri]
}

// Close forgets uri.
func (ws *Workspace) Close(uri string) {
	delete(ws.docs, uri)
}

// Len returns the number of open documents.
func (ws *Workspace) Len() int {
	return len(ws.docs)
}

// --- Per-document queries ---

// Diagnostics converts the compile error of the document to LSP diagnostics.
func (d *Document) Diagnostics() []protocol.Diagnostic {
	diagnostics := []protocol.Diagnostic{}
	if d.Err == nil {
		return diagnostics
	}

	severity := protocol.DiagnosticSeverityError
	source := lspName
	add := func(r protocol.Range, msg string) {
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    r,
			Severity: &severity,
			Source:   &source,
			Message:  msg,
		})
	}

	var list compiler.ErrorList
	var single *compiler.SyntaxError
	switch {
	case errors.As(d.Err, &list):
		for _, e := range list {
			add(spanRange(d.Text, e.Span), e.Msg)
		}
	case errors.As(d.Err, &single):
		add(spanRange(d.Text, single.Span), single.Msg)
	default:
		add(protocol.Range{}, d.Err.Error())
	}
	return diagnostics
}

// Bindings returns the names bound with $name in the document, sorted and
// without duplicates.
func (d *Document) Bindings() []string {
	seen := map[string]bool{}
	var names []string
	for _, tok := range d.Tokens {
		if tok.Type == compiler.TokenQuotePop && !seen[tok.Literal] {
			seen[tok.Literal] = true
			names = append(names, tok.Literal)
		}
	}
	sort.Strings(names)
	return names
}

// Complete returns completion items whose label starts with prefix.
func (d *Document) Complete(prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	add := func(label, detail string, kind protocol.CompletionItemKind) {
		if !strings.HasPrefix(label, prefix) {
			return
		}
		labelCopy, detailCopy := label, detail
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detailCopy,
			InsertText: &labelCopy,
		})
	}

	for _, name := range vm.NativeNames() {
		add(name, vm.NativeDocs[name], protocol.CompletionItemKindFunction)
	}
	for _, name := range []string{compiler.KeywordForce, compiler.KeywordPop, compiler.KeywordPush, compiler.KeywordQuote} {
		if _, native := vm.NativeDocs[name]; native {
			continue
		}
		add(name, keywordDocs[name], protocol.CompletionItemKindKeyword)
	}
	for _, name := range d.Bindings() {
		if _, native := vm.NativeDocs[name]; native {
			continue // already added as builtin
		}
		add(name, "binding", protocol.CompletionItemKindVariable)
	}

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

// Hover describes the word under pos: a builtin or keyword, a binding, or
// failing that the block compiled from the innermost enclosing group.
func (d *Document) Hover(pos protocol.Position) *protocol.Hover {
	word := extractWord(d.Text, pos)

	var b strings.Builder
	switch {
	case word == "":
	case vm.NativeDocs[word] != "":
		fmt.Fprintf(&b, "**%s** (builtin)\n\n`%s`", word, vm.NativeDocs[word])
	case keywordDocs[word] != "":
		fmt.Fprintf(&b, "**%s** (keyword)\n\n`%s`", word, keywordDocs[word])
	default:
		if defs := d.Definitions(word); len(defs) > 0 {
			fmt.Fprintf(&b, "**%s** bound at %s", word, defs[0].Pos)
			if len(defs) > 1 {
				fmt.Fprintf(&b, " (and %d more)", len(defs)-1)
			}
		}
	}

	if b.Len() == 0 {
		if d.Result == nil {
			return nil
		}
		offset, ok := offsetAt(d.Text, pos)
		if !ok {
			return nil
		}
		block := d.Result.Program.InnermostBlock(offset)
		fmt.Fprintf(&b, "**%s**\n\n```\n%s\n```", block.Name, block.Disassemble())
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

// Definitions returns the $name tokens binding word.
func (d *Document) Definitions(word string) []compiler.Token {
	var defs []compiler.Token
	for _, tok := range d.Tokens {
		if tok.Type == compiler.TokenQuotePop && tok.Literal == word {
			defs = append(defs, tok)
		}
	}
	return defs
}

// References returns every token naming word, in any of its forms.
func (d *Document) References(word string) []compiler.Token {
	var refs []compiler.Token
	for _, tok := range d.Tokens {
		switch tok.Type {
		case compiler.TokenIdentifier, compiler.TokenQuote, compiler.TokenQuotePop, compiler.TokenQuotePush:
			if tok.Literal == word {
				refs = append(refs, tok)
			}
		}
	}
	return refs
}

// Locations converts tokens to LSP locations within the document.
func (d *Document) Locations(tokens []compiler.Token) []protocol.Location {
	locations := make([]protocol.Location, len(tokens))
	for i, tok := range tokens {
		locations[i] = protocol.Location{
			URI:   protocol.DocumentUri(d.URI),
			Range: spanRange(d.Text, tok.Span()),
		}
	}
	return locations
}

// --- Position helpers ---
//
// LSP columns count UTF-16 code units. Source spans carry byte offsets, and
// rune-based columns that only agree with LSP on ASCII lines, so ranges are
// computed from the offsets.

// spanRange converts a source span in text to an LSP range.
func spanRange(text string, s compiler.Span) protocol.Range {
	return protocol.Range{
		Start: lspPosition(text, s.Start),
		End:   lspPosition(text, s.End),
	}
}

func lspPosition(text string, p compiler.Position) protocol.Position {
	offset := min(max(p.Offset, 0), len(text))
	lineStart := strings.LastIndexByte(text[:offset], '\n') + 1
	line := max(p.Line-1, 0)
	return protocol.Position{
		Line:      protocol.UInteger(line),
		Character: protocol.UInteger(utf16Len(text[lineStart:offset])),
	}
}

// utf16Len returns the length of s in UTF-16 code units.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// byteColumn returns the byte index in line of the given UTF-16 column,
// clamped to the end of the line.
func byteColumn(line string, units int) int {
	n := 0
	for i, r := range line {
		if n >= units {
			return i
		}
		n += utf16.RuneLen(r)
	}
	return len(line)
}

// offsetAt converts an LSP position to a byte offset in text.
func offsetAt(text string, pos protocol.Position) (int, bool) {
	offset := 0
	for line := 0; line < int(pos.Line); line++ {
		i := strings.IndexByte(text[offset:], '\n')
		if i < 0 {
			return 0, false
		}
		offset += i + 1
	}
	end := strings.IndexByte(text[offset:], '\n')
	if end < 0 {
		end = len(text) - offset
	}
	return offset + byteColumn(text[offset:offset+end], int(pos.Character)), true
}
