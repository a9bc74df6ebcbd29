// Package server implements a language server for Noodle assembler sources.
package server

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/noodle/pkg/bytecode"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "noodle-lsp"

// document is an open editor buffer and its symbol index.
type document struct {
	text  string
	index *index
}

// LspServer provides diagnostics, completion, hover and navigation for
// .nasm files.
type LspServer struct {
	mu   sync.Mutex
	docs map[string]*document // URI → document

	handler protocol.Handler
	server  *glspserver.Server
	version string
	log     commonlog.Logger
}

// NewLSP creates a new LSP server.
func NewLSP(version string) *LspServer {
	s := &LspServer{
		docs:    make(map[string]*document),
		version: version,
		log:     commonlog.GetLogger("noodle.lsp"),
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
		TextDocumentReferences: s.textDocumentReferences,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	s.log.Info("Noodle LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"."},
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	s.update(uri, params.TextDocument.Text)
	s.publishDiagnostics(ctx, uri, params.TextDocument.Text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.update(uri, whole.Text)
			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) update(uri protocol.DocumentUri, text string) {
	doc := &document{text: text, index: buildIndex(text)}
	s.mu.Lock()
	s.docs[string(uri)] = doc
	s.mu.Unlock()
}

func (s *LspServer) document(uri protocol.DocumentUri) (*document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[string(uri)]
	return doc, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	return complete(doc, params.Position), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	return hover(doc, params.Position), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	sym, ok := doc.index.lookup(int(params.Position.Line), int(params.Position.Character), doc.text)
	if !ok {
		return nil, nil
	}
	def, ok := doc.index.definition(sym)
	if !ok {
		return nil, nil
	}
	return []protocol.Location{location(params.TextDocument.URI, def.at)}, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	sym, ok := doc.index.lookup(int(params.Position.Line), int(params.Position.Character), doc.text)
	if !ok || sym.kind == symMnemonic {
		return nil, nil
	}

	var locations []protocol.Location
	for _, ref := range doc.index.references(sym, params.Context.IncludeDeclaration) {
		locations = append(locations, location(params.TextDocument.URI, ref.at))
	}
	return locations, nil
}

// --- Document-backed logic ---

func complete(doc *document, pos protocol.Position) []protocol.CompletionItem {
	prefix := extractPrefix(doc.text, pos)
	if prefix == "" {
		return nil
	}
	lowerPrefix := strings.ToLower(prefix)

	var items []protocol.CompletionItem
	add := func(label string, kind protocol.CompletionItemKind, detail string) {
		if !strings.HasPrefix(strings.ToLower(label), lowerPrefix) {
			return
		}
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &label,
		})
	}

	// Directives
	add(".func", protocol.CompletionItemKindKeyword, "start a function")
	add(".entry", protocol.CompletionItemKindKeyword, "set the entry function")

	// Mnemonics
	for _, op := range bytecode.AllOpcodes() {
		info := bytecode.GetOpcodeInfo(op)
		add(info.Name, protocol.CompletionItemKindOperator, stackEffect(info))
	}

	// Functions
	funcs := make([]string, 0, len(doc.index.funcs))
	for name := range doc.index.funcs {
		funcs = append(funcs, name)
	}
	sort.Strings(funcs)
	for _, name := range funcs {
		add(name, protocol.CompletionItemKindFunction, "function")
	}

	// Labels visible from the cursor's function
	fn := doc.index.functionAt(int(pos.Line))
	labels := make([]string, 0, len(doc.index.labels[fn]))
	for name := range doc.index.labels[fn] {
		labels = append(labels, name)
	}
	sort.Strings(labels)
	for _, name := range labels {
		add(name, protocol.CompletionItemKindReference, "label in "+fn)
	}

	return items
}

func hover(doc *document, pos protocol.Position) *protocol.Hover {
	sym, ok := doc.index.lookup(int(pos.Line), int(pos.Character), doc.text)
	if !ok {
		return nil
	}

	var b strings.Builder
	switch sym.kind {
	case symMnemonic:
		op, _ := bytecode.LookupOpcode(sym.name)
		info := bytecode.GetOpcodeInfo(op)
		fmt.Fprintf(&b, "**%s** `0x%02X`\n\n%s", info.Name, byte(op), stackEffect(info))

	case symFunction:
		if _, defined := doc.index.funcs[sym.name]; !defined {
			fmt.Fprintf(&b, "**%s**: undefined function", sym.name)
			break
		}
		fmt.Fprintf(&b, "**%s**: function, %d instructions", sym.name, doc.index.counts[sym.name])
		if sym.name == doc.index.entry {
			b.WriteString(" (entry)")
		}
		if n := len(doc.index.references(sym, false)); n > 0 {
			fmt.Fprintf(&b, "\n\nCalled from %d places", n)
		}

	case symLabel:
		def, ok := doc.index.definition(sym)
		if !ok {
			fmt.Fprintf(&b, "**%s**: undefined label in %s", sym.name, sym.fn)
			break
		}
		fmt.Fprintf(&b, "**%s**: label in %s, line %d", sym.name, sym.fn, def.at.line+1)
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

func stackEffect(info bytecode.OpcodeInfo) string {
	return fmt.Sprintf("pops %d, pushes %d, %d operands", info.StackPop, info.StackPush, info.Operands)
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	diagnostics := diagnose(text)
	s.log.Debugf("%s: %d diagnostics", uri, len(diagnostics))

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// diagnose assembles the text and reports the first assembly error, or
// warnings for calls to functions the document does not define.
func diagnose(text string) []protocol.Diagnostic {
	diagnostics := []protocol.Diagnostic{}
	source := lspName

	if _, err := bytecode.Assemble(text); err != nil {
		severity := protocol.DiagnosticSeverityError
		line := 0
		msg := err.Error()
		var asmErr *bytecode.AsmError
		if errors.As(err, &asmErr) {
			line = asmErr.Line - 1
			msg = asmErr.Msg
		}
		return append(diagnostics, protocol.Diagnostic{
			Range:    lineRange(text, line),
			Severity: &severity,
			Source:   &source,
			Message:  msg,
		})
	}

	ix := buildIndex(text)
	for _, use := range ix.uses {
		if use.kind != symFunction {
			continue
		}
		if _, ok := ix.funcs[use.name]; ok {
			continue
		}
		severity := protocol.DiagnosticSeverityWarning
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    spanRange(use.at),
			Severity: &severity,
			Source:   &source,
			Message:  fmt.Sprintf("function %q is not defined in this file", use.name),
		})
	}
	return diagnostics
}

// --- Positions ---

func location(uri protocol.DocumentUri, at span) protocol.Location {
	return protocol.Location{URI: uri, Range: spanRange(at)}
}

func spanRange(at span) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: protocol.UInteger(at.line), Character: protocol.UInteger(at.start)},
		End:   protocol.Position{Line: protocol.UInteger(at.line), Character: protocol.UInteger(at.end)},
	}
}

func lineRange(text string, line int) protocol.Range {
	return spanRange(span{line: line, start: 0, end: len(lineAt(text, line))})
}

// --- Text extraction helpers ---

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	line := lineAt(text, int(pos.Line))
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 && isWordByte(line[start-1]) {
		start--
	}

	return line[start:col]
}

func isWordByte(c byte) bool {
	return c == '_' || c == '.' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func boolPtr(b bool) *bool {
	return &b
}
