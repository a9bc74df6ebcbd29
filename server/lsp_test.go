package server

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

const sampleSource = `.entry main
.func main
    PUSH 10
    CALL countdown
    HALT

.func countdown
loop:
    DUP
    PRINT
    PUSH 1
    SUB
    DUP
    JNZ loop
    RET
`

func newDoc(text string) *document {
	return &document{text: text, index: buildIndex(text)}
}

// ---------------------------------------------------------------------------
// LSP text extraction helpers
// ---------------------------------------------------------------------------

func TestExtractPrefix(t *testing.T) {
	tests := []struct {
		name string
		text string
		pos  protocol.Position
		want string
	}{
		{"simple word", "    PUSH", protocol.Position{Line: 0, Character: 8}, "PUSH"},
		{"partial", "    PU", protocol.Position{Line: 0, Character: 6}, "PU"},
		{"directive", ".fu", protocol.Position{Line: 0, Character: 3}, ".fu"},
		{"empty line", "", protocol.Position{Line: 0, Character: 0}, ""},
		{"multi line", "NOP\nNOP\nCALL hel", protocol.Position{Line: 2, Character: 8}, "hel"},
		{"cursor at beginning", "hello", protocol.Position{Line: 0, Character: 0}, ""},
		{"line beyond document", "single line", protocol.Position{Line: 5, Character: 0}, ""},
		{"character beyond line", "DUP", protocol.Position{Line: 0, Character: 40}, "DUP"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractPrefix(tt.text, tt.pos); got != tt.want {
				t.Errorf("extractPrefix = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Index
// ---------------------------------------------------------------------------

func TestBuildIndex(t *testing.T) {
	ix := buildIndex(sampleSource)

	if ix.entry != "main" {
		t.Errorf("entry = %q, want main", ix.entry)
	}
	if def := ix.funcs["countdown"]; def.at != (span{6, 6, 15}) {
		t.Errorf("countdown defined at %+v", def.at)
	}
	if def := ix.labels["countdown"]["loop"]; def.at != (span{7, 0, 4}) {
		t.Errorf("loop defined at %+v", def.at)
	}
	if diff := cmp.Diff(map[string]int{"main": 3, "countdown": 7}, ix.counts); diff != "" {
		t.Errorf("instruction counts mismatch (-want +got):\n%s", diff)
	}
	if got := ix.functionAt(9); got != "countdown" {
		t.Errorf("functionAt(9) = %q, want countdown", got)
	}
	if got := ix.functionAt(3); got != "main" {
		t.Errorf("functionAt(3) = %q, want main", got)
	}
}

func TestBuildIndexImplicitEntry(t *testing.T) {
	ix := buildIndex("PUSH 1\nPRINT\n.func unused\nRET\n")
	if _, ok := ix.funcs["main"]; !ok {
		t.Error("code before the first .func should define the entry function")
	}
	if ix.counts["main"] != 2 {
		t.Errorf("main has %d instructions, want 2", ix.counts["main"])
	}
}

func TestSplitFields(t *testing.T) {
	got := splitFields(`  PUSH "a b" ; trailing`)
	want := []field{
		{text: "PUSH", start: 2, end: 6},
		{text: "a b", start: 8, end: 11, quoted: true},
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(field{})); diff != "" {
		t.Errorf("splitFields mismatch (-want +got):\n%s", diff)
	}

	// An unterminated string must not panic.
	if got := splitFields(`PUSH "open`); len(got) != 2 || got[1].text != "open" {
		t.Errorf("unterminated string fields = %+v", got)
	}
}

func TestLookupAndDefinition(t *testing.T) {
	ix := buildIndex(sampleSource)

	// CALL countdown, cursor on the target
	sym, ok := ix.lookup(3, 12, sampleSource)
	if !ok || sym.kind != symFunction || sym.name != "countdown" {
		t.Fatalf("lookup = %+v, %v", sym, ok)
	}
	def, ok := ix.definition(sym)
	if !ok || def.at.line != 6 {
		t.Errorf("definition = %+v, %v", def, ok)
	}

	// JNZ loop
	sym, ok = ix.lookup(13, 9, sampleSource)
	if !ok || sym.kind != symLabel || sym.fn != "countdown" {
		t.Fatalf("label lookup = %+v, %v", sym, ok)
	}
	if def, ok := ix.definition(sym); !ok || def.at.line != 7 {
		t.Errorf("label definition = %+v, %v", def, ok)
	}

	// Mnemonic
	sym, ok = ix.lookup(8, 5, sampleSource)
	if !ok || sym.kind != symMnemonic || sym.name != "DUP" {
		t.Errorf("mnemonic lookup = %+v, %v", sym, ok)
	}

	// Whitespace
	if _, ok := ix.lookup(5, 0, sampleSource); ok {
		t.Error("lookup on a blank line should find nothing")
	}
}

func TestReferences(t *testing.T) {
	src := ".func main\nCALL f\nCALL f\nHALT\n.func f\nRET\n"
	ix := buildIndex(src)
	sym := symbol{name: "f", kind: symFunction}

	if got := len(ix.references(sym, false)); got != 2 {
		t.Errorf("references without declaration = %d, want 2", got)
	}
	refs := ix.references(sym, true)
	if len(refs) != 3 || refs[0].at.line != 4 {
		t.Errorf("references with declaration = %+v", refs)
	}
}

func TestLabelsAreScopedPerFunction(t *testing.T) {
	src := ".func main\nloop:\nJMP loop\n.func other\nloop:\nJMP loop\n"
	ix := buildIndex(src)

	refs := ix.references(symbol{name: "loop", fn: "other", kind: symLabel}, true)
	if len(refs) != 2 {
		t.Fatalf("references = %+v", refs)
	}
	for _, r := range refs {
		if r.at.line < 3 {
			t.Errorf("reference %+v leaked from main", r)
		}
	}
}

// ---------------------------------------------------------------------------
// Language features
// ---------------------------------------------------------------------------

func completionLabels(items []protocol.CompletionItem) []string {
	var labels []string
	for _, item := range items {
		labels = append(labels, item.Label)
	}
	return labels
}

func TestCompleteMnemonics(t *testing.T) {
	doc := newDoc("    JN")
	got := completionLabels(complete(doc, protocol.Position{Line: 0, Character: 6}))
	if diff := cmp.Diff([]string{"JNZ"}, got); diff != "" {
		t.Errorf("completion mismatch (-want +got):\n%s", diff)
	}

	// Mnemonics are matched case-insensitively.
	doc = newDoc("pu")
	got = completionLabels(complete(doc, protocol.Position{Line: 0, Character: 2}))
	if diff := cmp.Diff([]string{"PUSH"}, got); diff != "" {
		t.Errorf("lowercase completion mismatch (-want +got):\n%s", diff)
	}
}

func TestCompleteDirectives(t *testing.T) {
	doc := newDoc(".")
	got := completionLabels(complete(doc, protocol.Position{Line: 0, Character: 1}))
	if diff := cmp.Diff([]string{".func", ".entry"}, got); diff != "" {
		t.Errorf("completion mismatch (-want +got):\n%s", diff)
	}
}

func TestCompleteFunctionsAndLabels(t *testing.T) {
	src := sampleSource + "    CALL cou\n    JMP lo"
	doc := newDoc(src)
	lines := strings.Split(src, "\n")
	last := len(lines) - 1

	got := completionLabels(complete(doc, protocol.Position{Line: protocol.UInteger(last - 1), Character: 12}))
	if diff := cmp.Diff([]string{"countdown"}, got); diff != "" {
		t.Errorf("function completion mismatch (-want +got):\n%s", diff)
	}

	got = completionLabels(complete(doc, protocol.Position{Line: protocol.UInteger(last), Character: 10}))
	if diff := cmp.Diff([]string{"LOAD", "LOAD_GLOB", "loop"}, got); diff != "" {
		t.Errorf("label completion mismatch (-want +got):\n%s", diff)
	}
}

func TestCompleteEmptyPrefix(t *testing.T) {
	doc := newDoc("    ")
	if items := complete(doc, protocol.Position{Line: 0, Character: 4}); items != nil {
		t.Errorf("completion with empty prefix = %v, want nil", completionLabels(items))
	}
}

func hoverText(t *testing.T, h *protocol.Hover) string {
	t.Helper()
	if h == nil {
		t.Fatal("hover returned nil")
	}
	mc, ok := h.Contents.(protocol.MarkupContent)
	if !ok {
		t.Fatalf("hover contents = %T", h.Contents)
	}
	return mc.Value
}

func TestHover(t *testing.T) {
	doc := newDoc(sampleSource)

	tests := []struct {
		name string
		pos  protocol.Position
		want []string
	}{
		{"mnemonic", protocol.Position{Line: 11, Character: 5}, []string{"**SUB**", "0x", "pops 2, pushes 1"}},
		{"function use", protocol.Position{Line: 3, Character: 12}, []string{"**countdown**", "7 instructions", "Called from 1 places"}},
		{"entry definition", protocol.Position{Line: 1, Character: 7}, []string{"**main**", "(entry)"}},
		{"label", protocol.Position{Line: 13, Character: 9}, []string{"**loop**", "label in countdown", "line 8"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := hoverText(t, hover(doc, tt.pos))
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("hover = %q, missing %q", got, want)
				}
			}
		})
	}
}

func TestHoverUndefined(t *testing.T) {
	doc := newDoc("CALL missing\nJMP nowhere\n")
	if got := hoverText(t, hover(doc, protocol.Position{Line: 0, Character: 7})); !strings.Contains(got, "undefined function") {
		t.Errorf("hover = %q", got)
	}
	if got := hoverText(t, hover(doc, protocol.Position{Line: 1, Character: 5})); !strings.Contains(got, "undefined label") {
		t.Errorf("hover = %q", got)
	}
	if h := hover(doc, protocol.Position{Line: 4, Character: 0}); h != nil {
		t.Errorf("hover past the document = %+v", h)
	}
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

func TestDiagnoseClean(t *testing.T) {
	if got := diagnose(sampleSource); len(got) != 0 {
		t.Errorf("diagnose = %+v, want none", got)
	}
}

func TestDiagnoseAssemblyError(t *testing.T) {
	got := diagnose("PUSH 1\nFROB 2\n")
	if len(got) != 1 {
		t.Fatalf("diagnose = %+v, want one error", got)
	}
	d := got[0]
	if d.Range.Start.Line != 1 || d.Range.End.Character != 6 {
		t.Errorf("range = %+v, want line 1 cols 0-6", d.Range)
	}
	if d.Severity == nil || *d.Severity != protocol.DiagnosticSeverityError {
		t.Errorf("severity = %v, want error", d.Severity)
	}
	if !strings.Contains(d.Message, "FROB") {
		t.Errorf("message = %q", d.Message)
	}
}

func TestDiagnoseUndefinedCall(t *testing.T) {
	got := diagnose("PUSH 1\nCALL helper\nHALT\n")
	if len(got) != 1 {
		t.Fatalf("diagnose = %+v, want one warning", got)
	}
	d := got[0]
	if d.Severity == nil || *d.Severity != protocol.DiagnosticSeverityWarning {
		t.Errorf("severity = %v, want warning", d.Severity)
	}
	want := protocol.Range{
		Start: protocol.Position{Line: 1, Character: 5},
		End:   protocol.Position{Line: 1, Character: 11},
	}
	if diff := cmp.Diff(want, d.Range); diff != "" {
		t.Errorf("range mismatch (-want +got):\n%s", diff)
	}
}

func TestDocumentLifecycle(t *testing.T) {
	s := NewLSP("test")
	uri := protocol.DocumentUri("file:///tmp/a.nasm")

	s.update(uri, "NOP\n")
	doc, ok := s.document(uri)
	if !ok || doc.text != "NOP\n" {
		t.Fatalf("document = %+v, %v", doc, ok)
	}

	s.update(uri, ".func main\nHALT\n")
	doc, _ = s.document(uri)
	if _, ok := doc.index.funcs["main"]; !ok {
		t.Error("index not rebuilt on update")
	}
}
