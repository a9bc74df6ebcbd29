package server

import (
	"strings"

	"github.com/chazu/noodle/pkg/bytecode"
)

type symbolKind int

const (
	symFunction symbolKind = iota
	symLabel
	symMnemonic
)

// span is a token position in a document: zero-based line and byte columns.
type span struct {
	line, start, end int
}

// symbol is a definition or use of a function or label.
type symbol struct {
	name string
	fn   string // Function the token appears in
	kind symbolKind
	at   span
}

// index records where functions and labels are defined and used in one
// assembler document.
type index struct {
	entry  string
	funcs  map[string]symbol            // .func definitions
	labels map[string]map[string]symbol // function -> label -> definition
	uses   []symbol                     // CALL targets and jump labels
	lines  []string                     // function each line belongs to
	counts map[string]int               // instructions per function
}

// field is a whitespace-separated token with its columns.
type field struct {
	text       string
	start, end int
	quoted     bool
}

// splitFields tokenizes a line like the assembler does, dropping comments.
func splitFields(line string) []field {
	var out []field
	for i := 0; i < len(line); {
		c := line[i]
		switch {
		case c == ';':
			return out
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '"' || c == '`':
			j := i + 1
			for j < len(line) && line[j] != c {
				if c == '"' && line[j] == '\\' {
					j++
				}
				j++
			}
			if j > len(line) {
				j = len(line)
			}
			out = append(out, field{text: line[i+1 : j], start: i + 1, end: j, quoted: true})
			i = j + 1
		default:
			j := i
			for j < len(line) && line[j] != ' ' && line[j] != '\t' && line[j] != ';' {
				j++
			}
			out = append(out, field{text: line[i:j], start: i, end: j})
			i = j
		}
	}
	return out
}

// buildIndex scans a document. It tolerates malformed lines so that
// navigation keeps working while the user types.
func buildIndex(text string) *index {
	lines := strings.Split(text, "\n")
	ix := &index{
		entry:  bytecode.DefaultEntry,
		funcs:  make(map[string]symbol),
		labels: make(map[string]map[string]symbol),
		lines:  make([]string, len(lines)),
		counts: make(map[string]int),
	}

	// The entry directive may follow code that belongs to the entry function.
	for _, line := range lines {
		if f := splitFields(line); len(f) == 2 && f[0].text == ".entry" {
			ix.entry = f[1].text
		}
	}

	fn := ix.entry
	for n, line := range lines {
		fields := splitFields(line)
		if len(fields) == 0 {
			ix.lines[n] = fn
			continue
		}

		head := fields[0]
		switch {
		case head.text == ".entry":
			ix.lines[n] = fn
			continue
		case head.text == ".func":
			if len(fields) > 1 {
				fn = fields[1].text
				if _, dup := ix.funcs[fn]; !dup {
					ix.funcs[fn] = symbol{name: fn, fn: fn, kind: symFunction, at: fieldSpan(n, fields[1])}
				}
			}
			ix.lines[n] = fn
			continue
		case !head.quoted && strings.HasSuffix(head.text, ":"):
			name := strings.TrimSuffix(head.text, ":")
			if ix.labels[fn] == nil {
				ix.labels[fn] = make(map[string]symbol)
			}
			if _, dup := ix.labels[fn][name]; !dup {
				ix.labels[fn][name] = symbol{name: name, fn: fn, kind: symLabel, at: span{n, head.start, head.end - 1}}
			}
			fields = fields[1:]
		}

		ix.lines[n] = fn
		if len(fields) == 0 {
			continue
		}
		ix.counts[fn]++

		op, ok := bytecode.LookupOpcode(strings.ToUpper(fields[0].text))
		if !ok || len(fields) < 2 {
			continue
		}
		arg := fields[1]
		switch {
		case op == bytecode.OpCall:
			ix.uses = append(ix.uses, symbol{name: arg.text, fn: fn, kind: symFunction, at: fieldSpan(n, arg)})
		case op.IsJump() && !arg.quoted && isName(arg.text):
			ix.uses = append(ix.uses, symbol{name: arg.text, fn: fn, kind: symLabel, at: fieldSpan(n, arg)})
		}
	}

	if _, ok := ix.funcs[ix.entry]; !ok && ix.counts[ix.entry] > 0 {
		ix.funcs[ix.entry] = symbol{name: ix.entry, fn: ix.entry, kind: symFunction, at: span{0, 0, 0}}
	}
	return ix
}

func fieldSpan(line int, f field) span {
	return span{line, f.start, f.end}
}

// isName reports whether s can be a label: not a number or keyword literal.
func isName(s string) bool {
	if s == "" || (s[0] >= '0' && s[0] <= '9') || s[0] == '-' || s[0] == '+' {
		return false
	}
	switch s {
	case "true", "false", "null", "inf", "nan":
		return false
	}
	return true
}

// functionAt returns the function a line belongs to.
func (ix *index) functionAt(line int) string {
	if line >= 0 && line < len(ix.lines) {
		return ix.lines[line]
	}
	return ix.entry
}

// lookup classifies the token at a position.
func (ix *index) lookup(line, col int, text string) (symbol, bool) {
	for _, f := range splitFields(lineAt(text, line)) {
		if col < f.start || col > f.end {
			continue
		}
		fn := ix.functionAt(line)
		name := strings.TrimSuffix(f.text, ":")
		switch {
		case f.text != name:
			return symbol{name: name, fn: fn, kind: symLabel}, true
		case ix.isUse(line, f, symLabel):
			return symbol{name: name, fn: fn, kind: symLabel}, true
		case ix.isUse(line, f, symFunction):
			return symbol{name: name, fn: fn, kind: symFunction}, true
		}
		if def, ok := ix.funcs[name]; ok && def.at.line == line {
			return def, true
		}
		if _, ok := bytecode.LookupOpcode(strings.ToUpper(name)); ok && !f.quoted {
			return symbol{name: strings.ToUpper(name), fn: fn, kind: symMnemonic}, true
		}
		return symbol{}, false
	}
	return symbol{}, false
}

func (ix *index) isUse(line int, f field, kind symbolKind) bool {
	for _, u := range ix.uses {
		if u.kind == kind && u.at.line == line && u.at.start == f.start {
			return true
		}
	}
	return false
}

// definition returns where a symbol is defined.
func (ix *index) definition(sym symbol) (symbol, bool) {
	switch sym.kind {
	case symFunction:
		def, ok := ix.funcs[sym.name]
		return def, ok
	case symLabel:
		def, ok := ix.labels[sym.fn][sym.name]
		return def, ok
	}
	return symbol{}, false
}

// references returns every use of a symbol, plus its definition when
// includeDecl is set.
func (ix *index) references(sym symbol, includeDecl bool) []symbol {
	var out []symbol
	if includeDecl {
		if def, ok := ix.definition(sym); ok {
			out = append(out, def)
		}
	}
	for _, u := range ix.uses {
		if u.kind != sym.kind || u.name != sym.name {
			continue
		}
		if sym.kind == symLabel && u.fn != sym.fn {
			continue
		}
		out = append(out, u)
	}
	return out
}

func lineAt(text string, line int) string {
	lines := strings.Split(text, "\n")
	if line < 0 || line >= len(lines) {
		return ""
	}
	return lines[line]
}
