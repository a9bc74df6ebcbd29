package bytecode

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// AsmError reports an assembly failure at a source line.
type AsmError struct {
	Line int
	Msg  string
}

func (e *AsmError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// Assemble parses assembler source into a program.
//
// Syntax, one item per line:
//
//	; comment             (also allowed after an instruction)
//	.entry main           entry function, default "main"
//	.func name            start a function; earlier instructions go to the entry
//	label:                name the next instruction's index for jumps
//	PUSH "text"           mnemonic followed by literals
//
// Literals are integers, floats, true, false, null, Go-quoted strings, or
// bare identifiers. A bare identifier is a label for JMP/JZ/JNZ and a
// string otherwise, so CALL helper works.
func Assemble(src string) (*Program, error) {
	p := NewProgram()
	a := &assembler{prog: p, labels: make(map[string]map[string]int)}

	sc := bufio.NewScanner(strings.NewReader(src))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		if err := a.line(line, sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if err := a.resolve(); err != nil {
		return nil, err
	}
	if a.fn == "" && len(p.Functions) == 0 {
		p.Functions[p.Entry] = []Instruction{}
	}
	return p, nil
}

type fixup struct {
	fn      string
	index   int
	operand int
	label   string
	line    int
}

type assembler struct {
	prog   *Program
	fn     string
	labels map[string]map[string]int // function -> label -> index
	fixups []fixup
}

func (a *assembler) function() string {
	if a.fn == "" {
		return a.prog.Entry
	}
	return a.fn
}

func (a *assembler) line(n int, text string) error {
	toks, err := tokenize(text)
	if err != nil {
		return &AsmError{Line: n, Msg: err.Error()}
	}
	if len(toks) == 0 {
		return nil
	}

	head := toks[0]
	switch {
	case head.text == ".entry":
		if len(toks) != 2 {
			return &AsmError{Line: n, Msg: ".entry takes one name"}
		}
		a.prog.Entry = toks[1].text
		return nil

	case head.text == ".func":
		if len(toks) != 2 {
			return &AsmError{Line: n, Msg: ".func takes one name"}
		}
		a.fn = toks[1].text
		if _, ok := a.prog.Functions[a.fn]; !ok {
			a.prog.Functions[a.fn] = []Instruction{}
		}
		return nil

	case !head.quoted && strings.HasSuffix(head.text, ":"):
		label := strings.TrimSuffix(head.text, ":")
		if !isIdent(label) {
			return &AsmError{Line: n, Msg: fmt.Sprintf("bad label %q", label)}
		}
		fn := a.function()
		if a.labels[fn] == nil {
			a.labels[fn] = make(map[string]int)
		}
		if _, dup := a.labels[fn][label]; dup {
			return &AsmError{Line: n, Msg: fmt.Sprintf("duplicate label %q in %s", label, fn)}
		}
		a.labels[fn][label] = len(a.prog.Functions[fn])
		if len(toks) > 1 {
			return a.instruction(n, toks[1:])
		}
		return nil
	}

	return a.instruction(n, toks)
}

func (a *assembler) instruction(n int, toks []token) error {
	op, ok := LookupOpcode(strings.ToUpper(toks[0].text))
	if !ok || toks[0].quoted {
		return &AsmError{Line: n, Msg: fmt.Sprintf("unknown mnemonic %q", toks[0].text)}
	}

	fn := a.function()
	in := Instruction{Op: op}
	for _, t := range toks[1:] {
		if op.IsJump() && !t.quoted && isIdent(t.text) {
			a.fixups = append(a.fixups, fixup{
				fn:      fn,
				index:   len(a.prog.Functions[fn]),
				operand: len(in.Operands),
				label:   t.text,
				line:    n,
			})
			in.Operands = append(in.Operands, Int(0))
			continue
		}
		v, err := parseLiteral(t)
		if err != nil {
			return &AsmError{Line: n, Msg: err.Error()}
		}
		in.Operands = append(in.Operands, v)
	}

	a.prog.Add(fn, in)
	return nil
}

func (a *assembler) resolve() error {
	for _, f := range a.fixups {
		idx, ok := a.labels[f.fn][f.label]
		if !ok {
			return &AsmError{Line: f.line, Msg: fmt.Sprintf("undefined label %q in %s", f.label, f.fn)}
		}
		a.prog.Functions[f.fn][f.index].Operands[f.operand] = Int(int64(idx))
	}
	return nil
}

type token struct {
	text   string
	quoted bool
}

// tokenize splits a line on whitespace, keeping quoted strings whole and
// dropping everything after an unquoted ';'.
func tokenize(line string) ([]token, error) {
	var toks []token
	for i := 0; i < len(line); {
		c := line[i]
		switch {
		case c == ';':
			return toks, nil
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
			if j >= len(line) {
				return nil, fmt.Errorf("unterminated string")
			}
			s, err := strconv.Unquote(line[i : j+1])
			if err != nil {
				return nil, fmt.Errorf("bad string %s: %v", line[i:j+1], err)
			}
			toks = append(toks, token{text: s, quoted: true})
			i = j + 1
		default:
			j := i
			for j < len(line) && line[j] != ' ' && line[j] != '\t' && line[j] != ';' {
				j++
			}
			toks = append(toks, token{text: line[i:j]})
			i = j
		}
	}
	return toks, nil
}

func parseLiteral(t token) (Value, error) {
	if t.quoted {
		return Str(t.text), nil
	}
	switch t.text {
	case "null":
		return Null, nil
	case "true":
		return Bool(true), nil
	case "false":
		return Bool(false), nil
	case "inf", "+inf":
		return parseFloat("+Inf")
	case "-inf":
		return parseFloat("-Inf")
	case "nan":
		return parseFloat("NaN")
	}
	if i, err := strconv.ParseInt(t.text, 0, 64); err == nil {
		return Int(i), nil
	}
	if strings.ContainsAny(t.text, ".eE") {
		if v, err := parseFloat(t.text); err == nil {
			return v, nil
		}
	}
	if isIdent(t.text) {
		return Str(t.text), nil
	}
	return Null, fmt.Errorf("bad literal %q", t.text)
}

func parseFloat(s string) (Value, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Null, err
	}
	return Float(f), nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || r == '.' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}
