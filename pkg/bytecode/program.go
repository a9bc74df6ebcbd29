package bytecode

import (
	"fmt"
	"sort"
)

// DefaultEntry is the function run when a program names no entry point.
const DefaultEntry = "main"

// Program is a set of named instruction sequences plus an entry point.
type Program struct {
	Entry     string
	Functions map[string][]Instruction
}

// NewProgram creates an empty program with the default entry point.
func NewProgram() *Program {
	return &Program{
		Entry:     DefaultEntry,
		Functions: make(map[string][]Instruction),
	}
}

// Add appends instructions to the named function, creating it if needed.
func (p *Program) Add(name string, code ...Instruction) {
	p.Functions[name] = append(p.Functions[name], code...)
}

// FunctionNames returns function names in sorted order.
func (p *Program) FunctionNames() []string {
	names := make([]string, 0, len(p.Functions))
	for name := range p.Functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the instructions for a function.
func (p *Program) Lookup(name string) ([]Instruction, error) {
	code, ok := p.Functions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFunctionNotFound, name)
	}
	return code, nil
}

// Merge adds o's functions to p. A function defined in both is an error
// and leaves p unchanged.
func (p *Program) Merge(o *Program) error {
	for name := range o.Functions {
		if _, dup := p.Functions[name]; dup {
			return fmt.Errorf("function %q defined twice", name)
		}
	}
	for name, code := range cloneFunctions(o.Functions) {
		p.Functions[name] = code
	}
	return nil
}

// InstructionCount returns the total number of instructions across functions.
func (p *Program) InstructionCount() int {
	n := 0
	for _, code := range p.Functions {
		n += len(code)
	}
	return n
}

// Clone returns a deep copy.
func (p *Program) Clone() *Program {
	return &Program{Entry: p.Entry, Functions: cloneFunctions(p.Functions)}
}

func cloneFunctions(fns map[string][]Instruction) map[string][]Instruction {
	out := make(map[string][]Instruction, len(fns))
	for name, code := range fns {
		cp := make([]Instruction, len(code))
		for i, in := range code {
			cp[i] = Instruction{Op: in.Op}
			if len(in.Operands) > 0 {
				cp[i].Operands = append([]Value(nil), in.Operands...)
			}
		}
		out[name] = cp
	}
	return out
}
