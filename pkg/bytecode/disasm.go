package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of every function, entry first.
func (p *Program) Disassemble() string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("; Noodle Bytecode v%d\n", ImageVersion))
	sb.WriteString(fmt.Sprintf("; Functions: %d, instructions: %d\n", len(p.Functions), p.InstructionCount()))
	sb.WriteString(fmt.Sprintf(".entry %s\n", p.Entry))

	for _, name := range p.orderedNames() {
		sb.WriteString("\n")
		sb.WriteString(DisassembleFunction(name, p.Functions[name]))
	}

	return sb.String()
}

// Format renders the program as assembler source that Assemble accepts.
// Jump targets are emitted as labels.
func (p *Program) Format() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(".entry %s\n", p.Entry))

	for _, name := range p.orderedNames() {
		code := p.Functions[name]
		targets := jumpTargets(code)

		sb.WriteString(fmt.Sprintf("\n.func %s\n", name))
		for i, in := range code {
			if targets[i] {
				sb.WriteString(fmt.Sprintf("L%d:\n", i))
			}
			sb.WriteString("    ")
			sb.WriteString(formatInstruction(in, code))
			sb.WriteString("\n")
		}
		if targets[len(code)] {
			sb.WriteString(fmt.Sprintf("L%d:\n", len(code)))
		}
	}

	return sb.String()
}

// DisassembleFunction lists one function with instruction indexes.
func DisassembleFunction(name string, code []Instruction) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	sb.WriteString(fmt.Sprintf(".func %s\n", name))
	for i, in := range code {
		sb.WriteString(fmt.Sprintf("%04d  %s\n", i, disassembleInstruction(in, code)))
	}
	return sb.String()
}

// disassembleInstruction annotates an instruction with what it refers to.
func disassembleInstruction(in Instruction, code []Instruction) string {
	line := in.String()
	info := GetOpcodeInfo(in.Op)

	switch {
	case in.Op.IsJump():
		if t, ok := in.operand(0); ok && t.kind == KindInteger {
			if t.i >= 0 && t.i < int64(len(code)) {
				return fmt.Sprintf("%-30s ; -> %s", line, code[t.i])
			}
			return fmt.Sprintf("%-30s ; -> <out of range>", line)
		}
	case in.Op == OpLoad || in.Op == OpStore:
		return fmt.Sprintf("%-30s ; local or global slot", line)
	case !in.Op.Valid():
		return info.Name
	}

	if len(in.Operands) != info.Operands {
		return fmt.Sprintf("%-30s ; expected %d operands", line, info.Operands)
	}
	return line
}

// formatInstruction renders jump targets as labels.
func formatInstruction(in Instruction, code []Instruction) string {
	if in.Op.IsJump() && len(in.Operands) == 1 {
		if t := in.Operands[0]; t.kind == KindInteger && t.i >= 0 && t.i <= int64(len(code)) {
			return fmt.Sprintf("%s L%d", in.Op, t.i)
		}
	}
	return in.String()
}

func jumpTargets(code []Instruction) map[int]bool {
	targets := make(map[int]bool)
	for _, in := range code {
		if in.Op.IsJump() && len(in.Operands) == 1 {
			if t := in.Operands[0]; t.kind == KindInteger && t.i >= 0 && t.i <= int64(len(code)) {
				targets[int(t.i)] = true
			}
		}
	}
	return targets
}

// orderedNames puts the entry function first, then the rest sorted.
func (p *Program) orderedNames() []string {
	names := make([]string, 0, len(p.Functions))
	if _, ok := p.Functions[p.Entry]; ok {
		names = append(names, p.Entry)
	}
	for _, name := range p.FunctionNames() {
		if name != p.Entry {
			names = append(names, name)
		}
	}
	return names
}
