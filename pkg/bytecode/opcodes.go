package bytecode

import (
	"fmt"
	"sort"
)

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpNop  Opcode = 0x00 // No operation
	OpPop  Opcode = 0x01 // Pop top of stack (no-op when empty)
	OpDup  Opcode = 0x02 // Duplicate top of stack
	OpSwap Opcode = 0x03 // Swap top two stack elements

	// ========================================================================
	// Constants (0x10-0x1F)
	// ========================================================================

	OpPush Opcode = 0x10 // Push literal operand: PUSH <value>

	// ========================================================================
	// Variables (0x20-0x2F)
	// ========================================================================

	OpLoad      Opcode = 0x20 // Push slot from current frame, falling back to globals: LOAD <slot>
	OpStore     Opcode = 0x21 // Pop into current frame (globals at top level): STORE <slot>
	OpLoadGlob  Opcode = 0x22 // Push global slot: LOAD_GLOB <slot>
	OpStoreGlob Opcode = 0x23 // Pop into global slot: STORE_GLOB <slot>

	// ========================================================================
	// Arithmetic (0x50-0x5F)
	// ========================================================================

	OpAdd Opcode = 0x50 // Pop two, push sum (or concatenation of two strings)
	OpSub Opcode = 0x51 // Pop two, push difference (a - b where b is TOS)
	OpMul Opcode = 0x52 // Pop two, push product
	OpDiv Opcode = 0x53 // Pop two, push quotient
	OpMod Opcode = 0x54 // Pop two, push remainder
	OpNeg Opcode = 0x55 // Negate top of stack

	// ========================================================================
	// Comparison (0x60-0x6F)
	// ========================================================================

	OpEq Opcode = 0x60 // Pop two, push true if equal
	OpNe Opcode = 0x61 // Pop two, push true if not equal
	OpLt Opcode = 0x62 // Pop two, push true if a < b
	OpLe Opcode = 0x63 // Pop two, push true if a <= b
	OpGt Opcode = 0x64 // Pop two, push true if a > b
	OpGe Opcode = 0x65 // Pop two, push true if a >= b

	// ========================================================================
	// Control flow (0x80-0x8F)
	// ========================================================================

	OpJmp Opcode = 0x80 // Unconditional jump: JMP <target>
	OpJz  Opcode = 0x81 // Pop, jump if falsy: JZ <target>
	OpJnz Opcode = 0x82 // Pop, jump if truthy: JNZ <target>

	// ========================================================================
	// Calls (0x90-0x9F)
	// ========================================================================

	OpCall Opcode = 0x90 // Call function by name: CALL <name>
	OpRet  Opcode = 0x91 // Return to caller

	// ========================================================================
	// I/O (0xC0-0xCF)
	// ========================================================================

	OpPrint Opcode = 0xC0 // Pop and print top of stack

	// ========================================================================
	// Termination
	// ========================================================================

	OpHalt Opcode = 0xFF // Stop execution
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name      string // Assembler mnemonic
	StackPop  int    // How many values popped from stack
	StackPush int    // How many values pushed to stack
	Operands  int    // Number of operands the instruction carries
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack manipulation
	OpNop:  {"NOP", 0, 0, 0},
	OpPop:  {"POP", 1, 0, 0},
	OpDup:  {"DUP", 1, 2, 0},
	OpSwap: {"SWAP", 2, 2, 0},

	// Constants
	OpPush: {"PUSH", 0, 1, 1},

	// Variables
	OpLoad:      {"LOAD", 0, 1, 1},
	OpStore:     {"STORE", 1, 0, 1},
	OpLoadGlob:  {"LOAD_GLOB", 0, 1, 1},
	OpStoreGlob: {"STORE_GLOB", 1, 0, 1},

	// Arithmetic
	OpAdd: {"ADD", 2, 1, 0},
	OpSub: {"SUB", 2, 1, 0},
	OpMul: {"MUL", 2, 1, 0},
	OpDiv: {"DIV", 2, 1, 0},
	OpMod: {"MOD", 2, 1, 0},
	OpNeg: {"NEG", 1, 1, 0},

	// Comparison
	OpEq: {"EQ", 2, 1, 0},
	OpNe: {"NE", 2, 1, 0},
	OpLt: {"LT", 2, 1, 0},
	OpLe: {"LE", 2, 1, 0},
	OpGt: {"GT", 2, 1, 0},
	OpGe: {"GE", 2, 1, 0},

	// Control flow
	OpJmp: {"JMP", 0, 0, 1},
	OpJz:  {"JZ", 1, 0, 1},
	OpJnz: {"JNZ", 1, 0, 1},

	// Calls
	OpCall: {"CALL", 0, 0, 1},
	OpRet:  {"RET", 0, 0, 0},

	// I/O
	OpPrint: {"PRINT", 1, 0, 0},

	OpHalt: {"HALT", 0, 0, 0},
}

// opcodesByName is the assembler's mnemonic lookup.
var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeInfoTable))
	for op, info := range opcodeInfoTable {
		m[info.Name] = op
	}
	return m
}()

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// LookupOpcode returns the opcode for an assembler mnemonic.
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opcodesByName[name]
	return op, ok
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// OperandCount returns the number of operands this opcode expects.
func (op Opcode) OperandCount() int {
	return GetOpcodeInfo(op).Operands
}

// IsJump returns true if this opcode is a jump instruction.
func (op Opcode) IsJump() bool {
	return op >= OpJmp && op <= OpJnz
}

// IsControlFlow returns true if this opcode sets the program counter directly.
func (op Opcode) IsControlFlow() bool {
	return op.IsJump() || op == OpCall || op == OpRet
}

// IsBinary returns true if this opcode pops two operands and pushes one result.
func (op Opcode) IsBinary() bool {
	return (op >= OpAdd && op <= OpMod) || (op >= OpEq && op <= OpGe)
}

// AllOpcodes returns all defined opcodes in tag order.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	sort.Slice(opcodes, func(i, j int) bool { return opcodes[i] < opcodes[j] })
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
