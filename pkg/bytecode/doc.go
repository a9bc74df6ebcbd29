// Package bytecode provides a stack-based virtual machine for Noodle
// programs: a tagged value model, an instruction set with a compact binary
// encoding, a call stack, and an interpreter that reports execution
// statistics.
//
// The bytecode format is designed for:
//   - Compact representation (2 bytes plus tagged operands per instruction)
//   - Direct execution (the interpreter runs decoded Instructions, not bytes)
//   - Easy serialization (program images can be stored in SQLite or shipped
//     between processes)
//
// # Architecture Overview
//
//   - Values: Null, Boolean, Integer, Float and String, with the
//     stringification PRINT uses.
//
//   - Opcodes: 28 stack-based instructions covering stack manipulation,
//     arithmetic, comparison, jumps, calls, slot variables, PRINT and HALT.
//     Every opcode has a fixed tag that is part of the wire format.
//
//   - Instructions: an opcode plus literal operands. EncodeInstruction and
//     DecodeInstruction convert to and from the binary form; MarshalImage
//     wraps whole programs in a CBOR envelope.
//
//   - Interpreter: owns the value stack, the call stack, the globals and
//     the output buffer. Run executes a function until HALT, a RET from the
//     entry function, or the end of its code.
//
//   - Assembler: Assemble and Program.Format convert between text and
//     programs; Program.Disassemble produces annotated listings.
//
// # Variables
//
// LOAD and STORE address numbered slots. Inside a CALL they use the
// callee's frame, and LOAD falls back to the global frame when the local
// slot is unbound. At top level both address the globals directly.
// LOAD_GLOB and STORE_GLOB always address the globals.
//
// # Faults
//
// Every fault aborts the run and is returned as an *ExecutionError that
// wraps one of the Err* sentinels. POP on an empty stack is deliberately
// not a fault.
package bytecode
