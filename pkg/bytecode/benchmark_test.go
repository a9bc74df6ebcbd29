// Package bytecode benchmarks
//
// These benchmarks measure the performance of:
// - Interpreter dispatch (arithmetic loops, calls)
// - Instruction encoding and decoding
// - Program image marshaling
//
// Run: go test -bench=. ./pkg/bytecode/...
// Run with memory stats: go test -bench=. -benchmem ./pkg/bytecode/...
package bytecode

import (
	"testing"
)

// countingLoop sums 0..n-1 into global slot 1.
func countingLoop(n int64) map[string][]Instruction {
	return map[string][]Instruction{"main": {
		push(Int(0)), withInt(OpStore, 0),
		push(Int(0)), withInt(OpStore, 1),
		withInt(OpLoad, 0), push(Int(n)), op(OpLt), withInt(OpJz, 17),
		withInt(OpLoad, 1), withInt(OpLoad, 0), op(OpAdd), withInt(OpStore, 1),
		withInt(OpLoad, 0), push(Int(1)), op(OpAdd), withInt(OpStore, 0),
		withInt(OpJmp, 4),
		op(OpHalt),
	}}
}

// ============================================================
// Execution Benchmarks
// ============================================================

func BenchmarkRunLoop(b *testing.B) {
	vm := NewInterpreter()
	vm.SetStdout(nil)
	prog := countingLoop(1000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		vm.Load(prog)
		if _, err := vm.Run("main"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRunCalls(b *testing.B) {
	vm := NewInterpreter()
	vm.SetStdout(nil)
	prog := map[string][]Instruction{
		"main": {
			push(Int(0)), withInt(OpStore, 0),
			withInt(OpLoad, 0), push(Int(500)), op(OpLt), withInt(OpJz, 10),
			withInt(OpLoad, 0), NewInstruction(OpCall, Str("inc")), withInt(OpStore, 0),
			withInt(OpJmp, 2),
			op(OpHalt),
		},
		"inc": {push(Int(1)), op(OpAdd), op(OpRet)},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		vm.Load(prog)
		if _, err := vm.Run("main"); err != nil {
			b.Fatal(err)
		}
	}
}

// ============================================================
// Serialization Benchmarks
// ============================================================

func BenchmarkEncodeInstructions(b *testing.B) {
	code := countingLoop(1000)["main"]

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := EncodeInstructions(code); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecodeInstructions(b *testing.B) {
	data, err := EncodeInstructions(countingLoop(1000)["main"])
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := DecodeInstructions(data); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMarshalImage(b *testing.B) {
	p := &Program{Entry: DefaultEntry, Functions: countingLoop(1000)}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := MarshalImage(p); err != nil {
			b.Fatal(err)
		}
	}
}
