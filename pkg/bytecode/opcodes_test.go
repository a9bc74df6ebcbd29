package bytecode

import (
	"strings"
	"testing"
)

func TestAllOpcodesHaveMetadata(t *testing.T) {
	// Ensure every defined opcode has metadata
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		if info.Name == "" || strings.HasPrefix(info.Name, "UNKNOWN") {
			t.Errorf("Opcode 0x%02X has no metadata", op)
		}
	}
}

func TestOpcodeCount(t *testing.T) {
	if got := OpcodeCount(); got != 28 {
		t.Errorf("OpcodeCount() = %d, want 28", got)
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpNop, "NOP"},
		{OpPop, "POP"},
		{OpDup, "DUP"},
		{OpPush, "PUSH"},
		{OpAdd, "ADD"},
		{OpSub, "SUB"},
		{OpEq, "EQ"},
		{OpJmp, "JMP"},
		{OpLoadGlob, "LOAD_GLOB"},
		{OpStoreGlob, "STORE_GLOB"},
		{OpRet, "RET"},
		{OpHalt, "HALT"},
	}

	for _, tt := range tests {
		got := tt.op.String()
		if got != tt.want {
			t.Errorf("Opcode(0x%02X).String() = %q, want %q", byte(tt.op), got, tt.want)
		}
	}
}

func TestUnknownOpcodeString(t *testing.T) {
	op := Opcode(0xEE) // Not defined
	got := op.String()
	if !strings.HasPrefix(got, "UNKNOWN") {
		t.Errorf("Unknown opcode should return UNKNOWN, got %q", got)
	}
	if op.Valid() {
		t.Error("Opcode(0xEE).Valid() = true, want false")
	}
}

func TestFixedOpcodeTags(t *testing.T) {
	// Tags are part of the wire format and must never move.
	tests := []struct {
		op   Opcode
		want byte
	}{
		{OpNop, 0x00},
		{OpPush, 0x10},
		{OpLoad, 0x20},
		{OpStoreGlob, 0x23},
		{OpAdd, 0x50},
		{OpNeg, 0x55},
		{OpGe, 0x65},
		{OpJnz, 0x82},
		{OpCall, 0x90},
		{OpPrint, 0xC0},
		{OpHalt, 0xFF},
	}
	for _, tt := range tests {
		if byte(tt.op) != tt.want {
			t.Errorf("%s tag = 0x%02X, want 0x%02X", tt.op, byte(tt.op), tt.want)
		}
	}
}

func TestOpcodeOperandCount(t *testing.T) {
	tests := []struct {
		op   Opcode
		want int
	}{
		{OpNop, 0},
		{OpPop, 0},
		{OpPush, 1},
		{OpLoad, 1},
		{OpStoreGlob, 1},
		{OpJz, 1},
		{OpCall, 1},
		{OpRet, 0},
		{OpHalt, 0},
	}

	for _, tt := range tests {
		if got := tt.op.OperandCount(); got != tt.want {
			t.Errorf("%s.OperandCount() = %d, want %d", tt.op, got, tt.want)
		}
	}
}

func TestOpcodeCategories(t *testing.T) {
	for _, op := range []Opcode{OpJmp, OpJz, OpJnz} {
		if !op.IsJump() {
			t.Errorf("%s.IsJump() = false, want true", op)
		}
	}
	for _, op := range []Opcode{OpNop, OpAdd, OpCall, OpRet} {
		if op.IsJump() {
			t.Errorf("%s.IsJump() = true, want false", op)
		}
	}
	for _, op := range []Opcode{OpCall, OpRet, OpJmp} {
		if !op.IsControlFlow() {
			t.Errorf("%s.IsControlFlow() = false, want true", op)
		}
	}
	for _, op := range []Opcode{OpAdd, OpMod, OpEq, OpGe} {
		if !op.IsBinary() {
			t.Errorf("%s.IsBinary() = false, want true", op)
		}
	}
	for _, op := range []Opcode{OpNeg, OpPush, OpPrint} {
		if op.IsBinary() {
			t.Errorf("%s.IsBinary() = true, want false", op)
		}
	}
}

func TestLookupOpcode(t *testing.T) {
	for _, op := range AllOpcodes() {
		got, ok := LookupOpcode(op.String())
		if !ok || got != op {
			t.Errorf("LookupOpcode(%q) = %v, %v; want %v", op.String(), got, ok, op)
		}
	}
	if _, ok := LookupOpcode("FROB"); ok {
		t.Error("LookupOpcode(FROB) succeeded")
	}
}

func TestAllOpcodesSorted(t *testing.T) {
	ops := AllOpcodes()
	for i := 1; i < len(ops); i++ {
		if ops[i-1] >= ops[i] {
			t.Fatalf("AllOpcodes not sorted at %d: %s before %s", i, ops[i-1], ops[i])
		}
	}
}
