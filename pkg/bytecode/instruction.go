package bytecode

import (
	"encoding/binary"
	"math"
	"strings"
	"unicode/utf8"
)

// Operand kind tags on the wire.
const (
	operandBool   byte = 1
	operandInt    byte = 2
	operandFloat  byte = 3
	operandString byte = 4
)

// Wire limits.
const (
	MaxOperands     = math.MaxUint8
	MaxStringLength = math.MaxUint16
)

// Instruction is one opcode plus its literal operands.
// Operands are not checked at construction; the codec and the
// interpreter validate them.
type Instruction struct {
	Op       Opcode
	Operands []Value
}

// NewInstruction builds an instruction from an opcode and operands.
func NewInstruction(op Opcode, operands ...Value) Instruction {
	return Instruction{Op: op, Operands: operands}
}

// String renders the instruction in assembler syntax.
func (in Instruction) String() string {
	if len(in.Operands) == 0 {
		return in.Op.String()
	}
	var sb strings.Builder
	sb.WriteString(in.Op.String())
	for _, v := range in.Operands {
		sb.WriteByte(' ')
		sb.WriteString(v.GoString())
	}
	return sb.String()
}

// Equal reports whether two instructions have the same opcode and operands.
func (in Instruction) Equal(o Instruction) bool {
	if in.Op != o.Op || len(in.Operands) != len(o.Operands) {
		return false
	}
	for i := range in.Operands {
		if !in.Operands[i].Equal(o.Operands[i]) {
			return false
		}
	}
	return true
}

// operand returns operand i, or false when absent.
func (in Instruction) operand(i int) (Value, bool) {
	if i < len(in.Operands) {
		return in.Operands[i], true
	}
	return Null, false
}

// EncodeInstruction serializes an instruction.
// Format:
//
//	[opcode:1] [operand_count:1] { [kind:1] [payload:...] }*
//
// Payloads are little-endian: int32 (4), float64 (8), bool (1),
// string (u16 length + UTF-8 bytes).
func EncodeInstruction(in Instruction) ([]byte, error) {
	return AppendInstruction(make([]byte, 0, 2+len(in.Operands)*5), in)
}

// AppendInstruction appends the encoding of in to buf.
func AppendInstruction(buf []byte, in Instruction) ([]byte, error) {
	if len(in.Operands) > MaxOperands {
		return nil, encodingErrorf("%s has %d operands, limit is %d", in.Op, len(in.Operands), MaxOperands)
	}
	buf = append(buf, byte(in.Op), byte(len(in.Operands)))

	for i, v := range in.Operands {
		switch v.kind {
		case KindBoolean:
			buf = append(buf, operandBool)
			if v.b {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		case KindInteger:
			if v.i < math.MinInt32 || v.i > math.MaxInt32 {
				return nil, encodingErrorf("%s operand %d: integer %d does not fit in 32 bits", in.Op, i, v.i)
			}
			buf = append(buf, operandInt)
			buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(v.i)))
		case KindFloat:
			buf = append(buf, operandFloat)
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.f))
		case KindString:
			if len(v.s) > MaxStringLength {
				return nil, encodingErrorf("%s operand %d: string of %d bytes exceeds %d", in.Op, i, len(v.s), MaxStringLength)
			}
			if !utf8.ValidString(v.s) {
				return nil, encodingErrorf("%s operand %d: string is not valid UTF-8", in.Op, i)
			}
			buf = append(buf, operandString)
			buf = binary.LittleEndian.AppendUint16(buf, uint16(len(v.s)))
			buf = append(buf, v.s...)
		default:
			return nil, encodingErrorf("%s operand %d: cannot encode %s", in.Op, i, v.kind)
		}
	}

	return buf, nil
}

// DecodeInstruction decodes exactly one instruction; trailing bytes are an error.
func DecodeInstruction(data []byte) (Instruction, error) {
	in, n, err := decodeOne(data)
	if err != nil {
		return Instruction{}, err
	}
	if n != len(data) {
		return Instruction{}, encodingErrorf("%d trailing bytes after %s", len(data)-n, in.Op)
	}
	return in, nil
}

// DecodeInstructions decodes a concatenated instruction stream.
func DecodeInstructions(data []byte) ([]Instruction, error) {
	var out []Instruction
	for pos := 0; pos < len(data); {
		in, n, err := decodeOne(data[pos:])
		if err != nil {
			return nil, err
		}
		out = append(out, in)
		pos += n
	}
	return out, nil
}

// EncodeInstructions concatenates the encodings of a sequence.
func EncodeInstructions(code []Instruction) ([]byte, error) {
	var buf []byte
	for i, in := range code {
		var err error
		if buf, err = AppendInstruction(buf, in); err != nil {
			return nil, encodingErrorf("instruction %d: %v", i, err)
		}
	}
	return buf, nil
}

// decodeOne decodes a single instruction and reports how many bytes it used.
func decodeOne(data []byte) (Instruction, int, error) {
	if len(data) < 2 {
		return Instruction{}, 0, encodingErrorf("instruction too short: need at least 2 bytes, got %d", len(data))
	}

	op := Opcode(data[0])
	if !op.Valid() {
		return Instruction{}, 0, faultf(ErrUnknownOpcode, "tag 0x%02X", data[0])
	}
	count := int(data[1])
	pos := 2

	in := Instruction{Op: op}
	if count > 0 {
		in.Operands = make([]Value, count)
	}

	for i := range in.Operands {
		if pos >= len(data) {
			return Instruction{}, 0, encodingErrorf("unexpected end of %s reading operand %d kind", op, i)
		}
		kind := data[pos]
		pos++

		switch kind {
		case operandBool:
			if pos+1 > len(data) {
				return Instruction{}, 0, encodingErrorf("unexpected end of %s reading operand %d", op, i)
			}
			in.Operands[i] = Bool(data[pos] != 0)
			pos++
		case operandInt:
			if pos+4 > len(data) {
				return Instruction{}, 0, encodingErrorf("unexpected end of %s reading operand %d", op, i)
			}
			in.Operands[i] = Int(int64(int32(binary.LittleEndian.Uint32(data[pos:]))))
			pos += 4
		case operandFloat:
			if pos+8 > len(data) {
				return Instruction{}, 0, encodingErrorf("unexpected end of %s reading operand %d", op, i)
			}
			in.Operands[i] = Float(math.Float64frombits(binary.LittleEndian.Uint64(data[pos:])))
			pos += 8
		case operandString:
			if pos+2 > len(data) {
				return Instruction{}, 0, encodingErrorf("unexpected end of %s reading operand %d length", op, i)
			}
			strLen := int(binary.LittleEndian.Uint16(data[pos:]))
			pos += 2
			if pos+strLen > len(data) {
				return Instruction{}, 0, encodingErrorf("unexpected end of %s reading operand %d", op, i)
			}
			s := string(data[pos : pos+strLen])
			if !utf8.ValidString(s) {
				return Instruction{}, 0, encodingErrorf("%s operand %d is not valid UTF-8", op, i)
			}
			in.Operands[i] = Str(s)
			pos += strLen
		default:
			return Instruction{}, 0, encodingErrorf("%s operand %d has unknown kind tag %d", op, i, kind)
		}
	}

	return in, pos, nil
}
