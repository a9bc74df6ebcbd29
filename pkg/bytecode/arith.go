package bytecode

import "math"

// binaryOp applies an arithmetic or comparison opcode to a and b, where b
// was on top of the stack.
func binaryOp(op Opcode, a, b Value) (Value, error) {
	switch op {
	case OpAdd:
		if a.kind == KindString && b.kind == KindString {
			return Str(a.s + b.s), nil
		}
		return arith(op, a, b)
	case OpSub, OpMul:
		return arith(op, a, b)
	case OpDiv, OpMod:
		if !a.IsNumeric() || !b.IsNumeric() {
			return Null, mismatch(op, a, b)
		}
		if (b.kind == KindInteger && b.i == 0) || (b.kind == KindFloat && b.f == 0) {
			return Null, faultf(ErrDivisionByZero, "%s %s by %s", op, a.GoString(), b.GoString())
		}
		return arith(op, a, b)
	case OpEq:
		return Bool(a.Equal(b)), nil
	case OpNe:
		return Bool(!a.Equal(b)), nil
	case OpLt, OpLe, OpGt, OpGe:
		c, err := compare(op, a, b)
		if err != nil {
			return Null, err
		}
		switch op {
		case OpLt:
			return Bool(c < 0), nil
		case OpLe:
			return Bool(c <= 0), nil
		case OpGt:
			return Bool(c > 0), nil
		default:
			return Bool(c >= 0), nil
		}
	}
	return Null, faultf(ErrUnknownOpcode, "%s is not a binary operator", op)
}

// arith handles numeric promotion: int op int stays int, anything
// involving a float is computed in float64. Zero divisors are rejected
// by the caller.
func arith(op Opcode, a, b Value) (Value, error) {
	if !a.IsNumeric() || !b.IsNumeric() {
		return Null, mismatch(op, a, b)
	}

	if a.kind == KindInteger && b.kind == KindInteger {
		switch op {
		case OpAdd:
			return Int(a.i + b.i), nil
		case OpSub:
			return Int(a.i - b.i), nil
		case OpMul:
			return Int(a.i * b.i), nil
		case OpDiv:
			return Int(a.i / b.i), nil
		case OpMod:
			return Int(a.i % b.i), nil
		}
	}

	x, y := a.toFloat(), b.toFloat()
	switch op {
	case OpAdd:
		return Float(x + y), nil
	case OpSub:
		return Float(x - y), nil
	case OpMul:
		return Float(x * y), nil
	case OpDiv:
		return Float(x / y), nil
	case OpMod:
		return Float(math.Mod(x, y)), nil
	}
	return Null, mismatch(op, a, b)
}

// compare orders numbers (mixed kinds compared as floats) and strings.
func compare(op Opcode, a, b Value) (int, error) {
	switch {
	case a.kind == KindInteger && b.kind == KindInteger:
		return cmp3(a.i < b.i, a.i > b.i), nil
	case a.IsNumeric() && b.IsNumeric():
		x, y := a.toFloat(), b.toFloat()
		return cmp3(x < y, x > y), nil
	case a.kind == KindString && b.kind == KindString:
		return cmp3(a.s < b.s, a.s > b.s), nil
	}
	return 0, mismatch(op, a, b)
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

// negate implements NEG.
func negate(v Value) (Value, error) {
	switch v.kind {
	case KindInteger:
		return Int(-v.i), nil
	case KindFloat:
		return Float(-v.f), nil
	}
	return Null, faultf(ErrTypeMismatch, "NEG of %s", v.kind)
}

func mismatch(op Opcode, a, b Value) error {
	return faultf(ErrTypeMismatch, "%s of %s and %s", op, a.kind, b.kind)
}
