package bytecode

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the payload carried by a Value.
type Kind uint8

const (
	KindNull    Kind = 0
	KindBoolean Kind = 1
	KindInteger Kind = 2
	KindFloat   Kind = 3
	KindString  Kind = 4
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Value is a tagged VM value. Only the field selected by kind is meaningful;
// the zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
}

// Null is the Null value.
var Null = Value{}

// Bool returns a Boolean value.
func Bool(b bool) Value {
	return Value{kind: KindBoolean, b: b}
}

// Int returns an Integer value.
func Int(i int64) Value {
	return Value{kind: KindInteger, i: i}
}

// Float returns a Float value.
func Float(f float64) Value {
	return Value{kind: KindFloat, f: f}
}

// Str returns a String value.
func Str(s string) Value {
	return Value{kind: KindString, s: s}
}

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool    { return v.kind == KindNull }
func (v Value) IsBool() bool    { return v.kind == KindBoolean }
func (v Value) IsInt() bool     { return v.kind == KindInteger }
func (v Value) IsFloat() bool   { return v.kind == KindFloat }
func (v Value) IsString() bool  { return v.kind == KindString }
func (v Value) IsNumeric() bool { return v.kind == KindInteger || v.kind == KindFloat }

// AsBool returns the boolean payload. The second result is false if v is not a Boolean.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBoolean }

// AsInt returns the integer payload. The second result is false if v is not an Integer.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInteger }

// AsFloat returns the float payload. The second result is false if v is not a Float.
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }

// AsString returns the string payload. The second result is false if v is not a String.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// toFloat widens a numeric value for mixed arithmetic.
func (v Value) toFloat() float64 {
	if v.kind == KindInteger {
		return float64(v.i)
	}
	return v.f
}

// String renders the value the way PRINT emits it.
func (v Value) String() string {
	switch v.kind {
	case KindBoolean:
		if v.b {
			return "true"
		}
		return "false"
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f)
	case KindString:
		return v.s
	default:
		return "null"
	}
}

// GoString renders the value as an assembler literal: strings are quoted.
func (v Value) GoString() string {
	if v.kind == KindString {
		return strconv.Quote(v.s)
	}
	return v.String()
}

// formatFloat keeps a trailing ".0" on integral values so floats stay
// distinguishable from integers in output and assembly.
func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsNaN(f) {
		return "nan"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// Equal reports whether two values share a kind and payload.
// Values of different kinds are never equal.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBoolean:
		return v.b == o.b
	case KindInteger:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	}
	return false
}

// Truthy reports whether the value counts as true for JZ/JNZ.
// Null, false, 0, 0.0 and the empty string are falsy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBoolean:
		return v.b
	case KindInteger:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindString:
		return v.s != ""
	default:
		return false
	}
}
