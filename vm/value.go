package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind tags the payload of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt32
	KindInt64
	KindDouble
	KindBool
	KindChar
	KindObjectRef
)

var kindNames = [...]string{
	KindNull:      "Null",
	KindInt32:     "Int32",
	KindInt64:     "Int64",
	KindDouble:    "Double",
	KindBool:      "Bool",
	KindChar:      "Char",
	KindObjectRef: "ObjectRef",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Value is the datum exchanged between generated code, the operand stack
// and heap slots: a kind tag plus a single 64-bit payload.
//
// Payload encoding:
//   - Int32: sign-extended to 64 bits
//   - Int64: two's complement
//   - Double: IEEE 754 bit pattern
//   - Bool: 0 or 1
//   - Char: Unicode code point
//   - ObjectRef: data address of a heap object, never 0
//   - Null: 0
type Value struct {
	Kind Kind
	Bits uint64
}

// Null is the null reference.
var Null = Value{}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// Int32 returns an Int32 value.
func Int32(v int32) Value {
	return Value{Kind: KindInt32, Bits: uint64(int64(v))}
}

// Int64 returns an Int64 value.
func Int64(v int64) Value {
	return Value{Kind: KindInt64, Bits: uint64(v)}
}

// Double returns a Double value.
func Double(f float64) Value {
	return Value{Kind: KindDouble, Bits: math.Float64bits(f)}
}

// Bool returns a Bool value.
func Bool(b bool) Value {
	if b {
		return Value{Kind: KindBool, Bits: 1}
	}
	return Value{Kind: KindBool}
}

// Char returns a Char value.
func Char(r rune) Value {
	return Value{Kind: KindChar, Bits: uint64(uint32(r))}
}

// Ref returns a reference to the object whose data starts at addr. The
// zero address is Null.
func Ref(addr uint64) Value {
	if addr == 0 {
		return Null
	}
	return Value{Kind: KindObjectRef, Bits: addr}
}

// FromBits rebuilds a value of the given kind from a raw slot payload.
func FromBits(kind Kind, bits uint64) Value {
	switch kind {
	case KindNull:
		return Null
	case KindObjectRef:
		return Ref(bits)
	}
	return Value{Kind: kind, Bits: bits}
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// IsNull reports whether v is Null.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// IsRef reports whether v references a heap object.
func (v Value) IsRef() bool { return v.Kind == KindObjectRef }

// IsNumeric reports whether v is Int32, Int64, Double or Char.
func (v Value) IsNumeric() bool {
	switch v.Kind {
	case KindInt32, KindInt64, KindDouble, KindChar:
		return true
	}
	return false
}

// Address returns the referenced data address, or 0.
func (v Value) Address() uint64 {
	if v.Kind != KindObjectRef {
		return 0
	}
	return v.Bits
}

// AsBool returns the payload as a bool.
func (v Value) AsBool() bool { return v.Bits != 0 }

// AsChar returns the payload as a rune.
func (v Value) AsChar() rune { return rune(uint32(v.Bits)) }

// AsInt32 returns the value converted to int32.
func (v Value) AsInt32() int32 { return int32(v.AsInt64()) }

// AsInt64 returns the value converted to int64. Doubles truncate.
func (v Value) AsInt64() int64 {
	switch v.Kind {
	case KindInt32, KindInt64:
		return int64(v.Bits)
	case KindDouble:
		return int64(math.Float64frombits(v.Bits))
	case KindChar:
		return int64(uint32(v.Bits))
	case KindBool:
		return int64(v.Bits & 1)
	}
	return 0
}

// AsDouble returns the value converted to float64.
func (v Value) AsDouble() float64 {
	if v.Kind == KindDouble {
		return math.Float64frombits(v.Bits)
	}
	return float64(v.AsInt64())
}

// Convert returns v converted to another numeric kind.
func (v Value) Convert(kind Kind) (Value, error) {
	if v.Kind == kind {
		return v, nil
	}
	if !v.IsNumeric() {
		return Null, fmt.Errorf("%w: cannot convert %s to %s", ErrTypeMismatch, v.Kind, kind)
	}
	switch kind {
	case KindInt32:
		return Int32(v.AsInt32()), nil
	case KindInt64:
		return Int64(v.AsInt64()), nil
	case KindDouble:
		return Double(v.AsDouble()), nil
	case KindChar:
		return Char(rune(v.AsInt64())), nil
	}
	return Null, fmt.Errorf("%w: cannot convert %s to %s", ErrTypeMismatch, v.Kind, kind)
}

// String renders primitive values. References render as their address.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindInt32, KindInt64:
		return strconv.FormatInt(v.AsInt64(), 10)
	case KindDouble:
		return formatDouble(v.AsDouble())
	case KindBool:
		return strconv.FormatBool(v.AsBool())
	case KindChar:
		return string(v.AsChar())
	case KindObjectRef:
		return fmt.Sprintf("@%#x", v.Bits)
	}
	return fmt.Sprintf("%s(%#x)", v.Kind, v.Bits)
}

// formatDouble keeps a decimal point on integral values so doubles stay
// distinguishable from integers in program output.
func formatDouble(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if strings.ContainsAny(s, ".eEIN") {
		return s
	}
	return s + ".0"
}
