// Package nmvalue implements the NM Script runtime Value (§3 of the
// specification): a closed tagged union of Null, Int32, Float32, Bool and
// String, plus the opcode/instruction/string-table types shared by the
// compiler, VM and debugger. Following the teacher's machine package, Value
// is a closed sum type rather than a class hierarchy (see §9 "Tagged values
// vs. dynamic dispatch").
package nmvalue

import (
	"fmt"
	"math"
)

// Kind is the tag discriminating a Value.
type Kind uint8

const (
	Null Kind = iota
	Int
	Float
	Bool
	String
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case String:
		return "string"
	default:
		return "unknown"
	}
}

// Value is the tagged union every VM stack slot, global and flag holds.
// Only one of the typed fields is meaningful, selected by Kind.
type Value struct {
	kind Kind
	i    int32
	f    float32
	b    bool
	s    string
}

func NullValue() Value          { return Value{kind: Null} }
func IntValue(v int32) Value    { return Value{kind: Int, i: v} }
func FloatValue(v float32) Value { return Value{kind: Float, f: v} }
func BoolValue(v bool) Value    { return Value{kind: Bool, b: v} }
func StringValue(v string) Value { return Value{kind: String, s: v} }

func (v Value) Kind() Kind { return v.kind }

// AsInt is a total function coercing v to an int32 per §9's coercion rules:
// bool and null participate in numeric ops as 1/0 and 0.
func (v Value) AsInt() int32 {
	switch v.kind {
	case Int:
		return v.i
	case Float:
		return int32(v.f)
	case Bool:
		if v.b {
			return 1
		}
		return 0
	case String:
		// non-numeric strings coerce to 0, matching the VM's "never panic on
		// numeric op" contract.
		var n int32
		fmt.Sscanf(v.s, "%d", &n)
		return n
	default:
		return 0
	}
}

// AsFloat is a total function; mixed numeric operands promote to Float32.
func (v Value) AsFloat() float32 {
	switch v.kind {
	case Float:
		return v.f
	case Int:
		return float32(v.i)
	case Bool:
		if v.b {
			return 1
		}
		return 0
	case String:
		var f float64
		fmt.Sscanf(v.s, "%g", &f)
		return float32(f)
	default:
		return 0
	}
}

// AsBool is a total function: Null and zero numeric values are falsy.
func (v Value) AsBool() bool {
	switch v.kind {
	case Bool:
		return v.b
	case Int:
		return v.i != 0
	case Float:
		return v.f != 0
	case String:
		return v.s != ""
	default:
		return false
	}
}

// AsString is a total function returning a display form of v.
func (v Value) AsString() string {
	switch v.kind {
	case String:
		return v.s
	case Int:
		return fmt.Sprintf("%d", v.i)
	case Float:
		return formatFloat(v.f)
	case Bool:
		if v.b {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func formatFloat(f float32) string {
	switch {
	case math.IsNaN(float64(f)):
		return "nan"
	case math.IsInf(float64(f), 1):
		return "inf"
	case math.IsInf(float64(f), -1):
		return "-inf"
	default:
		return fmt.Sprintf("%g", f)
	}
}

func (v Value) String() string { return v.AsString() }

// Equal implements §3's type-aware equality: values of different Kind are
// never equal except where numeric promotion applies (Int/Float/Bool all
// compare as numbers; String only equals String).
func Equal(a, b Value) bool {
	if a.kind == String || b.kind == String {
		return a.kind == String && b.kind == String && a.s == b.s
	}
	if a.kind == Null || b.kind == Null {
		return a.kind == Null && b.kind == Null
	}
	return a.AsFloat() == b.AsFloat()
}

// Less implements §3's ordering: string/string is lexicographic, numeric
// kinds compare as promoted floats. Comparing a string to a non-string is a
// VM-level error (returned by the caller, not here).
func Less(a, b Value) (bool, error) {
	if a.kind == String && b.kind == String {
		return a.s < b.s, nil
	}
	if a.kind == String || b.kind == String {
		return false, fmt.Errorf("cannot compare %s with %s", a.kind, b.kind)
	}
	return a.AsFloat() < b.AsFloat(), nil
}

// Float32ToBits / BitsToFloat32 implement the portable bit-cast required by
// §4.4's float serialization: every float operand is encoded as the IEEE 754
// bit pattern, little-endian, guaranteeing byte-identical bytecode across
// big- and little-endian hosts (P4, P6).
func Float32ToBits(f float32) uint32   { return math.Float32bits(f) }
func BitsToFloat32(bits uint32) float32 { return math.Float32frombits(bits) }
