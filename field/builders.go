package field

import "fmt"

// Constructors for building Raw descriptor trees in Go. They mirror the keys
// a definition file would carry; anything beyond name, size and children is
// set with the Raw chainers.

// asRule coerces a size or count argument: integers become literals, strings
// become paths, a Rule passes through.
func asRule(v any) Rule {
	switch n := v.(type) {
	case Rule:
		return n
	case int:
		return LitRule(int64(n))
	case int64:
		return LitRule(n)
	case uint:
		return LitRule(int64(n))
	case string:
		return PathRule(n)
	case nil:
		return Rule{}
	default:
		panic(fmt.Sprintf("field: %T is not a size rule", v))
	}
}

// Struct lays fields out at computed offsets with a fixed total size.
func Struct(name string, fields ...*Raw) *Raw {
	r := NewRaw(TStruct, name)
	r.Children = fields
	return r
}

// Container holds a variable-size sequence of individually sized entries.
func Container(name string, fields ...*Raw) *Raw {
	r := NewRaw(TContainer, name)
	r.Children = fields
	return r
}

// BitStruct packs bit fields end to end into at most 64 bits.
func BitStruct(name string, fields ...*Raw) *Raw {
	r := NewRaw(TBitStruct, name)
	r.Children = fields
	return r
}

// Array repeats sub count times. count may be an integer literal, a path
// string or a Rule.
func Array(name string, count any, sub *Raw) *Raw {
	r := NewRaw(TArray, name)
	r.Size = asRule(count)
	r.SubStruct = sub
	return r
}

// WhileArray repeats sub for as long as while says to continue.
func WhileArray(name string, while WhileFunc, sub *Raw) *Raw {
	r := NewRaw(TWhileArray, name)
	r.While = while
	r.SubStruct = sub
	return r
}

// Switch picks one of cases by the decider's key, falling back to a Void
// default. SetDefaultCase replaces the fallback.
func Switch(name string, c CaseRule, cases map[any]*Raw) *Raw {
	r := NewRaw(TSwitch, name)
	r.Case = c
	r.Cases = cases
	return r
}

// SetDefaultCase replaces the Void fallback of a switch.
func (r *Raw) SetDefaultCase(dc *Raw) *Raw {
	r.CaseDefault = dc
	return r
}

// Union holds the raw bytes of its largest case and decodes one case on
// demand. A nil decider leaves every case inactive until SetActive.
func Union(name string, c CaseRule, cases map[any]*Raw) *Raw {
	r := NewRaw(TUnion, name)
	r.Case = c
	r.Cases = cases
	return r
}

// StreamAdapter parses sub from the bytes dec derives from the underlying
// buffer. A nil enc serializes the derived bytes unchanged.
func StreamAdapter(name string, sub *Raw, dec StreamDecoder, enc StreamEncoder) *Raw {
	r := NewRaw(TStreamAdapter, name)
	r.SubStruct = sub
	r.Decoder = dec
	r.Encoder = enc
	return r
}

// Pad skips n bytes (n bits inside a bit struct).
func Pad(n int64) *Raw {
	return NewRaw(TPad, "").WithSize(n)
}

// Void occupies no bytes; it marks deliberately empty slots.
func Void(name string) *Raw { return NewRaw(TVoid, name) }

func UInt8(name string) *Raw  { return NewRaw(TUInt8, name) }
func SInt8(name string) *Raw  { return NewRaw(TSInt8, name) }
func UInt16(name string) *Raw { return NewRaw(TUInt16, name) }
func SInt16(name string) *Raw { return NewRaw(TSInt16, name) }
func UInt24(name string) *Raw { return NewRaw(TUInt24, name) }
func SInt24(name string) *Raw { return NewRaw(TSInt24, name) }
func UInt32(name string) *Raw { return NewRaw(TUInt32, name) }
func SInt32(name string) *Raw { return NewRaw(TSInt32, name) }
func UInt64(name string) *Raw { return NewRaw(TUInt64, name) }
func SInt64(name string) *Raw { return NewRaw(TSInt64, name) }

func Float32(name string) *Raw { return NewRaw(TFloat32, name) }
func Float64(name string) *Raw { return NewRaw(TFloat64, name) }

// Timestamp32 is seconds since the Unix epoch in 32 unsigned bits.
func Timestamp32(name string) *Raw { return NewRaw(TTimestamp32, name) }

// BigUInt is an unsigned integer of size bytes, decoded to *big.Int.
func BigUInt(name string, size any) *Raw {
	r := NewRaw(TBigUInt, name)
	r.Size = asRule(size)
	return r
}

// BigSInt is the twos-complement counterpart of BigUInt.
func BigSInt(name string, size any) *Raw {
	r := NewRaw(TBigSInt, name)
	r.Size = asRule(size)
	return r
}

// Option is a Bool or Enum option taking the next value slot.
func Option(name string) *Raw { return &Raw{Name: name, Index: -1} }

// OptionV is an option with an explicit value.
func OptionV(name string, value int64) *Raw {
	return &Raw{Name: name, Index: -1, Value: &value}
}

func enum(t *Type, name string, options []*Raw) *Raw {
	r := NewRaw(t, name)
	r.Children = options
	return r
}

func Enum8(name string, options ...*Raw) *Raw  { return enum(TEnum8, name, options) }
func Enum16(name string, options ...*Raw) *Raw { return enum(TEnum16, name, options) }
func Enum32(name string, options ...*Raw) *Raw { return enum(TEnum32, name, options) }
func Bool8(name string, options ...*Raw) *Raw  { return enum(TBool8, name, options) }
func Bool16(name string, options ...*Raw) *Raw { return enum(TBool16, name, options) }
func Bool32(name string, options ...*Raw) *Raw { return enum(TBool32, name, options) }

// Bit is a single flag bit inside a bit struct.
func Bit(name string) *Raw { return NewRaw(TBit, name) }

// BitUInt is an unsigned bit field of the given width.
func BitUInt(name string, bits int64) *Raw {
	return NewRaw(TBitUInt, name).WithSize(bits)
}

// BitSInt is a twos-complement bit field.
func BitSInt(name string, bits int64) *Raw {
	return NewRaw(TBitSInt, name).WithSize(bits)
}

// Bit1SInt is a ones-complement bit field; all-ones reads as zero.
func Bit1SInt(name string, bits int64) *Raw {
	return NewRaw(TBit1SInt, name).WithSize(bits)
}

// StrAscii is a fixed-size string of single-byte characters.
func StrAscii(name string, size any) *Raw {
	r := NewRaw(TStrAscii, name)
	r.Size = asRule(size)
	return r
}

// StrUtf8 is a fixed-size string of UTF-8 bytes.
func StrUtf8(name string, size any) *Raw {
	r := NewRaw(TStrUtf8, name)
	r.Size = asRule(size)
	return r
}

// CStrAscii is a null-delimited string of single-byte characters.
func CStrAscii(name string) *Raw { return NewRaw(TCStrAscii, name) }

// CStrUtf16 is a null-delimited string of UTF-16 code units.
func CStrUtf16(name string) *Raw { return NewRaw(TCStrUtf16, name) }

// BytesRaw is an uninterpreted byte run of the given size.
func BytesRaw(name string, size any) *Raw {
	r := NewRaw(TBytesRaw, name)
	r.Size = asRule(size)
	return r
}
