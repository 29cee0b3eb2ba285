package field

import (
	"fmt"
	"time"

	"github.com/binstruct/bindef/binio"
)

// Std is the process-wide registry holding the standard type catalog. It is
// frozen at package init; custom types go in a registry of their own, built
// with NewRegistry and RegisterStandard.
var Std = NewRegistry()

func mustReg(r *Registry, info TypeInfo) *Type {
	t, err := r.Register(info)
	if err != nil {
		panic(err)
	}
	return t
}

func mustPair(r *Registry, info TypeInfo) [2]*Type {
	le, be, err := r.RegisterPair(info)
	if err != nil {
		panic(err)
	}
	return [2]*Type{le, be}
}

// parseUnplaced backs types that only exist inside a bit struct; the
// sanitizer rejects any placement that could reach it.
func parseUnplaced(ft *Type, d *Desc, ctx *ParseCtx, parent Block, key Key, off int64) (int64, error) {
	return off, fmt.Errorf("%w: %s outside a bit struct", binio.ErrDescriptor, ft.name)
}

func serializeUnplaced(ft *Type, node any, d *Desc, ctx *SerializeCtx, parent Block, key Key, off int64) (int64, error) {
	return off, fmt.Errorf("%w: %s outside a bit struct", binio.ErrDescriptor, ft.name)
}

func uintInfo(name string, size int64) TypeInfo {
	return TypeInfo{
		Name: name, Size: size, Data: true,
		Parse: parseFixedData, Serialize: serializeFixedData,
		Decode: decodeUint, Encode: encodeUint,
		Sanitize: sanitizeData, Default: uint64(0),
	}
}

func sintInfo(name string, size int64) TypeInfo {
	return TypeInfo{
		Name: name, Size: size, Data: true,
		Parse: parseFixedData, Serialize: serializeFixedData,
		Decode: decodeSint, Encode: encodeSint,
		Sanitize: sanitizeData, Default: int64(0),
	}
}

func enumInfo(name string, size int64) TypeInfo {
	return TypeInfo{
		Name: name, Size: size, Data: true, Enum: true,
		Parse: parseFixedData, Serialize: serializeFixedData,
		Decode: decodeEnum, Encode: encodeEnum,
		Sanitize: sanitizeBoolEnum, Default: int64(0),
	}
}

func boolInfo(name string, size int64) TypeInfo {
	return TypeInfo{
		Name: name, Size: size, Data: true, Bool: true,
		Parse: parseFixedData, Serialize: serializeFixedData,
		Decode: decodeBool, Encode: encodeBool,
		Sanitize: sanitizeBoolEnum, Default: int64(0),
	}
}

func bitInfo(name string, bits int64, dec BitDecodeFunc, enc BitEncodeFunc, varSize bool) TypeInfo {
	return TypeInfo{
		Name: name, Size: bits, Data: true, BitBased: true, VarSize: varSize,
		Parse: parseUnplaced, Serialize: serializeUnplaced,
		BitDecode: dec, BitEncode: enc, SizeCalc: sizeCalcBits,
		Sanitize: sanitizeData, Default: uint64(0),
	}
}

// Fixed-size integers and floats. Base names resolve little endian.
var (
	TUInt8 = mustReg(Std, uintInfo("UInt8", 1))
	TSInt8 = mustReg(Std, sintInfo("SInt8", 1))

	uint16Pair = mustPair(Std, uintInfo("UInt16", 2))
	uint24Pair = mustPair(Std, uintInfo("UInt24", 3))
	uint32Pair = mustPair(Std, uintInfo("UInt32", 4))
	uint64Pair = mustPair(Std, uintInfo("UInt64", 8))
	sint16Pair = mustPair(Std, sintInfo("SInt16", 2))
	sint24Pair = mustPair(Std, sintInfo("SInt24", 3))
	sint32Pair = mustPair(Std, sintInfo("SInt32", 4))
	sint64Pair = mustPair(Std, sintInfo("SInt64", 8))

	TUInt16, TUInt16BE = uint16Pair[0], uint16Pair[1]
	TUInt24, TUInt24BE = uint24Pair[0], uint24Pair[1]
	TUInt32, TUInt32BE = uint32Pair[0], uint32Pair[1]
	TUInt64, TUInt64BE = uint64Pair[0], uint64Pair[1]
	TSInt16, TSInt16BE = sint16Pair[0], sint16Pair[1]
	TSInt24, TSInt24BE = sint24Pair[0], sint24Pair[1]
	TSInt32, TSInt32BE = sint32Pair[0], sint32Pair[1]
	TSInt64, TSInt64BE = sint64Pair[0], sint64Pair[1]

	float32Pair = mustPair(Std, TypeInfo{
		Name: "Float32", Size: 4, Data: true,
		Parse: parseFixedData, Serialize: serializeFixedData,
		Decode: decodeFloat32, Encode: encodeFloat32,
		Sanitize: sanitizeData, Default: float64(0),
	})
	float64Pair = mustPair(Std, TypeInfo{
		Name: "Float64", Size: 8, Data: true,
		Parse: parseFixedData, Serialize: serializeFixedData,
		Decode: decodeFloat64, Encode: encodeFloat64,
		Sanitize: sanitizeData, Default: float64(0),
	})
	TFloat32, TFloat32BE = float32Pair[0], float32Pair[1]
	TFloat64, TFloat64BE = float64Pair[0], float64Pair[1]

	timestampPair = mustPair(Std, TypeInfo{
		Name: "Timestamp32", Size: 4, Data: true,
		Parse: parseFixedData, Serialize: serializeFixedData,
		Decode: decodeTimestamp, Encode: encodeTimestamp,
		Sanitize: sanitizeData, Default: time.Unix(0, 0).UTC(),
	})
	TTimestamp32, TTimestamp32BE = timestampPair[0], timestampPair[1]
)

// Arbitrary-width integers, sized by their SIZE rule.
var (
	bigUintPair = mustPair(Std, TypeInfo{
		Name: "BigUInt", Data: true, VarSize: true,
		Parse: parseData, Serialize: serializeData,
		Decode: decodeBigUint, Encode: encodeBigUint,
		SizeCalc: sizeCalcBigUint, Sanitize: sanitizeData,
	})
	bigSintPair = mustPair(Std, TypeInfo{
		Name: "BigSInt", Data: true, VarSize: true,
		Parse: parseData, Serialize: serializeData,
		Decode: decodeBigSint, Encode: encodeBigSint,
		SizeCalc: sizeCalcBigSint, Sanitize: sanitizeData,
	})
	TBigUInt, TBigUIntBE = bigUintPair[0], bigUintPair[1]
	TBigSInt, TBigSIntBE = bigSintPair[0], bigSintPair[1]
)

// Enumerations and flag sets.
var (
	enum8Pair  = [2]*Type{mustReg(Std, enumInfo("Enum8", 1)), nil}
	enum16Pair = mustPair(Std, enumInfo("Enum16", 2))
	enum32Pair = mustPair(Std, enumInfo("Enum32", 4))
	bool8Pair  = [2]*Type{mustReg(Std, boolInfo("Bool8", 1)), nil}
	bool16Pair = mustPair(Std, boolInfo("Bool16", 2))
	bool32Pair = mustPair(Std, boolInfo("Bool32", 4))

	TEnum8             = enum8Pair[0]
	TEnum16, TEnum16BE = enum16Pair[0], enum16Pair[1]
	TEnum32, TEnum32BE = enum32Pair[0], enum32Pair[1]
	TBool8             = bool8Pair[0]
	TBool16, TBool16BE = bool16Pair[0], bool16Pair[1]
	TBool32, TBool32BE = bool32Pair[0], bool32Pair[1]
)

// Strings and raw bytes.
var (
	TStrAscii = mustReg(Std, TypeInfo{
		Name: "StrAscii", Data: true, VarSize: true, Str: true, CharSize: 1,
		Parse: parseData, Serialize: serializeData,
		Decode: decodeStr, Encode: encodeStr,
		SizeCalc: sizeCalcStr, Sanitize: sanitizeData, Default: "",
	})
	TStrUtf8 = mustReg(Std, TypeInfo{
		Name: "StrUtf8", Data: true, VarSize: true, Str: true, CharSize: 1,
		Parse: parseData, Serialize: serializeData,
		Decode: decodeStr, Encode: encodeStr,
		SizeCalc: sizeCalcStr, Sanitize: sanitizeData, Default: "",
	})
	TCStrAscii = mustReg(Std, TypeInfo{
		Name: "CStrAscii", Data: true, VarSize: true, OpenEnded: true,
		Str: true, StrNull: true, CharSize: 1, Delimiter: []byte{0},
		Parse: parseCString, Serialize: serializeCString,
		Decode: decodeCStrAscii, Encode: encodeCStrAscii,
		SizeCalc: sizeCalcCStrAscii, Sanitize: sanitizeData, Default: "",
	})
	cstrUtf16Pair = mustPair(Std, TypeInfo{
		Name: "CStrUtf16", Data: true, VarSize: true, OpenEnded: true,
		Str: true, StrNull: true, CharSize: 2, Delimiter: []byte{0, 0},
		Parse: parseCString, Serialize: serializeCString,
		Decode: decodeCStrUtf16, Encode: encodeCStrUtf16,
		SizeCalc: sizeCalcCStrUtf16, Sanitize: sanitizeData, Default: "",
	})
	TCStrUtf16, TCStrUtf16BE = cstrUtf16Pair[0], cstrUtf16Pair[1]

	TBytesRaw = mustReg(Std, TypeInfo{
		Name: "BytesRaw", Data: true, VarSize: true, Raw: true,
		Parse: parseBytes, Serialize: serializeBytes,
		Decode: decodeBytes, Encode: encodeBytes,
		SizeCalc: sizeCalcBytes, Sanitize: sanitizeData,
		DefaultFunc: func() any { return []byte{} },
	})
)

// Bit fields.
var (
	TBit      = mustReg(Std, bitInfo("Bit", 1, bitDecodeUint, bitEncodeUint, false))
	TBitUInt  = mustReg(Std, bitInfo("BitUInt", 0, bitDecodeUint, bitEncodeUint, true))
	TBitSInt  = mustReg(Std, bitInfo("BitSInt", 0, bitDecodeSint, bitEncodeSint, true))
	TBit1SInt = mustReg(Std, bitInfo("Bit1SInt", 0, bitDecode1sSint, bitEncode1sSint, true))
)

// sanitizeVoidFn indirects sanitizeVoid so TVoid's initializer does not
// depend on it at package-init time (sanitizeVoid -> voidDesc -> TVoid).
var sanitizeVoidFn SanitizeFunc

func init() { sanitizeVoidFn = sanitizeVoid }

// Hierarchy types.
var (
	TVoid = mustReg(Std, TypeInfo{
		Name: "Void", Block: true,
		Parse: parseVoid, Serialize: serializeVoid,
		Sanitize: func(bd *BlockDef, raw *Raw, st *SanCtx) *Desc {
			return sanitizeVoidFn(bd, raw, st)
		},
	})
	TPad = mustReg(Std, TypeInfo{
		Name: "Pad", Data: true,
		Parse: parsePad, Serialize: serializePad,
		Decode: func(ft *Type, raw []byte, d *Desc, parent Block, key Key) (any, error) {
			return nil, nil
		},
		Sanitize: sanitizePad,
	})
	TContainer = mustReg(Std, TypeInfo{
		Name: "Container", Block: true, Container: true,
		Parse: parseContainer, Serialize: serializeContainer, Sanitize: sanitizeSequence,
	})
	structPair = mustPair(Std, TypeInfo{
		Name: "Struct", Block: true, Struct: true,
		Parse: parseStruct, Serialize: serializeStruct, Sanitize: sanitizeStruct,
	})
	TStruct, TStructBE = structPair[0], structPair[1]

	bitStructPair = mustPair(Std, TypeInfo{
		Name: "BitStruct", Block: true, Struct: true, BitBased: true,
		Parse: parseBitStruct, Serialize: serializeBitStruct, Sanitize: sanitizeBitStruct,
	})
	TBitStruct, TBitStructBE = bitStructPair[0], bitStructPair[1]

	TArray = mustReg(Std, TypeInfo{
		Name: "Array", Block: true, Array: true,
		Parse: parseArray, Serialize: serializeArray, Sanitize: sanitizeArray,
	})
	TWhileArray = mustReg(Std, TypeInfo{
		Name: "WhileArray", Block: true, Array: true, OpenEnded: true,
		Parse: parseWhileArray, Serialize: serializeArray, Sanitize: sanitizeArray,
	})
	TSwitch = mustReg(Std, TypeInfo{
		Name: "Switch", Block: true, VarSize: false,
		Parse: parseSwitch, Serialize: serializeSwitch, Sanitize: sanitizeSwitch,
	})
	TUnion = mustReg(Std, TypeInfo{
		Name: "Union", Block: true,
		Parse: parseUnion, Serialize: serializeUnion, Sanitize: sanitizeUnion,
	})
	TStreamAdapter = mustReg(Std, TypeInfo{
		Name: "StreamAdapter", Block: true, VarSize: false,
		Parse: parseStream, Serialize: serializeStream, Sanitize: sanitizeStream,
	})
)

func init() {
	Std.Freeze()
}

// RegisterStandard adds the whole standard catalog to an independent
// registry, so custom types can live beside it without touching Std.
// Base-name aliases of endian pairs carry over.
func RegisterStandard(r *Registry) error {
	Std.mu.RLock()
	defer Std.mu.RUnlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("%w: cannot register standard types", binio.ErrFrozen)
	}
	for name, t := range Std.byName {
		if _, ok := r.byName[name]; ok {
			return fmt.Errorf("%w: type %q already registered", binio.ErrDescriptor, name)
		}
		r.byName[name] = t
	}
	return nil
}
