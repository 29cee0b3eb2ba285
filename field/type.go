package field

import (
	"fmt"

	"github.com/binstruct/bindef/binio"
)

// ParseFunc reads the node described by d from ctx.Buf at offset, stores it
// in parent at key, and returns the offset one past the last byte consumed
// sequentially. Pointer-addressed reads seek away and come back; the
// returned offset never reflects them.
type ParseFunc func(ft *Type, d *Desc, ctx *ParseCtx, parent Block, key Key, offset int64) (int64, error)

// SerializeFunc writes node (whose descriptor is d) into ctx.Buf at offset
// and returns the offset one past the last byte written sequentially.
type SerializeFunc func(ft *Type, node any, d *Desc, ctx *SerializeCtx, parent Block, key Key, offset int64) (int64, error)

// DecodeFunc converts raw bytes into the in-memory value for a data field.
type DecodeFunc func(ft *Type, raw []byte, d *Desc, parent Block, key Key) (any, error)

// EncodeFunc converts an in-memory value back into its raw bytes.
type EncodeFunc func(ft *Type, node any, d *Desc, parent Block, key Key) ([]byte, error)

// BitDecodeFunc extracts a bit field's value from the whole bit struct span
// decoded as one unsigned integer.
type BitDecodeFunc func(ft *Type, rawint uint64, d *Desc, parent Block, key Key) (any, error)

// BitEncodeFunc converts a bit field's value into its positioned bit pattern
// for OR-accumulation into the parent bit struct.
type BitEncodeFunc func(ft *Type, node any, d *Desc, parent Block, key Key) (BitField, error)

// BitField is one bit field's contribution to its parent bit struct: the
// value already masked and shifted into position, and the mask of the bits
// it owns.
type BitField struct {
	Bits uint64
	Mask uint64
}

// SizeCalcFunc measures the byte size of an existing node when the
// descriptor does not pin it.
type SizeCalcFunc func(ft *Type, node any, d *Desc) (int64, error)

// SanitizeFunc converts one Raw descriptor into its canonical Desc,
// reporting problems through bd. It must always return a usable Desc even
// after reporting errors so sanitization can continue and collect every
// problem in the tree.
type SanitizeFunc func(bd *BlockDef, raw *Raw, st *SanCtx) *Desc

// TypeInfo describes a field type for registration. Zero-value fields that
// a type kind requires are filled with that kind's defaults by Register.
type TypeInfo struct {
	// Name is the registry name, without endianness suffix.
	Name string

	// Size is the fixed byte size of the type, 0 for variable-size types.
	// For bit-based types it is the bit count instead.
	Size int64

	// Endian is EndianNone for types where byte order has no meaning.
	// Types registered with RegisterPair get it filled per variant.
	Endian Endian

	// Classification flags. Block types produce hierarchy nodes; Data types
	// produce values. Exactly one of the two must be set.
	Data      bool
	Block     bool
	Struct    bool
	Container bool
	Array     bool
	BitBased  bool
	VarSize   bool
	OpenEnded bool
	Str       bool
	StrNull   bool
	Enum      bool
	Bool      bool
	Raw       bool

	// Delimiter terminates null-delimited string types.
	Delimiter []byte

	// CharSize is the bytes-per-character of string types.
	CharSize int64

	// Default is the value a node of this type gets when built without
	// data and without a descriptor DEFAULT. DefaultFunc takes priority
	// when set; use it for mutable defaults like byte slices.
	Default     any
	DefaultFunc func() any

	Parse     ParseFunc
	Serialize SerializeFunc
	Decode    DecodeFunc
	Encode    EncodeFunc
	BitDecode BitDecodeFunc
	BitEncode BitEncodeFunc
	SizeCalc  SizeCalcFunc
	Sanitize  SanitizeFunc
}

// Type is an immutable field type: the unit of dispatch for sanitization,
// parsing, serialization and value conversion. Types are created by
// registering a TypeInfo and never change afterwards, so they are safe to
// share between goroutines and descriptors.
type Type struct {
	name      string
	size      int64
	endian    Endian
	delimiter []byte
	charSize  int64

	isData      bool
	isBlock     bool
	isStruct    bool
	isContainer bool
	isArray     bool
	isBitBased  bool
	isVarSize   bool
	isOpenEnded bool
	isStr       bool
	isStrNull   bool
	isEnum      bool
	isBool      bool
	isRaw       bool

	defaultVal  any
	defaultFunc func() any

	parser     ParseFunc
	serializer SerializeFunc
	decoder    DecodeFunc
	encoder    EncodeFunc
	bitDecoder BitDecodeFunc
	bitEncoder BitEncodeFunc
	sizeCalc   SizeCalcFunc
	sanitizer  SanitizeFunc

	// little and big point at the endianness variants of this type.
	// For endian-agnostic types both point back at the type itself.
	little *Type
	big    *Type
}

// Name returns the registry name of the type, including any endianness
// suffix ("UInt32LE").
func (t *Type) Name() string { return t.name }

// Size returns the fixed byte size of the type, or 0 for variable-size
// types. For bit-based types the unit is bits.
func (t *Type) Size() int64 { return t.size }

// Endian returns the byte order of this variant.
func (t *Type) Endian() Endian { return t.endian }

// Little returns the little-endian variant of this type.
func (t *Type) Little() *Type { return t.little }

// Big returns the big-endian variant of this type.
func (t *Type) Big() *Type { return t.big }

// Delimiter returns the terminator of null-delimited string types.
func (t *Type) Delimiter() []byte { return t.delimiter }

// CharSize returns the bytes-per-character of string types, 0 otherwise.
func (t *Type) CharSize() int64 { return t.charSize }

func (t *Type) IsData() bool      { return t.isData }
func (t *Type) IsBlock() bool     { return t.isBlock }
func (t *Type) IsStruct() bool    { return t.isStruct }
func (t *Type) IsContainer() bool { return t.isContainer }
func (t *Type) IsArray() bool     { return t.isArray }
func (t *Type) IsBitBased() bool  { return t.isBitBased }
func (t *Type) IsVarSize() bool   { return t.isVarSize }
func (t *Type) IsOpenEnded() bool { return t.isOpenEnded }
func (t *Type) IsStr() bool       { return t.isStr }
func (t *Type) IsEnum() bool      { return t.isEnum }
func (t *Type) IsBool() bool      { return t.isBool }
func (t *Type) IsRaw() bool       { return t.isRaw }

func (t *Type) String() string { return t.name }

// defaultValue returns a fresh default node value for the type.
func (t *Type) defaultValue() any {
	if t.defaultFunc != nil {
		return t.defaultFunc()
	}
	return t.defaultVal
}

func newType(info TypeInfo, name string, endian Endian) (*Type, error) {
	if info.Name == "" {
		return nil, fmt.Errorf("%w: type with empty name", binio.ErrDescriptor)
	}
	if info.Data == info.Block {
		return nil, fmt.Errorf("%w: type %q must be exactly one of data or block",
			binio.ErrDescriptor, info.Name)
	}
	if info.Parse == nil || info.Serialize == nil {
		return nil, fmt.Errorf("%w: type %q missing parser or serializer",
			binio.ErrDescriptor, info.Name)
	}
	if info.Sanitize == nil {
		return nil, fmt.Errorf("%w: type %q missing sanitizer", binio.ErrDescriptor, info.Name)
	}
	if info.Data && !info.BitBased && info.Decode == nil {
		return nil, fmt.Errorf("%w: data type %q missing decoder", binio.ErrDescriptor, info.Name)
	}
	if info.Data && info.BitBased && (info.BitDecode == nil || info.BitEncode == nil) {
		return nil, fmt.Errorf("%w: bit type %q missing bit codec", binio.ErrDescriptor, info.Name)
	}
	if info.VarSize && info.SizeCalc == nil {
		return nil, fmt.Errorf("%w: variable-size type %q missing size calc",
			binio.ErrDescriptor, info.Name)
	}

	t := &Type{
		name:      name,
		size:      info.Size,
		endian:    endian,
		delimiter: append([]byte(nil), info.Delimiter...),
		charSize:  info.CharSize,

		isData:      info.Data,
		isBlock:     info.Block,
		isStruct:    info.Struct,
		isContainer: info.Container,
		isArray:     info.Array,
		isBitBased:  info.BitBased,
		isVarSize:   info.VarSize,
		isOpenEnded: info.OpenEnded,
		isStr:       info.Str,
		isStrNull:   info.StrNull,
		isEnum:      info.Enum,
		isBool:      info.Bool,
		isRaw:       info.Raw,

		defaultVal:  info.Default,
		defaultFunc: info.DefaultFunc,

		parser:     info.Parse,
		serializer: info.Serialize,
		decoder:    info.Decode,
		encoder:    info.Encode,
		bitDecoder: info.BitDecode,
		bitEncoder: info.BitEncode,
		sizeCalc:   info.SizeCalc,
		sanitizer:  info.Sanitize,
	}
	t.little = t
	t.big = t
	return t, nil
}
