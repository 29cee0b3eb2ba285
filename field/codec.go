package field

import (
	"fmt"
	"math"
	"math/big"
	"time"
	"unicode/utf16"

	"github.com/binstruct/bindef/binio"
)

// Scalar values follow fixed conventions: unsigned integers decode to
// uint64, signed to int64, floats to float64, strings to string, raw bytes
// to []byte, timestamps to time.Time. Encoders are lenient about which Go
// integer kind they are handed so hand-built trees do not need casts.

func toUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case uint32:
		return uint64(n), nil
	case uint16:
		return uint64(n), nil
	case uint8:
		return uint64(n), nil
	case uint:
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("%w: negative value %d for unsigned field", binio.ErrMalformed, n)
		}
		return uint64(n), nil
	case int32:
		return toUint64(int64(n))
	case int16:
		return toUint64(int64(n))
	case int8:
		return toUint64(int64(n))
	case int:
		return toUint64(int64(n))
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: %T is not an integer", binio.ErrMalformed, v)
	}
}

func toSigned64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d overflows a signed field", binio.ErrMalformed, n)
		}
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint:
		return toSigned64(uint64(n))
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: %T is not an integer", binio.ErrMalformed, v)
	}
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: %T is not a float", binio.ErrMalformed, v)
	}
}

func decodeUint(ft *Type, raw []byte, d *Desc, parent Block, key Key) (any, error) {
	return loadUint(raw, ft.endian), nil
}

func encodeUint(ft *Type, node any, d *Desc, parent Block, key Key) ([]byte, error) {
	u, err := toUint64(node)
	if err != nil {
		return nil, err
	}
	if ft.size < 8 && u >= 1<<(uint(ft.size)*8) {
		return nil, fmt.Errorf("%w: %d overflows %s", binio.ErrMalformed, u, ft.name)
	}
	return storeUint(u, ft.size, ft.endian), nil
}

func decodeSint(ft *Type, raw []byte, d *Desc, parent Block, key Key) (any, error) {
	u := loadUint(raw, ft.endian)
	bits := uint(len(raw)) * 8
	if bits < 64 && u&(1<<(bits-1)) != 0 {
		return int64(u) - (1 << bits), nil
	}
	return int64(u), nil
}

func encodeSint(ft *Type, node any, d *Desc, parent Block, key Key) ([]byte, error) {
	n, err := toSigned64(node)
	if err != nil {
		return nil, err
	}
	bits := uint(ft.size) * 8
	if bits < 64 {
		lo, hi := int64(-1)<<(bits-1), int64(1)<<(bits-1)-1
		if n < lo || n > hi {
			return nil, fmt.Errorf("%w: %d overflows %s", binio.ErrMalformed, n, ft.name)
		}
	}
	return storeUint(uint64(n), ft.size, ft.endian), nil
}

func decodeFloat32(ft *Type, raw []byte, d *Desc, parent Block, key Key) (any, error) {
	return float64(math.Float32frombits(uint32(loadUint(raw, ft.endian)))), nil
}

func encodeFloat32(ft *Type, node any, d *Desc, parent Block, key Key) ([]byte, error) {
	f, err := toFloat64(node)
	if err != nil {
		return nil, err
	}
	return storeUint(uint64(math.Float32bits(float32(f))), 4, ft.endian), nil
}

func decodeFloat64(ft *Type, raw []byte, d *Desc, parent Block, key Key) (any, error) {
	return math.Float64frombits(loadUint(raw, ft.endian)), nil
}

func encodeFloat64(ft *Type, node any, d *Desc, parent Block, key Key) ([]byte, error) {
	f, err := toFloat64(node)
	if err != nil {
		return nil, err
	}
	return storeUint(math.Float64bits(f), 8, ft.endian), nil
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// decodeBigUint handles unsigned integers wider than 8 bytes.
func decodeBigUint(ft *Type, raw []byte, d *Desc, parent Block, key Key) (any, error) {
	be := raw
	if ft.endian != EndianBig {
		be = reverseBytes(raw)
	}
	return new(big.Int).SetBytes(be), nil
}

func encodeBigUint(ft *Type, node any, d *Desc, parent Block, key Key) ([]byte, error) {
	n, ok := node.(*big.Int)
	if !ok {
		u, err := toUint64(node)
		if err != nil {
			return nil, err
		}
		n = new(big.Int).SetUint64(u)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative value for %s", binio.ErrMalformed, ft.name)
	}
	size, err := bigSize(ft, node, d)
	if err != nil {
		return nil, err
	}
	if int64(n.BitLen()) > size*8 {
		return nil, fmt.Errorf("%w: %s value needs %d bits, size allows %d",
			binio.ErrMalformed, ft.name, n.BitLen(), size*8)
	}
	be := make([]byte, size)
	n.FillBytes(be)
	if ft.endian != EndianBig {
		return reverseBytes(be), nil
	}
	return be, nil
}

// decodeBigSint is the twos-complement counterpart, sized by its SIZE rule.
func decodeBigSint(ft *Type, raw []byte, d *Desc, parent Block, key Key) (any, error) {
	be := raw
	if ft.endian != EndianBig {
		be = reverseBytes(raw)
	}
	n := new(big.Int).SetBytes(be)
	if len(be) > 0 && be[0]&0x80 != 0 {
		wrap := new(big.Int).Lsh(big.NewInt(1), uint(len(be))*8)
		n.Sub(n, wrap)
	}
	return n, nil
}

func encodeBigSint(ft *Type, node any, d *Desc, parent Block, key Key) ([]byte, error) {
	n, ok := node.(*big.Int)
	if !ok {
		s, err := toSigned64(node)
		if err != nil {
			return nil, err
		}
		n = big.NewInt(s)
	}
	size, serr := bigSize(ft, node, d)
	if serr != nil {
		return nil, serr
	}
	if int64(n.BitLen()) >= size*8 {
		return nil, fmt.Errorf("%w: %s value needs %d bits, size allows %d",
			binio.ErrMalformed, ft.name, n.BitLen()+1, size*8)
	}
	v := new(big.Int).Set(n)
	if v.Sign() < 0 {
		wrap := new(big.Int).Lsh(big.NewInt(1), uint(size)*8)
		v.Add(v, wrap)
	}
	be := make([]byte, size)
	v.FillBytes(be)
	if ft.endian != EndianBig {
		return reverseBytes(be), nil
	}
	return be, nil
}

// bigSize resolves the byte width a big integer serializes to: the literal
// SIZE when declared, otherwise the minimum width holding the value.
func bigSize(ft *Type, node any, d *Desc) (int64, error) {
	if n, ok := d.Size.Literal(); ok {
		return n, nil
	}
	if ft != nil && ft.sizeCalc != nil {
		return ft.sizeCalc(ft, node, d)
	}
	return sizeCalcBigSint(ft, node, d)
}

func decodeTimestamp(ft *Type, raw []byte, d *Desc, parent Block, key Key) (any, error) {
	return time.Unix(int64(loadUint(raw, ft.endian)), 0).UTC(), nil
}

func encodeTimestamp(ft *Type, node any, d *Desc, parent Block, key Key) ([]byte, error) {
	var secs int64
	switch t := node.(type) {
	case time.Time:
		secs = t.Unix()
	case nil:
		secs = 0
	default:
		n, err := toSigned64(node)
		if err != nil {
			return nil, fmt.Errorf("%w: %T is not a timestamp", binio.ErrMalformed, node)
		}
		secs = n
	}
	if secs < 0 || secs > math.MaxUint32 {
		return nil, fmt.Errorf("%w: timestamp %d outside 32-bit range", binio.ErrMalformed, secs)
	}
	return storeUint(uint64(secs), ft.size, ft.endian), nil
}

func decodeStr(ft *Type, raw []byte, d *Desc, parent Block, key Key) (any, error) {
	return string(raw), nil
}

func encodeStr(ft *Type, node any, d *Desc, parent Block, key Key) ([]byte, error) {
	s, ok := node.(string)
	if !ok && node != nil {
		return nil, fmt.Errorf("%w: %T is not a string", binio.ErrMalformed, node)
	}
	return []byte(s), nil
}

func decodeCStrAscii(ft *Type, raw []byte, d *Desc, parent Block, key Key) (any, error) {
	if len(raw) < len(ft.delimiter) {
		return nil, fmt.Errorf("%w: %s shorter than its delimiter", binio.ErrMalformed, ft.name)
	}
	return string(raw[:len(raw)-len(ft.delimiter)]), nil
}

func encodeCStrAscii(ft *Type, node any, d *Desc, parent Block, key Key) ([]byte, error) {
	s, ok := node.(string)
	if !ok && node != nil {
		return nil, fmt.Errorf("%w: %T is not a string", binio.ErrMalformed, node)
	}
	out := make([]byte, 0, len(s)+len(ft.delimiter))
	out = append(out, s...)
	return append(out, ft.delimiter...), nil
}

func decodeCStrUtf16(ft *Type, raw []byte, d *Desc, parent Block, key Key) (any, error) {
	if len(raw) < 2 || len(raw)%2 != 0 {
		return nil, fmt.Errorf("%w: odd utf16 byte count %d", binio.ErrMalformed, len(raw))
	}
	text := raw[:len(raw)-2]
	units := make([]uint16, len(text)/2)
	for i := range units {
		units[i] = uint16(loadUint(text[i*2:i*2+2], ft.endian))
	}
	return string(utf16.Decode(units)), nil
}

func encodeCStrUtf16(ft *Type, node any, d *Desc, parent Block, key Key) ([]byte, error) {
	s, ok := node.(string)
	if !ok && node != nil {
		return nil, fmt.Errorf("%w: %T is not a string", binio.ErrMalformed, node)
	}
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, (len(units)+1)*2)
	for _, u := range units {
		out = append(out, storeUint(uint64(u), 2, ft.endian)...)
	}
	return append(out, 0, 0), nil
}

func decodeBytes(ft *Type, raw []byte, d *Desc, parent Block, key Key) (any, error) {
	return append([]byte(nil), raw...), nil
}

func encodeBytes(ft *Type, node any, d *Desc, parent Block, key Key) ([]byte, error) {
	switch b := node.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %T is not a byte slice", binio.ErrMalformed, node)
	}
}

func decodeEnum(ft *Type, raw []byte, d *Desc, parent Block, key Key) (any, error) {
	return NewEnumBlock(d, parent, int64(loadUint(raw, ft.endian))), nil
}

func encodeEnum(ft *Type, node any, d *Desc, parent Block, key Key) ([]byte, error) {
	var v int64
	switch n := node.(type) {
	case *EnumBlock:
		v = n.Value()
	case string:
		i, ok := d.NameMap[n]
		if !ok {
			return nil, fmt.Errorf("%w: enum %s has no option %q", binio.ErrDescriptor, d.Name, n)
		}
		v = d.Entries[i].Value
	default:
		s, err := toSigned64(node)
		if err != nil {
			return nil, err
		}
		v = s
	}
	return storeUint(uint64(v), ft.size, ft.endian), nil
}

func decodeBool(ft *Type, raw []byte, d *Desc, parent Block, key Key) (any, error) {
	return NewBoolBlock(d, parent, int64(loadUint(raw, ft.endian))), nil
}

func encodeBool(ft *Type, node any, d *Desc, parent Block, key Key) ([]byte, error) {
	var v int64
	switch n := node.(type) {
	case *BoolBlock:
		v = n.Value()
	default:
		s, err := toSigned64(node)
		if err != nil {
			return nil, err
		}
		v = s
	}
	return storeUint(uint64(v), ft.size, ft.endian), nil
}

// bitParams resolves a bit field's position and width from the parent bit
// struct's offset table.
func bitParams(ft *Type, d *Desc, parent Block, key Key) (off, width uint, mask uint64, err error) {
	pd := parent.Desc()
	if key.Index < 0 || key.Index >= len(pd.AttrOffs) {
		return 0, 0, 0, fmt.Errorf("%w: bit field %s has no offset entry",
			binio.ErrDescriptor, d.Name)
	}
	off = uint(pd.AttrOffs[key.Index])
	width = uint(ft.size)
	if n, ok := d.Size.Literal(); ok {
		width = uint(n)
	}
	if width == 0 || width > 64 || off+width > 64 {
		return 0, 0, 0, fmt.Errorf("%w: bit field %s spans bits %d..%d",
			binio.ErrDescriptor, d.Name, off, off+width)
	}
	if width == 64 {
		mask = ^uint64(0)
	} else {
		mask = 1<<width - 1
	}
	return off, width, mask, nil
}

func bitDecodeUint(ft *Type, rawint uint64, d *Desc, parent Block, key Key) (any, error) {
	off, _, mask, err := bitParams(ft, d, parent, key)
	if err != nil {
		return nil, err
	}
	return (rawint >> off) & mask, nil
}

func bitEncodeUint(ft *Type, node any, d *Desc, parent Block, key Key) (BitField, error) {
	off, _, mask, err := bitParams(ft, d, parent, key)
	if err != nil {
		return BitField{}, err
	}
	u, err := toUint64(node)
	if err != nil {
		return BitField{}, err
	}
	if u&^mask != 0 {
		return BitField{}, fmt.Errorf("%w: %d overflows %d-bit field %s",
			binio.ErrMalformed, u, popWidth(mask), d.Name)
	}
	return BitField{Bits: (u & mask) << off, Mask: mask << off}, nil
}

// bitDecodeSint decodes a twos-complement bit field.
func bitDecodeSint(ft *Type, rawint uint64, d *Desc, parent Block, key Key) (any, error) {
	off, width, mask, err := bitParams(ft, d, parent, key)
	if err != nil {
		return nil, err
	}
	u := (rawint >> off) & mask
	if width < 64 && u&(1<<(width-1)) != 0 {
		return int64(u) - (1 << width), nil
	}
	return int64(u), nil
}

func bitEncodeSint(ft *Type, node any, d *Desc, parent Block, key Key) (BitField, error) {
	off, width, mask, err := bitParams(ft, d, parent, key)
	if err != nil {
		return BitField{}, err
	}
	n, err := toSigned64(node)
	if err != nil {
		return BitField{}, err
	}
	if width < 64 {
		lo, hi := int64(-1)<<(width-1), int64(1)<<(width-1)-1
		if n < lo || n > hi {
			return BitField{}, fmt.Errorf("%w: %d overflows %d-bit field %s",
				binio.ErrMalformed, n, width, d.Name)
		}
	}
	return BitField{Bits: (uint64(n) & mask) << off, Mask: mask << off}, nil
}

// bitDecode1sSint decodes a ones-complement bit field: the all-ones pattern
// is negative zero and decodes to 0.
func bitDecode1sSint(ft *Type, rawint uint64, d *Desc, parent Block, key Key) (any, error) {
	off, width, mask, err := bitParams(ft, d, parent, key)
	if err != nil {
		return nil, err
	}
	u := (rawint >> off) & mask
	if width < 64 && u&(1<<(width-1)) != 0 {
		return -int64(^u & mask), nil
	}
	return int64(u), nil
}

func bitEncode1sSint(ft *Type, node any, d *Desc, parent Block, key Key) (BitField, error) {
	off, width, mask, err := bitParams(ft, d, parent, key)
	if err != nil {
		return BitField{}, err
	}
	n, err := toSigned64(node)
	if err != nil {
		return BitField{}, err
	}
	if width < 64 {
		lim := int64(1)<<(width-1) - 1
		if n < -lim || n > lim {
			return BitField{}, fmt.Errorf("%w: %d overflows %d-bit field %s",
				binio.ErrMalformed, n, width, d.Name)
		}
	}
	u := uint64(n)
	if n < 0 {
		u = ^uint64(-n) & mask
	}
	return BitField{Bits: (u & mask) << off, Mask: mask << off}, nil
}

func popWidth(mask uint64) int {
	w := 0
	for mask != 0 {
		w++
		mask >>= 1
	}
	return w
}

func sizeCalcStr(ft *Type, node any, d *Desc) (int64, error) {
	s, _ := node.(string)
	return int64(len(s)), nil
}

func sizeCalcCStrAscii(ft *Type, node any, d *Desc) (int64, error) {
	s, _ := node.(string)
	return int64(len(s) + len(ft.delimiter)), nil
}

func sizeCalcCStrUtf16(ft *Type, node any, d *Desc) (int64, error) {
	s, _ := node.(string)
	return int64((len(utf16.Encode([]rune(s))) + 1) * 2), nil
}

func sizeCalcBytes(ft *Type, node any, d *Desc) (int64, error) {
	b, _ := node.([]byte)
	return int64(len(b)), nil
}

func sizeCalcBigUint(ft *Type, node any, d *Desc) (int64, error) {
	n, ok := node.(*big.Int)
	if !ok {
		return 8, nil
	}
	size := int64((n.BitLen() + 7) / 8)
	if size < 1 {
		size = 1
	}
	return size, nil
}

// sizeCalcBigSint leaves room for the sign bit.
func sizeCalcBigSint(ft *Type, node any, d *Desc) (int64, error) {
	n, ok := node.(*big.Int)
	if !ok {
		return 8, nil
	}
	size := int64((n.BitLen() + 8) / 8)
	if size < 1 {
		size = 1
	}
	return size, nil
}

// sizeCalcBits reports a bit field's declared width; bit fields have no
// intrinsic one.
func sizeCalcBits(ft *Type, node any, d *Desc) (int64, error) {
	if n, ok := d.Size.Literal(); ok {
		return n, nil
	}
	return ft.size, nil
}
