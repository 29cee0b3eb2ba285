package field

import (
	"encoding/binary"
	"fmt"

	"github.com/binstruct/bindef/binio"
)

// parseFixedData reads a fixed-size value field.
func parseFixedData(ft *Type, d *Desc, ctx *ParseCtx, parent Block, key Key, off int64) (int64, error) {
	raw, err := ctx.Buf.ReadAt(ctx.RootOffset+off, ft.size)
	if err != nil {
		return off, frame(err, d, key, off)
	}
	v, err := ft.decoder(ft, raw, d, parent, key)
	if err != nil {
		return off, frame(err, d, key, off)
	}
	if err := parent.setChild(key, v); err != nil {
		return off, frame(err, d, key, off)
	}
	return off + ft.size, nil
}

// parseData reads a variable-size value field whose size comes from its
// SIZE rule.
func parseData(ft *Type, d *Desc, ctx *ParseCtx, parent Block, key Key, off int64) (int64, error) {
	size, err := nodeSize(d, parent, nil, key, ctx.Buf, ctx.RootOffset, off)
	if err != nil {
		return off, frame(err, d, key, off)
	}
	if size < 0 || size > binio.TooBig {
		return off, frame(fmt.Errorf("%w: size %d", binio.ErrMalformed, size), d, key, off)
	}
	raw, err := ctx.Buf.ReadAt(ctx.RootOffset+off, size)
	if err != nil {
		return off, frame(err, d, key, off)
	}
	v, err := ft.decoder(ft, raw, d, parent, key)
	if err != nil {
		return off, frame(err, d, key, off)
	}
	if err := parent.setChild(key, v); err != nil {
		return off, frame(err, d, key, off)
	}
	return off + size, nil
}

// parseCString scans for the type's delimiter, retrying past matches that
// land inside a multi-byte character, and consumes the delimiter with the
// text.
func parseCString(ft *Type, d *Desc, ctx *ParseCtx, parent Block, key Key, off int64) (int64, error) {
	start := ctx.RootOffset + off
	cs := ft.charSize
	if cs <= 0 {
		cs = 1
	}

	from := start
	var end int64
	for {
		i := ctx.Buf.Find(ft.delimiter, from)
		if i < 0 {
			return off, frame(fmt.Errorf("%w: unterminated %s", binio.ErrMalformed, ft.name),
				d, key, off)
		}
		if (i-start)%cs == 0 {
			end = i
			break
		}
		from = i + 1
	}

	size := end - start + cs
	raw, err := ctx.Buf.ReadAt(start, size)
	if err != nil {
		return off, frame(err, d, key, off)
	}
	v, err := ft.decoder(ft, raw, d, parent, key)
	if err != nil {
		return off, frame(err, d, key, off)
	}
	if err := parent.setChild(key, v); err != nil {
		return off, frame(err, d, key, off)
	}
	return off + size, nil
}

// parseBytes reads a raw byte region, honoring POINTER: the bytes may live
// elsewhere in the buffer while the sequential offset stays put.
func parseBytes(ft *Type, d *Desc, ctx *ParseCtx, parent Block, key Key, off int64) (int64, error) {
	readOff := off
	if d.Pointer.IsSet() {
		p, err := resolvePointer(d, parent, nil, key, ctx.Buf, ctx.RootOffset, off)
		if err != nil {
			return off, frame(err, d, key, off)
		}
		readOff = p
	}

	size, err := nodeSize(d, parent, nil, key, ctx.Buf, ctx.RootOffset, readOff)
	if err != nil {
		return off, frame(err, d, key, off)
	}
	if size < 0 || size > binio.TooBig {
		return off, frame(fmt.Errorf("%w: size %d", binio.ErrMalformed, size), d, key, off)
	}
	raw, err := ctx.Buf.ReadAt(ctx.RootOffset+readOff, size)
	if err != nil {
		return off, frame(err, d, key, off)
	}
	v, err := ft.decoder(ft, raw, d, parent, key)
	if err != nil {
		return off, frame(err, d, key, off)
	}
	if err := parent.setChild(key, v); err != nil {
		return off, frame(err, d, key, off)
	}
	if d.Pointer.IsSet() {
		return off, nil
	}
	return off + size, nil
}

// parsePad skips the pad's span. Nothing is stored; the slot keeps nil.
func parsePad(ft *Type, d *Desc, ctx *ParseCtx, parent Block, key Key, off int64) (int64, error) {
	size, err := nodeSize(d, parent, nil, key, ctx.Buf, ctx.RootOffset, off)
	if err != nil {
		return off, frame(err, d, key, off)
	}
	if size < 0 {
		return off, frame(fmt.Errorf("%w: pad size %d", binio.ErrMalformed, size), d, key, off)
	}
	return off + size, nil
}

// parseVoid stores a placeholder and consumes nothing.
func parseVoid(ft *Type, d *Desc, ctx *ParseCtx, parent Block, key Key, off int64) (int64, error) {
	if err := parent.setChild(key, NewVoidBlock(d, parent)); err != nil {
		return off, frame(err, d, key, off)
	}
	return off, nil
}

// parseBitStruct reads the whole span as a single integer in the struct's
// byte order and hands it to each bit field's decoder.
func parseBitStruct(ft *Type, d *Desc, ctx *ParseCtx, parent Block, key Key, off int64) (int64, error) {
	if err := ctx.enter(); err != nil {
		return off, frame(err, d, key, off)
	}
	defer ctx.leave()

	node := NewListBlock(d, parent)
	if err := parent.setChild(key, node); err != nil {
		return off, frame(err, d, key, off)
	}

	orig := off
	if d.Pointer.IsSet() {
		p, err := resolvePointer(d, parent, node, key, ctx.Buf, ctx.RootOffset, off)
		if err != nil {
			return off, frame(err, d, key, off)
		}
		off = p
	} else if d.Align > 1 {
		off = alignUp(off, d.Align)
	}

	size, _ := d.Size.Literal()
	raw, err := ctx.Buf.ReadAt(ctx.RootOffset+off, size)
	if err != nil {
		return off, frame(err, d, key, off)
	}
	rawint := loadUint(raw, ft.endian)

	for i := range d.Entries {
		cd := d.Entries[i]
		v, err := cd.Type.bitDecoder(cd.Type, rawint, cd, node, At(i))
		if err != nil {
			return off, frame(err, d, key, off)
		}
		if err := node.setChild(At(i), v); err != nil {
			return off, frame(err, d, key, off)
		}
	}

	off += size
	if d.Pointer.IsSet() {
		return orig, nil
	}
	return off, nil
}

// loadUint assembles up to 8 bytes into an integer per byte order.
func loadUint(raw []byte, e Endian) uint64 {
	var v uint64
	if e == EndianBig {
		for _, b := range raw {
			v = v<<8 | uint64(b)
		}
		return v
	}
	for i := len(raw) - 1; i >= 0; i-- {
		v = v<<8 | uint64(raw[i])
	}
	return v
}

// storeUint is the inverse of loadUint.
func storeUint(v uint64, n int64, e Endian) []byte {
	var buf [8]byte
	if e == EndianBig {
		binary.BigEndian.PutUint64(buf[:], v)
		return append([]byte(nil), buf[8-n:]...)
	}
	binary.LittleEndian.PutUint64(buf[:], v)
	return append([]byte(nil), buf[:n]...)
}
