package field

import (
	"fmt"

	"github.com/binstruct/bindef/binio"
)

// serializeFixedData writes a fixed-size value field.
func serializeFixedData(ft *Type, node any, d *Desc, ctx *SerializeCtx, parent Block, key Key, off int64) (int64, error) {
	raw, err := ft.encoder(ft, node, d, parent, key)
	if err != nil {
		return off, frame(err, d, key, off)
	}
	if int64(len(raw)) != ft.size {
		return off, frame(fmt.Errorf("%w: %s encoded to %d bytes, want %d",
			binio.ErrMalformed, ft.name, len(raw), ft.size), d, key, off)
	}
	if err := ctx.Buf.WriteAt(ctx.RootOffset+off, raw); err != nil {
		return off, frame(err, d, key, off)
	}
	return off + ft.size, nil
}

// serializeData writes a variable-size value field, zero padding up to the
// declared size when the value encodes shorter. Encoding longer than a
// declared size is an error; the layout would shift underneath every
// following field.
func serializeData(ft *Type, node any, d *Desc, ctx *SerializeCtx, parent Block, key Key, off int64) (int64, error) {
	raw, err := ft.encoder(ft, node, d, parent, key)
	if err != nil {
		return off, frame(err, d, key, off)
	}

	size := int64(len(raw))
	if d.Size.IsSet() {
		size, err = nodeSize(d, parent, node, key, nil, ctx.RootOffset, off)
		if err != nil {
			return off, frame(err, d, key, off)
		}
		if int64(len(raw)) > size {
			return off, frame(fmt.Errorf("%w: %s value needs %d bytes, size says %d",
				binio.ErrMalformed, d.Name, len(raw), size), d, key, off)
		}
	}

	if err := ctx.Buf.WriteAt(ctx.RootOffset+off, raw); err != nil {
		return off, frame(err, d, key, off)
	}
	if pad := size - int64(len(raw)); pad > 0 {
		if err := ctx.Buf.ZeroFill(ctx.RootOffset+off+int64(len(raw)), pad); err != nil {
			return off, frame(err, d, key, off)
		}
	}
	return off + size, nil
}

// serializeCString writes the text and its delimiter.
func serializeCString(ft *Type, node any, d *Desc, ctx *SerializeCtx, parent Block, key Key, off int64) (int64, error) {
	raw, err := ft.encoder(ft, node, d, parent, key)
	if err != nil {
		return off, frame(err, d, key, off)
	}
	if err := ctx.Buf.WriteAt(ctx.RootOffset+off, raw); err != nil {
		return off, frame(err, d, key, off)
	}
	return off + int64(len(raw)), nil
}

// serializeBytes writes a raw byte region, honoring POINTER like its
// parser does.
func serializeBytes(ft *Type, node any, d *Desc, ctx *SerializeCtx, parent Block, key Key, off int64) (int64, error) {
	raw, err := ft.encoder(ft, node, d, parent, key)
	if err != nil {
		return off, frame(err, d, key, off)
	}

	writeOff := off
	if d.Pointer.IsSet() {
		p, perr := resolvePointer(d, parent, node, key, nil, ctx.RootOffset, off)
		if perr != nil {
			return off, frame(perr, d, key, off)
		}
		writeOff = p
	}

	size := int64(len(raw))
	if d.Size.IsSet() {
		size, err = nodeSize(d, parent, node, key, nil, ctx.RootOffset, writeOff)
		if err != nil {
			return off, frame(err, d, key, off)
		}
		if int64(len(raw)) > size {
			return off, frame(fmt.Errorf("%w: %s value needs %d bytes, size says %d",
				binio.ErrMalformed, d.Name, len(raw), size), d, key, off)
		}
	}

	if err := ctx.Buf.WriteAt(ctx.RootOffset+writeOff, raw); err != nil {
		return off, frame(err, d, key, off)
	}
	if pad := size - int64(len(raw)); pad > 0 {
		if err := ctx.Buf.ZeroFill(ctx.RootOffset+writeOff+int64(len(raw)), pad); err != nil {
			return off, frame(err, d, key, off)
		}
	}

	if d.Pointer.IsSet() {
		return off, nil
	}
	return off + size, nil
}

// serializePad zero fills the pad's span.
func serializePad(ft *Type, node any, d *Desc, ctx *SerializeCtx, parent Block, key Key, off int64) (int64, error) {
	size, err := nodeSize(d, parent, node, key, nil, ctx.RootOffset, off)
	if err != nil {
		return off, frame(err, d, key, off)
	}
	if size < 0 {
		return off, frame(fmt.Errorf("%w: pad size %d", binio.ErrMalformed, size), d, key, off)
	}
	if err := ctx.Buf.ZeroFill(ctx.RootOffset+off, size); err != nil {
		return off, frame(err, d, key, off)
	}
	return off + size, nil
}

// serializeVoid writes nothing.
func serializeVoid(ft *Type, node any, d *Desc, ctx *SerializeCtx, parent Block, key Key, off int64) (int64, error) {
	return off, nil
}
