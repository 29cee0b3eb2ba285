package field

import (
	"fmt"

	"github.com/binstruct/bindef/binio"
)

// SerializeCtx is the state threaded through one serialization.
type SerializeCtx struct {
	Buf        *binio.Writer
	RootOffset int64
	MaxDepth   int

	depth           int
	steptreeParents *[]Block
}

func (c *SerializeCtx) enter() error {
	max := c.MaxDepth
	if max <= 0 {
		max = DefaultMaxDepth
	}
	c.depth++
	if c.depth > max {
		return fmt.Errorf("%w: %d levels", binio.ErrDepth, c.depth)
	}
	return nil
}

func (c *SerializeCtx) leave() { c.depth-- }

// SerializeOpts adjusts a single serialize call.
type SerializeOpts struct {
	// Offset is where the root lands, relative to RootOffset.
	Offset int64

	// RootOffset shifts every buffer write.
	RootOffset int64

	// MaxDepth overrides the recursion guard; 0 means DefaultMaxDepth.
	MaxDepth int

	// RecomputePointers runs the pointer pre-pass first. The tree is deep
	// copied before the pass so pointer updates (which fork descriptors)
	// never show through to the caller's tree or to concurrent readers.
	RecomputePointers bool
}

// SerializeRoot writes the node tree rooted at node into a fresh buffer and
// returns the bytes along with the offset one past the last sequential
// write.
func SerializeRoot(node Block, opts *SerializeOpts) ([]byte, int64, error) {
	if opts == nil {
		opts = &SerializeOpts{}
	}
	if node == nil {
		return nil, 0, fmt.Errorf("%w: nil root node", binio.ErrDescriptor)
	}

	if opts.RecomputePointers {
		cp, err := CopyTree(node, nil)
		if err != nil {
			return nil, 0, err
		}
		node = cp.(Block)
		if err := SetPointers(node, opts.Offset); err != nil {
			return nil, 0, err
		}
	}

	ctx := &SerializeCtx{
		Buf:        binio.NewWriter(),
		RootOffset: opts.RootOffset,
		MaxDepth:   opts.MaxDepth,
	}
	d := node.Desc()
	end, err := d.Type.serializer(d.Type, node, d, ctx, nil, Key{}, opts.Offset)
	if err != nil {
		return nil, end, err
	}
	return ctx.Buf.Bytes(), end, nil
}

// childDesc picks the descriptor governing a child value: the child's own
// (possibly forked) descriptor when it is a Block, else the template entry.
func childDesc(v any, fallback *Desc) *Desc {
	if b, ok := v.(Block); ok && b != nil {
		return b.Desc()
	}
	return fallback
}

// serializeContainer writes each entry in order, then any steptrees queued
// below this node if it is the steptree root.
func serializeContainer(ft *Type, node any, d *Desc, ctx *SerializeCtx, parent Block, key Key, off int64) (int64, error) {
	if err := ctx.enter(); err != nil {
		return off, frame(err, d, key, off)
	}
	defer ctx.leave()

	b, ok := node.(Block)
	if !ok || b == nil {
		return off, frame(fmt.Errorf("%w: missing node", binio.ErrMalformed), d, key, off)
	}

	var parents []Block
	isSteptreeRoot := ctx.steptreeParents == nil
	if isSteptreeRoot {
		ctx.steptreeParents = &parents
	}
	if d.Steptree != nil {
		*ctx.steptreeParents = append(*ctx.steptreeParents, b)
	}

	orig := off
	if d.Pointer.IsSet() {
		p, err := resolvePointer(d, parent, node, key, nil, ctx.RootOffset, off)
		if err != nil {
			return off, frame(err, d, key, off)
		}
		off = p
	} else if d.Align > 1 {
		off = alignUp(off, d.Align)
	}

	var err error
	for i := range d.Entries {
		cv, cerr := b.child(At(i))
		if cerr != nil {
			return off, frame(cerr, d, key, off)
		}
		cd := childDesc(cv, d.Entries[i])
		off, err = cd.Type.serializer(cd.Type, cv, cd, ctx, b, At(i), off)
		if err != nil {
			return off, frame(err, d, key, off)
		}
	}

	if isSteptreeRoot {
		ctx.steptreeParents = nil
		if off, err = serializeSteptrees(ctx, parents, off); err != nil {
			return off, frame(err, d, key, off)
		}
	}
	if d.Pointer.IsSet() {
		return orig, nil
	}
	return off, nil
}

func serializeSteptrees(ctx *SerializeCtx, parents []Block, off int64) (int64, error) {
	var err error
	for _, p := range parents {
		sv, cerr := p.child(keySteptree)
		if cerr != nil {
			return off, cerr
		}
		sd := childDesc(sv, p.Desc().Steptree)
		if sd == nil {
			continue
		}
		off, err = sd.Type.serializer(sd.Type, sv, sd, ctx, p, keySteptree, off)
		if err != nil {
			return off, err
		}
	}
	return off, nil
}

// serializeStruct zero fills the struct's span, then writes each entry at
// its table offset. Pad gaps therefore serialize as zeroes.
func serializeStruct(ft *Type, node any, d *Desc, ctx *SerializeCtx, parent Block, key Key, off int64) (int64, error) {
	if err := ctx.enter(); err != nil {
		return off, frame(err, d, key, off)
	}
	defer ctx.leave()

	b, ok := node.(Block)
	if !ok || b == nil {
		return off, frame(fmt.Errorf("%w: missing node", binio.ErrMalformed), d, key, off)
	}

	var parents []Block
	isSteptreeRoot := ctx.steptreeParents == nil
	if isSteptreeRoot {
		ctx.steptreeParents = &parents
	}
	if d.Steptree != nil {
		*ctx.steptreeParents = append(*ctx.steptreeParents, b)
	}

	orig := off
	if d.Pointer.IsSet() {
		p, err := resolvePointer(d, parent, node, key, nil, ctx.RootOffset, off)
		if err != nil {
			return off, frame(err, d, key, off)
		}
		off = p
	} else if d.Align > 1 {
		off = alignUp(off, d.Align)
	}

	size, _ := d.Size.Literal()
	if err := ctx.Buf.ZeroFill(ctx.RootOffset+off, size); err != nil {
		return off, frame(err, d, key, off)
	}

	for i := range d.Entries {
		cv, cerr := b.child(At(i))
		if cerr != nil {
			return off, frame(cerr, d, key, off)
		}
		cd := childDesc(cv, d.Entries[i])
		if _, err := cd.Type.serializer(cd.Type, cv, cd, ctx, b, At(i), off+d.AttrOffs[i]); err != nil {
			return off, frame(err, d, key, off)
		}
	}
	off += size

	if isSteptreeRoot {
		ctx.steptreeParents = nil
		var err error
		if off, err = serializeSteptrees(ctx, parents, off); err != nil {
			return off, frame(err, d, key, off)
		}
	}
	if d.Pointer.IsSet() {
		return orig, nil
	}
	return off, nil
}

// serializeArray writes the elements the node actually holds; the declared
// count was kept in step by the editing operations.
func serializeArray(ft *Type, node any, d *Desc, ctx *SerializeCtx, parent Block, key Key, off int64) (int64, error) {
	if err := ctx.enter(); err != nil {
		return off, frame(err, d, key, off)
	}
	defer ctx.leave()

	b, ok := node.(*ArrayBlock)
	if !ok || b == nil {
		return off, frame(fmt.Errorf("%w: missing node", binio.ErrMalformed), d, key, off)
	}

	var parents []Block
	isSteptreeRoot := ctx.steptreeParents == nil
	if isSteptreeRoot {
		ctx.steptreeParents = &parents
	}
	if d.Steptree != nil {
		*ctx.steptreeParents = append(*ctx.steptreeParents, b)
	}

	orig := off
	if d.Pointer.IsSet() {
		p, err := resolvePointer(d, parent, node, key, nil, ctx.RootOffset, off)
		if err != nil {
			return off, frame(err, d, key, off)
		}
		off = p
	} else if d.Align > 1 {
		off = alignUp(off, d.Align)
	}

	var err error
	for i := 0; i < len(b.entries); i++ {
		cv := b.entries[i]
		cd := childDesc(cv, d.SubStruct)
		off, err = cd.Type.serializer(cd.Type, cv, cd, ctx, b, At(i), off)
		if err != nil {
			return off, frame(err, d, key, off)
		}
	}

	if isSteptreeRoot {
		ctx.steptreeParents = nil
		if off, err = serializeSteptrees(ctx, parents, off); err != nil {
			return off, frame(err, d, key, off)
		}
	}
	if d.Pointer.IsSet() {
		return orig, nil
	}
	return off, nil
}

// serializeSwitch only runs when a switch slot holds a bare value with no
// descriptor of its own; parsed and default-built trees store the case
// node, whose own descriptor dispatches directly.
func serializeSwitch(ft *Type, node any, d *Desc, ctx *SerializeCtx, parent Block, key Key, off int64) (int64, error) {
	ck, err := d.Case.Resolve(&RuleCtx{
		Parent:     parent,
		Node:       node,
		Key:        key,
		RootOffset: ctx.RootOffset,
		Offset:     off,
	})
	if err != nil {
		return off, frame(err, d, key, off)
	}
	cd := d.DefaultCase
	if i, ok := d.CaseMap[ck]; ok {
		cd = d.Entries[i]
	}
	end, err := cd.Type.serializer(cd.Type, node, cd, ctx, parent, key, off)
	return end, frame(err, d, key, off)
}

// serializeUnion flushes any decoded case view and writes the raw region.
func serializeUnion(ft *Type, node any, d *Desc, ctx *SerializeCtx, parent Block, key Key, off int64) (int64, error) {
	u, ok := node.(*UnionBlock)
	if !ok || u == nil {
		return off, frame(fmt.Errorf("%w: missing node", binio.ErrMalformed), d, key, off)
	}
	if err := u.Flush(); err != nil {
		return off, frame(err, d, key, off)
	}

	orig := off
	if d.Pointer.IsSet() {
		p, err := resolvePointer(d, parent, node, key, nil, ctx.RootOffset, off)
		if err != nil {
			return off, frame(err, d, key, off)
		}
		off = p
	} else if d.Align > 1 {
		off = alignUp(off, d.Align)
	}

	if err := ctx.Buf.WriteAt(ctx.RootOffset+off, u.raw); err != nil {
		return off, frame(err, d, key, off)
	}
	off += int64(len(u.raw))
	if d.Pointer.IsSet() {
		return orig, nil
	}
	return off, nil
}

// serializeStream serializes the substruct into a scratch buffer, encodes
// it back to the on-disk form and writes that.
func serializeStream(ft *Type, node any, d *Desc, ctx *SerializeCtx, parent Block, key Key, off int64) (int64, error) {
	if err := ctx.enter(); err != nil {
		return off, frame(err, d, key, off)
	}
	defer ctx.leave()

	sb, ok := node.(*StreamBlock)
	if !ok || sb == nil {
		return off, frame(fmt.Errorf("%w: missing node", binio.ErrMalformed), d, key, off)
	}

	orig := off
	if d.Pointer.IsSet() {
		p, err := resolvePointer(d, parent, node, key, nil, ctx.RootOffset, off)
		if err != nil {
			return off, frame(err, d, key, off)
		}
		off = p
	} else if d.Align > 1 {
		off = alignUp(off, d.Align)
	}

	sd := childDesc(sb.data, d.SubStruct)
	subCtx := &SerializeCtx{
		Buf:      binio.NewWriter(),
		MaxDepth: ctx.MaxDepth,
		depth:    ctx.depth,
	}
	if _, err := sd.Type.serializer(sd.Type, sb.data, sd, subCtx, sb, At(0), 0); err != nil {
		return off, frame(err, d, key, off)
	}

	enc, err := d.Encoder(sb, subCtx.Buf.Bytes())
	if err != nil {
		return off, frame(fmt.Errorf("%w: stream encode: %v", binio.ErrMalformed, err),
			d, key, off)
	}
	if err := ctx.Buf.WriteAt(ctx.RootOffset+off, enc); err != nil {
		return off, frame(err, d, key, off)
	}

	off += int64(len(enc))
	if d.Pointer.IsSet() {
		return orig, nil
	}
	return off, nil
}

// serializeBitStruct OR-accumulates every field's positioned bits and
// writes the span as one integer.
func serializeBitStruct(ft *Type, node any, d *Desc, ctx *SerializeCtx, parent Block, key Key, off int64) (int64, error) {
	b, ok := node.(Block)
	if !ok || b == nil {
		return off, frame(fmt.Errorf("%w: missing node", binio.ErrMalformed), d, key, off)
	}

	orig := off
	if d.Pointer.IsSet() {
		p, err := resolvePointer(d, parent, node, key, nil, ctx.RootOffset, off)
		if err != nil {
			return off, frame(err, d, key, off)
		}
		off = p
	} else if d.Align > 1 {
		off = alignUp(off, d.Align)
	}

	var acc uint64
	for i := range d.Entries {
		cd := d.Entries[i]
		cv, cerr := b.child(At(i))
		if cerr != nil {
			return off, frame(cerr, d, key, off)
		}
		bf, err := cd.Type.bitEncoder(cd.Type, cv, cd, b, At(i))
		if err != nil {
			return off, frame(err, d, key, off)
		}
		acc |= bf.Bits & bf.Mask
	}

	size, _ := d.Size.Literal()
	if err := ctx.Buf.WriteAt(ctx.RootOffset+off, storeUint(acc, size, ft.endian)); err != nil {
		return off, frame(err, d, key, off)
	}
	off += size
	if d.Pointer.IsSet() {
		return orig, nil
	}
	return off, nil
}

// encodeUnionCase serializes a decoded case view back into the union's raw
// region, leaving bytes past the case's span untouched.
func encodeUnionCase(u *UnionBlock, b Block) error {
	ctx := &SerializeCtx{Buf: binio.NewWriter()}
	d := b.Desc()
	if _, err := d.Type.serializer(d.Type, b, d, ctx, u, Key{}, 0); err != nil {
		return err
	}
	out := ctx.Buf.Bytes()
	if int64(len(out)) > int64(len(u.raw)) {
		return fmt.Errorf("%w: case %s serialized to %d bytes in a %d byte union",
			binio.ErrMalformed, d.Name, len(out), len(u.raw))
	}
	copy(u.raw, out)
	return nil
}
