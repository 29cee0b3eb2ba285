package field

import (
	"fmt"

	"github.com/binstruct/bindef/binio"
)

// ParseCtx is the state threaded through one parse: the buffer, the root
// offset every read is relative to, the depth guard, and the deferred
// steptree list collected while the primary pass runs.
type ParseCtx struct {
	Buf        *binio.Reader
	RootOffset int64
	MaxDepth   int

	depth           int
	steptreeParents *[]Block
	caseOverrides   []any
}

func (c *ParseCtx) enter() error {
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

func (c *ParseCtx) leave() { c.depth-- }

// popCase consumes the next explicit case override, if any.
func (c *ParseCtx) popCase() (any, bool) {
	if len(c.caseOverrides) == 0 {
		return nil, false
	}
	v := c.caseOverrides[0]
	c.caseOverrides = c.caseOverrides[1:]
	return v, true
}

// ParseOpts adjusts a single parse call.
type ParseOpts struct {
	// Offset is where parsing starts, relative to RootOffset.
	Offset int64

	// RootOffset shifts every buffer access, for structures embedded in a
	// larger file.
	RootOffset int64

	// MaxDepth overrides the recursion guard; 0 means DefaultMaxDepth.
	MaxDepth int

	// CaseOverrides pre-answers switch deciders in encounter order,
	// bypassing their CASE rules.
	CaseOverrides []any
}

// ParseRoot parses one node tree from data using the canonical descriptor
// d. It returns the root node, the offset one past the last sequentially
// consumed byte, and any error. On error the partially built tree is still
// returned so callers opting into corrupt input can inspect it.
func ParseRoot(d *Desc, data []byte, opts *ParseOpts) (any, int64, error) {
	if opts == nil {
		opts = &ParseOpts{}
	}
	ctx := &ParseCtx{
		Buf:           binio.NewReader(data),
		RootOffset:    opts.RootOffset,
		MaxDepth:      opts.MaxDepth,
		caseOverrides: opts.CaseOverrides,
	}
	slot := &slotBlock{desc: d}
	end, err := d.Type.parser(d.Type, d, ctx, slot, Key{}, opts.Offset)
	if b, ok := slot.val.(Block); ok && b != nil {
		b.setParent(nil)
	}
	return slot.val, end, err
}

// slotBlock anchors the root node during a parse. Reads forward into the
// held node so absolute descriptor paths resolve mid-parse; the only write
// it ever sees is the root assignment itself.
type slotBlock struct {
	desc *Desc
	val  any
}

func (s *slotBlock) Desc() *Desc     { return s.desc }
func (s *slotBlock) SetDesc(d *Desc) { s.desc = d }
func (s *slotBlock) Parent() Block   { return nil }
func (s *slotBlock) setParent(Block) {}
func (s *slotBlock) Len() int        { return 1 }
func (s *slotBlock) String() string  { return "root" }

func (s *slotBlock) Get(key Key) (any, error)  { return s.child(key) }
func (s *slotBlock) Set(key Key, v any) error  { return s.setChild(key, v) }

func (s *slotBlock) child(key Key) (any, error) {
	if b, ok := s.val.(Block); ok && b != nil {
		return b.child(key)
	}
	return s.val, nil
}

func (s *slotBlock) setChild(key Key, v any) error {
	s.val = v
	return nil
}

// resolvePointer evaluates a POINTER rule for a node about to be parsed or
// serialized sequentially at off, returning the offset to use instead.
func resolvePointer(d *Desc, parent Block, node any, key Key, buf *binio.Reader, rootOff, off int64) (int64, error) {
	p, err := d.Pointer.Resolve(&RuleCtx{
		Parent:     parent,
		Node:       node,
		Key:        key,
		Buf:        buf,
		RootOffset: rootOff,
		Offset:     off,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", binio.ErrPointer, d.Name, err)
	}
	if p < 0 {
		return 0, fmt.Errorf("%w: %s resolves to %d", binio.ErrPointer, d.Name, p)
	}
	return p, nil
}

// frame wraps err with this node's hierarchy frame.
func frame(err error, d *Desc, key Key, off int64) error {
	if err == nil {
		return nil
	}
	typeName := ""
	if d.Type != nil {
		typeName = d.Type.name
	}
	return binio.WrapField(err, d.Name, key.String(), off, typeName)
}

// parseContainer reads each entry in order, end to end. The first block
// parser on the stack doubles as the steptree root: blocks below it that
// declare steptrees queue up here and parse after the last primary entry.
func parseContainer(ft *Type, d *Desc, ctx *ParseCtx, parent Block, key Key, off int64) (int64, error) {
	if err := ctx.enter(); err != nil {
		return off, frame(err, d, key, off)
	}
	defer ctx.leave()

	node := NewListBlock(d, parent)
	if err := parent.setChild(key, node); err != nil {
		return off, frame(err, d, key, off)
	}

	var parents []Block
	isSteptreeRoot := ctx.steptreeParents == nil
	if isSteptreeRoot {
		ctx.steptreeParents = &parents
	}
	if d.Steptree != nil {
		*ctx.steptreeParents = append(*ctx.steptreeParents, node)
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

	var err error
	for i := range d.Entries {
		cd := d.Entries[i]
		off, err = cd.Type.parser(cd.Type, cd, ctx, node, At(i), off)
		if err != nil {
			return off, frame(err, d, key, off)
		}
	}

	if isSteptreeRoot {
		ctx.steptreeParents = nil
		if off, err = parseSteptrees(ctx, parents, off); err != nil {
			return off, frame(err, d, key, off)
		}
	}
	if d.Pointer.IsSet() {
		return orig, nil
	}
	return off, nil
}

func parseSteptrees(ctx *ParseCtx, parents []Block, off int64) (int64, error) {
	var err error
	for _, p := range parents {
		sd := p.Desc().Steptree
		if sd == nil {
			continue
		}
		off, err = sd.Type.parser(sd.Type, sd, ctx, p, keySteptree, off)
		if err != nil {
			return off, err
		}
	}
	return off, nil
}

// parseStruct places each entry at its precomputed offset and consumes the
// struct's declared span regardless of what the entries individually read.
func parseStruct(ft *Type, d *Desc, ctx *ParseCtx, parent Block, key Key, off int64) (int64, error) {
	if err := ctx.enter(); err != nil {
		return off, frame(err, d, key, off)
	}
	defer ctx.leave()

	node := NewListBlock(d, parent)
	if err := parent.setChild(key, node); err != nil {
		return off, frame(err, d, key, off)
	}

	var parents []Block
	isSteptreeRoot := ctx.steptreeParents == nil
	if isSteptreeRoot {
		ctx.steptreeParents = &parents
	}
	if d.Steptree != nil {
		*ctx.steptreeParents = append(*ctx.steptreeParents, node)
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
	if _, err := ctx.Buf.ReadAt(ctx.RootOffset+off, size); err != nil {
		return off, frame(fmt.Errorf("%w: struct span: %v", binio.ErrMalformed, err), d, key, off)
	}

	for i := range d.Entries {
		cd := d.Entries[i]
		if _, err := cd.Type.parser(cd.Type, cd, ctx, node, At(i), off+d.AttrOffs[i]); err != nil {
			return off, frame(err, d, key, off)
		}
	}
	off += size

	if isSteptreeRoot {
		ctx.steptreeParents = nil
		var err error
		if off, err = parseSteptrees(ctx, parents, off); err != nil {
			return off, frame(err, d, key, off)
		}
	}
	if d.Pointer.IsSet() {
		return orig, nil
	}
	return off, nil
}

// parseArray reads a counted run of uniform elements.
func parseArray(ft *Type, d *Desc, ctx *ParseCtx, parent Block, key Key, off int64) (int64, error) {
	if err := ctx.enter(); err != nil {
		return off, frame(err, d, key, off)
	}
	defer ctx.leave()

	node := NewArrayBlock(d, parent)
	if err := parent.setChild(key, node); err != nil {
		return off, frame(err, d, key, off)
	}

	var parents []Block
	isSteptreeRoot := ctx.steptreeParents == nil
	if isSteptreeRoot {
		ctx.steptreeParents = &parents
	}
	if d.Steptree != nil {
		*ctx.steptreeParents = append(*ctx.steptreeParents, node)
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

	count, err := d.Size.Resolve(&RuleCtx{
		Parent:     parent,
		Node:       node,
		Key:        key,
		Buf:        ctx.Buf,
		RootOffset: ctx.RootOffset,
		Offset:     off,
	})
	if err != nil {
		return off, frame(err, d, key, off)
	}
	if count < 0 || count > binio.TooBig {
		return off, frame(fmt.Errorf("%w: element count %d", binio.ErrMalformed, count),
			d, key, off)
	}

	node.entries = make([]any, count)
	sub := d.SubStruct
	for i := int64(0); i < count; i++ {
		off, err = sub.Type.parser(sub.Type, sub, ctx, node, At(int(i)), off)
		if err != nil {
			return off, frame(err, d, key, off)
		}
	}

	if isSteptreeRoot {
		ctx.steptreeParents = nil
		if off, err = parseSteptrees(ctx, parents, off); err != nil {
			return off, frame(err, d, key, off)
		}
	}
	if d.Pointer.IsSet() {
		return orig, nil
	}
	return off, nil
}

// parseWhileArray reads elements for as long as the continuation decider
// approves. The decider sees the array node, the upcoming element index and
// the buffer position it would be read from.
func parseWhileArray(ft *Type, d *Desc, ctx *ParseCtx, parent Block, key Key, off int64) (int64, error) {
	if err := ctx.enter(); err != nil {
		return off, frame(err, d, key, off)
	}
	defer ctx.leave()

	node := NewArrayBlock(d, parent)
	if err := parent.setChild(key, node); err != nil {
		return off, frame(err, d, key, off)
	}

	var parents []Block
	isSteptreeRoot := ctx.steptreeParents == nil
	if isSteptreeRoot {
		ctx.steptreeParents = &parents
	}
	if d.Steptree != nil {
		*ctx.steptreeParents = append(*ctx.steptreeParents, node)
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

	sub := d.SubStruct
	for i := 0; d.While != nil; i++ {
		if int64(i) > binio.TooBig {
			return off, frame(fmt.Errorf("%w: runaway while array", binio.ErrMalformed),
				d, key, off)
		}
		more, err := d.While(&RuleCtx{
			Parent:     node,
			Key:        At(i),
			Buf:        ctx.Buf,
			RootOffset: ctx.RootOffset,
			Offset:     off,
		})
		if err != nil {
			return off, frame(err, d, key, off)
		}
		if !more {
			break
		}
		node.entries = append(node.entries, nil)
		off, err = sub.Type.parser(sub.Type, sub, ctx, node, At(i), off)
		if err != nil {
			return off, frame(err, d, key, off)
		}
	}

	if isSteptreeRoot {
		ctx.steptreeParents = nil
		var err error
		if off, err = parseSteptrees(ctx, parents, off); err != nil {
			return off, frame(err, d, key, off)
		}
	}
	if d.Pointer.IsSet() {
		return orig, nil
	}
	return off, nil
}

// parseSwitch resolves the decider and delegates to the selected case,
// which stores its own node in the switch's slot.
func parseSwitch(ft *Type, d *Desc, ctx *ParseCtx, parent Block, key Key, off int64) (int64, error) {
	if err := ctx.enter(); err != nil {
		return off, frame(err, d, key, off)
	}
	defer ctx.leave()

	var ck any
	if v, ok := ctx.popCase(); ok {
		ck = normCaseKey(v)
	} else {
		if err := ctx.Buf.Seek(ctx.RootOffset + off); err != nil {
			return off, frame(err, d, key, off)
		}
		var err error
		ck, err = d.Case.Resolve(&RuleCtx{
			Parent:     parent,
			Key:        key,
			Buf:        ctx.Buf,
			RootOffset: ctx.RootOffset,
			Offset:     off,
		})
		if err != nil {
			return off, frame(err, d, key, off)
		}
	}

	cd := d.DefaultCase
	if i, ok := d.CaseMap[ck]; ok {
		cd = d.Entries[i]
	}
	end, err := cd.Type.parser(cd.Type, cd, ctx, parent, key, off)
	return end, frame(err, d, key, off)
}

// parseUnion captures the union's span as raw bytes and selects, without
// decoding, the case the decider names. Decoding happens on Active().
func parseUnion(ft *Type, d *Desc, ctx *ParseCtx, parent Block, key Key, off int64) (int64, error) {
	if err := ctx.enter(); err != nil {
		return off, frame(err, d, key, off)
	}
	defer ctx.leave()

	node := NewUnionBlock(d, parent)
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
	copy(node.raw, raw)

	if d.Case.IsSet() {
		ck, err := d.Case.Resolve(&RuleCtx{
			Parent:     parent,
			Node:       node,
			Key:        key,
			Buf:        ctx.Buf,
			RootOffset: ctx.RootOffset,
			Offset:     off,
		})
		if err != nil {
			return off, frame(err, d, key, off)
		}
		if i, ok := d.CaseMap[ck]; ok {
			node.setActiveIndex(i)
		}
	}

	off += size
	if d.Pointer.IsSet() {
		return orig, nil
	}
	return off, nil
}

// parseStream decodes a derived stream and parses the substruct against it
// from offset 0, in its own steptree scope. The outer offset advances by
// however many original bytes the decoder consumed.
func parseStream(ft *Type, d *Desc, ctx *ParseCtx, parent Block, key Key, off int64) (int64, error) {
	if err := ctx.enter(); err != nil {
		return off, frame(err, d, key, off)
	}
	defer ctx.leave()

	node := NewStreamBlock(d, parent)
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

	derived, consumed, err := d.Decoder(node, ctx.Buf, ctx.RootOffset, off)
	if err != nil {
		return off, frame(fmt.Errorf("%w: stream decode: %v", binio.ErrMalformed, err),
			d, key, off)
	}

	sub := d.SubStruct
	subCtx := &ParseCtx{
		Buf:      binio.NewReader(derived),
		MaxDepth: ctx.MaxDepth,
		depth:    ctx.depth,
	}
	if _, err := sub.Type.parser(sub.Type, sub, subCtx, node, At(0), 0); err != nil {
		return off, frame(err, d, key, off)
	}

	off += consumed
	if d.Pointer.IsSet() {
		return orig, nil
	}
	return off, nil
}

// decodeUnionCase parses one case descriptor against a union's raw region.
func decodeUnionCase(u *UnionBlock, cd *Desc) (Block, error) {
	v, _, err := ParseRoot(cd, u.raw, nil)
	if err != nil {
		return nil, err
	}
	b, ok := v.(Block)
	if !ok {
		return nil, fmt.Errorf("%w: union case %s decoded to a non-block",
			binio.ErrDescriptor, cd.Name)
	}
	b.setParent(u)
	return b, nil
}
