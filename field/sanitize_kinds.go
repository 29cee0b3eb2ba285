package field

import "fmt"

// alignExplicit validates an explicit ALIGN entry, returning 1 when absent.
func (bd *BlockDef) alignExplicit(st *SanCtx, raw *Raw) int64 {
	if raw.Align <= 0 {
		return 1
	}
	a := raw.Align
	if a&(a-1) != 0 {
		bd.errf(st, "alignment %d of %q is not a power of two", a, raw.Name)
		a = pow2Ceil(a)
	}
	if a > AlignMax {
		bd.warnf(st, "alignment %d of %q reduced to %d", a, raw.Name, AlignMax)
		a = AlignMax
	}
	return a
}

// sanitizeData handles every leaf value type, bit fields included.
func sanitizeData(bd *BlockDef, raw *Raw, st *SanCtx) *Desc {
	t := raw.Type
	d := &Desc{
		Type:    t,
		Name:    bd.sanitizeName(st, raw.Name, 0),
		Size:    raw.Size,
		Pointer: raw.Pointer,
		Align:   bd.alignExplicit(st, raw),
		Default: raw.Default,
	}

	switch {
	case t.isVarSize && !t.isOpenEnded && !raw.Size.IsSet():
		bd.errf(st, "variable-size %s requires a size", t.name)
	case !t.isVarSize && raw.Size.IsSet():
		if n, ok := raw.Size.Literal(); !ok || n != t.size {
			bd.warnf(st, "size on fixed-size %s ignored", t.name)
		}
		d.Size = Rule{}
	}
	if (st.InStruct || st.InBitStruct) && d.Size.IsSet() {
		if _, ok := d.Size.Literal(); !ok {
			bd.errf(st, "size of %q must be a literal here", d.Name)
		}
	}
	if raw.Steptree != nil {
		bd.errf(st, "steptree on data entry %q", d.Name)
	}
	if len(raw.Children) > 0 {
		bd.warnf(st, "children of data entry %q ignored", d.Name)
	}
	return d
}

func sanitizeVoid(bd *BlockDef, raw *Raw, st *SanCtx) *Desc {
	name := raw.Name
	if name == "" {
		name = "voided"
	}
	d := voidDesc(bd.sanitizeName(st, name, 0))
	if raw.Size.IsSet() || len(raw.Children) > 0 {
		bd.warnf(st, "size and children of void entry ignored")
	}
	return d
}

// sanitizePad handles pads that survive into canonical form, which only
// happens inside containers. Struct and bit struct sanitizers fold their
// pads into offsets instead.
func sanitizePad(bd *BlockDef, raw *Raw, st *SanCtx) *Desc {
	d := &Desc{Type: raw.Type, Name: "pad", Size: raw.Size, Align: 1}
	if raw.Name != "" {
		d.Name = bd.sanitizeName(st, raw.Name, 0)
	}
	if !raw.Size.IsSet() {
		bd.errf(st, "pad requires a size")
		d.Size = LitRule(0)
	}
	return d
}

// sanitizeSequence handles containers: ordered, individually sized entries
// with no offset table.
func sanitizeSequence(bd *BlockDef, raw *Raw, st *SanCtx) *Desc {
	d := &Desc{
		Type:    raw.Type,
		Name:    bd.sanitizeName(st, raw.Name, 0),
		Size:    raw.Size,
		Pointer: raw.Pointer,
		Align:   bd.alignExplicit(st, raw),
		NameMap: make(map[string]int),
	}

	cst := *st
	cst.InStruct = false
	cst.InBitStruct = false

	for i, c := range bd.orderChildren(st, raw.Children) {
		cd := bd.sanitizeEntry(c, &cst)
		if cd.Type == TPad && (c == nil || c.Name == "") {
			cd.Name = fmt.Sprintf("pad_%d", i)
		}
		bd.registerName(st, d.NameMap, cd.Name, i)
		d.Entries = append(d.Entries, cd)
	}
	if raw.Steptree != nil {
		d.Steptree = bd.sanitizeEntry(raw.Steptree, &cst)
	}
	return d
}

// sanitizeStruct computes the offset table: pads fold into the running
// offset and vanish, explicit offsets override it, alignment rounds it up,
// and the final size is the end offset rounded to the largest member
// alignment.
func sanitizeStruct(bd *BlockDef, raw *Raw, st *SanCtx) *Desc {
	d := &Desc{
		Type:    raw.Type,
		Name:    bd.sanitizeName(st, raw.Name, 0),
		Pointer: raw.Pointer,
		NameMap: make(map[string]int),
	}

	cst := *st
	cst.InStruct = true
	cst.InBitStruct = false

	defOff := int64(0)
	lAlign := int64(1)
	kept := 0
	for _, c := range bd.orderChildren(st, raw.Children) {
		if c != nil && c.Type == TPad {
			n, ok := c.Size.Literal()
			if !ok {
				bd.errf(st, "struct pad size must be a literal")
			}
			defOff += n
			continue
		}
		cd := bd.sanitizeEntry(c, &cst)
		size := bd.entrySize(&cst, cd)
		al := bd.alignOf(&cst, c, cd, size)
		if al > lAlign {
			lAlign = al
		}
		off := defOff
		if c != nil && c.Offset != nil {
			off = *c.Offset
		}
		off = alignUp(off, al)
		cd.Align = al

		d.AttrOffs = append(d.AttrOffs, off)
		bd.registerName(st, d.NameMap, cd.Name, kept)
		d.Entries = append(d.Entries, cd)
		defOff = off + size
		kept++
	}

	size := alignUp(defOff, lAlign)
	if raw.Size.IsSet() {
		n, ok := raw.Size.Literal()
		switch {
		case !ok:
			bd.errf(st, "struct size must be a literal")
		case n < defOff:
			bd.errf(st, "declared size %d smaller than contents (%d bytes)", n, defOff)
		default:
			size = n
		}
	}
	d.Size = LitRule(size)
	d.Align = lAlign

	if raw.Steptree != nil {
		sst := *st
		sst.InStruct = false
		d.Steptree = bd.sanitizeEntry(raw.Steptree, &sst)
	}
	return d
}

// sanitizeBitStruct packs bit fields end to end, offsets counted in bits.
// The whole span is read and written as a single integer, which caps the
// struct at 64 bits.
func sanitizeBitStruct(bd *BlockDef, raw *Raw, st *SanCtx) *Desc {
	d := &Desc{
		Type:    raw.Type,
		Name:    bd.sanitizeName(st, raw.Name, 0),
		Pointer: raw.Pointer,
		NameMap: make(map[string]int),
	}

	cst := *st
	cst.InStruct = false
	cst.InBitStruct = true

	bitOff := int64(0)
	kept := 0
	for _, c := range bd.orderChildren(st, raw.Children) {
		if c != nil && c.Type == TPad {
			n, ok := c.Size.Literal()
			if !ok {
				bd.errf(st, "bit struct pad size must be a literal")
			}
			bitOff += n
			continue
		}
		cd := bd.sanitizeEntry(c, &cst)
		bits := cd.Type.size
		if n, ok := cd.Size.Literal(); ok {
			bits = n
		}
		if bits <= 0 {
			bd.errf(st, "bit field %q has no width", cd.Name)
		}
		d.AttrOffs = append(d.AttrOffs, bitOff)
		bd.registerName(st, d.NameMap, cd.Name, kept)
		d.Entries = append(d.Entries, cd)
		bitOff += bits
		kept++
	}

	size := (bitOff + 7) / 8
	if raw.Size.IsSet() {
		n, ok := raw.Size.Literal()
		switch {
		case !ok:
			bd.errf(st, "bit struct size must be a literal")
		case n < size:
			bd.errf(st, "declared size %d smaller than %d bits", n, bitOff)
		default:
			size = n
		}
	}
	if size > 8 {
		bd.errf(st, "bit struct %q is wider than 64 bits", d.Name)
		size = 8
	}
	d.Size = LitRule(size)

	d.Align = bd.alignExplicit(st, raw)
	if raw.Align <= 0 && st.AlignMode == AlignAuto && size > 0 {
		d.Align = pow2Ceil(size)
		if d.Align > AlignMax {
			d.Align = AlignMax
		}
	}

	if raw.Steptree != nil {
		bd.errf(st, "steptree on bit struct %q", d.Name)
	}
	return d
}

// sanitizeBoolEnum assigns option values and builds the value map. Pads
// consume value slots and vanish; missing Bool values become
// 1 << slot, missing Enum values become the slot number.
func sanitizeBoolEnum(bd *BlockDef, raw *Raw, st *SanCtx) *Desc {
	t := raw.Type
	d := &Desc{
		Type:     t,
		Name:     bd.sanitizeName(st, raw.Name, 0),
		Pointer:  raw.Pointer,
		Align:    bd.alignExplicit(st, raw),
		Default:  raw.Default,
		NameMap:  make(map[string]int),
		ValueMap: make(map[int64]int),
	}
	if raw.Size.IsSet() {
		bd.warnf(st, "size on %s ignored", t.name)
	}

	slot := 0
	for _, opt := range bd.orderChildren(st, raw.Children) {
		if opt.Type == TPad {
			n := int64(1)
			if v, ok := opt.Size.Literal(); ok {
				n = v
			} else if opt.Size.IsSet() {
				bd.errf(st, "option pad size must be a literal")
			}
			slot += int(n)
			continue
		}
		if opt.Type != nil {
			bd.warnf(st, "type on option %q ignored", opt.Name)
		}
		name := bd.sanitizeName(st, opt.Name, slot)

		var val int64
		switch {
		case opt.Value != nil:
			val = *opt.Value
		case t.isBool:
			if slot >= 63 {
				bd.errf(st, "option %q exceeds 63 flag slots", name)
			}
			val = 1 << slot
		default:
			val = int64(slot)
		}

		idx := len(d.Entries)
		if _, dup := d.ValueMap[val]; dup {
			bd.errf(st, "option %q duplicates value %d", name, val)
		} else {
			d.ValueMap[val] = idx
		}
		bd.registerName(st, d.NameMap, name, idx)
		d.Entries = append(d.Entries, &Desc{Name: name, Value: val, Align: 1})
		slot++
	}

	// A default given as an option name resolves to that option's value.
	if s, ok := raw.Default.(string); ok {
		if i, ok := d.NameMap[s]; ok {
			d.Default = d.Entries[i].Value
		} else {
			bd.errf(st, "default %q names no option", s)
			d.Default = nil
		}
	}
	return d
}

// sanitizeArray handles counted arrays and open-ended while arrays.
func sanitizeArray(bd *BlockDef, raw *Raw, st *SanCtx) *Desc {
	t := raw.Type
	d := &Desc{
		Type:    t,
		Name:    bd.sanitizeName(st, raw.Name, 0),
		Pointer: raw.Pointer,
		Align:   bd.alignExplicit(st, raw),
	}

	cst := *st
	cst.InStruct = false
	cst.InBitStruct = false

	if raw.SubStruct == nil {
		bd.errf(st, "array %q has no element descriptor", d.Name)
		d.SubStruct = voidDesc("sub_struct")
	} else {
		d.SubStruct = bd.sanitizeEntry(raw.SubStruct, &cst)
	}

	if t.isOpenEnded {
		if raw.While == nil {
			bd.errf(st, "while array %q requires a continuation decider", d.Name)
		}
		d.While = raw.While
		if raw.Size.IsSet() {
			bd.warnf(st, "size on while array %q ignored", d.Name)
		}
	} else {
		if !raw.Size.IsSet() {
			bd.errf(st, "array %q requires a size", d.Name)
		}
		d.Size = raw.Size
	}

	if raw.Steptree != nil {
		d.Steptree = bd.sanitizeEntry(raw.Steptree, &cst)
	}
	return d
}

// sanitizeSwitch builds positional case descriptors in a stable key order.
// POINTER and SIZE propagate from the switch into each case and into the
// mandatory default.
func sanitizeSwitch(bd *BlockDef, raw *Raw, st *SanCtx) *Desc {
	d := &Desc{
		Type:    raw.Type,
		Name:    bd.sanitizeName(st, raw.Name, 0),
		Case:    raw.Case,
		CaseMap: make(map[any]int),
	}
	if !raw.Case.IsSet() {
		bd.errf(st, "switch %q requires a case decider", d.Name)
	}

	cst := *st
	cst.InStruct = false
	cst.InBitStruct = false

	propagate := func(c *Raw) *Raw {
		cc := *c
		if !cc.Pointer.IsSet() {
			cc.Pointer = raw.Pointer
		}
		if !cc.Size.IsSet() && raw.Size.IsSet() {
			cc.Size = raw.Size
		}
		return &cc
	}

	for _, k := range sortedCaseKeys(raw.Cases) {
		cd := bd.sanitizeEntry(propagate(raw.Cases[k]), &cst)
		if cd.Type != nil && !cd.Type.isBlock {
			bd.errf(st, "case %s of %q is not block capable", caseKeyString(k), d.Name)
		}
		d.CaseMap[normCaseKey(k)] = len(d.Entries)
		d.Entries = append(d.Entries, cd)
	}

	dc := raw.CaseDefault
	if dc == nil {
		dc = &Raw{Type: TVoid, Name: "default", Index: -1}
	}
	d.DefaultCase = bd.sanitizeEntry(propagate(dc), &cst)
	return d
}

// scanUnionCase recursively rejects pointers and steptrees anywhere under a
// union case; both would need the engine to leave the union's fixed region.
func (bd *BlockDef) scanUnionCase(st *SanCtx, raw *Raw) {
	if raw == nil {
		return
	}
	if raw.Pointer.IsSet() {
		bd.errf(st, "pointer under union case (%q)", raw.Name)
	}
	if raw.Steptree != nil {
		bd.errf(st, "steptree under union case (%q)", raw.Name)
	}
	for _, c := range raw.Children {
		bd.scanUnionCase(st, c)
	}
	bd.scanUnionCase(st, raw.SubStruct)
	for _, c := range raw.Cases {
		bd.scanUnionCase(st, c)
	}
	bd.scanUnionCase(st, raw.CaseDefault)
}

// sanitizeUnion sizes the raw region to the largest case when no literal
// size is declared.
func sanitizeUnion(bd *BlockDef, raw *Raw, st *SanCtx) *Desc {
	d := &Desc{
		Type:    raw.Type,
		Name:    bd.sanitizeName(st, raw.Name, 0),
		Pointer: raw.Pointer,
		Align:   bd.alignExplicit(st, raw),
		Case:    raw.Case,
		CaseMap: make(map[any]int),
	}

	cst := *st
	cst.InStruct = false
	cst.InBitStruct = false

	maxSize := int64(0)
	for _, k := range sortedCaseKeys(raw.Cases) {
		c := raw.Cases[k]
		bd.scanUnionCase(st, c)
		cd := bd.sanitizeEntry(c, &cst)
		if cd.Type != nil {
			if !cd.Type.isBlock {
				bd.errf(st, "union case %s of %q is not block capable",
					caseKeyString(k), d.Name)
			}
			if cd.Type.isBitBased && !cd.Type.isStruct {
				bd.errf(st, "union case %s of %q is bit based but not a struct",
					caseKeyString(k), d.Name)
			}
		}
		size, ok := cd.Size.Literal()
		if !ok {
			if cd.Type != nil && cd.Type.size > 0 && !cd.Type.isVarSize {
				size = cd.Type.size
			} else {
				bd.errf(st, "union case %s of %q has no static size",
					caseKeyString(k), d.Name)
			}
		}
		if size > maxSize {
			maxSize = size
		}
		d.CaseMap[normCaseKey(k)] = len(d.Entries)
		d.Entries = append(d.Entries, cd)
	}

	size := maxSize
	if raw.Size.IsSet() {
		n, ok := raw.Size.Literal()
		switch {
		case !ok:
			bd.errf(st, "union size must be a literal")
		case n < maxSize:
			bd.errf(st, "declared size %d smaller than largest case (%d)", n, maxSize)
		default:
			size = n
		}
	}
	d.Size = LitRule(size)

	if raw.Steptree != nil {
		bd.errf(st, "steptree on union %q", d.Name)
	}
	return d
}

// sanitizeStream wires the decoder pair; a missing encoder defaults to
// identity so read-only adapters stay serializable.
func sanitizeStream(bd *BlockDef, raw *Raw, st *SanCtx) *Desc {
	d := &Desc{
		Type:    raw.Type,
		Name:    bd.sanitizeName(st, raw.Name, 0),
		Pointer: raw.Pointer,
		Align:   bd.alignExplicit(st, raw),
		Decoder: raw.Decoder,
		Encoder: raw.Encoder,
	}

	cst := *st
	cst.InStruct = false
	cst.InBitStruct = false

	if raw.SubStruct == nil {
		bd.errf(st, "stream adapter %q has no substruct", d.Name)
		d.SubStruct = voidDesc("sub_struct")
	} else {
		d.SubStruct = bd.sanitizeEntry(raw.SubStruct, &cst)
	}
	if raw.Decoder == nil {
		bd.errf(st, "stream adapter %q requires a decoder", d.Name)
	}
	if d.Encoder == nil {
		d.Encoder = func(parent Block, serialized []byte) ([]byte, error) {
			return serialized, nil
		}
	}
	if raw.Steptree != nil {
		bd.errf(st, "steptree on stream adapter %q", d.Name)
	}
	return d
}
