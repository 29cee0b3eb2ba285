package field

import (
	"fmt"

	"github.com/binstruct/bindef/binio"
)

// Pointer recomputation runs as a pre-pass over the whole tree before
// serialization. The first sweep lays out everything reachable without
// following a pointer and queues every pointer-bearing node it passes; each
// queued node is then placed at the current end offset and swept itself,
// queueing the next level. Nodes are placed level by level, so two pointer
// targets never overlap and targets of targets land after their referrers.

type pointedRef struct {
	parent Block
	key    Key
}

// SetPointers recomputes every POINTER in the tree rooted at root, assuming
// the root serializes at offset.
func SetPointers(root Block, offset int64) error {
	seen := make(map[Block]struct{})
	var pointed []pointedRef

	d := root.Desc()
	if p, ok := d.Pointer.Literal(); ok {
		offset = p
	}
	off, err := collectPointers(root, nil, Key{}, offset, seen, &pointed, false, true)
	if err != nil {
		return err
	}

	for len(pointed) > 0 {
		var next []pointedRef
		for _, ref := range pointed {
			node, err := ref.parent.child(ref.key)
			if err != nil {
				return err
			}
			rd, err := descFor(ref.parent, ref.key)
			if err != nil {
				return err
			}
			if err := assignPointer(ref, rd, node, off); err != nil {
				return err
			}
			off, err = collectPointers(node, ref.parent, ref.key, off, seen, &next, false, true)
			if err != nil {
				return err
			}
		}
		pointed = next
	}
	return nil
}

// collectPointers walks node sequentially, advancing off past everything
// placed inline and queueing pointer-bearing nodes. substruct marks
// traversal inside a struct's span, whose members contribute no size of
// their own.
func collectPointers(node any, parent Block, key Key, off int64, seen map[Block]struct{}, pointed *[]pointedRef, substruct, isRoot bool) (int64, error) {
	var d *Desc
	if b, ok := node.(Block); ok && b != nil {
		if _, dup := seen[b]; dup {
			return off, nil
		}
		seen[b] = struct{}{}
		d = b.Desc()
	} else {
		var err error
		d, err = parent.Desc().entryFor(key)
		if err != nil {
			return off, err
		}
	}
	if d == nil || d.Type == nil {
		return off, nil
	}

	if d.Pointer.IsSet() && !isRoot {
		*pointed = append(*pointed, pointedRef{parent: parent, key: key})
		return off, nil
	}
	if !d.Pointer.IsSet() && d.Align > 1 && !substruct {
		off = alignUp(off, d.Align)
	}

	t := d.Type
	switch {
	case t.isStruct && !t.isBitBased:
		size, _ := d.Size.Literal()
		if !substruct {
			off += size
		}
		b, ok := node.(Block)
		if !ok {
			return off, nil
		}
		var err error
		for i := 0; i < len(d.Entries); i++ {
			cv, cerr := b.child(At(i))
			if cerr != nil {
				return off, cerr
			}
			if off, err = collectPointers(cv, b, At(i), off, seen, pointed, true, false); err != nil {
				return off, err
			}
		}
		return collectSteptreePointers(b, off, seen, pointed)

	case t.isArray, t.isContainer:
		b, ok := node.(Block)
		if !ok {
			return off, nil
		}
		var err error
		for i := 0; i < b.Len(); i++ {
			cv, cerr := b.child(At(i))
			if cerr != nil {
				return off, cerr
			}
			if off, err = collectPointers(cv, b, At(i), off, seen, pointed, substruct, false); err != nil {
				return off, err
			}
		}
		return collectSteptreePointers(b, off, seen, pointed)

	case t == TStreamAdapter:
		if substruct {
			return off, nil
		}
		sb, ok := node.(*StreamBlock)
		if !ok {
			return off, nil
		}
		n, err := measureStream(sb, d)
		if err != nil {
			return off, err
		}
		return off + n, nil

	default:
		// Unions, bit structs and every value field occupy one flat span.
		if substruct {
			return off, nil
		}
		size, err := nodeSize(d, parent, node, key, nil, 0, off)
		if err != nil {
			return off, err
		}
		return off + size, nil
	}
}

func collectSteptreePointers(b Block, off int64, seen map[Block]struct{}, pointed *[]pointedRef) (int64, error) {
	if b.Desc().Steptree == nil {
		return off, nil
	}
	sv, err := b.child(keySteptree)
	if err != nil {
		return off, err
	}
	return collectPointers(sv, b, keySteptree, off, seen, pointed, false, false)
}

// measureStream serializes a stream adapter's substruct and encodes it to
// learn the on-disk size; nothing cheaper is correct for compressing
// encoders.
func measureStream(sb *StreamBlock, d *Desc) (int64, error) {
	sd := childDesc(sb.data, d.SubStruct)
	ctx := &SerializeCtx{Buf: binio.NewWriter()}
	if _, err := sd.Type.serializer(sd.Type, sb.data, sd, ctx, sb, At(0), 0); err != nil {
		return 0, err
	}
	enc, err := d.Encoder(sb, ctx.Buf.Bytes())
	if err != nil {
		return 0, err
	}
	return int64(len(enc)), nil
}

// assignPointer stores a recomputed target offset through the node's
// POINTER rule. Literal pointers are layout, not data, so they update by
// forking the owning descriptor.
func assignPointer(ref pointedRef, d *Desc, node any, off int64) error {
	ctx := &RuleCtx{Parent: ref.parent, Node: node, Key: ref.key, Offset: off}
	if _, lit := d.Pointer.Literal(); !lit {
		return d.Pointer.Assign(ctx, off)
	}

	if b, ok := node.(Block); ok && b != nil {
		nd := b.Desc().MakeUnique()
		nd.Pointer = LitRule(off)
		b.SetDesc(nd)
		return nil
	}

	pd := ref.parent.Desc()
	if pd.Type != nil && pd.Type.isArray && !ref.key.isSteptree() {
		return fmt.Errorf("%w: cannot update a literal pointer on scalar array elements of %s",
			binio.ErrPointer, pd.Name)
	}
	npd := pd.MakeUnique()
	if ref.key.isSteptree() {
		sd := npd.Steptree.MakeUnique()
		sd.Pointer = LitRule(off)
		npd.Steptree = sd
	} else {
		i, err := npd.entryIndex(ref.key)
		if err != nil {
			return err
		}
		ed := npd.Entries[i].MakeUnique()
		ed.Pointer = LitRule(off)
		npd.Entries[i] = ed
	}
	ref.parent.SetDesc(npd)
	return nil
}
