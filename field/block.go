package field

import (
	"fmt"

	"github.com/binstruct/bindef/binio"
)

// Block is a hierarchy node: a parsed struct, container, array, union,
// enum, bool, void or stream adapter. Scalar fields are not Blocks; they
// are stored directly in their parent as Go values.
//
// Blocks always know their descriptor and their parent, which is what makes
// path rules ("..pixel_count") and size recomputation work without any
// side tables. The set of implementations is closed: all Blocks are created
// by this package.
type Block interface {
	// Desc returns the node's descriptor. Usually the shared template;
	// a fork after an instance-specific edit.
	Desc() *Desc

	// SetDesc replaces the node's descriptor, normally with a MakeUnique
	// fork of the current one.
	SetDesc(*Desc)

	// Parent returns the containing Block, nil at the root.
	Parent() Block

	// Len returns the number of addressable entries.
	Len() int

	// Get returns the entry addressed by key.
	Get(Key) (any, error)

	// Set replaces the entry addressed by key, reparenting v when it is a
	// Block.
	Set(Key, any) error

	String() string

	// setParent, child and setChild are the engine's unchecked internal
	// paths; they keep the implementation set closed to this package.
	setParent(Block)
	child(Key) (any, error)
	setChild(Key, any) error
}

// descFor returns the descriptor governing the entry at key: the entry's
// own fork when it is a Block, otherwise the parent's template entry.
func descFor(parent Block, key Key) (*Desc, error) {
	v, err := parent.child(key)
	if err != nil {
		return nil, err
	}
	if b, ok := v.(Block); ok && b != nil {
		return b.Desc(), nil
	}
	return parent.Desc().entryFor(key)
}

// GetNeighbor resolves a dotted descriptor path from the entry at key.
// Leading dots step upward from the entry; other paths descend from the
// root by name.
func GetNeighbor(parent Block, key Key, path string) (any, error) {
	node, err := parent.child(key)
	if err != nil {
		return nil, err
	}
	return resolvePath(parent, node, path)
}

// SetNeighbor writes an integer through a dotted descriptor path, the same
// way pointer and size recomputation does.
func SetNeighbor(parent Block, key Key, path string, v int64) error {
	node, err := parent.child(key)
	if err != nil {
		return err
	}
	return assignPath(parent, node, path, v)
}

// SizeOf measures the entry at key: a declared SIZE rule if present,
// otherwise the type's own measurement of the current value. Rules that
// read the parse buffer cannot be evaluated here and fail.
func SizeOf(parent Block, key Key) (int64, error) {
	node, err := parent.child(key)
	if err != nil {
		return 0, err
	}
	d, err := descFor(parent, key)
	if err != nil {
		return 0, err
	}
	return nodeSize(d, parent, node, key, nil, 0, 0)
}

func nodeSize(d *Desc, parent Block, node any, key Key, buf *binio.Reader, rootOff, off int64) (int64, error) {
	if d.Size.IsSet() {
		return d.Size.Resolve(&RuleCtx{
			Parent:     parent,
			Node:       node,
			Key:        key,
			Buf:        buf,
			RootOffset: rootOff,
			Offset:     off,
		})
	}
	t := d.Type
	if t == nil {
		return 0, nil
	}
	if t.isVarSize {
		return t.sizeCalc(t, node, d)
	}
	return t.size, nil
}

// SetSizeOf stores a new size for the entry at key through its SIZE rule.
// A size declared as an integer literal is part of the layout, not of the
// data, so writing it here fails with ErrSizeStatic; grow it by editing a
// forked descriptor instead.
func SetSizeOf(parent Block, key Key, n int64) error {
	node, err := parent.child(key)
	if err != nil {
		return err
	}
	d, err := descFor(parent, key)
	if err != nil {
		return err
	}
	if !d.Size.IsSet() {
		return fmt.Errorf("%w: %s%s has a type-computed size", binio.ErrSizeStatic,
			d.Name, key)
	}
	if _, lit := d.Size.Literal(); lit {
		return fmt.Errorf("%w: %s%s", binio.ErrSizeStatic, d.Name, key)
	}
	return d.Size.Assign(&RuleCtx{Parent: parent, Node: node, Key: key}, n)
}

// growSize records that the entry at key now needs newSize bytes (or
// elements, for arrays). Path and computed rules are written through;
// literal rules only ever grow, by forking the owning descriptor, so
// shrinking edits never silently truncate a layout.
func growSize(parent Block, key Key, node any, newSize int64) error {
	d, err := descFor(parent, key)
	if err != nil {
		return err
	}
	if !d.Size.IsSet() {
		// Type-computed sizes track the value by themselves.
		return nil
	}
	if lit, ok := d.Size.Literal(); ok {
		if newSize <= lit {
			return nil
		}
		if b, ok := node.(Block); ok && b != nil {
			nd := b.Desc().MakeUnique()
			nd.Size = LitRule(newSize)
			b.SetDesc(nd)
			return nil
		}
		pd := parent.Desc().MakeUnique()
		i, err := pd.entryIndex(key)
		if err != nil {
			return err
		}
		ed := pd.Entries[i].MakeUnique()
		ed.Size = LitRule(newSize)
		pd.Entries[i] = ed
		parent.SetDesc(pd)
		return nil
	}
	return d.Size.Assign(&RuleCtx{Parent: parent, Node: node, Key: key}, newSize)
}

// RestoreDesc reverts an instance-specific descriptor fork, putting the
// node back on the shared template.
func RestoreDesc(b Block) {
	if d := b.Desc(); d.Orig != nil {
		b.SetDesc(d.Orig)
	}
}

// reparent attaches v to parent when it is a Block.
func reparent(parent Block, v any) {
	if b, ok := v.(Block); ok && b != nil {
		b.setParent(parent)
	}
}
