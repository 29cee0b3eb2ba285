package field

import (
	"fmt"

	"github.com/binstruct/bindef/binio"
)

// ListBlock is the node form of structs, containers and bit structs: a
// fixed set of named, positional entries, plus an optional steptree
// attachment.
type ListBlock struct {
	desc     *Desc
	parent   Block
	entries  []any
	steptree any
}

// NewListBlock returns a ListBlock with one nil slot per descriptor entry.
func NewListBlock(d *Desc, parent Block) *ListBlock {
	return &ListBlock{
		desc:    d,
		parent:  parent,
		entries: make([]any, len(d.Entries)),
	}
}

func (b *ListBlock) Desc() *Desc       { return b.desc }
func (b *ListBlock) SetDesc(d *Desc)   { b.desc = d }
func (b *ListBlock) Parent() Block     { return b.parent }
func (b *ListBlock) setParent(p Block) { b.parent = p }
func (b *ListBlock) Len() int          { return len(b.entries) }

func (b *ListBlock) Get(key Key) (any, error) {
	return b.child(key)
}

func (b *ListBlock) Set(key Key, v any) error {
	return b.setChild(key, v)
}

func (b *ListBlock) child(key Key) (any, error) {
	if key.isSteptree() {
		return b.steptree, nil
	}
	i, err := b.desc.entryIndex(key)
	if err != nil {
		return nil, err
	}
	return b.entries[i], nil
}

func (b *ListBlock) setChild(key Key, v any) error {
	if key.isSteptree() {
		reparent(b, v)
		b.steptree = v
		return nil
	}
	i, err := b.desc.entryIndex(key)
	if err != nil {
		return err
	}
	reparent(b, v)
	b.entries[i] = v
	return nil
}

// Steptree returns the node attached after this block's subtree, nil when
// the descriptor declares none or nothing is attached yet.
func (b *ListBlock) Steptree() any { return b.steptree }

// SetSteptree attaches a steptree node.
func (b *ListBlock) SetSteptree(v any) error {
	if b.desc.Steptree == nil {
		return fmt.Errorf("%w: %s declares no steptree", binio.ErrDescriptor, b.desc.Name)
	}
	return b.setChild(keySteptree, v)
}

// Append adds an entry to a container, extending the descriptor with d in
// the same motion so content and layout stay in lock-step. The container's
// descriptor is forked on first use.
func (b *ListBlock) Append(v any, d *Desc) error {
	return b.Insert(len(b.entries), v, d)
}

// Insert adds an entry at position i of a container. Structs have a fixed
// shape and reject it.
func (b *ListBlock) Insert(i int, v any, d *Desc) error {
	if b.desc.Type == nil || !b.desc.Type.isContainer {
		return fmt.Errorf("%w: cannot insert into %s", binio.ErrDescriptor, b.desc.Name)
	}
	if d == nil {
		return fmt.Errorf("%w: insert into %s without a descriptor",
			binio.ErrDescriptor, b.desc.Name)
	}
	if i < 0 || i > len(b.entries) {
		return fmt.Errorf("%w: insert at %d in %s (%d entries)",
			binio.ErrDescriptor, i, b.desc.Name, len(b.entries))
	}

	nd := b.desc.MakeUnique()
	nd.Entries = append(nd.Entries, nil)
	copy(nd.Entries[i+1:], nd.Entries[i:])
	nd.Entries[i] = d
	for name, j := range nd.NameMap {
		if j >= i {
			nd.NameMap[name] = j + 1
		}
	}
	if _, dup := nd.NameMap[d.Name]; dup {
		return fmt.Errorf("%w: %s already has an entry named %q",
			binio.ErrDescriptor, b.desc.Name, d.Name)
	}
	nd.NameMap[d.Name] = i
	b.desc = nd

	b.entries = append(b.entries, nil)
	copy(b.entries[i+1:], b.entries[i:])
	reparent(b, v)
	b.entries[i] = v
	return nil
}

// Pop removes and returns the entry at position i of a container, dropping
// its descriptor entry as well.
func (b *ListBlock) Pop(i int) (any, error) {
	if b.desc.Type == nil || !b.desc.Type.isContainer {
		return nil, fmt.Errorf("%w: cannot pop from %s", binio.ErrDescriptor, b.desc.Name)
	}
	if i < 0 || i >= len(b.entries) {
		return nil, fmt.Errorf("%w: pop at %d in %s (%d entries)",
			binio.ErrDescriptor, i, b.desc.Name, len(b.entries))
	}

	nd := b.desc.MakeUnique()
	removed := nd.Entries[i]
	nd.Entries = append(nd.Entries[:i], nd.Entries[i+1:]...)
	delete(nd.NameMap, removed.Name)
	for name, j := range nd.NameMap {
		if j > i {
			nd.NameMap[name] = j - 1
		}
	}
	b.desc = nd

	v := b.entries[i]
	b.entries = append(b.entries[:i], b.entries[i+1:]...)
	return v, nil
}

// ArrayBlock is the node form of arrays and while arrays: uniform elements
// sharing one element descriptor.
type ArrayBlock struct {
	desc     *Desc
	parent   Block
	entries  []any
	steptree any
}

// NewArrayBlock returns an empty ArrayBlock.
func NewArrayBlock(d *Desc, parent Block) *ArrayBlock {
	return &ArrayBlock{desc: d, parent: parent}
}

func (b *ArrayBlock) Desc() *Desc       { return b.desc }
func (b *ArrayBlock) SetDesc(d *Desc)   { b.desc = d }
func (b *ArrayBlock) Parent() Block     { return b.parent }
func (b *ArrayBlock) setParent(p Block) { b.parent = p }
func (b *ArrayBlock) Len() int          { return len(b.entries) }

func (b *ArrayBlock) Get(key Key) (any, error) {
	return b.child(key)
}

func (b *ArrayBlock) Set(key Key, v any) error {
	return b.setChild(key, v)
}

func (b *ArrayBlock) child(key Key) (any, error) {
	if key.isSteptree() {
		return b.steptree, nil
	}
	if key.Name != "" {
		return nil, fmt.Errorf("%w: array %s is indexed by position, not %q",
			binio.ErrDescriptor, b.desc.Name, key.Name)
	}
	if key.Index < 0 || key.Index >= len(b.entries) {
		return nil, fmt.Errorf("%w: index %d out of range in %s (%d elements)",
			binio.ErrDescriptor, key.Index, b.desc.Name, len(b.entries))
	}
	return b.entries[key.Index], nil
}

func (b *ArrayBlock) setChild(key Key, v any) error {
	if key.isSteptree() {
		reparent(b, v)
		b.steptree = v
		return nil
	}
	if key.Name != "" {
		return fmt.Errorf("%w: array %s is indexed by position, not %q",
			binio.ErrDescriptor, b.desc.Name, key.Name)
	}
	if key.Index < 0 || key.Index >= len(b.entries) {
		return fmt.Errorf("%w: index %d out of range in %s (%d elements)",
			binio.ErrDescriptor, key.Index, b.desc.Name, len(b.entries))
	}
	reparent(b, v)
	b.entries[key.Index] = v
	return nil
}

// Steptree returns the node attached after this array's subtree.
func (b *ArrayBlock) Steptree() any { return b.steptree }

// SetSteptree attaches a steptree node.
func (b *ArrayBlock) SetSteptree(v any) error {
	if b.desc.Steptree == nil {
		return fmt.Errorf("%w: %s declares no steptree", binio.ErrDescriptor, b.desc.Name)
	}
	return b.setChild(keySteptree, v)
}

// Append adds an element, updating the array's size entry. Literal sizes
// only grow; path and computed sizes are written through.
func (b *ArrayBlock) Append(v any) error {
	reparent(b, v)
	b.entries = append(b.entries, v)
	return b.updateCount()
}

// Insert adds an element at position i.
func (b *ArrayBlock) Insert(i int, v any) error {
	if i < 0 || i > len(b.entries) {
		return fmt.Errorf("%w: insert at %d in %s (%d elements)",
			binio.ErrDescriptor, i, b.desc.Name, len(b.entries))
	}
	reparent(b, v)
	b.entries = append(b.entries, nil)
	copy(b.entries[i+1:], b.entries[i:])
	b.entries[i] = v
	return b.updateCount()
}

// Pop removes and returns the element at position i.
func (b *ArrayBlock) Pop(i int) (any, error) {
	if i < 0 || i >= len(b.entries) {
		return nil, fmt.Errorf("%w: pop at %d in %s (%d elements)",
			binio.ErrDescriptor, i, b.desc.Name, len(b.entries))
	}
	v := b.entries[i]
	b.entries = append(b.entries[:i], b.entries[i+1:]...)
	return v, b.updateCount()
}

// Extend appends n default-built elements.
func (b *ArrayBlock) Extend(n int) error {
	if n < 0 || int64(n) > binio.TooBig {
		return fmt.Errorf("%w: extend by %d", binio.ErrBounds, n)
	}
	for i := 0; i < n; i++ {
		v, err := BuildDefault(b.desc.SubStruct, b)
		if err != nil {
			return err
		}
		b.entries = append(b.entries, v)
	}
	return b.updateCount()
}

// updateCount keeps the declared element count in step with the content.
// While arrays have no count entry; nothing to do there.
func (b *ArrayBlock) updateCount() error {
	if !b.desc.Size.IsSet() {
		return nil
	}
	n := int64(len(b.entries))
	if lit, ok := b.desc.Size.Literal(); ok {
		if n <= lit {
			return nil
		}
		nd := b.desc.MakeUnique()
		nd.Size = LitRule(n)
		b.desc = nd
		return nil
	}
	return b.desc.Size.Assign(&RuleCtx{Parent: b.parent, Node: b}, n)
}
