package field

import (
	"fmt"

	"github.com/binstruct/bindef/binio"
)

// EnumBlock holds one decoded enumeration value and resolves it against the
// descriptor's options.
type EnumBlock struct {
	desc   *Desc
	parent Block
	data   int64
}

// NewEnumBlock returns an EnumBlock holding v.
func NewEnumBlock(d *Desc, parent Block, v int64) *EnumBlock {
	return &EnumBlock{desc: d, parent: parent, data: v}
}

func (b *EnumBlock) Desc() *Desc       { return b.desc }
func (b *EnumBlock) SetDesc(d *Desc)   { b.desc = d }
func (b *EnumBlock) Parent() Block     { return b.parent }
func (b *EnumBlock) setParent(p Block) { b.parent = p }
func (b *EnumBlock) Len() int          { return 0 }

// Value returns the raw enumeration value, which may name no option when
// the buffer held something unexpected.
func (b *EnumBlock) Value() int64 { return b.data }

// SetValue stores a raw enumeration value without validation.
func (b *EnumBlock) SetValue(v int64) { b.data = v }

// OptionName returns the name of the active option, or "" when the value
// matches none.
func (b *EnumBlock) OptionName() string {
	if i, ok := b.desc.ValueMap[b.data]; ok {
		return b.desc.Entries[i].Name
	}
	return ""
}

// SetTo selects the option called name.
func (b *EnumBlock) SetTo(name string) error {
	i, ok := b.desc.NameMap[name]
	if !ok {
		return fmt.Errorf("%w: enum %s has no option %q",
			binio.ErrDescriptor, b.desc.Name, name)
	}
	b.data = b.desc.Entries[i].Value
	return nil
}

func (b *EnumBlock) Get(key Key) (any, error)  { return b.child(key) }
func (b *EnumBlock) Set(key Key, v any) error  { return b.setChild(key, v) }
func (b *EnumBlock) child(key Key) (any, error) {
	return nil, fmt.Errorf("%w: enum %s has no entries", binio.ErrDescriptor, b.desc.Name)
}
func (b *EnumBlock) setChild(key Key, v any) error {
	return fmt.Errorf("%w: enum %s has no entries", binio.ErrDescriptor, b.desc.Name)
}

// BoolBlock holds one decoded flag set. Individual flags are addressable by
// option name, so descriptor paths can read them.
type BoolBlock struct {
	desc   *Desc
	parent Block
	data   int64
}

// NewBoolBlock returns a BoolBlock holding v.
func NewBoolBlock(d *Desc, parent Block, v int64) *BoolBlock {
	return &BoolBlock{desc: d, parent: parent, data: v}
}

func (b *BoolBlock) Desc() *Desc       { return b.desc }
func (b *BoolBlock) SetDesc(d *Desc)   { b.desc = d }
func (b *BoolBlock) Parent() Block     { return b.parent }
func (b *BoolBlock) setParent(p Block) { b.parent = p }
func (b *BoolBlock) Len() int          { return len(b.desc.Entries) }

// Value returns the whole flag set as an integer.
func (b *BoolBlock) Value() int64 { return b.data }

// SetValue stores the whole flag set.
func (b *BoolBlock) SetValue(v int64) { b.data = v }

// Test reports whether the flag called name is set. Unknown names read as
// false.
func (b *BoolBlock) Test(name string) bool {
	i, ok := b.desc.NameMap[name]
	if !ok {
		return false
	}
	return b.data&b.desc.Entries[i].Value != 0
}

// SetFlag sets or clears one flag by name.
func (b *BoolBlock) SetFlag(name string, on bool) error {
	i, ok := b.desc.NameMap[name]
	if !ok {
		return fmt.Errorf("%w: bool %s has no flag %q",
			binio.ErrDescriptor, b.desc.Name, name)
	}
	if on {
		b.data |= b.desc.Entries[i].Value
	} else {
		b.data &^= b.desc.Entries[i].Value
	}
	return nil
}

func (b *BoolBlock) Get(key Key) (any, error) { return b.child(key) }

func (b *BoolBlock) Set(key Key, v any) error { return b.setChild(key, v) }

func (b *BoolBlock) child(key Key) (any, error) {
	i, err := b.desc.entryIndex(key)
	if err != nil {
		return nil, err
	}
	return b.data&b.desc.Entries[i].Value != 0, nil
}

func (b *BoolBlock) setChild(key Key, v any) error {
	i, err := b.desc.entryIndex(key)
	if err != nil {
		return err
	}
	on, ok := v.(bool)
	if !ok {
		n, err := toInt64(v)
		if err != nil {
			return fmt.Errorf("%w: flag %s takes a bool", binio.ErrDescriptor, key)
		}
		on = n != 0
	}
	if on {
		b.data |= b.desc.Entries[i].Value
	} else {
		b.data &^= b.desc.Entries[i].Value
	}
	return nil
}

// UnionBlock stores a union's fixed-size raw region. The active case is
// decoded from it on demand and flushed back before the union serializes,
// so switching cases or hand-editing the raw bytes never loses data.
type UnionBlock struct {
	desc   *Desc
	parent Block
	raw    []byte
	active int
	cache  Block
}

// NewUnionBlock returns a UnionBlock with a zeroed raw region and no active
// case.
func NewUnionBlock(d *Desc, parent Block) *UnionBlock {
	size, _ := d.Size.Literal()
	return &UnionBlock{
		desc:   d,
		parent: parent,
		raw:    make([]byte, size),
		active: -1,
	}
}

func (b *UnionBlock) Desc() *Desc       { return b.desc }
func (b *UnionBlock) SetDesc(d *Desc)   { b.desc = d }
func (b *UnionBlock) Parent() Block     { return b.parent }
func (b *UnionBlock) setParent(p Block) { b.parent = p }
func (b *UnionBlock) Len() int          { return 0 }

// Raw returns the union's backing bytes. Mutations are visible to the next
// SetActive decode.
func (b *UnionBlock) Raw() []byte { return b.raw }

// SetRaw replaces the backing bytes, which must match the union's size,
// and drops any decoded case view.
func (b *UnionBlock) SetRaw(raw []byte) error {
	if int64(len(raw)) != int64(len(b.raw)) {
		return fmt.Errorf("%w: union %s is %d bytes, got %d",
			binio.ErrMalformed, b.desc.Name, len(b.raw), len(raw))
	}
	copy(b.raw, raw)
	b.active = -1
	b.cache = nil
	return nil
}

// ActiveIndex returns the positional index of the active case, -1 for
// none.
func (b *UnionBlock) ActiveIndex() int { return b.active }

// Active returns the decoded view of the active case, decoding it from the
// raw region on first use. Nil with no error when no case is active.
func (b *UnionBlock) Active() (Block, error) {
	if b.active < 0 {
		return nil, nil
	}
	if b.cache != nil {
		return b.cache, nil
	}
	v, err := decodeUnionCase(b, b.desc.Entries[b.active])
	if err != nil {
		return nil, err
	}
	b.cache = v
	return v, nil
}

// SetActive switches the active case by case key, flushing the previous
// case view into the raw region first. A nil key deactivates.
func (b *UnionBlock) SetActive(caseKey any) (Block, error) {
	if err := b.Flush(); err != nil {
		return nil, err
	}
	b.cache = nil
	if caseKey == nil {
		b.active = -1
		return nil, nil
	}
	i, ok := b.desc.CaseMap[normCaseKey(caseKey)]
	if !ok {
		b.active = -1
		return nil, fmt.Errorf("%w: union %s has no case %v",
			binio.ErrNoCase, b.desc.Name, caseKey)
	}
	b.active = i
	return b.Active()
}

// setActiveIndex is the parse-time path: it selects without decoding.
func (b *UnionBlock) setActiveIndex(i int) {
	b.active = i
	b.cache = nil
}

// Flush serializes the decoded case view back into the raw region. Without
// a decoded view it is a no-op.
func (b *UnionBlock) Flush() error {
	if b.cache == nil {
		return nil
	}
	return encodeUnionCase(b, b.cache)
}

func (b *UnionBlock) Get(key Key) (any, error)  { return b.child(key) }
func (b *UnionBlock) Set(key Key, v any) error  { return b.setChild(key, v) }
func (b *UnionBlock) child(key Key) (any, error) {
	return nil, fmt.Errorf("%w: union %s entries live on the active case",
		binio.ErrDescriptor, b.desc.Name)
}
func (b *UnionBlock) setChild(key Key, v any) error {
	return fmt.Errorf("%w: union %s entries live on the active case",
		binio.ErrDescriptor, b.desc.Name)
}

// StreamBlock wraps the substruct parsed from a stream adapter's derived
// stream.
type StreamBlock struct {
	desc   *Desc
	parent Block
	data   any
}

// NewStreamBlock returns an empty StreamBlock.
func NewStreamBlock(d *Desc, parent Block) *StreamBlock {
	return &StreamBlock{desc: d, parent: parent}
}

func (b *StreamBlock) Desc() *Desc       { return b.desc }
func (b *StreamBlock) SetDesc(d *Desc)   { b.desc = d }
func (b *StreamBlock) Parent() Block     { return b.parent }
func (b *StreamBlock) setParent(p Block) { b.parent = p }
func (b *StreamBlock) Len() int          { return 1 }

// Data returns the decoded substruct node.
func (b *StreamBlock) Data() any { return b.data }

func (b *StreamBlock) Get(key Key) (any, error) { return b.child(key) }

func (b *StreamBlock) Set(key Key, v any) error { return b.setChild(key, v) }

func (b *StreamBlock) child(key Key) (any, error) {
	if key.Index == 0 || key.Name == "data" ||
		(b.desc.SubStruct != nil && key.Name == b.desc.SubStruct.Name) {
		return b.data, nil
	}
	return nil, fmt.Errorf("%w: stream adapter %s holds a single entry",
		binio.ErrDescriptor, b.desc.Name)
}

func (b *StreamBlock) setChild(key Key, v any) error {
	if key.Index == 0 || key.Name == "data" ||
		(b.desc.SubStruct != nil && key.Name == b.desc.SubStruct.Name) {
		reparent(b, v)
		b.data = v
		return nil
	}
	return fmt.Errorf("%w: stream adapter %s holds a single entry",
		binio.ErrDescriptor, b.desc.Name)
}

// VoidBlock is a placeholder node: the default case of a switch with no
// match, or the substitute for an entry that failed sanitization.
type VoidBlock struct {
	desc   *Desc
	parent Block
}

// NewVoidBlock returns a VoidBlock.
func NewVoidBlock(d *Desc, parent Block) *VoidBlock {
	return &VoidBlock{desc: d, parent: parent}
}

func (b *VoidBlock) Desc() *Desc       { return b.desc }
func (b *VoidBlock) SetDesc(d *Desc)   { b.desc = d }
func (b *VoidBlock) Parent() Block     { return b.parent }
func (b *VoidBlock) setParent(p Block) { b.parent = p }
func (b *VoidBlock) Len() int          { return 0 }

func (b *VoidBlock) Get(key Key) (any, error)  { return b.child(key) }
func (b *VoidBlock) Set(key Key, v any) error  { return b.setChild(key, v) }
func (b *VoidBlock) child(key Key) (any, error) {
	return nil, fmt.Errorf("%w: void %s has no entries", binio.ErrDescriptor, b.desc.Name)
}
func (b *VoidBlock) setChild(key Key, v any) error {
	return fmt.Errorf("%w: void %s has no entries", binio.ErrDescriptor, b.desc.Name)
}
