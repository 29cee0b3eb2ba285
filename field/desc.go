package field

import (
	"fmt"

	"github.com/binstruct/bindef/binio"
)

// StreamDecoder derives a readable byte stream for a stream adapter's
// substruct from the raw buffer, returning the derived bytes and how many
// bytes of the original stream were consumed.
type StreamDecoder func(parent Block, buf *binio.Reader, rootOffset, offset int64) (derived []byte, consumed int64, err error)

// StreamEncoder converts a substruct's serialized bytes back into the
// on-disk representation.
type StreamEncoder func(parent Block, serialized []byte) ([]byte, error)

// Desc is a canonical descriptor: the sanitized, validated form of a Raw.
// Desc trees are produced once per BlockDef and shared by every node parsed
// with it, so they must be treated as immutable. A node needing an
// instance-specific change (a grown array, an updated pointer literal)
// forks its descriptor with MakeUnique first; Orig points back at the
// shared template so RestoreDesc can revert the fork.
type Desc struct {
	Type *Type
	Name string

	Size    Rule
	Pointer Rule

	// Align is the resolved byte alignment of this entry, 1 when none.
	Align int64

	// Entries are the canonical positional children: struct and container
	// fields, bit struct fields, enum and bool options, or switch/union
	// case descriptors.
	Entries []*Desc

	// NameMap resolves sanitized entry names to Entries indices.
	NameMap map[string]int

	// AttrOffs holds each entry's offset within a struct, parallel to
	// Entries. For bit structs the unit is bits.
	AttrOffs []int64

	// SubStruct is the repeated element descriptor of arrays.
	SubStruct *Desc

	// Steptree is parsed and serialized after the whole subtree containing
	// this node has finished.
	Steptree *Desc

	// Case decides the active case of a switch or union.
	Case CaseRule

	// CaseMap resolves normalized case keys to Entries indices.
	CaseMap map[any]int

	// DefaultCase is used by switches when no case matches.
	DefaultCase *Desc

	// While is the continuation decider of a while-array.
	While WhileFunc

	// Default is the value a node gets when built without data.
	Default any

	// Value is the option value of a Bool or Enum option entry.
	Value int64

	// ValueMap resolves option values to Entries indices.
	ValueMap map[int64]int

	// Decoder and Encoder transform the byte stream for stream adapters.
	Decoder StreamDecoder
	Encoder StreamEncoder

	// Orig points at the shared descriptor this one was forked from, nil
	// for shared descriptors.
	Orig *Desc
}

// MakeUnique returns a shallow fork of d safe for instance-specific edits:
// the maps and offset table are copied, the Entries slice is copied but the
// child descriptors themselves stay shared, and Orig records d (or d's own
// origin if d is already a fork).
func (d *Desc) MakeUnique() *Desc {
	nd := *d
	if d.Orig == nil {
		nd.Orig = d
	}
	if d.Entries != nil {
		nd.Entries = append([]*Desc(nil), d.Entries...)
	}
	if d.AttrOffs != nil {
		nd.AttrOffs = append([]int64(nil), d.AttrOffs...)
	}
	if d.NameMap != nil {
		nd.NameMap = make(map[string]int, len(d.NameMap))
		for k, v := range d.NameMap {
			nd.NameMap[k] = v
		}
	}
	if d.CaseMap != nil {
		nd.CaseMap = make(map[any]int, len(d.CaseMap))
		for k, v := range d.CaseMap {
			nd.CaseMap[k] = v
		}
	}
	if d.ValueMap != nil {
		nd.ValueMap = make(map[int64]int, len(d.ValueMap))
		for k, v := range d.ValueMap {
			nd.ValueMap[k] = v
		}
	}
	return &nd
}

// entryIndex resolves a Key to a position in Entries.
func (d *Desc) entryIndex(k Key) (int, error) {
	if k.Name != "" {
		i, ok := d.NameMap[k.Name]
		if !ok {
			return 0, fmt.Errorf("%w: no entry named %q in %s",
				binio.ErrDescriptor, k.Name, d.Name)
		}
		return i, nil
	}
	if k.Index < 0 || k.Index >= len(d.Entries) {
		return 0, fmt.Errorf("%w: index %d out of range in %s (%d entries)",
			binio.ErrDescriptor, k.Index, d.Name, len(d.Entries))
	}
	return k.Index, nil
}

// entryFor returns the child descriptor a Key addresses. For arrays every
// position shares SubStruct.
func (d *Desc) entryFor(k Key) (*Desc, error) {
	if k.isSteptree() {
		if d.Steptree == nil {
			return nil, fmt.Errorf("%w: %s has no steptree", binio.ErrDescriptor, d.Name)
		}
		return d.Steptree, nil
	}
	if d.Type != nil && d.Type.isArray {
		if d.SubStruct == nil {
			return nil, fmt.Errorf("%w: array %s has no element descriptor",
				binio.ErrDescriptor, d.Name)
		}
		return d.SubStruct, nil
	}
	i, err := d.entryIndex(k)
	if err != nil {
		return nil, err
	}
	return d.Entries[i], nil
}

// RawFromDesc converts a canonical descriptor back into the authored form.
// Sanitizing the result reproduces an equivalent descriptor, which is what
// makes sanitization a fixed point; it is also the editing path for tools
// that load, tweak and re-sanitize layouts.
func RawFromDesc(d *Desc) *Raw {
	if d == nil {
		return nil
	}
	r := &Raw{
		Type:    d.Type,
		Name:    d.Name,
		Index:   -1,
		Size:    d.Size,
		Pointer: d.Pointer,
		Default: d.Default,
		Case:    d.Case,
		While:   d.While,
		Decoder: d.Decoder,
		Encoder: d.Encoder,
	}
	if d.Align > 1 {
		r.Align = d.Align
	}
	if d.Type != nil {
		r.Endian = d.Type.endian
	}

	switch {
	case d.Type != nil && (d.Type.isEnum || d.Type.isBool):
		for _, e := range d.Entries {
			v := e.Value
			r.Children = append(r.Children, &Raw{Name: e.Name, Index: -1, Value: &v})
		}
	case d.CaseMap != nil:
		r.Cases = make(map[any]*Raw, len(d.CaseMap))
		for k, i := range d.CaseMap {
			r.Cases[k] = RawFromDesc(d.Entries[i])
		}
		if d.DefaultCase != nil {
			r.CaseDefault = RawFromDesc(d.DefaultCase)
		}
	default:
		for i, e := range d.Entries {
			cr := RawFromDesc(e)
			if len(d.AttrOffs) == len(d.Entries) && d.Type != nil &&
				d.Type.isStruct && !d.Type.isBitBased {
				off := d.AttrOffs[i]
				cr.Offset = &off
			}
			r.Children = append(r.Children, cr)
		}
	}
	if d.SubStruct != nil {
		r.SubStruct = RawFromDesc(d.SubStruct)
	}
	if d.Steptree != nil {
		r.Steptree = RawFromDesc(d.Steptree)
	}
	return r
}
