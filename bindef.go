// Package bindef parses, edits and serializes binary file formats described
// by declarative structure definitions.
//
// A format is described once as a descriptor tree, sanitized into a BlockDef,
// and then used to parse any number of buffers into navigable node trees:
//
//	bd, err := field.NewBlockDef("header", field.Struct("header",
//		field.UInt8("version"),
//		field.UInt16("width"),
//		field.UInt16("height"),
//	))
//	tag, err := bindef.Parse(bd, data, nil)
//	w, err := tag.Root.Get(field.Named("width"))
//
// Parsed trees serialize back to bytes, with sizes, counts and pointers
// recomputed from the edited content.
package bindef

import (
	"fmt"

	"github.com/binstruct/bindef/binio"
	"github.com/binstruct/bindef/field"
)

// ParseOptions adjusts a Parse call. The zero value parses from the start of
// the buffer with defaults.
type ParseOptions struct {
	// Offset is where parsing starts, relative to RootOffset.
	Offset int64

	// RootOffset shifts every buffer access, for structures embedded in a
	// larger file.
	RootOffset int64

	// MaxDepth overrides the recursion guard.
	MaxDepth int

	// CaseOverrides pre-answers switch deciders in encounter order.
	CaseOverrides []any

	// AllowCorrupt keeps the partially parsed tree when parsing fails,
	// recording the error on the Tag instead of returning it. Tools that
	// inspect damaged files use this to see how far parsing got.
	AllowCorrupt bool
}

// Parse decodes data into a Tag using a sanitized definition.
func Parse(bd *field.BlockDef, data []byte, o *ParseOptions) (*Tag, error) {
	if o == nil {
		o = &ParseOptions{}
	}
	if bd.Err != nil {
		return nil, fmt.Errorf("%w: definition %q is unusable", binio.ErrDescriptor, bd.ID)
	}

	v, end, err := field.ParseRoot(bd.Desc, data, &field.ParseOpts{
		Offset:        o.Offset,
		RootOffset:    o.RootOffset,
		MaxDepth:      o.MaxDepth,
		CaseOverrides: o.CaseOverrides,
	})
	tag := &Tag{Def: bd, SourceSize: end}
	if b, ok := v.(field.Block); ok {
		tag.Root = b
	}
	if err != nil {
		if !o.AllowCorrupt {
			return nil, err
		}
		tag.ParseErr = err
	}
	if tag.Root == nil {
		return nil, fmt.Errorf("%w: definition %q produced no root node",
			binio.ErrDescriptor, bd.ID)
	}
	return tag, nil
}

// New builds a Tag holding the definition's default tree, for creating files
// from scratch.
func New(bd *field.BlockDef) (*Tag, error) {
	if bd.Err != nil {
		return nil, fmt.Errorf("%w: definition %q is unusable", binio.ErrDescriptor, bd.ID)
	}
	v, err := field.BuildDefault(bd.Desc, nil)
	if err != nil {
		return nil, err
	}
	b, ok := v.(field.Block)
	if !ok {
		return nil, fmt.Errorf("%w: definition %q produced no root node",
			binio.ErrDescriptor, bd.ID)
	}
	return &Tag{Def: bd, Root: b}, nil
}
