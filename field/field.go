// Package field implements the bindef engine: field types and their
// registry, descriptor sanitization, the runtime node model, and the
// recursive parse and serialize dispatch.
//
// A binary layout is described by a tree of Raw descriptors, built either in
// code with the constructors in this package or loaded from a definition
// file. A BlockDef sanitizes the Raw tree once into a canonical, immutable
// Desc tree, computing offsets, sizes, name maps and case maps and reporting
// every structural problem it finds in a single pass. The canonical Desc is
// then shared by every parse and serialize call against that layout.
//
// Parsing turns a Desc plus a byte buffer into a tree of nodes: hierarchy
// nodes implement Block, scalar values are stored directly as Go values
// (int64, uint64, float64, string, []byte, time.Time). Serializing walks the
// node tree back into bytes, bit-exact up to padding bytes.
package field

import "fmt"

// AlignMax is the largest byte alignment the automatic alignment routine
// will choose. Larger explicit ALIGN values are reduced to it.
const AlignMax = 8

// DefaultMaxDepth is the recursion depth guard applied to parse, serialize
// and pointer collection when no explicit limit is configured. Exceeding it
// almost always means a self-referential descriptor.
const DefaultMaxDepth = 512

// AlignMode selects how struct children are aligned when no explicit ALIGN
// is present.
type AlignMode int8

const (
	// AlignNone performs no automatic alignment; children pack end to end.
	AlignNone AlignMode = iota

	// AlignAuto aligns each child to the next power of two at or above its
	// byte size, capped at AlignMax. Explicit ALIGN entries always win.
	AlignAuto
)

// Endian identifies byte order. The zero value means "no meaning" on a Type
// (single-byte and structural types) and "inherit from the parent" on a Raw
// descriptor entry.
type Endian int8

const (
	EndianNone Endian = iota
	EndianLittle
	EndianBig
)

func (e Endian) String() string {
	switch e {
	case EndianLittle:
		return "little"
	case EndianBig:
		return "big"
	default:
		return "none"
	}
}

// Key addresses one entry of a hierarchy node, either by position or by
// sanitized name. A Key with a non-empty Name is resolved through the
// descriptor's name map; otherwise Index is used directly.
type Key struct {
	Name  string
	Index int
}

// At returns a positional Key.
func At(i int) Key { return Key{Index: i} }

// Named returns a name-based Key.
func Named(name string) Key { return Key{Name: name, Index: -1} }

// keySteptree addresses a node's steptree attachment. It is never produced
// by At or Named.
var keySteptree = Key{Index: -2, Name: "steptree"}

func (k Key) isSteptree() bool {
	return k.Index == keySteptree.Index && k.Name == keySteptree.Name
}

func (k Key) String() string {
	if k.isSteptree() {
		return ".steptree"
	}
	if k.Name != "" {
		return "." + k.Name
	}
	return fmt.Sprintf("[%d]", k.Index)
}
