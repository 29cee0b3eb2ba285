package field

// Raw is a descriptor as authored, before sanitization. Raw trees come from
// the Go constructors in this package or from descfile loading, and may be
// sloppy: gapped or duplicated indices, unsanitized names, missing values.
// A BlockDef turns a Raw tree into the canonical, immutable Desc form,
// reporting everything wrong with it along the way.
//
// Fields that do not apply to the entry's type are simply ignored-with-a-
// warning by sanitization, so a hand-edited definition file with a stray
// key degrades gracefully.
type Raw struct {
	// Type of the entry. Nil is allowed only for plain Bool/Enum options.
	Type *Type

	// Name of the entry. Sanitized into a valid identifier.
	Name string

	// Index is the explicit position of this entry among its siblings, or
	// -1 to take the slot after the previous entry. Gaps between explicit
	// indices are compacted with a warning.
	Index int

	// Offset is the explicit byte offset within the parent struct. Nil
	// means "after the previous sibling, plus alignment".
	Offset *int64

	// Size is the SIZE rule. Struct entries require integer literals.
	Size Rule

	// Pointer is the POINTER rule.
	Pointer Rule

	// Align is the explicit byte alignment, 0 for automatic.
	Align int64

	// Endian overrides the inherited byte order for this subtree.
	Endian Endian

	// Default overrides the type's default value for this entry.
	Default any

	// Value is the explicit option value of a Bool or Enum option.
	Value *int64

	// Children holds the entries of structs, containers, bit structs and
	// the options of Bool/Enum types.
	Children []*Raw

	// SubStruct is the repeated element descriptor of arrays.
	SubStruct *Raw

	// Steptree is a node parsed after the parent's whole subtree.
	Steptree *Raw

	// Case decides which case of a switch or union applies.
	Case CaseRule

	// Cases maps case keys to case descriptors for switches and unions.
	Cases map[any]*Raw

	// CaseDefault is the switch descriptor used when no case matches.
	CaseDefault *Raw

	// While is the continuation decider of a while-array.
	While WhileFunc

	// Decoder and Encoder transform the byte stream for stream adapters.
	Decoder StreamDecoder
	Encoder StreamEncoder

	// Extra carries unrecognized keys from definition files. Sanitization
	// warns about each one.
	Extra map[string]any
}

// NewRaw returns a Raw of type t with no children.
func NewRaw(t *Type, name string) *Raw {
	return &Raw{Type: t, Name: name, Index: -1}
}

// WithSize sets a literal SIZE.
func (r *Raw) WithSize(n int64) *Raw {
	r.Size = LitRule(n)
	return r
}

// WithSizePath sets a path SIZE.
func (r *Raw) WithSizePath(path string) *Raw {
	r.Size = PathRule(path)
	return r
}

// WithSizeFunc sets a computed SIZE.
func (r *Raw) WithSizeFunc(get RuleFunc, set RuleSetFunc) *Raw {
	r.Size = FuncRule(get, set)
	return r
}

// WithOffset sets an explicit struct offset.
func (r *Raw) WithOffset(off int64) *Raw {
	r.Offset = &off
	return r
}

// WithIndex sets an explicit sibling index.
func (r *Raw) WithIndex(i int) *Raw {
	r.Index = i
	return r
}

// WithPointer sets a literal POINTER.
func (r *Raw) WithPointer(off int64) *Raw {
	r.Pointer = LitRule(off)
	return r
}

// WithPointerPath sets a path POINTER.
func (r *Raw) WithPointerPath(path string) *Raw {
	r.Pointer = PathRule(path)
	return r
}

// WithPointerFunc sets a computed POINTER.
func (r *Raw) WithPointerFunc(get RuleFunc, set RuleSetFunc) *Raw {
	r.Pointer = FuncRule(get, set)
	return r
}

// WithAlign sets an explicit alignment.
func (r *Raw) WithAlign(n int64) *Raw {
	r.Align = n
	return r
}

// WithEndian forces the byte order of this subtree.
func (r *Raw) WithEndian(e Endian) *Raw {
	r.Endian = e
	return r
}

// WithDefault overrides the type's default value.
func (r *Raw) WithDefault(v any) *Raw {
	r.Default = v
	return r
}

// WithSteptree attaches a steptree descriptor.
func (r *Raw) WithSteptree(st *Raw) *Raw {
	r.Steptree = st
	return r
}

// WithExtra records an unrecognized definition-file key.
func (r *Raw) WithExtra(key string, v any) *Raw {
	if r.Extra == nil {
		r.Extra = make(map[string]any)
	}
	r.Extra[key] = v
	return r
}
