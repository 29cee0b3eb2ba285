package field

import (
	"fmt"
	"sort"
	"strings"

	"github.com/binstruct/bindef/binio"
)

// Severity classifies a sanitization diagnostic. Warnings describe repairs
// (compacted index gaps, ignored stray keys); errors make the definition
// unusable.
type Severity int8

const (
	SevWarning Severity = iota
	SevError
)

func (s Severity) String() string {
	if s == SevError {
		return "error"
	}
	return "warning"
}

// Diagnostic is one problem found during sanitization, located by the
// dotted path of descriptor names leading to it.
type Diagnostic struct {
	Sev  Severity
	Path string
	Msg  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s at %s: %s", d.Sev, d.Path, d.Msg)
}

// BlockDef binds an identifier and file extension to a sanitized
// descriptor. Construction sanitizes the whole Raw tree in one pass,
// accumulating every diagnostic rather than stopping at the first, so a
// definition author sees all problems at once.
type BlockDef struct {
	// ID identifies the definition, typically the format name ("tga").
	ID string

	// Ext is the file extension (".tga") the definition applies to.
	Ext string

	// Desc is the canonical descriptor. Usable only when Err is nil.
	Desc *Desc

	// Err is non-nil when sanitization reported any error diagnostic.
	Err error

	alignMode AlignMode
	endian    Endian
	diags     []Diagnostic
	errCount  int
}

// DefOption configures BlockDef construction.
type DefOption func(*BlockDef)

// WithExt sets the definition's file extension.
func WithExt(ext string) DefOption {
	return func(bd *BlockDef) { bd.Ext = ext }
}

// WithAlignMode selects automatic struct alignment. The default is
// AlignNone: entries pack end to end unless a descriptor says otherwise.
func WithAlignMode(m AlignMode) DefOption {
	return func(bd *BlockDef) { bd.alignMode = m }
}

// WithDefEndian sets the byte order inherited by entries built from
// endian-agnostic base type names.
func WithDefEndian(e Endian) DefOption {
	return func(bd *BlockDef) { bd.endian = e }
}

// NewBlockDef sanitizes root into a canonical descriptor under the given
// id. The returned BlockDef always carries the full diagnostic list; when
// any diagnostic is an error the second return is non-nil (and matches
// errors.Is against binio.ErrDescriptor) and the BlockDef is unusable for
// parsing.
func NewBlockDef(id string, root *Raw, opts ...DefOption) (*BlockDef, error) {
	bd := &BlockDef{ID: id}
	for _, o := range opts {
		o(bd)
	}

	st := &SanCtx{
		Path:      []string{id},
		Endian:    bd.endian,
		AlignMode: bd.alignMode,
	}
	bd.Desc = bd.sanitizeEntry(root, st)
	if bd.Desc != nil && bd.Desc.Name == "" {
		bd.Desc.Name = bd.sanitizeName(st, id, 0)
	}

	if bd.errCount > 0 {
		bd.Err = fmt.Errorf("%w: %q has %d errors:\n%s",
			binio.ErrDescriptor, id, bd.errCount, formatDiags(bd.diags))
		return bd, bd.Err
	}
	return bd, nil
}

// Diagnostics returns every warning and error found during sanitization.
func (bd *BlockDef) Diagnostics() []Diagnostic {
	return bd.diags
}

func formatDiags(diags []Diagnostic) string {
	lines := make([]string, 0, len(diags))
	for _, d := range diags {
		lines = append(lines, "\t"+d.String())
	}
	return strings.Join(lines, "\n")
}

// SanCtx is the state threaded through one sanitization pass.
type SanCtx struct {
	// Path locates the entry being sanitized, for diagnostics.
	Path []string

	// Endian is the inherited byte order.
	Endian Endian

	// InStruct is set while sanitizing the children of a struct, where
	// sizes must be statically known and offsets apply.
	InStruct bool

	// InBitStruct is set while sanitizing the children of a bit struct.
	InBitStruct bool

	// AlignMode is the definition's automatic alignment mode.
	AlignMode AlignMode
}

// push returns a child context located one name deeper.
func (st *SanCtx) push(name string) *SanCtx {
	ns := *st
	ns.Path = append(append([]string(nil), st.Path...), name)
	return &ns
}

func (bd *BlockDef) report(st *SanCtx, sev Severity, format string, args ...any) {
	if sev == SevError {
		bd.errCount++
	}
	bd.diags = append(bd.diags, Diagnostic{
		Sev:  sev,
		Path: strings.Join(st.Path, "."),
		Msg:  fmt.Sprintf(format, args...),
	})
}

func (bd *BlockDef) errf(st *SanCtx, format string, args ...any) {
	bd.report(st, SevError, format, args...)
}

func (bd *BlockDef) warnf(st *SanCtx, format string, args ...any) {
	bd.report(st, SevWarning, format, args...)
}

// sanitizeEntry dispatches one Raw to its type's sanitizer. It always
// returns a usable descriptor, substituting a void placeholder after an
// unrecoverable error so the pass can keep collecting diagnostics.
func (bd *BlockDef) sanitizeEntry(raw *Raw, st *SanCtx) *Desc {
	if raw == nil {
		bd.errf(st, "missing descriptor entry")
		return voidDesc("missing")
	}
	t := raw.Type
	if t == nil {
		bd.errf(st, "entry %q has no type", raw.Name)
		return voidDesc(raw.Name)
	}

	// Resolve byte order before dispatch so the sanitizer sees the final
	// type variant.
	eff := raw.Endian
	if eff == EndianNone {
		eff = st.Endian
	}
	switch eff {
	case EndianLittle:
		t = t.little
	case EndianBig:
		t = t.big
	}

	cst := st.push(raw.Name)
	if raw.Endian != EndianNone {
		cst.Endian = raw.Endian
	}

	if t.isBitBased && !st.InBitStruct && !t.isStruct {
		bd.errf(st, "bit field %q (%s) outside a bit struct", raw.Name, t.name)
		return voidDesc(raw.Name)
	}
	if st.InBitStruct && !t.isBitBased {
		bd.errf(st, "%q (%s) inside a bit struct is not bit based", raw.Name, t.name)
		return voidDesc(raw.Name)
	}
	if st.InStruct && t.isOpenEnded {
		bd.errf(st, "open-ended %q (%s) cannot live inside a struct", raw.Name, t.name)
	}

	rt := *raw
	rt.Type = t
	d := t.sanitizer(bd, &rt, cst)

	for _, k := range sortedExtraKeys(raw.Extra) {
		bd.warnf(cst, "unknown descriptor key %q ignored", k)
	}
	return d
}

func sortedExtraKeys(m map[string]any) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// reservedNames are identifiers that would shadow descriptor machinery in
// path navigation and definition files.
var reservedNames = map[string]struct{}{
	"type": {}, "name": {}, "size": {}, "entries": {}, "case": {},
	"cases": {}, "name_map": {}, "value_map": {}, "attr_offs": {},
	"align": {}, "offset": {}, "pointer": {}, "sub_struct": {},
	"steptree": {}, "default": {}, "endian": {}, "value": {},
	"orig_desc": {}, "case_map": {}, "decoder": {}, "encoder": {},
	"parent": {}, "desc": {},
}

// sanitizeName repairs a descriptor name into a valid identifier: invalid
// runs collapse to a single underscore and a leading digit gets an
// underscore prefix. Names that repair to nothing, or that collide with a
// reserved word, are errors; idx gives the fallback name.
func (bd *BlockDef) sanitizeName(st *SanCtx, name string, idx int) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range name {
		ok := r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9')
		if !ok {
			if b.Len() > 0 {
				pendingSep = true
			}
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(r)
	}
	s := b.String()
	if s != "" && s[0] >= '0' && s[0] <= '9' {
		s = "_" + s
	}
	if s == "" {
		bd.errf(st, "name %q sanitizes to nothing", name)
		return fmt.Sprintf("unnamed_%d", idx)
	}
	if _, bad := reservedNames[strings.ToLower(s)]; bad {
		bd.errf(st, "name %q is reserved", s)
		return fmt.Sprintf("unnamed_%d", idx)
	}
	return s
}

// orderChildren resolves explicit and implicit indices into a dense,
// ordered child list. Duplicate indices are errors (the later entry is
// bumped to the next free slot); gaps are compacted with a warning naming
// the entries that moved.
func (bd *BlockDef) orderChildren(st *SanCtx, children []*Raw) []*Raw {
	slots := make(map[int]*Raw, len(children))
	prev := -1
	maxPos := -1
	for _, c := range children {
		if c == nil {
			bd.errf(st, "nil child entry")
			continue
		}
		pos := c.Index
		if pos < 0 {
			pos = prev + 1
		}
		if _, taken := slots[pos]; taken {
			bd.errf(st, "entry %q duplicates index %d", c.Name, pos)
			for {
				pos++
				if _, taken := slots[pos]; !taken {
					break
				}
			}
		}
		slots[pos] = c
		prev = pos
		if pos > maxPos {
			maxPos = pos
		}
	}

	positions := make([]int, 0, len(slots))
	for p := range slots {
		positions = append(positions, p)
	}
	sort.Ints(positions)

	out := make([]*Raw, 0, len(positions))
	var moved []string
	for i, p := range positions {
		if p != i {
			moved = append(moved, slots[p].Name)
		}
		out = append(out, slots[p])
	}
	if len(moved) > 0 {
		bd.warnf(st, "index gaps compacted; moved entries: %s", strings.Join(moved, ", "))
	}
	return out
}

// registerName adds a sanitized child name to a name map, reporting
// duplicate sibling names.
func (bd *BlockDef) registerName(st *SanCtx, nm map[string]int, name string, idx int) {
	if _, dup := nm[name]; dup {
		bd.errf(st, "duplicate name %q", name)
		return
	}
	nm[name] = idx
}

// entrySize returns the statically known byte size of a sanitized entry,
// reporting an error when none exists (which only matters inside structs).
func (bd *BlockDef) entrySize(st *SanCtx, d *Desc) int64 {
	if n, ok := d.Size.Literal(); ok {
		return n
	}
	if d.Type != nil && !d.Type.isVarSize && d.Type.size > 0 && !d.Type.isBitBased {
		return d.Type.size
	}
	if st.InStruct {
		bd.errf(st, "entry %q has no statically known size", d.Name)
	}
	return 0
}

// alignOf computes the byte alignment of a struct entry. An explicit ALIGN
// always wins; otherwise AlignAuto rounds the entry's size up to a power of
// two capped at AlignMax, strings align to their character size and raw
// bytes do not align at all.
func (bd *BlockDef) alignOf(st *SanCtx, raw *Raw, d *Desc, size int64) int64 {
	if raw.Align > 0 {
		return bd.alignExplicit(st, raw)
	}
	if st.AlignMode != AlignAuto || d.Type == nil {
		return 1
	}
	switch {
	case d.Type.isRaw:
		return 1
	case d.Type.isStr:
		return pow2Ceil(d.Type.charSize)
	case d.Type.isBlock:
		if d.Align > 1 {
			return d.Align
		}
		return 1
	default:
		if size <= 0 {
			return 1
		}
		a := pow2Ceil(size)
		if a > AlignMax {
			a = AlignMax
		}
		return a
	}
}

func pow2Ceil(n int64) int64 {
	if n <= 1 {
		return 1
	}
	a := int64(1)
	for a < n {
		a <<= 1
	}
	return a
}

func alignUp(off, align int64) int64 {
	if align <= 1 {
		return off
	}
	return (off + align - 1) &^ (align - 1)
}

func voidDesc(name string) *Desc {
	return &Desc{Type: TVoid, Name: name, Align: 1}
}

// caseKeyString renders a case key deterministically for ordering and
// diagnostics.
func caseKeyString(k any) string {
	return fmt.Sprintf("%v", k)
}

// sortedCaseKeys returns the case map's keys in a stable order so case
// descriptors always get the same positional indices.
func sortedCaseKeys(cases map[any]*Raw) []any {
	keys := make([]any, 0, len(cases))
	for k := range cases {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return caseKeyString(keys[i]) < caseKeyString(keys[j])
	})
	return keys
}
