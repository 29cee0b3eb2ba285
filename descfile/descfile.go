// Package descfile loads structure definitions from YAML or JSONC files.
// A definition file names the format, optionally its file extension, byte
// order and alignment mode, and describes the root entry as a nested
// mapping. Loaded definitions go through the same sanitization as ones
// built with the field constructors.
//
// Entry mappings use the keys type, name, fields, options, element,
// steptree, cases, default_case, case, codec, size, offset, index, pointer,
// align, endian, default and value. Unrecognized keys are carried through
// and reported as sanitizer warnings rather than load failures, so a
// hand-edited file with a stray key still loads.
package descfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/binstruct/bindef/binio"
	"github.com/binstruct/bindef/field"
	"github.com/binstruct/bindef/stream"
)

// Options adjusts definition loading.
type Options struct {
	// Registry resolves type names. Nil uses the standard registry.
	Registry *field.Registry
}

// file mirrors the top level of a definition file.
type file struct {
	ID     string         `yaml:"id"`
	Ext    string         `yaml:"ext"`
	Endian string         `yaml:"endian"`
	Align  string         `yaml:"align"`
	Desc   map[string]any `yaml:"desc"`
}

// Load reads a definition file and sanitizes it. Files ending in .json or
// .jsonc are stripped of comments and trailing commas first; everything
// else is treated as YAML.
func Load(path string, o *Options) (*field.BlockDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}
	return Decode(data, o)
}

// Decode sanitizes a definition from raw YAML (or plain JSON) bytes.
func Decode(data []byte, o *Options) (*field.BlockDef, error) {
	if o == nil {
		o = &Options{}
	}
	reg := o.Registry
	if reg == nil {
		reg = field.Std
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", binio.ErrDescriptor, err)
	}
	if f.ID == "" {
		return nil, fmt.Errorf("%w: definition file has no id", binio.ErrDescriptor)
	}
	if f.Desc == nil {
		return nil, fmt.Errorf("%w: definition %q has no desc", binio.ErrDescriptor, f.ID)
	}

	var opts []field.DefOption
	if f.Ext != "" {
		opts = append(opts, field.WithExt(f.Ext))
	}
	switch strings.ToLower(f.Endian) {
	case "", "little":
	case "big":
		opts = append(opts, field.WithDefEndian(field.EndianBig))
	default:
		return nil, fmt.Errorf("%w: definition %q: endian must be little or big, not %q",
			binio.ErrDescriptor, f.ID, f.Endian)
	}
	switch strings.ToLower(f.Align) {
	case "", "none":
	case "auto":
		opts = append(opts, field.WithAlignMode(field.AlignAuto))
	default:
		return nil, fmt.Errorf("%w: definition %q: align must be none or auto, not %q",
			binio.ErrDescriptor, f.ID, f.Align)
	}

	c := &conv{reg: reg}
	root, err := c.entry(f.Desc, f.ID)
	if err != nil {
		return nil, err
	}
	return field.NewBlockDef(f.ID, root, opts...)
}

type conv struct {
	reg *field.Registry
}

// entryKeys are the mapping keys the loader interprets. Anything else lands
// in Raw.Extra for the sanitizer to warn about.
var entryKeys = map[string]bool{
	"type": true, "name": true, "fields": true, "options": true,
	"element": true, "steptree": true, "cases": true, "default_case": true,
	"case": true, "codec": true, "size": true, "offset": true,
	"index": true, "pointer": true, "align": true, "endian": true,
	"default": true, "value": true,
}

func (c *conv) entry(v any, path string) (*field.Raw, error) {
	// Options lists allow a bare string as shorthand for {name: s}.
	if s, ok := v.(string); ok {
		return &field.Raw{Name: s, Index: -1}, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s: entry is a %T, not a mapping",
			binio.ErrDescriptor, path, v)
	}

	name, _ := m["name"].(string)
	where := path
	if name != "" {
		where = path + "." + name
	}

	r, err := c.baseEntry(m, name, where)
	if err != nil {
		return nil, err
	}

	if err := c.applyScalars(r, m, where); err != nil {
		return nil, err
	}
	if sv, ok := m["steptree"]; ok {
		st, err := c.entry(sv, where+"<steptree>")
		if err != nil {
			return nil, err
		}
		r.Steptree = st
	}
	for k, v := range m {
		if !entryKeys[k] {
			r.WithExtra(k, v)
		}
	}
	return r, nil
}

// baseEntry builds the Raw skeleton: type resolution plus the structural
// keys (children, cases, codec wiring).
func (c *conv) baseEntry(m map[string]any, name, where string) (*field.Raw, error) {
	if cn, ok := m["codec"].(string); ok {
		return c.codecEntry(m, name, cn, where)
	}

	typeName, _ := m["type"].(string)
	if typeName == "" {
		// A bare option of a Bool or Enum.
		return &field.Raw{Name: name, Index: -1}, nil
	}
	t := c.reg.Lookup(typeName)
	if t == nil {
		return nil, fmt.Errorf("%w: %s: unknown type %q", binio.ErrDescriptor, where, typeName)
	}
	r := field.NewRaw(t, name)

	if fv, ok := m["fields"]; ok {
		children, err := c.entryList(fv, where)
		if err != nil {
			return nil, err
		}
		r.Children = children
	}
	if ov, ok := m["options"]; ok {
		options, err := c.entryList(ov, where)
		if err != nil {
			return nil, err
		}
		r.Children = options
	}
	if ev, ok := m["element"]; ok {
		sub, err := c.entry(ev, where+"<element>")
		if err != nil {
			return nil, err
		}
		r.SubStruct = sub
	}
	if cv, ok := m["cases"]; ok {
		cases, err := c.caseMap(cv, where)
		if err != nil {
			return nil, err
		}
		r.Cases = cases
	}
	if dv, ok := m["default_case"]; ok {
		dc, err := c.entry(dv, where+"<default>")
		if err != nil {
			return nil, err
		}
		r.CaseDefault = dc
	}
	if cv, ok := m["case"]; ok {
		cr, err := caseRule(cv)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", where, err)
		}
		r.Case = cr
	}
	return r, nil
}

// codecEntry wires a named stream codec around an element descriptor.
func (c *conv) codecEntry(m map[string]any, name, codecName, where string) (*field.Raw, error) {
	cdc := stream.Lookup(codecName)
	if cdc == nil {
		return nil, fmt.Errorf("%w: %s: unknown codec %q", binio.ErrDescriptor, where, codecName)
	}
	ev, ok := m["element"]
	if !ok {
		return nil, fmt.Errorf("%w: %s: codec entry has no element", binio.ErrDescriptor, where)
	}
	sub, err := c.entry(ev, where+"<element>")
	if err != nil {
		return nil, err
	}
	var size field.Rule
	if sv, ok := m["size"]; ok {
		size, err = sizeRule(sv)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", where, err)
		}
	}
	return field.StreamAdapter(name, sub, stream.Decoder(cdc, size), stream.Encoder(cdc)), nil
}

func (c *conv) entryList(v any, where string) ([]*field.Raw, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s: fields is a %T, not a list",
			binio.ErrDescriptor, where, v)
	}
	out := make([]*field.Raw, 0, len(list))
	for i, ev := range list {
		e, err := c.entry(ev, fmt.Sprintf("%s[%d]", where, i))
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// caseMap converts a cases mapping. Keys are written as strings; ones that
// parse as integers select on integer deciders.
func (c *conv) caseMap(v any, where string) (map[any]*field.Raw, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s: cases is a %T, not a mapping",
			binio.ErrDescriptor, where, v)
	}
	out := make(map[any]*field.Raw, len(m))
	for ks, cv := range m {
		e, err := c.entry(cv, where+"<case "+ks+">")
		if err != nil {
			return nil, err
		}
		if n, err := strconv.ParseInt(ks, 0, 64); err == nil {
			out[n] = e
		} else {
			out[ks] = e
		}
	}
	return out, nil
}

// applyScalars handles the per-entry scalar keys shared by every kind.
func (c *conv) applyScalars(r *field.Raw, m map[string]any, where string) error {
	if sv, ok := m["size"]; ok && r.Decoder == nil {
		size, err := sizeRule(sv)
		if err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
		r.Size = size
	}
	if pv, ok := m["pointer"]; ok {
		ptr, err := sizeRule(pv)
		if err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
		r.Pointer = ptr
	}
	if ov, ok := m["offset"]; ok {
		n, ok := asInt64(ov)
		if !ok {
			return fmt.Errorf("%w: %s: offset is a %T, not an integer",
				binio.ErrDescriptor, where, ov)
		}
		r.WithOffset(n)
	}
	if iv, ok := m["index"]; ok {
		n, ok := asInt64(iv)
		if !ok {
			return fmt.Errorf("%w: %s: index is a %T, not an integer",
				binio.ErrDescriptor, where, iv)
		}
		r.Index = int(n)
	}
	if av, ok := m["align"]; ok {
		n, ok := asInt64(av)
		if !ok {
			return fmt.Errorf("%w: %s: align is a %T, not an integer",
				binio.ErrDescriptor, where, av)
		}
		r.Align = n
	}
	if ev, ok := m["endian"].(string); ok {
		switch strings.ToLower(ev) {
		case "little":
			r.Endian = field.EndianLittle
		case "big":
			r.Endian = field.EndianBig
		default:
			return fmt.Errorf("%w: %s: endian must be little or big, not %q",
				binio.ErrDescriptor, where, ev)
		}
	}
	if dv, ok := m["default"]; ok {
		r.Default = dv
	}
	if vv, ok := m["value"]; ok {
		n, ok := asInt64(vv)
		if !ok {
			return fmt.Errorf("%w: %s: value is a %T, not an integer",
				binio.ErrDescriptor, where, vv)
		}
		r.Value = &n
	}
	return nil
}

// caseRule coerces a case key: integers select a fixed case, strings read
// the deciding value from a path.
func caseRule(v any) (field.CaseRule, error) {
	if n, ok := asInt64(v); ok {
		return field.LitCase(n), nil
	}
	if s, ok := v.(string); ok {
		return field.PathCase(s), nil
	}
	return field.CaseRule{}, fmt.Errorf("%w: %T is not an integer or path", binio.ErrDescriptor, v)
}

// sizeRule coerces a size or pointer key: integers are literals, strings
// are paths.
func sizeRule(v any) (field.Rule, error) {
	if n, ok := asInt64(v); ok {
		return field.LitRule(n), nil
	}
	if s, ok := v.(string); ok {
		return field.PathRule(s), nil
	}
	return field.Rule{}, fmt.Errorf("%w: %T is not an integer or path", binio.ErrDescriptor, v)
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}
