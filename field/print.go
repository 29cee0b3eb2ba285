package field

import (
	"fmt"
	"strings"
)

// The String form of a Block is an indented dump of names, types and
// values, one entry per line. It is for humans debugging layouts, not for
// machine consumption.

func (b *ListBlock) String() string   { return dumpString(b, b.desc) }
func (b *ArrayBlock) String() string  { return dumpString(b, b.desc) }
func (b *UnionBlock) String() string  { return dumpString(b, b.desc) }
func (b *StreamBlock) String() string { return dumpString(b, b.desc) }

func (b *EnumBlock) String() string {
	if name := b.OptionName(); name != "" {
		return fmt.Sprintf("%s<%d>", name, b.data)
	}
	return fmt.Sprintf("?<%d>", b.data)
}

func (b *BoolBlock) String() string {
	var set []string
	for _, e := range b.desc.Entries {
		if b.data&e.Value != 0 {
			set = append(set, e.Name)
		}
	}
	return fmt.Sprintf("{%s}<%d>", strings.Join(set, " "), b.data)
}

func (b *VoidBlock) String() string { return "void" }

func dumpString(v any, d *Desc) string {
	var sb strings.Builder
	dumpNode(&sb, v, d, 0)
	return strings.TrimSuffix(sb.String(), "\n")
}

func dumpNode(sb *strings.Builder, v any, d *Desc, depth int) {
	indent := strings.Repeat("    ", depth)
	name, typeName := "?", "?"
	if d != nil {
		name = d.Name
		if d.Type != nil {
			typeName = d.Type.name
		}
	}

	switch b := v.(type) {
	case *ListBlock:
		fmt.Fprintf(sb, "%s%s (%s)\n", indent, name, typeName)
		for i, e := range b.entries {
			dumpNode(sb, e, b.desc.Entries[i], depth+1)
		}
		dumpSteptree(sb, b.steptree, b.desc, depth)

	case *ArrayBlock:
		fmt.Fprintf(sb, "%s%s (%s, %d elements)\n", indent, name, typeName, len(b.entries))
		for _, e := range b.entries {
			dumpNode(sb, e, childDesc(e, b.desc.SubStruct), depth+1)
		}
		dumpSteptree(sb, b.steptree, b.desc, depth)

	case *UnionBlock:
		active := "inactive"
		if b.active >= 0 {
			active = "case " + b.desc.Entries[b.active].Name
		}
		fmt.Fprintf(sb, "%s%s (%s, %d bytes, %s)\n", indent, name, typeName,
			len(b.raw), active)

	case *StreamBlock:
		fmt.Fprintf(sb, "%s%s (%s)\n", indent, name, typeName)
		dumpNode(sb, b.data, childDesc(b.data, b.desc.SubStruct), depth+1)

	case *EnumBlock, *BoolBlock:
		fmt.Fprintf(sb, "%s%s (%s) = %v\n", indent, name, typeName, v)

	case *VoidBlock:
		fmt.Fprintf(sb, "%s%s (%s)\n", indent, name, typeName)

	case []byte:
		fmt.Fprintf(sb, "%s%s (%s) = %d bytes\n", indent, name, typeName, len(b))

	case nil:
		fmt.Fprintf(sb, "%s%s (%s)\n", indent, name, typeName)

	default:
		fmt.Fprintf(sb, "%s%s (%s) = %v\n", indent, name, typeName, v)
	}
}

func dumpSteptree(sb *strings.Builder, st any, d *Desc, depth int) {
	if d.Steptree == nil {
		return
	}
	dumpNode(sb, st, childDesc(st, d.Steptree), depth+1)
}
