package field

import (
	"fmt"

	"github.com/binstruct/bindef/binio"
)

// BuildDefault constructs the node a descriptor produces when there is no
// data to parse: hierarchy nodes with default-built children, arrays at
// their literal count, scalars at their descriptor or type default.
func BuildDefault(d *Desc, parent Block) (any, error) {
	if d == nil || d.Type == nil {
		return nil, nil
	}
	t := d.Type

	switch {
	case t.isArray:
		node := NewArrayBlock(d, parent)
		if n, ok := d.Size.Literal(); ok && !t.isOpenEnded {
			if n < 0 || n > binio.TooBig {
				return nil, fmt.Errorf("%w: element count %d", binio.ErrDescriptor, n)
			}
			if err := node.Extend(int(n)); err != nil {
				return nil, err
			}
		}
		if err := buildSteptree(d, node); err != nil {
			return nil, err
		}
		return node, nil

	case t.isStruct && t.isBitBased, t.isStruct, t.isContainer:
		node := NewListBlock(d, parent)
		for i, cd := range d.Entries {
			v, err := BuildDefault(cd, node)
			if err != nil {
				return nil, err
			}
			node.entries[i] = v
		}
		if err := buildSteptree(d, node); err != nil {
			return nil, err
		}
		return node, nil

	case t.isEnum:
		v, err := defaultInt(d, t)
		if err != nil {
			return nil, err
		}
		return NewEnumBlock(d, parent, v), nil

	case t.isBool:
		v, err := defaultInt(d, t)
		if err != nil {
			return nil, err
		}
		return NewBoolBlock(d, parent, v), nil

	case t == TUnion:
		return NewUnionBlock(d, parent), nil

	case t == TStreamAdapter:
		node := NewStreamBlock(d, parent)
		v, err := BuildDefault(d.SubStruct, node)
		if err != nil {
			return nil, err
		}
		node.data = v
		return node, nil

	case t == TSwitch:
		// With nothing to decide on, a fresh tree gets the default case.
		return BuildDefault(d.DefaultCase, parent)

	case t == TVoid:
		return NewVoidBlock(d, parent), nil

	case t == TPad:
		return nil, nil

	default:
		if d.Default != nil {
			return d.Default, nil
		}
		if t.isRaw {
			if n, ok := d.Size.Literal(); ok && n >= 0 && n <= binio.TooBig {
				return make([]byte, n), nil
			}
		}
		return t.defaultValue(), nil
	}
}

func buildSteptree(d *Desc, parent Block) error {
	if d.Steptree == nil {
		return nil
	}
	v, err := BuildDefault(d.Steptree, parent)
	if err != nil {
		return err
	}
	return parent.setChild(keySteptree, v)
}

func defaultInt(d *Desc, t *Type) (int64, error) {
	src := d.Default
	if src == nil {
		src = t.defaultValue()
	}
	if src == nil {
		return 0, nil
	}
	return toSigned64(src)
}
