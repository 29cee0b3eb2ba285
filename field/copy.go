package field

import (
	"fmt"
	"math/big"

	"github.com/binstruct/bindef/binio"
)

// CopyTree deep copies a node tree, attaching the copy under parent (nil
// for a detached root). Descriptors are shared, not copied; instance forks
// travel with the node that owns them. Byte slices and big integers are
// copied so the trees share no mutable state.
func CopyTree(node any, parent Block) (any, error) {
	switch b := node.(type) {
	case nil:
		return nil, nil

	case *ListBlock:
		nb := &ListBlock{
			desc:    b.desc,
			parent:  parent,
			entries: make([]any, len(b.entries)),
		}
		for i, e := range b.entries {
			cp, err := CopyTree(e, nb)
			if err != nil {
				return nil, err
			}
			nb.entries[i] = cp
		}
		st, err := CopyTree(b.steptree, nb)
		if err != nil {
			return nil, err
		}
		nb.steptree = st
		return nb, nil

	case *ArrayBlock:
		nb := &ArrayBlock{
			desc:    b.desc,
			parent:  parent,
			entries: make([]any, len(b.entries)),
		}
		for i, e := range b.entries {
			cp, err := CopyTree(e, nb)
			if err != nil {
				return nil, err
			}
			nb.entries[i] = cp
		}
		st, err := CopyTree(b.steptree, nb)
		if err != nil {
			return nil, err
		}
		nb.steptree = st
		return nb, nil

	case *UnionBlock:
		// Flush so the copy's raw region reflects any case edits without
		// having to copy the decoded view.
		if err := b.Flush(); err != nil {
			return nil, err
		}
		nb := &UnionBlock{
			desc:   b.desc,
			parent: parent,
			raw:    append([]byte(nil), b.raw...),
			active: b.active,
		}
		return nb, nil

	case *StreamBlock:
		nb := &StreamBlock{desc: b.desc, parent: parent}
		cp, err := CopyTree(b.data, nb)
		if err != nil {
			return nil, err
		}
		nb.data = cp
		return nb, nil

	case *EnumBlock:
		return &EnumBlock{desc: b.desc, parent: parent, data: b.data}, nil

	case *BoolBlock:
		return &BoolBlock{desc: b.desc, parent: parent, data: b.data}, nil

	case *VoidBlock:
		return &VoidBlock{desc: b.desc, parent: parent}, nil

	case []byte:
		return append([]byte(nil), b...), nil

	case *big.Int:
		return new(big.Int).Set(b), nil

	case uint64, int64, float64, string, bool:
		return b, nil

	default:
		if _, ok := node.(Block); ok {
			return nil, fmt.Errorf("%w: cannot copy %T", binio.ErrDescriptor, node)
		}
		return node, nil
	}
}
