package field

import (
	"fmt"
	"strings"

	"github.com/binstruct/bindef/binio"
)

// RuleCtx carries the evaluation context handed to size, pointer, case and
// continuation rules: the node the rule belongs to, its parent, and (during
// parsing only) the buffer positioned where the decision is being made.
type RuleCtx struct {
	// Parent is the hierarchy node holding the entry the rule applies to.
	Parent Block

	// Node is the entry's current value. Nil while parsing a node that does
	// not exist yet.
	Node any

	// Key locates the entry within Parent.
	Key Key

	// Buf is the read buffer. Nil while serializing.
	Buf *binio.Reader

	// RootOffset is the offset the root node was parsed or serialized at.
	RootOffset int64

	// Offset is the current working offset relative to RootOffset.
	Offset int64
}

// RuleFunc computes an integer metric (size or pointer) for a node.
type RuleFunc func(ctx *RuleCtx) (int64, error)

// RuleSetFunc stores a recomputed metric back wherever the matching
// RuleFunc reads it from.
type RuleSetFunc func(ctx *RuleCtx, v int64) error

type ruleKind int8

const (
	ruleNone ruleKind = iota
	ruleLit
	rulePath
	ruleFunc
)

// Rule is a SIZE or POINTER entry: a literal byte count, a dotted path to a
// sibling field holding the value, or a function pair. The zero Rule means
// the entry is absent.
type Rule struct {
	kind ruleKind
	lit  int64
	path string
	get  RuleFunc
	set  RuleSetFunc
}

// LitRule returns a literal integer rule.
func LitRule(n int64) Rule { return Rule{kind: ruleLit, lit: n} }

// PathRule returns a rule that reads (and writes) the field at a dotted
// path. Paths starting with "." are relative to the node the rule belongs
// to, with each further leading "." stepping one level up; other paths
// start at the root node.
func PathRule(path string) Rule { return Rule{kind: rulePath, path: path} }

// FuncRule returns a computed rule. set may be nil for read-only rules;
// pointer recomputation and size updates fail on such rules.
func FuncRule(get RuleFunc, set RuleSetFunc) Rule {
	return Rule{kind: ruleFunc, get: get, set: set}
}

// IsSet reports whether the rule is present.
func (r Rule) IsSet() bool { return r.kind != ruleNone }

// Literal returns the literal value and whether the rule is a literal.
func (r Rule) Literal() (int64, bool) { return r.lit, r.kind == ruleLit }

// Path returns the path and whether the rule is path-based.
func (r Rule) Path() (string, bool) { return r.path, r.kind == rulePath }

// Resolve evaluates the rule against ctx.
func (r Rule) Resolve(ctx *RuleCtx) (int64, error) {
	switch r.kind {
	case ruleLit:
		return r.lit, nil
	case rulePath:
		v, err := resolvePath(ctx.Parent, ctx.Node, r.path)
		if err != nil {
			return 0, err
		}
		n, err := toInt64(v)
		if err != nil {
			return 0, fmt.Errorf("%w: path %q: %v", binio.ErrMalformed, r.path, err)
		}
		return n, nil
	case ruleFunc:
		return r.get(ctx)
	default:
		return 0, fmt.Errorf("%w: rule is unset", binio.ErrDescriptor)
	}
}

// Assign writes v back through the rule. Literal rules cannot be assigned
// through Assign; callers that need to change them fork the descriptor.
func (r Rule) Assign(ctx *RuleCtx, v int64) error {
	switch r.kind {
	case rulePath:
		return assignPath(ctx.Parent, ctx.Node, r.path, v)
	case ruleFunc:
		if r.set == nil {
			return fmt.Errorf("%w: computed rule has no setter", binio.ErrDescriptor)
		}
		return r.set(ctx, v)
	default:
		return fmt.Errorf("%w: cannot assign through a literal rule", binio.ErrDescriptor)
	}
}

// CaseFunc decides which case of a switch or union applies. During parsing
// ctx.Buf is seeked to the position the selected case would be read from.
type CaseFunc func(ctx *RuleCtx) (any, error)

// CaseRule is a switch or union CASE entry: a literal case key, a dotted
// path to the deciding field, or a function. The zero CaseRule is absent.
type CaseRule struct {
	kind ruleKind
	lit  any
	path string
	fn   CaseFunc
}

// LitCase returns a fixed case selection.
func LitCase(v any) CaseRule { return CaseRule{kind: ruleLit, lit: normCaseKey(v)} }

// PathCase returns a case rule reading the deciding value from a path.
func PathCase(path string) CaseRule { return CaseRule{kind: rulePath, path: path} }

// FuncCase returns a computed case rule.
func FuncCase(fn CaseFunc) CaseRule { return CaseRule{kind: ruleFunc, fn: fn} }

// IsSet reports whether the rule is present.
func (c CaseRule) IsSet() bool { return c.kind != ruleNone }

// Resolve evaluates the decider and returns the normalized case key.
func (c CaseRule) Resolve(ctx *RuleCtx) (any, error) {
	switch c.kind {
	case ruleLit:
		return c.lit, nil
	case rulePath:
		v, err := resolvePath(ctx.Parent, ctx.Node, c.path)
		if err != nil {
			return nil, err
		}
		return normCaseKey(v), nil
	case ruleFunc:
		v, err := c.fn(ctx)
		if err != nil {
			return nil, err
		}
		return normCaseKey(v), nil
	default:
		return nil, fmt.Errorf("%w: case rule is unset", binio.ErrDescriptor)
	}
}

// WhileFunc is the continuation decider of a while-array, evaluated before
// each element. Returning false ends the array.
type WhileFunc func(ctx *RuleCtx) (bool, error)

// normCaseKey folds every integer kind to int64 so a case keyed 3 matches a
// decider field decoded as uint64(3). Other values are used as-is and must
// be comparable.
func normCaseKey(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	case *EnumBlock:
		return n.Value()
	default:
		return v
	}
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case uint64:
		if n > uint64(binio.TooBig) {
			return 0, fmt.Errorf("value %d exceeds sanity limit", n)
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case *EnumBlock:
		return n.Value(), nil
	case *BoolBlock:
		return n.Value(), nil
	default:
		return 0, fmt.Errorf("value %T is not an integer", v)
	}
}

// resolvePath walks a dotted path from a node. A leading empty segment
// makes the path relative: the first "." steps from node to parent, each
// further "." one more level up. Without a leading ".", navigation starts
// at the root of the tree and descends by name.
func resolvePath(parent Block, node any, path string) (any, error) {
	segs := strings.Split(path, ".")
	if len(segs) == 0 || path == "" {
		return nil, fmt.Errorf("%w: empty path", binio.ErrDescriptor)
	}

	var cur any
	i := 0
	if segs[0] == "" {
		cur = parent
		i = 1
		for i < len(segs) && segs[i] == "" {
			b, ok := cur.(Block)
			if !ok || b == nil || b.Parent() == nil {
				return nil, fmt.Errorf("%w: path %q steps above the root",
					binio.ErrDescriptor, path)
			}
			cur = b.Parent()
			i++
		}
	} else {
		if parent == nil {
			return nil, fmt.Errorf("%w: absolute path %q with no tree", binio.ErrDescriptor, path)
		}
		cur = rootOf(parent)
	}

	for ; i < len(segs); i++ {
		b, ok := cur.(Block)
		if !ok || b == nil {
			return nil, fmt.Errorf("%w: path %q: %q is not a hierarchy node",
				binio.ErrDescriptor, path, segs[i])
		}
		v, err := b.Get(Named(segs[i]))
		if err != nil {
			return nil, fmt.Errorf("path %q: %w", path, err)
		}
		cur = v
	}
	return cur, nil
}

// assignPath resolves all but the last segment of path like resolvePath and
// sets the final field to v.
func assignPath(parent Block, node any, path string, v int64) error {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return fmt.Errorf("%w: path %q has no field segment", binio.ErrDescriptor, path)
	}
	head, last := path[:i], path[i+1:]
	if last == "" {
		return fmt.Errorf("%w: path %q ends in a separator", binio.ErrDescriptor, path)
	}

	var holder any
	var err error
	if head == "" {
		// Path like ".count": the field lives on the node's parent.
		holder = parent
	} else {
		holder, err = resolvePath(parent, node, head)
		if err != nil {
			return err
		}
	}
	b, ok := holder.(Block)
	if !ok || b == nil {
		return fmt.Errorf("%w: path %q: target holder is not a hierarchy node",
			binio.ErrDescriptor, path)
	}
	return b.Set(Named(last), v)
}

// rootOf returns the topmost ancestor of b.
func rootOf(b Block) Block {
	for b.Parent() != nil {
		b = b.Parent()
	}
	return b
}
