package field_test

import (
	"testing"

	"github.com/maxatome/go-testdeep/td"

	"github.com/binstruct/bindef/field"
)

func TestSetPointersLaysTargetsOut(t *testing.T) {
	bd := mustDef(t, "f", field.Container("f",
		field.UInt8("p1"),
		field.UInt8("p2"),
		field.BytesRaw("a", 3).WithPointerPath(".p1"),
		field.BytesRaw("b", 3).WithPointerPath(".p2"),
	))

	v, err := field.BuildDefault(bd.Desc, nil)
	if err != nil {
		t.Fatal(err)
	}
	node := v.(field.Block)
	if err := node.Set(field.Named("a"), []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := node.Set(field.Named("b"), []byte{4, 5, 6}); err != nil {
		t.Fatal(err)
	}

	if err := field.SetPointers(node, 0); err != nil {
		t.Fatalf("SetPointers: %v", err)
	}

	// The two targets land after the inline fields, back to back.
	td.Cmp(t, get(t, node, "p1"), int64(2))
	td.Cmp(t, get(t, node, "p2"), int64(5))

	out, _, err := field.SerializeRoot(node, nil)
	if err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, out, []byte{2, 5, 1, 2, 3, 4, 5, 6})
}

func TestRecomputePointersLeavesTreeAlone(t *testing.T) {
	bd := mustDef(t, "f", field.Container("f",
		field.UInt8("p1"),
		field.BytesRaw("a", 3).WithPointerPath(".p1"),
	))

	v, err := field.BuildDefault(bd.Desc, nil)
	if err != nil {
		t.Fatal(err)
	}
	node := v.(field.Block)
	if err := node.Set(field.Named("a"), []byte{7, 8, 9}); err != nil {
		t.Fatal(err)
	}

	out, _, err := field.SerializeRoot(node, &field.SerializeOpts{RecomputePointers: true})
	if err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, out, []byte{1, 7, 8, 9})

	// The pre-pass ran on a copy; the caller's tree is untouched.
	td.Cmp(t, get(t, node, "p1"), uint64(0))
}

func TestSetPointersFollowsChains(t *testing.T) {
	// b is only reachable through a's subtree, so it must be placed in the
	// second level, after a.
	bd := mustDef(t, "f", field.Container("f",
		field.UInt8("p1"),
		field.Container("a",
			field.UInt8("p2"),
			field.BytesRaw("inner", 2).WithPointerPath(".p2"),
		).WithPointerPath(".p1"),
	))

	v, err := field.BuildDefault(bd.Desc, nil)
	if err != nil {
		t.Fatal(err)
	}
	node := v.(field.Block)
	a := get(t, node, "a").(field.Block)
	if err := a.Set(field.Named("inner"), []byte{0xAA, 0xBB}); err != nil {
		t.Fatal(err)
	}

	if err := field.SetPointers(node, 0); err != nil {
		t.Fatal(err)
	}

	// First sweep places p1 (1 byte). a lands at 1; its own sweep places
	// p2 and queues inner, which lands after a's inline fields.
	td.Cmp(t, get(t, node, "p1"), int64(1))
	td.Cmp(t, get(t, a, "p2"), int64(2))

	out, _, err := field.SerializeRoot(node, nil)
	if err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, out, []byte{1, 2, 0xAA, 0xBB})
}
