package field_test

import (
	"errors"
	"testing"

	"github.com/maxatome/go-testdeep/td"

	"github.com/binstruct/bindef/binio"
	"github.com/binstruct/bindef/field"
)

func TestNeighborPaths(t *testing.T) {
	bd := mustDef(t, "doc", field.Container("doc",
		field.UInt8("width"),
		field.Struct("inner",
			field.UInt8("depth"),
		),
	))

	data := []byte{7, 3}
	node, _ := parseBlock(t, bd, data)
	inner := get(t, node, "inner").(field.Block)

	testCases := []struct {
		desc string
		path string
		want any
	}{
		{desc: "relative sibling", path: ".depth", want: uint64(3)},
		{desc: "relative through parent", path: "..width", want: uint64(7)},
		{desc: "absolute from root", path: "width", want: uint64(7)},
		{desc: "absolute nested", path: "inner.depth", want: uint64(3)},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			v, err := field.GetNeighbor(inner, field.Named("depth"), tc.path)
			if err != nil {
				t.Fatalf("GetNeighbor(%s): %v", tc.path, err)
			}
			td.Cmp(t, v, tc.want)
		})
	}

	if err := field.SetNeighbor(inner, field.Named("depth"), "..width", 9); err != nil {
		t.Fatalf("SetNeighbor: %v", err)
	}
	td.Cmp(t, get(t, node, "width"), int64(9))
}

func TestSizeOf(t *testing.T) {
	bd := mustDef(t, "doc", field.Container("doc",
		field.UInt8("n"),
		field.CStrAscii("name"),
		field.BytesRaw("blob", ".n"),
	))

	data := []byte{2, 'o', 'k', 0, 0xAA, 0xBB}
	node, _ := parseBlock(t, bd, data)

	n, err := field.SizeOf(node, field.Named("name"))
	if err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, n, int64(3)) // "ok" plus delimiter

	n, err = field.SizeOf(node, field.Named("blob"))
	if err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, n, int64(2))
}

func TestSetSizeOf(t *testing.T) {
	bd := mustDef(t, "doc", field.Container("doc",
		field.UInt8("n"),
		field.BytesRaw("blob", ".n"),
		field.BytesRaw("fixed", 4),
	))

	data := []byte{1, 0xAA, 1, 2, 3, 4}
	node, _ := parseBlock(t, bd, data)

	// Path sizes write through to the deciding field.
	if err := field.SetSizeOf(node, field.Named("blob"), 3); err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, get(t, node, "n"), int64(3))

	// Literal sizes are layout and refuse the generic path.
	err := field.SetSizeOf(node, field.Named("fixed"), 8)
	if !errors.Is(err, binio.ErrSizeStatic) {
		t.Fatalf("want ErrSizeStatic, got %v", err)
	}
}

func TestArrayGrowForksDesc(t *testing.T) {
	bd := mustDef(t, "arr", field.Array("arr", 2, field.UInt8("v")))

	data := []byte{1, 2}
	node, _ := parseBlock(t, bd, data)
	arr := node.(*field.ArrayBlock)

	// Growing past the literal count forks the array's descriptor; the
	// shared template keeps its original count.
	if err := arr.Append(uint64(3)); err != nil {
		t.Fatal(err)
	}
	got, _ := arr.Desc().Size.Literal()
	td.Cmp(t, got, int64(3))
	tmpl, _ := bd.Desc.Size.Literal()
	td.Cmp(t, tmpl, int64(2))

	if arr.Desc().Orig != bd.Desc {
		t.Fatal("fork does not point back at the shared template")
	}

	// RestoreDesc drops the fork.
	field.RestoreDesc(arr)
	if arr.Desc() != bd.Desc {
		t.Fatal("RestoreDesc did not revert to the template")
	}
}

func TestContainerInsertPop(t *testing.T) {
	bd := mustDef(t, "doc", field.Container("doc", field.UInt8("a")))
	node, _ := parseBlock(t, bd, []byte{5})
	list := node.(*field.ListBlock)

	entry := mustDef(t, "b", field.UInt16("b"))
	if err := list.Append(uint64(0x1234), entry.Desc); err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, list.Len(), 2)
	td.Cmp(t, get(t, list, "b"), uint64(0x1234))

	reserialize(t, list, []byte{5, 0x34, 0x12})

	v, err := list.Pop(0)
	if err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, v, uint64(5))
	reserialize(t, list, []byte{0x34, 0x12})

	// Structs have a fixed shape.
	sbd := mustDef(t, "s", field.Struct("s", field.UInt8("a")))
	snode, _ := parseBlock(t, sbd, []byte{1})
	err = snode.(*field.ListBlock).Append(uint64(2), entry.Desc)
	if !errors.Is(err, binio.ErrDescriptor) {
		t.Fatalf("want ErrDescriptor, got %v", err)
	}
}

func TestCopyTreeIndependence(t *testing.T) {
	bd := mustDef(t, "doc", field.Container("doc",
		field.UInt8("n"),
		field.BytesRaw("blob", 2),
	))
	node, _ := parseBlock(t, bd, []byte{1, 0xAA, 0xBB})

	cp, err := field.CopyTree(node, nil)
	if err != nil {
		t.Fatal(err)
	}
	copied := cp.(field.Block)

	if err := copied.Set(field.Named("n"), uint64(9)); err != nil {
		t.Fatal(err)
	}
	get(t, copied, "blob").([]byte)[0] = 0xFF

	td.Cmp(t, get(t, node, "n"), uint64(1))
	td.Cmp(t, get(t, node, "blob"), []byte{0xAA, 0xBB})
	td.Cmp(t, get(t, copied, "blob"), []byte{0xFF, 0xBB})
}

func TestBlockString(t *testing.T) {
	bd := mustDef(t, "doc", field.Container("doc",
		field.UInt8("n"),
		field.Enum8("kind", field.Option("none"), field.Option("rle")),
	))
	node, _ := parseBlock(t, bd, []byte{7, 1})

	s := node.String()
	td.CmpContains(t, s, "doc (Container)")
	td.CmpContains(t, s, "n (UInt8) = 7")
	td.CmpContains(t, s, "rle<1>")
}
