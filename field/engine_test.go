package field_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/maxatome/go-testdeep/td"

	"github.com/binstruct/bindef/binio"
	"github.com/binstruct/bindef/field"
)

// parseBlock parses data and fails the test on error.
func parseBlock(t *testing.T, bd *field.BlockDef, data []byte) (field.Block, int64) {
	t.Helper()
	v, end, err := field.ParseRoot(bd.Desc, data, nil)
	if err != nil {
		t.Fatalf("ParseRoot: %v", err)
	}
	b, ok := v.(field.Block)
	if !ok {
		t.Fatalf("root is %T, not a Block", v)
	}
	return b, end
}

// reserialize serializes node and compares the bytes against want.
func reserialize(t *testing.T, node field.Block, want []byte) {
	t.Helper()
	out, _, err := field.SerializeRoot(node, nil)
	if err != nil {
		t.Fatalf("SerializeRoot: %v", err)
	}
	td.Cmp(t, out, want)
}

func get(t *testing.T, b field.Block, name string) any {
	t.Helper()
	v, err := b.Get(field.Named(name))
	if err != nil {
		t.Fatalf("Get(%s): %v", name, err)
	}
	return v
}

func TestStructRoundTrip(t *testing.T) {
	bd := mustDef(t, "header", field.Struct("header",
		field.UInt8("version"),
		field.Pad(1),
		field.UInt16("count"),
		field.UInt32("magic").WithEndian(field.EndianBig),
	))

	data := []byte{0x01, 0x00, 0x34, 0x12, 0xDE, 0xAD, 0xBE, 0xEF}
	node, end := parseBlock(t, bd, data)

	td.Cmp(t, end, int64(8))
	td.Cmp(t, get(t, node, "version"), uint64(1))
	td.Cmp(t, get(t, node, "count"), uint64(0x1234))
	td.Cmp(t, get(t, node, "magic"), uint64(0xDEADBEEF))

	reserialize(t, node, data)
}

func TestSignedAndFloat(t *testing.T) {
	bd := mustDef(t, "vals", field.Struct("vals",
		field.SInt16("neg"),
		field.SInt24("wide"),
		field.Pad(3),
		field.Float64("f"),
	))

	data := []byte{
		0xFE, 0xFF, // -2
		0xFF, 0xFF, 0xFF, // -1 over 24 bits
		0, 0, 0,
		0, 0, 0, 0, 0, 0, 0xF0, 0x3F, // 1.0
	}
	node, _ := parseBlock(t, bd, data)

	td.Cmp(t, get(t, node, "neg"), int64(-2))
	td.Cmp(t, get(t, node, "wide"), int64(-1))
	td.Cmp(t, get(t, node, "f"), float64(1.0))

	reserialize(t, node, data)
}

func TestCStringRoundTrip(t *testing.T) {
	bd := mustDef(t, "named", field.Container("named",
		field.UInt8("n"),
		field.CStrAscii("name"),
	))

	data := []byte{5, 'h', 'i', 0}
	node, end := parseBlock(t, bd, data)

	td.Cmp(t, end, int64(4))
	td.Cmp(t, get(t, node, "name"), "hi")

	reserialize(t, node, data)
}

func TestCStrUtf16DelimiterAlignment(t *testing.T) {
	bd := mustDef(t, "w", field.Container("w", field.CStrUtf16("text")))

	// "ab": the first 00,00 byte pair straddles a character boundary and
	// must be skipped in favor of the aligned terminator.
	data := []byte{0x61, 0x00, 0x62, 0x00, 0x00, 0x00}
	node, end := parseBlock(t, bd, data)

	td.Cmp(t, end, int64(6))
	td.Cmp(t, get(t, node, "text"), "ab")

	reserialize(t, node, data)
}

func TestArrayWithPathCount(t *testing.T) {
	bd := mustDef(t, "img", field.Container("img",
		field.UInt8("count"),
		field.Array("items", ".count", field.UInt16("item")),
	))

	data := []byte{2, 0x01, 0x00, 0x02, 0x00}
	node, end := parseBlock(t, bd, data)
	td.Cmp(t, end, int64(5))

	items := get(t, node, "items").(*field.ArrayBlock)
	td.Cmp(t, items.Len(), 2)
	v0, _ := items.Get(field.At(0))
	td.Cmp(t, v0, uint64(1))

	reserialize(t, node, data)

	// Appending writes the new count back through the path rule.
	if err := items.Append(uint64(3)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	td.Cmp(t, get(t, node, "count"), int64(3))
	reserialize(t, node, []byte{3, 0x01, 0x00, 0x02, 0x00, 0x03, 0x00})
}

func TestWhileArray(t *testing.T) {
	stop := func(ctx *field.RuleCtx) (bool, error) {
		b, err := ctx.Buf.ReadAt(ctx.RootOffset+ctx.Offset, 1)
		if err != nil {
			return false, nil
		}
		return b[0] != 0xFF, nil
	}
	bd := mustDef(t, "run", field.WhileArray("run", stop, field.UInt8("v")))

	data := []byte{1, 2, 3, 0xFF}
	node, end := parseBlock(t, bd, data)

	td.Cmp(t, end, int64(3))
	arr := node.(*field.ArrayBlock)
	td.Cmp(t, arr.Len(), 3)
	v2, _ := arr.Get(field.At(2))
	td.Cmp(t, v2, uint64(3))

	// The sentinel is not part of the array and does not serialize.
	reserialize(t, node, data[:3])
}

func TestSwitchRoundTrip(t *testing.T) {
	def := field.Container("file",
		field.UInt8("kind"),
		field.Switch("body", field.PathCase(".kind"), map[any]*field.Raw{
			1: field.Struct("ints", field.UInt16("v")),
			2: field.Struct("text", field.StrAscii("s", 4)),
		}),
	)
	bd := mustDef(t, "file", def)

	t.Run("case 1", func(t *testing.T) {
		data := []byte{1, 0x34, 0x12}
		node, end := parseBlock(t, bd, data)
		td.Cmp(t, end, int64(3))

		body := get(t, node, "body").(field.Block)
		td.Cmp(t, get(t, body, "v"), uint64(0x1234))
		reserialize(t, node, data)
	})

	t.Run("case 2", func(t *testing.T) {
		data := []byte{2, 's', 't', 'r', 'x'}
		node, _ := parseBlock(t, bd, data)

		body := get(t, node, "body").(field.Block)
		td.Cmp(t, get(t, body, "s"), "strx")
		reserialize(t, node, data)
	})

	t.Run("no match takes default", func(t *testing.T) {
		data := []byte{9}
		node, end := parseBlock(t, bd, data)
		td.Cmp(t, end, int64(1))

		if _, ok := get(t, node, "body").(*field.VoidBlock); !ok {
			t.Fatalf("default case is %T, want VoidBlock", get(t, node, "body"))
		}
		reserialize(t, node, data)
	})

	t.Run("case override", func(t *testing.T) {
		data := []byte{9, 's', 't', 'r', 'x'}
		v, _, err := field.ParseRoot(bd.Desc, data, &field.ParseOpts{CaseOverrides: []any{2}})
		if err != nil {
			t.Fatalf("ParseRoot: %v", err)
		}
		body := get(t, v.(field.Block), "body").(field.Block)
		td.Cmp(t, get(t, body, "s"), "strx")
	})
}

func TestUnionDecodeEditFlush(t *testing.T) {
	bd := mustDef(t, "holder", field.Container("holder",
		field.UInt8("kind"),
		field.Union("u", field.PathCase(".kind"), map[any]*field.Raw{
			0: field.Struct("a", field.UInt16("x")),
			1: field.Struct("b", field.UInt8("y"), field.Pad(1)),
		}),
	))

	data := []byte{0, 0xCD, 0xAB}
	node, _ := parseBlock(t, bd, data)

	u := get(t, node, "u").(*field.UnionBlock)
	td.Cmp(t, u.ActiveIndex(), 0)
	td.Cmp(t, u.Raw(), []byte{0xCD, 0xAB})

	active, err := u.Active()
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	td.Cmp(t, get(t, active, "x"), uint64(0xABCD))

	// Edits to the decoded view flush back into the raw region when the
	// union serializes.
	if err := active.Set(field.Named("x"), uint64(0x1234)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	reserialize(t, node, []byte{0, 0x34, 0x12})

	// Switching cases flushes first, then decodes the same bytes anew.
	b, err := u.SetActive(1)
	if err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	td.Cmp(t, get(t, b, "y"), uint64(0x34))

	if _, err := u.SetActive(7); !errors.Is(err, binio.ErrNoCase) {
		t.Fatalf("want ErrNoCase, got %v", err)
	}
}

func TestBitStructRoundTrip(t *testing.T) {
	bd := mustDef(t, "flags", field.BitStruct("flags",
		field.Bit("on"),
		field.BitUInt("mode", 3),
		field.BitSInt("delta", 4),
	))

	data := []byte{0xB5}
	node, end := parseBlock(t, bd, data)

	td.Cmp(t, end, int64(1))
	td.Cmp(t, get(t, node, "on"), uint64(1))
	td.Cmp(t, get(t, node, "mode"), uint64(2))
	td.Cmp(t, get(t, node, "delta"), int64(-5))

	reserialize(t, node, data)
}

func TestBitStructBigEndian(t *testing.T) {
	bd := mustDef(t, "flags", field.BitStruct("flags",
		field.BitUInt("hi", 12),
		field.BitUInt("lo", 4),
	).WithEndian(field.EndianBig))

	// Big endian loads the span most significant byte first, so bit 0 is
	// the least significant bit of the last byte.
	data := []byte{0xAB, 0xC5}
	node, _ := parseBlock(t, bd, data)

	td.Cmp(t, get(t, node, "hi"), uint64(0xBC5))
	td.Cmp(t, get(t, node, "lo"), uint64(0xA))

	reserialize(t, node, data)
}

func TestPointerBytes(t *testing.T) {
	bd := mustDef(t, "root", field.Container("root",
		field.UInt8("off"),
		field.BytesRaw("blob", 3).WithPointerPath(".off"),
	))

	data := []byte{4, 9, 9, 9, 1, 2, 3}
	node, end := parseBlock(t, bd, data)

	// The pointer target is read elsewhere; the sequential offset is not
	// advanced past it.
	td.Cmp(t, end, int64(1))
	td.Cmp(t, get(t, node, "blob"), []byte{1, 2, 3})

	// Serializing writes the blob back at its pointer target; the skipped
	// gap comes out zeroed.
	reserialize(t, node, []byte{4, 0, 0, 0, 1, 2, 3})
}

func TestStreamAdapterRoundTrip(t *testing.T) {
	xor := func(raw []byte) []byte {
		out := make([]byte, len(raw))
		for i, b := range raw {
			out[i] = b ^ 0xFF
		}
		return out
	}
	dec := func(parent field.Block, buf *binio.Reader, rootOff, off int64) ([]byte, int64, error) {
		raw, err := buf.ReadAt(rootOff+off, buf.Len()-rootOff-off)
		if err != nil {
			return nil, 0, err
		}
		return xor(raw), int64(len(raw)), nil
	}
	enc := func(parent field.Block, serialized []byte) ([]byte, error) {
		return xor(serialized), nil
	}

	bd := mustDef(t, "wrapped", field.StreamAdapter("wrapped",
		field.Struct("body", field.UInt16("v")), dec, enc))

	data := []byte{0xCB, 0xED} // {0x34, 0x12} xor 0xFF
	node, end := parseBlock(t, bd, data)
	td.Cmp(t, end, int64(2))

	body := get(t, node, "body").(field.Block)
	td.Cmp(t, get(t, body, "v"), uint64(0x1234))

	reserialize(t, node, data)
}

func TestSteptreeParsesAfterSubtree(t *testing.T) {
	bd := mustDef(t, "doc", field.Container("doc",
		field.Struct("header",
			field.UInt8("tail_len"),
		).WithSteptree(field.BytesRaw("tail", ".tail_len")),
		field.UInt8("marker"),
	))

	// The steptree trails the whole container, after marker.
	data := []byte{2, 0x77, 0xAA, 0xBB}
	node, end := parseBlock(t, bd, data)
	td.Cmp(t, end, int64(4))

	header := get(t, node, "header").(*field.ListBlock)
	td.Cmp(t, get(t, node, "marker"), uint64(0x77))
	td.Cmp(t, header.Steptree(), []byte{0xAA, 0xBB})

	reserialize(t, node, data)
}

func TestBigIntRoundTrip(t *testing.T) {
	bd := mustDef(t, "wide", field.Container("wide",
		field.BigUInt("big", 12),
	))

	data := make([]byte, 12)
	data[0] = 0x02
	data[9] = 0x01 // 2 + 2^72
	node, _ := parseBlock(t, bd, data)

	want := new(big.Int).Lsh(big.NewInt(1), 72)
	want.Add(want, big.NewInt(2))
	got := get(t, node, "big").(*big.Int)
	if got.Cmp(want) != 0 {
		t.Fatalf("decoded %s, want %s", got, want)
	}

	reserialize(t, node, data)
}

func TestBigSIntNegative(t *testing.T) {
	bd := mustDef(t, "wide", field.Container("wide",
		field.BigSInt("big", 9),
	))

	data := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	node, _ := parseBlock(t, bd, data)

	got := get(t, node, "big").(*big.Int)
	if got.Cmp(big.NewInt(-1)) != 0 {
		t.Fatalf("decoded %s, want -1", got)
	}

	reserialize(t, node, data)
}

func TestEnumAndBool(t *testing.T) {
	bd := mustDef(t, "meta", field.Struct("meta",
		field.Enum8("kind",
			field.Option("none"),
			field.Option("rle"),
			field.OptionV("big", 9),
		),
		field.Bool8("flags",
			field.Option("alpha"),
			field.Option("beta"),
		),
	))

	data := []byte{9, 3}
	node, _ := parseBlock(t, bd, data)

	kind := get(t, node, "kind").(*field.EnumBlock)
	td.Cmp(t, kind.OptionName(), "big")

	flags := get(t, node, "flags").(*field.BoolBlock)
	if !flags.Test("alpha") || !flags.Test("beta") {
		t.Fatalf("flags = %s, want both set", flags)
	}

	reserialize(t, node, data)

	// Edit through names and reserialize.
	if err := kind.SetTo("rle"); err != nil {
		t.Fatal(err)
	}
	if err := flags.SetFlag("alpha", false); err != nil {
		t.Fatal(err)
	}
	reserialize(t, node, []byte{1, 2})
}

func TestTimestamp(t *testing.T) {
	bd := mustDef(t, "t", field.Container("t", field.Timestamp32("created")))

	data := []byte{0x52, 0x0F, 0x5A, 0x60}
	node, _ := parseBlock(t, bd, data)

	ts := get(t, node, "created")
	td.Cmp(t, ts.(interface{ Unix() int64 }).Unix(), int64(0x605A0F52))

	reserialize(t, node, data)
}

func TestTruncatedStruct(t *testing.T) {
	bd := mustDef(t, "header", field.Struct("header", field.UInt32("magic")))

	_, _, err := field.ParseRoot(bd.Desc, []byte{1, 2}, nil)
	if !errors.Is(err, binio.ErrMalformed) {
		t.Fatalf("want ErrMalformed, got %v", err)
	}

	var fe *binio.FieldError
	if !errors.As(err, &fe) {
		t.Fatalf("error carries no field frames: %v", err)
	}
	td.CmpContains(t, err.Error(), "in header")
}

func TestBuildDefault(t *testing.T) {
	bd := mustDef(t, "header", field.Struct("header",
		field.UInt8("version").WithDefault(uint64(7)),
		field.Pad(1),
		field.UInt16("count"),
	))

	v, err := field.BuildDefault(bd.Desc, nil)
	if err != nil {
		t.Fatalf("BuildDefault: %v", err)
	}
	node := v.(field.Block)
	td.Cmp(t, get(t, node, "version"), uint64(7))
	td.Cmp(t, get(t, node, "count"), uint64(0))

	reserialize(t, node, []byte{7, 0, 0, 0})
}

func TestBuildDefaultArray(t *testing.T) {
	bd := mustDef(t, "arr", field.Array("arr", 3, field.UInt16("v")))

	v, err := field.BuildDefault(bd.Desc, nil)
	if err != nil {
		t.Fatalf("BuildDefault: %v", err)
	}
	arr := v.(*field.ArrayBlock)
	td.Cmp(t, arr.Len(), 3)

	reserialize(t, arr, []byte{0, 0, 0, 0, 0, 0})
}

func TestDepthGuard(t *testing.T) {
	// Nested containers four deep against a guard of three.
	def := field.Container("l1", field.Container("l2",
		field.Container("l3", field.Container("l4", field.UInt8("v")))))
	bd := mustDef(t, "deep", def)

	_, _, err := field.ParseRoot(bd.Desc, []byte{1}, &field.ParseOpts{MaxDepth: 3})
	if !errors.Is(err, binio.ErrDepth) {
		t.Fatalf("want ErrDepth, got %v", err)
	}

	if _, _, err := field.ParseRoot(bd.Desc, []byte{1}, nil); err != nil {
		t.Fatalf("default depth guard tripped: %v", err)
	}
}
