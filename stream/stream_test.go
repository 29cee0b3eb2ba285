package stream_test

import (
	"bytes"
	"testing"

	"github.com/maxatome/go-testdeep/td"

	"github.com/binstruct/bindef/field"
	"github.com/binstruct/bindef/stream"
)

func TestCodecRoundTrips(t *testing.T) {
	payloads := map[string][]byte{
		"empty":      {},
		"short":      []byte("hello"),
		"repetitive": bytes.Repeat([]byte{0xAB, 0xCD, 0x00, 0x01}, 1024),
	}

	for _, c := range []stream.Codec{stream.Identity, stream.Zlib, stream.Deflate, stream.LZ4} {
		for desc, payload := range payloads {
			t.Run(c.Name()+"/"+desc, func(t *testing.T) {
				enc, err := c.Encode(payload)
				if err != nil {
					t.Fatalf("encode: %v", err)
				}
				dec, err := c.Decode(enc)
				if err != nil {
					t.Fatalf("decode: %v", err)
				}
				if len(payload) == 0 {
					td.Cmp(t, len(dec), 0)
					return
				}
				td.Cmp(t, dec, payload)
			})
		}
	}
}

func TestLookup(t *testing.T) {
	td.Cmp(t, stream.Lookup("zlib"), stream.Zlib)
	td.Cmp(t, stream.Lookup("lz4"), stream.LZ4)
	if stream.Lookup("nonesuch") != nil {
		t.Fatal("unknown codec name should resolve to nil")
	}
	if err := stream.Register(stream.Identity); err == nil {
		t.Fatal("re-registering a name should fail")
	}
}

func TestCompressedFieldRoundTrip(t *testing.T) {
	bd, err := field.NewBlockDef("doc", field.Container("doc",
		field.UInt8("version"),
		stream.Field("body", stream.Zlib, nil, field.Struct("body",
			field.UInt16("a"),
			field.UInt16("b"),
		)),
	))
	if err != nil {
		t.Fatal(err)
	}

	v, err := field.BuildDefault(bd.Desc, nil)
	if err != nil {
		t.Fatal(err)
	}
	node := v.(field.Block)
	if err := node.Set(field.Named("version"), uint64(3)); err != nil {
		t.Fatal(err)
	}
	body, err := node.Get(field.Named("body"))
	if err != nil {
		t.Fatal(err)
	}
	inner := body.(field.Block)
	if err := inner.Set(field.Named("a"), uint64(0x1234)); err != nil {
		t.Fatal(err)
	}
	if err := inner.Set(field.Named("b"), uint64(0x5678)); err != nil {
		t.Fatal(err)
	}

	out, _, err := field.SerializeRoot(node, nil)
	if err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, out[0], byte(3))

	// The compressed region parses back to the same tree.
	pv, _, err := field.ParseRoot(bd.Desc, out, nil)
	if err != nil {
		t.Fatal(err)
	}
	parsed := pv.(field.Block)
	pb, err := parsed.Get(field.Named("body"))
	if err != nil {
		t.Fatal(err)
	}
	a, err := pb.(field.Block).Get(field.Named("a"))
	if err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, a, uint64(0x1234))
	b, err := pb.(field.Block).Get(field.Named("b"))
	if err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, b, uint64(0x5678))
}

func TestSizedRegionConsumesExactly(t *testing.T) {
	bd, err := field.NewBlockDef("doc", field.Container("doc",
		field.UInt8("len"),
		stream.Field("body", stream.Identity, ".len", field.Struct("body",
			field.UInt8("v"),
		)),
		field.UInt8("tail"),
	))
	if err != nil {
		t.Fatal(err)
	}

	pv, end, err := field.ParseRoot(bd.Desc, []byte{1, 0x7F, 9}, nil)
	if err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, end, int64(3))
	node := pv.(field.Block)

	body, err := node.Get(field.Named("body"))
	if err != nil {
		t.Fatal(err)
	}
	v, err := body.(field.Block).Get(field.Named("v"))
	if err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, v, uint64(0x7F))

	tail, err := node.Get(field.Named("tail"))
	if err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, tail, uint64(9))
}
