package binio_test

import (
	"errors"
	"testing"

	"github.com/maxatome/go-testdeep/td"

	"github.com/binstruct/bindef/binio"
)

func TestReaderBounds(t *testing.T) {
	r := binio.NewReader([]byte{1, 2, 3, 4})

	testCases := []struct {
		desc    string
		off, n  int64
		want    []byte
		wantErr bool
	}{
		{desc: "whole buffer", off: 0, n: 4, want: []byte{1, 2, 3, 4}},
		{desc: "middle", off: 1, n: 2, want: []byte{2, 3}},
		{desc: "empty at end", off: 4, n: 0, want: []byte{}},
		{desc: "past end", off: 3, n: 2, wantErr: true},
		{desc: "negative offset", off: -1, n: 1, wantErr: true},
		{desc: "negative length", off: 0, n: -1, wantErr: true},
		{desc: "over sanity limit", off: 0, n: binio.TooBig + 1, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := r.ReadAt(tc.off, tc.n)
			if tc.wantErr {
				if !errors.Is(err, binio.ErrBounds) {
					t.Fatalf("want ErrBounds, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadAt: %v", err)
			}
			td.Cmp(t, got, tc.want)
		})
	}
}

func TestReaderSeekRead(t *testing.T) {
	r := binio.NewReader([]byte{10, 20, 30})

	if err := r.Seek(1); err != nil {
		t.Fatal(err)
	}
	b, err := r.Read(2)
	if err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, b, []byte{20, 30})
	td.Cmp(t, r.Offset(), int64(3))

	if err := r.Seek(4); !errors.Is(err, binio.ErrBounds) {
		t.Fatalf("want ErrBounds, got %v", err)
	}
}

func TestReaderFind(t *testing.T) {
	r := binio.NewReader([]byte{'a', 0, 'b', 0, 0})

	testCases := []struct {
		desc  string
		delim []byte
		from  int64
		want  int64
	}{
		{desc: "single byte", delim: []byte{0}, from: 0, want: 1},
		{desc: "after start", delim: []byte{0}, from: 2, want: 3},
		{desc: "two bytes", delim: []byte{0, 0}, from: 0, want: 3},
		{desc: "absent", delim: []byte{9}, from: 0, want: -1},
		{desc: "from past end", delim: []byte{0}, from: 6, want: -1},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			td.Cmp(t, r.Find(tc.delim, tc.from), tc.want)
		})
	}
}

func TestWriterGrowsAndZeroFills(t *testing.T) {
	w := binio.NewWriter()

	if err := w.WriteAt(2, []byte{0xAA, 0xBB}); err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, w.Bytes(), []byte{0, 0, 0xAA, 0xBB})

	if err := w.WriteAt(0, []byte{1}); err != nil {
		t.Fatal(err)
	}
	if err := w.ZeroFill(1, 2); err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, w.Bytes(), []byte{1, 0, 0, 0xBB})

	if err := w.WriteAt(-1, []byte{1}); !errors.Is(err, binio.ErrBounds) {
		t.Fatalf("want ErrBounds, got %v", err)
	}
}

func TestWrapField(t *testing.T) {
	err := binio.WrapField(binio.ErrMalformed, "width", "", 12, "UInt16LE")
	err = binio.WrapField(err, "header", ".width", 8, "Struct")
	// Annotating the same frame twice must not duplicate it.
	err = binio.WrapField(err, "header", ".width", 8, "Struct")
	err = binio.WrapField(err, "tga", "", 0, "Container")

	if !errors.Is(err, binio.ErrMalformed) {
		t.Fatalf("wrapped error lost its kind: %v", err)
	}

	var fe *binio.FieldError
	if !errors.As(err, &fe) {
		t.Fatalf("not a FieldError: %T", err)
	}
	td.Cmp(t, len(fe.Frames), 3)
	td.Cmp(t, fe.Frames[0].Name, "width")
	td.Cmp(t, fe.Frames[2].Name, "tga")

	msg := err.Error()
	td.CmpContains(t, msg, "malformed data")
	td.CmpContains(t, msg, "in header.width (Struct) at offset 8")
}
