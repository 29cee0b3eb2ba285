package bindef_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/maxatome/go-testdeep/td"

	"github.com/binstruct/bindef"
	"github.com/binstruct/bindef/binio"
	"github.com/binstruct/bindef/field"
)

func headerDef(t *testing.T) *field.BlockDef {
	t.Helper()
	bd, err := field.NewBlockDef("header", field.Struct("header",
		field.UInt8("version"),
		field.UInt16("width"),
		field.UInt16("height"),
	))
	if err != nil {
		t.Fatal(err)
	}
	return bd
}

func TestParseEditSerialize(t *testing.T) {
	bd := headerDef(t)
	data := []byte{2, 0x40, 0x01, 0xF0, 0x00}

	tag, err := bindef.Parse(bd, data, nil)
	if err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, tag.SourceSize, int64(5))

	v, err := tag.Root.Get(field.Named("width"))
	if err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, v, uint64(0x140))

	if err := tag.Root.Set(field.Named("height"), uint64(0x100)); err != nil {
		t.Fatal(err)
	}
	out, err := tag.Serialize(nil)
	if err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, out, []byte{2, 0x40, 0x01, 0x00, 0x01})
}

func TestParseRejectsBrokenDef(t *testing.T) {
	bd, _ := field.NewBlockDef("bad", field.Struct("bad",
		field.UInt8("a"),
		field.UInt8("a"),
	))
	if bd.Err == nil {
		t.Fatal("duplicate names should break the definition")
	}
	_, err := bindef.Parse(bd, []byte{1, 2}, nil)
	if !errors.Is(err, binio.ErrDescriptor) {
		t.Fatalf("want ErrDescriptor, got %v", err)
	}
}

func TestAllowCorrupt(t *testing.T) {
	bd := headerDef(t)
	truncated := []byte{2, 0x40}

	_, err := bindef.Parse(bd, truncated, nil)
	if !errors.Is(err, binio.ErrMalformed) {
		t.Fatalf("want ErrMalformed, got %v", err)
	}

	tag, err := bindef.Parse(bd, truncated, &bindef.ParseOptions{AllowCorrupt: true})
	if err != nil {
		t.Fatal(err)
	}
	if tag.ParseErr == nil {
		t.Fatal("ParseErr not recorded")
	}
	if tag.Root == nil {
		t.Fatal("partial tree discarded")
	}
}

func TestNewBuildsDefaults(t *testing.T) {
	bd := headerDef(t)
	tag, err := bindef.New(bd)
	if err != nil {
		t.Fatal(err)
	}
	out, err := tag.Serialize(nil)
	if err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, out, []byte{0, 0, 0, 0, 0})
}

func TestWriteLoadRoundTrip(t *testing.T) {
	bd := headerDef(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "a.bin")

	tag, err := bindef.Parse(bd, []byte{1, 2, 0, 3, 0}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := tag.Write(path, nil); err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, tag.Filepath, path)

	// The temp sibling is renamed away, and a fresh target has no backup.
	if _, err := os.Stat(path + ".temp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
	if _, err := os.Stat(path + ".backup"); !os.IsNotExist(err) {
		t.Fatalf("backup created for a fresh file: %v", err)
	}

	loaded, err := bindef.Load(bd, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	v, _ := loaded.Root.Get(field.Named("height"))
	td.Cmp(t, v, uint64(3))

	// A second write preserves the previous bytes as a backup.
	if err := loaded.Root.Set(field.Named("height"), uint64(9)); err != nil {
		t.Fatal(err)
	}
	if err := loaded.Write("", nil); err != nil {
		t.Fatal(err)
	}
	backup, err := os.ReadFile(path + ".backup")
	if err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, backup, []byte{1, 2, 0, 3, 0})
	cur, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, cur, []byte{1, 2, 0, 9, 0})
}

func TestWriteWithoutPath(t *testing.T) {
	bd := headerDef(t)
	tag, err := bindef.New(bd)
	if err != nil {
		t.Fatal(err)
	}
	err = tag.Write("", nil)
	if !errors.Is(err, binio.ErrDescriptor) {
		t.Fatalf("want ErrDescriptor, got %v", err)
	}
}
