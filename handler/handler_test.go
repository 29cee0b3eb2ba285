package handler_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binstruct/bindef/field"
	"github.com/binstruct/bindef/handler"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func hdrDef(t *testing.T) *field.BlockDef {
	t.Helper()
	bd, err := field.NewBlockDef("hdr", field.Struct("hdr",
		field.UInt8("version"),
		field.UInt16("count"),
	), field.WithExt(".hdr"))
	require.NoError(t, err)
	return bd
}

func TestAddDefRules(t *testing.T) {
	h := handler.New(handler.WithLogger(quietLogger()))
	bd := hdrDef(t)
	require.NoError(t, h.AddDef(bd))

	// Same id again.
	assert.Error(t, h.AddDef(bd))

	// Different id, same extension.
	other, err := field.NewBlockDef("hdr2", field.Struct("hdr2",
		field.UInt8("a"),
	), field.WithExt(".hdr"))
	require.NoError(t, err)
	assert.Error(t, h.AddDef(other))

	// Broken definitions never register.
	broken, _ := field.NewBlockDef("bad", field.Struct("bad",
		field.UInt8("x"),
		field.UInt8("x"),
	))
	assert.Error(t, h.AddDef(broken))

	assert.Equal(t, bd, h.Def("hdr"))
	assert.Equal(t, bd, h.DefForPath("/some/file.hdr"))
	assert.Nil(t, h.DefForPath("/some/file.png"))
}

func TestLoadDirAndWriteAll(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.hdr"), []byte{1, 2, 0}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.hdr"), []byte{1, 5, 0}, 0o644))
	// Too short to parse.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.hdr"), []byte{1}, 0o644))
	// Unhandled extension, silently skipped.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.txt"), []byte("x"), 0o644))

	h := handler.New(handler.WithLogger(quietLogger()))
	require.NoError(t, h.AddDef(hdrDef(t)))

	loaded, err := h.LoadDir(dir)
	assert.Equal(t, 2, loaded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.hdr")
	assert.Len(t, h.Tags(), 2)

	// Nothing edited, nothing written.
	written, err := h.WriteAll()
	require.NoError(t, err)
	assert.Equal(t, 0, written)

	// One edit, one write.
	tag := h.Tag(filepath.Join(dir, "a.hdr"))
	require.NotNil(t, tag)
	require.NoError(t, tag.Root.Set(field.Named("count"), uint64(9)))
	written, err = h.WriteAll()
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	data, err := os.ReadFile(filepath.Join(dir, "a.hdr"))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 9, 0}, data)

	// The edit is now on disk, so a repeat write skips again.
	written, err = h.WriteAll()
	require.NoError(t, err)
	assert.Equal(t, 0, written)
}

func TestLoadDefsFromFiles(t *testing.T) {
	dir := t.TempDir()
	def := `
id: img
ext: .img
desc:
  type: Struct
  name: img
  fields:
    - {name: w, type: UInt16}
    - {name: h, type: UInt16}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "img.yaml"), []byte(def), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.yaml"), []byte("id: [broken"), 0o644))

	h := handler.New(handler.WithLogger(quietLogger()))
	loaded, err := h.LoadDefs(dir)
	assert.Equal(t, 1, loaded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "junk.yaml")

	require.NotNil(t, h.Def("img"))
	assert.Equal(t, h.Def("img"), h.DefForPath("shot.img"))
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.hdr")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 0}, 0o644))

	h := handler.New(handler.WithLogger(quietLogger()))
	require.NoError(t, h.AddDef(hdrDef(t)))
	_, err := h.LoadTag(path)
	require.NoError(t, err)
	require.NotNil(t, h.Tag(path))

	h.Remove(path)
	assert.Nil(t, h.Tag(path))
	assert.Empty(t, h.Tags())
}
