package descfile_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binstruct/bindef/descfile"
	"github.com/binstruct/bindef/field"
)

func TestLoadYAML(t *testing.T) {
	bd, err := descfile.Load("testdata/tga.yaml", nil)
	require.NoError(t, err)
	require.NoError(t, bd.Err)
	assert.Equal(t, "tga", bd.ID)
	assert.Equal(t, ".tga", bd.Ext)

	data := []byte{
		0,          // image_id_length
		0,          // color_map_type
		2,          // image_type = unmapped
		0x40, 0x01, // width = 320
		0xF0, 0x00, // height = 240
		24, // bpp
	}
	v, end, err := field.ParseRoot(bd.Desc, data, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(8), end)

	node := v.(field.Block)
	w, err := node.Get(field.Named("width"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0x140), w)

	it, err := node.Get(field.Named("image_type"))
	require.NoError(t, err)
	assert.Equal(t, "unmapped", it.(*field.EnumBlock).OptionName())
}

func TestLoadJSONC(t *testing.T) {
	bd, err := descfile.Load("testdata/chunk.jsonc", nil)
	require.NoError(t, err)
	require.NoError(t, bd.Err)

	v, _, err := field.ParseRoot(bd.Desc, []byte{1, 0x34, 0x12}, nil)
	require.NoError(t, err)
	body, err := v.(field.Block).Get(field.Named("body"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1234), body)

	v, _, err = field.ParseRoot(bd.Desc, []byte{2, 'h', 'i', 0}, nil)
	require.NoError(t, err)
	body, err = v.(field.Block).Get(field.Named("body"))
	require.NoError(t, err)
	assert.Equal(t, "hi", body)
}

func TestDecodeSizePathAndDefaults(t *testing.T) {
	bd, err := descfile.Decode([]byte(`
id: blobdoc
desc:
  type: Container
  name: doc
  fields:
    - {name: n, type: UInt8, default: 2}
    - {name: blob, type: BytesRaw, size: .n}
`), nil)
	require.NoError(t, err)
	require.NoError(t, bd.Err)

	v, _, err := field.ParseRoot(bd.Desc, []byte{3, 0xAA, 0xBB, 0xCC}, nil)
	require.NoError(t, err)
	blob, err := v.(field.Block).Get(field.Named("blob"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, blob)
}

func TestDecodeCodecEntry(t *testing.T) {
	bd, err := descfile.Decode([]byte(`
id: wrapped
desc:
  type: Container
  name: doc
  fields:
    - {name: len, type: UInt8}
    - name: body
      codec: identity
      size: .len
      element:
        type: Struct
        name: body
        fields:
          - {name: v, type: UInt8}
    - {name: tail, type: UInt8}
`), nil)
	require.NoError(t, err)
	require.NoError(t, bd.Err)

	v, _, err := field.ParseRoot(bd.Desc, []byte{1, 0x7F, 9}, nil)
	require.NoError(t, err)
	node := v.(field.Block)
	body, err := node.Get(field.Named("body"))
	require.NoError(t, err)
	inner, err := body.(field.Block).Get(field.Named("v"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0x7F), inner)
	tail, err := node.Get(field.Named("tail"))
	require.NoError(t, err)
	assert.Equal(t, uint64(9), tail)
}

func TestStrayKeyBecomesWarning(t *testing.T) {
	bd, err := descfile.Decode([]byte(`
id: doc
desc:
  type: Struct
  name: doc
  colour: red
  fields:
    - {name: a, type: UInt8}
`), nil)
	require.NoError(t, err)
	require.NoError(t, bd.Err)

	var warned bool
	for _, d := range bd.Diagnostics() {
		if d.Sev == field.SevWarning && strings.Contains(d.Msg, "colour") {
			warned = true
		}
	}
	assert.True(t, warned, "stray key should surface as a warning")
}

func TestDecodeErrors(t *testing.T) {
	testCases := []struct {
		desc string
		src  string
		want string
	}{
		{
			desc: "missing id",
			src:  "desc: {type: Struct, name: x}",
			want: "no id",
		},
		{
			desc: "missing desc",
			src:  "id: x",
			want: "no desc",
		},
		{
			desc: "unknown type",
			src:  "id: x\ndesc: {type: Quux, name: x}",
			want: "unknown type",
		},
		{
			desc: "unknown codec",
			src:  "id: x\ndesc: {name: x, codec: rot13, element: {type: UInt8, name: v}}",
			want: "unknown codec",
		},
		{
			desc: "bad endian",
			src:  "id: x\nendian: middle\ndesc: {type: Struct, name: x}",
			want: "endian",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := descfile.Decode([]byte(tc.src), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
