package defs_test

import (
	"encoding/binary"
	"testing"

	"github.com/maxatome/go-testdeep/td"

	"github.com/binstruct/bindef"
	"github.com/binstruct/bindef/defs"
	"github.com/binstruct/bindef/field"
)

func get(t *testing.T, b field.Block, name string) any {
	t.Helper()
	v, err := b.Get(field.Named(name))
	if err != nil {
		t.Fatalf("get %s: %v", name, err)
	}
	return v
}

// tgaBytes builds an uncompressed 24bpp image file.
func tgaBytes(imageType byte, width, height uint16, pixels []byte) []byte {
	out := make([]byte, 18)
	out[2] = imageType
	binary.LittleEndian.PutUint16(out[12:], width)
	binary.LittleEndian.PutUint16(out[14:], height)
	out[16] = 24
	return append(out, pixels...)
}

func TestTGA(t *testing.T) {
	bd, err := defs.TGA()
	if err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, bd.Ext, ".tga")

	pixels := []byte{10, 20, 30, 40, 50, 60}
	data := tgaBytes(2, 2, 1, pixels)

	tag, err := bindef.Parse(bd, data, nil)
	if err != nil {
		t.Fatal(err)
	}
	header := get(t, tag.Root, "header").(field.Block)
	td.Cmp(t, get(t, header, "width"), uint64(2))
	td.Cmp(t, get(t, header, "image_type").(*field.EnumBlock).OptionName(), "unmapped")
	td.Cmp(t, len(get(t, tag.Root, "image_id").([]byte)), 0)
	td.Cmp(t, len(get(t, tag.Root, "color_map").([]byte)), 0)
	td.Cmp(t, get(t, tag.Root, "pixel_data"), pixels)

	out, err := tag.Serialize(nil)
	if err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, out, data)
}

func TestTGARunLengthTakesRest(t *testing.T) {
	bd, err := defs.TGA()
	if err != nil {
		t.Fatal(err)
	}

	// Run-length pixel data is shorter than width*height*bpp would say.
	rle := []byte{0x81, 10, 20, 30}
	data := tgaBytes(10, 2, 1, rle)

	tag, err := bindef.Parse(bd, data, nil)
	if err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, get(t, tag.Root, "pixel_data"), rle)
	td.Cmp(t, tag.SourceSize, int64(len(data)))
}

func wavBytes(sampleRate uint32, audio []byte) []byte {
	var out []byte
	u16 := func(v uint16) { out = binary.LittleEndian.AppendUint16(out, v) }
	u32 := func(v uint32) { out = binary.LittleEndian.AppendUint32(out, v) }

	out = append(out, "RIFF"...)
	u32(uint32(36 + len(audio)))
	out = append(out, "WAVE"...)

	out = append(out, "fmt "...)
	u32(16)
	u16(1) // pcm
	u16(1) // mono
	u32(sampleRate)
	u32(sampleRate * 2)
	u16(2)
	u16(16)

	out = append(out, "data"...)
	u32(uint32(len(audio)))
	return append(out, audio...)
}

func TestWAV(t *testing.T) {
	bd, err := defs.WAV()
	if err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, bd.Ext, ".wav")

	audio := []byte{1, 2, 3, 4}
	data := wavBytes(8000, audio)

	tag, err := bindef.Parse(bd, data, nil)
	if err != nil {
		t.Fatal(err)
	}
	fc := get(t, tag.Root, "format_chunk").(field.Block)
	td.Cmp(t, get(t, fc, "sample_rate"), uint64(8000))
	td.Cmp(t, get(t, fc, "compression").(*field.EnumBlock).OptionName(), "pcm")
	td.Cmp(t, get(t, tag.Root, "audio_data"), audio)

	out, err := tag.Serialize(nil)
	if err != nil {
		t.Fatal(err)
	}
	td.Cmp(t, out, data)
}

func TestWAVDefaults(t *testing.T) {
	bd, err := defs.WAV()
	if err != nil {
		t.Fatal(err)
	}
	tag, err := bindef.New(bd)
	if err != nil {
		t.Fatal(err)
	}
	rh := get(t, tag.Root, "riff_header").(field.Block)
	td.Cmp(t, get(t, rh, "riff_sig"), "RIFF")
	fc := get(t, tag.Root, "format_chunk").(field.Block)
	td.Cmp(t, get(t, fc, "sample_rate"), uint64(44100))
	td.Cmp(t, get(t, fc, "compression").(*field.EnumBlock).OptionName(), "pcm")
}
