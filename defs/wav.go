package defs

import "github.com/binstruct/bindef/field"

// WAV returns the RIFF WAVE audio definition: the RIFF wrapper, a PCM
// format chunk and a sized data chunk.
func WAV() (*field.BlockDef, error) {
	return field.NewBlockDef("wav", field.Container("wav",
		field.Struct("riff_header",
			field.StrAscii("riff_sig", 4).WithDefault("RIFF"),
			field.UInt32("filesize"),
			field.StrAscii("wave_sig", 4).WithDefault("WAVE"),
		),
		field.Struct("format_chunk",
			field.StrAscii("sig", 4).WithDefault("fmt "),
			field.UInt32("size").WithDefault(uint64(16)),
			field.Enum16("compression",
				field.OptionV("pcm", 1),
				field.OptionV("ms_adpcm", 2),
				field.OptionV("ieee_float", 3),
				field.OptionV("alaw", 6),
				field.OptionV("mulaw", 7),
			).WithDefault("pcm"),
			field.UInt16("channels").WithDefault(uint64(1)),
			field.UInt32("sample_rate").WithDefault(uint64(44100)),
			field.UInt32("byte_rate"),
			field.UInt16("block_align"),
			field.UInt16("bits_per_sample").WithDefault(uint64(16)),
		),
		field.Struct("data_header",
			field.StrAscii("sig", 4).WithDefault("data"),
			field.UInt32("size"),
		),
		field.BytesRaw("audio_data", "data_header.size"),
	), field.WithExt(".wav"))
}
