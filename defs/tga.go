// Package defs ships ready-made definitions for a few common binary
// formats, built with the field constructors.
package defs

import (
	"fmt"

	"github.com/binstruct/bindef/field"
)

// tgaHeader fetches the header struct from a rule evaluated anywhere in the
// image container.
func tgaHeader(ctx *field.RuleCtx) (field.Block, error) {
	v, err := ctx.Parent.Get(field.Named("header"))
	if err != nil {
		return nil, err
	}
	b, ok := v.(field.Block)
	if !ok {
		return nil, fmt.Errorf("header is %T, not a block", v)
	}
	return b, nil
}

func headerUint(ctx *field.RuleCtx, name string) (int64, error) {
	h, err := tgaHeader(ctx)
	if err != nil {
		return 0, err
	}
	v, err := h.Get(field.Named(name))
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case uint64:
		return int64(n), nil
	case int64:
		return n, nil
	case *field.EnumBlock:
		return n.Value(), nil
	default:
		return 0, fmt.Errorf("header.%s is %T, not an integer", name, v)
	}
}

// colorMapSize is the color map byte count: entry count times entry depth,
// rounded up to whole bytes.
func colorMapSize(ctx *field.RuleCtx) (int64, error) {
	length, err := headerUint(ctx, "color_map_length")
	if err != nil {
		return 0, err
	}
	depth, err := headerUint(ctx, "color_map_depth")
	if err != nil {
		return 0, err
	}
	return (length*depth + 7) / 8, nil
}

// pixelDataSize is width*height*bytes-per-pixel for uncompressed images.
// Run-length images cannot be sized from the header, so they take the rest
// of the buffer when parsing and their current bytes when serializing.
func pixelDataSize(ctx *field.RuleCtx) (int64, error) {
	imageType, err := headerUint(ctx, "image_type")
	if err != nil {
		return 0, err
	}
	if imageType >= 9 {
		if ctx.Buf != nil {
			return ctx.Buf.Len() - ctx.RootOffset - ctx.Offset, nil
		}
		if b, ok := ctx.Node.([]byte); ok {
			return int64(len(b)), nil
		}
		return 0, nil
	}

	width, err := headerUint(ctx, "width")
	if err != nil {
		return 0, err
	}
	height, err := headerUint(ctx, "height")
	if err != nil {
		return 0, err
	}
	bpp, err := headerUint(ctx, "bpp")
	if err != nil {
		return 0, err
	}
	return width * height * ((bpp + 7) / 8), nil
}

// TGA returns the Truevision TARGA image definition.
func TGA() (*field.BlockDef, error) {
	return field.NewBlockDef("tga", field.Container("tga",
		field.Struct("header",
			field.UInt8("image_id_length"),
			field.Enum8("color_map_type",
				field.Option("no_color_map"),
				field.Option("color_map_present"),
			),
			field.Enum8("image_type",
				field.OptionV("no_image_data", 0),
				field.OptionV("color_mapped", 1),
				field.OptionV("unmapped", 2),
				field.OptionV("black_and_white", 3),
				field.OptionV("rle_color_mapped", 9),
				field.OptionV("rle_unmapped", 10),
				field.OptionV("rle_black_and_white", 11),
			),
			field.UInt16("color_map_origin"),
			field.UInt16("color_map_length"),
			field.UInt8("color_map_depth"),
			field.UInt16("x_origin"),
			field.UInt16("y_origin"),
			field.UInt16("width"),
			field.UInt16("height"),
			field.UInt8("bpp").WithDefault(uint64(24)),
			field.BitStruct("image_descriptor",
				field.BitUInt("alpha_bits", 4),
				field.Bit("screen_origin_right"),
				field.Bit("screen_origin_top"),
				field.BitUInt("interleave", 2),
			),
		),
		field.BytesRaw("image_id", "header.image_id_length"),
		field.BytesRaw("color_map", field.FuncRule(colorMapSize, nil)),
		field.BytesRaw("pixel_data", field.FuncRule(pixelDataSize, nil)),
	), field.WithExt(".tga"))
}
