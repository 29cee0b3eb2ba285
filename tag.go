package bindef

import (
	"fmt"
	"os"

	"github.com/binstruct/bindef/binio"
	"github.com/binstruct/bindef/field"
)

// Tag couples a parsed node tree with the definition that produced it and,
// when it came from disk, the file it belongs to.
type Tag struct {
	// Def is the sanitized definition the tree was parsed with.
	Def *field.BlockDef

	// Root is the root node.
	Root field.Block

	// Filepath is where the tag was loaded from or last written to. Empty
	// for tags built in memory.
	Filepath string

	// SourceSize is the number of bytes sequentially consumed when the tag
	// was parsed.
	SourceSize int64

	// ParseErr records the parse failure of a tag loaded with AllowCorrupt.
	ParseErr error
}

// SerializeOptions adjusts Tag serialization.
type SerializeOptions struct {
	// Offset is where the root lands in the output buffer.
	Offset int64

	// CalcPointers disables the pointer recomputation pre-pass when false
	// is wanted; the zero value of the struct keeps it on through
	// Serialize's default handling.
	CalcPointers bool
}

// Serialize converts the tag's tree back into bytes. Pointers are recomputed
// by default; pass options with CalcPointers false to keep the parsed
// offsets.
func (t *Tag) Serialize(o *SerializeOptions) ([]byte, error) {
	if o == nil {
		o = &SerializeOptions{CalcPointers: true}
	}
	out, _, err := field.SerializeRoot(t.Root, &field.SerializeOpts{
		Offset:            o.Offset,
		RecomputePointers: o.CalcPointers,
	})
	return out, err
}

// WriteOptions adjusts Tag writing.
type WriteOptions struct {
	SerializeOptions

	// Temp writes through a ".temp" sibling that is renamed over the
	// target only after the write fully succeeds.
	Temp bool

	// Backup renames an existing target to ".backup" before the new file
	// takes its place. An older backup is overwritten.
	Backup bool
}

// Load reads path and parses it into a Tag.
func Load(bd *field.BlockDef, path string, o *ParseOptions) (*Tag, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tag, err := Parse(bd, data, o)
	if tag != nil {
		tag.Filepath = path
	}
	return tag, err
}

// Write serializes the tag and writes it to path, which may be empty to
// reuse the tag's own Filepath. With Temp the bytes land in a ".temp"
// sibling first; with Backup the previous file survives as ".backup".
func (t *Tag) Write(path string, o *WriteOptions) error {
	if o == nil {
		o = &WriteOptions{
			SerializeOptions: SerializeOptions{CalcPointers: true},
			Temp:             true,
			Backup:           true,
		}
	}
	if path == "" {
		path = t.Filepath
	}
	if path == "" {
		return fmt.Errorf("%w: tag has no filepath to write to", binio.ErrDescriptor)
	}

	out, err := t.Serialize(&o.SerializeOptions)
	if err != nil {
		return err
	}

	target := path
	if o.Temp {
		target = path + ".temp"
	}
	if err := os.WriteFile(target, out, 0o644); err != nil {
		return err
	}

	if o.Backup {
		if _, err := os.Stat(path); err == nil {
			backup := path + ".backup"
			_ = os.Remove(backup)
			if err := os.Rename(path, backup); err != nil {
				return err
			}
		}
	}
	if o.Temp {
		if err := os.Rename(target, path); err != nil {
			return err
		}
	}

	t.Filepath = path
	return nil
}

// CalcPointers recomputes every POINTER in the tag's tree in place, the same
// layout pass serialization runs on its working copy.
func (t *Tag) CalcPointers() error {
	return field.SetPointers(t.Root, 0)
}

// String renders the tree for humans.
func (t *Tag) String() string {
	if t.Root == nil {
		return "<empty tag>"
	}
	return t.Root.String()
}
