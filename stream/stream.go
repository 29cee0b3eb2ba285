// Package stream provides byte stream codecs for stream adapter fields.
// A codec's Decode derives the bytes a substructure is parsed from (for
// example by inflating a compressed region), and its Encode converts the
// re-serialized substructure back into the on-disk form.
package stream

import (
	"fmt"
	"sync"

	"github.com/binstruct/bindef/binio"
	"github.com/binstruct/bindef/field"
)

// Codec is a reversible byte stream transform.
type Codec interface {
	// Name identifies the codec in definition files.
	Name() string

	// Decode converts on-disk bytes into the form the substructure is
	// parsed from.
	Decode(raw []byte) ([]byte, error)

	// Encode converts a serialized substructure back into on-disk bytes.
	Encode(derived []byte) ([]byte, error)
}

var (
	mu     sync.RWMutex
	codecs = make(map[string]Codec)
)

// Register adds a codec under its name. Registering a name twice fails.
func Register(c Codec) error {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := codecs[c.Name()]; ok {
		return fmt.Errorf("%w: codec %q already registered", binio.ErrDescriptor, c.Name())
	}
	codecs[c.Name()] = c
	return nil
}

// Lookup returns the codec registered under name, or nil.
func Lookup(name string) Codec {
	mu.RLock()
	defer mu.RUnlock()
	return codecs[name]
}

func mustRegister(c Codec) Codec {
	if err := Register(c); err != nil {
		panic(err)
	}
	return c
}

// Decoder wraps a codec into a stream adapter decoder. size bounds the
// on-disk region the codec decodes; an unset rule takes everything from the
// current offset to the end of the buffer. Path sizes resolve against the
// adapter's siblings, like any other size rule.
func Decoder(c Codec, size field.Rule) field.StreamDecoder {
	return func(parent field.Block, buf *binio.Reader, rootOffset, offset int64) ([]byte, int64, error) {
		n := buf.Len() - rootOffset - offset
		if size.IsSet() {
			var err error
			n, err = size.Resolve(&field.RuleCtx{
				Parent:     parent.Parent(),
				Node:       parent,
				Buf:        buf,
				RootOffset: rootOffset,
				Offset:     offset,
			})
			if err != nil {
				return nil, 0, err
			}
		}
		raw, err := buf.ReadAt(rootOffset+offset, n)
		if err != nil {
			return nil, 0, err
		}
		derived, err := c.Decode(raw)
		if err != nil {
			return nil, 0, fmt.Errorf("codec %s: %w", c.Name(), err)
		}
		return derived, n, nil
	}
}

// Encoder wraps a codec into a stream adapter encoder.
func Encoder(c Codec) field.StreamEncoder {
	return func(parent field.Block, serialized []byte) ([]byte, error) {
		out, err := c.Encode(serialized)
		if err != nil {
			return nil, fmt.Errorf("codec %s: %w", c.Name(), err)
		}
		return out, nil
	}
}

// Field builds a stream adapter entry around a codec. size may be an integer
// literal, a path string, a field.Rule or nil for read-to-end.
func Field(name string, c Codec, size any, sub *field.Raw) *field.Raw {
	var r field.Rule
	switch n := size.(type) {
	case nil:
	case field.Rule:
		r = n
	case int:
		r = field.LitRule(int64(n))
	case int64:
		r = field.LitRule(n)
	case string:
		r = field.PathRule(n)
	default:
		panic(fmt.Sprintf("stream: %T is not a size rule", size))
	}
	return field.StreamAdapter(name, sub, Decoder(c, r), Encoder(c))
}
