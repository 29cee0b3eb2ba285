package binio

import (
	"errors"
	"fmt"
	"strings"
)

// Error handling in bindef is designed to make three situations easy to tell
// apart: a bad descriptor (the schema can never work), bad data (this buffer
// cannot be decoded by a valid descriptor), and misuse of the API.
// A small set of sentinel kinds is reused for as many errors as possible,
// with extra information wrapped around them as applicable.
//
// Errors can be checked with errors.Is:
//
//	if errors.Is(err, binio.ErrDescriptor) {
//		// the descriptor itself is broken; fix the schema
//	} else if errors.Is(err, binio.ErrMalformed) {
//		// the buffer doesn't match the descriptor
//	}
//
// Errors raised while walking a node tree are wrapped in a FieldError which
// records one frame per hierarchy level as the error unwinds.
var (
	// ErrDescriptor is returned when a descriptor fails sanitization or is
	// structurally unusable. The accompanying diagnostics describe every
	// problem found in the pass, not just the first.
	ErrDescriptor = errors.New("invalid descriptor")

	// ErrMalformed is returned when buffer contents are impossible to decode
	// with the descriptor in use.
	ErrMalformed = errors.New("malformed data")

	// ErrBounds is returned when a read, seek or write would land outside the
	// buffer, or when a decoded metric fails the TooBig sanity check.
	ErrBounds = errors.New("out of bounds")

	// ErrPointer is returned when a POINTER entry cannot be resolved to a
	// usable absolute offset.
	ErrPointer = errors.New("unresolvable pointer")

	// ErrNoCase is returned when a switch or union decider resolves to a case
	// that does not exist and no default is available.
	ErrNoCase = errors.New("no matching case")

	// ErrSizeStatic is returned when a caller tries to change a SIZE that is
	// statically declared as an integer through the generic size-setting
	// path. Static sizes can only change through an explicit descriptor
	// edit; hitting this error means the API is being misused, not that the
	// data is bad.
	ErrSizeStatic = errors.New("size is statically defined")

	// ErrFrozen is returned when registering into a frozen type registry.
	ErrFrozen = errors.New("registry is frozen")

	// ErrDepth is returned when parse, serialize or pointer collection
	// exceeds the recursion depth guard. It usually means a descriptor is
	// self-referential.
	ErrDepth = errors.New("recursion depth exceeded")
)

// TooBig is a byte count used for sanity checking sizes and counts decoded
// from buffers before they are used for allocation or iteration.
// Reads and element counts above it fail with ErrBounds.
//
// By default it is 256MB. Feel free to change it.
var TooBig = int64(1 << 28)

// Frame is one level of hierarchy context attached to a FieldError.
type Frame struct {
	// Name of the node the error passed through.
	Name string

	// Index is the rendered key of the failing entry within Name, such as
	// "[3]" or ".width". Empty for the root frame.
	Index string

	// Offset is the buffer offset the node was being processed at.
	Offset int64

	// Type is the field type name of the node.
	Type string
}

func (f Frame) String() string {
	return fmt.Sprintf("in %s%s (%s) at offset %d", f.Name, f.Index, f.Type, f.Offset)
}

// FieldError wraps an error raised somewhere inside a node tree traversal
// with one Frame per hierarchy level, innermost first. The result reads like
// a call stack for the structure rather than for the program:
//
//	malformed data: unexpected end of buffer
//	    in header.width (uint16le) at offset 12
//	    in header (struct) at offset 8
//	    in tga_file (container) at offset 0
type FieldError struct {
	Err    error
	Frames []Frame

	seen map[frameKey]struct{}
}

type frameKey struct {
	name  string
	index string
	typ   string
}

// WrapField attaches a hierarchy frame to err, creating a FieldError if err
// is not one already. Wrapping the same (name, index, type) triple twice is a
// no-op, so parsers can annotate defensively without duplicating frames.
func WrapField(err error, name, index string, offset int64, typeName string) error {
	if err == nil {
		return nil
	}

	var fe *FieldError
	if !errors.As(err, &fe) {
		fe = &FieldError{
			Err:  err,
			seen: make(map[frameKey]struct{}),
		}
	}

	key := frameKey{name: name, index: index, typ: typeName}
	if _, ok := fe.seen[key]; ok {
		return fe
	}
	fe.seen[key] = struct{}{}
	fe.Frames = append(fe.Frames, Frame{
		Name:   name,
		Index:  index,
		Offset: offset,
		Type:   typeName,
	})
	return fe
}

// Error implements error.
func (e *FieldError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	for _, f := range e.Frames {
		b.WriteString("\n    ")
		b.WriteString(f.String())
	}
	return b.String()
}

// Unwrap implements errors' Unwrap().
func (e *FieldError) Unwrap() error {
	return e.Err
}
