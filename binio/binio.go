// Package binio provides bounds-checked io over in-memory byte buffers, as
// well as the error types used throughout bindef.
//
// Parsing works against a Reader: a seekable view of a fully loaded file.
// Serializing works against a Writer: a growable buffer where every write
// lands at an explicit offset and gaps are zero filled. Neither ever panics
// on a bad offset; all failures surface as errors wrapping ErrBounds so a
// corrupt size or pointer field cannot crash the process.
package binio

import (
	"bytes"
	"fmt"
)

// NewReader returns a Reader over data. The Reader does not copy data;
// callers must not mutate it while parsing.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Reader is a bounds-checked, seekable view of a byte buffer.
type Reader struct {
	data []byte
	off  int64
}

// Len returns the total length of the underlying buffer.
func (r *Reader) Len() int64 {
	return int64(len(r.data))
}

// Offset returns the current read position.
func (r *Reader) Offset() int64 {
	return r.off
}

// Seek moves the read position to off. Seeking to Len() exactly is allowed;
// it is the position after the final byte.
func (r *Reader) Seek(off int64) error {
	if off < 0 || off > int64(len(r.data)) {
		return fmt.Errorf("%w: seek to %d in %d byte buffer", ErrBounds, off, len(r.data))
	}
	r.off = off
	return nil
}

// Read returns the next n bytes and advances the read position.
// The returned slice aliases the underlying buffer.
func (r *Reader) Read(n int64) ([]byte, error) {
	b, err := r.ReadAt(r.off, n)
	if err != nil {
		return nil, err
	}
	r.off += n
	return b, nil
}

// ReadAt returns n bytes starting at off without moving the read position.
func (r *Reader) ReadAt(off, n int64) ([]byte, error) {
	if n < 0 || n > TooBig {
		return nil, fmt.Errorf("%w: read of %d bytes exceeds sanity limit", ErrBounds, n)
	}
	if off < 0 || off+n > int64(len(r.data)) {
		return nil, fmt.Errorf("%w: read of %d bytes at %d in %d byte buffer",
			ErrBounds, n, off, len(r.data))
	}
	return r.data[off : off+n], nil
}

// Find returns the offset of the first occurrence of delim at or after from,
// or -1 if delim does not occur before the end of the buffer.
func (r *Reader) Find(delim []byte, from int64) int64 {
	if from < 0 || from > int64(len(r.data)) {
		return -1
	}
	i := bytes.Index(r.data[from:], delim)
	if i < 0 {
		return -1
	}
	return from + int64(i)
}

// Bytes returns the underlying buffer.
func (r *Reader) Bytes() []byte {
	return r.data
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Writer is a growable output buffer addressed by absolute offset.
// Writing past the current end grows the buffer, zero filling any gap, so
// padding bytes and pointer-target regions that are skipped over always
// serialize as zeroes rather than garbage.
type Writer struct {
	data []byte
}

// Len returns the current length of the written buffer.
func (w *Writer) Len() int64 {
	return int64(len(w.data))
}

// WriteAt writes b at offset off, growing the buffer as needed.
func (w *Writer) WriteAt(off int64, b []byte) error {
	if off < 0 {
		return fmt.Errorf("%w: write at negative offset %d", ErrBounds, off)
	}
	end := off + int64(len(b))
	if end > TooBig {
		return fmt.Errorf("%w: write to %d exceeds sanity limit", ErrBounds, end)
	}
	w.grow(end)
	copy(w.data[off:end], b)
	return nil
}

// ZeroFill ensures the n bytes beginning at off exist and are zero.
// Bytes already written in the range are cleared.
func (w *Writer) ZeroFill(off, n int64) error {
	if off < 0 || n < 0 || off+n > TooBig {
		return fmt.Errorf("%w: zero fill of %d bytes at %d", ErrBounds, n, off)
	}
	end := off + n
	w.grow(end)
	for i := off; i < end; i++ {
		w.data[i] = 0
	}
	return nil
}

// Bytes returns the written buffer. The slice is owned by the Writer until
// the Writer is discarded.
func (w *Writer) Bytes() []byte {
	return w.data
}

func (w *Writer) grow(end int64) {
	if end <= int64(len(w.data)) {
		return
	}
	if end <= int64(cap(w.data)) {
		w.data = w.data[:end]
		return
	}
	nb := make([]byte, end, end*2)
	copy(nb, w.data)
	w.data = nb
}
