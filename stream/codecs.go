package stream

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
	"github.com/pierrec/lz4/v4"
)

// The built-in codecs, registered at init.
var (
	Identity = mustRegister(identityCodec{})
	Zlib     = mustRegister(zlibCodec{})
	Deflate  = mustRegister(deflateCodec{})
	LZ4      = mustRegister(lz4Codec{})
)

type identityCodec struct{}

func (identityCodec) Name() string { return "identity" }

func (identityCodec) Decode(raw []byte) ([]byte, error) {
	return append([]byte(nil), raw...), nil
}

func (identityCodec) Encode(derived []byte) ([]byte, error) {
	return derived, nil
}

type zlibCodec struct{}

func (zlibCodec) Name() string { return "zlib" }

func (zlibCodec) Decode(raw []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func (zlibCodec) Encode(derived []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(derived); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type deflateCodec struct{}

func (deflateCodec) Name() string { return "deflate" }

func (deflateCodec) Decode(raw []byte) ([]byte, error) {
	fr := flate.NewReader(bytes.NewReader(raw))
	defer fr.Close()
	return io.ReadAll(fr)
}

func (deflateCodec) Encode(derived []byte) ([]byte, error) {
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(derived); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type lz4Codec struct{}

func (lz4Codec) Name() string { return "lz4" }

func (lz4Codec) Decode(raw []byte) ([]byte, error) {
	lr := lz4.NewReader(bytes.NewReader(raw))
	return io.ReadAll(lr)
}

func (lz4Codec) Encode(derived []byte) ([]byte, error) {
	var buf bytes.Buffer
	lw := lz4.NewWriter(&buf)
	if _, err := lw.Write(derived); err != nil {
		return nil, err
	}
	if err := lw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
