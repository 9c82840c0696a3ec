package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

type gzipCodec[T any] struct {
	inner Codec[T]
}

// Gzip wraps inner so that encoded bytes are gzip-compressed and decoding
// peels the compression before handing the bytes to inner.
func Gzip[T any](inner Codec[T]) Codec[T] {
	return gzipCodec[T]{inner: inner}
}

func (g gzipCodec[T]) Encode(v T) ([]byte, error) {
	raw, err := g.inner.Encode(v)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		zw.Close()
		return nil, fmt.Errorf("%w: %v", ErrCompress, err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompress, err)
	}
	return buf.Bytes(), nil
}

func (g gzipCodec[T]) Decode(data []byte) (T, error) {
	var zero T

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	return g.inner.Decode(raw)
}
