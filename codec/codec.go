// Package codec turns typed values into the bytes carried on the bus and back.
//
// Codecs compose by wrapping: the bus always applies Gzip around the
// type-specific codec, so the wire body is gzip(serialize(value)).
package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrCompress   = errors.New("codec: compress failed")
	ErrDecompress = errors.New("codec: decompress failed")
	ErrType       = errors.New("codec: unexpected value type")
)

// Codec encodes values of type T to bytes and decodes them back.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(data []byte) (T, error)
}

// Funcs adapts a pair of plain functions to a Codec.
type Funcs[T any] struct {
	EncodeFunc func(T) ([]byte, error)
	DecodeFunc func([]byte) (T, error)
}

func (f Funcs[T]) Encode(v T) ([]byte, error)     { return f.EncodeFunc(v) }
func (f Funcs[T]) Decode(data []byte) (T, error) { return f.DecodeFunc(data) }

type jsonCodec[T any] struct{}

// JSON encodes values with encoding/json.
func JSON[T any]() Codec[T] { return jsonCodec[T]{} }

func (jsonCodec[T]) Encode(v T) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec[T]) Decode(data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("json decode: %w", err)
	}
	return v, nil
}

type msgpackCodec[T any] struct{}

// MsgPack encodes values as MessagePack. It is the compact choice for
// high-rate payloads such as DMX frames and timecode.
func MsgPack[T any]() Codec[T] { return msgpackCodec[T]{} }

func (msgpackCodec[T]) Encode(v T) ([]byte, error) { return msgpack.Marshal(v) }

func (msgpackCodec[T]) Decode(data []byte) (T, error) {
	var v T
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("msgpack decode: %w", err)
	}
	return v, nil
}

type bytesCodec struct{}

// Bytes passes raw payloads through untouched.
func Bytes() Codec[[]byte] { return bytesCodec{} }

func (bytesCodec) Encode(v []byte) ([]byte, error) { return v, nil }

func (bytesCodec) Decode(data []byte) ([]byte, error) { return data, nil }

type stringCodec struct{}

func String() Codec[string] { return stringCodec{} }

func (stringCodec) Encode(v string) ([]byte, error) { return []byte(v), nil }

func (stringCodec) Decode(data []byte) (string, error) { return string(data), nil }
