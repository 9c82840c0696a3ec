package bus

import (
	"fmt"
	"reflect"

	"github.com/wailbentafat/showbus/codec"
)

// Handler is a registration for one channel: it knows how to encode values
// sent on the channel and how to decode and consume values received on it.
type Handler interface {
	// Type names the payload type, for logs.
	Type() string
	Encode(v any) ([]byte, error)
	Decode(data []byte) (any, error)
	Handle(v any) error
}

type typedHandler[T any] struct {
	typ   string
	codec codec.Codec[T]
	fn    func(T) error
}

// NewHandler builds a Handler for payloads of type T. The codec is always
// wrapped in gzip, so the wire body is gzip(c.Encode(v)).
func NewHandler[T any](c codec.Codec[T], fn func(T) error) Handler {
	return &typedHandler[T]{
		typ:   reflect.TypeOf((*T)(nil)).Elem().String(),
		codec: codec.Gzip(c),
		fn:    fn,
	}
}

// Register is shorthand for b.RegisterHandler(channel, NewHandler(c, fn)).
func Register[T any](b *Bus, channel string, c codec.Codec[T], fn func(T) error) {
	b.RegisterHandler(channel, NewHandler(c, fn))
}

func (h *typedHandler[T]) Type() string { return h.typ }

func (h *typedHandler[T]) Encode(v any) ([]byte, error) {
	t, ok := v.(T)
	if !ok {
		return nil, fmt.Errorf("%w: got %T, want %s", codec.ErrType, v, h.typ)
	}
	return h.codec.Encode(t)
}

func (h *typedHandler[T]) Decode(data []byte) (any, error) {
	return h.codec.Decode(data)
}

func (h *typedHandler[T]) Handle(v any) error {
	t, ok := v.(T)
	if !ok {
		return fmt.Errorf("%w: got %T, want %s", codec.ErrType, v, h.typ)
	}
	if h.fn == nil {
		return nil
	}
	return h.fn(t)
}
