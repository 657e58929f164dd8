// Package codec provides the small set of key/value codecs the engine's
// sources and sinks are typically wired with: a text codec for strings, a
// binary codec for anything implementing
// encoding.BinaryMarshaler/BinaryUnmarshaler, a fixed-width int64 codec for
// counter values, and a void codec for unit-typed keys and values.
package codec

import (
	"encoding"
	"fmt"
)

// Text is a streams.Codec[string] that passes bytes through unchanged.
type Text struct{}

func (Text) Encode(v string) ([]byte, error) { return []byte(v), nil }
func (Text) Decode(b []byte) (string, error) { return string(b), nil }

// Bytes is a streams.Codec[[]byte] that passes bytes through unchanged.
type Bytes struct{}

func (Bytes) Encode(v []byte) ([]byte, error) { return v, nil }
func (Bytes) Decode(b []byte) ([]byte, error) { return append([]byte(nil), b...), nil }

// Void is a streams.Codec[struct{}] for "void key"/"void value" topics: it
// always encodes to zero bytes.
type Void struct{}

func (Void) Encode(struct{}) ([]byte, error) { return nil, nil }
func (Void) Decode([]byte) (struct{}, error) { return struct{}{}, nil }

// Int64 is a streams.Codec[int64] using a fixed 8-byte little-endian
// encoding, used for counter/aggregate values.
type Int64 struct{}

func (Int64) Encode(v int64) ([]byte, error) {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = byte(v >> (8 * i))
	}
	return out, nil
}

func (Int64) Decode(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("codec: int64 needs 8 bytes, got %d", len(b))
	}
	var v int64
	for i := 7; i >= 0; i-- {
		v = v<<8 | int64(b[i])
	}
	return v, nil
}

// Binary adapts any pointer type implementing encoding.BinaryMarshaler and
// encoding.BinaryUnmarshaler into a streams.Codec, mirroring kspp's
// binary_codec.h template, which simply calls the value's own serializer.
// New must return a freshly allocated V (for a pointer type, a pointer to a
// new value) for Decode to unmarshal into.
type Binary[V interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}] struct {
	New func() V
}

func (c Binary[V]) Encode(v V) ([]byte, error) {
	return v.MarshalBinary()
}

func (c Binary[V]) Decode(b []byte) (V, error) {
	v := c.New()
	if err := v.UnmarshalBinary(b); err != nil {
		var zero V
		return zero, err
	}
	return v, nil
}
