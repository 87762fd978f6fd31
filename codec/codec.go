// Package codec is the (de)serialization boundary between typed cache
// payloads and the JSON envelopes kept in durable storage.
//
// Encoders must emit a single valid JSON document: the bytes are embedded
// verbatim as the "data" member of a storage envelope.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Codec converts V to and from its persisted representation.
type Codec[V any] interface {
	Encode(v V) ([]byte, error)
	Decode(b []byte) (V, error)
}

// JSON is the default codec backed by encoding/json.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: encode %T: %w", v, err)
	}
	return b, nil
}

func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("codec: decode %T: %w", v, err)
	}
	return v, nil
}

// Strict decodes like JSON but rejects unknown fields, so payloads written
// by a different shape of V fail at the boundary instead of half-decoding.
type Strict[V any] struct{}

func (Strict[V]) Encode(v V) ([]byte, error) { return JSON[V]{}.Encode(v) }

func (Strict[V]) Decode(b []byte) (V, error) {
	var v V
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("codec: strict decode %T: %w", v, err)
	}
	return v, nil
}

// Validated wraps a codec with a shape check run after every decode and
// before every encode.
func Validated[V any](inner Codec[V], check func(V) error) Codec[V] {
	if inner == nil {
		inner = JSON[V]{}
	}
	return validated[V]{inner: inner, check: check}
}

type validated[V any] struct {
	inner Codec[V]
	check func(V) error
}

func (c validated[V]) Encode(v V) ([]byte, error) {
	if err := c.check(v); err != nil {
		return nil, fmt.Errorf("codec: invalid value: %w", err)
	}
	return c.inner.Encode(v)
}

func (c validated[V]) Decode(b []byte) (V, error) {
	v, err := c.inner.Decode(b)
	if err != nil {
		return v, err
	}
	if err := c.check(v); err != nil {
		var zero V
		return zero, fmt.Errorf("codec: invalid payload: %w", err)
	}
	return v, nil
}

var (
	_ Codec[int] = JSON[int]{}
	_ Codec[int] = Strict[int]{}
)
