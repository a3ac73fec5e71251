package solver

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Blob is the generic state/solution shape exchanged with callers: string keys
// mapping to scalars, arrays, or nested blobs.
type Blob map[string]any

// Codec converts between typed values and blobs. A Codec is passed explicitly
// into every operation that needs conversion; there is no package-level
// serializer.
type Codec struct {
	// Strict rejects unknown fields when decoding operator input.
	Strict bool
}

// NewCodec returns a codec that rejects unknown input fields.
func NewCodec() *Codec {
	return &Codec{Strict: true}
}

// Encode converts a typed value into a blob. The value must encode to a JSON
// object.
func (c *Codec) Encode(v any) (Blob, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T: %w", v, err)
	}
	var out Blob
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("value %T does not encode to an object: %w", v, err)
	}
	return out, nil
}

// Decode fills v from a blob. An empty blob leaves v at its zero value.
func (c *Codec) Decode(b Blob, v any) error {
	return c.decode(b, v, false)
}

// DecodeInput fills v from operator input, honoring Strict.
func (c *Codec) DecodeInput(b Blob, v any) error {
	return c.decode(b, v, c.Strict)
}

func (c *Codec) decode(b Blob, v any, strict bool) error {
	if len(b) == 0 {
		return nil
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode blob: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode into %T: %w", v, err)
	}
	return nil
}
