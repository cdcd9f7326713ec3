// Defines the Payload tagged union stored by the blob store.

package jsonldb

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Mode is the serialization mode of a blob.
type Mode string

const (
	// ModeString stores UTF-8 text as-is.
	ModeString Mode = "string"
	// ModeBytes stores raw bytes as-is.
	ModeBytes Mode = "bytes"
	// ModeObject stores a value encoded as JSON.
	ModeObject Mode = "object"
)

// ErrUnknownMode is returned when a blob mode is none of the known modes.
// It indicates an inconsistent index and is never recovered from.
var ErrUnknownMode = errors.New("unknown blob mode")

// Validate returns ErrUnknownMode unless m is one of the three modes.
func (m Mode) Validate() error {
	switch m {
	case ModeString, ModeBytes, ModeObject:
		return nil
	}
	return fmt.Errorf("%w %q", ErrUnknownMode, string(m))
}

// Payload is the content of a blob: exactly one of text, bytes or an encoded
// object, as given by Mode.
type Payload struct {
	mode Mode
	data []byte
}

// TextPayload returns a ModeString payload.
func TextPayload(s string) Payload {
	return Payload{mode: ModeString, data: []byte(s)}
}

// BytesPayload returns a ModeBytes payload. b is copied.
func BytesPayload(b []byte) Payload {
	return Payload{mode: ModeBytes, data: append([]byte{}, b...)}
}

// ObjectPayload encodes v as JSON and returns a ModeObject payload.
func ObjectPayload(v any) (Payload, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Payload{}, fmt.Errorf("failed to encode blob object: %w", err)
	}
	return Payload{mode: ModeObject, data: raw}, nil
}

// Mode returns the payload kind. The zero Payload has an empty mode.
func (p Payload) Mode() Mode {
	return p.mode
}

// Text returns the text of a ModeString payload.
func (p Payload) Text() (string, bool) {
	if p.mode != ModeString {
		return "", false
	}
	return string(p.data), true
}

// Bytes returns the content of a ModeBytes payload.
func (p Payload) Bytes() ([]byte, bool) {
	if p.mode != ModeBytes {
		return nil, false
	}
	return p.data, true
}

// Decode decodes a ModeObject payload into v.
func (p Payload) Decode(v any) error {
	if p.mode != ModeObject {
		return fmt.Errorf("cannot decode %q blob as object", p.mode)
	}
	return json.Unmarshal(p.data, v)
}

// Object decodes a ModeObject payload into its generic form.
func (p Payload) Object() (any, error) {
	var v any
	if err := p.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Size returns the encoded size in bytes.
func (p Payload) Size() int {
	return len(p.data)
}
