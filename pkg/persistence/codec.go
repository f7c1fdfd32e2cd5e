// Package persistence provides codecs that convert machine state to and
// from the byte form stored by persistent cell backends.
package persistence

import "encoding/json"

// Codec converts a state value to and from its stored byte form.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Middleware allows wrapping a Codec to add behavior.
type Middleware func(Codec) Codec

// JSON is the default codec. It stores states as JSON documents.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
