// Package json wraps the sonic JSON implementation behind the familiar
// Marshal/Unmarshal surface so callers never import the codec directly.
package json

import "github.com/bytedance/sonic"

var api = sonic.ConfigStd

// Marshal encodes v as JSON.
func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

// MarshalIndent encodes v as indented JSON.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return api.MarshalIndent(v, prefix, indent)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}
