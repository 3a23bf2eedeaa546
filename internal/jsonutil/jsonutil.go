// Package jsonutil wraps sonic for fast JSON encoding across the engine.
package jsonutil

import (
	"github.com/bytedance/sonic"
)

// Marshal serializes v to JSON bytes.
func Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

// MarshalString serializes v to a JSON string.
func MarshalString(v any) (string, error) {
	return sonic.MarshalString(v)
}

// MarshalIndent serializes v to indented JSON bytes.
func MarshalIndent(v any) ([]byte, error) {
	return sonic.MarshalIndent(v, "", "  ")
}

// Unmarshal parses JSON bytes into v.
func Unmarshal(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

// UnmarshalString parses a JSON string into v.
func UnmarshalString(s string, v any) error {
	return sonic.UnmarshalString(s, v)
}

// FromJSON parses a JSON string into a value of type T.
func FromJSON[T any](s string) (T, error) {
	var v T
	err := sonic.UnmarshalString(s, &v)
	return v, err
}
