package storage

import (
	"encoding/json"
	"fmt"
)

// Codec is an interface for encoding and decoding keys and values
// for a storage backend. This could be a JSON codec, a binary codec,
// or any other serialization format that makes sense for your application.
type Codec[K, V any] interface {
	EncodeKey(K) ([]byte, error)
	DecodeKey([]byte) (K, error)
	EncodeValue(V) ([]byte, error)
	DecodeValue([]byte) (V, error)
}

// PrefixCodec is implemented by codecs whose encoded keys preserve prefixes:
// if a has prefix p then EncodeKey(a) has prefix EncodePrefix(p).
type PrefixCodec[K any] interface {
	EncodePrefix(K) ([]byte, error)
}

// Ensure the codecs implement the Codec interface.
var (
	_ Codec[any, any]     = (*JSONCodec[any, any])(nil)
	_ Codec[string, any]  = (*StringKeyCodec[string, any])(nil)
	_ PrefixCodec[string] = (*StringKeyCodec[string, any])(nil)
)

// JSONCodec is a codec for encoding and decoding keys and values
// using standard Go JSON serialization.
//
// JSON encoded string keys are quoted, so they do not support prefix scans.
type JSONCodec[K, V any] struct{}

// EncodeKey encodes a key into a JSON byte slice for a storage backend.
func (c *JSONCodec[K, V]) EncodeKey(key K) ([]byte, error) {
	return json.Marshal(key)
}

// DecodeKey decodes a JSON byte slice into a key from a storage backend.
func (c *JSONCodec[K, V]) DecodeKey(data []byte) (K, error) {
	var key K
	if err := json.Unmarshal(data, &key); err != nil {
		return key, err
	}
	return key, nil
}

// EncodeValue encodes a value into a JSON byte slice for a storage backend.
func (c *JSONCodec[K, V]) EncodeValue(value V) ([]byte, error) {
	return json.Marshal(value)
}

// DecodeValue decodes a JSON byte slice into a value from a storage backend.
func (c *JSONCodec[K, V]) DecodeValue(data []byte) (V, error) {
	var value V
	if err := json.Unmarshal(data, &value); err != nil {
		return value, err
	}
	return value, nil
}

// StringKeyCodec stores string keys as their raw bytes, so the backend orders
// them lexicographically and can scan by prefix. Values are JSON.
type StringKeyCodec[K ~string, V any] struct {
	JSONCodec[K, V]
}

// EncodeKey returns the raw bytes of key.
func (c *StringKeyCodec[K, V]) EncodeKey(key K) ([]byte, error) {
	if key == "" {
		return nil, fmt.Errorf("empty key")
	}
	return []byte(key), nil
}

// DecodeKey converts raw bytes back into a key.
func (c *StringKeyCodec[K, V]) DecodeKey(data []byte) (K, error) {
	return K(data), nil
}

// EncodePrefix returns the raw bytes of prefix; an empty prefix is allowed.
func (c *StringKeyCodec[K, V]) EncodePrefix(prefix K) ([]byte, error) {
	return []byte(prefix), nil
}
