package backup

import "encoding/json"

// Codec converts tasks to and from the bytes used as durable keys. Encode must be
// deterministic: completing a task deletes the key Encode produces for it.
type Codec[T any] interface {
	Encode(T) ([]byte, error)
	Decode([]byte) (T, error)
}

// StringCodec stores a string task as its raw bytes.
type StringCodec struct{}

func (StringCodec) Encode(s string) ([]byte, error) { return []byte(s), nil }

func (StringCodec) Decode(b []byte) (string, error) { return string(b), nil }

// JSONCodec stores a task as its JSON encoding.
type JSONCodec[T any] struct{}

func (JSONCodec[T]) Encode(v T) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec[T]) Decode(b []byte) (T, error) {
	var v T
	err := json.Unmarshal(b, &v)
	return v, err
}
