package codec

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
)

// Codec converts task result values to and from the opaque bytes stored in an
// instance directory. Implementations must round-trip: Decode(Encode(v))
// yields a value equivalent to v under JSON semantics.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte) (any, error)
}

// GzipJSON is the default codec: the value rendered as JSON, gzip-compressed
// at the configured level. The stored bytes stay inspectable with standard
// tools (zcat + any JSON reader).
type GzipJSON struct {
	// Level is a compress/gzip level; gzip.DefaultCompression (-1) selects
	// the library default.
	Level int
}

// Encode renders v as gzip-compressed JSON
func (c GzipJSON) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, c.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid compression level %d: %w", c.Level, err)
	}
	enc := json.NewEncoder(zw)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses gzip-compressed JSON back into a value. Objects decode as
// map[string]any, arrays as []any, numbers as float64.
func (c GzipJSON) Decode(data []byte) (any, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress result: %w", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to read result: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return v, nil
}

// Raw passes bytes through unchanged. The task must return []byte and
// consumers receive []byte.
type Raw struct{}

func (Raw) Encode(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("raw codec requires []byte result, got %T", v)
	}
	return b, nil
}

func (Raw) Decode(data []byte) (any, error) {
	return data, nil
}
