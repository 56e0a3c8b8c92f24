package fingerprint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
)

// NotJSONableError reports a value that cannot appear in a canonical
// argument tree.
type NotJSONableError struct {
	Value any
}

func (e *NotJSONableError) Error() string {
	return fmt.Sprintf("value is not JSON-able: %v (%T)", e.Value, e.Value)
}

// Canonical encodes an argument tree as the canonical UTF-8 byte string used
// as a task fingerprint. Object keys are emitted sorted lexicographically by
// code point and no insignificant whitespace is produced. The tree may contain
// only JSON literals: nil, bool, string, integer and float numbers, slices,
// and string-keyed maps. Futures must be lowered to their reference objects
// before calling Canonical.
//
// Canonical is idempotent: re-encoding a parsed canonical string yields the
// same bytes.
func Canonical(v any) ([]byte, error) {
	norm, err := normalize(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, norm); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Parse decodes a canonical byte string back into its tree form. Numbers
// decode as float64, objects as map[string]any, arrays as []any.
func Parse(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to parse fingerprint: %w", err)
	}
	return v, nil
}

// normalize lowers a tree to nil / bool / string / int64 / uint64 / float64 /
// []any / map[string]any, rejecting everything else.
func normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case bool, string:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return uint64(x), nil
	case uint8:
		return uint64(x), nil
	case uint16:
		return uint64(x), nil
	case uint32:
		return uint64(x), nil
	case uint64:
		return x, nil
	case float32:
		return normalizeFloat(float64(x))
	case float64:
		return normalizeFloat(x)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			n, err := normalize(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, &NotJSONableError{Value: v}
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			n, err := normalize(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = n
		}
		return out, nil
	}
	return nil, &NotJSONableError{Value: v}
}

func normalizeFloat(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &NotJSONableError{Value: f}
	}
	// Integral floats collapse to their integer form so that a value
	// re-parsed from canonical text fingerprints identically.
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f), nil
	}
	return f, nil
}

// writeCanonical emits a normalized tree with sorted keys and no whitespace.
func writeCanonical(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, x[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return &NotJSONableError{Value: v}
		}
		buf.Write(b)
		return nil
	}
}
