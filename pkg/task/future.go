package task

import (
	"bytes"
	"fmt"

	"github.com/koheimiya/taskproc/pkg/fingerprint"
)

// InvalidKeyError reports a projection key that is not a JSON literal
type InvalidKeyError struct {
	Key any
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("projection key is not a JSON literal: %v (%T)", e.Key, e.Key)
}

// InvalidConstError reports a Const value that is not literal-safe
type InvalidConstError struct {
	Value  any
	Reason error
}

func (e *InvalidConstError) Error() string {
	return fmt.Sprintf("const value is not literal-safe: %v (%T)", e.Value, e.Value)
}

func (e *InvalidConstError) Unwrap() error { return e.Reason }

// Const wraps a JSON-literal value usable in an argument slot. The value must
// be literal-safe: re-parsing its canonical text yields the same value.
type Const struct {
	value any
	repr  string
}

// NewConst validates v and wraps it. It fails with InvalidConstError when v
// does not survive a canonical round-trip (embedded functions, channels,
// NaN floats, non-string-keyed maps).
func NewConst(v any) (*Const, error) {
	first, err := fingerprint.Canonical(v)
	if err != nil {
		return nil, &InvalidConstError{Value: v, Reason: err}
	}
	parsed, err := fingerprint.Parse(first)
	if err != nil {
		return nil, &InvalidConstError{Value: v, Reason: err}
	}
	second, err := fingerprint.Canonical(parsed)
	if err != nil {
		return nil, &InvalidConstError{Value: v, Reason: err}
	}
	if !bytes.Equal(first, second) {
		return nil, &InvalidConstError{Value: v}
	}
	return &Const{value: v, repr: string(first)}, nil
}

// MustConst wraps v, panicking when it is not literal-safe. Intended for
// literals written directly in task constructors.
func MustConst(v any) *Const {
	c, err := NewConst(v)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Const) futureNode() {}

// Value returns the wrapped literal
func (c *Const) Value() any { return c.value }

// Repr returns the canonical text form of the literal
func (c *Const) Repr() string { return c.repr }

// Mapped is a structural projection into another future's result. It is never
// scheduled on its own; the executor schedules its origin and the projection
// path narrows the value at read time.
type Mapped struct {
	origin Future // never *Mapped; chains collapse at construction
	path   []any
}

// Index narrows a future's eventual result by a JSON-literal key. Chains
// collapse: Index(Index(f, a), b) records the path [a, b] against f's origin.
func Index(f Future, key any) (*Mapped, error) {
	if !literalKey(key) {
		return nil, &InvalidKeyError{Key: key}
	}
	if m, ok := f.(*Mapped); ok {
		path := make([]any, 0, len(m.path)+1)
		path = append(path, m.path...)
		path = append(path, key)
		return &Mapped{origin: m.origin, path: path}, nil
	}
	return &Mapped{origin: f, path: []any{key}}, nil
}

// MustIndex applies Index over each key in turn, panicking on a non-literal
// key.
func MustIndex(f Future, keys ...any) *Mapped {
	var m *Mapped
	var err error
	cur := f
	for _, k := range keys {
		m, err = Index(cur, k)
		if err != nil {
			panic(err)
		}
		cur = m
	}
	return m
}

func (m *Mapped) futureNode() {}

// Origin returns the future the projection reads from
func (m *Mapped) Origin() Future { return m.origin }

// Path returns the projection path, outermost key first
func (m *Mapped) Path() []any { return append([]any(nil), m.path...) }

// Origin resolves the scheduled future behind f: the origin of a projection,
// f itself otherwise.
func Origin(f Future) Future {
	if m, ok := f.(*Mapped); ok {
		return m.origin
	}
	return f
}

// Project applies a projection path to a materialized value. Map steps expect
// string keys; sequence steps expect integer (or integral float) keys.
func Project(v any, path []any) (any, error) {
	for _, k := range path {
		switch container := v.(type) {
		case map[string]any:
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("cannot index object with key %v (%T)", k, k)
			}
			elem, ok := container[ks]
			if !ok {
				return nil, fmt.Errorf("key %q not present in result object", ks)
			}
			v = elem
		case []any:
			idx, ok := intKey(k)
			if !ok {
				return nil, fmt.Errorf("cannot index array with key %v (%T)", k, k)
			}
			if idx < 0 || idx >= len(container) {
				return nil, fmt.Errorf("index %d out of range (len %d)", idx, len(container))
			}
			v = container[idx]
		default:
			return nil, fmt.Errorf("cannot project into %T with key %v", v, k)
		}
	}
	return v, nil
}

func literalKey(key any) bool {
	switch key.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}

func intKey(k any) (int, bool) {
	switch x := k.(type) {
	case int:
		return x, true
	case int8:
		return int(x), true
	case int16:
		return int(x), true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case uint:
		return int(x), true
	case uint8:
		return int(x), true
	case uint16:
		return int(x), true
	case uint32:
		return int(x), true
	case uint64:
		return int(x), true
	case float32:
		if float32(int(x)) == x {
			return int(x), true
		}
	case float64:
		if float64(int(x)) == x {
			return int(x), true
		}
	}
	return 0, false
}
