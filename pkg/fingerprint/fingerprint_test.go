package fingerprint

import (
	"errors"
	"testing"
)

func TestCanonicalSortsKeys(t *testing.T) {
	got, err := Canonical(map[string]any{
		"zebra": 1,
		"alpha": 2,
		"mid":   map[string]any{"b": true, "a": nil},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"alpha":2,"mid":{"a":null,"b":true},"zebra":1}`
	if string(got) != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestCanonicalNoWhitespace(t *testing.T) {
	got, err := Canonical(map[string]any{"a": []any{1, "two", 3.5}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"a":[1,"two",3.5]}`
	if string(got) != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestCanonicalIdempotent(t *testing.T) {
	in := map[string]any{
		"n": 6,
		"f": 2.25,
		"s": []any{map[string]any{"y": 1, "x": 0}},
	}
	first, err := Canonical(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parsed, err := Parse(first)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Canonical(parsed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(first) != string(second) {
		t.Errorf("canonicalization not idempotent: %s vs %s", first, second)
	}
}

func TestCanonicalIntegralFloatCollapses(t *testing.T) {
	a, err := Canonical(map[string]any{"v": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Canonical(map[string]any{"v": 1.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(a) != string(b) {
		t.Errorf("1 and 1.0 should fingerprint identically: %s vs %s", a, b)
	}
}

func TestCanonicalRejectsNonJSONable(t *testing.T) {
	cases := []any{
		func() {},
		make(chan int),
		map[int]string{1: "x"},
		[]any{[]any{func() {}}},
	}
	for _, c := range cases {
		_, err := Canonical(c)
		var nj *NotJSONableError
		if !errors.As(err, &nj) {
			t.Errorf("expected NotJSONableError for %T, got %v", c, err)
		}
	}
}

func TestCanonicalRejectsNaN(t *testing.T) {
	nan := 0.0
	nan = nan / nan
	if _, err := Canonical(map[string]any{"v": nan}); err == nil {
		t.Error("expected error for NaN")
	}
}

func TestCanonicalPreservesSliceOrder(t *testing.T) {
	got, err := Canonical([]string{"b", "a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != `["b","a"]` {
		t.Errorf("slice order must be preserved, got %s", got)
	}
}
