package codec

import (
	"compress/gzip"
	"reflect"
	"testing"
)

func TestGzipJSONRoundTrip(t *testing.T) {
	c := GzipJSON{Level: gzip.DefaultCompression}

	in := map[string]any{"hello": []any{"world", "42"}, "n": 3.0}
	data, err := c.Encode(in)
	if err != nil {
		t.Fatalf("failed to encode: %v", err)
	}
	out, err := c.Decode(data)
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("round trip mismatch: %v vs %v", out, in)
	}
}

func TestGzipJSONLevels(t *testing.T) {
	for _, level := range []int{gzip.DefaultCompression, gzip.NoCompression, gzip.BestSpeed, gzip.BestCompression} {
		c := GzipJSON{Level: level}
		data, err := c.Encode("payload")
		if err != nil {
			t.Fatalf("level %d: failed to encode: %v", level, err)
		}
		out, err := c.Decode(data)
		if err != nil {
			t.Fatalf("level %d: failed to decode: %v", level, err)
		}
		if out != "payload" {
			t.Errorf("level %d: got %v", level, out)
		}
	}
}

func TestGzipJSONRejectsBadLevel(t *testing.T) {
	if _, err := (GzipJSON{Level: 42}).Encode("x"); err == nil {
		t.Error("expected error for invalid compression level")
	}
}

func TestRawPassthrough(t *testing.T) {
	data, err := Raw{}.Encode([]byte{1, 2, 3})
	if err != nil {
		t.Fatalf("failed to encode: %v", err)
	}
	out, err := Raw{}.Decode(data)
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !reflect.DeepEqual(out, []byte{1, 2, 3}) {
		t.Errorf("unexpected round trip: %v", out)
	}

	if _, err := (Raw{}).Encode("not bytes"); err == nil {
		t.Error("expected error for non-[]byte value")
	}
}
