package db

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeCanonicalTypes(t *testing.T) {
	doc, err := Decode([]byte(`{"name":"alice","age":31,"ratio":0.5,"ok":true,"none":null,"tags":["a",2],"nested":{"n":-7}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	want := Document{
		"name":   "alice",
		"age":    int64(31),
		"ratio":  0.5,
		"ok":     true,
		"none":   nil,
		"tags":   []any{"a", int64(2)},
		"nested": map[string]any{"n": int64(-7)},
	}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Errorf("decoded document mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeRejectsNonObjects(t *testing.T) {
	inputs := map[string]string{
		"array":    `[1,2,3]`,
		"null":     `null`,
		"string":   `"x"`,
		"empty":    ``,
		"trailing": `{"a":1} {"b":2}`,
		"broken":   `{"a":`,
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			if _, err := Decode([]byte(input)); !errors.Is(err, ErrDecode) {
				t.Errorf("expected ErrDecode for %q, got %v", input, err)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	doc := Document{"a": map[string]any{"b": []any{int64(1), "two", 3.5, false}}}
	data, err := Encode(doc)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	if data, _ := Encode(nil); string(data) != "{}" {
		t.Errorf("expected nil document to encode as {}, got %s", data)
	}
}

func TestNormalize(t *testing.T) {
	doc, err := Normalize(Document{"n": 3, "list": []string{"x"}, "m": map[string]int{"k": 1}})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	want := Document{"n": int64(3), "list": []any{"x"}, "m": map[string]any{"k": int64(1)}}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Errorf("normalized document mismatch (-want +got):\n%s", diff)
	}

	if _, err := Normalize(Document{"ch": make(chan int)}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for unencodable value, got %v", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	doc := Document{"nested": map[string]any{"list": []any{"a"}}}
	clone := doc.Clone()

	clone["nested"].(map[string]any)["list"].([]any)[0] = "changed"
	clone["extra"] = true

	if v, _ := doc.Get("nested", "list"); v.([]any)[0] != "a" {
		t.Errorf("modifying the clone changed the original: %v", doc)
	}
	if _, ok := doc["extra"]; ok {
		t.Errorf("top level key leaked into original")
	}
	if Document(nil).Clone() != nil {
		t.Errorf("clone of nil document should be nil")
	}
}

func TestGetSet(t *testing.T) {
	doc := Document{}
	doc.Set("user", map[string]any{"name": "bob"})

	if v, ok := doc.Get("user", "name"); !ok || v != "bob" {
		t.Errorf("expected bob, got %v (found=%v)", v, ok)
	}
	if _, ok := doc.Get("user", "name", "deeper"); ok {
		t.Errorf("expected lookup through a string to fail")
	}
	if _, ok := doc.Get("missing"); ok {
		t.Errorf("expected missing key to be absent")
	}
	if v, ok := doc.Get(); !ok || v == nil {
		t.Errorf("empty path should return the document itself")
	}
}

func TestSizeGrowsWithContent(t *testing.T) {
	small := Document{"a": "x"}
	large := Document{"a": "x", "b": []any{"some longer string value", int64(1), map[string]any{"c": true}}}

	if small.Size() <= 0 {
		t.Errorf("expected positive size, got %d", small.Size())
	}
	if large.Size() <= small.Size() {
		t.Errorf("expected larger document to be larger: %d <= %d", large.Size(), small.Size())
	}
	if Document(nil).Size() != sizeObject {
		t.Errorf("empty document should cost one object header")
	}
}
