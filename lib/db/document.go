package db

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Document is a JSON object tree. Decoded documents only contain the value
// types map[string]any, []any, string, int64, float64, bool and nil.
type Document map[string]any

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

// Decode parses a JSON object. Integral numbers become int64, all other
// numbers float64. Anything that is not exactly one JSON object fails with
// ErrDecode.
func Decode(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: top level value is not an object", ErrDecode)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after document", ErrDecode)
	}

	return Document(normalizeNumbers(raw).(map[string]any)), nil
}

// Encode renders a document as compact JSON. A nil document encodes as {}.
func Encode(doc Document) ([]byte, error) {
	if doc == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(doc))
}

// Normalize converts arbitrary JSON-encodable values into a document of the
// canonical value types by encoding and decoding it.
func Normalize(doc Document) (Document, error) {
	data, err := Encode(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return Decode(data)
}

// normalizeNumbers replaces json.Number values in place.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = normalizeNumbers(child)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = normalizeNumbers(child)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	default:
		return v
	}
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// Get walks nested objects along path and returns the value found there.
func (d Document) Get(path ...string) (any, bool) {
	var cur any = map[string]any(d)
	for _, p := range path {
		obj, ok := asObject(cur)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set stores value under key.
func (d Document) Set(key string, value any) {
	d[key] = value
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(cloneValue(map[string]any(d)).(map[string]any))
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = cloneValue(child)
		}
		return out
	case Document:
		return map[string]any(t.Clone())
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = cloneValue(child)
		}
		return out
	default:
		return v
	}
}

func asObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Document:
		return t, true
	default:
		return nil, false
	}
}

// --------------------------------------------------------------------------
// Size Estimation
// --------------------------------------------------------------------------

// Approximate in-memory costs used by Size.
const (
	sizeObject = 48
	sizeEntry  = 16
	sizeArray  = 24
	sizeString = 16
	sizeScalar = 8
)

// Size estimates the number of bytes the document occupies in memory. It is
// the cost the cache charges for holding the document.
func (d Document) Size() int64 {
	return sizeOf(map[string]any(d))
}

func sizeOf(v any) int64 {
	switch t := v.(type) {
	case map[string]any:
		n := int64(sizeObject)
		for k, child := range t {
			n += sizeEntry + int64(len(k)) + sizeOf(child)
		}
		return n
	case Document:
		return sizeOf(map[string]any(t))
	case []any:
		n := int64(sizeArray)
		for _, child := range t {
			n += sizeOf(child)
		}
		return n
	case string:
		return sizeString + int64(len(t))
	default:
		return sizeScalar
	}
}
