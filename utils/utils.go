package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/asaidimu/go-storefront/core/schema"
)

// ToDocument converts a struct into a schema.Document.
//
// The record is marshalled to JSON, so `json:"tag"` annotations and
// `omitempty` decide the document's keys. Nested structs become
// map[string]any and slices become []any. Whole JSON numbers decode to
// int64 and the rest to float64.
//
// The input `record` must be a struct or a pointer to a struct.
//
// Example:
//
//	type Gallery struct {
//		First string `json:"first"`
//	}
//	type Product struct {
//		ID      string  `json:"id"`
//		Price   float64 `json:"price"`
//		Gallery Gallery `json:"gallery"`
//	}
//	doc, err := ToDocument(Product{ID: "zx9", Price: 4500, Gallery: Gallery{First: "a.jpg"}})
//	// doc is schema.Document{"id": "zx9", "price": int64(4500), "gallery": map[string]any{"first": "a.jpg"}}
func ToDocument[T any](record T) (schema.Document, error) {
	val := reflect.ValueOf(record)
	if !val.IsValid() {
		return nil, fmt.Errorf("input record cannot be nil")
	}
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil, fmt.Errorf("input record cannot be a nil pointer to a struct")
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return nil, fmt.Errorf("input record must be a struct or a pointer to a struct, got %s", val.Kind())
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("ToDocument: failed to marshal input record to JSON: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tmp map[string]any
	if err := dec.Decode(&tmp); err != nil {
		return nil, fmt.Errorf("ToDocument: failed to decode JSON into a document: %w", err)
	}
	return schema.Document(normalizeNumbers(tmp).(map[string]any)), nil
}

func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeNumbers(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normalizeNumbers(item)
		}
		return val
	default:
		return v
	}
}

// FromDocument converts a document into a new instance of the struct type T.
// It is the inverse of ToDocument. If T is a pointer type, a pointer to a
// newly decoded struct is returned.
func FromDocument[T any](doc schema.Document) (T, error) {
	var zero T
	if doc == nil {
		return zero, fmt.Errorf("FromDocument: input document cannot be nil")
	}

	typ := reflect.TypeOf(zero)
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return zero, fmt.Errorf("FromDocument: generic type T must be a struct type (or pointer to struct), got %s", typ.Kind())
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return zero, fmt.Errorf("FromDocument: failed to marshal document to JSON: %w", err)
	}
	var result T
	if err := json.Unmarshal(raw, &result); err != nil {
		return zero, fmt.Errorf("FromDocument: failed to unmarshal JSON to target struct: %w", err)
	}
	return result, nil
}
