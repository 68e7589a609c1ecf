// Package schema describes storefront collections: their fields, types and
// indexes. Definitions are plain data, usually decoded from JSON, and are
// consumed by the storage backends to create tables and cast query values.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"
)

// LogicalOperator for combining conditions.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "and" // All conditions must be true
	LogicalOr  LogicalOperator = "or"  // At least one condition must be true
)

// FieldType represents the basic field types supported by the schema system.
type FieldType string

const (
	FieldTypeString  FieldType = "string"  // Text data
	FieldTypeNumber  FieldType = "number"  // Numeric data
	FieldTypeInteger FieldType = "integer" // Numeric data
	FieldTypeDecimal FieldType = "decimal" // Numeric data
	FieldTypeBoolean FieldType = "boolean" // True/false values
	FieldTypeDate    FieldType = "date"    // RFC 3339 timestamps
	FieldTypeArray   FieldType = "array"   // Ordered list of items
	FieldTypeEnum    FieldType = "enum"    // One out of a set of pre-defined items
	FieldTypeObject  FieldType = "object"  // Structured data with nested fields
	FieldTypeRecord  FieldType = "record"  // Unorganized key-value object, resolves to map[string]any
)

// IsNumeric reports whether values of this type compare as numbers.
func (t FieldType) IsNumeric() bool {
	return t == FieldTypeNumber || t == FieldTypeInteger || t == FieldTypeDecimal
}

// IsStructured reports whether values of this type are stored as encoded JSON.
func (t FieldType) IsStructured() bool {
	return t == FieldTypeObject || t == FieldTypeArray || t == FieldTypeRecord
}

// IndexType represents index types for optimizing different query patterns.
type IndexType string

const (
	IndexTypeNormal  IndexType = "normal"  // General-purpose index
	IndexTypeUnique  IndexType = "unique"  // Unique index
	IndexTypePrimary IndexType = "primary" // Primary key index (implies unique)
)

// FieldDefinition defines a field within a schema.
type FieldDefinition struct {
	Name        string     `json:"name"`
	Type        FieldType  `json:"type"`
	Required    *bool      `json:"required,omitempty"`
	Default     any        `json:"default,omitempty"`
	Values      []any      `json:"values,omitempty"` // allowed values for enum fields
	ItemsType   *FieldType `json:"itemsType,omitempty"`
	Unique      *bool      `json:"unique,omitempty"`
	Description *string    `json:"description,omitempty"`

	// Ref names the collection this field points to, e.g. a review's product.
	Ref *string `json:"ref,omitempty"`
}

// IndexDefinition defines an index for optimizing queries or enforcing uniqueness.
type IndexDefinition struct {
	Name   string    `json:"name"`
	Fields []string  `json:"fields"`
	Type   IndexType `json:"type"`
	Unique *bool     `json:"unique,omitempty"`
	Order  *string   `json:"order,omitempty"` // "asc" | "desc"
}

// SchemaDefinition describes one collection.
type SchemaDefinition struct {
	Name        string                      `json:"name"`
	Version     string                      `json:"version"`
	Description *string                     `json:"description,omitempty"`
	Fields      map[string]*FieldDefinition `json:"fields"`
	Indexes     []IndexDefinition           `json:"indexes,omitempty"`

	// Identifier is the field every read returns regardless of projection.
	// Defaults to "id".
	Identifier string `json:"identifier,omitempty"`
}

// DefaultIdentifier is the identifier field used when a schema names none.
const DefaultIdentifier = "id"

// Document is a single record read from or written to a collection.
type Document map[string]any

// Parse decodes a JSON schema definition and checks the fields that every
// backend relies on.
func Parse(data []byte) (*SchemaDefinition, error) {
	var sc SchemaDefinition
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to decode schema definition: %w", err)
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("schema must define a collection name")
	}
	if len(sc.Fields) == 0 {
		return nil, fmt.Errorf("schema %q defines no fields", sc.Name)
	}
	for key, field := range sc.Fields {
		if field == nil {
			return nil, fmt.Errorf("schema %q: field %q is empty", sc.Name, key)
		}
		if field.Name == "" {
			field.Name = key
		}
	}
	return &sc, nil
}

// Field returns the definition for a top-level field, or nil.
func (s *SchemaDefinition) Field(name string) *FieldDefinition {
	if f, ok := s.Fields[name]; ok {
		return f
	}
	return nil
}

// FieldNames returns the top-level field names in lexical order.
func (s *SchemaDefinition) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IdentifierField returns the name of the always-returned identifier field.
func (s *SchemaDefinition) IdentifierField() string {
	if s.Identifier != "" {
		return s.Identifier
	}
	return DefaultIdentifier
}
