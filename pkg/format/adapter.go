// Package format implements per-serialization-format adapters behind a single
// capability interface, so the compatibility engine (pkg/compatibility) stays
// format-agnostic. Each adapter is a self-contained module selected by the
// schema's Format field — a tagged variant, not an inheritance hierarchy.
package format

import "github.com/schemaforge/registry-core/pkg/schema"

// FieldInfo is one entry of a parsed schema's flattened field inventory.
type FieldInfo struct {
	Path     string // JSON-pointer-style path, e.g. "properties.email" or "User.field.3"
	Name     string
	Type     string
	Number   int // protobuf field number; zero for formats without one
	Required bool
	HasDefault bool
	Default  any
}

// Parsed is the adapter-agnostic result of parsing a schema body: enough
// structure for the compatibility engine to walk without knowing the format.
type Parsed struct {
	Format schema.Format
	Fields []FieldInfo
	Raw    any // format-specific parse tree, passed back into TypesCompatible
}

// Adapter is the uniform capability set every format implements.
type Adapter interface {
	// Parse validates and structurally parses raw schema bytes.
	Parse(content []byte) (*Parsed, error)
	// Canonicalize returns a byte-stable rendering suitable for content hashing:
	// equivalent schemas (differing only in whitespace/key order) canonicalize
	// to identical bytes.
	Canonicalize(content []byte) ([]byte, error)
	// FieldInventory returns the flattened field list of an already-parsed schema.
	FieldInventory(p *Parsed) []FieldInfo
	// TypesCompatible reports whether data written as oldType can be consumed
	// by a reader expecting newType (the direction is the caller's
	// responsibility — the compatibility engine passes the writer's type first
	// and swaps schemas for Forward checks).
	TypesCompatible(oldType, newType string) bool
}

// For selects the adapter for a schema format.
func For(f schema.Format) (Adapter, error) {
	switch f {
	case schema.FormatJSONSchema:
		return JSONSchemaAdapter{}, nil
	case schema.FormatAvro:
		return AvroAdapter{}, nil
	case schema.FormatProtobuf:
		return ProtobufAdapter{}, nil
	default:
		return nil, &UnsupportedFormatError{Format: f}
	}
}

// UnsupportedFormatError is returned by For for an unrecognized format.
type UnsupportedFormatError struct {
	Format schema.Format
}

func (e *UnsupportedFormatError) Error() string {
	return "unsupported schema format: " + e.Format.String()
}
