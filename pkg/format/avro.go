package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/schemaforge/registry-core/pkg/schema"
)

// AvroAdapter supports record, enum, array, map, union, fixed, and primitive
// Avro schemas expressed in Avro JSON form.
type AvroAdapter struct{}

type avroField struct {
	Name    string `json:"name"`
	Type    any    `json:"type"`
	Default any    `json:"default,omitempty"`
	hasDefault bool
}

type avroSchema struct {
	Type   string      `json:"type"`
	Name   string      `json:"name,omitempty"`
	Fields []avroField `json:"fields,omitempty"`
}

func (AvroAdapter) Parse(content []byte) (*Parsed, error) {
	var doc avroSchema
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("parse avro schema: %w", err)
	}
	for i := range doc.Fields {
		// json.Unmarshal leaves Default nil indistinguishably from an explicit
		// JSON null default; detect presence from the raw per-field object.
		doc.Fields[i].hasDefault = fieldHasDefaultKey(content, doc.Fields[i].Name)
	}
	p := &Parsed{Format: schema.FormatAvro, Raw: &doc}
	p.Fields = avroFieldInventory(&doc)
	return p, nil
}

func fieldHasDefaultKey(content []byte, name string) bool {
	var env struct {
		Fields []map[string]json.RawMessage `json:"fields"`
	}
	if err := json.Unmarshal(content, &env); err != nil {
		return false
	}
	for _, f := range env.Fields {
		if n, ok := f["name"]; ok {
			var s string
			_ = json.Unmarshal(n, &s)
			if s == name {
				_, has := f["default"]
				return has
			}
		}
	}
	return false
}

func avroFieldInventory(doc *avroSchema) []FieldInfo {
	if doc.Type != "record" {
		return nil
	}
	fields := make([]FieldInfo, 0, len(doc.Fields))
	for _, f := range doc.Fields {
		fields = append(fields, FieldInfo{
			Path:       "fields." + f.Name,
			Name:       f.Name,
			Type:       avroTypeName(f.Type),
			Required:   true, // Avro fields are always present unless a default exists
			HasDefault: f.hasDefault,
			Default:    f.Default,
		})
	}
	return fields
}

func avroTypeName(t any) string {
	switch v := t.(type) {
	case string:
		return v
	case map[string]any:
		if typ, ok := v["type"].(string); ok {
			return typ
		}
	case []any:
		// union: render as a sorted, comma-joined branch list
		names := make([]string, 0, len(v))
		for _, branch := range v {
			names = append(names, avroTypeName(branch))
		}
		sort.Strings(names)
		b, _ := json.Marshal(names)
		return "union" + string(b)
	}
	return "unknown"
}

func (AvroAdapter) Canonicalize(content []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(content, &v); err != nil {
		return nil, fmt.Errorf("canonicalize avro schema: %w", err)
	}
	var buf bytes.Buffer
	if err := encodeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (AvroAdapter) FieldInventory(p *Parsed) []FieldInfo {
	return p.Fields
}

// avroPromotions documents Avro's reader/writer resolution promotions:
// a reader of a wider numeric type can consume data written as a narrower
// one, and string/bytes are mutually promotable.
var avroPromotions = map[string]map[string]bool{
	"int":    {"int": true, "long": true, "float": true, "double": true},
	"long":   {"long": true, "float": true, "double": true},
	"float":  {"float": true, "double": true},
	"double": {"double": true},
	"string": {"string": true, "bytes": true},
	"bytes":  {"bytes": true, "string": true},
}

// TypesCompatible reports whether data written as oldType can be consumed by
// a reader declared as newType, per Avro schema resolution.
func (AvroAdapter) TypesCompatible(oldType, newType string) bool {
	if oldType == newType {
		return true
	}
	if promos, ok := avroPromotions[oldType]; ok && promos[newType] {
		return true
	}
	return false
}
