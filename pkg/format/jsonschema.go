package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/schemaforge/registry-core/pkg/schema"
)

// JSONSchemaAdapter recognizes Draft-04/06/07 object schemas.
type JSONSchemaAdapter struct{}

type jsonSchemaDoc struct {
	Schema     string                     `json:"$schema,omitempty"`
	Type       string                     `json:"type,omitempty"`
	Properties map[string]*jsonSchemaDoc  `json:"properties,omitempty"`
	Required   []string                   `json:"required,omitempty"`
	Default    any                        `json:"default,omitempty"`
	Minimum    *float64                   `json:"minimum,omitempty"`
	Maximum    *float64                   `json:"maximum,omitempty"`
	MinLength  *int                       `json:"minLength,omitempty"`
	MaxLength  *int                       `json:"maxLength,omitempty"`
}

func (JSONSchemaAdapter) Parse(content []byte) (*Parsed, error) {
	var doc jsonSchemaDoc
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("parse json schema: %w", err)
	}
	if err := validateConstraints(&doc, "$"); err != nil {
		return nil, err
	}
	p := &Parsed{Format: schema.FormatJSONSchema, Raw: &doc}
	p.Fields = fieldsFromDoc(&doc, "properties")
	return p, nil
}

func validateConstraints(doc *jsonSchemaDoc, path string) error {
	if doc.Minimum != nil && doc.Maximum != nil && *doc.Minimum > *doc.Maximum {
		return fmt.Errorf("%s: minimum %v exceeds maximum %v", path, *doc.Minimum, *doc.Maximum)
	}
	if doc.MinLength != nil && doc.MaxLength != nil && *doc.MinLength > *doc.MaxLength {
		return fmt.Errorf("%s: minLength %d exceeds maxLength %d", path, *doc.MinLength, *doc.MaxLength)
	}
	for name, prop := range doc.Properties {
		if err := validateConstraints(prop, path+".properties."+name); err != nil {
			return err
		}
	}
	return nil
}

func fieldsFromDoc(doc *jsonSchemaDoc, prefix string) []FieldInfo {
	required := map[string]bool{}
	for _, r := range doc.Required {
		required[r] = true
	}
	names := make([]string, 0, len(doc.Properties))
	for name := range doc.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	fields := make([]FieldInfo, 0, len(names))
	for _, name := range names {
		prop := doc.Properties[name]
		fields = append(fields, FieldInfo{
			Path:       prefix + "." + name,
			Name:       name,
			Type:       prop.Type,
			Required:   required[name],
			HasDefault: prop.Default != nil,
			Default:    prop.Default,
		})
	}
	return fields
}

func (JSONSchemaAdapter) Canonicalize(content []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(content, &v); err != nil {
		return nil, fmt.Errorf("canonicalize json schema: %w", err)
	}
	var buf bytes.Buffer
	if err := encodeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeCanonical writes v with object keys sorted recursively, no
// insignificant whitespace, so reformatting never changes the content hash.
func encodeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encodeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

func (JSONSchemaAdapter) FieldInventory(p *Parsed) []FieldInfo {
	return p.Fields
}

// TypesCompatible treats no scalar types as cross-compatible beyond
// identity; JSON Schema's "type" keyword has no numeric-widening convention
// like Avro or Protobuf do.
func (JSONSchemaAdapter) TypesCompatible(oldType, newType string) bool {
	return oldType == newType
}
