package format

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/bufbuild/protocompile"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/schemaforge/registry-core/pkg/schema"
)

// ProtobufAdapter extracts (label, type, name, field number) triples per
// message from either a textual .proto definition or an encoded
// FileDescriptorSet, per spec's dual-input requirement.
type ProtobufAdapter struct{}

// protoModel is the adapter's internal parse tree: a flat list of messages,
// each carrying its fields keyed by number (field-number identity is
// primary per spec §4.3).
type protoModel struct {
	Messages []protoMessage
}

type protoMessage struct {
	Name   string
	Fields []protoField
}

type protoField struct {
	Name   string
	Number int32
	Type   string // canonical scalar/message/enum type name
	Label  string // "optional" | "required" | "repeated"
}

const protoScalarFamilyIntegral = "int_family"   // int32/int64/uint32/uint64/bool
const protoScalarFamilySigned = "sint_family"    // sint32/sint64
const protoScalarFamilyBytes = "bytes_family"    // string/bytes

func (ProtobufAdapter) Parse(content []byte) (*Parsed, error) {
	fd, err := parseFileDescriptor(content)
	if err != nil {
		return nil, err
	}
	model := modelFromDescriptor(fd)
	p := &Parsed{Format: schema.FormatProtobuf, Raw: model}
	p.Fields = protoFieldInventory(model)
	return p, nil
}

func parseFileDescriptor(content []byte) (protoreflect.FileDescriptor, error) {
	// First try the content as an encoded FileDescriptorSet.
	var fdset descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(content, &fdset); err == nil && len(fdset.File) > 0 {
		files, err := protodesc.NewFiles(&fdset)
		if err != nil {
			return nil, fmt.Errorf("parse protobuf descriptor set: %w", err)
		}
		var result protoreflect.FileDescriptor
		files.RangeFiles(func(fd protoreflect.FileDescriptor) bool {
			result = fd
			return false
		})
		if result != nil {
			return result, nil
		}
	}

	// Fall back to textual .proto compilation via protocompile.
	const filename = "schema.proto"
	compiler := protocompile.Compiler{
		Resolver: &protocompile.SourceResolver{
			Accessor: protocompile.SourceAccessorFromMap(map[string]string{
				filename: string(content),
			}),
		},
	}
	results, err := compiler.Compile(context.Background(), filename)
	if err != nil {
		return nil, fmt.Errorf("compile protobuf schema: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("compile protobuf schema: no file produced")
	}
	return results[0], nil
}

func modelFromDescriptor(fd protoreflect.FileDescriptor) *protoModel {
	model := &protoModel{}
	msgs := fd.Messages()
	for i := 0; i < msgs.Len(); i++ {
		model.Messages = append(model.Messages, messageFromDescriptor(msgs.Get(i)))
	}
	return model
}

func messageFromDescriptor(md protoreflect.MessageDescriptor) protoMessage {
	m := protoMessage{Name: string(md.FullName())}
	fields := md.Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		m.Fields = append(m.Fields, protoField{
			Name:   string(fd.Name()),
			Number: int32(fd.Number()),
			Type:   scalarTypeName(fd),
			Label:  labelName(fd),
		})
	}
	return m
}

func labelName(fd protoreflect.FieldDescriptor) string {
	switch {
	case fd.Cardinality() == protoreflect.Repeated:
		return "repeated"
	case fd.Cardinality() == protoreflect.Required:
		return "required"
	default:
		return "optional"
	}
}

func scalarTypeName(fd protoreflect.FieldDescriptor) string {
	switch fd.Kind() {
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		if fd.Kind() == protoreflect.Sint32Kind {
			return "sint32"
		}
		return "int32"
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		if fd.Kind() == protoreflect.Sint64Kind {
			return "sint64"
		}
		return "int64"
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		return "uint32"
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return "uint64"
	case protoreflect.BoolKind:
		return "bool"
	case protoreflect.StringKind:
		return "string"
	case protoreflect.BytesKind:
		return "bytes"
	case protoreflect.FloatKind:
		return "float"
	case protoreflect.DoubleKind:
		return "double"
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return "message:" + string(fd.Message().FullName())
	case protoreflect.EnumKind:
		return "enum:" + string(fd.Enum().FullName())
	default:
		return fd.Kind().String()
	}
}

func protoFieldInventory(model *protoModel) []FieldInfo {
	var out []FieldInfo
	for _, msg := range model.Messages {
		for _, f := range msg.Fields {
			out = append(out, FieldInfo{
				Path:     msg.Name + ".field." + strconv.Itoa(int(f.Number)),
				Name:     f.Name,
				Type:     f.Type,
				Number:   int(f.Number),
				Required: f.Label == "required",
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (ProtobufAdapter) Canonicalize(content []byte) ([]byte, error) {
	fd, err := parseFileDescriptor(content)
	if err != nil {
		return nil, err
	}
	fdProto := protodesc.ToFileDescriptorProto(fd)
	// Deterministic marshal over the descriptor proto is the canonical form:
	// independent of source formatting/comments, stable across re-parses.
	return proto.MarshalOptions{Deterministic: true}.Marshal(fdProto)
}

func (ProtobufAdapter) FieldInventory(p *Parsed) []FieldInfo {
	return p.Fields
}

// protoFamilies groups the scalar types the engine treats as mutually
// assignable, per spec §4.3: {int32,int64,uint32,uint64,bool} interchangeable,
// {sint32,sint64} a family, {string,bytes} interchangeable; everything else
// requires an exact match.
var protoFamilies = map[string]string{
	"int32": protoScalarFamilyIntegral, "int64": protoScalarFamilyIntegral,
	"uint32": protoScalarFamilyIntegral, "uint64": protoScalarFamilyIntegral,
	"bool": protoScalarFamilyIntegral,
	"sint32": protoScalarFamilySigned, "sint64": protoScalarFamilySigned,
	"string": protoScalarFamilyBytes, "bytes": protoScalarFamilyBytes,
}

func (ProtobufAdapter) TypesCompatible(oldType, newType string) bool {
	if oldType == newType {
		return true
	}
	oldFamily, oldOK := protoFamilies[oldType]
	newFamily, newOK := protoFamilies[newType]
	return oldOK && newOK && oldFamily == newFamily
}
