// Package schema holds the data model shared by every registry subsystem:
// the Schema record, its owning Subject, lineage edges, and the lifecycle
// metadata attached to it. It is a leaf package so that format, compatibility,
// storage, cache, lineage, audit and events can all depend on it without
// import cycles.
package schema

import (
	"time"

	"github.com/schemaforge/registry-core/pkg/lifecycle"
	"github.com/schemaforge/registry-core/pkg/version"
)

// Format identifies the schema body's serialization.
type Format int

const (
	FormatUnknown Format = iota
	FormatJSONSchema
	FormatAvro
	FormatProtobuf
)

func (f Format) String() string {
	switch f {
	case FormatJSONSchema:
		return "json_schema"
	case FormatAvro:
		return "avro"
	case FormatProtobuf:
		return "protobuf"
	default:
		return "unknown"
	}
}

// Metadata is the free-form, mutable envelope a schema carries (I6: only
// metadata may change on an Active schema; content, hash, and version never
// do).
type Metadata struct {
	Creator            string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CompatibilityMode  string
	Tags               []string
	Description        string
	Extra              map[string]any
}

// Schema is an immutable-once-published versioned schema body.
type Schema struct {
	ID                string
	Subject           Subject
	Version           version.SemanticVersion
	Format            Format
	Content           []byte // opaque bytes for protobuf, UTF-8 text otherwise
	ContentHash       string
	State             lifecycle.State
	History           []lifecycle.Transition
	Metadata          Metadata
	PreviousVersionID string // prior version in this subject, if any
	ReplacedByID      string // set when Deprecated/Archived in favor of another
	DeletedAt         *time.Time
	DeletionReason    string
	DeletedBy         string
}

// Subject is the (namespace, name) pair identifying a logical schema stream.
type Subject struct {
	Namespace            string
	Name                 string
	DefaultCompatibility string
	Description          string
	Tags                 []string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Key returns the canonical "namespace/name" identifier for the subject.
func (s Subject) Key() string {
	return s.Namespace + "/" + s.Name
}

// EdgeKind classifies a dependency edge between two schemas.
type EdgeKind int

const (
	EdgeReference EdgeKind = iota
	EdgeInheritance
	EdgeEmbedded
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeReference:
		return "reference"
	case EdgeInheritance:
		return "inheritance"
	case EdgeEmbedded:
		return "embedded"
	default:
		return "unknown"
	}
}

// DependencyEdge is a directed, typed edge between two schema versions.
type DependencyEdge struct {
	FromID      string
	FromVersion version.SemanticVersion
	ToID        string
	ToVersion   version.SemanticVersion
	Kind        EdgeKind
}
