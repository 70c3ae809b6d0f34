package events

import (
	"encoding/json"
	"time"
)

// Type names the kind of change a SchemaEvent describes.
type Type string

const (
	TypeSchemaRegistered  Type = "schema.registered"
	TypeSchemaActivated   Type = "schema.activated"
	TypeSchemaDeprecated  Type = "schema.deprecated"
	TypeSchemaRetired     Type = "schema.retired"
	TypeSchemaDeleted     Type = "schema.deleted"
	TypeCompatibilityFail Type = "schema.compatibility_failed"
	TypeMigrationPlanned  Type = "schema.migration_planned"
	TypeConfigChanged     Type = "subject.config_changed"
)

// SchemaEvent is the envelope carried over the Bus and delivered to webhooks.
// CorrelationID ties together the chain of events produced by a single
// caller-initiated operation (e.g. a registration that also emits a
// migration-planned event).
type SchemaEvent struct {
	ID            string         `json:"id"`
	Type          Type           `json:"type"`
	SchemaID      string         `json:"schema_id,omitempty"`
	Subject       string         `json:"subject,omitempty"`
	Version       int            `json:"version,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Actor         string         `json:"actor,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// ToJSON serializes a SchemaEvent.
func (e *SchemaEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
