// Package registry wires the lifecycle machine, format adapters, compatibility
// engine, store of record, cache, lineage graph, audit trail and event bus
// together into the operations a caller actually invokes: register a new
// schema version, promote it, deprecate it, retire it, and read it back.
// No other package in this module composes all of those; registry is the
// only one that is allowed to know about every one of them.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/schemaforge/registry-core/pkg/audit"
	"github.com/schemaforge/registry-core/pkg/cache"
	"github.com/schemaforge/registry-core/pkg/compatibility"
	"github.com/schemaforge/registry-core/pkg/events"
	"github.com/schemaforge/registry-core/pkg/format"
	"github.com/schemaforge/registry-core/pkg/lifecycle"
	"github.com/schemaforge/registry-core/pkg/lineage"
	"github.com/schemaforge/registry-core/pkg/schema"
	"github.com/schemaforge/registry-core/pkg/storage"
	"github.com/schemaforge/registry-core/pkg/version"
)

// Reader is the subset of cache.Cache used for reads, so tests can substitute
// a store-backed stand-in when no cache tier is configured.
type Reader interface {
	GetSchema(ctx context.Context, id string) (*schema.Schema, error)
	GetSubject(ctx context.Context, key string) (*schema.Subject, error)
}

// storeReader adapts storage.RecordStore to Reader, used when the caller
// doesn't wire a cache.Cache in front of the store.
type storeReader struct{ store storage.RecordStore }

func (r storeReader) GetSchema(ctx context.Context, id string) (*schema.Schema, error) {
	return r.store.GetSchema(ctx, id)
}

func (r storeReader) GetSubject(ctx context.Context, key string) (*schema.Subject, error) {
	return r.store.GetSubject(ctx, key)
}

// Invalidator is the subset of cache.Cache used to drop entries after a
// write, kept narrow so a nil cache tier can be represented by noopInvalidator.
type Invalidator interface {
	InvalidateSchema(id string)
	InvalidateSubject(key string)
}

type noopInvalidator struct{}

func (noopInvalidator) InvalidateSchema(string)  {}
func (noopInvalidator) InvalidateSubject(string) {}

// Service is the registry's single entry point: every register/read/lifecycle
// operation a caller performs goes through it, never through the store or
// compatibility engine directly.
type Service struct {
	store       storage.RecordStore
	reader      Reader
	invalidator Invalidator
	compat      *compatibility.Engine
	lineage     *lineage.Locked
	bus         *events.Bus
	defaultMode compatibility.Mode
}

// Option configures a Service beyond its required store.
type Option func(*Service)

// WithCache wires a two-tier cache in front of store reads and routes
// post-write invalidation through it.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) {
		s.reader = c
		s.invalidator = c
	}
}

// WithEventBus wires the pub/sub bus events are published to after a
// successful state change. Without it, events are simply not published.
func WithEventBus(b *events.Bus) Option {
	return func(s *Service) { s.bus = b }
}

// WithDefaultCompatibilityMode overrides the BACKWARD fallback used when a
// subject carries no DefaultCompatibility of its own.
func WithDefaultCompatibilityMode(m compatibility.Mode) Option {
	return func(s *Service) { s.defaultMode = m }
}

// NewService constructs a registry Service over a store of record. Callers
// compose in a cache and event bus with Option functions; both are optional.
func NewService(store storage.RecordStore, opts ...Option) *Service {
	s := &Service{
		store:       store,
		reader:      storeReader{store},
		invalidator: noopInvalidator{},
		compat:      compatibility.NewEngine(),
		lineage:     lineage.NewLocked(),
		defaultMode: compatibility.ModeBackward,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRequest describes a new schema version proposed for a subject.
type RegisterRequest struct {
	Subject      schema.Subject
	Format       schema.Format
	Content      []byte
	Actor        string
	Metadata     schema.Metadata
	OverrideMode *compatibility.Mode // nil uses the subject's/service's default

	// References names other schemas (ToID/ToVersion/Kind) the content
	// depends on, e.g. a Protobuf import or a JSON Schema $ref. Register
	// records one lineage edge per entry from the new version; FromID and
	// FromVersion are filled in by Register and ignored here.
	References []schema.DependencyEdge
}

// IncompatibleSchemaError is returned by Register when the proposed content
// fails the subject's configured compatibility check. Result carries the
// violations so the caller can report them without re-running the check.
type IncompatibleSchemaError struct {
	Subject string
	Mode    compatibility.Mode
	Result  *compatibility.Result
}

func (e *IncompatibleSchemaError) Error() string {
	return fmt.Sprintf("schema for %s is not %s-compatible with its history", e.Subject, e.Mode)
}

// Register validates, compatibility-checks, deduplicates and persists a new
// schema version for a subject. A content-identical proposal to the current
// tip returns the existing schema rather than creating a duplicate row (I4:
// content hash is the dedup key within a subject).
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*schema.Schema, error) {
	subjectKey := req.Subject.Key()

	subject, err := s.store.GetSubject(ctx, subjectKey)
	if err != nil {
		subject = &req.Subject
		now := time.Now().UTC()
		subject.CreatedAt, subject.UpdatedAt = now, now
		if err := s.store.CreateSubject(ctx, subject); err != nil {
			return nil, fmt.Errorf("create subject %s: %w", subjectKey, err)
		}
	}

	adapter, err := format.For(req.Format)
	if err != nil {
		return nil, err
	}
	canonical, err := adapter.Canonicalize(req.Content)
	if err != nil {
		return nil, fmt.Errorf("canonicalize %s schema: %w", subjectKey, err)
	}
	contentHash := version.ContentHash(canonical)

	if existing, err := s.store.GetSchemaByHash(ctx, subjectKey, contentHash); err == nil && existing != nil {
		return existing, nil
	}

	history, _, err := s.store.ListVersions(ctx, subjectKey)
	if err != nil {
		return nil, fmt.Errorf("list versions for %s: %w", subjectKey, err)
	}

	mode := s.defaultMode
	if subject.DefaultCompatibility != "" {
		if parsed, err := compatibility.ParseMode(subject.DefaultCompatibility); err == nil {
			mode = parsed
		}
	}
	if req.OverrideMode != nil {
		mode = *req.OverrideMode
	}

	nextVersion := version.New(1, 0, 0)
	var previousID string
	if len(history) > 0 {
		tip := latest(history)
		nextVersion = tip.Version.IncrementMinor()
		previousID = tip.ID
	}

	candidate := &schema.Schema{
		ID:          version.NewID(),
		Subject:     *subject,
		Version:     nextVersion,
		Format:      req.Format,
		Content:     req.Content,
		ContentHash: contentHash,
		Metadata:    req.Metadata,
		PreviousVersionID: previousID,
	}

	machine := lifecycle.NewMachine()
	if _, err := machine.Apply(lifecycle.Validating, "register", req.Actor, "", nil); err != nil {
		return nil, err
	}
	if _, err := adapter.Parse(req.Content); err != nil {
		machine.Apply(lifecycle.ValidationFailed, "register", req.Actor, err.Error(), nil)
		candidate.State = machine.Current
		candidate.History = machine.History
		audit.LogRegistration(ctx, req.Actor, subjectKey, candidate.ID, audit.ResultFailure, map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("parse %s schema: %w", subjectKey, err)
	}
	if _, err := machine.Apply(lifecycle.CompatibilityCheck, "register", req.Actor, "", nil); err != nil {
		return nil, err
	}

	if mode != compatibility.ModeNone && len(history) > 0 {
		result, err := s.compat.CheckTransitive(candidate, history, mode)
		if err != nil {
			return nil, fmt.Errorf("compatibility check for %s: %w", subjectKey, err)
		}
		if !result.Compatible {
			machine.Apply(lifecycle.IncompatibleRejected, "register", req.Actor, "compatibility violations", nil)
			audit.LogCompatibility(ctx, req.Actor, subjectKey, candidate.ID, audit.ResultFailure, map[string]any{
				"mode":       mode.String(),
				"violations": len(result.Violations),
			})
			return nil, &IncompatibleSchemaError{Subject: subjectKey, Mode: mode, Result: result}
		}
	}

	if _, err := machine.Apply(lifecycle.Registered, "register", req.Actor, "", nil); err != nil {
		return nil, err
	}
	candidate.State = machine.Current
	candidate.History = machine.History

	if err := s.store.PutSchema(ctx, candidate); err != nil {
		return nil, fmt.Errorf("persist schema for %s: %w", subjectKey, err)
	}

	for _, ref := range req.References {
		ref.FromID = candidate.ID
		ref.FromVersion = candidate.Version
		s.lineage.AddEdge(ref)
	}

	s.invalidator.InvalidateSubject(subjectKey)
	audit.LogRegistration(ctx, req.Actor, subjectKey, candidate.ID, audit.ResultSuccess, map[string]any{"version": candidate.Version.String()})
	s.publish(events.TypeSchemaRegistered, candidate, req.Actor)

	return candidate, nil
}

// Activate promotes a Registered schema to Active. It is also the entry
// point for reactivating a Deprecated version. In both cases the subject's
// current Active version (if any) is demoted to Deprecated in the same call,
// so a subject never holds two Active versions at once.
func (s *Service) Activate(ctx context.Context, id, actor string) (*schema.Schema, error) {
	target, err := s.store.GetSchema(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get schema %s: %w", id, err)
	}

	promoting := target.State == lifecycle.Registered || target.State == lifecycle.Deprecated

	if promoting {
		if err := s.demoteCurrentActive(ctx, target.Subject.Key(), id, actor); err != nil {
			return nil, err
		}
	}

	if err := s.transition(ctx, target, lifecycle.Active, "activate", actor, ""); err != nil {
		return nil, err
	}

	s.invalidator.InvalidateSchema(id)
	s.invalidator.InvalidateSubject(target.Subject.Key())
	s.publish(events.TypeSchemaActivated, target, actor)
	return target, nil
}

// demoteCurrentActive finds the subject's currently Active version (if any,
// and if not the one being activated) and transitions it to Deprecated.
// Called before the promoting transition so a failure here leaves the
// registry in its prior, consistent state rather than with two Active rows.
func (s *Service) demoteCurrentActive(ctx context.Context, subjectKey, skipID, actor string) error {
	history, _, err := s.store.ListVersions(ctx, subjectKey)
	if err != nil {
		return fmt.Errorf("list versions for %s: %w", subjectKey, err)
	}
	for _, v := range history {
		if v.ID == skipID || v.State != lifecycle.Active {
			continue
		}
		if err := s.transition(ctx, v, lifecycle.Deprecated, "reactivate-demote", actor, "superseded by reactivation of "+skipID); err != nil {
			return fmt.Errorf("demote %s before reactivating %s: %w", v.ID, skipID, err)
		}
		v.ReplacedByID = skipID
		if err := s.store.UpdateSchema(ctx, v); err != nil {
			return fmt.Errorf("persist demotion of %s: %w", v.ID, err)
		}
		s.invalidator.InvalidateSchema(v.ID)
		s.publish(events.TypeSchemaDeprecated, v, actor)
	}
	return nil
}

// Deprecate marks an Active schema as no longer recommended for new
// consumers, without removing it from reads.
func (s *Service) Deprecate(ctx context.Context, id, actor, reason string) (*schema.Schema, error) {
	target, err := s.store.GetSchema(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get schema %s: %w", id, err)
	}
	if err := s.transition(ctx, target, lifecycle.Deprecated, "deprecate", actor, reason); err != nil {
		return nil, err
	}
	s.invalidator.InvalidateSchema(id)
	s.publish(events.TypeSchemaDeprecated, target, actor)
	return target, nil
}

// Archive retires a Deprecated schema permanently; Archived is terminal.
func (s *Service) Archive(ctx context.Context, id, actor, reason string) (*schema.Schema, error) {
	target, err := s.store.GetSchema(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get schema %s: %w", id, err)
	}
	if err := s.transition(ctx, target, lifecycle.Archived, "archive", actor, reason); err != nil {
		return nil, err
	}
	s.invalidator.InvalidateSchema(id)
	s.publish(events.TypeSchemaRetired, target, actor)
	return target, nil
}

// transition runs a lifecycle edge against the schema's recorded history,
// persists the result, and audits the attempt regardless of outcome.
func (s *Service) transition(ctx context.Context, target *schema.Schema, to lifecycle.State, trigger, actor, reason string) error {
	machine := &lifecycle.Machine{Current: target.State, History: target.History}
	if _, err := machine.Apply(to, trigger, actor, reason, nil); err != nil {
		audit.LogLifecycle(ctx, actor, target.Subject.Key(), target.ID, audit.ResultDenied, map[string]any{
			"trigger": trigger, "from": target.State.String(), "to": to.String(),
		})
		return err
	}
	target.State = machine.Current
	target.History = machine.History
	if err := s.store.UpdateSchema(ctx, target); err != nil {
		return fmt.Errorf("persist transition for %s: %w", target.ID, err)
	}
	audit.LogLifecycle(ctx, actor, target.Subject.Key(), target.ID, audit.ResultSuccess, map[string]any{
		"trigger": trigger, "from": machine.History[len(machine.History)-1].From.String(), "to": to.String(),
	})
	return nil
}

// Get fetches a single schema by ID, through the cache tier if one is wired.
func (s *Service) Get(ctx context.Context, id string) (*schema.Schema, error) {
	return s.reader.GetSchema(ctx, id)
}

// GetBySubject returns the Active version of a subject, or the most recently
// registered version if none is Active yet.
func (s *Service) GetBySubject(ctx context.Context, subjectKey string) (*schema.Schema, error) {
	history, _, err := s.store.ListVersions(ctx, subjectKey)
	if err != nil {
		return nil, fmt.Errorf("list versions for %s: %w", subjectKey, err)
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("no versions registered for subject %s", subjectKey)
	}
	for _, v := range history {
		if v.State == lifecycle.Active {
			return v, nil
		}
	}
	return latest(history), nil
}

// Dependents returns the schemas that directly depend on the given version,
// i.e. what would need a look before id/ver is deprecated or archived.
func (s *Service) Dependents(id string, ver version.SemanticVersion) []schema.DependencyEdge {
	return s.lineage.DirectDependents(id, ver.String())
}

// ImpactAnalysis reports the blast radius of changing id/ver: the set of
// transitively dependent schemas, a safe migration order among them, and a
// risk classification derived from that radius and the caller-supplied
// breaking-change count.
func (s *Service) ImpactAnalysis(id string, ver version.SemanticVersion, breakingChangeCount int) lineage.ImpactAnalysis {
	return s.lineage.Analyze(id, ver.String(), breakingChangeCount)
}

func (s *Service) publish(t events.Type, sc *schema.Schema, actor string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(&events.SchemaEvent{
		ID:        version.NewID(),
		Type:      t,
		SchemaID:  sc.ID,
		Subject:   sc.Subject.Key(),
		Version:   int(sc.Version.Major),
		Timestamp: time.Now().UTC(),
		Actor:     actor,
	})
}

// latest returns the highest-versioned schema in a non-empty history slice.
func latest(history []*schema.Schema) *schema.Schema {
	best := history[0]
	for _, h := range history[1:] {
		if version.Less(best.Version, h.Version) {
			best = h
		}
	}
	return best
}
