package audit

import (
	"context"
	"time"
)

type contextKey string

const storeContextKey contextKey = "audit_store"

// WithStore attaches a Store to ctx so deeply nested callers can record
// without threading the Store through every function signature.
func WithStore(ctx context.Context, store Store) context.Context {
	return context.WithValue(ctx, storeContextKey, store)
}

// FromContext retrieves the Store attached by WithStore, or a no-op Store
// if none was attached.
func FromContext(ctx context.Context) Store {
	if store, ok := ctx.Value(storeContextKey).(Store); ok {
		return store
	}
	return noOpStore{}
}

// LogLifecycle records a lifecycle state transition.
func LogLifecycle(ctx context.Context, actor, subject, action string, result Result, detail map[string]any) error {
	_, err := FromContext(ctx).Append(ctx, &Record{
		Type: TypeLifecycle, Action: action, Result: result,
		Actor: actor, Subject: subject, Detail: detail,
	})
	return err
}

// LogCompatibility records the outcome of a compatibility check against a
// subject's existing versions.
func LogCompatibility(ctx context.Context, actor, subject, schemaID string, result Result, detail map[string]any) error {
	_, err := FromContext(ctx).Append(ctx, &Record{
		Type: TypeCompatibility, Action: "check", Result: result,
		Actor: actor, Subject: subject, SchemaID: schemaID, Detail: detail,
	})
	return err
}

// LogRegistration records a new schema version being registered.
func LogRegistration(ctx context.Context, actor, subject, schemaID string, result Result, detail map[string]any) error {
	_, err := FromContext(ctx).Append(ctx, &Record{
		Type: TypeRegistration, Action: "register", Result: result,
		Actor: actor, Subject: subject, SchemaID: schemaID, Detail: detail,
	})
	return err
}

// LogDeletion records a subject or schema version deletion.
func LogDeletion(ctx context.Context, actor, subject, schemaID string, result Result, detail map[string]any) error {
	_, err := FromContext(ctx).Append(ctx, &Record{
		Type: TypeDeletion, Action: "delete", Result: result,
		Actor: actor, Subject: subject, SchemaID: schemaID, Detail: detail,
	})
	return err
}

// LogConfig records a compatibility-mode or registry config change.
func LogConfig(ctx context.Context, actor, subject, action string, result Result, detail map[string]any) error {
	_, err := FromContext(ctx).Append(ctx, &Record{
		Type: TypeConfig, Action: action, Result: result,
		Actor: actor, Subject: subject, Detail: detail,
	})
	return err
}

// LogMigration records a migration plan being generated or applied.
func LogMigration(ctx context.Context, actor, subject, action string, result Result, detail map[string]any) error {
	_, err := FromContext(ctx).Append(ctx, &Record{
		Type: TypeMigration, Action: action, Result: result,
		Actor: actor, Subject: subject, Detail: detail,
	})
	return err
}

// noOpStore discards every Append; used when no Store is attached to ctx.
type noOpStore struct{}

func (noOpStore) Append(ctx context.Context, r *Record) (*Record, error) { return r, nil }
func (noOpStore) Search(context.Context, SearchFilter) ([]*Record, error) { return nil, nil }
func (noOpStore) GetStats(ctx context.Context, start, end *time.Time) (*Stats, error) {
	return &Stats{ByType: map[Type]int64{}, ByResult: map[Result]int64{}}, nil
}
func (noOpStore) Export(context.Context, SearchFilter, ExportFormat) ([]byte, error) { return nil, nil }
func (noOpStore) Sweep(context.Context, RetentionPolicy) (int64, error)              { return 0, nil }
func (noOpStore) VerifyChain(context.Context) error                                  { return nil }

var _ Store = noOpStore{}
