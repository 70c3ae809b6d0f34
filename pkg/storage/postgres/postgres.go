package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/schemaforge/registry-core/pkg/lifecycle"
	"github.com/schemaforge/registry-core/pkg/schema"
	"github.com/schemaforge/registry-core/pkg/storage"
)

var tracer = otel.Tracer("registry-core/storage/postgres")

// Storage implements storage.RecordStore and storage.BlobStore using
// PostgreSQL for the store of record, S3 for schema bodies, and Redis as a
// read-through L2 cache.
type Storage struct {
	connManager *ConnectionManager
	db          *sql.DB
	s3Client    *S3Client
	redisClient *RedisClient
	config      storage.Config
}

// New creates a new PostgreSQL-backed storage instance.
func New(config storage.Config) (*Storage, error) {
	connConfig := ConnectionConfig{
		PrimaryURL:  config.PostgresURL,
		ReplicaURLs: ParseReplicaURLs(config.PostgresReplicaURLs),
		MaxConns:    config.PostgresMaxConns,
		MinConns:    config.PostgresMinConns,
		Timeout:     config.PostgresTimeout,
		MaxLifetime: 1 * time.Hour,
		MaxIdleTime: 10 * time.Minute,
	}

	connManager, err := NewConnectionManager(connConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection manager: %w", err)
	}

	db := connManager.Primary()

	var s3Client *S3Client
	if config.S3Endpoint != "" || config.S3Bucket != "" {
		s3Client, err = NewS3Client(config)
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 client: %w", err)
		}
	}

	var redisClient *RedisClient
	if config.CacheEnabled && config.RedisURL != "" {
		redisClient, err = NewRedisClient(config)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}
	}

	return &Storage{
		connManager: connManager,
		db:          db,
		s3Client:    s3Client,
		redisClient: redisClient,
		config:      config,
	}, nil
}

// subjectRow mirrors the subjects table for scan/marshal convenience.
type subjectRow struct {
	Key                  string          `json:"key"`
	Namespace            string          `json:"namespace"`
	Name                 string          `json:"name"`
	DefaultCompatibility string          `json:"default_compatibility"`
	Description          string          `json:"description"`
	Tags                 json.RawMessage `json:"tags"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

func (s *Storage) CreateSubject(ctx context.Context, subject *schema.Subject) error {
	ctx, span := tracer.Start(ctx, "CreateSubject",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "INSERT"),
			attribute.String("db.table", "subjects"),
			attribute.String("subject.key", subject.Key()),
		),
	)
	defer span.End()

	tags, err := json.Marshal(subject.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal subject tags: %w", err)
	}

	query := `
		INSERT INTO subjects (key, namespace, name, default_compatibility, description, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`
	now := time.Now()
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = now
	}
	subject.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, query,
		subject.Key(), subject.Namespace, subject.Name,
		subject.DefaultCompatibility, subject.Description, tags, subject.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create subject")
		return fmt.Errorf("failed to create subject: %w", err)
	}

	span.SetStatus(codes.Ok, "subject created")
	return nil
}

func (s *Storage) GetSubject(ctx context.Context, subjectKey string) (*schema.Subject, error) {
	ctx, span := tracer.Start(ctx, "GetSubject",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "SELECT"),
			attribute.String("db.table", "subjects"),
			attribute.String("subject.key", subjectKey),
		),
	)
	defer span.End()

	if s.redisClient != nil {
		if subject, err := s.redisClient.GetSubject(ctx, subjectKey); err == nil && subject != nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return subject, nil
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	query := `
		SELECT namespace, name, default_compatibility, description, tags, created_at, updated_at
		FROM subjects WHERE key = $1
	`
	var subject schema.Subject
	var tags json.RawMessage
	err := s.db.QueryRowContext(ctx, query, subjectKey).Scan(
		&subject.Namespace, &subject.Name, &subject.DefaultCompatibility,
		&subject.Description, &tags, &subject.CreatedAt, &subject.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		span.SetStatus(codes.Error, "subject not found")
		return nil, fmt.Errorf("subject not found: %s", subjectKey)
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get subject: %w", err)
	}
	_ = json.Unmarshal(tags, &subject.Tags)

	if s.redisClient != nil {
		_ = s.redisClient.SetSubject(ctx, &subject)
	}
	span.SetStatus(codes.Ok, "subject retrieved")
	return &subject, nil
}

func (s *Storage) ListSubjects(ctx context.Context, limit, offset int) ([]*schema.Subject, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM subjects").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count subjects: %w", err)
	}

	query := `
		SELECT namespace, name, default_compatibility, description, tags, created_at, updated_at
		FROM subjects ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list subjects: %w", err)
	}
	defer rows.Close()

	var subjects []*schema.Subject
	for rows.Next() {
		var subject schema.Subject
		var tags json.RawMessage
		if err := rows.Scan(&subject.Namespace, &subject.Name, &subject.DefaultCompatibility,
			&subject.Description, &tags, &subject.CreatedAt, &subject.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan subject: %w", err)
		}
		_ = json.Unmarshal(tags, &subject.Tags)
		subjects = append(subjects, &subject)
	}
	return subjects, total, nil
}

func (s *Storage) PutSchema(ctx context.Context, sc *schema.Schema) error {
	ctx, span := tracer.Start(ctx, "PutSchema",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "INSERT"),
			attribute.String("db.table", "schema_versions"),
			attribute.String("subject.key", sc.Subject),
			attribute.String("schema.id", sc.ID),
		),
	)
	defer span.End()

	metadata, err := json.Marshal(sc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal schema metadata: %w", err)
	}
	history, err := json.Marshal(sc.History)
	if err != nil {
		return fmt.Errorf("failed to marshal schema history: %w", err)
	}

	query := `
		INSERT INTO schema_versions
			(id, subject_key, major, minor, patch, prerelease, build, format,
			 content_hash, state, metadata, history, previous_version_id,
			 created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14)
	`
	now := time.Now()
	_, err = s.db.ExecContext(ctx, query,
		sc.ID, sc.Subject, sc.Version.Major, sc.Version.Minor, sc.Version.Patch,
		sc.Version.Prerelease, sc.Version.Build, sc.Format.String(),
		sc.ContentHash, sc.State.String(), metadata, history, sc.PreviousVersionID, now,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert schema version")
		return fmt.Errorf("failed to insert schema version: %w", err)
	}

	if s.redisClient != nil {
		_ = s.redisClient.InvalidateSchema(ctx, sc.Subject, sc.ID)
		_ = s.redisClient.InvalidatePatterns(ctx, fmt.Sprintf("version_list:%s*", sc.Subject))
	}

	span.SetStatus(codes.Ok, "schema version created")
	return nil
}

func (s *Storage) UpdateSchema(ctx context.Context, sc *schema.Schema) error {
	ctx, span := tracer.Start(ctx, "UpdateSchema",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "UPDATE"),
			attribute.String("db.table", "schema_versions"),
			attribute.String("schema.id", sc.ID),
		),
	)
	defer span.End()

	metadata, err := json.Marshal(sc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal schema metadata: %w", err)
	}
	history, err := json.Marshal(sc.History)
	if err != nil {
		return fmt.Errorf("failed to marshal schema history: %w", err)
	}

	query := `
		UPDATE schema_versions
		SET state=$2, metadata=$3, history=$4, replaced_by_id=$5,
		    deleted_at=$6, deletion_reason=$7, deleted_by=$8, updated_at=$9
		WHERE id=$1
	`
	_, err = s.db.ExecContext(ctx, query,
		sc.ID, sc.State.String(), metadata, history, sc.ReplacedByID,
		sc.DeletedAt, sc.DeletionReason, sc.DeletedBy, time.Now(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update schema version")
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	if s.redisClient != nil {
		_ = s.redisClient.InvalidateSchema(ctx, sc.Subject, sc.ID)
	}
	span.SetStatus(codes.Ok, "schema version updated")
	return nil
}

func (s *Storage) scanSchemaRow(rows interface {
	Scan(dest ...any) error
}) (*schema.Schema, error) {
	var sc schema.Schema
	var formatStr, stateStr string
	var metadata, history json.RawMessage
	var prerelease, build sql.NullString
	var previousVersionID, replacedByID sql.NullString
	var deletionReason, deletedBy sql.NullString
	var deletedAt sql.NullTime

	if err := rows.Scan(
		&sc.ID, &sc.Subject, &sc.Version.Major, &sc.Version.Minor, &sc.Version.Patch,
		&prerelease, &build, &formatStr, &sc.ContentHash, &stateStr,
		&metadata, &history, &previousVersionID, &replacedByID,
		&deletedAt, &deletionReason, &deletedBy,
	); err != nil {
		return nil, err
	}

	sc.Version.Prerelease = prerelease.String
	sc.Version.Build = build.String
	sc.PreviousVersionID = previousVersionID.String
	sc.ReplacedByID = replacedByID.String
	sc.DeletionReason = deletionReason.String
	sc.DeletedBy = deletedBy.String
	if deletedAt.Valid {
		sc.DeletedAt = &deletedAt.Time
	}

	switch formatStr {
	case "JSON_SCHEMA":
		sc.Format = schema.FormatJSONSchema
	case "AVRO":
		sc.Format = schema.FormatAvro
	case "PROTOBUF":
		sc.Format = schema.FormatProtobuf
	}
	sc.State = stateFromString(stateStr)
	_ = json.Unmarshal(metadata, &sc.Metadata)
	_ = json.Unmarshal(history, &sc.History)

	return &sc, nil
}

func stateFromString(s string) lifecycle.State {
	for st := lifecycle.Draft; st <= lifecycle.RollingBack; st++ {
		if st.String() == s {
			return st
		}
	}
	return lifecycle.Draft
}

const schemaColumns = `
	id, subject_key, major, minor, patch, prerelease, build, format,
	content_hash, state, metadata, history, previous_version_id, replaced_by_id,
	deleted_at, deletion_reason, deleted_by
`

func (s *Storage) GetSchema(ctx context.Context, id string) (*schema.Schema, error) {
	ctx, span := tracer.Start(ctx, "GetSchema", trace.WithAttributes(attribute.String("schema.id", id)))
	defer span.End()

	query := "SELECT " + schemaColumns + " FROM schema_versions WHERE id = $1"
	row := s.db.QueryRowContext(ctx, query, id)
	sc, err := s.scanSchemaRow(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("schema not found: %s", id)
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get schema: %w", err)
	}
	return sc, nil
}

func (s *Storage) GetSchemaByHash(ctx context.Context, subjectKey, contentHash string) (*schema.Schema, error) {
	query := "SELECT " + schemaColumns + " FROM schema_versions WHERE subject_key = $1 AND content_hash = $2"
	row := s.db.QueryRowContext(ctx, query, subjectKey, contentHash)
	sc, err := s.scanSchemaRow(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no schema in subject %s with hash %s", subjectKey, contentHash)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get schema by hash: %w", err)
	}
	return sc, nil
}

func (s *Storage) ListVersions(ctx context.Context, subjectKey string) ([]*schema.Schema, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_versions WHERE subject_key = $1", subjectKey).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count versions: %w", err)
	}

	query := "SELECT " + schemaColumns + " FROM schema_versions WHERE subject_key = $1 ORDER BY major, minor, patch"
	rows, err := s.db.QueryContext(ctx, query, subjectKey)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var result []*schema.Schema
	for rows.Next() {
		sc, err := s.scanSchemaRow(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan schema version: %w", err)
		}
		result = append(result, sc)
	}
	return result, total, nil
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	if err := s.connManager.HealthCheck(ctx); err != nil {
		return err
	}
	if s.s3Client != nil {
		if err := s.s3Client.HealthCheck(ctx); err != nil {
			return fmt.Errorf("s3 unhealthy: %w", err)
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Ping(ctx); err != nil {
			return fmt.Errorf("redis unhealthy: %w", err)
		}
	}
	return nil
}

// Blob storage delegates to S3.

func (s *Storage) PutBlob(ctx context.Context, content io.Reader, contentType string) (string, error) {
	if s.s3Client == nil {
		return "", fmt.Errorf("s3 client not initialized")
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("failed to read blob content: %w", err)
	}
	return s.s3Client.PutObjectWithHash(ctx, data, contentType)
}

func (s *Storage) GetBlob(ctx context.Context, hash string) (io.ReadCloser, error) {
	if s.s3Client == nil {
		return nil, fmt.Errorf("s3 client not initialized")
	}
	key := fmt.Sprintf("schemas/sha256/%s/%s", hash[:2], hash[2:])
	return s.s3Client.GetObject(ctx, key)
}

func (s *Storage) BlobExists(ctx context.Context, hash string) (bool, error) {
	if s.s3Client == nil {
		return false, fmt.Errorf("s3 client not initialized")
	}
	key := fmt.Sprintf("schemas/sha256/%s/%s", hash[:2], hash[2:])
	return s.s3Client.ObjectExists(ctx, key)
}

func (s *Storage) DeleteBlob(ctx context.Context, hash string) error {
	if s.s3Client == nil {
		return fmt.Errorf("s3 client not initialized")
	}
	key := fmt.Sprintf("schemas/sha256/%s/%s", hash[:2], hash[2:])
	return s.s3Client.DeleteObject(ctx, key)
}

// Close releases all underlying connections.
func (s *Storage) Close() error {
	var firstErr error
	if err := s.connManager.Close(); err != nil {
		firstErr = err
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ storage.RecordStore = (*Storage)(nil)
var _ storage.BlobStore = (*Storage)(nil)
