package storage

import (
	"context"
	"io"
	"time"

	"github.com/schemaforge/registry-core/pkg/schema"
)

// RecordReader defines read operations against the store of record.
type RecordReader interface {
	GetSchema(ctx context.Context, id string) (*schema.Schema, error)
	GetSchemaByHash(ctx context.Context, subjectKey, contentHash string) (*schema.Schema, error)
	ListVersions(ctx context.Context, subjectKey string) ([]*schema.Schema, int64, error)
	GetSubject(ctx context.Context, subjectKey string) (*schema.Subject, error)
	ListSubjects(ctx context.Context, limit, offset int) ([]*schema.Subject, int64, error)
}

// RecordWriter defines write operations against the store of record.
type RecordWriter interface {
	CreateSubject(ctx context.Context, subject *schema.Subject) error
	PutSchema(ctx context.Context, s *schema.Schema) error
	UpdateSchema(ctx context.Context, s *schema.Schema) error
}

// RecordStore combines read and write access to the store of record: the
// subjects and schema rows themselves, not their bodies (see BlobStore).
type RecordStore interface {
	RecordReader
	RecordWriter
	HealthChecker
}

// BlobStore is content-addressed storage for raw schema bodies, keyed by
// their SHA-256 content hash. The store of record keeps the hash; the blob
// lives here so large or rarely-read bodies don't bloat the primary database.
type BlobStore interface {
	PutBlob(ctx context.Context, content io.Reader, contentType string) (hash string, err error)
	GetBlob(ctx context.Context, hash string) (io.ReadCloser, error)
	BlobExists(ctx context.Context, hash string) (bool, error)
	DeleteBlob(ctx context.Context, hash string) error
}

// CacheInvalidator defines cache invalidation operations used after writes
// to the store of record.
type CacheInvalidator interface {
	InvalidateSchema(ctx context.Context, subjectKey, id string) error
	InvalidateSubject(ctx context.Context, subjectKey string) error
	InvalidatePatterns(ctx context.Context, patterns ...string) error
}

// HealthChecker defines health check operations.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Storage is the canonical persistence interface: store of record plus
// content-addressed archive, composed for interface segregation.
type Storage interface {
	RecordStore
	BlobStore
}

// Config holds storage backend configuration.
type Config struct {
	Type string // "postgres" is the only backend implemented

	PostgresURL      string
	PostgresReplicaURLs string
	PostgresMaxConns int
	PostgresMinConns int
	PostgresTimeout  time.Duration

	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool

	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	CacheEnabled bool
	CacheTTL     map[string]time.Duration
	L1CacheSize  int
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Type:             "postgres",
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		CacheEnabled:     true,
		CacheTTL: map[string]time.Duration{
			"schema":       1 * time.Hour,
			"subject":      1 * time.Hour,
			"version_list": 5 * time.Minute,
			"latest":       1 * time.Minute,
		},
		L1CacheSize: 10000,
	}
}
