// Package storage defines the persistence contracts for the registry: the
// store of record (subjects and schema rows, via RecordStore) and the
// content-addressed blob archive (raw schema bodies, via BlobStore).
//
// postgres.Storage is the production implementation, backed by PostgreSQL,
// S3, and Redis. FileSystemStorage is a dependency-free implementation for
// local development and tests.
package storage
