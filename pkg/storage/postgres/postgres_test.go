package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaforge/registry-core/pkg/lifecycle"
	"github.com/schemaforge/registry-core/pkg/schema"
	"github.com/schemaforge/registry-core/pkg/storage"
	"github.com/schemaforge/registry-core/pkg/version"
)

func newTestStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &Storage{
		db:     db,
		config: storage.DefaultConfig(),
	}, mock
}

func TestCreateSubjectIssuesInsert(t *testing.T) {
	s, mock := newTestStorage(t)
	subject := &schema.Subject{Namespace: "orders", Name: "created-event", DefaultCompatibility: "BACKWARD"}

	mock.ExpectExec("INSERT INTO subjects").
		WithArgs(subject.Key(), subject.Namespace, subject.Name, subject.DefaultCompatibility, subject.Description, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.CreateSubject(context.Background(), subject))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSubjectNotFound(t *testing.T) {
	s, mock := newTestStorage(t)
	mock.ExpectQuery("SELECT .* FROM subjects").
		WithArgs("ns/missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetSubject(context.Background(), "ns/missing")
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSchemaRoundTrip(t *testing.T) {
	s, mock := newTestStorage(t)

	cols := []string{
		"id", "subject_key", "major", "minor", "patch", "prerelease", "build", "format",
		"content_hash", "state", "metadata", "history", "previous_version_id", "replaced_by_id",
		"deleted_at", "deletion_reason", "deleted_by",
	}
	rows := sqlmock.NewRows(cols).AddRow(
		"id-1", "ns/sub", 1, 0, 0, "", "", "JSON_SCHEMA",
		"deadbeef", "ACTIVE", []byte(`{}`), []byte(`[]`), "", "",
		nil, "", "",
	)
	mock.ExpectQuery("SELECT .* FROM schema_versions WHERE id").WithArgs("id-1").WillReturnRows(rows)

	sc, err := s.GetSchema(context.Background(), "id-1")
	require.NoError(t, err)
	assert.Equal(t, schema.FormatJSONSchema, sc.Format)
	assert.Equal(t, lifecycle.Active, sc.State)
	assert.Equal(t, version.New(1, 0, 0), sc.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}
