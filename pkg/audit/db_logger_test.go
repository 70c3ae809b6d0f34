package audit

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestNewDBStore(t *testing.T) {
	t.Run("success with empty chain", func(t *testing.T) {
		db, mock := setupMockDB(t)

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_records").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT seq, self_hash FROM audit_records").WillReturnError(sql.ErrNoRows)

		store, err := NewDBStore(db)
		require.NoError(t, err)
		assert.Equal(t, genesisHash, store.lastHash)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("resumes chain tip from last row", func(t *testing.T) {
		db, mock := setupMockDB(t)

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_records").WillReturnResult(sqlmock.NewResult(0, 0))
		rows := sqlmock.NewRows([]string{"seq", "self_hash"}).AddRow(5, "tiphash")
		mock.ExpectQuery("SELECT seq, self_hash FROM audit_records").WillReturnRows(rows)

		store, err := NewDBStore(db)
		require.NoError(t, err)
		assert.EqualValues(t, 5, store.seq)
		assert.Equal(t, "tiphash", store.lastHash)
	})

	t.Run("nil database", func(t *testing.T) {
		store, err := NewDBStore(nil)
		assert.Error(t, err)
		assert.Nil(t, store)
	})

	t.Run("table creation error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_records").WillReturnError(errors.New("boom"))

		store, err := NewDBStore(db)
		assert.Error(t, err)
		assert.Nil(t, store)
	})
}

func newTestDBStore(t *testing.T) (*DBStore, sqlmock.Sqlmock) {
	db, mock := setupMockDB(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_records").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT seq, self_hash FROM audit_records").WillReturnError(sql.ErrNoRows)

	store, err := NewDBStore(db)
	require.NoError(t, err)
	return store, mock
}

func TestDBStore_AppendChainsHash(t *testing.T) {
	store, mock := newTestDBStore(t)

	mock.ExpectExec("INSERT INTO audit_records").WillReturnResult(sqlmock.NewResult(1, 1))

	r := &Record{Type: TypeRegistration, Action: "register", Result: ResultSuccess, Actor: "alice", Subject: "orders.created"}
	finalized, err := store.Append(context.Background(), r)
	require.NoError(t, err)
	assert.EqualValues(t, 1, finalized.Seq)
	assert.Equal(t, genesisHash, finalized.PrevHash)
	assert.NotEmpty(t, finalized.SelfHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStore_Sweep(t *testing.T) {
	store, mock := newTestDBStore(t)

	mock.ExpectExec("DELETE FROM audit_records WHERE timestamp").WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.Sweep(context.Background(), RetentionPolicy{RetentionDays: 30})
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestDBStore_GetStats(t *testing.T) {
	store, mock := newTestDBStore(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM audit_records").WillReturnRows(
		sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT type, COUNT\\(\\*\\) FROM audit_records").WillReturnRows(
		sqlmock.NewRows([]string{"type", "count"}).AddRow("registration", 2))
	mock.ExpectQuery("SELECT result, COUNT\\(\\*\\) FROM audit_records").WillReturnRows(
		sqlmock.NewRows([]string{"result", "count"}).AddRow("success", 2))
	mock.ExpectQuery("SELECT COUNT\\(DISTINCT actor\\) FROM audit_records").WillReturnRows(
		sqlmock.NewRows([]string{"count"}).AddRow(1))

	stats, err := store.GetStats(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.TotalRecords)
	assert.EqualValues(t, 2, stats.ByType[TypeRegistration])
	assert.EqualValues(t, 1, stats.UniqueActors)
}

func TestDBStore_VerifyChainDetectsTamper(t *testing.T) {
	store, mock := newTestDBStore(t)

	rows := sqlmock.NewRows([]string{
		"seq", "type", "action", "result", "actor", "subject", "schema_id",
		"timestamp", "detail", "prev_hash", "self_hash", "redacted",
	}).AddRow(1, "registration", "register", "success", "alice", "orders.created", "sha256:x",
		time.Now(), nil, genesisHash, "tampered-hash", false)
	mock.ExpectQuery("SELECT seq, type, action, result, actor, subject, schema_id").WillReturnRows(rows)

	err := store.VerifyChain(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "tampered")
}
