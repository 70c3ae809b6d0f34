package storage

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaforge/registry-core/pkg/lifecycle"
	"github.com/schemaforge/registry-core/pkg/schema"
	"github.com/schemaforge/registry-core/pkg/version"
)

func newTestStore(t *testing.T) *FileSystemStorage {
	store, err := NewFileSystemStorage(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestSubjectRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	subject := &schema.Subject{Namespace: "orders", Name: "created-event"}
	require.NoError(t, store.CreateSubject(ctx, subject))

	got, err := store.GetSubject(ctx, subject.Key())
	require.NoError(t, err)
	assert.Equal(t, subject.Namespace, got.Namespace)
	assert.Equal(t, subject.Name, got.Name)
}

func TestListSubjectsPagination(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, store.CreateSubject(ctx, &schema.Subject{Namespace: "ns", Name: name}))
	}

	page, total, err := store.ListSubjects(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, page, 2)
}

func TestSchemaVersionsSortedBySemver(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	subject := &schema.Subject{Namespace: "ns", Name: "sub"}
	require.NoError(t, store.CreateSubject(ctx, subject))

	v2 := &schema.Schema{ID: "id-2", Subject: *subject, Version: version.New(2, 0, 0), State: lifecycle.Active}
	v1 := &schema.Schema{ID: "id-1", Subject: *subject, Version: version.New(1, 0, 0), State: lifecycle.Active}
	require.NoError(t, store.PutSchema(ctx, v2))
	require.NoError(t, store.PutSchema(ctx, v1))

	versions, total, err := store.ListVersions(ctx, subject.Key())
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, versions, 2)
	assert.Equal(t, "id-1", versions[0].ID)
	assert.Equal(t, "id-2", versions[1].ID)
}

func TestGetSchemaByHash(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	subject := &schema.Subject{Namespace: "ns", Name: "sub"}
	require.NoError(t, store.CreateSubject(ctx, subject))

	sc := &schema.Schema{ID: "id-1", Subject: *subject, Version: version.New(1, 0, 0), ContentHash: "deadbeef"}
	require.NoError(t, store.PutSchema(ctx, sc))

	got, err := store.GetSchemaByHash(ctx, subject.Key(), "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, "id-1", got.ID)

	_, err = store.GetSchemaByHash(ctx, subject.Key(), "nope")
	assert.Error(t, err)
}

func TestBlobContentAddressedDedup(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	hash1, err := store.PutBlob(ctx, bytes.NewReader([]byte("hello")), "application/json")
	require.NoError(t, err)
	hash2, err := store.PutBlob(ctx, bytes.NewReader([]byte("hello")), "application/json")
	require.NoError(t, err)
	assert.Equal(t, hash1, hash2)

	exists, err := store.BlobExists(ctx, hash1)
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := store.GetBlob(ctx, hash1)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, store.DeleteBlob(ctx, hash1))
	exists, err = store.BlobExists(ctx, hash1)
	require.NoError(t, err)
	assert.False(t, exists)
}
