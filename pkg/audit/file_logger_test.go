package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) *FileStore {
	config := FileStoreConfig{
		BasePath: t.TempDir(),
		Rotate:   false,
		MaxSize:  1024 * 1024,
		MaxFiles: 5,
	}
	store, err := NewFileStore(config)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestFileStore_AppendAndSearch(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, &Record{Type: TypeRegistration, Action: "register", Result: ResultSuccess, Actor: "alice", Subject: "orders.created"})
	require.NoError(t, err)
	_, err = store.Append(ctx, &Record{Type: TypeLifecycle, Action: "activate", Result: ResultSuccess, Actor: "bob", Subject: "orders.created"})
	require.NoError(t, err)

	records, err := store.Search(ctx, SearchFilter{Subject: "orders.created"})
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, int64(1), records[0].Seq)
	assert.Equal(t, int64(2), records[1].Seq)
	assert.Equal(t, records[0].SelfHash, records[1].PrevHash)
}

func TestFileStore_ReopenReplaysChain(t *testing.T) {
	dir := t.TempDir()
	config := FileStoreConfig{BasePath: dir, MaxSize: 1024 * 1024, MaxFiles: 5}

	store, err := NewFileStore(config)
	require.NoError(t, err)

	finalized, err := store.Append(context.Background(), &Record{Type: TypeRegistration, Action: "register", Result: ResultSuccess, Actor: "alice"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewFileStore(config)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	records, err := reopened.Search(context.Background(), SearchFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, finalized.SelfHash, records[0].SelfHash)

	// next append must chain from the replayed tip, not restart at genesis
	next, err := reopened.Append(context.Background(), &Record{Type: TypeLifecycle, Action: "activate", Result: ResultSuccess, Actor: "bob"})
	require.NoError(t, err)
	assert.Equal(t, finalized.SelfHash, next.PrevHash)
	assert.EqualValues(t, 2, next.Seq)
}

func TestFileStore_VerifyChain(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Append(ctx, &Record{Type: TypeRegistration, Action: "register", Result: ResultSuccess, Actor: "alice"})
		require.NoError(t, err)
	}

	require.NoError(t, store.VerifyChain(ctx))

	store.log.records[1].SelfHash = "corrupted"
	assert.Error(t, store.VerifyChain(ctx))
}

func TestFileStore_Sweep(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, &Record{Type: TypeRegistration, Action: "register", Result: ResultSuccess, Actor: "alice"})
	require.NoError(t, err)

	removed, err := store.Sweep(ctx, RetentionPolicy{RetentionDays: 365})
	require.NoError(t, err)
	assert.EqualValues(t, 0, removed)

	removed, err = store.Sweep(ctx, RetentionPolicy{RetentionDays: 0})
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
}
