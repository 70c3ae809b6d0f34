package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiStore_AppendSync(t *testing.T) {
	primary := NewLog()
	mirror := NewLog()

	store := NewMultiStore(primary, mirror)
	store.SetAsync(false)

	_, err := store.Append(context.Background(), &Record{Type: TypeRegistration, Action: "register", Result: ResultSuccess, Actor: "alice"})
	require.NoError(t, err)

	assert.Len(t, primary.records, 1)
	assert.Len(t, mirror.records, 1)
}

func TestMultiStore_AppendAsync(t *testing.T) {
	primary := NewLog()
	mirror := NewLog()

	store := NewMultiStore(primary, mirror)

	_, err := store.Append(context.Background(), &Record{Type: TypeRegistration, Action: "register", Result: ResultSuccess, Actor: "alice"})
	require.NoError(t, err)
	store.Wait()

	assert.Len(t, primary.records, 1)
	assert.Len(t, mirror.records, 1)
	assert.Empty(t, store.MirrorErrors())
}

func TestMultiStore_MirrorFailureDoesNotFailPrimary(t *testing.T) {
	primary := NewLog()
	failing := &alwaysFailsStore{}

	store := NewMultiStore(primary, failing)
	store.SetAsync(false)

	finalized, err := store.Append(context.Background(), &Record{Type: TypeRegistration, Action: "register", Result: ResultSuccess, Actor: "alice"})
	require.NoError(t, err)
	assert.NotNil(t, finalized)
	assert.Len(t, store.MirrorErrors(), 1)
}

func TestMultiStore_QueriesDelegateToPrimary(t *testing.T) {
	primary := NewLog()
	mirror := NewLog()
	store := NewMultiStore(primary, mirror)
	store.SetAsync(false)

	_, err := store.Append(context.Background(), &Record{Type: TypeRegistration, Action: "register", Result: ResultSuccess, Actor: "alice", Subject: "orders.created"})
	require.NoError(t, err)

	records, err := store.Search(context.Background(), SearchFilter{Subject: "orders.created"})
	require.NoError(t, err)
	assert.Len(t, records, 1)

	require.NoError(t, store.VerifyChain(context.Background()))
}

type alwaysFailsStore struct{}

func (alwaysFailsStore) Append(context.Context, *Record) (*Record, error) {
	return nil, errors.New("mirror unavailable")
}
func (alwaysFailsStore) Search(context.Context, SearchFilter) ([]*Record, error) { return nil, nil }
func (alwaysFailsStore) GetStats(context.Context, *time.Time, *time.Time) (*Stats, error) {
	return nil, nil
}
func (alwaysFailsStore) Export(context.Context, SearchFilter, ExportFormat) ([]byte, error) {
	return nil, nil
}
func (alwaysFailsStore) Sweep(context.Context, RetentionPolicy) (int64, error) { return 0, nil }
func (alwaysFailsStore) VerifyChain(context.Context) error                     { return nil }

var _ Store = alwaysFailsStore{}
