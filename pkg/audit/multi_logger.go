package audit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MultiStore appends to a primary Store (the authoritative chain) and mirrors
// the finalized record to one or more secondary stores. Secondary writes run
// async by default so a slow mirror (e.g. a cold file volume) never adds
// latency to the append path that callers are waiting on.
type MultiStore struct {
	primary    Store
	secondary  []Store
	async      bool
	wg         sync.WaitGroup
	errMu      sync.Mutex
	mirrorErrs []error
}

// NewMultiStore builds a MultiStore. primary is queried for Search/GetStats/
// Export/VerifyChain; secondary stores only ever receive Append calls.
func NewMultiStore(primary Store, secondary ...Store) *MultiStore {
	return &MultiStore{primary: primary, secondary: secondary, async: true}
}

// SetAsync controls whether mirror writes run synchronously with Append.
func (m *MultiStore) SetAsync(async bool) {
	m.async = async
}

func (m *MultiStore) Append(ctx context.Context, r *Record) (*Record, error) {
	finalized, err := m.primary.Append(ctx, r)
	if err != nil {
		return nil, err
	}

	mirror := func(s Store) {
		// Each secondary keeps its own chain over the same logical events;
		// its seq/hash will differ from primary's, which is the one callers
		// treat as authoritative.
		if _, err := s.Append(ctx, finalized); err != nil {
			m.recordMirrorErr(fmt.Errorf("mirror append failed: %w", err))
		}
	}

	for _, s := range m.secondary {
		if m.async {
			m.wg.Add(1)
			go func(s Store) {
				defer m.wg.Done()
				mirror(s)
			}(s)
		} else {
			mirror(s)
		}
	}

	return finalized, nil
}

func (m *MultiStore) recordMirrorErr(err error) {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	m.mirrorErrs = append(m.mirrorErrs, err)
}

// Wait blocks until all in-flight async mirror writes finish.
func (m *MultiStore) Wait() {
	m.wg.Wait()
}

// MirrorErrors returns and clears accumulated async mirror failures.
func (m *MultiStore) MirrorErrors() []error {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	errs := m.mirrorErrs
	m.mirrorErrs = nil
	return errs
}

func (m *MultiStore) Search(ctx context.Context, filter SearchFilter) ([]*Record, error) {
	return m.primary.Search(ctx, filter)
}

func (m *MultiStore) GetStats(ctx context.Context, start, end *time.Time) (*Stats, error) {
	return m.primary.GetStats(ctx, start, end)
}

func (m *MultiStore) Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error) {
	return m.primary.Export(ctx, filter, format)
}

func (m *MultiStore) Sweep(ctx context.Context, policy RetentionPolicy) (int64, error) {
	return m.primary.Sweep(ctx, policy)
}

func (m *MultiStore) VerifyChain(ctx context.Context) error {
	return m.primary.VerifyChain(ctx)
}

var _ Store = (*MultiStore)(nil)
