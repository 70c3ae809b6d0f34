package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// genesisHash seeds the chain; the first record's PrevHash is this value.
const genesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Store persists and queries Records. Log implements the in-memory/append
// path; a Store may be backed by it for search, export, and retention.
type Store interface {
	Append(ctx context.Context, r *Record) (*Record, error)
	Search(ctx context.Context, filter SearchFilter) ([]*Record, error)
	GetStats(ctx context.Context, start, end *time.Time) (*Stats, error)
	Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error)
	Sweep(ctx context.Context, policy RetentionPolicy) (int64, error)
	VerifyChain(ctx context.Context) error
}

// Log is an in-memory, hash-chained audit trail. It is the reference
// implementation of Store; a durable implementation would persist each
// Record to schema_versions' sibling audit_records table (see
// pkg/storage/postgres/schema.sql) using the same chaining rule.
type Log struct {
	mu      sync.Mutex
	records []*Record
	lastHash string
}

// NewLog creates an empty chain.
func NewLog() *Log {
	return &Log{lastHash: genesisHash}
}

// Append computes r's seq and hash fields from the current chain tip and
// records it. The caller-supplied Seq, PrevHash, and SelfHash are ignored
// and overwritten: a Record's position in the chain is authoritative only
// once Append has run.
func (l *Log) Append(ctx context.Context, r *Record) (*Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	clone := *r
	clone.Seq = int64(len(l.records)) + 1
	if clone.Timestamp.IsZero() {
		clone.Timestamp = time.Now()
	}
	clone.PrevHash = l.lastHash
	clone.SelfHash = ""

	hash, err := hashRecord(&clone)
	if err != nil {
		return nil, fmt.Errorf("failed to hash audit record: %w", err)
	}
	clone.SelfHash = hash

	l.records = append(l.records, &clone)
	l.lastHash = hash
	return &clone, nil
}

// hashRecord hashes the JSON encoding of every field except SelfHash itself.
func hashRecord(r *Record) (string, error) {
	data, err := json.Marshal(struct {
		Seq       int64          `json:"seq"`
		Type      Type           `json:"type"`
		Action    string         `json:"action"`
		Result    Result         `json:"result"`
		Actor     string         `json:"actor"`
		Subject   string         `json:"subject,omitempty"`
		SchemaID  string         `json:"schema_id,omitempty"`
		Timestamp time.Time      `json:"timestamp"`
		Detail    map[string]any `json:"detail,omitempty"`
		PrevHash  string         `json:"prev_hash"`
		Redacted  bool           `json:"redacted"`
	}{
		Seq: r.Seq, Type: r.Type, Action: r.Action, Result: r.Result,
		Actor: r.Actor, Subject: r.Subject, SchemaID: r.SchemaID,
		Timestamp: r.Timestamp, Detail: r.Detail, PrevHash: r.PrevHash, Redacted: r.Redacted,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyChain recomputes every record's hash and confirms it both matches
// its stored SelfHash and chains correctly from its predecessor. A redacted
// record's Detail may have been scrubbed in place (see Redact); its hash is
// excluded from the check, since redaction deliberately breaks it.
func (l *Log) VerifyChain(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := genesisHash
	for _, r := range l.records {
		if r.PrevHash != prev {
			return fmt.Errorf("audit chain broken at seq %d: expected prev hash %s, got %s", r.Seq, prev, r.PrevHash)
		}
		if !r.Redacted {
			want, err := hashRecord(r)
			if err != nil {
				return fmt.Errorf("failed to recompute hash at seq %d: %w", r.Seq, err)
			}
			if want != r.SelfHash {
				return fmt.Errorf("audit record %d tampered: hash mismatch", r.Seq)
			}
		}
		prev = r.SelfHash
	}
	return nil
}

// Redact scrubs a record's Detail in place (e.g. for a GDPR erasure request)
// and marks it Redacted so VerifyChain stops checking its content hash while
// still enforcing its position in the chain.
func (l *Log) Redact(seq int64, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range l.records {
		if r.Seq == seq {
			r.Detail = map[string]any{"redacted_reason": reason}
			r.Redacted = true
			return nil
		}
	}
	return fmt.Errorf("no audit record with seq %d", seq)
}

func (l *Log) Search(ctx context.Context, filter SearchFilter) ([]*Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var matched []*Record
	for _, r := range l.records {
		if !matches(r, filter) {
			continue
		}
		matched = append(matched, r)
	}

	if filter.Offset >= len(matched) {
		return nil, nil
	}
	end := len(matched)
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return matched[filter.Offset:end], nil
}

func matches(r *Record, f SearchFilter) bool {
	if f.StartTime != nil && r.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && r.Timestamp.After(*f.EndTime) {
		return false
	}
	if f.Actor != "" && r.Actor != f.Actor {
		return false
	}
	if f.Subject != "" && r.Subject != f.Subject {
		return false
	}
	if f.Result != nil && r.Result != *f.Result {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if r.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (l *Log) GetStats(ctx context.Context, start, end *time.Time) (*Stats, error) {
	records, err := l.Search(ctx, SearchFilter{StartTime: start, EndTime: end})
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		ByType:   map[Type]int64{},
		ByResult: map[Result]int64{},
	}
	actors := map[string]bool{}
	for _, r := range records {
		stats.TotalRecords++
		stats.ByType[r.Type]++
		stats.ByResult[r.Result]++
		actors[r.Actor] = true
		switch r.Result {
		case ResultFailure:
			stats.FailureCount++
		case ResultDenied:
			stats.DeniedCount++
		}
	}
	stats.UniqueActors = int64(len(actors))
	return stats, nil
}

func (l *Log) Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error) {
	records, err := l.Search(ctx, filter)
	if err != nil {
		return nil, err
	}
	switch format {
	case ExportFormatCSV:
		return exportCSV(records)
	case ExportFormatNDJSON:
		return exportNDJSON(records)
	default:
		return exportJSON(records)
	}
}

// Sweep removes records older than policy's retention window and returns how
// many it removed. It does not archive anything: Log has no blob store, so
// records to be kept elsewhere are exported with Export before Sweep runs.
func (l *Log) Sweep(ctx context.Context, policy RetentionPolicy) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -policy.RetentionDays)
	var kept []*Record
	var removed int64
	for _, r := range l.records {
		if r.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	l.records = kept
	return removed, nil
}

var _ Store = (*Log)(nil)
