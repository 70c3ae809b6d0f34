package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
)

// DBStore persists the hash chain to the audit_records table (see
// pkg/storage/postgres/schema.sql). The chain tip is read from the last row
// on open so a process restart resumes the chain instead of starting a new
// one, at the cost of one query per process lifetime.
type DBStore struct {
	db *sql.DB
	mu sync.Mutex

	seq      int64
	lastHash string
}

// NewDBStore opens a postgres-backed Store, creating audit_records if absent
// and loading the current chain tip.
func NewDBStore(db *sql.DB) (*DBStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	s := &DBStore{db: db, lastHash: genesisHash}
	if err := s.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_records table: %w", err)
	}
	if err := s.loadTip(); err != nil {
		return nil, fmt.Errorf("failed to load audit chain tip: %w", err)
	}
	return s, nil
}

func (s *DBStore) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_records (
		seq BIGSERIAL PRIMARY KEY,
		type VARCHAR(50) NOT NULL,
		action VARCHAR(255) NOT NULL,
		result VARCHAR(20) NOT NULL,
		actor VARCHAR(255) NOT NULL,
		subject VARCHAR(255),
		schema_id VARCHAR(255),
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		detail JSONB,
		prev_hash VARCHAR(64) NOT NULL,
		self_hash VARCHAR(64) NOT NULL,
		redacted BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_audit_records_timestamp ON audit_records(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_records_type ON audit_records(type);
	CREATE INDEX IF NOT EXISTS idx_audit_records_actor ON audit_records(actor);
	CREATE INDEX IF NOT EXISTS idx_audit_records_subject ON audit_records(subject);
	`
	_, err := s.db.Exec(query)
	return err
}

func (s *DBStore) loadTip() error {
	row := s.db.QueryRow(`SELECT seq, self_hash FROM audit_records ORDER BY seq DESC LIMIT 1`)
	var seq int64
	var hash string
	err := row.Scan(&seq, &hash)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	s.seq = seq
	s.lastHash = hash
	return nil
}

// Append computes r's chain fields against the tip loaded at open (or the
// last Append) and inserts it. s.mu serializes Appends within this process,
// so two concurrent Appends can never both observe the same prev hash; the
// tip is updated in memory after the insert, not in a database transaction.
func (s *DBStore) Append(ctx context.Context, r *Record) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *r
	clone.Seq = s.seq + 1
	if clone.Timestamp.IsZero() {
		clone.Timestamp = time.Now()
	}
	clone.PrevHash = s.lastHash
	clone.SelfHash = ""

	hash, err := hashRecord(&clone)
	if err != nil {
		return nil, fmt.Errorf("failed to hash audit record: %w", err)
	}
	clone.SelfHash = hash

	detailJSON, err := json.Marshal(clone.Detail)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal detail: %w", err)
	}

	query := `
		INSERT INTO audit_records (
			seq, type, action, result, actor, subject, schema_id,
			timestamp, detail, prev_hash, self_hash, redacted
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = s.db.ExecContext(ctx, query,
		clone.Seq, clone.Type, clone.Action, clone.Result, clone.Actor, clone.Subject, clone.SchemaID,
		clone.Timestamp, detailJSON, clone.PrevHash, clone.SelfHash, clone.Redacted,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert audit record: %w", err)
	}

	s.seq = clone.Seq
	s.lastHash = clone.SelfHash
	return &clone, nil
}

func (s *DBStore) Search(ctx context.Context, filter SearchFilter) ([]*Record, error) {
	query := `
		SELECT seq, type, action, result, actor, subject, schema_id,
		       timestamp, detail, prev_hash, self_hash, redacted
		FROM audit_records WHERE 1=1
	`
	args := []interface{}{}
	n := 1

	if filter.StartTime != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", n)
		args = append(args, *filter.StartTime)
		n++
	}
	if filter.EndTime != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", n)
		args = append(args, *filter.EndTime)
		n++
	}
	if filter.Actor != "" {
		query += fmt.Sprintf(" AND actor = $%d", n)
		args = append(args, filter.Actor)
		n++
	}
	if filter.Subject != "" {
		query += fmt.Sprintf(" AND subject = $%d", n)
		args = append(args, filter.Subject)
		n++
	}
	if filter.Result != nil {
		query += fmt.Sprintf(" AND result = $%d", n)
		args = append(args, string(*filter.Result))
		n++
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		query += fmt.Sprintf(" AND type = ANY($%d)", n)
		args = append(args, pq.Array(types))
		n++
	}

	query += " ORDER BY seq DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", n)
		args = append(args, filter.Limit)
		n++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", n)
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		r := &Record{}
		var detailJSON []byte
		if err := rows.Scan(&r.Seq, &r.Type, &r.Action, &r.Result, &r.Actor, &r.Subject, &r.SchemaID,
			&r.Timestamp, &detailJSON, &r.PrevHash, &r.SelfHash, &r.Redacted); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		if len(detailJSON) > 0 {
			if err := json.Unmarshal(detailJSON, &r.Detail); err != nil {
				return nil, fmt.Errorf("failed to unmarshal detail: %w", err)
			}
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *DBStore) GetStats(ctx context.Context, start, end *time.Time) (*Stats, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	n := 1
	if start != nil {
		where += fmt.Sprintf(" AND timestamp >= $%d", n)
		args = append(args, *start)
		n++
	}
	if end != nil {
		where += fmt.Sprintf(" AND timestamp <= $%d", n)
		args = append(args, *end)
		n++
	}

	stats := &Stats{ByType: map[Type]int64{}, ByResult: map[Result]int64{}}

	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM audit_records %s", where), args...).Scan(&stats.TotalRecords); err != nil {
		return nil, fmt.Errorf("failed to count audit records: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT type, COUNT(*) FROM audit_records %s GROUP BY type", where), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by type: %w", err)
	}
	for rows.Next() {
		var t Type
		var count int64
		if err := rows.Scan(&t, &count); err != nil {
			rows.Close()
			return nil, err
		}
		stats.ByType[t] = count
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, fmt.Sprintf("SELECT result, COUNT(*) FROM audit_records %s GROUP BY result", where), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by result: %w", err)
	}
	for rows.Next() {
		var r Result
		var count int64
		if err := rows.Scan(&r, &count); err != nil {
			rows.Close()
			return nil, err
		}
		stats.ByResult[r] = count
		switch r {
		case ResultFailure:
			stats.FailureCount = count
		case ResultDenied:
			stats.DeniedCount = count
		}
	}
	rows.Close()

	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(DISTINCT actor) FROM audit_records %s", where), args...).Scan(&stats.UniqueActors); err != nil {
		return nil, fmt.Errorf("failed to count unique actors: %w", err)
	}

	return stats, nil
}

func (s *DBStore) Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error) {
	records, err := s.Search(ctx, filter)
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

// Sweep deletes records older than policy's retention window. Archival (if
// policy.ArchiveEnabled) must happen before calling Sweep: export the
// records due for removal, upload them under policy.ArchivePrefix, then
// sweep.
func (s *DBStore) Sweep(ctx context.Context, policy RetentionPolicy) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -policy.RetentionDays)
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_records WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep audit records: %w", err)
	}
	return res.RowsAffected()
}

// VerifyChain reads every record in seq order and recomputes its hash. For a
// large table a production deployment would paginate this; it is provided
// here for operator-triggered integrity checks, not the request hot path.
func (s *DBStore) VerifyChain(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, type, action, result, actor, subject, schema_id,
		       timestamp, detail, prev_hash, self_hash, redacted
		FROM audit_records ORDER BY seq ASC
	`)
	if err != nil {
		return fmt.Errorf("failed to read audit records: %w", err)
	}
	defer rows.Close()

	prev := genesisHash
	for rows.Next() {
		r := &Record{}
		var detailJSON []byte
		if err := rows.Scan(&r.Seq, &r.Type, &r.Action, &r.Result, &r.Actor, &r.Subject, &r.SchemaID,
			&r.Timestamp, &detailJSON, &r.PrevHash, &r.SelfHash, &r.Redacted); err != nil {
			return fmt.Errorf("failed to scan audit record: %w", err)
		}
		if len(detailJSON) > 0 {
			if err := json.Unmarshal(detailJSON, &r.Detail); err != nil {
				return fmt.Errorf("failed to unmarshal detail: %w", err)
			}
		}
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
	return rows.Err()
}

// Close is a no-op: DBStore never owns the *sql.DB it is given.
func (s *DBStore) Close() error { return nil }

var _ Store = (*DBStore)(nil)
