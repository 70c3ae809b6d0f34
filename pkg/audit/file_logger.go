package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore persists the hash chain to a local append-only file, rotating
// when it grows past MaxSize. It is meant for single-node deployments and
// local development; the wrapped in-memory Log (the log field) drives the
// hash computation so a file
// on disk is exactly as tamper-evident as the in-memory Log.
type FileStore struct {
	basePath string
	file     *os.File
	encoder  *json.Encoder
	log      *Log

	mu       sync.Mutex
	rotate   bool
	maxSize  int64
	maxFiles int
}

// FileStoreConfig configures a FileStore.
type FileStoreConfig struct {
	BasePath string
	Rotate   bool
	MaxSize  int64
	MaxFiles int
}

// DefaultFileStoreConfig returns sane defaults for a local audit trail.
func DefaultFileStoreConfig() FileStoreConfig {
	return FileStoreConfig{
		BasePath: "/var/log/registry-core/audit",
		Rotate:   true,
		MaxSize:  100 * 1024 * 1024,
		MaxFiles: 10,
	}
}

// NewFileStore creates or reopens a file-backed audit trail, replaying the
// entries of the current audit.log into an in-memory Log so the chain tip and
// Search/Stats queries are available without re-reading the file on every
// call. Rotated files are not replayed.
func NewFileStore(config FileStoreConfig) (*FileStore, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	s := &FileStore{
		basePath: config.BasePath,
		rotate:   config.Rotate,
		maxSize:  config.MaxSize,
		maxFiles: config.MaxFiles,
		log:      NewLog(),
	}
	if s.maxSize == 0 {
		s.maxSize = 100 * 1024 * 1024
	}
	if s.maxFiles == 0 {
		s.maxFiles = 10
	}

	if err := s.replay(); err != nil {
		return nil, err
	}
	if err := s.openLogFile(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) currentFile() string {
	return filepath.Join(s.basePath, "audit.log")
}

func (s *FileStore) replay() error {
	f, err := os.Open(s.currentFile())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open existing audit log: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	for {
		var r Record
		if err := dec.Decode(&r); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to replay audit log: %w", err)
		}
		s.log.records = append(s.log.records, &r)
		s.log.lastHash = r.SelfHash
	}
}

func (s *FileStore) openLogFile() error {
	if s.rotate {
		if info, err := os.Stat(s.currentFile()); err == nil && info.Size() >= s.maxSize {
			if err := s.rotateFile(); err != nil {
				return fmt.Errorf("failed to rotate audit log: %w", err)
			}
		}
	}

	f, err := os.OpenFile(s.currentFile(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}
	s.file = f
	s.encoder = json.NewEncoder(f)
	return nil
}

func (s *FileStore) rotateFile() error {
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}

	timestamp := time.Now().Format("2006-01-02-15-04-05")
	rotated := filepath.Join(s.basePath, fmt.Sprintf("audit-%s.log", timestamp))
	if err := os.Rename(s.currentFile(), rotated); err != nil {
		return fmt.Errorf("failed to rename audit log: %w", err)
	}

	if err := s.cleanupOldFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to cleanup old audit logs: %v\n", err)
	}
	return nil
}

func (s *FileStore) cleanupOldFiles() error {
	files, err := filepath.Glob(filepath.Join(s.basePath, "audit-*.log"))
	if err != nil {
		return err
	}
	if len(files) > s.maxFiles {
		for _, f := range files[:len(files)-s.maxFiles] {
			if err := os.Remove(f); err != nil {
				fmt.Fprintf(os.Stderr, "failed to remove old audit log %s: %v\n", f, err)
			}
		}
	}
	return nil
}

// Append chains r through the in-memory Log, then persists the result.
func (s *FileStore) Append(ctx context.Context, r *Record) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	finalized, err := s.log.Append(ctx, r)
	if err != nil {
		return nil, err
	}

	if s.rotate {
		if info, err := s.file.Stat(); err == nil && info.Size() >= s.maxSize {
			if err := s.openLogFile(); err != nil {
				return nil, fmt.Errorf("failed to rotate audit log: %w", err)
			}
		}
	}
	if err := s.encoder.Encode(finalized); err != nil {
		return nil, fmt.Errorf("failed to write audit record: %w", err)
	}
	return finalized, nil
}

func (s *FileStore) Search(ctx context.Context, filter SearchFilter) ([]*Record, error) {
	return s.log.Search(ctx, filter)
}

func (s *FileStore) GetStats(ctx context.Context, start, end *time.Time) (*Stats, error) {
	return s.log.GetStats(ctx, start, end)
}

func (s *FileStore) Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error) {
	return s.log.Export(ctx, filter, format)
}

func (s *FileStore) Sweep(ctx context.Context, policy RetentionPolicy) (int64, error) {
	return s.log.Sweep(ctx, policy)
}

func (s *FileStore) VerifyChain(ctx context.Context) error {
	return s.log.VerifyChain(ctx)
}

// Close flushes and closes the underlying file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

var _ Store = (*FileStore)(nil)
