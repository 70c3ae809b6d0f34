package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/schemaforge/registry-core/pkg/schema"
	"github.com/schemaforge/registry-core/pkg/version"
)

// FileSystemStorage implements RecordStore and BlobStore over the local
// filesystem. It has no external dependencies and exists for local
// development and tests; production deployments use postgres.Storage.
type FileSystemStorage struct {
	rootDir string
	mu      sync.RWMutex
}

// NewFileSystemStorage creates a filesystem-backed store rooted at rootDir.
func NewFileSystemStorage(rootDir string) (*FileSystemStorage, error) {
	if err := os.MkdirAll(filepath.Join(rootDir, "subjects"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(rootDir, "blobs"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &FileSystemStorage{rootDir: rootDir}, nil
}

func (s *FileSystemStorage) subjectDir(key string) string {
	return filepath.Join(s.rootDir, "subjects", escapeKey(key))
}

func escapeKey(key string) string {
	return strings.ReplaceAll(key, "/", "__")
}

func (s *FileSystemStorage) CreateSubject(ctx context.Context, subject *schema.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.subjectDir(subject.Key())
	if err := os.MkdirAll(filepath.Join(dir, "schemas"), 0755); err != nil {
		return fmt.Errorf("failed to create subject directory: %w", err)
	}
	data, err := json.Marshal(subject)
	if err != nil {
		return fmt.Errorf("failed to marshal subject: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "subject.json"), data, 0644)
}

func (s *FileSystemStorage) GetSubject(ctx context.Context, subjectKey string) (*schema.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.subjectDir(subjectKey), "subject.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read subject: %w", err)
	}
	var subject schema.Subject
	if err := json.Unmarshal(data, &subject); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subject: %w", err)
	}
	return &subject, nil
}

func (s *FileSystemStorage) ListSubjects(ctx context.Context, limit, offset int) ([]*schema.Subject, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	base := filepath.Join(s.rootDir, "subjects")
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read subjects directory: %w", err)
	}

	var all []*schema.Subject
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(base, entry.Name(), "subject.json"))
		if err != nil {
			continue
		}
		var subject schema.Subject
		if err := json.Unmarshal(data, &subject); err != nil {
			continue
		}
		all = append(all, &subject)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Key() < all[j].Key() })

	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (s *FileSystemStorage) PutSchema(ctx context.Context, sc *schema.Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.subjectDir(sc.Subject.Key()), "schemas")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create schemas directory: %w", err)
	}
	data, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, sc.ID+".json"), data, 0644)
}

func (s *FileSystemStorage) UpdateSchema(ctx context.Context, sc *schema.Schema) error {
	return s.PutSchema(ctx, sc)
}

func (s *FileSystemStorage) GetSchema(ctx context.Context, id string) (*schema.Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	base := filepath.Join(s.rootDir, "subjects")
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, fmt.Errorf("failed to read subjects directory: %w", err)
	}
	for _, entry := range entries {
		path := filepath.Join(base, entry.Name(), "schemas", id+".json")
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var sc schema.Schema
		if err := json.Unmarshal(data, &sc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
		}
		return &sc, nil
	}
	return nil, fmt.Errorf("schema %s not found", id)
}

func (s *FileSystemStorage) GetSchemaByHash(ctx context.Context, subjectKey, contentHash string) (*schema.Schema, error) {
	versions, _, err := s.ListVersions(ctx, subjectKey)
	if err != nil {
		return nil, err
	}
	for _, sc := range versions {
		if sc.ContentHash == contentHash {
			return sc, nil
		}
	}
	return nil, fmt.Errorf("no schema in subject %s with hash %s", subjectKey, contentHash)
}

func (s *FileSystemStorage) ListVersions(ctx context.Context, subjectKey string) ([]*schema.Schema, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := filepath.Join(s.subjectDir(subjectKey), "schemas")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("failed to read schemas directory: %w", err)
	}

	var result []*schema.Schema
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		var sc schema.Schema
		if err := json.Unmarshal(data, &sc); err != nil {
			continue
		}
		result = append(result, &sc)
	}
	sort.Slice(result, func(i, j int) bool { return version.Less(result[i].Version, result[j].Version) })
	return result, int64(len(result)), nil
}

func (s *FileSystemStorage) HealthCheck(ctx context.Context) error {
	_, err := os.Stat(s.rootDir)
	return err
}

// blob storage: content-addressable, sha256/ab/cdef...

func (s *FileSystemStorage) blobPath(hash string) string {
	if len(hash) < 2 {
		return filepath.Join(s.rootDir, "blobs", hash)
	}
	return filepath.Join(s.rootDir, "blobs", hash[:2], hash[2:])
}

func (s *FileSystemStorage) PutBlob(ctx context.Context, content io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("failed to read blob content: %w", err)
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	path := s.blobPath(hash)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create blob shard directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return hash, nil // already present, dedup
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	return hash, nil
}

func (s *FileSystemStorage) GetBlob(ctx context.Context, hash string) (io.ReadCloser, error) {
	f, err := os.Open(s.blobPath(hash))
	if err != nil {
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return f, nil
}

func (s *FileSystemStorage) BlobExists(ctx context.Context, hash string) (bool, error) {
	_, err := os.Stat(s.blobPath(hash))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *FileSystemStorage) DeleteBlob(ctx context.Context, hash string) error {
	err := os.Remove(s.blobPath(hash))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}
