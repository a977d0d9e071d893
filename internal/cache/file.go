package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// FileStore keeps each key in its own file below a directory. It mirrors on-device
// key-value storage for deployments without Redis or a shared database.
type FileStore struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

type fileRecord struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// NewFileStore creates dir when missing.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("cache: file store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create file store dir: %w", err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

func (s *FileStore) path(key string) string {
	sum := sha1.Sum([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".json")
}

func (s *FileStore) read(key string) (fileRecord, bool, error) {
	raw, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return fileRecord{}, false, nil
	}
	if err != nil {
		return fileRecord{}, false, err
	}

	var rec fileRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return fileRecord{}, false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	if !rec.ExpiresAt.IsZero() && s.now().After(rec.ExpiresAt) {
		_ = os.Remove(s.path(key))
		return fileRecord{}, false, nil
	}
	return rec, true, nil
}

// write replaces the file atomically via rename.
func (s *FileStore) write(rec fileRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path(rec.Key))
}

// IncrementWithTTL increments a counter persisted on disk.
func (s *FileStore) IncrementWithTTL(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec, ok, err := s.read(key)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		rec = fileRecord{Key: key, Value: []byte("0"), ExpiresAt: now.Add(window)}
	}

	current, _ := strconv.ParseInt(string(rec.Value), 10, 64)
	count := current + 1
	rec.Value = []byte(strconv.FormatInt(count, 10))
	if err := s.write(rec); err != nil {
		return 0, 0, err
	}
	return count, rec.ExpiresAt.Sub(now), nil
}

// Set writes value for key.
func (s *FileStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := fileRecord{Key: key, Value: value}
	if ttl > 0 {
		rec.ExpiresAt = s.now().Add(ttl)
	}
	return s.write(rec)
}

// Get reads value for key.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok, err := s.read(key)
	if err != nil || !ok {
		return nil, false, err
	}
	return rec.Value, true, nil
}

// Delete removes the files backing keys.
func (s *FileStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}
