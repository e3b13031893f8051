package kvstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/rzpsarthak13/sqlkit/internal/core"
	"github.com/rzpsarthak13/sqlkit/internal/registry"
)

const (
	fileExt        = ".yaml"
	lockRetryDelay = 10 * time.Millisecond
)

// FileKVStore stores each key as <dir>/<key>.yaml. Readers take a shared
// flock and writers an exclusive one; writes go through a temporary file and
// a rename so readers never see a partial document. TTLs are not supported.
type FileKVStore struct {
	dir string
}

// NewFileKVStore creates the directory if needed.
func NewFileKVStore(dir string) (*FileKVStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	return &FileKVStore{dir: dir}, nil
}

// Dir returns the directory holding the documents.
func (f *FileKVStore) Dir() string { return f.dir }

// Path returns the document path of key.
func (f *FileKVStore) Path(key string) string {
	return filepath.Join(f.dir, key+fileExt)
}

func (f *FileKVStore) lock(key string) (*flock.Flock, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return nil, fmt.Errorf("invalid key %q", key)
	}
	return flock.New(filepath.Join(f.dir, "."+key+".lock")), nil
}

// Get retrieves a value by key from the store.
func (f *FileKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	lk, err := f.lock(key)
	if err != nil {
		return nil, err
	}
	if _, err := lk.TryRLockContext(ctx, lockRetryDelay); err != nil {
		return nil, fmt.Errorf("failed to lock key %s: %w", key, err)
	}
	defer lk.Unlock()

	data, err := os.ReadFile(f.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", core.ErrKeyNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return data, nil
}

// Set stores a value. ttl is ignored.
func (f *FileKVStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	lk, err := f.lock(key)
	if err != nil {
		return err
	}
	if _, err := lk.TryLockContext(ctx, lockRetryDelay); err != nil {
		return fmt.Errorf("failed to lock key %s: %w", key, err)
	}
	defer lk.Unlock()

	if ttl > 0 {
		log.Printf("[CACHE] file store ignores ttl %v for key %s", ttl, key)
	}

	tmp, err := os.CreateTemp(f.dir, "."+key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for key %s: %w", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), f.Path(key)); err != nil {
		return fmt.Errorf("failed to store key %s: %w", key, err)
	}
	return nil
}

// Delete removes a key from the store. Deleting a missing key is not an error.
func (f *FileKVStore) Delete(ctx context.Context, key string) error {
	lk, err := f.lock(key)
	if err != nil {
		return err
	}
	if _, err := lk.TryLockContext(ctx, lockRetryDelay); err != nil {
		return fmt.Errorf("failed to lock key %s: %w", key, err)
	}
	defer lk.Unlock()

	if err := os.Remove(f.Path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Exists checks if a key exists in the store.
func (f *FileKVStore) Exists(_ context.Context, key string) (bool, error) {
	if _, err := f.lock(key); err != nil {
		return false, err
	}
	_, err := os.Stat(f.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check existence of key %s: %w", key, err)
	}
	return true, nil
}

// Close is a no-op; locks are released after every call.
func (f *FileKVStore) Close() error { return nil }

// FileKVStoreFactory creates file stores.
type FileKVStoreFactory struct{}

func (FileKVStoreFactory) Type() string { return "file" }

func (FileKVStoreFactory) Validate(config registry.CacheConfig) error {
	if config.Dir == "" {
		return fmt.Errorf("dir is required for the file cache")
	}
	return nil
}

func (FileKVStoreFactory) Create(config registry.CacheConfig) (core.KVStore, error) {
	return NewFileKVStore(config.Dir)
}

func init() {
	RegisterFactory(FileKVStoreFactory{})
}
