package progress

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	redisclient "logo-forge/pkg/database/redis"
)

// FileBackend keeps the snapshot in a JSON file replaced by rename on every save.
type FileBackend struct {
	path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (b *FileBackend) Path() string {
	return b.path
}

func (b *FileBackend) Save(_ context.Context, data []byte) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent for %s: %w", b.path, err)
	}

	// a fresh temp file per write keeps concurrent writers from sharing one
	tmp, err := os.CreateTemp(dir, ".progress-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", b.path, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file for %s: %w", b.path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod temp file for %s: %w", b.path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file for %s: %w", b.path, err)
	}
	if err := os.Rename(tmpPath, b.path); err != nil {
		cleanup()
		return fmt.Errorf("atomic rename for %s: %w", b.path, err)
	}
	return nil
}

func (b *FileBackend) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("read file %s: %w", b.path, err)
	}
	return data, nil
}

func (b *FileBackend) Remove(_ context.Context) error {
	if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", b.path, err)
	}
	return nil
}

// KV is the subset of the Redis client the backend needs.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisBackend stores the snapshot under one key; SET replaces it atomically.
type RedisBackend struct {
	kv  KV
	key string
}

func NewRedisBackend(kv KV, key string) *RedisBackend {
	return &RedisBackend{kv: kv, key: key}
}

func (b *RedisBackend) Save(ctx context.Context, data []byte) error {
	return b.kv.Set(ctx, b.key, string(data), 0)
}

func (b *RedisBackend) Load(ctx context.Context) ([]byte, error) {
	val, err := b.kv.Get(ctx, b.key)
	if err != nil {
		if errors.Is(err, redisclient.ErrKeyNotFound) {
			return nil, ErrNoSnapshot
		}
		return nil, err
	}
	return []byte(val), nil
}

func (b *RedisBackend) Remove(ctx context.Context) error {
	return b.kv.Delete(ctx, b.key)
}

type MemoryBackend struct {
	mu   sync.RWMutex
	data []byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (b *MemoryBackend) Save(_ context.Context, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append([]byte(nil), data...)
	return nil
}

func (b *MemoryBackend) Load(_ context.Context) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.data == nil {
		return nil, ErrNoSnapshot
	}
	return append([]byte(nil), b.data...), nil
}

func (b *MemoryBackend) Remove(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = nil
	return nil
}
