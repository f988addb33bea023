package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// FileStore keeps the state in a single JSON file, replaced atomically.
type FileStore struct {
	path string
	loc  *time.Location
}

// NewFileStore constructs a FileStore.
func NewFileStore(path string, loc *time.Location) *FileStore {
	return &FileStore{path: path, loc: loc}
}

// Load reads the state file; a missing file yields an empty state.
func (f *FileStore) Load(ctx context.Context) (*AlertState, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(), nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}
	return Decode(data, f.loc)
}

// Save writes to a temp file in the same directory and renames it over the target.
func (f *FileStore) Save(ctx context.Context, st *AlertState) error {
	data, err := Encode(st)
	if err != nil {
		return err
	}
	return WriteFileAtomic(f.path, data)
}

// WriteFileAtomic replaces path with data without exposing a partial file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// RedisStore keeps the encoded state under one Redis key.
type RedisStore struct {
	client redis.Cmdable
	key    string
	loc    *time.Location
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client redis.Cmdable, key string, loc *time.Location) *RedisStore {
	if key == "" {
		key = "stockalert:state"
	}
	return &RedisStore{client: client, key: key, loc: loc}
}

// Load fetches the state; a missing key yields an empty state.
func (r *RedisStore) Load(ctx context.Context) (*AlertState, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return New(), nil
		}
		return nil, fmt.Errorf("get state from redis: %w", err)
	}
	return Decode(data, r.loc)
}

// Save overwrites the key with the full encoded state.
func (r *RedisStore) Save(ctx context.Context, st *AlertState) error {
	data, err := Encode(st)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("set state in redis: %w", err)
	}
	return nil
}

// MemoryStore holds state in process; used for dry runs and simulations.
type MemoryStore struct {
	mu sync.Mutex
	st *AlertState
}

// NewMemoryStore seeds a MemoryStore; nil starts empty.
func NewMemoryStore(seed *AlertState) *MemoryStore {
	if seed == nil {
		seed = New()
	}
	return &MemoryStore{st: seed.Clone()}
}

func (m *MemoryStore) Load(ctx context.Context) (*AlertState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.Clone(), nil
}

func (m *MemoryStore) Save(ctx context.Context, st *AlertState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = st.Clone()
	return nil
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
